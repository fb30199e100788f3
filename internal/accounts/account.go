package accounts

import (
	"context"
	"errors"

	"github.com/websitekilla/webconnect/pkg"
)

var ErrAccountNotFound = errors.New("account not found")

type Account struct {
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
	IsAdmin      bool   `json:"isAdmin"`
}

// Store holds the site accounts. Implementations must support
// concurrent reads and serialize writes to the same record.
type Store interface {
	// SeedDefaultAdmin creates an admin account with the given
	// credentials, unless the username is already taken - then it is
	// a no-op
	SeedDefaultAdmin(ctx context.Context, username, plaintextPassword string) error
	FindByUsername(ctx context.Context, username string) (*Account, error)
	UpdatePassword(ctx context.Context, username, newPlaintextPassword string) error
}

// VerifyPassword checks the plaintext password against the account's
// stored hash
func VerifyPassword(account *Account, plaintextPassword string) bool {
	if account == nil {
		return false
	}
	return pkg.CheckPasswordHash(plaintextPassword, account.PasswordHash)
}
