package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// Env carries the secrets and bootstrap credentials that never go
// into the config file
type Env struct {
	AdminUsername    string `env:"ADMIN_USERNAME, default=websitekilla"`
	AdminPassword    string `env:"ADMIN_PASSWORD"`
	RedisPassword    string `env:"WEBCONNECT_REDIS_PASS"`
	SentryDSN        string `env:"SENTRY_DSN"`
	HoneycombEnabled bool   `env:"HONEYCOMB_ENABLED, default=false"`
}

func LoadEnv(ctx context.Context) (*Env, error) {
	var env Env
	if err := envconfig.Process(ctx, &env); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	return &env, nil
}
