package site

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/websitekilla/webconnect/internal/accounts"
	"github.com/websitekilla/webconnect/internal/auth"
	"github.com/websitekilla/webconnect/internal/instrumentation"
	"github.com/websitekilla/webconnect/internal/middleware"
	"github.com/websitekilla/webconnect/internal/settings"
)

const (
	testAdminUsername = "websitekilla"
	testAdminPassword = "Islam2025"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// countingAccountsStore tracks credential lookups so the rate limit
// tests can assert that rejected requests never reach the store
type countingAccountsStore struct {
	accounts.Store
	lookups atomic.Int32
}

func (s *countingAccountsStore) FindByUsername(ctx context.Context, username string) (*accounts.Account, error) {
	s.lookups.Add(1)
	return s.Store.FindByUsername(ctx, username)
}

type handlerTestDeps struct {
	handler       *Handler
	router        *mux.Router
	accountsStore *countingAccountsStore
	settingsPath  string
}

func newTestHandler(t *testing.T, loginLimit redis_rate.Limit) *handlerTestDeps {
	t.Helper()

	accountsStore := &countingAccountsStore{Store: accounts.NewMemoryStore()}
	require.NoError(t, accountsStore.SeedDefaultAdmin(context.Background(), testAdminUsername, testAdminPassword))

	sessionStore := auth.NewMemorySessionStore(auth.DefaultTTL)
	authService := auth.NewService(accountsStore, sessionStore, auth.DefaultTTL)

	settingsPath := filepath.Join(t.TempDir(), "theme-settings.json")
	settingsStore := settings.NewFileStore(settingsPath)

	handler := NewHandler(
		authService,
		settingsStore,
		instrumentation.NewTestInstrumentation(),
		CookieParams{
			Domain:   "localhost",
			Secure:   false,
			SameSite: http.SameSiteStrictMode,
			TTL:      auth.DefaultTTL,
		},
	)

	router := mux.NewRouter()
	handler.SetupRoutes(router, middleware.NewFixedWindowLimiter(), loginLimit)

	return &handlerTestDeps{
		handler:       handler,
		router:        router,
		accountsStore: accountsStore,
		settingsPath:  settingsPath,
	}
}

func defaultLoginLimit() redis_rate.Limit {
	return redis_rate.Limit{Rate: 5, Burst: 5, Period: 15 * time.Minute}
}

func loginRequest(username, password string) *http.Request {
	body := fmt.Sprintf(`{"username":%q,"password":%q}`, username, password)
	req := httptest.NewRequest("POST", "/api/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func sessionCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == SessionCookieName {
			return cookie
		}
	}
	t.Fatalf("no %s cookie in response", SessionCookieName)
	return nil
}

func loginAsAdmin(t *testing.T, deps *handlerTestDeps) *http.Cookie {
	t.Helper()
	rr := httptest.NewRecorder()
	deps.router.ServeHTTP(rr, loginRequest(testAdminUsername, testAdminPassword))
	require.Equal(t, http.StatusOK, rr.Code)
	return sessionCookie(t, rr)
}

func TestLogin(t *testing.T) {
	deps := newTestHandler(t, defaultLoginLimit())

	rr := httptest.NewRecorder()
	deps.router.ServeHTTP(rr, loginRequest(testAdminUsername, testAdminPassword))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `{"success":true,"isAdmin":true}`, rr.Body.String())

	cookie := sessionCookie(t, rr)
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, int((24 * time.Hour).Seconds()), cookie.MaxAge)

	// the cookie now reads as a logged in admin
	statusReq := httptest.NewRequest("GET", "/api/user", nil)
	statusReq.AddCookie(cookie)
	statusRR := httptest.NewRecorder()
	deps.router.ServeHTTP(statusRR, statusReq)
	require.Equal(t, http.StatusOK, statusRR.Code)
	assert.Equal(t, `{"isLoggedIn":true,"isAdmin":true}`, statusRR.Body.String())
}

func TestLogin_FailuresIndistinguishable(t *testing.T) {
	deps := newTestHandler(t, defaultLoginLimit())

	unknownUserRR := httptest.NewRecorder()
	deps.router.ServeHTTP(unknownUserRR, loginRequest("no-such-user", testAdminPassword))

	wrongPasswordRR := httptest.NewRecorder()
	deps.router.ServeHTTP(wrongPasswordRR, loginRequest(testAdminUsername, "wrong-password"))

	assert.Equal(t, http.StatusUnauthorized, unknownUserRR.Code)
	assert.Equal(t, http.StatusUnauthorized, wrongPasswordRR.Code)
	assert.Equal(t, unknownUserRR.Body.String(), wrongPasswordRR.Body.String())
	assert.Equal(t, `{"error":"Invalid credentials"}`, unknownUserRR.Body.String())

	for _, rr := range []*httptest.ResponseRecorder{unknownUserRR, wrongPasswordRR} {
		for _, cookie := range rr.Result().Cookies() {
			assert.NotEqual(t, SessionCookieName, cookie.Name)
		}
	}
}

func TestLogin_MissingFields(t *testing.T) {
	deps := newTestHandler(t, defaultLoginLimit())

	rr := httptest.NewRecorder()
	deps.router.ServeHTTP(rr, loginRequest("", ""))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUserStatus_NotLoggedIn(t *testing.T) {
	deps := newTestHandler(t, defaultLoginLimit())

	rr := httptest.NewRecorder()
	deps.router.ServeHTTP(rr, httptest.NewRequest("GET", "/api/user", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `{"isLoggedIn":false,"isAdmin":false}`, rr.Body.String())

	// a garbage cookie reads the same as no cookie at all
	garbageReq := httptest.NewRequest("GET", "/api/user", nil)
	garbageReq.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "garbage-token"})
	garbageRR := httptest.NewRecorder()
	deps.router.ServeHTTP(garbageRR, garbageReq)
	require.Equal(t, http.StatusOK, garbageRR.Code)
	assert.Equal(t, `{"isLoggedIn":false,"isAdmin":false}`, garbageRR.Body.String())
}

func TestLogout(t *testing.T) {
	deps := newTestHandler(t, defaultLoginLimit())
	cookie := loginAsAdmin(t, deps)

	logoutReq := httptest.NewRequest("POST", "/api/logout", nil)
	logoutReq.AddCookie(cookie)
	logoutRR := httptest.NewRecorder()
	deps.router.ServeHTTP(logoutRR, logoutReq)

	require.Equal(t, http.StatusOK, logoutRR.Code)
	assert.Equal(t, `{"success":true}`, logoutRR.Body.String())
	expired := sessionCookie(t, logoutRR)
	assert.Less(t, expired.MaxAge, 0)

	// the old token no longer opens admin routes
	saveReq := httptest.NewRequest("POST", "/api/save-theme", strings.NewReader(`{"colors":{}}`))
	saveReq.Header.Set("Content-Type", "application/json")
	saveReq.AddCookie(cookie)
	saveRR := httptest.NewRecorder()
	deps.router.ServeHTTP(saveRR, saveReq)
	assert.Equal(t, http.StatusForbidden, saveRR.Code)

	// logging out again with the dead token still succeeds
	repeatReq := httptest.NewRequest("POST", "/api/logout", nil)
	repeatReq.AddCookie(cookie)
	repeatRR := httptest.NewRecorder()
	deps.router.ServeHTTP(repeatRR, repeatReq)
	assert.Equal(t, http.StatusOK, repeatRR.Code)
	assert.Equal(t, `{"success":true}`, repeatRR.Body.String())
}

func TestAdminRoutes_RequireAdminSession(t *testing.T) {
	deps := newTestHandler(t, defaultLoginLimit())

	for _, path := range []string{"/api/save-theme", "/api/change-password"} {
		req := httptest.NewRequest("POST", path, strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		deps.router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusForbidden, rr.Code, path)
		assert.Equal(t, `{"error":"Admin access required"}`, rr.Body.String(), path)
	}
}

func TestLogin_RateLimited(t *testing.T) {
	deps := newTestHandler(t, defaultLoginLimit())

	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		deps.router.ServeHTTP(rr, loginRequest(testAdminUsername, "wrong-password"))
		require.Equal(t, http.StatusUnauthorized, rr.Code, "attempt %d", i+1)
	}
	require.EqualValues(t, 5, deps.accountsStore.lookups.Load())

	// the sixth attempt is cut off before any credential check
	rr := httptest.NewRecorder()
	deps.router.ServeHTTP(rr, loginRequest(testAdminUsername, testAdminPassword))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.EqualValues(t, 5, deps.accountsStore.lookups.Load())

	// a client on another address still gets through
	otherReq := loginRequest(testAdminUsername, testAdminPassword)
	otherReq.Header.Set("X-Real-Ip", "203.0.113.80")
	otherRR := httptest.NewRecorder()
	deps.router.ServeHTTP(otherRR, otherReq)
	assert.Equal(t, http.StatusOK, otherRR.Code)
}

func TestChangePassword(t *testing.T) {
	deps := newTestHandler(t, defaultLoginLimit())
	cookie := loginAsAdmin(t, deps)

	changeReq := func(currentPass, newPass string) *http.Request {
		body := fmt.Sprintf(`{"currentPassword":%q,"newPassword":%q}`, currentPass, newPass)
		req := httptest.NewRequest("POST", "/api/change-password", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(cookie)
		return req
	}

	wrongRR := httptest.NewRecorder()
	deps.router.ServeHTTP(wrongRR, changeReq("not-the-password", "new-password-1"))
	assert.Equal(t, http.StatusUnauthorized, wrongRR.Code)
	assert.Equal(t, `{"error":"Current password is incorrect"}`, wrongRR.Body.String())

	okRR := httptest.NewRecorder()
	deps.router.ServeHTTP(okRR, changeReq(testAdminPassword, "new-password-1"))
	require.Equal(t, http.StatusOK, okRR.Code)
	assert.Equal(t, `{"success":true,"message":"Password updated successfully"}`, okRR.Body.String())

	// old password dead, new one live
	oldRR := httptest.NewRecorder()
	deps.router.ServeHTTP(oldRR, loginRequest(testAdminUsername, testAdminPassword))
	assert.Equal(t, http.StatusUnauthorized, oldRR.Code)

	newRR := httptest.NewRecorder()
	deps.router.ServeHTTP(newRR, loginRequest(testAdminUsername, "new-password-1"))
	assert.Equal(t, http.StatusOK, newRR.Code)

	// the session issued before the change is still valid
	statusReq := httptest.NewRequest("GET", "/api/user", nil)
	statusReq.AddCookie(cookie)
	statusRR := httptest.NewRecorder()
	deps.router.ServeHTTP(statusRR, statusReq)
	assert.Equal(t, `{"isLoggedIn":true,"isAdmin":true}`, statusRR.Body.String())
}

func TestThemeSettings_Default(t *testing.T) {
	deps := newTestHandler(t, defaultLoginLimit())

	for _, path := range []string{"/api/theme-settings", "/theme-settings.json"} {
		rr := httptest.NewRecorder()
		deps.router.ServeHTTP(rr, httptest.NewRequest("GET", path, nil))
		require.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"), path)

		var theme map[string]interface{}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &theme), path)
		assert.Equal(t, settings.DefaultTheme(), theme, path)
	}
}

func TestSaveTheme(t *testing.T) {
	deps := newTestHandler(t, defaultLoginLimit())
	cookie := loginAsAdmin(t, deps)

	themeJSON := `{"colors":{"primary":"#ff00aa","background":"#000000","text":"#eeeeee"},"content":{"heroTitle":"New Title","heroSubtitle":"New Subtitle"},"fonts":{"heading":"Inter"}}`
	saveReq := httptest.NewRequest("POST", "/api/save-theme", strings.NewReader(themeJSON))
	saveReq.Header.Set("Content-Type", "application/json")
	saveReq.AddCookie(cookie)
	saveRR := httptest.NewRecorder()
	deps.router.ServeHTTP(saveRR, saveReq)

	require.Equal(t, http.StatusOK, saveRR.Code)
	assert.Equal(t, `{"success":true}`, saveRR.Body.String())

	getRR := httptest.NewRecorder()
	deps.router.ServeHTTP(getRR, httptest.NewRequest("GET", "/api/theme-settings", nil))
	require.Equal(t, http.StatusOK, getRR.Code)

	var want, got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(themeJSON), &want))
	require.NoError(t, json.Unmarshal(getRR.Body.Bytes(), &got))
	// the old document is replaced wholesale, nothing merged in
	assert.Equal(t, want, got)
}

func TestSaveTheme_InvalidBody(t *testing.T) {
	deps := newTestHandler(t, defaultLoginLimit())
	cookie := loginAsAdmin(t, deps)

	req := httptest.NewRequest("POST", "/api/save-theme", strings.NewReader(`"just a string"`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	deps.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// nothing got persisted
	_, err := os.Stat(deps.settingsPath)
	assert.True(t, os.IsNotExist(err))
}

func TestStatic_AdminPageGuarded(t *testing.T) {
	deps := newTestHandler(t, defaultLoginLimit())

	staticDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "index.html"), []byte("<html>home</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "admin.html"), []byte("<html>admin</html>"), 0o644))

	deps.router.PathPrefix("/").Handler(deps.handler.Static(staticDir))

	indexRR := httptest.NewRecorder()
	deps.router.ServeHTTP(indexRR, httptest.NewRequest("GET", "/index.html", nil))
	assert.Equal(t, http.StatusOK, indexRR.Code)

	anonRR := httptest.NewRecorder()
	deps.router.ServeHTTP(anonRR, httptest.NewRequest("GET", "/admin.html", nil))
	assert.Equal(t, http.StatusForbidden, anonRR.Code)

	cookie := loginAsAdmin(t, deps)
	adminReq := httptest.NewRequest("GET", "/admin.html", nil)
	adminReq.AddCookie(cookie)
	adminRR := httptest.NewRecorder()
	deps.router.ServeHTTP(adminRR, adminReq)
	assert.Equal(t, http.StatusOK, adminRR.Code)
	assert.Contains(t, adminRR.Body.String(), "admin")
}
