package site

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"

	"github.com/websitekilla/webconnect/internal/auth"
	"github.com/websitekilla/webconnect/internal/instrumentation"
	"github.com/websitekilla/webconnect/internal/middleware"
	"github.com/websitekilla/webconnect/internal/settings"
	"github.com/websitekilla/webconnect/internal/telemetry/tracing"
	"github.com/websitekilla/webconnect/pkg"
)

const SessionCookieName = "session_token"

// CookieParams describe the session cookie sent to the browser; the
// Secure attribute is only set on HTTPS deployments
type CookieParams struct {
	Domain   string
	Secure   bool
	SameSite http.SameSite
	TTL      time.Duration
}

// Handler exposes the /api endpoints of the marketing site backend
type Handler struct {
	authService   *auth.Service
	settingsStore *settings.FileStore
	instr         *instrumentation.Instrumentation
	cookies       CookieParams
}

func NewHandler(
	authService *auth.Service,
	settingsStore *settings.FileStore,
	instr *instrumentation.Instrumentation,
	cookies CookieParams,
) *Handler {
	return &Handler{
		authService:   authService,
		settingsStore: settingsStore,
		instr:         instr,
		cookies:       cookies,
	}
}

func (h *Handler) SetupRoutes(
	mainRouter *mux.Router,
	rateLimiter middleware.RequestRateLimiter,
	loginLimit redis_rate.Limit,
) {
	apiRouter := mainRouter.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/logout", h.handleLogout).Methods("POST", "OPTIONS").Name("logout")
	apiRouter.HandleFunc("/user", h.handleUserStatus).Methods("GET").Name("user-status")
	apiRouter.HandleFunc("/change-password", h.requireAdmin(h.handleChangePassword)).Methods("POST", "OPTIONS").Name("change-password")
	apiRouter.HandleFunc("/save-theme", h.requireAdmin(h.handleSaveTheme)).Methods("POST", "OPTIONS").Name("save-theme")
	apiRouter.HandleFunc("/theme-settings", h.handleThemeSettings).Methods("GET").Name("theme-settings")

	// the static site fetches the theme from this path as well
	mainRouter.HandleFunc("/theme-settings.json", h.handleThemeSettings).Methods("GET").Name("theme-settings-json")

	// rate limit the /login endpoint to prevent brute force attempts
	loginRouter := mainRouter.PathPrefix("/api").Subrouter()
	loginRouter.HandleFunc("/login", h.handleLogin).Methods("POST", "OPTIONS").Name("login")
	loginRouter.Use(middleware.RateLimit(rateLimiter, "login", loginLimit))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "siteHandler.login")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	var credentials auth.Credentials
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
			log.Errorf("login, unmarshal json params: %s", err)
			pkg.WriteJSONError(w, "login failed", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			log.Errorf("login failed, parse form error: %s", err)
			pkg.WriteJSONError(w, "parse form error", http.StatusInternalServerError)
			return
		}
		credentials = auth.Credentials{
			Username: r.Form.Get("username"),
			Password: r.Form.Get("password"),
		}
	}

	if credentials.Username == "" || credentials.Password == "" {
		pkg.WriteJSONError(w, "username and password required", http.StatusBadRequest)
		return
	}

	session, err := h.authService.Login(ctx, credentials)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.instr.CounterLoginsFailed.Inc()
			span.SetStatus(codes.Error, "invalid-credentials")
			pkg.WriteJSONError(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		log.Errorf("login failed: %s", err)
		span.SetStatus(codes.Error, "login-error")
		span.RecordError(err)
		pkg.WriteJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.setSessionCookie(w, session.Token)
	h.instr.CounterLogins.Inc()

	log.Tracef("new login success for: %s", session.Username)
	span.SetStatus(codes.Ok, "login-ok")
	pkg.WriteJSONResponseOK(w, fmt.Sprintf(`{"success":true,"isAdmin":%t}`, session.IsAdmin))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "siteHandler.logout")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if err := h.authService.Logout(ctx, cookie.Value); err != nil {
			// logout never fails towards the client, log and move on
			log.Errorf("logout: %s", err)
			span.RecordError(err)
		}
	}

	h.clearSessionCookie(w)
	pkg.WriteJSONResponseOK(w, `{"success":true}`)
}

// handleUserStatus never errors, a missing or dead session simply
// reads as not logged in
func (h *Handler) handleUserStatus(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessionFromRequest(r.Context(), r)
	if err != nil {
		pkg.WriteJSONResponseOK(w, `{"isLoggedIn":false,"isAdmin":false}`)
		return
	}

	pkg.WriteJSONResponseOK(w, fmt.Sprintf(`{"isLoggedIn":true,"isAdmin":%t}`, session.IsAdmin))
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request, session *auth.Session) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "siteHandler.changePassword")
	defer span.End()

	var changeReq struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&changeReq); err != nil {
		log.Errorf("change password, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, "invalid request", http.StatusBadRequest)
		return
	}

	if changeReq.CurrentPassword == "" || changeReq.NewPassword == "" {
		pkg.WriteJSONError(w, "current and new password required", http.StatusBadRequest)
		return
	}

	err := h.authService.ChangePassword(ctx, session.Username, changeReq.CurrentPassword, changeReq.NewPassword)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			span.SetStatus(codes.Error, "wrong-current-password")
			pkg.WriteJSONError(w, "Current password is incorrect", http.StatusUnauthorized)
			return
		}
		log.Errorf("change password for [%s]: %s", session.Username, err)
		span.SetStatus(codes.Error, "change-password-error")
		span.RecordError(err)
		pkg.WriteJSONError(w, "Failed to update password", http.StatusInternalServerError)
		return
	}

	span.SetStatus(codes.Ok, "password-changed")
	pkg.WriteJSONResponseOK(w, `{"success":true,"message":"Password updated successfully"}`)
}

func (h *Handler) handleSaveTheme(w http.ResponseWriter, r *http.Request, session *auth.Session) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "siteHandler.saveTheme")
	defer span.End()

	var theme map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&theme); err != nil {
		pkg.WriteJSONError(w, "theme document must be a JSON object", http.StatusBadRequest)
		return
	}

	if err := h.settingsStore.Write(theme); err != nil {
		log.Errorf("save theme by [%s]: %s", session.Username, err)
		span.SetStatus(codes.Error, "save-theme-error")
		span.RecordError(err)
		pkg.WriteJSONError(w, "Failed to save theme", http.StatusInternalServerError)
		return
	}

	h.instr.CounterThemeSaves.Inc()
	span.SetStatus(codes.Ok, "theme-saved")
	pkg.WriteJSONResponseOK(w, `{"success":true}`)
}

// handleThemeSettings never errors towards the caller, the settings
// store falls back to the default document
func (h *Handler) handleThemeSettings(w http.ResponseWriter, _ *http.Request) {
	theme := h.settingsStore.Read()

	themeBytes, err := json.Marshal(theme)
	if err != nil {
		log.Errorf("marshal theme settings: %s", err)
		pkg.WriteJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, themeBytes)
}

// requireAdmin short-circuits with 403 before the protected handler
// runs, unless the request carries an admin session
func (h *Handler) requireAdmin(next func(w http.ResponseWriter, r *http.Request, session *auth.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.Header().Add("Allow", "POST, OPTIONS")
			w.WriteHeader(http.StatusOK)
			return
		}

		session, err := h.sessionFromRequest(r.Context(), r)
		if err != nil || !session.IsAdmin {
			pkg.WriteJSONError(w, "Admin access required", http.StatusForbidden)
			return
		}

		next(w, r, session)
	}
}

// Static serves the marketing site files; the admin panel page is
// only served to admin sessions
func (h *Handler) Static(staticDir string) http.Handler {
	fileServer := http.FileServer(http.Dir(staticDir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimPrefix(r.URL.Path, "/") == "admin.html" {
			session, err := h.sessionFromRequest(r.Context(), r)
			if err != nil || !session.IsAdmin {
				pkg.WriteJSONError(w, "Admin access required", http.StatusForbidden)
				return
			}
		}
		fileServer.ServeHTTP(w, r)
	})
}

func (h *Handler) sessionFromRequest(ctx context.Context, r *http.Request) (*auth.Session, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, err
	}
	return h.authService.SessionOf(ctx, cookie.Value)
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.cookies.Domain,
		MaxAge:   int(h.cookies.TTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: h.cookies.SameSite,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.cookies.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: h.cookies.SameSite,
	})
}
