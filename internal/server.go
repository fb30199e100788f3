package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/websitekilla/webconnect/internal/accounts"
	"github.com/websitekilla/webconnect/internal/auth"
	"github.com/websitekilla/webconnect/internal/config"
	"github.com/websitekilla/webconnect/internal/instrumentation"
	"github.com/websitekilla/webconnect/internal/middleware"
	"github.com/websitekilla/webconnect/internal/settings"
	"github.com/websitekilla/webconnect/internal/site"
	"github.com/websitekilla/webconnect/internal/telemetry/tracing"
	"github.com/websitekilla/webconnect/pkg"
)

// defaultAdminPassword is used when ADMIN_PASSWORD is not set; fine
// for local development, production deployments must set their own
const defaultAdminPassword = "Islam2025"

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config        *config.Config
	accountsStore accounts.Store
	authService   *auth.Service
	settingsStore *settings.FileStore
	rateLimiter   middleware.RequestRateLimiter

	redisClient *redis.Client

	// telemetry
	instr        *instrumentation.Instrumentation
	promRegistry *prometheus.Registry
	otelShutdown func()
}

type NewServerParams struct {
	Config                  *config.Config
	AdminUsername           string
	AdminPassword           string
	RedisPassword           string
	VersionInfo             string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	cfg := params.Config

	promRegistry := instrumentation.SetupPrometheus()
	instr := instrumentation.NewInstrumentationWithRegisterer("webconnect", "backend", promRegistry)
	instr.GaugeLifeSignal.Set(0)

	var accountsStore accounts.Store
	switch cfg.AccountsStore {
	case config.AccountsStoreJsonDB:
		jsonDBStore, err := accounts.NewJsonDBStore(cfg.DataDirPath)
		if err != nil {
			return nil, fmt.Errorf("new accounts json db store: %w", err)
		}
		accountsStore = jsonDBStore
	case config.AccountsStoreMemory:
		accountsStore = accounts.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown accounts store backend: %s", cfg.AccountsStore)
	}

	adminPassword := params.AdminPassword
	if adminPassword == "" {
		adminPassword = defaultAdminPassword
		if cfg.Environment == "development" || cfg.Environment == "dev" {
			log.Warnf("ADMIN_PASSWORD not set, using default credentials: %s / %s", params.AdminUsername, defaultAdminPassword)
		} else {
			log.Warn("ADMIN_PASSWORD not set, using the default password, change it via /api/change-password")
		}
	}
	if err := accountsStore.SeedDefaultAdmin(ctx, params.AdminUsername, adminPassword); err != nil {
		return nil, fmt.Errorf("seed default admin: %w", err)
	}

	var rdb *redis.Client
	if cfg.SessionStore == config.SessionStoreRedis {
		rdb = redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
			Password: params.RedisPassword,
			DB:       0, // use default DB
		})

		rdbStatus := rdb.Ping(ctx)
		if err := rdbStatus.Err(); err != nil {
			log.Errorf("--> failed to ping redis: %s", err)
		} else {
			log.Debugf("redis ping: %s", rdbStatus.Val())
		}
	}

	var sessionStore auth.SessionStore
	var rateLimiter middleware.RequestRateLimiter
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		sessionStore = auth.NewRedisSessionStore(auth.DefaultTTL, rdb)
		rateLimiter = redis_rate.NewLimiter(rdb)
	case config.SessionStoreMemory:
		sessionStore = auth.NewMemorySessionStore(auth.DefaultTTL)
		rateLimiter = middleware.NewFixedWindowLimiter()
	default:
		return nil, fmt.Errorf("unknown session store backend: %s", cfg.SessionStore)
	}

	authService := auth.NewService(accountsStore, sessionStore, auth.DefaultTTL)
	go func() {
		for range time.Tick(time.Hour * 8) {
			sessionStore.SweepExpired(ctx)
		}
	}()

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "webconnect-backend", rdb)
	if err != nil {
		return nil, err
	}

	return &Server{
		config:        cfg,
		versionInfo:   params.VersionInfo,
		accountsStore: accountsStore,
		authService:   authService,
		settingsStore: settings.NewFileStore(cfg.ThemeSettingsPath),
		rateLimiter:   rateLimiter,

		redisClient: rdb,

		instr:        instr,
		promRegistry: promRegistry,
		otelShutdown: otelShutdown,
	}, nil
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("webconnect-router"))

	siteHandler := site.NewHandler(
		s.authService,
		s.settingsStore,
		s.instr,
		site.CookieParams{
			Domain:   s.config.CookieDomain,
			Secure:   s.config.CookieSecure,
			SameSite: s.config.CookieSameSiteMode(),
			TTL:      auth.DefaultTTL,
		},
	)
	siteHandler.SetupRoutes(r, s.rateLimiter, redis_rate.Limit{
		Rate:   s.config.LoginRateLimitAttempts,
		Burst:  s.config.LoginRateLimitAttempts,
		Period: time.Duration(s.config.LoginRateLimitWindowMinutes) * time.Minute,
	})

	r.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		pkg.WriteTextResponseOK(w, s.versionInfo)
	}).Methods("GET").Name("version")

	if s.config.StaticDirPath != "" {
		r.PathPrefix("/").Handler(siteHandler.Static(s.config.StaticDirPath))
	} else {
		r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			pkg.WriteTextResponseOK(w, "webconnect backend, all good here")
		}).Methods("GET").Name("root")
	}

	r.Use(middleware.PanicRecovery(s.instr))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.instr))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.Cors(s.config.AllowedOrigins))
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) Serve() {
	router := s.routerSetup()

	ipAndPort := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	if s.config.PrometheusMetricsPort != "" {
		metricsRouter := mux.NewRouter()
		metricsRouter.Handle("/metrics", promhttp.HandlerFor(
			s.promRegistry,
			promhttp.HandlerOpts{},
		))
		metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
		s.metricsHttpServer = &http.Server{
			Addr:    metricsAddr,
			Handler: metricsRouter,
		}

		go func() {
			log.Debugf(" > metrics listening on: [%s]", metricsAddr)
			err := s.metricsHttpServer.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("metrics service, listen and serve: %s", err)
			}
		}()
	}

	s.instr.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.instr.GaugeLifeSignal.Set(0)

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown http server")
	}
	log.Warnln("server shut down")

	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown metrics http server")
		}
		log.Warnln("metrics server shut down")
	}
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.instr.GaugeRequests.Add(1)
	case http.StateClosed:
		s.instr.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
