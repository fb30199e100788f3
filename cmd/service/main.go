package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/websitekilla/webconnect/internal"
	"github.com/websitekilla/webconnect/internal/config"
	"github.com/websitekilla/webconnect/internal/logging"
	"github.com/websitekilla/webconnect/pkg"
)

func main() {
	fmt.Println("starting ...")

	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	flag.Parse()

	log.Warnf("---->> running in [%s] environment", *env)

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	envVars, err := config.LoadEnv(ctx)
	if err != nil {
		panic(err)
	}

	logging.Setup(logging.LoggerSetupParams{
		LogFileName:      cfg.LogsPath,
		LogToStdout:      cfg.LogToStdout,
		LogLevel:         cfg.LogLevel,
		LogFormatJSON:    false,
		Environment:      cfg.Environment,
		SentryEnabled:    cfg.SentryEnabled,
		SentryDSN:        envVars.SentryDSN,
		SentryServerName: "webconnect-service",
	})

	log.Debugf("using port: %d", cfg.Port)
	log.Debugf("using server logs path: [%s]", cfg.LogsPath)

	versionInfo, err := tryGetLastCommitHash()
	if err != nil {
		log.Tracef("failed to get last commit hash / version info: %s", err)
	} else {
		log.Tracef("running version: %s", versionInfo)
	}

	if envVars.AdminPassword == "" {
		log.Errorf("admin password not set, use ADMIN_PASSWORD env var to set it")
	}

	if cfg.SessionStore == config.SessionStoreRedis && envVars.RedisPassword == "" {
		log.Errorf("redis password not set. use WEBCONNECT_REDIS_PASS")
	}

	if envVars.HoneycombEnabled {
		if honeycombApiKey := os.Getenv("HONEYCOMB_API_KEY"); honeycombApiKey == "" {
			log.Warnln("HONEYCOMB_API_KEY env var not set")
		}
	} else {
		log.Debugln("honeycomb tracing disabled")
	}

	if cfg.AccountsStore == config.AccountsStoreJsonDB {
		dirExists, err := pkg.PathExists(cfg.DataDirPath, true)
		if err != nil {
			log.Fatalf("check accounts data dir: %s", err)
		}
		if !dirExists {
			if err := os.MkdirAll(cfg.DataDirPath, 0o755); err != nil {
				log.Fatalf("create accounts data dir: %s", err)
			}
			log.Printf("accounts data dir created: %s", cfg.DataDirPath)
		}
	}

	chOsInterrupt := make(chan os.Signal, 1)
	signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)

	server, err := internal.NewServer(
		ctx,
		internal.NewServerParams{
			Config:                  cfg,
			AdminUsername:           envVars.AdminUsername,
			AdminPassword:           envVars.AdminPassword,
			RedisPassword:           envVars.RedisPassword,
			VersionInfo:             versionInfo,
			HoneycombTracingEnabled: envVars.HoneycombEnabled,
		},
	)
	if err != nil {
		log.Fatalf("new server: %s", err)
	}

	server.Serve()

	receivedSig := <-chOsInterrupt
	log.Warnf("signal [%s] received, shutting down ...", receivedSig)
	cancel()

	server.GracefulShutdown()
}

// tryGetLastCommitHash will try to get the last commit hash
// assumes that the built main executable is in project root
func tryGetLastCommitHash() (string, error) {
	cmd := exec.Command("/usr/bin/git", "rev-parse", "HEAD")
	stdout, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return pkg.BytesToString(stdout), nil
}
