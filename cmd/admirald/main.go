package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/admiral/internal/config"
	"github.com/matheus3301/admiral/internal/daemon"
	"github.com/matheus3301/admiral/internal/session"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	configFlag := flag.String("config", "", "config file (default ~/.admiral/config.toml)")
	flag.Parse()

	sessionName, err := session.Resolve(*sessionFlag)
	if err != nil {
		fail(err)
	}

	// .env in the working directory wins over the one next to config.toml.
	if err := config.LoadEnvFiles(".env", session.EnvPath()); err != nil {
		fail(err)
	}
	configPath := *configFlag
	if configPath == "" {
		configPath = session.ConfigPath()
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		fail(fmt.Errorf("load config %s: %w", configPath, err))
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		fail(err)
	}
	if err := session.EnsureDir(sessionName); err != nil {
		fail(err)
	}

	app := fx.New(
		daemon.Module(daemon.Params{SessionName: sessionName, Config: cfg}),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)

	app.Run()
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
