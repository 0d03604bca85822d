package daemon

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/matheus3301/admiral/internal/api"
	"github.com/matheus3301/admiral/internal/bus"
	"github.com/matheus3301/admiral/internal/chat"
	"github.com/matheus3301/admiral/internal/config"
	"github.com/matheus3301/admiral/internal/gateway"
	"github.com/matheus3301/admiral/internal/lock"
	"github.com/matheus3301/admiral/internal/logging"
	"github.com/matheus3301/admiral/internal/metrics"
	"github.com/matheus3301/admiral/internal/session"
	"github.com/matheus3301/admiral/internal/status"
	"github.com/matheus3301/admiral/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	Config      *config.Config
	SocketPath  string // optional override for testing; empty = use default
	Dir         string // optional session directory override; empty = ~/.admiral/sessions/<name>
}

func (p Params) dir() string {
	if p.Dir != "" {
		return p.Dir
	}
	return session.Dir(p.SessionName)
}

func (p Params) socketPath() string {
	if p.SocketPath != "" {
		return p.SocketPath
	}
	return filepath.Join(p.dir(), "daemon.sock")
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideRegistry,
			provideMetrics,
			provideLock,
			provideStore,
			provideGateway,
			api.NewWatchers,
			provideSession,
			provideSessionService,
			provideChatService,
			NewServer,
			NewHTTPServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config == nil {
		return nil, fmt.Errorf("daemon: no configuration")
	}
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}
	return p.Config, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(filepath.Join(p.dir(), "logs", "admirald.log"), p.SessionName, cfg.Daemon.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(p.dir())
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired", zap.String("path", l.Path()))
	return l, nil
}

// provideStore depends on the lock so two daemons never migrate the same file.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := filepath.Join(p.dir(), "admiral.db")
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideGateway(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *gateway.Client {
	identity := gateway.Identity{MemberID: cfg.Gateway.MemberID, MemberName: cfg.Gateway.MemberName}
	return gateway.New(cfg.Gateway.BaseURL, identity,
		gateway.WithTimeout(cfg.Gateway.Timeout.Duration),
		gateway.WithMetrics(m),
		gateway.WithLogger(logger.Named("gateway")),
	)
}

func provideSession(cfg *config.Config, db *store.DB, gw *gateway.Client, b *bus.Bus, machine *status.Machine, m *metrics.Metrics, watchers *api.Watchers, logger *zap.Logger) *chat.Session {
	return chat.NewSession(db, gw, gw.Identity(), b, machine, m, logger.Named("chat"), chat.Config{
		DefaultChannel: cfg.Chat.DefaultChannel,
		HistoryLimit:   cfg.Chat.HistoryLimit,
		Polling:        cfg.Poll.Enabled,
		Poll: chat.PollerConfig{
			ActiveInterval:     cfg.Poll.ActiveInterval.Duration,
			BackgroundInterval: cfg.Poll.BackgroundInterval.Duration,
		},
	}, watchers)
}

func provideSessionService(p Params, machine *status.Machine, s *chat.Session, db *store.DB, logger *zap.Logger) *api.SessionService {
	return api.NewSessionService(p.SessionName, machine, s, db, logger.Named("api"))
}

func provideChatService(s *chat.Session, db *store.DB, b *bus.Bus, machine *status.Machine, watchers *api.Watchers, logger *zap.Logger) *api.ChatService {
	return api.NewChatService(s, db, b, machine, watchers, logger.Named("api"))
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, httpSrv *HTTPServer, lk *lock.Lock, db *store.DB, s *chat.Session, machine *status.Machine, logger *zap.Logger) {
	startCtx, cancelStart := context.WithCancel(context.Background())
	started := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			httpSrv.Start()

			// The first sync talks to the network; UIs can attach meanwhile
			// and read the cache.
			go func() {
				defer close(started)
				if err := s.Start(startCtx); err != nil {
					logger.Error("session start failed", zap.Error(err))
					_ = machine.Transition(status.Error)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancelStart()
			select {
			case <-started:
			case <-ctx.Done():
			}
			s.Stop(ctx)
			srv.Stop(ctx)
			httpSrv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
