package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/matheus3301/admiral/internal/config"
	"github.com/matheus3301/admiral/internal/status"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HTTPServer serves /healthz and /metrics when daemon.metrics_addr is set.
// A nil *HTTPServer is valid and does nothing.
type HTTPServer struct {
	srv      *http.Server
	listener net.Listener
	logger   *zap.Logger
}

// NewHTTPServer binds the metrics listener. It returns nil when no address is
// configured.
func NewHTTPServer(p Params, cfg *config.Config, reg *prometheus.Registry, machine *status.Machine, logger *zap.Logger) (*HTTPServer, error) {
	if cfg.Daemon.MetricsAddr == "" {
		return nil, nil
	}
	listener, err := net.Listen("tcp", cfg.Daemon.MetricsAddr)
	if err != nil {
		return nil, err
	}
	return &HTTPServer{
		srv: &http.Server{
			Handler:           newRouter(p.SessionName, reg, machine),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: listener,
		logger:   logger,
	}, nil
}

func newRouter(sessionName string, reg *prometheus.Registry, machine *status.Machine) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		state := machine.Current()
		code := http.StatusOK
		if state == status.Error || state == status.Stopped {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"session": sessionName,
			"status":  string(state),
		})
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return r
}

// Addr returns the bound address, or "" for a nil server.
func (h *HTTPServer) Addr() string {
	if h == nil {
		return ""
	}
	return h.listener.Addr().String()
}

func (h *HTTPServer) Start() {
	if h == nil {
		return
	}
	h.logger.Info("metrics listener starting", zap.String("addr", h.Addr()))
	go func() {
		if err := h.srv.Serve(h.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("metrics listener error", zap.Error(err))
		}
	}()
}

func (h *HTTPServer) Stop(ctx context.Context) {
	if h == nil {
		return
	}
	if err := h.srv.Shutdown(ctx); err != nil {
		h.logger.Warn("metrics listener shutdown", zap.Error(err))
	}
}
