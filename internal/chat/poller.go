package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/admiral/internal/bus"
	"github.com/matheus3301/admiral/internal/gateway"
	"github.com/matheus3301/admiral/internal/metrics"
	"github.com/matheus3301/admiral/internal/status"
	"github.com/matheus3301/admiral/internal/store"
	"go.uber.org/zap"
)

const (
	DefaultActiveInterval     = 5 * time.Second
	DefaultBackgroundInterval = 30 * time.Second
	DefaultFailureThreshold   = 2

	// maxBackoffShift caps the backoff multiplier at 1<<3.
	maxBackoffShift = 3
)

// PollerConfig controls poll cadence.
type PollerConfig struct {
	ActiveInterval     time.Duration
	BackgroundInterval time.Duration
	// FailureThreshold is the number of consecutive failures after which the
	// session is reported as degraded.
	FailureThreshold int
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.ActiveInterval <= 0 {
		c.ActiveInterval = DefaultActiveInterval
	}
	if c.BackgroundInterval <= 0 {
		c.BackgroundInterval = DefaultBackgroundInterval
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	return c
}

// PollListener is told about every successful poll that reported news.
type PollListener func(ctx context.Context, res *gateway.PollResult)

// Poller periodically asks the gateway for channel deltas.
type Poller struct {
	dir      *Directory
	gw       Gateway
	db       *store.DB
	status   *status.Machine
	bus      *bus.Bus
	metrics  *metrics.Metrics
	logger   *zap.Logger
	cfg      PollerConfig
	activity ActivityProvider
	now      func() time.Time

	mu        sync.Mutex
	listener  PollListener
	inFlight  bool
	lastStart time.Time
	failures  int
	gen       uint64
	cancel    context.CancelFunc
	done      chan struct{}
	origin    time.Time
}

// NewPoller creates a poll scheduler. A nil activity provider counts as
// always active.
func NewPoller(dir *Directory, gw Gateway, db *store.DB, st *status.Machine, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger, cfg PollerConfig, activity ActivityProvider) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if activity == nil {
		activity = AlwaysActive
	}
	return &Poller{
		dir:      dir,
		gw:       gw,
		db:       db,
		status:   st,
		bus:      b,
		metrics:  m,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		activity: activity,
		now:      time.Now,
		origin:   time.Now(),
	}
}

// SetListener registers the function told about polls with news.
func (p *Poller) SetListener(fn PollListener) {
	p.mu.Lock()
	p.listener = fn
	p.mu.Unlock()
}

// Running reports whether the tick loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Start begins ticking. Calling Start on a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
}

// Stop ends ticking. A poll in flight is allowed to finish but its result is
// discarded. Stop waits for the loop to exit or ctx to end.
func (p *Poller) Stop(ctx context.Context) {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.gen++
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.cfg.ActiveInterval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ticker.C:
			p.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	p.mu.Lock()
	last := p.lastStart
	interval := p.intervalLocked()
	p.mu.Unlock()

	if !last.IsZero() && p.now().Sub(last) < interval {
		return
	}
	// Failures are already logged and counted.
	_, _ = p.PollNow(context.WithoutCancel(ctx))
}

// Interval returns the wait applicable to the next poll.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.intervalLocked()
}

func (p *Poller) intervalLocked() time.Duration {
	base := p.cfg.BackgroundInterval
	if p.activity.Active() {
		base = p.cfg.ActiveInterval
	}
	return base << min(p.failures, maxBackoffShift)
}

// PollNow runs one poll cycle. It reports false without polling when another
// cycle is already in flight.
func (p *Poller) PollNow(ctx context.Context) (bool, error) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return false, nil
	}
	p.inFlight = true
	issued := p.now()
	p.lastStart = issued
	gen := p.gen
	listener := p.listener
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	since, err := p.Cursor()
	if err != nil {
		return true, err
	}
	res, err := p.gw.PollForUpdates(ctx, since)

	p.mu.Lock()
	stale := p.gen != gen
	p.mu.Unlock()
	if stale {
		p.logger.Debug("discarding poll result after stop")
		return true, nil
	}

	if err != nil {
		p.recordFailure(err)
		return true, fmt.Errorf("poll: %w", err)
	}
	p.recordSuccess()

	if err := p.db.SetCursor(store.CursorPoll, issued.UTC().Format(time.RFC3339Nano)); err != nil {
		p.logger.Error("failed to persist poll cursor", zap.Error(err))
	}

	if res.HasNew {
		unknown, err := p.dir.ApplyDeltas(res.Channels)
		if err != nil {
			p.logger.Error("failed to apply poll deltas", zap.Error(err))
		}
		if len(unknown) > 0 {
			p.logger.Info("poll reported unknown channels", zap.Strings("channel_ids", unknown))
			if err := p.dir.Refresh(ctx); err != nil {
				p.logger.Warn("directory refresh failed", zap.Error(err))
			}
		}
		if listener != nil {
			listener(ctx, res)
		}
	}

	if _, err := p.dir.ReplayPending(ctx); err != nil {
		p.logger.Warn("pending op replay failed", zap.Error(err))
	}
	p.bus.Emit(bus.KindPollCompleted, res)
	return true, nil
}

// Cursor returns the time the next poll asks for changes since.
func (p *Poller) Cursor() (time.Time, error) {
	v, ok, err := p.db.GetCursor(store.CursorPoll)
	if err != nil {
		return time.Time{}, fmt.Errorf("read poll cursor: %w", err)
	}
	if !ok {
		return p.origin, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		p.logger.Warn("bad poll cursor, using start time", zap.String("value", v), zap.Error(err))
		return p.origin, nil
	}
	return t, nil
}

// Failures returns the number of consecutive failed polls.
func (p *Poller) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

func (p *Poller) recordFailure(err error) {
	p.mu.Lock()
	p.failures++
	failures := p.failures
	p.mu.Unlock()

	p.logger.Warn("poll failed", zap.Int("consecutive", failures), zap.Error(err))
	if p.metrics != nil {
		p.metrics.PollsTotal.WithLabelValues("failed").Inc()
		p.metrics.PollFailures.Set(float64(failures))
	}
	if failures >= p.cfg.FailureThreshold {
		p.setStatus(status.Degraded)
	}
	p.bus.Emit(bus.KindPollFailed, err.Error())
}

func (p *Poller) recordSuccess() {
	p.mu.Lock()
	p.failures = 0
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.PollsTotal.WithLabelValues("ok").Inc()
		p.metrics.PollFailures.Set(0)
	}
	p.setStatus(status.Ready)
}

// setStatus leaves paused and stopped sessions alone.
func (p *Poller) setStatus(to status.State) {
	if p.status == nil {
		return
	}
	switch p.status.Current() {
	case status.Paused, status.Stopped, status.Booting:
		return
	}
	if err := p.status.Ensure(to); err != nil {
		p.logger.Debug("status transition skipped", zap.String("to", string(to)), zap.Error(err))
	}
}
