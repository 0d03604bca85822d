package api

import (
	"context"
	"time"

	"github.com/matheus3301/admiral/internal/chat"
	"github.com/matheus3301/admiral/internal/rpc"
	"github.com/matheus3301/admiral/internal/status"
	"github.com/matheus3301/admiral/internal/store"
	"go.uber.org/zap"
)

// SessionService implements the SessionService gRPC service.
type SessionService struct {
	sessionName string
	startedAt   time.Time
	machine     *status.Machine
	session     *chat.Session
	db          *store.DB
	logger      *zap.Logger
}

var _ rpc.SessionServiceServer = (*SessionService)(nil)

// NewSessionService creates a new session service.
func NewSessionService(sessionName string, machine *status.Machine, session *chat.Session, db *store.DB, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessionName: sessionName,
		startedAt:   time.Now(),
		machine:     machine,
		session:     session,
		db:          db,
		logger:      logger,
	}
}

func (s *SessionService) GetStatus(_ context.Context, _ *rpc.GetStatusRequest) (*rpc.GetStatusResponse, error) {
	id := s.session.Identity()
	resp := &rpc.GetStatusResponse{
		Session:         s.sessionName,
		Status:          string(s.machine.Current()),
		Polling:         s.session.Polling(),
		MemberID:        id.MemberID,
		MemberName:      id.MemberName,
		ActiveChannelID: s.session.ActiveChannel(),
		PollFailures:    s.session.Poller.Failures(),
		UptimeMs:        time.Since(s.startedAt).Milliseconds(),
	}

	// Counts are best effort.
	if n, err := s.db.UnreadTotal(); err == nil {
		resp.UnreadTotal = n
	}
	if n, err := s.db.ChannelCount(); err == nil {
		resp.ChannelCount = n
	}
	if n, err := s.db.MessageCount(); err == nil {
		resp.MessageCount = n
	}
	if n, err := s.db.PendingOpCount(); err == nil {
		resp.PendingOps = n
	}
	if cursor, err := s.session.Poller.Cursor(); err == nil {
		resp.PollCursor = cursor.UTC().Format(time.RFC3339Nano)
	}
	return resp, nil
}

func (s *SessionService) SetPolling(ctx context.Context, req *rpc.SetPollingRequest) (*rpc.SetPollingResponse, error) {
	if err := s.session.SetPolling(ctx, req.Enabled); err != nil {
		return nil, toStatus("set polling", err)
	}
	s.logger.Info("polling toggled", zap.Bool("enabled", req.Enabled))
	return &rpc.SetPollingResponse{
		Polling: s.session.Polling(),
		Status:  string(s.machine.Current()),
	}, nil
}

// PollNow reports poll failures in the response; they are part of normal
// operation while offline.
func (s *SessionService) PollNow(ctx context.Context, _ *rpc.PollNowRequest) (*rpc.PollNowResponse, error) {
	polled, err := s.session.PollNow(ctx)
	resp := &rpc.PollNowResponse{Polled: polled}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp, nil
}
