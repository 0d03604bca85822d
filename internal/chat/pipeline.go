package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/admiral/internal/bus"
	"github.com/matheus3301/admiral/internal/gateway"
	"github.com/matheus3301/admiral/internal/metrics"
	"github.com/matheus3301/admiral/internal/store"
	"go.uber.org/zap"
)

// SendOptions carry optional parameters of a send.
type SendOptions struct {
	ReplyTo string
}

type sendJob struct {
	ctx  context.Context
	msg  store.Message
	opID int64
}

// Pipeline writes outgoing messages to the cache immediately and reconciles
// them with the server in the background. Sends to the same channel are
// delivered one at a time in submission order; different channels proceed
// concurrently.
type Pipeline struct {
	db       *store.DB
	gw       Gateway
	bus      *bus.Bus
	metrics  *metrics.Metrics
	logger   *zap.Logger
	identity gateway.Identity

	mu    sync.Mutex
	lanes map[string][]sendJob
	wg    sync.WaitGroup

	newID func() string
	now   func() time.Time
}

// NewPipeline creates a send pipeline authoring messages as identity.
func NewPipeline(db *store.DB, gw Gateway, identity gateway.Identity, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		db:       db,
		gw:       gw,
		bus:      b,
		metrics:  m,
		logger:   logger,
		identity: identity,
		lanes:    make(map[string][]sendJob),
		newID:    func() string { return store.TempIDPrefix + uuid.NewString() },
		now:      time.Now,
	}
}

// Send stores a pending message and queues it for delivery. The returned
// record carries the temporary id; reconciliation replaces it later.
func (p *Pipeline) Send(ctx context.Context, channelID, content string, opts SendOptions) (store.Message, error) {
	body := strings.TrimSpace(content)
	if body == "" {
		return store.Message{}, &ValidationError{Field: "content", Reason: "message is empty"}
	}
	if channelID == "" {
		return store.Message{}, &ValidationError{Field: "channel", Reason: "channel id is required"}
	}

	msg := store.Message{
		ID:         p.newID(),
		ChannelID:  channelID,
		SenderID:   p.identity.MemberID,
		SenderName: p.identity.MemberName,
		Body:       body,
		Kind:       store.KindText,
		ReplyTo:    opts.ReplyTo,
		Status:     store.StatusPending,
		LocalOnly:  true,
		CreatedAt:  p.now().UnixMilli(),
	}
	if err := p.db.AddMessage(&msg); err != nil {
		return store.Message{}, fmt.Errorf("store pending message: %w", err)
	}
	p.submit(ctx, msg)
	return msg, nil
}

// Retry replaces a failed message with a fresh pending attempt under a new
// temporary id and queues it for delivery.
func (p *Pipeline) Retry(ctx context.Context, messageID string) (store.Message, error) {
	old, err := p.db.GetMessage(messageID)
	if err != nil {
		return store.Message{}, fmt.Errorf("load %q: %w", messageID, err)
	}
	if old == nil {
		return store.Message{}, fmt.Errorf("retry %q: %w", messageID, store.ErrNotFound)
	}
	if old.Status != store.StatusFailed {
		return store.Message{}, &ValidationError{Field: "message", Reason: fmt.Sprintf("cannot retry a %s message", old.Status)}
	}

	msg := *old
	msg.ID = p.newID()
	msg.Status = store.StatusPending
	msg.LocalOnly = true
	msg.CreatedAt = p.now().UnixMilli()
	if err := p.db.ReplaceMessage(old.ID, &msg); err != nil {
		return store.Message{}, fmt.Errorf("replace failed message: %w", err)
	}
	p.logger.Info("retrying message", zap.String("old_id", old.ID), zap.String("temp_id", msg.ID))
	p.submit(ctx, msg)
	return msg, nil
}

func (p *Pipeline) submit(ctx context.Context, msg store.Message) {
	opID, err := p.db.EnqueueOp(store.OpSend, map[string]any{
		"message_id": msg.ID,
		"channel_id": msg.ChannelID,
	})
	if err != nil {
		p.logger.Warn("failed to journal send", zap.String("temp_id", msg.ID), zap.Error(err))
	}
	emitMessages(p.bus, msg.ChannelID, msg.ID, "")
	emitChannels(p.bus, msg.ChannelID)

	// Once issued, a send is not cancelled by its caller.
	job := sendJob{ctx: context.WithoutCancel(ctx), msg: msg, opID: opID}

	p.mu.Lock()
	defer p.mu.Unlock()
	queue, running := p.lanes[msg.ChannelID]
	p.lanes[msg.ChannelID] = append(queue, job)
	if running {
		return
	}
	p.wg.Add(1)
	go p.drain(msg.ChannelID)
}

// drain delivers a channel's queued sends until the lane is empty. The lane
// key stays in the map while its goroutine runs.
func (p *Pipeline) drain(channelID string) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		queue := p.lanes[channelID]
		if len(queue) == 0 {
			delete(p.lanes, channelID)
			p.mu.Unlock()
			return
		}
		job := queue[0]
		p.lanes[channelID] = queue[1:]
		p.mu.Unlock()

		p.deliver(job)
	}
}

func (p *Pipeline) deliver(job sendJob) {
	tempID := job.msg.ID

	remote, err := p.gw.SendMessage(job.ctx, job.msg.ChannelID, job.msg.Body, gateway.SendOptions{ReplyTo: job.msg.ReplyTo})
	if err != nil {
		p.logger.Warn("send failed", zap.String("temp_id", tempID), zap.String("channel_id", job.msg.ChannelID), zap.Error(err))
		p.fail(job)
		return
	}

	canonical := remote.ToStore(store.StatusSent)
	canonical.ChannelID = job.msg.ChannelID
	if canonical.SenderID == "" {
		canonical.SenderID = job.msg.SenderID
	}
	if canonical.SenderName == "" {
		canonical.SenderName = job.msg.SenderName
	}
	if canonical.ReplyTo == "" {
		canonical.ReplyTo = job.msg.ReplyTo
	}
	// A fetch may already have merged the server copy.
	if existing, err := p.db.GetMessage(canonical.ID); err == nil && existing != nil && existing.Status == store.StatusDelivered {
		canonical.Status = store.StatusDelivered
	}
	if err := p.db.ReplaceMessage(tempID, &canonical); err != nil {
		p.logger.Error("failed to reconcile sent message", zap.String("temp_id", tempID), zap.String("server_id", canonical.ID), zap.Error(err))
		p.fail(job)
		return
	}
	p.ack(job.opID)
	p.count("sent")
	p.logger.Info("message sent", zap.String("temp_id", tempID), zap.String("server_id", canonical.ID))
	emitMessages(p.bus, canonical.ChannelID, canonical.ID, tempID)
	emitChannels(p.bus, canonical.ChannelID)
}

// fail settles a send as failed. If even that write is lost the journal entry
// stays, and RecoverInterrupted fails the message on the next start.
func (p *Pipeline) fail(job sendJob) {
	p.count("failed")
	if err := p.db.SetMessageStatus(job.msg.ID, store.StatusFailed); err != nil && !errors.Is(err, store.ErrNotFound) {
		p.logger.Error("failed to mark message failed", zap.String("temp_id", job.msg.ID), zap.Error(err))
		return
	}
	p.ack(job.opID)
	emitMessages(p.bus, job.msg.ChannelID, job.msg.ID, "")
}

func (p *Pipeline) ack(opID int64) {
	if opID == 0 {
		return
	}
	if err := p.db.AckOp(opID); err != nil && !errors.Is(err, store.ErrNotFound) {
		p.logger.Warn("failed to clear send journal", zap.Int64("op_id", opID), zap.Error(err))
	}
}

// RecoverInterrupted marks messages whose send was cut short by a previous
// shutdown as failed, so the user can retry them. It must run before the
// first Send of a process.
func (p *Pipeline) RecoverInterrupted() (int, error) {
	recovered := 0
	for {
		ops, err := p.db.ReadyOps(replayBatch, store.OpSend)
		if err != nil {
			return recovered, fmt.Errorf("read send journal: %w", err)
		}
		if len(ops) == 0 {
			return recovered, nil
		}
		for _, op := range ops {
			id, _ := op.Payload["message_id"].(string)
			if m, err := p.db.GetMessage(id); err == nil && m != nil && m.Status == store.StatusPending {
				if err := p.db.SetMessageStatus(id, store.StatusFailed); err != nil {
					return recovered, fmt.Errorf("fail interrupted %q: %w", id, err)
				}
				emitMessages(p.bus, m.ChannelID, id, "")
				recovered++
			}
			if err := p.db.AckOp(op.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return recovered, fmt.Errorf("clear send journal: %w", err)
			}
		}
	}
}

// Wait blocks until every queued send has been delivered or failed.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) count(result string) {
	if p.metrics != nil {
		p.metrics.SendsTotal.WithLabelValues(result).Inc()
	}
}
