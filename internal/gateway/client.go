package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/admiral/internal/metrics"
	"github.com/matheus3301/admiral/internal/store"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds a single gateway request.
	DefaultTimeout = 15 * time.Second

	headerMemberID   = "x-workspace-member-id"
	headerMemberName = "x-workspace-member-name"

	maxErrorBody = 4 << 10
)

// Client talks to the chat service over HTTP/JSON.
type Client struct {
	baseURL    string
	identity   Identity
	httpClient *http.Client
	metrics    *metrics.Metrics
	log        *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records request counts and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// New creates a gateway client for baseURL acting as identity.
func New(baseURL string, identity Identity, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		identity:   identity,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Identity returns the member the client acts as.
func (c *Client) Identity() Identity {
	return c.identity
}

// ListChannels fetches the channel directory visible to the member.
func (c *Client) ListChannels(ctx context.Context) ([]Channel, error) {
	var out []Channel
	if err := c.do(ctx, "list_channels", http.MethodGet, "/channels", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateChannel creates a channel. For direct messages the server returns the
// existing channel when one already links the participants.
func (c *Client) CreateChannel(ctx context.Context, req CreateChannelRequest) (*Channel, error) {
	var out Channel
	if err := c.do(ctx, "create_channel", http.MethodPost, "/channels", nil, req, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, &RejectedError{Op: "create_channel", Message: "response has no channel id"}
	}
	return &out, nil
}

// FindOrCreateDM returns the direct channel with memberID.
func (c *Client) FindOrCreateDM(ctx context.Context, memberID string) (*Channel, error) {
	return c.CreateChannel(ctx, CreateChannelRequest{
		Type:           string(store.ChannelDirect),
		ParticipantIDs: []string{memberID},
	})
}

// FetchMessages returns a page of a channel's history in ascending order.
func (c *Client) FetchMessages(ctx context.Context, channelID string, opts FetchOptions) ([]Message, error) {
	q := url.Values{}
	if opts.Before > 0 {
		q.Set("before", time.UnixMilli(opts.Before).UTC().Format(time.RFC3339Nano))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	var out []Message
	if err := c.do(ctx, "fetch_messages", http.MethodGet, channelPath(channelID, "messages"), q, nil, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].ChannelID == "" {
			out[i].ChannelID = channelID
		}
	}
	return out, nil
}

// SendMessage posts a message and returns the server's canonical record.
func (c *Client) SendMessage(ctx context.Context, channelID, content string, opts SendOptions) (*Message, error) {
	body := map[string]any{"content": content}
	if opts.ReplyTo != "" {
		body["replyTo"] = opts.ReplyTo
	}
	var out Message
	if err := c.do(ctx, "send_message", http.MethodPost, channelPath(channelID, "messages"), nil, body, &out); err != nil {
		return nil, err
	}
	if out.ID == "" || store.IsTempID(out.ID) {
		return nil, &RejectedError{Op: "send_message", Message: fmt.Sprintf("invalid server message id %q", out.ID)}
	}
	if out.ChannelID == "" {
		out.ChannelID = channelID
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now()
	}
	return &out, nil
}

// MarkChannelAsRead records that the member has read the channel.
func (c *Client) MarkChannelAsRead(ctx context.Context, channelID string) error {
	return c.do(ctx, "mark_read", http.MethodPost, channelPath(channelID, "read"), nil, struct{}{}, nil)
}

// PollForUpdates reports channels with messages newer than since.
func (c *Client) PollForUpdates(ctx context.Context, since time.Time) (*PollResult, error) {
	q := url.Values{}
	q.Set("since", since.UTC().Format(time.RFC3339Nano))
	var out PollResult
	if err := c.do(ctx, "poll", http.MethodGet, "/poll", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMembers fetches the workspace members.
func (c *Client) ListMembers(ctx context.Context) ([]Member, error) {
	var out []Member
	if err := c.do(ctx, "list_members", http.MethodGet, "/members", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func channelPath(channelID, suffix string) string {
	return "/channels/" + url.PathEscape(channelID) + "/" + suffix
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) (err error) {
	start := time.Now()
	defer func() { c.observe(op, start, err) }()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gateway %s: marshal request: %w", op, err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("gateway %s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.identity.MemberID != "" {
		req.Header.Set(headerMemberID, c.identity.MemberID)
		req.Header.Set(headerMemberName, c.identity.MemberName)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError(op, path, resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return &NetworkError{Op: op, Err: err}
		}
		return &RejectedError{Op: op, Status: resp.StatusCode, Message: "malformed response: " + err.Error()}
	}
	return nil
}

func statusError(op, path string, resp *http.Response) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := errorMessage(b)
	switch {
	case code == http.StatusNotFound:
		return &NotFoundError{Op: op, Resource: path}
	case code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests:
		return &NetworkError{Op: op, Status: code, Err: errors.New(msg)}
	default:
		return &RejectedError{Op: op, Status: code, Message: msg}
	}
}

// errorMessage extracts {"error": "..."} bodies and falls back to raw text.
func errorMessage(b []byte) string {
	var env struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &env) == nil && env.Error != "" {
		return env.Error
	}
	if s := strings.TrimSpace(string(b)); s != "" {
		return s
	}
	return "no response body"
}

func (c *Client) observe(op string, start time.Time, err error) {
	result := "ok"
	var (
		netErr      *NetworkError
		rejectedErr *RejectedError
		notFoundErr *NotFoundError
	)
	switch {
	case err == nil:
	case errors.As(err, &netErr):
		result = "network"
	case errors.As(err, &rejectedErr):
		result = "rejected"
	case errors.As(err, &notFoundErr):
		result = "not_found"
	default:
		result = "error"
	}
	elapsed := time.Since(start)
	if c.metrics != nil {
		c.metrics.GatewayRequests.WithLabelValues(op, result).Inc()
		c.metrics.GatewayLatency.WithLabelValues(op).Observe(elapsed.Seconds())
	}
	if err != nil {
		c.log.Debug("gateway request failed", zap.String("op", op), zap.Duration("elapsed", elapsed), zap.Error(err))
	}
}
