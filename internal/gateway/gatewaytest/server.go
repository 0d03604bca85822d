// Package gatewaytest provides an in-memory chat server for tests that drive
// a real gateway.Client over HTTP.
package gatewaytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/matheus3301/admiral/internal/gateway"
)

// Server serves the chat REST API from memory.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	channels []gateway.Channel
	messages map[string][]gateway.Message
	members  []gateway.Member
	reads    []string
	offline  bool
	nextID   int
	now      func() time.Time
}

// NewServer starts a server; it is closed when the test ends.
func NewServer(t interface{ Cleanup(func()) }) *Server {
	s := &Server{
		messages: map[string][]gateway.Message{},
		now:      time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requireMember)
	r.Use(s.unavailableWhenOffline)
	r.Get("/channels", s.listChannels)
	r.Post("/channels", s.createChannel)
	r.Get("/channels/{id}/messages", s.fetchMessages)
	r.Post("/channels/{id}/messages", s.sendMessage)
	r.Post("/channels/{id}/read", s.markRead)
	r.Get("/poll", s.poll)
	r.Get("/members", s.listMembers)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// AddChannel registers a channel.
func (s *Server) AddChannel(ch gateway.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = append(s.channels, ch)
}

// AddMember registers a workspace member.
func (s *Server) AddMember(m gateway.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = append(s.members, m)
}

// Post stores a message as if another member had sent it.
func (s *Server) Post(channelID, senderID, content string) gateway.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(channelID, senderID, content, "")
}

// SetOffline makes every request fail with 503.
func (s *Server) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
}

// Messages returns the server's copy of a channel's history.
func (s *Server) Messages(channelID string) []gateway.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages[channelID])
}

// Reads returns the channels marked read, in call order.
func (s *Server) Reads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.reads)
}

func (s *Server) appendLocked(channelID, senderID, content, replyTo string) gateway.Message {
	s.nextID++
	m := gateway.Message{
		ID:        "srv-" + strconv.Itoa(s.nextID),
		ChannelID: channelID,
		SenderID:  senderID,
		Content:   content,
		ReplyTo:   replyTo,
		CreatedAt: s.now().UTC(),
	}
	s.messages[channelID] = append(s.messages[channelID], m)
	return m
}

func (s *Server) channelLocked(id string) (int, bool) {
	i := slices.IndexFunc(s.channels, func(c gateway.Channel) bool { return c.ID == id })
	return i, i >= 0
}

func (s *Server) requireMember(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-workspace-member-id") == "" {
			writeError(w, http.StatusUnauthorized, "missing member id")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) unavailableWhenOffline(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		offline := s.offline
		s.mu.Unlock()
		if offline {
			writeError(w, http.StatusServiceUnavailable, "offline")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listChannels(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.channels)
}

func (s *Server) createChannel(w http.ResponseWriter, r *http.Request) {
	var req gateway.CreateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	me := r.Header.Get("x-workspace-member-id")

	s.mu.Lock()
	defer s.mu.Unlock()
	if req.Type == "dm" {
		want := append([]string{me}, req.ParticipantIDs...)
		slices.Sort(want)
		for _, c := range s.channels {
			got := slices.Sorted(slices.Values(c.Participants))
			if c.Type == "dm" && slices.Equal(got, want) {
				writeJSON(w, http.StatusOK, c)
				return
			}
		}
	}
	ch := gateway.Channel{
		ID:           fmt.Sprintf("ch-%d", len(s.channels)+1),
		Type:         req.Type,
		Name:         req.Name,
		Participants: append([]string{me}, req.ParticipantIDs...),
	}
	s.channels = append(s.channels, ch)
	writeJSON(w, http.StatusCreated, ch)
}

func (s *Server) fetchMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	var before time.Time
	if v := r.URL.Query().Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad before")
			return
		}
		before = t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channelLocked(id); !ok {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	var out []gateway.Message
	for _, m := range s.messages[id] {
		if before.IsZero() || m.CreatedAt.Before(before) {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Content string `json:"content"`
		ReplyTo string `json:"replyTo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channelLocked(id); !ok {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	m := s.appendLocked(id, r.Header.Get("x-workspace-member-id"), body.Content, body.ReplyTo)
	m.SenderName = r.Header.Get("x-workspace-member-name")
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channelLocked(id); !ok {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	s.reads = append(s.reads, id)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// poll reports, per channel, messages from other members newer than since.
func (s *Server) poll(w http.ResponseWriter, r *http.Request) {
	since, err := time.Parse(time.RFC3339Nano, r.URL.Query().Get("since"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad since")
		return
	}
	me := r.Header.Get("x-workspace-member-id")

	s.mu.Lock()
	defer s.mu.Unlock()
	res := gateway.PollResult{Channels: []gateway.ChannelDelta{}}
	for _, c := range s.channels {
		var d gateway.ChannelDelta
		for _, m := range s.messages[c.ID] {
			if m.SenderID == me || !m.CreatedAt.After(since) {
				continue
			}
			d.NewCount++
			d.LastMessageAt = m.CreatedAt
		}
		if d.NewCount > 0 {
			d.ChannelID = c.ID
			res.Channels = append(res.Channels, d)
		}
	}
	res.HasNew = len(res.Channels) > 0
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.members)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
