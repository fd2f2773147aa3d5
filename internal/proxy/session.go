package proxy

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/danmuck/protoforge/internal/observability"
	"github.com/danmuck/protoforge/internal/protocol/schema"
	"github.com/danmuck/protoforge/internal/protocol/session"
)

// Session is one proxied connection pair.
type Session struct {
	ID       uuid.UUID
	Started  time.Time
	client   *session.Conn
	upstream *session.Conn
	stage    atomic.Uint32
}

// SessionInfo is the admin view of a Session.
type SessionInfo struct {
	ID       string    `json:"id"`
	Remote   string    `json:"remote"`
	Stage    string    `json:"stage"`
	Started  time.Time `json:"started"`
	BytesIn  uint64    `json:"bytes_in"`
	BytesOut uint64    `json:"bytes_out"`
	Frames   uint64    `json:"frames"`
}

func newSession(client, upstream *session.Conn) *Session {
	return &Session{ID: uuid.New(), Started: time.Now(), client: client, upstream: upstream}
}

// setStage records the last stage either pump moved to.
func (s *Session) setStage(st schema.Stage) { s.stage.Store(uint32(st)) }

func (s *Session) Stage() schema.Stage { return schema.Stage(s.stage.Load()) }

func (s *Session) Info() SessionInfo {
	cs := s.client.Stats()
	return SessionInfo{
		ID:       s.ID.String(),
		Remote:   s.client.RemoteAddr().String(),
		Stage:    s.Stage().String(),
		Started:  s.Started,
		BytesIn:  cs.BytesIn,
		BytesOut: cs.BytesOut,
		Frames:   cs.FramesIn + cs.FramesOut,
	}
}

func (r *Relay) track(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	r.total.Add(1)
	observability.SessionOpened()
}

func (r *Relay) untrack(s *Session) {
	r.mu.Lock()
	delete(r.sessions, s.ID)
	r.mu.Unlock()
	observability.SessionClosed(time.Since(s.Started))
}

// Sessions lists the open sessions, oldest first.
func (r *Relay) Sessions() []SessionInfo {
	r.mu.Lock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.Unlock()
	out := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		out = append(out, s.Info())
	}
	slices.SortFunc(out, func(a, b SessionInfo) int { return a.Started.Compare(b.Started) })
	return out
}
