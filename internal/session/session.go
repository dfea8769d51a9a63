// Package session keeps the list views and wizards opened through the
// console API, one owner per session.
package session

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wso2/identity-apps-sub079/internal/listctl"
	"github.com/wso2/identity-apps-sub079/internal/wizard"
)

var ErrNotFound = errors.New("session not found")

// Kind tells what a session holds.
type Kind string

const (
	KindTable  Kind = "table"
	KindWizard Kind = "wizard"
)

type Session struct {
	ID       string    `json:"id"`
	Owner    string    `json:"owner"`
	Kind     Kind      `json:"kind"`
	Feature  string    `json:"feature"`
	Created  time.Time `json:"created"`
	LastUsed time.Time `json:"last_used"`

	Table listctl.Table `json:"-"`
	Flow  wizard.Flow   `json:"-"`
}

func (s *Session) close() {
	if s.Table != nil {
		s.Table.Close()
	}
	if s.Flow != nil && s.Flow.State() == wizard.StateOpen {
		s.Flow.Cancel()
	}
}

// Manager owns open sessions. Closing a session cancels its in-flight
// requests.
type Manager struct {
	Idle   time.Duration
	Now    func() time.Time
	Logger *log.Logger
	// OnClose is called after a session is closed, with the reason
	// ("closed" or "expired").
	OnClose func(s Session, reason string)

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(idle time.Duration) *Manager {
	return &Manager{Idle: idle, sessions: map[string]*Session{}}
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Manager) logger() *log.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return log.Default()
}

func (m *Manager) add(s *Session) Session {
	now := m.now().UTC()
	s.ID = uuid.NewString()
	s.Created = now
	s.LastUsed = now
	m.mu.Lock()
	if m.sessions == nil {
		m.sessions = map[string]*Session{}
	}
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return *s
}

// OpenTable registers a list view.
func (m *Manager) OpenTable(owner, feature string, t listctl.Table) Session {
	return m.add(&Session{Owner: owner, Kind: KindTable, Feature: feature, Table: t})
}

// OpenWizard registers a wizard.
func (m *Manager) OpenWizard(owner, feature string, f wizard.Flow) Session {
	return m.add(&Session{Owner: owner, Kind: KindWizard, Feature: feature, Flow: f})
}

// Get returns the owner's session and marks it used. Sessions of other
// owners are reported as missing.
func (m *Manager) Get(owner, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Owner != owner {
		return Session{}, ErrNotFound
	}
	s.LastUsed = m.now().UTC()
	return *s, nil
}

// List returns the owner's sessions, oldest first.
func (m *Manager) List(owner string) []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.sessions {
		if owner == "" || s.Owner == owner {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

// Close ends the owner's session.
func (m *Manager) Close(owner, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || s.Owner != owner {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.sessions, id)
	m.mu.Unlock()
	m.finish(s, "closed")
	return nil
}

// Sweep closes sessions idle for longer than Idle and returns how many
// were closed.
func (m *Manager) Sweep() int {
	if m.Idle <= 0 {
		return 0
	}
	cutoff := m.now().UTC().Add(-m.Idle)
	var expired []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.LastUsed.Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, s := range expired {
		m.finish(s, "expired")
	}
	return len(expired)
}

// Run sweeps periodically until ctx is done, then closes every session.
func (m *Manager) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.CloseAll()
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger().Printf("session: expired %d idle sessions", n)
			}
		}
	}
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	for _, s := range all {
		m.finish(s, "closed")
	}
}

func (m *Manager) finish(s *Session, reason string) {
	s.close()
	if m.OnClose != nil {
		m.OnClose(*s, reason)
	}
}
