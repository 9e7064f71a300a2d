// File: fake/trigger.go
// Author: momentics <momentics@gmail.com>
//
// Recording event trigger and session manager for tests.

package fake

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-net/api"
)

// RecordingTrigger buffers fired events on channels for test assertions.
// Channels are buffered; overflow events are dropped rather than blocking
// the event runner.
type RecordingTrigger struct {
	Accepts    chan api.Session
	Receives   chan api.Session
	Exceptions chan error
}

var _ api.EventTrigger = (*RecordingTrigger)(nil)

// NewRecordingTrigger builds a trigger with the given channel capacity.
func NewRecordingTrigger(capacity int) *RecordingTrigger {
	if capacity <= 0 {
		capacity = 64
	}
	return &RecordingTrigger{
		Accepts:    make(chan api.Session, capacity),
		Receives:   make(chan api.Session, capacity),
		Exceptions: make(chan error, capacity),
	}
}

// FireAccept records an accept.
func (t *RecordingTrigger) FireAccept(s api.Session) {
	select {
	case t.Accepts <- s:
	default:
	}
}

// FireReceive records a receive.
func (t *RecordingTrigger) FireReceive(s api.Session) {
	select {
	case t.Receives <- s:
	default:
	}
}

// FireException records an exception.
func (t *RecordingTrigger) FireException(s api.Session, err error) {
	select {
	case t.Exceptions <- err:
	default:
	}
}

// CountingManager tracks attach/detach calls.
type CountingManager struct {
	mu       sync.Mutex
	sessions map[string]api.Session

	Attached atomic.Int32
	Detached atomic.Int32
}

var _ api.SessionManager = (*CountingManager)(nil)

// NewCountingManager builds an empty manager.
func NewCountingManager() *CountingManager {
	return &CountingManager{sessions: make(map[string]api.Session)}
}

// Attach records a session by remote address.
func (m *CountingManager) Attach(s api.Session) {
	m.Attached.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.RemoteAddress()] = s
}

// Detach forgets a session.
func (m *CountingManager) Detach(s api.Session) {
	m.Detached.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, s.RemoteAddress())
}

// Get returns the session recorded for a remote address, or nil.
func (m *CountingManager) Get(addr string) api.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[addr]
}
