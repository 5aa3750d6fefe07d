package browser

import (
	"sync"
	"time"

	"github.com/xkilldash9x/browserd/api/schemas"
)

// Session binds one logical caller to one live browser process and page. The
// session is the sole owner of the process lifetime; nothing else may outlive
// or share it.
type Session struct {
	id      string
	browser BrowserHandle
	page    PageHandle

	createdAt time.Time

	// opMu strictly orders operations against this session. The underlying
	// page protocol offers per-page FIFO at best, which is an external
	// guarantee; callers racing a navigate against a click get defined
	// ordering from this mutex instead.
	opMu sync.Mutex

	stateMu      sync.Mutex
	lastActivity time.Time
	active       bool
}

func newSession(id string, browser BrowserHandle, page PageHandle, now time.Time) *Session {
	return &Session{
		id:           id,
		browser:      browser,
		page:         page,
		createdAt:    now,
		lastActivity: now,
		active:       true,
	}
}

// ID returns the caller-supplied session identifier.
func (s *Session) ID() string { return s.id }

// Info returns the read-only registry view of the session.
func (s *Session) Info() schemas.SessionInfo {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return schemas.SessionInfo{
		ID:           s.id,
		Active:       s.active,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
	}
}

// touch records successful activity; the idle sweep keys off this timestamp.
func (s *Session) touch(now time.Time) {
	s.stateMu.Lock()
	s.lastActivity = now
	s.stateMu.Unlock()
}

// idleSince reports the last-activity timestamp.
func (s *Session) idleSince() time.Time {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.lastActivity
}

// isActive reports whether the session accepts operations.
func (s *Session) isActive() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.active
}

// deactivate flags the session as closed so racing operations fail cleanly.
func (s *Session) deactivate() {
	s.stateMu.Lock()
	s.active = false
	s.stateMu.Unlock()
}
