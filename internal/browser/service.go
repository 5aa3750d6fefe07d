// Package browser implements the headless-browser session service: a registry
// of live sessions plus navigation, scripted actions, page introspection, and
// heuristic link resolution against them.
package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/browserd/api/schemas"
	"github.com/xkilldash9x/browserd/internal/config"
)

const closeGracePeriod = 10 * time.Second

// Service owns the session registry. It is safe for concurrent use; operations
// against distinct sessions run in parallel, operations against one session
// are serialized by the session's own mutex.
type Service struct {
	cfg      *config.Config
	logger   *zap.Logger
	launcher Launcher

	mu       sync.RWMutex
	sessions map[string]*Session

	// now is replaceable so the idle-sweep property can be tested against a
	// synthetic clock.
	now func() time.Time
}

// NewService creates the session service. The launcher is injected so tests
// can substitute a fake; production callers pass NewChromeLauncher.
func NewService(cfg *config.Config, launcher Launcher, logger *zap.Logger) *Service {
	return &Service{
		cfg:      cfg,
		logger:   logger.Named("browser_service"),
		launcher: launcher,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// CreateSession launches a browser process for the given id and registers it.
// A duplicate id is rejected with ErrSessionExists; it never replaces or
// leaks the prior process. When InitialURL is set the new session navigates
// there and the result carries a screenshot and page snapshot.
func (s *Service) CreateSession(ctx context.Context, req schemas.CreateSessionRequest) (*schemas.CreateSessionResult, error) {
	metricOperations.WithLabelValues("create_session").Inc()

	if req.SessionID == "" {
		metricOperationErrors.WithLabelValues("create_session").Inc()
		return nil, fmt.Errorf("sessionId must not be empty")
	}

	s.mu.RLock()
	_, exists := s.sessions[req.SessionID]
	s.mu.RUnlock()
	if exists {
		metricOperationErrors.WithLabelValues("create_session").Inc()
		return nil, fmt.Errorf("session %q: %w", req.SessionID, ErrSessionExists)
	}

	headless := true
	if req.Headless != nil {
		headless = *req.Headless
	}

	browserHandle, pageHandle, err := s.launcher.Launch(ctx, LaunchOptions{Headless: headless})
	if err != nil {
		metricOperationErrors.WithLabelValues("create_session").Inc()
		metricLaunchFailures.Inc()
		s.logger.Error("Session launch failed.",
			zap.String("session_id", req.SessionID), zap.Error(err))
		return nil, err
	}

	sess := newSession(req.SessionID, browserHandle, pageHandle, s.now())

	s.mu.Lock()
	if _, raced := s.sessions[req.SessionID]; raced {
		s.mu.Unlock()
		// Lost a create race for the same id; release the process we started.
		s.closeHandles(sess)
		metricOperationErrors.WithLabelValues("create_session").Inc()
		return nil, fmt.Errorf("session %q: %w", req.SessionID, ErrSessionExists)
	}
	s.sessions[req.SessionID] = sess
	s.mu.Unlock()
	metricActiveSessions.Inc()

	s.logger.Info("Session created.",
		zap.String("session_id", req.SessionID), zap.Bool("headless", headless))

	result := &schemas.CreateSessionResult{Success: true}
	if req.InitialURL == "" {
		return result, nil
	}

	// Convenience flow: the first navigation rides on session creation. Its
	// failure does not undo a successful launch; the session stays usable.
	nav, err := s.Navigate(ctx, req.SessionID, req.InitialURL)
	if err != nil {
		s.logger.Warn("Initial navigation failed; session remains registered.",
			zap.String("session_id", req.SessionID), zap.Error(err))
		return result, nil
	}
	result.Screenshot = nav.Screenshot
	if info, err := s.GetPageInfo(ctx, req.SessionID); err == nil {
		result.PageInfo = info
	}
	return result, nil
}

// Navigate drives the session's page to url, refreshes the activity
// timestamp, and returns a viewport screenshot.
func (s *Service) Navigate(ctx context.Context, sessionID, url string) (*schemas.NavigationResult, error) {
	metricOperations.WithLabelValues("navigate").Inc()

	sess, err := s.session(sessionID)
	if err != nil {
		metricOperationErrors.WithLabelValues("navigate").Inc()
		return nil, err
	}

	sess.opMu.Lock()
	defer sess.opMu.Unlock()

	if err := sess.page.Navigate(ctx, url); err != nil {
		metricOperationErrors.WithLabelValues("navigate").Inc()
		s.logger.Error("Navigation failed.",
			zap.String("session_id", sessionID), zap.String("url", url), zap.Error(err))
		return nil, fmt.Errorf("navigation failed: %w", err)
	}

	sess.touch(s.now())

	shot, err := s.captureScreenshot(ctx, sess)
	if err != nil {
		metricOperationErrors.WithLabelValues("navigate").Inc()
		return nil, fmt.Errorf("navigation failed: %w", err)
	}

	return &schemas.NavigationResult{Success: true, URL: url, Screenshot: shot}, nil
}

// CloseSession removes the session and terminates its browser process. It
// returns false when the id is unknown. Termination failures are logged, not
// surfaced: once the registry entry is gone the close counts as done.
func (s *Service) CloseSession(sessionID string) bool {
	metricOperations.WithLabelValues("close_session").Inc()

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}

	metricActiveSessions.Dec()
	sess.deactivate()
	s.closeHandles(sess)
	s.logger.Info("Session closed.", zap.String("session_id", sessionID))
	return true
}

// CleanupInactive closes exactly the sessions whose idle duration exceeds the
// configured timeout, computed at call time, and returns their ids. The
// service has no internal timer; the owner schedules this sweep.
func (s *Service) CleanupInactive() []string {
	now := s.now()
	cutoff := now.Add(-s.cfg.Session.IdleTimeout)

	s.mu.RLock()
	var expired []string
	for id, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) {
			expired = append(expired, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range expired {
		if s.CloseSession(id) {
			metricSessionsReaped.Inc()
			s.logger.Info("Idle session reaped.", zap.String("session_id", id))
		}
	}
	return expired
}

// ActiveSessions returns a snapshot of the registry. Read-only.
func (s *Service) ActiveSessions() []schemas.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]schemas.SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Info())
	}
	return out
}

// SessionByID returns the session's registry view, if present. Read-only.
func (s *Service) SessionByID(sessionID string) (schemas.SessionInfo, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return schemas.SessionInfo{}, false
	}
	return sess.Info(), true
}

// Shutdown closes every session concurrently and waits for them, bounded by
// ctx.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.Lock()
	toClose := make([]*Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		toClose = append(toClose, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, sess := range toClose {
		metricActiveSessions.Dec()
		sess.deactivate()
		wg.Add(1)
		go func(sess *Session) {
			defer wg.Done()
			if err := sess.browser.Close(ctx); err != nil {
				s.logger.Warn("Error closing session during shutdown.",
					zap.String("session_id", sess.ID()), zap.Error(err))
			}
		}(sess)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("All sessions closed.")
	case <-ctx.Done():
		s.logger.Warn("Timeout waiting for sessions to close.", zap.Error(ctx.Err()))
	}
}

// session resolves and validates a registered session.
func (s *Service) session(sessionID string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("session %q: %w", sessionID, ErrSessionNotFound)
	}
	if !sess.isActive() {
		return nil, fmt.Errorf("session %q: %w", sessionID, ErrSessionInactive)
	}
	return sess, nil
}

// closeHandles terminates a session's browser process with a fresh bounded
// context; the caller may already be on a dying context.
func (s *Service) closeHandles(sess *Session) {
	closeCtx, cancel := context.WithTimeout(context.Background(), closeGracePeriod)
	defer cancel()
	if err := sess.browser.Close(closeCtx); err != nil {
		s.logger.Warn("Browser process termination reported an error.",
			zap.String("session_id", sess.ID()), zap.Error(err))
	}
}

// captureScreenshot takes a viewport screenshot and encodes it inline.
func (s *Service) captureScreenshot(ctx context.Context, sess *Session) (string, error) {
	raw, err := sess.page.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("screenshot capture failed: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
