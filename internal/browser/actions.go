package browser

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/browserd/api/schemas"
)

const defaultWaitTime = 1000 * time.Millisecond

// PerformAction executes one scripted interaction against the session's page.
// Every action, regardless of type, refreshes the activity timestamp and
// returns a viewport screenshot so the caller can verify effect without a
// separate introspection call. Failures leave the session registered.
func (s *Service) PerformAction(ctx context.Context, sessionID string, action schemas.BrowserAction) (*schemas.ActionResult, error) {
	metricOperations.WithLabelValues("perform_action").Inc()

	sess, err := s.session(sessionID)
	if err != nil {
		metricOperationErrors.WithLabelValues("perform_action").Inc()
		return nil, err
	}

	sess.opMu.Lock()
	defer sess.opMu.Unlock()

	if err := s.dispatchAction(ctx, sess.page, action); err != nil {
		metricOperationErrors.WithLabelValues("perform_action").Inc()
		s.logger.Error("Action failed.",
			zap.String("session_id", sessionID),
			zap.String("action", string(action.Type)),
			zap.Error(err))
		return nil, fmt.Errorf("action %s failed: %w", action.Type, err)
	}

	sess.touch(s.now())

	shot, err := s.captureScreenshot(ctx, sess)
	if err != nil {
		metricOperationErrors.WithLabelValues("perform_action").Inc()
		return nil, fmt.Errorf("action %s failed: %w", action.Type, err)
	}

	return &schemas.ActionResult{Success: true, Screenshot: shot}, nil
}

// dispatchAction maps one BrowserAction onto page primitives.
func (s *Service) dispatchAction(ctx context.Context, page PageHandle, action schemas.BrowserAction) error {
	switch action.Type {
	case schemas.ActionClick:
		if action.Selector != "" {
			return page.Click(ctx, action.Selector)
		}
		if action.Coordinates != nil {
			return page.ClickAt(ctx, action.Coordinates.X, action.Coordinates.Y)
		}
		return fmt.Errorf("click requires a selector or coordinates")

	case schemas.ActionType:
		// A type request missing its selector or text is a deliberate no-op,
		// not a validation error: agent-generated plans frequently emit
		// half-filled type steps, and failing them would abort otherwise
		// sound plans. The screenshot still reflects the page as-is.
		if action.Selector == "" || action.Text == "" {
			s.logger.Debug("Type action missing selector or text; treating as no-op.")
			return nil
		}
		return page.Type(ctx, action.Selector, action.Text)

	case schemas.ActionScroll:
		var deltaY float64
		if action.Coordinates != nil {
			deltaY = action.Coordinates.Y
		}
		return page.Scroll(ctx, deltaY)

	case schemas.ActionHover:
		if action.Selector == "" {
			return fmt.Errorf("hover requires a selector")
		}
		return page.Hover(ctx, action.Selector)

	case schemas.ActionWait:
		d := defaultWaitTime
		if action.WaitTime > 0 {
			d = time.Duration(action.WaitTime) * time.Millisecond
		}
		return page.Sleep(ctx, d)

	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}
