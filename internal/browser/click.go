package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/browserd/api/schemas"
)

const (
	// clickNavTimeout bounds the wait for a navigation triggered by a link
	// click. Deliberately shorter than the full navigation timeout: many
	// clicks mutate the page in place and never navigate at all.
	clickNavTimeout = 10 * time.Second

	// postClickSettle is the fixed pause taken when no navigation arrived, so
	// in-place DOM updates have a moment to land before the screenshot.
	postClickSettle = 1 * time.Second

	// sampleLinkCount bounds the link texts quoted in a no-match error.
	sampleLinkCount = 5
)

// FindAndClickLink resolves the page link best matching description and clicks
// it. Resolution is the scoring heuristic over the current page snapshot;
// clicking is a cascade of strategies from most precise to most forceful. The
// result reports which link was chosen so the caller can verify the heuristic
// picked what they meant.
func (s *Service) FindAndClickLink(ctx context.Context, sessionID, description string) (*schemas.LinkClickResult, error) {
	metricOperations.WithLabelValues("find_and_click_link").Inc()

	sess, err := s.session(sessionID)
	if err != nil {
		metricOperationErrors.WithLabelValues("find_and_click_link").Inc()
		return nil, err
	}

	sess.opMu.Lock()
	defer sess.opMu.Unlock()

	info, err := s.pageSnapshot(ctx, sess)
	if err != nil {
		metricOperationErrors.WithLabelValues("find_and_click_link").Inc()
		return nil, err
	}
	if len(info.Links) == 0 {
		metricOperationErrors.WithLabelValues("find_and_click_link").Inc()
		return nil, ErrNoLinks
	}

	ranked := newLinkScorer().rank(info.Links, description)
	if len(ranked) == 0 {
		metricOperationErrors.WithLabelValues("find_and_click_link").Inc()
		return nil, fmt.Errorf("%w %q; page links include: %s",
			ErrLinkNotFound, description, sampleLinkTexts(info.Links))
	}

	best := ranked[0]
	s.logger.Info("Link selected.",
		zap.String("session_id", sessionID),
		zap.String("description", description),
		zap.String("text", best.Link.Text),
		zap.String("href", best.Link.Href),
		zap.Float64("score", best.Score))

	if err := s.clickLink(ctx, sess.page, best.Link); err != nil {
		metricOperationErrors.WithLabelValues("find_and_click_link").Inc()
		s.logger.Error("Click cascade exhausted.",
			zap.String("session_id", sessionID),
			zap.String("href", best.Link.Href),
			zap.Error(err))
		return nil, err
	}

	// The click may or may not navigate; wait briefly for a navigation and
	// fall back to a fixed settle when none arrives.
	if err := sess.page.WaitNavigation(ctx, clickNavTimeout); err != nil {
		s.logger.Debug("No navigation after click; settling in place.",
			zap.String("session_id", sessionID), zap.Error(err))
		_ = sess.page.Sleep(ctx, postClickSettle)
	}

	sess.touch(s.now())

	shot, err := s.captureScreenshot(ctx, sess)
	if err != nil {
		metricOperationErrors.WithLabelValues("find_and_click_link").Inc()
		return nil, err
	}

	return &schemas.LinkClickResult{
		Success:     true,
		ClickedURL:  best.Link.Href,
		ClickedText: best.Link.Text,
		Screenshot:  shot,
	}, nil
}

// clickLink tries each click strategy in order until one succeeds: the
// extracted selector, the anchor's visible text, an href attribute selector,
// and finally a synthesized DOM click. Pages re-render between snapshot and
// click, so any individual strategy can go stale; only full exhaustion is an
// error.
func (s *Service) clickLink(ctx context.Context, page PageHandle, link schemas.PageLink) error {
	type strategy struct {
		name string
		run  func() error
	}

	strategies := []strategy{
		{"selector", func() error {
			if link.Selector == "" {
				return fmt.Errorf("no selector extracted")
			}
			return page.Click(ctx, link.Selector)
		}},
		{"visible-text", func() error {
			text := strings.TrimSpace(link.Text)
			if text == "" {
				return fmt.Errorf("link has no visible text")
			}
			return page.ClickByText(ctx, text)
		}},
		{"href-attribute", func() error {
			if link.Href == "" {
				return fmt.Errorf("link has no href")
			}
			return page.Click(ctx, fmt.Sprintf("a[href=%s]", strconv.Quote(link.Href)))
		}},
		{"dom-click", func() error {
			return s.synthesizeClick(ctx, page, link.Href)
		}},
	}

	var lastErr error
	for _, st := range strategies {
		if err := st.run(); err != nil {
			s.logger.Debug("Click strategy failed.",
				zap.String("strategy", st.name), zap.Error(err))
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrClickFailed, lastErr)
}

// synthesizeClick finds the anchor by href inside the page and invokes its
// click() directly, bypassing hit-testing entirely. Last resort for anchors
// that are obscured or moved since the snapshot.
func (s *Service) synthesizeClick(ctx context.Context, page PageHandle, href string) error {
	if href == "" {
		return fmt.Errorf("link has no href")
	}
	script := fmt.Sprintf(`(() => {
		const target = %s;
		for (const a of document.querySelectorAll('a[href]')) {
			if (a.href === target) {
				a.scrollIntoView({ block: 'center' });
				a.click();
				return true;
			}
		}
		return false;
	})()`, strconv.Quote(href))

	var clicked bool
	if err := page.Evaluate(ctx, script, &clicked); err != nil {
		return fmt.Errorf("synthesized click failed: %w", err)
	}
	if !clicked {
		return fmt.Errorf("anchor %q no longer present", href)
	}
	return nil
}

// sampleLinkTexts renders a few link texts for a no-match error message.
func sampleLinkTexts(links []schemas.PageLink) string {
	var texts []string
	for _, l := range links {
		t := strings.TrimSpace(l.Text)
		if t == "" {
			continue
		}
		texts = append(texts, strconv.Quote(t))
		if len(texts) == sampleLinkCount {
			break
		}
	}
	if len(texts) == 0 {
		return "(no link text available)"
	}
	return strings.Join(texts, ", ")
}
