package browser

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/browserd/api/schemas"
)

// pageInfoScript extracts the bounded page snapshot in a single evaluation.
// Caps are substituted from configuration. Selectors are generated with the
// preference id > class list > parent-qualified nth-of-type; they are
// best-effort and callers treat them as hints, not guarantees.
const pageInfoScript = `(() => {
	const MAX_CONTENT = %d, MAX_ELEMENTS = %d, MAX_LINKS = %d, MAX_IMAGES = %d, MAX_VIDEOS = %d;

	const clean = (s, n) => {
		s = (s || '').replace(/\s+/g, ' ').trim();
		return s.length > n ? s.slice(0, n) : s;
	};
	const esc = (s) => (window.CSS && CSS.escape) ? CSS.escape(s) : s;

	const selectorFor = (el) => {
		if (el.id) { return '#' + esc(el.id); }
		const tag = el.tagName.toLowerCase();
		if (el.classList && el.classList.length > 0) {
			return tag + '.' + Array.from(el.classList).slice(0, 3).map(esc).join('.');
		}
		const parent = el.parentElement;
		if (!parent) { return tag; }
		const siblings = Array.from(parent.children).filter(c => c.tagName === el.tagName);
		const idx = siblings.indexOf(el) + 1;
		const parentSel = parent.id ? ('#' + esc(parent.id)) : parent.tagName.toLowerCase();
		return parentSel + ' > ' + tag + ':nth-of-type(' + idx + ')';
	};

	const info = {
		title: document.title || '',
		url: location.href,
		content: clean(document.body ? document.body.innerText : '', MAX_CONTENT),
		elements: [], links: [], images: [], videos: [],
	};

	for (const el of document.querySelectorAll('button, a, input, select, textarea')) {
		if (info.elements.length >= MAX_ELEMENTS) { break; }
		info.elements.push({
			tag: el.tagName.toLowerCase(),
			text: clean(el.innerText || el.value || '', 100),
			selector: selectorFor(el),
		});
	}

	for (const a of document.querySelectorAll('a[href]')) {
		if (info.links.length >= MAX_LINKS) { break; }
		info.links.push({
			text: clean(a.innerText, 150),
			href: a.href,
			selector: selectorFor(a),
			title: a.getAttribute('title') || '',
		});
	}

	for (const img of document.querySelectorAll('img[src]')) {
		if (info.images.length >= MAX_IMAGES) { break; }
		info.images.push({ src: img.src, alt: img.getAttribute('alt') || '' });
	}

	for (const v of document.querySelectorAll('video')) {
		if (info.videos.length >= MAX_VIDEOS) { break; }
		info.videos.push({ src: v.currentSrc || v.src || '', kind: 'video' });
	}
	const embedHosts = /youtube\.com|youtube-nocookie\.com|youtu\.be|vimeo\.com|dailymotion\.com|twitch\.tv/i;
	for (const f of document.querySelectorAll('iframe[src]')) {
		if (info.videos.length >= MAX_VIDEOS) { break; }
		if (embedHosts.test(f.src)) { info.videos.push({ src: f.src, kind: 'embed' }); }
	}

	return info;
})()`

// GetPageInfo extracts a bounded snapshot of the session's current page.
// Introspection is advisory: callers at the transport layer render failures
// as null rather than as errors, so they must distinguish "no snapshot" from
// an empty-but-valid one. Snapshots are recomputed on every call.
func (s *Service) GetPageInfo(ctx context.Context, sessionID string) (*schemas.PageInfo, error) {
	metricOperations.WithLabelValues("get_page_info").Inc()

	sess, err := s.session(sessionID)
	if err != nil {
		metricOperationErrors.WithLabelValues("get_page_info").Inc()
		return nil, err
	}

	sess.opMu.Lock()
	defer sess.opMu.Unlock()

	info, err := s.pageSnapshot(ctx, sess)
	if err != nil {
		metricOperationErrors.WithLabelValues("get_page_info").Inc()
		s.logger.Warn("Page info extraction failed.",
			zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}

	sess.touch(s.now())
	return info, nil
}

// pageSnapshot runs the extraction script against the session's page. The
// caller must hold the session's operation lock.
func (s *Service) pageSnapshot(ctx context.Context, sess *Session) (*schemas.PageInfo, error) {
	script := fmt.Sprintf(pageInfoScript,
		s.cfg.Page.MaxContentChars,
		s.cfg.Page.MaxElements,
		s.cfg.Page.MaxLinks,
		s.cfg.Page.MaxImages,
		s.cfg.Page.MaxVideos,
	)

	var info schemas.PageInfo
	if err := sess.page.Evaluate(ctx, script, &info); err != nil {
		return nil, fmt.Errorf("page info extraction failed: %w", err)
	}
	s.applyCaps(&info)
	return &info, nil
}

// applyCaps re-enforces the snapshot bounds on the Go side. The script caps
// its own output, but the handle is an interface and nothing downstream may
// rely on what an implementation returned.
func (s *Service) applyCaps(info *schemas.PageInfo) {
	info.Content = truncateRunes(info.Content, s.cfg.Page.MaxContentChars)
	if len(info.Elements) > s.cfg.Page.MaxElements {
		info.Elements = info.Elements[:s.cfg.Page.MaxElements]
	}
	if len(info.Links) > s.cfg.Page.MaxLinks {
		info.Links = info.Links[:s.cfg.Page.MaxLinks]
	}
	if len(info.Images) > s.cfg.Page.MaxImages {
		info.Images = info.Images[:s.cfg.Page.MaxImages]
	}
	if len(info.Videos) > s.cfg.Page.MaxVideos {
		info.Videos = info.Videos[:s.cfg.Page.MaxVideos]
	}
}

// truncateRunes caps s at max runes. The extraction script counts characters,
// so the Go-side bound does too; cutting at a byte offset would split
// multi-byte sequences and corrupt the snapshot.
func truncateRunes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		// At most max bytes means at most max runes.
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
