package browser

import (
	"net/url"
	"sort"
	"strings"

	"github.com/xkilldash9x/browserd/api/schemas"
)

// Link scoring ranks a page's anchors against a natural-language description.
// It is an additive heuristic tuned against news/content sites, not a learned
// model. The rules are table-driven so individual weights stay tunable and
// testable in isolation from the click cascade.

// minLinkScore is the qualification threshold: links at or below it are never
// click candidates.
const minLinkScore = 20.0

// ScoredLink annotates one page link with its relevance score. Used only
// within find-and-click; discarded after use.
type ScoredLink struct {
	Link  schemas.PageLink
	Score float64
}

// queryFeatures is the preprocessed description.
type queryFeatures struct {
	desc  string   // lowercased, whitespace-collapsed
	words []string // description words longer than two runes
}

// linkFeatures is one preprocessed candidate link.
type linkFeatures struct {
	text    string // lowercased visible text
	textLen int    // rune length of the trimmed original text
	words   []string
	href    string // lowercased absolute URL
	path    string // lowercased URL path
	title   string // lowercased title attribute
}

// scoreRule contributes weight*hits to a link's score. hits returns how many
// times the rule applies (most rules are 0/1; per-word rules count words).
type scoreRule struct {
	name   string
	weight float64
	hits   func(l linkFeatures, q queryFeatures) int
}

// contentKeywords reflect the heuristic's tuning against news/content sites:
// anchors naming a content type are more likely to be the intended target
// than navigational chrome.
var contentKeywords = []struct {
	word   string
	weight float64
}{
	{"story", 35},
	{"video", 30},
	{"article", 25},
	{"news", 25},
}

// boilerplateTexts are call-to-action anchors that say nothing about their
// destination.
var boilerplateTexts = []string{"click here", "read more", "continue", "learn more", "more"}

// navTexts are site-chrome anchors.
var navTexts = []string{"home", "menu", "search", "login", "sign in", "register", "subscribe"}

var contentPathMarkers = []string{"/article/", "/story/", "/news/"}

// defaultScoreRules is the rule table. Order does not affect the score; it is
// kept roughly by descending weight for readability.
var defaultScoreRules = []scoreRule{
	{
		// The whole description appearing in the link text is the strongest
		// possible signal. The length guard keeps one- and two-rune
		// descriptions from matching everywhere.
		name: "text-contains-description", weight: 100,
		hits: func(l linkFeatures, q queryFeatures) int {
			return btoi(len(q.desc) >= 3 && strings.Contains(l.text, q.desc))
		},
	},
	{
		name: "description-contains-text", weight: 80,
		hits: func(l linkFeatures, q queryFeatures) int {
			return btoi(len(l.text) >= 3 && strings.Contains(q.desc, l.text))
		},
	},
	{
		name: "title-contains-description", weight: 50,
		hits: func(l linkFeatures, q queryFeatures) int {
			return btoi(l.title != "" && len(q.desc) >= 3 && strings.Contains(l.title, q.desc))
		},
	},
	{
		name: "word-in-text", weight: 25,
		hits: func(l linkFeatures, q queryFeatures) int {
			n := 0
			for _, w := range q.words {
				if strings.Contains(l.text, w) {
					n++
				}
			}
			return n
		},
	},
	{
		// Whole-word matches are better evidence than substring hits; names
		// in particular ("frank", "smith") deserve extra credit over
		// accidental containment.
		name: "whole-word-in-text", weight: 15,
		hits: func(l linkFeatures, q queryFeatures) int {
			n := 0
			for _, w := range q.words {
				if containsWord(l.words, w) {
					n++
				}
			}
			return n
		},
	},
	{
		name: "word-in-url", weight: 20,
		hits: func(l linkFeatures, q queryFeatures) int {
			n := 0
			for _, w := range q.words {
				if strings.Contains(l.href, w) {
					n++
				}
			}
			return n
		},
	},
	{
		name: "word-in-path", weight: 15,
		hits: func(l linkFeatures, q queryFeatures) int {
			n := 0
			for _, w := range q.words {
				if strings.Contains(l.path, w) {
					n++
				}
			}
			return n
		},
	},
	{
		// Partial name overlap: "thompson" vs "thompsons", "tech" vs
		// "technology". Equal words are already covered above.
		name: "fuzzy-word-overlap", weight: 15,
		hits: func(l linkFeatures, q queryFeatures) int {
			n := 0
			for _, dw := range q.words {
				if len(dw) <= 3 {
					continue
				}
				for _, tw := range l.words {
					if len(tw) <= 3 || tw == dw {
						continue
					}
					if strings.Contains(tw, dw) || strings.Contains(dw, tw) {
						n++
						break
					}
				}
			}
			return n
		},
	},
	{
		name: "content-path", weight: 20,
		hits: func(l linkFeatures, q queryFeatures) int {
			for _, m := range contentPathMarkers {
				if strings.Contains(l.path, m) {
					return 1
				}
			}
			return 0
		},
	},
	{
		// Headline-length anchor text is plausible content; single words and
		// kilometer-long snippets are not.
		name: "plausible-length", weight: 10,
		hits: func(l linkFeatures, q queryFeatures) int {
			return btoi(l.textLen >= 20 && l.textLen <= 200)
		},
	},
	{
		name: "very-short-text", weight: -25,
		hits: func(l linkFeatures, q queryFeatures) int {
			return btoi(l.textLen < 5)
		},
	},
	{
		name: "boilerplate-text", weight: -15,
		hits: func(l linkFeatures, q queryFeatures) int {
			for _, b := range boilerplateTexts {
				if l.text == b {
					return 1
				}
			}
			return 0
		},
	},
	{
		name: "nav-text", weight: -10,
		hits: func(l linkFeatures, q queryFeatures) int {
			for _, nav := range navTexts {
				if l.text == nav {
					return 1
				}
			}
			return 0
		},
	},
}

// linkScorer scores and ranks page links against a description.
type linkScorer struct {
	rules     []scoreRule
	threshold float64
}

func newLinkScorer() *linkScorer {
	return &linkScorer{rules: defaultScoreRules, threshold: minLinkScore}
}

// score computes one link's relevance. Deterministic: same link and
// description always produce the same value.
func (ls *linkScorer) score(link schemas.PageLink, q queryFeatures) float64 {
	l := newLinkFeatures(link)

	var total float64
	for _, rule := range ls.rules {
		if n := rule.hits(l, q); n != 0 {
			total += rule.weight * float64(n)
		}
	}

	// Content-type keywords carry individual weights, so they accumulate
	// outside the uniform-weight table.
	for _, kw := range contentKeywords {
		if containsWord(l.words, kw.word) {
			total += kw.weight
		}
	}

	return total
}

// rank scores every link, drops those at or below the threshold, and returns
// the survivors ordered by descending score. The sort is stable, so equal
// scores keep their original DOM order; repeated calls over the same input
// produce the same ranking.
func (ls *linkScorer) rank(links []schemas.PageLink, description string) []ScoredLink {
	q := newQueryFeatures(description)

	scored := make([]ScoredLink, 0, len(links))
	for _, link := range links {
		if s := ls.score(link, q); s > ls.threshold {
			scored = append(scored, ScoredLink{Link: link, Score: s})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

func newQueryFeatures(description string) queryFeatures {
	desc := strings.ToLower(strings.Join(strings.Fields(description), " "))
	return queryFeatures{desc: desc, words: significantWords(desc)}
}

func newLinkFeatures(link schemas.PageLink) linkFeatures {
	text := strings.ToLower(strings.Join(strings.Fields(link.Text), " "))
	href := strings.ToLower(link.Href)

	path := ""
	if u, err := url.Parse(link.Href); err == nil {
		path = strings.ToLower(u.Path)
	}

	return linkFeatures{
		text:    text,
		textLen: len([]rune(strings.TrimSpace(link.Text))),
		words:   splitWords(text),
		href:    href,
		path:    path,
		title:   strings.ToLower(link.Title),
	}
}

// significantWords returns the words longer than two runes; shorter ones
// ("a", "of", "to") are noise for relevance purposes.
func significantWords(s string) []string {
	var out []string
	for _, w := range splitWords(s) {
		if len([]rune(w)) > 2 {
			out = append(out, w)
		}
	}
	return out
}

// splitWords breaks s on any non-letter, non-digit rune.
func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !isWordRune(r)
	})
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func containsWord(words []string, w string) bool {
	for _, candidate := range words {
		if candidate == w {
			return true
		}
	}
	return false
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
