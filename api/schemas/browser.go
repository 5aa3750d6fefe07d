// Package schemas defines the wire-level types shared between the browser
// service and its HTTP/WebSocket transports.
package schemas

import "time"

// -- Browser Action Schemas --

// ActionKind identifies a single scripted interaction against a page.
type ActionKind string

const (
	ActionClick  ActionKind = "click"
	ActionType   ActionKind = "type"
	ActionScroll ActionKind = "scroll"
	ActionHover  ActionKind = "hover"
	ActionWait   ActionKind = "wait"
)

// Coordinates is a literal page position, used when no selector is available.
type Coordinates struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BrowserAction is one requested interaction. The payload is discriminated by
// Type: click takes a selector or coordinates, type takes selector+text,
// scroll interprets Coordinates.Y as a wheel delta, hover takes a selector,
// wait takes WaitTime in milliseconds.
type BrowserAction struct {
	Type        ActionKind   `json:"type"`
	Selector    string       `json:"selector,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Text        string       `json:"text,omitempty"`
	WaitTime    int          `json:"waitTime,omitempty"`
}

// -- Page Introspection Schemas --

// PageElement is an interactive element discovered on the page, with a
// generated positional selector the caller can feed back into an action.
type PageElement struct {
	Tag      string `json:"tag"`
	Text     string `json:"text,omitempty"`
	Selector string `json:"selector"`
}

// PageLink is an anchor extracted from the page.
type PageLink struct {
	Text     string `json:"text"`
	Href     string `json:"href"`
	Selector string `json:"selector"`
	Title    string `json:"title,omitempty"`
}

// PageImage is an image extracted from the page.
type PageImage struct {
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

// PageVideo is a native video element or a known video-embed iframe.
type PageVideo struct {
	Src  string `json:"src"`
	Kind string `json:"kind"` // "video" or "embed"
}

// PageInfo is a bounded snapshot of a live page. It is recomputed on every
// introspection call and never cached; every list is capped by configuration.
type PageInfo struct {
	Title    string        `json:"title"`
	URL      string        `json:"url"`
	Content  string        `json:"content"`
	Elements []PageElement `json:"elements"`
	Links    []PageLink    `json:"links"`
	Images   []PageImage   `json:"images"`
	Videos   []PageVideo   `json:"videos"`
}

// -- Session Schemas --

// SessionInfo is the read-only registry view of a live session.
type SessionInfo struct {
	ID           string    `json:"id"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// -- Request Schemas --

// CreateSessionRequest asks the service to launch a new browser session.
type CreateSessionRequest struct {
	SessionID  string `json:"sessionId"`
	InitialURL string `json:"initialUrl,omitempty"`
	Headless   *bool  `json:"headless,omitempty"` // default true
}

// NavigateRequest drives an existing session to a URL.
type NavigateRequest struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// ActionRequest performs one scripted interaction against a session.
type ActionRequest struct {
	SessionID  string        `json:"sessionId"`
	ActionData BrowserAction `json:"actionData"`
}

// FindLinkRequest resolves and clicks the page link best matching a
// natural-language description.
type FindLinkRequest struct {
	SessionID   string `json:"sessionId"`
	Description string `json:"description"`
}

// -- Result Schemas --

// Screenshots are viewport-sized PNGs, base64-encoded inline to bound payload
// size. Every mutating operation returns one so an agent can verify effect
// without a separate introspection call.

// CreateSessionResult is returned by a successful session creation.
type CreateSessionResult struct {
	Success    bool      `json:"success"`
	Screenshot string    `json:"screenshot,omitempty"`
	PageInfo   *PageInfo `json:"pageInfo,omitempty"`
}

// NavigationResult is returned by a successful navigation.
type NavigationResult struct {
	Success    bool   `json:"success"`
	URL        string `json:"url"`
	Screenshot string `json:"screenshot,omitempty"`
}

// ActionResult is returned by a successful scripted action.
type ActionResult struct {
	Success    bool   `json:"success"`
	Screenshot string `json:"screenshot,omitempty"`
}

// LinkClickResult is returned when a scored link was clicked.
type LinkClickResult struct {
	Success     bool   `json:"success"`
	ClickedURL  string `json:"clickedUrl,omitempty"`
	ClickedText string `json:"clickedText,omitempty"`
	Screenshot  string `json:"screenshot,omitempty"`
}

// ErrorResult is the uniform failure shape used by both transports.
type ErrorResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
