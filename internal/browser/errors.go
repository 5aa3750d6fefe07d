package browser

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the session registry and link resolution. Transports
// map these onto {success:false, error} payloads with errors.Is.
var (
	// ErrSessionNotFound is returned when an operation references an
	// unregistered session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when CreateSession is called with an id
	// that is already registered. A second create never replaces or leaks the
	// prior process.
	ErrSessionExists = errors.New("session already exists")

	// ErrSessionInactive is returned when a session exists but has been
	// flagged inactive.
	ErrSessionInactive = errors.New("session is inactive")

	// ErrNoLinks is returned when the page has no links at all.
	ErrNoLinks = errors.New("no links found on page")

	// ErrLinkNotFound is returned when no link scored above the relevance
	// threshold for the given description.
	ErrLinkNotFound = errors.New("no link matched description")

	// ErrClickFailed is returned when every click strategy in the cascade
	// failed for the selected link.
	ErrClickFailed = errors.New("all click strategies failed")
)

// LaunchError reports that every launch strategy was exhausted. It carries
// platform diagnostics because headless launches fail for platform-specific
// reasons (sandboxing, missing shared libraries, container restrictions).
type LaunchError struct {
	OS        string
	Arch      string
	GoVersion string
	Attempts  []string
	Hint      string
	Err       error
}

func (e *LaunchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "browser launch failed on %s/%s (%s) after strategies [%s]: %v",
		e.OS, e.Arch, e.GoVersion, strings.Join(e.Attempts, ", "), e.Err)
	if e.Hint != "" {
		fmt.Fprintf(&b, " (hint: %s)", e.Hint)
	}
	return b.String()
}

func (e *LaunchError) Unwrap() error { return e.Err }
