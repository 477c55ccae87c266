package services

import (
	"context"
	"time"
)

// FrameScope selects the document a page operation runs in. The zero value
// is the top-level document; FrameSelector names a same-origin iframe.
type FrameScope struct {
	FrameSelector string
}

// IsTop reports whether the scope is the top-level document
func (s FrameScope) IsTop() bool { return s.FrameSelector == "" }

// AutomationPage is the live-page surface the scrapers and the form
// automation drive. Snapshot returns serialized HTML that the pure
// heuristics parse; every ElementRef selector produced from a snapshot is
// valid for the other calls in the same scope.
type AutomationPage interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Snapshot(ctx context.Context, scope FrameScope) (string, error)
	Click(ctx context.Context, scope FrameScope, selector string) error
	ScrollIntoView(ctx context.Context, scope FrameScope, selector string) error
	Focus(ctx context.Context, scope FrameScope, selector string) error
	Clear(ctx context.Context, scope FrameScope, selector string) error
	// TypeRune sends one character to the focused element
	TypeRune(ctx context.Context, r rune) error
	SetValue(ctx context.Context, scope FrameScope, selector, value string) error
	SetChecked(ctx context.Context, scope FrameScope, selector string, checked bool) error
	// WaitForModal observes DOM mutations until one of selectors matches or
	// timeout elapses, returning the matching selector.
	WaitForModal(ctx context.Context, selectors []string, timeout time.Duration) (string, bool, error)
}

// Session is one isolated anti-detection browsing context. The caller owns Close.
type Session interface {
	Page() AutomationPage
	UserAgent() string
	Close() error
}

// SessionFactory creates sessions. Launch failures wrap shared.ErrBrowserLaunch
// and are never retried internally.
type SessionFactory interface {
	CreateSession(ctx context.Context) (Session, error)
}
