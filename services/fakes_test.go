package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fenilmodi00/lottery-backend/shared"
)

// fakePage serves fixed HTML snapshots and records every interaction
type fakePage struct {
	mutex       sync.Mutex
	url         string
	redirectTo  string
	navigateErr error
	top         string
	frames      map[string]string
	onClick     map[string]string
	failOn      map[string]error
	modalFound  bool

	navigations []string
	clicks      []string
	focused     string
	typed       map[string]string
	values      map[string]string
	checked     map[string]bool
}

func newFakePage(top string) *fakePage {
	return &fakePage{
		top:     top,
		frames:  make(map[string]string),
		onClick: make(map[string]string),
		failOn:  make(map[string]error),
		typed:   make(map[string]string),
		values:  make(map[string]string),
		checked: make(map[string]bool),
	}
}

func scopedKey(scope FrameScope, selector string) string {
	if scope.IsTop() {
		return selector
	}
	return scope.FrameSelector + " >> " + selector
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.navigations = append(p.navigations, url)
	if p.navigateErr != nil {
		return p.navigateErr
	}
	p.url = url
	if p.redirectTo != "" {
		p.url = p.redirectTo
	}
	return ctx.Err()
}

func (p *fakePage) CurrentURL(context.Context) (string, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.url, nil
}

func (p *fakePage) Snapshot(_ context.Context, scope FrameScope) (string, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if scope.IsTop() {
		return p.top, nil
	}
	html, ok := p.frames[scope.FrameSelector]
	if !ok {
		return "", fmt.Errorf("frame %s is not readable", scope.FrameSelector)
	}
	return html, nil
}

func (p *fakePage) fail(scope FrameScope, selector string) error {
	return p.failOn[scopedKey(scope, selector)]
}

func (p *fakePage) Click(_ context.Context, scope FrameScope, selector string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if err := p.fail(scope, selector); err != nil {
		return err
	}
	p.clicks = append(p.clicks, scopedKey(scope, selector))
	if next, ok := p.onClick[selector]; ok && scope.IsTop() {
		p.top = next
	}
	return nil
}

func (p *fakePage) ScrollIntoView(context.Context, FrameScope, string) error { return nil }

func (p *fakePage) Focus(_ context.Context, scope FrameScope, selector string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if err := p.fail(scope, selector); err != nil {
		return err
	}
	p.focused = scopedKey(scope, selector)
	return nil
}

func (p *fakePage) Clear(_ context.Context, scope FrameScope, selector string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.typed[scopedKey(scope, selector)] = ""
	return nil
}

func (p *fakePage) TypeRune(_ context.Context, r rune) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.focused == "" {
		return errors.New("no focused element")
	}
	p.typed[p.focused] += string(r)
	return nil
}

func (p *fakePage) SetValue(_ context.Context, scope FrameScope, selector, value string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if err := p.fail(scope, selector); err != nil {
		return err
	}
	p.values[scopedKey(scope, selector)] = value
	return nil
}

func (p *fakePage) SetChecked(_ context.Context, scope FrameScope, selector string, checked bool) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if err := p.fail(scope, selector); err != nil {
		return err
	}
	p.checked[scopedKey(scope, selector)] = checked
	return nil
}

func (p *fakePage) WaitForModal(ctx context.Context, selectors []string, _ time.Duration) (string, bool, error) {
	if !p.modalFound {
		return "", false, ctx.Err()
	}
	return selectors[0], true, nil
}

type fakeSession struct {
	page   AutomationPage
	closed *int
	mutex  *sync.Mutex
}

func (s *fakeSession) Page() AutomationPage { return s.page }
func (s *fakeSession) UserAgent() string    { return shared.DesktopUserAgents[0] }
func (s *fakeSession) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	*s.closed++
	return nil
}

// fakeSessionFactory hands out sessions over pages built by newPage
type fakeSessionFactory struct {
	mutex     sync.Mutex
	newPage   func() AutomationPage
	launchErr error
	created   int
	closed    int
}

func (f *fakeSessionFactory) CreateSession(context.Context) (Session, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.launchErr != nil {
		return nil, shared.NewServiceError(shared.ErrorCategoryResource, "BROWSER_LAUNCH_FAILED",
			"browser could not be launched", "fakeSessionFactory", "CreateSession", false,
			fmt.Errorf("%w: %v", shared.ErrBrowserLaunch, f.launchErr))
	}
	f.created++
	return &fakeSession{page: f.newPage(), closed: &f.closed, mutex: &f.mutex}, nil
}

func (f *fakeSessionFactory) counts() (int, int) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.created, f.closed
}

func testPacer() *shared.Pacer {
	return shared.NewPacerWithSeed(1)
}

// waitRecorder captures every pacing delay instead of sleeping
type waitRecorder struct {
	mutex  sync.Mutex
	delays []time.Duration
}

func recordingPacer() (*shared.Pacer, *waitRecorder) {
	recorder := &waitRecorder{}
	return shared.NewPacerWithSeed(1).WithSleeper(recorder.sleep), recorder
}

func (w *waitRecorder) sleep(ctx context.Context, d time.Duration) error {
	w.mutex.Lock()
	w.delays = append(w.delays, d)
	w.mutex.Unlock()
	return ctx.Err()
}

// within returns the recorded delays that fall inside r
func (w *waitRecorder) within(r shared.DelayRange) []time.Duration {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	var matched []time.Duration
	for _, d := range w.delays {
		if d >= r.Min && d <= r.Max {
			matched = append(matched, d)
		}
	}
	return matched
}

func (w *waitRecorder) all() []time.Duration {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return append([]time.Duration(nil), w.delays...)
}

func testScraperConfig() shared.ScraperConfig {
	return shared.NewDefaultUnifiedConfiguration().Scraper
}
