package services

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/fenilmodi00/lottery-backend/shared"
	"github.com/sirupsen/logrus"
)

//go:embed stealth.js
var evasionsScript string

// Persona is the browser identity presented to target sites
type Persona struct {
	UserAgent string
	Platform  string
	Locale    string
	Timezone  string
	Latitude  float64
	Longitude float64
	Width     int64
	Height    int64
	Headers   map[string]string
}

// NewPersona draws a user agent from the pool and fills the fixed market settings
func NewPersona(cfg shared.BrowserConfig) Persona {
	ua := shared.RandomUserAgent()
	return Persona{
		UserAgent: ua,
		Platform:  shared.UserAgentPlatform(ua),
		Locale:    cfg.Locale,
		Timezone:  cfg.Timezone,
		Latitude:  cfg.Latitude,
		Longitude: cfg.Longitude,
		Width:     cfg.ViewportWidth,
		Height:    cfg.ViewportHeight,
		Headers:   shared.NavigationHeaders(),
	}
}

// stealthTasks configures a fresh browsing context to look like an ordinary desktop browser
func stealthTasks(p Persona) chromedp.Tasks {
	headers := network.Headers{}
	for name, value := range p.Headers {
		headers[name] = value
	}

	return chromedp.Tasks{
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		emulation.SetUserAgentOverride(p.UserAgent).
			WithPlatform(p.Platform).
			WithAcceptLanguage(p.Headers["Accept-Language"]),
		emulation.SetDeviceMetricsOverride(p.Width, p.Height, 1.0, false),
		emulation.SetTimezoneOverride(p.Timezone),
		emulation.SetLocaleOverride().WithLocale(p.Locale),
		browser.GrantPermissions([]browser.PermissionType{browser.PermissionTypeGeolocation}),
		emulation.SetGeolocationOverride().
			WithLatitude(p.Latitude).
			WithLongitude(p.Longitude).
			WithAccuracy(25),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(evasionsScript).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),
	}
}

// ChromeSessionFactory launches one headless Chrome per session
type ChromeSessionFactory struct {
	config shared.BrowserConfig
}

// NewChromeSessionFactory creates a factory for anti-detection Chrome sessions
func NewChromeSessionFactory(cfg shared.BrowserConfig) *ChromeSessionFactory {
	return &ChromeSessionFactory{config: cfg}
}

// CreateSession launches a browser and applies the stealth persona
func (f *ChromeSessionFactory) CreateSession(ctx context.Context) (Session, error) {
	persona := NewPersona(f.config)
	logger := logrus.WithFields(logrus.Fields{
		"component": "ChromeSessionFactory",
		"method":    "CreateSession",
		"platform":  persona.Platform,
	})

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("lang", persona.Locale),
		chromedp.WindowSize(int(persona.Width), int(persona.Height)),
		chromedp.UserAgent(persona.UserAgent),
	)
	if f.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(f.config.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// The first Run allocates the browser and binds its lifetime to browserCtx,
	// so the launch bound is a watchdog rather than a derived deadline.
	watchdog := time.AfterFunc(f.config.LaunchTimeout, cancelBrowser)
	stop := context.AfterFunc(ctx, cancelBrowser)
	err := chromedp.Run(browserCtx, stealthTasks(persona))
	watchdog.Stop()
	stop()

	if err != nil {
		cancelBrowser()
		cancelAlloc()
		logger.WithError(err).Error("Browser launch failed")
		return nil, shared.NewServiceError(shared.ErrorCategoryResource, "BROWSER_LAUNCH_FAILED",
			"browser could not be launched", "ChromeSessionFactory", "CreateSession", false,
			fmt.Errorf("%w: %v", shared.ErrBrowserLaunch, err))
	}

	logger.WithField("user_agent", persona.UserAgent).Debug("Browser session created")
	return &chromeSession{
		persona:       persona,
		page:          &chromePage{browserCtx: browserCtx, navigationTimeout: 30 * time.Second, actionTimeout: 10 * time.Second},
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
	}, nil
}

type chromeSession struct {
	persona       Persona
	page          *chromePage
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	closeOnce     sync.Once
}

func (s *chromeSession) Page() AutomationPage { return s.page }

func (s *chromeSession) UserAgent() string { return s.persona.UserAgent }

// Close shuts the browser down; it is safe to call more than once
func (s *chromeSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		closeCtx, cancel := context.WithTimeout(s.page.browserCtx, 5*time.Second)
		defer cancel()
		err = chromedp.Cancel(closeCtx)
		s.cancelBrowser()
		s.cancelAlloc()
	})
	return err
}

// chromePage drives a single chromedp tab. Operations inside same-origin
// iframes go through the frame's contentDocument.
type chromePage struct {
	browserCtx        context.Context
	navigationTimeout time.Duration
	actionTimeout     time.Duration
}

func (p *chromePage) opCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(p.browserCtx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	opCtx, cancel := p.opCtx(ctx, p.navigationTimeout)
	defer cancel()
	return chromedp.Run(opCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (p *chromePage) CurrentURL(ctx context.Context) (string, error) {
	opCtx, cancel := p.opCtx(ctx, p.actionTimeout)
	defer cancel()
	var location string
	err := chromedp.Run(opCtx, chromedp.Location(&location))
	return location, err
}

func jsString(value string) string {
	encoded, _ := json.Marshal(value)
	return string(encoded)
}

func rootExpression(scope FrameScope) string {
	if scope.IsTop() {
		return "document"
	}
	return fmt.Sprintf(`(() => {
		const frame = document.querySelector(%s);
		if (!frame || !frame.contentDocument) { throw new Error('frame not accessible'); }
		return frame.contentDocument;
	})()`, jsString(scope.FrameSelector))
}

func (p *chromePage) evaluate(ctx context.Context, timeout time.Duration, script string, out interface{}, awaitPromise bool) error {
	opCtx, cancel := p.opCtx(ctx, timeout)
	defer cancel()
	var opts []chromedp.EvaluateOption
	if awaitPromise {
		opts = append(opts, func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
			return params.WithAwaitPromise(true)
		})
	}
	return chromedp.Run(opCtx, chromedp.Evaluate(script, out, opts...))
}

// withElement wraps body so that `el` is the element matched by selector in scope
func withElement(scope FrameScope, selector, body string) string {
	return fmt.Sprintf(`(() => {
		const root = %s;
		const el = root.querySelector(%s);
		if (!el) { throw new Error('element not found'); }
		%s
	})()`, rootExpression(scope), jsString(selector), body)
}

// Snapshot tags every element with a stable index attribute and returns the serialized document
func (p *chromePage) Snapshot(ctx context.Context, scope FrameScope) (string, error) {
	script := fmt.Sprintf(`(() => {
		const root = %s;
		let next = root.__lfNext || 0;
		root.querySelectorAll('*').forEach((el) => {
			if (!el.hasAttribute(%s)) { el.setAttribute(%s, String(next++)); }
		});
		root.__lfNext = next;
		return root.documentElement.outerHTML;
	})()`, rootExpression(scope), jsString(elementIndexAttr), jsString(elementIndexAttr))
	var html string
	err := p.evaluate(ctx, p.actionTimeout, script, &html, false)
	return html, err
}

func (p *chromePage) Click(ctx context.Context, scope FrameScope, selector string) error {
	if scope.IsTop() {
		opCtx, cancel := p.opCtx(ctx, p.actionTimeout)
		defer cancel()
		return chromedp.Run(opCtx, chromedp.Click(selector, chromedp.ByQuery))
	}
	return p.evaluate(ctx, p.actionTimeout, withElement(scope, selector, `el.click(); return true;`), nil, false)
}

// ScrollIntoView scrolls smoothly and waits for the easing to finish
func (p *chromePage) ScrollIntoView(ctx context.Context, scope FrameScope, selector string) error {
	script := fmt.Sprintf(`(async () => {
		const root = %s;
		const el = root.querySelector(%s);
		if (!el) { return false; }
		el.scrollIntoView({ behavior: 'smooth', block: 'center' });
		await new Promise((resolve) => setTimeout(resolve, 450));
		return true;
	})()`, rootExpression(scope), jsString(selector))
	return p.evaluate(ctx, p.actionTimeout, script, nil, true)
}

func (p *chromePage) Focus(ctx context.Context, scope FrameScope, selector string) error {
	return p.evaluate(ctx, p.actionTimeout, withElement(scope, selector, `el.focus(); return true;`), nil, false)
}

func (p *chromePage) Clear(ctx context.Context, scope FrameScope, selector string) error {
	body := `el.value = '';
		el.dispatchEvent(new Event('input', { bubbles: true }));
		return true;`
	return p.evaluate(ctx, p.actionTimeout, withElement(scope, selector, body), nil, false)
}

func (p *chromePage) TypeRune(ctx context.Context, r rune) error {
	opCtx, cancel := p.opCtx(ctx, p.actionTimeout)
	defer cancel()
	return chromedp.Run(opCtx, chromedp.KeyEvent(string(r)))
}

func (p *chromePage) SetValue(ctx context.Context, scope FrameScope, selector, value string) error {
	body := fmt.Sprintf(`el.value = %s;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return el.value;`, jsString(value))
	var got string
	if err := p.evaluate(ctx, p.actionTimeout, withElement(scope, selector, body), &got, false); err != nil {
		return err
	}
	if got != value {
		return fmt.Errorf("value %q was not accepted", value)
	}
	return nil
}

func (p *chromePage) SetChecked(ctx context.Context, scope FrameScope, selector string, checked bool) error {
	body := fmt.Sprintf(`if (el.checked !== %t) { el.click(); }
		if (el.checked !== %t) {
			el.checked = %t;
			el.dispatchEvent(new Event('change', { bubbles: true }));
		}
		return el.checked;`, checked, checked, checked)
	return p.evaluate(ctx, p.actionTimeout, withElement(scope, selector, body), nil, false)
}

// WaitForModal resolves as soon as a mutation makes one of selectors match
func (p *chromePage) WaitForModal(ctx context.Context, selectors []string, timeout time.Duration) (string, bool, error) {
	encoded, _ := json.Marshal(selectors)
	script := fmt.Sprintf(`new Promise((resolve) => {
		const selectors = %s;
		const check = () => {
			for (const s of selectors) {
				try { if (document.querySelector(s)) { return s; } } catch (e) {}
			}
			return '';
		};
		const hit = check();
		if (hit) { resolve(hit); return; }
		let timer = null;
		const observer = new MutationObserver(() => {
			const match = check();
			if (match) { observer.disconnect(); clearTimeout(timer); resolve(match); }
		});
		observer.observe(document.documentElement, {
			childList: true, subtree: true, attributes: true,
			attributeFilter: ['class', 'style', 'open', 'aria-modal', 'aria-hidden'],
		});
		timer = setTimeout(() => { observer.disconnect(); resolve(''); }, %d);
	})`, string(encoded), timeout.Milliseconds())

	var matched string
	// One extra second so the in-page timer always fires before the CDP deadline
	if err := p.evaluate(ctx, timeout+time.Second, script, &matched, true); err != nil {
		return "", false, err
	}
	return matched, matched != "", nil
}
