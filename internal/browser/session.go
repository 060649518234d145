// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scroll-cli/internal/config"
	"github.com/xkilldash9x/scroll-cli/internal/scroller"
)

const (
	// scrollHeightJS reads the live document height. A document without a body
	// (e.g. a bare XML or image response) has nothing to scroll.
	scrollHeightJS = `document.body ? document.body.scrollHeight : 0`
	// scrollByJSFormat scrolls the window vertically by a relative offset.
	scrollByJSFormat = `window.scrollBy(0, %s)`
)

// Session is one browser tab. It implements scroller.Page and scroller.Sleeper
// against the live document, so every height read goes to the browser.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    config.BrowserConfig

	userAgent string
}

var (
	_ scroller.Page    = (*Session)(nil)
	_ scroller.Sleeper = (*Session)(nil)
)

// NewSession opens a new tab in the allocator's browser.
func (a *Allocator) NewSession(ctx context.Context) (*Session, error) {
	sessionID := uuid.New().String()
	tabCtx, tabCancel := chromedp.NewContext(a.browserCtx)

	s := &Session{
		id:        sessionID,
		ctx:       tabCtx,
		cancel:    tabCancel,
		logger:    a.logger.With(zap.String("session_id", sessionID)),
		cfg:       a.cfg,
		userAgent: a.nextUserAgent(),
	}

	// The first Run on a new context creates the target.
	actions := []chromedp.Action{}
	if s.userAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(s.userAgent))
	}
	if err := s.run(ctx, actions...); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	s.logger.Debug("Session opened.", zap.String("user_agent", s.userAgent))
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// UserAgent returns the per-session user agent override, or "" when the
// browser default is in effect.
func (s *Session) UserAgent() string { return s.userAgent }

// run executes actions in this tab, aborting when either the tab or ctx ends.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		// Report the caller's cancellation rather than chromedp's wrapping of it.
		return ctx.Err()
	}
	return err
}

// evaluate runs script in the page and decodes its JSON result into res.
func (s *Session) evaluate(ctx context.Context, script string, res interface{}) error {
	return s.run(ctx, chromedp.Evaluate(script, res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
	}))
}

// Navigate loads url, waits for the body to be ready and then for the
// configured post-load settle time.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigationTimeout)
	defer cancel()

	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if s.cfg.PostLoadWait > 0 {
		actions = append(actions, chromedp.Sleep(s.cfg.PostLoadWait))
	}

	if err := s.run(navCtx, actions...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("navigation to '%s' timed out after %v: %w", url, s.cfg.NavigationTimeout, err)
		}
		return fmt.Errorf("navigation to '%s' failed: %w", url, err)
	}

	s.logger.Debug("Navigation complete.", zap.String("url", url))
	return nil
}

// ScrollHeight returns document.body.scrollHeight as it is right now.
func (s *Session) ScrollHeight(ctx context.Context) (float64, error) {
	var height float64
	if err := s.evaluate(ctx, scrollHeightJS, &height); err != nil {
		return 0, fmt.Errorf("reading scroll height: %w", err)
	}
	return height, nil
}

// ScrollBy scrolls the window down by dy CSS pixels (up when negative).
func (s *Session) ScrollBy(ctx context.Context, dy float64) error {
	script := fmt.Sprintf(scrollByJSFormat, strconv.FormatFloat(dy, 'f', -1, 64))

	// window.scrollBy returns undefined, so no result is decoded.
	if err := s.evaluate(ctx, script, nil); err != nil {
		return fmt.Errorf("scrolling by %v: %w", dy, err)
	}
	return nil
}

// Sleep pauses for d, returning early if ctx or the tab is done.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	return s.run(ctx, chromedp.Sleep(d))
}

// Snapshot returns the rendered document markup.
func (s *Session) Snapshot(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("capturing document html: %w", err)
	}
	return html, nil
}

// Close closes the tab. The browser keeps running.
func (s *Session) Close() {
	s.cancel()
	s.logger.Debug("Session closed.")
}
