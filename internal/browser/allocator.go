// Package browser owns the Chrome process and the tabs that scrolls run in.
//
// All chromedp usage is confined here so the scroller only sees the narrow
// Page and Sleeper interfaces.
package browser

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scroll-cli/internal/config"
)

const defaultShutdownTimeout = 10 * time.Second

// Allocator holds one Chrome process. Sessions opened from it are tabs in that
// process and can be used concurrently.
type Allocator struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	rngMu sync.Mutex
	rng   *rand.Rand

	closeOnce sync.Once
}

// allocatorFlags translates the browser configuration into Chrome command line flags.
func allocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"no-sandbox":               true,
		"disable-gpu":              true,
		"no-first-run":             true,
		"no-default-browser-check": true,
		"enable-automation":        true,
		"hide-scrollbars":          true,
		"mute-audio":               true,
	}
	if cfg.Headless {
		flags["headless"] = true
	}
	if cfg.UserAgent != "" {
		flags["user-agent"] = cfg.UserAgent
	}

	// Extra args accept both "flag" and "flag=value", with or without leading dashes.
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		if key, value, found := strings.Cut(arg, "="); found {
			flags[key] = value
		} else {
			flags[arg] = true
		}
	}
	return flags
}

// execAllocatorOptions builds the chromedp options for launching Chrome.
func execAllocatorOptions(cfg config.BrowserConfig) ([]chromedp.ExecAllocatorOption, error) {
	var opts []chromedp.ExecAllocatorOption
	for key, value := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(key, value))
	}

	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		dir, err := homedir.Expand(cfg.UserDataDir)
		if err != nil {
			return nil, fmt.Errorf("could not resolve user data dir '%s': %w", cfg.UserDataDir, err)
		}
		opts = append(opts, chromedp.UserDataDir(dir))
	}
	return opts, nil
}

// NewAllocator launches Chrome and returns once the browser is ready for tabs.
// The process lives until Close is called or ctx is canceled.
func NewAllocator(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Allocator, error) {
	log := logger.Named("browser")

	opts, err := execAllocatorOptions(cfg)
	if err != nil {
		return nil, err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	sugar := log.Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Errorf),
	)

	// An empty Run starts the browser so launch failures surface here.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	log.Info("Browser launched.",
		zap.Bool("headless", cfg.Headless),
		zap.Bool("random_user_agent", cfg.RandomUserAgent),
	)

	return &Allocator{
		cfg:           cfg,
		logger:        log,
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// nextUserAgent returns the user agent override for a new session, if any.
func (a *Allocator) nextUserAgent() string {
	if !a.cfg.RandomUserAgent {
		return ""
	}
	a.rngMu.Lock()
	defer a.rngMu.Unlock()
	return RandomUserAgent(a.rng)
}

// Close shuts the browser down, waiting at most the configured shutdown timeout
// for the process to exit. It is safe to call more than once.
func (a *Allocator) Close() {
	a.closeOnce.Do(func() {
		timeout := a.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}

		// chromedp.Cancel blocks until the browser exits.
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(a.browserCtx) }()

		select {
		case err := <-done:
			if err != nil && a.browserCtx.Err() == nil {
				a.logger.Warn("Error during graceful browser shutdown.", zap.Error(err))
			}
		case <-time.After(timeout):
			a.logger.Warn("Browser shutdown timed out; killing process.", zap.Duration("timeout", timeout))
		}

		a.browserCancel()
		a.allocCancel()
		a.logger.Debug("Browser closed.")
	})
}
