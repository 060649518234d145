// internal/runner/runner.go
package runner

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/scroll-cli/internal/config"
	"github.com/xkilldash9x/scroll-cli/internal/scroller"
)

// ErrPartialFailure is returned when some URLs failed and fail-fast is off.
var ErrPartialFailure = errors.New("one or more urls failed")

// Session is a single browser tab the runner drives for one URL.
type Session interface {
	scroller.Page
	scroller.Sleeper
	ID() string
	UserAgent() string
	Navigate(ctx context.Context, url string) error
	Snapshot(ctx context.Context) (string, error)
	Close()
}

// Opener opens a fresh Session.
type Opener func(ctx context.Context) (Session, error)

// Runner scrolls a list of URLs, each in its own tab.
type Runner struct {
	open     Opener
	cfg      config.RunConfig
	reporter *Reporter
	logger   *zap.Logger
}

// New creates a Runner. reporter may be nil.
func New(open Opener, cfg config.RunConfig, reporter *Reporter, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		open:     open,
		cfg:      cfg,
		reporter: reporter,
		logger:   logger.Named("runner"),
	}
}

// Run scrolls every URL and returns one Result per URL, in input order.
// With fail-fast set, the first failure cancels the remaining URLs and is
// returned. Otherwise all URLs run and ErrPartialFailure is returned if any
// failed.
func (r *Runner) Run(ctx context.Context, urls []string) ([]Result, error) {
	results := make([]Result, len(urls))
	limit := r.cfg.Concurrency
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var (
		mu     sync.Mutex
		failed int
	)

	r.logger.Info("Starting run.", zap.Int("urls", len(urls)), zap.Int("concurrency", limit))

	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			var res Result
			if err := gctx.Err(); err != nil {
				res = Result{URL: u, State: scroller.StateScrolling, StartedAt: time.Now(), Error: err.Error()}
			} else {
				res = r.scrollOne(gctx, u)
			}
			results[i] = res

			if r.reporter != nil {
				if err := r.reporter.Write(res); err != nil {
					r.logger.Error("Failed to report result.", zap.Error(err))
				}
			}

			if !res.Failed() {
				return nil
			}
			mu.Lock()
			failed++
			mu.Unlock()

			// A canceled parent ends the whole run regardless of fail-fast.
			if err := ctx.Err(); err != nil {
				return err
			}
			if r.cfg.FailFast {
				return fmt.Errorf("%s: %s", u, res.Error)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	if failed > 0 {
		r.logger.Warn("Run finished with failures.", zap.Int("failed", failed), zap.Int("total", len(urls)))
		return results, fmt.Errorf("%d of %d: %w", failed, len(urls), ErrPartialFailure)
	}
	r.logger.Info("Run finished.", zap.Int("total", len(urls)))
	return results, nil
}

// scrollOne runs the full lifecycle for one URL. Failures are recorded in
// the Result rather than returned.
func (r *Runner) scrollOne(ctx context.Context, target string) Result {
	res := Result{URL: target, State: scroller.StateScrolling, StartedAt: time.Now()}
	logger := r.logger.With(zap.String("url", target))

	fail := func(err error) Result {
		res.Error = err.Error()
		res.DurationMs = time.Since(res.StartedAt).Milliseconds()
		logger.Warn("URL failed.", zap.Error(err))
		return res
	}

	sess, err := r.open(ctx)
	if err != nil {
		return fail(fmt.Errorf("failed to open session: %w", err))
	}
	defer sess.Close()
	res.SessionID = sess.ID()
	res.UserAgent = sess.UserAgent()
	logger = logger.With(zap.String("session_id", res.SessionID))

	if err := sess.Navigate(ctx, target); err != nil {
		return fail(err)
	}

	progress, err := scroller.New(sess, sess, logger).Run(ctx)
	res.State = progress.State
	res.Iterations = progress.Iterations
	res.Accumulated = progress.Accumulated
	res.FinalLimit = progress.Limit
	if err != nil {
		return fail(err)
	}

	if r.cfg.SnapshotDir != "" {
		path, err := r.writeSnapshot(ctx, sess, target)
		if err != nil {
			return fail(err)
		}
		res.SnapshotPath = path
	}

	logger.Info("URL scrolled.",
		zap.Int("iterations", res.Iterations),
		zap.Float64("accumulated", res.Accumulated),
		zap.Float64("final_limit", res.FinalLimit),
	)
	res.DurationMs = time.Since(res.StartedAt).Milliseconds()
	return res
}

func (r *Runner) writeSnapshot(ctx context.Context, sess Session, target string) (string, error) {
	html, err := sess.Snapshot(ctx)
	if err != nil {
		return "", err
	}

	dir, err := homedir.Expand(r.cfg.SnapshotDir)
	if err != nil {
		return "", fmt.Errorf("could not resolve snapshot dir '%s': %w", r.cfg.SnapshotDir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	path := filepath.Join(dir, snapshotFileName(target, sess.ID()))
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	return path, nil
}

// snapshotFileName builds "<host>-<session id>.html", falling back to "page"
// for URLs without a host.
func snapshotFileName(target, sessionID string) string {
	host := "page"
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, host)
	return host + "-" + sessionID + ".html"
}
