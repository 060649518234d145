// internal/scroller/scroller.go
package scroller

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// Step is the distance, in CSS pixels, advanced by each scroll command.
	Step = 100.0
	// Delay is the pause between consecutive scroll commands.
	Delay = 500 * time.Millisecond
)

// State is the position of a scroll run in its two-state lifecycle.
type State string

const (
	StateScrolling State = "SCROLLING"
	StateDone      State = "DONE"
)

// Page is the document being scrolled. ScrollHeight must be a live read: it is
// called on every iteration so content appended while scrolling extends the run.
type Page interface {
	ScrollHeight(ctx context.Context) (float64, error)
	ScrollBy(ctx context.Context, dy float64) error
}

// Sleeper suspends the calling task for the given duration.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Progress is a snapshot of a scroll run.
type Progress struct {
	Accumulated float64 `json:"accumulated"`
	Limit       float64 `json:"limit"`
	Iterations  int     `json:"iterations"`
	State       State   `json:"state"`
}

// Option configures a Scroller.
type Option func(*Scroller)

// WithObserver registers a callback invoked after every completed iteration.
func WithObserver(fn func(Progress)) Option {
	return func(s *Scroller) { s.observer = fn }
}

// Scroller walks a Page down to its bottom one Step at a time.
type Scroller struct {
	page     Page
	sleeper  Sleeper
	logger   *zap.Logger
	observer func(Progress)
}

// New creates a Scroller for the given page.
func New(page Page, sleeper Sleeper, logger *zap.Logger, opts ...Option) *Scroller {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scroller{
		page:    page,
		sleeper: sleeper,
		logger:  logger.Named("scroller"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run scrolls until the accumulated distance reaches the page height as read at
// the top of each iteration. A page that keeps growing at least one Step per
// iteration is followed indefinitely; only ctx ends such a run.
//
// Errors from the page or the sleeper end the run immediately and are returned
// together with the progress made so far.
func (s *Scroller) Run(ctx context.Context) (Progress, error) {
	p := Progress{State: StateScrolling}

	limit, err := s.page.ScrollHeight(ctx)
	if err != nil {
		return p, fmt.Errorf("reading scroll height before first step: %w", err)
	}
	p.Limit = limit

	for p.Accumulated < p.Limit {
		if err := ctx.Err(); err != nil {
			return p, err
		}

		if err := s.page.ScrollBy(ctx, Step); err != nil {
			return p, fmt.Errorf("scroll step %d: %w", p.Iterations+1, err)
		}
		p.Accumulated += Step
		p.Iterations++

		if err := s.sleeper.Sleep(ctx, Delay); err != nil {
			return p, fmt.Errorf("delay after step %d: %w", p.Iterations, err)
		}

		limit, err := s.page.ScrollHeight(ctx)
		if err != nil {
			return p, fmt.Errorf("reading scroll height after step %d: %w", p.Iterations, err)
		}
		p.Limit = limit

		s.logger.Debug("Scrolled one step.",
			zap.Int("iteration", p.Iterations),
			zap.Float64("accumulated", p.Accumulated),
			zap.Float64("limit", p.Limit),
		)
		if s.observer != nil {
			s.observer(p)
		}
	}

	p.State = StateDone
	return p, nil
}
