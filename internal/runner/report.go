// internal/runner/report.go
package runner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/scroll-cli/internal/scroller"
)

// Result describes how one URL was scrolled.
type Result struct {
	URL          string         `json:"url"`
	SessionID    string         `json:"session_id,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	State        scroller.State `json:"state"`
	Iterations   int            `json:"iterations"`
	Accumulated  float64        `json:"accumulated"`
	FinalLimit   float64        `json:"final_limit"`
	StartedAt    time.Time      `json:"started_at"`
	DurationMs   int64          `json:"duration_ms"`
	SnapshotPath string         `json:"snapshot_path,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// Failed reports whether the URL ended with an error.
func (r Result) Failed() bool { return r.Error != "" }

// Reporter writes results as JSON lines. It is safe for concurrent use.
type Reporter struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
}

// NewReporter writes results to w.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{enc: json.NewEncoder(w)}
}

// NewFileReporter creates (or truncates) path and writes results to it.
func NewFileReporter(path string) (*Reporter, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("could not resolve report path '%s': %w", path, err)
	}
	if dir := filepath.Dir(expanded); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.Create(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}
	r := NewReporter(f)
	r.closer = f
	return r, nil
}

// Write appends one result.
func (r *Reporter) Write(res Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(res); err != nil {
		return fmt.Errorf("failed to write result for %s: %w", res.URL, err)
	}
	return nil
}

// Close closes the underlying file, if the reporter owns one.
func (r *Reporter) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
