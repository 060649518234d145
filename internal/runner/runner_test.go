// internal/runner/runner_test.go
package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scroll-cli/internal/config"
	"github.com/xkilldash9x/scroll-cli/internal/scroller"
)

// fakeSession is an in-memory tab whose document has a fixed height per URL.
type fakeSession struct {
	id      string
	heights map[string]float64
	navErr  error
	snapErr error
	block   bool

	mu     sync.Mutex
	url    string
	closed bool
}

func (f *fakeSession) ID() string        { return f.id }
func (f *fakeSession) UserAgent() string { return "fake-agent" }

func (f *fakeSession) Navigate(ctx context.Context, url string) error {
	if f.navErr != nil {
		return f.navErr
	}
	f.mu.Lock()
	f.url = url
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) ScrollHeight(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heights[f.url], nil
}

func (f *fakeSession) ScrollBy(ctx context.Context, dy float64) error { return nil }

func (f *fakeSession) Sleep(ctx context.Context, d time.Duration) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return ctx.Err()
}

func (f *fakeSession) Snapshot(ctx context.Context) (string, error) {
	if f.snapErr != nil {
		return "", f.snapErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return "<html><body>" + f.url + "</body></html>", nil
}

func (f *fakeSession) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

type fakeBrowser struct {
	heights map[string]float64
	navErrs map[string]error
	block   bool
	openErr error

	opened   atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32

	mu       sync.Mutex
	sessions []*fakeSession
}

func (b *fakeBrowser) open(ctx context.Context) (Session, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	n := b.opened.Add(1)
	s := &fakeSession{id: fmt.Sprintf("session-%d", n), heights: b.heights, block: b.block}
	b.mu.Lock()
	b.sessions = append(b.sessions, s)
	b.mu.Unlock()
	return &trackingSession{fakeSession: s, browser: b}, nil
}

// trackingSession records how many sessions are navigating or scrolling at once.
type trackingSession struct {
	*fakeSession
	browser *fakeBrowser
}

func (t *trackingSession) Navigate(ctx context.Context, url string) error {
	cur := t.browser.inFlight.Add(1)
	for {
		prev := t.browser.maxSeen.Load()
		if cur <= prev || t.browser.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}
	if err, ok := t.browser.navErrs[url]; ok {
		t.fakeSession.navErr = err
	}
	// Give concurrent sessions a chance to overlap.
	time.Sleep(5 * time.Millisecond)
	return t.fakeSession.Navigate(ctx, url)
}

func (t *trackingSession) Close() {
	t.browser.inFlight.Add(-1)
	t.fakeSession.Close()
}

func decodeReport(t *testing.T, buf *bytes.Buffer) []Result {
	t.Helper()
	var out []Result
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var r Result
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		out = append(out, r)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestRunner_ScrollsEveryURL(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBrowser{heights: map[string]float64{
		"https://a.test/": 250,
		"https://b.test/": 0,
		"https://c.test/": 1000,
	}}
	var buf bytes.Buffer
	r := New(b.open, config.RunConfig{Concurrency: 2}, NewReporter(&buf), zaptest.NewLogger(t))

	urls := []string{"https://a.test/", "https://b.test/", "https://c.test/"}
	results, err := r.Run(context.Background(), urls)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "https://a.test/", results[0].URL)
	assert.Equal(t, 3, results[0].Iterations)
	assert.Equal(t, 300.0, results[0].Accumulated)
	assert.Equal(t, 250.0, results[0].FinalLimit)
	assert.Equal(t, scroller.StateDone, results[0].State)

	assert.Equal(t, 0, results[1].Iterations)
	assert.Equal(t, scroller.StateDone, results[1].State)

	assert.Equal(t, 10, results[2].Iterations)
	for _, res := range results {
		assert.NotEmpty(t, res.SessionID)
		assert.Equal(t, "fake-agent", res.UserAgent)
		assert.Empty(t, res.Error)
		assert.Empty(t, res.SnapshotPath)
	}

	reported := decodeReport(t, &buf)
	assert.Len(t, reported, 3)

	for _, s := range b.sessions {
		assert.True(t, s.closed, "session %s left open", s.id)
	}
}

func TestRunner_RespectsConcurrencyLimit(t *testing.T) {
	heights := map[string]float64{}
	var urls []string
	for i := 0; i < 8; i++ {
		u := fmt.Sprintf("https://site%d.test/", i)
		heights[u] = 200
		urls = append(urls, u)
	}
	b := &fakeBrowser{heights: heights}
	r := New(b.open, config.RunConfig{Concurrency: 3}, nil, zaptest.NewLogger(t))

	_, err := r.Run(context.Background(), urls)
	require.NoError(t, err)
	assert.Equal(t, int32(8), b.opened.Load())
	assert.LessOrEqual(t, b.maxSeen.Load(), int32(3))
	assert.GreaterOrEqual(t, b.maxSeen.Load(), int32(1))
}

func TestRunner_FailureHandling(t *testing.T) {
	navErr := errors.New("net::ERR_NAME_NOT_RESOLVED")
	urls := []string{"https://ok.test/", "https://broken.test/", "https://ok2.test/"}

	t.Run("ContinueOnFailure", func(t *testing.T) {
		b := &fakeBrowser{
			heights: map[string]float64{"https://ok.test/": 100, "https://ok2.test/": 100},
			navErrs: map[string]error{"https://broken.test/": navErr},
		}
		r := New(b.open, config.RunConfig{Concurrency: 1}, nil, zaptest.NewLogger(t))

		results, err := r.Run(context.Background(), urls)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPartialFailure)
		assert.Contains(t, err.Error(), "1 of 3")

		assert.False(t, results[0].Failed())
		assert.True(t, results[1].Failed())
		assert.Contains(t, results[1].Error, "ERR_NAME_NOT_RESOLVED")
		assert.False(t, results[2].Failed())
		assert.Equal(t, 1, results[2].Iterations)
	})

	t.Run("FailFast", func(t *testing.T) {
		b := &fakeBrowser{
			heights: map[string]float64{"https://ok.test/": 100, "https://ok2.test/": 100},
			navErrs: map[string]error{"https://broken.test/": navErr},
		}
		r := New(b.open, config.RunConfig{Concurrency: 1, FailFast: true}, nil, zaptest.NewLogger(t))

		results, err := r.Run(context.Background(), urls)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrPartialFailure)
		assert.Contains(t, err.Error(), "broken.test")
		assert.True(t, results[2].Failed(), "URLs after the failure are canceled")
		assert.Contains(t, results[2].Error, context.Canceled.Error())
	})

	t.Run("OpenError", func(t *testing.T) {
		b := &fakeBrowser{openErr: errors.New("browser gone")}
		r := New(b.open, config.RunConfig{Concurrency: 1}, nil, zaptest.NewLogger(t))

		results, err := r.Run(context.Background(), urls[:1])
		require.ErrorIs(t, err, ErrPartialFailure)
		assert.Contains(t, results[0].Error, "failed to open session: browser gone")
		assert.Empty(t, results[0].SessionID)
	})
}

func TestRunner_Cancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBrowser{
		heights: map[string]float64{"https://endless.test/": 1e9},
		block:   true,
	}
	r := New(b.open, config.RunConfig{Concurrency: 1}, nil, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	results, err := r.Run(ctx, []string{"https://endless.test/"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, scroller.StateScrolling, results[0].State)
	assert.Equal(t, 1, results[0].Iterations)
}

func TestRunner_Snapshots(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snaps")
	b := &fakeBrowser{heights: map[string]float64{"https://example.test:8080/x": 100}}
	r := New(b.open, config.RunConfig{Concurrency: 1, SnapshotDir: dir}, nil, zaptest.NewLogger(t))

	results, err := r.Run(context.Background(), []string{"https://example.test:8080/x"})
	require.NoError(t, err)

	path := results[0].SnapshotPath
	require.NotEmpty(t, path)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Equal(t, "example.test_8080-"+results[0].SessionID+".html", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "https://example.test:8080/x")
}

func TestRunner_SnapshotFailure(t *testing.T) {
	dir := t.TempDir()
	b := &fakeBrowser{heights: map[string]float64{"https://a.test/": 100}}
	r := New(func(ctx context.Context) (Session, error) {
		s, err := b.open(ctx)
		if err != nil {
			return nil, err
		}
		s.(*trackingSession).snapErr = errors.New("target closed")
		return s, nil
	}, config.RunConfig{Concurrency: 1, SnapshotDir: dir}, nil, zaptest.NewLogger(t))

	results, err := r.Run(context.Background(), []string{"https://a.test/"})
	require.ErrorIs(t, err, ErrPartialFailure)
	assert.Equal(t, scroller.StateDone, results[0].State)
	assert.Contains(t, results[0].Error, "target closed")
}

func TestSnapshotFileName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/a/b", "example.com-id.html"},
		{"http://127.0.0.1:9000/", "127.0.0.1_9000-id.html"},
		{"file:///tmp/page.html", "page-id.html"},
		{"::not a url", "page-id.html"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, snapshotFileName(tt.url, "id"))
		})
	}
}

func TestFileReporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "report.jsonl")
	rep, err := NewFileReporter(path)
	require.NoError(t, err)

	require.NoError(t, rep.Write(Result{URL: "https://a.test/", State: scroller.StateDone, Iterations: 2}))
	require.NoError(t, rep.Write(Result{URL: "https://b.test/", Error: "boom"}))
	require.NoError(t, rep.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"state":"DONE"`)
	assert.NotContains(t, lines[0], `"error"`)
	assert.Contains(t, lines[1], `"error":"boom"`)

	assert.NoError(t, NewReporter(&bytes.Buffer{}).Close())
}

func TestReporter_LinesDecodeWithStandardJSON(t *testing.T) {
	var buf bytes.Buffer
	rep := NewReporter(&buf)
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	in := Result{
		URL:         "https://a.test/",
		SessionID:   "s-1",
		State:       scroller.StateDone,
		Iterations:  3,
		Accumulated: 300,
		FinalLimit:  250,
		StartedAt:   started,
		DurationMs:  1500,
	}
	require.NoError(t, rep.Write(in))

	assert.Contains(t, buf.String(), `"started_at":"2025-03-01T12:00:00Z"`)
	assert.True(t, strings.HasSuffix(buf.String(), "\n"), "one result per line")

	var out Result
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.True(t, started.Equal(out.StartedAt))
	out.StartedAt = in.StartedAt
	assert.Equal(t, in, out)
}
