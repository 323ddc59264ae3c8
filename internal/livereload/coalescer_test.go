package livereload

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recordingReloader struct {
	mu    sync.Mutex
	calls [][]string
	fired chan struct{}
}

func newRecordingReloader() *recordingReloader {
	return &recordingReloader{fired: make(chan struct{}, 16)}
}

func (r *recordingReloader) Reload(_ context.Context, paths ...string) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string(nil), paths...))
	r.mu.Unlock()
	r.fired <- struct{}{}
}

func (r *recordingReloader) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

func waitFired(t *testing.T, r *recordingReloader, within time.Duration) {
	t.Helper()
	select {
	case <-r.fired:
	case <-time.After(within):
		t.Fatalf("no reload within %s", within)
	}
}

func TestCoalescerBurstGivesOneReload(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := newRecordingReloader()
	c := NewCoalescer(DefaultDelay, r)
	defer c.Stop()

	start := time.Now()
	c.Trigger("dist/index.php")
	time.Sleep(50 * time.Millisecond)
	c.Trigger("dist/about.php", "dist/index.php")

	waitFired(t, r, 2*time.Second)
	assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)

	time.Sleep(2 * DefaultDelay)
	calls := r.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"dist/index.php", "dist/about.php"}, calls[0])
}

func TestCoalescerSeparateWindows(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := newRecordingReloader()
	c := NewCoalescer(20*time.Millisecond, r)
	defer c.Stop()

	c.Trigger("a.php")
	waitFired(t, r, time.Second)
	c.Trigger("b.php")
	waitFired(t, r, time.Second)

	assert.Equal(t, [][]string{{"a.php"}, {"b.php"}}, r.Calls())
}

func TestCoalescerFlush(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := newRecordingReloader()
	c := NewCoalescer(time.Hour, r)
	defer c.Stop()

	c.Flush()
	assert.Empty(t, r.Calls())

	c.Reload(context.Background(), "style.css")
	c.Flush()
	assert.Equal(t, [][]string{{"style.css"}}, r.Calls())
}

func TestCoalescerStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := newRecordingReloader()
	c := NewCoalescer(time.Hour, r)

	c.Trigger("a.php")
	c.Stop()
	c.Trigger("b.php")
	c.Flush()

	assert.Empty(t, r.Calls())
}

func TestCoalescerDefaults(t *testing.T) {
	assert.Equal(t, DefaultDelay, NewCoalescer(0, newRecordingReloader()).Delay())
	assert.Equal(t, time.Second, NewCoalescer(time.Second, newRecordingReloader()).Delay())
}
