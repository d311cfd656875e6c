package crawler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFormatElapsed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00"},
		{-time.Second, "00:00:00"},
		{59*time.Second + 900*time.Millisecond, "00:00:59"},
		{90 * time.Second, "00:01:30"},
		{3*time.Hour + 4*time.Minute + 5*time.Second, "03:04:05"},
		{125 * time.Hour, "125:00:00"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatElapsed(tt.in), "FormatElapsed(%v)", tt.in)
	}
}

func TestProgressAndSummaryStrings(t *testing.T) {
	t.Parallel()

	p := Progress{
		Files:       1234567,
		Elapsed:     90 * time.Second,
		Window:      30 * time.Second,
		RateNow:     12.34,
		RateOverall: 13.71,
	}
	assert.Equal(t, "Progress: 1,234,567 files in 00:01:30, 12.3 f/s (last 30s), 13.7 f/s (overall)", p.String())

	s := Summary{Files: 2000, Elapsed: 4 * time.Second, Rate: 500}
	assert.Equal(t, "Final stats: 2,000 files in 4.00s (500.0 f/s)", s.String())
}

func TestRate(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.0, Rate(10, 0))
	assert.Equal(t, 5.0, Rate(10, 2*time.Second))
}

func TestMonitorReportsPeriodically(t *testing.T) {
	var n atomic.Int64
	n.Store(42)

	core, logs := observer.New(zapcore.InfoLevel)
	reports := make(chan Progress, 16)
	m := NewMonitor(5*time.Millisecond, n.Load, zap.New(core), func(p Progress) {
		select {
		case reports <- p:
		default:
		}
	})
	m.Start(time.Now())

	select {
	case p := <-reports:
		assert.Equal(t, int64(42), p.Files)
	case <-time.After(2 * time.Second):
		t.Fatal("no progress report within 2s")
	}
	m.Stop()

	entries := logs.FilterMessageSnippet("Progress:").All()
	require.NotEmpty(t, entries)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(42), fields["files"])
	assert.Contains(t, fields, "rate_now")
	assert.Contains(t, fields, "rate_overall")
}

func TestMonitorNoReportAfterStop(t *testing.T) {
	var (
		mu    sync.Mutex
		count int
	)
	m := NewMonitor(time.Millisecond, func() int64 { return 1 }, nil, func(Progress) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	m.Start(time.Now())
	time.Sleep(10 * time.Millisecond)
	m.Stop()

	mu.Lock()
	after := count
	mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, after, count, "monitor reported after Stop returned")
}

func TestMonitorStopIsIdempotent(t *testing.T) {
	m := NewMonitor(time.Hour, func() int64 { return 0 }, nil, nil)
	m.Start(time.Now())

	done := make(chan struct{})
	go func() {
		m.Stop()
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop hung")
	}
}

func TestMonitorStopBeforeStart(t *testing.T) {
	m := NewMonitor(0, func() int64 { return 0 }, nil, nil)
	assert.Equal(t, DefaultProgressInterval, m.interval)

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop before Start hung")
	}
}

func TestMonitorFinishUsesAuthoritativeTotal(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m := NewMonitor(time.Hour, func() int64 { return 7 }, zap.New(core), nil)
	m.Start(time.Now())

	s := m.Finish(10, 2*time.Second)
	assert.Equal(t, int64(10), s.Files)
	assert.Equal(t, 5.0, s.Rate)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Final stats: 10 files in 2.00s (5.0 f/s)", logs.All()[0].Message)
}
