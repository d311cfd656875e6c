package crawler

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// DefaultProgressInterval is the reporting period when none is configured.
const DefaultProgressInterval = 30 * time.Second

// Progress is one periodic throughput sample.
type Progress struct {
	Files       int64
	Elapsed     time.Duration
	Window      time.Duration
	RateNow     float64
	RateOverall float64
}

func (p Progress) String() string {
	return fmt.Sprintf("Progress: %s files in %s, %.1f f/s (last %ds), %.1f f/s (overall)",
		humanize.Comma(p.Files), FormatElapsed(p.Elapsed), p.RateNow,
		int64(p.Window.Round(time.Second)/time.Second), p.RateOverall)
}

// Summary is the final report of a completed crawl.
type Summary struct {
	Files   int64
	Elapsed time.Duration
	Rate    float64
}

func (s Summary) String() string {
	return fmt.Sprintf("Final stats: %s files in %.2fs (%.1f f/s)",
		humanize.Comma(s.Files), s.Elapsed.Seconds(), s.Rate)
}

// FormatElapsed renders d as hh:mm:ss. Hours are not wrapped.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// Rate returns n per second over d, or 0 for an empty interval.
func Rate(n int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}

// Monitor reports crawl throughput on a fixed interval. It reads the
// record counter without coordinating with the producers.
type Monitor struct {
	interval time.Duration
	count    func() int64
	logger   *zap.Logger
	onReport func(Progress)

	start     time.Time
	lastCount int64
	lastTime  time.Time

	mu       sync.Mutex
	stopped  bool
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  bool
}

// NewMonitor creates a monitor that samples count every interval. A
// non-positive interval uses DefaultProgressInterval. onReport, when set,
// receives each sample after it is logged.
func NewMonitor(interval time.Duration, count func() int64, logger *zap.Logger, onReport func(Progress)) *Monitor {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		interval: interval,
		count:    count,
		logger:   logger,
		onReport: onReport,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the reporting loop, measuring elapsed time from start.
func (m *Monitor) Start(start time.Time) {
	m.mu.Lock()
	m.start = start
	m.lastTime = start
	m.started = true
	m.mu.Unlock()
	go m.loop()
}

func (m *Monitor) loop() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			// a tick and a stop can be ready together
			select {
			case <-m.stop:
				return
			default:
			}
			m.report(now)
		}
	}
}

func (m *Monitor) report(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}

	files := m.count()
	window := now.Sub(m.lastTime)
	p := Progress{
		Files:       files,
		Elapsed:     now.Sub(m.start),
		Window:      window,
		RateNow:     Rate(files-m.lastCount, window),
		RateOverall: Rate(files, now.Sub(m.start)),
	}
	m.lastCount = files
	m.lastTime = now

	m.logger.Info(p.String(),
		zap.Int64("files", p.Files),
		zap.String("elapsed", FormatElapsed(p.Elapsed)),
		zap.Float64("rate_now", p.RateNow),
		zap.Float64("rate_overall", p.RateOverall))

	if m.onReport != nil {
		m.onReport(p)
	}
}

// Stop halts the loop and waits for it to exit. No report is emitted once
// Stop returns. Safe to call more than once and before Start.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		started := m.started
		m.mu.Unlock()

		close(m.stop)
		if started {
			<-m.done
		}
	})
}

// Finish stops the monitor and logs the final summary computed from total,
// the authoritative record count, rather than the sampled counter.
func (m *Monitor) Finish(total int64, elapsed time.Duration) Summary {
	m.Stop()

	s := Summary{Files: total, Elapsed: elapsed, Rate: Rate(total, elapsed)}
	m.logger.Info(s.String(),
		zap.Int64("files", s.Files),
		zap.Float64("elapsed_s", s.Elapsed.Seconds()),
		zap.Float64("rate_overall", s.Rate))
	return s
}
