package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/MeKo-Tech/twoview/internal/disparity"
)

// ProgressCallback receives progress reports. The pipeline reports disparity rows for a single
// pair and finished pairs for a batch.
type ProgressCallback interface {
	// OnStart is called once with the total number of units.
	OnStart(total int)

	// OnProgress is called after each finished unit.
	OnProgress(current, total int)

	// OnComplete is called when processing is finished.
	OnComplete()

	// OnError is called when a unit fails.
	OnError(current int, err error)
}

// NoOpProgressCallback ignores every report.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(int)          {}
func (NoOpProgressCallback) OnProgress(int, int)  {}
func (NoOpProgressCallback) OnComplete()          {}
func (NoOpProgressCallback) OnError(int, error)   {}

// ConsoleProgressCallback draws a progress bar on a terminal.
type ConsoleProgressCallback struct {
	mu             sync.Mutex
	writer         io.Writer
	prefix         string
	width          int
	updateInterval time.Duration
	showRate       bool
	startTime      time.Time
	lastUpdate     time.Time
}

// NewConsoleProgressCallback writes to writer, or stderr when writer is nil.
func NewConsoleProgressCallback(writer io.Writer, prefix string) *ConsoleProgressCallback {
	if writer == nil {
		writer = os.Stderr
	}
	return &ConsoleProgressCallback{
		writer:         writer,
		prefix:         prefix,
		width:          40,
		updateInterval: 100 * time.Millisecond,
		showRate:       true,
	}
}

// WithWidth sets the bar width in characters.
func (c *ConsoleProgressCallback) WithWidth(width int) *ConsoleProgressCallback {
	if width > 0 {
		c.width = width
	}
	return c
}

// WithUpdateInterval sets the minimum time between redraws.
func (c *ConsoleProgressCallback) WithUpdateInterval(interval time.Duration) *ConsoleProgressCallback {
	c.updateInterval = interval
	return c
}

// WithRate toggles the units-per-second display.
func (c *ConsoleProgressCallback) WithRate(show bool) *ConsoleProgressCallback {
	c.showRate = show
	return c
}

func (c *ConsoleProgressCallback) OnStart(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()
	c.lastUpdate = time.Time{}
	_, _ = fmt.Fprintf(c.writer, "%s0/%d (0.0%%)\n", c.prefix, total)
}

func (c *ConsoleProgressCallback) OnProgress(current, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if current < total && now.Sub(c.lastUpdate) < c.updateInterval {
		return
	}
	c.lastUpdate = now
	c.draw(current, total, now)
}

func (c *ConsoleProgressCallback) OnComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.writer, "\n%sdone in %v\n", c.prefix, time.Since(c.startTime).Round(time.Millisecond))
}

func (c *ConsoleProgressCallback) OnError(current int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.writer, "\n%serror at %d: %v\n", c.prefix, current, err)
}

func (c *ConsoleProgressCallback) draw(current, total int, now time.Time) {
	if total <= 0 {
		return
	}
	current = min(current, total)
	filled := c.width * current / total
	bar := strings.Repeat("█", filled) + strings.Repeat("░", c.width-filled)
	line := fmt.Sprintf("\r%s[%s] %d/%d (%.1f%%)", c.prefix, bar, current, total,
		100*float64(current)/float64(total))
	if elapsed := now.Sub(c.startTime); c.showRate && elapsed > 0 && current > 0 {
		line += fmt.Sprintf(" %.1f/s", float64(current)/elapsed.Seconds())
	}
	_, _ = fmt.Fprint(c.writer, line)
}

// LogProgressCallback reports progress through slog every interval units.
type LogProgressCallback struct {
	mu        sync.Mutex
	logger    *slog.Logger
	level     slog.Level
	prefix    string
	interval  int
	lastLog   int
	startTime time.Time
}

// NewLogProgressCallback logs to logger, or slog.Default when nil.
func NewLogProgressCallback(logger *slog.Logger, level slog.Level, prefix string) *LogProgressCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgressCallback{logger: logger, level: level, prefix: prefix, interval: 10}
}

// WithInterval logs every n units.
func (l *LogProgressCallback) WithInterval(n int) *LogProgressCallback {
	if n > 0 {
		l.interval = n
	}
	return l
}

func (l *LogProgressCallback) OnStart(total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.startTime = time.Now()
	l.lastLog = 0
	l.logger.Log(context.Background(), l.level, l.prefix+"started", "total", total)
}

func (l *LogProgressCallback) OnProgress(current, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if current-l.lastLog < l.interval && current != total {
		return
	}
	l.lastLog = current
	l.logger.Log(context.Background(), l.level, l.prefix+"progress",
		"current", current,
		"total", total,
		"elapsed", time.Since(l.startTime).Round(time.Millisecond))
}

func (l *LogProgressCallback) OnComplete() {
	l.logger.Log(context.Background(), l.level, l.prefix+"completed",
		"elapsed", time.Since(l.startTime).Round(time.Millisecond))
}

func (l *LogProgressCallback) OnError(current int, err error) {
	l.logger.Log(context.Background(), slog.LevelError, l.prefix+"failed", "current", current, "error", err)
}

// MultiProgressCallback fans reports out to several callbacks.
type MultiProgressCallback struct {
	callbacks []ProgressCallback
}

// NewMultiProgressCallback combines callbacks; nil entries are skipped.
func NewMultiProgressCallback(callbacks ...ProgressCallback) *MultiProgressCallback {
	m := &MultiProgressCallback{}
	for _, cb := range callbacks {
		m.Add(cb)
	}
	return m
}

// Add appends a callback.
func (m *MultiProgressCallback) Add(cb ProgressCallback) {
	if cb != nil {
		m.callbacks = append(m.callbacks, cb)
	}
}

func (m *MultiProgressCallback) OnStart(total int) {
	for _, cb := range m.callbacks {
		cb.OnStart(total)
	}
}

func (m *MultiProgressCallback) OnProgress(current, total int) {
	for _, cb := range m.callbacks {
		cb.OnProgress(current, total)
	}
}

func (m *MultiProgressCallback) OnComplete() {
	for _, cb := range m.callbacks {
		cb.OnComplete()
	}
}

func (m *MultiProgressCallback) OnError(current int, err error) {
	for _, cb := range m.callbacks {
		cb.OnError(current, err)
	}
}

// ThrottledProgressCallback forwards at most one progress report per interval. The final report
// always passes.
type ThrottledProgressCallback struct {
	mu          sync.Mutex
	wrapped     ProgressCallback
	minInterval time.Duration
	lastUpdate  time.Time
}

// NewThrottledProgressCallback wraps cb.
func NewThrottledProgressCallback(cb ProgressCallback, minInterval time.Duration) *ThrottledProgressCallback {
	return &ThrottledProgressCallback{wrapped: cb, minInterval: minInterval}
}

func (t *ThrottledProgressCallback) OnStart(total int) { t.wrapped.OnStart(total) }

func (t *ThrottledProgressCallback) OnProgress(current, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if current == total || t.lastUpdate.IsZero() || now.Sub(t.lastUpdate) >= t.minInterval {
		t.lastUpdate = now
		t.wrapped.OnProgress(current, total)
	}
}

func (t *ThrottledProgressCallback) OnComplete() { t.wrapped.OnComplete() }

func (t *ThrottledProgressCallback) OnError(current int, err error) { t.wrapped.OnError(current, err) }

// rowProgress adapts a callback to the disparity engine's row counter, which reports from
// several goroutines. OnStart fires with the first report.
func rowProgress(cb ProgressCallback) disparity.ProgressFunc {
	if cb == nil {
		return nil
	}
	var (
		mu      sync.Mutex
		started bool
	)
	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		if !started {
			started = true
			cb.OnStart(total)
		}
		cb.OnProgress(done, total)
	}
}
