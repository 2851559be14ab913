package pipeline

import (
	"log/slog"
	"time"
)

// stageClock times consecutive stages of one reconstruction into a Processing record. Each lap
// runs from the previous lap (or the start) to now and is also observed in the stage histogram.
type stageClock struct {
	proc  *Processing
	start time.Time
	last  time.Time
	now   func() time.Time
}

func newStageClock(proc *Processing) *stageClock {
	return newStageClockAt(proc, time.Now)
}

func newStageClockAt(proc *Processing, now func() time.Time) *stageClock {
	t := now()
	return &stageClock{proc: proc, start: t, last: t, now: now}
}

// lap closes stage and returns its duration.
func (c *stageClock) lap(stage string) time.Duration {
	t := c.now()
	d := t.Sub(c.last)
	c.last = t

	ns := d.Nanoseconds()
	switch stage {
	case stageRectify:
		c.proc.RectifyNs = ns
	case stageDisparity:
		c.proc.DisparityNs = ns
	case stageTriangulate:
		c.proc.TriangulateNs = ns
	case stageFilter:
		c.proc.FilterNs = ns
	}
	observeStage(stage, d)
	slog.Debug("Stage finished", "stage", stage, "duration_ms", d.Milliseconds())
	return d
}

// finish records the time since the clock started as the total.
func (c *stageClock) finish() time.Duration {
	d := c.now().Sub(c.start)
	c.proc.TotalNs = d.Nanoseconds()
	return d
}
