// Package console keeps the running log shown next to the dashboard: short
// human-readable lines describing what the simulation just did. Only the most
// recent entries are kept.
package console

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/banshee-data/proximity.report/internal/sim"
	"github.com/banshee-data/proximity.report/internal/timeutil"
	"github.com/banshee-data/proximity.report/internal/units"
)

// Level classifies an entry for display.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelAlert Level = "alert"
)

// Entry is one console line.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Kind    string    `json:"kind,omitempty"`
	Tick    int       `json:"tick"`
	Message string    `json:"message"`
}

// Options configures a Console. Nil fields get defaults.
type Options struct {
	Clock  timeutil.Clock
	Logger *logrus.Logger
}

// Console is a bounded log. It is safe for concurrent use.
type Console struct {
	capacity int
	clock    timeutil.Clock
	logger   *logrus.Logger

	mu      sync.Mutex
	entries []Entry
	total   int
}

// New returns a Console that keeps at most capacity entries.
func New(capacity int, opts Options) *Console {
	if capacity < 1 {
		capacity = 1
	}
	c := &Console{
		capacity: capacity,
		clock:    opts.Clock,
		logger:   opts.Logger,
		entries:  make([]Entry, 0, capacity),
	}
	if c.clock == nil {
		c.clock = timeutil.RealClock{}
	}
	if c.logger == nil {
		c.logger = logrus.StandardLogger()
	}
	return c
}

// Message renders an engine event as a console line.
func Message(e sim.Event) (Level, string) {
	s := e.State
	switch e.Kind {
	case sim.EventStarted:
		return LevelInfo, "Simulation started"
	case sim.EventStopped:
		return LevelInfo, fmt.Sprintf("Simulation stopped after %ds", s.ElapsedSeconds)
	case sim.EventReset:
		return LevelInfo, "Simulation reset"
	case sim.EventCollisionOnset:
		return LevelWarn, fmt.Sprintf("Collision #%d detected at %s",
			s.CollisionCount, units.FormatDistance(s.Distance, units.CM))
	case sim.EventSpeedChanged:
		return LevelInfo, fmt.Sprintf("Speed set to %d%%", units.SpeedPercent(s.Speed))
	default:
		return LevelInfo, fmt.Sprintf("Unknown event %q", e.Kind)
	}
}

// HandleEvent appends the line describing e.
func (c *Console) HandleEvent(e sim.Event) Entry {
	level, msg := Message(e)
	return c.add(Entry{Level: level, Kind: string(e.Kind), Tick: e.State.ElapsedSeconds, Message: msg})
}

// Add appends a free-form line, for collaborators that are not engine events.
func (c *Console) Add(level Level, format string, args ...interface{}) Entry {
	return c.add(Entry{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (c *Console) add(e Entry) Entry {
	e.Time = c.clock.Now()

	c.mu.Lock()
	if len(c.entries) == c.capacity {
		copy(c.entries, c.entries[1:])
		c.entries = c.entries[:len(c.entries)-1]
	}
	c.entries = append(c.entries, e)
	c.total++
	c.mu.Unlock()

	fields := logrus.Fields{"tick": e.Tick}
	if e.Kind != "" {
		fields["kind"] = e.Kind
	}
	entry := c.logger.WithFields(fields)
	switch e.Level {
	case LevelAlert:
		entry.Error(e.Message)
	case LevelWarn:
		entry.Warn(e.Message)
	default:
		entry.Info(e.Message)
	}
	return e
}

// Entries returns a copy of the retained entries, oldest first.
func (c *Console) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry(nil), c.entries...)
}

// Total returns how many entries were ever added, including evicted ones.
func (c *Console) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Capacity returns the maximum number of retained entries.
func (c *Console) Capacity() int { return c.capacity }

// Consume appends an entry for every event read from events until the
// channel closes or ctx is done.
func (c *Console) Consume(ctx context.Context, events <-chan sim.Event) error {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return nil
			}
			c.HandleEvent(e)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
