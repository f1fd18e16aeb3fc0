// Package driver owns a sim.Clock on a single goroutine, ticks it at a fixed
// interval and serialises commands from any number of callers.
package driver

import (
	"context"
	"errors"
	"time"

	"github.com/banshee-data/proximity.report/internal/broadcast"
	"github.com/banshee-data/proximity.report/internal/monitoring"
	"github.com/banshee-data/proximity.report/internal/sim"
	"github.com/banshee-data/proximity.report/internal/timeutil"
)

// DefaultInterval is one simulated second per wall-clock second.
const DefaultInterval = time.Second

// ErrStopped is returned by command methods once Run has returned.
var ErrStopped = errors.New("driver stopped")

// Options configures a Driver. Nil hubs are created on demand.
type Options struct {
	Clock     timeutil.Clock
	Interval  time.Duration
	Snapshots *broadcast.Hub[sim.Snapshot]
	Events    *broadcast.Hub[sim.Event]
}

type result struct {
	snap sim.Snapshot
	err  error
}

type command struct {
	name    string
	mutates bool
	apply   func(*sim.Clock) (sim.Snapshot, error)
	reply   chan result
}

// Driver is the single owner of a sim.Clock.
type Driver struct {
	clock     *sim.Clock
	params    sim.Params
	ticks     timeutil.Clock
	interval  time.Duration
	snapshots *broadcast.Hub[sim.Snapshot]
	events    *broadcast.Hub[sim.Event]

	cmds chan command
	done chan struct{}
}

// New wraps clock. The caller must not touch clock after this call.
func New(clock *sim.Clock, opts Options) *Driver {
	d := &Driver{
		clock:     clock,
		params:    clock.Params(),
		ticks:     opts.Clock,
		interval:  opts.Interval,
		snapshots: opts.Snapshots,
		events:    opts.Events,
		cmds:      make(chan command),
		done:      make(chan struct{}),
	}
	if d.ticks == nil {
		d.ticks = timeutil.RealClock{}
	}
	if d.interval <= 0 {
		d.interval = DefaultInterval
	}
	if d.snapshots == nil {
		d.snapshots = broadcast.NewHub[sim.Snapshot]()
	}
	if d.events == nil {
		d.events = broadcast.NewHub[sim.Event]()
	}
	clock.Observe(d.events.Publish)
	return d
}

// Snapshots is the hub that receives a snapshot after every tick of a
// running clock and after every mutating command.
func (d *Driver) Snapshots() *broadcast.Hub[sim.Snapshot] { return d.snapshots }

// Events is the hub that receives engine events as they happen.
func (d *Driver) Events() *broadcast.Hub[sim.Event] { return d.events }

// Params returns the parameters the clock was built with.
func (d *Driver) Params() sim.Params { return d.params }

// Interval returns the tick period.
func (d *Driver) Interval() time.Duration { return d.interval }

// Run ticks the clock and executes commands until ctx is done. It must be
// called exactly once.
func (d *Driver) Run(ctx context.Context) error {
	ticker := d.ticks.NewTicker(d.interval)
	defer ticker.Stop()
	defer close(d.done)

	monitoring.Logf("simulation driver started (interval=%s)", d.interval)
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("simulation driver stopped: %v", ctx.Err())
			return ctx.Err()

		case <-ticker.C():
			if !d.clock.Snapshot().Running {
				continue
			}
			d.snapshots.Publish(d.clock.Tick())

		case cmd := <-d.cmds:
			snap, err := cmd.apply(d.clock)
			if err == nil && cmd.mutates {
				d.snapshots.Publish(snap)
			}
			cmd.reply <- result{snap: snap, err: err}
		}
	}
}

func (d *Driver) do(ctx context.Context, cmd command) (sim.Snapshot, error) {
	cmd.reply = make(chan result, 1)
	select {
	case d.cmds <- cmd:
	case <-d.done:
		return sim.Snapshot{}, ErrStopped
	case <-ctx.Done():
		return sim.Snapshot{}, ctx.Err()
	}

	// The loop always replies once it has accepted a command.
	res := <-cmd.reply
	if res.err != nil {
		monitoring.Logf("simulation command %s failed: %v", cmd.name, res.err)
	}
	return res.snap, res.err
}

func mutator(name string, f func(*sim.Clock) sim.Snapshot) command {
	return command{
		name:    name,
		mutates: true,
		apply:   func(c *sim.Clock) (sim.Snapshot, error) { return f(c), nil },
	}
}

// Start lets the clock advance on the next tick.
func (d *Driver) Start(ctx context.Context) (sim.Snapshot, error) {
	return d.do(ctx, mutator("start", (*sim.Clock).Start))
}

// Stop freezes the clock.
func (d *Driver) Stop(ctx context.Context) (sim.Snapshot, error) {
	return d.do(ctx, mutator("stop", (*sim.Clock).Stop))
}

// Reset restores the clock to its initial state, keeping the speed setting.
func (d *Driver) Reset(ctx context.Context) (sim.Snapshot, error) {
	return d.do(ctx, mutator("reset", (*sim.Clock).Reset))
}

// SetSpeed changes the speed multiplier. It returns an error wrapping
// sim.ErrInvalidArgument for negative or non-finite values.
func (d *Driver) SetSpeed(ctx context.Context, v float64) (sim.Snapshot, error) {
	return d.do(ctx, command{
		name:    "set-speed",
		mutates: true,
		apply:   func(c *sim.Clock) (sim.Snapshot, error) { return c.SetSpeed(v) },
	})
}

// Snapshot returns the current state without advancing the clock.
func (d *Driver) Snapshot(ctx context.Context) (sim.Snapshot, error) {
	return d.do(ctx, command{
		name:  "snapshot",
		apply: func(c *sim.Clock) (sim.Snapshot, error) { return c.Snapshot(), nil },
	})
}
