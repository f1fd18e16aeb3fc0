// Package stats derives dashboard statistics from the stream of simulation
// snapshots: a bounded history for charts, summary figures and the
// collision-rate alert.
package stats

import (
	"context"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/proximity.report/internal/sim"
)

// Options configures a Tracker.
type Options struct {
	HistoryCapacity int // snapshots kept for charts
	AlertThreshold  int // alert when more onsets than this fall inside the window
	AlertWindow     int // window length in ticks
	OnAlert         func(Alert)
}

// Alert describes a collision-rate alert. It is raised once per episode: the
// rate must drop back to the threshold before it can fire again.
type Alert struct {
	Tick       int `json:"tick"`
	Collisions int `json:"collisions"`
	Window     int `json:"window"`
	Threshold  int `json:"threshold"`
}

// Summary is the statistics widget payload.
type Summary struct {
	Samples          int     `json:"samples"`
	ElapsedSeconds   int     `json:"elapsed_seconds"`
	MeanDistance     float64 `json:"mean_distance"`
	StdDevDistance   float64 `json:"stddev_distance"`
	MeanSpeed        float64 `json:"mean_speed"`
	MinDistance      float64 `json:"min_distance"`
	MaxSpeed         float64 `json:"max_speed"`
	CollisionCount   int     `json:"collision_count"`
	RatePerMinute    float64 `json:"rate_per_minute"`
	RatePerHour      float64 `json:"rate_per_hour"`
	RecentCollisions int     `json:"recent_collisions"`
	AlertActive      bool    `json:"alert_active"`

	// Onset ticks of the first and last collision of the current run, 0
	// before any collision. MeanCollisionInterval is the mean gap in ticks
	// between consecutive onsets, 0 with fewer than two.
	FirstCollisionTick    int     `json:"first_collision_tick"`
	LastCollisionTick     int     `json:"last_collision_tick"`
	MeanCollisionInterval float64 `json:"mean_collision_interval"`
}

// Tracker is safe for concurrent use.
type Tracker struct {
	opts Options

	mu          sync.Mutex
	history     []sim.Snapshot
	onsets      []int // onset ticks within the alert window
	runOnsets   []int // every onset tick of the current run
	last        sim.Snapshot
	seen        bool
	alertActive bool
}

// New returns a Tracker. Non-positive capacities and windows are raised to 1.
func New(opts Options) *Tracker {
	if opts.HistoryCapacity < 1 {
		opts.HistoryCapacity = 1
	}
	if opts.AlertWindow < 1 {
		opts.AlertWindow = 1
	}
	return &Tracker{
		opts:    opts,
		history: make([]sim.Snapshot, 0, opts.HistoryCapacity),
	}
}

// Observe folds s into the statistics. Snapshots that do not advance time
// (commands such as a speed change) update the latest state only. A snapshot
// at elapsed zero clears history and alert state, and so does any snapshot
// whose elapsed time or collision count went backwards, since that can only
// follow a reset whose own snapshot was never delivered.
func (t *Tracker) Observe(s sim.Snapshot) {
	alert, fire := t.observe(s)
	if fire && t.opts.OnAlert != nil {
		t.opts.OnAlert(alert)
	}
}

func (t *Tracker) observe(s sim.Snapshot) (Alert, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s.ElapsedSeconds == 0 {
		t.clear()
		t.last, t.seen = s, true
		return Alert{}, false
	}
	if t.seen && (s.ElapsedSeconds < t.last.ElapsedSeconds || s.CollisionCount < t.last.CollisionCount) {
		t.clear()
	}
	if t.seen && s.ElapsedSeconds == t.last.ElapsedSeconds {
		t.last = s
		return Alert{}, false
	}

	if len(t.history) == t.opts.HistoryCapacity {
		copy(t.history, t.history[1:])
		t.history = t.history[:len(t.history)-1]
	}
	t.history = append(t.history, s)

	for n := t.last.CollisionCount; n < s.CollisionCount; n++ {
		t.onsets = append(t.onsets, s.ElapsedSeconds)
		t.runOnsets = append(t.runOnsets, s.ElapsedSeconds)
	}
	t.last, t.seen = s, true

	cutoff := s.ElapsedSeconds - t.opts.AlertWindow
	i := 0
	for i < len(t.onsets) && t.onsets[i] <= cutoff {
		i++
	}
	t.onsets = t.onsets[i:]

	recent := len(t.onsets)
	if recent <= t.opts.AlertThreshold {
		t.alertActive = false
		return Alert{}, false
	}
	if t.alertActive {
		return Alert{}, false
	}
	t.alertActive = true
	return Alert{
		Tick:       s.ElapsedSeconds,
		Collisions: recent,
		Window:     t.opts.AlertWindow,
		Threshold:  t.opts.AlertThreshold,
	}, true
}

// clear forgets the current run. The caller holds t.mu.
func (t *Tracker) clear() {
	t.history = t.history[:0]
	t.onsets = t.onsets[:0]
	t.runOnsets = t.runOnsets[:0]
	t.alertActive = false
	t.last, t.seen = sim.Snapshot{}, false
}

// History returns the retained ticked snapshots, oldest first.
func (t *Tracker) History() []sim.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sim.Snapshot(nil), t.history...)
}

// Summary computes the statistics over the retained history and the latest
// snapshot.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	sum := Summary{
		Samples:          len(t.history),
		ElapsedSeconds:   t.last.ElapsedSeconds,
		MinDistance:      t.last.MinDistanceObserved,
		MaxSpeed:         t.last.MaxSpeedObserved,
		CollisionCount:   t.last.CollisionCount,
		RatePerMinute:    t.last.CollisionRatePerMinute,
		RatePerHour:      t.last.CollisionRatePerHour(),
		RecentCollisions: len(t.onsets),
		AlertActive:      t.alertActive,
	}
	if n := len(t.runOnsets); n > 0 {
		sum.FirstCollisionTick = t.runOnsets[0]
		sum.LastCollisionTick = t.runOnsets[n-1]
	}
	if len(t.runOnsets) > 1 {
		gaps := make([]float64, len(t.runOnsets)-1)
		for i := range gaps {
			gaps[i] = float64(t.runOnsets[i+1] - t.runOnsets[i])
		}
		sum.MeanCollisionInterval = stat.Mean(gaps, nil)
	}
	if len(t.history) == 0 {
		return sum
	}

	distances := make([]float64, len(t.history))
	speeds := make([]float64, len(t.history))
	for i, s := range t.history {
		distances[i] = s.Distance
		speeds[i] = s.Speed
	}
	if len(distances) > 1 {
		sum.MeanDistance, sum.StdDevDistance = stat.MeanStdDev(distances, nil)
	} else {
		sum.MeanDistance = distances[0]
	}
	sum.MeanSpeed = stat.Mean(speeds, nil)
	return sum
}

// Consume observes every snapshot read from snaps until the channel closes
// or ctx is done.
func (t *Tracker) Consume(ctx context.Context, snaps <-chan sim.Snapshot) error {
	for {
		select {
		case s, ok := <-snaps:
			if !ok {
				return nil
			}
			t.Observe(s)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
