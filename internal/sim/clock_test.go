package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClock(t *testing.T, opts ...Option) *Clock {
	t.Helper()
	c, err := NewClock(DefaultParams(), opts...)
	require.NoError(t, err)
	return c
}

func TestNewClock_InitialState(t *testing.T) {
	c := newTestClock(t)

	want := Snapshot{
		Position:            50,
		Distance:            100,
		Speed:               1,
		MinDistanceObserved: MinDistanceSentinel,
	}
	if diff := cmp.Diff(want, c.Snapshot()); diff != "" {
		t.Errorf("initial snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestNewClock_RejectsInvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"negative step", func(p *Params) { p.BaseStep = -1 }},
		{"nan threshold", func(p *Params) { p.CollisionThreshold = math.NaN() }},
		{"zero max distance", func(p *Params) { p.MaxDistance = 0 }},
		{"threshold above max", func(p *Params) { p.CollisionThreshold = 150 }},
		{"initial beyond max", func(p *Params) { p.InitialDistance = 101 }},
		{"jitter over 100", func(p *Params) { p.LateralJitter = 101 }},
		{"infinite speed", func(p *Params) { p.InitialSpeed = math.Inf(1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			_, err := NewClock(p)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestParamsValidate_ReportsFirstBadFieldInOrder(t *testing.T) {
	p := DefaultParams()
	p.BaseStep = -1
	p.LateralJitter = math.NaN()
	p.InitialSpeed = -3

	for i := 0; i < 20; i++ {
		err := p.Validate()
		require.ErrorIs(t, err, ErrInvalidArgument)
		assert.EqualError(t, err, "invalid argument: initial speed must be non-negative, got -3")
	}
}

func TestSnapshot_ObservedMaximaCatchUpOnFirstTick(t *testing.T) {
	c := newTestClock(t)
	_, err := c.SetSpeed(1.5)
	require.NoError(t, err)

	s := c.Reset()
	assert.Equal(t, 1.5, s.Speed)
	assert.Equal(t, 0.0, s.MaxSpeedObserved, "reset clears the maximum until the next observation")
	assert.Equal(t, MinDistanceSentinel, s.MinDistanceObserved)

	c.Start()
	s = c.Tick()
	assert.Equal(t, 1.5, s.MaxSpeedObserved)
	assert.Equal(t, s.Distance, s.MinDistanceObserved)
}

func TestTick_ElapsedCountsTicksWhileRunning(t *testing.T) {
	for _, n := range []int{0, 1, 7, 45, 200} {
		c := newTestClock(t)
		c.Start()
		var s Snapshot
		for i := 0; i < n; i++ {
			s = c.Tick()
		}
		if n > 0 {
			assert.Equal(t, n, s.ElapsedSeconds)
		}
		assert.Equal(t, n, c.Snapshot().ElapsedSeconds)
	}
}

func TestTick_StoppedClockIsFrozen(t *testing.T) {
	c := newTestClock(t)
	c.Start()
	c.Tick()
	c.Tick()
	c.Stop()

	before := c.Snapshot()
	for i := 0; i < 10; i++ {
		got := c.Tick()
		if diff := cmp.Diff(before, got); diff != "" {
			t.Fatalf("tick on stopped clock changed state (-want +got):\n%s", diff)
		}
	}
}

func TestTick_ThirtySecondRun(t *testing.T) {
	c := newTestClock(t)
	c.Start()
	for i := 0; i < 30; i++ {
		c.Tick()
	}

	s := c.Snapshot()
	assert.Equal(t, 30, s.ElapsedSeconds)
	// The gap closes at 5 per tick and enters the collision zone on tick 18.
	assert.Equal(t, 1, s.CollisionCount)
	assert.InDelta(t, float64(s.CollisionCount*2), s.CollisionRatePerMinute, 1e-9)
	assert.InDelta(t, 2*60, s.CollisionRatePerHour(), 1e-6)
}

func TestTick_CollisionCountIsEdgeTriggered(t *testing.T) {
	// below for 3 ticks, above for 2, below again for 2
	m := NewScriptedMotion(5, 4, 3, 50, 60, 8, 2)
	c := newTestClock(t, WithMotion(m))
	c.Start()

	var counts []int
	for i := 0; i < 7; i++ {
		counts = append(counts, c.Tick().CollisionCount)
	}

	if diff := cmp.Diff([]int{1, 1, 1, 1, 1, 2, 2}, counts); diff != "" {
		t.Errorf("collision counts mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, c.Snapshot().Colliding)
}

func TestTick_ThresholdIsInclusive(t *testing.T) {
	c := newTestClock(t, WithMotion(NewScriptedMotion(10, 10.0001, 10)))
	c.Start()

	assert.True(t, c.Tick().Colliding)
	assert.False(t, c.Tick().Colliding)
	s := c.Tick()
	assert.True(t, s.Colliding)
	assert.Equal(t, 2, s.CollisionCount)
}

func TestTick_DistanceStaysWithinBounds(t *testing.T) {
	c := newTestClock(t, WithMotion(NewScriptedMotion(-20, 250, 40)))
	c.Start()

	assert.Equal(t, 0.0, c.Tick().Distance)
	assert.Equal(t, 100.0, c.Tick().Distance)
	assert.Equal(t, 40.0, c.Tick().Distance)
}

func TestTick_HighSpeedBouncesWithinBounds(t *testing.T) {
	c := newTestClock(t)
	_, err := c.SetSpeed(37)
	require.NoError(t, err)
	c.Start()

	for i := 0; i < 500; i++ {
		s := c.Tick()
		require.GreaterOrEqual(t, s.Distance, 0.0)
		require.LessOrEqual(t, s.Distance, 100.0)
		require.GreaterOrEqual(t, s.Position, 0.0)
		require.LessOrEqual(t, s.Position, 100.0)
	}
}

func TestTick_ObservedExtremesBoundEveryObservation(t *testing.T) {
	c := newTestClock(t)
	c.Start()

	speeds := []float64{1, 0.5, 2, 1.2, 0, 1.8}
	maxSet := 0.0
	for i := 0; i < 240; i++ {
		if i%40 == 0 {
			v := speeds[(i/40)%len(speeds)]
			s, err := c.SetSpeed(v)
			require.NoError(t, err)
			maxSet = math.Max(maxSet, v)
			assert.GreaterOrEqual(t, s.MaxSpeedObserved, s.Speed)
		}
		s := c.Tick()
		assert.LessOrEqual(t, s.MinDistanceObserved, s.Distance)
		assert.GreaterOrEqual(t, s.MaxSpeedObserved, s.Speed)
	}
	assert.Equal(t, maxSet, c.Snapshot().MaxSpeedObserved)
	assert.Equal(t, 0.0, c.Snapshot().MinDistanceObserved)
}

func TestStartStop_Idempotent(t *testing.T) {
	var kinds []EventKind
	c := newTestClock(t, WithObserver(func(e Event) { kinds = append(kinds, e.Kind) }))

	once := c.Start()
	twice := c.Start()
	assert.True(t, once.Running)
	assert.Equal(t, once, twice)

	c.Stop()
	s := c.Stop()
	assert.False(t, s.Running)

	if diff := cmp.Diff([]EventKind{EventStarted, EventStopped}, kinds); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestReset_RestoresDefaultsAndKeepsSpeed(t *testing.T) {
	c := newTestClock(t)
	_, err := c.SetSpeed(1.5)
	require.NoError(t, err)
	c.Start()
	for i := 0; i < 50; i++ {
		c.Tick()
	}
	require.NotZero(t, c.Snapshot().CollisionCount)

	got := c.Reset()
	want := Snapshot{
		Position:            50,
		Distance:            100,
		Speed:               1.5,
		MinDistanceObserved: MinDistanceSentinel,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("reset snapshot mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, got, c.Snapshot())
}

func TestReset_ReplaysTheSameRun(t *testing.T) {
	c := newTestClock(t)
	run := func() []Snapshot {
		c.Start()
		var out []Snapshot
		for i := 0; i < 60; i++ {
			out = append(out, c.Tick())
		}
		return out
	}

	first := run()
	c.Reset()
	second := run()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("run after reset differs (-first +second):\n%s", diff)
	}
}

func TestClock_SameSeedSameRun(t *testing.T) {
	a := newTestClock(t)
	b := newTestClock(t)
	a.Start()
	b.Start()
	for i := 0; i < 100; i++ {
		require.Equal(t, a.Tick(), b.Tick())
	}

	p := DefaultParams()
	p.Seed = 42
	d, err := NewClock(p)
	require.NoError(t, err)
	d.Start()
	a.Reset()
	a.Start()
	differs := false
	for i := 0; i < 20; i++ {
		if a.Tick().Position != d.Tick().Position {
			differs = true
		}
	}
	assert.True(t, differs, "different seeds should produce different lateral drift")
}

func TestSetSpeed_RejectsInvalidValuesWithoutMutation(t *testing.T) {
	c := newTestClock(t)
	c.Start()
	c.Tick()

	for _, v := range []float64{-1, -0.0001, math.NaN(), math.Inf(1), math.Inf(-1)} {
		before := c.Snapshot()
		s, err := c.SetSpeed(v)
		if !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("SetSpeed(%v) error = %v, want ErrInvalidArgument", v, err)
		}
		if diff := cmp.Diff(before, c.Snapshot()); diff != "" {
			t.Errorf("SetSpeed(%v) mutated state (-before +after):\n%s", v, diff)
		}
		assert.Equal(t, before, s)
	}
}

func TestSetSpeed_ZeroHoldsPosition(t *testing.T) {
	c := newTestClock(t)
	_, err := c.SetSpeed(0)
	require.NoError(t, err)
	c.Start()

	s := c.Tick()
	assert.Equal(t, 100.0, s.Distance)
	assert.Equal(t, 1, s.ElapsedSeconds)
}

func TestObserver_CollisionOnsetCarriesState(t *testing.T) {
	var events []Event
	c := newTestClock(t, WithMotion(NewScriptedMotion(50, 5, 5, 50, 5)))
	c.Observe(func(e Event) { events = append(events, e) })
	c.Start()
	for i := 0; i < 5; i++ {
		c.Tick()
	}

	var onsets []Event
	for _, e := range events {
		if e.Kind == EventCollisionOnset {
			onsets = append(onsets, e)
		}
	}
	require.Len(t, onsets, 2)
	assert.Equal(t, 2, onsets[0].Tick)
	assert.Equal(t, 1, onsets[0].State.CollisionCount)
	assert.Equal(t, 5, onsets[1].Tick)
	assert.Equal(t, 2, onsets[1].State.CollisionCount)
}

func TestObserver_ResetAndSpeedEvents(t *testing.T) {
	var kinds []EventKind
	c := newTestClock(t)
	c.Observe(func(e Event) { kinds = append(kinds, e.Kind) })

	_, _ = c.SetSpeed(-3)
	_, _ = c.SetSpeed(2)
	c.Reset()

	if diff := cmp.Diff([]EventKind{EventSpeedChanged, EventReset}, kinds); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}
