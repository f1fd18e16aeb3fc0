package sim

import (
	"fmt"
	"math"
)

const initialPosition = 50.0

// Clock owns the simulation state and advances it one tick at a time.
//
// Clock does no locking. It must be driven by a single goroutine; concurrent
// hosts serialise access through an owner such as driver.Driver.
type Clock struct {
	params    Params
	motion    Motion
	state     Snapshot
	observers []Observer
}

// Option customises a Clock at construction.
type Option func(*Clock)

// WithMotion replaces the default BouncingMotion.
func WithMotion(m Motion) Option {
	return func(c *Clock) { c.motion = m }
}

// WithObserver registers an observer before the clock emits anything.
func WithObserver(o Observer) Option {
	return func(c *Clock) { c.observers = append(c.observers, o) }
}

// NewClock validates p and returns a stopped clock in its initial state.
func NewClock(p Params, opts ...Option) (*Clock, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	c := &Clock{params: p}
	for _, opt := range opts {
		opt(c)
	}
	if c.motion == nil {
		c.motion = NewBouncingMotion(p)
	}
	c.state = c.initialState(p.InitialSpeed)
	return c, nil
}

func (c *Clock) initialState(speed float64) Snapshot {
	return Snapshot{
		Position:            initialPosition,
		Distance:            c.params.InitialDistance,
		Speed:               speed,
		MinDistanceObserved: MinDistanceSentinel,
	}
}

// Params returns the parameters the clock was built with.
func (c *Clock) Params() Params { return c.params }

// Observe registers o to receive every subsequent event.
func (c *Clock) Observe(o Observer) {
	c.observers = append(c.observers, o)
}

func (c *Clock) emit(kind EventKind) {
	if len(c.observers) == 0 {
		return
	}
	ev := Event{Kind: kind, Tick: c.state.ElapsedSeconds, State: c.state}
	for _, o := range c.observers {
		o(ev)
	}
}

// Snapshot returns the current state without advancing time.
func (c *Clock) Snapshot() Snapshot { return c.state }

// Start lets the clock advance. Calling it on a running clock does nothing.
func (c *Clock) Start() Snapshot {
	if !c.state.Running {
		c.state.Running = true
		c.emit(EventStarted)
	}
	return c.state
}

// Stop freezes the clock. Calling it on a stopped clock does nothing.
func (c *Clock) Stop() Snapshot {
	if c.state.Running {
		c.state.Running = false
		c.emit(EventStopped)
	}
	return c.state
}

// Reset returns every field to its initial value except the speed setting,
// which is kept. The clock is left stopped.
func (c *Clock) Reset() Snapshot {
	c.motion.Reset()
	c.state = c.initialState(c.state.Speed)
	c.emit(EventReset)
	return c.state
}

// SetSpeed changes the speed multiplier. Negative, NaN and infinite values
// are rejected with ErrInvalidArgument and leave the state untouched.
func (c *Clock) SetSpeed(v float64) (Snapshot, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return c.state, fmt.Errorf("%w: speed must be a non-negative number, got %v", ErrInvalidArgument, v)
	}
	c.state.Speed = v
	if v > c.state.MaxSpeedObserved {
		c.state.MaxSpeedObserved = v
	}
	c.emit(EventSpeedChanged)
	return c.state, nil
}

// Tick advances the simulation by one step. A stopped clock returns its
// snapshot unchanged.
func (c *Clock) Tick() Snapshot {
	s := &c.state
	if !s.Running {
		return *s
	}

	k := c.motion.Advance(Kinematics{Position: s.Position, Distance: s.Distance}, s.Speed)
	s.Position = clamp(k.Position, 0, 100)
	s.Distance = clamp(k.Distance, 0, c.params.MaxDistance)

	wasColliding := s.Colliding
	s.Colliding = s.Distance <= c.params.CollisionThreshold
	onset := s.Colliding && !wasColliding
	if onset {
		s.CollisionCount++
	}

	if s.Distance < s.MinDistanceObserved {
		s.MinDistanceObserved = s.Distance
	}
	if s.Speed > s.MaxSpeedObserved {
		s.MaxSpeedObserved = s.Speed
	}

	s.ElapsedSeconds++
	s.CollisionRatePerMinute = collisionRate(s.CollisionCount, s.ElapsedSeconds)

	if onset {
		c.emit(EventCollisionOnset)
	}
	return *s
}
