// Package sim implements the simulated distance sensor: a fixed-tick clock that
// advances the gap between a vehicle and an obstacle and derives collision
// metrics from it.
package sim

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidArgument is returned when a caller passes a value the engine
// cannot accept. State is never modified when it is returned.
var ErrInvalidArgument = errors.New("invalid argument")

// MinDistanceSentinel is the initial value of Snapshot.MinDistanceObserved
// before any distance has been observed.
const MinDistanceSentinel = 999.0

// Params configures a Clock. Zero values are not defaults; use DefaultParams.
type Params struct {
	MaxDistance        float64 // upper clamp for Distance
	CollisionThreshold float64 // Distance at or below this is a collision
	InitialDistance    float64
	InitialSpeed       float64
	BaseStep           float64 // distance moved per tick at speed 1
	LateralJitter      float64 // max Position drift per tick, percentage points
	Seed               uint64
}

// DefaultParams returns the parameters used by the demo dashboard.
func DefaultParams() Params {
	return Params{
		MaxDistance:        100,
		CollisionThreshold: 10,
		InitialDistance:    100,
		InitialSpeed:       1,
		BaseStep:           5,
		LateralJitter:      4,
		Seed:               1,
	}
}

// Validate checks that the parameters describe a usable simulation.
func (p Params) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"max distance", p.MaxDistance},
		{"collision threshold", p.CollisionThreshold},
		{"initial distance", p.InitialDistance},
		{"initial speed", p.InitialSpeed},
		{"base step", p.BaseStep},
		{"lateral jitter", p.LateralJitter},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalidArgument, f.name, f.v)
		}
		if f.v < 0 {
			return fmt.Errorf("%w: %s must be non-negative, got %v", ErrInvalidArgument, f.name, f.v)
		}
	}
	if p.MaxDistance == 0 {
		return fmt.Errorf("%w: max distance must be positive", ErrInvalidArgument)
	}
	if p.CollisionThreshold >= p.MaxDistance {
		return fmt.Errorf("%w: collision threshold %v must be below max distance %v",
			ErrInvalidArgument, p.CollisionThreshold, p.MaxDistance)
	}
	if p.InitialDistance > p.MaxDistance {
		return fmt.Errorf("%w: initial distance %v exceeds max distance %v",
			ErrInvalidArgument, p.InitialDistance, p.MaxDistance)
	}
	if p.LateralJitter > 100 {
		return fmt.Errorf("%w: lateral jitter %v exceeds 100", ErrInvalidArgument, p.LateralJitter)
	}
	return nil
}
