package sim

import "fmt"

// Snapshot is a copy of the simulation state at one point in time. It holds
// only values, so a Snapshot handed to a caller can never change underneath it.
//
// MinDistanceObserved and MaxSpeedObserved are only brought up to date after a
// Tick or SetSpeed. A fresh or reset clock reports the 999 sentinel and 0
// while Speed may already be non-zero; the first Tick catches them up.
type Snapshot struct {
	Position               float64 `json:"position"`
	Distance               float64 `json:"distance"`
	Speed                  float64 `json:"speed"`
	Running                bool    `json:"running"`
	Colliding              bool    `json:"colliding"`
	CollisionCount         int     `json:"collision_count"`
	MinDistanceObserved    float64 `json:"min_distance_observed"`
	MaxSpeedObserved       float64 `json:"max_speed_observed"`
	ElapsedSeconds         int     `json:"elapsed_seconds"`
	CollisionRatePerMinute float64 `json:"collision_rate_per_minute"`
}

// CollisionRatePerHour extrapolates the per-minute rate to an hour.
func (s Snapshot) CollisionRatePerHour() float64 {
	return s.CollisionRatePerMinute * 60
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"t=%ds distance=%.1f position=%.1f speed=%.2f colliding=%t collisions=%d rate=%.2f/min",
		s.ElapsedSeconds, s.Distance, s.Position, s.Speed, s.Colliding,
		s.CollisionCount, s.CollisionRatePerMinute,
	)
}

// collisionRate returns collisions per minute, defined as zero before the
// first tick.
func collisionRate(count, elapsed int) float64 {
	if elapsed == 0 {
		return 0
	}
	return float64(count) / float64(elapsed) * 60
}
