package sim

import "math/rand/v2"

// Kinematics is the part of the state a Motion is allowed to change.
type Kinematics struct {
	Position float64
	Distance float64
}

// Motion produces the next kinematic state for one tick. Implementations must
// be deterministic given their construction arguments, and Reset must return
// them to that initial state.
type Motion interface {
	Advance(prev Kinematics, speed float64) Kinematics
	Reset()
}

// BouncingMotion moves the vehicle towards the obstacle at BaseStep*speed per
// tick until the gap closes, then backs away until MaxDistance, and repeats.
// The lateral position drifts by a bounded random walk.
type BouncingMotion struct {
	maxDistance float64
	step        float64
	jitter      float64
	seed        uint64

	receding bool
	rng      *rand.Rand
}

// NewBouncingMotion builds the default motion profile from p.
func NewBouncingMotion(p Params) *BouncingMotion {
	m := &BouncingMotion{
		maxDistance: p.MaxDistance,
		step:        p.BaseStep,
		jitter:      p.LateralJitter,
		seed:        p.Seed,
	}
	m.Reset()
	return m
}

// Reset re-seeds the generator and points the vehicle at the obstacle again.
func (m *BouncingMotion) Reset() {
	m.receding = false
	m.rng = rand.New(rand.NewPCG(m.seed, m.seed^0x9e3779b97f4a7c15))
}

func (m *BouncingMotion) Advance(prev Kinematics, speed float64) Kinematics {
	next := prev
	delta := m.step * speed
	if m.receding {
		next.Distance += delta
		if next.Distance >= m.maxDistance {
			next.Distance = m.maxDistance
			m.receding = false
		}
	} else {
		next.Distance -= delta
		if next.Distance <= 0 {
			next.Distance = 0
			m.receding = true
		}
	}

	if m.jitter > 0 {
		next.Position = clamp(prev.Position+(m.rng.Float64()*2-1)*m.jitter, 0, 100)
	}
	return next
}

// ScriptedMotion replays a fixed sequence of distances, cycling when it runs
// out. Position is left unchanged.
type ScriptedMotion struct {
	distances []float64
	next      int
}

// NewScriptedMotion copies distances so later changes by the caller do not
// leak into the simulation.
func NewScriptedMotion(distances ...float64) *ScriptedMotion {
	return &ScriptedMotion{distances: append([]float64(nil), distances...)}
}

func (m *ScriptedMotion) Advance(prev Kinematics, _ float64) Kinematics {
	if len(m.distances) == 0 {
		return prev
	}
	next := prev
	next.Distance = m.distances[m.next%len(m.distances)]
	m.next++
	return next
}

func (m *ScriptedMotion) Reset() { m.next = 0 }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
