package sim

// EventKind identifies a discrete state transition of the clock.
type EventKind string

const (
	EventStarted        EventKind = "started"
	EventStopped        EventKind = "stopped"
	EventReset          EventKind = "reset"
	EventCollisionOnset EventKind = "collision_onset"
	EventSpeedChanged   EventKind = "speed_changed"
)

// Event is emitted synchronously at the moment of a transition. State is the
// snapshot taken immediately after the transition was applied.
type Event struct {
	Kind  EventKind `json:"kind"`
	Tick  int       `json:"tick"`
	State Snapshot  `json:"state"`
}

// Observer receives events. It runs on the goroutine that mutated the clock
// and must not call back into it.
type Observer func(Event)
