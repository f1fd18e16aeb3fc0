// Package link models the dashboard's broker connectivity indicator. The
// connection is simulated: toggling it never touches the network and never
// affects the simulation state.
package link

import (
	"sync"
	"time"

	"github.com/banshee-data/proximity.report/internal/timeutil"
)

// Status is the externally visible link state.
type Status struct {
	Connected bool      `json:"connected"`
	Broker    string    `json:"broker"`
	Topic     string    `json:"topic"`
	Since     time.Time `json:"since"`
	Toggles   int       `json:"toggles"`
}

// Link is safe for concurrent use.
type Link struct {
	broker   string
	topic    string
	clock    timeutil.Clock
	onChange func(Status)

	mu     sync.Mutex
	status Status
}

// Option configures a Link.
type Option func(*Link)

// WithClock sets the clock used to stamp transitions.
func WithClock(c timeutil.Clock) Option {
	return func(l *Link) { l.clock = c }
}

// WithOnChange registers a callback run after every effective transition.
func WithOnChange(f func(Status)) Option {
	return func(l *Link) { l.onChange = f }
}

// New returns a disconnected link for broker and topic.
func New(broker, topic string, opts ...Option) *Link {
	l := &Link{broker: broker, topic: topic, clock: timeutil.RealClock{}}
	for _, o := range opts {
		o(l)
	}
	l.status = Status{Broker: broker, Topic: topic, Since: l.clock.Now()}
	return l
}

// Connect marks the link connected. Connecting an already connected link is
// a no-op and does not notify.
func (l *Link) Connect() Status { return l.set(true) }

// Disconnect marks the link disconnected.
func (l *Link) Disconnect() Status { return l.set(false) }

// Status returns the current state.
func (l *Link) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

func (l *Link) set(connected bool) Status {
	l.mu.Lock()
	if l.status.Connected == connected {
		s := l.status
		l.mu.Unlock()
		return s
	}
	l.status.Connected = connected
	l.status.Since = l.clock.Now()
	l.status.Toggles++
	s := l.status
	l.mu.Unlock()

	if l.onChange != nil {
		l.onChange(s)
	}
	return s
}
