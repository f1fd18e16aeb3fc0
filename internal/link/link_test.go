package link

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/proximity.report/internal/timeutil"
)

func TestLink_Toggles(t *testing.T) {
	start := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	var changes []Status
	l := New("localhost:1883", "proximity/collision",
		WithClock(clock),
		WithOnChange(func(s Status) { changes = append(changes, s) }))

	s := l.Status()
	assert.False(t, s.Connected)
	assert.Equal(t, "localhost:1883", s.Broker)
	assert.Equal(t, "proximity/collision", s.Topic)
	assert.Equal(t, start, s.Since)

	clock.Set(start.Add(5 * time.Second))
	s = l.Connect()
	assert.True(t, s.Connected)
	assert.Equal(t, start.Add(5*time.Second), s.Since)

	clock.Set(start.Add(9 * time.Second))
	l.Connect() // already connected
	assert.Equal(t, start.Add(5*time.Second), l.Status().Since)

	s = l.Disconnect()
	assert.False(t, s.Connected)
	assert.Equal(t, 2, s.Toggles)

	assert.Len(t, changes, 2)
	assert.True(t, changes[0].Connected)
	assert.False(t, changes[1].Connected)
}

func TestLink_DisconnectWhenIdleIsNoop(t *testing.T) {
	calls := 0
	l := New("b", "t", WithOnChange(func(Status) { calls++ }))
	l.Disconnect()
	assert.Zero(t, calls)
	assert.Zero(t, l.Status().Toggles)
}
