package journal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/proximity.report/internal/sim"
	"github.com/banshee-data/proximity.report/internal/stats"
	"github.com/banshee-data/proximity.report/internal/testutil"
	"github.com/banshee-data/proximity.report/internal/timeutil"
)

var epoch = time.Date(2025, time.June, 1, 9, 30, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	testutil.RunQuiet(m)
}

func openJournal(t *testing.T) (*Journal, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(epoch)
	j, err := Open(clock)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j, clock
}

func event(kind sim.EventKind, tick, collisions int) sim.Event {
	return sim.Event{
		Kind: kind,
		Tick: tick,
		State: sim.Snapshot{
			ElapsedSeconds: tick,
			CollisionCount: collisions,
			Distance:       8,
			Position:       50,
			Speed:          1,
		},
	}
}

func TestOpen_AppliesMigrations(t *testing.T) {
	j, _ := openJournal(t)

	version, dirty, err := j.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
}

func TestOpen_JournalsAreIsolated(t *testing.T) {
	a, _ := openJournal(t)
	b, _ := openJournal(t)

	require.NoError(t, a.Record(event(sim.EventStarted, 0, 0)))

	got, err := b.Events(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRecord_EventsNewestFirst(t *testing.T) {
	j, clock := openJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Record(event(sim.EventStarted, 0, 0)))
	clock.Advance(3 * time.Second)
	require.NoError(t, j.Record(event(sim.EventCollisionOnset, 3, 1)))

	got, err := j.Events(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, string(sim.EventCollisionOnset), got[0].Kind)
	assert.Equal(t, 3, got[0].Tick)
	assert.Equal(t, 1, got[0].CollisionCount)
	assert.Equal(t, 8.0, got[0].Distance)
	assert.Equal(t, epoch.Add(3*time.Second).UnixMilli(), got[0].RecordedAt)
	assert.Equal(t, string(sim.EventStarted), got[1].Kind)
	assert.Greater(t, got[0].ID, got[1].ID)

	limited, err := j.Events(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestCountSince_ScopedToCurrentRun(t *testing.T) {
	j, _ := openJournal(t)
	ctx := context.Background()

	for i, tick := range []int{5, 12, 30} {
		require.NoError(t, j.Record(event(sim.EventCollisionOnset, tick, i+1)))
	}
	n, err := j.CountSince(ctx, sim.EventCollisionOnset, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, j.Record(event(sim.EventReset, 0, 0)))
	assert.Equal(t, 2, j.Run())
	n, err = j.CountSince(ctx, sim.EventCollisionOnset, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = j.CountSince(ctx, sim.EventReset, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecordAlert(t *testing.T) {
	j, _ := openJournal(t)
	ctx := context.Background()

	require.NoError(t, j.RecordAlert(stats.Alert{Tick: 40, Collisions: 11, Window: 60, Threshold: 10}))
	n, err := j.AlertCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, j.Record(event(sim.EventReset, 0, 0)))
	n, err = j.AlertCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConsume(t *testing.T) {
	j, _ := openJournal(t)
	events := make(chan sim.Event, 3)
	events <- event(sim.EventStarted, 0, 0)
	events <- event(sim.EventSpeedChanged, 4, 0)
	close(events)

	require.NoError(t, j.Consume(context.Background(), events))
	got, err := j.Events(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, j.Consume(ctx, make(chan sim.Event)), context.Canceled)
}

func TestClose_RejectsFurtherWrites(t *testing.T) {
	j, err := Open(nil)
	require.NoError(t, err)
	require.NoError(t, j.Close())
	assert.Error(t, j.Record(event(sim.EventStarted, 0, 0)))
}

func TestAttachAdminRoutes(t *testing.T) {
	j, _ := openJournal(t)
	mux := http.NewServeMux()
	require.NoError(t, j.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/tailsql/", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.NotEqual(t, http.StatusNotFound, rec.Code)
}
