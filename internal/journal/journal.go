// Package journal records simulation events in an in-memory SQLite database
// so they can be queried from the API and inspected live through tailsql.
// Nothing is written to disk; the journal lives as long as the process.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/proximity.report/internal/monitoring"
	"github.com/banshee-data/proximity.report/internal/sim"
	"github.com/banshee-data/proximity.report/internal/stats"
	"github.com/banshee-data/proximity.report/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultLimit is used by Events when the caller passes a non-positive limit.
const DefaultLimit = 100

// Record is one journaled event.
type Record struct {
	ID             int64   `json:"id"`
	Run            int     `json:"run"`
	Kind           string  `json:"kind"`
	Tick           int     `json:"tick"`
	Distance       float64 `json:"distance"`
	Position       float64 `json:"position"`
	Speed          float64 `json:"speed"`
	CollisionCount int     `json:"collision_count"`
	RecordedAt     int64   `json:"recorded_at_unix_ms"`
}

// Journal is safe for concurrent use.
type Journal struct {
	db    *sql.DB
	name  string
	clock timeutil.Clock

	mu  sync.Mutex
	run int
}

// Open creates a fresh in-memory journal and applies the embedded schema
// migrations. A nil clock uses wall time.
func Open(clock timeutil.Clock) (*Journal, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	name := "journal-" + uuid.NewString()
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// A single connection keeps the shared in-memory database alive and
	// serialises writers.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db, name: name, clock: clock, run: 1}
	if err := j.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(j.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// migrateUp applies all pending migrations. The migrate instance is not
// closed because that would close the shared database handle.
func (j *Journal) migrateUp() error {
	m, err := j.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func (j *Journal) SchemaVersion() (uint, bool, error) {
	m, err := j.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// Run returns the current run number. Every reset starts a new run.
func (j *Journal) Run() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.run
}

// Record stores e. A reset event opens a new run and is stored as its first
// row.
func (j *Journal) Record(e sim.Event) error {
	j.mu.Lock()
	if e.Kind == sim.EventReset {
		j.run++
	}
	run := j.run
	j.mu.Unlock()

	s := e.State
	_, err := j.db.Exec(`
		INSERT INTO events (run, kind, tick, distance, position, speed, collision_count, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run, string(e.Kind), e.Tick, s.Distance, s.Position, s.Speed, s.CollisionCount,
		j.clock.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s event: %w", e.Kind, err)
	}
	return nil
}

// RecordAlert stores a collision-rate alert against the current run.
func (j *Journal) RecordAlert(a stats.Alert) error {
	_, err := j.db.Exec(`
		INSERT INTO alerts (run, tick, collisions, window_ticks, threshold, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		j.Run(), a.Tick, a.Collisions, a.Window, a.Threshold, j.clock.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record alert: %w", err)
	}
	return nil
}

// Events returns up to limit records, newest first.
func (j *Journal) Events(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT event_id, run, kind, tick, distance, position, speed, collision_count, recorded_at
		FROM events
		ORDER BY event_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Run, &r.Kind, &r.Tick, &r.Distance, &r.Position,
			&r.Speed, &r.CollisionCount, &r.RecordedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountSince counts events of kind in the current run whose tick is greater
// than tick.
func (j *Journal) CountSince(ctx context.Context, kind sim.EventKind, tick int) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE run = ? AND kind = ? AND tick > ?`,
		j.Run(), string(kind), tick,
	).Scan(&n)
	return n, err
}

// AlertCount returns how many alerts were raised in the current run.
func (j *Journal) AlertCount(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE run = ?`, j.Run()).Scan(&n)
	return n, err
}

// Consume records every event read from events until the channel closes or
// ctx is done. Write failures are logged and do not stop consumption.
func (j *Journal) Consume(ctx context.Context, events <-chan sim.Event) error {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if err := j.Record(e); err != nil {
				monitoring.Logf("journal: %v", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// AttachAdminRoutes mounts a tailsql console over the journal on the debug
// mux.
func (j *Journal) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+j.name, j.db, &tailsql.DBOptions{
		Label: "Event journal",
	})
	debug.Handle("tailsql/", "SQL live debugging of the event journal", tsql.NewMux())
	return nil
}

// Close releases the database. The in-memory contents are discarded.
func (j *Journal) Close() error {
	return j.db.Close()
}
