package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/banshee-data/proximity.report/internal/api"
	"github.com/banshee-data/proximity.report/internal/broadcast"
	"github.com/banshee-data/proximity.report/internal/config"
	"github.com/banshee-data/proximity.report/internal/console"
	"github.com/banshee-data/proximity.report/internal/driver"
	"github.com/banshee-data/proximity.report/internal/journal"
	"github.com/banshee-data/proximity.report/internal/link"
	"github.com/banshee-data/proximity.report/internal/monitoring"
	"github.com/banshee-data/proximity.report/internal/sim"
	"github.com/banshee-data/proximity.report/internal/stats"
	"github.com/banshee-data/proximity.report/internal/timeutil"
	"github.com/banshee-data/proximity.report/internal/units"
)

// hubBuffer is sized so that consumers keep up with bursts of commands.
const hubBuffer = 256

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the simulation in real time behind the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Usage:   "listen address",
				Value:   ":8080",
				EnvVars: []string{"PROXIMITY_LISTEN"},
			},
			&cli.BoolFlag{
				Name:  "autostart",
				Usage: "start the simulation as soon as the server is up",
			},
			&cli.Uint64Flag{
				Name:  "seed",
				Usage: "seed for the lateral jitter (overrides the config file)",
			},
			&cli.StringFlag{
				Name:  "units",
				Usage: "default display units (" + units.GetValidUnitsString() + ")",
				Value: units.CM,
			},
		},
		Action: runServe,
	}
}

// stack is the wired set of collaborators behind the API.
type stack struct {
	driver  *driver.Driver
	console *console.Console
	stats   *stats.Tracker
	journal *journal.Journal
	link    *link.Link
	handler http.Handler

	snapshotsID string
	snapshots   <-chan sim.Snapshot
	consoleID   string
	consoleCh   <-chan sim.Event
	journalID   string
	journalCh   <-chan sim.Event
}

// newStack builds every collaborator from cfg. Consumers are subscribed
// immediately so no event is missed before run starts them.
func newStack(cfg *config.Config, clock timeutil.Clock, displayUnits string) (*stack, error) {
	if !units.IsValid(displayUnits) {
		return nil, fmt.Errorf("%w: invalid units %q, expected one of %s",
			sim.ErrInvalidArgument, displayUnits, units.GetValidUnitsString())
	}
	c, err := sim.NewClock(cfg.SimParams())
	if err != nil {
		return nil, err
	}
	j, err := journal.Open(clock)
	if err != nil {
		return nil, err
	}

	s := &stack{journal: j}
	s.console = console.New(cfg.GetLogCapacity(), console.Options{Clock: clock})
	s.stats = stats.New(stats.Options{
		HistoryCapacity: cfg.GetHistoryCapacity(),
		AlertThreshold:  cfg.GetAlertThreshold(),
		AlertWindow:     cfg.GetAlertWindow(),
		OnAlert:         s.alert,
	})
	s.link = link.New(cfg.GetBroker(), cfg.GetTopic(),
		link.WithClock(clock),
		link.WithOnChange(s.linkChanged))
	s.driver = driver.New(c, driver.Options{
		Clock:     clock,
		Interval:  cfg.GetTickInterval(),
		Snapshots: broadcast.NewHubWithBuffer[sim.Snapshot](hubBuffer),
		Events:    broadcast.NewHubWithBuffer[sim.Event](hubBuffer),
	})

	s.snapshotsID, s.snapshots = s.driver.Snapshots().Subscribe()
	s.consoleID, s.consoleCh = s.driver.Events().Subscribe()
	s.journalID, s.journalCh = s.driver.Events().Subscribe()

	mux := api.NewServer(api.Deps{
		Driver:  s.driver,
		Console: s.console,
		Stats:   s.stats,
		Journal: s.journal,
		Link:    s.link,
		Units:   displayUnits,
	}).ServeMux()
	s.driver.Snapshots().AttachAdminRoutes(mux, "snapshots")
	s.driver.Events().AttachAdminRoutes(mux, "events")
	if err := s.journal.AttachAdminRoutes(mux); err != nil {
		j.Close()
		return nil, err
	}
	s.handler = api.LoggingMiddleware(mux)
	return s, nil
}

func (s *stack) alert(a stats.Alert) {
	s.console.Add(console.LevelAlert, "Collision rate alert: %d collisions in the last %ds (threshold %d)",
		a.Collisions, a.Window, a.Threshold)
	if err := s.journal.RecordAlert(a); err != nil {
		monitoring.Logf("failed to journal alert: %v", err)
	}
}

func (s *stack) linkChanged(st link.Status) {
	if st.Connected {
		s.console.Add(console.LevelInfo, "Connected to %s (topic %s)", st.Broker, st.Topic)
		return
	}
	s.console.Add(console.LevelWarn, "Disconnected from %s", st.Broker)
}

// run drives the simulation and its consumers until ctx is done.
func (s *stack) run(ctx context.Context) {
	var wg sync.WaitGroup
	spawn := func(name string, f func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f(); err != nil && !errors.Is(err, context.Canceled) {
				monitoring.Logf("%s routine failed: %v", name, err)
			}
			monitoring.Logf("%s routine terminated", name)
		}()
	}

	spawn("driver", func() error { return s.driver.Run(ctx) })
	spawn("console", func() error {
		defer s.driver.Events().Unsubscribe(s.consoleID)
		return s.console.Consume(ctx, s.consoleCh)
	})
	spawn("journal", func() error {
		defer s.driver.Events().Unsubscribe(s.journalID)
		return s.journal.Consume(ctx, s.journalCh)
	})
	spawn("stats", func() error {
		defer s.driver.Snapshots().Unsubscribe(s.snapshotsID)
		return s.stats.Consume(ctx, s.snapshots)
	})
	wg.Wait()
}

func (s *stack) close() error {
	if n, m := s.driver.Snapshots().Dropped(), s.driver.Events().Dropped(); n > 0 || m > 0 {
		monitoring.Logf("hub deliveries dropped on full buffers: %d snapshots, %d events", n, m)
	}
	s.driver.Snapshots().Close()
	s.driver.Events().Close()
	return s.journal.Close()
}

func runServe(c *cli.Context) error {
	cfg := loadedConfig(c)
	s, err := newStack(cfg, timeutil.RealClock{}, c.String("units"))
	if err != nil {
		return err
	}
	defer s.close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.run(ctx)
	}()

	if c.Bool("autostart") {
		if _, err := s.driver.Start(ctx); err != nil {
			monitoring.Logf("autostart failed: %v", err)
		}
	}

	server := &http.Server{
		Addr:    c.String("listen"),
		Handler: s.handler,
	}
	serveErr := make(chan error, 1)
	go func() {
		monitoring.Logf("listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	monitoring.Logf("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}

	wg.Wait()
	monitoring.Logf("Graceful shutdown complete")
	select {
	case err := <-serveErr:
		return fmt.Errorf("failed to start server: %w", err)
	default:
		return nil
	}
}
