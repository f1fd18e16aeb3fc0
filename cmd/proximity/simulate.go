package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/banshee-data/proximity.report/internal/config"
	"github.com/banshee-data/proximity.report/internal/console"
	"github.com/banshee-data/proximity.report/internal/fsutil"
	"github.com/banshee-data/proximity.report/internal/monitoring"
	"github.com/banshee-data/proximity.report/internal/security"
	"github.com/banshee-data/proximity.report/internal/sim"
	"github.com/banshee-data/proximity.report/internal/stats"
	"github.com/banshee-data/proximity.report/internal/units"
	"github.com/banshee-data/proximity.report/internal/version"
)

func simulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "run the simulation headless for a fixed number of ticks and print a summary",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "ticks",
				Usage: "number of ticks to simulate",
				Value: 60,
			},
			&cli.StringFlag{
				Name:  "script",
				Usage: "comma-separated distances (cm) to replay instead of the built-in motion",
			},
			&cli.Uint64Flag{
				Name:  "seed",
				Usage: "seed for the lateral jitter (overrides the config file)",
			},
			&cli.Float64Flag{
				Name:  "speed",
				Usage: "initial speed multiplier (overrides the config file)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print the summary as JSON",
			},
			&cli.BoolFlag{
				Name:  "log",
				Usage: "print the console log after the summary",
			},
			&cli.StringFlag{
				Name:  "timezone",
				Usage: "timezone for printed log times",
				Value: "UTC",
			},
			&cli.StringFlag{
				Name:  "report-dir",
				Usage: "also write the result as <label>.json under this directory (must be under the working or temp directory)",
			},
			&cli.StringFlag{
				Name:  "label",
				Usage: "report file label",
				Value: "run",
			},
		},
		Action: runSimulate,
	}
}

// simulation is the result of a headless run.
type simulation struct {
	Final   sim.Snapshot    `json:"final"`
	Summary stats.Summary   `json:"summary"`
	Alerts  []stats.Alert   `json:"alerts"`
	Log     []console.Entry `json:"log,omitempty"`
}

// report is the on-disk form of a headless run.
type report struct {
	Label   string     `json:"label"`
	Version string     `json:"version"`
	Params  sim.Params `json:"params"`
	Ticks   int        `json:"ticks"`
	simulation
}

// writeReport stores r as JSON in dir and returns the file path.
func writeReport(fsys fsutil.FileSystem, dir string, r report) (string, error) {
	path := filepath.Join(dir, security.SanitizeFilename(r.Label)+".json")
	if err := security.ValidateExportPath(path); err != nil {
		return "", fmt.Errorf("%w: %v", sim.ErrInvalidArgument, err)
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	if err := fsys.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

func parseScript(raw string) ([]float64, error) {
	var out []float64
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: script value %q is not a number", sim.ErrInvalidArgument, field)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty script", sim.ErrInvalidArgument)
	}
	return out, nil
}

// simulate runs the engine for ticks steps without wall-clock pacing.
func simulate(cfg *config.Config, ticks int, script []float64, logger *logrus.Logger) (simulation, error) {
	if ticks < 0 {
		return simulation{}, fmt.Errorf("%w: ticks must be non-negative", sim.ErrInvalidArgument)
	}
	var opts []sim.Option
	if len(script) > 0 {
		opts = append(opts, sim.WithMotion(sim.NewScriptedMotion(script...)))
	}
	clock, err := sim.NewClock(cfg.SimParams(), opts...)
	if err != nil {
		return simulation{}, err
	}

	var result simulation
	cons := console.New(cfg.GetLogCapacity(), console.Options{Logger: logger})
	tracker := stats.New(stats.Options{
		HistoryCapacity: cfg.GetHistoryCapacity(),
		AlertThreshold:  cfg.GetAlertThreshold(),
		AlertWindow:     cfg.GetAlertWindow(),
		OnAlert: func(a stats.Alert) {
			result.Alerts = append(result.Alerts, a)
			cons.Add(console.LevelAlert, "Collision rate alert: %d collisions in the last %ds (threshold %d)",
				a.Collisions, a.Window, a.Threshold)
		},
	})
	clock.Observe(func(e sim.Event) { cons.HandleEvent(e) })

	tracker.Observe(clock.Start())
	for i := 0; i < ticks; i++ {
		tracker.Observe(clock.Tick())
	}
	result.Final = clock.Stop()
	result.Summary = tracker.Summary()
	result.Log = cons.Entries()
	return result, nil
}

func runSimulate(c *cli.Context) error {
	cfg := loadedConfig(c)
	if c.IsSet("speed") {
		var err error
		if cfg, err = cfg.WithInitialSpeed(c.Float64("speed")); err != nil {
			return err
		}
	}
	tz := c.String("timezone")
	if !units.IsTimezoneValid(tz) {
		return fmt.Errorf("%w: unknown timezone %q", sim.ErrInvalidArgument, tz)
	}
	var script []float64
	if raw := c.String("script"); raw != "" {
		var err error
		if script, err = parseScript(raw); err != nil {
			return err
		}
	}

	// Console lines are printed on request rather than logged.
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	result, err := simulate(cfg, c.Int("ticks"), script, quiet)
	if err != nil {
		return err
	}
	if dir := c.String("report-dir"); dir != "" {
		path, err := writeReport(fsutil.OSFileSystem{}, dir, report{
			Label:      c.String("label"),
			Version:    version.Version,
			Params:     cfg.SimParams(),
			Ticks:      c.Int("ticks"),
			simulation: result,
		})
		if err != nil {
			return err
		}
		monitoring.Logf("report written to %s", path)
	}
	if !c.Bool("log") {
		result.Log = nil
	}
	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printSimulation(c.App.Writer, result, tz)
	return nil
}

func printSimulation(w io.Writer, r simulation, tz string) {
	s := r.Summary
	fmt.Fprintf(w, "final:       %s\n", r.Final)
	fmt.Fprintf(w, "elapsed:     %ds\n", s.ElapsedSeconds)
	fmt.Fprintf(w, "collisions:  %d (%.1f/min, %.0f/h)\n", s.CollisionCount, s.RatePerMinute, s.RatePerHour)
	if s.FirstCollisionTick > 0 {
		fmt.Fprintf(w, "timing:      first t=%ds, last t=%ds, mean interval %.1fs\n",
			s.FirstCollisionTick, s.LastCollisionTick, s.MeanCollisionInterval)
	}
	fmt.Fprintf(w, "distance:    mean %s, stddev %.1f, min %s\n",
		units.FormatDistance(s.MeanDistance, units.CM), s.StdDevDistance, units.FormatDistance(s.MinDistance, units.CM))
	fmt.Fprintf(w, "speed:       mean %d%%, max %d%%\n", units.SpeedPercent(s.MeanSpeed), units.SpeedPercent(s.MaxSpeed))
	fmt.Fprintf(w, "alerts:      %d\n", len(r.Alerts))
	for _, e := range r.Log {
		at, _ := units.ConvertTime(e.Time, tz)
		fmt.Fprintf(w, "[%s] %5s %s\n", at.Format("15:04:05"), e.Level, e.Message)
	}
}
