// Command proximity runs the collision-proximity simulator. "serve" drives it
// in real time behind the dashboard API, "simulate" runs it headless for a
// fixed number of ticks and "ctl" commands a running server.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/banshee-data/proximity.report/internal/config"
	"github.com/banshee-data/proximity.report/internal/monitoring"
	"github.com/banshee-data/proximity.report/internal/version"
)

const configKey = "config"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "proximity",
		Usage:   "collision-proximity simulator with a live dashboard API",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a JSON config file (see " + config.DefaultConfigPath + ")",
				EnvVars: []string{"PROXIMITY_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (overrides the config file)",
				EnvVars: []string{"PROXIMITY_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:    "log-json",
				Usage:   "log as JSON (overrides the config file)",
				EnvVars: []string{"PROXIMITY_LOG_JSON"},
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			serveCommand(),
			simulateCommand(),
			ctlCommand(),
		},
	}
}

// setup loads the config once and configures logging before any command
// runs.
func setup(c *cli.Context) error {
	cfg := config.Empty()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	level := cfg.GetLogLevel()
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	asJSON := cfg.GetLogJSON()
	if c.IsSet("log-json") {
		asJSON = c.Bool("log-json")
	}
	monitoring.Configure(level, asJSON)

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]interface{}{}
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

// loadedConfig returns the config read by setup, applying the command's
// --seed override when given.
func loadedConfig(c *cli.Context) *config.Config {
	cfg, ok := c.App.Metadata[configKey].(*config.Config)
	if !ok {
		cfg = config.Empty()
	}
	if c.IsSet("seed") {
		cfg = cfg.WithSeed(c.Uint64("seed"))
	}
	return cfg
}
