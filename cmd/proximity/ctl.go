package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/banshee-data/proximity.report/internal/httputil"
	"github.com/banshee-data/proximity.report/internal/sim"
)

func ctlCommand() *cli.Command {
	get := func(name, usage, path string) *cli.Command {
		return &cli.Command{
			Name:  name,
			Usage: usage,
			Action: func(c *cli.Context) error {
				return remoteCall(c, http.MethodGet, path, nil)
			},
		}
	}
	post := func(name, usage, path string) *cli.Command {
		return &cli.Command{
			Name:  name,
			Usage: usage,
			Action: func(c *cli.Context) error {
				return remoteCall(c, http.MethodPost, path, nil)
			},
		}
	}

	return &cli.Command{
		Name:  "ctl",
		Usage: "query or command a running server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "server base URL",
				Value:   "http://localhost:8080",
				EnvVars: []string{"PROXIMITY_ADDR"},
			},
		},
		Subcommands: []*cli.Command{
			get("state", "print the current state", "/api/state"),
			get("stats", "print the statistics summary", "/api/stats"),
			get("log", "print the console log", "/api/log"),
			get("events", "print the most recent journaled events", "/api/events"),
			post("start", "start the simulation", "/api/start"),
			post("stop", "stop the simulation", "/api/stop"),
			post("reset", "reset the simulation", "/api/reset"),
			{
				Name:      "speed",
				Usage:     "set the speed multiplier",
				ArgsUsage: "<multiplier>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("%w: speed takes exactly one argument", sim.ErrInvalidArgument)
					}
					v, err := strconv.ParseFloat(c.Args().First(), 64)
					if err != nil {
						return fmt.Errorf("%w: speed %q is not a number", sim.ErrInvalidArgument, c.Args().First())
					}
					return remoteCall(c, http.MethodPost, "/api/speed", map[string]float64{"speed": v})
				},
			},
			{
				Name:  "link",
				Usage: "show or toggle the broker link",
				Subcommands: []*cli.Command{
					get("status", "print the link status", "/api/link"),
					post("connect", "connect the link", "/api/link/connect"),
					post("disconnect", "disconnect the link", "/api/link/disconnect"),
				},
				Action: func(c *cli.Context) error {
					return remoteCall(c, http.MethodGet, "/api/link", nil)
				},
			},
		},
	}
}

func remoteCall(c *cli.Context, method, path string, body interface{}) error {
	r := httputil.NewRemote(c.String("addr"), nil)
	var out json.RawMessage
	var err error
	if method == http.MethodGet {
		err = r.GetJSON(c.Context, path, &out)
	} else {
		err = r.PostJSON(c.Context, path, body, &out)
	}
	if err != nil {
		return err
	}
	var pretty interface{}
	if err := json.Unmarshal(out, &pretty); err != nil {
		return err
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(pretty)
}
