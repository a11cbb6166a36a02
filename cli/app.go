// Package cli contains the cullsim command line, which drives a culling engine through a
// synthetic scene.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	generalFlagConfig  = "config"
	generalFlagDebug   = "debug"
	generalFlagLogFile = "log-file"

	runFlagObjects     = "objects"
	runFlagTicks       = "ticks"
	runFlagMode        = "mode"
	runFlagSeed        = "seed"
	runFlagRadius      = "radius"
	runFlagOpaque      = "opaque-fraction"
	runFlagReportEvery = "report-every"
	runFlagWatch       = "watch"
)

var app = &cli.App{
	Name:            "cullsim",
	Usage:           "run a visibility culling engine against a synthetic scene",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    generalFlagConfig,
			Aliases: []string{"c"},
			Usage:   "load engine configuration from `FILE`",
		},
		&cli.BoolFlag{
			Name:    generalFlagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
		&cli.StringFlag{
			Name:  generalFlagLogFile,
			Usage: "also write logs to `FILE`, rotated by size",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "run",
			Usage:     "orbit a camera around a random scene and report culling statistics",
			UsageText: "cullsim [-c FILE] run [--objects N] [--ticks N] [--mode MODE]",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  runFlagObjects,
					Usage: "number of objects to scatter",
					Value: 1000,
				},
				&cli.IntFlag{
					Name:  runFlagTicks,
					Usage: "number of passes to run",
					Value: 120,
				},
				&cli.StringFlag{
					Name:  runFlagMode,
					Usage: "culling mode, overriding the configured one (disabled, conservative, normal, aggressive)",
				},
				&cli.Int64Flag{
					Name:  runFlagSeed,
					Usage: "random seed for the scene",
					Value: 1,
				},
				&cli.Float64Flag{
					Name:  runFlagRadius,
					Usage: "half extent of the cube objects are scattered in",
					Value: 100,
				},
				&cli.Float64Flag{
					Name:  runFlagOpaque,
					Usage: "fraction of objects that occlude others",
					Value: 0.5,
				},
				&cli.IntFlag{
					Name:  runFlagReportEvery,
					Usage: "print a row every `N` passes",
					Value: 10,
				},
				&cli.BoolFlag{
					Name:  runFlagWatch,
					Usage: "apply changes to the config file while running",
				},
			},
			Action: RunAction,
		},
		{
			Name:   "modes",
			Usage:  "list the culling modes and their settings",
			Action: ModesAction,
		},
		{
			Name:   "schema",
			Usage:  "print the JSON schema of the config file",
			Action: SchemaAction,
		},
		{
			Name:      "validate",
			Usage:     "validate a config file and print the resolved settings",
			ArgsUsage: "[FILE]",
			Action:    ValidateAction,
		},
	},
}

// NewApp returns a new app with the cullsim commands, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
