// Package cli contains all business logic needed by the armctl command line tool.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	generalFlagConfig   = "config"
	generalFlagDebug    = "debug"
	generalFlagLogFile  = "log-file"
	runFlagDuration     = "duration"
	plotFlagDB          = "db"
	plotFlagRun         = "run"
	plotFlagOut         = "out"
	defaultPlotFilename = "trajectory.png"
)

var configFlag = &cli.StringFlag{
	Name:     generalFlagConfig,
	Aliases:  []string{"c"},
	Usage:    "load configuration from `FILE`",
	Required: true,
}

// NewApp returns the armctl application. Prompts are read from in; normal output goes to out and
// errors to errOut.
func NewApp(in io.Reader, out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "armctl",
		Usage:           "track Cartesian goals with a six axis arm",
		HideHelpCommand: true,
		Reader:          in,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    generalFlagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  generalFlagLogFile,
				Usage: "also write logs to `FILE`, rotated at the configured size",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "run the control loop against the simulated arm",
				UsageText: "armctl run --config <path> [--duration <duration>]",
				Flags: []cli.Flag{
					configFlag,
					&cli.DurationFlag{
						Name:  runFlagDuration,
						Usage: "stop after this long instead of waiting for an interrupt",
					},
				},
				Action: RunAction,
			},
			{
				Name:   "validate",
				Usage:  "check a configuration file and print what it selects",
				Flags:  []cli.Flag{configFlag},
				Action: ValidateAction,
			},
			{
				Name:  "plot",
				Usage: "plot a recorded run's actual and waypoint trajectory",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     plotFlagDB,
						Usage:    "telemetry database `FILE`",
						Required: true,
					},
					&cli.StringFlag{
						Name:  plotFlagRun,
						Usage: "run id to plot, defaults to the latest run",
					},
					&cli.StringFlag{
						Name:  plotFlagOut,
						Usage: "output PNG `FILE`",
						Value: defaultPlotFilename,
					},
				},
				Action: PlotAction,
			},
		},
	}
}
