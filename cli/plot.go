package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/armctl/telemetry"
)

// plotRun draws runID from the database at dbPath into out. An empty runID selects the latest run.
func plotRun(ctx context.Context, dbPath, runID, out string) (n int, err error) {
	db, err := telemetry.OpenDB(dbPath)
	if err != nil {
		return 0, err
	}
	defer func() {
		err = multierr.Combine(err, db.Close())
	}()
	if runID == "" {
		if runID, err = telemetry.LatestRunID(ctx, db); err != nil {
			return 0, err
		}
	}
	rows, err := telemetry.LoadTicks(ctx, db, runID)
	if err != nil {
		return 0, err
	}
	if err := telemetry.PlotTrajectory(rows, out); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// PlotAction is the corresponding Action for 'plot'.
func PlotAction(c *cli.Context) error {
	out := c.String(plotFlagOut)
	n, err := plotRun(c.Context, c.String(plotFlagDB), c.String(plotFlagRun), out)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "plotted %d ticks to %s\n", n, out)
	return nil
}
