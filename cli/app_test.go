package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	"go.viam.com/armctl/telemetry"
)

const exampleConfig = "../etc/configs/puma560_sim.json"

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := NewApp(strings.NewReader(""), &out, &errOut)
	err := app.Run(append([]string{"armctl"}, args...))
	return out.String(), err
}

func TestValidate(t *testing.T) {
	t.Setenv("ARMCTL_DATA", t.TempDir())
	out, err := runApp(t, "validate", "--config", exampleConfig)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "config ok: model puma560, 6 joints, goal source script, period 15ms")
	test.That(t, out, test.ShouldContainSubstring, "jacobian determinant at home")
	test.That(t, out, test.ShouldNotContainSubstring, "near a singularity")

	bad := filepath.Join(t.TempDir(), "bad.json")
	test.That(t, os.WriteFile(bad, []byte(`{"joints": []}`), 0o600), test.ShouldBeNil)
	_, err = runApp(t, "validate", "--config", bad)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = runApp(t, "validate", "--config", filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRunAndPlot(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ARMCTL_DATA", dir)
	logFile := filepath.Join(dir, "armctl.log")

	out, err := runApp(t, "--log-file", logFile, "run", "--config", exampleConfig, "--duration", "300ms")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "goal source script")
	test.That(t, out, test.ShouldContainSubstring, "plotted")

	for _, name := range []string{"armctl.db", "ticks.log", "trajectory.png", "armctl.log"} {
		info, err := os.Stat(filepath.Join(dir, name))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, info.Size(), test.ShouldBeGreaterThan, 0)
	}

	db, err := telemetry.OpenDB(filepath.Join(dir, "armctl.db"))
	test.That(t, err, test.ShouldBeNil)
	defer db.Close()
	runID, err := telemetry.LatestRunID(context.Background(), db)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "run "+runID)
	rows, err := telemetry.LoadTicks(context.Background(), db, runID)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(rows), test.ShouldBeGreaterThan, 1)
	test.That(t, rows[0].Phase, test.ShouldEqual, "FirstRoundInteractive")
	test.That(t, rows[1].Phase, test.ShouldEqual, "FirstRoundArmed")

	plotPath := filepath.Join(dir, "replot.png")
	out, err = runApp(t, "plot", "--db", filepath.Join(dir, "armctl.db"), "--out", plotPath)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "to "+plotPath)
	_, err = os.Stat(plotPath)
	test.That(t, err, test.ShouldBeNil)

	_, err = runApp(t, "plot", "--db", filepath.Join(dir, "armctl.db"), "--run", "no-such-run", "--out", plotPath)
	test.That(t, err, test.ShouldNotBeNil)
}
