package telemetry

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/natefinch/lumberjack.v2"

	"go.viam.com/armctl/spatialmath"
)

// TextRecorder writes a human readable dump of every tick, with full pose matrices.
type TextRecorder struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// NewTextRecorder writes to a rotating log file.
func NewTextRecorder(path string, maxSizeMB, maxBackups int) *TextRecorder {
	return NewTextRecorderFromWriter(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	})
}

// NewTextRecorderFromWriter writes to w, closing it on Close.
func NewTextRecorderFromWriter(w io.WriteCloser) *TextRecorder {
	return &TextRecorder{w: w}
}

func writePose(sb *strings.Builder, name string, p spatialmath.Pose) {
	fmt.Fprintf(sb, "%s =\n%v\n", name, mat.Formatted(p.Matrix(), mat.Prefix(""), mat.Squeeze()))
}

// Record appends one tick.
func (r *TextRecorder) Record(ctx context.Context, rec TickRecord) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "tick %d run=%s phase=%s t=%s dt=%.6f duration=%s\n",
		rec.Tick, rec.RunID, rec.Phase, rec.Time.UTC().Format("2006-01-02T15:04:05.000000Z"), rec.DT, rec.Duration)
	if rec.Degraded {
		fmt.Fprintf(&sb, "DEGRADED: %s\n", rec.Reason)
	}
	fmt.Fprintf(&sb, "joints = %.4f\n", rec.Joints)
	writePose(&sb, "actual", rec.Actual)
	writePose(&sb, "waypoint", rec.Waypoint)
	writePose(&sb, "goal", rec.Goal)
	fmt.Fprintf(&sb, "error = %.4f\n", rec.Error[:])
	fmt.Fprintf(&sb, "integral = %.4f\n", rec.Integral[:])
	fmt.Fprintf(&sb, "correction = %.4f\n", rec.Correction[:])
	fmt.Fprintf(&sb, "det = %.4f singular = %t\n", rec.Det, rec.Singular)
	fmt.Fprintf(&sb, "speeds = %.4f\n\n", rec.Speeds)

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := io.WriteString(r.w, sb.String())
	return err
}

// Close closes the underlying writer.
func (r *TextRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Close()
}
