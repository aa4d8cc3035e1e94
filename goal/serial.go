package goal

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"
	"go.bug.st/serial"

	"go.viam.com/armctl/logging"
	"go.viam.com/armctl/spatialmath"
)

// SerialSource reads goals from a serial line. Every line is a pose, optionally followed by an
// accept token. The current pose is echoed back as "pose <x y z ax ay az angle_deg>".
type SerialSource struct {
	port   io.ReadWriteCloser
	reader *lineReader
	logger logging.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewSerialSource opens portName at baud 8N1.
func NewSerialSource(portName string, baud int, logger logging.Logger) (*SerialSource, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "opening serial port %s", portName)
	}
	return NewSerialSourceFromPort(port, logger), nil
}

// NewSerialSourceFromPort speaks the goal protocol over an already open port.
func NewSerialSourceFromPort(port io.ReadWriteCloser, logger logging.Logger) *SerialSource {
	return &SerialSource{port: port, reader: newLineReader(port), logger: logger}
}

// next returns the next line that parses, skipping and logging the rest. It gives up when ctx is
// done even if the port has not produced a line.
func (ss *SerialSource) next(ctx context.Context) (Candidate, error) {
	for {
		line, err := ss.reader.next(ctx)
		if err != nil {
			return Candidate{}, err
		}
		if line == "" {
			continue
		}
		cand, err := ParseLine(line)
		if err != nil {
			ss.logger.Warnw("ignoring malformed goal line", "line", line, "error", err)
			continue
		}
		return cand, nil
	}
}

// Propose writes the current pose to the port and returns the next goal line.
func (ss *SerialSource) Propose(ctx context.Context, current spatialmath.Pose) (Candidate, error) {
	if _, err := fmt.Fprintf(ss.port, "pose %s\n", FormatPose(current)); err != nil {
		return Candidate{}, errors.Wrap(err, "writing current pose")
	}
	return ss.next(ctx)
}

// Stream hands every further goal line to setter until ctx is done or the port closes. The accept
// token is ignored once running.
func (ss *SerialSource) Stream(ctx context.Context, setter Setter) {
	for {
		cand, err := ss.next(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				ss.logger.Warnw("serial goal stream stopped", "error", err)
			}
			return
		}
		ss.logger.Infow("new goal from serial", "goal", FormatPose(cand.Pose))
		setter.SetGoal(cand.Pose)
	}
}

// Close closes the port, which also unblocks a pending read.
func (ss *SerialSource) Close() error {
	ss.closeOnce.Do(func() {
		ss.reader.stop()
		ss.closeErr = ss.port.Close()
	})
	return ss.closeErr
}
