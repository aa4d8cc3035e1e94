package goal

import (
	"context"
	"fmt"
	"io"

	"go.viam.com/armctl/logging"
	"go.viam.com/armctl/spatialmath"
)

// ConsoleSource asks an operator for goals on a line oriented terminal.
type ConsoleSource struct {
	reader *lineReader
	out    io.Writer
	logger logging.Logger
}

// NewConsoleSource reads answers from in and writes prompts to out.
func NewConsoleSource(in io.Reader, out io.Writer, logger logging.Logger) *ConsoleSource {
	return &ConsoleSource{reader: newLineReader(in), out: out, logger: logger}
}

func (cs *ConsoleSource) readLine(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(cs.out, prompt)
	return cs.reader.next(ctx)
}

// Propose shows the current pose, reads a goal and then asks whether to accept it. Lines that do not
// parse are reported and asked for again.
func (cs *ConsoleSource) Propose(ctx context.Context, current spatialmath.Pose) (Candidate, error) {
	fmt.Fprintf(cs.out, "current pose: %s\n", FormatPose(current))
	for {
		line, err := cs.readLine(ctx, "goal (x y z ax ay az angle_deg): ")
		if err != nil {
			return Candidate{}, err
		}
		cand, err := ParseLine(line)
		if err != nil {
			fmt.Fprintf(cs.out, "invalid goal: %v\n", err)
			cs.logger.Debugw("rejected console goal", "line", line, "error", err)
			continue
		}
		if cand.Accept {
			return cand, nil
		}
		answer, err := cs.readLine(ctx, "accept goal? [y/n]: ")
		if err != nil {
			return Candidate{}, err
		}
		cand.Accept = isYes(answer)
		return cand, nil
	}
}

// Close stops reading the terminal. A read already blocked on in is left to finish on its own.
func (cs *ConsoleSource) Close() error {
	cs.reader.stop()
	return nil
}
