package goal

import (
	"io"

	"github.com/pkg/errors"

	"go.viam.com/armctl/config"
	"go.viam.com/armctl/logging"
)

// NewSourceFromConfig builds the configured source. Console prompts use in and out. The HTTP source
// is started before returning. Sources holding resources implement io.Closer.
func NewSourceFromConfig(cfg config.GoalConfig, in io.Reader, out io.Writer, logger logging.Logger) (Source, error) {
	switch cfg.Source {
	case config.GoalSourceConsole:
		return NewConsoleSource(in, out, logger), nil
	case config.GoalSourceSerial:
		src, err := NewSerialSource(cfg.SerialPort, cfg.Baud, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.GoalSourceHTTP:
		src := NewHTTPSource(logger)
		if _, err := src.Start(cfg.HTTPAddr); err != nil {
			return nil, err
		}
		return src, nil
	case config.GoalSourceScript:
		src, err := NewScriptedSourceFromConfig(cfg.Script)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, errors.Errorf("unknown goal source %q", cfg.Source)
	}
}
