package goal

import (
	"bufio"
	"context"
	"io"
	"sync"

	goutils "go.viam.com/utils"
)

type scannedLine struct {
	text string
	err  error
}

// lineReader scans lines in the background so a caller blocked on a line can give up when its
// context is done. The scan goroutine exits once the reader fails or stop is called.
type lineReader struct {
	scanner *bufio.Scanner

	startOnce sync.Once
	stopOnce  sync.Once
	lines     chan scannedLine
	done      chan struct{}
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{
		scanner: bufio.NewScanner(r),
		lines:   make(chan scannedLine, 1),
		done:    make(chan struct{}),
	}
}

func (lr *lineReader) scan() {
	defer close(lr.lines)
	for lr.scanner.Scan() {
		if !lr.send(scannedLine{text: lr.scanner.Text()}) {
			return
		}
	}
	err := lr.scanner.Err()
	if err == nil {
		err = io.EOF
	}
	lr.send(scannedLine{err: err})
}

func (lr *lineReader) send(line scannedLine) bool {
	select {
	case lr.lines <- line:
		return true
	case <-lr.done:
		return false
	}
}

// next blocks until a line arrives, the reader fails, ctx is done or the reader is stopped.
func (lr *lineReader) next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	lr.startOnce.Do(func() { goutils.PanicCapturingGo(lr.scan) })
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-lr.done:
		return "", io.EOF
	case line, ok := <-lr.lines:
		if !ok {
			return "", io.EOF
		}
		return line.text, line.err
	}
}

// stop releases the scan goroutine once its pending read returns.
func (lr *lineReader) stop() {
	lr.stopOnce.Do(func() { close(lr.done) })
}
