package goal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/armctl/config"
	"go.viam.com/armctl/logging"
	"go.viam.com/armctl/spatialmath"
)

func TestMailbox(t *testing.T) {
	var m Mailbox
	_, ok := m.Take()
	test.That(t, ok, test.ShouldBeFalse)

	m.Put(spatialmath.NewPoseFromPoint(r3.Vector{X: 1}))
	m.SetGoal(spatialmath.NewPoseFromPoint(r3.Vector{X: 2}))
	p, ok := m.Take()
	test.That(t, ok, test.ShouldBeTrue)
	// latest wins
	test.That(t, p.Point().X, test.ShouldEqual, 2.)
	_, ok = m.Take()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestMailboxConcurrent(t *testing.T) {
	var m Mailbox
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Put(spatialmath.NewPoseFromPoint(r3.Vector{X: float64(i)}))
			}
		}(i)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		m.Take()
		select {
		case <-done:
			m.Take()
			_, ok := m.Take()
			test.That(t, ok, test.ShouldBeFalse)
			return
		default:
		}
	}
}

func TestParsePose(t *testing.T) {
	p, err := ParsePose(strings.Fields("300 0 400 0 0 1 90"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Point(), test.ShouldResemble, r3.Vector{X: 300, Z: 400})
	aa := p.AxisAngle()
	test.That(t, aa.RZ, test.ShouldAlmostEqual, 1)
	test.That(t, aa.Theta, test.ShouldAlmostEqual, 1.5707963267948966)

	_, err = ParsePose(strings.Fields("1 2 3"))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ParsePose(strings.Fields("1 2 3 0 0 1 abc"))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ParsePose(strings.Fields("1 2 3 0 0 1 NaN"))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ParsePose(strings.Fields("1 2 3 0 0 0 45"))
	test.That(t, err, test.ShouldNotBeNil)

	c, err := ParseLine("10 20 30 1 0 0 0 yes")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Accept, test.ShouldBeTrue)
	c, err = ParseLine("10 20 30 1 0 0 0")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Accept, test.ShouldBeFalse)
	_, err = ParseLine("10 20 30 1 0 0 0 maybe")
	test.That(t, err, test.ShouldNotBeNil)

	back, err := ParsePose(strings.Fields(FormatPose(p)))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.PoseAlmostEqual(back, p, 1e-3), test.ShouldBeTrue)
}

func TestConsoleSource(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	in := strings.NewReader("not a pose\n300 0 0 0 0 1 0\nn\n350 0 0 0 0 1 0\ny\n")
	var out bytes.Buffer
	cs := NewConsoleSource(in, &out, logger)

	c, err := cs.Propose(ctx, spatialmath.NewZeroPose())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Accept, test.ShouldBeFalse)
	test.That(t, c.Pose.Point().X, test.ShouldEqual, 300.)

	c, err = cs.Propose(ctx, spatialmath.NewZeroPose())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Accept, test.ShouldBeTrue)
	test.That(t, c.Pose.Point().X, test.ShouldEqual, 350.)

	_, err = cs.Propose(ctx, spatialmath.NewZeroPose())
	test.That(t, errors.Is(err, io.EOF), test.ShouldBeTrue)

	test.That(t, out.String(), test.ShouldContainSubstring, "current pose: 0.000 0.000 0.000")
	test.That(t, out.String(), test.ShouldContainSubstring, "invalid goal")
	test.That(t, out.String(), test.ShouldContainSubstring, "accept goal? [y/n]")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewConsoleSource(strings.NewReader("1 2 3 0 0 1 0 y\n"), io.Discard, logger).Propose(cancelled, spatialmath.NewZeroPose())
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}

type fakePort struct {
	io.Reader
	written bytes.Buffer
	closed  bool
}

func (f *fakePort) Write(p []byte) (int, error) { return f.written.Write(p) }

func (f *fakePort) Close() error {
	f.closed = true
	return nil
}

type recordingSetter struct {
	mu    sync.Mutex
	goals []spatialmath.Pose
}

func (r *recordingSetter) SetGoal(p spatialmath.Pose) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.goals = append(r.goals, p)
}

func (r *recordingSetter) Goals() []spatialmath.Pose {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]spatialmath.Pose(nil), r.goals...)
}

func TestSerialSource(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	port := &fakePort{Reader: strings.NewReader("garbage\n\n100 0 0 0 0 1 0 accept\n200 0 0 0 0 1 0\n300 0 0 0 0 1 0\n")}
	ss := NewSerialSourceFromPort(port, logger)

	c, err := ss.Propose(ctx, spatialmath.NewPoseFromPoint(r3.Vector{X: 5}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Accept, test.ShouldBeTrue)
	test.That(t, c.Pose.Point().X, test.ShouldEqual, 100.)
	test.That(t, port.written.String(), test.ShouldStartWith, "pose 5.000 0.000 0.000")

	setter := &recordingSetter{}
	ss.Stream(ctx, setter)
	goals := setter.Goals()
	test.That(t, goals, test.ShouldHaveLength, 2)
	test.That(t, goals[1].Point().X, test.ShouldEqual, 300.)

	test.That(t, ss.Close(), test.ShouldBeNil)
	test.That(t, ss.Close(), test.ShouldBeNil)
	test.That(t, port.closed, test.ShouldBeTrue)
}

type pipePort struct {
	*io.PipeReader
}

func (pipePort) Write(p []byte) (int, error) { return len(p), nil }

func TestSerialSourceCancel(t *testing.T) {
	logger := logging.NewTestLogger(t)
	r, w := io.Pipe()
	defer w.Close()
	ss := NewSerialSourceFromPort(pipePort{r}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	proposed := make(chan error, 1)
	go func() {
		_, err := ss.Propose(ctx, spatialmath.NewZeroPose())
		proposed <- err
	}()
	cancel()
	select {
	case err := <-proposed:
		test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	case <-time.After(2 * time.Second):
		t.Fatal("Propose did not return after its context was cancelled")
	}

	// the port stays usable after an abandoned read
	go fmt.Fprintln(w, "100 0 0 0 0 1 0 y")
	c, err := ss.Propose(context.Background(), spatialmath.NewZeroPose())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Pose.Point().X, test.ShouldEqual, 100.)

	test.That(t, ss.Close(), test.ShouldBeNil)
	_, err = ss.Propose(context.Background(), spatialmath.NewZeroPose())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestConsoleSourceClose(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	cs := NewConsoleSource(r, io.Discard, logging.NewTestLogger(t))

	proposed := make(chan error, 1)
	go func() {
		_, err := cs.Propose(context.Background(), spatialmath.NewZeroPose())
		proposed <- err
	}()
	test.That(t, cs.Close(), test.ShouldBeNil)
	test.That(t, cs.Close(), test.ShouldBeNil)
	select {
	case err := <-proposed:
		test.That(t, errors.Is(err, io.EOF), test.ShouldBeTrue)
	case <-time.After(2 * time.Second):
		t.Fatal("Propose did not return after Close")
	}
}

func TestLineReaderFinishesAfterEOF(t *testing.T) {
	lr := newLineReader(strings.NewReader("only line\n"))
	line, err := lr.next(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, line, test.ShouldEqual, "only line")

	// nobody asks again, so the end of input has to fit in the channel for the scan goroutine to exit
	test.That(t, waitFor(func() bool { return len(lr.lines) == 1 }), test.ShouldBeTrue)
	last, ok := <-lr.lines
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, errors.Is(last.err, io.EOF), test.ShouldBeTrue)
	select {
	case _, ok = <-lr.lines:
		test.That(t, ok, test.ShouldBeFalse)
	case <-time.After(2 * time.Second):
		t.Fatal("scan goroutine did not exit")
	}
}

func TestScriptedSource(t *testing.T) {
	ctx := context.Background()
	src, err := NewScriptedSourceFromConfig([]config.ScriptedGoal{
		{PoseConfig: config.PoseConfig{X: 1, RZ: 1}},
		{PoseConfig: config.PoseConfig{X: 2, RZ: 1}, Accept: true},
	})
	test.That(t, err, test.ShouldBeNil)

	c, err := src.Propose(ctx, spatialmath.NewZeroPose())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Accept, test.ShouldBeFalse)
	c, err = src.Propose(ctx, spatialmath.NewZeroPose())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Accept, test.ShouldBeTrue)
	_, err = src.Propose(ctx, spatialmath.NewZeroPose())
	test.That(t, err, test.ShouldEqual, ErrSourceExhausted)
	test.That(t, src.Shown(), test.ShouldHaveLength, 3)

	_, err = NewScriptedSourceFromConfig([]config.ScriptedGoal{{PoseConfig: config.PoseConfig{ThetaDeg: 10}}})
	test.That(t, err, test.ShouldNotBeNil)
}

func post(t *testing.T, url, body string) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestHTTPSource(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger := logging.NewTestLogger(t)
	src := NewHTTPSource(logger)
	server := httptest.NewServer(src.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/pose")
	test.That(t, err, test.ShouldBeNil)
	resp.Body.Close()
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusServiceUnavailable)

	test.That(t, post(t, server.URL+"/accept", ""), test.ShouldEqual, http.StatusConflict)
	test.That(t, post(t, server.URL+"/goal", "{"), test.ShouldEqual, http.StatusBadRequest)
	test.That(t, post(t, server.URL+"/goal", `{"x": 1, "theta_deg": 5}`), test.ShouldEqual, http.StatusBadRequest)

	test.That(t, post(t, server.URL+"/goal", `{"x": 250, "y": 0, "z": 100, "rz": 1, "theta_deg": 0}`),
		test.ShouldEqual, http.StatusAccepted)
	c, err := src.Propose(ctx, spatialmath.NewPoseFromPoint(r3.Vector{X: 7}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Accept, test.ShouldBeFalse)
	test.That(t, c.Pose.Point().X, test.ShouldEqual, 250.)

	resp, err = http.Get(server.URL + "/pose")
	test.That(t, err, test.ShouldBeNil)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(body), test.ShouldContainSubstring, `"x":7`)

	test.That(t, post(t, server.URL+"/accept", ""), test.ShouldEqual, http.StatusAccepted)
	c, err = src.Propose(ctx, spatialmath.NewZeroPose())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Accept, test.ShouldBeTrue)
	test.That(t, c.Pose.Point().X, test.ShouldEqual, 250.)

	// after bootstrap posts go to the setter
	setter := &recordingSetter{}
	streamCtx, stopStream := context.WithCancel(ctx)
	streamDone := make(chan struct{})
	go func() {
		src.Stream(streamCtx, setter)
		close(streamDone)
	}()
	test.That(t, waitFor(func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.setter != nil
	}), test.ShouldBeTrue)
	test.That(t, post(t, server.URL+"/goal", `{"x": 400, "rz": 1}`), test.ShouldEqual, http.StatusAccepted)
	test.That(t, setter.Goals(), test.ShouldHaveLength, 1)
	test.That(t, setter.Goals()[0].Point().X, test.ShouldEqual, 400.)
	stopStream()
	<-streamDone

	blocked, cancelBlocked := context.WithCancel(ctx)
	cancelBlocked()
	_, err = src.Propose(blocked, spatialmath.NewZeroPose())
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}

func TestHTTPSourceStart(t *testing.T) {
	logger := logging.NewTestLogger(t)
	src, err := NewSourceFromConfig(config.GoalConfig{Source: config.GoalSourceHTTP, HTTPAddr: "localhost:0"}, nil, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	closer, ok := src.(io.Closer)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, closer.Close(), test.ShouldBeNil)

	_, err = NewSourceFromConfig(config.GoalConfig{Source: "smoke-signals"}, nil, nil, logger)
	test.That(t, err, test.ShouldNotBeNil)

	console, err := NewSourceFromConfig(config.GoalConfig{Source: config.GoalSourceConsole}, strings.NewReader(""), io.Discard, logger)
	test.That(t, err, test.ShouldBeNil)
	_, ok = console.(*ConsoleSource)
	test.That(t, ok, test.ShouldBeTrue)
}

func waitFor(cond func() bool) bool {
	for i := 0; i < 500; i++ {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}
