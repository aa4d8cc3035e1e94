package goal

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"goji.io"
	"goji.io/pat"

	"go.viam.com/armctl/config"
	"go.viam.com/armctl/logging"
	"go.viam.com/armctl/spatialmath"
	"go.viam.com/armctl/utils"
)

// HTTPSource takes goals over HTTP.
//
//	POST /goal    {"x":..,"y":..,"z":..,"rx":..,"ry":..,"rz":..,"theta_deg":..,"accept":bool}
//	POST /accept  accepts the last goal posted during bootstrap
//	GET  /pose    the pose the arm was last reported at
//
// During bootstrap posted goals are returned from Propose. Once a Setter is attached by Stream they
// go straight to it.
type HTTPSource struct {
	mux    *goji.Mux
	logger logging.Logger

	mu        sync.Mutex
	current   *spatialmath.Pose
	pending   *spatialmath.Pose
	setter    Setter
	proposals chan Candidate

	server    *http.Server
	workers   utils.StoppableWorkers
	closeOnce sync.Once
	closeErr  error
}

// NewHTTPSource builds the routes. Call Start to listen, or serve Handler yourself.
func NewHTTPSource(logger logging.Logger) *HTTPSource {
	s := &HTTPSource{
		mux:       goji.NewMux(),
		logger:    logger,
		proposals: make(chan Candidate, 1),
	}
	s.mux.HandleFunc(pat.Post("/goal"), s.handleGoal)
	s.mux.HandleFunc(pat.Post("/accept"), s.handleAccept)
	s.mux.HandleFunc(pat.Get("/pose"), s.handlePose)
	return s
}

// Handler returns the goal routes.
func (s *HTTPSource) Handler() http.Handler {
	return s.mux
}

// Start listens on addr and serves in the background. It returns the bound address.
func (s *HTTPSource) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}
	s.server = &http.Server{Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	s.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("goal server stopped", "error", err)
		}
	})
	s.logger.Infow("accepting goals over http", "addr", ln.Addr().String())
	return ln.Addr(), nil
}

// replace drops an unread proposal so the newest one wins.
func (s *HTTPSource) replace(c Candidate) {
	for {
		select {
		case s.proposals <- c:
			return
		default:
		}
		select {
		case <-s.proposals:
		default:
		}
	}
}

func (s *HTTPSource) handleGoal(w http.ResponseWriter, r *http.Request) {
	var body config.ScriptedGoal
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed goal: "+err.Error(), http.StatusBadRequest)
		return
	}
	pose, err := body.Pose()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	setter := s.setter
	if setter == nil {
		s.pending = &pose
	}
	s.mu.Unlock()

	if setter != nil {
		setter.SetGoal(pose)
		s.logger.Infow("new goal over http", "goal", FormatPose(pose))
	} else {
		s.replace(Candidate{Pose: pose, Accept: body.Accept})
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *HTTPSource) handleAccept(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	if pending == nil {
		http.Error(w, "no goal to accept", http.StatusConflict)
		return
	}
	s.replace(Candidate{Pose: *pending, Accept: true})
	w.WriteHeader(http.StatusAccepted)
}

func (s *HTTPSource) handlePose(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current == nil {
		http.Error(w, "pose not known yet", http.StatusServiceUnavailable)
		return
	}
	pt := current.Point()
	aa := current.AxisAngle()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(config.PoseConfig{
		X: pt.X, Y: pt.Y, Z: pt.Z,
		RX: aa.RX, RY: aa.RY, RZ: aa.RZ,
		ThetaDeg: utils.RadToDeg(aa.Theta),
	}); err != nil {
		s.logger.Debugw("writing pose", "error", err)
	}
}

// Propose publishes current on GET /pose and waits for a posted goal.
func (s *HTTPSource) Propose(ctx context.Context, current spatialmath.Pose) (Candidate, error) {
	s.ReportPose(current)
	select {
	case <-ctx.Done():
		return Candidate{}, ctx.Err()
	case c := <-s.proposals:
		return c, nil
	}
}

// ReportPose updates the pose served on GET /pose.
func (s *HTTPSource) ReportPose(pose spatialmath.Pose) {
	s.mu.Lock()
	s.current = &pose
	s.mu.Unlock()
}

// Stream routes every later goal to setter until ctx is done.
func (s *HTTPSource) Stream(ctx context.Context, setter Setter) {
	s.mu.Lock()
	s.setter = setter
	s.mu.Unlock()
	<-ctx.Done()
	s.mu.Lock()
	s.setter = nil
	s.mu.Unlock()
}

// Close shuts the server down. It is safe to call more than once.
func (s *HTTPSource) Close() error {
	s.closeOnce.Do(func() {
		if s.server == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.closeErr = s.server.Shutdown(ctx)
		s.workers.Stop()
	})
	return s.closeErr
}
