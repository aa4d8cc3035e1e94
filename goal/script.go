package goal

import (
	"context"
	"sync"

	"go.viam.com/armctl/config"
	"go.viam.com/armctl/spatialmath"
)

// ScriptedSource replays a fixed list of candidates. It never blocks.
type ScriptedSource struct {
	mu         sync.Mutex
	candidates []Candidate
	next       int
	shown      []spatialmath.Pose
}

// NewScriptedSource replays candidates in order.
func NewScriptedSource(candidates ...Candidate) *ScriptedSource {
	return &ScriptedSource{candidates: candidates}
}

// NewScriptedSourceFromConfig builds a source from configured goals.
func NewScriptedSourceFromConfig(goals []config.ScriptedGoal) (*ScriptedSource, error) {
	cands := make([]Candidate, 0, len(goals))
	for _, g := range goals {
		pose, err := g.Pose()
		if err != nil {
			return nil, err
		}
		cands = append(cands, Candidate{Pose: pose, Accept: g.Accept})
	}
	return NewScriptedSource(cands...), nil
}

// Propose returns the next candidate, or ErrSourceExhausted.
func (s *ScriptedSource) Propose(ctx context.Context, current spatialmath.Pose) (Candidate, error) {
	if err := ctx.Err(); err != nil {
		return Candidate{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = append(s.shown, current)
	if s.next >= len(s.candidates) {
		return Candidate{}, ErrSourceExhausted
	}
	c := s.candidates[s.next]
	s.next++
	return c, nil
}

// Shown returns every current pose the source was shown.
func (s *ScriptedSource) Shown() []spatialmath.Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]spatialmath.Pose(nil), s.shown...)
}
