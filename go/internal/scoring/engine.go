package scoring

import (
	"sync"
)

// Engine tracks one streak per participant and scores samples against it.
type Engine struct {
	strategy Strategy

	mu      sync.Mutex
	streaks map[string]Streak
}

// NewEngine creates an engine using strategy, or elapsed time when nil
func NewEngine(strategy Strategy) *Engine {
	if strategy == nil {
		strategy = ElapsedTime{}
	}
	return &Engine{
		strategy: strategy,
		streaks:  make(map[string]Streak),
	}
}

// Strategy returns the strategy the engine scores with.
func (e *Engine) Strategy() Strategy {
	return e.strategy
}

// Score scores s for the participant and stores the new streak.
func (e *Engine) Score(participantID string, band Band, s Sample) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := Score(e.strategy, band, e.streaks[participantID], s)
	e.streaks[participantID] = res.Streak
	return res
}

// Streak returns the stored streak for a participant.
func (e *Engine) Streak(participantID string) Streak {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streaks[participantID]
}

// Forget drops the streaks of the given participants.
func (e *Engine) Forget(participantIDs ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range participantIDs {
		delete(e.streaks, id)
	}
}

// Reset drops every streak.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.streaks = make(map[string]Streak)
}
