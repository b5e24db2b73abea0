package workflow

import "sync"

// RequestState is the lifecycle of the most recent request for an action.
type RequestState int

const (
	Idle RequestState = iota
	InFlight
	Succeeded
	Failed
)

func (s RequestState) String() string {
	switch s {
	case InFlight:
		return "in_flight"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// StateListener is called on every state transition, outside any lock.
type StateListener func(action Action, state RequestState)

type stateTracker struct {
	mu        sync.Mutex
	states    map[Action]RequestState
	listeners []StateListener
}

func newStateTracker() *stateTracker {
	return &stateTracker{states: make(map[Action]RequestState)}
}

func (t *stateTracker) set(a Action, s RequestState) {
	t.mu.Lock()
	t.states[a] = s
	listeners := append([]StateListener(nil), t.listeners...)
	t.mu.Unlock()
	for _, fn := range listeners {
		fn(a, s)
	}
}

func (t *stateTracker) get(a Action) RequestState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[a]
}

func (t *stateTracker) subscribe(fn StateListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}
