package engine

// State is the lifecycle state of an [Engine].
//
// The lifecycle of a healthy engine is:
//
//	Unknown → Starting → Running → Stopping → Stopped
//
// A failed start or stop moves the engine to Failed. Stopped and Failed
// are terminal: Stop closes the engine's caches and connections, so a new
// Engine is needed to serve again.
type State string

const (
	// StateUnknown is the state of a newly built engine.
	StateUnknown State = "unknown"

	// StateStarting is set while Start checks dependencies.
	StateStarting State = "starting"

	// StateRunning is the only state in which Health reports healthy.
	StateRunning State = "running"

	// StateStopping is set while Stop releases resources.
	StateStopping State = "stopping"

	// StateStopped follows a clean Stop.
	StateStopped State = "stopped"

	// StateFailed follows a failed Start or Stop.
	StateFailed State = "failed"
)

// String returns the state name.
func (s State) String() string {
	return string(s)
}

// IsTerminal reports whether s is Stopped or Failed.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// validTransitions lists the allowed targets of each state.
//
//	Unknown  → Starting, Failed
//	Starting → Running, Failed, Stopping
//	Running  → Stopping, Failed
//	Stopping → Stopped, Failed
var validTransitions = map[State][]State{
	StateUnknown:  {StateStarting, StateFailed},
	StateStarting: {StateRunning, StateFailed, StateStopping},
	StateRunning:  {StateStopping, StateFailed},
	StateStopping: {StateStopped, StateFailed},
}

// ValidTransition reports whether the engine may move from one state to
// another. Same-state transitions are rejected.
func ValidTransition(from, to State) bool {
	if from == to {
		return false
	}
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
