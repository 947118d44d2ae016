// ABOUTME: Session lifecycle states: Starting, Running and the terminal Stopped, Exited, Dead
// ABOUTME: A terminal session is never reused; callers spawn a new one to retry

package session

// State is a session lifecycle state.
type State int

const (
	StateStarting State = iota
	StateRunning
	// StateStopped follows an explicit Stop.
	StateStopped
	// StateExited follows EOF or a fatal read/write error.
	StateExited
	// StateDead follows detection of the lock-conflict sentinel.
	StateDead
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateExited:
		return "exited"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateExited || s == StateDead
}
