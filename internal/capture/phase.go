package capture

// Phase is the session's single authoritative state.
type Phase int

const (
	Idle Phase = iota
	CountingDown
	Acquiring
	Finalizing
	Complete
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case CountingDown:
		return "counting_down"
	case Acquiring:
		return "acquiring"
	case Finalizing:
		return "finalizing"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	return p == Complete || p == Failed
}

// transitions lists the phases reachable from each phase. No phase is
// re-entered; a new session is required instead.
var transitions = map[Phase][]Phase{
	Idle:         {CountingDown, Failed},
	CountingDown: {Acquiring, Failed},
	Acquiring:    {Finalizing, Failed},
	Finalizing:   {Complete, Failed},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}
