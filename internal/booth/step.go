package booth

// Step is one screen of the booth.
type Step int

const (
	Landing Step = iota
	Setup
	Capture
	Preview
	Print
)

// steps is the screen order used for the progress bar.
var steps = []Step{Landing, Setup, Capture, Preview, Print}

func (s Step) String() string {
	switch s {
	case Landing:
		return "LANDING"
	case Setup:
		return "SETUP"
	case Capture:
		return "CAPTURE"
	case Preview:
		return "PREVIEW"
	case Print:
		return "PRINT"
	default:
		return "UNKNOWN"
	}
}

// Previous is the screen Back returns to. Landing has no previous screen.
func (s Step) Previous() (Step, bool) {
	switch s {
	case Setup:
		return Landing, true
	case Capture:
		return Setup, true
	case Preview:
		return Capture, true
	case Print:
		return Preview, true
	default:
		return s, false
	}
}

// Progress is the footer bar fill: the step's index over the last index.
func (s Step) Progress() float64 {
	for i, step := range steps {
		if step == s {
			return float64(i) / float64(len(steps)-1)
		}
	}
	return 0
}
