package sequence

// State of the sequencer.
type State int

const (
	Idle State = iota
	Approaching
	Holding
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Approaching:
		return "approaching"
	case Holding:
		return "holding"
	default:
		return "unknown"
	}
}

// Phase tells which part of the program a record belongs to.
type Phase string

const (
	Preflight  Phase = "preflight"
	Main       Phase = "main"
	Postflight Phase = "postflight"
)

// Event describes a state change.
type Event struct {
	RunID  string
	State  State
	Phase  Phase
	Index  int // record index within the main sequence; 0 otherwise
	Record Record
}
