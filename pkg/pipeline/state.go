package pipeline

// State is the phase a Runner is in.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateReading
	StateSanitizing
	StatePublishing
	StateFlushing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateReading:
		return "reading"
	case StateSanitizing:
		return "sanitizing"
	case StatePublishing:
		return "publishing"
	case StateFlushing:
		return "flushing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
