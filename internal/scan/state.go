package scan

// State is a step of the scan lifecycle.
type State int

const (
	// StateNew is an orchestrator that has not allocated a scan run yet.
	StateNew State = iota
	StateCreated
	StateCrawling
	StateLoading
	StateDiffing
	StateFinalized
	// StateFailed is absorbing: no further operation is accepted.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateCreated:
		return "created"
	case StateCrawling:
		return "crawling"
	case StateLoading:
		return "loading"
	case StateDiffing:
		return "diffing"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateFinalized || s == StateFailed
}
