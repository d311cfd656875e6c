package scan

import (
	"errors"
	"fmt"
)

// Phase sentinels. A PhaseError unwraps to the sentinel of its phase and to
// the underlying cause.
var (
	ErrAllocate = errors.New("scan run allocation failed")
	ErrCrawl    = errors.New("crawl failed")
	ErrLoad     = errors.New("staging load failed")
	ErrDiff     = errors.New("delta computation failed")
	ErrFinalize = errors.New("scan finalize failed")

	// ErrInvalidState is returned when an operation is called out of order.
	ErrInvalidState = errors.New("invalid scan state")
)

// PhaseError reports which phase of which scan failed.
type PhaseError struct {
	ScanID int64
	Phase  State
	Err    error
}

func (e *PhaseError) Error() string {
	if e.ScanID == 0 {
		return fmt.Sprintf("scan %s: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("scan %d %s: %v", e.ScanID, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() []error {
	if s := phaseSentinel(e.Phase); s != nil {
		return []error{s, e.Err}
	}
	return []error{e.Err}
}

func phaseSentinel(p State) error {
	switch p {
	case StateCreated:
		return ErrAllocate
	case StateCrawling:
		return ErrCrawl
	case StateLoading:
		return ErrLoad
	case StateDiffing:
		return ErrDiff
	case StateFinalized:
		return ErrFinalize
	}
	return nil
}
