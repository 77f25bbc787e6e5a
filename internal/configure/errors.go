package configure

import (
	"fmt"
	"strings"

	"github.com/bnema/wayrange/internal/display"
)

// ValidationError reports every problem found in a desired configuration,
// not just the first. Nothing has been sent to the compositor when one is
// returned.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.Problems, "; "))
}

// StaleSnapshotError means the arrangement was computed against output
// state that is no longer current. The caller must re-enumerate and
// rearrange; the applier never retries on its own.
type StaleSnapshotError struct {
	PendingSerial uint64
	LatestSerial  uint64
}

func (e *StaleSnapshotError) Error() string {
	return fmt.Sprintf("snapshot %d is stale: output state is at serial %d, re-enumerate and rearrange", e.PendingSerial, e.LatestSerial)
}

// RejectedError means the compositor refused the configuration as a whole
// and the previous state is still in effect.
type RejectedError struct {
	Err error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("compositor rejected the configuration: %v", e.Err)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// PartialApplyError means the commit failed in a way that may have left
// some of the change in effect. Actual holds the re-queried state and
// Deviations what still differs from the request; both are nil when even
// the re-query failed.
type PartialApplyError struct {
	Cause      error
	Actual     *display.Snapshot
	Deviations []Deviation
}

func (e *PartialApplyError) Error() string {
	if e.Actual == nil {
		return fmt.Sprintf("apply failed and the resulting state could not be read: %v", e.Cause)
	}
	return fmt.Sprintf("apply failed with the change partially in effect (%d outputs deviate): %v", len(e.Deviations), e.Cause)
}

func (e *PartialApplyError) Unwrap() error { return e.Cause }

// VerifyError means the compositor accepted the configuration but the
// re-queried state does not match what was requested.
type VerifyError struct {
	Actual     *display.Snapshot
	Deviations []Deviation
}

func (e *VerifyError) Error() string {
	if len(e.Deviations) == 0 {
		return "applied configuration did not verify"
	}
	return fmt.Sprintf("applied configuration did not verify: %d deviations, first: %s", len(e.Deviations), e.Deviations[0])
}

// Deviation is one field of one output that differs between the requested
// and the observed state.
type Deviation struct {
	Name  string
	Field string
	Want  string
	Got   string
}

func (d Deviation) String() string {
	return fmt.Sprintf("%s: %s want %s, got %s", d.Name, d.Field, d.Want, d.Got)
}
