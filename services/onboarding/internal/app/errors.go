package app

import (
	"errors"
	"fmt"
)

// Precondition reason codes. These are user-correctable refusals: nothing was
// written when one is returned.
const (
	ReasonCandidateNotFound = "candidate_not_found"
	ReasonNoApplication     = "no_application"
	ReasonAlreadyHired      = "already_hired"
	ReasonRejectedDecision  = "rejected_decision"
	ReasonNoApproval        = "no_approval"
)

var (
	// ErrPromoteInFlight is returned when a promotion for the same
	// candidate is already being processed.
	ErrPromoteInFlight = errors.New("promotion already in progress for candidate")

	// ErrDuplicateUpload is returned when an identical blob was uploaded
	// within the duplicate-detection window.
	ErrDuplicateUpload = errors.New("identical upload already in progress")
)

// PreconditionError reports a fatal, non-retryable refusal raised before any
// write occurred.
type PreconditionError struct {
	CandidateID string
	Reason      string
	Message     string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("promote %s refused (%s): %s", e.CandidateID, e.Reason, e.Message)
}

// PartialSuccessError reports that the employee was fully provisioned but
// contract creation failed. The caller should offer the narrower
// retry-contract path instead of re-running the whole promotion.
type PartialSuccessError struct {
	CandidateID  string
	IdentityID   string
	TempPassword string // set only when a new identity was created this run
	Err          error
}

func (e *PartialSuccessError) Error() string {
	return fmt.Sprintf("employee provisioned, contract missing for candidate %s: %v", e.CandidateID, e.Err)
}

func (e *PartialSuccessError) Unwrap() error { return e.Err }

// CompensationFailureError reports an orphan blob: its metadata insert failed
// and the compensating delete failed too. The orphan path is preserved for
// out-of-band reconciliation.
type CompensationFailureError struct {
	OrphanPath string
	InsertErr  error
	DeleteErr  error
}

func (e *CompensationFailureError) Error() string {
	return fmt.Sprintf("attachment registration failed and orphan blob %s could not be deleted: insert: %v; delete: %v",
		e.OrphanPath, e.InsertErr, e.DeleteErr)
}

func (e *CompensationFailureError) Unwrap() error { return e.InsertErr }
