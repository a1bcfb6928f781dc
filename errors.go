package nftflow

import (
	"errors"
	"fmt"
)

var (
	// ErrUserRejected is wrapped by signers when the wallet holder
	// declines to sign.
	ErrUserRejected = errors.New("user rejected the request")

	// ErrNotConnected reports that no wallet account is connected.
	ErrNotConnected = errors.New("no wallet connected")

	// ErrControlBusy reports a submit while the same action control
	// still has a submission in flight.
	ErrControlBusy = errors.New("submission already in progress")

	// ErrFinalityTimeout reports that finality was not observed within
	// the configured wait.
	ErrFinalityTimeout = errors.New("timed out waiting for finality")

	// ErrMalformedRecord reports a gateway payload that failed
	// boundary validation.
	ErrMalformedRecord = errors.New("malformed transaction record")
)

// ReasonMissing is the ValidationError reason for an absent field.
const ReasonMissing = "is required"

// ValidationError is a local, pre-submission input failure. It never
// reaches the network.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError creates a new ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// Missing creates a ValidationError for an absent required field.
func Missing(field string) *ValidationError {
	return NewValidationError(field, ReasonMissing)
}

// SubmissionError reports that the signer or the network refused the
// call. No state changed on-chain.
type SubmissionError struct {
	Reason string
	// Rejected is true when the wallet holder declined to sign.
	Rejected bool
	Err      error
}

func (e *SubmissionError) Error() string {
	if e.Rejected {
		return "submission rejected by signer: " + e.Reason
	}
	return "submission failed: " + e.Reason
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// NewSubmissionError wraps a SubmitAndSign failure.
func NewSubmissionError(err error) *SubmissionError {
	return &SubmissionError{
		Reason:   err.Error(),
		Rejected: errors.Is(err, ErrUserRejected),
		Err:      err,
	}
}

// FinalityError reports that a transaction was accepted by the network
// but either aborted on-chain or its outcome could not be observed.
// Funds or state may already have moved.
type FinalityError struct {
	Hash     string
	VMStatus string
	Err      error
}

func (e *FinalityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transaction %s: %v", e.Hash, e.Err)
	}
	return fmt.Sprintf("transaction %s mined but failed: %s", e.Hash, e.VMStatus)
}

func (e *FinalityError) Unwrap() error { return e.Err }

// NewFinalityError creates a FinalityError for an aborted execution.
func NewFinalityError(hash, vmStatus string) *FinalityError {
	return &FinalityError{Hash: hash, VMStatus: vmStatus}
}

// ReconciliationWarning reports a failed post-success refresh. The
// view is stale until the next poll; it is logged, not shown.
type ReconciliationWarning struct {
	Address string
	Err     error
}

func (e *ReconciliationWarning) Error() string {
	return fmt.Sprintf("reconcile %s: %v", e.Address, e.Err)
}

func (e *ReconciliationWarning) Unwrap() error { return e.Err }

// IsValidation checks whether err is a ValidationError and returns it.
func IsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// IsSubmission checks whether err is a SubmissionError and returns it.
func IsSubmission(err error) (*SubmissionError, bool) {
	var s *SubmissionError
	if errors.As(err, &s) {
		return s, true
	}
	return nil, false
}

// IsFinality checks whether err is a FinalityError and returns it.
func IsFinality(err error) (*FinalityError, bool) {
	var f *FinalityError
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsReconciliation checks whether err is a ReconciliationWarning and
// returns it.
func IsReconciliation(err error) (*ReconciliationWarning, bool) {
	var r *ReconciliationWarning
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// UserMessage returns the short human-readable text shown for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if v, ok := IsValidation(err); ok {
		if v.Reason == ReasonMissing {
			return fmt.Sprintf("Please fill in all fields (%s is missing).", v.Field)
		}
		return fmt.Sprintf("Invalid %s: %s.", v.Field, v.Reason)
	}
	if s, ok := IsSubmission(err); ok {
		if s.Rejected {
			return "Transaction was rejected in the wallet."
		}
		return "Transaction could not be submitted: " + s.Reason
	}
	if f, ok := IsFinality(err); ok {
		if f.Err != nil {
			return fmt.Sprintf("Transaction %s was submitted but its outcome is unknown: %v", f.Hash, f.Err)
		}
		return fmt.Sprintf("Transaction %s mined but failed: %s", f.Hash, f.VMStatus)
	}
	if errors.Is(err, ErrControlBusy) {
		return "A submission is already in progress."
	}
	return err.Error()
}
