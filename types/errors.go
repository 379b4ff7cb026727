package types

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIdentity is returned for malformed or zero ledger/voter addresses.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrAlreadyVoted is returned when the voter already cast a ballot for the proposal.
	ErrAlreadyVoted = errors.New("already voted on this proposal")
	// ErrVotingClosed is returned when the proposal no longer accepts votes.
	ErrVotingClosed = errors.New("voting period has ended")
	// ErrNotConnected is returned when a write needs a ledger or a signer
	// that is not available.
	ErrNotConnected = errors.New("ledger not connected")
	// ErrRemoteRejected is matched by every RemoteRejectedError.
	ErrRemoteRejected = errors.New("ledger rejected the operation")
	// ErrTimeout is returned when a caller deadline expires during an
	// external call.
	ErrTimeout = errors.New("operation timed out")
	// ErrTransientUnavailable is returned when the encryption relayer or the
	// network cannot be reached and degradation is not allowed.
	ErrTransientUnavailable = errors.New("service temporarily unavailable")
	// ErrProposalNotFound is returned for unknown proposal ids.
	ErrProposalNotFound = errors.New("proposal not found")
)

// RemoteRejectedError carries the reason given by the ledger for declining a
// write. It matches ErrRemoteRejected, the original cause and, when the reason
// identifies it, the corresponding local error (Kind).
type RemoteRejectedError struct {
	Reason string
	Kind   error
	Cause  error
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRemoteRejected, e.Reason)
}

func (e *RemoteRejectedError) Unwrap() []error {
	errs := []error{ErrRemoteRejected}
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}
