//nolint:lll
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Malyypnrhz7/vote-vault-fhe/types"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400, 404, 409 or 429, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500, 502, 503 or 504.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX
// If you notice there's a gap (say, error code 4010, 4011 and 4013 exist, 4012 is missing) DON'T fill in the gap,
// that code was used in the past for some error (not anymore) and shouldn't be reused.
var (
	ErrResourceNotFound    = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody       = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMalformedProposalID = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed proposal ID")}
	ErrProposalNotFound    = Error{Code: 40007, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("proposal not found")}
	ErrInvalidVoteChoice   = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid vote choice")}
	ErrAlreadyVoted        = Error{Code: 40009, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("already voted on this proposal")}
	ErrVotingClosed        = Error{Code: 40010, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("voting period has ended")}
	ErrInvalidIdentity     = Error{Code: 40011, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid identity")}
	ErrTooManyRequests     = Error{Code: 40012, HTTPstatus: http.StatusTooManyRequests, Err: fmt.Errorf("too many requests")}
	ErrInvalidProposal     = Error{Code: 40013, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid proposal")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	ErrNotConnected               = Error{Code: 50003, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("ledger not connected")}
	ErrLedgerRejected             = Error{Code: 50004, HTTPstatus: http.StatusBadGateway, Err: fmt.Errorf("ledger rejected the operation")}
	ErrTimeout                    = Error{Code: 50005, HTTPstatus: http.StatusGatewayTimeout, Err: fmt.Errorf("operation timed out")}
	ErrServiceUnavailable         = Error{Code: 50006, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("service temporarily unavailable")}
)

// errorFrom maps the coordinator errors to the API errors. Unknown errors are
// reported as internal server errors.
func errorFrom(err error) Error {
	var apiErr Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, types.ErrAlreadyVoted):
		return ErrAlreadyVoted.WithErr(err)
	case errors.Is(err, types.ErrVotingClosed):
		return ErrVotingClosed.WithErr(err)
	case errors.Is(err, types.ErrProposalNotFound):
		return ErrProposalNotFound.WithErr(err)
	case errors.Is(err, types.ErrRemoteRejected):
		return ErrLedgerRejected.WithErr(err)
	case errors.Is(err, types.ErrInvalidIdentity):
		return ErrInvalidIdentity.WithErr(err)
	case errors.Is(err, types.ErrNotConnected):
		return ErrNotConnected.WithErr(err)
	case errors.Is(err, types.ErrTimeout):
		return ErrTimeout.WithErr(err)
	case errors.Is(err, types.ErrTransientUnavailable):
		return ErrServiceUnavailable.WithErr(err)
	}
	return ErrGenericInternalServerError.WithErr(err)
}
