package web3

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Malyypnrhz7/vote-vault-fhe/types"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const executionReverted = "execution reverted"

// reasonKinds maps fragments of ledger revert reasons to local errors.
var reasonKinds = []struct {
	fragment string
	kind     error
}{
	{"already voted", types.ErrAlreadyVoted},
	{"has voted", types.ErrAlreadyVoted},
	{"voting period has ended", types.ErrVotingClosed},
	{"not active", types.ErrVotingClosed},
	{"already ended", types.ErrVotingClosed},
	{"has ended", types.ErrVotingClosed},
	{"does not exist", types.ErrProposalNotFound},
	{"not found", types.ErrProposalNotFound},
	{"invalid proposal", types.ErrProposalNotFound},
}

// reasonKind returns the local error identified by the revert reason, if any.
func reasonKind(reason string) error {
	reason = strings.ToLower(reason)
	for _, rk := range reasonKinds {
		if strings.Contains(reason, rk.fragment) {
			return rk.kind
		}
	}
	return nil
}

// revertReason extracts the revert reason carried by a node error. It
// returns false when the error is not a revert.
func revertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if reason, ok := unpackRevertData(dataErr.ErrorData()); ok {
			return reason, true
		}
	}
	msg := err.Error()
	if i := strings.Index(msg, executionReverted); i >= 0 {
		reason := strings.TrimSpace(strings.TrimPrefix(msg[i+len(executionReverted):], ":"))
		if reason == "" {
			reason = executionReverted
		}
		return reason, true
	}
	return "", false
}

func unpackRevertData(data interface{}) (string, bool) {
	var raw []byte
	switch d := data.(type) {
	case string:
		b, err := hexutil.Decode(d)
		if err != nil {
			return "", false
		}
		raw = b
	case []byte:
		raw = d
	default:
		return "", false
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil {
		return "", false
	}
	return reason, true
}

// rejected builds the RemoteRejectedError for a ledger refusal.
func rejected(reason string, cause error) *types.RemoteRejectedError {
	return &types.RemoteRejectedError{
		Reason: reason,
		Kind:   reasonKind(reason),
		Cause:  cause,
	}
}

// translateError maps errors coming from the chain into the local taxonomy:
// expired deadlines become types.ErrTimeout, reverts and node refusals become
// *types.RemoteRejectedError. Anything else is wrapped with the operation
// name.
func translateError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	var rre *types.RemoteRejectedError
	if errors.As(err, &rre) || errors.Is(err, types.ErrNotConnected) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, types.ErrTimeout, err)
	}
	if reason, ok := revertReason(err); ok {
		return rejected(reason, err)
	}
	if strings.Contains(err.Error(), "insufficient funds") {
		return rejected("insufficient funds for transaction", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
