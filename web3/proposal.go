package web3

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/Malyypnrhz7/vote-vault-fhe/log"
	"github.com/Malyypnrhz7/vote-vault-fhe/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// call runs a view method on the current connection.
func (c *Contracts) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	opts, cancel := c.callOpts(ctx)
	defer cancel()
	var out []interface{}
	if err := c.conn.Load().contract.Call(opts, &out, method, params...); err != nil {
		return nil, translateError(opts.Context, method, err)
	}
	return out, nil
}

func (c *Contracts) callBool(ctx context.Context, method string, params ...interface{}) (bool, error) {
	out, err := c.call(ctx, method, params...)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (c *Contracts) callUint(ctx context.Context, method string, params ...interface{}) (uint64, error) {
	out, err := c.call(ctx, method, params...)
	if err != nil {
		return 0, err
	}
	return bigToUint64(*abi.ConvertType(out[0], new(*big.Int)).(**big.Int)), nil
}

// ProposalCount returns the number of proposals created in the ledger.
func (c *Contracts) ProposalCount(ctx context.Context) (uint64, error) {
	return c.callUint(ctx, methodGetProposalCount)
}

// VoteCount returns the number of votes cast in the ledger.
func (c *Contracts) VoteCount(ctx context.Context) (uint64, error) {
	return c.callUint(ctx, methodGetVoteCount)
}

// ProposalInfo returns the proposal with the given id. Ledger integers are
// normalised to native ones and the lifecycle flags are made consistent.
func (c *Contracts) ProposalInfo(ctx context.Context, id uint64) (*types.Proposal, error) {
	out, err := c.call(ctx, methodGetProposalInfo, new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	if len(out) != 11 {
		return nil, fmt.Errorf("%s: unexpected number of values %d", methodGetProposalInfo, len(out))
	}
	p := &types.Proposal{
		ID:           id,
		Title:        *abi.ConvertType(out[0], new(string)).(*string),
		Description:  *abi.ConvertType(out[1], new(string)).(*string),
		ForVotes:     int(*abi.ConvertType(out[2], new(uint8)).(*uint8)),
		AgainstVotes: int(*abi.ConvertType(out[3], new(uint8)).(*uint8)),
		TotalVotes:   int(*abi.ConvertType(out[4], new(uint8)).(*uint8)),
		IsActive:     *abi.ConvertType(out[5], new(bool)).(*bool),
		IsEnded:      *abi.ConvertType(out[6], new(bool)).(*bool),
		Proposer:     *abi.ConvertType(out[7], new(common.Address)).(*common.Address),
		StartTime:    unixTime(*abi.ConvertType(out[8], new(*big.Int)).(**big.Int)),
		EndTime:      unixTime(*abi.ConvertType(out[9], new(*big.Int)).(**big.Int)),
		CreationTime: unixTime(*abi.ConvertType(out[10], new(*big.Int)).(**big.Int)),
	}
	// unknown ids read back as an empty struct
	if p.Proposer == (common.Address{}) && p.Title == "" && p.CreationTime.IsZero() {
		return nil, fmt.Errorf("proposal %d: %w", id, types.ErrProposalNotFound)
	}
	return p.Normalize(), nil
}

// HasVoted returns whether voter already cast a ballot on the proposal.
func (c *Contracts) HasVoted(ctx context.Context, voter common.Address, id uint64) (bool, error) {
	return c.callBool(ctx, methodHasVoted, voter, new(big.Int).SetUint64(id))
}

// IsVotingActive returns whether the proposal accepts votes.
func (c *Contracts) IsVotingActive(ctx context.Context, id uint64) (bool, error) {
	return c.callBool(ctx, methodIsVotingActive, new(big.Int).SetUint64(id))
}

// CanRevealVotes returns whether the proposal tallies can be decrypted.
func (c *Contracts) CanRevealVotes(ctx context.Context, id uint64) (bool, error) {
	return c.callBool(ctx, methodCanRevealVotes, new(big.Int).SetUint64(id))
}

// resultsDecrypted is the ResultsDecrypted event payload.
type resultsDecrypted struct {
	ProposalId   *big.Int
	ForVotes     uint32
	AgainstVotes uint32
}

// EncryptedTallies returns the ciphertext handles of the proposal counters.
// If the ledger already published the decrypted results the plaintext
// counters are filled and Revealed is set.
func (c *Contracts) EncryptedTallies(ctx context.Context, id uint64) (*types.EncryptedTallies, error) {
	out, err := c.call(ctx, methodGetEncryptedTallies, new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	tallies := &types.EncryptedTallies{
		ProposalID: id,
		For:        common.Hash(*abi.ConvertType(out[0], new([32]byte)).(*[32]byte)),
		Against:    common.Hash(*abi.ConvertType(out[1], new([32]byte)).(*[32]byte)),
		Total:      common.Hash(*abi.ConvertType(out[2], new([32]byte)).(*[32]byte)),
	}
	res, err := c.decryptedResults(ctx, id)
	if err != nil {
		// providers often cap log ranges, tallies stay encrypted
		log.Warnw("cannot read decrypted results", "proposalId", id, "error", err)
		return tallies, nil
	}
	if res != nil {
		tallies.Revealed = true
		tallies.ForVotes = int(res.ForVotes)
		tallies.AgainstVotes = int(res.AgainstVotes)
	}
	return tallies, nil
}

// CreateProposal creates a new proposal lasting durationSeconds. It returns
// the proposal id, read from the ProposalCreated event, once the transaction
// is mined.
func (c *Contracts) CreateProposal(ctx context.Context, title, description string, durationSeconds uint64) (uint64, *types.Receipt, error) {
	receipt, err := c.transact(ctx, methodCreateProposal, title, description, new(big.Int).SetUint64(durationSeconds))
	if err != nil {
		return 0, nil, err
	}
	id, ok := c.createdProposalID(receipt)
	if !ok {
		// no event in the receipt, the new proposal is the last one
		count, err := c.ProposalCount(ctx)
		if err != nil || count == 0 {
			return 0, nil, fmt.Errorf("cannot find the id of the created proposal: %w", err)
		}
		id = count - 1
	}
	return id, toReceipt(receipt), nil
}

func (c *Contracts) createdProposalID(receipt *gethtypes.Receipt) (uint64, bool) {
	eventID := voteVaultABI.Events[eventProposalCreated].ID
	for _, l := range receipt.Logs {
		if l.Address != c.address || len(l.Topics) < 2 || l.Topics[0] != eventID {
			continue
		}
		return l.Topics[1].Big().Uint64(), true
	}
	return 0, false
}

// CastVote submits the encrypted ballot for the proposal and waits until it
// is mined.
func (c *Contracts) CastVote(ctx context.Context, id uint64, input *types.EncryptedInput) (*types.Receipt, error) {
	if input == nil {
		return nil, fmt.Errorf("%s: missing encrypted input", methodCastVote)
	}
	receipt, err := c.transact(ctx, methodCastVote, new(big.Int).SetUint64(id), [32]byte(input.Handle), []byte(input.Proof))
	if err != nil {
		return nil, err
	}
	return toReceipt(receipt), nil
}

// EndProposal closes the proposal and waits until the transaction is mined.
func (c *Contracts) EndProposal(ctx context.Context, id uint64) (*types.Receipt, error) {
	receipt, err := c.transact(ctx, methodEndProposal, new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	return toReceipt(receipt), nil
}

// transact sends a transaction through a signing connection and waits for it
// to be mined. Reverted transactions are reported as
// *types.RemoteRejectedError with the reason obtained by replaying the call.
func (c *Contracts) transact(ctx context.Context, method string, params ...interface{}) (*gethtypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.txTimeout)
	defer cancel()
	conn, err := c.signing(ctx)
	if err != nil {
		return nil, err
	}
	txOpts, err := c.authTransactOpts(ctx, conn)
	if err != nil {
		return nil, translateError(ctx, method, fmt.Errorf("failed to create transact options: %w", err))
	}
	tx, err := conn.contract.Transact(txOpts, method, params...)
	if err != nil {
		return nil, translateError(ctx, method, err)
	}
	log.Debugw("transaction sent", "method", method, "hash", tx.Hash().Hex())
	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, translateError(ctx, method, fmt.Errorf("failed waiting for %s: %w", tx.Hash().Hex(), err))
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return nil, c.replayRevert(ctx, conn, tx, receipt)
	}
	log.Infow("transaction mined", "method", method, "hash", tx.Hash().Hex(), "block", receipt.BlockNumber)
	return receipt, nil
}

// replayRevert calls the reverted transaction again at its block to get the
// revert reason.
func (c *Contracts) replayRevert(ctx context.Context, conn *Connection, tx *gethtypes.Transaction, receipt *gethtypes.Receipt) error {
	msg := ethereum.CallMsg{
		From:  conn.Signer().Address(),
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}
	_, err := c.backend.CallContract(ctx, msg, receipt.BlockNumber)
	if err != nil {
		if reason, ok := revertReason(err); ok {
			return rejected(reason, err)
		}
	}
	return rejected("transaction reverted", fmt.Errorf("transaction %s failed", tx.Hash().Hex()))
}

// MonitorProposalsByPolling polls the ledger every interval for events
// touching a proposal (creation, votes and ending) and sends the affected
// proposal ids to the returned channel. Only events mined from the current
// head on are reported.
func (c *Contracts) MonitorProposalsByPolling(ctx context.Context, interval time.Duration) (<-chan uint64, error) {
	created := voteVaultABI.Events[eventProposalCreated]
	cast := voteVaultABI.Events[eventVoteCast]
	ended := voteVaultABI.Events[eventProposalEnded]
	topics := [][]common.Hash{{created.ID, cast.ID, ended.ID}}
	from, err := c.head(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot start proposal monitor: %w", err)
	}
	ch := make(chan uint64)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Warnw("exiting monitor proposals")
				return
			case <-ticker.C:
				head, err := c.head(ctx)
				if err != nil {
					log.Warnw("failed to read chain head, retrying", "err", err)
					continue
				}
				logs, next, err := c.filterRange(ctx, topics, from, head)
				from = next
				if err != nil {
					log.Warnw("failed to filter proposal events, retrying", "from", from, "err", err)
				}
				for _, l := range logs {
					id, ok := proposalIDFromLog(l, cast.ID)
					if !ok {
						continue
					}
					select {
					case ch <- id:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return ch, nil
}

// proposalIDFromLog returns the proposal id of a ledger event. VoteCast
// carries it as the second indexed topic, the other events as the first.
func proposalIDFromLog(l gethtypes.Log, voteCastID common.Hash) (uint64, bool) {
	idx := 1
	if len(l.Topics) > 0 && l.Topics[0] == voteCastID {
		idx = 2
	}
	if len(l.Topics) <= idx {
		return 0, false
	}
	return l.Topics[idx].Big().Uint64(), true
}

func toReceipt(r *gethtypes.Receipt) *types.Receipt {
	receipt := &types.Receipt{
		TxHash:  r.TxHash,
		GasUsed: r.GasUsed,
		Status:  r.Status,
	}
	if r.BlockNumber != nil {
		receipt.BlockNumber = r.BlockNumber.Uint64()
	}
	return receipt
}

func bigToUint64(v *big.Int) uint64 {
	if v == nil || v.Sign() < 0 || !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}

func unixTime(v *big.Int) time.Time {
	secs := bigToUint64(v)
	if secs == 0 {
		return time.Time{}
	}
	return time.Unix(int64(secs), 0)
}
