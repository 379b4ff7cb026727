package web3

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// maxLogChunks caps the log queries of a single scan. A scan that hits it
// resumes from where it stopped on the next call.
const maxLogChunks = 20

// head returns the latest block number.
func (c *Contracts) head(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	h, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, translateError(ctx, "head", err)
	}
	return h.Number.Uint64(), nil
}

// filterRange returns the ledger logs matching topics in blocks [from, to],
// querying at most maxLogRange blocks at a time. It returns the next block to
// scan, which is to+1 when the whole range was covered.
func (c *Contracts) filterRange(ctx context.Context, topics [][]common.Hash, from, to uint64) ([]gethtypes.Log, uint64, error) {
	var logs []gethtypes.Log
	for i := 0; from <= to && i < maxLogChunks; i++ {
		end := min(to, from+c.maxLogRange-1)
		qctx, cancel := context.WithTimeout(ctx, c.callTimeout)
		chunk, err := c.backend.FilterLogs(qctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{c.address},
			Topics:    topics,
		})
		cancel()
		if err != nil {
			return logs, from, translateError(ctx, fmt.Sprintf("filter logs %d-%d", from, end), err)
		}
		logs = append(logs, chunk...)
		from = end + 1
	}
	return logs, from, nil
}

// blockAt returns the first block mined at or after the unix time ts, or the
// head when no such block exists yet.
func (c *Contracts) blockAt(ctx context.Context, ts uint64) (uint64, error) {
	head, err := c.head(ctx)
	if err != nil {
		return 0, err
	}
	lo, hi := uint64(0), head
	for lo < hi {
		mid := lo + (hi-lo)/2
		hctx, cancel := context.WithTimeout(ctx, c.callTimeout)
		h, err := c.backend.HeaderByNumber(hctx, new(big.Int).SetUint64(mid))
		cancel()
		if err != nil {
			return 0, translateError(ctx, "header", err)
		}
		if h.Time >= ts {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo, nil
}

// decryptedResults returns the published results of the proposal, or nil if
// they are not published yet. Each proposal is scanned forward from its
// creation block and a block range is never scanned twice.
func (c *Contracts) decryptedResults(ctx context.Context, id uint64) (*resultsDecrypted, error) {
	c.revealsMu.Lock()
	res, done := c.reveals[id]
	from, started := c.revealNext[id]
	c.revealsMu.Unlock()
	if done {
		return res, nil
	}
	if !started {
		p, err := c.ProposalInfo(ctx, id)
		if err != nil {
			return nil, err
		}
		var ts uint64
		if unix := p.CreationTime.Unix(); !p.CreationTime.IsZero() && unix > 0 {
			ts = uint64(unix)
		}
		if from, err = c.blockAt(ctx, ts); err != nil {
			return nil, err
		}
	}
	head, err := c.head(ctx)
	if err != nil {
		return nil, err
	}
	event := voteVaultABI.Events[eventResultsDecrypted]
	logs, next, err := c.filterRange(ctx, [][]common.Hash{{event.ID}, {common.BigToHash(new(big.Int).SetUint64(id))}}, from, head)
	if len(logs) > 0 {
		res = new(resultsDecrypted)
		if uerr := c.conn.Load().contract.UnpackLog(res, eventResultsDecrypted, logs[len(logs)-1]); uerr != nil {
			return nil, fmt.Errorf("failed to unpack %s: %w", eventResultsDecrypted, uerr)
		}
	}
	c.revealsMu.Lock()
	if res != nil {
		c.reveals[id] = res
		delete(c.revealNext, id)
	} else if next > c.revealNext[id] {
		c.revealNext[id] = next
	}
	c.revealsMu.Unlock()
	if res != nil {
		return res, nil
	}
	return nil, err
}
