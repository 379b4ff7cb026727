// Package snapshot loads the full list of ledger proposals.
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Malyypnrhz7/vote-vault-fhe/log"
	"github.com/Malyypnrhz7/vote-vault-fhe/metrics"
	"github.com/Malyypnrhz7/vote-vault-fhe/types"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of proposals read in parallel.
const DefaultConcurrency = 8

// Reader is the part of the ledger gateway the loader needs.
type Reader interface {
	ProposalCount(ctx context.Context) (uint64, error)
	ProposalInfo(ctx context.Context, id uint64) (*types.Proposal, error)
}

// Snapshot is an ordered view of the ledger proposals.
type Snapshot struct {
	Proposals []*types.Proposal
	// Count is the number of proposals the ledger reported, it may be larger
	// than len(Proposals) when some reads failed.
	Count    uint64
	LoadedAt time.Time
}

// Find returns the proposal with the given id, or nil.
func (s *Snapshot) Find(id uint64) *types.Proposal {
	if s == nil {
		return nil
	}
	i := sort.Search(len(s.Proposals), func(i int) bool {
		return s.Proposals[i].ID >= id
	})
	if i < len(s.Proposals) && s.Proposals[i].ID == id {
		return s.Proposals[i]
	}
	return nil
}

// Load reads every proposal and returns the snapshot.
func Load(ctx context.Context, r Reader) (*Snapshot, error) {
	count, err := r.ProposalCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot read proposal count: %w", err)
	}
	proposals := loadIDs(ctx, r, count)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load proposals: %w: %w", types.ErrTimeout, err)
	}
	return &Snapshot{Proposals: proposals, Count: count, LoadedAt: time.Now()}, nil
}

// LoadAll reads every proposal and returns them sorted by ascending id.
// Proposals that cannot be read are logged and skipped, so the result may be
// shorter than the ledger proposal count. Only a failure to read the count
// fails the whole load.
func LoadAll(ctx context.Context, r Reader) ([]*types.Proposal, error) {
	s, err := Load(ctx, r)
	if err != nil {
		return nil, err
	}
	return s.Proposals, nil
}

func loadIDs(ctx context.Context, r Reader, count uint64) []*types.Proposal {
	var (
		mu        sync.Mutex
		proposals = make([]*types.Proposal, 0, count)
		failed    int
	)
	g := new(errgroup.Group)
	g.SetLimit(DefaultConcurrency)
	for id := uint64(0); id < count; id++ {
		id := id
		g.Go(func() error {
			p, err := r.ProposalInfo(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				log.Warnw("cannot load proposal, skipping", "proposalId", id, "error", err)
				return nil
			}
			proposals = append(proposals, p.Normalize())
			return nil
		})
	}
	// per-proposal failures never abort the group
	_ = g.Wait()

	sort.Slice(proposals, func(i, j int) bool {
		return proposals[i].ID < proposals[j].ID
	})
	metrics.Votes().ObserveSnapshot(len(proposals), failed)
	log.Debugw("proposal snapshot loaded", "count", count, "loaded", len(proposals), "failed", failed)
	return proposals
}
