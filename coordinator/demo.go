package coordinator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Malyypnrhz7/vote-vault-fhe/log"
	"github.com/Malyypnrhz7/vote-vault-fhe/storage"
	"github.com/Malyypnrhz7/vote-vault-fhe/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DemoVoter is the identity used for votes cast in demo mode.
var DemoVoter = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

type demoSeed struct {
	title, description string
	duration           time.Duration
}

var demoSeeds = []demoSeed{
	{
		title:       "Treasury Allocation for Development Fund",
		description: "Allocate 500,000 tokens from treasury to support core development initiatives",
		duration:    62 * time.Hour,
	},
	{
		title:       "Implementation of New Governance Model",
		description: "Adopt quadratic voting mechanism to improve democratic participation and reduce whale influence",
		duration:    123 * time.Hour,
	},
	{
		title:       "Partnership with DeFi Protocol",
		description: "Strategic partnership to integrate yield farming capabilities into the platform ecosystem",
		duration:    32 * time.Hour,
	},
}

// demoLedger is the local, non authoritative ledger used when no real ledger
// is reachable. Votes are kept in clear and may be replaced until the
// proposal ends. Results are revealed revealDelay after the end.
type demoLedger struct {
	mu          sync.Mutex
	stg         *storage.Storage
	revealDelay time.Duration
	timers      map[uint64]*time.Timer
	nonce       uint64
}

func newDemoLedger(stg *storage.Storage, revealDelay time.Duration) *demoLedger {
	return &demoLedger{
		stg:         stg,
		revealDelay: revealDelay,
		timers:      make(map[uint64]*time.Timer),
	}
}

// seed stores the sample proposals if the demo ledger is empty.
func (d *demoLedger) seed() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	proposals, err := d.stg.DemoProposals()
	if err != nil {
		return err
	}
	if len(proposals) > 0 {
		return nil
	}
	now := time.Now().Truncate(time.Second)
	for i, s := range demoSeeds {
		if err := d.stg.SetDemoProposal(&types.Proposal{
			ID:           uint64(i),
			Title:        s.title,
			Description:  s.description,
			IsActive:     true,
			StartTime:    now,
			EndTime:      now.Add(s.duration),
			CreationTime: now,
		}); err != nil {
			return err
		}
	}
	log.Infow("demo ledger seeded", "proposals", len(demoSeeds))
	return nil
}

func (d *demoLedger) proposals() ([]*types.Proposal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	proposals, err := d.stg.DemoProposals()
	if err != nil {
		return nil, err
	}
	for _, p := range proposals {
		p.Normalize()
	}
	return proposals, nil
}

func (d *demoLedger) proposal(id uint64) (*types.Proposal, error) {
	p, err := d.stg.DemoProposal(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("demo proposal %d: %w", id, types.ErrProposalNotFound)
	}
	if err != nil {
		return nil, err
	}
	return p.Normalize(), nil
}

// receipt returns a local receipt; demo writes never leave the process.
func (d *demoLedger) receipt(op string, id uint64) *types.Receipt {
	d.nonce++
	return &types.Receipt{
		TxHash:      crypto.Keccak256Hash([]byte(fmt.Sprintf("demo/%s/%d/%d/%d", op, id, d.nonce, time.Now().UnixNano()))),
		BlockNumber: d.nonce,
		Status:      1,
		Local:       true,
	}
}

// cast records the vote, replacing any previous vote of voter.
func (d *demoLedger) cast(id uint64, voter common.Address, choice types.VoteChoice) (*types.Receipt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.proposal(id)
	if err != nil {
		return nil, err
	}
	if !p.Open() {
		return nil, fmt.Errorf("demo proposal %d: %w", id, types.ErrVotingClosed)
	}
	if err := d.stg.SetDemoVote(&types.DemoVote{
		ProposalID: id,
		Voter:      voter,
		Choice:     choice,
		Timestamp:  time.Now().Truncate(time.Second),
	}); err != nil {
		return nil, err
	}
	votes, err := d.stg.DemoVotes(id)
	if err != nil {
		return nil, err
	}
	p.TotalVotes = len(votes)
	if err := d.stg.SetDemoProposal(p); err != nil {
		return nil, err
	}
	return d.receipt("vote", id), nil
}

func (d *demoLedger) hasVoted(id uint64, voter common.Address) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	votes, err := d.stg.DemoVotes(id)
	if err != nil {
		return false, err
	}
	for _, v := range votes {
		if v.Voter == voter {
			return true, nil
		}
	}
	return false, nil
}

func (d *demoLedger) create(title, description string, durationSeconds uint64, proposer common.Address) (uint64, *types.Receipt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	proposals, err := d.stg.DemoProposals()
	if err != nil {
		return 0, nil, err
	}
	var id uint64
	if n := len(proposals); n > 0 {
		id = proposals[n-1].ID + 1
	}
	now := time.Now().Truncate(time.Second)
	if err := d.stg.SetDemoProposal(&types.Proposal{
		ID:           id,
		Title:        title,
		Description:  description,
		IsActive:     true,
		Proposer:     proposer,
		StartTime:    now,
		EndTime:      now.Add(time.Duration(durationSeconds) * time.Second),
		CreationTime: now,
	}); err != nil {
		return 0, nil, err
	}
	return id, d.receipt("create", id), nil
}

// end closes the proposal and schedules the reveal. revealed is called after
// the results are stored.
func (d *demoLedger) end(id uint64, revealed func(id uint64)) (*types.Receipt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.proposal(id)
	if err != nil {
		return nil, err
	}
	if p.IsEnded {
		return nil, fmt.Errorf("demo proposal %d already ended: %w", id, types.ErrVotingClosed)
	}
	p.IsActive, p.IsEnded = false, true
	if err := d.stg.SetDemoProposal(p); err != nil {
		return nil, err
	}
	d.timers[id] = time.AfterFunc(d.revealDelay, func() {
		if err := d.reveal(id); err != nil {
			log.Warnw("cannot reveal demo results", "proposalId", id, "error", err)
			return
		}
		if revealed != nil {
			revealed(id)
		}
	})
	return d.receipt("end", id), nil
}

// reveal computes the tallies from the stored demo votes.
func (d *demoLedger) reveal(id uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.timers, id)
	p, err := d.proposal(id)
	if err != nil {
		return err
	}
	votes, err := d.stg.DemoVotes(id)
	if err != nil {
		return err
	}
	p.ForVotes, p.AgainstVotes = 0, 0
	for _, v := range votes {
		if v.Choice == types.VoteFor {
			p.ForVotes++
		} else {
			p.AgainstVotes++
		}
	}
	p.TotalVotes = len(votes)
	p.Revealed = true
	log.Infow("demo results revealed", "proposalId", id, "for", p.ForVotes, "against", p.AgainstVotes)
	return d.stg.SetDemoProposal(p)
}

// tallies returns the demo counters. Demo mode encrypts nothing, so handles
// are always zero.
func (d *demoLedger) tallies(id uint64) (*types.EncryptedTallies, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.proposal(id)
	if err != nil {
		return nil, err
	}
	t := &types.EncryptedTallies{ProposalID: id, Revealed: p.Revealed}
	if p.Revealed {
		t.ForVotes, t.AgainstVotes = p.ForVotes, p.AgainstVotes
	}
	return t, nil
}

func (d *demoLedger) voteCount() (uint64, error) {
	proposals, err := d.proposals()
	if err != nil {
		return 0, err
	}
	var n uint64
	for _, p := range proposals {
		n += uint64(p.TotalVotes)
	}
	return n, nil
}

// stop cancels the pending reveals.
func (d *demoLedger) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
}
