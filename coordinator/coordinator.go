// Package coordinator implements the vote submission protocols on top of the
// ledger connection: casting encrypted votes exactly once per voter, ending
// proposals and keeping the proposal snapshot the callers observe.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Malyypnrhz7/vote-vault-fhe/connection"
	"github.com/Malyypnrhz7/vote-vault-fhe/log"
	"github.com/Malyypnrhz7/vote-vault-fhe/metrics"
	"github.com/Malyypnrhz7/vote-vault-fhe/snapshot"
	"github.com/Malyypnrhz7/vote-vault-fhe/storage"
	"github.com/Malyypnrhz7/vote-vault-fhe/types"
	"github.com/Malyypnrhz7/vote-vault-fhe/web3"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultRevealDelay is the time demo mode waits after ending a proposal
// before revealing its results.
const DefaultRevealDelay = 2 * time.Second

// Encrypter produces the encrypted input of a vote choice bound to a ledger
// and a voter.
type Encrypter interface {
	Encrypt(ctx context.Context, ledger, voter common.Address, choice types.VoteChoice) (*types.EncryptedInput, error)
}

// Options configure the Coordinator.
type Options struct {
	RevealDelay time.Duration
}

// Coordinator is the entry point of every vote operation.
type Coordinator struct {
	resolver *connection.Resolver
	channel  Encrypter
	stg      *storage.Storage
	demo     *demoLedger
	locks    keyedMutex

	mu       sync.RWMutex
	snapshot *snapshot.Snapshot
	lastErr  error
}

// New creates a Coordinator. Nothing is resolved until Start is called.
func New(resolver *connection.Resolver, channel Encrypter, stg *storage.Storage, opts Options) *Coordinator {
	if opts.RevealDelay <= 0 {
		opts.RevealDelay = DefaultRevealDelay
	}
	return &Coordinator{
		resolver: resolver,
		channel:  channel,
		stg:      stg,
		demo:     newDemoLedger(stg, opts.RevealDelay),
	}
}

// Start resolves the connection and loads the first snapshot. A failed load
// is recorded as the last error but does not prevent the coordinator from
// working.
func (c *Coordinator) Start(ctx context.Context) types.ConnectionState {
	state := c.resolver.Resolve(ctx)
	if state == types.DemoMode {
		if err := c.demo.seed(); err != nil {
			log.Warnw("cannot seed demo ledger", "error", err)
		}
	}
	if err := c.Reload(ctx); err != nil {
		log.Warnw("initial proposal load failed", "error", err)
	}
	return state
}

// Close stops the pending demo reveals.
func (c *Coordinator) Close() {
	c.demo.stop()
}

// State returns the connection state.
func (c *Coordinator) State() types.ConnectionState {
	return c.resolver.State()
}

// Ledger returns the configured ledger address.
func (c *Coordinator) Ledger() common.Address {
	return c.resolver.Ledger()
}

// Voter returns the identity votes are cast with in the current state, the
// zero address when there is none.
func (c *Coordinator) Voter() common.Address {
	switch c.resolver.State() {
	case types.DemoMode:
		return DemoVoter
	case types.LiveSigning:
		return c.resolver.Account()
	}
	return common.Address{}
}

// LastError returns the error of the last failed operation.
func (c *Coordinator) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// ClearError forgets the last error.
func (c *Coordinator) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = nil
}

func (c *Coordinator) fail(err error) error {
	if err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
	}
	return err
}

// Snapshot returns a copy of the last loaded proposals, ascending by id.
func (c *Coordinator) Snapshot() []*types.Proposal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil {
		return []*types.Proposal{}
	}
	proposals := make([]*types.Proposal, 0, len(c.snapshot.Proposals))
	for _, p := range c.snapshot.Proposals {
		cp := *p
		proposals = append(proposals, &cp)
	}
	return proposals
}

// Proposal returns a copy of the proposal from the last snapshot.
func (c *Coordinator) Proposal(id uint64) (*types.Proposal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p := c.snapshot.Find(id)
	if p == nil {
		return nil, fmt.Errorf("proposal %d: %w", id, types.ErrProposalNotFound)
	}
	cp := *p
	return &cp, nil
}

func (c *Coordinator) knownProposal(id uint64) *types.Proposal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.Find(id)
}

// Reload replaces the snapshot with a fresh load of every proposal.
func (c *Coordinator) Reload(ctx context.Context) error {
	var (
		s   *snapshot.Snapshot
		err error
	)
	switch c.resolver.State() {
	case types.Uninitialized:
		return c.fail(fmt.Errorf("reload proposals: %w", types.ErrNotConnected))
	case types.DemoMode:
		var proposals []*types.Proposal
		if proposals, err = c.demo.proposals(); err == nil {
			s = &snapshot.Snapshot{Proposals: proposals, Count: uint64(len(proposals)), LoadedAt: time.Now()}
		}
	default:
		gw := c.resolver.Gateway()
		if gw == nil {
			return c.fail(fmt.Errorf("reload proposals: %w", types.ErrNotConnected))
		}
		if s, err = snapshot.Load(ctx, gw); err == nil {
			c.loadRevealed(ctx, gw, s)
		}
	}
	if err != nil {
		return c.fail(fmt.Errorf("reload proposals: %w", err))
	}
	c.mu.Lock()
	c.snapshot = s
	c.mu.Unlock()
	return nil
}

// loadRevealed fills the plaintext counters of the ended proposals whose
// results the ledger already published.
func (c *Coordinator) loadRevealed(ctx context.Context, gw web3.LedgerGateway, s *snapshot.Snapshot) {
	for _, p := range s.Proposals {
		if !p.IsEnded {
			continue
		}
		t, err := gw.EncryptedTallies(ctx, p.ID)
		if err != nil {
			log.Warnw("cannot read proposal tallies", "proposalId", p.ID, "error", err)
			continue
		}
		if t.Revealed {
			p.Revealed = true
			p.ForVotes, p.AgainstVotes = t.ForVotes, t.AgainstVotes
			p.TotalVotes = t.ForVotes + t.AgainstVotes
		}
	}
}

// CastVote casts choice on the proposal. In demo mode the vote is recorded
// locally and may replace a previous one. In live mode each voter can vote
// once: the vote is encrypted for (ledger, voter) and submitted, and the
// voter record is only set once the transaction is mined.
func (c *Coordinator) CastVote(ctx context.Context, id uint64, choice types.VoteChoice) (*types.Receipt, error) {
	state := c.resolver.State()
	receipt, err := c.castVote(ctx, state, id, choice)
	metrics.Votes().ObserveVote(state.String(), outcome(err))
	return receipt, c.fail(err)
}

func (c *Coordinator) castVote(ctx context.Context, state types.ConnectionState, id uint64, choice types.VoteChoice) (*types.Receipt, error) {
	switch state {
	case types.Uninitialized:
		return nil, fmt.Errorf("cast vote: %w", types.ErrNotConnected)
	case types.DemoMode:
		receipt, err := c.demo.cast(id, DemoVoter, choice)
		if err != nil {
			return nil, err
		}
		c.reloadDemo()
		log.Infow("demo vote recorded", "proposalId", id)
		return receipt, nil
	}

	voter, err := c.resolver.Upgrade(ctx)
	if err != nil {
		return nil, err
	}
	gw := c.resolver.Gateway()
	if gw == nil {
		return nil, fmt.Errorf("cast vote: %w", types.ErrNotConnected)
	}
	ledger := gw.Address()
	unlock := c.locks.Lock(voteKey(ledger, voter, id))
	defer unlock()

	if rec, err := c.stg.VoterRecord(ledger, voter, id); err == nil && rec.Voted {
		return nil, fmt.Errorf("proposal %d: %w", id, types.ErrAlreadyVoted)
	} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Warnw("cannot read voter record", "proposalId", id, "error", err)
	}
	if p := c.knownProposal(id); p != nil && p.IsEnded {
		return nil, fmt.Errorf("proposal %d: %w", id, types.ErrVotingClosed)
	}

	input, err := c.channel.Encrypt(ctx, ledger, voter, choice)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	receipt, err := gw.CastVote(ctx, id, input)
	metrics.Votes().ObserveLedgerWrite("castVote", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	if err := c.stg.SetVoterRecord(&types.VoterRecord{
		ProposalID:  id,
		Voter:       voter,
		Ledger:      ledger,
		Voted:       true,
		TxHash:      receipt.TxHash,
		Placeholder: input.Placeholder,
		Timestamp:   time.Now(),
	}); err != nil {
		log.Errorw(err, "vote mined but voter record not stored")
	}
	log.Infow("vote cast", "proposalId", id, "voter", voter.Hex(), "txHash", receipt.TxHash.Hex(),
		"placeholder", input.Placeholder)
	return receipt, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, types.ErrAlreadyVoted):
		return "already_voted"
	case errors.Is(err, types.ErrVotingClosed):
		return "closed"
	case errors.Is(err, types.ErrNotConnected):
		return "not_connected"
	case errors.Is(err, types.ErrTimeout):
		return "timeout"
	case errors.Is(err, types.ErrRemoteRejected):
		return "rejected"
	}
	return "error"
}

// HasVoted reports whether the current voter already voted on the proposal.
// The local record is checked first, then the ledger. Read failures are
// logged and reported as false.
func (c *Coordinator) HasVoted(ctx context.Context, id uint64) bool {
	switch c.resolver.State() {
	case types.DemoMode:
		voted, err := c.demo.hasVoted(id, DemoVoter)
		if err != nil {
			log.Warnw("cannot read demo votes", "proposalId", id, "error", err)
		}
		return voted
	case types.LiveReadOnly, types.LiveSigning:
	default:
		return false
	}
	voter := c.resolver.Account()
	if voter == (common.Address{}) {
		return false
	}
	gw := c.resolver.Gateway()
	if gw == nil {
		return false
	}
	if rec, err := c.stg.VoterRecord(gw.Address(), voter, id); err == nil && rec.Voted {
		return true
	}
	voted, err := gw.HasVoted(ctx, voter, id)
	if err != nil {
		log.Warnw("cannot check if voter already voted", "proposalId", id, "error", err)
		return false
	}
	if voted {
		if err := c.stg.SetVoterRecord(&types.VoterRecord{
			ProposalID: id,
			Voter:      voter,
			Ledger:     gw.Address(),
			Voted:      true,
			Timestamp:  time.Now(),
		}); err != nil {
			log.Warnw("cannot store voter record", "proposalId", id, "error", err)
		}
	}
	return voted
}

// EndProposal ends the proposal. Demo mode reveals the results after the
// reveal delay. Live mode reloads the snapshot once the end is mined.
func (c *Coordinator) EndProposal(ctx context.Context, id uint64) (*types.Receipt, error) {
	receipt, err := c.endProposal(ctx, id)
	if err != nil {
		return nil, c.fail(err)
	}
	if err := c.Reload(ctx); err != nil {
		log.Warnw("proposal ended but the snapshot reload failed", "proposalId", id, "error", err)
	}
	return receipt, nil
}

func (c *Coordinator) endProposal(ctx context.Context, id uint64) (*types.Receipt, error) {
	switch c.resolver.State() {
	case types.Uninitialized:
		return nil, fmt.Errorf("end proposal: %w", types.ErrNotConnected)
	case types.DemoMode:
		return c.demo.end(id, func(uint64) { c.reloadDemo() })
	}
	if _, err := c.resolver.Upgrade(ctx); err != nil {
		return nil, err
	}
	gw := c.resolver.Gateway()
	if gw == nil {
		return nil, fmt.Errorf("end proposal: %w", types.ErrNotConnected)
	}
	start := time.Now()
	receipt, err := gw.EndProposal(ctx, id)
	metrics.Votes().ObserveLedgerWrite("endProposal", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	log.Infow("proposal ended", "proposalId", id, "txHash", receipt.TxHash.Hex())
	return receipt, nil
}

// EndAll ends every open proposal of the snapshot and returns how many were
// ended. Failures do not stop the remaining proposals.
func (c *Coordinator) EndAll(ctx context.Context) (int, error) {
	var (
		ended int
		errs  []error
	)
	for _, p := range c.Snapshot() {
		if !p.Open() {
			continue
		}
		if _, err := c.endProposal(ctx, p.ID); err != nil {
			errs = append(errs, fmt.Errorf("proposal %d: %w", p.ID, err))
			continue
		}
		ended++
	}
	if err := c.Reload(ctx); err != nil {
		log.Warnw("snapshot reload after ending proposals failed", "error", err)
	}
	return ended, c.fail(errors.Join(errs...))
}

// CreateProposal creates a proposal lasting durationSeconds and reloads the
// snapshot.
func (c *Coordinator) CreateProposal(ctx context.Context, title, description string, durationSeconds uint64) (uint64, *types.Receipt, error) {
	id, receipt, err := c.createProposal(ctx, title, description, durationSeconds)
	if err != nil {
		return 0, nil, c.fail(err)
	}
	if err := c.Reload(ctx); err != nil {
		log.Warnw("proposal created but the snapshot reload failed", "proposalId", id, "error", err)
	}
	return id, receipt, nil
}

func (c *Coordinator) createProposal(ctx context.Context, title, description string, durationSeconds uint64) (uint64, *types.Receipt, error) {
	if title == "" {
		return 0, nil, fmt.Errorf("empty proposal title")
	}
	if durationSeconds == 0 {
		return 0, nil, fmt.Errorf("invalid proposal duration")
	}
	switch c.resolver.State() {
	case types.Uninitialized:
		return 0, nil, fmt.Errorf("create proposal: %w", types.ErrNotConnected)
	case types.DemoMode:
		return c.demo.create(title, description, durationSeconds, DemoVoter)
	}
	if _, err := c.resolver.Upgrade(ctx); err != nil {
		return 0, nil, err
	}
	gw := c.resolver.Gateway()
	if gw == nil {
		return 0, nil, fmt.Errorf("create proposal: %w", types.ErrNotConnected)
	}
	start := time.Now()
	id, receipt, err := gw.CreateProposal(ctx, title, description, durationSeconds)
	metrics.Votes().ObserveLedgerWrite("createProposal", time.Since(start), err)
	if err != nil {
		return 0, nil, err
	}
	log.Infow("proposal created", "proposalId", id, "txHash", receipt.TxHash.Hex())
	return id, receipt, nil
}

// Tallies returns the encrypted tallies of the proposal, with the plaintext
// counters when revealed.
func (c *Coordinator) Tallies(ctx context.Context, id uint64) (*types.EncryptedTallies, error) {
	switch c.resolver.State() {
	case types.Uninitialized:
		return nil, c.fail(fmt.Errorf("tallies: %w", types.ErrNotConnected))
	case types.DemoMode:
		t, err := c.demo.tallies(id)
		return t, c.fail(err)
	}
	gw := c.resolver.Gateway()
	if gw == nil {
		return nil, c.fail(fmt.Errorf("tallies: %w", types.ErrNotConnected))
	}
	t, err := gw.EncryptedTallies(ctx, id)
	return t, c.fail(err)
}

// IsVotingActive reports whether the proposal accepts votes.
func (c *Coordinator) IsVotingActive(ctx context.Context, id uint64) (bool, error) {
	switch c.resolver.State() {
	case types.Uninitialized:
		return false, fmt.Errorf("voting active: %w", types.ErrNotConnected)
	case types.DemoMode:
		p, err := c.demo.proposal(id)
		if err != nil {
			return false, err
		}
		return p.Open(), nil
	}
	gw := c.resolver.Gateway()
	if gw == nil {
		return false, fmt.Errorf("voting active: %w", types.ErrNotConnected)
	}
	return gw.IsVotingActive(ctx, id)
}

// CanRevealVotes reports whether the proposal results can be decrypted.
func (c *Coordinator) CanRevealVotes(ctx context.Context, id uint64) (bool, error) {
	switch c.resolver.State() {
	case types.Uninitialized:
		return false, fmt.Errorf("can reveal: %w", types.ErrNotConnected)
	case types.DemoMode:
		p, err := c.demo.proposal(id)
		if err != nil {
			return false, err
		}
		return p.IsEnded, nil
	}
	gw := c.resolver.Gateway()
	if gw == nil {
		return false, fmt.Errorf("can reveal: %w", types.ErrNotConnected)
	}
	return gw.CanRevealVotes(ctx, id)
}

// VoteCount returns the number of votes stored in the ledger.
func (c *Coordinator) VoteCount(ctx context.Context) (uint64, error) {
	switch c.resolver.State() {
	case types.Uninitialized:
		return 0, fmt.Errorf("vote count: %w", types.ErrNotConnected)
	case types.DemoMode:
		return c.demo.voteCount()
	}
	gw := c.resolver.Gateway()
	if gw == nil {
		return 0, fmt.Errorf("vote count: %w", types.ErrNotConnected)
	}
	return gw.VoteCount(ctx)
}

// Connect resolves the connection again after a Disconnect and reloads the
// snapshot.
func (c *Coordinator) Connect(ctx context.Context) types.ConnectionState {
	return c.Start(ctx)
}

// Disconnect drops the ledger connection and the snapshot. The stored voter
// records and the demo ledger are kept.
func (c *Coordinator) Disconnect() {
	c.resolver.Disconnect()
	c.mu.Lock()
	c.snapshot = nil
	c.mu.Unlock()
}

func (c *Coordinator) reloadDemo() {
	if c.resolver.State() != types.DemoMode {
		return
	}
	if err := c.Reload(context.Background()); err != nil {
		log.Warnw("cannot reload demo proposals", "error", err)
	}
}
