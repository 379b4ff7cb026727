package web3

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Malyypnrhz7/vote-vault-fhe/types"
	"github.com/Malyypnrhz7/vote-vault-fhe/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var _ LedgerGateway = (*MockLedger)(nil)

// MockLedger implements an in-memory LedgerGateway for testing. It follows
// the ledger rules (one vote per voter, no votes after the end) and counts
// the writes it receives.
type MockLedger struct {
	mu        sync.Mutex
	address   common.Address
	probe     wallet.Probe
	signer    atomic.Pointer[common.Address]
	proposals []*types.Proposal
	voted     map[uint64]map[common.Address]bool
	votes     uint64
	nonce     uint64

	// FailInfo makes ProposalInfo fail for the given ids.
	FailInfo map[uint64]error
	// FailWrites makes every write fail with the given error.
	FailWrites error
	// WriteDelay is slept inside every write, with the lock released.
	WriteDelay time.Duration

	Writes    atomic.Int32
	CastVotes atomic.Int32
	Reads     atomic.Int32
}

// NewMockLedger returns a read only mock ledger at address that upgrades
// with the given probe.
func NewMockLedger(address common.Address, probe wallet.Probe) *MockLedger {
	if probe == nil {
		probe = wallet.StaticProbe(nil)
	}
	return &MockLedger{
		address:  address,
		probe:    probe,
		voted:    make(map[uint64]map[common.Address]bool),
		FailInfo: make(map[uint64]error),
	}
}

// AddProposal stores a proposal as if it was created by proposer and returns
// its id.
func (m *MockLedger) AddProposal(title string, proposer common.Address, active bool) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addProposal(title, "", proposer, time.Hour, active)
}

func (m *MockLedger) addProposal(title, description string, proposer common.Address, duration time.Duration, active bool) uint64 {
	now := time.Now().Truncate(time.Second)
	id := uint64(len(m.proposals))
	m.proposals = append(m.proposals, &types.Proposal{
		ID:           id,
		Title:        title,
		Description:  description,
		IsActive:     active,
		IsEnded:      !active,
		Proposer:     proposer,
		StartTime:    now,
		EndTime:      now.Add(duration),
		CreationTime: now,
	})
	return id
}

// Address implements LedgerGateway.
func (m *MockLedger) Address() common.Address {
	return m.address
}

// Signing implements LedgerGateway.
func (m *MockLedger) Signing() bool {
	return m.signer.Load() != nil
}

// Upgrade implements LedgerGateway.
func (m *MockLedger) Upgrade(ctx context.Context) (common.Address, error) {
	if addr := m.signer.Load(); addr != nil {
		return *addr, nil
	}
	s, err := m.probe.Signer(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", types.ErrNotConnected, err)
	}
	addr := s.Address()
	m.signer.Store(&addr)
	return addr, nil
}

// ProposalCount implements LedgerGateway.
func (m *MockLedger) ProposalCount(context.Context) (uint64, error) {
	m.Reads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.proposals)), nil
}

// ProposalInfo implements LedgerGateway.
func (m *MockLedger) ProposalInfo(_ context.Context, id uint64) (*types.Proposal, error) {
	m.Reads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailInfo[id]; err != nil {
		return nil, err
	}
	p, err := m.proposal(id)
	if err != nil {
		return nil, err
	}
	cp := *p
	return cp.Normalize(), nil
}

func (m *MockLedger) proposal(id uint64) (*types.Proposal, error) {
	if id >= uint64(len(m.proposals)) {
		return nil, fmt.Errorf("proposal %d: %w", id, types.ErrProposalNotFound)
	}
	return m.proposals[id], nil
}

// HasVoted implements LedgerGateway.
func (m *MockLedger) HasVoted(_ context.Context, voter common.Address, id uint64) (bool, error) {
	m.Reads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.voted[id][voter], nil
}

// EncryptedTallies implements LedgerGateway. Handles are derived from the
// proposal id and the counters, revealed once the proposal ended.
func (m *MockLedger) EncryptedTallies(_ context.Context, id uint64) (*types.EncryptedTallies, error) {
	m.Reads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.proposal(id)
	if err != nil {
		return nil, err
	}
	t := &types.EncryptedTallies{
		ProposalID: id,
		For:        crypto.Keccak256Hash([]byte(fmt.Sprintf("for-%d-%d", id, p.ForVotes))),
		Against:    crypto.Keccak256Hash([]byte(fmt.Sprintf("against-%d-%d", id, p.AgainstVotes))),
		Total:      crypto.Keccak256Hash([]byte(fmt.Sprintf("total-%d-%d", id, p.TotalVotes))),
	}
	if p.IsEnded {
		t.Revealed = true
		t.ForVotes = p.ForVotes
		t.AgainstVotes = p.AgainstVotes
	}
	return t, nil
}

// IsVotingActive implements LedgerGateway.
func (m *MockLedger) IsVotingActive(_ context.Context, id uint64) (bool, error) {
	m.Reads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.proposal(id)
	if err != nil {
		return false, err
	}
	return p.Open(), nil
}

// CanRevealVotes implements LedgerGateway.
func (m *MockLedger) CanRevealVotes(_ context.Context, id uint64) (bool, error) {
	m.Reads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.proposal(id)
	if err != nil {
		return false, err
	}
	return p.IsEnded, nil
}

// VoteCount implements LedgerGateway.
func (m *MockLedger) VoteCount(context.Context) (uint64, error) {
	m.Reads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.votes, nil
}

// write runs fn as a signed ledger write.
func (m *MockLedger) write(ctx context.Context, fn func(signer common.Address) error) (*types.Receipt, error) {
	signer, err := m.Upgrade(ctx)
	if err != nil {
		return nil, err
	}
	m.Writes.Add(1)
	if m.WriteDelay > 0 {
		select {
		case <-time.After(m.WriteDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", types.ErrTimeout, ctx.Err())
		}
	}
	if m.FailWrites != nil {
		return nil, m.FailWrites
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := fn(signer); err != nil {
		return nil, err
	}
	m.nonce++
	return &types.Receipt{
		TxHash:      crypto.Keccak256Hash(signer.Bytes(), []byte(fmt.Sprint(m.nonce))),
		BlockNumber: m.nonce,
		GasUsed:     21000,
		Status:      1,
	}, nil
}

// CreateProposal implements LedgerGateway.
func (m *MockLedger) CreateProposal(ctx context.Context, title, description string, durationSeconds uint64) (uint64, *types.Receipt, error) {
	var id uint64
	receipt, err := m.write(ctx, func(signer common.Address) error {
		id = m.addProposal(title, description, signer, time.Duration(durationSeconds)*time.Second, true)
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return id, receipt, nil
}

// CastVote implements LedgerGateway. Mock ballots are counted as "for" when
// the handle is not the all-zero placeholder.
func (m *MockLedger) CastVote(ctx context.Context, id uint64, input *types.EncryptedInput) (*types.Receipt, error) {
	m.CastVotes.Add(1)
	return m.write(ctx, func(signer common.Address) error {
		p, err := m.proposal(id)
		if err != nil {
			return err
		}
		if !p.Open() {
			return &types.RemoteRejectedError{Reason: "Voting period has ended", Kind: types.ErrVotingClosed}
		}
		if m.voted[id][signer] {
			return &types.RemoteRejectedError{Reason: "Already voted on this proposal", Kind: types.ErrAlreadyVoted}
		}
		if m.voted[id] == nil {
			m.voted[id] = make(map[common.Address]bool)
		}
		m.voted[id][signer] = true
		if input != nil && input.Handle != (common.Hash{}) {
			p.ForVotes++
		} else {
			p.AgainstVotes++
		}
		p.TotalVotes++
		m.votes++
		return nil
	})
}

// EndProposal implements LedgerGateway.
func (m *MockLedger) EndProposal(ctx context.Context, id uint64) (*types.Receipt, error) {
	return m.write(ctx, func(common.Address) error {
		p, err := m.proposal(id)
		if err != nil {
			return err
		}
		if p.IsEnded {
			return &types.RemoteRejectedError{Reason: "Proposal already ended", Kind: types.ErrVotingClosed}
		}
		p.IsActive, p.IsEnded = false, true
		return nil
	})
}

// Close implements LedgerGateway.
func (m *MockLedger) Close() {}
