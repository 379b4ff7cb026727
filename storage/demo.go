package storage

import (
	"fmt"

	"github.com/Malyypnrhz7/vote-vault-fhe/log"
	"github.com/Malyypnrhz7/vote-vault-fhe/types"
)

// SetDemoProposal stores a proposal of the demo ledger.
func (s *Storage) SetDemoProposal(p *types.Proposal) error {
	if p == nil {
		return fmt.Errorf("nil demo proposal")
	}
	return s.setArtifact(demoProposalPrefix, idKey(p.ID), p)
}

// DemoProposal returns the demo proposal with the given id or ErrNotFound.
func (s *Storage) DemoProposal(id uint64) (*types.Proposal, error) {
	p := &types.Proposal{}
	if err := s.getArtifact(demoProposalPrefix, idKey(id), p); err != nil {
		return nil, err
	}
	return p, nil
}

// DemoProposals returns every stored demo proposal in ascending id order.
func (s *Storage) DemoProposals() ([]*types.Proposal, error) {
	var proposals []*types.Proposal
	if err := s.iterateArtifacts(demoProposalPrefix, nil, func(_, v []byte) bool {
		p := &types.Proposal{}
		if err := decodeArtifact(v, p); err != nil {
			log.Warnw("failed to decode demo proposal", "error", err)
			return true
		}
		proposals = append(proposals, p)
		return true
	}); err != nil {
		return nil, fmt.Errorf("iterate demo proposals: %w", err)
	}
	return proposals, nil
}

// SetDemoVote stores the demo vote, replacing a previous vote of the same
// voter on the same proposal.
func (s *Storage) SetDemoVote(v *types.DemoVote) error {
	if v == nil {
		return fmt.Errorf("nil demo vote")
	}
	return s.setArtifact(demoVotePrefix, append(idKey(v.ProposalID), v.Voter.Bytes()...), v)
}

// DemoVotes returns the demo votes cast on the proposal.
func (s *Storage) DemoVotes(proposalID uint64) ([]*types.DemoVote, error) {
	var votes []*types.DemoVote
	if err := s.iterateArtifacts(demoVotePrefix, idKey(proposalID), func(_, v []byte) bool {
		vote := &types.DemoVote{}
		if err := decodeArtifact(v, vote); err != nil {
			log.Warnw("failed to decode demo vote", "proposalId", proposalID, "error", err)
			return true
		}
		votes = append(votes, vote)
		return true
	}); err != nil {
		return nil, fmt.Errorf("iterate demo votes: %w", err)
	}
	return votes, nil
}

// ClearDemo removes every demo proposal and vote.
func (s *Storage) ClearDemo() error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	for _, prefix := range [][]byte{demoProposalPrefix, demoVotePrefix} {
		var keys [][]byte
		if err := s.iterateArtifacts(prefix, nil, func(k, _ []byte) bool {
			keys = append(keys, k)
			return true
		}); err != nil {
			return fmt.Errorf("iterate demo artifacts: %w", err)
		}
		for _, k := range keys {
			if err := s.deleteArtifact(prefix, k); err != nil {
				return fmt.Errorf("delete demo artifact: %w", err)
			}
		}
	}
	return nil
}
