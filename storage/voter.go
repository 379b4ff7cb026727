package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/Malyypnrhz7/vote-vault-fhe/log"
	"github.com/Malyypnrhz7/vote-vault-fhe/types"
	"github.com/ethereum/go-ethereum/common"
)

// voterRecordKey is ledger ‖ voter ‖ proposalID, proposal ids are only
// unique within a ledger.
func voterRecordKey(ledger, voter common.Address, proposalID uint64) []byte {
	key := make([]byte, 0, 2*common.AddressLength+8)
	key = append(key, ledger.Bytes()...)
	key = append(key, voter.Bytes()...)
	return binary.BigEndian.AppendUint64(key, proposalID)
}

// VoterRecord returns the stored record of voter for the proposal of ledger.
// It returns ErrNotFound if the voter has no record.
func (s *Storage) VoterRecord(ledger, voter common.Address, proposalID uint64) (*types.VoterRecord, error) {
	r := &types.VoterRecord{}
	if err := s.getArtifact(voterRecordPrefix, voterRecordKey(ledger, voter, proposalID), r); err != nil {
		return nil, err
	}
	return r, nil
}

// SetVoterRecord stores the record. A record already marked as voted is
// never turned back to not voted.
func (s *Storage) SetVoterRecord(r *types.VoterRecord) error {
	if r == nil {
		return fmt.Errorf("nil voter record")
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	key := voterRecordKey(r.Ledger, r.Voter, r.ProposalID)
	prev := &types.VoterRecord{}
	if err := s.getArtifact(voterRecordPrefix, key, prev); err == nil && prev.Voted && !r.Voted {
		return nil
	}
	return s.setArtifact(voterRecordPrefix, key, r)
}

// VoterRecords returns every record stored for voter on ledger, sorted by
// proposal id.
func (s *Storage) VoterRecords(ledger, voter common.Address) ([]*types.VoterRecord, error) {
	var records []*types.VoterRecord
	sub := append(ledger.Bytes(), voter.Bytes()...)
	if err := s.iterateArtifacts(voterRecordPrefix, sub, func(k, v []byte) bool {
		r := &types.VoterRecord{}
		if err := decodeArtifact(v, r); err != nil {
			log.Warnw("failed to decode voter record", "voter", voter.Hex(), "key", fmt.Sprintf("%x", k), "error", err)
			return true
		}
		records = append(records, r)
		return true
	}); err != nil {
		return nil, fmt.Errorf("iterate voter records: %w", err)
	}
	return records, nil
}
