package types

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Proposal is the client side snapshot of a proposal stored in the ledger.
// Vote counters are only meaningful once Revealed is true, before that the
// ledger keeps the tallies encrypted and the values are placeholders.
type Proposal struct {
	ID           uint64         `json:"id"           cbor:"0,keyasint"`
	Title        string         `json:"title"        cbor:"1,keyasint,omitempty"`
	Description  string         `json:"description"  cbor:"2,keyasint,omitempty"`
	ForVotes     int            `json:"forVotes"     cbor:"3,keyasint,omitempty"`
	AgainstVotes int            `json:"againstVotes" cbor:"4,keyasint,omitempty"`
	TotalVotes   int            `json:"totalVotes"   cbor:"5,keyasint,omitempty"`
	IsActive     bool           `json:"isActive"     cbor:"6,keyasint,omitempty"`
	IsEnded      bool           `json:"isEnded"      cbor:"7,keyasint,omitempty"`
	Revealed     bool           `json:"revealed"     cbor:"8,keyasint,omitempty"`
	Proposer     common.Address `json:"proposer"     cbor:"9,keyasint,omitempty"`
	StartTime    time.Time      `json:"startTime"    cbor:"10,keyasint,omitempty"`
	EndTime      time.Time      `json:"endTime"      cbor:"11,keyasint,omitempty"`
	CreationTime time.Time      `json:"creationTime" cbor:"12,keyasint,omitempty"`
}

// Normalize enforces the lifecycle flag invariant: an ended proposal is never
// active.
func (p *Proposal) Normalize() *Proposal {
	if p.IsEnded {
		p.IsActive = false
	}
	return p
}

// Open reports whether the proposal accepts votes.
func (p *Proposal) Open() bool {
	return p.IsActive && !p.IsEnded
}

func (p *Proposal) String() string {
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(data)
}

// EncryptedTallies holds the ciphertext handles of the proposal counters. When
// the ledger has published the decrypted results, Revealed is set and the
// plaintext counters are filled.
type EncryptedTallies struct {
	ProposalID   uint64      `json:"proposalId"`
	For          common.Hash `json:"for"`
	Against      common.Hash `json:"against"`
	Total        common.Hash `json:"total"`
	Revealed     bool        `json:"revealed"`
	ForVotes     int         `json:"forVotes,omitempty"`
	AgainstVotes int         `json:"againstVotes,omitempty"`
}

// Receipt is the confirmation of a mined ledger write.
type Receipt struct {
	TxHash      common.Hash `json:"txHash"`
	BlockNumber uint64      `json:"blockNumber"`
	GasUsed     uint64      `json:"gasUsed"`
	Status      uint64      `json:"status"`
	// Local is set for writes that never left the process (demo mode).
	Local bool `json:"local,omitempty"`
}

// SecondsPerDay is used to convert proposal durations given in days.
const SecondsPerDay = 24 * 60 * 60

// DurationFromDays returns the proposal duration in seconds for the given
// number of days.
func DurationFromDays(days uint64) uint64 {
	return days * SecondsPerDay
}
