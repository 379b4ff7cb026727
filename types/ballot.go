package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// VoteChoice is the plaintext vote, it only lives until it is encrypted.
type VoteChoice bool

const (
	VoteFor     VoteChoice = true
	VoteAgainst VoteChoice = false
)

// ParseVoteChoice accepts "for"/"against" (also "yes"/"no").
func ParseVoteChoice(s string) (VoteChoice, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "for", "yes":
		return VoteFor, nil
	case "against", "no":
		return VoteAgainst, nil
	}
	return VoteAgainst, fmt.Errorf("invalid vote choice %q", s)
}

// Bit returns the single bit encoding of the choice: for=1, against=0.
func (v VoteChoice) Bit() uint8 {
	if v {
		return 1
	}
	return 0
}

func (v VoteChoice) String() string {
	if v {
		return "for"
	}
	return "against"
}

// EncryptedInput is the ciphertext handle and input proof produced by the
// encryption relayer for a (ledger, voter) pair. Placeholder marks the fixed
// all-zero pair used when no relayer is reachable; it must never be trusted as
// a real ciphertext.
type EncryptedInput struct {
	Handle      common.Hash `json:"handle"`
	Proof       HexBytes    `json:"proof"`
	Placeholder bool        `json:"placeholder"`
}

// PlaceholderInput returns the non-cryptographic stand-in pair.
func PlaceholderInput() *EncryptedInput {
	return &EncryptedInput{
		Handle:      common.Hash{},
		Proof:       make(HexBytes, common.HashLength),
		Placeholder: true,
	}
}

// VoterRecord mirrors the ledger "has voted" flag for a voter and a proposal
// of the given ledger.
type VoterRecord struct {
	ProposalID  uint64         `cbor:"0,keyasint"`
	Voter       common.Address `cbor:"1,keyasint"`
	Voted       bool           `cbor:"2,keyasint,omitempty"`
	TxHash      common.Hash    `cbor:"3,keyasint,omitempty"`
	Placeholder bool           `cbor:"4,keyasint,omitempty"`
	Timestamp   time.Time      `cbor:"5,keyasint,omitempty"`
	Ledger      common.Address `cbor:"6,keyasint"`
}

// DemoVote is a vote recorded by the local demo ledger. Demo mode has no
// encryption, the choice is kept so the reveal can compute the tallies.
type DemoVote struct {
	ProposalID uint64         `cbor:"0,keyasint"`
	Voter      common.Address `cbor:"1,keyasint"`
	Choice     VoteChoice     `cbor:"2,keyasint"`
	Timestamp  time.Time      `cbor:"3,keyasint,omitempty"`
}
