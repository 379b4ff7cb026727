package api

import (
	"github.com/Malyypnrhz7/vote-vault-fhe/types"
	"github.com/ethereum/go-ethereum/common"
)

// State is the response of the state endpoint.
type State struct {
	State     types.ConnectionState `json:"state"`
	Ledger    common.Address        `json:"ledger"`
	Voter     common.Address        `json:"voter"`
	Proposals int                   `json:"proposals"`
	LastError string                `json:"lastError,omitempty"`
}

// NewProposal is the request to create a proposal. Duration may be given in
// seconds or in days, seconds take precedence.
type NewProposal struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	DurationSeconds uint64 `json:"durationSeconds,omitempty"`
	DurationDays    uint64 `json:"durationDays,omitempty"`
}

// ProposalCreated is the response to a proposal creation.
type ProposalCreated struct {
	ProposalID uint64         `json:"proposalId"`
	Receipt    *types.Receipt `json:"receipt"`
}

// Proposals is the list of proposals of the snapshot, ascending by id.
type Proposals struct {
	Proposals []*types.Proposal `json:"proposals"`
}

// Vote is the request to cast a vote, choice is "for" or "against".
type Vote struct {
	Choice string `json:"choice"`
}

// Voted is the response of the voted endpoint.
type Voted struct {
	ProposalID uint64         `json:"proposalId"`
	Voter      common.Address `json:"voter"`
	Voted      bool           `json:"voted"`
}

// ProposalsEnded is the response of the end all endpoint.
type ProposalsEnded struct {
	Ended int `json:"ended"`
}
