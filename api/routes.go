package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// StateEndpoint returns the connection state, the ledger and the voter
	StateEndpoint = "/state"
	// MetricsEndpoint exposes the prometheus metrics
	MetricsEndpoint = "/metrics"

	// ProposalsEndpoint lists (GET) and creates (POST) proposals
	ProposalsEndpoint = "/proposals"
	// ProposalsEndEndpoint ends every open proposal
	ProposalsEndEndpoint = "/proposals/end"
	// ProposalEndpoint returns the proposal from the snapshot
	ProposalURLParam = "proposalId"
	ProposalEndpoint = "/proposals/{" + ProposalURLParam + "}"
	// ProposalTalliesEndpoint returns the encrypted tallies of the proposal
	ProposalTalliesEndpoint = ProposalEndpoint + "/tallies"
	// ProposalVotedEndpoint reports whether the voter already voted
	ProposalVotedEndpoint = ProposalEndpoint + "/voted"
	// ProposalVotesEndpoint is the endpoint for casting a vote
	ProposalVotesEndpoint = ProposalEndpoint + "/votes"
	// ProposalEndEndpoint ends the proposal
	ProposalEndEndpoint = ProposalEndpoint + "/end"
)
