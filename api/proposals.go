package api

import (
	"net/http"
	"strings"

	"github.com/Malyypnrhz7/vote-vault-fhe/types"
)

// state returns the connection state
// GET /state
func (a *API) state(w http.ResponseWriter, r *http.Request) {
	st := &State{
		State:     a.coord.State(),
		Ledger:    a.coord.Ledger(),
		Voter:     a.coord.Voter(),
		Proposals: len(a.coord.Snapshot()),
	}
	if err := a.coord.LastError(); err != nil {
		st.LastError = err.Error()
	}
	httpWriteJSON(w, st)
}

// proposals returns the proposal snapshot
// GET /proposals
func (a *API) proposals(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("reload") == "true" {
		if err := a.coord.Reload(r.Context()); err != nil {
			errorFrom(err).Write(w)
			return
		}
	}
	httpWriteJSON(w, &Proposals{Proposals: a.coord.Snapshot()})
}

// proposal returns a single proposal of the snapshot
// GET /proposals/{proposalId}
func (a *API) proposal(w http.ResponseWriter, r *http.Request) {
	id, err := proposalID(r)
	if err != nil {
		errorFrom(err).Write(w)
		return
	}
	p, err := a.coord.Proposal(id)
	if err != nil {
		errorFrom(err).Write(w)
		return
	}
	httpWriteJSON(w, p)
}

// newProposal creates a proposal
// POST /proposals
func (a *API) newProposal(w http.ResponseWriter, r *http.Request) {
	req := &NewProposal{}
	if err := decodeBody(w, r, req); err != nil {
		errorFrom(err).Write(w)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	duration := req.DurationSeconds
	if duration == 0 {
		duration = types.DurationFromDays(req.DurationDays)
	}
	if req.Title == "" || duration == 0 {
		ErrInvalidProposal.With("title and duration are required").Write(w)
		return
	}
	id, receipt, err := a.coord.CreateProposal(r.Context(), req.Title, req.Description, duration)
	if err != nil {
		errorFrom(err).Write(w)
		return
	}
	httpWriteJSON(w, &ProposalCreated{ProposalID: id, Receipt: receipt})
}

// tallies returns the encrypted tallies of the proposal
// GET /proposals/{proposalId}/tallies
func (a *API) tallies(w http.ResponseWriter, r *http.Request) {
	id, err := proposalID(r)
	if err != nil {
		errorFrom(err).Write(w)
		return
	}
	t, err := a.coord.Tallies(r.Context(), id)
	if err != nil {
		errorFrom(err).Write(w)
		return
	}
	httpWriteJSON(w, t)
}

// voted reports whether the voter already voted on the proposal
// GET /proposals/{proposalId}/voted
func (a *API) voted(w http.ResponseWriter, r *http.Request) {
	id, err := proposalID(r)
	if err != nil {
		errorFrom(err).Write(w)
		return
	}
	httpWriteJSON(w, &Voted{
		ProposalID: id,
		Voter:      a.coord.Voter(),
		Voted:      a.coord.HasVoted(r.Context(), id),
	})
}

// castVote casts a vote on the proposal
// POST /proposals/{proposalId}/votes
func (a *API) castVote(w http.ResponseWriter, r *http.Request) {
	id, err := proposalID(r)
	if err != nil {
		errorFrom(err).Write(w)
		return
	}
	req := &Vote{}
	if err := decodeBody(w, r, req); err != nil {
		errorFrom(err).Write(w)
		return
	}
	choice, err := types.ParseVoteChoice(req.Choice)
	if err != nil {
		ErrInvalidVoteChoice.WithErr(err).Write(w)
		return
	}
	receipt, err := a.coord.CastVote(r.Context(), id, choice)
	if err != nil {
		errorFrom(err).Write(w)
		return
	}
	httpWriteJSON(w, receipt)
}

// endProposal ends the proposal
// POST /proposals/{proposalId}/end
func (a *API) endProposal(w http.ResponseWriter, r *http.Request) {
	id, err := proposalID(r)
	if err != nil {
		errorFrom(err).Write(w)
		return
	}
	receipt, err := a.coord.EndProposal(r.Context(), id)
	if err != nil {
		errorFrom(err).Write(w)
		return
	}
	httpWriteJSON(w, receipt)
}

// endAll ends every open proposal
// POST /proposals/end
func (a *API) endAll(w http.ResponseWriter, r *http.Request) {
	ended, err := a.coord.EndAll(r.Context())
	if err != nil && ended == 0 {
		errorFrom(err).Write(w)
		return
	}
	httpWriteJSON(w, &ProposalsEnded{Ended: ended})
}
