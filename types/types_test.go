package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/fxamacker/cbor/v2"
)

func TestProposalNormalize(t *testing.T) {
	c := qt.New(t)
	p := (&Proposal{ID: 1, IsActive: true, IsEnded: true}).Normalize()
	c.Assert(p.IsActive, qt.IsFalse)
	c.Assert(p.Open(), qt.IsFalse)

	p = (&Proposal{ID: 2, IsActive: true}).Normalize()
	c.Assert(p.Open(), qt.IsTrue)
}

func TestParseVoteChoice(t *testing.T) {
	c := qt.New(t)
	v, err := ParseVoteChoice("For")
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, VoteFor)
	c.Assert(v.Bit(), qt.Equals, uint8(1))

	v, err = ParseVoteChoice(" against ")
	c.Assert(err, qt.IsNil)
	c.Assert(v.Bit(), qt.Equals, uint8(0))
	c.Assert(v.String(), qt.Equals, "against")

	_, err = ParseVoteChoice("maybe")
	c.Assert(err, qt.ErrorMatches, `invalid vote choice "maybe"`)
}

func TestPlaceholderInput(t *testing.T) {
	c := qt.New(t)
	in := PlaceholderInput()
	c.Assert(in.Placeholder, qt.IsTrue)
	c.Assert(in.Handle.Big().Sign(), qt.Equals, 0)
	c.Assert(in.Proof, qt.HasLen, 32)
	for _, b := range in.Proof {
		c.Assert(b, qt.Equals, byte(0))
	}
}

func TestRemoteRejectedError(t *testing.T) {
	c := qt.New(t)
	cause := fmt.Errorf("execution reverted: Already voted")
	var err error = &RemoteRejectedError{Reason: "Already voted", Kind: ErrAlreadyVoted, Cause: cause}
	err = fmt.Errorf("cast vote: %w", err)

	c.Assert(errors.Is(err, ErrRemoteRejected), qt.IsTrue)
	c.Assert(errors.Is(err, ErrAlreadyVoted), qt.IsTrue)
	c.Assert(errors.Is(err, cause), qt.IsTrue)
	c.Assert(errors.Is(err, ErrVotingClosed), qt.IsFalse)

	var rr *RemoteRejectedError
	c.Assert(errors.As(err, &rr), qt.IsTrue)
	c.Assert(rr.Reason, qt.Equals, "Already voted")
}

func TestHexBytesJSON(t *testing.T) {
	c := qt.New(t)
	data, err := json.Marshal(HexBytes{0xca, 0xfe})
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, `"0xcafe"`)

	var hb HexBytes
	c.Assert(json.Unmarshal([]byte(`"0xbeef"`), &hb), qt.IsNil)
	c.Assert(hb, qt.DeepEquals, HexBytes{0xbe, 0xef})
	c.Assert(json.Unmarshal([]byte(`"zz"`), &hb), qt.ErrorMatches, "invalid hex.*")
}

func TestConnectionStateText(t *testing.T) {
	c := qt.New(t)
	data, err := json.Marshal(map[string]ConnectionState{"state": LiveSigning})
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, `{"state":"live-signing"}`)
	c.Assert(LiveReadOnly.IsLive(), qt.IsTrue)
	c.Assert(DemoMode.IsLive(), qt.IsFalse)

	var got map[string]ConnectionState
	c.Assert(json.Unmarshal(data, &got), qt.IsNil)
	c.Assert(got["state"], qt.Equals, LiveSigning)
	c.Assert(json.Unmarshal([]byte(`{"state":"offline"}`), &got), qt.ErrorMatches, ".*unknown connection state.*")
}

func TestProposalCBOR(t *testing.T) {
	c := qt.New(t)
	p := &Proposal{ID: 3, Title: "Treasury", ForVotes: 2, AgainstVotes: 1, TotalVotes: 3, IsEnded: true, Revealed: true}
	data, err := cbor.Marshal(p)
	c.Assert(err, qt.IsNil)
	var got Proposal
	c.Assert(cbor.Unmarshal(data, &got), qt.IsNil)
	c.Assert(got.Title, qt.Equals, p.Title)
	c.Assert(got.TotalVotes, qt.Equals, 3)
	c.Assert(got.Revealed, qt.IsTrue)
}
