package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Malyypnrhz7/vote-vault-fhe/types"
	"github.com/Malyypnrhz7/vote-vault-fhe/web3"
	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
)

var testLedger = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func TestLoadAllSkipsFailures(t *testing.T) {
	c := qt.New(t)
	m := web3.NewMockLedger(testLedger, nil)
	for i := 0; i < 5; i++ {
		m.AddProposal("proposal", testLedger, i%2 == 0)
	}
	m.FailInfo[2] = errors.New("rpc glitch")

	proposals, err := LoadAll(context.Background(), m)
	c.Assert(err, qt.IsNil)
	c.Assert(proposals, qt.HasLen, 4)
	ids := []uint64{}
	for _, p := range proposals {
		ids = append(ids, p.ID)
		if p.IsEnded {
			c.Assert(p.IsActive, qt.IsFalse)
		}
	}
	c.Assert(ids, qt.DeepEquals, []uint64{0, 1, 3, 4})
}

func TestLoadEmptyLedger(t *testing.T) {
	c := qt.New(t)
	m := web3.NewMockLedger(testLedger, nil)
	s, err := Load(context.Background(), m)
	c.Assert(err, qt.IsNil)
	c.Assert(s.Proposals, qt.HasLen, 0)
	c.Assert(s.Count, qt.Equals, uint64(0))
	c.Assert(s.Find(0), qt.IsNil)
}

type countFailReader struct{}

func (countFailReader) ProposalCount(context.Context) (uint64, error) {
	return 0, errors.New("node down")
}

func (countFailReader) ProposalInfo(context.Context, uint64) (*types.Proposal, error) {
	return nil, errors.New("unreachable")
}

func TestLoadCountFailure(t *testing.T) {
	c := qt.New(t)
	_, err := LoadAll(context.Background(), countFailReader{})
	c.Assert(err, qt.ErrorMatches, "cannot read proposal count: node down")
}

type inconsistentReader struct{}

func (inconsistentReader) ProposalCount(context.Context) (uint64, error) {
	return 1, nil
}

func (inconsistentReader) ProposalInfo(_ context.Context, id uint64) (*types.Proposal, error) {
	return &types.Proposal{ID: id, IsActive: true, IsEnded: true}, nil
}

func TestLoadNormalizes(t *testing.T) {
	c := qt.New(t)
	s, err := Load(context.Background(), inconsistentReader{})
	c.Assert(err, qt.IsNil)
	p := s.Find(0)
	c.Assert(p, qt.IsNotNil)
	c.Assert(p.IsEnded, qt.IsTrue)
	c.Assert(p.IsActive, qt.IsFalse)
}

func TestLoadExpiredContext(t *testing.T) {
	c := qt.New(t)
	m := web3.NewMockLedger(testLedger, nil)
	m.AddProposal("late", testLedger, true)
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	_, err := Load(ctx, m)
	c.Assert(err, qt.ErrorIs, types.ErrTimeout)
}
