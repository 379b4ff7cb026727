package metrics

import (
	"errors"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestVoteMetrics(t *testing.T) {
	c := qt.New(t)
	m := Votes()
	c.Assert(Votes(), qt.Equals, m)

	before := testutil.ToFloat64(m.votesCast.WithLabelValues("demo", "ok"))
	m.ObserveVote("demo", "ok")
	m.ObserveVote("demo", "ok")
	c.Assert(testutil.ToFloat64(m.votesCast.WithLabelValues("demo", "ok")), qt.Equals, before+2)

	m.ObserveEncryption(true)
	c.Assert(testutil.ToFloat64(m.encryptions.WithLabelValues("placeholder")) >= 1, qt.IsTrue)

	m.ObserveSnapshot(4, 1)
	c.Assert(testutil.ToFloat64(m.snapshotSize), qt.Equals, float64(4))

	m.ObserveLedgerWrite("castVote", time.Second, errors.New("boom"))
	c.Assert(testutil.CollectAndCount(m.ledgerWrites), qt.Not(qt.Equals), 0)
}

func TestNilReceivers(t *testing.T) {
	var v *VoteMetrics
	v.ObserveVote("live", "ok")
	v.ObserveEncryption(false)
	v.ObserveLedgerWrite("endProposal", 0, nil)
	v.ObserveSnapshot(0, 0)

	var a *APIMetrics
	a.ObserveRequest("/ping", "GET", 200, 0)
	a.IncRateLimited("/proposals")
}
