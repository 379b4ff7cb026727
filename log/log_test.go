package log

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

var (
	sampleInt      = 3
	sampleBytes    = []byte("123")
	sampleList     = []int64{10, 0, -10}
	sampleDuration = time.Second
	sampleTime     = time.Unix(12345678, 0)

	errSample = errors.New("some error")
)

func doLogs() {
	Infof("loaded %d proposals from ledger %x", sampleInt, sampleBytes)
	Debugw("casting vote", "proposalId", 1, "voter", "0xabc123")
	Errorf("cannot store voter record: %v", errSample)
	Warnw("various types",
		"list", sampleList,
		"duration", sampleDuration,
		"time", sampleTime,
	)
	Error(errSample)
}

func TestCheckInvalidChars(t *testing.T) {
	t.Cleanup(func() { panicOnInvalidChars = false })

	v := []byte{'h', 'e', 'l', 'l', 'o', 0xff, 'w', 'o', 'r', 'l', 'd'}
	panicOnInvalidChars = false
	Init("debug", "stderr", nil)
	Debugf("%s", v)
	// should not panic since env var is false. if it panics, test will fail

	// now enable panic and try again: should recover() and never reach t.Errorf()
	panicOnInvalidChars = true
	Init("debug", "stderr", nil)
	defer func() { recover() }()
	Debugf("%s", v)
	t.Errorf("Debugf(%s) should have panicked because of invalid char", v)
}

func TestLevelsAndErrorOutput(t *testing.T) {
	c := qt.New(t)
	t.Cleanup(func() { logTestWriter = io.Discard })

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	logTestWriter = out
	c.Assert(Init("info", logTestWriterName, errOut), qt.IsNil)
	c.Assert(Level(), qt.Equals, LogLevelInfo)

	Debugw("hidden", "k", "v")
	Infow("visible", "proposalId", 7)
	Warnw("warned", "reason", "placeholder")
	Errorw(errSample, "failed")

	c.Assert(strings.Contains(out.String(), "hidden"), qt.IsFalse)
	c.Assert(strings.Contains(out.String(), `"proposalId":7`), qt.IsTrue)
	c.Assert(strings.Contains(errOut.String(), "visible"), qt.IsFalse)
	c.Assert(strings.Contains(errOut.String(), "warned"), qt.IsTrue)
	c.Assert(strings.Contains(errOut.String(), "some error"), qt.IsTrue)

	c.Assert(Init("loud", "stderr", nil), qt.ErrorMatches, `invalid log level "loud"`)
}

func BenchmarkLogger(b *testing.B) {
	logTestWriter = io.Discard // to not grow a buffer
	Init("debug", logTestWriterName, nil)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		doLogs()
	}
}
