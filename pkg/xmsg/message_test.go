package xmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatParseCMRoundTrip(t *testing.T) {
	cm := CM{Msg: "hi", From: "a", To: "b", Time: 1, Nonce: 42, AmpIndex: 0, TraceID: "t1", SpanID: "s1"}
	framed := FormatCM(cm)

	x, err := Parse(framed)
	require.NoError(t, err)
	assert.Equal(t, cm.Msg, x.Msg)
	assert.Equal(t, cm.From, x.From)
	assert.Equal(t, cm.To, x.To)
	assert.Equal(t, cm.Time, x.Time)
	assert.Equal(t, cm.Nonce, x.Nonce)
	assert.Equal(t, cm.AmpIndex, x.AmpIndex)
	assert.Equal(t, MsgUndef, x.MsgType)
}

func TestFormatParseXCMRoundTrip(t *testing.T) {
	ringTTL := 4
	x := XCM{
		CM:                CM{Msg: "x", From: "a", To: "b", Time: 5, Nonce: 7, AmpIndex: 0},
		UUID:              123,
		RingTTL:           &ringTTL,
		RingIdx:           1,
		MsgType:           MsgClient,
		CommitteesVisited: []string{"X"},
		CommitteesSent:    []string{},
	}

	framed, err := FormatXCM(x)
	require.NoError(t, err)

	parsed, err := Parse(framed)
	require.NoError(t, err)
	assert.Equal(t, x.Msg, parsed.Msg)
	assert.Equal(t, x.From, parsed.From)
	assert.Equal(t, x.To, parsed.To)
	assert.Equal(t, x.Time, parsed.Time)
	assert.Equal(t, x.Nonce, parsed.Nonce)
	assert.Equal(t, x.AmpIndex, parsed.AmpIndex)
	assert.Equal(t, x.UUID, parsed.UUID)
	require.True(t, parsed.HasRingTTL())
	assert.Equal(t, *x.RingTTL, *parsed.RingTTL)
	assert.Equal(t, x.RingIdx, parsed.RingIdx)
	assert.Equal(t, x.MsgType, parsed.MsgType)
	assert.Equal(t, x.CommitteesVisited, parsed.CommitteesVisited)
	assert.Equal(t, x.CommitteesSent, parsed.CommitteesSent)
}

func TestParseRejectsBadTokenCount(t *testing.T) {
	_, err := Parse("a~~~b~~~c")
	assert.Error(t, err)
}

func TestDeriveUUIDRemapsSentinel(t *testing.T) {
	// Constructing a CM that actually hashes to -1 is infeasible to pick by
	// hand; instead verify the remap function directly applies the rule
	// at the boundary by checking any derived id is never the sentinel.
	cm := CM{Msg: "hi", From: "a", To: "b", Time: 1, Nonce: 42, AmpIndex: 0}
	id := DeriveUUID(cm)
	assert.NotEqual(t, int64(-1), id)
}

func TestDeriveUUIDDeterministic(t *testing.T) {
	cm := CM{Msg: "hi", From: "a", To: "b", Time: 1, Nonce: 42, AmpIndex: 0}
	assert.Equal(t, DeriveUUID(cm), DeriveUUID(cm))

	cm2 := cm
	cm2.Nonce = 43
	assert.NotEqual(t, DeriveUUID(cm), DeriveUUID(cm2))
}
