// Package xmsg implements the cleartext message model of §3: the
// application-visible Cleartext Message (CM), the Router-internal Extended
// Cleartext Message (XCM), and the §4.8 delimited wire framing between
// them.
package xmsg

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// delimiter is the fixed token separator of §4.8.
const delimiter = "~~~"

// sentinelUnset is the CM hash's reserved "unset" value; when the derived
// uuid equals this, it is remapped to 1.
const sentinelUnset = -1

// MsgType tags the payload carried in an XCM's msg field.
type MsgType int

// Recognized message types.
const (
	MsgUndef  MsgType = 0
	MsgClient MsgType = 1
	MsgLinks  MsgType = 2
)

// CM is the application-visible Cleartext Message.
type CM struct {
	Msg      string
	From     string
	To       string
	Time     int64
	Nonce    int64
	AmpIndex int
	TraceID  string
	SpanID   string
}

// XCM is a CM extended with Router metadata for ring traversal and
// inter-committee flooding.
type XCM struct {
	CM
	UUID              int64
	RingTTL           *int
	RingIdx           int
	MsgType           MsgType
	CommitteesVisited []string
	CommitteesSent    []string
}

// HasRingTTL reports whether ringTtl has been set on this XCM (nil means
// "unset", per §4.2's startRingMsg/handleRingMsg branch).
func (x *XCM) HasRingTTL() bool {
	return x.RingTTL != nil
}

// SetRingTTL sets ringTtl to v.
func (x *XCM) SetRingTTL(v int) {
	x.RingTTL = &v
}

// ClearRingTTL resets ringTtl to unset, as forwardToNewCommittees requires
// so the recipient starts a fresh ring traversal.
func (x *XCM) ClearRingTTL() {
	x.RingTTL = nil
}

// DeriveUUID computes the §4.8 message uuid: the low 64 bits of
// SHA-256(msg‖from‖to‖time‖nonce‖ampIndex), remapping the reserved sentinel
// -1 to 1.
func DeriveUUID(cm CM) int64 {
	h := sha256.New()
	h.Write([]byte(cm.Msg))
	h.Write([]byte(cm.From))
	h.Write([]byte(cm.To))
	h.Write([]byte(strconv.FormatInt(cm.Time, 10)))
	h.Write([]byte(strconv.FormatInt(cm.Nonce, 10)))
	h.Write([]byte(strconv.Itoa(cm.AmpIndex)))
	sum := h.Sum(nil)

	low8 := sum[len(sum)-8:]
	v := int64(binary.BigEndian.Uint64(low8))
	if v == sentinelUnset {
		return 1
	}
	return v
}

// CMHash returns the SHA-256 hex digest of a CM, used as the client-side
// seen-set key (distinct from the Router uuid, which servers use).
func CMHash(cm CM) string {
	h := sha256.New()
	h.Write([]byte(cm.Msg))
	h.Write([]byte(cm.From))
	h.Write([]byte(cm.To))
	h.Write([]byte(strconv.FormatInt(cm.Time, 10)))
	h.Write([]byte(strconv.FormatInt(cm.Nonce, 10)))
	h.Write([]byte(strconv.Itoa(cm.AmpIndex)))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// FormatCM renders a CM as the 7-token delimited frame
// "clrMsg~~~msg~~~from~~~to~~~time~~~nonce~~~ampIndex".
func FormatCM(cm CM) string {
	return strings.Join([]string{
		"clrMsg",
		cm.Msg,
		cm.From,
		cm.To,
		strconv.FormatInt(cm.Time, 10),
		strconv.FormatInt(cm.Nonce, 10),
		strconv.Itoa(cm.AmpIndex),
	}, delimiter)
}

// FormatXCM renders an XCM as the 13-token delimited frame: the CM's 7
// tokens (sentinel "extClrMsg") plus uuid, ringTtl, ringIdx, msgType,
// committeesVisited (JSON array), committeesSent (JSON array).
func FormatXCM(x XCM) (string, error) {
	visited, err := json.Marshal(nonNilStrings(x.CommitteesVisited))
	if err != nil {
		return "", fmt.Errorf("xmsg: marshal committeesVisited: %w", err)
	}
	sent, err := json.Marshal(nonNilStrings(x.CommitteesSent))
	if err != nil {
		return "", fmt.Errorf("xmsg: marshal committeesSent: %w", err)
	}

	ringTTL := "-1"
	if x.RingTTL != nil {
		ringTTL = strconv.Itoa(*x.RingTTL)
	}

	return strings.Join([]string{
		"extClrMsg",
		x.Msg,
		x.From,
		x.To,
		strconv.FormatInt(x.Time, 10),
		strconv.FormatInt(x.Nonce, 10),
		strconv.Itoa(x.AmpIndex),
		strconv.FormatInt(x.UUID, 10),
		ringTTL,
		strconv.Itoa(x.RingIdx),
		strconv.Itoa(int(x.MsgType)),
		string(visited),
		string(sent),
	}, delimiter), nil
}

// Parse accepts a 7-token framed CM or a 13-token framed XCM and parses it
// accordingly; any other token count is a parse error.
func Parse(framed string) (*XCM, error) {
	tokens := strings.Split(framed, delimiter)
	switch len(tokens) {
	case 7:
		cm, err := parseCMTokens(tokens)
		if err != nil {
			return nil, err
		}
		return &XCM{CM: *cm, MsgType: MsgUndef}, nil
	case 13:
		return parseXCMTokens(tokens)
	default:
		return nil, fmt.Errorf("xmsg: parse: expected 7 or 13 tokens, got %d", len(tokens))
	}
}

func parseCMTokens(tokens []string) (*CM, error) {
	if tokens[0] != "clrMsg" {
		return nil, fmt.Errorf("xmsg: parse: bad CM sentinel %q", tokens[0])
	}
	t, err := strconv.ParseInt(tokens[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("xmsg: parse: bad time: %w", err)
	}
	nonce, err := strconv.ParseInt(tokens[5], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("xmsg: parse: bad nonce: %w", err)
	}
	amp, err := strconv.Atoi(tokens[6])
	if err != nil {
		return nil, fmt.Errorf("xmsg: parse: bad ampIndex: %w", err)
	}
	return &CM{Msg: tokens[1], From: tokens[2], To: tokens[3], Time: t, Nonce: nonce, AmpIndex: amp}, nil
}

func parseXCMTokens(tokens []string) (*XCM, error) {
	if tokens[0] != "extClrMsg" {
		return nil, fmt.Errorf("xmsg: parse: bad XCM sentinel %q", tokens[0])
	}
	t, err := strconv.ParseInt(tokens[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("xmsg: parse: bad time: %w", err)
	}
	nonce, err := strconv.ParseInt(tokens[5], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("xmsg: parse: bad nonce: %w", err)
	}
	amp, err := strconv.Atoi(tokens[6])
	if err != nil {
		return nil, fmt.Errorf("xmsg: parse: bad ampIndex: %w", err)
	}
	msgUUID, err := strconv.ParseInt(tokens[7], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("xmsg: parse: bad uuid: %w", err)
	}
	ringTTLRaw, err := strconv.Atoi(tokens[8])
	if err != nil {
		return nil, fmt.Errorf("xmsg: parse: bad ringTtl: %w", err)
	}
	ringIdx, err := strconv.Atoi(tokens[9])
	if err != nil {
		return nil, fmt.Errorf("xmsg: parse: bad ringIdx: %w", err)
	}
	msgType, err := strconv.Atoi(tokens[10])
	if err != nil {
		return nil, fmt.Errorf("xmsg: parse: bad msgType: %w", err)
	}
	var visited, sent []string
	if err := json.Unmarshal([]byte(tokens[11]), &visited); err != nil {
		return nil, fmt.Errorf("xmsg: parse: bad committeesVisited: %w", err)
	}
	if err := json.Unmarshal([]byte(tokens[12]), &sent); err != nil {
		return nil, fmt.Errorf("xmsg: parse: bad committeesSent: %w", err)
	}

	x := &XCM{
		CM: CM{
			Msg: tokens[1], From: tokens[2], To: tokens[3],
			Time: t, Nonce: nonce, AmpIndex: amp,
		},
		UUID:              msgUUID,
		RingIdx:           ringIdx,
		MsgType:           MsgType(msgType),
		CommitteesVisited: visited,
		CommitteesSent:    sent,
	}
	if ringTTLRaw >= 0 {
		x.SetRingTTL(ringTTLRaw)
	}
	return x, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
