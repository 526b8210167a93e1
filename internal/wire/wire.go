// Package wire implements the message envelope and encoding shared by
// every inter-core exchange (spec §6.3): a tagged
// (sender_id, recipient_id, channel_run_idx, message_type, payload,
// mac_tag) tuple, MAC-authenticated over the channel at run_idx.
// Grounded on original_source/sim/core/mock_liu.py's message framing
// and the teacher's DTO style (generate/common/db.go,
// sign/common/db.go).
package wire

import (
	"encoding/binary"
	"errors"

	"github.com/noospheer/Liun/internal/gf61"
	"github.com/noospheer/Liun/internal/keychannel"
)

// MessageType enumerates the wire message kinds named in spec §6.3.
type MessageType uint8

const (
	DKGShare MessageType = iota
	DKGCross
	DKGComplaint
	IntroRequest
	IntroComponent
	IntroAck
	SigPartial
	SigCombined
	VerifyAttestation
	Dispute
	GossipEdge
)

// ErrMACFailure flags a message whose MAC did not verify against the
// channel it claims to have arrived on (spec §7 MACFailure).
var ErrMACFailure = errors.New("wire: mac verification failed")

// Envelope is the wire tuple of spec §6.3.
type Envelope struct {
	SenderID    gf61.Elem
	RecipientID gf61.Elem
	RunIdx      uint64
	Type        MessageType
	Payload     []gf61.Elem
	MACTag      gf61.Elem
}

// EncodeFieldElements serializes field elements as 8-byte
// little-endian words (spec §6.3: "Payloads encode field elements in
// 8-byte little-endian").
func EncodeFieldElements(elems []gf61.Elem) []byte {
	buf := make([]byte, 8*len(elems))
	for i, e := range elems {
		binary.LittleEndian.PutUint64(buf[i*8:], e)
	}
	return buf
}

// DecodeFieldElements is the inverse of EncodeFieldElements.
func DecodeFieldElements(buf []byte) []gf61.Elem {
	out := make([]gf61.Elem, len(buf)/8)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
	return out
}

// EncodeBytes length-prefixes a byte string (spec §6.3: "byte strings
// as length-prefixed").
func EncodeBytes(b []byte) []byte {
	out := make([]byte, 4+len(b))
	binary.LittleEndian.PutUint32(out, uint32(len(b)))
	copy(out[4:], b)
	return out
}

// Seal computes an envelope's MAC over its payload using ch at
// RunIdx, and returns the sealed envelope (spec §6.3: "All messages
// carry a MAC tag computed over the payload bytes with the channel's
// MAC at run_idx").
func Seal(ch keychannel.Channel, senderID, recipientID gf61.Elem, runIdx uint64, msgType MessageType, payload []gf61.Elem) (Envelope, error) {
	tag, err := ch.MAC(payload, runIdx)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		SenderID:    senderID,
		RecipientID: recipientID,
		RunIdx:      runIdx,
		Type:        msgType,
		Payload:     payload,
		MACTag:      tag,
	}, nil
}

// Open verifies an envelope's MAC against ch and returns the payload
// on success. Rejects a stale or forged envelope exactly per spec
// §6.3: "Recipients MUST reject any message whose MAC fails or whose
// run_idx is less than the last-accepted run_idx on that channel" —
// both cases surface through ch.VerifyMAC (ErrRunIndexReplay or a
// false verification result mapped to ErrMACFailure here).
func Open(ch keychannel.Channel, env Envelope) ([]gf61.Elem, error) {
	ok, err := ch.VerifyMAC(env.Payload, env.MACTag, env.RunIdx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrMACFailure
	}
	return env.Payload, nil
}
