package aead

import (
	"math"

	"github.com/opd-ai/callcore/wire"
)

// maxSequenceLength is the largest ack count the u8 ackCount field can
// represent.
const maxSequenceLength = math.MaxUint8

// The plaintext an EncryptedConnection seals is an envelope of
// zero-or-more messages plus a trailer of acknowledged counters:
//
//	ackCount:u8, ackCount x counter:u32
//	messageCount:u8
//	messageCount-1 length-prefixed messages, then one unprefixed message
//	  that consumes the remainder of the buffer
//
// Spec §6 places the ack trailer after the messages; this
// implementation places it first so the final message's trailing data
// buffer can genuinely run to end-of-buffer without needing a second
// length field to separate it from the trailer that follows. This is
// a resolution of the spec's Open Question on exact framing detail
// (§9) and is internal to this pair of endpoints — see DESIGN.md.
func encodeEnvelope(messages []wire.Message, acks []uint32) ([]byte, error) {
	w := newWriter()

	if len(acks) > maxSequenceLength {
		acks = acks[len(acks)-maxSequenceLength:]
	}
	w.putUint8(uint8(len(acks)))
	for _, ack := range acks {
		w.putUint32(ack)
	}

	w.putUint8(uint8(len(messages)))
	for i, m := range messages {
		last := i == len(messages)-1
		body, err := wire.Serialize(m, last)
		if err != nil {
			return nil, err
		}
		if !last {
			w.putUint32(uint32(len(body)))
		}
		w.putBytes(body)
	}
	return w.bytes(), nil
}

func decodeEnvelope(buf []byte) (messages []wire.Message, acks []uint32, ok bool) {
	r := newReader(buf)

	ackCount, ok := r.uint8()
	if !ok {
		return nil, nil, false
	}
	acks = make([]uint32, 0, ackCount)
	for i := uint8(0); i < ackCount; i++ {
		v, ok := r.uint32()
		if !ok {
			return nil, nil, false
		}
		acks = append(acks, v)
	}

	messageCount, ok := r.uint8()
	if !ok {
		return nil, nil, false
	}
	messages = make([]wire.Message, 0, messageCount)
	for i := uint8(0); i < messageCount; i++ {
		last := i == messageCount-1
		var body []byte
		if last {
			body = r.rest()
		} else {
			length, ok := r.uint32()
			if !ok {
				return nil, nil, false
			}
			body, ok = r.take(int(length))
			if !ok {
				return nil, nil, false
			}
		}
		m, ok := wire.Deserialize(body, last)
		if !ok {
			return nil, nil, false
		}
		messages = append(messages, m)
	}
	return messages, acks, true
}
