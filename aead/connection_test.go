package aead

import (
	"testing"
	"time"

	"github.com/opd-ai/callcore/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyPair() (outgoing, incoming EncryptionKey) {
	var secret [keySize]byte
	for i := range secret {
		secret[i] = byte(i)
	}
	return EncryptionKey{Value: secret, IsOutgoing: true}, EncryptionKey{Value: secret, IsOutgoing: false}
}

func TestEncryptedRoundTrip(t *testing.T) {
	out, in := keyPair()
	sender := New(out, ModeTransport)
	receiver := New(in, ModeTransport)

	prepared, ok := sender.PrepareForSending(wire.AudioData{Payload: []byte("hello")})
	require.True(t, ok)
	assert.Equal(t, uint32(1), prepared.Counter)

	incoming, ok := receiver.HandleIncomingPacket(prepared.Bytes)
	require.True(t, ok)
	assert.Equal(t, prepared.Counter, incoming.Main.Seq)
	assert.Equal(t, wire.AudioData{Payload: []byte("hello")}, incoming.Main.Body)
	assert.Empty(t, incoming.Additional)
}

func TestReplayRejection(t *testing.T) {
	out, in := keyPair()
	sender := New(out, ModeTransport)
	receiver := New(in, ModeTransport)

	prepared, ok := sender.PrepareForSending(wire.RequestVideo{})
	require.True(t, ok)

	_, ok = receiver.HandleIncomingPacket(prepared.Bytes)
	require.True(t, ok)

	_, ok = receiver.HandleIncomingPacket(prepared.Bytes)
	assert.False(t, ok, "second delivery of the same ciphertext must be dropped")
}

func TestMonotoneCounters(t *testing.T) {
	out, _ := keyPair()
	sender := New(out, ModeTransport)

	var counters []uint32
	for i := 0; i < 5; i++ {
		prepared, ok := sender.PrepareForSending(wire.RequestVideo{})
		require.True(t, ok)
		counters = append(counters, prepared.Counter)
	}
	for i, c := range counters {
		assert.Equal(t, uint32(i+1), c)
	}
}

func TestAckProgressesOutbox(t *testing.T) {
	out, in := keyPair()
	a := New(out, ModeSignaling)
	b := New(in, ModeSignaling)

	prepared, ok := a.PrepareForSending(wire.RequestVideo{})
	require.True(t, ok)
	assert.Equal(t, 1, a.OutboxLen())

	// b receives it, which queues an ack.
	_, ok = b.HandleIncomingPacket(prepared.Bytes)
	require.True(t, ok)

	// b sends any frame back (its own message); it must carry the ack.
	reply, ok := b.PrepareForSending(wire.RequestVideo{})
	require.True(t, ok)

	_, ok = a.HandleIncomingPacket(reply.Bytes)
	require.True(t, ok)

	assert.Equal(t, 0, a.OutboxLen(), "outbox must drop the acknowledged counter")
}

func TestOutboxSaturation(t *testing.T) {
	out, _ := keyPair()
	sender := New(out, ModeSignaling)

	var lastOK bool
	for i := 0; i < maxOutboxSize+5; i++ {
		_, ok := sender.PrepareForSending(wire.RequestVideo{})
		lastOK = ok
	}
	assert.False(t, lastOK, "outbox must eventually saturate")
	assert.Equal(t, maxOutboxSize, sender.OutboxLen())
}

// fakeClock is a manually advanced TimeProvider for deterministic
// retransmission-pacing tests.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestRetransmissionBatchesDueEntries(t *testing.T) {
	out, in := keyPair()
	clock := &fakeClock{now: time.Unix(0, 0)}
	sender := newWithClock(out, ModeSignaling, clock)
	receiver := New(in, ModeSignaling)

	for i := 0; i < 3; i++ {
		_, ok := sender.PrepareForSending(wire.RequestVideo{})
		require.True(t, ok)
	}

	// Nothing due immediately.
	_, ok := sender.PrepareForSendingService(CauseRetransmit)
	assert.False(t, ok)

	// Advance the clock past every tier's backoff so all three entries
	// are due at once.
	clock.now = clock.now.Add(5 * time.Second)

	prepared, ok := sender.PrepareForSendingService(CauseRetransmit)
	require.True(t, ok)

	incoming, ok := receiver.HandleIncomingPacket(prepared.Bytes)
	require.True(t, ok)
	assert.Len(t, incoming.Additional, 2)
}

func TestEncodersCountRejectedWithoutSideEffects(t *testing.T) {
	out, in := keyPair()
	sender := New(out, ModeTransport)
	receiver := New(in, ModeTransport)

	// wire.Serialize refuses a bad VideoFormats, so build a valid
	// envelope and corrupt it. The VideoFormats is the only (and so the
	// last) message, and its body ends with the encodersCount byte, so
	// the final plaintext byte is that field.
	envelope, err := encodeEnvelope([]wire.Message{{Seq: 1, Body: wire.VideoFormats{
		Formats:       []wire.VideoFormat{{Name: "VP8"}},
		EncodersCount: 0,
	}}}, nil)
	require.NoError(t, err)
	badEnvelope := append([]byte(nil), envelope...)
	badEnvelope[len(badEnvelope)-1] = 2
	badFrame, err := seal(sender.key.sendPart(), badEnvelope)
	require.NoError(t, err)

	_, ok := receiver.HandleIncomingPacket(badFrame)
	assert.False(t, ok, "encodersCount above the format count must be rejected")

	// No side effects: the rejected packet did not consume counter 1,
	// so the valid frame with the same counter is still accepted.
	frame, err := seal(sender.key.sendPart(), envelope)
	require.NoError(t, err)
	incoming, ok := receiver.HandleIncomingPacket(frame)
	require.True(t, ok)
	assert.Equal(t, uint8(0), incoming.Main.Body.(wire.VideoFormats).EncodersCount)
}
