// Package aead implements the encrypted, replay-protected framing
// layer that sits above the wire codec (spec §4.2). An
// EncryptedConnection holds session keys, per-direction sequence
// counters, an outbox of unacknowledged messages (signaling mode
// only), and a bounded set of recently seen inbound counters.
package aead

import (
	"sync"
	"time"

	"github.com/opd-ai/callcore/wire"
	"github.com/sirupsen/logrus"
)

// Mode selects the two instantiation shapes named in spec §4.2.
type Mode int

const (
	// ModeSignaling wraps outbound bytes for a best-effort, out-of-band
	// channel: it retains an outbox and retransmits unacknowledged
	// messages, and can batch several into one frame.
	ModeSignaling Mode = iota
	// ModeTransport wraps outbound bytes for the unreliable UDP path:
	// no outbox, one user message per frame, acks piggybacked inline.
	ModeTransport
)

func (m Mode) String() string {
	if m == ModeTransport {
		return "transport"
	}
	return "signaling"
}

// ServiceCause names the condition a delayed service-frame emission is
// re-evaluating (spec §5: "cause names the condition to be
// re-evaluated").
type ServiceCause int

const (
	CauseRetransmit ServiceCause = iota
	CauseFlushAcks
	CauseKeepalive
)

// PreparedFrame is a ciphertext ready to hand to the owning transport.
type PreparedFrame struct {
	Counter uint32
	Bytes   []byte
}

// EncryptedConnection is the stateful framing layer of spec §4.2.
// Every method takes an internal mutex, so concurrent calls are safe;
// per spec §5, each instance is nonetheless owned by exactly one
// context (network or manager) and accessed only there.
type EncryptedConnection struct {
	mu sync.Mutex

	key  EncryptionKey
	mode Mode

	nextCounter uint32
	outbox      []*outboundFrame
	pendingAcks []uint32

	seen  *SeenSet
	clock TimeProvider

	logger *logrus.Entry
}

// New creates an EncryptedConnection over key in the given mode. The
// first outbound counter is 1, per spec §8 ("reference uses 1").
func New(key EncryptionKey, mode Mode) *EncryptedConnection {
	return newWithClock(key, mode, DefaultTimeProvider{})
}

// newWithClock is New with an injectable clock, used by tests that
// exercise retransmission pacing without sleeping (spec §0 ambient
// stack: deterministic time via TimeProvider).
func newWithClock(key EncryptionKey, mode Mode, clock TimeProvider) *EncryptedConnection {
	return &EncryptedConnection{
		key:         key,
		mode:        mode,
		nextCounter: 1,
		seen:        NewSeenSet(),
		clock:       clock,
		logger: logrus.WithFields(logrus.Fields{
			"component": "aead.EncryptedConnection",
			"mode":      mode.String(),
		}),
	}
}

// PrepareForSending assigns body the next outbound counter and returns
// the ciphertext frame carrying it, or ok=false if the outbox is
// saturated (signaling mode only; spec §7).
func (c *EncryptedConnection) PrepareForSending(body wire.Body) (PreparedFrame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode == ModeSignaling && len(c.outbox) >= maxOutboxSize {
		c.logger.WithField("outbox_size", len(c.outbox)).Warn("outbox saturated, dropping outbound message")
		return PreparedFrame{}, false
	}

	counter := c.nextCounter
	c.nextCounter++
	msg := wire.Message{Seq: counter, Body: body}

	if c.mode == ModeSignaling {
		now := c.clock.Now()
		c.outbox = append(c.outbox, &outboundFrame{
			counter:     counter,
			message:     msg,
			firstSentAt: now,
			lastSentAt:  now,
		})
	}

	frame, err := c.sealEnvelope([]wire.Message{msg})
	if err != nil {
		c.logger.WithError(err).Error("failed to seal outbound message")
		return PreparedFrame{}, false
	}
	return PreparedFrame{Counter: counter, Bytes: frame}, true
}

// PrepareForSendingService emits a frame carrying no user message: in
// transport mode this flushes pending acks and/or serves as a
// keepalive; in signaling mode, when cause is CauseRetransmit, it
// batches due outbox entries (at most maxBatchPerFrame) into one frame
// instead.
func (c *EncryptedConnection) PrepareForSendingService(cause ServiceCause) (PreparedFrame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode == ModeSignaling && cause == CauseRetransmit {
		return c.retransmitDueLocked(c.clock.Now())
	}

	if len(c.pendingAcks) == 0 && cause != CauseKeepalive {
		return PreparedFrame{}, false
	}

	frame, err := c.sealEnvelope(nil)
	if err != nil {
		c.logger.WithError(err).Error("failed to seal service frame")
		return PreparedFrame{}, false
	}
	return PreparedFrame{Bytes: frame}, true
}

// retransmitDueLocked batches outbox entries whose backoff has elapsed,
// oldest first and at most maxBatchPerFrame of them, into a single
// multi-message frame; due entries beyond that wait for a later call.
// Callers hold c.mu.
func (c *EncryptedConnection) retransmitDueLocked(now time.Time) (PreparedFrame, bool) {
	var due []*outboundFrame
	for _, f := range c.outbox {
		if f.due(now) {
			due = append(due, f)
			if len(due) >= maxBatchPerFrame {
				break
			}
		}
	}
	if len(due) == 0 {
		return PreparedFrame{}, false
	}

	messages := make([]wire.Message, len(due))
	for i, f := range due {
		messages[i] = f.message
		f.lastSentAt = now
	}

	frame, err := c.sealEnvelope(messages)
	if err != nil {
		c.logger.WithError(err).Error("failed to seal retransmission frame")
		return PreparedFrame{}, false
	}
	c.logger.WithField("count", len(due)).Debug("retransmitting unacknowledged messages")
	return PreparedFrame{Bytes: frame}, true
}

// Incoming is the result of successfully decrypting an inbound packet:
// one main message plus zero or more additional messages batched into
// the same frame (spec §4.2).
type Incoming struct {
	Main       wire.Message
	Additional []wire.Message
}

// HandleIncomingPacket authenticates, deduplicates, and decodes bytes.
// It returns ok=false if the packet fails authentication, fails to
// parse, or carries only counters already seen (spec §7 and the
// replay-rejection property in spec §8) — all silent-drop conditions.
func (c *EncryptedConnection) HandleIncomingPacket(bytes []byte) (Incoming, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	plaintext, ok := open(c.key.recvPart(), bytes)
	if !ok {
		c.logger.Warn("dropping packet: authentication failed")
		return Incoming{}, false
	}

	messages, acks, ok := decodeEnvelope(plaintext)
	if !ok {
		c.logger.Warn("dropping packet: envelope parse failure")
		return Incoming{}, false
	}

	for _, ack := range acks {
		c.dropAckedLocked(ack)
	}

	var accepted []wire.Message
	for _, m := range messages {
		if !c.seen.CheckAndMark(m.Seq) {
			c.logger.WithField("counter", m.Seq).Debug("dropping duplicate/replayed counter")
			continue
		}
		accepted = append(accepted, m)
		c.queueAckLocked(m.Seq)
	}

	if len(accepted) == 0 {
		return Incoming{}, false
	}
	return Incoming{Main: accepted[0], Additional: accepted[1:]}, true
}

func (c *EncryptedConnection) dropAckedLocked(counter uint32) {
	for i, f := range c.outbox {
		if f.counter == counter {
			c.outbox = append(c.outbox[:i], c.outbox[i+1:]...)
			return
		}
	}
}

func (c *EncryptedConnection) queueAckLocked(counter uint32) {
	for _, existing := range c.pendingAcks {
		if existing == counter {
			return
		}
	}
	c.pendingAcks = append(c.pendingAcks, counter)
}

// sealEnvelope builds the envelope for messages plus every pending
// ack, encrypts it, and clears the pending-ack list on success.
// Callers hold c.mu.
func (c *EncryptedConnection) sealEnvelope(messages []wire.Message) ([]byte, error) {
	plaintext, err := encodeEnvelope(messages, c.pendingAcks)
	if err != nil {
		return nil, err
	}
	frame, err := seal(c.key.sendPart(), plaintext)
	if err != nil {
		return nil, err
	}
	c.pendingAcks = c.pendingAcks[:0]
	return frame, nil
}

// OutboxLen reports the number of unacknowledged messages retained
// (signaling mode only; always 0 in transport mode). Exposed for
// tests and for Manager-level saturation diagnostics.
func (c *EncryptedConnection) OutboxLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outbox)
}
