package aead

import (
	"time"

	"github.com/opd-ai/callcore/wire"
)

// maxOutboxSize bounds how many unacknowledged messages a signaling
// EncryptedConnection retains at once (spec §7: "Outbox saturation").
const maxOutboxSize = 64

// maxBatchPerFrame bounds how many outbox entries a single
// retransmission frame batches together.
const maxBatchPerFrame = 8

// outboundFrame is a sent-but-not-yet-acknowledged message retained
// for retransmission (spec §3's OutboundFrame).
type outboundFrame struct {
	counter     uint32
	message     wire.Message
	firstSentAt time.Time
	lastSentAt  time.Time
}

// retransmitInterval computes the bounded exponential pacing named in
// spec §4.2 ("computed from time since first send"). The concrete
// thresholds are an implementation choice (spec §9 Open Question),
// documented in DESIGN.md.
func retransmitInterval(elapsedSinceFirstSent time.Duration) time.Duration {
	switch {
	case elapsedSinceFirstSent < time.Second:
		return 200 * time.Millisecond
	case elapsedSinceFirstSent < 4*time.Second:
		return 500 * time.Millisecond
	case elapsedSinceFirstSent < 10*time.Second:
		return time.Second
	default:
		return 2 * time.Second
	}
}

func (f *outboundFrame) due(now time.Time) bool {
	elapsedSinceFirst := now.Sub(f.firstSentAt)
	return now.Sub(f.lastSentAt) >= retransmitInterval(elapsedSinceFirst)
}
