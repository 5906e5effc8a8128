package media

import (
	"fmt"
	"sync"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// audioPayloadType and videoPayloadType are the dynamic RTP payload
// type numbers used on this link (RFC 3551 §6: 96-127 dynamic range).
const (
	audioPayloadType = 96
	videoPayloadType = 97
)

// packetizer wraps outgoing encoded frames in RTP packets tagged with
// one SSRC, tracking sequence number and timestamp. Grounded on
// av/rtp/packet.go's AudioPacketizer, generalized to also serve video.
type packetizer struct {
	mu             sync.Mutex
	ssrc           uint32
	payloadType    uint8
	sequenceNumber uint16
	timestamp      uint32
}

func newPacketizer(ssrc uint32, payloadType uint8) *packetizer {
	return &packetizer{ssrc: ssrc, payloadType: payloadType}
}

// packetize marshals payload into one RTP packet, then advances the
// sequence number by one and the timestamp by sampleCount (clock ticks
// the caller supplies — sample count for audio, frame duration in
// clock units for video).
func (p *packetizer) packetize(payload []byte, sampleCount uint32, marker bool) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("media: cannot packetize empty payload")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			PayloadType:    p.payloadType,
			SequenceNumber: p.sequenceNumber,
			Timestamp:      p.timestamp,
			SSRC:           p.ssrc,
		},
		Payload: payload,
	}

	out, err := pkt.Marshal()
	if err != nil {
		return nil, fmt.Errorf("media: marshal RTP packet: %w", err)
	}

	p.sequenceNumber++
	p.timestamp += sampleCount
	return out, nil
}

// depacketizer extracts payload bytes and validates the sender's SSRC
// stays constant for the lifetime of the session, per RTP semantics.
// Grounded on av/rtp/packet.go's AudioDepacketizer, without its jitter
// buffer (spec has no playout-timing scope; buffering is left to the
// embedder's media sink).
type depacketizer struct {
	mu           sync.Mutex
	expectedSSRC uint32
	hasSSRC      bool
	logger       *logrus.Entry
}

func newDepacketizer(logger *logrus.Entry) *depacketizer {
	return &depacketizer{logger: logger}
}

func (d *depacketizer) depacketize(raw []byte) (payload []byte, timestamp uint32, ok bool) {
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(raw); err != nil {
		d.logger.WithError(err).Debug("dropping unparseable RTP packet")
		return nil, 0, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.hasSSRC {
		d.expectedSSRC = pkt.SSRC
		d.hasSSRC = true
	} else if pkt.SSRC != d.expectedSSRC {
		d.logger.WithFields(logrus.Fields{
			"expected_ssrc": d.expectedSSRC,
			"received_ssrc": pkt.SSRC,
		}).Debug("dropping RTP packet with unexpected SSRC")
		return nil, 0, false
	}

	return pkt.Payload, pkt.Timestamp, true
}
