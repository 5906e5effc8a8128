// Package media implements MediaPeer (spec §4.4): the component that
// owns the audio channel (always present) and the video channel
// (created lazily once codecs are negotiated), negotiates the
// intersection of local and remote video codecs, gates outgoing media
// on connectivity, and turns encoded frames into RTP packets carried
// as AudioData/VideoData messages.
package media

import (
	"sync"

	"github.com/opd-ai/callcore/wire"
	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// VideoCapture supplies encoded video frames to send. The embedder
// implements this over its own encoder (spec §4.4: "local provided a
// VideoCapture").
type VideoCapture interface {
	// NextFrame returns one encoded video frame and its duration in RTP
	// clock ticks, or ok=false if nothing is ready yet.
	NextFrame() (payload []byte, durationTicks uint32, ok bool)
}

// IncomingVideoOutput receives decoded video frame payloads (spec
// §4.4: "setIncomingVideoOutput(sink)").
type IncomingVideoOutput interface {
	HandleFrame(payload []byte, timestamp uint32)
}

// IncomingAudioOutput receives decoded audio frame payloads.
type IncomingAudioOutput interface {
	HandleFrame(payload []byte, timestamp uint32)
}

// Callbacks are the outward-facing signals MediaPeer emits.
type Callbacks struct {
	// SendTransportMessage hands an AudioData/VideoData message to the
	// caller for framing and transmission (spec §4.4: "an adapter whose
	// SendPacket/SendRtcp feed bytes into a transport-mode pipeline").
	SendTransportMessage func(wire.Body)
	// RemoteVideoIsActive reports the peer's advertised video activity
	// upward (spec §4.4: "RemoteVideoIsActive is reported upward").
	RemoteVideoIsActive func(active bool)
}

// Peer is MediaPeer.
type Peer struct {
	mu sync.Mutex

	callbacks Callbacks
	logger    *logrus.Entry

	isConnected        bool
	muteOutgoingAudio  bool
	videoCapture       VideoCapture
	incomingVideoSink  IncomingVideoOutput
	incomingAudioSink  IncomingAudioOutput
	remoteRequestedVid bool

	localVideoFormats  wire.VideoFormats
	remoteVideoFormats wire.VideoFormats
	haveRemoteFormats  bool
	negotiatedCodec    string
	negotiated         bool

	audioSSRC      SSRCSet
	videoSSRC      SSRCSet
	audioBandwidth opus.Bandwidth

	audioSendPacketizer  *packetizer
	audioRecvDepacketizer *depacketizer
	videoSendPacketizer  *packetizer
	videoRecvDepacketizer *depacketizer
}

// New constructs a Peer with locally supported video formats.
// localEncodersCount is the prefix of formats this side can encode
// (spec §4.4: "the first encodersCount entries are those for which
// local encoding is available").
func New(localFormats []wire.VideoFormat, localEncodersCount uint8, callbacks Callbacks) (*Peer, error) {
	audioSSRC, err := newSSRCSet()
	if err != nil {
		return nil, err
	}
	videoSSRC, err := newSSRCSet()
	if err != nil {
		return nil, err
	}

	logger := logrus.WithField("component", "media.Peer")
	audioBandwidth := bandwidthForSampleRate(defaultAudioClockRate, logger)

	p := &Peer{
		callbacks:             callbacks,
		logger:                logger,
		localVideoFormats:     wire.VideoFormats{Formats: localFormats, EncodersCount: localEncodersCount},
		audioSSRC:             audioSSRC,
		videoSSRC:             videoSSRC,
		audioBandwidth:        audioBandwidth,
		audioSendPacketizer:   newPacketizer(audioSSRC.Outgoing, audioPayloadType),
		audioRecvDepacketizer: newDepacketizer(logger.WithField("channel", "audio")),
	}
	logger.WithField("audio_bandwidth", audioBandwidth).Info("audio channel established")
	return p, nil
}

// AudioBandwidth reports the Opus bandwidth classification of the
// mandatory audio channel's clock rate, for embedder-side quality
// logging (spec §4.4's audio channel is "always present").
func (p *Peer) AudioBandwidth() opus.Bandwidth {
	return p.audioBandwidth
}

// LocalVideoFormats returns the message to advertise to the remote
// side, per spec §4.5's "transmit initial VideoFormats" step.
func (p *Peer) LocalVideoFormats() wire.VideoFormats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.localVideoFormats
}

// SetIsConnected updates the connectivity gate that unlocks outgoing
// media (spec §4.4: "setIsConnected(bool)").
func (p *Peer) SetIsConnected(connected bool) {
	p.mu.Lock()
	p.isConnected = connected
	p.mu.Unlock()
}

// SetMuteOutgoingAudio toggles the local outgoing-audio mute flag.
func (p *Peer) SetMuteOutgoingAudio(muted bool) {
	p.mu.Lock()
	p.muteOutgoingAudio = muted
	p.mu.Unlock()
}

// SetSendVideo installs (or clears, with a nil capture) the local
// video source.
func (p *Peer) SetSendVideo(capture VideoCapture) {
	p.mu.Lock()
	p.videoCapture = capture
	p.mu.Unlock()
}

// HasSendVideo reports whether a VideoCapture is currently installed.
func (p *Peer) HasSendVideo() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.videoCapture != nil
}

// SetIncomingVideoOutput installs the sink for decoded remote video.
func (p *Peer) SetIncomingVideoOutput(sink IncomingVideoOutput) {
	p.mu.Lock()
	p.incomingVideoSink = sink
	p.mu.Unlock()
}

// SetIncomingAudioOutput installs the sink for decoded remote audio.
func (p *Peer) SetIncomingAudioOutput(sink IncomingAudioOutput) {
	p.mu.Lock()
	p.incomingAudioSink = sink
	p.mu.Unlock()
}

// audioUnmuted reports spec §4.4's outgoing-audio gate:
// "isConnected && !muteOutgoingAudio".
func (p *Peer) audioUnmuted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isConnected && !p.muteOutgoingAudio
}

// videoFlowing reports spec §4.4's outgoing-video gate: "isConnected
// && videoCodecsNegotiated() && remote sent RequestVideo && local
// provided a VideoCapture".
func (p *Peer) videoFlowing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isConnected && p.negotiated && p.remoteRequestedVid && p.videoCapture != nil
}

// SendAudioFrame packetizes and emits an encoded audio frame if the
// outgoing-audio gate is open. It is a no-op otherwise (spec §4.4).
func (p *Peer) SendAudioFrame(payload []byte, sampleCount uint32, marker bool) {
	if !p.audioUnmuted() {
		return
	}
	p.sendFrame(p.audioSendPacketizer, payload, sampleCount, marker, func(b []byte) wire.Body {
		return wire.AudioData{Payload: b}
	})
}

// PumpVideoFrame draws the next frame from the installed VideoCapture
// and emits it if the outgoing-video gate is open. Callers invoke this
// on their own schedule (spec places frame pacing outside this
// component's scope).
func (p *Peer) PumpVideoFrame() {
	if !p.videoFlowing() {
		return
	}
	p.mu.Lock()
	capture := p.videoCapture
	sender := p.videoSendPacketizer
	p.mu.Unlock()
	if capture == nil || sender == nil {
		return
	}
	payload, ticks, ok := capture.NextFrame()
	if !ok {
		return
	}
	p.sendFrame(sender, payload, ticks, true, func(b []byte) wire.Body {
		return wire.VideoData{Payload: b}
	})
}

func (p *Peer) sendFrame(sender *packetizer, payload []byte, ticks uint32, marker bool, wrap func([]byte) wire.Body) {
	rtpBytes, err := sender.packetize(payload, ticks, marker)
	if err != nil {
		p.logger.WithError(err).Debug("dropping frame that failed to packetize")
		return
	}
	if p.callbacks.SendTransportMessage != nil {
		p.callbacks.SendTransportMessage(wrap(rtpBytes))
	}
}

// ReceiveMessage dispatches one decrypted message per spec §4.4's
// receiveMessage variant table.
func (p *Peer) ReceiveMessage(m wire.Message) {
	switch body := m.Body.(type) {
	case wire.VideoFormats:
		p.setPeerVideoFormats(body)
	case wire.AudioData:
		p.handleIncomingAudio(body.Payload)
	case wire.VideoData:
		p.handleIncomingVideo(body.Payload)
	case wire.RequestVideo:
		p.mu.Lock()
		p.remoteRequestedVid = true
		p.mu.Unlock()
	case wire.RemoteVideoIsActive:
		if p.callbacks.RemoteVideoIsActive != nil {
			p.callbacks.RemoteVideoIsActive(body.Active)
		}
	default:
		p.logger.WithField("tag", m.Tag()).Debug("ignoring message not handled by media")
	}
}

// setPeerVideoFormats records the remote's advertised formats and
// (re)runs codec negotiation (spec §4.4).
func (p *Peer) setPeerVideoFormats(remote wire.VideoFormats) {
	p.mu.Lock()
	p.remoteVideoFormats = remote
	p.haveRemoteFormats = true
	local := p.localVideoFormats
	p.mu.Unlock()

	codec, ok := negotiateOutgoingCodec(local, remote)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.negotiatedCodec = codec
	p.negotiated = ok
	if ok && p.videoSendPacketizer == nil {
		p.videoSendPacketizer = newPacketizer(p.videoSSRC.Outgoing, videoPayloadType)
		p.videoRecvDepacketizer = newDepacketizer(p.logger.WithField("channel", "video"))
	}
	p.logger.WithFields(logrus.Fields{
		"negotiated": ok,
		"codec":      codec,
	}).Info("video codec negotiation completed")
}

// VideoCodecsNegotiated reports whether an outgoing video codec was
// agreed on (spec §4.4: "videoCodecsNegotiated()").
func (p *Peer) VideoCodecsNegotiated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.negotiated
}

func (p *Peer) handleIncomingAudio(raw []byte) {
	payload, ts, ok := p.audioRecvDepacketizer.depacketize(raw)
	if !ok {
		return
	}
	p.mu.Lock()
	sink := p.incomingAudioSink
	p.mu.Unlock()
	if sink != nil {
		sink.HandleFrame(payload, ts)
	}
}

func (p *Peer) handleIncomingVideo(raw []byte) {
	p.mu.Lock()
	depacketizer := p.videoRecvDepacketizer
	sink := p.incomingVideoSink
	p.mu.Unlock()
	if depacketizer == nil {
		return
	}
	payload, ts, ok := depacketizer.depacketize(raw)
	if !ok {
		return
	}
	if sink != nil {
		sink.HandleFrame(payload, ts)
	}
}
