// Package call implements Manager (spec §4.5): the top-level
// coordinator owning one signaling EncryptedConnection, one
// NetworkPeer, one MediaPeer, and the call-level state machine.
package call

import (
	"sync"
	"time"

	"github.com/opd-ai/callcore/aead"
	"github.com/opd-ai/callcore/media"
	networkpkg "github.com/opd-ai/callcore/network"
	"github.com/opd-ai/callcore/queue"
	"github.com/opd-ai/callcore/wire"
	"github.com/sirupsen/logrus"
)

// retransmitInterval is how often the signaling connection
// re-evaluates its outbox for due retransmissions (spec §5: "a helper
// posts (delayMs, cause) into the network context"; here the manager
// context plays that role for the signaling connection it owns).
const retransmitInterval = time.Second

// Callbacks are the embedder callbacks Manager invokes (spec §6).
type Callbacks struct {
	// StateUpdated reports coalesced state transitions.
	StateUpdated func(State, VideoState)
	// SignalingDataEmitted must be delivered by the embedder to the
	// peer's signaling channel. Loss and reordering are both tolerated:
	// unacknowledged messages are retransmitted, and the receiving
	// connection accepts counters out of order within its replay window.
	SignalingDataEmitted func([]byte)
	// RemoteVideoIsActiveUpdated reports the peer's advertised video
	// activity.
	RemoteVideoIsActiveUpdated func(bool)
}

// Descriptor configures a Manager at construction (spec §6).
type Descriptor struct {
	EncryptionKey aead.EncryptionKey
	IsOutgoing    bool
	Servers       []networkpkg.Server
	EnableP2P     bool

	// LocalVideoFormats and LocalEncodersCount describe this side's
	// supported video codecs (spec §4.4). Leave both empty/zero to run
	// audio-only.
	LocalVideoFormats  []wire.VideoFormat
	LocalEncodersCount uint8

	// InitialVideoCapture, if non-nil, is installed before Start so
	// outgoing video can flow as soon as negotiation and the remote's
	// RequestVideo allow it.
	InitialVideoCapture media.VideoCapture

	// WantsIncomingVideo, if true, causes Start to transmit
	// RequestVideo (spec §4.5).
	WantsIncomingVideo bool

	NeverConnectedTimeout time.Duration

	Callbacks Callbacks
}

// Manager is the top-level call coordinator.
type Manager struct {
	ctx *queue.Context

	signaling *aead.EncryptedConnection
	network   *networkpkg.Peer
	media     *media.Peer

	callbacks Callbacks
	logger    *logrus.Entry

	state *stateMachine

	wantsIncomingVideo bool

	mu               sync.Mutex
	started          bool
	closed           bool
	neverConnectedAt *time.Timer
}

// New constructs a Manager. Constructing its network peer starts ICE
// candidate gathering at once, and each gathered local candidate is
// sent on the signaling channel as it appears, even before Start.
// New does not start ICE connectivity checks or send VideoFormats or
// RequestVideo; Start does that.
func New(d Descriptor) (*Manager, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component":   "call.Manager",
		"is_outgoing": d.IsOutgoing,
	})

	m := &Manager{
		ctx:       queue.NewContext(),
		signaling: aead.New(d.EncryptionKey, aead.ModeSignaling),
		callbacks:          d.Callbacks,
		logger:             logger,
		state:              newStateMachine(),
		wantsIncomingVideo: d.WantsIncomingVideo,
	}

	mediaPeer, err := media.New(d.LocalVideoFormats, d.LocalEncodersCount, media.Callbacks{
		SendTransportMessage: m.sendTransportMessage,
		RemoteVideoIsActive:  m.onRemoteVideoIsActive,
	})
	if err != nil {
		return nil, err
	}
	m.media = mediaPeer
	if d.InitialVideoCapture != nil {
		m.media.SetSendVideo(d.InitialVideoCapture)
	}

	networkPeer, err := networkpkg.New(networkpkg.Config{
		IsOutgoing:            d.IsOutgoing,
		EnableP2P:             d.EnableP2P,
		Servers:               d.Servers,
		NeverConnectedTimeout: d.NeverConnectedTimeout,
	}, d.EncryptionKey, networkpkg.Callbacks{
		StateUpdated:             m.onNetworkStateUpdated,
		SendSignalingMessage:     m.sendSignalingMessage,
		TransportMessageReceived: m.onTransportMessageReceived,
	})
	if err != nil {
		return nil, err
	}
	m.network = networkPeer

	timeout := d.NeverConnectedTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	m.neverConnectedAt = time.AfterFunc(timeout, func() {
		m.ctx.Post(m.onNeverConnectedTimeout)
	})

	m.ctx.PostDelayed(retransmitInterval, m.retransmitTick)

	return m, nil
}

// retransmitTick re-evaluates the signaling outbox for due
// retransmissions and reschedules itself. Spurious ticks are
// tolerated: PrepareForSendingService returns ok=false when nothing is
// due (spec §5).
func (m *Manager) retransmitTick() {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}

	prepared, ok := m.signaling.PrepareForSendingService(aead.CauseRetransmit)
	if ok && m.callbacks.SignalingDataEmitted != nil {
		m.callbacks.SignalingDataEmitted(prepared.Bytes)
	}
	m.ctx.PostDelayed(retransmitInterval, m.retransmitTick)
}

// Start starts ICE connectivity checks (the initiator dials, the
// responder accepts), transmits the local VideoFormats, and transmits
// RequestVideo if WantsIncomingVideo was set. It does not start
// candidate gathering, which has been running since New.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.mu.Unlock()

	return queue.Call(m.ctx, func() error {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return ErrManagerClosed
		}
		if m.started {
			m.mu.Unlock()
			return ErrManagerAlreadyStarted
		}
		m.started = true
		m.mu.Unlock()

		m.network.Start()
		m.sendSignalingMessage(wire.Message{Body: m.media.LocalVideoFormats()})
		if m.wantsIncomingVideo {
			m.sendSignalingMessage(wire.Message{Body: wire.RequestVideo{}})
		}
		return nil
	})
}

// ReceiveSignalingData feeds bytes received from the peer's signaling
// channel through the signaling EncryptedConnection and dispatches
// every decrypted message (spec §4.5, §6).
func (m *Manager) ReceiveSignalingData(data []byte) {
	m.ctx.Post(func() {
		decrypted, ok := m.signaling.HandleIncomingPacket(data)
		if !ok {
			return
		}
		m.dispatchSignaling(decrypted.Main)
		for _, msg := range decrypted.Additional {
			m.dispatchSignaling(msg)
		}
	})
}

// dispatchSignaling implements spec §4.5's signaling dispatch table:
// CandidatesList → NetworkPeer; VideoFormats → MediaPeer; others →
// ignored on the signaling channel.
func (m *Manager) dispatchSignaling(msg wire.Message) {
	switch body := msg.Body.(type) {
	case wire.CandidatesList:
		m.network.ReceiveSignalingMessage(body)
	case wire.VideoFormats:
		m.media.ReceiveMessage(msg)
		m.reevaluateVideoState()
	default:
		m.logger.WithField("tag", msg.Tag()).Debug("ignoring message on signaling channel")
	}
}

// onTransportMessageReceived implements spec §4.5's transport
// dispatch: same table as signaling, plus media-data messages routed
// to MediaPeer.
func (m *Manager) onTransportMessageReceived(msg wire.Message) {
	m.ctx.Post(func() {
		switch body := msg.Body.(type) {
		case wire.CandidatesList:
			m.network.ReceiveSignalingMessage(body)
		case wire.VideoFormats:
			m.media.ReceiveMessage(msg)
			m.reevaluateVideoState()
		case wire.RequestVideo:
			m.media.ReceiveMessage(msg)
			m.reevaluateVideoState()
		case wire.AudioData, wire.VideoData, wire.RemoteVideoIsActive:
			m.media.ReceiveMessage(msg)
		default:
			m.logger.WithField("tag", msg.Tag()).Debug("ignoring unrecognized transport message")
		}
	})
}

func (m *Manager) reevaluateVideoState() {
	newVideo, changed := m.state.onVideoNegotiated(m.media.VideoCodecsNegotiated())
	if changed {
		m.notifyStateUpdated(m.state.state, newVideo)
	}
}

// sendSignalingMessage frames body through the signaling
// EncryptedConnection and hands the ciphertext to the embedder.
func (m *Manager) sendSignalingMessage(msg wire.Message) {
	prepared, ok := m.signaling.PrepareForSending(msg.Body)
	if !ok {
		m.logger.Debug("signaling outbox saturated, dropping message")
		return
	}
	if m.callbacks.SignalingDataEmitted != nil {
		m.callbacks.SignalingDataEmitted(prepared.Bytes)
	}
}

// sendTransportMessage hands a media-data message from MediaPeer to
// NetworkPeer for transport-mode framing and transmission.
func (m *Manager) sendTransportMessage(body wire.Body) {
	m.network.SendMessage(body)
}

func (m *Manager) onRemoteVideoIsActive(active bool) {
	if m.callbacks.RemoteVideoIsActiveUpdated != nil {
		m.callbacks.RemoteVideoIsActiveUpdated(active)
	}
}

// onNetworkStateUpdated applies spec §4.5's connectivity transition
// rule and propagates isConnected to MediaPeer's outgoing gate.
func (m *Manager) onNetworkStateUpdated(s networkpkg.State) {
	m.ctx.Post(func() {
		m.media.SetIsConnected(s.IsReadyToSendData)

		newState, changed := m.state.onConnectivityChanged(s.IsReadyToSendData)
		if s.IsReadyToSendData {
			m.mu.Lock()
			if m.neverConnectedAt != nil {
				m.neverConnectedAt.Stop()
			}
			m.mu.Unlock()
		}
		if changed {
			m.notifyStateUpdated(newState, m.state.videoState)
		}
	})
}

func (m *Manager) onNeverConnectedTimeout() {
	newState, changed := m.state.onNeverConnectedTimeout()
	if changed {
		m.notifyStateUpdated(newState, m.state.videoState)
	}
}

func (m *Manager) notifyStateUpdated(s State, v VideoState) {
	if m.callbacks.StateUpdated != nil {
		m.callbacks.StateUpdated(s, v)
	}
}

// RequestVideo asks the remote to send video and installs capture for
// this side's outgoing video (spec §6: "requestVideo(capture)"). If
// capture is nil and no capture was installed earlier (at
// construction or by a prior call), it returns ErrNoVideoCapture
// without sending anything.
func (m *Manager) RequestVideo(capture media.VideoCapture) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrManagerClosed
	}

	return queue.Call(m.ctx, func() error {
		if capture == nil && !m.media.HasSendVideo() {
			return ErrNoVideoCapture
		}
		if capture != nil {
			m.media.SetSendVideo(capture)
		}
		if newVideo, changed := m.state.onVideoRequestedLocally(); changed {
			m.notifyStateUpdated(m.state.state, newVideo)
		}
		m.sendSignalingMessage(wire.Message{Body: wire.RequestVideo{}})
		return nil
	})
}

// SetMuteOutgoingAudio toggles the outgoing-audio mute flag.
func (m *Manager) SetMuteOutgoingAudio(muted bool) {
	m.ctx.Post(func() { m.media.SetMuteOutgoingAudio(muted) })
}

// SetIncomingVideoOutput installs the sink for decoded remote video.
func (m *Manager) SetIncomingVideoOutput(sink media.IncomingVideoOutput) {
	m.ctx.Post(func() { m.media.SetIncomingVideoOutput(sink) })
}

// Close tears down media, then network, then signaling, in that order
// (spec §5: "destroying it tears down media, then network, then
// signaling"). Each step drains its owning context before releasing
// resources.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.neverConnectedAt != nil {
		m.neverConnectedAt.Stop()
	}
	m.mu.Unlock()

	m.ctx.Drain()
	m.network.Close()
	m.ctx.Close()
}
