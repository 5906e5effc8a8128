package network

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/callcore/aead"
	"github.com/opd-ai/callcore/queue"
	"github.com/opd-ai/callcore/wire"
	"github.com/pion/ice/v2"
	"github.com/sirupsen/logrus"
)

// maxDatagramSize is the largest UDP payload the read loop accepts per
// packet.
const maxDatagramSize = 65535

// serviceInterval is how often the transport connection re-evaluates
// whether a service frame (piggybacked acks, keepalive) is due (spec
// §5: "a helper posts (delayMs, cause) into the network context").
const serviceInterval = 5 * time.Second

// State reports the connectivity gate MediaPeer and Manager watch
// (spec §4.3: "isReadyToSendData = (iceState ∈ {Connected,
// Completed})").
type State struct {
	IsReadyToSendData bool
}

// Callbacks are invoked from the network Context's goroutine. They
// must not be invoked after the owning Peer's Close has completed
// (spec §5).
type Callbacks struct {
	// StateUpdated reports every ICE connectivity transition.
	StateUpdated func(State)
	// SendSignalingMessage delivers a freshly gathered local candidate
	// to the peer via the out-of-band signaling channel.
	SendSignalingMessage func(wire.Message)
	// TransportMessageReceived delivers every message decrypted off an
	// inbound ICE packet.
	TransportMessageReceived func(wire.Message)
}

// Peer owns one ICE transport plus the transport-mode
// EncryptedConnection layered on top of it (spec §4.3).
type Peer struct {
	cfg       Config
	transport *aead.EncryptedConnection
	callbacks Callbacks

	ctx *queue.Context

	agent *ice.Agent
	conn  *ice.Conn

	mu     sync.Mutex
	closed bool

	logger *logrus.Entry
}

// New constructs a Peer and begins ICE candidate gathering. Gathering
// runs asynchronously; call Start to begin connecting once the remote
// side is known to be listening for signaling.
func New(cfg Config, key aead.EncryptionKey, callbacks Callbacks) (*Peer, error) {
	cfg = cfg.withDefaults()

	p := &Peer{
		cfg:       cfg,
		transport: aead.New(key, aead.ModeTransport),
		callbacks: callbacks,
		ctx:       queue.NewContext(),
		logger: logrus.WithFields(logrus.Fields{
			"component":   "network.Peer",
			"is_outgoing": cfg.IsOutgoing,
		}),
	}

	agent, err := newICEAgent(cfg)
	if err != nil {
		p.logger.WithError(err).Error("failed to create ICE agent")
		return nil, fmt.Errorf("network: create ICE agent: %w", err)
	}
	p.agent = agent

	if err := agent.OnCandidate(func(c ice.Candidate) {
		if c == nil {
			return
		}
		p.ctx.Post(func() { p.handleLocalCandidate(c) })
	}); err != nil {
		return nil, fmt.Errorf("network: register candidate callback: %w", err)
	}

	if err := agent.OnConnectionStateChange(func(s ice.ConnectionState) {
		p.ctx.Post(func() { p.handleConnectionStateChange(s) })
	}); err != nil {
		return nil, fmt.Errorf("network: register state callback: %w", err)
	}

	if err := agent.GatherCandidates(); err != nil {
		p.logger.WithError(err).Error("failed to start ICE gathering")
		return nil, fmt.Errorf("network: gather candidates: %w", err)
	}

	p.ctx.PostDelayed(serviceInterval, p.serviceTick)

	return p, nil
}

// serviceTick emits a keepalive service frame (which also flushes any
// pending acks) and reschedules itself.
func (p *Peer) serviceTick() {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}
	p.SendTransportService(aead.CauseKeepalive)
	p.ctx.PostDelayed(serviceInterval, p.serviceTick)
}

func newICEAgent(cfg Config) (*ice.Agent, error) {
	localUfrag, localPwd := cfg.localCredentials()

	agentConfig := &ice.AgentConfig{
		NetworkTypes: []ice.NetworkType{ice.NetworkTypeUDP4, ice.NetworkTypeUDP6},
		LocalUfrag:   localUfrag,
		LocalPwd:     localPwd,
	}
	// continualGathering = true (spec §4.3): pion/ice gathers
	// continuously by default when GatherCandidates is invoked once
	// and CandidateTypes/network interfaces change is monitored; no
	// extra flag is required for the v2 agent used here.

	if !cfg.EnableP2P {
		agentConfig.CandidateTypes = []ice.CandidateType{ice.CandidateTypeRelay}
	}

	agentConfig.Urls = buildURLs(cfg.Servers)

	return ice.NewAgent(agentConfig)
}

func buildURLs(servers []Server) []*ice.URL {
	urls := make([]*ice.URL, 0, len(servers))
	for _, s := range servers {
		u := &ice.URL{
			Host:  s.Host,
			Port:  s.Port,
			Proto: ice.ProtoTypeUDP,
		}
		if s.IsTURN {
			u.Scheme = ice.SchemeTypeTURN
			u.Username = s.Username
			u.Password = s.Password
		} else {
			u.Scheme = ice.SchemeTypeSTUN
		}
		urls = append(urls, u)
	}
	return urls
}

// Start connects the ICE agent: the initiator dials, the responder
// accepts (spec §4.3: "the initiator is ICE-controlling; the
// responder is ICE-controlled"). It runs the blocking connect and the
// subsequent read loop on a background goroutine, posting all
// resulting state changes onto the network Context.
func (p *Peer) Start() {
	go p.connectAndRead()
}

func (p *Peer) connectAndRead() {
	remoteUfrag, remotePwd := p.cfg.remoteCredentials()

	var conn *ice.Conn
	var err error
	if p.cfg.IsOutgoing {
		conn, err = p.agent.Dial(context.Background(), remoteUfrag, remotePwd)
	} else {
		conn, err = p.agent.Accept(context.Background(), remoteUfrag, remotePwd)
	}
	if err != nil {
		p.logger.WithError(err).Warn("ICE connect failed")
		return
	}

	p.setConn(conn)
	p.readLoop(conn)
}

func (p *Peer) readLoop(conn *ice.Conn) {
	buf := make([]byte, maxDatagramSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			p.logger.WithError(err).Debug("ICE read loop exiting")
			return
		}
		packet := make([]byte, n)
		copy(packet, buf[:n])
		p.ctx.Post(func() { p.handleIncomingICEPacket(packet) })
	}
}

func (p *Peer) handleLocalCandidate(c ice.Candidate) {
	p.logger.WithField("candidate", c.Marshal()).Debug("local candidate gathered")
	if p.callbacks.SendSignalingMessage == nil {
		return
	}
	p.callbacks.SendSignalingMessage(wire.Message{Body: wire.CandidatesList{
		Candidates: []wire.IceCandidate{{Line: c.Marshal()}},
	}})
}

func (p *Peer) handleConnectionStateChange(s ice.ConnectionState) {
	ready := s == ice.ConnectionStateConnected || s == ice.ConnectionStateCompleted
	p.logger.WithFields(logrus.Fields{
		"ice_state":            s.String(),
		"is_ready_to_send_data": ready,
	}).Info("ICE connection state changed")
	if p.callbacks.StateUpdated != nil {
		p.callbacks.StateUpdated(State{IsReadyToSendData: ready})
	}
}

func (p *Peer) handleIncomingICEPacket(packet []byte) {
	decrypted, ok := p.transport.HandleIncomingPacket(packet)
	if !ok {
		return
	}
	if p.callbacks.TransportMessageReceived == nil {
		return
	}
	p.callbacks.TransportMessageReceived(decrypted.Main)
	for _, m := range decrypted.Additional {
		p.callbacks.TransportMessageReceived(m)
	}
}

// ReceiveSignalingMessage adds every candidate in list as a remote ICE
// candidate (spec §4.3: "Inputs from outside: remote CandidatesList
// messages").
func (p *Peer) ReceiveSignalingMessage(list wire.CandidatesList) {
	p.ctx.Post(func() {
		for _, c := range list.Candidates {
			candidate, err := ice.UnmarshalCandidate(c.Line)
			if err != nil {
				p.logger.WithError(err).Warn("failed to parse remote candidate")
				continue
			}
			if err := p.agent.AddRemoteCandidate(candidate); err != nil {
				p.logger.WithError(err).Warn("failed to add remote candidate")
			}
		}
	})
}

// SendMessage frames m through the transport EncryptedConnection and
// writes the resulting ciphertext to the ICE connection. It returns
// the assigned counter, or 0 if the message could not be sent (no
// connection yet, or framing failed).
func (p *Peer) SendMessage(body wire.Body) uint32 {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return 0
	}
	prepared, ok := p.transport.PrepareForSending(body)
	if !ok {
		return 0
	}
	p.writeFrame(prepared.Bytes)
	return prepared.Counter
}

// SendTransportService flushes any pending piggybacked acknowledgements
// (spec §4.2: "prepareForSendingService(cause) emits one such frame on
// demand").
func (p *Peer) SendTransportService(cause aead.ServiceCause) {
	prepared, ok := p.transport.PrepareForSendingService(cause)
	if !ok {
		return
	}
	p.writeFrame(prepared.Bytes)
}

func (p *Peer) setConn(conn *ice.Conn) {
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
}

func (p *Peer) writeFrame(bytes []byte) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return
	}
	if _, err := conn.Write(bytes); err != nil {
		p.logger.WithError(err).Debug("failed to write ICE packet")
	}
}

// Close tears down the ICE agent and drains the network Context,
// per spec §5's teardown ordering (network after media, before
// signaling — enforced by the caller, call.Manager).
func (p *Peer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.ctx.Drain()
	if p.agent != nil {
		if err := p.agent.Close(); err != nil {
			p.logger.WithError(err).Debug("error closing ICE agent")
		}
	}
	p.ctx.Close()
}
