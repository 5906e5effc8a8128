// Package network implements NetworkPeer (spec §4.3): the component
// that owns an ICE transport, exchanges candidates via an injected
// signaling callback, and wraps outgoing media/control bytes with the
// transport-mode EncryptedConnection.
package network

import "time"

// Server describes one STUN or TURN entry (spec §4.3, "STUN/TURN
// server list is caller-supplied"). Grounded on
// original_source/tgcalls/NetworkManager.cpp's RtcServer shape.
type Server struct {
	Host     string
	Port     int
	IsTURN   bool
	Username string
	Password string
}

// defaultServer is the built-in fallback used when Config.Servers is
// empty (spec §4.3: "if empty, a built-in default is used"), grounded
// on original_source/tgcalls/NetworkManager.cpp's hardcoded default.
var defaultServer = Server{
	Host:     "134.122.52.178",
	Port:     3478,
	IsTURN:   true,
	Username: "openrelay",
	Password: "openrelay",
}

// Fixed ICE credentials so either side can pre-compute the peer's
// remote credentials without additional signaling (spec §4.3), taken
// from original_source/tgcalls/NetworkManager.cpp's localIceParameters
// / remoteIceParameters.
const (
	controllingUfrag = "gcp3"
	controllingPwd   = "zWDKozH8/3JWt8he3M/CMj5R"
	controlledUfrag  = "acp3"
	controlledPwd    = "aWDKozH8/3JWt8he3M/CMj5R"
)

// Config configures a Peer at construction. It is not mutated
// afterward (spec §5: "configuration and callbacks are set once at
// construction and never mutated").
type Config struct {
	// IsOutgoing selects the ICE role: the initiator is controlling,
	// the responder is controlled (spec §4.3).
	IsOutgoing bool
	// EnableP2P, when false, disables UDP-direct and STUN candidates so
	// only TURN relay remains (spec §4.3).
	EnableP2P bool
	// Servers is the caller-supplied STUN/TURN list; empty uses defaultServer.
	Servers []Server
	// NeverConnectedTimeout is the embedder-configurable wait for
	// initial connectivity; withDefaults fills in 30s. Peer itself does
	// not act on it: call.Manager runs the never-connected timer from
	// its own Descriptor value and reports the terminal failure.
	NeverConnectedTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.NeverConnectedTimeout <= 0 {
		c.NeverConnectedTimeout = 30 * time.Second
	}
	if len(c.Servers) == 0 {
		c.Servers = []Server{defaultServer}
	}
	return c
}

func (c Config) localCredentials() (ufrag, pwd string) {
	if c.IsOutgoing {
		return controllingUfrag, controllingPwd
	}
	return controlledUfrag, controlledPwd
}

func (c Config) remoteCredentials() (ufrag, pwd string) {
	if c.IsOutgoing {
		return controlledUfrag, controlledPwd
	}
	return controllingUfrag, controllingPwd
}
