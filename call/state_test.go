package call

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateMachineInitialValues(t *testing.T) {
	m := newStateMachine()
	assert.Equal(t, StateReconnecting, m.state)
	assert.Equal(t, VideoStatePossible, m.videoState)
	assert.False(t, m.didConnectOnce)
}

func TestFirstConnectivitySetsEstablishedAndLatch(t *testing.T) {
	m := newStateMachine()
	s, changed := m.onConnectivityChanged(true)
	assert.True(t, changed)
	assert.Equal(t, StateEstablished, s)
	assert.True(t, m.didConnectOnce)
}

func TestLossAfterConnectingGoesToReconnecting(t *testing.T) {
	m := newStateMachine()
	m.onConnectivityChanged(true)

	s, changed := m.onConnectivityChanged(false)
	assert.True(t, changed)
	assert.Equal(t, StateReconnecting, s)
	assert.True(t, m.didConnectOnce, "didConnectOnce must remain true across reconnects")
}

func TestNeverConnectedTimeoutGoesToFailed(t *testing.T) {
	m := newStateMachine()
	s, changed := m.onNeverConnectedTimeout()
	assert.True(t, changed)
	assert.Equal(t, StateFailed, s)
}

func TestNeverConnectedTimeoutIsNoopAfterConnecting(t *testing.T) {
	m := newStateMachine()
	m.onConnectivityChanged(true)

	s, changed := m.onNeverConnectedTimeout()
	assert.False(t, changed)
	assert.Equal(t, StateEstablished, s)
}

func TestVideoRequestedLocallyMovesFromPossible(t *testing.T) {
	m := newStateMachine()
	v, changed := m.onVideoRequestedLocally()
	assert.True(t, changed)
	assert.Equal(t, VideoStateOutgoingRequested, v)
}

func TestVideoNegotiatedActivatesFromPossibleOrRequested(t *testing.T) {
	m := newStateMachine()
	v, changed := m.onVideoNegotiated(true)
	assert.True(t, changed)
	assert.Equal(t, VideoStateActive, v)

	m = newStateMachine()
	m.onVideoRequestedLocally()
	v, changed = m.onVideoNegotiated(true)
	assert.True(t, changed)
	assert.Equal(t, VideoStateActive, v)
}

func TestVideoNegotiationFailureGoesInactive(t *testing.T) {
	m := newStateMachine()
	m.onVideoRequestedLocally()

	v, changed := m.onVideoNegotiated(false)
	assert.True(t, changed)
	assert.Equal(t, VideoStateInactive, v)
}
