package media

import (
	"testing"

	"github.com/opd-ai/callcore/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingVideoSink struct {
	frames [][]byte
}

func (s *recordingVideoSink) HandleFrame(payload []byte, timestamp uint32) {
	s.frames = append(s.frames, payload)
}

type fixedVideoCapture struct {
	payload []byte
	ticks   uint32
	yielded bool
}

func (c *fixedVideoCapture) NextFrame() ([]byte, uint32, bool) {
	if c.yielded {
		return nil, 0, false
	}
	c.yielded = true
	return c.payload, c.ticks, true
}

func newTestPeer(t *testing.T) *Peer {
	t.Helper()
	p, err := New([]wire.VideoFormat{{Name: "H264"}, {Name: "VP8"}}, 1, Callbacks{})
	require.NoError(t, err)
	return p
}

func TestOutgoingAudioGatedOnConnection(t *testing.T) {
	p := newTestPeer(t)

	var sent []wire.Body
	p.callbacks.SendTransportMessage = func(b wire.Body) { sent = append(sent, b) }

	p.SendAudioFrame([]byte("frame"), 960, false)
	assert.Empty(t, sent, "audio must not flow before connectivity")

	p.SetIsConnected(true)
	p.SendAudioFrame([]byte("frame"), 960, false)
	assert.Len(t, sent, 1)

	p.SetMuteOutgoingAudio(true)
	p.SendAudioFrame([]byte("frame"), 960, false)
	assert.Len(t, sent, 1, "muted audio must not flow")
}

func TestOutgoingVideoRequiresNegotiationRequestAndCapture(t *testing.T) {
	p := newTestPeer(t)
	var sent []wire.Body
	p.callbacks.SendTransportMessage = func(b wire.Body) { sent = append(sent, b) }

	p.SetIsConnected(true)
	p.PumpVideoFrame()
	assert.Empty(t, sent, "video must not flow before negotiation")

	p.setPeerVideoFormats(wire.VideoFormats{Formats: []wire.VideoFormat{{Name: "VP8"}, {Name: "H264"}}, EncodersCount: 2})
	require.True(t, p.VideoCodecsNegotiated())

	p.PumpVideoFrame()
	assert.Empty(t, sent, "video must not flow before RequestVideo")

	p.ReceiveMessage(wire.Message{Body: wire.RequestVideo{}})
	p.PumpVideoFrame()
	assert.Empty(t, sent, "video must not flow without a capture")

	p.SetSendVideo(&fixedVideoCapture{payload: []byte("frame"), ticks: 3000})
	p.PumpVideoFrame()
	assert.Len(t, sent, 1)
}

func TestReceiveMessageDispatchesByVariant(t *testing.T) {
	p := newTestPeer(t)

	var activeReports []bool
	p.callbacks.RemoteVideoIsActive = func(active bool) { activeReports = append(activeReports, active) }

	p.ReceiveMessage(wire.Message{Body: wire.RemoteVideoIsActive{Active: true}})
	assert.Equal(t, []bool{true}, activeReports)

	p.ReceiveMessage(wire.Message{Body: wire.VideoFormats{
		Formats:       []wire.VideoFormat{{Name: "H264"}},
		EncodersCount: 1,
	}})
	assert.True(t, p.VideoCodecsNegotiated())
}

func TestIncomingVideoDeliveredToSink(t *testing.T) {
	p := newTestPeer(t)
	sink := &recordingVideoSink{}
	p.SetIncomingVideoOutput(sink)

	// establish a video channel by negotiating first
	p.setPeerVideoFormats(wire.VideoFormats{Formats: []wire.VideoFormat{{Name: "H264"}, {Name: "VP8"}}, EncodersCount: 2})
	require.True(t, p.VideoCodecsNegotiated())

	sender := newPacketizer(555, videoPayloadType)
	rtpBytes, err := sender.packetize([]byte("video-payload"), 3000, true)
	require.NoError(t, err)

	p.ReceiveMessage(wire.Message{Body: wire.VideoData{Payload: rtpBytes}})
	require.Len(t, sink.frames, 1)
	assert.Equal(t, []byte("video-payload"), sink.frames[0])
}
