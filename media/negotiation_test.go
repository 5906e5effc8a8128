package media

import (
	"testing"

	"github.com/opd-ai/callcore/wire"
	"github.com/stretchr/testify/assert"
)

func format(name string) wire.VideoFormat {
	return wire.VideoFormat{Name: name}
}

func TestNegotiateOutgoingCodecMatchesSpecExample(t *testing.T) {
	// spec §8 scenario 3: A offers {H264, VP8} encoders=1; B offers
	// {VP8, H264} encoders=2. A's outgoing codec is H264, B's is VP8.
	aOffer := wire.VideoFormats{Formats: []wire.VideoFormat{format("H264"), format("VP8")}, EncodersCount: 1}
	bOffer := wire.VideoFormats{Formats: []wire.VideoFormat{format("VP8"), format("H264")}, EncodersCount: 2}

	aOutgoing, ok := negotiateOutgoingCodec(aOffer, bOffer)
	assert.True(t, ok)
	assert.Equal(t, "H264", aOutgoing)

	bOutgoing, ok := negotiateOutgoingCodec(bOffer, aOffer)
	assert.True(t, ok)
	assert.Equal(t, "VP8", bOutgoing)
}

func TestNegotiateOutgoingCodecEmptyIntersection(t *testing.T) {
	local := wire.VideoFormats{Formats: []wire.VideoFormat{format("H264")}, EncodersCount: 1}
	remote := wire.VideoFormats{Formats: []wire.VideoFormat{format("VP9")}, EncodersCount: 1}

	_, ok := negotiateOutgoingCodec(local, remote)
	assert.False(t, ok)
}

func TestNegotiateOutgoingCodecIgnoresRemoteEncoderLimit(t *testing.T) {
	// remote only encodes H264 (encodersCount=1) but still advertises
	// VP8 as decode-only; local can encode VP8, so negotiation must
	// still pick it — EncodersCount narrows what the advertiser can
	// encode, never what it can decode.
	local := wire.VideoFormats{Formats: []wire.VideoFormat{format("VP8")}, EncodersCount: 1}
	remote := wire.VideoFormats{Formats: []wire.VideoFormat{format("H264"), format("VP8")}, EncodersCount: 1}

	codec, ok := negotiateOutgoingCodec(local, remote)
	assert.True(t, ok)
	assert.Equal(t, "VP8", codec)
}

func TestNegotiateOutgoingCodecRespectsLocalEncoderLimit(t *testing.T) {
	// local only encodes its first entry; VP8 is decode-only locally.
	local := wire.VideoFormats{Formats: []wire.VideoFormat{format("H264"), format("VP8")}, EncodersCount: 1}
	remote := wire.VideoFormats{Formats: []wire.VideoFormat{format("VP8")}, EncodersCount: 1}

	_, ok := negotiateOutgoingCodec(local, remote)
	assert.False(t, ok)
}
