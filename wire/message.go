// Package wire implements the binary message codec for the call-control
// core: a tagged union of control/media messages and the pure
// serialize/deserialize functions that map them to and from byte
// buffers. The package holds no state.
package wire

// Tag identifies the concrete variant carried by a Message.
type Tag uint8

const (
	TagCandidatesList Tag = iota + 1
	TagVideoFormats
	TagRequestVideo
	TagRemoteVideoIsActive
	TagAudioData
	TagVideoData
	TagUnstructuredData
)

// String returns a human-readable name for the tag, used in log fields.
func (t Tag) String() string {
	switch t {
	case TagCandidatesList:
		return "CandidatesList"
	case TagVideoFormats:
		return "VideoFormats"
	case TagRequestVideo:
		return "RequestVideo"
	case TagRemoteVideoIsActive:
		return "RemoteVideoIsActive"
	case TagAudioData:
		return "AudioData"
	case TagVideoData:
		return "VideoData"
	case TagUnstructuredData:
		return "UnstructuredData"
	default:
		return "Unknown"
	}
}

// IceCandidate is a peer-offered transport address, carried on the wire
// as a single serialized SDP-style text line.
type IceCandidate struct {
	Line string
}

// VideoFormat names a video codec and its codec-specific parameters.
// Parameters.Len() must not exceed 255; insertion order is not
// preserved across the wire.
type VideoFormat struct {
	Name       string
	Parameters map[string]string
}

// CandidatesList carries a batch of ICE candidates gathered by one side.
type CandidatesList struct {
	Candidates []IceCandidate
}

// VideoFormats advertises the sender's supported video codecs.
// EncodersCount is the number of leading entries in Formats the sender
// can encode; the remainder are decode-only.
type VideoFormats struct {
	Formats       []VideoFormat
	EncodersCount uint8
}

// RequestVideo asks the peer to start sending video. Empty payload.
type RequestVideo struct{}

// RemoteVideoIsActive reports whether the sender's outgoing video is
// currently flowing.
type RemoteVideoIsActive struct {
	Active bool
}

// AudioData carries one opaque encoded audio frame.
type AudioData struct {
	Payload []byte
}

// VideoData carries one opaque encoded video frame.
type VideoData struct {
	Payload []byte
}

// UnstructuredData carries an application-defined opaque payload.
type UnstructuredData struct {
	Payload []byte
}

// Body is the payload-specific portion of a Message. Implementations
// are the seven variant types above.
type Body interface {
	tag() Tag
}

func (CandidatesList) tag() Tag      { return TagCandidatesList }
func (VideoFormats) tag() Tag        { return TagVideoFormats }
func (RequestVideo) tag() Tag        { return TagRequestVideo }
func (RemoteVideoIsActive) tag() Tag { return TagRemoteVideoIsActive }
func (AudioData) tag() Tag           { return TagAudioData }
func (VideoData) tag() Tag           { return TagVideoData }
func (UnstructuredData) tag() Tag    { return TagUnstructuredData }

// Message pairs an outbound sequence counter with a tagged body.
// The counter is set by the framing layer (aead.EncryptedConnection),
// not by the codec itself.
type Message struct {
	Seq  uint32
	Body Body
}

// Tag returns the wire tag for the message's body.
func (m Message) Tag() Tag {
	return m.Body.tag()
}
