package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// maxStringLength is the exclusive upper bound on any wire string or
// byte-buffer length prefix (spec §4.1).
const maxStringLength = 65536

// maxSequenceLength is the number of elements a u8-counted sequence or
// map can carry.
const maxSequenceLength = 255

// Sentinel errors for codec failures. Every one of them corresponds to
// a "drop the packet, log it, don't tear down" outcome one layer up
// (spec §7).
var (
	ErrTruncated       = errors.New("wire: buffer truncated")
	ErrStringTooLong   = errors.New("wire: string exceeds 65535 bytes")
	ErrTooManyElements = errors.New("wire: sequence exceeds 255 elements")
	ErrEncodersCount   = errors.New("wire: encodersCount exceeds formats count")
	ErrUnknownTag      = errors.New("wire: unknown message tag")
)

// Serialize renders a Message to its wire representation. singleMessagePacket
// is a framing hint (not a message property, per spec §9's design note):
// when true, a lone AudioData/VideoData/UnstructuredData payload omits its
// length prefix and is understood to run to the end of the buffer.
func Serialize(m Message, singleMessagePacket bool) ([]byte, error) {
	w := newWriter()
	w.putUint32(m.Seq)
	w.putUint8(uint8(m.Tag()))

	var err error
	switch body := m.Body.(type) {
	case RequestVideo:
		// empty payload
	case RemoteVideoIsActive:
		w.putBool(body.Active)
	case CandidatesList:
		err = writeCandidatesList(w, body)
	case VideoFormats:
		err = writeVideoFormats(w, body)
	case AudioData:
		err = writeTailBuffer(w, body.Payload, singleMessagePacket)
	case VideoData:
		err = writeTailBuffer(w, body.Payload, singleMessagePacket)
	case UnstructuredData:
		err = writeTailBuffer(w, body.Payload, singleMessagePacket)
	default:
		err = fmt.Errorf("wire: unhandled body type %T", body)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Serialize",
			"tag":      m.Tag().String(),
			"error":    err.Error(),
		}).Error("failed to serialize message")
		return nil, err
	}
	return w.bytes(), nil
}

// Deserialize parses one message out of buf. It returns (Message{}, false)
// on any parse failure, including an unknown tag byte — callers must
// treat that as a dropped packet, never a fatal error (spec §7).
func Deserialize(buf []byte, singleMessagePacket bool) (Message, bool) {
	r := newReader(buf)
	seq, ok := r.uint32()
	if !ok {
		return Message{}, false
	}
	tagByte, ok := r.uint8()
	if !ok {
		return Message{}, false
	}

	var body Body
	switch Tag(tagByte) {
	case TagRequestVideo:
		body = RequestVideo{}
	case TagRemoteVideoIsActive:
		v, ok := r.uint8()
		if !ok {
			return Message{}, false
		}
		body = RemoteVideoIsActive{Active: v != 0}
	case TagCandidatesList:
		list, ok := readCandidatesList(r)
		if !ok {
			return Message{}, false
		}
		body = list
	case TagVideoFormats:
		formats, ok := readVideoFormats(r)
		if !ok {
			return Message{}, false
		}
		body = formats
	case TagAudioData:
		payload, ok := readTailBuffer(r, singleMessagePacket)
		if !ok {
			return Message{}, false
		}
		body = AudioData{Payload: payload}
	case TagVideoData:
		payload, ok := readTailBuffer(r, singleMessagePacket)
		if !ok {
			return Message{}, false
		}
		body = VideoData{Payload: payload}
	case TagUnstructuredData:
		payload, ok := readTailBuffer(r, singleMessagePacket)
		if !ok {
			return Message{}, false
		}
		body = UnstructuredData{Payload: payload}
	default:
		logrus.WithFields(logrus.Fields{
			"function": "Deserialize",
			"tag":      tagByte,
		}).Debug("unknown message tag, dropping")
		return Message{}, false
	}

	return Message{Seq: seq, Body: body}, true
}

func writeCandidatesList(w *writer, body CandidatesList) error {
	if len(body.Candidates) > maxSequenceLength {
		return ErrTooManyElements
	}
	w.putUint8(uint8(len(body.Candidates)))
	for _, c := range body.Candidates {
		if err := w.putString(c.Line); err != nil {
			return err
		}
	}
	return nil
}

func readCandidatesList(r *reader) (CandidatesList, bool) {
	count, ok := r.uint8()
	if !ok {
		return CandidatesList{}, false
	}
	var candidates []IceCandidate
	if count > 0 {
		candidates = make([]IceCandidate, 0, count)
	}
	for i := uint8(0); i < count; i++ {
		line, ok := r.string()
		if !ok {
			return CandidatesList{}, false
		}
		candidates = append(candidates, IceCandidate{Line: line})
	}
	return CandidatesList{Candidates: candidates}, true
}

func writeVideoFormats(w *writer, body VideoFormats) error {
	if len(body.Formats) > maxSequenceLength {
		return ErrTooManyElements
	}
	if int(body.EncodersCount) > len(body.Formats) {
		return ErrEncodersCount
	}
	w.putUint8(uint8(len(body.Formats)))
	for _, f := range body.Formats {
		if err := writeVideoFormat(w, f); err != nil {
			return err
		}
	}
	w.putUint8(body.EncodersCount)
	return nil
}

func readVideoFormats(r *reader) (VideoFormats, bool) {
	formatsCount, ok := r.uint8()
	if !ok {
		return VideoFormats{}, false
	}
	formats := make([]VideoFormat, 0, formatsCount)
	for i := uint8(0); i < formatsCount; i++ {
		f, ok := readVideoFormat(r)
		if !ok {
			return VideoFormats{}, false
		}
		formats = append(formats, f)
	}
	encodersCount, ok := r.uint8()
	if !ok {
		return VideoFormats{}, false
	}
	if int(encodersCount) > len(formats) {
		logrus.WithFields(logrus.Fields{
			"function":       "readVideoFormats",
			"encoders_count": encodersCount,
			"formats_count":  len(formats),
		}).Warn("rejecting VideoFormats with encodersCount > formats.len")
		return VideoFormats{}, false
	}
	return VideoFormats{Formats: formats, EncodersCount: encodersCount}, true
}

func writeVideoFormat(w *writer, f VideoFormat) error {
	if err := w.putString(f.Name); err != nil {
		return err
	}
	if len(f.Parameters) > maxSequenceLength {
		return ErrTooManyElements
	}
	w.putUint8(uint8(len(f.Parameters)))
	for k, v := range f.Parameters {
		if err := w.putString(k); err != nil {
			return err
		}
		if err := w.putString(v); err != nil {
			return err
		}
	}
	return nil
}

func readVideoFormat(r *reader) (VideoFormat, bool) {
	name, ok := r.string()
	if !ok {
		return VideoFormat{}, false
	}
	count, ok := r.uint8()
	if !ok {
		return VideoFormat{}, false
	}
	params := make(map[string]string, count)
	for i := uint8(0); i < count; i++ {
		k, ok := r.string()
		if !ok {
			return VideoFormat{}, false
		}
		v, ok := r.string()
		if !ok {
			return VideoFormat{}, false
		}
		params[k] = v
	}
	return VideoFormat{Name: name, Parameters: params}, true
}

// writeTailBuffer writes a byte buffer either length-prefixed (u16) or,
// when singleMessagePacket is true, unprefixed and running to the end
// of the frame.
func writeTailBuffer(w *writer, payload []byte, singleMessagePacket bool) error {
	if singleMessagePacket {
		w.putBytes(payload)
		return nil
	}
	if len(payload) >= maxStringLength {
		return ErrStringTooLong
	}
	binary.BigEndian.PutUint16(w.grow(2), uint16(len(payload)))
	w.putBytes(payload)
	return nil
}

func readTailBuffer(r *reader, singleMessagePacket bool) ([]byte, bool) {
	if singleMessagePacket {
		return r.rest(), true
	}
	length, ok := r.uint16()
	if !ok {
		return nil, false
	}
	return r.take(int(length))
}
