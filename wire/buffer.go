package wire

import "encoding/binary"

// writer is a minimal growable byte-buffer builder. It exists so
// codec.go reads as a sequence of "put the next field" calls, the way
// the teacher's signaling.go builds fixed packets by hand with
// encoding/binary.
type writer struct {
	buf []byte
}

func newWriter() *writer {
	return &writer{buf: make([]byte, 0, 64)}
}

func (w *writer) grow(n int) []byte {
	start := len(w.buf)
	w.buf = append(w.buf, make([]byte, n)...)
	return w.buf[start : start+n]
}

func (w *writer) putUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *writer) putUint32(v uint32) {
	binary.BigEndian.PutUint32(w.grow(4), v)
}

func (w *writer) putBool(v bool) {
	if v {
		w.putUint8(1)
	} else {
		w.putUint8(0)
	}
}

func (w *writer) putBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *writer) putString(s string) error {
	if len(s) >= maxStringLength {
		return ErrStringTooLong
	}
	binary.BigEndian.PutUint32(w.grow(4), uint32(len(s)))
	w.buf = append(w.buf, s...)
	return nil
}

func (w *writer) bytes() []byte {
	return w.buf
}

// reader parses fields off a fixed buffer, tracking a read cursor.
// Every accessor returns ok=false on truncation rather than panicking;
// callers propagate that as "drop the packet" (spec §7).
type reader struct {
	buf []byte
	pos int
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) uint8() (uint8, bool) {
	if r.pos+1 > len(r.buf) {
		return 0, false
	}
	v := r.buf[r.pos]
	r.pos++
	return v, true
}

func (r *reader) uint16() (uint16, bool) {
	if r.pos+2 > len(r.buf) {
		return 0, false
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos : r.pos+2])
	r.pos += 2
	return v, true
}

func (r *reader) uint32() (uint32, bool) {
	if r.pos+4 > len(r.buf) {
		return 0, false
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, true
}

func (r *reader) string() (string, bool) {
	length, ok := r.uint32()
	if !ok {
		return "", false
	}
	if length >= maxStringLength {
		return "", false
	}
	data, ok := r.take(int(length))
	if !ok {
		return "", false
	}
	return string(data), true
}

func (r *reader) take(n int) ([]byte, bool) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, false
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+n])
	r.pos += n
	return out, true
}

// rest returns every remaining byte, consuming the reader.
func (r *reader) rest() []byte {
	out := make([]byte, len(r.buf)-r.pos)
	copy(out, r.buf[r.pos:])
	r.pos = len(r.buf)
	return out
}
