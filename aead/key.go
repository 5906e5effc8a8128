package aead

import "crypto/sha256"

// keySize is the size of the shared symmetric secret (spec §3: "256
// bytes in the reference wire format").
const keySize = 256

// halfSize is the size of each direction-selective half of the key.
const halfSize = keySize / 2

// EncryptionKey is the fixed-size symmetric secret shared out of band
// by the two endpoints, plus the flag selecting which half of the key
// material this side uses for sending versus receiving. It is
// immutable for the lifetime of a session.
type EncryptionKey struct {
	Value      [keySize]byte
	IsOutgoing bool
}

// sendPart returns the key-derivation input this side uses when
// framing an outbound message. The two peers must compute opposite
// halves so a captured outbound frame cannot be replayed back at its
// own sender (spec §4.2: "Direction-selective key halves prevent
// reflection").
func (k EncryptionKey) sendPart() []byte {
	if k.IsOutgoing {
		return k.Value[:halfSize]
	}
	return k.Value[halfSize:]
}

// recvPart returns the key-derivation input this side uses to verify
// an inbound message, i.e. the half the peer used to send it.
func (k EncryptionKey) recvPart() []byte {
	if k.IsOutgoing {
		return k.Value[halfSize:]
	}
	return k.Value[:halfSize]
}

// derive folds a directional key-part with a label into a 32-byte seed
// suitable for use as a stream-cipher key. Grounded on the teacher's
// habit (crypto/session_keys.go) of keeping key derivation to small,
// single-purpose helpers rather than a generic KDF abstraction.
func derive(keyPart []byte, label []byte) [32]byte {
	h := sha256.New()
	h.Write(keyPart)
	h.Write(label)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
