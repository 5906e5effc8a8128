package aead

import (
	"crypto/sha256"
	"crypto/subtle"

	"golang.org/x/crypto/chacha20"
)

// messageKeySize is the length of the integrity tag prefixed to every
// ciphertext frame (spec §4.2: "messageKey = trunc(SHA256(keyPart ||
// plaintext))").
const messageKeySize = 16

// seal implements the message-key construction from spec §4.2:
//
//	messageKey = trunc(SHA256(keyPart || plaintext), 16)
//	streamKey  = SHA256(keyPart || messageKey)
//	ciphertext = streamKey XOR-keystream plaintext
//	frame      = messageKey || ciphertext
//
// The reference implementation this spec was distilled from uses AES
// in a counter-like mode; this module uses golang.org/x/crypto/chacha20
// as its counter-mode keystream generator instead (see DESIGN.md), with
// the derived streamKey as the ChaCha20 key and the leading 12 bytes of
// messageKey as the nonce.
func seal(keyPart []byte, plaintext []byte) ([]byte, error) {
	messageKey := computeMessageKey(keyPart, plaintext)

	stream, err := newKeystream(keyPart, messageKey)
	if err != nil {
		return nil, err
	}

	ciphertext := make([]byte, len(plaintext))
	stream.XORKeyStream(ciphertext, plaintext)

	frame := make([]byte, 0, messageKeySize+len(ciphertext))
	frame = append(frame, messageKey[:]...)
	frame = append(frame, ciphertext...)
	return frame, nil
}

// open reverses seal, returning the plaintext and true if frame carries
// a valid integrity tag for keyPart. Any failure (short frame, cipher
// setup, tag mismatch) yields ok=false, never an error — authentication
// failure is a silent-drop condition per spec §7.
func open(keyPart []byte, frame []byte) (plaintext []byte, ok bool) {
	if len(frame) < messageKeySize {
		return nil, false
	}
	var messageKey [messageKeySize]byte
	copy(messageKey[:], frame[:messageKeySize])
	ciphertext := frame[messageKeySize:]

	stream, err := newKeystream(keyPart, messageKey)
	if err != nil {
		return nil, false
	}

	candidate := make([]byte, len(ciphertext))
	stream.XORKeyStream(candidate, ciphertext)

	expected := computeMessageKey(keyPart, candidate)
	if subtle.ConstantTimeCompare(expected[:], messageKey[:]) != 1 {
		return nil, false
	}
	return candidate, true
}

func computeMessageKey(keyPart []byte, plaintext []byte) [messageKeySize]byte {
	h := sha256.New()
	h.Write(keyPart)
	h.Write(plaintext)
	sum := h.Sum(nil)
	var out [messageKeySize]byte
	copy(out[:], sum[:messageKeySize])
	return out
}

func newKeystream(keyPart []byte, messageKey [messageKeySize]byte) (*chacha20.Cipher, error) {
	streamKey := derive(keyPart, messageKey[:])
	nonce := messageKey[:chacha20.NonceSize]
	return chacha20.NewUnauthenticatedCipher(streamKey[:], nonce)
}
