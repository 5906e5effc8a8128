package aead

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	keyPart := []byte("directional key part material")
	plaintext := []byte("a plaintext message body")

	frame, err := seal(keyPart, plaintext)
	require.NoError(t, err)

	got, ok := open(keyPart, frame)
	require.True(t, ok)
	assert.Equal(t, plaintext, got)
}

func TestOpenRejectsWrongKeyPart(t *testing.T) {
	frame, err := seal([]byte("part-a"), []byte("secret"))
	require.NoError(t, err)

	_, ok := open([]byte("part-b"), frame)
	assert.False(t, ok)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	keyPart := []byte("part")
	frame, err := seal(keyPart, []byte("payload"))
	require.NoError(t, err)

	frame[messageKeySize] ^= 0xFF

	_, ok := open(keyPart, frame)
	assert.False(t, ok)
}

func TestOpenRejectsShortFrame(t *testing.T) {
	_, ok := open([]byte("part"), []byte{1, 2, 3})
	assert.False(t, ok)
}
