package aead

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeenSetRejectsDuplicate(t *testing.T) {
	s := NewSeenSet()
	assert.True(t, s.CheckAndMark(1))
	assert.False(t, s.CheckAndMark(1))
}

func TestSeenSetAcceptsOutOfOrderWithinWindow(t *testing.T) {
	s := NewSeenSet()
	assert.True(t, s.CheckAndMark(10))
	assert.True(t, s.CheckAndMark(5))
	assert.False(t, s.CheckAndMark(5))
}

func TestSeenSetRejectsBelowLowWaterMark(t *testing.T) {
	s := NewSeenSet()
	assert.True(t, s.CheckAndMark(windowSize + 100))
	assert.False(t, s.CheckAndMark(50)) // long expired
}

func TestSeenSetHandlesWraparoundWithoutFalsePositive(t *testing.T) {
	s := NewSeenSet()
	assert.True(t, s.CheckAndMark(1))
	// Advance far enough that slot 1 is reused by a later, distinct counter.
	next := uint32(1 + windowSize)
	assert.True(t, s.CheckAndMark(next), "counter reusing slot 1's ring position must not appear as a replay")
}
