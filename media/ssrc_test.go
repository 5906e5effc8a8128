package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSSRCSetProducesDistinctNonzeroValues(t *testing.T) {
	set, err := newSSRCSet()
	assert.NoError(t, err)

	values := []uint32{set.Incoming, set.Outgoing, set.FECIncoming, set.FECOutgoing}
	seen := make(map[uint32]bool)
	for _, v := range values {
		assert.NotZero(t, v)
		assert.False(t, seen[v], "SSRC values must be distinct")
		seen[v] = true
	}
}
