package media

import (
	"crypto/rand"
	"encoding/binary"
)

// SSRCSet holds the four stream identifiers assigned per media kind
// (spec §4.4: "four random nonzero 32-bit values per session:
// audio-in, audio-out, fec-in, fec-out; same shape for video").
type SSRCSet struct {
	Incoming    uint32
	Outgoing    uint32
	FECIncoming uint32
	FECOutgoing uint32
}

// newSSRCSet draws four distinct nonzero random SSRCs.
func newSSRCSet() (SSRCSet, error) {
	values := make([]uint32, 4)
	seen := make(map[uint32]bool, 4)
	for i := range values {
		for {
			v, err := randomNonzeroUint32()
			if err != nil {
				return SSRCSet{}, err
			}
			if seen[v] {
				continue
			}
			seen[v] = true
			values[i] = v
			break
		}
	}
	return SSRCSet{
		Incoming:    values[0],
		Outgoing:    values[1],
		FECIncoming: values[2],
		FECOutgoing: values[3],
	}, nil
}

func randomNonzeroUint32() (uint32, error) {
	buf := make([]byte, 4)
	for {
		if _, err := rand.Read(buf); err != nil {
			return 0, err
		}
		v := binary.BigEndian.Uint32(buf)
		if v != 0 {
			return v, nil
		}
	}
}
