package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChooseFrameDimsClampsToRange(t *testing.T) {
	w, h := ChooseFrameDims(8) // tiny block (8^3/2 gives side 16), should clamp up to 64
	assert.Equal(t, 64, w)
	assert.Equal(t, 64, h)

	w, h = ChooseFrameDims(1 << 14) // huge block, should clamp down to 4096
	assert.Equal(t, 4096, w)
	assert.Equal(t, 4096, h)
}

func TestFromPlanarToPlanarRoundTrip(t *testing.T) {
	const w, h = 8, 8
	buf := make([]byte, Size(w, h))
	for i := range buf {
		buf[i] = byte(i)
	}
	f, err := FromPlanar(w, h, buf)
	require.NoError(t, err)

	out := make([]byte, Size(w, h))
	f.ToPlanar(out)
	assert.Equal(t, buf, out)
}

func TestFromPlanarRejectsWrongSize(t *testing.T) {
	_, err := FromPlanar(8, 8, make([]byte, 10))
	assert.Error(t, err)
}
