package refcodec

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOT-REAL-GAMES/volcine/codec"
)

func TestEncodeDecodeRoundTripIsBoundedLossy(t *testing.T) {
	const w, h = 64, 64
	enc, err := NewEncoder(w, h, codec.MethodH264, DefaultQuality)
	require.NoError(t, err)
	dec, err := NewDecoder(w, h, codec.MethodH264)
	require.NoError(t, err)

	frame := randomFrame(w, h, 1)
	packet, err := enc.Encode(frame)
	require.NoError(t, err)
	require.NotEmpty(t, packet)

	decoded, err := dec.Decode(packet)
	require.NoError(t, err)
	require.Equal(t, codec.Size(w, h), len(decoded))

	var planar [w * h * 3 / 2]byte
	frame.ToPlanar(planar[:])

	maxDiff := 0.0
	var sumSq float64
	for i, b := range decoded {
		d := math.Abs(float64(b) - float64(planar[i]))
		if d > maxDiff {
			maxDiff = d
		}
		sumSq += d * d
	}
	rmse := math.Sqrt(sumSq / float64(len(decoded)))

	assert.Less(t, rmse, 90.0, "lossy round trip should stay within a bounded error budget")
}

func TestEncoderRejectsDimensionsNotDivisibleByBlockSize(t *testing.T) {
	_, err := NewEncoder(65, 64, codec.MethodHEVC, DefaultQuality)
	assert.Error(t, err)
}

func TestHEVCUsesLargerBlockSize(t *testing.T) {
	assert.Equal(t, 8, blockSize(codec.MethodH264))
	assert.Equal(t, 16, blockSize(codec.MethodHEVC))
}

func randomFrame(w, h int, seed int64) *codec.Frame {
	r := rand.New(rand.NewSource(seed))
	f := codec.NewFrame(w, h)
	fill := func(buf []byte) {
		for i := range buf {
			buf[i] = byte(r.Intn(256))
		}
	}
	fill(f.Y)
	fill(f.U)
	fill(f.V)
	return f
}
