package archiver_test

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOT-REAL-GAMES/volcine/archiver"
	"github.com/NOT-REAL-GAMES/volcine/codec/refcodec"
	"github.com/NOT-REAL-GAMES/volcine/internal/geometry"
	"github.com/NOT-REAL-GAMES/volcine/rawsource"
	"github.com/NOT-REAL-GAMES/volcine/unarchiver"
)

func TestArchiveThenUnarchiveSingleBlockRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "volume.raw")
	archivePath := filepath.Join(dir, "volume.vlc")

	const side = 32 // one block, no padding spillover since padding=0 and dims line up exactly
	rawDim := geometry.Idx{X: side, Y: side, Z: side}

	original := make([]byte, side*side*side)
	r := rand.New(rand.NewSource(7))
	for i := range original {
		original[i] = byte(r.Intn(256))
	}
	require.NoError(t, os.WriteFile(rawPath, original, 0o644))

	cfg, err := geometry.NewConfig(rawDim, 5 /* block_size=32 */, 0)
	require.NoError(t, err)
	require.Equal(t, geometry.Idx{X: 1, Y: 1, Z: 1}, cfg.GridDim)

	source, err := rawsource.Open(rawPath, rawDim)
	require.NoError(t, err)
	defer source.Close()

	a, err := archiver.New(archivePath, source, cfg, archiver.Options{
		Method:        geometry.MethodH264,
		Quality:       refcodec.DefaultQuality,
		MemLimitBytes: 16 << 20,
		BatchFrames:   2,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, a.Convert(context.Background()))
	assert.Equal(t, archiver.StateSealed, a.State())

	u, err := unarchiver.Open(archivePath, nil)
	require.NoError(t, err)
	defer u.Close()

	decoded := make([]byte, side*side*side)
	n, err := u.UnarchiveTo(geometry.Idx{X: 0, Y: 0, Z: 0}, decoded)
	require.NoError(t, err)
	assert.Equal(t, int64(side*side*side), n)

	var sumSq float64
	for i := range decoded {
		d := float64(decoded[i]) - float64(original[i])
		sumSq += d * d
	}
	rmse := math.Sqrt(sumSq / float64(len(decoded)))
	assert.Less(t, rmse, 90.0, "decoded bytes should stay within the lossy codec's error budget")
}

func TestUnarchiveUnknownBlockErrors(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "volume.raw")
	archivePath := filepath.Join(dir, "volume.vlc")

	rawDim := geometry.Idx{X: 32, Y: 32, Z: 32}
	require.NoError(t, os.WriteFile(rawPath, make([]byte, 32*32*32), 0o644))

	cfg, err := geometry.NewConfig(rawDim, 5, 0)
	require.NoError(t, err)

	source, err := rawsource.Open(rawPath, rawDim)
	require.NoError(t, err)
	defer source.Close()

	a, err := archiver.New(archivePath, source, cfg, archiver.Options{
		Method:        geometry.MethodH264,
		MemLimitBytes: 16 << 20,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, a.Convert(context.Background()))

	u, err := unarchiver.Open(archivePath, nil)
	require.NoError(t, err)
	defer u.Close()

	dst := make([]byte, 32*32*32)
	_, err = u.UnarchiveTo(geometry.Idx{X: 9, Y: 9, Z: 9}, dst)
	assert.Error(t, err)
}
