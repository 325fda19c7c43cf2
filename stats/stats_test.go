package stats_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOT-REAL-GAMES/volcine/archiver"
	"github.com/NOT-REAL-GAMES/volcine/codec/refcodec"
	"github.com/NOT-REAL-GAMES/volcine/internal/geometry"
	"github.com/NOT-REAL-GAMES/volcine/rawsource"
	"github.com/NOT-REAL-GAMES/volcine/stats"
	"github.com/NOT-REAL-GAMES/volcine/unarchiver"
)

func TestComputeReportsDecodedAndDiffStats(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "volume.raw")
	archivePath := filepath.Join(dir, "volume.vlc")

	const side = 32
	rawDim := geometry.Idx{X: side, Y: side, Z: side}
	original := make([]byte, side*side*side)
	for i := range original {
		original[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(rawPath, original, 0o644))

	cfg, err := geometry.NewConfig(rawDim, 5, 0)
	require.NoError(t, err)

	source, err := rawsource.Open(rawPath, rawDim)
	require.NoError(t, err)
	defer source.Close()

	a, err := archiver.New(archivePath, source, cfg, archiver.Options{
		Method:        geometry.MethodH264,
		Quality:       refcodec.DefaultQuality,
		MemLimitBytes: 16 << 20,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, a.Convert(context.Background()))

	u, err := unarchiver.Open(archivePath, nil)
	require.NoError(t, err)
	defer u.Close()

	report, err := stats.Compute(u, geometry.Idx{X: 0, Y: 0, Z: 0}, original)
	require.NoError(t, err)

	assert.True(t, report.HasReference)
	assert.InDelta(t, report.Original.Avg, 125.0, 5.0)
	assert.GreaterOrEqual(t, report.Diff.Max, byte(0))
}

func TestComputeWithoutReferenceSkipsDiff(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "volume.raw")
	archivePath := filepath.Join(dir, "volume.vlc")

	const side = 32
	rawDim := geometry.Idx{X: side, Y: side, Z: side}
	require.NoError(t, os.WriteFile(rawPath, make([]byte, side*side*side), 0o644))

	cfg, err := geometry.NewConfig(rawDim, 5, 0)
	require.NoError(t, err)
	source, err := rawsource.Open(rawPath, rawDim)
	require.NoError(t, err)
	defer source.Close()

	a, err := archiver.New(archivePath, source, cfg, archiver.Options{Method: geometry.MethodH264, MemLimitBytes: 16 << 20}, nil)
	require.NoError(t, err)
	require.NoError(t, a.Convert(context.Background()))

	u, err := unarchiver.Open(archivePath, nil)
	require.NoError(t, err)
	defer u.Close()

	report, err := stats.Compute(u, geometry.Idx{X: 0, Y: 0, Z: 0}, nil)
	require.NoError(t, err)
	assert.False(t, report.HasReference)
}
