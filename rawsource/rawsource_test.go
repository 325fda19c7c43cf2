package rawsource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOT-REAL-GAMES/volcine/internal/apperr"
	"github.com/NOT-REAL-GAMES/volcine/internal/geometry"
)

func writeRawFile(t *testing.T, dim geometry.Idx) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "volume.raw")
	buf := make([]byte, int(dim.X)*int(dim.Y)*int(dim.Z))
	for i := range buf {
		// x-fastest byte value: x + y*dimX + z*dimX*dimY, truncated to a byte.
		buf[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestReadRegionExtractsSubBox(t *testing.T) {
	dim := geometry.Idx{X: 8, Y: 8, Z: 8}
	path := writeRawFile(t, dim)

	src, err := Open(path, dim)
	require.NoError(t, err)
	defer src.Close()

	dst := make([]byte, 2*2*2)
	require.NoError(t, src.ReadRegion([3]int64{1, 1, 1}, [3]int64{2, 2, 2}, dst))

	// voxel (1+dx, 1+dy, 1+dz) has value (1+dx) + (1+dy)*8 + (1+dz)*64.
	want := make([]byte, 8)
	i := 0
	for dz := int64(0); dz < 2; dz++ {
		for dy := int64(0); dy < 2; dy++ {
			for dx := int64(0); dx < 2; dx++ {
				want[i] = byte((1 + dx) + (1+dy)*8 + (1+dz)*64)
				i++
			}
		}
	}
	assert.Equal(t, want, dst)
}

func TestReadRegionRejectsOutOfBounds(t *testing.T) {
	dim := geometry.Idx{X: 8, Y: 8, Z: 8}
	path := writeRawFile(t, dim)
	src, err := Open(path, dim)
	require.NoError(t, err)
	defer src.Close()

	dst := make([]byte, 2*2*2)
	err = src.ReadRegion([3]int64{-1, 0, 0}, [3]int64{2, 2, 2}, dst)
	assert.ErrorIs(t, err, apperr.IoError)

	err = src.ReadRegion([3]int64{7, 0, 0}, [3]int64{2, 2, 2}, dst)
	assert.ErrorIs(t, err, apperr.IoError)
}

func TestReadRegionRejectsWrongDstSize(t *testing.T) {
	dim := geometry.Idx{X: 8, Y: 8, Z: 8}
	path := writeRawFile(t, dim)
	src, err := Open(path, dim)
	require.NoError(t, err)
	defer src.Close()

	err = src.ReadRegion([3]int64{0, 0, 0}, [3]int64{2, 2, 2}, make([]byte, 5))
	assert.ErrorIs(t, err, apperr.IoError)
}
