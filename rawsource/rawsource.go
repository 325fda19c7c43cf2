// Package rawsource provides a region-read view over the source volume
// file, kept outside the archiver's core: the core only depends on the
// Source interface, and this file's os.File-backed implementation is the
// minimal concrete collaborator needed to exercise the Archiver end to
// end. It deliberately does no clipping or padding of its own — that
// bookkeeping is the Archiver's per-stride algorithm — so ReadRegion
// simply errors if asked for bytes outside [0, RawDim).
package rawsource

import (
	"fmt"
	"os"

	"github.com/NOT-REAL-GAMES/volcine/internal/apperr"
	"github.com/NOT-REAL-GAMES/volcine/internal/geometry"
)

// Source fills dst with the byte-per-voxel region [origin, origin+size) of
// the raw volume, in x-fastest order. The region must lie entirely within
// [0, RawDim); callers needing a padded/clipped read do that clamping
// themselves and call ReadRegion only with the clipped, in-bounds sub-box.
type Source interface {
	RawDim() geometry.Idx
	ReadRegion(origin, size [3]int64, dst []byte) error
}

// FileSource reads region tiles out of a flat, x-fastest-order raw volume
// file: one byte per voxel, no header.
type FileSource struct {
	f      *os.File
	rawDim geometry.Idx
}

// Open opens path as a flat raw volume of the given dimensions.
func Open(path string, rawDim geometry.Idx) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening raw source: %v", apperr.IoError, err)
	}
	return &FileSource{f: f, rawDim: rawDim}, nil
}

func (s *FileSource) Close() error { return s.f.Close() }

func (s *FileSource) RawDim() geometry.Idx { return s.rawDim }

// ReadRegion reads the axis-aligned box [origin, origin+size) into dst,
// x-fastest. len(dst) must equal size[0]*size[1]*size[2], and the box must
// lie entirely within [0, RawDim).
func (s *FileSource) ReadRegion(origin, size [3]int64, dst []byte) error {
	want := size[0] * size[1] * size[2]
	if int64(len(dst)) != want {
		return fmt.Errorf("%w: region dst has %d bytes, want %d", apperr.IoError, len(dst), want)
	}

	dimX, dimY, dimZ := int64(s.rawDim.X), int64(s.rawDim.Y), int64(s.rawDim.Z)
	if origin[0] < 0 || origin[1] < 0 || origin[2] < 0 ||
		origin[0]+size[0] > dimX || origin[1]+size[1] > dimY || origin[2]+size[2] > dimZ {
		return fmt.Errorf("%w: region [%v,+%v) out of bounds for raw_dim %s", apperr.IoError, origin, size, s.rawDim)
	}

	rowLen := size[0]
	for z := int64(0); z < size[2]; z++ {
		gz := origin[2] + z
		for y := int64(0); y < size[1]; y++ {
			gy := origin[1] + y
			fileOff := (gz*dimY+gy)*dimX + origin[0]
			dstOff := (z*size[1] + y) * rowLen
			if _, err := s.f.ReadAt(dst[dstOff:dstOff+rowLen], fileOff); err != nil {
				return fmt.Errorf("%w: reading raw region: %v", apperr.IoError, err)
			}
		}
	}
	return nil
}
