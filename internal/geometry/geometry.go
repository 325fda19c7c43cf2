// Package geometry holds the voxel-grid geometry shared by the archive and
// read paths: raw/grid/adjusted dimensions, block addressing (Idx), and the
// block index entry type with its ordering rules.
package geometry

import (
	"fmt"

	"github.com/NOT-REAL-GAMES/volcine/internal/apperr"
)

// Idx addresses one block within GridDim. Ordering is strict lexicographic,
// x major, then y, then z.
type Idx struct {
	X, Y, Z uint32
}

// Less reports whether idx sorts before other under the x,y,z tie-break.
func (idx Idx) Less(other Idx) bool {
	if idx.X != other.X {
		return idx.X < other.X
	}
	if idx.Y != other.Y {
		return idx.Y < other.Y
	}
	return idx.Z < other.Z
}

func (idx Idx) String() string {
	return fmt.Sprintf("(%d,%d,%d)", idx.X, idx.Y, idx.Z)
}

// Total returns the number of blocks addressed by a GridDim-shaped Idx.
func (idx Idx) Total() uint64 {
	return uint64(idx.X) * uint64(idx.Y) * uint64(idx.Z)
}

// Config is the fixed geometry of one archive, derived once at Archiver
// construction (or parsed back out of a Header) and never mutated after.
type Config struct {
	RawDim       Idx
	LogBlockSize uint64
	Padding      uint64

	BlockSize   uint64
	BlockInner  uint64
	GridDim     Idx
	AdjustedDim Idx
}

// NewConfig validates (RawDim, LogBlockSize, Padding) and derives the rest
// of the geometry. It is the single source of truth for the archive's
// dimension formulas.
func NewConfig(rawDim Idx, logBlockSize, padding uint64) (Config, error) {
	if rawDim.X == 0 || rawDim.Y == 0 || rawDim.Z == 0 {
		return Config{}, fmt.Errorf("%w: raw_dim has a zero axis: %s", apperr.InvalidConfig, rawDim)
	}
	if logBlockSize < 5 || logBlockSize > 14 {
		return Config{}, fmt.Errorf("%w: log_block_size %d outside [5,14]", apperr.InvalidConfig, logBlockSize)
	}
	if padding > 2 {
		return Config{}, fmt.Errorf("%w: padding %d outside {0,1,2}", apperr.InvalidConfig, padding)
	}

	blockSize := uint64(1) << logBlockSize
	blockInner := blockSize - 2*padding
	if blockInner == 0 {
		return Config{}, fmt.Errorf("%w: block_inner is zero (block_size=%d padding=%d)", apperr.InvalidConfig, blockSize, padding)
	}

	grid := Idx{
		X: ceilDiv32(rawDim.X, uint32(blockInner)),
		Y: ceilDiv32(rawDim.Y, uint32(blockInner)),
		Z: ceilDiv32(rawDim.Z, uint32(blockInner)),
	}
	adjusted := Idx{
		X: grid.X * uint32(blockSize),
		Y: grid.Y * uint32(blockSize),
		Z: grid.Z * uint32(blockSize),
	}

	return Config{
		RawDim:       rawDim,
		LogBlockSize: logBlockSize,
		Padding:      padding,
		BlockSize:    blockSize,
		BlockInner:   blockInner,
		GridDim:      grid,
		AdjustedDim:  adjusted,
	}, nil
}

// BlockVolume returns BlockSize^3, the number of bytes in one block.
func (c Config) BlockVolume() uint64 {
	return c.BlockSize * c.BlockSize * c.BlockSize
}

func ceilDiv32(a, b uint32) uint32 {
	return uint32((uint64(a) + uint64(b) - 1) / uint64(b))
}

// EncodeMethod selects the reference codec profile, recorded verbatim in
// the archive Header.
type EncodeMethod uint64

const (
	MethodH264 EncodeMethod = 0
	MethodHEVC EncodeMethod = 1
)

// ChromaFormat is a forward-compatible reserved Header slot: the
// reference codec only ever emits Chroma420, but the field lets a future
// encoder vary without breaking the archive format.
type ChromaFormat uint64

const (
	Chroma420 ChromaFormat = iota
	Chroma422
	Chroma444
)

// BlockIndexEntry is the on-disk per-block index row.
// Invariants: FirstFrame <= LastFrame; InFrameOffset < FrameSize;
// (LastFrame-FirstFrame+1)*FrameSize - InFrameOffset >= BlockSize^3.
type BlockIndexEntry struct {
	FirstFrame    uint32
	LastFrame     uint32
	InFrameOffset uint32
}

// Less implements the BlockIndex ordering: (FirstFrame, InFrameOffset)
// ascending.
func (e BlockIndexEntry) Less(other BlockIndexEntry) bool {
	if e.FirstFrame != other.FirstFrame {
		return e.FirstFrame < other.FirstFrame
	}
	return e.InFrameOffset < other.InFrameOffset
}

// Validate checks the entry's internal invariants against a frame/block
// size pair known by the caller.
func (e BlockIndexEntry) Validate(frameSize, blockVolume uint64) error {
	if e.FirstFrame > e.LastFrame {
		return fmt.Errorf("%w: first_frame %d > last_frame %d", apperr.Corruption, e.FirstFrame, e.LastFrame)
	}
	if uint64(e.InFrameOffset) >= frameSize {
		return fmt.Errorf("%w: in_frame_offset %d >= frame_size %d", apperr.Corruption, e.InFrameOffset, frameSize)
	}
	span := uint64(e.LastFrame-e.FirstFrame+1)*frameSize - uint64(e.InFrameOffset)
	if span < blockVolume {
		return fmt.Errorf("%w: block window %d bytes too small for block volume %d", apperr.Corruption, span, blockVolume)
	}
	return nil
}
