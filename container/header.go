// Package container defines the on-disk archive layout: the fixed
// Header, the length-prefixed encoded body framing, and the Trailer
// (frame offset table + block index + checksum) appended after the body
// and pointed at by the file's final 8 bytes.
package container

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/NOT-REAL-GAMES/volcine/codec"
	"github.com/NOT-REAL-GAMES/volcine/internal/apperr"
	"github.com/NOT-REAL-GAMES/volcine/internal/geometry"
)

// FormatVersion is bumped whenever the on-disk layout changes in a way old
// readers can't tolerate.
const FormatVersion uint64 = 1

// HeaderSize is the fixed, packed, little-endian size of Header in bytes:
// 11 fields (a uint64 version, 3x Idx as 3 uint32 each, then seven uint64s:
// log_block_size, block_size, block_inner, padding, encode_method,
// frame_size, chroma) — see Header's field list for the exact order.
const HeaderSize = 8 /*version*/ + 12*3 /*raw/grid/adjusted dims*/ + 8*6 /*log_block_size..frame_size*/ + 8 /*chroma_format*/

// Header is the archive's fixed, 4-byte-packed, little-endian preamble.
// It is written at archive creation with every field already final, and
// written again with the same values at seal.
type Header struct {
	Version      uint64
	RawDim       geometry.Idx
	GridDim      geometry.Idx
	AdjustedDim  geometry.Idx
	LogBlockSize uint64
	BlockSize    uint64
	BlockInner   uint64
	Padding      uint64
	EncodeMethod geometry.EncodeMethod
	FrameSize    uint64
	ChromaFormat geometry.ChromaFormat
}

// NewHeader derives a Header from a geometry.Config plus the encode
// parameters chosen for this archive.
func NewHeader(cfg geometry.Config, method geometry.EncodeMethod, frameSize uint64, chroma geometry.ChromaFormat) Header {
	return Header{
		Version:      FormatVersion,
		RawDim:       cfg.RawDim,
		GridDim:      cfg.GridDim,
		AdjustedDim:  cfg.AdjustedDim,
		LogBlockSize: cfg.LogBlockSize,
		BlockSize:    cfg.BlockSize,
		BlockInner:   cfg.BlockInner,
		Padding:      cfg.Padding,
		EncodeMethod: method,
		FrameSize:    frameSize,
		ChromaFormat: chroma,
	}
}

func putIdx(buf []byte, idx geometry.Idx) {
	binary.LittleEndian.PutUint32(buf[0:4], idx.X)
	binary.LittleEndian.PutUint32(buf[4:8], idx.Y)
	binary.LittleEndian.PutUint32(buf[8:12], idx.Z)
}

func getIdx(buf []byte) geometry.Idx {
	return geometry.Idx{
		X: binary.LittleEndian.Uint32(buf[0:4]),
		Y: binary.LittleEndian.Uint32(buf[4:8]),
		Z: binary.LittleEndian.Uint32(buf[8:12]),
	}
}

// Bytes serializes h into a HeaderSize-byte little-endian buffer.
func (h Header) Bytes() []byte {
	buf := make([]byte, HeaderSize)
	o := 0
	binary.LittleEndian.PutUint64(buf[o:], h.Version)
	o += 8
	putIdx(buf[o:], h.RawDim)
	o += 12
	putIdx(buf[o:], h.GridDim)
	o += 12
	putIdx(buf[o:], h.AdjustedDim)
	o += 12
	for _, v := range []uint64{
		h.LogBlockSize, h.BlockSize, h.BlockInner, h.Padding,
		uint64(h.EncodeMethod), h.FrameSize, uint64(h.ChromaFormat),
	} {
		binary.LittleEndian.PutUint64(buf[o:], v)
		o += 8
	}
	return buf
}

// ParseHeader reads a Header back out of a HeaderSize-byte buffer.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) != HeaderSize {
		return Header{}, fmt.Errorf("%w: header is %d bytes, want %d", apperr.Corruption, len(buf), HeaderSize)
	}
	var h Header
	o := 0
	h.Version = binary.LittleEndian.Uint64(buf[o:])
	o += 8
	h.RawDim = getIdx(buf[o:])
	o += 12
	h.GridDim = getIdx(buf[o:])
	o += 12
	h.AdjustedDim = getIdx(buf[o:])
	o += 12
	h.LogBlockSize = binary.LittleEndian.Uint64(buf[o:])
	o += 8
	h.BlockSize = binary.LittleEndian.Uint64(buf[o:])
	o += 8
	h.BlockInner = binary.LittleEndian.Uint64(buf[o:])
	o += 8
	h.Padding = binary.LittleEndian.Uint64(buf[o:])
	o += 8
	h.EncodeMethod = geometry.EncodeMethod(binary.LittleEndian.Uint64(buf[o:]))
	o += 8
	h.FrameSize = binary.LittleEndian.Uint64(buf[o:])
	o += 8
	h.ChromaFormat = geometry.ChromaFormat(binary.LittleEndian.Uint64(buf[o:]))

	if h.Version != FormatVersion {
		return Header{}, fmt.Errorf("%w: header version %d, want %d", apperr.Corruption, h.Version, FormatVersion)
	}
	return h, nil
}

// WriteAt writes h to w at offset 0, the archive's fixed preamble.
func WriteAt(w io.WriterAt, h Header) error {
	if _, err := w.WriteAt(h.Bytes(), 0); err != nil {
		return fmt.Errorf("%w: writing header: %v", apperr.IoError, err)
	}
	return nil
}

// ReadHeader reads and parses the Header at the start of r.
func ReadHeader(r io.ReaderAt) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return Header{}, fmt.Errorf("%w: reading header: %v", apperr.IoError, err)
	}
	return ParseHeader(buf)
}

// Method returns h's codec.Method, for constructing the matching
// codec.Encoder/Decoder.
func (h Header) Method() codec.Method { return codec.Method(h.EncodeMethod) }
