package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/NOT-REAL-GAMES/volcine/internal/apperr"
	"github.com/NOT-REAL-GAMES/volcine/internal/geometry"
)

// compressThreshold is the serialized block_index byte size above which
// WriteTrailer zstd-frames the section instead of writing it raw. Below
// this, compression overhead isn't worth the CPU.
const compressThreshold = 4096

const (
	blockIndexRaw  byte = 0
	blockIndexZstd byte = 1
)

// Trailer holds the parsed frame offset table and block index. The
// integrity checksum covering both is verified by ReadTrailer and not
// kept here.
type Trailer struct {
	FrameOffsets []uint64
	BlockIndex   map[geometry.Idx]geometry.BlockIndexEntry
}

// WriteTrailer serializes frame_offsets, block_index, a checksum over
// both, then meta_offset, appending them to w starting right after the
// encoded body. bodyLen is the body's total byte length so far (the
// value meta_offset records, and also the sentinel frame_offsets entry:
// the entry at index num_frames marks the stream's logical end).
func WriteTrailer(w io.Writer, frameOffsets []uint64, bodyLen int64, index map[geometry.Idx]geometry.BlockIndexEntry) error {
	var buf bytes.Buffer

	offsets := append(append([]uint64{}, frameOffsets...), uint64(bodyLen))
	if err := binary.Write(&buf, binary.LittleEndian, uint64(len(offsets))); err != nil {
		return fmt.Errorf("%w: %v", apperr.IoError, err)
	}
	for _, off := range offsets {
		if err := binary.Write(&buf, binary.LittleEndian, off); err != nil {
			return fmt.Errorf("%w: %v", apperr.IoError, err)
		}
	}

	entriesRaw, err := marshalBlockIndex(index)
	if err != nil {
		return err
	}
	if len(entriesRaw) > compressThreshold {
		compressed, err := zstdCompress(entriesRaw)
		if err != nil {
			return fmt.Errorf("%w: compressing block index: %v", apperr.IoError, err)
		}
		buf.WriteByte(blockIndexZstd)
		binary.Write(&buf, binary.LittleEndian, uint64(len(compressed)))
		buf.Write(compressed)
	} else {
		buf.WriteByte(blockIndexRaw)
		binary.Write(&buf, binary.LittleEndian, uint64(len(entriesRaw)))
		buf.Write(entriesRaw)
	}

	checksum := xxhash.Sum64(buf.Bytes())

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("%w: writing trailer: %v", apperr.IoError, err)
	}
	tail := make([]byte, 16)
	binary.LittleEndian.PutUint64(tail[0:8], checksum)
	binary.LittleEndian.PutUint64(tail[8:16], uint64(bodyLen)) // meta_offset
	if _, err := w.Write(tail); err != nil {
		return fmt.Errorf("%w: writing trailer pointer: %v", apperr.IoError, err)
	}
	return nil
}

// marshalBlockIndex serializes index as a sorted (by Idx) sequence of
// (Idx, BlockIndexEntry) pairs prefixed by a u64 count: a length-prefixed
// sorted map.
func marshalBlockIndex(index map[geometry.Idx]geometry.BlockIndexEntry) ([]byte, error) {
	keys := make([]geometry.Idx, 0, len(index))
	for k := range index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint64(len(keys)))
	for _, k := range keys {
		e := index[k]
		var row [24]byte
		binary.LittleEndian.PutUint32(row[0:4], k.X)
		binary.LittleEndian.PutUint32(row[4:8], k.Y)
		binary.LittleEndian.PutUint32(row[8:12], k.Z)
		binary.LittleEndian.PutUint32(row[12:16], e.FirstFrame)
		binary.LittleEndian.PutUint32(row[16:20], e.LastFrame)
		binary.LittleEndian.PutUint32(row[20:24], e.InFrameOffset)
		buf.Write(row[:])
	}
	return buf.Bytes(), nil
}

func unmarshalBlockIndex(raw []byte) (map[geometry.Idx]geometry.BlockIndexEntry, error) {
	if len(raw) < 8 {
		return nil, fmt.Errorf("%w: block index blob truncated", apperr.Corruption)
	}
	count := binary.LittleEndian.Uint64(raw[:8])
	raw = raw[8:]
	if uint64(len(raw)) != count*24 {
		return nil, fmt.Errorf("%w: block index has %d bytes, want %d for %d entries", apperr.Corruption, len(raw), count*24, count)
	}
	index := make(map[geometry.Idx]geometry.BlockIndexEntry, count)
	for i := uint64(0); i < count; i++ {
		row := raw[i*24 : i*24+24]
		idx := geometry.Idx{
			X: binary.LittleEndian.Uint32(row[0:4]),
			Y: binary.LittleEndian.Uint32(row[4:8]),
			Z: binary.LittleEndian.Uint32(row[8:12]),
		}
		index[idx] = geometry.BlockIndexEntry{
			FirstFrame:    binary.LittleEndian.Uint32(row[12:16]),
			LastFrame:     binary.LittleEndian.Uint32(row[16:20]),
			InFrameOffset: binary.LittleEndian.Uint32(row[20:24]),
		}
	}
	return index, nil
}

// ReadTrailer locates and parses the trailer at the end of an archive of
// total size fileSize, recomputing and verifying the integrity checksum.
// headerSize is the byte offset at which the encoded body (and therefore
// all body-relative offsets) begins.
func ReadTrailer(r io.ReaderAt, fileSize int64, headerSize int64) (Trailer, error) {
	if fileSize < headerSize+16 {
		return Trailer{}, fmt.Errorf("%w: archive too small for a trailer", apperr.Corruption)
	}
	tail := make([]byte, 16)
	if _, err := r.ReadAt(tail, fileSize-16); err != nil {
		return Trailer{}, fmt.Errorf("%w: reading trailer pointer: %v", apperr.IoError, err)
	}
	checksum := binary.LittleEndian.Uint64(tail[0:8])
	metaOffset := int64(binary.LittleEndian.Uint64(tail[8:16]))

	trailerStart := headerSize + metaOffset
	if trailerStart < headerSize || trailerStart > fileSize-16 {
		return Trailer{}, fmt.Errorf("%w: meta_offset %d out of range", apperr.Corruption, metaOffset)
	}
	body := make([]byte, fileSize-16-trailerStart)
	if _, err := r.ReadAt(body, trailerStart); err != nil {
		return Trailer{}, fmt.Errorf("%w: reading trailer body: %v", apperr.IoError, err)
	}
	if xxhash.Sum64(body) != checksum {
		return Trailer{}, fmt.Errorf("%w: trailer checksum mismatch", apperr.Corruption)
	}

	br := bytes.NewReader(body)
	var countOffsets uint64
	if err := binary.Read(br, binary.LittleEndian, &countOffsets); err != nil {
		return Trailer{}, fmt.Errorf("%w: %v", apperr.Corruption, err)
	}
	offsets := make([]uint64, countOffsets)
	for i := range offsets {
		if err := binary.Read(br, binary.LittleEndian, &offsets[i]); err != nil {
			return Trailer{}, fmt.Errorf("%w: %v", apperr.Corruption, err)
		}
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] <= offsets[i-1] {
			return Trailer{}, fmt.Errorf("%w: frame_offsets not strictly monotonic at %d", apperr.Corruption, i)
		}
	}

	flag, err := br.ReadByte()
	if err != nil {
		return Trailer{}, fmt.Errorf("%w: %v", apperr.Corruption, err)
	}
	var blobLen uint64
	if err := binary.Read(br, binary.LittleEndian, &blobLen); err != nil {
		return Trailer{}, fmt.Errorf("%w: %v", apperr.Corruption, err)
	}
	blob := make([]byte, blobLen)
	if _, err := io.ReadFull(br, blob); err != nil {
		return Trailer{}, fmt.Errorf("%w: reading block index blob: %v", apperr.Corruption, err)
	}
	if flag == blockIndexZstd {
		blob, err = zstdDecompress(blob)
		if err != nil {
			return Trailer{}, fmt.Errorf("%w: decompressing block index: %v", apperr.Corruption, err)
		}
	}
	index, err := unmarshalBlockIndex(blob)
	if err != nil {
		return Trailer{}, err
	}

	return Trailer{FrameOffsets: offsets, BlockIndex: index}, nil
}

func zstdCompress(raw []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

func zstdDecompress(compressed []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(compressed, nil)
}
