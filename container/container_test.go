package container

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOT-REAL-GAMES/volcine/internal/apperr"
	"github.com/NOT-REAL-GAMES/volcine/internal/geometry"
)

func testConfig(t *testing.T) geometry.Config {
	t.Helper()
	cfg, err := geometry.NewConfig(geometry.Idx{X: 64, Y: 64, Z: 64}, 5, 1)
	require.NoError(t, err)
	return cfg
}

func TestHeaderRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	h := NewHeader(cfg, geometry.MethodHEVC, 1536, geometry.Chroma420)

	var buf bytes.Buffer
	buf.Write(make([]byte, HeaderSize))
	require.NoError(t, WriteAt(&sliceWriterAt{buf: buf.Bytes()}, h))

	got, err := ParseHeader(h.Bytes())
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestParseHeaderRejectsWrongSize(t *testing.T) {
	_, err := ParseHeader(make([]byte, HeaderSize-1))
	assert.ErrorIs(t, err, apperr.Corruption)
}

func TestParseHeaderRejectsBadVersion(t *testing.T) {
	cfg := testConfig(t)
	h := NewHeader(cfg, geometry.MethodH264, 1536, geometry.Chroma420)
	raw := h.Bytes()
	raw[0] = 0xFF // corrupt version's low byte
	_, err := ParseHeader(raw)
	assert.ErrorIs(t, err, apperr.Corruption)
}

func TestTrailerRoundTrip(t *testing.T) {
	index := map[geometry.Idx]geometry.BlockIndexEntry{
		{X: 0, Y: 0, Z: 0}: {FirstFrame: 0, LastFrame: 0, InFrameOffset: 0},
		{X: 1, Y: 0, Z: 0}: {FirstFrame: 0, LastFrame: 1, InFrameOffset: 500},
		{X: 0, Y: 1, Z: 0}: {FirstFrame: 2, LastFrame: 2, InFrameOffset: 100},
	}
	frameOffsets := []uint64{0, 1000, 2000}

	var buf bytes.Buffer
	buf.Write(make([]byte, 3000)) // the 3000-byte encoded body the trailer follows
	require.NoError(t, WriteTrailer(&buf, frameOffsets, 3000, index))

	trailer, err := ReadTrailer(bytes.NewReader(buf.Bytes()), int64(buf.Len()), 0)
	require.NoError(t, err)

	assert.Equal(t, append(append([]uint64{}, frameOffsets...), 3000), trailer.FrameOffsets)
	assert.Equal(t, index, trailer.BlockIndex)
}

func TestTrailerCompressesLargeBlockIndex(t *testing.T) {
	index := make(map[geometry.Idx]geometry.BlockIndexEntry, 1000)
	for i := uint32(0); i < 1000; i++ {
		index[geometry.Idx{X: i}] = geometry.BlockIndexEntry{FirstFrame: i, LastFrame: i}
	}
	var buf bytes.Buffer
	buf.Write(make([]byte, 100)) // encoded body
	require.NoError(t, WriteTrailer(&buf, []uint64{0}, 100, index))

	trailer, err := ReadTrailer(bytes.NewReader(buf.Bytes()), int64(buf.Len()), 0)
	require.NoError(t, err)
	assert.Equal(t, index, trailer.BlockIndex)
}

func TestReadTrailerDetectsChecksumCorruption(t *testing.T) {
	index := map[geometry.Idx]geometry.BlockIndexEntry{{X: 0}: {FirstFrame: 0, LastFrame: 0}}
	var buf bytes.Buffer
	buf.Write(make([]byte, 10)) // encoded body
	require.NoError(t, WriteTrailer(&buf, []uint64{0}, 10, index))

	corrupted := buf.Bytes()
	corrupted[10] ^= 0xFF // first trailer byte, right after the body
	_, err := ReadTrailer(bytes.NewReader(corrupted), int64(len(corrupted)), 0)
	assert.ErrorIs(t, err, apperr.Corruption)
}

func TestReadTrailerDetectsNonMonotonicOffsets(t *testing.T) {
	index := map[geometry.Idx]geometry.BlockIndexEntry{{X: 0}: {FirstFrame: 0, LastFrame: 0}}
	var buf bytes.Buffer
	buf.Write(make([]byte, 20)) // encoded body
	require.NoError(t, WriteTrailer(&buf, []uint64{0, 10, 5}, 20, index))
	_, err := ReadTrailer(bytes.NewReader(buf.Bytes()), int64(buf.Len()), 0)
	assert.ErrorIs(t, err, apperr.Corruption)
}

type sliceWriterAt struct{ buf []byte }

func (s *sliceWriterAt) WriteAt(p []byte, off int64) (int, error) {
	n := copy(s.buf[off:], p)
	return n, nil
}
