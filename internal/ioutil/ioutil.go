// Package ioutil collects small random-access and streaming-reader
// abstractions. The FrameAssembler queues pending block bytes as
// BlockSources and counts body bytes with CountingWriter; ChainReader and
// SectionReader are general helpers that no other volcine package calls.
// None of this is codec- or archive-specific; it is plumbing.
package ioutil

import (
	"io"
)

// BlockSource is the sum type the FrameAssembler queues: either bytes the
// assembler now owns outright, a borrowed slice the caller still owns (and
// may mutate/free once flush() promotes it), or a run of zero padding.
// This is an explicit-sum-type re-architecture in place of the
// reference's reference-counted reader handles.
type BlockSource struct {
	owned    []byte
	borrowed []byte
	padding  int
}

// Owned wraps a buffer the assembler may retain indefinitely.
func Owned(buf []byte) BlockSource { return BlockSource{owned: buf} }

// Borrowed wraps a buffer the caller still owns; Promote must copy it
// before the caller's buffer may be reused or freed.
func Borrowed(buf []byte) BlockSource { return BlockSource{borrowed: buf} }

// Padding represents n bytes of synthetic zero padding contributing no
// block data.
func Padding(n int) BlockSource { return BlockSource{padding: n} }

// Len returns the logical byte length of the source.
func (s BlockSource) Len() int {
	switch {
	case s.owned != nil:
		return len(s.owned)
	case s.borrowed != nil:
		return len(s.borrowed)
	default:
		return s.padding
	}
}

// Promote copies a Borrowed source into a freshly owned buffer. Owned and
// Padding sources are returned unchanged. Call this from flush() so the
// caller may drop its buffer once flush() returns.
func (s BlockSource) Promote() BlockSource {
	if s.borrowed == nil {
		return s
	}
	cp := make([]byte, len(s.borrowed))
	copy(cp, s.borrowed)
	return Owned(cp)
}

// Reader returns an io.Reader over the source's current remaining bytes.
// It does not consume the BlockSource itself; use ReadInto to drain a
// source in place across repeated calls (what the FrameAssembler's
// encoder worker needs, since a source's bytes often split across more
// than one drain when they don't land on a frame boundary).
func (s BlockSource) Reader() io.Reader {
	switch {
	case s.owned != nil:
		return bytesReader(s.owned)
	case s.borrowed != nil:
		return bytesReader(s.borrowed)
	default:
		return io.LimitReader(zeroReader{}, int64(s.padding))
	}
}

func bytesReader(b []byte) io.Reader {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &sliceReader{buf: cp}
}

type sliceReader struct{ buf []byte }

func (r *sliceReader) Read(p []byte) (int, error) {
	if len(r.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// ReadInto copies up to len(dst) bytes from the source's current
// remaining content into dst (zero-filling for Padding sources),
// mutating the source in place so a second call picks up where the first
// left off. It returns the number of bytes copied.
func (s *BlockSource) ReadInto(dst []byte) int {
	if s.owned != nil {
		n := copy(dst, s.owned)
		s.owned = s.owned[n:]
		return n
	}
	if s.borrowed != nil {
		n := copy(dst, s.borrowed)
		s.borrowed = s.borrowed[n:]
		return n
	}
	n := len(dst)
	if n > s.padding {
		n = s.padding
	}
	for i := 0; i < n; i++ {
		dst[i] = 0
	}
	s.padding -= n
	return n
}

// zeroReader is an unbounded stream of zero bytes, used (wrapped in
// io.LimitReader) for frame padding at seal.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// ChainReader concatenates a sequence of io.Readers into one logical
// stream without copying the individual buffers up front.
type ChainReader struct {
	readers []io.Reader
	idx     int
}

// NewChainReader builds a ChainReader over readers, read in order.
func NewChainReader(readers ...io.Reader) *ChainReader {
	return &ChainReader{readers: readers}
}

func (c *ChainReader) Read(p []byte) (int, error) {
	for c.idx < len(c.readers) {
		n, err := c.readers[c.idx].Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
		c.idx++
	}
	return 0, io.EOF
}

// SectionReader reads a fixed [start, start+length) byte range out of an
// io.ReaderAt, i.e. one contiguous run of the encoded body. It is a thin
// rename of io.SectionReader's contract kept local so callers don't need to
// import the stdlib type name alongside volcine's own reader types.
type SectionReader struct {
	ra     io.ReaderAt
	base   int64
	length int64
	off    int64
}

// NewSectionReader returns a SectionReader over [start, start+length) of ra.
func NewSectionReader(ra io.ReaderAt, start, length int64) *SectionReader {
	return &SectionReader{ra: ra, base: start, length: length}
}

func (s *SectionReader) Read(p []byte) (int, error) {
	if s.off >= s.length {
		return 0, io.EOF
	}
	remaining := s.length - s.off
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := s.ra.ReadAt(p, s.base+s.off)
	s.off += int64(n)
	if err == io.EOF && s.off < s.length {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

// CountingWriter wraps an io.Writer, tracking the number of bytes written
// so header/trailer offsets can be computed as the stream is produced
// rather than seeked back to after the fact.
type CountingWriter struct {
	W     io.Writer
	Count int64
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.W.Write(p)
	c.Count += int64(n)
	return n, err
}
