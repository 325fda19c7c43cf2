// Package decoderdriver wraps a codec's decode/display callback lifecycle
// behind a synchronous Feed/consumer pipeline, with a bounded slot pool
// standing in for the reference implementation's mapped-picture/stream
// handles.
//
// The reference driver targets GPU device memory reached through
// cgo/Vulkan bindings; volcine's codec.Decoder collaborator is pure Go
// and always decodes into host memory, so this driver's "mapping" is a
// slot merely holding the most recently decoded frame's bytes. The
// Destination abstraction (HostDestination, PitchedDestination) keeps the
// copy-out step shaped the way a real device-to-host copy would be, so a
// future hardware-backed Destination can be dropped in without touching
// the scatter logic built on top of it.
package decoderdriver

import (
	"fmt"
	"sync"

	"github.com/NOT-REAL-GAMES/volcine/codec"
	"github.com/NOT-REAL-GAMES/volcine/internal/apperr"
	"github.com/NOT-REAL-GAMES/volcine/internal/geometry"
	"github.com/NOT-REAL-GAMES/volcine/internal/logging"
)

// Destination is a copy-out target for a decoded frame's bytes. Real
// implementations may back this with host or device memory; volcine
// ships HostDestination (flat) and PitchedDestination (row-strided).
type Destination interface {
	// Write copies data into the destination starting at byte offset.
	Write(offset int64, data []byte) error
}

// HostDestination is a flat in-memory Destination, the common case for a
// single requested block's destination buffer.
type HostDestination struct {
	Buf []byte
}

func (d HostDestination) Write(offset int64, data []byte) error {
	if offset < 0 || offset+int64(len(data)) > int64(len(d.Buf)) {
		return fmt.Errorf("%w: host destination has %d bytes, write wants [%d,%d)", apperr.InsufficientBuffer, len(d.Buf), offset, offset+int64(len(data)))
	}
	copy(d.Buf[offset:], data)
	return nil
}

// PitchedDestination is a row-strided Destination: logical rows of
// RowBytes useful bytes are separated by Pitch bytes in Buf, mirroring a
// real device surface's padded scanlines. If Pitch equals RowBytes the
// write degenerates to one flat copy.
type PitchedDestination struct {
	Buf      []byte
	RowBytes int
	Pitch    int
}

func (d PitchedDestination) Write(offset int64, data []byte) error {
	if d.Pitch <= 0 || d.RowBytes <= 0 {
		return fmt.Errorf("%w: pitched destination has non-positive pitch/row size", apperr.InvalidConfig)
	}
	if d.Pitch == d.RowBytes {
		return HostDestination{Buf: d.Buf}.Write(offset, data)
	}
	row := int(offset) / d.RowBytes
	col := int(offset) % d.RowBytes
	n := 0
	for n < len(data) {
		rowStart := row*d.Pitch + col
		avail := d.RowBytes - col
		chunk := len(data) - n
		if chunk > avail {
			chunk = avail
		}
		if rowStart+chunk > len(d.Buf) {
			return fmt.Errorf("%w: pitched destination overrun at row %d", apperr.InsufficientBuffer, row)
		}
		copy(d.Buf[rowStart:rowStart+chunk], data[n:n+chunk])
		n += chunk
		row++
		col = 0
	}
	return nil
}

// VoxelStreamPacket is a handle to one decoded frame's bytes, mapped into
// a slot. CopyAsync is a two-rectangle (luma then chroma) pitched copy;
// since this driver's "device" memory is already flat host bytes, both
// planes collapse into slices of the same backing buffer.
type VoxelStreamPacket struct {
	data       []byte
	lumaSize   int
	chromaSize int
}

// Len returns the packet's total decoded byte length (luma + both chroma
// planes).
func (p *VoxelStreamPacket) Len() int { return len(p.data) }

// CopyAsync copies length bytes starting at offset within the packet's
// decoded bytes into dst at dstOffset. Despite the name, volcine's
// reference codec is synchronous, so this never actually defers work;
// the name is kept because a device-backed Destination would need to
// synchronize its stream here before returning.
func (p *VoxelStreamPacket) CopyAsync(dst Destination, dstOffset, offset, length int64) error {
	if offset < 0 || offset+length > int64(len(p.data)) {
		return fmt.Errorf("%w: packet has %d bytes, copy wants [%d,%d)", apperr.InsufficientBuffer, len(p.data), offset, offset+length)
	}
	return dst.Write(dstOffset, p.data[offset:offset+length])
}

// slot holds at most one mapped decoded picture.
type slot struct {
	mapped bool
	packet *VoxelStreamPacket
}

// DecoderDriver drives a codec.Decoder through a sequence/decode/display
// callback shape, single-threaded with respect to callbacks: Feed must
// not be called concurrently from multiple goroutines.
type DecoderDriver struct {
	dec      codec.Decoder
	consumer func(*VoxelStreamPacket) error
	log      *logging.Logger

	mu          sync.Mutex
	slots       []slot
	width       int
	height      int
	lumaSize    int
	chromaSize  int
	sequenced   bool
	closed      bool
}

// New builds a DecoderDriver around dec. consumer is invoked synchronously
// from Feed for every displayed picture and must return promptly to avoid
// stalling the decode pipeline.
func New(dec codec.Decoder, consumer func(*VoxelStreamPacket) error, log *logging.Logger) *DecoderDriver {
	if log == nil {
		log = logging.Discard()
	}
	return &DecoderDriver{dec: dec, consumer: consumer, log: log}
}

// Sequence is the sequence callback: on stream header parse, allocate the
// slot pool and fix plane geometry. ioQueueSize may be raised by a later
// Sequence call (a real stream header re-parse); the driver always
// honors the new maximum by reallocating.
func (d *DecoderDriver) Sequence(width, height int, chroma geometry.ChromaFormat, ioQueueSize int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if width <= 0 || height <= 0 || width > 8192 || height > 8192 {
		return fmt.Errorf("%w: resolution %dx%d exceeds codec caps", apperr.UnsupportedStream, width, height)
	}
	if ioQueueSize <= 0 {
		return fmt.Errorf("%w: io_queue_size must be positive", apperr.UnsupportedStream)
	}

	var chromaSize int
	switch chroma {
	case geometry.Chroma420:
		chromaSize = 2 * (width / 2) * (height / 2)
	case geometry.Chroma422:
		chromaSize = 2 * (width / 2) * height
	case geometry.Chroma444:
		chromaSize = 2 * width * height
	default:
		return fmt.Errorf("%w: unrecognized chroma format %d", apperr.UnsupportedStream, chroma)
	}

	d.width, d.height = width, height
	d.lumaSize, d.chromaSize = width*height, chromaSize
	d.slots = make([]slot, ioQueueSize)
	d.sequenced = true
	d.log.WithField("io_queue_size", ioQueueSize).Debug("decoder driver sequenced")
	return nil
}

// Feed decodes one packet (the decode callback, a pure pass-through to
// the codec) and displays the resulting picture into slot pictureIndex %
// len(slots) (the display callback), invoking the consumer synchronously.
func (d *DecoderDriver) Feed(pictureIndex int, packet []byte) error {
	frame, err := d.dec.Decode(packet)
	if err != nil {
		return fmt.Errorf("%w: decode callback: %v", apperr.CodecFailure, err)
	}
	return d.display(pictureIndex, frame)
}

func (d *DecoderDriver) display(pictureIndex int, frame []byte) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("decoderdriver: Feed called after Close")
	}
	if !d.sequenced || len(d.slots) == 0 {
		d.mu.Unlock()
		return fmt.Errorf("%w: display callback before sequence callback", apperr.UnsupportedStream)
	}
	pid := pictureIndex % len(d.slots)
	s := &d.slots[pid]
	if s.mapped {
		s.packet = nil
		s.mapped = false
	}
	pkt := &VoxelStreamPacket{data: frame, lumaSize: d.lumaSize, chromaSize: d.chromaSize}
	s.packet = pkt
	s.mapped = true
	d.mu.Unlock()

	return d.consumer(pkt)
}

// Close cooperatively cancels the driver: it unmaps every slot and marks
// the driver closed. Calling Feed after Close is an error.
func (d *DecoderDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	for i := range d.slots {
		d.slots[i] = slot{}
	}
	d.closed = true
	return d.dec.Close()
}
