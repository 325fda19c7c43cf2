// Package frameassembler presents incoming variable-length block byte
// streams to the codec as fixed-size frames, while telling the Archiver
// where each block landed.
//
// The reference implementation's pending bytes are reference-counted
// reader handles shared between the ingestion and encoder threads; this
// package uses an explicit-sum-type re-architecture instead
// (internal/ioutil.BlockSource), queued and drained by one background
// encoder goroutine under a two-mutex ordering (inputMu before workMu,
// never the reverse).
package frameassembler

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/NOT-REAL-GAMES/volcine/codec"
	"github.com/NOT-REAL-GAMES/volcine/internal/apperr"
	"github.com/NOT-REAL-GAMES/volcine/internal/geometry"
	"github.com/NOT-REAL-GAMES/volcine/internal/ioutil"
	"github.com/NOT-REAL-GAMES/volcine/internal/logging"
)

// FrameAssembler batches accepted block byte streams into FrameSize-byte
// frames and drives them through a codec.Encoder on a background
// goroutine.
type FrameAssembler struct {
	frameSize   int
	batchFrames int
	width       int
	height      int
	encoder     codec.Encoder
	out         *ioutil.CountingWriter

	log *logging.Logger

	inputMu   sync.Mutex
	inputCond *sync.Cond
	queue     []ioutil.BlockSource
	pending   int64 // sum of Len() of items still in queue, unconsumed
	emitted   int64 // frames already written to out

	shouldFlush bool
	shouldStop  bool
	waitCalled  bool

	workMu      sync.Mutex
	finishCond  *sync.Cond
	frameOffset []uint64 // body-relative offset of frame i's length prefix
	err         error
	done        bool
}

// New starts a FrameAssembler writing length-prefixed encoded packets to
// out (u32 length, then bytes). batchFrames is the number of whole
// frames' worth of pending bytes that wakes the background encoder
// early.
func New(out io.Writer, width, height int, encoder codec.Encoder, batchFrames int, log *logging.Logger) *FrameAssembler {
	if batchFrames < 1 {
		batchFrames = 1
	}
	fa := &FrameAssembler{
		frameSize:   codec.Size(width, height),
		batchFrames: batchFrames,
		width:       width,
		height:      height,
		encoder:     encoder,
		out:         &ioutil.CountingWriter{W: out},
		log:         log,
	}
	fa.inputCond = sync.NewCond(&fa.inputMu)
	fa.finishCond = sync.NewCond(&fa.workMu)
	go fa.run()
	return fa
}

// Accept appends src's bytes to the logical stream and returns the
// BlockIndexEntry describing where the corresponding block landed,
// computed synchronously so it is consistent with the sequential byte
// layout regardless of worker interleaving.
func (fa *FrameAssembler) Accept(src ioutil.BlockSource) geometry.BlockIndexEntry {
	fa.inputMu.Lock()
	defer fa.inputMu.Unlock()

	size := int64(src.Len())
	fs := int64(fa.frameSize)

	entry := geometry.BlockIndexEntry{
		FirstFrame:    uint32(fa.emitted + fa.pending/fs),
		InFrameOffset: uint32(fa.pending % fs),
		LastFrame:     uint32(fa.emitted + (fa.pending+size+fs-1)/fs - 1),
	}

	fa.queue = append(fa.queue, src)
	fa.pending += size

	if fa.pending >= fs*int64(fa.batchFrames) {
		fa.inputCond.Broadcast()
	}
	return entry
}

// Flush ensures every queued BlockSource is self-owned (promoting
// Borrowed entries by copying), so the caller may drop its underlying
// buffers once Flush returns. If wait is true, Flush blocks until the
// encoder worker has drained every full frame currently pending.
func (fa *FrameAssembler) Flush(wait bool) error {
	fa.inputMu.Lock()
	for i, src := range fa.queue {
		fa.queue[i] = src.Promote()
	}
	// Every full frame pending now, plus those already drained, must be
	// written before a waiting Flush returns.
	target := fa.emitted + fa.pending/int64(fa.frameSize)
	fa.shouldFlush = true
	fa.inputCond.Broadcast()
	fa.inputMu.Unlock()

	if !wait {
		return nil
	}
	fa.workMu.Lock()
	defer fa.workMu.Unlock()
	for int64(len(fa.frameOffset)) < target && fa.err == nil && !fa.done {
		fa.finishCond.Wait()
	}
	return fa.err
}

// Wait pads the final short frame with zeros (never truncating) and blocks
// until the encoder has consumed every byte, including the padding. It may
// only be called once per FrameAssembler lifetime.
func (fa *FrameAssembler) Wait() error {
	fa.inputMu.Lock()
	if fa.waitCalled {
		fa.inputMu.Unlock()
		return fmt.Errorf("frameassembler: Wait called more than once")
	}
	fa.waitCalled = true

	if rem := fa.pending % int64(fa.frameSize); rem != 0 {
		pad := int64(fa.frameSize) - rem
		fa.queue = append(fa.queue, ioutil.Padding(int(pad)))
		fa.pending += pad
	}
	fa.shouldStop = true
	fa.inputCond.Broadcast()
	fa.inputMu.Unlock()

	fa.workMu.Lock()
	defer fa.workMu.Unlock()
	for !fa.done && fa.err == nil {
		fa.finishCond.Wait()
	}
	return fa.err
}

// FrameOffsets returns a snapshot of the frame offset table accumulated so
// far, minus its trailing sentinel — the container writer appends that
// once the body stream is fully closed.
func (fa *FrameAssembler) FrameOffsets() []uint64 {
	fa.workMu.Lock()
	defer fa.workMu.Unlock()
	out := make([]uint64, len(fa.frameOffset))
	copy(out, fa.frameOffset)
	return out
}

// BodyLength returns the total number of bytes written to out so far.
func (fa *FrameAssembler) BodyLength() int64 {
	fa.workMu.Lock()
	defer fa.workMu.Unlock()
	return fa.out.Count
}

func (fa *FrameAssembler) run() {
	for {
		fa.inputMu.Lock()
		for fa.pending < int64(fa.frameSize)*int64(fa.batchFrames) && !fa.shouldFlush && !fa.shouldStop {
			fa.inputCond.Wait()
		}
		drainN := (fa.pending / int64(fa.frameSize)) * int64(fa.frameSize)
		stop := fa.shouldStop && drainN == fa.pending
		var chunk []byte
		if drainN > 0 {
			chunk = fa.drainLocked(drainN)
		}
		flushed := fa.shouldFlush
		fa.shouldFlush = false
		fa.inputMu.Unlock()

		if drainN > 0 {
			if err := fa.encodeChunk(chunk); err != nil {
				fa.fail(err)
				return
			}
		}

		if flushed || stop {
			fa.workMu.Lock()
			fa.finishCond.Broadcast()
			fa.workMu.Unlock()
		}

		if stop {
			fa.workMu.Lock()
			fa.done = true
			fa.finishCond.Broadcast()
			fa.workMu.Unlock()
			return
		}
	}
}

// drainLocked pops exactly n bytes off the front of the pending queue.
// Caller must hold inputMu.
func (fa *FrameAssembler) drainLocked(n int64) []byte {
	buf := make([]byte, n)
	var off int64
	for off < n {
		m := fa.queue[0].ReadInto(buf[off:])
		off += int64(m)
		if fa.queue[0].Len() == 0 {
			fa.queue = fa.queue[1:]
		}
	}
	fa.pending -= n
	fa.emitted += n / int64(fa.frameSize)
	return buf
}

func (fa *FrameAssembler) encodeChunk(chunk []byte) error {
	frames := len(chunk) / fa.frameSize
	for i := 0; i < frames; i++ {
		raw := chunk[i*fa.frameSize : (i+1)*fa.frameSize]
		frame, err := codec.FromPlanar(fa.width, fa.height, raw)
		if err != nil {
			return fmt.Errorf("%w: %v", apperr.CodecFailure, err)
		}
		packet, err := fa.encoder.Encode(frame)
		if err != nil {
			return fmt.Errorf("%w: encode failed: %v", apperr.CodecFailure, err)
		}

		fa.workMu.Lock()
		fa.frameOffset = append(fa.frameOffset, uint64(fa.out.Count))
		var lenPrefix [4]byte
		binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(packet)))
		if _, err := fa.out.Write(lenPrefix[:]); err != nil {
			fa.workMu.Unlock()
			return fmt.Errorf("%w: writing packet length: %v", apperr.IoError, err)
		}
		if _, err := fa.out.Write(packet); err != nil {
			fa.workMu.Unlock()
			return fmt.Errorf("%w: writing packet body: %v", apperr.IoError, err)
		}
		fa.workMu.Unlock()
	}
	if fa.log != nil {
		fa.log.WithField("frames", frames).Debug("encoded batch")
	}
	return nil
}

func (fa *FrameAssembler) fail(err error) {
	fa.workMu.Lock()
	fa.err = err
	fa.done = true
	fa.finishCond.Broadcast()
	fa.workMu.Unlock()
	if fa.log != nil {
		fa.log.WithError(err).Error("frame assembler encoder worker aborted")
	}
}
