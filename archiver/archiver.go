// Package archiver is the write path that turns a raw volume source into
// a sealed archive file, striding over the grid within a caller-supplied
// memory budget and recording where every block landed in the encoded
// stream.
package archiver

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/NOT-REAL-GAMES/volcine/codec"
	"github.com/NOT-REAL-GAMES/volcine/codec/refcodec"
	"github.com/NOT-REAL-GAMES/volcine/container"
	"github.com/NOT-REAL-GAMES/volcine/frameassembler"
	"github.com/NOT-REAL-GAMES/volcine/internal/apperr"
	"github.com/NOT-REAL-GAMES/volcine/internal/geometry"
	"github.com/NOT-REAL-GAMES/volcine/internal/ioutil"
	"github.com/NOT-REAL-GAMES/volcine/internal/logging"
	"github.com/NOT-REAL-GAMES/volcine/rawsource"
)

// State is the Archiver's lifecycle state.
type State int

const (
	StateFresh State = iota
	StateRunning
	StateSealing
	StateSealed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateRunning:
		return "running"
	case StateSealing:
		return "sealing"
	case StateSealed:
		return "sealed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Options configures one archive run.
type Options struct {
	Method        geometry.EncodeMethod
	Quality       refcodec.Quality
	MemLimitBytes int64
	BatchFrames   int
}

// Archiver drives one raw-volume-to-archive conversion. It is single-use:
// call Convert once, then Close.
type Archiver struct {
	cfg    geometry.Config
	method geometry.EncodeMethod
	width  int
	height int
	chroma geometry.ChromaFormat

	source rawsource.Source
	file   *os.File
	enc    codec.Encoder
	fa     *frameassembler.FrameAssembler
	plan   plan

	log *logging.Logger

	mu    sync.Mutex
	state State

	index map[geometry.Idx]geometry.BlockIndexEntry
}

// New opens outputPath and prepares an Archiver in state Fresh. The
// geometry, codec and frame dimensions are fixed before any byte of the
// volume is read, so the Header written at seal never changes any field
// New already chose — seal only finalizes the placeholder this
// constructor writes first.
func New(outputPath string, source rawsource.Source, cfg geometry.Config, opts Options, log *logging.Logger) (*Archiver, error) {
	if opts.Quality == 0 {
		opts.Quality = refcodec.DefaultQuality
	}
	if opts.BatchFrames < 1 {
		opts.BatchFrames = 4
	}
	if log == nil {
		log = logging.Discard()
	}

	p := newPlan(cfg, opts.MemLimitBytes)
	if p.blocksInMem == 0 {
		return nil, fmt.Errorf("%w: memory budget %d bytes too small for two %d-byte scratch blocks", apperr.InsufficientMemory, opts.MemLimitBytes, cfg.BlockVolume())
	}

	width, height := codec.ChooseFrameDims(cfg.BlockSize)
	frameSize := uint64(codec.Size(width, height))

	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: creating archive: %v", apperr.IoError, err)
	}

	placeholder := container.NewHeader(cfg, opts.Method, frameSize, geometry.Chroma420)
	if err := container.WriteAt(f, placeholder); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(container.HeaderSize, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: seeking past header: %v", apperr.IoError, err)
	}

	enc, err := refcodec.NewEncoder(width, height, codec.Method(opts.Method), opts.Quality)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: building encoder: %v", apperr.CodecFailure, err)
	}

	fa := frameassembler.New(f, width, height, enc, opts.BatchFrames, log.WithField("subsystem", "frameassembler"))

	return &Archiver{
		cfg:    cfg,
		method: opts.Method,
		width:  width,
		height: height,
		chroma: geometry.Chroma420,
		source: source,
		file:   f,
		enc:    enc,
		fa:     fa,
		plan:   p,
		log:    log,
		state:  StateFresh,
		index:  make(map[geometry.Idx]geometry.BlockIndexEntry),
	}, nil
}

// State returns the Archiver's current lifecycle state.
func (a *Archiver) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Convert drives the Archiver Fresh -> Running -> Sealing -> Sealed,
// striding over the grid and submitting every block to the
// FrameAssembler in strict grid order, then sealing the archive. On any
// error it transitions to Errored, closes the file, and returns the
// error; it never leaves the state machine in Running or Sealing.
func (a *Archiver) Convert(ctx context.Context) (err error) {
	a.mu.Lock()
	if a.state != StateFresh {
		a.mu.Unlock()
		return fmt.Errorf("archiver: Convert called in state %s, want %s", a.state, StateFresh)
	}
	a.state = StateRunning
	a.mu.Unlock()

	defer func() {
		if err != nil {
			a.mu.Lock()
			a.state = StateErrored
			a.mu.Unlock()
			a.file.Close()
		}
	}()

	for _, st := range strides(a.cfg, a.plan) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err := a.processStride(st); err != nil {
			return err
		}
	}

	a.mu.Lock()
	a.state = StateSealing
	a.mu.Unlock()

	if err := a.fa.Wait(); err != nil {
		return err
	}

	frameOffsets := a.fa.FrameOffsets()
	bodyLen := a.fa.BodyLength()

	if err := container.WriteTrailer(a.file, frameOffsets, bodyLen, a.index); err != nil {
		return err
	}

	frameSize := uint64(codec.Size(a.width, a.height))
	header := container.NewHeader(a.cfg, a.method, frameSize, a.chroma)
	if err := container.WriteAt(a.file, header); err != nil {
		return err
	}

	if err := a.file.Close(); err != nil {
		return fmt.Errorf("%w: closing archive: %v", apperr.IoError, err)
	}

	a.mu.Lock()
	a.state = StateSealed
	a.mu.Unlock()
	a.log.WithField("blocks", len(a.index)).Info("archive sealed")
	return nil
}

// processStride runs the per-stride algorithm: read the clamped padded
// region, shift it into a full padded footprint if any face clipped,
// extract every block in parallel, then submit them to the
// FrameAssembler in strict (yb outer, xb inner) order so accept() still
// observes the grid's (z, y, x) arrival order, x fastest-varying.
func (a *Archiver) processStride(st stride) error {
	r := computeRegion(a.cfg, a.plan, st)

	clampedVol := r.clampedSize[0] * r.clampedSize[1] * r.clampedSize[2]
	bufA := make([]byte, clampedVol)
	if err := a.source.ReadRegion(r.clampedOrigin, r.clampedSize, bufA); err != nil {
		return err
	}

	var padded []byte
	if r.overflow.any() {
		padded = make([]byte, r.size[0]*r.size[1]*r.size[2])
		shiftInto(padded, r.size, bufA, r.clampedSize, r.shift)
	} else {
		padded = bufA
	}

	blockVol := int64(a.cfg.BlockVolume())
	blockSize := int64(a.cfg.BlockSize)
	blockInner := int64(a.cfg.BlockInner)

	blocks := make([][]byte, int(st.strideCols)*int(st.strideRows))
	var g errgroup.Group
	for yb := 0; yb < int(st.strideRows); yb++ {
		for xb := 0; xb < int(st.strideCols); xb++ {
			xb, yb := xb, yb
			slot := yb*int(st.strideCols) + xb
			g.Go(func() error {
				block := make([]byte, blockVol)
				extractBlock(block, blockSize, padded, r.size, [3]int64{int64(xb) * blockInner, int64(yb) * blockInner, 0})
				blocks[slot] = block
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: extracting stride blocks: %v", apperr.IoError, err)
	}

	for yb := 0; yb < int(st.strideRows); yb++ {
		for xb := 0; xb < int(st.strideCols); xb++ {
			slot := yb*int(st.strideCols) + xb
			entry := a.fa.Accept(ioutil.Owned(blocks[slot]))
			idx := geometry.Idx{
				X: st.xRep*uint32(a.plan.colsPerStride) + uint32(xb),
				Y: st.yIter*uint32(a.plan.rowsPerStride) + uint32(yb),
				Z: st.zGrid,
			}
			a.index[idx] = entry
		}
	}
	return nil
}

// shiftInto zero-fills dst (shaped dstSize) and copies src (shaped
// srcSize) into it at offset shift, row by row, x-fastest.
func shiftInto(dst []byte, dstSize [3]int64, src []byte, srcSize [3]int64, shift [3]int64) {
	for z := int64(0); z < srcSize[2]; z++ {
		for y := int64(0); y < srcSize[1]; y++ {
			srcOff := (z*srcSize[1] + y) * srcSize[0]
			dz, dy := z+shift[2], y+shift[1]
			dstOff := (dz*dstSize[1]+dy)*dstSize[0] + shift[0]
			copy(dst[dstOff:dstOff+srcSize[0]], src[srcOff:srcOff+srcSize[0]])
		}
	}
}

// extractBlock copies the BlockSize^3 cube starting at origin (within a
// padded buffer shaped paddedSize) into dst.
func extractBlock(dst []byte, blockSize int64, padded []byte, paddedSize [3]int64, origin [3]int64) {
	for z := int64(0); z < blockSize; z++ {
		pz := origin[2] + z
		for y := int64(0); y < blockSize; y++ {
			py := origin[1] + y
			srcOff := (pz*paddedSize[1]+py)*paddedSize[0] + origin[0]
			dstOff := (z*blockSize + y) * blockSize
			copy(dst[dstOff:dstOff+blockSize], padded[srcOff:srcOff+blockSize])
		}
	}
}
