// Package unarchiver reads blocks back out of a sealed archive: given a
// set of requested block coordinates, it plans a minimal set of decoder
// runs over the encoded stream and scatters the decoded bytes into
// caller-supplied destination buffers.
package unarchiver

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/NOT-REAL-GAMES/volcine/codec"
	"github.com/NOT-REAL-GAMES/volcine/codec/refcodec"
	"github.com/NOT-REAL-GAMES/volcine/container"
	"github.com/NOT-REAL-GAMES/volcine/decoderdriver"
	"github.com/NOT-REAL-GAMES/volcine/internal/apperr"
	"github.com/NOT-REAL-GAMES/volcine/internal/geometry"
	"github.com/NOT-REAL-GAMES/volcine/internal/logging"
)

// Request names one block to decode and the exact-sized destination
// buffer to scatter its bytes into.
type Request struct {
	Idx geometry.Idx
	Dst []byte
}

// Unarchiver reads a sealed archive and decodes requested blocks back out
// of it. It is safe to reuse across repeated Unarchive calls but not safe
// for concurrent use, matching the DecoderDriver's single-threaded
// callback contract.
type Unarchiver struct {
	f       *os.File
	header  container.Header
	trailer container.Trailer
	driver  *decoderdriver.DecoderDriver

	blockVol int64

	active       []*pendingBlock
	linkedReadPos uint64
}

// Open reads the header and trailer of the archive at path and prepares
// it for block requests.
func Open(path string, log *logging.Logger) (*Unarchiver, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening archive: %v", apperr.IoError, err)
	}

	header, err := container.ReadHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: statting archive: %v", apperr.IoError, err)
	}

	trailer, err := container.ReadTrailer(f, fi.Size(), container.HeaderSize)
	if err != nil {
		f.Close()
		return nil, err
	}

	width, height := codec.ChooseFrameDims(header.BlockSize)
	dec, err := refcodec.NewDecoder(width, height, header.Method())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: building decoder: %v", apperr.CodecFailure, err)
	}

	u := &Unarchiver{
		f:        f,
		header:   header,
		trailer:  trailer,
		blockVol: int64(header.BlockSize) * int64(header.BlockSize) * int64(header.BlockSize),
	}
	u.driver = decoderdriver.New(dec, u.onPacket, log)
	if err := u.driver.Sequence(width, height, header.ChromaFormat, 4); err != nil {
		f.Close()
		return nil, err
	}
	return u, nil
}

// Close releases the underlying file and decoder.
func (u *Unarchiver) Close() error {
	u.driver.Close()
	return u.f.Close()
}

// Header returns the archive's parsed Header, for callers that need the
// grid/raw dimensions without re-deriving them.
func (u *Unarchiver) Header() container.Header { return u.header }

// pendingBlock tracks one in-flight request's progress through the
// scatter loop.
type pendingBlock struct {
	req          *Request
	entry        geometry.BlockIndexEntry
	linkedOffset uint64
	written      int64
}

// Unarchive resolves every request's Idx against the block index, plans
// the minimal set of decoder runs spanning them, and scatters decoded
// bytes into each request's Dst. Every Dst must be exactly BlockSize^3
// bytes.
func (u *Unarchiver) Unarchive(reqs []Request) error {
	pendings := make([]*pendingBlock, 0, len(reqs))
	for i := range reqs {
		r := &reqs[i]
		entry, ok := u.trailer.BlockIndex[r.Idx]
		if !ok {
			return fmt.Errorf("%w: block %s not present in archive", apperr.UnknownBlock, r.Idx)
		}
		if int64(len(r.Dst)) != u.blockVol {
			return fmt.Errorf("%w: destination for block %s is %d bytes, want %d", apperr.InsufficientBuffer, r.Idx, len(r.Dst), u.blockVol)
		}
		pendings = append(pendings, &pendingBlock{req: r, entry: entry})
	}
	if len(pendings) == 0 {
		return nil
	}

	sort.Slice(pendings, func(i, j int) bool { return pendings[i].entry.Less(pendings[j].entry) })

	runs := planRuns(pendings)
	frameSize := u.header.FrameSize

	cumFrames := uint64(0)
	for _, rn := range runs {
		for _, p := range rn.items {
			p.linkedOffset = (cumFrames + uint64(p.entry.FirstFrame-rn.firstFrame)) * frameSize
			p.linkedOffset += uint64(p.entry.InFrameOffset)
		}
		cumFrames += uint64(rn.lastFrame-rn.firstFrame) + 1
	}

	u.active = pendings
	u.linkedReadPos = 0
	defer func() { u.active = nil }()

	for _, rn := range runs {
		for frameIdx := rn.firstFrame; frameIdx <= rn.lastFrame; frameIdx++ {
			packet, err := u.readPacket(frameIdx)
			if err != nil {
				return err
			}
			if err := u.driver.Feed(int(frameIdx), packet); err != nil {
				return err
			}
		}
	}

	for _, p := range pendings {
		if p.written != u.blockVol {
			return fmt.Errorf("%w: block %s received %d of %d bytes", apperr.Corruption, p.req.Idx, p.written, u.blockVol)
		}
	}
	return nil
}

// UnarchiveTo is a single-block convenience: dst must be exactly
// BlockSize^3 bytes. Returns the total bytes delivered, always
// BlockSize^3 on success.
func (u *Unarchiver) UnarchiveTo(idx geometry.Idx, dst []byte) (int64, error) {
	if err := u.Unarchive([]Request{{Idx: idx, Dst: dst}}); err != nil {
		return 0, err
	}
	return u.blockVol, nil
}

// run is a maximal group of requested blocks whose frame ranges overlap,
// decoded as one contiguous sweep of frames.
type run struct {
	firstFrame uint32
	lastFrame  uint32
	items      []*pendingBlock
}

func planRuns(sorted []*pendingBlock) []*run {
	var runs []*run
	for _, p := range sorted {
		if len(runs) == 0 || p.entry.FirstFrame > runs[len(runs)-1].lastFrame {
			runs = append(runs, &run{firstFrame: p.entry.FirstFrame, lastFrame: p.entry.LastFrame})
		} else if p.entry.LastFrame > runs[len(runs)-1].lastFrame {
			runs[len(runs)-1].lastFrame = p.entry.LastFrame
		}
		runs[len(runs)-1].items = append(runs[len(runs)-1].items, p)
	}
	return runs
}

// onPacket is the DecoderDriver consumer callback: the scatter loop that
// distributes the just-decoded frame's bytes across every pending block
// whose linked-stream window intersects this frame.
func (u *Unarchiver) onPacket(pkt *decoderdriver.VoxelStreamPacket) error {
	packetBase := u.linkedReadPos
	packetLen := int64(pkt.Len())

	for _, p := range u.active {
		lo := int64(p.linkedOffset)
		hi := lo + u.blockVol
		if hi <= int64(packetBase) || lo >= int64(packetBase)+packetLen {
			continue
		}
		start := lo
		if int64(packetBase) > start {
			start = int64(packetBase)
		}
		end := hi
		if int64(packetBase)+packetLen < end {
			end = int64(packetBase) + packetLen
		}
		n := end - start
		inPacketOffset := start - int64(packetBase)
		dstOffset := start - lo

		dst := decoderdriver.HostDestination{Buf: p.req.Dst}
		if err := pkt.CopyAsync(dst, dstOffset, inPacketOffset, n); err != nil {
			return err
		}
		p.written += n
	}
	u.linkedReadPos += uint64(packetLen)
	return nil
}

// readPacket reads frame frameIdx's length-prefixed packet out of the
// encoded body.
func (u *Unarchiver) readPacket(frameIdx uint32) ([]byte, error) {
	offsets := u.trailer.FrameOffsets
	if int(frameIdx)+1 >= len(offsets) {
		return nil, fmt.Errorf("%w: frame %d out of range (%d frames)", apperr.Corruption, frameIdx, len(offsets)-1)
	}
	absOff := container.HeaderSize + int64(offsets[frameIdx])

	var lenBuf [4]byte
	if _, err := u.f.ReadAt(lenBuf[:], absOff); err != nil {
		return nil, fmt.Errorf("%w: reading frame %d length prefix: %v", apperr.IoError, frameIdx, err)
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])

	packet := make([]byte, length)
	if _, err := u.f.ReadAt(packet, absOff+4); err != nil {
		return nil, fmt.Errorf("%w: reading frame %d body: %v", apperr.IoError, frameIdx, err)
	}
	return packet, nil
}
