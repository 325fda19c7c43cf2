package refcodec

import (
	"bytes"
	"fmt"

	"github.com/NOT-REAL-GAMES/volcine/codec"
)

// blockSize returns the transform block size for a Method: 8x8 for the
// H264 profile, 16x16 for the HEVC profile.
func blockSize(m codec.Method) int {
	if m == codec.MethodHEVC {
		return 16
	}
	return 8
}

// Quality selects a quantization parameter in HEVC's conventional [0,51]
// QP range; lower is higher fidelity. 26 is a mid-range default.
type Quality int

const DefaultQuality Quality = 26

// Encoder is volcine's reference codec.Encoder: per-plane, per-block
// forward DCT + quantization + diagonal-scan residual packing.
type Encoder struct {
	width, height int
	method        codec.Method
	n             int
	qp            int
	mat           [][]int32
	scanOrder     [][2]int
}

// NewEncoder builds a reference encoder for frames of the given dimensions.
func NewEncoder(width, height int, method codec.Method, quality Quality) (*Encoder, error) {
	n := blockSize(method)
	if width%n != 0 || height%n != 0 || (width/2)%n != 0 || (height/2)%n != 0 {
		return nil, fmt.Errorf("refcodec: frame %dx%d not a multiple of block size %d on all planes", width, height, n)
	}
	return &Encoder{
		width:     width,
		height:    height,
		method:    method,
		n:         n,
		qp:        int(quality),
		mat:       buildDCTMatrix(n),
		scanOrder: diagonalScan(n),
	}, nil
}

func (e *Encoder) Close() error { return nil }

// Encode implements codec.Encoder.
func (e *Encoder) Encode(frame *codec.Frame) ([]byte, error) {
	if frame.Width != e.width || frame.Height != e.height {
		return nil, fmt.Errorf("refcodec: frame %dx%d does not match encoder %dx%d", frame.Width, frame.Height, e.width, e.height)
	}
	var buf bytes.Buffer
	buf.WriteByte(byte(e.qp))

	e.encodePlane(&buf, frame.Y, e.width, e.height)
	e.encodePlane(&buf, frame.U, e.width/2, e.height/2)
	e.encodePlane(&buf, frame.V, e.width/2, e.height/2)

	return buf.Bytes(), nil
}

func (e *Encoder) encodePlane(buf *bytes.Buffer, plane []byte, w, h int) {
	n := e.n
	block := make([][]int32, n)
	for i := range block {
		block[i] = make([]int32, n)
	}
	for by := 0; by < h; by += n {
		for bx := 0; bx < w; bx += n {
			for i := 0; i < n; i++ {
				row := (by+i)*w + bx
				for j := 0; j < n; j++ {
					// Level-shift unsigned [0,255] samples to signed
					// [-128,127], the usual DCT input range.
					block[i][j] = int32(plane[row+j]) - 128
				}
			}
			coeff := forwardDCT(block, e.mat)
			q := quantize(coeff, e.qp)
			packBlock(buf, scanCoeffs(q, e.scanOrder))
		}
	}
}

// Decoder is volcine's reference codec.Decoder, the exact inverse of
// Encoder.
type Decoder struct {
	width, height int
	n             int
	mat           [][]int32
	scanOrder     [][2]int
}

// NewDecoder builds a reference decoder for frames of the given dimensions.
// method must match the Encoder's, the same way a real codec's sequence
// header fixes the decoder's block partitioning.
func NewDecoder(width, height int, method codec.Method) (*Decoder, error) {
	n := blockSize(method)
	if width%n != 0 || height%n != 0 || (width/2)%n != 0 || (height/2)%n != 0 {
		return nil, fmt.Errorf("refcodec: frame %dx%d not a multiple of block size %d on all planes", width, height, n)
	}
	return &Decoder{
		width:     width,
		height:    height,
		n:         n,
		mat:       buildDCTMatrix(n),
		scanOrder: diagonalScan(n),
	}, nil
}

func (d *Decoder) Close() error { return nil }

// Decode implements codec.Decoder.
func (d *Decoder) Decode(packet []byte) ([]byte, error) {
	if len(packet) == 0 {
		return nil, fmt.Errorf("refcodec: empty packet")
	}
	qp := int(packet[0])
	r := bytes.NewReader(packet[1:])

	out := make([]byte, codec.Size(d.width, d.height))
	ySize := d.width * d.height
	cSize := (d.width / 2) * (d.height / 2)

	if err := d.decodePlane(r, out[:ySize], d.width, d.height, qp); err != nil {
		return nil, err
	}
	if err := d.decodePlane(r, out[ySize:ySize+cSize], d.width/2, d.height/2, qp); err != nil {
		return nil, err
	}
	if err := d.decodePlane(r, out[ySize+cSize:ySize+2*cSize], d.width/2, d.height/2, qp); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Decoder) decodePlane(r *bytes.Reader, plane []byte, w, h, qp int) error {
	n := d.n
	for by := 0; by < h; by += n {
		for bx := 0; bx < w; bx += n {
			coeffs, err := unpackBlock(r, n)
			if err != nil {
				return err
			}
			block := unscanCoeffs(coeffs, d.scanOrder, n)
			deq := dequantize(block, qp)
			samples := inverseDCT(deq, d.mat)
			for i := 0; i < n; i++ {
				row := (by+i)*w + bx
				for j := 0; j < n; j++ {
					v := samples[i][j] + 128
					if v < 0 {
						v = 0
					} else if v > 255 {
						v = 255
					}
					plane[row+j] = byte(v)
				}
			}
		}
	}
	return nil
}
