// Package refcodec is volcine's reference codec.Encoder/codec.Decoder
// pair: a small, genuinely lossy DCT-quantization coder over 4:2:0 planes,
// grounded on the integer transform and quantization tables from
// ffmpeggo/avcodec/dct.go. It intentionally does not port that file's
// CABAC entropy coder: codec.Encoder/codec.Decoder is a narrow opaque
// interface, not a bitstream-conformance target, so residual coefficients
// are packed with a plain byte-oriented scheme instead (see pack.go).
package refcodec

import "math"

// buildDCTMatrix generates the NxN scaled integer DCT-II basis matrix the
// same way ffmpeggo/avcodec/dct.go generates its 16x16 and 32x32 matrices
// (dct.go's init() uses this exact cosine formula for sizes it doesn't hand
// -write), generalized here to serve both of our block sizes (8 for
// MethodH264, 16 for MethodHEVC) from one function.
func buildDCTMatrix(n int) [][]int32 {
	m := make([][]int32, n)
	for i := 0; i < n; i++ {
		m[i] = make([]int32, n)
		for j := 0; j < n; j++ {
			if i == 0 {
				m[i][j] = 64
				continue
			}
			m[i][j] = int32(math.Round(64 * math.Cos(float64(i)*math.Pi*(2*float64(j)+1)/float64(2*n))))
		}
	}
	return m
}

// forwardDCT applies the separable two-pass transform ffmpeggo's DCT8x8
// uses (horizontal pass, then vertical pass scaled down by 2^12), widened
// to int64 accumulators so it's safe for the 16x16 case too.
func forwardDCT(block [][]int32, mat [][]int32) [][]int32 {
	n := len(mat)
	tmp := make([][]int64, n)
	for i := range tmp {
		tmp[i] = make([]int64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum int64
			for k := 0; k < n; k++ {
				sum += int64(mat[j][k]) * int64(block[i][k])
			}
			tmp[i][j] = sum
		}
	}
	out := make([][]int32, n)
	for i := 0; i < n; i++ {
		out[i] = make([]int32, n)
		for j := 0; j < n; j++ {
			var sum int64
			for k := 0; k < n; k++ {
				sum += int64(mat[i][k]) * tmp[k][j]
			}
			out[i][j] = int32((sum + 2048) >> 12)
		}
	}
	return out
}

// inverseDCT undoes forwardDCT. The forward basis is orthogonal up to the
// shared scale factor, so the inverse two-pass transform uses the
// transposed matrix in place of a separately derived one.
func inverseDCT(coeff [][]int32, mat [][]int32) [][]int32 {
	n := len(mat)
	tmp := make([][]int64, n)
	for i := range tmp {
		tmp[i] = make([]int64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum int64
			for k := 0; k < n; k++ {
				sum += int64(mat[k][i]) * int64(coeff[k][j])
			}
			tmp[i][j] = sum
		}
	}
	out := make([][]int32, n)
	// Forward applied two passes of gain 64 each, shifted right by 12
	// (4096) once; the inverse must undo both passes' gain (64*64=4096)
	// without the forward's shift, hence the larger final shift here.
	const shift = 24
	for i := 0; i < n; i++ {
		out[i] = make([]int32, n)
		for j := 0; j < n; j++ {
			var sum int64
			for k := 0; k < n; k++ {
				sum += int64(mat[k][j]) * tmp[i][k]
			}
			out[i][j] = int32((sum + (1 << (shift - 1))) >> shift)
		}
	}
	return out
}

// Quantization scale tables, verbatim from ffmpeggo/avcodec/dct.go's HEVC
// table 8-4 values (indexed by qp%6).
var quantScaleFactors = [6]int32{26214, 23302, 20560, 18396, 16384, 14564}
var dequantScaleFactors = [6]int32{40, 45, 51, 57, 64, 72}

// quantize matches ffmpeggo's Quantize8x8 shape, generalized to any block
// size (the scale/shift formula does not depend on N).
func quantize(block [][]int32, qp int) [][]int32 {
	n := len(block)
	qpDiv6, qpMod6 := qp/6, qp%6
	scale := quantScaleFactors[qpMod6]
	shift := uint(14 + qpDiv6)

	out := make([][]int32, n)
	for i := 0; i < n; i++ {
		out[i] = make([]int32, n)
		for j := 0; j < n; j++ {
			coeff := block[i][j]
			sign := int32(1)
			if coeff < 0 {
				sign = -1
				coeff = -coeff
			}
			out[i][j] = sign * ((coeff*scale + (1 << (shift - 1))) >> shift)
		}
	}
	return out
}

// dequantize matches ffmpeggo's Dequantize4x4 shape, generalized to any N.
func dequantize(block [][]int32, qp int) [][]int32 {
	n := len(block)
	qpDiv6, qpMod6 := qp/6, qp%6
	scale := dequantScaleFactors[qpMod6]

	out := make([][]int32, n)
	for i := 0; i < n; i++ {
		out[i] = make([]int32, n)
		for j := 0; j < n; j++ {
			v := (block[i][j] * scale) << uint(qpDiv6)
			if v < -32768 {
				v = -32768
			} else if v > 32767 {
				v = 32767
			}
			out[i][j] = v
		}
	}
	return out
}
