package refcodec

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Residual coefficient stream tokens. This replaces ffmpeggo's CABAC
// entropy coder (avcodec/cabac.go, avcodec/residual.go) with a plain
// byte-oriented run-length scheme: codec.Encoder/codec.Decoder is a narrow
// opaque collaborator, not a bitstream-conformance target, so there is no
// requirement to reproduce HEVC's binary arithmetic coding here.
const (
	tokenEOB  = 0x00 // no more nonzero coefficients in this block
	tokenRun  = 0x01 // followed by uvarint(run length) of zero coefficients
	tokenCoef = 0x02 // followed by zigzag varint(value), one nonzero coefficient
)

// packBlock writes one diagonally-scanned coefficient block as a token
// stream: runs of zeros are collapsed, trailing zeros are replaced by a
// single EOB token.
func packBlock(buf *bytes.Buffer, coeffs []int32) {
	n := len(coeffs)
	lastNonZero := -1
	for i := n - 1; i >= 0; i-- {
		if coeffs[i] != 0 {
			lastNonZero = i
			break
		}
	}

	i := 0
	var varintBuf [binary.MaxVarintLen64]byte
	for i <= lastNonZero {
		if coeffs[i] == 0 {
			run := 0
			for i+run <= lastNonZero && coeffs[i+run] == 0 {
				run++
			}
			buf.WriteByte(tokenRun)
			n := binary.PutUvarint(varintBuf[:], uint64(run))
			buf.Write(varintBuf[:n])
			i += run
			continue
		}
		buf.WriteByte(tokenCoef)
		zz := zigzagEncode(coeffs[i])
		n := binary.PutUvarint(varintBuf[:], zz)
		buf.Write(varintBuf[:n])
		i++
	}
	buf.WriteByte(tokenEOB)
}

// unpackBlock is the inverse of packBlock, reading exactly one block's
// worth of diagonal-order coefficients (length n*n) from r.
func unpackBlock(r *bytes.Reader, n int) ([]int32, error) {
	coeffs := make([]int32, n*n)
	i := 0
	for {
		tok, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("refcodec: truncated residual stream: %w", err)
		}
		switch tok {
		case tokenEOB:
			return coeffs, nil
		case tokenRun:
			run, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, fmt.Errorf("refcodec: truncated run token: %w", err)
			}
			i += int(run)
			if i > len(coeffs) {
				return nil, fmt.Errorf("refcodec: run token overruns block")
			}
		case tokenCoef:
			zz, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, fmt.Errorf("refcodec: truncated coefficient token: %w", err)
			}
			if i >= len(coeffs) {
				return nil, fmt.Errorf("refcodec: coefficient token overruns block")
			}
			coeffs[i] = zigzagDecode(zz)
			i++
		default:
			return nil, fmt.Errorf("refcodec: unknown residual token 0x%02x", tok)
		}
	}
}

func zigzagEncode(v int32) uint64 {
	return uint64(uint32((v << 1) ^ (v >> 31)))
}

func zigzagDecode(v uint64) int32 {
	u := uint32(v)
	return int32(u>>1) ^ -int32(u&1)
}
