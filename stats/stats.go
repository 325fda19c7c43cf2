// Package stats is an optional QA collaborator: given decoded block
// bytes and an optional reference copy of the original bytes, compute
// basic per-block statistics for regression checking lossy-codec round
// trips.
package stats

import (
	"fmt"

	"github.com/NOT-REAL-GAMES/volcine/internal/geometry"
	"github.com/NOT-REAL-GAMES/volcine/unarchiver"
)

// Summary holds avg/min/max over one byte slice.
type Summary struct {
	Avg float64
	Min byte
	Max byte
}

func summarize(buf []byte) Summary {
	if len(buf) == 0 {
		return Summary{}
	}
	s := Summary{Min: 255, Max: 0}
	var sum float64
	for _, b := range buf {
		sum += float64(b)
		if b < s.Min {
			s.Min = b
		}
		if b > s.Max {
			s.Max = b
		}
	}
	s.Avg = sum / float64(len(buf))
	return s
}

// BlockReport is the statistics computed for one block.
type BlockReport struct {
	Decoded Summary

	// Original and Diff are populated only when a reference buffer was
	// supplied.
	HasReference bool
	Original     Summary
	Diff         Summary
}

// Compute decodes idx out of u and summarizes its bytes. If reference is
// non-nil it must be exactly BlockSize^3 bytes (the original, unencoded
// block), and the report also summarizes reference and the elementwise
// absolute difference between decoded and reference.
func Compute(u *unarchiver.Unarchiver, idx geometry.Idx, reference []byte) (BlockReport, error) {
	header := u.Header()
	blockVol := int64(header.BlockSize) * int64(header.BlockSize) * int64(header.BlockSize)

	decoded := make([]byte, blockVol)
	if _, err := u.UnarchiveTo(idx, decoded); err != nil {
		return BlockReport{}, err
	}

	report := BlockReport{Decoded: summarize(decoded)}
	if reference == nil {
		return report, nil
	}
	if int64(len(reference)) != blockVol {
		return BlockReport{}, fmt.Errorf("stats: reference for block %s is %d bytes, want %d", idx, len(reference), blockVol)
	}

	diff := make([]byte, blockVol)
	for i := range diff {
		d := int(decoded[i]) - int(reference[i])
		if d < 0 {
			d = -d
		}
		diff[i] = byte(d)
	}

	report.HasReference = true
	report.Original = summarize(reference)
	report.Diff = summarize(diff)
	return report, nil
}
