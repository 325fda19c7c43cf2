package archiver

import "github.com/NOT-REAL-GAMES/volcine/internal/geometry"

// plan is the memory-budgeted striding schedule derived once from a
// geometry.Config and a memory budget.
type plan struct {
	blocksInMem   uint64
	colsPerStride uint64
	rowsPerStride uint64
	strideReps    uint64
}

// newPlan derives a striding plan from cfg and a memory budget in bytes.
// Two BlockSize^3 scratch buffers (read and write) are required per
// in-flight block.
func newPlan(cfg geometry.Config, memLimitBytes int64) plan {
	var p plan
	if memLimitBytes > 0 {
		p.blocksInMem = uint64(memLimitBytes) / (2 * cfg.BlockVolume())
	}
	gx, gy := uint64(cfg.GridDim.X), uint64(cfg.GridDim.Y)
	if p.blocksInMem >= gx {
		p.colsPerStride = gx
		p.rowsPerStride = p.blocksInMem / gx
		if p.rowsPerStride > gy {
			p.rowsPerStride = gy
		}
		p.strideReps = 1
	} else {
		p.rowsPerStride = 1
		p.colsPerStride = p.blocksInMem
		p.strideReps = ceilDivU64(gx, p.blocksInMem)
	}
	return p
}

// totalStrides returns the number of (z_grid, y_iter, x_rep) iterations
// the plan drives over cfg's grid.
func (p plan) totalStrides(cfg geometry.Config) uint64 {
	gy := uint64(cfg.GridDim.Y)
	return ceilDivU64(gy, p.rowsPerStride) * p.strideReps * uint64(cfg.GridDim.Z)
}

func ceilDivU64(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// stride identifies one (z_grid, y_iter, x_rep) iteration of the striding
// schedule, plus the block span it actually covers (clamped at the
// grid's far edges, since the last stride along an axis is often
// shorter than colsPerStride/rowsPerStride).
type stride struct {
	zGrid uint32
	yIter uint32
	xRep  uint32

	strideCols uint32
	strideRows uint32
}

// strides enumerates every stride the plan drives over cfg's grid, in
// strict (z outer, y, x) order — the order blocks must arrive at the
// FrameAssembler in.
func strides(cfg geometry.Config, p plan) []stride {
	var out []stride
	gx, gy, gz := cfg.GridDim.X, cfg.GridDim.Y, cfg.GridDim.Z
	for z := uint32(0); z < gz; z++ {
		for yIter := uint32(0); uint64(yIter)*p.rowsPerStride < uint64(gy); yIter++ {
			rows := p.rowsPerStride
			if remaining := uint64(gy) - uint64(yIter)*p.rowsPerStride; remaining < rows {
				rows = remaining
			}
			for xRep := uint32(0); uint64(xRep) < p.strideReps; xRep++ {
				start := uint64(xRep) * p.colsPerStride
				if start >= uint64(gx) {
					continue
				}
				cols := p.colsPerStride
				if remaining := uint64(gx) - start; remaining < cols {
					cols = remaining
				}
				if cols == 0 || rows == 0 {
					continue
				}
				out = append(out, stride{
					zGrid: z, yIter: yIter, xRep: xRep,
					strideCols: uint32(cols), strideRows: uint32(rows),
				})
			}
		}
	}
	return out
}

// overflow records which of the stride's six padded-region faces were
// clamped against [0, RawDim).
type overflow struct {
	loX, hiX, loY, hiY, loZ, hiZ bool
}

func (o overflow) any() bool {
	return o.loX || o.hiX || o.loY || o.hiY || o.loZ || o.hiZ
}

// region is the computed padded read region for one stride: the full
// padded footprint size, the sub-box of it that actually lies within
// [0,RawDim), and the shift needed to reposition that sub-box's data
// inside the full padded footprint once clamped.
type region struct {
	size [3]int64

	clampedOrigin [3]int64
	clampedSize   [3]int64

	shift [3]int64

	overflow overflow
}

// computeRegion derives the padded read region for stride s against cfg
// and the plan that produced it.
func computeRegion(cfg geometry.Config, p plan, s stride) region {
	pad := int64(cfg.Padding)
	bi := int64(cfg.BlockInner)

	origin := [3]int64{
		int64(s.xRep)*int64(p.colsPerStride)*bi - pad,
		int64(s.yIter)*int64(p.rowsPerStride)*bi - pad,
		int64(s.zGrid)*bi - pad,
	}
	size := [3]int64{
		int64(s.strideCols)*bi + 2*pad,
		int64(s.strideRows)*bi + 2*pad,
		bi + 2*pad,
	}
	rawDim := [3]int64{int64(cfg.RawDim.X), int64(cfg.RawDim.Y), int64(cfg.RawDim.Z)}

	r := region{size: size}
	var of [6]*bool
	of[0], of[1] = &r.overflow.loX, &r.overflow.hiX
	of[2], of[3] = &r.overflow.loY, &r.overflow.hiY
	of[4], of[5] = &r.overflow.loZ, &r.overflow.hiZ

	for axis := 0; axis < 3; axis++ {
		lo := origin[axis]
		hi := origin[axis] + size[axis]
		clo, chi := lo, hi
		if clo < 0 {
			*of[axis*2] = true
			clo = 0
		}
		if chi > rawDim[axis] {
			*of[axis*2+1] = true
			chi = rawDim[axis]
		}
		r.clampedOrigin[axis] = clo
		r.clampedSize[axis] = chi - clo
		r.shift[axis] = clo - lo
	}
	return r
}
