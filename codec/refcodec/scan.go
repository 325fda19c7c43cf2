package refcodec

// diagonalScan generalizes ffmpeggo/avcodec/dct.go's hand-written
// diagonalScan8x8 generator (alternating down-right / up-left diagonal
// sweeps) to arbitrary block size n, so both the 8x8 (MethodH264) and 16x16
// (MethodHEVC) profiles share one scan-order implementation.
func diagonalScan(n int) [][2]int {
	order := make([][2]int, 0, n*n)
	for diag := 0; diag < 2*n-1; diag++ {
		if diag%2 == 0 {
			for i := min(diag, n-1); i >= max(0, diag-(n-1)); i-- {
				order = append(order, [2]int{i, diag - i})
			}
		} else {
			for i := max(0, diag-(n-1)); i <= min(diag, n-1); i++ {
				order = append(order, [2]int{i, diag - i})
			}
		}
	}
	return order
}

// scanCoeffs reads block in diagonal order into a flat slice.
func scanCoeffs(block [][]int32, order [][2]int) []int32 {
	out := make([]int32, len(order))
	for i, pos := range order {
		out[i] = block[pos[0]][pos[1]]
	}
	return out
}

// unscanCoeffs is the inverse of scanCoeffs: lays a flat diagonal-order
// slice back into an n x n block.
func unscanCoeffs(coeffs []int32, order [][2]int, n int) [][]int32 {
	block := make([][]int32, n)
	for i := range block {
		block[i] = make([]int32, n)
	}
	for i, pos := range order {
		block[pos[0]][pos[1]] = coeffs[i]
	}
	return block
}
