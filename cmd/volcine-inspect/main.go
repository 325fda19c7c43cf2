// Command volcine-inspect prints an archive's header/trailer summary and
// optionally checks it against expected dimensions. Exit codes: 0 ok,
// 1 cannot open, 2 header mismatch.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/NOT-REAL-GAMES/volcine/container"
)

const (
	exitOK             = 0
	exitCannotOpen     = 1
	exitHeaderMismatch = 2
)

type flags struct {
	input          string
	x, y, z        uint32
	side, padding  uint64
	checkX         bool
	checkY         bool
	checkZ         bool
	checkSide      bool
	checkPadding   bool
}

func main() {
	f := &flags{}
	code := exitOK

	cmd := &cobra.Command{
		Use:   "volcine-inspect",
		Short: "Print and validate a volcine archive's header",
		PreRun: func(cmd *cobra.Command, args []string) {
			f.checkX = cmd.Flags().Changed("x")
			f.checkY = cmd.Flags().Changed("y")
			f.checkZ = cmd.Flags().Changed("z")
			f.checkSide = cmd.Flags().Changed("side")
			f.checkPadding = cmd.Flags().Changed("padding")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			code = run(f)
			return nil
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&f.input, "input", "", "path to the archive file")
	cmd.Flags().Uint32Var(&f.x, "x", 0, "expected raw volume width")
	cmd.Flags().Uint32Var(&f.y, "y", 0, "expected raw volume height")
	cmd.Flags().Uint32Var(&f.z, "z", 0, "expected raw volume depth")
	cmd.Flags().Uint64Var(&f.side, "side", 0, "expected log2 block size")
	cmd.Flags().Uint64Var(&f.padding, "padding", 0, "expected padding")
	cmd.MarkFlagRequired("input")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCannotOpen)
	}
	os.Exit(code)
}

func run(f *flags) int {
	file, err := os.Open(f.input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "volcine-inspect: cannot open %s: %v\n", f.input, err)
		return exitCannotOpen
	}
	defer file.Close()

	header, err := container.ReadHeader(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "volcine-inspect: reading header: %v\n", err)
		return exitCannotOpen
	}

	fmt.Printf("raw_dim=%s grid_dim=%s adjusted_dim=%s block_size=%d padding=%d method=%d frame_size=%d chroma=%d\n",
		header.RawDim, header.GridDim, header.AdjustedDim, header.BlockSize, header.Padding,
		header.EncodeMethod, header.FrameSize, header.ChromaFormat)

	mismatch := false
	if f.checkX && header.RawDim.X != f.x {
		fmt.Fprintf(os.Stderr, "volcine-inspect: raw_dim.x %d != expected %d\n", header.RawDim.X, f.x)
		mismatch = true
	}
	if f.checkY && header.RawDim.Y != f.y {
		fmt.Fprintf(os.Stderr, "volcine-inspect: raw_dim.y %d != expected %d\n", header.RawDim.Y, f.y)
		mismatch = true
	}
	if f.checkZ && header.RawDim.Z != f.z {
		fmt.Fprintf(os.Stderr, "volcine-inspect: raw_dim.z %d != expected %d\n", header.RawDim.Z, f.z)
		mismatch = true
	}
	if f.checkSide && header.LogBlockSize != f.side {
		fmt.Fprintf(os.Stderr, "volcine-inspect: log_block_size %d != expected %d\n", header.LogBlockSize, f.side)
		mismatch = true
	}
	if f.checkPadding && header.Padding != f.padding {
		fmt.Fprintf(os.Stderr, "volcine-inspect: padding %d != expected %d\n", header.Padding, f.padding)
		mismatch = true
	}
	if mismatch {
		return exitHeaderMismatch
	}
	return exitOK
}
