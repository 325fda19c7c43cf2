// Command volcine-archive converts a flat raw volume file into a sealed
// volcine archive.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/NOT-REAL-GAMES/volcine/archiver"
	"github.com/NOT-REAL-GAMES/volcine/codec"
	"github.com/NOT-REAL-GAMES/volcine/codec/refcodec"
	"github.com/NOT-REAL-GAMES/volcine/internal/geometry"
	"github.com/NOT-REAL-GAMES/volcine/internal/logging"
	"github.com/NOT-REAL-GAMES/volcine/rawsource"
)

type flags struct {
	input    string
	output   string
	x, y, z  uint32
	side     uint64
	padding  uint64
	memlimit float64
	device   string
	codecStr string
}

func main() {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "volcine-archive",
		Short: "Archive a raw voxel volume into a block-indexed video container",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}

	cmd.Flags().StringVar(&f.input, "input", "", "path to the flat raw volume file")
	cmd.Flags().StringVar(&f.output, "output", "", "path to write the sealed archive to")
	cmd.Flags().Uint32Var(&f.x, "x", 0, "raw volume width in voxels")
	cmd.Flags().Uint32Var(&f.y, "y", 0, "raw volume height in voxels")
	cmd.Flags().Uint32Var(&f.z, "z", 0, "raw volume depth in voxels")
	cmd.Flags().Uint64Var(&f.side, "side", 7, "log2 block size (5..14)")
	cmd.Flags().Uint64Var(&f.padding, "padding", 1, "block padding (0, 1, or 2)")
	cmd.Flags().Float64Var(&f.memlimit, "memlimit", 1.0, "soft memory budget in GiB")
	cmd.Flags().StringVar(&f.device, "device", "default", "target device (default|cuda|cpu); informational only, volcine's reference codec is CPU-only")
	cmd.Flags().StringVar(&f.codecStr, "codec", "h264", "reference codec profile (h264|hevc)")

	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("output")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f *flags) error {
	log := logging.New("volcine-archive")

	rawDim := geometry.Idx{X: f.x, Y: f.y, Z: f.z}
	cfg, err := geometry.NewConfig(rawDim, f.side, f.padding)
	if err != nil {
		return err
	}

	var method geometry.EncodeMethod
	switch f.codecStr {
	case "h264":
		method = geometry.MethodH264
	case "hevc":
		method = geometry.MethodHEVC
	default:
		return fmt.Errorf("volcine-archive: unrecognized --codec %q (want h264 or hevc)", f.codecStr)
	}
	if f.device != "default" {
		log.WithField("device", f.device).Warn("--device is informational only; the reference codec always runs on CPU")
	}

	source, err := rawsource.Open(f.input, rawDim)
	if err != nil {
		return err
	}
	defer source.Close()

	opts := archiver.Options{
		Method:        method,
		Quality:       refcodec.DefaultQuality,
		MemLimitBytes: int64(f.memlimit * (1 << 30)),
		BatchFrames:   4,
	}
	a, err := archiver.New(f.output, source, cfg, opts, log)
	if err != nil {
		return err
	}

	log.WithField("grid_dim", cfg.GridDim).
		WithField("block_size", cfg.BlockSize).
		WithField("codec", codec.Method(method)).
		Info("archiving")

	return a.Convert(ctx)
}
