// Package apperr defines the sentinel error taxonomy shared by every
// volcine component. Callers should compare with errors.Is, never string
// matching; every detection site wraps one of these with fmt.Errorf("%w").
package apperr

import "errors"

var (
	// IoError wraps a read/write/seek failure. Fatal for the owning operation.
	IoError = errors.New("volcine: io error")

	// Corruption signals a header/trailer inconsistency, a monotonicity
	// violation, or a truncated frame. Fatal for the owning operation.
	Corruption = errors.New("volcine: corruption")

	// UnknownBlock signals a requested Idx absent from the block index.
	// Per-request; the Unarchiver remains usable afterwards.
	UnknownBlock = errors.New("volcine: unknown block")

	// UnsupportedStream signals a codec sequence header describing a
	// configuration the decoder cannot handle.
	UnsupportedStream = errors.New("volcine: unsupported stream")

	// CodecFailure is an opaque failure surfaced by the encoder/decoder
	// collaborator.
	CodecFailure = errors.New("volcine: codec failure")

	// InsufficientBuffer signals the destination view is too small for the
	// requested slice. Per-request; the Unarchiver remains usable afterwards.
	InsufficientBuffer = errors.New("volcine: insufficient buffer")

	// InsufficientMemory signals the memory budget is below one block-pair.
	InsufficientMemory = errors.New("volcine: insufficient memory")

	// InvalidConfig signals padding outside {0,1,2}, log_block_size outside
	// [5,14], or a zero dimension.
	InvalidConfig = errors.New("volcine: invalid config")
)
