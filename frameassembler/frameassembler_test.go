package frameassembler

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOT-REAL-GAMES/volcine/codec"
	"github.com/NOT-REAL-GAMES/volcine/internal/ioutil"
)

// passthroughEncoder "encodes" a frame as its own planar bytes, so tests
// can assert on exact byte placement without depending on a real codec.
type passthroughEncoder struct{ width, height int }

func (e *passthroughEncoder) Encode(f *codec.Frame) ([]byte, error) {
	buf := make([]byte, codec.Size(e.width, e.height))
	f.ToPlanar(buf)
	return buf, nil
}
func (e *passthroughEncoder) Close() error { return nil }

func TestAcceptComputesBlockIndexBeforeEncoding(t *testing.T) {
	const w, h = 4, 4 // FrameSize = 4*4 + 2*(2*2) = 24
	var out bytes.Buffer
	fa := New(&out, w, h, &passthroughEncoder{w, h}, 1, nil)

	first := fa.Accept(ioutil.Owned(make([]byte, 10)))
	assert.Equal(t, uint32(0), first.FirstFrame)
	assert.Equal(t, uint32(0), first.InFrameOffset)
	assert.Equal(t, uint32(0), first.LastFrame)

	second := fa.Accept(ioutil.Owned(make([]byte, 20)))
	assert.Equal(t, uint32(0), second.FirstFrame)
	assert.Equal(t, uint32(10), second.InFrameOffset)
	assert.Equal(t, uint32(1), second.LastFrame) // spans into frame 1 (10+20=30 > 24)

	require.NoError(t, fa.Wait())

	offsets := fa.FrameOffsets()
	assert.Len(t, offsets, 2) // two frames' worth of bytes were emitted
	assert.Equal(t, int64(2*(4+int64(codec.Size(w, h)))), fa.BodyLength())
}

func TestWaitPadsFinalShortFrame(t *testing.T) {
	const w, h = 4, 4
	var out bytes.Buffer
	fa := New(&out, w, h, &passthroughEncoder{w, h}, 1, nil)

	fa.Accept(ioutil.Owned(make([]byte, 5)))
	require.NoError(t, fa.Wait())

	assert.Len(t, fa.FrameOffsets(), 1)
}

func TestWaitCalledTwiceErrors(t *testing.T) {
	const w, h = 4, 4
	var out bytes.Buffer
	fa := New(&out, w, h, &passthroughEncoder{w, h}, 1, nil)
	require.NoError(t, fa.Wait())
	assert.Error(t, fa.Wait())
}

func TestFlushPromotesBorrowedSources(t *testing.T) {
	const w, h = 4, 4
	var out bytes.Buffer
	fa := New(&out, w, h, &passthroughEncoder{w, h}, 1, nil)

	buf := []byte{1, 2, 3}
	fa.Accept(ioutil.Borrowed(buf))
	require.NoError(t, fa.Flush(false))
	buf[0] = 0xFF // mutate after flush: promoted copy must be unaffected

	require.NoError(t, fa.Wait())
	assert.Len(t, fa.FrameOffsets(), 1)
	// passthrough packet bytes follow the 4-byte length prefix
	assert.Equal(t, []byte{1, 2, 3}, out.Bytes()[4:7])
}
