package tap

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agalue/patchbay/internal/hostaudio"
)

type fakeStream struct {
	started, stopped bool
}

func (s *fakeStream) Start() error { s.started = true; return nil }
func (s *fakeStream) Stop() error  { s.stopped = true; return nil }

type fakeAPI struct {
	input    *fakeStream
	captured hostaudio.InputCallback
	openErr  error
}

func (a *fakeAPI) ListDevices() ([]hostaudio.Device, error) { return nil, nil }
func (a *fakeAPI) DefaultDevices() (string, string, error)  { return "", "", nil }
func (a *fakeAPI) OpenInputStream(cfg hostaudio.StreamConfig, onData hostaudio.InputCallback) (hostaudio.Stream, error) {
	if a.openErr != nil {
		return nil, a.openErr
	}
	a.captured = onData
	a.input = &fakeStream{}
	return a.input, nil
}
func (a *fakeAPI) OpenOutputStream(hostaudio.StreamConfig, hostaudio.OutputCallback) (hostaudio.Stream, error) {
	panic("not used")
}
func (a *fakeAPI) Close() error { return nil }

func interleavedF32(frames, channels int, gen func(frame, ch int) float32) []byte {
	buf := make([]byte, frames*channels*4)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 4
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(gen(i, c)))
		}
	}
	return buf
}

func TestTapStartWritesDeinterleavedFramesIntoRing(t *testing.T) {
	api := &fakeAPI{}
	tp := New(api, "IN1", 2, 48000, 256)

	require.NoError(t, tp.Start())
	require.True(t, api.input.started)
	require.NotNil(t, api.captured)

	raw := interleavedF32(4, 2, func(frame, ch int) float32 {
		if ch == 0 {
			return float32(frame + 1)
		}
		return -float32(frame + 1)
	})

	api.captured(raw, 4)

	tp.Ring.RegisterReader("probe")
	w := tp.Ring.BeginRead("probe", 4)
	require.Equal(t, 4, w.Frames)

	left := make([]float32, 4)
	right := make([]float32, 4)
	tp.Ring.ReadChannel(w.Start, w.Frames, 0, left)
	tp.Ring.ReadChannel(w.Start, w.Frames, 1, right)
	require.Equal(t, []float32{1, 2, 3, 4}, left)
	require.Equal(t, []float32{-1, -2, -3, -4}, right)
}

func TestTapScratchGrowsToHighWaterMark(t *testing.T) {
	api := &fakeAPI{}
	tp := New(api, "IN1", 1, 48000, 256)
	require.NoError(t, tp.Start())

	api.captured(interleavedF32(8, 1, func(f, c int) float32 { return float32(f) }), 8)
	require.Len(t, tp.scratch[0], 8)

	api.captured(interleavedF32(3, 1, func(f, c int) float32 { return float32(f) }), 3)
	require.Len(t, tp.scratch[0], 8) // does not shrink back down
}

func TestTapStopDisposesStream(t *testing.T) {
	api := &fakeAPI{}
	tp := New(api, "IN1", 1, 48000, 256)
	require.NoError(t, tp.Start())
	require.NoError(t, tp.Stop())
	require.True(t, api.input.stopped)
}

func TestRingCapacityFloor(t *testing.T) {
	api := &fakeAPI{}
	tp := New(api, "IN1", 1, 48000, 64) // 8*64=512 < 1024
	require.EqualValues(t, 1024, tp.Ring.Capacity())
}
