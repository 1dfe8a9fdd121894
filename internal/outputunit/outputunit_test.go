package outputunit

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
	output   *fakeStream
	captured hostaudio.OutputCallback
}

func (a *fakeAPI) ListDevices() ([]hostaudio.Device, error) { return nil, nil }
func (a *fakeAPI) DefaultDevices() (string, string, error)  { return "", "", nil }
func (a *fakeAPI) OpenInputStream(hostaudio.StreamConfig, hostaudio.InputCallback) (hostaudio.Stream, error) {
	panic("not used")
}
func (a *fakeAPI) OpenOutputStream(cfg hostaudio.StreamConfig, onRender hostaudio.OutputCallback) (hostaudio.Stream, error) {
	a.captured = onRender
	a.output = &fakeStream{}
	return a.output, nil
}
func (a *fakeAPI) Close() error { return nil }

type fakeRenderer struct {
	calledUID    string
	calledFrames int
	fill         float32
}

func (r *fakeRenderer) RenderOutput(uid string, buffers [][]float32, frames int) {
	r.calledUID = uid
	r.calledFrames = frames
	for c := range buffers {
		for i := 0; i < frames; i++ {
			buffers[c][i] = r.fill
		}
	}
}

func readInterleavedF32(raw []byte, frames, channels int) [][]float32 {
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 4
			out[c][i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off:]))
		}
	}
	return out
}

func TestOutputUnitDelegatesToRendererAndInterleaves(t *testing.T) {
	api := &fakeAPI{}
	renderer := &fakeRenderer{fill: 0.25}
	u := New(api, renderer, "OUT1", 2, 48000, 128)

	require.NoError(t, u.Start())
	require.True(t, api.output.started)

	raw := make([]byte, 4*2*4)
	api.captured(raw, 4)

	require.Equal(t, "OUT1", renderer.calledUID)
	require.Equal(t, 4, renderer.calledFrames)

	got := readInterleavedF32(raw, 4, 2)
	for c := range got {
		for _, v := range got[c] {
			require.InDelta(t, 0.25, v, 1e-9)
		}
	}
}

func TestOutputUnitStop(t *testing.T) {
	api := &fakeAPI{}
	u := New(api, &fakeRenderer{}, "OUT1", 2, 48000, 128)
	require.NoError(t, u.Start())
	require.NoError(t, u.Stop())
	require.True(t, api.output.stopped)
}
