// Package outputunit implements the Output Unit: the component that
// owns one hardware output stream and, on every hardware render
// callback, asks a Renderer to mix N frames of output for this
// device.
package outputunit

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/agalue/patchbay/internal/hostaudio"
)

// Renderer is the subset of the engine that an Output Unit calls into
// from its hardware callback. Implemented by *engine.Engine.
type Renderer interface {
	RenderOutput(outputUID string, buffers [][]float32, frames int)
}

// Unit owns one hardware output stream. It holds a plain (non-owning)
// reference to the engine so it never extends the engine's lifetime
// beyond Stop.
type Unit struct {
	DeviceUID  string
	Channels   int
	SampleRate int
	BufferSize int

	api      hostaudio.API
	renderer Renderer

	mu      sync.Mutex
	stream  hostaudio.Stream
	scratch [][]float32
}

// New creates a Unit that will delegate every render callback to
// renderer.RenderOutput(deviceUID, ...).
func New(api hostaudio.API, renderer Renderer, deviceUID string, channels, sampleRate, bufferFrames int) *Unit {
	return &Unit{
		DeviceUID:  deviceUID,
		Channels:   channels,
		SampleRate: sampleRate,
		BufferSize: bufferFrames,
		api:        api,
		renderer:   renderer,
	}
}

// Start opens the hardware output stream, non-interleaved 32-bit
// float, at the unit's configured sample rate and buffer size.
func (u *Unit) Start() error {
	cfg := hostaudio.StreamConfig{
		DeviceUID:    u.DeviceUID,
		Channels:     u.Channels,
		SampleRate:   u.SampleRate,
		BufferFrames: u.BufferSize,
	}

	stream, err := u.api.OpenOutputStream(cfg, u.onRender)
	if err != nil {
		return fmt.Errorf("outputunit %s: open output stream: %w", u.DeviceUID, err)
	}

	u.mu.Lock()
	u.stream = stream
	u.mu.Unlock()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("outputunit %s: start output stream: %w", u.DeviceUID, err)
	}
	return nil
}

// onRender is the hardware render callback: it asks the engine to mix
// frames samples per channel into scratch buffers, then interleaves
// them into raw.
func (u *Unit) onRender(raw []byte, frames int) {
	u.ensureScratch(frames)
	u.renderer.RenderOutput(u.DeviceUID, u.scratch, frames)
	interleaveF32(u.scratch, u.Channels, frames, raw)
}

func (u *Unit) ensureScratch(frames int) {
	if u.scratch != nil && len(u.scratch[0]) >= frames {
		return
	}
	grown := make([][]float32, u.Channels)
	for c := range grown {
		grown[c] = make([]float32, frames)
	}
	u.scratch = grown
}

// interleaveF32 writes channels slices of length frames (each sliced
// from src) into dst as little-endian interleaved 32-bit floats.
func interleaveF32(src [][]float32, channels, frames int, dst []byte) {
	for i := 0; i < frames; i++ {
		base := i * channels * 4
		for c := 0; c < channels; c++ {
			binary.LittleEndian.PutUint32(dst[base+c*4:], math.Float32bits(src[c][i]))
		}
	}
}

// Stop stops, uninitializes, and disposes the hardware stream. After
// Stop returns, no further render callbacks for this unit will occur.
func (u *Unit) Stop() error {
	u.mu.Lock()
	stream := u.stream
	u.stream = nil
	u.mu.Unlock()

	if stream == nil {
		return nil
	}
	if err := stream.Stop(); err != nil {
		return fmt.Errorf("outputunit %s: stop output stream: %w", u.DeviceUID, err)
	}
	return nil
}
