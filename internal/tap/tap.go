// Package tap implements the Input Tap: the component that owns one
// hardware input stream and feeds its captured frames into a ring
// buffer on every hardware callback.
package tap

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/agalue/patchbay/internal/hostaudio"
	"github.com/agalue/patchbay/internal/ring"
)

// minCapacityFrames is the floor on ring capacity regardless of
// buffer size, per spec.md §3 ("max(8 × bufferFrames, 1024)").
const minCapacityFrames = 1024

// Tap owns one hardware input stream and writes every captured period
// into its Ring. It carries no routing knowledge — it is a pipe.
type Tap struct {
	DeviceUID  string
	Channels   int
	SampleRate int
	BufferSize int

	Ring *ring.Buffer

	api     hostaudio.API
	mu      sync.Mutex
	stream  hostaudio.Stream
	scratch [][]float32 // deinterleaved scratch, grown on demand
}

// New creates a Tap. The ring buffer's capacity is
// max(8*bufferFrames, 1024) frames, per spec.
func New(api hostaudio.API, deviceUID string, channels, sampleRate, bufferFrames int) *Tap {
	capacity := bufferFrames * 8
	if capacity < minCapacityFrames {
		capacity = minCapacityFrames
	}
	return &Tap{
		DeviceUID:  deviceUID,
		Channels:   channels,
		SampleRate: sampleRate,
		BufferSize: bufferFrames,
		Ring:       ring.New(channels, capacity),
		api:        api,
	}
}

// Start opens the hardware input stream, interleaved 32-bit float, at
// the tap's configured sample rate and buffer size; each callback is
// deinterleaved into per-channel scratch buffers before it reaches the
// ring. The hardware
// callback never allocates on the steady-state path; the scratch
// buffer list only grows the first time a callback exceeds the
// current high-water mark.
func (t *Tap) Start() error {
	cfg := hostaudio.StreamConfig{
		DeviceUID:    t.DeviceUID,
		Channels:     t.Channels,
		SampleRate:   t.SampleRate,
		BufferFrames: t.BufferSize,
	}

	stream, err := t.api.OpenInputStream(cfg, t.onData)
	if err != nil {
		return fmt.Errorf("tap %s: open input stream: %w", t.DeviceUID, err)
	}

	t.mu.Lock()
	t.stream = stream
	t.mu.Unlock()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("tap %s: start input stream: %w", t.DeviceUID, err)
	}
	return nil
}

// onData is the hardware callback: it deinterleaves raw into the
// tap's scratch buffers and writes them into Ring.
func (t *Tap) onData(raw []byte, frames int) {
	t.ensureScratch(frames)
	deinterleaveF32(raw, t.Channels, frames, t.scratch)
	t.Ring.Write(t.scratch, frames)
}

func (t *Tap) ensureScratch(frames int) {
	if t.scratch != nil && len(t.scratch[0]) >= frames {
		return
	}
	grown := make([][]float32, t.Channels)
	for c := range grown {
		grown[c] = make([]float32, frames)
	}
	t.scratch = grown
}

// deinterleaveF32 splits an interleaved 32-bit-float little-endian
// byte buffer into channels slices of length frames (or longer; only
// the first frames entries of each are written).
func deinterleaveF32(raw []byte, channels, frames int, dst [][]float32) {
	for i := 0; i < frames; i++ {
		base := i * channels * 4
		for c := 0; c < channels; c++ {
			bits := binary.LittleEndian.Uint32(raw[base+c*4:])
			dst[c][i] = math.Float32frombits(bits)
		}
	}
}

// Stop stops, uninitializes, and disposes the hardware stream. After
// Stop returns, no further writes to Ring are possible.
func (t *Tap) Stop() error {
	t.mu.Lock()
	stream := t.stream
	t.stream = nil
	t.mu.Unlock()

	if stream == nil {
		return nil
	}
	if err := stream.Stop(); err != nil {
		return fmt.Errorf("tap %s: stop input stream: %w", t.DeviceUID, err)
	}
	return nil
}
