// Package ring implements the patch-bay's per-input-device circular
// frame buffer: a single-writer, multi-reader store of deinterleaved
// multi-channel audio, indexed by monotonically increasing frame
// cursors.
package ring

import "sync"

// Window describes the result of BeginRead: the frames available to a
// reader starting at Start, and whether an underrun or overrun was
// observed while computing it.
type Window struct {
	Start    int64
	Frames   int
	Underrun bool
	Overrun  bool
}

// Buffer is a fixed-capacity, multi-channel circular buffer in frames.
// Exactly one goroutine may call Write; any number of goroutines may
// register as readers and call BeginRead/ReadChannel/EndRead, each
// identified by its own reader id and tracked with its own cursor.
//
// The critical section guarding cursors and the channel arrays is a
// plain mutex: every operation it protects is O(frames) and does no
// allocation, so the hold time is bounded regardless of contention.
type Buffer struct {
	mu       sync.Mutex
	channels [][]float32 // len(channels) == Channels, len(channels[c]) == capacity
	capacity int64
	write    int64
	readers  map[string]int64
}

// New creates a Buffer with the given channel count and capacity in
// frames. Both must be positive.
func New(channels, capacity int) *Buffer {
	if channels <= 0 {
		panic("ring: channels must be positive")
	}
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	chans := make([][]float32, channels)
	for c := range chans {
		chans[c] = make([]float32, capacity)
	}
	return &Buffer{
		channels: chans,
		capacity: int64(capacity),
		readers:  make(map[string]int64),
	}
}

// Channels returns the number of channels this buffer was created with.
func (b *Buffer) Channels() int {
	return len(b.channels)
}

// Capacity returns the buffer's capacity in frames.
func (b *Buffer) Capacity() int64 {
	return b.capacity
}

// RegisterReader registers id as a reader if it is not already known.
// A newly registered reader's cursor starts at max(0, write - K/2),
// giving it half a buffer of pre-roll. Idempotent: re-registering an
// already-known id is a no-op.
func (b *Buffer) RegisterReader(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.readers[id]; ok {
		return
	}
	cursor := b.write - b.capacity/2
	if cursor < 0 {
		cursor = 0
	}
	b.readers[id] = cursor
}

// PruneReaders removes every registered reader whose id is not present
// in keep.
func (b *Buffer) PruneReaders(keep map[string]struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range b.readers {
		if _, ok := keep[id]; !ok {
			delete(b.readers, id)
		}
	}
}

// HasReader reports whether id is currently registered.
func (b *Buffer) HasReader(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.readers[id]
	return ok
}

// Write appends frames samples per channel from src (one slice per
// channel, non-interleaved). If frames exceeds the buffer's capacity,
// the first frames-K of them are dropped and only the trailing K are
// stored — but the write cursor still advances by the full frames
// count, so every reader's timeline matches what the hardware saw.
func (b *Buffer) Write(src [][]float32, frames int) {
	if frames <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	toWrite := frames
	skip := 0
	if int64(toWrite) > b.capacity {
		skip = toWrite - int(b.capacity)
		toWrite = int(b.capacity)
	}

	start := (b.write + int64(skip)) % b.capacity
	for c := range b.channels {
		var samples []float32
		if c < len(src) {
			samples = src[c][skip:frames]
		}
		dst := b.channels[c]
		n := toWrite
		first := int(b.capacity - start)
		if first > n {
			first = n
		}
		if samples != nil {
			copy(dst[start:start+int64(first)], samples[:first])
			if first < n {
				copy(dst[0:n-first], samples[first:n])
			}
		} else {
			clearFrom(dst, start, first)
			if first < n {
				clearFrom(dst, 0, n-first)
			}
		}
	}

	b.write += int64(frames)
}

func clearFrom(dst []float32, start int64, n int) {
	for i := 0; i < n; i++ {
		dst[start+int64(i)] = 0
	}
}

// BeginRead computes the read window for reader id: up to frames
// frames starting at its current cursor. If the writer has lapped the
// reader (write - cursor > capacity), the cursor is advanced to
// write - capacity (dropping the oldest unread frames) and Overrun is
// set. If fewer than frames frames are available, Underrun is set.
// BeginRead does not itself advance the reader's cursor; EndRead does.
func (b *Buffer) BeginRead(id string, frames int) Window {
	b.mu.Lock()
	defer b.mu.Unlock()

	cursor, ok := b.readers[id]
	if !ok {
		cursor = b.write - b.capacity/2
		if cursor < 0 {
			cursor = 0
		}
		b.readers[id] = cursor
	}

	var overrun bool
	if b.write-cursor > b.capacity {
		cursor = b.write - b.capacity
		b.readers[id] = cursor
		overrun = true
	}

	available := int(b.write - cursor)
	if available < 0 {
		available = 0
	}
	underrun := available < frames
	if available > frames {
		available = frames
	}

	return Window{
		Start:    cursor,
		Frames:   available,
		Underrun: underrun,
		Overrun:  overrun,
	}
}

// ReadChannel copies frames samples of channel starting at start
// (a cursor value previously returned by BeginRead) into dest. May be
// called once per channel for the same (start, frames) pair.
func (b *Buffer) ReadChannel(start int64, frames int, channel int, dest []float32) {
	if frames <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	src := b.channels[channel]
	idx := start % b.capacity
	first := int(b.capacity - idx)
	if first > frames {
		first = frames
	}
	copy(dest[:first], src[idx:idx+int64(first)])
	if first < frames {
		copy(dest[first:frames], src[0:frames-first])
	}
}

// EndRead advances reader id's cursor by frames, which must be no
// greater than the Frames value returned by the matching BeginRead.
func (b *Buffer) EndRead(id string, frames int) {
	if frames <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readers[id] += int64(frames)
}

// FillRatio returns the fraction of capacity currently occupied for
// reader id, in [0,1]. Returns 0 if id is not registered.
func (b *Buffer) FillRatio(id string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	cursor, ok := b.readers[id]
	if !ok {
		return 0
	}
	fill := float64(b.write-cursor) / float64(b.capacity)
	if fill < 0 {
		return 0
	}
	if fill > 1 {
		return 1
	}
	return fill
}
