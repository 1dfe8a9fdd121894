package engine

import (
	"encoding/binary"
	"math"
)

func interleaveF32(frames, channels int, gen func(frame, ch int) float32) []byte {
	buf := make([]byte, frames*channels*4)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 4
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(gen(i, c)))
		}
	}
	return buf
}

func deinterleaveF32(raw []byte, frames, channels int) [][]float32 {
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
