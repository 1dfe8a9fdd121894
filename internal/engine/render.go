package engine

import "github.com/agalue/patchbay/internal/ring"

// readWindow is the per-input-device read state for one input feeding
// an output during a single render callback.
type readWindow struct {
	ring   *ring.Buffer
	window ring.Window
}

// outputScratch is one Output Unit's persistent render-callback scratch
// state: the distinct input UIDs it currently mixes, their per-call
// read windows, and a pair of deinterleave buffers. It lives for the
// lifetime of the Output Unit (created alongside it, dropped when the
// unit is torn down) and is touched only by that unit's own hardware
// render thread, so RenderOutput can reuse it call after call without
// allocating or taking e.mu.
type outputScratch struct {
	inputs  []string
	windows []readWindow
	bufL    []float32
	bufR    []float32
}

func indexOfString(ss []string, s string) int {
	for i, v := range ss {
		if v == s {
			return i
		}
	}
	return -1
}

// RenderOutput is the Output Unit's render callback entry point
// (outputunit.Renderer). It runs on the output hardware's render
// thread: it must never block on e.mu and never allocate on its
// steady-state path, per spec.md §4.5 and §5. The per-output scratch
// state it mutates in place (outputScratch) is exclusively owned by
// the calling thread; only its one-time creation/disposal happens
// under e.mu, in routeops.go.
func (e *Engine) RenderOutput(outputUID string, buffers [][]float32, frames int) {
	for ch := range buffers {
		clear(buffers[ch][:frames])
	}

	st := e.state.Load()
	routes := st.routesByOutput[outputUID]
	if len(routes) == 0 {
		return
	}

	v, ok := e.scratch.Load(outputUID)
	if !ok {
		return
	}
	sc := v.(*outputScratch)

	sc.inputs = sc.inputs[:0]
	for _, r := range routes {
		if !r.Enabled() || r.DisabledByDevice() {
			continue
		}
		if indexOfString(sc.inputs, r.InDeviceUID) >= 0 {
			continue
		}
		sc.inputs = append(sc.inputs, r.InDeviceUID)
	}
	for len(sc.windows) < len(sc.inputs) {
		sc.windows = append(sc.windows, readWindow{})
	}
	sc.windows = sc.windows[:len(sc.inputs)]

	for i, uid := range sc.inputs {
		rb, ok := st.ringsByInput[uid]
		if !ok {
			sc.windows[i] = readWindow{}
			continue
		}
		w := rb.BeginRead(outputUID, frames)
		sc.windows[i] = readWindow{ring: rb, window: w}

		if w.Underrun {
			e.underruns.Add(1)
		}
		if w.Overrun {
			e.overruns.Add(1)
		}
	}

	if cap(sc.bufL) < frames {
		sc.bufL = make([]float32, frames)
		sc.bufR = make([]float32, frames)
	}
	left := sc.bufL[:frames]
	right := sc.bufR[:frames]

	for _, r := range routes {
		if !r.Enabled() || r.DisabledByDevice() {
			continue
		}
		idx := indexOfString(sc.inputs, r.InDeviceUID)
		if idx < 0 {
			continue
		}
		rw := sc.windows[idx]
		if rw.ring == nil {
			continue
		}
		n := rw.window.Frames
		if n == 0 {
			continue
		}
		l := left[:n]
		rr := right[:n]
		rw.ring.ReadChannel(rw.window.Start, n, r.InL, l)
		rw.ring.ReadChannel(rw.window.Start, n, r.InR, rr)

		gain := float32(r.Gain())
		if r.OutL < len(buffers) {
			mixInto(buffers[r.OutL][:n], l, gain)
		}
		if r.OutR < len(buffers) {
			mixInto(buffers[r.OutR][:n], rr, gain)
		}
	}

	for _, rw := range sc.windows {
		if rw.ring != nil {
			rw.ring.EndRead(outputUID, rw.window.Frames)
		}
	}
}

func mixInto(dst, src []float32, gain float32) {
	for i := range dst {
		dst[i] += src[i] * gain
	}
}
