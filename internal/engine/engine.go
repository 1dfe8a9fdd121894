// Package engine implements the Router/Engine: the orchestrator that
// holds the route table, indexes routes by output device, spawns and
// tears down Input Taps and Output Units as the route set changes,
// and performs the mix inside each Output Unit's render callback.
package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agalue/patchbay/internal/hostaudio"
	"github.com/agalue/patchbay/internal/outputunit"
	"github.com/agalue/patchbay/internal/ring"
	"github.com/agalue/patchbay/internal/tap"
)

// SessionState is the session's two-state lifecycle (spec.md §4.5).
type SessionState int

const (
	Idle SessionState = iota
	Running
)

// SessionInfo is the result of StartSession. ActualSampleRate and
// BufferFrames are the values the caller requested; they are not read
// back from the hardware.
type SessionInfo struct {
	SessionID        string `json:"sessionId"`
	OutputDeviceUID  string `json:"outputDeviceUID"`
	ActualSampleRate int    `json:"actualSampleRate"`
	BufferFrames     int    `json:"bufferFrames"`
}

// Stats is the snapshot returned by GetStats (spec.md §6).
type Stats struct {
	Underruns   uint64  `json:"underruns"`
	Overruns    uint64  `json:"overruns"`
	Routes      int     `json:"routes"`
	BufferFill  float64 `json:"bufferFill"`
	InputTaps   int     `json:"inputTaps"`
	OutputUnits int     `json:"outputUnits"`
}

// preRollSleep is the brief yield AddRoute performs after creating a
// fresh Input Tap, reducing (but not guaranteeing against, see
// DESIGN.md §9(a)) the chance the first render sees an empty ring.
const preRollSleep = 10 * time.Millisecond

// renderState is the immutable, atomically-swapped snapshot consulted
// by every Output Unit's render callback. Rebuilt by the control
// thread on every route-table mutation; never mutated in place.
type renderState struct {
	routesByOutput map[string][]*Route
	ringsByInput   map[string]*ring.Buffer
}

// Engine is the patch-bay's Router/Engine. All exported methods are
// safe to call from the control thread; RenderOutput is safe to call
// from any Output Unit's hardware callback.
type Engine struct {
	api hostaudio.API

	mu      sync.Mutex // guards everything below except state (atomic snapshot)
	session *SessionInfo
	routes  map[string]*Route
	taps    map[string]*tap.Tap
	units   map[string]*outputunit.Unit

	state atomic.Pointer[renderState]

	// scratch holds one *outputScratch per live Output Unit, keyed by
	// output device UID. Each entry is touched only by that output's
	// own hardware render thread once created, so RenderOutput never
	// allocates or locks e.mu on its steady-state path; sync.Map gives
	// safe concurrent Load/Store/Delete across distinct output UIDs
	// without a shared lock between unrelated render threads.
	scratch sync.Map // outputUID -> *outputScratch

	underruns atomic.Uint64
	overruns  atomic.Uint64
}

// New creates an idle Engine bound to api.
func New(api hostaudio.API) *Engine {
	e := &Engine{
		api:    api,
		routes: make(map[string]*Route),
		taps:   make(map[string]*tap.Tap),
		units:  make(map[string]*outputunit.Unit),
	}
	e.state.Store(&renderState{
		routesByOutput: make(map[string][]*Route),
		ringsByInput:   make(map[string]*ring.Buffer),
	})
	return e
}

// StartSession stops any prior session and starts a new one on
// outputUID. It checks that the device exists and lists sampleRate as
// supported, then records sampleRate/bufferFrames as given; it does not
// set the device's sample rate or buffer size through the host.
func (e *Engine) StartSession(outputUID string, sampleRate, bufferFrames int) (SessionInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()

	devices, err := e.api.ListDevices()
	if err != nil {
		return SessionInfo{}, wrapErr(ErrDeviceNotFound, "list devices", err)
	}
	dev, ok := findDevice(devices, outputUID)
	if !ok || dev.MaxOutputChannels == 0 {
		return SessionInfo{}, newErr(ErrDeviceNotFound, fmt.Sprintf("output device %q not found", outputUID))
	}
	if !dev.SupportsRate(sampleRate) {
		return SessionInfo{}, newErr(ErrSampleRateNotSupported, fmt.Sprintf("output device %q does not support %d Hz", outputUID, sampleRate))
	}

	info := &SessionInfo{
		SessionID:        newSessionID(),
		OutputDeviceUID:  outputUID,
		ActualSampleRate: sampleRate,
		BufferFrames:     bufferFrames,
	}
	e.session = info
	e.underruns.Store(0)
	e.overruns.Store(0)

	return *info, nil
}

// StopSession stops every Output Unit, then every Input Tap, then
// clears the route table and index.
func (e *Engine) StopSession() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	for uid, u := range e.units {
		u.Stop()
		delete(e.units, uid)
		e.scratch.Delete(uid)
	}
	for uid, t := range e.taps {
		t.Stop()
		delete(e.taps, uid)
	}
	e.routes = make(map[string]*Route)
	e.session = nil
	e.rebuildLocked()
}

// State returns the session's current lifecycle state.
func (e *Engine) State() SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return Idle
	}
	return Running
}

// GetStats returns a snapshot of the engine's counters and resource
// set (spec.md §6).
func (e *Engine) GetStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	var fill float64
	n := 0
	st := e.state.Load()
	for outUID := range e.units {
		for _, r := range st.ringsByInput {
			if !r.HasReader(outUID) {
				continue
			}
			fill += r.FillRatio(outUID)
			n++
		}
	}
	if n > 0 {
		fill /= float64(n)
	}

	return Stats{
		Underruns:   e.underruns.Load(),
		Overruns:    e.overruns.Load(),
		Routes:      len(e.routes),
		BufferFill:  fill,
		InputTaps:   len(e.taps),
		OutputUnits: len(e.units),
	}
}

func findDevice(devices []hostaudio.Device, uid string) (hostaudio.Device, bool) {
	for _, d := range devices {
		if d.UID == uid {
			return d, true
		}
	}
	return hostaudio.Device{}, false
}

var sessionCounter atomic.Uint64

func newSessionID() string {
	return fmt.Sprintf("sess-%d", sessionCounter.Add(1))
}
