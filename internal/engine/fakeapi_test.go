package engine

import (
	"sync"

	"github.com/agalue/patchbay/internal/hostaudio"
)

// fakeStream is a hardware stream double that just tracks lifecycle.
type fakeStream struct {
	mu               sync.Mutex
	started, stopped bool
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

// fakeAPI is an in-memory hostaudio.API double: a fixed device list,
// and input/output streams whose render/capture callbacks are exposed
// to the test so it can drive them directly instead of waiting on
// real hardware.
type fakeAPI struct {
	mu      sync.Mutex
	devices []hostaudio.Device

	inputStreams  map[string]*fakeStream
	inputCb       map[string]hostaudio.InputCallback
	outputStreams map[string]*fakeStream
	outputCb      map[string]hostaudio.OutputCallback

	failInput  map[string]bool
	failOutput map[string]bool
}

func newFakeAPI(devices ...hostaudio.Device) *fakeAPI {
	return &fakeAPI{
		devices:       devices,
		inputStreams:  make(map[string]*fakeStream),
		inputCb:       make(map[string]hostaudio.InputCallback),
		outputStreams: make(map[string]*fakeStream),
		outputCb:      make(map[string]hostaudio.OutputCallback),
		failInput:     make(map[string]bool),
		failOutput:    make(map[string]bool),
	}
}

func (a *fakeAPI) setDevices(devices []hostaudio.Device) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.devices = devices
}

func (a *fakeAPI) ListDevices() ([]hostaudio.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]hostaudio.Device, len(a.devices))
	copy(out, a.devices)
	return out, nil
}

func (a *fakeAPI) DefaultDevices() (string, string, error) { return "", "", nil }

func (a *fakeAPI) OpenInputStream(cfg hostaudio.StreamConfig, onData hostaudio.InputCallback) (hostaudio.Stream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failInput[cfg.DeviceUID] {
		return nil, &hostaudio.ErrDeviceNotFound{UID: cfg.DeviceUID}
	}
	s := &fakeStream{}
	a.inputStreams[cfg.DeviceUID] = s
	a.inputCb[cfg.DeviceUID] = onData
	return s, nil
}

func (a *fakeAPI) OpenOutputStream(cfg hostaudio.StreamConfig, onRender hostaudio.OutputCallback) (hostaudio.Stream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failOutput[cfg.DeviceUID] {
		return nil, &hostaudio.ErrDeviceNotFound{UID: cfg.DeviceUID}
	}
	s := &fakeStream{}
	a.outputStreams[cfg.DeviceUID] = s
	a.outputCb[cfg.DeviceUID] = onRender
	return s, nil
}

func (a *fakeAPI) Close() error { return nil }

// feedInput pushes one capture callback's worth of interleaved float32
// frames to the input tap registered for uid.
func (a *fakeAPI) feedInput(uid string, raw []byte, frames int) {
	a.mu.Lock()
	cb := a.inputCb[uid]
	a.mu.Unlock()
	if cb != nil {
		cb(raw, frames)
	}
}

// render drives one render callback for uid; the callback writes its
// interleaved output into raw.
func (a *fakeAPI) render(uid string, raw []byte, frames int) {
	a.mu.Lock()
	cb := a.outputCb[uid]
	a.mu.Unlock()
	if cb != nil {
		cb(raw, frames)
	}
}
