package engine

import (
	"fmt"
	"time"

	"github.com/agalue/patchbay/internal/outputunit"
	"github.com/agalue/patchbay/internal/ring"
	"github.com/agalue/patchbay/internal/tap"
)

// AddRoute validates and installs a route, creating whatever Input
// Tap / Output Unit it requires. See spec.md §4.5 "Route operations".
// An id already in the table is rejected unless that route is
// DisabledByDevice, in which case the new record replaces it.
func (e *Engine) AddRoute(spec RouteSpec) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return newErr(ErrNoSession, "addRoute requires an active session")
	}
	if spec.ID == "" || spec.InDeviceUID == "" || spec.OutDeviceUID == "" {
		return newErr(ErrInvalidArgs, "id, inDeviceUID, and outDeviceUID are required")
	}
	if spec.InL < 1 || spec.InR < 1 || spec.OutL < 1 || spec.OutR < 1 {
		return newErr(ErrInvalidArgs, "channel indices are 1-based and must be positive")
	}
	if existing, exists := e.routes[spec.ID]; exists && !existing.DisabledByDevice() {
		return newErr(ErrInvalidArgs, fmt.Sprintf("route %q already exists", spec.ID))
	}

	devices, err := e.api.ListDevices()
	if err != nil {
		return wrapErr(ErrDeviceNotFound, "list devices", err)
	}
	inDev, ok := findDevice(devices, spec.InDeviceUID)
	if !ok {
		return newErr(ErrDeviceNotFound, fmt.Sprintf("input device %q not found", spec.InDeviceUID))
	}
	outDev, ok := findDevice(devices, spec.OutDeviceUID)
	if !ok {
		return newErr(ErrDeviceNotFound, fmt.Sprintf("output device %q not found", spec.OutDeviceUID))
	}
	if inDev.MaxInputChannels == 0 {
		return newErr(ErrInvalidDeviceChannels, fmt.Sprintf("input device %q reports zero input channels", spec.InDeviceUID))
	}
	if outDev.MaxOutputChannels == 0 {
		return newErr(ErrInvalidDeviceChannels, fmt.Sprintf("output device %q reports zero output channels", spec.OutDeviceUID))
	}
	if !inDev.SupportsRate(e.session.ActualSampleRate) {
		return newErr(ErrSampleRateNotSupported, fmt.Sprintf("input device %q does not support %d Hz", spec.InDeviceUID, e.session.ActualSampleRate))
	}
	if !outDev.SupportsRate(e.session.ActualSampleRate) {
		return newErr(ErrSampleRateNotSupported, fmt.Sprintf("output device %q does not support %d Hz", spec.OutDeviceUID, e.session.ActualSampleRate))
	}
	if spec.InL-1 >= inDev.MaxInputChannels || spec.InR-1 >= inDev.MaxInputChannels {
		return newErr(ErrInvalidInputChannel, fmt.Sprintf("input channel index exceeds %q's %d channels", spec.InDeviceUID, inDev.MaxInputChannels))
	}
	if spec.OutL-1 >= outDev.MaxOutputChannels || spec.OutR-1 >= outDev.MaxOutputChannels {
		return newErr(ErrInvalidOutputChannel, fmt.Sprintf("output channel index exceeds %q's %d channels", spec.OutDeviceUID, outDev.MaxOutputChannels))
	}

	createdTap := false
	t, ok := e.taps[spec.InDeviceUID]
	if !ok {
		t = tap.New(e.api, spec.InDeviceUID, inDev.MaxInputChannels, e.session.ActualSampleRate, e.session.BufferFrames)
		if err := t.Start(); err != nil {
			return wrapErr(ErrInputStartFailed, fmt.Sprintf("starting input tap for %q", spec.InDeviceUID), err)
		}
		e.taps[spec.InDeviceUID] = t
		createdTap = true
	}

	u, ok := e.units[spec.OutDeviceUID]
	if !ok {
		u = outputunit.New(e.api, e, spec.OutDeviceUID, outDev.MaxOutputChannels, e.session.ActualSampleRate, e.session.BufferFrames)
		if err := u.Start(); err != nil {
			return wrapErr(ErrOutputStartFailed, fmt.Sprintf("starting output unit for %q", spec.OutDeviceUID), err)
		}
		e.units[spec.OutDeviceUID] = u
		e.scratch.Store(spec.OutDeviceUID, &outputScratch{})
	}

	// Register the output as a reader on the input's ring buffer
	// before the Output Unit begins rendering against it.
	t.Ring.RegisterReader(spec.OutDeviceUID)

	if createdTap {
		time.Sleep(preRollSleep)
	}

	route := newRoute(spec, inDev.MaxInputChannels, outDev.MaxOutputChannels)
	e.routes[spec.ID] = route

	e.rebuildLocked()
	e.cleanupUnreferencedLocked()

	return nil
}

// RemoveRoute removes id from the table, rebuilds the index, and
// disposes any Input Tap / Output Unit no longer referenced by any
// route.
func (e *Engine) RemoveRoute(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.routes[id]; !ok {
		return newErr(ErrInvalidArgs, fmt.Sprintf("route %q not found", id))
	}
	delete(e.routes, id)

	e.rebuildLocked()
	e.cleanupUnreferencedLocked()
	return nil
}

// SetEnabled flips a route's user-facing enabled flag and rebuilds
// the index. If the route was disabled by a device disconnect and the
// caller is now re-enabling it, SetEnabled also tries to recreate
// whatever Input Tap / Output Unit the route needs, clearing
// DisabledByDevice only on success.
func (e *Engine) SetEnabled(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.routes[id]
	if !ok {
		return newErr(ErrInvalidArgs, fmt.Sprintf("route %q not found", id))
	}

	if enabled && r.DisabledByDevice() {
		if err := e.resumeRouteLocked(r); err != nil {
			return err
		}
	}

	r.SetEnabled(enabled)
	e.rebuildLocked()
	return nil
}

// resumeRouteLocked recreates the Input Tap / Output Unit r needs, if
// missing, using the session's negotiated sample rate and buffer size.
// Caller must hold e.mu and e.session must be non-nil.
func (e *Engine) resumeRouteLocked(r *Route) error {
	if e.session == nil {
		return newErr(ErrNoSession, "cannot resume route without an active session")
	}

	devices, err := e.api.ListDevices()
	if err != nil {
		return wrapErr(ErrDeviceNotFound, "list devices", err)
	}
	inDev, ok := findDevice(devices, r.InDeviceUID)
	if !ok {
		return newErr(ErrDeviceNotFound, fmt.Sprintf("input device %q not found", r.InDeviceUID))
	}
	outDev, ok := findDevice(devices, r.OutDeviceUID)
	if !ok {
		return newErr(ErrDeviceNotFound, fmt.Sprintf("output device %q not found", r.OutDeviceUID))
	}

	createdTap := false
	t, ok := e.taps[r.InDeviceUID]
	if !ok {
		t = tap.New(e.api, r.InDeviceUID, inDev.MaxInputChannels, e.session.ActualSampleRate, e.session.BufferFrames)
		if err := t.Start(); err != nil {
			return wrapErr(ErrInputStartFailed, fmt.Sprintf("starting input tap for %q", r.InDeviceUID), err)
		}
		e.taps[r.InDeviceUID] = t
		createdTap = true
	}

	if _, ok := e.units[r.OutDeviceUID]; !ok {
		u := outputunit.New(e.api, e, r.OutDeviceUID, outDev.MaxOutputChannels, e.session.ActualSampleRate, e.session.BufferFrames)
		if err := u.Start(); err != nil {
			return wrapErr(ErrOutputStartFailed, fmt.Sprintf("starting output unit for %q", r.OutDeviceUID), err)
		}
		e.units[r.OutDeviceUID] = u
		e.scratch.Store(r.OutDeviceUID, &outputScratch{})
	}

	t.Ring.RegisterReader(r.OutDeviceUID)
	if createdTap {
		time.Sleep(preRollSleep)
	}

	r.setDisabledByDevice(false)
	return nil
}

// SetGain updates a route's gain, consistent with the render
// callback's concurrent reads.
func (e *Engine) SetGain(id string, gain float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.routes[id]
	if !ok {
		return newErr(ErrInvalidArgs, fmt.Sprintf("route %q not found", id))
	}
	r.SetGain(gain)
	return nil
}

// Routes returns a snapshot of every route currently in the table.
func (e *Engine) Routes() []*Route {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Route, 0, len(e.routes))
	for _, r := range e.routes {
		out = append(out, r)
	}
	return out
}

// rebuildLocked rebuilds the atomically-swapped render snapshot from
// the current route table. Caller must hold e.mu.
func (e *Engine) rebuildLocked() {
	byOutput := make(map[string][]*Route, len(e.units))
	for _, r := range e.routes {
		byOutput[r.OutDeviceUID] = append(byOutput[r.OutDeviceUID], r)
	}

	ringsByInput := make(map[string]*ring.Buffer, len(e.taps))
	for uid, t := range e.taps {
		ringsByInput[uid] = t.Ring
	}

	next := &renderState{
		routesByOutput: byOutput,
		ringsByInput:   ringsByInput,
	}
	e.state.Store(next)
}

// cleanupUnreferencedLocked stops and disposes any Input Tap whose UID
// is no longer referenced by any route, any Output Unit whose UID is
// no longer referenced, and prunes per-reader cursors on surviving
// ring buffers. Caller must hold e.mu.
func (e *Engine) cleanupUnreferencedLocked() {
	referencedInputs := make(map[string]struct{})
	referencedOutputs := make(map[string]struct{})
	for _, r := range e.routes {
		referencedInputs[r.InDeviceUID] = struct{}{}
		referencedOutputs[r.OutDeviceUID] = struct{}{}
	}

	for uid, u := range e.units {
		if _, ok := referencedOutputs[uid]; !ok {
			u.Stop()
			delete(e.units, uid)
			e.scratch.Delete(uid)
		}
	}
	for uid, t := range e.taps {
		if _, ok := referencedInputs[uid]; !ok {
			t.Stop()
			delete(e.taps, uid)
			continue
		}
		keep := make(map[string]struct{})
		for _, r := range e.routes {
			if r.InDeviceUID == uid {
				keep[r.OutDeviceUID] = struct{}{}
			}
		}
		t.Ring.PruneReaders(keep)
	}

	e.rebuildLocked()
}
