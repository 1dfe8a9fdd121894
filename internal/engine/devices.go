package engine

import "github.com/agalue/patchbay/internal/watcher"

// HandleDeviceEvent reacts to a hot-plug event from the Device Watcher.
//
// On Disconnected, every route bound to that UID (as input or output)
// is marked DisabledByDevice and its hardware is torn down, but the
// route itself is kept in the table so it can resume once the device
// returns. On Connected, no route is re-enabled automatically: the
// control layer is responsible for re-issuing AddRoute / SetEnabled.
func (e *Engine) HandleDeviceEvent(ev watcher.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ev.Kind != watcher.Disconnected {
		return
	}

	affected := false
	for _, r := range e.routes {
		if r.InDeviceUID == ev.UID || r.OutDeviceUID == ev.UID {
			r.setDisabledByDevice(true)
			affected = true
		}
	}
	if !affected {
		return
	}

	if u, ok := e.units[ev.UID]; ok {
		u.Stop()
		delete(e.units, ev.UID)
	}
	if t, ok := e.taps[ev.UID]; ok {
		t.Stop()
		delete(e.taps, ev.UID)
	}

	e.rebuildLocked()
}
