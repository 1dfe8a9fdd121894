package engine

import (
	"math"
	"sync/atomic"
)

// Route is one directed edge from (input device, channel pair) to
// (output device, channel pair) with a gain, per spec.md §3.
//
// The identity fields are immutable once the route is added; Enabled,
// DisabledByDevice, and Gain are mutated concurrently by the control
// thread and read from the render callback, so they are held as
// atomics rather than behind the engine's table lock.
type Route struct {
	ID           string
	InDeviceUID  string
	InL, InR     int // 0-based internally
	OutDeviceUID string
	OutL, OutR   int // 0-based internally

	// InChannelCount/OutChannelCount are the channel counts of the
	// Input Tap / Output Unit serving this route, captured when the
	// route was validated.
	InChannelCount  int
	OutChannelCount int

	enabled          atomic.Bool
	disabledByDevice atomic.Bool
	gainBits         atomic.Uint64
}

// RouteSpec is the caller-facing route record from spec.md §6: 1-based
// channel indices, as received over the command surface.
type RouteSpec struct {
	ID           string  `json:"id"`
	InDeviceUID  string  `json:"inDeviceUID"`
	InL          int     `json:"inL"` // 1-based
	InR          int     `json:"inR"` // 1-based
	OutDeviceUID string  `json:"outDeviceUID"`
	OutL         int     `json:"outL"` // 1-based
	OutR         int     `json:"outR"` // 1-based
	Gain         float64 `json:"gain"`
	Enabled      bool    `json:"enabled"`
}

func newRoute(spec RouteSpec, inChannels, outChannels int) *Route {
	r := &Route{
		ID:              spec.ID,
		InDeviceUID:     spec.InDeviceUID,
		InL:             spec.InL - 1,
		InR:             spec.InR - 1,
		OutDeviceUID:    spec.OutDeviceUID,
		OutL:            spec.OutL - 1,
		OutR:            spec.OutR - 1,
		InChannelCount:  inChannels,
		OutChannelCount: outChannels,
	}
	r.enabled.Store(spec.Enabled)
	r.SetGain(spec.Gain)
	return r
}

// Enabled reports the route's user-facing enabled flag. It is not
// cleared by a device disconnect; a route participates in the mix only
// when Enabled is true and DisabledByDevice is false.
func (r *Route) Enabled() bool { return r.enabled.Load() }

// SetEnabled flips the user-facing enabled flag. Does not touch
// DisabledByDevice.
func (r *Route) SetEnabled(v bool) { r.enabled.Store(v) }

// DisabledByDevice reports whether this route was involuntarily
// disabled by a device disconnect, as opposed to a user SetEnabled(false).
func (r *Route) DisabledByDevice() bool { return r.disabledByDevice.Load() }

func (r *Route) setDisabledByDevice(v bool) { r.disabledByDevice.Store(v) }

// Gain returns the route's current linear gain.
func (r *Route) Gain() float64 {
	return math.Float64frombits(r.gainBits.Load())
}

// SetGain updates the route's gain atomically with respect to the
// render callback.
func (r *Route) SetGain(g float64) {
	r.gainBits.Store(math.Float64bits(g))
}

// Spec returns the caller-facing (1-based) view of r, for round-trip
// serialization (spec.md §6, §8).
func (r *Route) Spec() RouteSpec {
	return RouteSpec{
		ID:           r.ID,
		InDeviceUID:  r.InDeviceUID,
		InL:          r.InL + 1,
		InR:          r.InR + 1,
		OutDeviceUID: r.OutDeviceUID,
		OutL:         r.OutL + 1,
		OutR:         r.OutR + 1,
		Gain:         r.Gain(),
		Enabled:      r.Enabled(),
	}
}
