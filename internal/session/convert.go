package session

import "github.com/agalue/patchbay/internal/engine"

// ToRouteSpec drops DisabledByDevice (not part of the caller-facing
// route record the engine accepts) and returns the engine.RouteSpec
// for c.
func (c RouteConfig) ToRouteSpec() engine.RouteSpec {
	return engine.RouteSpec{
		ID:           c.ID,
		InDeviceUID:  c.InDeviceUID,
		InL:          c.InL,
		InR:          c.InR,
		OutDeviceUID: c.OutDeviceUID,
		OutL:         c.OutL,
		OutR:         c.OutR,
		Gain:         c.Gain,
		Enabled:      c.Enabled,
	}
}

// RouteConfigFrom builds a RouteConfig from a route's caller-facing
// spec and its current DisabledByDevice flag.
func RouteConfigFrom(spec engine.RouteSpec, disabledByDevice bool) RouteConfig {
	return RouteConfig{
		ID:               spec.ID,
		InDeviceUID:      spec.InDeviceUID,
		InL:              spec.InL,
		InR:              spec.InR,
		OutDeviceUID:     spec.OutDeviceUID,
		OutL:             spec.OutL,
		OutR:             spec.OutR,
		Gain:             spec.Gain,
		Enabled:          spec.Enabled,
		DisabledByDevice: disabledByDevice,
	}
}
