package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRouteConvertsOneBasedToZeroBased(t *testing.T) {
	r := newRoute(RouteSpec{
		ID: "r1", InDeviceUID: "in", InL: 1, InR: 2,
		OutDeviceUID: "out", OutL: 3, OutR: 4,
		Gain: 0.5, Enabled: true,
	}, 2, 4)

	require.Equal(t, 0, r.InL)
	require.Equal(t, 1, r.InR)
	require.Equal(t, 2, r.OutL)
	require.Equal(t, 3, r.OutR)
	require.True(t, r.Enabled())
	require.InDelta(t, 0.5, r.Gain(), 1e-9)
}

func TestRouteSpecRoundTripsThroughOneBasedView(t *testing.T) {
	spec := RouteSpec{
		ID: "r1", InDeviceUID: "in", InL: 1, InR: 2,
		OutDeviceUID: "out", OutL: 1, OutR: 2,
		Gain: 1.0, Enabled: true,
	}
	r := newRoute(spec, 2, 2)
	require.Equal(t, spec, r.Spec())
}

func TestRouteGainAndEnabledAreIndependentlyMutable(t *testing.T) {
	r := newRoute(RouteSpec{ID: "r1", InL: 1, InR: 2, OutL: 1, OutR: 2, Enabled: false, Gain: 1}, 2, 2)
	require.False(t, r.Enabled())

	r.SetEnabled(true)
	require.True(t, r.Enabled())

	r.SetGain(0.25)
	require.InDelta(t, 0.25, r.Gain(), 1e-9)
	require.True(t, r.Enabled())
}

func TestRouteDisabledByDeviceIsSeparateFromEnabled(t *testing.T) {
	r := newRoute(RouteSpec{ID: "r1", InL: 1, InR: 2, OutL: 1, OutR: 2, Enabled: true}, 2, 2)
	require.False(t, r.DisabledByDevice())

	r.setDisabledByDevice(true)
	require.True(t, r.DisabledByDevice())
	require.True(t, r.Enabled()) // user intent is preserved
}
