package watcher

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agalue/patchbay/internal/hostaudio"
)

type fakeAPI struct {
	mu      sync.Mutex
	devices []hostaudio.Device
}

func (a *fakeAPI) set(devices []hostaudio.Device) {
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
func (a *fakeAPI) OpenInputStream(hostaudio.StreamConfig, hostaudio.InputCallback) (hostaudio.Stream, error) {
	panic("not used")
}
func (a *fakeAPI) OpenOutputStream(hostaudio.StreamConfig, hostaudio.OutputCallback) (hostaudio.Stream, error) {
	panic("not used")
}
func (a *fakeAPI) Close() error { return nil }

func drainEvents(t *testing.T, w *Watcher, n int, timeout time.Duration) []Event {
	t.Helper()
	var got []Event
	deadline := time.After(timeout)
	for len(got) < n {
		select {
		case ev := <-w.Events:
			got = append(got, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %d: %+v", n, len(got), got)
		}
	}
	return got
}

func TestWatcherEmitsConnectedForNewDevice(t *testing.T) {
	api := &fakeAPI{devices: []hostaudio.Device{{UID: "in:1", Name: "Mic"}}}
	w := New(api, 5*time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Stop()

	api.set([]hostaudio.Device{
		{UID: "in:1", Name: "Mic"},
		{UID: "out:1", Name: "Speakers"},
	})

	events := drainEvents(t, w, 1, time.Second)
	require.Equal(t, Connected, events[0].Kind)
	require.Equal(t, "out:1", events[0].UID)
}

func TestWatcherEmitsDisconnectedForRemovedDevice(t *testing.T) {
	api := &fakeAPI{devices: []hostaudio.Device{
		{UID: "in:1", Name: "Mic"},
		{UID: "out:1", Name: "Speakers"},
	}}
	w := New(api, 5*time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Stop()

	api.set([]hostaudio.Device{{UID: "out:1", Name: "Speakers"}})

	events := drainEvents(t, w, 1, time.Second)
	require.Equal(t, Disconnected, events[0].Kind)
	require.Equal(t, "in:1", events[0].UID)
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	api := &fakeAPI{}
	w := New(api, 5*time.Millisecond)
	require.NoError(t, w.Start())
	w.Stop()
	w.Stop() // must not panic or block
}
