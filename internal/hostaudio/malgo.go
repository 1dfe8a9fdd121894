package hostaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoAPI implements API on top of github.com/gen2brain/malgo
// (miniaudio bindings), the same library the teacher used for its own
// capture/playback devices.
type MalgoAPI struct {
	ctx *malgo.AllocatedContext

	mu      sync.Mutex
	byUID   map[string]malgo.DeviceInfo
	byInUID map[string]malgo.DeviceInfo
}

// NewMalgoAPI initializes a malgo context and returns an API backed by
// it.
func NewMalgoAPI() (*MalgoAPI, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("hostaudio: init context: %w", err)
	}
	return &MalgoAPI{
		ctx:     ctx,
		byUID:   make(map[string]malgo.DeviceInfo),
		byInUID: make(map[string]malgo.DeviceInfo),
	}, nil
}

func uidFor(kind string, info malgo.DeviceInfo) string {
	return fmt.Sprintf("%s:%x", kind, info.ID)
}

func (a *MalgoAPI) ListDevices() ([]Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.byUID = make(map[string]malgo.DeviceInfo)
	a.byInUID = make(map[string]malgo.DeviceInfo)

	var devices []Device

	captures, err := a.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("hostaudio: enumerate capture devices: %w", err)
	}
	for _, info := range captures {
		uid := uidFor("in", info)
		a.byInUID[uid] = info
		full, err := a.ctx.DeviceInfo(malgo.Capture, info.ID, malgo.Shared)
		channels := 0
		rates := []int(nil)
		if err == nil {
			channels = maxChannels(full.MinChannels, full.MaxChannels)
			rates = sampleRateRange(full.MinSampleRate, full.MaxSampleRate)
		}
		devices = append(devices, Device{
			UID:              uid,
			Name:             info.Name(),
			MaxInputChannels: channels,
			SupportedRates:   rates,
		})
	}

	playbacks, err := a.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("hostaudio: enumerate playback devices: %w", err)
	}
	for _, info := range playbacks {
		uid := uidFor("out", info)
		a.byUID[uid] = info
		full, err := a.ctx.DeviceInfo(malgo.Playback, info.ID, malgo.Shared)
		channels := 0
		rates := []int(nil)
		if err == nil {
			channels = maxChannels(full.MinChannels, full.MaxChannels)
			rates = sampleRateRange(full.MinSampleRate, full.MaxSampleRate)
		}
		devices = append(devices, Device{
			UID:               uid,
			Name:              info.Name(),
			MaxOutputChannels: channels,
			SupportedRates:    rates,
		})
	}

	return devices, nil
}

func maxChannels(min, max uint32) int {
	if max > 0 {
		return int(max)
	}
	if min > 0 {
		return int(min)
	}
	return 2
}

func sampleRateRange(min, max uint32) []int {
	if min == 0 || max == 0 {
		return nil
	}
	rates := []int{8000, 16000, 22050, 24000, 44100, 48000, 88200, 96000}
	out := rates[:0:0]
	for _, r := range rates {
		if uint32(r) >= min && uint32(r) <= max {
			out = append(out, r)
		}
	}
	return out
}

// DefaultDevices reports the UIDs of the first capture device and the
// first playback device in the host's enumeration order. It does not
// check which device the host marks as its default.
func (a *MalgoAPI) DefaultDevices() (inputUID, outputUID string, err error) {
	captures, err := a.ctx.Devices(malgo.Capture)
	if err != nil {
		return "", "", fmt.Errorf("hostaudio: enumerate capture devices: %w", err)
	}
	playbacks, err := a.ctx.Devices(malgo.Playback)
	if err != nil {
		return "", "", fmt.Errorf("hostaudio: enumerate playback devices: %w", err)
	}
	if len(captures) > 0 {
		inputUID = uidFor("in", captures[0])
	}
	if len(playbacks) > 0 {
		outputUID = uidFor("out", playbacks[0])
	}
	return inputUID, outputUID, nil
}

func (a *MalgoAPI) resolveInput(uid string) (malgo.DeviceInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	info, ok := a.byInUID[uid]
	if !ok {
		return malgo.DeviceInfo{}, &ErrDeviceNotFound{UID: uid}
	}
	return info, nil
}

func (a *MalgoAPI) resolveOutput(uid string) (malgo.DeviceInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	info, ok := a.byUID[uid]
	if !ok {
		return malgo.DeviceInfo{}, &ErrDeviceNotFound{UID: uid}
	}
	return info, nil
}

func (a *MalgoAPI) OpenInputStream(cfg StreamConfig, onData InputCallback) (Stream, error) {
	info, err := a.resolveInput(cfg.DeviceUID)
	if err != nil {
		return nil, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.Capture.DeviceID = info.ID.Pointer()
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.BufferFrames)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, framecount uint32) {
			onData(pInputSamples, int(framecount))
		},
	}

	device, err := malgo.InitDevice(a.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("hostaudio: init capture device %s: %w", cfg.DeviceUID, err)
	}
	return &malgoStream{device: device}, nil
}

func (a *MalgoAPI) OpenOutputStream(cfg StreamConfig, onRender OutputCallback) (Stream, error) {
	info, err := a.resolveOutput(cfg.DeviceUID)
	if err != nil {
		return nil, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(cfg.Channels)
	deviceConfig.Playback.DeviceID = info.ID.Pointer()
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.BufferFrames)

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, _ []byte, framecount uint32) {
			onRender(pOutputSample, int(framecount))
		},
	}

	device, err := malgo.InitDevice(a.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("hostaudio: init playback device %s: %w", cfg.DeviceUID, err)
	}
	return &malgoStream{device: device}, nil
}

func (a *MalgoAPI) Close() error {
	if a.ctx == nil {
		return nil
	}
	if err := a.ctx.Uninit(); err != nil {
		a.ctx.Free()
		return fmt.Errorf("hostaudio: uninit context: %w", err)
	}
	a.ctx.Free()
	return nil
}

type malgoStream struct {
	device *malgo.Device
}

func (s *malgoStream) Start() error {
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("hostaudio: start stream: %w", err)
	}
	return nil
}

func (s *malgoStream) Stop() error {
	if err := s.device.Stop(); err != nil {
		s.device.Uninit()
		return fmt.Errorf("hostaudio: stop stream: %w", err)
	}
	s.device.Uninit()
	return nil
}
