package patchrpc

import (
	"encoding/json"
	"fmt"

	"github.com/agalue/patchbay/internal/engine"
)

// call dispatches req.Method to the matching engine/hostaudio
// operation, decoding req.Params as needed.
func (s *Server) call(req Request) (interface{}, error) {
	switch req.Method {
	case "listDevices":
		return s.api.ListDevices()

	case "getDefaultDevices":
		in, out, err := s.api.DefaultDevices()
		if err != nil {
			return nil, err
		}
		return map[string]string{"defaultInputUID": in, "defaultOutputUID": out}, nil

	case "startSession":
		var p struct {
			OutputDeviceUID string `json:"outputDeviceUID"`
			SampleRate      int    `json:"sampleRate"`
			BufferFrames    int    `json:"bufferFrames"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, err
		}
		sampleRate, bufferFrames := p.SampleRate, p.BufferFrames
		if sampleRate == 0 {
			sampleRate = s.defaultSampleRate
		}
		if bufferFrames == 0 {
			bufferFrames = s.defaultBufferFrames
		}
		return s.eng.StartSession(p.OutputDeviceUID, sampleRate, bufferFrames)

	case "stopSession":
		s.eng.StopSession()
		return nil, nil

	case "getStats":
		return s.eng.GetStats(), nil

	case "addRoute":
		var w routeSpecWire
		if err := unmarshalParams(req.Params, &w); err != nil {
			return nil, err
		}
		spec := w.toRouteSpec()
		if err := s.eng.AddRoute(spec); err != nil {
			return nil, err
		}
		return spec, nil

	case "removeRoute":
		var p struct {
			ID string `json:"id"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, err
		}
		return nil, s.eng.RemoveRoute(p.ID)

	case "setRouteEnabled":
		var p struct {
			ID      string `json:"id"`
			Enabled bool   `json:"enabled"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, err
		}
		return nil, s.eng.SetEnabled(p.ID, p.Enabled)

	case "setRouteGain":
		var p struct {
			ID   string  `json:"id"`
			Gain float64 `json:"gain"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, err
		}
		return nil, s.eng.SetGain(p.ID, p.Gain)

	default:
		return nil, fmt.Errorf("unknown method %q", req.Method)
	}
}

// routeSpecWire mirrors engine.RouteSpec but leaves gain/enabled as
// pointers so addRoute can tell "omitted" apart from "explicitly
// zero/false" and apply spec.md §6's documented defaults (gain 1.0,
// enabled true).
type routeSpecWire struct {
	ID           string   `json:"id"`
	InDeviceUID  string   `json:"inDeviceUID"`
	InL          int      `json:"inL"`
	InR          int      `json:"inR"`
	OutDeviceUID string   `json:"outDeviceUID"`
	OutL         int      `json:"outL"`
	OutR         int      `json:"outR"`
	Gain         *float64 `json:"gain"`
	Enabled      *bool    `json:"enabled"`
}

func (w routeSpecWire) toRouteSpec() engine.RouteSpec {
	gain := 1.0
	if w.Gain != nil {
		gain = *w.Gain
	}
	enabled := true
	if w.Enabled != nil {
		enabled = *w.Enabled
	}
	return engine.RouteSpec{
		ID:           w.ID,
		InDeviceUID:  w.InDeviceUID,
		InL:          w.InL,
		InR:          w.InR,
		OutDeviceUID: w.OutDeviceUID,
		OutL:         w.OutL,
		OutR:         w.OutR,
		Gain:         gain,
		Enabled:      enabled,
	}
}

func unmarshalParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing params")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}
