// Package session is the patch-bay's persistence collaborator
// (spec.md §6): it owns the on-disk session config format the engine
// itself neither reads nor writes, and round-trips it through the
// engine's RouteSpec/SessionInfo shapes.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RouteConfig is one persisted route: every RouteSpec field plus
// DisabledByDevice, per spec.md §6's persistence contract.
type RouteConfig struct {
	ID               string  `yaml:"id"`
	InDeviceUID      string  `yaml:"inDeviceUID"`
	InL              int     `yaml:"inL"`
	InR              int     `yaml:"inR"`
	OutDeviceUID     string  `yaml:"outDeviceUID"`
	OutL             int     `yaml:"outL"`
	OutR             int     `yaml:"outR"`
	Gain             float64 `yaml:"gain"`
	Enabled          bool    `yaml:"enabled"`
	DisabledByDevice bool    `yaml:"disabledByDevice"`
}

// Config is the full session config the collaborator layer persists.
type Config struct {
	OutputDeviceUID string        `yaml:"outputDeviceUID"`
	SampleRate      int           `yaml:"sampleRate"`
	BufferFrames    int           `yaml:"bufferFrames"`
	Routes          []RouteConfig `yaml:"routes"`
}

// Load reads and parses a session config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("session: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("session: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes cfg to path as YAML, creating or truncating the file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("session: encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("session: write %s: %w", path, err)
	}
	return nil
}

// Hash returns a stable digest of cfg's canonical YAML encoding,
// including every route field. Unlike the hash this was distilled
// from, Hash is change-detection safe: two configs that differ only
// in route details hash differently. See the adopted Open Question
// decision in DESIGN.md.
func Hash(cfg *Config) (string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("session: encode config: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
