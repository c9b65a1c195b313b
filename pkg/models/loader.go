package models

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"go.yaml.in/yaml/v3"
)

// devicesFile is the layout of the devices definition file.
type devicesFile struct {
	Devices []map[string]any `yaml:"devices"`
}

// LoadDevices reads device definitions from a YAML (or JSON) file.
// Definitions that fail to decode or validate are reported in the returned error
// while the remaining ones are still returned.
func LoadDevices(path string) ([]DeviceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read devices file: %w", err)
	}
	return ParseDevices(data)
}

// ParseDevices decodes device definitions from YAML bytes.
// YAML is decoded directly (not through viper) so map keys keep their case.
func ParseDevices(data []byte) ([]DeviceConfig, error) {
	var file devicesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	configs := make([]DeviceConfig, 0, len(file.Devices))
	seen := make(map[string]bool)
	var errs []error

	for i, raw := range file.Devices {
		cfg, err := DecodeDevice(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("device #%d: %w", i, err))
			continue
		}
		if seen[cfg.ID] {
			errs = append(errs, fmt.Errorf("%w: duplicate device id %q", ErrConfig, cfg.ID))
			continue
		}
		seen[cfg.ID] = true
		configs = append(configs, cfg)
	}

	return configs, errors.Join(errs...)
}

// DecodeDevice converts one raw definition into a validated DeviceConfig.
func DecodeDevice(raw map[string]any) (DeviceConfig, error) {
	var cfg DeviceConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &cfg,
		TagName:     "mapstructure",
		ErrorUnused: true,
	})
	if err != nil {
		return DeviceConfig{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return DeviceConfig{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return DeviceConfig{}, err
	}
	return cfg, nil
}
