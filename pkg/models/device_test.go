package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const devicesYAML = `
devices:
  - id: thermostat
    read:
      url: http://10.0.0.5/status
      headers:
        X-Api-Key: abc
    write:
      method: PUT
      params:
        Mode: "{{ new_value }}"
    poll_interval: 30
    ports:
      Setpoint:
        type: number
        writable: true
        read:
          json_path: /set
      heating:
        read:
          body_regex: 'heat=(\w+)'
          true_value: ["on", "1"]
  - id: thermostat
    read:
      url: http://dup
  - read:
      url: http://no-id
  - id: typo
    read:
      url: http://x
    pol_interval: 3
`

func TestParseDevices(t *testing.T) {
	configs, err := ParseDevices([]byte(devicesYAML))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), `duplicate device id "thermostat"`)
	assert.Contains(t, err.Error(), "device #2")
	assert.Contains(t, err.Error(), "device #3")

	require.Len(t, configs, 1)
	cfg := configs[0]
	assert.Equal(t, "thermostat", cfg.ID)
	assert.Equal(t, 30, cfg.PollInterval)
	assert.Equal(t, map[string]any{"X-Api-Key": "abc"}, cfg.Read.Headers)
	assert.Equal(t, map[string]any{"Mode": "{{ new_value }}"}, cfg.Write.Params)

	require.Contains(t, cfg.Ports, "Setpoint")
	assert.Equal(t, PortTypeNumber, cfg.Ports["Setpoint"].Type)
	assert.Equal(t, "/set", cfg.Ports["Setpoint"].Read.JSONPath)
	assert.Equal(t, []any{"on", "1"}, cfg.Ports["heating"].Read.TrueValues())
}

func TestLoadDevicesMissingFile(t *testing.T) {
	_, err := LoadDevices(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "devices.yaml")
	require.NoError(t, os.WriteFile(path, []byte("devices: [{id: a, read: {url: 'http://a'}}]"), 0o600))
	configs, err := LoadDevices(path)
	require.NoError(t, err)
	assert.Len(t, configs, 1)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  DeviceConfig
	}{
		{"missing read url", DeviceConfig{ID: "a"}},
		{"negative timeout", DeviceConfig{ID: "a", Read: RequestSpec{URL: "http://a"}, Timeout: -1}},
		{"bad auth type", DeviceConfig{ID: "a", Read: RequestSpec{URL: "http://a"}, Auth: &AuthSpec{Type: "digest"}}},
		{"bad port type", DeviceConfig{ID: "a", Read: RequestSpec{URL: "http://a"}, Ports: map[string]PortConfig{
			"p": {Type: "string"},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.cfg.Validate(), ErrConfig)
		})
	}
}

func TestNormalizeDefaults(t *testing.T) {
	orig := DeviceConfig{
		ID:   "a",
		Read: RequestSpec{URL: "http://a/state", Headers: map[string]any{"K": "v"}},
		Ports: map[string]PortConfig{
			"relay": {Writable: true},
			"temp":  {Type: PortTypeNumber, Write: &RequestSpec{Params: map[string]any{"t": "x"}}},
		},
	}
	n, err := orig.Normalize()
	require.NoError(t, err)

	assert.Equal(t, DefaultReadMethod, n.Read.Method)
	assert.Equal(t, DefaultWriteMethod, n.Write.Method)
	assert.Equal(t, "http://a/state", n.Write.URL)
	assert.Equal(t, AuthNone, n.Auth.Type)
	assert.Equal(t, DefaultTimeoutSeconds, n.Timeout)
	assert.Equal(t, DefaultPollIntervalSeconds, n.PollInterval)
	assert.Equal(t, PortTypeBoolean, n.Ports["relay"].Type)
	assert.Equal(t, "relay", n.Ports["relay"].ID)

	// the source definition is left alone
	assert.Empty(t, orig.Read.Method)
	assert.Nil(t, orig.Write)
	n.Read.Headers["K"] = "changed"
	n.Ports["temp"].Write.Params["t"] = "changed"
	assert.Equal(t, "v", orig.Read.Headers["K"])
	assert.Equal(t, "x", orig.Ports["temp"].Write.Params["t"])
}

func TestMergeRequest(t *testing.T) {
	base := RequestSpec{
		Method:  "POST",
		URL:     "http://a/set",
		Headers: map[string]any{"A": "1"},
		Body:    map[string]any{"x": []any{1, 2}},
	}
	override := RequestSpec{Method: "PUT", Params: map[string]any{"p": "{{ value }}"}}

	merged := MergeRequest(base, override)
	assert.Equal(t, "PUT", merged.Method)
	assert.Equal(t, "http://a/set", merged.URL)
	assert.Equal(t, map[string]any{"A": "1"}, merged.Headers)
	assert.Equal(t, map[string]any{"p": "{{ value }}"}, merged.Params)
	assert.Equal(t, map[string]any{"x": []any{1, 2}}, merged.Body)

	merged.Headers["A"] = "2"
	merged.Body.(map[string]any)["x"].([]any)[0] = 9
	merged.Params["p"] = "changed"
	assert.Equal(t, "1", base.Headers["A"])
	assert.Equal(t, 1, base.Body.(map[string]any)["x"].([]any)[0])
	assert.Equal(t, "{{ value }}", override.Params["p"])

	aliased := MergeRequest(base, RequestSpec{RequestBody: "raw"})
	assert.Equal(t, "raw", aliased.BodyValue())
	assert.Nil(t, aliased.RequestBody)
}

func TestTrueValues(t *testing.T) {
	assert.Equal(t, []any{true}, ReadRule{}.TrueValues())
	assert.Equal(t, []any{"on"}, ReadRule{TrueValue: "on"}.TrueValues())
	assert.Equal(t, []any{1, "yes"}, ReadRule{TrueValue: []any{1, "yes"}}.TrueValues())
}
