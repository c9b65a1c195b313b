package models

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrConfig marks a device or port definition that cannot be used.
var ErrConfig = errors.New("invalid configuration")

// Port value types
const (
	PortTypeBoolean = "boolean"
	PortTypeNumber  = "number"
)

// Auth types
const (
	AuthNone  = "none"
	AuthBasic = "basic"
)

const (
	DefaultTimeoutSeconds      = 10
	DefaultPollIntervalSeconds = 5
	DefaultReadMethod          = "GET"
	DefaultWriteMethod         = "POST"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RequestSpec is the declarative description of an outgoing HTTP request.
// Every string leaf except Method may contain {{ }} placeholders.
type RequestSpec struct {
	Method      string         `mapstructure:"method" json:"method,omitempty"`
	URL         string         `mapstructure:"url" json:"url,omitempty"`
	Headers     map[string]any `mapstructure:"headers" json:"headers,omitempty"`
	Params      map[string]any `mapstructure:"params" json:"params,omitempty"`
	Cookies     map[string]any `mapstructure:"cookies" json:"cookies,omitempty"`
	Body        any            `mapstructure:"body" json:"body,omitempty"`
	RequestBody any            `mapstructure:"request_body" json:"-"`
}

// AuthSpec holds the credentials passed through to the device.
type AuthSpec struct {
	Type              string `mapstructure:"type" json:"type" validate:"omitempty,oneof=none basic"`
	Username          string `mapstructure:"username" json:"username,omitempty"`
	Password          string `mapstructure:"password" json:"-"`
	EncryptedPassword string `mapstructure:"encrypted_password" json:"-" gocrypt:"aes"`
}

// ReadRule selects how a port value is derived from the last read response.
// JSONPath wins over BodyRegex; with neither set the value comes from the status code.
type ReadRule struct {
	JSONPath  string `mapstructure:"json_path" json:"json_path,omitempty"`
	BodyRegex string `mapstructure:"body_regex" json:"body_regex,omitempty"`
	TrueValue any    `mapstructure:"true_value" json:"true_value,omitempty"`
}

// TrueValues returns the raw values that map to boolean true.
func (r ReadRule) TrueValues() []any {
	switch v := r.TrueValue.(type) {
	case nil:
		return []any{true}
	case []any:
		return v
	default:
		return []any{v}
	}
}

// PortConfig is the definition of a single port of a device.
type PortConfig struct {
	ID         string         `mapstructure:"-" json:"id"`
	Type       string         `mapstructure:"type" json:"type" validate:"omitempty,oneof=boolean number"`
	Writable   bool           `mapstructure:"writable" json:"writable"`
	Read       ReadRule       `mapstructure:"read" json:"read"`
	Write      *RequestSpec   `mapstructure:"write" json:"write,omitempty"`
	Attributes map[string]any `mapstructure:"attributes" json:"attributes,omitempty"`
}

// DeviceConfig is the definition of a generic HTTP device as found in the devices file.
type DeviceConfig struct {
	ID                 string                `mapstructure:"id" json:"id" validate:"required"`
	Read               RequestSpec           `mapstructure:"read" json:"read"`
	Write              *RequestSpec          `mapstructure:"write" json:"write,omitempty"`
	Auth               *AuthSpec             `mapstructure:"auth" json:"auth,omitempty"`
	IgnoreResponseCode bool                  `mapstructure:"ignore_response_code" json:"ignore_response_code"`
	IgnoreInvalidCert  bool                  `mapstructure:"ignore_invalid_cert" json:"ignore_invalid_cert"`
	Timeout            int                   `mapstructure:"timeout" json:"timeout" validate:"gte=0"`
	PollInterval       int                   `mapstructure:"poll_interval" json:"poll_interval" validate:"gte=0"`
	Ports              map[string]PortConfig `mapstructure:"ports" json:"ports" validate:"dive"`
}

// Validate checks the definition against the schema rules.
func (c *DeviceConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: device %q: %v", ErrConfig, c.ID, err)
	}
	if c.Read.URL == "" {
		return fmt.Errorf("%w: device %q: read url is required", ErrConfig, c.ID)
	}
	return nil
}

// Normalize returns a copy of the definition with every default applied.
// The receiver is left untouched.
func (c DeviceConfig) Normalize() (DeviceConfig, error) {
	if err := c.Validate(); err != nil {
		return DeviceConfig{}, err
	}

	n := c
	n.Read = c.Read.Clone()
	if n.Read.Method == "" {
		n.Read.Method = DefaultReadMethod
	}

	var write RequestSpec
	if c.Write != nil {
		write = c.Write.Clone()
	}
	write = MergeRequest(RequestSpec{URL: n.Read.URL, Method: DefaultWriteMethod}, write)
	n.Write = &write

	auth := AuthSpec{Type: AuthNone}
	if c.Auth != nil {
		auth = *c.Auth
		if auth.Type == "" {
			auth.Type = AuthNone
		}
	}
	n.Auth = &auth

	if n.Timeout == 0 {
		n.Timeout = DefaultTimeoutSeconds
	}
	if n.PollInterval == 0 {
		n.PollInterval = DefaultPollIntervalSeconds
	}

	n.Ports = make(map[string]PortConfig, len(c.Ports))
	for id, port := range c.Ports {
		port.ID = id
		if port.Type == "" {
			port.Type = PortTypeBoolean
		}
		if port.Write != nil {
			w := port.Write.Clone()
			port.Write = &w
		}
		if port.Writable && MergeRequest(write, derefRequest(port.Write)).URL == "" {
			return DeviceConfig{}, fmt.Errorf("%w: device %q port %q: no write url", ErrConfig, c.ID, id)
		}
		n.Ports[id] = port
	}

	return n, nil
}

// BodyValue returns the request body, honoring the request_body alias.
func (r RequestSpec) BodyValue() any {
	if r.Body != nil {
		return r.Body
	}
	return r.RequestBody
}

// Clone returns a deep copy of the request spec.
func (r RequestSpec) Clone() RequestSpec {
	return RequestSpec{
		Method:      r.Method,
		URL:         r.URL,
		Headers:     cloneMap(r.Headers),
		Params:      cloneMap(r.Params),
		Cookies:     cloneMap(r.Cookies),
		Body:        CloneValue(r.Body),
		RequestBody: CloneValue(r.RequestBody),
	}
}

// MergeRequest lays override over base: fields set in override win, base fills the gaps.
// Neither argument is modified and the result shares no maps with them.
func MergeRequest(base, override RequestSpec) RequestSpec {
	merged := base.Clone()
	o := override.Clone()

	if o.Method != "" {
		merged.Method = o.Method
	}
	if o.URL != "" {
		merged.URL = o.URL
	}
	if o.Headers != nil {
		merged.Headers = o.Headers
	}
	if o.Params != nil {
		merged.Params = o.Params
	}
	if o.Cookies != nil {
		merged.Cookies = o.Cookies
	}
	if body := o.BodyValue(); body != nil {
		merged.Body = body
		merged.RequestBody = nil
	}
	return merged
}

// CloneValue deep-copies maps and slices of a JSON-like value.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	default:
		return v
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

func derefRequest(r *RequestSpec) RequestSpec {
	if r == nil {
		return RequestSpec{}
	}
	return *r
}
