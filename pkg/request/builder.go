// Package request turns declarative request specs into concrete HTTP requests.
package request

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"generichttp/pkg/models"
	"generichttp/pkg/templating"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const contentTypeJSON = "application/json"

// BasicAuth carries credentials for the Authorization header.
type BasicAuth struct {
	Username string
	Password string
}

// Descriptor is a fully resolved request, ready to be sent.
type Descriptor struct {
	Method    string
	URL       string
	Headers   map[string]string
	Params    map[string][]string
	Cookies   map[string]string
	Body      *string
	Auth      *BasicAuth
	TLSVerify bool
	Timeout   time.Duration
}

// Builder builds requests for one device.
type Builder struct {
	renderer  *templating.Renderer
	auth      models.AuthSpec
	tlsVerify bool
	timeout   time.Duration
}

// NewBuilder creates a Builder applying the device level auth, TLS and timeout settings.
func NewBuilder(renderer *templating.Renderer, auth models.AuthSpec, ignoreInvalidCert bool, timeout time.Duration) *Builder {
	return &Builder{
		renderer:  renderer,
		auth:      auth,
		tlsVerify: !ignoreInvalidCert,
		timeout:   timeout,
	}
}

// Build resolves every placeholder of spec against scope.
// On any error no descriptor is returned.
func (b *Builder) Build(ctx context.Context, spec models.RequestSpec, scope *templating.Scope) (*Descriptor, error) {
	if spec.Method == "" || spec.URL == "" {
		return nil, fmt.Errorf("%w: request needs both method and url", models.ErrConfig)
	}

	// Header defaults are applied to a private copy of the raw map
	headers := make(map[string]any, len(spec.Headers)+1)
	for k, v := range spec.Headers {
		headers[k] = models.CloneValue(v)
	}

	var body *string
	if raw := spec.BodyValue(); raw != nil {
		resolved, err := b.renderer.Substitute(ctx, raw, scope)
		if err != nil {
			return nil, fmt.Errorf("resolving body: %w", err)
		}
		if resolved != nil {
			text, isString := resolved.(string)
			if !isString {
				data, err := json.Marshal(resolved)
				if err != nil {
					return nil, fmt.Errorf("encoding body: %w", err)
				}
				text = string(data)
				if !hasHeader(headers, "Content-Type") {
					headers["Content-Type"] = contentTypeJSON
				}
			}
			body = &text
		}
	}

	url, err := b.renderer.Render(ctx, spec.URL, scope)
	if err != nil {
		return nil, fmt.Errorf("resolving url: %w", err)
	}

	d := &Descriptor{
		Method:    spec.Method,
		URL:       url,
		TLSVerify: b.tlsVerify,
		Timeout:   b.timeout,
	}

	if spec.Params != nil {
		params, err := b.renderer.SubstituteMap(ctx, spec.Params, scope)
		if err != nil {
			return nil, fmt.Errorf("resolving params: %w", err)
		}
		d.Params = make(map[string][]string, len(params))
		for k, v := range params {
			d.Params[k] = paramValues(v)
		}
	}

	if len(headers) > 0 {
		resolved, err := b.renderer.SubstituteMap(ctx, headers, scope)
		if err != nil {
			return nil, fmt.Errorf("resolving headers: %w", err)
		}
		d.Headers = stringMap(resolved)
	}

	if spec.Cookies != nil {
		cookies, err := b.renderer.SubstituteMap(ctx, spec.Cookies, scope)
		if err != nil {
			return nil, fmt.Errorf("resolving cookies: %w", err)
		}
		d.Cookies = stringMap(cookies)
	}

	d.Body = body

	if b.auth.Type == models.AuthBasic {
		d.Auth = &BasicAuth{Username: b.auth.Username, Password: b.auth.Password}
	}

	return d, nil
}

// HTTPRequest converts the descriptor into a *http.Request bound to ctx.
func (d *Descriptor) HTTPRequest(ctx context.Context) (*http.Request, error) {
	var reader *strings.Reader
	if d.Body != nil {
		reader = strings.NewReader(*d.Body)
	}

	var req *http.Request
	var err error
	if reader != nil {
		req, err = http.NewRequestWithContext(ctx, d.Method, d.URL, reader)
	} else {
		req, err = http.NewRequestWithContext(ctx, d.Method, d.URL, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	if len(d.Params) > 0 {
		query := req.URL.Query()
		for k, values := range d.Params {
			for _, v := range values {
				query.Add(k, v)
			}
		}
		req.URL.RawQuery = query.Encode()
	}

	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}

	for name, value := range d.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	if d.Auth != nil {
		req.SetBasicAuth(d.Auth.Username, d.Auth.Password)
	}

	return req, nil
}

func hasHeader(headers map[string]any, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func stringMap(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = templating.ToString(v)
	}
	return out
}

// paramValues expands list values into repeated query parameters.
func paramValues(v any) []string {
	if list, ok := v.([]any); ok {
		values := make([]string, 0, len(list))
		for _, e := range list {
			values = append(values, templating.ToString(e))
		}
		return values
	}
	return []string{templating.ToString(v)}
}
