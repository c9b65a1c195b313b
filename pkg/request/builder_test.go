package request

import (
	"context"
	"io"
	"testing"
	"time"

	"generichttp/pkg/models"
	"generichttp/pkg/templating"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuilder(auth models.AuthSpec, ignoreInvalidCert bool) *Builder {
	return NewBuilder(templating.NewRenderer(), auth, ignoreInvalidCert, 10*time.Second)
}

func TestBuildWithoutPlaceholdersIsContextInvariant(t *testing.T) {
	b := newBuilder(models.AuthSpec{Type: models.AuthNone}, false)
	spec := models.RequestSpec{
		Method:  "GET",
		URL:     "http://device.local/status",
		Headers: map[string]any{"Accept": "application/json"},
		Params:  map[string]any{"verbose": 1},
	}

	first, err := b.Build(context.Background(), spec, templating.EmptyScope())
	require.NoError(t, err)
	second, err := b.Build(context.Background(), spec, templating.NewScope(map[string]any{"value": 3, "new_value": true}))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "GET", first.Method)
	assert.Equal(t, "http://device.local/status", first.URL)
	assert.Equal(t, map[string][]string{"verbose": {"1"}}, first.Params)
	assert.True(t, first.TLSVerify)
	assert.Equal(t, 10*time.Second, first.Timeout)
	assert.Nil(t, first.Body)
	assert.Nil(t, first.Auth)
	assert.Nil(t, first.Cookies)
}

func TestBuildJSONBody(t *testing.T) {
	b := newBuilder(models.AuthSpec{}, false)
	scope := templating.NewScope(map[string]any{"new_value": 42})

	tests := []struct {
		name        string
		headers     map[string]any
		body        any
		wantBody    string
		wantHeaders map[string]string
	}{
		{
			name:        "mapping body adds content type",
			body:        map[string]any{"value": "{{ new_value }}", "on": true},
			wantBody:    `{"on":true,"value":42}`,
			wantHeaders: map[string]string{"Content-Type": "application/json"},
		},
		{
			name:        "existing content type is kept",
			headers:     map[string]any{"content-type": "application/vnd.device+json"},
			body:        []any{"{{ new_value }}"},
			wantBody:    `[42]`,
			wantHeaders: map[string]string{"content-type": "application/vnd.device+json"},
		},
		{
			name:     "string body is sent verbatim",
			body:     "value={{ new_value }}",
			wantBody: "value=42",
		},
		{
			name:     "string body rendering to number is serialized",
			body:     "{{ new_value }}",
			wantBody: "42",
			wantHeaders: map[string]string{
				"Content-Type": "application/json",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := b.Build(context.Background(), models.RequestSpec{
				Method:  "POST",
				URL:     "http://device.local/set",
				Headers: tt.headers,
				Body:    tt.body,
			}, scope)
			require.NoError(t, err)
			require.NotNil(t, d.Body)
			assert.Equal(t, tt.wantBody, *d.Body)
			assert.Equal(t, tt.wantHeaders, d.Headers)
		})
	}
}

func TestBuildDoesNotMutateSpec(t *testing.T) {
	b := newBuilder(models.AuthSpec{}, false)
	spec := models.RequestSpec{
		Method:  "PUT",
		URL:     "http://device.local/{{ port_id }}",
		Headers: map[string]any{"X-Id": "{{ port_id }}"},
		Body:    map[string]any{"id": "{{ port_id }}"},
	}

	_, err := b.Build(context.Background(), spec, templating.NewScope(map[string]any{"port_id": "relay1"}))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"X-Id": "{{ port_id }}"}, spec.Headers)
	assert.Equal(t, map[string]any{"id": "{{ port_id }}"}, spec.Body)
}

func TestBuildRequestBodyAlias(t *testing.T) {
	b := newBuilder(models.AuthSpec{}, false)
	d, err := b.Build(context.Background(), models.RequestSpec{
		Method:      "POST",
		URL:         "http://device.local/set",
		RequestBody: map[string]any{"a": 1},
	}, templating.EmptyScope())
	require.NoError(t, err)
	require.NotNil(t, d.Body)
	assert.Equal(t, `{"a":1}`, *d.Body)
}

func TestBuildTemplatedFields(t *testing.T) {
	b := newBuilder(models.AuthSpec{}, true)
	scope := templating.NewScope(map[string]any{"new_value": true, "port": map[string]any{"id": "relay1"}})

	d, err := b.Build(context.Background(), models.RequestSpec{
		Method:  "GET",
		URL:     "http://device.local/relay/{{ port.id }}",
		Params:  map[string]any{"turn": "{{ new_value ? 'on' : 'off' }}", "ch": []any{1, "{{ 1 + 1 }}"}},
		Headers: map[string]any{"X-{{ port.id }}": "{{ new_value }}"},
		Cookies: map[string]any{"session": "s-{{ port.id }}"},
	}, scope)
	require.NoError(t, err)

	assert.Equal(t, "http://device.local/relay/relay1", d.URL)
	assert.False(t, d.TLSVerify)
	assert.Equal(t, map[string][]string{"turn": {"on"}, "ch": {"1", "2"}}, d.Params)
	assert.Equal(t, map[string]string{"X-relay1": "true"}, d.Headers)
	assert.Equal(t, map[string]string{"session": "s-relay1"}, d.Cookies)
}

func TestBuildAuth(t *testing.T) {
	tests := []struct {
		name string
		auth models.AuthSpec
		want *BasicAuth
	}{
		{"basic with credentials", models.AuthSpec{Type: models.AuthBasic, Username: "admin", Password: "secret"}, &BasicAuth{Username: "admin", Password: "secret"}},
		{"basic without credentials", models.AuthSpec{Type: models.AuthBasic}, &BasicAuth{}},
		{"none", models.AuthSpec{Type: models.AuthNone, Username: "admin"}, nil},
		{"unknown kind", models.AuthSpec{Type: "digest", Username: "admin"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := newBuilder(tt.auth, false).Build(context.Background(), models.RequestSpec{Method: "GET", URL: "http://x"}, templating.EmptyScope())
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Auth)
		})
	}
}

func TestBuildErrors(t *testing.T) {
	b := newBuilder(models.AuthSpec{}, false)

	d, err := b.Build(context.Background(), models.RequestSpec{Method: "GET"}, templating.EmptyScope())
	assert.Nil(t, d)
	assert.ErrorIs(t, err, models.ErrConfig)

	d, err = b.Build(context.Background(), models.RequestSpec{
		Method: "POST",
		URL:    "http://device.local",
		Body:   map[string]any{"v": "{{ undefined_name }}"},
	}, templating.EmptyScope())
	assert.Nil(t, d)
	assert.ErrorIs(t, err, templating.ErrTemplate)

	d, err = b.Build(context.Background(), models.RequestSpec{
		Method:  "GET",
		URL:     "http://device.local",
		Headers: map[string]any{"X": "{{ 1 + }}"},
	}, templating.EmptyScope())
	assert.Nil(t, d)
	assert.ErrorIs(t, err, templating.ErrTemplate)
}

func TestDescriptorHTTPRequest(t *testing.T) {
	body := `{"on":true}`
	d := &Descriptor{
		Method:  "POST",
		URL:     "http://device.local/set?existing=1",
		Headers: map[string]string{"Content-Type": "application/json", "X-Token": "t"},
		Params:  map[string][]string{"ch": {"1", "2"}},
		Cookies: map[string]string{"session": "abc"},
		Body:    &body,
		Auth:    &BasicAuth{Username: "u", Password: "p"},
	}

	req, err := d.HTTPRequest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, []string{"1"}, req.URL.Query()["existing"])
	assert.Equal(t, []string{"1", "2"}, req.URL.Query()["ch"])
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "t", req.Header.Get("X-Token"))

	cookie, err := req.Cookie("session")
	require.NoError(t, err)
	assert.Equal(t, "abc", cookie.Value)

	user, pass, ok := req.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)

	data, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
}
