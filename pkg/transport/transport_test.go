package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"generichttp/pkg/request"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Echo-Method", r.Method)
		w.Header().Set("X-Echo-Query", r.URL.RawQuery)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	body := `{"on":true}`
	resp, err := NewClient().Do(context.Background(), &request.Descriptor{
		Method:    http.MethodPost,
		URL:       srv.URL + "/set",
		Params:    map[string][]string{"ch": {"1"}},
		Body:      &body,
		TLSVerify: true,
		Timeout:   time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.Status)
	assert.Equal(t, body, string(resp.Body))
	assert.Equal(t, []string{"POST"}, resp.Headers["X-Echo-Method"])
	assert.Equal(t, []string{"ch=1"}, resp.Headers["X-Echo-Query"])
	assert.NoError(t, resp.ReadErr)
}

func TestDoBodyLimit(t *testing.T) {
	sizes := map[string]int{"/exact": maxBodySize, "/over": maxBodySize + 1<<20}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", sizes[r.URL.Path]))
	}))
	defer srv.Close()

	c := NewClient()
	get := func(path string) *Response {
		resp, err := c.Do(context.Background(), &request.Descriptor{Method: http.MethodGet, URL: srv.URL + path, TLSVerify: true, Timeout: 5 * time.Second})
		require.NoError(t, err)
		return resp
	}

	resp := get("/exact")
	assert.NoError(t, resp.ReadErr)
	assert.Len(t, resp.Body, maxBodySize)

	resp = get("/over")
	assert.ErrorIs(t, resp.ReadErr, ErrBodyTooLarge)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestDoTLSVerification(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	c := NewClient()
	d := &request.Descriptor{Method: http.MethodGet, URL: srv.URL, TLSVerify: true, Timeout: time.Second}

	_, err := c.Do(context.Background(), d)
	assert.ErrorIs(t, err, ErrTransport)

	d.TLSVerify = false
	resp, err := c.Do(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))
}

func TestDoTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := NewClient().Do(context.Background(), &request.Descriptor{
		Method:    http.MethodGet,
		URL:       srv.URL,
		TLSVerify: true,
		Timeout:   50 * time.Millisecond,
	})
	assert.ErrorIs(t, err, ErrTransport)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDoUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient().Do(context.Background(), &request.Descriptor{Method: http.MethodGet, URL: url, Timeout: time.Second})
	assert.ErrorIs(t, err, ErrTransport)
}
