// Package transport sends built request descriptors to devices over HTTP.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"generichttp/pkg/request"

	"github.com/hashicorp/go-cleanhttp"
)

var (
	// ErrTransport wraps every failure to obtain a response from a device.
	ErrTransport = errors.New("transport failure")
	// ErrBodyTooLarge is the ReadErr of a response whose body exceeds maxBodySize.
	ErrBodyTooLarge = errors.New("response body exceeds limit")
)

// maxBodySize bounds the response body. Larger bodies are reported incomplete.
const maxBodySize = 4 << 20

// Response is what a device answered.
type Response struct {
	Status  int
	Headers map[string][]string
	Body    []byte
	// ReadErr is set when the status line arrived but the body could not be read completely.
	ReadErr error
}

// Doer sends a descriptor and returns the device response.
type Doer interface {
	Do(ctx context.Context, d *request.Descriptor) (*Response, error)
}

// Client is the default Doer. It keeps one pooled client that verifies
// certificates and one that does not, both sharing nothing with http.DefaultClient.
type Client struct {
	verified   *http.Client
	unverified *http.Client
}

// NewClient creates a Client with pooled keep-alive transports.
func NewClient() *Client {
	insecure := cleanhttp.DefaultPooledTransport()
	insecure.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opted in per device

	return &Client{
		verified:   &http.Client{Transport: cleanhttp.DefaultPooledTransport()},
		unverified: &http.Client{Transport: insecure},
	}
}

// Do sends d, bounded by its timeout.
func (c *Client) Do(ctx context.Context, d *request.Descriptor) (*Response, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	req, err := d.HTTPRequest(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	client := c.verified
	if !d.TLSVerify {
		client = c.unverified
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, d.Method, d.URL, err)
	}
	defer resp.Body.Close()

	out := &Response{
		Status:  resp.StatusCode,
		Headers: resp.Header,
	}
	out.Body, out.ReadErr = io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if out.ReadErr == nil && len(out.Body) > maxBodySize {
		out.Body = out.Body[:maxBodySize]
		out.ReadErr = fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, maxBodySize)
	}
	if out.ReadErr != nil {
		slog.Debug("Incomplete response body", "component", "Transport", "url", d.URL, "error", out.ReadErr)
	}
	return out, nil
}
