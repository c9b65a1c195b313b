// Package device drives the read and write cycles of one declaratively configured HTTP device.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"generichttp/pkg/extract"
	"generichttp/pkg/metrics"
	"generichttp/pkg/models"
	"generichttp/pkg/request"
	"generichttp/pkg/snapshot"
	"generichttp/pkg/templating"
	"generichttp/pkg/transport"
)

var (
	ErrUnknownPort  = errors.New("unknown port")
	ErrNotWritable  = errors.New("port is not writable")
	ErrInvalidValue = errors.New("invalid port value")
)

// Device owns the configuration, the response cache and the ports of one device.
type Device struct {
	cfg      models.DeviceConfig
	renderer *templating.Renderer
	builder  *request.Builder
	doer     transport.Doer
	cache    *snapshot.Cache
	attrs    AttributeSource
	metrics  *metrics.Metrics

	ports   map[string]*Port
	portIDs []string

	online   atomic.Bool
	lastPoll atomic.Pointer[time.Time]
}

// Option customizes a Device at construction.
type Option func(*Device)

// WithAttributeSource replaces the static port attribute source.
func WithAttributeSource(src AttributeSource) Option {
	return func(d *Device) { d.attrs = src }
}

// WithRenderer shares a renderer between devices.
func WithRenderer(r *templating.Renderer) Option {
	return func(d *Device) { d.renderer = r }
}

// WithMetrics counts extraction errors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Device) { d.metrics = m }
}

// New normalizes cfg and prepares every port. Passwords must already be decrypted.
func New(cfg models.DeviceConfig, doer transport.Doer, opts ...Option) (*Device, error) {
	normalized, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}

	d := &Device{
		cfg:   normalized,
		doer:  doer,
		cache: snapshot.NewCache(),
		attrs: StaticAttributes{},
		ports: make(map[string]*Port, len(normalized.Ports)),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.renderer == nil {
		d.renderer = templating.NewRenderer()
	}
	d.builder = request.NewBuilder(d.renderer, *normalized.Auth, normalized.IgnoreInvalidCert,
		time.Duration(normalized.Timeout)*time.Second)

	for id, pc := range normalized.Ports {
		ex, err := extract.NewExtractor(pc, normalized.IgnoreResponseCode)
		if err != nil {
			return nil, fmt.Errorf("%w: device %q port %q: %v", models.ErrConfig, normalized.ID, id, err)
		}
		d.ports[id] = &Port{cfg: pc, device: d, extractor: ex}
		d.portIDs = append(d.portIDs, id)
	}
	sort.Strings(d.portIDs)
	d.online.Store(true)

	return d, nil
}

func (d *Device) ID() string { return d.cfg.ID }

// Config returns the normalized configuration.
func (d *Device) Config() models.DeviceConfig { return d.cfg }

// PollInterval is the time between two scheduled read cycles.
func (d *Device) PollInterval() time.Duration {
	return time.Duration(d.cfg.PollInterval) * time.Second
}

// Port returns the port with the given id.
func (d *Device) Port(id string) (*Port, error) {
	p, ok := d.ports[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownPort, d.cfg.ID, id)
	}
	return p, nil
}

// Ports returns all ports ordered by id.
func (d *Device) Ports() []*Port {
	out := make([]*Port, 0, len(d.portIDs))
	for _, id := range d.portIDs {
		out = append(out, d.ports[id])
	}
	return out
}

// Snapshot returns the last stored read response.
func (d *Device) Snapshot() *snapshot.Snapshot { return d.cache.Load() }

func (d *Device) Online() bool { return d.online.Load() }

func (d *Device) SetOnline(online bool) { d.online.Store(online) }

// LastPoll reports when the last successful read cycle finished.
func (d *Device) LastPoll() (time.Time, bool) {
	t := d.lastPoll.Load()
	if t == nil {
		return time.Time{}, false
	}
	return *t, true
}

// Poll runs one read cycle: build the read request, send it, store the response
// and refresh every port value. On failure the previous snapshot and values are kept.
// A response that arrives after the one of a later cycle is discarded.
func (d *Device) Poll(ctx context.Context) (map[string]any, error) {
	slog.Debug("read request", "component", "Device", "device_id", d.cfg.ID,
		"method", d.cfg.Read.Method, "url", d.cfg.Read.URL)

	desc, err := d.builder.Build(ctx, d.cfg.Read, templating.EmptyScope())
	if err != nil {
		return nil, fmt.Errorf("device %q: building read request: %w", d.cfg.ID, err)
	}

	gen := d.cache.Next()
	resp, err := d.doer.Do(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("device %q: %w", d.cfg.ID, err)
	}
	if resp.ReadErr != nil {
		return nil, fmt.Errorf("device %q: %w: reading response: %v", d.cfg.ID, transport.ErrTransport, resp.ReadErr)
	}

	s, stored := d.cache.StoreGeneration(gen, resp.Status, resp.Headers, resp.Body)
	if !stored {
		// a read cycle started later already answered; its values stand
		slog.Debug("Discarding stale read response", "component", "Device", "device_id", d.cfg.ID,
			"generation", gen, "current_generation", s.Generation)
	} else {
		now := s.ReceivedAt
		d.lastPoll.Store(&now)
	}

	values := make(map[string]any, len(d.ports))
	for _, id := range d.portIDs {
		p := d.ports[id]
		v, err := p.refresh(s)
		if err != nil {
			slog.Warn("Could not extract port value, keeping last value", "component", "Device",
				"device_id", d.cfg.ID, "port_id", id, "rule", p.extractor.Rule().String(), "error", err)
			d.metrics.ObserveExtractionError(d.cfg.ID, id)
		}
		values[id] = v
	}
	return values, nil
}

// ReadPort extracts the value of a port from the current snapshot.
func (d *Device) ReadPort(portID string) (any, error) {
	p, err := d.Port(portID)
	if err != nil {
		return nil, err
	}
	return p.refresh(d.cache.Load())
}

// WritePort sends a new value to a writable port, then runs exactly one read cycle.
// A request that cannot be built is not sent and no read cycle follows.
// A send failure is returned after the read cycle ran.
func (d *Device) WritePort(ctx context.Context, portID string, value any) error {
	p, err := d.Port(portID)
	if err != nil {
		return err
	}
	if !p.cfg.Writable {
		return fmt.Errorf("%w: %s/%s", ErrNotWritable, d.cfg.ID, portID)
	}
	value, err = p.checkValue(value)
	if err != nil {
		return err
	}

	spec := d.writeSpec(p)
	slog.Debug("write request", "component", "Device", "device_id", d.cfg.ID, "port_id", portID,
		"method", spec.Method, "url", spec.URL)

	scope := templating.NewScope(map[string]any{
		"port":      p.templateView(),
		"value":     p.Value(),
		"new_value": value,
		"attrs": templating.Lazy(func(ctx context.Context) (any, error) {
			return p.Attributes(ctx)
		}),
	})

	desc, err := d.builder.Build(ctx, spec, scope)
	if err != nil {
		return fmt.Errorf("device %q port %q: building write request: %w", d.cfg.ID, portID, err)
	}

	var sendErr error
	resp, err := d.doer.Do(ctx, desc)
	switch {
	case err != nil:
		sendErr = fmt.Errorf("device %q port %q: %w", d.cfg.ID, portID, err)
	case resp.ReadErr != nil:
		slog.Error("write request failed", "component", "Device", "device_id", d.cfg.ID,
			"port_id", portID, "error", resp.ReadErr)
	}

	if _, err := d.Poll(ctx); err != nil {
		slog.Warn("Read after write failed", "component", "Device", "device_id", d.cfg.ID,
			"port_id", portID, "error", err)
	}
	return sendErr
}

// writeSpec merges the port level write overrides over the device write request.
func (d *Device) writeSpec(p *Port) models.RequestSpec {
	if p.cfg.Write == nil {
		return d.cfg.Write.Clone()
	}
	return models.MergeRequest(*d.cfg.Write, *p.cfg.Write)
}
