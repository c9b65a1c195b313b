// Package registry owns the configured devices and serves requests about them over channels.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"generichttp/pkg/database"
	"generichttp/pkg/device"
	"generichttp/pkg/metrics"
	"generichttp/pkg/models"
	"generichttp/pkg/templating"
	"generichttp/pkg/transport"
)

// ErrUnknownDevice is returned for device IDs that are not registered.
var ErrUnknownDevice = errors.New("unknown device")

// Registry holds every device and answers requests from the API, scheduler, poller and health monitor.
// Blocking device I/O (writes, forced polls) runs outside the request loop.
type Registry struct {
	requestsChan <-chan models.Request
	deviceEvents chan<- models.Event

	doer          transport.Doer
	renderer      *templating.Renderer
	metrics       *metrics.Metrics
	encryptionKey string

	devices map[string]*device.Device
	mu      sync.RWMutex
	wg      sync.WaitGroup
}

// NewRegistry creates an empty registry. deviceEvents may be nil.
func NewRegistry(
	requests <-chan models.Request,
	deviceEvents chan<- models.Event,
	doer transport.Doer,
	m *metrics.Metrics,
	encryptionKey string,
) *Registry {
	return &Registry{
		requestsChan:  requests,
		deviceEvents:  deviceEvents,
		doer:          doer,
		renderer:      templating.NewRenderer(),
		metrics:       m,
		encryptionKey: encryptionKey,
		devices:       make(map[string]*device.Device),
	}
}

// Load builds devices from their definitions. A definition that cannot be used is
// reported in the returned error and skipped; the others are registered.
func (r *Registry) Load(configs []models.DeviceConfig) error {
	var errs []error
	for _, cfg := range configs {
		if err := r.Add(cfg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Add builds and registers one device.
func (r *Registry) Add(cfg models.DeviceConfig) error {
	auth, err := database.DecryptAuth(cfg.Auth, r.encryptionKey)
	if err != nil {
		return fmt.Errorf("%w: device %q: cannot decrypt password: %v", models.ErrConfig, cfg.ID, err)
	}
	cfg.Auth = auth

	d, err := device.New(cfg, r.doer, device.WithRenderer(r.renderer), device.WithMetrics(r.metrics))
	if err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.devices[cfg.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: duplicate device id %q", models.ErrConfig, cfg.ID)
	}
	r.devices[cfg.ID] = d
	r.mu.Unlock()

	r.updateOnlineGauge()
	slog.Info("Device registered", "component", "Registry", "device_id", cfg.ID, "ports", len(cfg.Ports))

	if r.deviceEvents != nil {
		select {
		case r.deviceEvents <- models.Event{Type: models.EventDeviceAdded, Payload: cfg.ID}:
		default:
			slog.Warn("Channel full, dropping event", "component", "Registry", "event_type", models.EventDeviceAdded)
		}
	}
	return nil
}

// DeviceIDs returns the IDs of every registered device, sorted.
func (r *Registry) DeviceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Run starts the registry's main loop. On return, in-flight writes and polls have finished.
func (r *Registry) Run(ctx context.Context) {
	slog.Info("Starting registry", "component", "Registry")
	defer r.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Stopping registry", "component", "Registry")
			return
		case req := <-r.requestsChan:
			r.handleRequest(ctx, req)
		}
	}
}

// handleRequest routes a request to its handler.
func (r *Registry) handleRequest(ctx context.Context, req models.Request) {
	switch req.Operation {
	case models.OpWritePort:
		r.async(ctx, req, r.handleWrite)
		return
	case models.OpPoll:
		r.async(ctx, req, r.handlePoll)
		return
	}

	var resp models.Response
	switch req.Operation {
	case models.OpList:
		resp.Data = r.summaries()
	case models.OpGet:
		resp = r.withDevice(req.DeviceID, func(d *device.Device) models.Response {
			return models.Response{Data: summarize(d)}
		})
	case models.OpGetDevice:
		resp = r.withDevice(req.DeviceID, func(d *device.Device) models.Response {
			return models.Response{Data: d}
		})
	case models.OpReadPort:
		resp = r.withDevice(req.DeviceID, func(d *device.Device) models.Response {
			return readPort(d, req.PortID)
		})
	case models.OpSetOnline:
		resp = r.handleSetOnline(req)
	case models.OpGetBatch:
		resp = r.handleGetBatch(req)
	default:
		resp.Error = fmt.Errorf("unknown operation: %s", req.Operation)
	}

	req.ReplyCh <- resp
}

// async answers req from its own goroutine.
func (r *Registry) async(ctx context.Context, req models.Request, handle func(context.Context, models.Request) models.Response) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		req.ReplyCh <- handle(ctx, req)
	}()
}

func (r *Registry) lookup(id string) (*device.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	return d, nil
}

func (r *Registry) withDevice(id string, fn func(d *device.Device) models.Response) models.Response {
	d, err := r.lookup(id)
	if err != nil {
		return models.Response{Error: err}
	}
	return fn(d)
}

func (r *Registry) summaries() []models.DeviceSummary {
	ids := r.DeviceIDs()
	out := make([]models.DeviceSummary, 0, len(ids))
	for _, id := range ids {
		if d, err := r.lookup(id); err == nil {
			out = append(out, summarize(d))
		}
	}
	return out
}

func (r *Registry) handleWrite(ctx context.Context, req models.Request) models.Response {
	write, ok := req.Payload.(*models.PortWrite)
	if !ok {
		return models.Response{Error: fmt.Errorf("invalid payload type")}
	}
	d, err := r.lookup(req.DeviceID)
	if err != nil {
		return models.Response{Error: err}
	}

	err = d.WritePort(ctx, req.PortID, write.Value)
	r.metrics.ObserveWrite(req.DeviceID, req.PortID, err)
	if err != nil {
		slog.Error("Port write failed", "component", "Registry", "device_id", req.DeviceID, "port_id", req.PortID, "error", err)
		return models.Response{Error: err}
	}
	slog.Info("Port written", "component", "Registry", "device_id", req.DeviceID, "port_id", req.PortID)
	return readPort(d, req.PortID)
}

func (r *Registry) handlePoll(ctx context.Context, req models.Request) models.Response {
	d, err := r.lookup(req.DeviceID)
	if err != nil {
		return models.Response{Error: err}
	}
	if _, err := d.Poll(ctx); err != nil {
		return models.Response{Error: err}
	}
	return models.Response{Data: summarize(d)}
}

func (r *Registry) handleSetOnline(req models.Request) models.Response {
	online, ok := req.Payload.(bool)
	if !ok {
		return models.Response{Error: fmt.Errorf("invalid payload type")}
	}
	d, err := r.lookup(req.DeviceID)
	if err != nil {
		return models.Response{Error: err}
	}

	d.SetOnline(online)
	r.updateOnlineGauge()
	slog.Info("Device state changed", "component", "Registry", "device_id", req.DeviceID, "online", online)
	return models.Response{}
}

// handleGetBatch returns the poll intervals of the requested devices.
// Unknown IDs are skipped silently.
func (r *Registry) handleGetBatch(req models.Request) models.Response {
	r.mu.RLock()
	defer r.mu.RUnlock()

	intervals := make(map[string]int, len(req.IDs))
	for _, id := range req.IDs {
		if d, ok := r.devices[id]; ok {
			intervals[id] = d.Config().PollInterval
		}
	}
	return models.Response{Data: &models.BatchScheduleResponse{Intervals: intervals}}
}

func (r *Registry) updateOnlineGauge() {
	if r.metrics == nil {
		return
	}
	r.mu.RLock()
	online := 0
	for _, d := range r.devices {
		if d.Online() {
			online++
		}
	}
	r.mu.RUnlock()
	r.metrics.DevicesOnline.Set(float64(online))
}
