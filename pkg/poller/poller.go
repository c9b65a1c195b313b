package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"generichttp/pkg/device"
	"generichttp/pkg/metrics"
	"generichttp/pkg/models"
	"generichttp/pkg/worker"

	"github.com/google/uuid"
)

// Poller runs the read cycles the scheduler asks for on a worker pool.
type Poller struct {
	pool    *worker.Pool[*device.Device, models.PollResult]
	metrics *metrics.Metrics

	// Request channel to the registry for device lookups
	registryReqChan chan<- models.Request

	// Input channel: receives IDs of due devices from scheduler
	InputChan <-chan []string

	// Output channels: poll results for persistence, health events for the monitor
	OutputChan chan<- models.PollResult
	HealthChan chan<- models.Event

	// Devices whose read cycle is still running
	inFlight map[string]bool
	mu       sync.Mutex
}

// NewPoller creates a new Poller instance. OutputChan may be nil when history is disabled.
func NewPoller(
	workerCount int,
	bufferSize int,
	registryReqChan chan<- models.Request,
	inputChan <-chan []string,
	outputChan chan<- models.PollResult,
	healthChan chan<- models.Event,
	m *metrics.Metrics,
) *Poller {
	p := &Poller{
		metrics:         m,
		registryReqChan: registryReqChan,
		InputChan:       inputChan,
		OutputChan:      outputChan,
		HealthChan:      healthChan,
		inFlight:        make(map[string]bool),
	}
	p.pool = worker.NewPool[*device.Device, models.PollResult](workerCount, "PollPool", bufferSize, p.pollDevice)
	return p
}

// Run starts the poller's main loop.
func (poller *Poller) Run(ctx context.Context) {
	slog.Info("Starting main loop", "component", "Poller")

	// Start the worker pool
	poller.pool.Start(ctx)

	// Start result collector
	go poller.collectResults(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Context cancelled, shutting down", "component", "Poller")
			return

		case deviceIDs := <-poller.InputChan:
			slog.Debug("Received devices from scheduler", "component", "Poller", "count", len(deviceIDs))
			for _, id := range deviceIDs {
				poller.submit(ctx, id)
			}
		}
	}
}

// submit queues a read cycle unless one is already running for the device.
func (poller *Poller) submit(ctx context.Context, deviceID string) {
	poller.mu.Lock()
	if poller.inFlight[deviceID] {
		poller.mu.Unlock()
		slog.Debug("Previous read cycle still running, skipping", "component", "Poller", "device_id", deviceID)
		return
	}
	poller.mu.Unlock()

	dev := poller.getDevice(ctx, deviceID)
	if dev == nil {
		return
	}

	poller.mu.Lock()
	poller.inFlight[deviceID] = true
	poller.mu.Unlock()

	if !poller.pool.Submit(ctx, dev) {
		poller.done(deviceID)
	}
}

// getDevice fetches a device handle from the registry.
func (poller *Poller) getDevice(ctx context.Context, deviceID string) *device.Device {
	replyCh := make(chan models.Response, 1)
	select {
	case poller.registryReqChan <- models.Request{Operation: models.OpGetDevice, DeviceID: deviceID, ReplyCh: replyCh}:
	case <-ctx.Done():
		return nil
	}

	var resp models.Response
	select {
	case resp = <-replyCh:
	case <-ctx.Done():
		return nil
	}
	if resp.Error != nil {
		slog.Debug("Device not found in registry (removed?)", "component", "Poller", "device_id", deviceID, "error", resp.Error)
		return nil
	}

	dev, ok := resp.Data.(*device.Device)
	if !ok {
		slog.Error("Invalid device response type", "component", "Poller", "device_id", deviceID)
		return nil
	}
	return dev
}

// pollDevice runs on a pool worker.
func (poller *Poller) pollDevice(ctx context.Context, dev *device.Device) models.PollResult {
	result := models.PollResult{
		CycleID:   uuid.NewString(),
		DeviceID:  dev.ID(),
		StartedAt: time.Now(),
	}
	result.Values, result.Error = dev.Poll(ctx)
	result.Duration = time.Since(result.StartedAt)

	if result.Error != nil {
		slog.Warn("Read cycle failed", "component", "Poller", "device_id", dev.ID(),
			"cycle_id", result.CycleID, "error", result.Error)
	} else {
		slog.Debug("Read cycle done", "component", "Poller", "device_id", dev.ID(),
			"cycle_id", result.CycleID, "duration_ms", result.Duration.Milliseconds())
	}
	return result
}

// collectResults fans results out to persistence and the health monitor.
func (poller *Poller) collectResults(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-poller.pool.Results():
			if !ok {
				return
			}
			poller.done(result.DeviceID)
			poller.metrics.ObservePoll(result.DeviceID, result.Error, result.Duration)
			poller.publish(ctx, result)
		}
	}
}

func (poller *Poller) publish(ctx context.Context, result models.PollResult) {
	event := models.Event{Type: models.EventPollSucceeded}
	reason := ""
	if result.Error != nil {
		event.Type = models.EventPollFailed
		reason = result.Error.Error()
	}
	event.Payload = &models.DeviceHealthEvent{
		DeviceID:  result.DeviceID,
		Reason:    reason,
		Timestamp: result.StartedAt,
	}

	if poller.HealthChan != nil {
		select {
		case poller.HealthChan <- event:
		default:
			slog.Warn("Channel full, dropping event", "component", "Poller", "event_type", event.Type)
		}
	}

	if poller.OutputChan != nil && result.Success() {
		select {
		case poller.OutputChan <- result:
		case <-ctx.Done():
		}
	}
}

func (poller *Poller) done(deviceID string) {
	poller.mu.Lock()
	delete(poller.inFlight, deviceID)
	poller.mu.Unlock()
}
