package health

import (
	"context"
	"log/slog"
	"time"

	"generichttp/pkg/models"
)

// FailureRecord tracks failure state for a single device.
type FailureRecord struct {
	LastTime time.Time
	Count    int
}

// HealthMonitor tracks read cycle failures and marks devices offline once they exceed
// the threshold within the window. The next successful read cycle brings them back online.
// It only communicates via channels.
type HealthMonitor struct {
	failures        map[string]FailureRecord
	offline         map[string]bool
	eventsChan      <-chan models.Event   // Input: poll success/failure events
	registryReqChan chan<- models.Request // Output: online state changes
	window          time.Duration
	threshold       int
}

// NewHealthMonitor creates a new HealthMonitor instance.
func NewHealthMonitor(
	eventsChan <-chan models.Event,
	registryReqChan chan<- models.Request,
	window time.Duration,
	threshold int,
) *HealthMonitor {
	if threshold < 1 {
		threshold = 1
	}
	return &HealthMonitor{
		failures:        make(map[string]FailureRecord),
		offline:         make(map[string]bool),
		eventsChan:      eventsChan,
		registryReqChan: registryReqChan,
		window:          window,
		threshold:       threshold,
	}
}

// Run starts the health monitor's main loop.
func (hm *HealthMonitor) Run(ctx context.Context) {
	slog.Info("Starting health monitor", "component", "HealthMonitor", "window", hm.window.String(), "threshold", hm.threshold)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Stopping health monitor", "component", "HealthMonitor")
			return
		case event := <-hm.eventsChan:
			payload, ok := event.Payload.(*models.DeviceHealthEvent)
			if !ok {
				continue
			}
			switch event.Type {
			case models.EventPollFailed:
				hm.handleFailure(ctx, payload)
			case models.EventPollSucceeded:
				hm.handleSuccess(ctx, payload)
			}
		}
	}
}

// handleFailure processes a failure event and updates the failure count.
func (hm *HealthMonitor) handleFailure(ctx context.Context, event *models.DeviceHealthEvent) {
	if hm.offline[event.DeviceID] {
		return
	}
	record := hm.failures[event.DeviceID]

	if record.Count > 0 && event.Timestamp.Sub(record.LastTime) < hm.window {
		// Within window: increment count
		record.Count++
		slog.Debug("Failure count increased",
			"component", "HealthMonitor",
			"device_id", event.DeviceID,
			"reason", event.Reason,
			"count", record.Count,
			"threshold", hm.threshold,
		)
	} else {
		// Outside window: reset count to 1
		record.Count = 1
		slog.Debug("Failure window reset",
			"component", "HealthMonitor",
			"device_id", event.DeviceID,
			"reason", event.Reason,
		)
	}

	if record.Count >= hm.threshold {
		slog.Warn("Device exceeded failure threshold, marking offline",
			"component", "HealthMonitor",
			"device_id", event.DeviceID,
			"count", record.Count,
		)
		hm.offline[event.DeviceID] = true
		delete(hm.failures, event.DeviceID) // Clean up after state change
		hm.setOnline(ctx, event.DeviceID, false)
		return
	}

	record.LastTime = event.Timestamp
	hm.failures[event.DeviceID] = record
}

// handleSuccess clears the failure history and restores offline devices.
func (hm *HealthMonitor) handleSuccess(ctx context.Context, event *models.DeviceHealthEvent) {
	delete(hm.failures, event.DeviceID)
	if !hm.offline[event.DeviceID] {
		return
	}
	delete(hm.offline, event.DeviceID)
	slog.Info("Device answered again, marking online", "component", "HealthMonitor", "device_id", event.DeviceID)
	hm.setOnline(ctx, event.DeviceID, true)
}

// setOnline sends an online state change to the registry.
func (hm *HealthMonitor) setOnline(ctx context.Context, deviceID string, online bool) {
	replyCh := make(chan models.Response, 1)
	select {
	case hm.registryReqChan <- models.Request{
		Operation: models.OpSetOnline,
		DeviceID:  deviceID,
		Payload:   online,
		ReplyCh:   replyCh,
	}:
	case <-ctx.Done():
		return
	}

	// Wait for response (non-blocking in terms of other events)
	go func() {
		resp := <-replyCh
		if resp.Error != nil {
			slog.Error("Failed to change device state",
				"component", "HealthMonitor",
				"device_id", deviceID,
				"online", online,
				"error", resp.Error,
			)
		}
	}()
}
