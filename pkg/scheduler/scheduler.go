package scheduler

import (
	"context"
	"log/slog"
	"time"

	"generichttp/pkg/models"
)

// Scheduler drives the recurring read cycles of devices based on deadlines.
// Uses a min-heap priority queue to efficiently find expired deadlines.
type Scheduler struct {
	// One deadline per device, earliest first
	queue *DeadlineQueue

	// Request channel to the registry for poll interval lookups
	registryReqChan chan<- models.Request

	// Device added events (to add to queue)
	deviceEvents <-chan models.Event
	// Sends IDs of devices due for a read cycle to the poller
	OutputChan chan<- []string

	tickInterval time.Duration
	now          func() time.Time
}

// NewScheduler creates a new Scheduler instance.
func NewScheduler(
	deviceEvents <-chan models.Event,
	registryReqChan chan<- models.Request,
	outputChan chan<- []string,
	tickInterval time.Duration,
) *Scheduler {
	return &Scheduler{
		queue:           NewDeadlineQueue(),
		registryReqChan: registryReqChan,
		deviceEvents:    deviceEvents,
		OutputChan:      outputChan,
		tickInterval:    tickInterval,
		now:             time.Now,
	}
}

// InitQueue initializes the priority queue with device IDs.
// All devices start with deadline = now (immediately eligible).
func (sched *Scheduler) InitQueue(deviceIDs []string) {
	sched.queue.Reset(deviceIDs, sched.now())
	slog.Info("Priority queue initialized", "component", "Scheduler", "device_count", len(deviceIDs))
}

// Run starts the main loop.
func (sched *Scheduler) Run(ctx context.Context) {
	slog.Info("Starting main loop", "component", "Scheduler", "tick_interval", sched.tickInterval.String())
	ticker := time.NewTicker(sched.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Context cancelled, shutting down", "component", "Scheduler")
			return

		case event := <-sched.deviceEvents:
			sched.processDeviceEvent(event)

		case <-ticker.C:
			sched.schedule(ctx)
		}
	}
}

// processDeviceEvent queues newly added devices.
// Removed devices are dropped lazily: the registry no longer reports an interval for them.
func (sched *Scheduler) processDeviceEvent(event models.Event) {
	deviceID, ok := event.Payload.(string)
	if !ok {
		slog.Error("Invalid payload type in device event", "component", "Scheduler")
		return
	}

	if event.Type == models.EventDeviceAdded {
		sched.queue.Schedule(deviceID, sched.now())
		slog.Info("Added new device to queue", "component", "Scheduler", "device_id", deviceID)
	}
}

// schedule pops expired entries, looks up their poll intervals,
// dispatches the due devices to the poller and re-queues them.
func (sched *Scheduler) schedule(ctx context.Context) {
	now := sched.now()

	expired := sched.queue.PopExpired(now)
	if len(expired) == 0 {
		return
	}

	deviceIDs := make([]string, len(expired))
	deadlineMap := make(map[string]time.Time, len(expired))
	for i, entry := range expired {
		deviceIDs[i] = entry.DeviceID
		deadlineMap[entry.DeviceID] = entry.Deadline
	}

	slog.Debug("Expired entries popped", "component", "Scheduler", "count", len(deviceIDs))

	replyCh := make(chan models.Response, 1)
	select {
	case sched.registryReqChan <- models.Request{Operation: models.OpGetBatch, IDs: deviceIDs, ReplyCh: replyCh}:
	case <-ctx.Done():
		return
	}

	var resp models.Response
	select {
	case resp = <-replyCh:
	case <-ctx.Done():
		return
	}
	if resp.Error != nil {
		slog.Error("Failed to get poll intervals", "component", "Scheduler", "error", resp.Error)
		// Re-add entries back to queue to retry later
		for _, entry := range expired {
			sched.queue.Schedule(entry.DeviceID, entry.Deadline.Add(sched.tickInterval))
		}
		return
	}

	batch, ok := resp.Data.(*models.BatchScheduleResponse)
	if !ok {
		slog.Error("Invalid response type from registry", "component", "Scheduler")
		return
	}

	due := make([]string, 0, len(batch.Intervals))
	for _, id := range deviceIDs {
		interval, exists := batch.Intervals[id]
		if !exists {
			slog.Debug("Device no longer registered, dropping", "component", "Scheduler", "device_id", id)
			continue
		}

		next := deadlineMap[id].Add(time.Duration(interval) * time.Second)
		if !next.After(now) {
			// Fell behind; do not burst to catch up
			next = now.Add(time.Duration(interval) * time.Second)
		}
		due = append(due, id)
		sched.queue.Schedule(id, next)
	}

	if len(due) == 0 {
		return
	}

	slog.Debug("Dispatching due devices", "component", "Scheduler", "count", len(due))
	select {
	case sched.OutputChan <- due:
	case <-ctx.Done():
	}
}
