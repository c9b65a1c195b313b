package models

import "time"

// EventType defines the type of device lifecycle event.
type EventType string

const (
	EventPollSucceeded EventType = "poll_succeeded"
	EventPollFailed    EventType = "poll_failed"
	EventDeviceAdded   EventType = "device_added"
)

// Event represents a device event for scheduling and health tracking.
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload"`
}

// DeviceHealthEvent is the payload of poll success/failure events.
type DeviceHealthEvent struct {
	DeviceID  string
	Reason    string
	Timestamp time.Time
}
