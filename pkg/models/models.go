package models

import (
	"encoding/json"
	"time"
)

// PortSample represents the port_samples table: one extracted port value per poll cycle.
type PortSample struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	DeviceID  string          `gorm:"not null;index:idx_port_samples_port" json:"device_id"`
	PortID    string          `gorm:"not null;index:idx_port_samples_port" json:"port_id"`
	CycleID   string          `gorm:"type:uuid" json:"cycle_id"`
	Value     json.RawMessage `gorm:"type:jsonb" json:"value"` // null when the port reported no value
	Timestamp time.Time       `gorm:"not null;index;default:CURRENT_TIMESTAMP" json:"timestamp"`
}

// SampleQuery filters the value history of ports.
type SampleQuery struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Limit int       `json:"limit" binding:"omitempty,min=1,max=10000"`
}

// TableName overrides the default table name logic
func (PortSample) TableName() string { return "port_samples" }

// GetID satisfies the Identifiable interface
func (s PortSample) GetID() int64 { return s.ID }

// PollResult is the outcome of one read cycle of a device.
type PollResult struct {
	CycleID   string
	DeviceID  string
	Values    map[string]any // port ID -> value, nil when absent
	Error     error
	StartedAt time.Time
	Duration  time.Duration
}

// Success reports whether the device answered.
func (r PollResult) Success() bool { return r.Error == nil }

// PortState is the API view of a port.
type PortState struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Writable   bool           `json:"writable"`
	Value      any            `json:"value"`
	Attributes map[string]any `json:"attributes,omitempty"`
	UpdatedAt  *time.Time     `json:"updated_at,omitempty"`
}

// DeviceSummary is the API view of a device.
type DeviceSummary struct {
	ID             string      `json:"id"`
	Online         bool        `json:"online"`
	PollInterval   int         `json:"poll_interval"`
	LastPoll       *time.Time  `json:"last_poll,omitempty"`
	ResponseStatus int         `json:"response_status,omitempty"`
	Ports          []PortState `json:"ports"`
}
