package registry

import (
	"context"
	"log/slog"

	"generichttp/pkg/device"
	"generichttp/pkg/models"
)

func summarize(d *device.Device) models.DeviceSummary {
	s := models.DeviceSummary{
		ID:           d.ID(),
		Online:       d.Online(),
		PollInterval: d.Config().PollInterval,
		Ports:        make([]models.PortState, 0, len(d.Ports())),
	}
	if t, ok := d.LastPoll(); ok {
		s.LastPoll = &t
	}
	if snap := d.Snapshot(); snap.HasStatus {
		s.ResponseStatus = snap.Status
	}
	for _, p := range d.Ports() {
		s.Ports = append(s.Ports, portState(p, p.Value()))
	}
	return s
}

// readPort extracts the current value of a port. When the read rule does not
// resolve the last known value is reported.
func readPort(d *device.Device, portID string) models.Response {
	p, err := d.Port(portID)
	if err != nil {
		return models.Response{Error: err}
	}
	v, err := d.ReadPort(portID)
	if err != nil {
		if !device.IsExtractionError(err) {
			return models.Response{Error: err}
		}
		slog.Warn("Could not extract port value", "component", "Registry", "device_id", d.ID(), "port_id", portID, "error", err)
	}
	return models.Response{Data: portState(p, v)}
}

func portState(p *device.Port, value any) models.PortState {
	state := models.PortState{
		ID:       p.ID(),
		Type:     p.Type(),
		Writable: p.Writable(),
		Value:    value,
	}
	if attrs, err := p.Attributes(context.Background()); err == nil {
		state.Attributes = attrs
	}
	if t := p.UpdatedAt(); !t.IsZero() {
		state.UpdatedAt = &t
	}
	return state
}
