package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"generichttp/pkg/extract"
	"generichttp/pkg/models"
	"generichttp/pkg/snapshot"
)

// AttributeSource supplies the attributes of a port, exposed to write templates as attrs.
// Implementations may block; they are only called when a template references attrs.
type AttributeSource interface {
	Attributes(ctx context.Context, p *Port) (map[string]any, error)
}

// StaticAttributes serves the attributes found in the port definition.
type StaticAttributes struct{}

func (StaticAttributes) Attributes(_ context.Context, p *Port) (map[string]any, error) {
	attrs := make(map[string]any, len(p.cfg.Attributes)+3)
	for k, v := range p.cfg.Attributes {
		attrs[k] = models.CloneValue(v)
	}
	attrs["id"] = p.cfg.ID
	attrs["type"] = p.cfg.Type
	attrs["writable"] = p.cfg.Writable
	return attrs, nil
}

// Port is one typed value of a device.
type Port struct {
	cfg       models.PortConfig
	device    *Device
	extractor *extract.Extractor

	mu         sync.RWMutex
	value      any
	generation uint64
	updatedAt  time.Time
}

func (p *Port) ID() string { return p.cfg.ID }

func (p *Port) Type() string { return p.cfg.Type }

func (p *Port) Writable() bool { return p.cfg.Writable }

// DeviceID returns the id of the owning device.
func (p *Port) DeviceID() string { return p.device.cfg.ID }

// Value returns the last extracted value; nil means absent.
func (p *Port) Value() any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value
}

// UpdatedAt returns when the value was last refreshed.
func (p *Port) UpdatedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updatedAt
}

// Attributes returns the port attributes from the device attribute source.
func (p *Port) Attributes(ctx context.Context) (map[string]any, error) {
	return p.device.attrs.Attributes(ctx, p)
}

// refresh extracts the value held by s. Snapshots older than the one the
// current value came from are ignored. When extraction fails the last value is kept
// and returned along with the error.
func (p *Port) refresh(s *snapshot.Snapshot) (any, error) {
	v, err := p.extractor.Extract(s)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		return p.value, err
	}
	if s.Generation < p.generation {
		return p.value, nil
	}
	p.value = v
	p.generation = s.Generation
	p.updatedAt = time.Now()
	return v, nil
}

// checkValue validates a value against the port type and normalizes numbers to int64 or float64.
func (p *Port) checkValue(v any) (any, error) {
	switch p.cfg.Type {
	case models.PortTypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case models.PortTypeNumber:
		if _, isBool := v.(bool); !isBool {
			if _, isString := v.(string); !isString {
				if n, ok := extract.ToNumber(v); ok {
					return n, nil
				}
			}
		}
	}
	return nil, fmt.Errorf("%w: %s/%s expects a %s, got %T", ErrInvalidValue, p.device.cfg.ID, p.cfg.ID, p.cfg.Type, v)
}

// templateView is what write templates see as port.
func (p *Port) templateView() map[string]any {
	return map[string]any{
		"id":        p.cfg.ID,
		"type":      p.cfg.Type,
		"writable":  p.cfg.Writable,
		"device_id": p.device.cfg.ID,
		"value":     p.Value(),
	}
}

// IsExtractionError reports whether err means a port kept its last value
// because the rule did not apply to the response.
func IsExtractionError(err error) bool {
	return errors.Is(err, extract.ErrPointer)
}
