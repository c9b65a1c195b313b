package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"generichttp/pkg/metrics"
	"generichttp/pkg/models"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrInvalidRange is returned for history queries whose start is after their end.
var ErrInvalidRange = errors.New("invalid time range")

// SampleRepository is the storage the history service writes to and reads from.
type SampleRepository interface {
	CreateBatch(ctx context.Context, entities []*models.PortSample) error
	FindWhere(ctx context.Context, order string, limit int, query string, args ...any) ([]*models.PortSample, error)
	DeleteWhere(ctx context.Context, query string, args ...any) (int64, error)
}

// HistoryQueryRequest holds parameters for a port history query.
type HistoryQueryRequest struct {
	DeviceID string
	PortIDs  []string // empty means every port of the device
	Query    models.SampleQuery
}

// HistoryService persists the port values of every read cycle and serves history queries.
type HistoryService struct {
	pollResults <-chan models.PollResult
	requests    <-chan models.Request
	repo        SampleRepository
	metrics     *metrics.Metrics

	defaultLimit      int
	defaultRangeHours int
	retention         time.Duration
	pruneInterval     time.Duration
}

// NewHistoryService creates a new history service.
// A zero retention keeps samples forever.
func NewHistoryService(
	pollResults <-chan models.PollResult,
	requests <-chan models.Request,
	repo SampleRepository,
	m *metrics.Metrics,
	defaultLimit int,
	defaultRangeHours int,
	retention time.Duration,
) *HistoryService {
	return &HistoryService{
		pollResults:       pollResults,
		requests:          requests,
		repo:              repo,
		metrics:           m,
		defaultLimit:      defaultLimit,
		defaultRangeHours: defaultRangeHours,
		retention:         retention,
		pruneInterval:     time.Hour,
	}
}

// Run starts the history service's main loop.
func (service *HistoryService) Run(ctx context.Context) {
	slog.Info("Starting history service", "component", "HistoryService", "retention", service.retention.String())

	var prune <-chan time.Time
	if service.retention > 0 {
		ticker := time.NewTicker(service.pruneInterval)
		defer ticker.Stop()
		prune = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("Stopping history service", "component", "HistoryService")
			return
		case result := <-service.pollResults:
			service.saveResult(ctx, result)
		case req := <-service.requests:
			service.handleQuery(ctx, req)
		case <-prune:
			service.prune(ctx)
		}
	}
}

// saveResult stores one sample per port of a successful read cycle.
func (service *HistoryService) saveResult(ctx context.Context, result models.PollResult) {
	if !result.Success() {
		return
	}

	samples := make([]*models.PortSample, 0, len(result.Values))
	for portID, value := range result.Values {
		data, err := json.Marshal(value)
		if err != nil {
			slog.Error("Cannot encode port value", "component", "HistoryService",
				"device_id", result.DeviceID, "port_id", portID, "error", err)
			continue
		}
		samples = append(samples, &models.PortSample{
			DeviceID:  result.DeviceID,
			PortID:    portID,
			CycleID:   result.CycleID,
			Value:     data,
			Timestamp: result.StartedAt.Add(result.Duration),
		})
	}

	if err := service.repo.CreateBatch(ctx, samples); err != nil {
		slog.Error("Batch insert failed", "component", "HistoryService", "device_id", result.DeviceID, "error", err)
		if service.metrics != nil {
			service.metrics.SamplePersistErrors.Inc()
		}
		return
	}
	if service.metrics != nil {
		service.metrics.SamplesPersisted.Add(float64(len(samples)))
	}
	slog.Debug("Saved port samples", "component", "HistoryService", "device_id", result.DeviceID, "count", len(samples))
}

// handleQuery handles history query requests.
func (service *HistoryService) handleQuery(ctx context.Context, req models.Request) {
	var resp models.Response

	query, ok := req.Payload.(*HistoryQueryRequest)
	if !ok {
		resp.Error = fmt.Errorf("invalid payload for history query")
		req.ReplyCh <- resp
		return
	}

	resp.Data, resp.Error = service.query(ctx, query)
	req.ReplyCh <- resp
}

func (service *HistoryService) query(ctx context.Context, req *HistoryQueryRequest) ([]*models.PortSample, error) {
	q := req.Query
	limit := q.Limit
	if limit <= 0 {
		limit = service.defaultLimit
	}

	// Default time range if not provided
	if q.End.IsZero() {
		q.End = time.Now()
	}
	if q.Start.IsZero() {
		q.Start = q.End.Add(-time.Duration(service.defaultRangeHours) * time.Hour)
	}
	if q.Start.After(q.End) {
		return nil, fmt.Errorf("%w: start must not be after end", ErrInvalidRange)
	}

	where := "device_id = ? AND timestamp >= ? AND timestamp <= ?"
	args := []any{req.DeviceID, q.Start, q.End}
	if len(req.PortIDs) > 0 {
		where += " AND port_id IN ?"
		args = append(args, req.PortIDs)
	}

	samples, err := service.repo.FindWhere(ctx, "timestamp DESC", limit, where, args...)
	if err != nil {
		return nil, err
	}
	return samples, nil
}

func (service *HistoryService) prune(ctx context.Context) {
	cutoff := time.Now().Add(-service.retention)
	n, err := service.repo.DeleteWhere(ctx, "timestamp < ?", cutoff)
	if err != nil {
		slog.Error("Failed to prune history", "component", "HistoryService", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Pruned port samples", "component", "HistoryService", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	}
}
