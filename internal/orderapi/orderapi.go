// Package orderapi reads the authoritative order list and statistics from the
// café API, falling back across candidate endpoints.
package orderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/appetiteclub/apt"

	"github.com/appetiteclub/cafesync/internal/orders"
	"github.com/appetiteclub/cafesync/internal/pipeline"
	"github.com/appetiteclub/cafesync/pkg/enums/role"
)

const (
	StaffOrdersPath   = "/api/staff/orders"
	GeneralOrdersPath = "/api/orders"
	StatsPath         = "/api/orders/stats"
)

var (
	// ErrMalformedPayload marks a response without success or without an
	// array of order records.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrAllSourcesFailed is returned when no candidate endpoint produced a
	// well-formed order list.
	ErrAllSourcesFailed = errors.New("all order sources failed")
)

// Candidates lists the order-list endpoints to try for r, in order.
func Candidates(r role.Role) []string {
	switch r {
	case role.Staff, role.Admin:
		return []string{StaffOrdersPath, GeneralOrdersPath}
	default:
		return []string{GeneralOrdersPath}
	}
}

type listResponse struct {
	Success *bool           `json:"success"`
	Orders  json.RawMessage `json:"orders"`
}

type statsResponse struct {
	Success bool          `json:"success"`
	Stats   *orders.Stats `json:"stats"`
}

// Snapshot is one poll result. Stats is nil when the stats call failed.
type Snapshot struct {
	Records []json.RawMessage
	Source  string
	Stats   *orders.Stats
}

// DataAccess wraps the order endpoints for one role.
type DataAccess struct {
	client *pipeline.Client
	role   role.Role
	logger apt.Logger
}

func NewDataAccess(client *pipeline.Client, r role.Role, logger apt.Logger) *DataAccess {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &DataAccess{
		client: client,
		role:   r,
		logger: logger,
	}
}

// ListOrders returns the raw records of the first candidate answering with a
// well-formed payload, and the path it came from.
func (da *DataAccess) ListOrders(ctx context.Context) ([]json.RawMessage, string, error) {
	if da == nil || da.client == nil {
		return nil, "", fmt.Errorf("order client not configured")
	}

	var errs []error
	for _, path := range Candidates(da.role) {
		records, err := da.listFrom(ctx, path)
		if err == nil {
			return records, path, nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		da.logger.Debug("order source failed", "path", path, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", path, err))
	}

	return nil, "", fmt.Errorf("%w: %w", ErrAllSourcesFailed, errors.Join(errs...))
}

func (da *DataAccess) listFrom(ctx context.Context, path string) ([]json.RawMessage, error) {
	var resp listResponse
	if err := da.client.Do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return nil, err
	}
	return decodeOrders(resp)
}

func decodeOrders(resp listResponse) ([]json.RawMessage, error) {
	if resp.Success == nil || !*resp.Success {
		return nil, fmt.Errorf("%w: success flag not set", ErrMalformedPayload)
	}

	trimmed := bytes.TrimSpace(resp.Orders)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: orders is not an array", ErrMalformedPayload)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	for i, rec := range records {
		rec = bytes.TrimSpace(rec)
		if len(rec) == 0 || rec[0] != '{' {
			return nil, fmt.Errorf("%w: orders[%d] is not an object", ErrMalformedPayload, i)
		}
	}
	return records, nil
}

// FetchStats reads the server-side aggregate statistics.
func (da *DataAccess) FetchStats(ctx context.Context) (*orders.Stats, error) {
	if da == nil || da.client == nil {
		return nil, fmt.Errorf("order client not configured")
	}

	var resp statsResponse
	if err := da.client.Do(ctx, http.MethodGet, StatsPath, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.Stats == nil {
		return nil, fmt.Errorf("%w: stats missing", ErrMalformedPayload)
	}
	return resp.Stats, nil
}

// Snapshot fetches the order list and then the statistics. A stats failure
// is logged and leaves Stats nil.
func (da *DataAccess) Snapshot(ctx context.Context) (*Snapshot, error) {
	records, source, err := da.ListOrders(ctx)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Records: records, Source: source}

	stats, err := da.FetchStats(ctx)
	if err != nil {
		da.logger.Debug("stats fetch failed", "error", err)
		return snap, nil
	}
	snap.Stats = stats
	return snap, nil
}
