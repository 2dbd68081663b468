// Package api is the typed client for the bakery backend REST endpoints
// the engine consumes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"bakeops/internal/core"
	apperrors "bakeops/pkg/errors"
	apihttp "bakeops/pkg/http"

	"github.com/shopspring/decimal"
)

// Query parameterizes a paginated list request.
type Query struct {
	Status    core.RecordStatus
	Branch    string
	Search    string
	SortBy    string
	SortOrder core.SortOrder
	Page      int
	Limit     int
}

// Page is one paginated snapshot: the items plus the server-authoritative
// total for the query.
type Page struct {
	Items []core.Record `json:"items"`
	Total int           `json:"total"`
}

// StatusUpdate is the body of a status mutation.
type StatusUpdate struct {
	Status      core.RecordStatus `json:"status"`
	Items       []core.RecordItem `json:"items,omitempty"`
	ReviewNotes string            `json:"reviewNotes,omitempty"`
}

// StatusResult is the server's confirmation of a status mutation.
type StatusResult struct {
	AdjustedTotal decimal.Decimal `json:"adjustedTotal"`
	ReviewNotes   string          `json:"reviewNotes,omitempty"`
}

// HTTPDoer is the subset of the resilient HTTP client the API client needs.
type HTTPDoer interface {
	Get(ctx context.Context, path string, params map[string]string) ([]byte, error)
	Patch(ctx context.Context, path string, body interface{}) ([]byte, error)
}

// Client talks to the bakery backend.
type Client struct {
	http   HTTPDoer
	logger core.ILogger
}

// NewClient creates an API client over the given HTTP transport.
func NewClient(http HTTPDoer, logger core.ILogger) *Client {
	return &Client{
		http:   http,
		logger: logger.WithField("component", "api_client"),
	}
}

// NewClientForBase builds the client with the default resilient transport.
func NewClientForBase(baseURL string, timeout time.Duration, token apihttp.TokenProvider, logger core.ILogger) *Client {
	return NewClient(apihttp.NewClient(baseURL, timeout, token), logger)
}

// List fetches one page of orders or returns.
func (c *Client) List(ctx context.Context, kind core.RecordKind, q Query) (Page, error) {
	params := map[string]string{
		"page":  strconv.Itoa(q.Page),
		"limit": strconv.Itoa(q.Limit),
	}
	if q.Status != "" {
		params["status"] = string(q.Status)
	}
	if q.Branch != "" {
		params["branch"] = q.Branch
	}
	if q.Search != "" {
		params["search"] = q.Search
	}
	if q.SortBy != "" {
		params["sortBy"] = q.SortBy
		params["sortOrder"] = string(q.SortOrder)
	}

	body, err := c.http.Get(ctx, kind.Path(), params)
	if err != nil {
		return Page{}, classify(err)
	}

	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return Page{}, fmt.Errorf("undecodable %s page: %w", kind, err)
	}
	for i := range page.Items {
		page.Items[i].Kind = kind
	}
	return page, nil
}

// UpdateStatus submits a status mutation and returns the server-confirmed
// adjusted total. The caller mutates no local state until this settles.
func (c *Client) UpdateStatus(ctx context.Context, kind core.RecordKind, id string, update StatusUpdate) (StatusResult, error) {
	path := fmt.Sprintf("%s/%s/status", kind.Path(), id)
	body, err := c.http.Patch(ctx, path, update)
	if err != nil {
		return StatusResult{}, classify(err)
	}

	var result StatusResult
	if err := json.Unmarshal(body, &result); err != nil {
		return StatusResult{}, fmt.Errorf("undecodable status result: %w", err)
	}
	return result, nil
}

// classify maps transport failures onto the engine error taxonomy: timeouts
// and refused connections become ErrNetwork, auth failures are fatal to the
// view, and 4xx validation problems stay local to the attempt.
func classify(err error) error {
	var apiErr *apihttp.APIError
	if errors.As(err, &apiErr) {
		if kindErr := apperrors.ClassifyStatus(apiErr.StatusCode); kindErr != nil {
			return fmt.Errorf("%w: %s", kindErr, apiErr.Error())
		}
		return err
	}
	if apperrors.IsTimeout(err) {
		return fmt.Errorf("%w: %s", apperrors.ErrNetwork, err.Error())
	}
	return fmt.Errorf("%w: %s", apperrors.ErrNetwork, err.Error())
}
