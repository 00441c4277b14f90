// Package remote is the rate-limited HTTP client for the CRM API. Retry of
// transient failures and rate budgeting live here; callers treat every method
// as a single fallible call.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/crmvault/crmvault/internal/datapkg"
	"github.com/crmvault/crmvault/internal/entity"
	"github.com/crmvault/crmvault/internal/schema"
	"github.com/shopmonkeyus/go-common/logger"
	"golang.org/x/time/rate"
)

// Config configures a client.
type Config struct {
	BaseURL  string
	APIToken string
	Logger   logger.Logger

	// RateBudget requests per RateWindow. Defaults to 80 per 2s, the
	// service's documented burst budget.
	RateBudget int
	RateWindow time.Duration

	Timeout time.Duration
}

// Client talks to the CRM API.
type Client struct {
	baseURL string
	token   string
	logger  logger.Logger
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a client from config.
func New(config Config) *Client {
	budget := config.RateBudget
	if budget <= 0 {
		budget = 80
	}
	window := config.RateWindow
	if window <= 0 {
		window = 2 * time.Second
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: config.BaseURL,
		token:   config.APIToken,
		logger:  config.Logger.WithPrefix("[api]"),
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(window/time.Duration(budget)), budget),
	}
}

type envelope struct {
	Success        bool            `json:"success"`
	Data           json.RawMessage `json:"data"`
	Error          string          `json:"error"`
	ErrorInfo      string          `json:"error_info"`
	AdditionalData struct {
		Pagination struct {
			MoreItems bool `json:"more_items_in_collection"`
			NextStart int  `json:"next_start"`
		} `json:"pagination"`
	} `json:"additional_data"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) (*envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, errors.Wrapf(err, "building url for %s", path)
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("api_token", c.token)
	u.RawQuery = query.Encode()

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "encoding payload")
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "reading response of %s %s", method, path)
	}
	c.logger.Trace("%s %s -> %d (%s)", method, path, resp.StatusCode, time.Since(started))

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		return nil, errors.Wrapf(err, "decoding response of %s %s", method, path)
	}
	if resp.StatusCode >= 400 || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		if env.ErrorInfo != "" {
			msg += ": " + env.ErrorInfo
		}
		return nil, errors.Newf("%s %s failed: %s", method, path, msg)
	}
	return &env, nil
}

// ErrNotFound reports a missing remote record.
var ErrNotFound = errors.New("not found")

const pageLimit = 500

// FetchAll streams every record of an entity through fn, following
// pagination.
func (c *Client) FetchAll(ctx context.Context, ent entity.Config, fn func(record datapkg.Record) error) error {
	start := 0
	for {
		query := url.Values{}
		query.Set("start", strconv.Itoa(start))
		limit := pageLimit
		if ent.MaxPageSize > 0 && ent.MaxPageSize < limit {
			limit = ent.MaxPageSize
		}
		query.Set("limit", strconv.Itoa(limit))
		env, err := c.do(ctx, http.MethodGet, ent.Endpoint, query, nil)
		if err != nil {
			return err
		}
		var records []datapkg.Record
		if len(env.Data) > 0 && string(env.Data) != "null" {
			if err := json.Unmarshal(env.Data, &records); err != nil {
				return errors.Wrapf(err, "decoding %s page", ent.Name)
			}
		}
		for _, r := range records {
			if err := fn(r); err != nil {
				return err
			}
		}
		if !env.AdditionalData.Pagination.MoreItems {
			return nil
		}
		start = env.AdditionalData.Pagination.NextStart
	}
}

// FetchAllIDs returns the full remote id set for an entity.
func (c *Client) FetchAllIDs(ctx context.Context, ent entity.Config) (map[int]bool, error) {
	ids := make(map[int]bool)
	err := c.FetchAll(ctx, ent, func(record datapkg.Record) error {
		if id, ok := datapkg.RecordID(record); ok {
			ids[id] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// FetchFields returns the entity's current field schema.
func (c *Client) FetchFields(ctx context.Context, ent entity.Config) ([]schema.Field, error) {
	if !ent.HasFields() {
		return nil, nil
	}
	var fields []schema.Field
	start := 0
	for {
		query := url.Values{}
		query.Set("start", strconv.Itoa(start))
		query.Set("limit", strconv.Itoa(pageLimit))
		env, err := c.do(ctx, http.MethodGet, ent.FieldsEndpoint, query, nil)
		if err != nil {
			return nil, err
		}
		var page []schema.Field
		if len(env.Data) > 0 && string(env.Data) != "null" {
			if err := json.Unmarshal(env.Data, &page); err != nil {
				return nil, errors.Wrapf(err, "decoding %s fields", ent.Name)
			}
		}
		fields = append(fields, page...)
		if !env.AdditionalData.Pagination.MoreItems {
			return fields, nil
		}
		start = env.AdditionalData.Pagination.NextStart
	}
}

// Get fetches a single record. Returns ErrNotFound when absent.
func (c *Client) Get(ctx context.Context, ent entity.Config, id int) (datapkg.Record, error) {
	env, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/%d", ent.Endpoint, id), nil, nil)
	if err != nil {
		return nil, err
	}
	var record datapkg.Record
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, ErrNotFound
	}
	if err := json.Unmarshal(env.Data, &record); err != nil {
		return nil, errors.Wrapf(err, "decoding %s %d", ent.Name, id)
	}
	return record, nil
}

// Exists reports whether a record exists remotely.
func (c *Client) Exists(ctx context.Context, ent entity.Config, id int) (bool, error) {
	_, err := c.Get(ctx, ent, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Create creates a record and returns the remote-assigned id.
func (c *Client) Create(ctx context.Context, ent entity.Config, payload datapkg.Record) (int, error) {
	env, err := c.do(ctx, http.MethodPost, ent.Endpoint, nil, payload)
	if err != nil {
		return 0, err
	}
	var created struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		return 0, errors.Wrapf(err, "decoding created %s", ent.Name)
	}
	return created.ID, nil
}

// Update updates a record.
func (c *Client) Update(ctx context.Context, ent entity.Config, id int, payload datapkg.Record) error {
	_, err := c.do(ctx, http.MethodPut, fmt.Sprintf("%s/%d", ent.Endpoint, id), nil, payload)
	return err
}

// Delete deletes a record.
func (c *Client) Delete(ctx context.Context, ent entity.Config, id int) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("%s/%d", ent.Endpoint, id), nil, nil)
	return err
}

// CreateField creates a custom field and returns the remote definition,
// including the remote-assigned key.
func (c *Client) CreateField(ctx context.Context, ent entity.Config, field schema.Field) (schema.Field, error) {
	payload := map[string]any{
		"name":       field.Name,
		"field_type": field.Type,
	}
	if field.HasOptions() {
		labels := make([]map[string]any, len(field.Options))
		for i, o := range field.Options {
			// labels only: the service assigns its own option ids
			labels[i] = map[string]any{"label": o.Label}
		}
		payload["options"] = labels
	}
	env, err := c.do(ctx, http.MethodPost, ent.FieldsEndpoint, nil, payload)
	if err != nil {
		return schema.Field{}, err
	}
	var created schema.Field
	if err := json.Unmarshal(env.Data, &created); err != nil {
		return schema.Field{}, errors.Wrapf(err, "decoding created %s field", ent.Name)
	}
	return created, nil
}

// UpdateField renames a custom field.
func (c *Client) UpdateField(ctx context.Context, ent entity.Config, field schema.Field) error {
	_, err := c.do(ctx, http.MethodPut, fmt.Sprintf("%s/%d", ent.FieldsEndpoint, field.ID), nil, map[string]any{
		"name": field.Name,
	})
	return err
}

// DeleteField deletes a custom field.
func (c *Client) DeleteField(ctx context.Context, ent entity.Config, fieldID int) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("%s/%d", ent.FieldsEndpoint, fieldID), nil, nil)
	return err
}
