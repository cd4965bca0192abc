// Package rest is a remote.Table for PostgREST compatible APIs such as
// Supabase. Rows go over HTTP with resty; the change feed is the realtime
// websocket channel for the table.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nhle/travel-crm/internal/remote"
)

const (
	restPrefix     = "/rest/v1/"
	defaultTimeout = 30 * time.Second
	defaultSchema  = "public"
)

// Config configures a Table.
type Config struct {
	// URL is the project URL, e.g. https://abc.supabase.co.
	URL string

	// APIKey is sent as both the apikey header and the bearer token.
	APIKey string

	// Schema is the database schema realtime listens on. Defaults to public.
	Schema string

	Timeout time.Duration

	// HeartbeatInterval is how often the realtime socket is pinged.
	// Defaults to 30s.
	HeartbeatInterval time.Duration
}

// Table implements remote.Table over HTTP.
type Table struct {
	client *resty.Client
	cfg    Config
	log    zerolog.Logger
	dialer *websocket.Dialer
}

// APIError is a non-2xx response from the REST API.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("rest api status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("rest api status %d: %s", e.Status, e.Message)
}

// Unwrap maps PostgREST's missing-column codes to remote.ErrUnknownColumn.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "PGRST204", "42703":
		return remote.ErrUnknownColumn
	}
	return nil
}

// New returns a Table for the API at cfg.URL.
func New(cfg Config, log zerolog.Logger) (*Table, error) {
	if cfg.URL == "" {
		return nil, errors.New("rest url is empty")
	}
	if cfg.Schema == "" {
		cfg.Schema = defaultSchema
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	c := resty.New().
		SetBaseURL(cfg.URL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.Timeout)
	if cfg.APIKey != "" {
		c.SetHeader("apikey", cfg.APIKey).SetAuthToken(cfg.APIKey)
	}

	return &Table{
		client: c,
		cfg:    cfg,
		log:    log,
		dialer: websocket.DefaultDialer,
	}, nil
}

// Select returns every row of table in the given order.
func (t *Table) Select(ctx context.Context, table string, order remote.Order) ([]remote.Row, error) {
	if err := remote.ValidIdentifier(table); err != nil {
		return nil, err
	}

	req := t.client.R().SetContext(ctx).SetQueryParam("select", "*")
	if order.Column != "" {
		if err := remote.ValidIdentifier(order.Column); err != nil {
			return nil, err
		}
		direction := "asc"
		if order.Desc {
			direction = "desc"
		}
		req.SetQueryParam("order", order.Column+"."+direction)
	}

	var rows []remote.Row
	resp, err := req.SetResult(&rows).Get(restPrefix + table)
	if err = check(resp, err, "selecting from "+table); err != nil {
		return nil, err
	}
	return rows, nil
}

// Insert posts rows and returns their stored representation.
func (t *Table) Insert(ctx context.Context, table string, rows []remote.Row) ([]remote.Row, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	if err := remote.ValidIdentifier(table); err != nil {
		return nil, err
	}

	var stored []remote.Row
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=representation").
		SetBody(rows).
		SetResult(&stored).
		Post(restPrefix + table)
	if err = check(resp, err, "inserting into "+table); err != nil {
		return nil, err
	}
	return stored, nil
}

// Update patches the rows matching filter and returns them as stored.
func (t *Table) Update(
	ctx context.Context,
	table string,
	filter remote.Filter,
	patch remote.Row,
) ([]remote.Row, error) {
	if err := remote.ValidIdentifier(table); err != nil {
		return nil, err
	}
	if err := remote.ValidIdentifier(filter.Column); err != nil {
		return nil, err
	}

	var stored []remote.Row
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=representation").
		SetQueryParam(filter.Column, eq(filter.Value)).
		SetBody(patch).
		SetResult(&stored).
		Patch(restPrefix + table)
	if err = check(resp, err, "updating "+table); err != nil {
		return nil, err
	}
	return stored, nil
}

// Delete removes the rows matching filter.
func (t *Table) Delete(ctx context.Context, table string, filter remote.Filter) error {
	if err := remote.ValidIdentifier(table); err != nil {
		return err
	}
	if err := remote.ValidIdentifier(filter.Column); err != nil {
		return err
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetQueryParam(filter.Column, eq(filter.Value)).
		Delete(restPrefix + table)
	return check(resp, err, "deleting from "+table)
}

func eq(v any) string {
	return "eq." + fmt.Sprint(v)
}

func check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !resp.IsError() {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode()}
	if jsonErr := json.Unmarshal(resp.Body(), apiErr); jsonErr != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(resp.String())
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode())
		}
	}
	return fmt.Errorf("%s: %w", op, apiErr)
}
