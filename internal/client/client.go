// Package client is a typed HTTP client for the gateway API, used by
// seaguardctl.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"seaguard-gateway/internal/api"
)

// APIError is a non-2xx answer of the gateway.
type APIError struct {
	StatusCode int
	Message    string // the "error" field of the body, if any
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited reports whether err is the gateway's command cooldown
// rejection. The caller may retry after a short pause.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// AckStatus is the state of a dispatched command.
type AckStatus struct {
	Status     string
	CmdID      string
	ReceivedAt int64
	// Fields is the whole response body, including the boat's ack fields.
	Fields map[string]any
}

// Terminal reports whether the boat has answered.
func (a AckStatus) Terminal() bool {
	return a.Status != "" && a.Status != "pending"
}

// APIClient talks to one gateway. Every request carries the client timeout
// in addition to the caller's context.
type APIClient struct {
	BaseURL    string
	httpClient *http.Client
}

// NewAPIClient creates a client for baseURL (e.g. http://localhost:3000).
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	return &APIClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *APIClient) boatURL(boatID string, parts ...string) string {
	u := c.BaseURL + "/api/boats/" + url.PathEscape(boatID)
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

func (c *APIClient) do(ctx context.Context, method, target string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var e api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&e) == nil {
			apiErr.Message = e.Error
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Boats lists configured and seen boats.
func (c *APIClient) Boats(ctx context.Context) ([]api.BoatSummary, error) {
	var list api.BoatList
	if err := c.do(ctx, http.MethodGet, c.BaseURL+"/api/boats", nil, &list); err != nil {
		return nil, err
	}
	return list.Boats, nil
}

// Boat returns the listing entry of one boat. The bool is false when the
// gateway does not know the boat.
func (c *APIClient) Boat(ctx context.Context, boatID string) (api.BoatSummary, bool, error) {
	boats, err := c.Boats(ctx)
	if err != nil {
		return api.BoatSummary{}, false, err
	}
	for _, b := range boats {
		if b.BoatID == boatID {
			return b, true, nil
		}
	}
	return api.BoatSummary{}, false, nil
}

// State returns the latest telemetry of a boat.
func (c *APIClient) State(ctx context.Context, boatID string) (api.StateDTO, error) {
	var st api.StateDTO
	err := c.do(ctx, http.MethodGet, c.boatURL(boatID, "state"), nil, &st)
	return st, err
}

// History returns up to limit entries of the selected streams. limit <= 0
// lets the gateway pick its maximum.
func (c *APIClient) History(ctx context.Context, boatID string, limit int, sensors, gps bool) (api.HistoryDTO, error) {
	q := url.Values{}
	q.Set("sensors", flag(sensors))
	q.Set("gps", flag(gps))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var h api.HistoryDTO
	err := c.do(ctx, http.MethodGet, c.boatURL(boatID, "history")+"?"+q.Encode(), nil, &h)
	return h, err
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Send dispatches a control command and returns its cmdId.
func (c *APIClient) Send(ctx context.Context, boatID, action string, payload any) (string, error) {
	var resp api.ControlResponse
	req := api.ControlRequest{Action: action, Payload: payload}
	if err := c.do(ctx, http.MethodPost, c.boatURL(boatID, "control"), req, &resp); err != nil {
		return "", err
	}
	return resp.CmdID, nil
}

// Ack returns the current state of a command.
func (c *APIClient) Ack(ctx context.Context, boatID, cmdID string) (AckStatus, error) {
	var body map[string]any
	if err := c.do(ctx, http.MethodGet, c.boatURL(boatID, "acks", cmdID), nil, &body); err != nil {
		return AckStatus{}, err
	}

	st := AckStatus{Fields: body}
	st.Status, _ = body["status"].(string)
	st.CmdID, _ = body["cmdId"].(string)
	if v, ok := body["receivedAt"].(float64); ok {
		st.ReceivedAt = int64(v)
	}
	return st, nil
}

// WaitAck polls the command state every poll until the boat answered or
// ctx is done. The gateway has no notion of cancelling a command; giving
// up only stops the polling. On timeout the last seen state is returned
// together with ctx.Err().
func (c *APIClient) WaitAck(ctx context.Context, boatID, cmdID string, poll time.Duration) (AckStatus, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	last := AckStatus{Status: "pending", CmdID: cmdID}
	for {
		st, err := c.Ack(ctx, boatID, cmdID)
		switch {
		case err == nil:
			last = st
			if st.Terminal() {
				return st, nil
			}
		case ctx.Err() != nil:
			return last, ctx.Err()
		default:
			return last, err
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}
