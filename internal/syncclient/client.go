// Package syncclient is the HTTP client for the brewlog sync server.
// The server is a black box: request/response shapes only, no shared code.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/marcus/brewlog/internal/models"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// Client is an HTTP client for the brewlog sync server.
type Client struct {
	BaseURL  string
	Token    string
	DeviceID string
	HTTP     *http.Client
}

// New creates a new sync client.
func New(baseURL, token, deviceID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		Token:    token,
		DeviceID: deviceID,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

// --- Auth types ---

// DeviceTokenResponse is the response from POST /v1/auth/device-token.
type DeviceTokenResponse struct {
	DeviceID    string `json:"device_id"`
	DeviceToken string `json:"device_token"`
}

// ExchangeResponse is the response from POST /v1/auth/device-token/exchange.
type ExchangeResponse struct {
	AccessToken string      `json:"access_token"`
	User        models.User `json:"user"`
}

// --- Entity types ---

// EntityResponse is a single entity as the server returns it.
type EntityResponse struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Version   int64           `json:"version"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt string          `json:"updated_at"`
}

// entityRequest is the body for entity create/update requests.
type entityRequest struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// --- Auth methods ---

// CreateDeviceToken registers this device for passwordless re-entry.
func (c *Client) CreateDeviceToken(ctx context.Context, username string) (*DeviceTokenResponse, error) {
	body := map[string]string{"username": username, "device_id": c.DeviceID}
	var resp DeviceTokenResponse
	if err := c.do(ctx, "POST", "/v1/auth/device-token", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExchangeDeviceToken trades the long-lived device credential for a
// short-lived access token. No bearer token required.
func (c *Client) ExchangeDeviceToken(ctx context.Context, deviceID, deviceToken string) (*ExchangeResponse, error) {
	body := map[string]string{"device_id": deviceID, "device_token": deviceToken}
	var resp ExchangeResponse
	if err := c.doNoAuth(ctx, "POST", "/v1/auth/device-token/exchange", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login authenticates with username/password and returns a session.
func (c *Client) Login(ctx context.Context, username, password string) (*ExchangeResponse, error) {
	body := map[string]string{"username": username, "password": password}
	var resp ExchangeResponse
	if err := c.doNoAuth(ctx, "POST", "/v1/auth/login", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Me fetches the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var u models.User
	if err := c.do(ctx, "GET", "/v1/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// --- Entity CRUD methods ---

// CreateEntity creates an entity remotely and returns the server's copy
// (with its assigned version).
func (c *Client) CreateEntity(ctx context.Context, entityType models.EntityType, id string, payload json.RawMessage) (*EntityResponse, error) {
	var resp EntityResponse
	if err := c.do(ctx, "POST", fmt.Sprintf("/v1/entities/%s", entityType), entityRequest{ID: id, Payload: payload}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateEntity replaces an entity remotely (whole-entity, not partial).
func (c *Client) UpdateEntity(ctx context.Context, entityType models.EntityType, id string, payload json.RawMessage) (*EntityResponse, error) {
	var resp EntityResponse
	if err := c.do(ctx, "PUT", fmt.Sprintf("/v1/entities/%s/%s", entityType, id), entityRequest{ID: id, Payload: payload}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteEntity deletes an entity remotely. A 404 counts as success:
// the entity is already gone.
func (c *Client) DeleteEntity(ctx context.Context, entityType models.EntityType, id string) error {
	err := c.do(ctx, "DELETE", fmt.Sprintf("/v1/entities/%s/%s", entityType, id), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// ListEntities fetches all remote entities of one type for the
// authenticated user.
func (c *Client) ListEntities(ctx context.Context, entityType models.EntityType) ([]EntityResponse, error) {
	var resp []EntityResponse
	if err := c.do(ctx, "GET", fmt.Sprintf("/v1/entities/%s", entityType), nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// --- Error classification ---

// apiError is the standard error body from the server.
type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

// IsPermanent reports whether err is a permanent (validation-class)
// rejection that retrying cannot fix. 401 (auth), 408 (timeout) and
// 429 (rate limit) are excluded: those are resolvable without changing
// the payload.
func IsPermanent(err error) bool {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusUnauthorized, http.StatusRequestTimeout, http.StatusTooManyRequests:
			return false
		}
		return apiErr.Status >= 400 && apiErr.Status < 500
	}
	if errors.Is(err, ErrForbidden) || errors.Is(err, ErrNotFound) {
		return true
	}
	return false
}

// --- HTTP helpers ---

// do executes an authenticated HTTP request.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	return c.doRequest(ctx, method, path, body, result, true)
}

// doNoAuth executes an unauthenticated HTTP request.
func (c *Client) doNoAuth(ctx context.Context, method, path string, body, result any) error {
	return c.doRequest(ctx, method, path, body, result, false)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any, auth bool) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth && c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if c.DeviceID != "" {
		req.Header.Set("X-Device-ID", c.DeviceID)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Code != "" {
			apiErr.Status = resp.StatusCode
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Message)
			case http.StatusForbidden:
				return fmt.Errorf("%w: %s", ErrForbidden, apiErr.Message)
			case http.StatusNotFound:
				return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
			default:
				return &apiErr
			}
		}
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return ErrUnauthorized
		case http.StatusForbidden:
			return ErrForbidden
		case http.StatusNotFound:
			return ErrNotFound
		}
		return &apiError{Status: resp.StatusCode, Code: fmt.Sprintf("http_%d", resp.StatusCode), Message: string(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
