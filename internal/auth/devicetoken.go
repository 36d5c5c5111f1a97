package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marcus/brewlog/internal/syncclient"
	"github.com/marcus/brewlog/internal/syncconfig"
)

// ErrNoDeviceToken means no device credential is stored for this device.
var ErrNoDeviceToken = errors.New("no device token")

// DeviceTokenService exchanges the long-lived device credential for a
// short-lived access token, enabling passwordless re-entry. All remote
// calls are bounded by the configured timeout: startup must never hang
// on this path — callers fall back to standard token validation on
// timeout or failure.
type DeviceTokenService struct {
	creds   *syncconfig.Manager
	client  *syncclient.Client
	timeout time.Duration
}

// NewDeviceTokenService creates a DeviceTokenService.
func NewDeviceTokenService(creds *syncconfig.Manager, client *syncclient.Client, timeout time.Duration) *DeviceTokenService {
	if timeout <= 0 {
		timeout = syncconfig.DefaultDeviceTokenTimeout
	}
	return &DeviceTokenService{creds: creds, client: client, timeout: timeout}
}

// CreateDeviceToken registers this device with the server and persists
// the returned credential. Returns the device id.
func (s *DeviceTokenService) CreateDeviceToken(ctx context.Context, username string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.CreateDeviceToken(ctx, username)
	if err != nil {
		return "", fmt.Errorf("create device token: %w", err)
	}

	creds, err := s.creds.LoadCredentials()
	if err != nil {
		return "", err
	}
	if creds == nil {
		creds = &syncconfig.Credentials{}
	}
	creds.DeviceID = resp.DeviceID
	creds.DeviceToken = resp.DeviceToken
	if err := s.creds.SaveCredentials(creds); err != nil {
		return "", fmt.Errorf("persist device token: %w", err)
	}
	return resp.DeviceID, nil
}

// ExchangeDeviceToken trades the stored device credential for an access
// token and user profile. The call is bounded by the service timeout.
func (s *DeviceTokenService) ExchangeDeviceToken(ctx context.Context) (*syncclient.ExchangeResponse, error) {
	creds, err := s.creds.LoadCredentials()
	if err != nil {
		return nil, err
	}
	if creds == nil || creds.DeviceToken == "" {
		return nil, ErrNoDeviceToken
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.ExchangeDeviceToken(ctx, creds.DeviceID, creds.DeviceToken)
	if err != nil {
		return nil, fmt.Errorf("exchange device token: %w", err)
	}
	return resp, nil
}

// HasDeviceToken reports whether a device credential is stored.
func (s *DeviceTokenService) HasDeviceToken() bool {
	creds, err := s.creds.LoadCredentials()
	return err == nil && creds != nil && creds.DeviceToken != ""
}

// ClearDeviceToken removes the stored device credential, keeping the
// device id so re-registration reuses it.
func (s *DeviceTokenService) ClearDeviceToken() error {
	creds, err := s.creds.LoadCredentials()
	if err != nil {
		return err
	}
	if creds == nil || creds.DeviceToken == "" {
		return nil
	}
	creds.DeviceToken = ""
	return s.creds.SaveCredentials(creds)
}
