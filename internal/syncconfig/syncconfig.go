// Package syncconfig manages global configuration and stored credentials
// under ~/.config/brewlog. All access goes through a Manager constructed
// once at process start; nothing reads ambient global state.
package syncconfig

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// SimMode is the developer/test network simulation override.
type SimMode string

const (
	SimNormal  SimMode = "normal"
	SimSlow    SimMode = "slow"
	SimOffline SimMode = "offline"
)

// Defaults for the recognized tuning constants.
const (
	DefaultGracePeriodDays     = 7
	DefaultDeviceTokenTimeout  = 5 * time.Second
	DefaultProfileFetchTimeout = 5 * time.Second
	DefaultCleanupCooldown     = 5 * time.Minute
	DefaultPeriodicRefresh     = 4 * time.Hour
	defaultServerURL           = "http://localhost:8080"
)

// SyncSettings holds sync-related settings in config.json.
type SyncSettings struct {
	URL             string `json:"url"`
	Enabled         bool   `json:"enabled"`
	GracePeriodDays *int   `json:"grace_period_days,omitempty"` // nil = default 7
	SimMode         string `json:"sim_mode,omitempty"`          // normal | slow | offline
	TokenKey        string `json:"token_key,omitempty"`
}

// Config is the global config stored at <dir>/config.json.
type Config struct {
	Sync SyncSettings `json:"sync"`
}

// Credentials stores authentication state at <dir>/auth.json.
// DeviceToken is the long-lived device credential; the short-lived
// access token lives in the store's auth_token slot, not here.
type Credentials struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	ServerURL   string `json:"server_url"`
	DeviceID    string `json:"device_id"`
	DeviceToken string `json:"device_token,omitempty"`
}

// Manager reads and writes config and credentials for one config dir.
type Manager struct {
	dir string
}

// DefaultDir returns ~/.config/brewlog, creating it if necessary.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "brewlog")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// NewManager creates a Manager for the given config dir.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// LoadConfig reads config.json, returning an empty config if absent.
func (m *Manager) LoadConfig() (*Config, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig writes config.json.
func (m *Manager) SaveConfig(cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(m.dir, "config.json"), data, 0644)
}

// LoadCredentials reads auth.json, or nil if absent.
func (m *Manager) LoadCredentials() (*Credentials, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, "auth.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

// SaveCredentials writes auth.json (0600 perms).
func (m *Manager) SaveCredentials(creds *Credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(m.dir, "auth.json"), data, 0600)
}

// ClearCredentials removes auth.json. Idempotent.
func (m *Manager) ClearCredentials() error {
	err := os.Remove(filepath.Join(m.dir, "auth.json"))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// ServerURL returns the sync server URL.
// Priority: BREWLOG_SYNC_URL env > config.json > default.
func (m *Manager) ServerURL() string {
	if v := os.Getenv("BREWLOG_SYNC_URL"); v != "" {
		return v
	}
	cfg, err := m.LoadConfig()
	if err == nil && cfg.Sync.URL != "" {
		return cfg.Sync.URL
	}
	return defaultServerURL
}

// GracePeriodDays returns the token grace window in days.
// Priority: BREWLOG_GRACE_PERIOD_DAYS env > config.json > default (7).
func (m *Manager) GracePeriodDays() int {
	if v := os.Getenv("BREWLOG_GRACE_PERIOD_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	cfg, err := m.LoadConfig()
	if err == nil && cfg.Sync.GracePeriodDays != nil && *cfg.Sync.GracePeriodDays >= 0 {
		return *cfg.Sync.GracePeriodDays
	}
	return DefaultGracePeriodDays
}

// SimulationMode returns the network simulation override.
// Priority: BREWLOG_SIM_MODE env > config.json > normal.
func (m *Manager) SimulationMode() SimMode {
	v := os.Getenv("BREWLOG_SIM_MODE")
	if v == "" {
		if cfg, err := m.LoadConfig(); err == nil {
			v = cfg.Sync.SimMode
		}
	}
	switch SimMode(v) {
	case SimSlow, SimOffline:
		return SimMode(v)
	}
	return SimNormal
}

// TokenSignKey returns the HMAC key used to validate access tokens
// locally. Priority: BREWLOG_TOKEN_KEY env > config.json.
func (m *Manager) TokenSignKey() []byte {
	if v := os.Getenv("BREWLOG_TOKEN_KEY"); v != "" {
		return []byte(v)
	}
	if cfg, err := m.LoadConfig(); err == nil && cfg.Sync.TokenKey != "" {
		return []byte(cfg.Sync.TokenKey)
	}
	return nil
}

// durationEnv reads a duration env var, falling back to def.
func durationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// DeviceTokenTimeout bounds the device-token exchange at startup.
func (m *Manager) DeviceTokenTimeout() time.Duration {
	return durationEnv("BREWLOG_DEVICE_TOKEN_TIMEOUT", DefaultDeviceTokenTimeout)
}

// ProfileFetchTimeout bounds the profile refresh at startup.
func (m *Manager) ProfileFetchTimeout() time.Duration {
	return durationEnv("BREWLOG_PROFILE_FETCH_TIMEOUT", DefaultProfileFetchTimeout)
}

// CleanupCooldown is the minimum gap between maintenance passes on
// app-foreground. Independent from PeriodicRefresh.
func (m *Manager) CleanupCooldown() time.Duration {
	return durationEnv("BREWLOG_CLEANUP_COOLDOWN", DefaultCleanupCooldown)
}

// PeriodicRefresh is the minimum gap between full refreshes on
// app-foreground.
func (m *Manager) PeriodicRefresh() time.Duration {
	return durationEnv("BREWLOG_PERIODIC_REFRESH", DefaultPeriodicRefresh)
}

// DeviceID returns the stored device ID, generating and persisting one
// if needed.
func (m *Manager) DeviceID() (string, error) {
	creds, err := m.LoadCredentials()
	if err != nil {
		return "", err
	}
	if creds != nil && creds.DeviceID != "" {
		return creds.DeviceID, nil
	}
	id, err := GenerateDeviceID()
	if err != nil {
		return "", err
	}
	if creds == nil {
		creds = &Credentials{}
	}
	creds.DeviceID = id
	if err := m.SaveCredentials(creds); err != nil {
		return "", err
	}
	return id, nil
}

// GenerateDeviceID creates a new random device ID (16 bytes hex).
func GenerateDeviceID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
