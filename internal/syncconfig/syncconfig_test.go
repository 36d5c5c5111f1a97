package syncconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestServerURLPriority(t *testing.T) {
	m := NewManager(t.TempDir())

	os.Unsetenv("BREWLOG_SYNC_URL")
	if got := m.ServerURL(); got != "http://localhost:8080" {
		t.Errorf("default url: got %s", got)
	}

	if err := m.SaveConfig(&Config{Sync: SyncSettings{URL: "https://cfg.example"}}); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	if got := m.ServerURL(); got != "https://cfg.example" {
		t.Errorf("config url: got %s", got)
	}

	t.Setenv("BREWLOG_SYNC_URL", "https://env.example")
	if got := m.ServerURL(); got != "https://env.example" {
		t.Errorf("env url: got %s", got)
	}
}

func TestGracePeriodDays(t *testing.T) {
	m := NewManager(t.TempDir())

	os.Unsetenv("BREWLOG_GRACE_PERIOD_DAYS")
	if got := m.GracePeriodDays(); got != 7 {
		t.Errorf("default grace: got %d, want 7", got)
	}

	days := 3
	m.SaveConfig(&Config{Sync: SyncSettings{GracePeriodDays: &days}})
	if got := m.GracePeriodDays(); got != 3 {
		t.Errorf("config grace: got %d, want 3", got)
	}

	t.Setenv("BREWLOG_GRACE_PERIOD_DAYS", "14")
	if got := m.GracePeriodDays(); got != 14 {
		t.Errorf("env grace: got %d, want 14", got)
	}

	// Invalid env falls through
	t.Setenv("BREWLOG_GRACE_PERIOD_DAYS", "not-a-number")
	if got := m.GracePeriodDays(); got != 3 {
		t.Errorf("invalid env grace: got %d, want 3 (config)", got)
	}
}

func TestSimulationMode(t *testing.T) {
	m := NewManager(t.TempDir())

	os.Unsetenv("BREWLOG_SIM_MODE")
	if got := m.SimulationMode(); got != SimNormal {
		t.Errorf("default sim mode: got %s", got)
	}

	t.Setenv("BREWLOG_SIM_MODE", "offline")
	if got := m.SimulationMode(); got != SimOffline {
		t.Errorf("env sim mode: got %s", got)
	}

	// Unknown values degrade to normal
	t.Setenv("BREWLOG_SIM_MODE", "turbo")
	if got := m.SimulationMode(); got != SimNormal {
		t.Errorf("unknown sim mode: got %s", got)
	}
}

func TestDurationOverrides(t *testing.T) {
	m := NewManager(t.TempDir())

	os.Unsetenv("BREWLOG_CLEANUP_COOLDOWN")
	if got := m.CleanupCooldown(); got != 5*time.Minute {
		t.Errorf("default cleanup cooldown: got %v", got)
	}
	t.Setenv("BREWLOG_CLEANUP_COOLDOWN", "30s")
	if got := m.CleanupCooldown(); got != 30*time.Second {
		t.Errorf("env cleanup cooldown: got %v", got)
	}

	os.Unsetenv("BREWLOG_PERIODIC_REFRESH")
	if got := m.PeriodicRefresh(); got != 4*time.Hour {
		t.Errorf("default periodic refresh: got %v", got)
	}
}

func TestCredentialsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	creds, err := m.LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if creds != nil {
		t.Fatal("expected nil credentials before save")
	}

	if err := m.SaveCredentials(&Credentials{UserID: "u1", Username: "marcus", DeviceToken: "secret"}); err != nil {
		t.Fatalf("SaveCredentials failed: %v", err)
	}

	// Credentials carry a device secret: owner-only perms
	info, err := os.Stat(filepath.Join(dir, "auth.json"))
	if err != nil {
		t.Fatalf("stat auth.json: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("auth.json perms: got %o, want 0600", info.Mode().Perm())
	}

	creds, err = m.LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if creds.Username != "marcus" {
		t.Errorf("Username: got %s", creds.Username)
	}

	if err := m.ClearCredentials(); err != nil {
		t.Fatalf("ClearCredentials failed: %v", err)
	}
	if err := m.ClearCredentials(); err != nil {
		t.Errorf("ClearCredentials should be idempotent: %v", err)
	}
}

func TestDeviceIDStable(t *testing.T) {
	m := NewManager(t.TempDir())

	id1, err := m.DeviceID()
	if err != nil {
		t.Fatalf("DeviceID failed: %v", err)
	}
	if len(id1) != 32 {
		t.Errorf("device id length: got %d, want 32 hex chars", len(id1))
	}

	id2, err := m.DeviceID()
	if err != nil {
		t.Fatalf("DeviceID failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("device id not stable: %s vs %s", id1, id2)
	}
}

func TestTokenSignKey(t *testing.T) {
	m := NewManager(t.TempDir())

	os.Unsetenv("BREWLOG_TOKEN_KEY")
	if key := m.TokenSignKey(); key != nil {
		t.Errorf("default key: got %q, want nil", key)
	}

	m.SaveConfig(&Config{Sync: SyncSettings{TokenKey: "cfg-key"}})
	if got := string(m.TokenSignKey()); got != "cfg-key" {
		t.Errorf("config key: got %s", got)
	}

	t.Setenv("BREWLOG_TOKEN_KEY", "env-key")
	if got := string(m.TokenSignKey()); got != "env-key" {
		t.Errorf("env key: got %s", got)
	}
}
