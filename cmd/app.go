package cmd

import (
	"fmt"
	"time"

	"github.com/marcus/brewlog/internal/auth"
	"github.com/marcus/brewlog/internal/netmon"
	"github.com/marcus/brewlog/internal/store"
	brewsync "github.com/marcus/brewlog/internal/sync"
	"github.com/marcus/brewlog/internal/syncclient"
	"github.com/marcus/brewlog/internal/syncconfig"
)

// app bundles the wired-up services a command needs. Each command run
// opens its own app and closes it when done.
type app struct {
	store  *store.Store
	cfg    *syncconfig.Manager
	client *syncclient.Client
	auth   *auth.Authenticator
	coord  *brewsync.Coordinator
	userID string
}

func openApp() (*app, error) {
	st, err := store.Open(getBaseDir())
	if err != nil {
		return nil, err
	}

	cfgDir, err := syncconfig.DefaultDir()
	if err != nil {
		st.Close()
		return nil, err
	}
	cfg := syncconfig.NewManager(cfgDir)

	creds, err := cfg.LoadCredentials()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	var userID, token string
	if creds != nil {
		userID = creds.UserID
		if userID != "" {
			token, _ = st.LoadToken(userID)
		}
	}

	deviceID, err := cfg.DeviceID()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("device id: %w", err)
	}

	client := syncclient.New(cfg.ServerURL(), token, deviceID)
	authr := auth.New(st, cfg, cfg.TokenSignKey(), cfg.GracePeriodDays(), time.Now)
	coord := brewsync.New(st, client, brewsync.Options{
		CleanupCooldown: cfg.CleanupCooldown(),
		PeriodicRefresh: cfg.PeriodicRefresh(),
	})

	return &app{
		store:  st,
		cfg:    cfg,
		client: client,
		auth:   authr,
		coord:  coord,
		userID: userID,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// requireUser returns the logged-in user id or an error telling the
// user to log in.
func (a *app) requireUser() (string, error) {
	if a.userID == "" {
		return "", fmt.Errorf("not logged in; run 'brewlog auth login'")
	}
	return a.userID, nil
}

// monitor builds the network monitor against the configured server.
func (a *app) monitor() *netmon.Monitor {
	return netmon.New(netmon.DefaultProbe(a.cfg.ServerURL()), a.cfg.SimulationMode)
}
