package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marcus/brewlog/internal/models"
	"github.com/marcus/brewlog/internal/store"
	"github.com/marcus/brewlog/internal/syncconfig"
)

// Status is the app-level authentication state for the active session.
type Status int

const (
	// StatusUnauthenticated: no usable token; login required.
	StatusUnauthenticated Status = iota
	// StatusAuthenticated: token valid.
	StatusAuthenticated
	// StatusExpired: token in the grace window; cached-data reads are
	// still allowed but the session should refresh when connectivity
	// returns.
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusExpired:
		return "expired"
	default:
		return "unauthenticated"
	}
}

// Authenticator owns the AuthStatus state machine. It is constructed
// once with its dependencies (storage, credentials, clock) and passed
// by reference to whoever needs it.
type Authenticator struct {
	store     *store.Store
	creds     *syncconfig.Manager
	signKey   []byte
	graceDays int
	now       func() time.Time

	mu     sync.Mutex
	status Status
	userID string
}

// New creates an Authenticator. now may be nil for the wall clock.
func New(st *store.Store, creds *syncconfig.Manager, signKey []byte, graceDays int, now func() time.Time) *Authenticator {
	if now == nil {
		now = time.Now
	}
	return &Authenticator{
		store:     st,
		creds:     creds,
		signKey:   signKey,
		graceDays: graceDays,
		now:       now,
	}
}

// Status returns the current auth status and the active user id.
func (a *Authenticator) Status() (Status, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status, a.userID
}

// Refresh re-validates the stored token and applies the resulting
// status transition. A token beyond grace, or an invalid token, forces
// logout: the stored token is removed and cached credentials cleared.
func (a *Authenticator) Refresh(userID string) (Status, error) {
	token, err := a.store.LoadToken(userID)
	if errors.Is(err, store.ErrNotFound) {
		a.setStatus(StatusUnauthenticated, "")
		return StatusUnauthenticated, nil
	}
	if err != nil {
		return StatusUnauthenticated, fmt.Errorf("load token: %w", err)
	}

	res := Validate(token, a.signKey, a.graceDays, a.now())
	switch res.State {
	case StateValid:
		a.setStatus(StatusAuthenticated, userID)
		return StatusAuthenticated, nil
	case StateExpiredInGrace:
		slog.Info("token expired, within grace window", "days_since_expiry", res.DaysSinceExpiry)
		a.setStatus(StatusExpired, userID)
		return StatusExpired, nil
	default:
		// EXPIRED_BEYOND_GRACE or INVALID: forced logout path.
		if err := a.ForceLogout(userID); err != nil {
			return StatusUnauthenticated, err
		}
		return StatusUnauthenticated, nil
	}
}

// ApplySession establishes a session from a freshly obtained token and
// profile. The status is reported only after the token write is
// durably confirmed; any step failing rolls back fully so no
// half-authenticated state survives.
func (a *Authenticator) ApplySession(token string, user models.User) error {
	res := Validate(token, a.signKey, a.graceDays, a.now())
	if res.State != StateValid {
		return fmt.Errorf("refusing to apply session: token state %s", res.State)
	}

	if err := a.store.SaveToken(user.ID, token); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}

	existing, _ := a.creds.LoadCredentials()
	creds := &syncconfig.Credentials{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
	}
	if existing != nil {
		creds.ServerURL = existing.ServerURL
		creds.DeviceID = existing.DeviceID
		creds.DeviceToken = existing.DeviceToken
	}
	if err := a.creds.SaveCredentials(creds); err != nil {
		// Roll back the partially stored token and surface the failure
		// to the caller so the login UI can show it.
		if clearErr := a.store.ClearToken(user.ID); clearErr != nil {
			slog.Warn("session rollback: clear token", "err", clearErr)
		}
		a.setStatus(StatusUnauthenticated, "")
		return fmt.Errorf("persist profile: %w", err)
	}

	a.setStatus(StatusAuthenticated, user.ID)
	return nil
}

// ForceLogout clears the stored token and cached profile and resets
// status to unauthenticated. Idempotent.
func (a *Authenticator) ForceLogout(userID string) error {
	slog.Info("forcing logout", "user", userID)
	if err := a.store.ClearToken(userID); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	if err := a.creds.ClearCredentials(); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	a.setStatus(StatusUnauthenticated, "")
	return nil
}

func (a *Authenticator) setStatus(s Status, userID string) {
	a.mu.Lock()
	a.status = s
	a.userID = userID
	a.mu.Unlock()
}
