// Package auth classifies access tokens and drives auth state for the
// active user session. Validation is a pure function over the token and
// the current time; the grace window keeps the app usable offline for
// days after a token technically expires.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// State is the outcome class of token validation.
type State int

const (
	// StateInvalid means the token is malformed, unsigned, or fails
	// signature verification.
	StateInvalid State = iota
	// StateValid means the token has not expired.
	StateValid
	// StateExpiredInGrace means the token expired within the grace window.
	StateExpiredInGrace
	// StateExpiredBeyondGrace means the token expired past the grace window.
	StateExpiredBeyondGrace
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateExpiredInGrace:
		return "expired_in_grace"
	case StateExpiredBeyondGrace:
		return "expired_beyond_grace"
	default:
		return "invalid"
	}
}

// Result is the outcome of validating a token at a point in time.
// DaysSinceExpiry is populated only for StateExpiredInGrace.
type Result struct {
	State           State
	DaysSinceExpiry int
	Subject         string
	ExpiresAt       time.Time
}

// Validate classifies a signed token against now. Total and
// deterministic: exactly one of the four states for every input.
// Decision order: unverifiable -> invalid; now <= expiry -> valid;
// within gracePeriodDays past expiry -> expired-in-grace (with whole
// days since expiry); otherwise expired-beyond-grace.
func Validate(token string, signKey []byte, gracePeriodDays int, now time.Time) Result {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		// Expiry is classified manually below; the parser must not
		// reject expired-but-in-grace tokens.
		jwt.WithoutClaimsValidation(),
	)

	claims := jwt.RegisteredClaims{}
	parsed, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return signKey, nil
	})
	if err != nil || !parsed.Valid {
		return Result{State: StateInvalid}
	}
	if claims.ExpiresAt == nil {
		return Result{State: StateInvalid}
	}

	expiry := claims.ExpiresAt.Time
	res := Result{Subject: claims.Subject, ExpiresAt: expiry}

	if !now.After(expiry) {
		res.State = StateValid
		return res
	}

	graceEnd := expiry.Add(time.Duration(gracePeriodDays) * 24 * time.Hour)
	if !now.After(graceEnd) {
		res.State = StateExpiredInGrace
		res.DaysSinceExpiry = int(now.Sub(expiry).Hours() / 24)
		return res
	}

	res.State = StateExpiredBeyondGrace
	return res
}
