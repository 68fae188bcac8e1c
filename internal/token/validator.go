package token

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Records is the store surface the validator and gate need. *Store implements
// it; tests substitute in-memory fakes.
type Records interface {
	GetByPublicToken(ctx context.Context, publicToken string) (*EmbedToken, error)
	ResetQuota(ctx context.Context, publicToken string, oldReset, newReset time.Time) error
	RecordUse(ctx context.Context, publicToken string, now time.Time) error
}

// Result is the outcome of a validation pass. Denials carry a stable error
// code and a human-readable message; a valid result carries the full token
// record for the caller to act on.
type Result struct {
	Valid   bool        `json:"valid"`
	Code    string      `json:"error_code,omitempty"`
	Message string      `json:"error_message,omitempty"`
	Token   *EmbedToken `json:"token,omitempty"`
}

func deny(code, message string) Result {
	return Result{Code: code, Message: message}
}

// Validator runs a token through the full admission checklist. Checks run in
// a fixed order, cheapest and most fatal first: status and expiry are local
// comparisons no retry can fix, the domain check depends only on request
// shape, and the quota check is last because it may need a rollover write.
type Validator struct {
	store Records

	// RequireOrigin denies requests with no origin instead of skipping the
	// domain check for them.
	RequireOrigin bool

	now func() time.Time // injectable clock for testing
}

// NewValidator creates a Validator over the given token records.
func NewValidator(store Records) *Validator {
	return &Validator{store: store, now: time.Now}
}

// Validate checks the token against status, expiry, domain allowlist and
// monthly quota. An empty origin skips the domain check unless RequireOrigin
// is set. The returned error is non-nil only for store failures; every policy
// outcome is expressed in the Result.
func (v *Validator) Validate(ctx context.Context, publicToken, origin string) (Result, error) {
	t, err := v.store.GetByPublicToken(ctx, publicToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return deny(CodeInvalidToken, "Token not found"), nil
		}
		return Result{}, fmt.Errorf("looking up embed token: %w", err)
	}

	switch t.Status {
	case StatusSuspended:
		return deny(CodeTokenSuspended, "Token has been suspended"), nil
	case StatusRevoked:
		return deny(CodeTokenRevoked, "Token has been revoked"), nil
	}

	now := v.now()
	if t.Expired(now) {
		return deny(CodeTokenExpired, "Token has expired"), nil
	}

	if origin == "" {
		if v.RequireOrigin {
			return deny(CodeOriginRequired, "An Origin or Referer header is required"), nil
		}
	} else if !DomainAllowed(origin, t.AllowedDomains) {
		return deny(CodeDomainNotAllowed,
			fmt.Sprintf("Origin %q is not in the allowed domains list", origin)), nil
	}

	// Roll the cycle over before comparing usage; the stored counter may be
	// stale from the previous month.
	if QuotaDue(t, now) {
		newReset := NextQuotaReset(now)
		if err := v.store.ResetQuota(ctx, publicToken, t.QuotaResetAt, newReset); err != nil {
			return Result{}, fmt.Errorf("resetting quota cycle: %w", err)
		}
		t.MonthlyUsage = 0
		t.QuotaResetAt = newReset
	}
	if t.MonthlyUsage >= t.MonthlyQuota {
		return deny(CodeMonthlyQuotaExceeded, "Monthly request quota exceeded"), nil
	}

	return Result{Valid: true, Token: t}, nil
}
