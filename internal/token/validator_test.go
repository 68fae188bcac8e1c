package token

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeRecords is an in-memory Records implementation. Reads return copies so
// callers mutate their own view, the way a row scan would.
type fakeRecords struct {
	mu     sync.Mutex
	tokens map[string]*EmbedToken
	getErr error
}

func newFakeRecords(tokens ...*EmbedToken) *fakeRecords {
	f := &fakeRecords{tokens: make(map[string]*EmbedToken)}
	for _, t := range tokens {
		f.tokens[t.PublicToken] = t
	}
	return f
}

func (f *fakeRecords) GetByPublicToken(_ context.Context, publicToken string) (*EmbedToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	t, ok := f.tokens[publicToken]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeRecords) ResetQuota(_ context.Context, publicToken string, oldReset, newReset time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[publicToken]
	if !ok {
		return ErrNotFound
	}
	if !t.QuotaResetAt.Equal(oldReset) {
		return nil // another request already rolled the cycle over
	}
	t.MonthlyUsage = 0
	t.QuotaResetAt = newReset
	return nil
}

func (f *fakeRecords) RecordUse(_ context.Context, publicToken string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[publicToken]
	if !ok {
		return ErrNotFound
	}
	t.MonthlyUsage++
	t.LastUsedAt = &now
	return nil
}

func (f *fakeRecords) get(publicToken string) *EmbedToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[publicToken]
}

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// activeToken builds a valid token whose cycle resets next month.
func activeToken(publicToken string) *EmbedToken {
	return &EmbedToken{
		PublicToken:    publicToken,
		AgentKey:       "agent-1",
		WorkspaceID:    "ws-1",
		AllowedDomains: []string{"*"},
		RateLimit:      20,
		MonthlyQuota:   10000,
		QuotaResetAt:   NextQuotaReset(testNow),
		Status:         StatusActive,
		CreatedAt:      testNow.AddDate(0, 0, -1),
	}
}

func newTestValidator(store Records) *Validator {
	v := NewValidator(store)
	v.now = func() time.Time { return testNow }
	return v
}

func TestValidateUnknownToken(t *testing.T) {
	v := newTestValidator(newFakeRecords())

	res, err := v.Validate(context.Background(), "nope", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Valid {
		t.Fatal("unknown token should not validate")
	}
	if res.Code != CodeInvalidToken {
		t.Fatalf("expected %s, got %s", CodeInvalidToken, res.Code)
	}
}

func TestValidateStatusCodes(t *testing.T) {
	tests := []struct {
		status   Status
		wantCode string
	}{
		{StatusSuspended, CodeTokenSuspended},
		{StatusRevoked, CodeTokenRevoked},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			tok := activeToken("tok")
			tok.Status = tt.status
			v := newTestValidator(newFakeRecords(tok))

			res, err := v.Validate(context.Background(), "tok", "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Valid || res.Code != tt.wantCode {
				t.Fatalf("expected code %s, got valid=%v code=%s", tt.wantCode, res.Valid, res.Code)
			}
		})
	}
}

func TestValidateExpired(t *testing.T) {
	tok := activeToken("tok")
	expired := testNow.Add(-time.Hour)
	tok.ExpiresAt = &expired
	v := newTestValidator(newFakeRecords(tok))

	res, err := v.Validate(context.Background(), "tok", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Code != CodeTokenExpired {
		t.Fatalf("expected %s, got %s", CodeTokenExpired, res.Code)
	}
}

// Check ordering is a contract: a token that is both expired and over quota
// must report expiry.
func TestValidateExpiryBeatsQuota(t *testing.T) {
	tok := activeToken("tok")
	expired := testNow.Add(-time.Hour)
	tok.ExpiresAt = &expired
	tok.MonthlyUsage = tok.MonthlyQuota
	v := newTestValidator(newFakeRecords(tok))

	res, err := v.Validate(context.Background(), "tok", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Code != CodeTokenExpired {
		t.Fatalf("expected %s before quota check, got %s", CodeTokenExpired, res.Code)
	}
}

func TestValidateDomainNotAllowed(t *testing.T) {
	tok := activeToken("tok")
	tok.AllowedDomains = []string{"acme.com"}
	v := newTestValidator(newFakeRecords(tok))

	res, err := v.Validate(context.Background(), "tok", "https://evil.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Code != CodeDomainNotAllowed {
		t.Fatalf("expected %s, got %s", CodeDomainNotAllowed, res.Code)
	}
}

func TestValidateMissingOrigin(t *testing.T) {
	tok := activeToken("tok")
	tok.AllowedDomains = []string{"acme.com"}

	// Default policy: no origin means the domain check is skipped, so
	// non-browser clients keep working.
	v := newTestValidator(newFakeRecords(tok))
	res, err := v.Validate(context.Background(), "tok", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected valid with no origin, got %s", res.Code)
	}

	// Strict policy: an origin is required.
	v.RequireOrigin = true
	res, err = v.Validate(context.Background(), "tok", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Code != CodeOriginRequired {
		t.Fatalf("expected %s, got %s", CodeOriginRequired, res.Code)
	}
}

func TestValidateQuotaExceeded(t *testing.T) {
	tok := activeToken("tok")
	tok.MonthlyQuota = 5
	tok.MonthlyUsage = 5
	v := newTestValidator(newFakeRecords(tok))

	res, err := v.Validate(context.Background(), "tok", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Code != CodeMonthlyQuotaExceeded {
		t.Fatalf("expected %s, got %s", CodeMonthlyQuotaExceeded, res.Code)
	}
}

func TestValidateQuotaRollover(t *testing.T) {
	tok := activeToken("tok")
	tok.MonthlyQuota = 5
	tok.MonthlyUsage = 5
	tok.QuotaResetAt = testNow.Add(-time.Hour) // boundary already passed
	store := newFakeRecords(tok)
	v := newTestValidator(store)

	res, err := v.Validate(context.Background(), "tok", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected valid after rollover, got %s", res.Code)
	}
	if res.Token.MonthlyUsage != 0 {
		t.Fatalf("expected usage reset to 0, got %d", res.Token.MonthlyUsage)
	}
	want := NextQuotaReset(testNow)
	if !res.Token.QuotaResetAt.Equal(want) {
		t.Fatalf("expected reset at %v, got %v", want, res.Token.QuotaResetAt)
	}

	// A second pass right after must see the same state: no double reset.
	res2, err := v.Validate(context.Background(), "tok", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res2.Token.QuotaResetAt.Equal(want) {
		t.Fatalf("double reset drift: %v vs %v", res2.Token.QuotaResetAt, want)
	}
	if got := store.get("tok").MonthlyUsage; got != 0 {
		t.Fatalf("stored usage should be 0, got %d", got)
	}
}

func TestValidateStoreErrorPropagates(t *testing.T) {
	store := newFakeRecords()
	store.getErr = errors.New("connection refused")
	v := newTestValidator(store)

	_, err := v.Validate(context.Background(), "tok", "")
	if err == nil {
		t.Fatal("expected store error to propagate for the gate to handle")
	}
}

func TestValidateReturnsRecord(t *testing.T) {
	tok := activeToken("tok")
	tok.AllowedDomains = []string{"*.acme.com"}
	tok.RateLimit = 7
	v := newTestValidator(newFakeRecords(tok))

	res, err := v.Validate(context.Background(), "tok", "https://widget.acme.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected valid, got %s", res.Code)
	}
	if res.Token == nil || res.Token.AgentKey != "agent-1" || res.Token.RateLimit != 7 {
		t.Fatalf("expected full token record, got %+v", res.Token)
	}
}
