package token

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/embedgate/embedgate/internal/ratelimit"
)

type fakeLegacy struct {
	agents map[string]string
}

func (f *fakeLegacy) AgentKeyByEmbedToken(_ context.Context, embedToken string) (string, error) {
	key, ok := f.agents[embedToken]
	if !ok {
		return "", errors.New("not found")
	}
	return key, nil
}

func newTestGate(store Records, legacy LegacyLookup) *Gate {
	g := NewGate(GateDeps{
		Store:    store,
		Legacy:   legacy,
		Limiter:  ratelimit.New(20, time.Minute),
		Fallback: ratelimit.NewFallback(20),
	})
	g.now = func() time.Time { return testNow }
	return g
}

func TestAdmitValid(t *testing.T) {
	tok := activeToken("tok")
	g := newTestGate(newFakeRecords(tok), nil)

	d := g.Admit(context.Background(), "tok", "https://anything.example")
	if !d.Valid {
		t.Fatalf("expected admission, got %s: %s", d.Code, d.Message)
	}
	if d.AgentKey != "agent-1" {
		t.Fatalf("expected agent binding, got %q", d.AgentKey)
	}
	if d.RateInfo.Used != 1 {
		t.Fatalf("admission should consume one window slot, used = %d", d.RateInfo.Used)
	}
	if d.Degraded {
		t.Fatal("managed admission must not be marked degraded")
	}
}

func TestAdmitRateLimited(t *testing.T) {
	tok := activeToken("tok")
	tok.RateLimit = 2
	g := newTestGate(newFakeRecords(tok), nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if d := g.Admit(ctx, "tok", ""); !d.Valid {
			t.Fatalf("request %d should be admitted", i+1)
		}
	}

	d := g.Admit(ctx, "tok", "")
	if d.Valid {
		t.Fatal("third request inside the window should be denied")
	}
	if d.Code != CodeRateLimitExceeded {
		t.Fatalf("expected %s, got %s", CodeRateLimitExceeded, d.Code)
	}
	if d.HTTPStatus != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", d.HTTPStatus)
	}
	if d.RateInfo.Remaining != 0 {
		t.Fatalf("expected remaining 0, got %d", d.RateInfo.Remaining)
	}
}

func TestAdmitDenialStatusMapping(t *testing.T) {
	suspended := activeToken("sus")
	suspended.Status = StatusSuspended
	overQuota := activeToken("quota")
	overQuota.MonthlyQuota = 1
	overQuota.MonthlyUsage = 1

	g := newTestGate(newFakeRecords(suspended, overQuota), nil)
	ctx := context.Background()

	tests := []struct {
		token      string
		wantCode   string
		wantStatus int
	}{
		{"missing", CodeInvalidToken, http.StatusNotFound},
		{"sus", CodeTokenSuspended, http.StatusForbidden},
		{"quota", CodeMonthlyQuotaExceeded, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		d := g.Admit(ctx, tt.token, "")
		if d.Code != tt.wantCode || d.HTTPStatus != tt.wantStatus {
			t.Errorf("token %q: got %s/%d, want %s/%d",
				tt.token, d.Code, d.HTTPStatus, tt.wantCode, tt.wantStatus)
		}
	}
}

func TestAdmitDegradedPath(t *testing.T) {
	store := newFakeRecords()
	store.getErr = errors.New("store down")
	legacy := &fakeLegacy{agents: map[string]string{"tok": "agent-9"}}
	g := newTestGate(store, legacy)

	d := g.Admit(context.Background(), "tok", "https://evil.com")
	if !d.Valid {
		t.Fatalf("degraded path should admit via legacy lookup, got %s", d.Code)
	}
	if !d.Degraded {
		t.Fatal("decision should be marked degraded")
	}
	if d.AgentKey != "agent-9" {
		t.Fatalf("expected legacy agent binding, got %q", d.AgentKey)
	}

	// Unknown tokens still fail closed.
	d = g.Admit(context.Background(), "other", "")
	if d.Valid || d.Code != CodeInvalidToken {
		t.Fatalf("expected fail-closed invalid token, got valid=%v code=%s", d.Valid, d.Code)
	}
}

func TestAdmitDegradedFailsClosedWithoutLegacy(t *testing.T) {
	store := newFakeRecords()
	store.getErr = errors.New("store down")
	g := newTestGate(store, nil)

	d := g.Admit(context.Background(), "tok", "")
	if d.Valid {
		t.Fatal("store outage with no legacy path must deny")
	}
	if d.HTTPStatus != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", d.HTTPStatus)
	}
}

func TestRecordUseConcurrent(t *testing.T) {
	tok := activeToken("tok")
	store := newFakeRecords(tok)
	g := newTestGate(store, nil)
	d := Decision{Valid: true, Token: tok}

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.RecordUse(context.Background(), d)
		}()
	}
	wg.Wait()

	if got := store.get("tok").MonthlyUsage; got != n {
		t.Fatalf("expected usage %d after %d concurrent records, got %d", n, n, got)
	}
	if store.get("tok").LastUsedAt == nil {
		t.Fatal("last_used_at should be stamped")
	}
}

func TestRecordUseSkipsDegradedAndInvalid(t *testing.T) {
	tok := activeToken("tok")
	store := newFakeRecords(tok)
	g := newTestGate(store, nil)

	g.RecordUse(context.Background(), Decision{Valid: false, Token: tok})
	g.RecordUse(context.Background(), Decision{Valid: true, Degraded: true, Token: tok})

	if got := store.get("tok").MonthlyUsage; got != 0 {
		t.Fatalf("no usage should be charged, got %d", got)
	}
}

func TestHTTPStatusForCode(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{CodeInvalidToken, http.StatusNotFound},
		{CodeTokenSuspended, http.StatusForbidden},
		{CodeTokenRevoked, http.StatusForbidden},
		{CodeTokenExpired, http.StatusForbidden},
		{CodeDomainNotAllowed, http.StatusForbidden},
		{CodeOriginRequired, http.StatusForbidden},
		{CodeMonthlyQuotaExceeded, http.StatusTooManyRequests},
		{CodeRateLimitExceeded, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		if got := HTTPStatusForCode(tt.code); got != tt.want {
			t.Errorf("HTTPStatusForCode(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
