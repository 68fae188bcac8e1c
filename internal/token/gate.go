package token

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/embedgate/embedgate/internal/ratelimit"
)

// LegacyLookup resolves an embed token to an agent key through the
// pre-managed-token mapping. It is the degraded path used when the managed
// token store is unreachable: only the fallback rate limiter guards it, with
// no domain, quota or status checks.
type LegacyLookup interface {
	AgentKeyByEmbedToken(ctx context.Context, embedToken string) (string, error)
}

// Decision is the admission outcome for one public request. Denials carry a
// stable code, a message and the HTTP status the router should map them to;
// admissions carry the agent binding and current rate-limit state.
type Decision struct {
	Valid      bool
	Code       string
	Message    string
	HTTPStatus int
	AgentKey   string
	Token      *EmbedToken // nil on the degraded path
	RateInfo   ratelimit.Info
	Degraded   bool
}

// GateDeps holds the collaborators composed by the Gate.
type GateDeps struct {
	Store    Records
	Legacy   LegacyLookup
	Limiter  *ratelimit.Limiter
	Fallback *ratelimit.Fallback
	Stats    ratelimit.StatsRecorder // optional

	RequireOrigin bool
	// StoreTimeout bounds each store call; on timeout the gate fails closed.
	StoreTimeout time.Duration
}

// Gate is the admission path for public embed traffic: it resolves and
// validates the token, enforces the sliding-window rate limit, and exposes
// the usage accountant called after a request is served. No retrieval work
// runs before a request clears the gate.
type Gate struct {
	store    Records
	legacy   LegacyLookup
	limiter  *ratelimit.Limiter
	fallback *ratelimit.Fallback
	stats    ratelimit.StatsRecorder

	requireOrigin bool
	storeTimeout  time.Duration

	now func() time.Time // injectable clock for testing
}

// NewGate builds a Gate from its dependencies.
func NewGate(deps GateDeps) *Gate {
	timeout := deps.StoreTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Gate{
		store:         deps.Store,
		legacy:        deps.Legacy,
		limiter:       deps.Limiter,
		fallback:      deps.Fallback,
		stats:         deps.Stats,
		requireOrigin: deps.RequireOrigin,
		storeTimeout:  timeout,
		now:           time.Now,
	}
}

// HTTPStatusForCode maps a denial code to its HTTP status: unknown tokens are
// 404, capacity errors are 429, every other policy failure is 403.
func HTTPStatusForCode(code string) int {
	switch {
	case code == CodeInvalidToken:
		return 404
	case strings.Contains(code, "QUOTA") || strings.Contains(code, "RATE"):
		return 429
	default:
		return 403
	}
}

func (g *Gate) denied(code, message string) Decision {
	return Decision{Code: code, Message: message, HTTPStatus: HTTPStatusForCode(code)}
}

// Admit decides whether a public request carrying the given token and origin
// may reach retrieval. Validation runs before the rate limiter so the caller
// gets the most actionable error; the limiter slot is only consumed by
// requests that validated.
func (g *Gate) Admit(ctx context.Context, publicToken, origin string) Decision {
	vctx, cancel := context.WithTimeout(ctx, g.storeTimeout)
	defer cancel()

	validator := &Validator{store: g.store, RequireOrigin: g.requireOrigin, now: g.now}
	res, err := validator.Validate(vctx, publicToken, origin)
	if err != nil {
		slog.Error("embed token store unavailable, using degraded admission", "error", err)
		return g.admitDegraded(ctx, publicToken)
	}

	if !res.Valid {
		return g.denied(res.Code, res.Message)
	}

	tok := res.Token
	allowed := g.limiter.Allow(publicToken, tok.RateLimit)
	g.recordStats(ctx, publicToken, allowed)
	info := g.limiter.Status(publicToken, tok.RateLimit)

	if !allowed {
		d := g.denied(CodeRateLimitExceeded,
			fmt.Sprintf("Rate limit of %d requests per minute exceeded", info.Limit))
		d.RateInfo = info
		return d
	}

	return Decision{
		Valid:    true,
		AgentKey: tok.AgentKey,
		Token:    tok,
		RateInfo: info,
	}
}

// admitDegraded is the legacy path: resolve the agent directly and enforce
// only the fallback ceiling. Without a legacy mapping the gate fails closed.
func (g *Gate) admitDegraded(ctx context.Context, publicToken string) Decision {
	if g.legacy == nil {
		return g.denied(CodeInvalidToken, "Token not found")
	}

	lctx, cancel := context.WithTimeout(ctx, g.storeTimeout)
	defer cancel()

	agentKey, err := g.legacy.AgentKeyByEmbedToken(lctx, publicToken)
	if err != nil || agentKey == "" {
		return g.denied(CodeInvalidToken, "Invalid or disabled embed token")
	}

	allowed := g.fallback.Allow(publicToken)
	g.recordStats(ctx, publicToken, allowed)
	if !allowed {
		return g.denied(CodeRateLimitExceeded, "Rate limit exceeded. Please try again later.")
	}

	return Decision{Valid: true, AgentKey: agentKey, Degraded: true}
}

// RecordUse charges one request against the token's monthly quota and stamps
// last_used_at. Call it exactly once per successfully-served request, after
// the response is produced; repeated validation of a single request must not
// double-bill. Degraded admissions have no managed record to charge.
func (g *Gate) RecordUse(ctx context.Context, d Decision) {
	if !d.Valid || d.Degraded {
		return
	}

	uctx, cancel := context.WithTimeout(ctx, g.storeTimeout)
	defer cancel()

	if err := g.store.RecordUse(uctx, d.Token.PublicToken, g.now()); err != nil {
		slog.Error("failed to record embed token use", "error", err)
	}
}

// RateInfo returns the current window state for a managed token without
// consuming a slot.
func (g *Gate) RateInfo(tok *EmbedToken) ratelimit.Info {
	return g.limiter.Status(tok.PublicToken, tok.RateLimit)
}

func (g *Gate) recordStats(ctx context.Context, key string, allowed bool) {
	if g.stats != nil {
		g.stats.Record(ctx, key, allowed)
	}
}
