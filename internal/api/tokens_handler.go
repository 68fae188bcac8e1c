package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/embedgate/embedgate/internal/auth"
	"github.com/embedgate/embedgate/internal/token"
	"github.com/go-chi/chi/v5"
)

// TokenStore is the token lifecycle surface the management API needs.
type TokenStore interface {
	Create(ctx context.Context, in token.CreateTokenInput) (*token.EmbedToken, error)
	GetByPublicToken(ctx context.Context, publicToken string) (*token.EmbedToken, error)
	Update(ctx context.Context, publicToken string, in token.UpdateTokenInput) (*token.EmbedToken, error)
	Suspend(ctx context.Context, publicToken string) (*token.EmbedToken, error)
	Revoke(ctx context.Context, publicToken string) (*token.EmbedToken, error)
	Activate(ctx context.Context, publicToken string) (*token.EmbedToken, error)
	Delete(ctx context.Context, publicToken string) error
	ListByAgent(ctx context.Context, agentKey string) ([]*token.EmbedToken, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*token.EmbedToken, error)
	ListAll(ctx context.Context) ([]*token.EmbedToken, error)
	GetUsageStats(ctx context.Context, publicToken string) (*token.UsageStats, error)
}

// AgentDirectory is the agent surface the token lifecycle needs: ownership
// lookups plus the embed-token mirror the degraded admission path resolves
// against.
type AgentDirectory interface {
	AgentReader
	SetLegacyEmbedToken(ctx context.Context, key string, embedToken *string) error
}

// tokensHandler groups embed-token lifecycle handlers. All routes are
// workspace-authed; every mutation verifies the caller owns the token.
type tokensHandler struct {
	tokens TokenStore
	agents AgentDirectory
}

func newTokensHandler(tokens TokenStore, agents AgentDirectory) *tokensHandler {
	return &tokensHandler{tokens: tokens, agents: agents}
}

type createTokenRequest struct {
	AgentKey       string   `json:"agent_key"`
	AllowedDomains []string `json:"allowed_domains"`
	RateLimit      int      `json:"rate_limit"`
	MonthlyQuota   int      `json:"monthly_quota"`
	ExpiresInDays  int      `json:"expires_in_days"`
}

// Create handles POST /api/v1/tokens.
func (h *tokensHandler) Create(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())

	var req createTokenRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidationError, "failed to parse request body")
		return
	}
	if req.AgentKey == "" {
		writeError(w, r, http.StatusUnprocessableEntity, codeValidationError, "agent_key is required")
		return
	}

	// The agent must exist and belong to the caller's workspace.
	ag, err := h.agents.GetByKey(r.Context(), req.AgentKey)
	if err != nil || ag.WorkspaceID != p.UserID {
		writeError(w, r, http.StatusNotFound, codeNotFound, "agent not found")
		return
	}

	tok, err := h.tokens.Create(r.Context(), token.CreateTokenInput{
		AgentKey:       req.AgentKey,
		WorkspaceID:    p.UserID,
		AllowedDomains: req.AllowedDomains,
		RateLimit:      req.RateLimit,
		MonthlyQuota:   req.MonthlyQuota,
		ExpiresInDays:  req.ExpiresInDays,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "failed to create token")
		return
	}

	// Mirror the newest token onto the agent row so admission can still
	// resolve it over the legacy path when the token store is unreachable.
	if err := h.agents.SetLegacyEmbedToken(r.Context(), tok.AgentKey, &tok.PublicToken); err != nil {
		slog.Warn("failed to mirror embed token onto agent",
			"agent_key", tok.AgentKey, "error", err)
	}

	writeSuccess(w, r, http.StatusCreated, tok, nil)
}

// Get handles GET /api/v1/tokens/{publicToken}.
func (h *tokensHandler) Get(w http.ResponseWriter, r *http.Request) {
	tok, ok := h.ownedToken(w, r)
	if !ok {
		return
	}
	writeSuccess(w, r, http.StatusOK, tok, nil)
}

// Update handles PUT /api/v1/tokens/{publicToken}.
func (h *tokensHandler) Update(w http.ResponseWriter, r *http.Request) {
	tok, ok := h.ownedToken(w, r)
	if !ok {
		return
	}

	var input token.UpdateTokenInput
	if err := readJSON(r, &input); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidationError, "failed to parse request body")
		return
	}

	updated, err := h.tokens.Update(r.Context(), tok.PublicToken, input)
	if err != nil {
		h.writeStoreError(w, r, err, "failed to update token")
		return
	}
	writeSuccess(w, r, http.StatusOK, updated, nil)
}

// Suspend handles POST /api/v1/tokens/{publicToken}/suspend.
func (h *tokensHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.tokens.Suspend, "failed to suspend token")
}

// Revoke handles POST /api/v1/tokens/{publicToken}/revoke.
func (h *tokensHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	tok, ok := h.ownedToken(w, r)
	if !ok {
		return
	}

	updated, err := h.tokens.Revoke(r.Context(), tok.PublicToken)
	if err != nil {
		h.writeStoreError(w, r, err, "failed to revoke token")
		return
	}

	// A revoked token must stop admitting over the legacy path too.
	h.clearMirror(r.Context(), tok)

	writeSuccess(w, r, http.StatusOK, updated, nil)
}

// Activate handles POST /api/v1/tokens/{publicToken}/activate. Revoked
// tokens stay revoked.
func (h *tokensHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.tokens.Activate, "failed to activate token")
}

func (h *tokensHandler) transition(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, publicToken string) (*token.EmbedToken, error), failMsg string) {

	tok, ok := h.ownedToken(w, r)
	if !ok {
		return
	}

	updated, err := op(r.Context(), tok.PublicToken)
	if err != nil {
		h.writeStoreError(w, r, err, failMsg)
		return
	}
	writeSuccess(w, r, http.StatusOK, updated, nil)
}

// Delete handles DELETE /api/v1/tokens/{publicToken}.
func (h *tokensHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tok, ok := h.ownedToken(w, r)
	if !ok {
		return
	}

	if err := h.tokens.Delete(r.Context(), tok.PublicToken); err != nil {
		h.writeStoreError(w, r, err, "failed to delete token")
		return
	}
	h.clearMirror(r.Context(), tok)
	writeSuccess(w, r, http.StatusOK, map[string]any{"deleted": true}, nil)
}

// List handles GET /api/v1/tokens, optionally filtered by ?agent_key=.
func (h *tokensHandler) List(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())

	agentKey := r.URL.Query().Get("agent_key")
	if agentKey != "" {
		ag, err := h.agents.GetByKey(r.Context(), agentKey)
		if err != nil || ag.WorkspaceID != p.UserID {
			writeError(w, r, http.StatusNotFound, codeNotFound, "agent not found")
			return
		}
		tokens, err := h.tokens.ListByAgent(r.Context(), agentKey)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, codeInternalError, "failed to list tokens")
			return
		}
		writeSuccess(w, r, http.StatusOK, tokens, nil)
		return
	}

	tokens, err := h.tokens.ListByWorkspace(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "failed to list tokens")
		return
	}
	writeSuccess(w, r, http.StatusOK, tokens, nil)
}

// AdminList handles GET /api/v1/admin/tokens. It returns tokens across all
// workspaces and is reachable only behind the admin middleware.
func (h *tokensHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.tokens.ListAll(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "failed to list tokens")
		return
	}
	writeSuccess(w, r, http.StatusOK, tokens, nil)
}

// clearMirror drops the agent's legacy embed token when it still points at
// tok, so a revoked or deleted token cannot keep admitting over the legacy
// path. A mirror already replaced by a newer token is left alone.
func (h *tokensHandler) clearMirror(ctx context.Context, tok *token.EmbedToken) {
	ag, err := h.agents.GetByKey(ctx, tok.AgentKey)
	if err != nil || ag.LegacyEmbedToken == nil || *ag.LegacyEmbedToken != tok.PublicToken {
		return
	}
	if err := h.agents.SetLegacyEmbedToken(ctx, tok.AgentKey, nil); err != nil {
		slog.Warn("failed to clear mirrored embed token",
			"agent_key", tok.AgentKey, "error", err)
	}
}

// Usage handles GET /api/v1/tokens/{publicToken}/usage.
func (h *tokensHandler) Usage(w http.ResponseWriter, r *http.Request) {
	tok, ok := h.ownedToken(w, r)
	if !ok {
		return
	}

	stats, err := h.tokens.GetUsageStats(r.Context(), tok.PublicToken)
	if err != nil {
		h.writeStoreError(w, r, err, "failed to load usage stats")
		return
	}
	writeSuccess(w, r, http.StatusOK, stats, nil)
}

// ownedToken resolves the path token and enforces workspace ownership,
// writing the error response itself on failure. Foreign tokens read as not
// found so ownership cannot be probed.
func (h *tokensHandler) ownedToken(w http.ResponseWriter, r *http.Request) (*token.EmbedToken, bool) {
	p := auth.PrincipalFromContext(r.Context())
	publicToken := chi.URLParam(r, "publicToken")

	tok, err := h.tokens.GetByPublicToken(r.Context(), publicToken)
	if err != nil {
		h.writeStoreError(w, r, err, "failed to load token")
		return nil, false
	}
	if tok.WorkspaceID != p.UserID {
		writeError(w, r, http.StatusNotFound, codeNotFound, "token not found")
		return nil, false
	}
	return tok, true
}

func (h *tokensHandler) writeStoreError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, token.ErrNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound, "token not found")
	case errors.Is(err, token.ErrRevoked):
		writeError(w, r, http.StatusConflict, token.CodeTokenRevoked, "revoked tokens cannot be re-activated")
	default:
		writeError(w, r, http.StatusInternalServerError, codeInternalError, fallback)
	}
}
