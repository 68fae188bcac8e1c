package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/embedgate/embedgate/internal/agent"
	"github.com/embedgate/embedgate/internal/analytics"
	"github.com/embedgate/embedgate/internal/metrics"
	"github.com/embedgate/embedgate/internal/retrieval"
	"github.com/embedgate/embedgate/internal/token"
	"github.com/go-chi/chi/v5"
)

// TokenReader is the read-only token access the embed surface needs outside
// the admission path.
type TokenReader interface {
	GetByPublicToken(ctx context.Context, publicToken string) (*token.EmbedToken, error)
}

// AgentReader resolves agent keys to their records.
type AgentReader interface {
	GetByKey(ctx context.Context, key string) (*agent.Agent, error)
}

// QueryService answers questions against an agent's index.
type QueryService interface {
	Query(ctx context.Context, agentKey, systemPrompt, question string, topK int) (*retrieval.QueryResult, error)
}

// EventRecorder buffers widget analytics events.
type EventRecorder interface {
	Record(ev analytics.Event)
}

// embedHandler serves the public widget endpoints. Every request passes the
// admission gate or at minimum a token existence check; no retrieval work
// happens for unadmitted traffic.
type embedHandler struct {
	gate      *token.Gate
	tokens    TokenReader
	agents    AgentReader
	retrieval QueryService
	collector EventRecorder
	metrics   *metrics.Metrics
}

func newEmbedHandler(gate *token.Gate, tokens TokenReader, agents AgentReader, retrieval QueryService, collector EventRecorder, m *metrics.Metrics) *embedHandler {
	return &embedHandler{
		gate:      gate,
		tokens:    tokens,
		agents:    agents,
		retrieval: retrieval,
		collector: collector,
		metrics:   m,
	}
}

type embedQueryRequest struct {
	Query string `json:"query"`
}

// Query handles POST /v1/embed/{token}/query, the hot path of the service.
func (h *embedHandler) Query(w http.ResponseWriter, r *http.Request) {
	publicToken := chi.URLParam(r, "token")
	origin := requestOrigin(r)

	var req embedQueryRequest
	if err := readJSON(r, &req); err != nil || req.Query == "" {
		writeError(w, r, http.StatusBadRequest, codeMissingQuery, "Query is required")
		return
	}

	d := h.gate.Admit(r.Context(), publicToken, origin)
	h.countAdmission(d)
	if !d.Valid {
		h.writeDenial(w, r, d)
		return
	}

	ag, err := h.agents.GetByKey(r.Context(), d.AgentKey)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "Agent unavailable")
		return
	}

	start := time.Now()
	result, err := h.retrieval.Query(r.Context(), ag.Key, ag.SystemPrompt, req.Query, ag.TopK)
	elapsed := time.Since(start)
	if h.metrics != nil {
		h.metrics.ObserveRetrievalDuration(elapsed.Seconds())
	}
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncRetrievalError()
		}
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "Failed to answer query")
		return
	}

	if h.collector != nil {
		h.collector.Record(analytics.Event{
			AgentKey:    ag.Key,
			PublicToken: publicToken,
			Kind:        analytics.EventQuery,
			Question:    req.Query,
			Origin:      origin,
			LatencyMs:   elapsed.Milliseconds(),
		})
	}

	// Charge the quota only after the answer is produced; a failed query is
	// not billed.
	h.gate.RecordUse(r.Context(), d)

	if !d.Degraded {
		setRateHeaders(w, d.RateInfo)
	}
	writeSuccess(w, r, http.StatusOK, map[string]any{
		"answer":     result.Answer,
		"sources":    result.Sources,
		"agent_name": ag.Name,
	}, map[string]any{
		"response_time_ms": elapsed.Milliseconds(),
	})
}

// Info handles GET /v1/embed/{token}/info. It only proves the token exists
// and describes the agent; it neither consumes a rate slot nor bills quota.
func (h *embedHandler) Info(w http.ResponseWriter, r *http.Request) {
	tok, ok := h.lookupToken(w, r)
	if !ok {
		return
	}

	ag, err := h.agents.GetByKey(r.Context(), tok.AgentKey)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "Agent unavailable")
		return
	}

	writeSuccess(w, r, http.StatusOK, map[string]any{
		"agent_name":  ag.Name,
		"description": ag.Description,
	}, nil)
}

// Config handles GET /v1/embed/{token}/config for custom widget builds. It
// includes live rate-limit state so clients can pace themselves.
func (h *embedHandler) Config(w http.ResponseWriter, r *http.Request) {
	tok, ok := h.lookupToken(w, r)
	if !ok {
		return
	}

	ag, err := h.agents.GetByKey(r.Context(), tok.AgentKey)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "Agent unavailable")
		return
	}

	info := h.gate.RateInfo(tok)
	setRateHeaders(w, info)

	writeSuccess(w, r, http.StatusOK, map[string]any{
		"agent": map[string]any{
			"name":        ag.Name,
			"description": ag.Description,
			"created_at":  ag.CreatedAt,
		},
		"features": map[string]bool{
			"streaming":            false,
			"file_upload":          false,
			"voice_input":          false,
			"feedback":             true,
			"conversation_history": true,
		},
		"rate_limit": info,
		"ui_hints": map[string]any{
			"placeholder":         "Ask " + ag.Name + " anything...",
			"welcome_message":     "Hi! I'm " + ag.Name + ". How can I help you today?",
			"suggested_questions": []string{},
		},
	}, nil)
}

type feedbackRequest struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Comment   string `json:"comment"`
}

// Feedback handles POST /v1/embed/{token}/feedback (thumbs up/down).
func (h *embedHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	tok, ok := h.lookupToken(w, r)
	if !ok {
		return
	}

	var req feedbackRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidationError, "Feedback data required")
		return
	}

	var rating int
	switch req.Type {
	case "positive":
		rating = 1
	case "negative":
		rating = -1
	default:
		writeError(w, r, http.StatusBadRequest, codeInvalidFeedbackType, "Feedback type must be 'positive' or 'negative'")
		return
	}

	if h.collector != nil {
		h.collector.Record(analytics.Event{
			AgentKey:    tok.AgentKey,
			PublicToken: tok.PublicToken,
			Kind:        analytics.EventFeedback,
			Rating:      rating,
			Comment:     req.Comment,
			Origin:      requestOrigin(r),
		})
	}

	writeSuccess(w, r, http.StatusOK, map[string]any{"message": "Feedback recorded"}, nil)
}

// TrackLoad handles POST /v1/embed/{token}/analytics, recording widget loads.
func (h *embedHandler) TrackLoad(w http.ResponseWriter, r *http.Request) {
	tok, ok := h.lookupToken(w, r)
	if !ok {
		return
	}

	if h.collector != nil {
		h.collector.Record(analytics.Event{
			AgentKey:    tok.AgentKey,
			PublicToken: tok.PublicToken,
			Kind:        analytics.EventWidgetLoad,
			Origin:      requestOrigin(r),
		})
	}

	writeSuccess(w, r, http.StatusOK, map[string]any{"message": "Event recorded"}, nil)
}

// Conversation handles GET /v1/embed/{token}/conversation. History is
// client-side; this endpoint tells custom widgets where to find it.
func (h *embedHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	tok, ok := h.lookupToken(w, r)
	if !ok {
		return
	}

	writeSuccess(w, r, http.StatusOK, map[string]any{
		"message":      "Conversation history is managed client-side",
		"storage_hint": "localStorage",
		"key_format":   "embedgate_chat_" + tok.PublicToken + "_history",
	}, nil)
}

// ClearConversation handles DELETE /v1/embed/{token}/conversation.
func (h *embedHandler) ClearConversation(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.lookupToken(w, r); !ok {
		return
	}

	writeSuccess(w, r, http.StatusOK, map[string]any{
		"message": "Conversation cleared",
		"action":  "Client should clear localStorage",
	}, nil)
}

// lookupToken resolves the path token for the secondary embed endpoints,
// writing the error response itself when the token is unknown.
func (h *embedHandler) lookupToken(w http.ResponseWriter, r *http.Request) (*token.EmbedToken, bool) {
	publicToken := chi.URLParam(r, "token")

	tok, err := h.tokens.GetByPublicToken(r.Context(), publicToken)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, token.CodeInvalidToken, "Invalid embed token")
		} else {
			writeError(w, r, http.StatusInternalServerError, codeInternalError, "Token store unavailable")
		}
		return nil, false
	}
	return tok, true
}

// writeDenial maps an admission denial onto the wire: status from the error
// taxonomy, rate headers and retry metadata on capacity errors.
func (h *embedHandler) writeDenial(w http.ResponseWriter, r *http.Request, d token.Decision) {
	meta := map[string]any{}
	if d.HTTPStatus == http.StatusTooManyRequests {
		if d.Code == token.CodeRateLimitExceeded && d.RateInfo.Limit > 0 {
			setRateHeaders(w, d.RateInfo)
			meta["rate_limit"] = d.RateInfo
		}
		if h.metrics != nil && d.Code == token.CodeMonthlyQuotaExceeded {
			h.metrics.IncQuotaRejection()
		}
	}
	writeErrorMeta(w, r, d.HTTPStatus, d.Code, d.Message, meta)
}

func (h *embedHandler) countAdmission(d token.Decision) {
	if h.metrics == nil {
		return
	}
	code := d.Code
	if d.Valid {
		code = "valid"
	}
	h.metrics.IncAdmission(code, d.Degraded)
	if !d.Valid && d.Code == token.CodeRateLimitExceeded {
		limiter := "windowed"
		if d.Degraded {
			limiter = "fallback"
		}
		h.metrics.IncRateLimitRejection(limiter, "embed")
	}
}

// requestOrigin returns the Origin header, falling back to Referer the way
// browsers send it for subresource requests.
func requestOrigin(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		return origin
	}
	return r.Header.Get("Referer")
}
