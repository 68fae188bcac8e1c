package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/embedgate/embedgate/internal/agent"
	"github.com/embedgate/embedgate/internal/analytics"
	"github.com/embedgate/embedgate/internal/auth"
	"github.com/embedgate/embedgate/internal/retrieval"
	"github.com/embedgate/embedgate/internal/source"
	"github.com/go-chi/chi/v5"
)

// AgentStore is the agent persistence surface the management API needs.
type AgentStore interface {
	Create(ctx context.Context, in agent.CreateAgentInput) (*agent.Agent, error)
	GetByKey(ctx context.Context, key string) (*agent.Agent, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*agent.Agent, error)
	ListAll(ctx context.Context) ([]*agent.Agent, error)
	Update(ctx context.Context, key string, in agent.UpdateAgentInput) (*agent.Agent, error)
	Delete(ctx context.Context, key string) error
	SetDocumentCount(ctx context.Context, key string, count int) error
	SetLegacyEmbedToken(ctx context.Context, key string, embedToken *string) error
}

// Ingestor indexes documents under an agent's key.
type Ingestor interface {
	Ingest(ctx context.Context, agentKey string, docs []retrieval.Document) (int, error)
}

// AnalyticsReader serves the dashboard's aggregate widget metrics.
type AnalyticsReader interface {
	GetAgentSummary(ctx context.Context, q analytics.SummaryQuery) (*analytics.AgentSummary, error)
	ListRecentQuestions(ctx context.Context, agentKey string, limit int) ([]*analytics.Event, error)
}

type agentsHandler struct {
	agents    AgentStore
	ingestor  Ingestor
	retrieval QueryService
	analytics AnalyticsReader
}

func newAgentsHandler(agents AgentStore, ingestor Ingestor, retrieval QueryService, analyticsReader AnalyticsReader) *agentsHandler {
	return &agentsHandler{
		agents:    agents,
		ingestor:  ingestor,
		retrieval: retrieval,
		analytics: analyticsReader,
	}
}

type createAgentRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	SourceKind   string `json:"source_kind"`
	SystemPrompt string `json:"system_prompt"`
	TopK         int    `json:"top_k"`
}

// Create handles POST /api/v1/agents.
func (h *agentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())

	var req createAgentRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidationError, "failed to parse request body")
		return
	}
	if req.Name == "" {
		writeError(w, r, http.StatusUnprocessableEntity, codeValidationError, "name is required")
		return
	}
	if req.SourceKind != "" && !source.Kind(req.SourceKind).Valid() {
		writeError(w, r, http.StatusUnprocessableEntity, codeValidationError, "unknown source_kind")
		return
	}

	ag, err := h.agents.Create(r.Context(), agent.CreateAgentInput{
		WorkspaceID:  p.UserID,
		Name:         req.Name,
		Description:  req.Description,
		SourceKind:   req.SourceKind,
		SystemPrompt: req.SystemPrompt,
		TopK:         req.TopK,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "failed to create agent")
		return
	}
	writeSuccess(w, r, http.StatusCreated, ag, nil)
}

// Get handles GET /api/v1/agents/{agentKey}.
func (h *agentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ag, ok := h.ownedAgent(w, r)
	if !ok {
		return
	}
	writeSuccess(w, r, http.StatusOK, ag, nil)
}

// List handles GET /api/v1/agents.
func (h *agentsHandler) List(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())

	agents, err := h.agents.ListByWorkspace(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "failed to list agents")
		return
	}
	writeSuccess(w, r, http.StatusOK, agents, nil)
}

// Update handles PUT /api/v1/agents/{agentKey}.
func (h *agentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	ag, ok := h.ownedAgent(w, r)
	if !ok {
		return
	}

	var input agent.UpdateAgentInput
	if err := readJSON(r, &input); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidationError, "failed to parse request body")
		return
	}

	updated, err := h.agents.Update(r.Context(), ag.Key, input)
	if err != nil {
		if errors.Is(err, agent.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, codeNotFound, "agent not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "failed to update agent")
		return
	}
	writeSuccess(w, r, http.StatusOK, updated, nil)
}

// Delete handles DELETE /api/v1/agents/{agentKey}.
func (h *agentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ag, ok := h.ownedAgent(w, r)
	if !ok {
		return
	}

	if err := h.agents.Delete(r.Context(), ag.Key); err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "failed to delete agent")
		return
	}
	writeSuccess(w, r, http.StatusOK, map[string]any{"deleted": true}, nil)
}

// AdminList handles GET /api/v1/admin/agents. It returns agents across all
// workspaces and is reachable only behind the admin middleware.
func (h *agentsHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	agents, err := h.agents.ListAll(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "failed to list agents")
		return
	}
	writeSuccess(w, r, http.StatusOK, agents, nil)
}

type ingestRequest struct {
	SourceKind string          `json:"source_kind"`
	Config     json.RawMessage `json:"config"`
}

// Ingest handles POST /api/v1/agents/{agentKey}/ingest. It loads documents
// from the configured source and rebuilds the agent's index.
func (h *agentsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	ag, ok := h.ownedAgent(w, r)
	if !ok {
		return
	}

	var req ingestRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidationError, "failed to parse request body")
		return
	}

	kind := source.Kind(req.SourceKind)
	if req.SourceKind == "" {
		kind = source.Kind(ag.SourceKind)
	}

	cfg, err := source.ParseConfig(kind, req.Config)
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, codeValidationError, err.Error())
		return
	}

	loader, err := source.NewLoader(cfg)
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, codeValidationError, err.Error())
		return
	}

	docs, err := loader.Load(r.Context())
	if err != nil {
		writeError(w, r, http.StatusBadGateway, codeInternalError, "failed to load source documents")
		return
	}

	chunks, err := h.ingestor.Ingest(r.Context(), ag.Key, docs)
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, codeValidationError, err.Error())
		return
	}

	if err := h.agents.SetDocumentCount(r.Context(), ag.Key, len(docs)); err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "failed to record document count")
		return
	}

	writeSuccess(w, r, http.StatusOK, map[string]any{
		"documents": len(docs),
		"chunks":    chunks,
	}, nil)
}

type ownerQueryRequest struct {
	Query string `json:"query"`
}

// Query handles POST /api/v1/agents/{agentKey}/query, the dashboard's test
// console. Owner queries bypass embed tokens entirely so they are never rate
// limited or billed against a quota.
func (h *agentsHandler) Query(w http.ResponseWriter, r *http.Request) {
	ag, ok := h.ownedAgent(w, r)
	if !ok {
		return
	}

	var req ownerQueryRequest
	if err := readJSON(r, &req); err != nil || req.Query == "" {
		writeError(w, r, http.StatusBadRequest, codeMissingQuery, "Query is required")
		return
	}

	start := time.Now()
	result, err := h.retrieval.Query(r.Context(), ag.Key, ag.SystemPrompt, req.Query, ag.TopK)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "Failed to answer query")
		return
	}

	writeSuccess(w, r, http.StatusOK, map[string]any{
		"answer":  result.Answer,
		"sources": result.Sources,
	}, map[string]any{
		"response_time_ms": time.Since(start).Milliseconds(),
	})
}

// Analytics handles GET /api/v1/agents/{agentKey}/analytics. Optional from/to
// query params are RFC 3339 timestamps.
func (h *agentsHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	ag, ok := h.ownedAgent(w, r)
	if !ok {
		return
	}

	q := analytics.SummaryQuery{AgentKey: ag.Key}
	for param, dst := range map[string]*time.Time{"from": &q.From, "to": &q.To} {
		raw := r.URL.Query().Get(param)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusUnprocessableEntity, codeValidationError, param+" must be an RFC 3339 timestamp")
			return
		}
		*dst = t
	}

	summary, err := h.analytics.GetAgentSummary(r.Context(), q)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "failed to load analytics")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recent, err := h.analytics.ListRecentQuestions(r.Context(), ag.Key, limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "failed to load analytics")
		return
	}

	writeSuccess(w, r, http.StatusOK, map[string]any{
		"summary":          summary,
		"recent_questions": recent,
	}, nil)
}

// ownedAgent resolves the path agent and enforces workspace ownership. As with
// tokens, foreign agents read as not found.
func (h *agentsHandler) ownedAgent(w http.ResponseWriter, r *http.Request) (*agent.Agent, bool) {
	p := auth.PrincipalFromContext(r.Context())
	key := chi.URLParam(r, "agentKey")

	ag, err := h.agents.GetByKey(r.Context(), key)
	if err != nil {
		if errors.Is(err, agent.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, codeNotFound, "agent not found")
		} else {
			writeError(w, r, http.StatusInternalServerError, codeInternalError, "failed to load agent")
		}
		return nil, false
	}
	if ag.WorkspaceID != p.UserID {
		writeError(w, r, http.StatusNotFound, codeNotFound, "agent not found")
		return nil, false
	}
	return ag, true
}
