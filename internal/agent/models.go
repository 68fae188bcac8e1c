package agent

import "time"

// Agent is a workspace-owned knowledge base plus its retrieval settings.
type Agent struct {
	Key          string    `json:"key"`
	WorkspaceID  string    `json:"workspace_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	SourceKind   string    `json:"source_kind"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	TopK         int       `json:"top_k"`
	// LegacyEmbedToken is the pre-managed-token widget credential. The
	// degraded admission path resolves against it when the token store is
	// unreachable.
	LegacyEmbedToken *string   `json:"legacy_embed_token,omitempty"`
	DocumentCount    int       `json:"document_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CreateAgentInput holds the fields required to register a new agent.
type CreateAgentInput struct {
	WorkspaceID  string `json:"workspace_id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	SourceKind   string `json:"source_kind"`
	SystemPrompt string `json:"system_prompt"`
	TopK         int    `json:"top_k"`
}

// UpdateAgentInput holds optional fields for a partial agent update.
type UpdateAgentInput struct {
	Name         *string `json:"name,omitempty"`
	Description  *string `json:"description,omitempty"`
	SystemPrompt *string `json:"system_prompt,omitempty"`
	TopK         *int    `json:"top_k,omitempty"`
}
