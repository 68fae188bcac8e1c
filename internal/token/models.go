package token

import "time"

// Status is the lifecycle state of an embed token. Suspended tokens can be
// re-activated; revoked is terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusRevoked   Status = "revoked"
)

// EmbedToken is a public credential granting anonymous widget access to one
// agent's query endpoint. The PublicToken string is the primary key and is
// immutable once issued.
type EmbedToken struct {
	PublicToken    string     `json:"public_token"`
	AgentKey       string     `json:"agent_key"`
	WorkspaceID    string     `json:"workspace_id"`
	AllowedDomains []string   `json:"allowed_domains"`
	RateLimit      int        `json:"rate_limit"`
	MonthlyQuota   int        `json:"monthly_quota"`
	MonthlyUsage   int        `json:"monthly_usage"`
	QuotaResetAt   time.Time  `json:"quota_reset_at"`
	Status         Status     `json:"status"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
}

// Expired reports whether the token has passed its absolute expiry.
func (t *EmbedToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// CreateTokenInput holds the fields for issuing a new embed token. Zero
// values for the limits fall back to the service defaults.
type CreateTokenInput struct {
	AgentKey       string   `json:"agent_key"`
	WorkspaceID    string   `json:"workspace_id"`
	AllowedDomains []string `json:"allowed_domains"`
	RateLimit      int      `json:"rate_limit"`
	MonthlyQuota   int      `json:"monthly_quota"`
	ExpiresInDays  int      `json:"expires_in_days"`
}

// UpdateTokenInput holds optional fields for a partial token update. Status
// changes here go through the same terminality rules as the explicit
// suspend/revoke/activate operations.
type UpdateTokenInput struct {
	AllowedDomains *[]string `json:"allowed_domains,omitempty"`
	RateLimit      *int      `json:"rate_limit,omitempty"`
	MonthlyQuota   *int      `json:"monthly_quota,omitempty"`
	Status         *Status   `json:"status,omitempty"`
}

// UsageStats is the owner-facing usage view of a token.
type UsageStats struct {
	MonthlyUsage int        `json:"monthly_usage"`
	MonthlyQuota int        `json:"monthly_quota"`
	QuotaResetAt time.Time  `json:"quota_reset_at"`
	RateLimit    int        `json:"rate_limit"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}

// Error codes surfaced by validation. These are stable machine-readable
// identifiers; clients branch on them.
const (
	CodeInvalidToken         = "INVALID_TOKEN"
	CodeTokenSuspended       = "TOKEN_SUSPENDED"
	CodeTokenRevoked         = "TOKEN_REVOKED"
	CodeTokenExpired         = "TOKEN_EXPIRED"
	CodeOriginRequired       = "ORIGIN_REQUIRED"
	CodeDomainNotAllowed     = "DOMAIN_NOT_ALLOWED"
	CodeMonthlyQuotaExceeded = "MONTHLY_QUOTA_EXCEEDED"
	CodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
)
