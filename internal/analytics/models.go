package analytics

import "time"

// Event kinds recorded by the widget surface.
const (
	EventQuery      = "query"
	EventFeedback   = "feedback"
	EventWidgetLoad = "widget_load"
)

// Event is a single widget interaction record.
type Event struct {
	ID          string    `json:"id"`
	AgentKey    string    `json:"agent_key"`
	PublicToken string    `json:"public_token,omitempty"`
	Kind        string    `json:"kind"`
	Question    string    `json:"question,omitempty"`
	Answer      string    `json:"answer,omitempty"`
	Rating      int       `json:"rating,omitempty"` // +1 / -1, feedback only
	Comment     string    `json:"comment,omitempty"`
	Origin      string    `json:"origin,omitempty"`
	LatencyMs   int64     `json:"latency_ms,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// AgentSummary holds aggregate widget metrics for one agent.
type AgentSummary struct {
	AgentKey         string  `json:"agent_key"`
	TotalQueries     int64   `json:"total_queries"`
	TotalFeedback    int64   `json:"total_feedback"`
	PositiveFeedback int64   `json:"positive_feedback"`
	NegativeFeedback int64   `json:"negative_feedback"`
	WidgetLoads      int64   `json:"widget_loads"`
	AvgLatencyMs     float64 `json:"avg_latency_ms"`
}

// SummaryQuery filters summary aggregation by agent and time range.
type SummaryQuery struct {
	AgentKey string    `json:"agent_key"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
}
