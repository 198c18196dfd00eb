package reporting

import "time"

type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type CallsSummaryRequest struct {
	TenantID string
	AgentID  string
	Range    DateRange
}

// CallsSummary aggregates one tenant's call dispositions over a date range.
type CallsSummary struct {
	TenantID string `json:"tenant_id"`
	AgentID  string `json:"agent_id,omitempty"`

	TotalCalls      int `json:"total_calls"`
	CompletedCalls  int `json:"completed_calls"`
	FailedCalls     int `json:"failed_calls"`
	NoAnswerCalls   int `json:"no_answer_calls"`
	BusyCalls       int `json:"busy_calls"`
	CanceledCalls   int `json:"canceled_calls"`
	InProgressCalls int `json:"in_progress_calls"`
	RecordedCalls   int `json:"recorded_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// AnalyzedCalls counts calls carrying post-call analysis results.
	AnalyzedCalls int `json:"analyzed_calls"`

	// OutcomeCounts breaks analyzed calls down by extracted call outcome.
	OutcomeCounts map[string]int `json:"outcome_counts,omitempty"`

	// SentimentCounts breaks analyzed calls down by extracted sentiment.
	SentimentCounts map[string]int `json:"sentiment_counts,omitempty"`
}
