package reporting

import (
	"context"
	"errors"
	"time"

	"voiceops-platform/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting. Implementations must
// enforce tenant filtering; reports read immutable call records only.
type Repository interface {
	ListByRange(ctx context.Context, tenantID string, from, to time.Time) ([]calls.Call, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// CallsSummary aggregates dispositions, durations and analysis outcomes for
// one tenant over a date range, optionally narrowed to one agent.
func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.TenantID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListByRange(ctx, req.TenantID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{
		TenantID:        req.TenantID,
		AgentID:         req.AgentID,
		OutcomeCounts:   map[string]int{},
		SentimentCounts: map[string]int{},
	}
	for _, c := range rows {
		if req.AgentID != "" && c.AgentID != req.AgentID {
			continue
		}
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		if c.RecordingURL != "" {
			out.RecordedCalls++
		}
		switch c.Status {
		case calls.CallStatusCompleted:
			out.CompletedCalls++
		case calls.CallStatusFailed:
			out.FailedCalls++
		case calls.CallStatusNoAnswer:
			out.NoAnswerCalls++
		case calls.CallStatusBusy:
			out.BusyCalls++
		case calls.CallStatusCanceled:
			out.CanceledCalls++
		case calls.CallStatusInProgress:
			out.InProgressCalls++
		case calls.CallStatusRinging, calls.CallStatusQueued:
			// not counted separately
		}

		if outcome, ok := c.Metadata["analysis.call_outcome"]; ok {
			out.AnalyzedCalls++
			out.OutcomeCounts[outcome]++
			if sentiment, ok := c.Metadata["analysis.sentiment"]; ok {
				out.SentimentCounts[sentiment]++
			}
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	if out.AnalyzedCalls == 0 {
		out.OutcomeCounts = nil
		out.SentimentCounts = nil
	}
	return out, nil
}
