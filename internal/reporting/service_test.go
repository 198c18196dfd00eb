package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"voiceops-platform/internal/calls"
)

func seedCalls(t *testing.T, repo *calls.MemoryRepo, rows []calls.Call) {
	t.Helper()
	for _, c := range rows {
		if err := repo.Upsert(context.Background(), c); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func aDay() (time.Time, time.Time) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return from, from.Add(24 * time.Hour)
}

func TestCallsSummary_Aggregates(t *testing.T) {
	repo := calls.NewMemoryRepo()
	from, to := aDay()
	at := from.Add(2 * time.Hour)

	seedCalls(t, repo, []calls.Call{
		{CallID: "1", TenantID: "t1", AgentID: "a1", ExternalCallID: "e1", Status: calls.CallStatusCompleted,
			DurationSeconds: 120, RecordingURL: "https://r/1", CreatedAt: at,
			Metadata: map[string]string{"analysis.call_outcome": "follow_up_needed", "analysis.sentiment": "positive"}},
		{CallID: "2", TenantID: "t1", AgentID: "a1", ExternalCallID: "e2", Status: calls.CallStatusCompleted,
			DurationSeconds: 60, CreatedAt: at,
			Metadata: map[string]string{"analysis.call_outcome": "not_interested", "analysis.sentiment": "negative"}},
		{CallID: "3", TenantID: "t1", AgentID: "a1", ExternalCallID: "e3", Status: calls.CallStatusNoAnswer, CreatedAt: at},
		{CallID: "4", TenantID: "t2", AgentID: "a9", ExternalCallID: "e4", Status: calls.CallStatusCompleted, CreatedAt: at},
	})

	svc := NewService(repo)
	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{
		TenantID: "t1", Range: DateRange{From: from, To: to},
	})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if out.TotalCalls != 3 || out.CompletedCalls != 2 || out.NoAnswerCalls != 1 {
		t.Fatalf("unexpected counts: %+v", out)
	}
	if out.AverageDurationSeconds != 60 {
		t.Fatalf("expected avg 60s, got %d", out.AverageDurationSeconds)
	}
	if out.RecordedCalls != 1 {
		t.Fatalf("expected 1 recorded call, got %d", out.RecordedCalls)
	}
	if out.AnalyzedCalls != 2 || out.OutcomeCounts["follow_up_needed"] != 1 || out.SentimentCounts["negative"] != 1 {
		t.Fatalf("unexpected analysis breakdown: %+v", out)
	}
}

func TestCallsSummary_AgentFilter(t *testing.T) {
	repo := calls.NewMemoryRepo()
	from, to := aDay()
	at := from.Add(time.Hour)

	seedCalls(t, repo, []calls.Call{
		{CallID: "1", TenantID: "t1", AgentID: "a1", ExternalCallID: "e1", Status: calls.CallStatusCompleted, CreatedAt: at},
		{CallID: "2", TenantID: "t1", AgentID: "a2", ExternalCallID: "e2", Status: calls.CallStatusCompleted, CreatedAt: at},
	})

	svc := NewService(repo)
	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{
		TenantID: "t1", AgentID: "a2", Range: DateRange{From: from, To: to},
	})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if out.TotalCalls != 1 {
		t.Fatalf("expected agent filter to apply, got %+v", out)
	}
}

func TestCallsSummary_ValidatesRequest(t *testing.T) {
	svc := NewService(calls.NewMemoryRepo())
	from, to := aDay()

	cases := []CallsSummaryRequest{
		{TenantID: "", Range: DateRange{From: from, To: to}},
		{TenantID: "t1"},
		{TenantID: "t1", Range: DateRange{From: to, To: from}},
	}
	for i, req := range cases {
		if _, err := svc.CallsSummary(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("case %d: expected ErrInvalidRequest, got %v", i, err)
		}
	}
}
