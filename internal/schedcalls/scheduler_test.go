package schedcalls

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestScheduler_TickDrainsDueRecords(t *testing.T) {
	repo := NewMemoryRepo()
	voice := &stubVoice{}
	now := time.Date(2025, time.June, 2, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(repo, voice, nil, nil, now)

	past := now.Add(-time.Minute)
	for _, id := range []string{"sc-a", "sc-b"} {
		_ = repo.Create(context.Background(), ScheduledCall{
			ID: id, TenantID: "t1", AgentID: "a1", ToNumber: "+1555",
			Status: StatusScheduled, ScheduledAt: past, CreatedAt: past, UpdatedAt: past,
		})
	}

	s := NewScheduler(svc, "@every 1m", slog.Default())
	s.tick(context.Background())

	if voice.calls != 2 {
		t.Fatalf("expected both due records dispatched, got %d", voice.calls)
	}
	for _, id := range []string{"sc-a", "sc-b"} {
		got, err := repo.GetByID(context.Background(), "t1", id)
		if err != nil || got.Status != StatusInitiated {
			t.Fatalf("%s: status %q err %v", id, got.Status, err)
		}
	}
}

func TestScheduler_StartRejectsDoubleStart(t *testing.T) {
	repo := NewMemoryRepo()
	svc, _ := newTestService(repo, &stubVoice{}, nil, nil, time.Now().UTC())
	s := NewScheduler(svc, "@every 1h", slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	if err := s.Start(ctx); err == nil {
		t.Fatalf("expected second Start to fail")
	}
}
