package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/meterblink/meterblink/pkg/attempt"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RunLifecycle(t *testing.T) {
	s := newTestStore(t)

	started := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	s.RunStarted(attempt.Run{
		ID:        "run-1",
		StartedAt: started,
		FirstCode: "0000",
		LastCode:  "9999",
	})
	s.CodeSent("run-1", "0000")
	s.CodeSent("run-1", "0001")
	s.RunFinished(attempt.Run{
		ID:         "run-1",
		StartedAt:  started,
		EndedAt:    started.Add(30 * time.Second),
		FirstCode:  "0000",
		LastCode:   "9999",
		LastSent:   "0001",
		CodesSent:  2,
		StopReason: attempt.ReasonStopped,
		VideoPath:  "videos/session_x.avi",
		Images:     7,
	})

	runs, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}

	r := runs[0]
	if r.ID != "run-1" || r.CodesSent != 2 || r.LastSent != "0001" {
		t.Errorf("unexpected run record: %+v", r)
	}
	if r.StopReason != attempt.ReasonStopped {
		t.Errorf("stop reason = %q, want %q", r.StopReason, attempt.ReasonStopped)
	}
	if r.EndedAt == nil || !r.EndedAt.Equal(started.Add(30*time.Second)) {
		t.Errorf("ended_at = %v, want %v", r.EndedAt, started.Add(30*time.Second))
	}
	if r.Images != 7 || r.VideoPath != "videos/session_x.avi" {
		t.Errorf("artifact fields wrong: %+v", r)
	}
}

func TestStore_RecentOrdersNewestFirst(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		s.RunStarted(attempt.Run{
			ID:        []string{"a", "b", "c"}[i],
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			FirstCode: "0000",
			LastCode:  "9999",
		})
	}

	runs, err := s.Recent(context.Background(), 2)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("runs not newest first: %v, %v", runs[0].ID, runs[1].ID)
	}
}

func TestStore_InFlightRunIsListed(t *testing.T) {
	s := newTestStore(t)

	s.RunStarted(attempt.Run{ID: "live", StartedAt: time.Now(), FirstCode: "0000", LastCode: "0099"})

	runs, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if runs[0].EndedAt != nil {
		t.Error("in-flight run should have no ended_at")
	}
}
