package storage

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/synjan/qascan/pkg/models"
)

func newSession(id, owner string) models.ScanSession {
	return models.ScanSession{
		ID:            id,
		RepositoryURL: "https://github.com/acme/widgets",
		Repository:    "acme/widgets",
		Owner:         owner,
		Status:        models.StatusPending,
		StartedAt:     time.Now(),
	}
}

func statusPtr(s models.ScanStatus) *models.ScanStatus { return &s }
func intPtr(i int) *int                                { return &i }
func strPtr(s string) *string                          { return &s }

func TestCreateDuplicate(t *testing.T) {
	store := NewMemoryStore(nil)
	if err := store.Create(newSession("a", "alice")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(newSession("a", "alice")); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("second Create = %v, want ErrDuplicateID", err)
	}
}

func TestGetNotFound(t *testing.T) {
	store := NewMemoryStore(nil)
	if _, err := store.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}

func TestUpdateNotFound(t *testing.T) {
	store := NewMemoryStore(nil)
	if _, err := store.Update("missing", models.SessionUpdate{Progress: intPtr(10)}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update = %v, want ErrNotFound", err)
	}
}

func TestUpdatePartialMerge(t *testing.T) {
	store := NewMemoryStore(nil)
	if err := store.Create(newSession("a", "alice")); err != nil {
		t.Fatal(err)
	}

	results := &models.ScanResults{Repository: "acme/widgets", RiskScore: 4.5}
	if _, err := store.Update("a", models.SessionUpdate{Results: results}); err != nil {
		t.Fatal(err)
	}

	// A progress-only update must not disturb results.
	if _, err := store.Update("a", models.SessionUpdate{Progress: intPtr(40), CurrentStep: strPtr("enumerating issues")}); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Results == nil || got.Results.RiskScore != 4.5 {
		t.Error("progress update clobbered results")
	}
	if got.Progress != 40 {
		t.Errorf("Progress = %d, want 40", got.Progress)
	}
	if got.CurrentStep != "enumerating issues" {
		t.Errorf("CurrentStep = %q", got.CurrentStep)
	}
}

func TestProgressNeverDecreases(t *testing.T) {
	store := NewMemoryStore(nil)
	if err := store.Create(newSession("a", "alice")); err != nil {
		t.Fatal(err)
	}

	for _, p := range []int{10, 45, 30, 45, 200} {
		if _, err := store.Update("a", models.SessionUpdate{Progress: intPtr(p)}); err != nil {
			t.Fatal(err)
		}
	}

	got, _ := store.Get("a")
	if got.Progress != 100 {
		t.Errorf("Progress = %d, want 100 (clamped to bounds, never decreasing)", got.Progress)
	}
}

func TestStatusOnlyAdvances(t *testing.T) {
	store := NewMemoryStore(nil)
	if err := store.Create(newSession("a", "alice")); err != nil {
		t.Fatal(err)
	}

	steps := []models.ScanStatus{models.StatusScanning, models.StatusAnalyzing}
	for _, st := range steps {
		if _, err := store.Update("a", models.SessionUpdate{Status: statusPtr(st)}); err != nil {
			t.Fatal(err)
		}
	}

	// Backward write is dropped.
	got, _ := store.Update("a", models.SessionUpdate{Status: statusPtr(models.StatusScanning)})
	if got.Status != models.StatusAnalyzing {
		t.Errorf("Status = %s after backward write, want analyzing", got.Status)
	}

	// Terminal state sticks.
	if _, err := store.Update("a", models.SessionUpdate{Status: statusPtr(models.StatusCompleted)}); err != nil {
		t.Fatal(err)
	}
	got, _ = store.Update("a", models.SessionUpdate{Status: statusPtr(models.StatusFailed), Error: strPtr("late failure")})
	if got.Status != models.StatusCompleted {
		t.Errorf("Status = %s after terminal, want completed", got.Status)
	}
	if got.Error != "" {
		t.Error("update after terminal state should be ignored entirely")
	}
}

func TestFailedReachableFromAnyNonTerminal(t *testing.T) {
	for _, start := range []models.ScanStatus{models.StatusPending, models.StatusScanning, models.StatusAnalyzing} {
		store := NewMemoryStore(nil)
		sess := newSession("a", "alice")
		sess.Status = start
		if err := store.Create(sess); err != nil {
			t.Fatal(err)
		}
		got, err := store.Update("a", models.SessionUpdate{Status: statusPtr(models.StatusFailed), Error: strPtr("boom")})
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != models.StatusFailed || got.Error != "boom" {
			t.Errorf("from %s: got status %s error %q", start, got.Status, got.Error)
		}
	}
}

func TestConcurrentMergesLoseNothing(t *testing.T) {
	store := NewMemoryStore(nil)
	if err := store.Create(newSession("a", "alice")); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			step := fmt.Sprintf("step %d", p)
			if _, err := store.Update("a", models.SessionUpdate{Progress: intPtr(p), CurrentStep: &step}); err != nil {
				t.Errorf("Update: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := store.Get("a")
	if got.Progress != 100 {
		t.Errorf("Progress = %d after 100 concurrent merges, want 100", got.Progress)
	}
}

func TestListByOwner(t *testing.T) {
	store := NewMemoryStore(nil)
	for i, owner := range []string{"alice", "bob", "alice"} {
		sess := newSession(fmt.Sprintf("s%d", i), owner)
		sess.StartedAt = time.Now().Add(time.Duration(i) * time.Second)
		if err := store.Create(sess); err != nil {
			t.Fatal(err)
		}
	}

	got := store.ListByOwner("alice")
	if len(got) != 2 {
		t.Fatalf("ListByOwner(alice) returned %d sessions, want 2", len(got))
	}
	if !got[0].StartedAt.After(got[1].StartedAt) {
		t.Error("sessions not sorted newest first")
	}
	if len(store.ListByOwner("carol")) != 0 {
		t.Error("ListByOwner for unknown owner should be empty")
	}
}
