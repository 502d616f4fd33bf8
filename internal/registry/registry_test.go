package registry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryGetMissing(t *testing.T) {
	m := NewMemory()
	_, err := m.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestMemorySetGetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	rec := &Record{
		AgentID:        "a1",
		Name:           "research",
		Status:         StatusRunning,
		URL:            "http://localhost:18042",
		DescriptorPath: "/data/agents/a1/deploy.yaml",
		DeployedAt:     time.Now().UTC(),
	}
	if err := m.Set(ctx, rec); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := m.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusRunning || got.URL != rec.URL {
		t.Errorf("got %+v", got)
	}

	// Mutating the returned record must not leak into the store.
	got.Status = StatusFailed
	again, _ := m.Get(ctx, "a1")
	if again.Status != StatusRunning {
		t.Errorf("store mutated through returned record")
	}

	if err := m.Delete(ctx, "a1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(ctx, "a1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("record still present after delete")
	}

	// Delete of an absent record is a no-op.
	if err := m.Delete(ctx, "a1"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestMemoryListSorted(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for _, id := range []string{"c", "a", "b"} {
		if err := m.Set(ctx, &Record{AgentID: id, Status: StatusRunning}); err != nil {
			t.Fatalf("Set(%q): %v", id, err)
		}
	}

	recs, err := m.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	for i, want := range []string{"a", "b", "c"} {
		if recs[i].AgentID != want {
			t.Errorf("recs[%d] = %q, want %q", i, recs[i].AgentID, want)
		}
	}
}
