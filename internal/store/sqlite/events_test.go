package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/clustersmith/enginecore/internal/types"
)

func newEvent(id, clusterID string, ts time.Time) *types.Event {
	return &types.Event{
		ID: id, ObjID: clusterID, ObjType: types.TargetCluster,
		Level: "INFO", Payload: "{}", Timestamp: ts,
	}
}

func TestEventCreatePrunesOldestOnceOverCap(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		e := newEvent(string(rune('a'+i)), "c1", base.Add(time.Duration(i)*time.Second))
		if err := st.EventCreate(ctx, e, 3, 1); err != nil {
			t.Fatalf("EventCreate failed: %v", err)
		}
	}

	count, err := st.EventCountByCluster(ctx, "c1")
	if err != nil {
		t.Fatalf("EventCountByCluster failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 events before crossing the cap, got %d", count)
	}

	// A 4th insert crosses maxPerCluster=3: one batch of purgeBatchSize=1
	// oldest rows must be pruned in the same transaction as the insert.
	fourth := newEvent("d", "c1", base.Add(3*time.Second))
	if err := st.EventCreate(ctx, fourth, 3, 1); err != nil {
		t.Fatalf("EventCreate failed: %v", err)
	}

	count, err = st.EventCountByCluster(ctx, "c1")
	if err != nil {
		t.Fatalf("EventCountByCluster failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected retention to hold count at 3 after pruning, got %d", count)
	}

	events, err := st.EventGetAllByCluster(ctx, "c1", types.ListOptions{SortKeys: []string{"id"}}, types.EventFilter{})
	if err != nil {
		t.Fatalf("EventGetAllByCluster failed: %v", err)
	}
	for _, e := range events {
		if e.ID == "a" {
			t.Fatalf("expected the oldest event (a) to have been pruned, still present: %v", events)
		}
	}
}

func TestEventGetAllByClusterFiltersByLevel(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	info := newEvent("e1", "c1", now)
	info.Level = "INFO"
	warn := newEvent("e2", "c1", now.Add(time.Second))
	warn.Level = "WARNING"

	if err := st.EventCreate(ctx, info, 0, 0); err != nil {
		t.Fatalf("EventCreate failed: %v", err)
	}
	if err := st.EventCreate(ctx, warn, 0, 0); err != nil {
		t.Fatalf("EventCreate failed: %v", err)
	}

	got, err := st.EventGetAllByCluster(ctx, "c1", types.ListOptions{SortKeys: []string{"id"}}, types.EventFilter{Level: "WARNING"})
	if err != nil {
		t.Fatalf("EventGetAllByCluster failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "e2" {
		t.Fatalf("expected only the WARNING event, got %v", got)
	}
}

func TestEventGetAllByClusterScopesToRetentionScope(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	if err := st.EventCreate(ctx, newEvent("e1", "c1", now), 0, 0); err != nil {
		t.Fatalf("EventCreate failed: %v", err)
	}
	if err := st.EventCreate(ctx, newEvent("e2", "c2", now), 0, 0); err != nil {
		t.Fatalf("EventCreate failed: %v", err)
	}

	got, err := st.EventGetAllByCluster(ctx, "c1", types.ListOptions{SortKeys: []string{"id"}}, types.EventFilter{})
	if err != nil {
		t.Fatalf("EventGetAllByCluster failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "e1" {
		t.Fatalf("expected only c1's event, got %v", got)
	}
}
