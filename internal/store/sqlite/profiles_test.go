package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/clustersmith/enginecore/internal/apierr"
	"github.com/clustersmith/enginecore/internal/types"
)

func newProfile(id string) *types.Profile {
	return &types.Profile{ID: id, Type: "os.heat.stack", Spec: "{}", CreatedAt: time.Now().UTC()}
}

func TestProfileCreateGetUpdate(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	p := newProfile("prof1")
	if err := st.ProfileCreate(ctx, p); err != nil {
		t.Fatalf("ProfileCreate failed: %v", err)
	}

	got, err := st.ProfileGet(ctx, "prof1")
	if err != nil {
		t.Fatalf("ProfileGet failed: %v", err)
	}
	if got.Type != "os.heat.stack" {
		t.Errorf("expected type os.heat.stack, got %s", got.Type)
	}

	got.Spec = `{"flavor":"m1.large"}`
	if err := st.ProfileUpdate(ctx, got); err != nil {
		t.Fatalf("ProfileUpdate failed: %v", err)
	}
	reloaded, err := st.ProfileGet(ctx, "prof1")
	if err != nil {
		t.Fatalf("ProfileGet after update failed: %v", err)
	}
	if reloaded.Spec != `{"flavor":"m1.large"}` {
		t.Errorf("expected updated spec, got %s", reloaded.Spec)
	}
}

func TestProfileGetMissingIsNotFound(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if _, err := st.ProfileGet(ctx, "nope"); apierr.KindOf(err) != apierr.NotFound {
		t.Fatalf("expected NotFound for a missing profile, got %v", err)
	}
}

func TestProfileGetAllOrdersByCreatedAt(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	second := newProfile("second")
	second.CreatedAt = base.Add(time.Second)
	first := newProfile("first")
	first.CreatedAt = base

	if err := st.ProfileCreate(ctx, second); err != nil {
		t.Fatalf("ProfileCreate failed: %v", err)
	}
	if err := st.ProfileCreate(ctx, first); err != nil {
		t.Fatalf("ProfileCreate failed: %v", err)
	}

	all, err := st.ProfileGetAll(ctx)
	if err != nil {
		t.Fatalf("ProfileGetAll failed: %v", err)
	}
	if len(all) != 2 || all[0].ID != "first" || all[1].ID != "second" {
		t.Fatalf("expected profiles ordered by created_at, got %v", all)
	}
}
