package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/clustersmith/enginecore/internal/apierr"
	"github.com/clustersmith/enginecore/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func newCluster(id, project, name string) *types.Cluster {
	now := time.Now().UTC()
	return &types.Cluster{
		ID: id, ProjectID: project, Name: name,
		Status: types.ClusterStatusActive, CreatedAt: now, UpdatedAt: now,
	}
}

func TestClusterCreateGetUpdateDelete(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	c := newCluster("c1", "p1", "web")
	if err := st.ClusterCreate(ctx, c); err != nil {
		t.Fatalf("ClusterCreate failed: %v", err)
	}

	got, err := st.ClusterGet(ctx, "c1", "p1", false)
	if err != nil {
		t.Fatalf("ClusterGet failed: %v", err)
	}
	if got.Name != "web" {
		t.Errorf("expected name web, got %s", got.Name)
	}

	// Scoped to the wrong project, the cluster must be invisible.
	if _, err := st.ClusterGet(ctx, "c1", "other-project", false); apierr.KindOf(err) != apierr.NotFound {
		t.Fatalf("expected NotFound scoping to a different project, got %v", err)
	}

	got.Name = "web-renamed"
	got.UpdatedAt = time.Now().UTC()
	if err := st.ClusterUpdate(ctx, got); err != nil {
		t.Fatalf("ClusterUpdate failed: %v", err)
	}
	reloaded, err := st.ClusterGet(ctx, "c1", "p1", false)
	if err != nil {
		t.Fatalf("ClusterGet after update failed: %v", err)
	}
	if reloaded.Name != "web-renamed" {
		t.Errorf("expected renamed cluster, got %s", reloaded.Name)
	}

	if err := st.ClusterDelete(ctx, "c1"); err != nil {
		t.Fatalf("ClusterDelete failed: %v", err)
	}
	if _, err := st.ClusterGet(ctx, "c1", "p1", false); apierr.KindOf(err) != apierr.NotFound {
		t.Fatalf("expected NotFound after delete, got %v", err)
	}
	if _, err := st.ClusterGet(ctx, "c1", "p1", true); err != nil {
		t.Fatalf("expected the soft-deleted row to still be readable with showDeleted, got %v", err)
	}
}

func TestClusterDeleteCascadesNodesAndPolicies(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	c := newCluster("c1", "p1", "web")
	if err := st.ClusterCreate(ctx, c); err != nil {
		t.Fatalf("ClusterCreate failed: %v", err)
	}

	now := time.Now().UTC()
	n := &types.Node{ID: "n1", ClusterID: "c1", Name: "web-0", Status: types.NodeStatusActive, CreatedAt: now, UpdatedAt: now}
	if err := st.NodeCreate(ctx, n); err != nil {
		t.Fatalf("NodeCreate failed: %v", err)
	}

	p := &types.Policy{ID: "pol1", Type: "ScalingPolicy", Spec: "{}", CreatedAt: now}
	if err := st.PolicyCreate(ctx, p); err != nil {
		t.Fatalf("PolicyCreate failed: %v", err)
	}
	if err := st.ClusterAttachPolicy(ctx, &types.ClusterPolicy{ClusterID: "c1", PolicyID: "pol1", Enabled: true, AttachedAt: now}); err != nil {
		t.Fatalf("ClusterAttachPolicy failed: %v", err)
	}

	if err := st.ClusterDelete(ctx, "c1"); err != nil {
		t.Fatalf("ClusterDelete failed: %v", err)
	}

	if _, err := st.NodeGet(ctx, "n1"); apierr.KindOf(err) != apierr.NotFound {
		t.Fatalf("expected member node to be hard-deleted, got %v", err)
	}
	policies, err := st.ClusterGetPolicies(ctx, "c1")
	if err != nil {
		t.Fatalf("ClusterGetPolicies failed: %v", err)
	}
	if len(policies) != 0 {
		t.Fatalf("expected policy bindings to be removed, got %d", len(policies))
	}
}

func TestClusterDepth(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	root := newCluster("root", "p1", "root")
	if err := st.ClusterCreate(ctx, root); err != nil {
		t.Fatalf("ClusterCreate failed: %v", err)
	}
	child := newCluster("child", "p1", "child")
	child.ParentID = "root"
	if err := st.ClusterCreate(ctx, child); err != nil {
		t.Fatalf("ClusterCreate failed: %v", err)
	}
	grandchild := newCluster("grandchild", "p1", "grandchild")
	grandchild.ParentID = "child"
	if err := st.ClusterCreate(ctx, grandchild); err != nil {
		t.Fatalf("ClusterCreate failed: %v", err)
	}

	depth, err := st.ClusterDepth(ctx, "grandchild")
	if err != nil {
		t.Fatalf("ClusterDepth failed: %v", err)
	}
	if depth != 2 {
		t.Errorf("expected depth 2, got %d", depth)
	}
}

func TestNodeMigrateAdjustsBothClusterSizes(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	src := newCluster("src", "p1", "src")
	dst := newCluster("dst", "p1", "dst")
	if err := st.ClusterCreate(ctx, src); err != nil {
		t.Fatalf("ClusterCreate failed: %v", err)
	}
	if err := st.ClusterCreate(ctx, dst); err != nil {
		t.Fatalf("ClusterCreate failed: %v", err)
	}

	now := time.Now().UTC()
	n := &types.Node{ID: "n1", ClusterID: "src", Name: "n1", Status: types.NodeStatusActive, CreatedAt: now, UpdatedAt: now}
	if err := st.NodeCreate(ctx, n); err != nil {
		t.Fatalf("NodeCreate failed: %v", err)
	}

	if err := st.NodeMigrate(ctx, "n1", "src", "dst"); err != nil {
		t.Fatalf("NodeMigrate failed: %v", err)
	}

	gotSrc, err := st.ClusterGet(ctx, "src", "p1", false)
	if err != nil {
		t.Fatalf("ClusterGet(src) failed: %v", err)
	}
	if gotSrc.Size != 0 {
		t.Errorf("expected src size 0 after migrate, got %d", gotSrc.Size)
	}
	gotDst, err := st.ClusterGet(ctx, "dst", "p1", false)
	if err != nil {
		t.Fatalf("ClusterGet(dst) failed: %v", err)
	}
	if gotDst.Size != 1 {
		t.Errorf("expected dst size 1 after migrate, got %d", gotDst.Size)
	}

	movedNode, err := st.NodeGet(ctx, "n1")
	if err != nil {
		t.Fatalf("NodeGet failed: %v", err)
	}
	if movedNode.ClusterID != "dst" {
		t.Errorf("expected node's cluster_id to be dst, got %s", movedNode.ClusterID)
	}
}

func TestClusterGetAllPaginationIsStable(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		c := newCluster(string(rune('a'+i)), "p1", string(rune('a'+i)))
		c.CreatedAt = c.CreatedAt.Add(time.Duration(i) * time.Second)
		if err := st.ClusterCreate(ctx, c); err != nil {
			t.Fatalf("ClusterCreate failed: %v", err)
		}
	}

	var seen []string
	marker := ""
	for {
		page, err := st.ClusterGetAll(ctx, "p1", types.ListOptions{Limit: 2, Marker: marker, SortKeys: []string{"id"}}, types.ClusterFilter{})
		if err != nil {
			t.Fatalf("ClusterGetAll failed: %v", err)
		}
		if len(page) == 0 {
			break
		}
		for _, c := range page {
			seen = append(seen, c.ID)
		}
		marker = page[len(page)-1].ID
		if len(seen) > 20 {
			t.Fatal("pagination did not terminate")
		}
	}

	if len(seen) != 5 {
		t.Fatalf("expected to see all 5 clusters across pages, got %v", seen)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Fatalf("expected strictly increasing keyset order, got %v", seen)
		}
	}
}

func TestClusterGetAllRejectsInvalidSortKey(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, err := st.ClusterGetAll(ctx, "p1", types.ListOptions{SortKeys: []string{"nonsense"}}, types.ClusterFilter{})
	if apierr.KindOf(err) != apierr.Invalid {
		t.Fatalf("expected apierr.Invalid for an unknown sort key, got %v", err)
	}
}

func TestClusterGetAllDefaultsToCreatedAtDescending(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c := newCluster(string(rune('a'+i)), "p1", string(rune('a'+i)))
		c.CreatedAt = c.CreatedAt.Add(time.Duration(i) * time.Second)
		if err := st.ClusterCreate(ctx, c); err != nil {
			t.Fatalf("ClusterCreate failed: %v", err)
		}
	}

	page, err := st.ClusterGetAll(ctx, "p1", types.ListOptions{}, types.ClusterFilter{})
	if err != nil {
		t.Fatalf("ClusterGetAll failed: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("expected 3 clusters, got %d", len(page))
	}
	for i := 1; i < len(page); i++ {
		if page[i].CreatedAt.After(page[i-1].CreatedAt) {
			t.Fatalf("expected created_at descending by default, got %v", page)
		}
	}
}
