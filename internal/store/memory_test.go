package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"streamwatch/internal/watch"
)

func mkTarget(id, tenant string, platform watch.Platform, created time.Time) *watch.Target {
	return &watch.Target{
		ID:        id,
		TenantID:  tenant,
		Platform:  platform,
		Identity:  "id-" + id,
		Name:      id,
		Filters:   watch.Filters{NotifyVideo: true},
		CreatedAt: created,
	}
}

func TestListEligibleTargets(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	if err := m.CreateTarget(ctx, mkTarget("b", "t1", watch.PlatformYouTube, base.Add(time.Hour))); err != nil {
		t.Fatalf("CreateTarget: %v", err)
	}
	if err := m.CreateTarget(ctx, mkTarget("a", "t1", watch.PlatformYouTube, base)); err != nil {
		t.Fatalf("CreateTarget: %v", err)
	}
	if err := m.CreateTarget(ctx, mkTarget("tw", "t1", watch.PlatformTwitch, base)); err != nil {
		t.Fatalf("CreateTarget: %v", err)
	}
	muted := mkTarget("muted", "t1", watch.PlatformYouTube, base)
	muted.Filters = watch.Filters{}
	if err := m.CreateTarget(ctx, muted); err != nil {
		t.Fatalf("CreateTarget: %v", err)
	}

	got, err := m.ListEligibleTargets(ctx, watch.PlatformYouTube)
	if err != nil {
		t.Fatalf("ListEligibleTargets: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 eligible youtube targets, got %d", len(got))
	}
	// Oldest first; the all-filters-off target is excluded.
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("order: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestTargetLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.GetTarget(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	tgt := mkTarget("x", "t1", watch.PlatformYouTube, time.Time{})
	if err := m.CreateTarget(ctx, tgt); err != nil {
		t.Fatalf("CreateTarget: %v", err)
	}
	if tgt.CreatedAt.IsZero() {
		t.Fatalf("create must stamp created_at")
	}

	tgt.Name = "renamed"
	tgt.Template = "{title}"
	if err := m.UpdateTarget(ctx, tgt); err != nil {
		t.Fatalf("UpdateTarget: %v", err)
	}
	got, err := m.GetTarget(ctx, "x")
	if err != nil {
		t.Fatalf("GetTarget: %v", err)
	}
	if got.Name != "renamed" || got.Template != "{title}" {
		t.Fatalf("update not applied: %+v", got)
	}

	// Returned value is a copy; mutating it must not touch the store.
	got.Name = "scribble"
	again, _ := m.GetTarget(ctx, "x")
	if again.Name != "renamed" {
		t.Fatalf("store leaked internal state")
	}

	if err := m.DeleteTarget(ctx, "x"); err != nil {
		t.Fatalf("DeleteTarget: %v", err)
	}
	if err := m.DeleteTarget(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
	if err := m.UpdateTarget(ctx, tgt); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating deleted target, got %v", err)
	}
}

func TestCountTargetsPerTenant(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("a%d", i)
		if err := m.CreateTarget(ctx, mkTarget(id, "acme", watch.PlatformYouTube, time.Time{})); err != nil {
			t.Fatalf("CreateTarget: %v", err)
		}
	}
	if err := m.CreateTarget(ctx, mkTarget("b0", "other", watch.PlatformTwitch, time.Time{})); err != nil {
		t.Fatalf("CreateTarget: %v", err)
	}

	n, err := m.CountTargets(ctx, "acme")
	if err != nil {
		t.Fatalf("CountTargets: %v", err)
	}
	if n != 3 {
		t.Fatalf("acme count = %d, want 3", n)
	}
	if n, _ := m.CountTargets(ctx, "nobody"); n != 0 {
		t.Fatalf("unknown tenant count = %d", n)
	}
}

func TestUpdateMarkerAndFeedID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.CreateTarget(ctx, mkTarget("x", "t1", watch.PlatformYouTube, time.Time{})); err != nil {
		t.Fatalf("CreateTarget: %v", err)
	}

	if err := m.UpdateMarker(ctx, "x", "vid123"); err != nil {
		t.Fatalf("UpdateMarker: %v", err)
	}
	if err := m.UpdateResolvedFeedID(ctx, "x", "UUabc"); err != nil {
		t.Fatalf("UpdateResolvedFeedID: %v", err)
	}
	got, _ := m.GetTarget(ctx, "x")
	if got.LastSeenMarker != "vid123" || got.ResolvedFeedID != "UUabc" {
		t.Fatalf("updates lost: %+v", got)
	}

	if err := m.UpdateMarker(ctx, "ghost", "v"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecentOutcomesNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		err := m.AppendDeliveryOutcome(ctx, watch.DeliveryOutcome{
			TargetID:  "x",
			ContentID: fmt.Sprintf("v%d", i),
			Status:    watch.StatusSuccess,
			SentAt:    base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("AppendDeliveryOutcome: %v", err)
		}
	}
	if err := m.AppendDeliveryOutcome(ctx, watch.DeliveryOutcome{TargetID: "other", ContentID: "z"}); err != nil {
		t.Fatalf("AppendDeliveryOutcome: %v", err)
	}

	got, err := m.RecentOutcomes(ctx, "x", 3)
	if err != nil {
		t.Fatalf("RecentOutcomes: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("limit not applied, got %d", len(got))
	}
	if got[0].ContentID != "v4" || got[2].ContentID != "v2" {
		t.Fatalf("not newest first: %s..%s", got[0].ContentID, got[2].ContentID)
	}
}

func TestPruneOutcomes(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		err := m.AppendDeliveryOutcome(ctx, watch.DeliveryOutcome{
			TargetID: "x",
			SentAt:   base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("AppendDeliveryOutcome: %v", err)
		}
	}

	removed, err := m.PruneOutcomes(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("PruneOutcomes: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if left := m.AllOutcomes(); len(left) != 2 {
		t.Fatalf("kept = %d, want 2", len(left))
	}

	if removed, _ := m.PruneOutcomes(ctx, base.Add(2*time.Hour)); removed != 0 {
		t.Fatalf("second prune removed %d", removed)
	}
}
