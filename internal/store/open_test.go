package store

import (
	"context"
	"path/filepath"
	"testing"

	"streamwatch/internal/watch"
	logx "streamwatch/pkg/logx"
)

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "oracle"}, logx.Nop()); err == nil {
		t.Fatalf("unknown driver must be rejected")
	}
}

func TestOpenMemory(t *testing.T) {
	st, err := Open(Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	if _, ok := st.(*Memory); !ok {
		t.Fatalf("expected memory store, got %T", st)
	}
}

func TestOpenSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sw.db")
	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	tgt := &watch.Target{
		ID:         "t1",
		TenantID:   "acme",
		Platform:   watch.PlatformYouTube,
		Identity:   "UCabc",
		Name:       "chan",
		WebhookURL: "https://hooks.example.com/wh",
		Filters:    watch.Filters{NotifyVideo: true},
		Template:   "{title}",
	}
	if err := st.CreateTarget(ctx, tgt); err != nil {
		t.Fatalf("CreateTarget: %v", err)
	}
	if err := st.UpdateMarker(ctx, "t1", "v1"); err != nil {
		t.Fatalf("UpdateMarker: %v", err)
	}
	got, err := st.GetTarget(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTarget: %v", err)
	}
	if got.LastSeenMarker != "v1" || got.Identity != "UCabc" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	list, err := st.ListEligibleTargets(ctx, watch.PlatformYouTube)
	if err != nil {
		t.Fatalf("ListEligibleTargets: %v", err)
	}
	if len(list) != 1 || list[0].ID != "t1" {
		t.Fatalf("eligible list: %+v", list)
	}

	if err := st.AppendDeliveryOutcome(ctx, watch.DeliveryOutcome{
		ID: "o1", TargetID: "t1", Platform: watch.PlatformYouTube,
		Type: watch.TypeVideo, ContentID: "v1", Status: watch.StatusSuccess,
	}); err != nil {
		t.Fatalf("AppendDeliveryOutcome: %v", err)
	}
	outs, err := st.RecentOutcomes(ctx, "t1", 10)
	if err != nil {
		t.Fatalf("RecentOutcomes: %v", err)
	}
	if len(outs) != 1 || outs[0].ID != "o1" {
		t.Fatalf("outcomes: %+v", outs)
	}
}
