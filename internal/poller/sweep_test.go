package poller

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"streamwatch/internal/notify"
	"streamwatch/internal/plan"
	"streamwatch/internal/scheduler"
	"streamwatch/internal/store"
	"streamwatch/internal/upstream"
	"streamwatch/internal/watch"
	logx "streamwatch/pkg/logx"
)

// fakeSource serves canned items or errors keyed by target id.
type fakeSource struct {
	platform   watch.Platform
	configured bool

	mu      sync.Mutex
	items   map[string]*watch.Item
	errs    map[string]error
	fetches atomic.Int64
}

func newFakeSource(p watch.Platform) *fakeSource {
	return &fakeSource{platform: p, configured: true, items: map[string]*watch.Item{}, errs: map[string]error{}}
}

func (s *fakeSource) Platform() watch.Platform { return s.platform }
func (s *fakeSource) Configured() bool         { return s.configured }

func (s *fakeSource) FetchLatest(_ context.Context, t *watch.Target) (*watch.Item, error) {
	s.fetches.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs[t.ID]; err != nil {
		return nil, err
	}
	return s.items[t.ID], nil
}

func premiumGate(st store.Store) *plan.Gate {
	return plan.NewGate(plan.StaticLookup{Default: "premium"}, st)
}

// newTestHandler wires a handler around a memory store and a webhook
// test server. The scheduler is unused; Sweep is invoked directly.
func newTestHandler(t *testing.T, src Source, st store.Store, workers int) *Handler {
	t.Helper()
	d := notify.NewDispatcher(notify.Config{RatePerSec: 1000}, logx.Nop())
	n := notify.NewNotifier(d, st, nil, logx.Nop())
	return NewHandler(src, st, premiumGate(st), n, scheduler.New(logx.Nop()), nil,
		Config{Workers: workers, FetchRatePerSec: 1000}, logx.Nop())
}

func seedTarget(t *testing.T, st store.Store, id, webhook, marker string, filters watch.Filters) {
	t.Helper()
	err := st.CreateTarget(context.Background(), &watch.Target{
		ID:             id,
		TenantID:       "tenant1",
		Platform:       watch.PlatformYouTube,
		Identity:       "UC" + id,
		Name:           id,
		Filters:        filters,
		Template:       "{title} {link}",
		WebhookURL:     webhook,
		LastSeenMarker: marker,
	})
	if err != nil {
		t.Fatalf("seed target %s: %v", id, err)
	}
}

func videoItem(targetID, contentID string) *watch.Item {
	return &watch.Item{
		TargetID:    targetID,
		Platform:    watch.PlatformYouTube,
		ContentID:   contentID,
		Title:       "upload",
		URL:         "https://www.youtube.com/watch?v=" + contentID,
		PublishedAt: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
		Type:        watch.TypeVideo,
	}
}

func allFilters() watch.Filters {
	return watch.Filters{NotifyVideo: true, NotifyShort: true, NotifyLive: true, NotifyPremiere: true, NotifyStream: true}
}

func TestSweepNotifiesNovelItem(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	st := store.NewMemory()
	seedTarget(t, st, "t1", srv.URL, "old", allFilters())

	src := newFakeSource(watch.PlatformYouTube)
	src.items["t1"] = videoItem("t1", "new")

	h := newTestHandler(t, src, st, 2)
	h.Sweep(context.Background())

	if hits.Load() != 1 {
		t.Fatalf("expected 1 webhook call, got %d", hits.Load())
	}
	got, _ := st.GetTarget(context.Background(), "t1")
	if got.LastSeenMarker != "new" {
		t.Fatalf("marker = %q, want %q", got.LastSeenMarker, "new")
	}
	outs := st.AllOutcomes()
	if len(outs) != 1 || outs[0].Status != watch.StatusSuccess {
		t.Fatalf("outcomes: %+v", outs)
	}
}

func TestSweepSkipsSeenItem(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	st := store.NewMemory()
	seedTarget(t, st, "t1", srv.URL, "same", allFilters())

	src := newFakeSource(watch.PlatformYouTube)
	src.items["t1"] = videoItem("t1", "same")

	h := newTestHandler(t, src, st, 2)
	h.Sweep(context.Background())

	if hits.Load() != 0 {
		t.Fatalf("seen item must not notify, got %d calls", hits.Load())
	}
	if outs := st.AllOutcomes(); len(outs) != 0 {
		t.Fatalf("no outcome expected, got %+v", outs)
	}
}

func TestSweepFilteredItemAdvancesMarkerWithoutNotify(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	st := store.NewMemory()
	// Shorts filtered out; videos allowed so the target stays eligible.
	seedTarget(t, st, "t1", srv.URL, "v1", watch.Filters{NotifyVideo: true})

	src := newFakeSource(watch.PlatformYouTube)
	short := videoItem("t1", "v2")
	short.Type = watch.TypeShort
	src.items["t1"] = short

	h := newTestHandler(t, src, st, 1)
	h.Sweep(context.Background())

	if hits.Load() != 0 {
		t.Fatalf("filtered item must not notify")
	}
	got, _ := st.GetTarget(context.Background(), "t1")
	if got.LastSeenMarker != "v2" {
		t.Fatalf("marker must advance past filtered items, got %q", got.LastSeenMarker)
	}
	if outs := st.AllOutcomes(); len(outs) != 0 {
		t.Fatalf("no outcome for filtered items, got %+v", outs)
	}
}

func TestSweepDeliveryFailureMarksSeen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	st := store.NewMemory()
	seedTarget(t, st, "t1", srv.URL, "", allFilters())

	src := newFakeSource(watch.PlatformYouTube)
	src.items["t1"] = videoItem("t1", "v1")

	h := newTestHandler(t, src, st, 1)
	h.Sweep(context.Background())

	got, _ := st.GetTarget(context.Background(), "t1")
	if got.LastSeenMarker != "v1" {
		t.Fatalf("marker must advance before delivery, got %q", got.LastSeenMarker)
	}
	outs := st.AllOutcomes()
	if len(outs) != 1 || outs[0].Status != watch.StatusError {
		t.Fatalf("expected one error outcome, got %+v", outs)
	}

	// Next sweep: same item, marker already advanced, no redelivery.
	h.Sweep(context.Background())
	if outs := st.AllOutcomes(); len(outs) != 1 {
		t.Fatalf("failed delivery must not retry, got %+v", outs)
	}
}

func TestSweepClientErrorSkipsOnlyThatTarget(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	st := store.NewMemory()
	seedTarget(t, st, "bad", srv.URL, "", allFilters())
	seedTarget(t, st, "good", srv.URL, "", allFilters())

	src := newFakeSource(watch.PlatformYouTube)
	src.errs["bad"] = &upstream.StatusError{Status: 404, Message: "channel gone"}
	src.items["good"] = videoItem("good", "v1")

	h := newTestHandler(t, src, st, 1)
	h.Sweep(context.Background())

	if hits.Load() != 1 {
		t.Fatalf("healthy target must still notify, got %d calls", hits.Load())
	}
}

func TestSweepExhaustionAbandonsTick(t *testing.T) {
	st := store.NewMemory()
	for i := 0; i < 5; i++ {
		seedTarget(t, st, fmt.Sprintf("t%d", i), "http://127.0.0.1:0/hook", "", allFilters())
	}

	src := newFakeSource(watch.PlatformYouTube)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("t%d", i)
		src.errs[id] = fmt.Errorf("%w: quota", upstream.ErrExhausted)
	}

	h := newTestHandler(t, src, st, 1)
	h.Sweep(context.Background())

	// First fetch trips the abort; the remaining queued targets drain
	// without touching the upstream.
	if n := src.fetches.Load(); n != 1 {
		t.Fatalf("expected sweep abandoned after 1 fetch, got %d", n)
	}
}

func TestSweepUnconfiguredSourceIsNoop(t *testing.T) {
	st := store.NewMemory()
	seedTarget(t, st, "t1", "http://127.0.0.1:0/hook", "", allFilters())

	src := newFakeSource(watch.PlatformYouTube)
	src.configured = false
	src.items["t1"] = videoItem("t1", "v1")

	h := newTestHandler(t, src, st, 1)
	h.Sweep(context.Background())

	if src.fetches.Load() != 0 {
		t.Fatalf("unconfigured platform must not fetch")
	}
}

func TestHandlerStartStopIdempotent(t *testing.T) {
	st := store.NewMemory()
	src := newFakeSource(watch.PlatformTwitch)

	sched := scheduler.New(logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)
	defer sched.Stop(context.Background())

	d := notify.NewDispatcher(notify.Config{}, logx.Nop())
	n := notify.NewNotifier(d, st, nil, logx.Nop())
	h := NewHandler(src, st, premiumGate(st), n, sched, nil,
		Config{Interval: time.Hour, Workers: 1}, logx.Nop())

	if h.Running() {
		t.Fatalf("handler must start idle")
	}
	h.Start()
	h.Start() // no-op
	if !h.Running() {
		t.Fatalf("handler should be running")
	}
	h.Stop()
	h.Stop() // no-op
	if h.Running() {
		t.Fatalf("handler should be idle after stop")
	}
}
