package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"streamwatch/internal/watch"
)

// Memory is a process-local Store used by tests and dry runs.
type Memory struct {
	mu       sync.Mutex
	targets  map[string]watch.Target
	outcomes []watch.DeliveryOutcome
}

func NewMemory() *Memory {
	return &Memory{targets: map[string]watch.Target{}}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) ListEligibleTargets(ctx context.Context, platform watch.Platform) ([]watch.Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []watch.Target
	for _, t := range m.targets {
		if t.Platform != platform {
			continue
		}
		f := t.Filters
		if f.NotifyVideo || f.NotifyShort || f.NotifyLive || f.NotifyPremiere || f.NotifyStream {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) GetTarget(ctx context.Context, id string) (*watch.Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := t
	return &cp, nil
}

func (m *Memory) CreateTarget(ctx context.Context, t *watch.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	m.targets[t.ID] = *t
	return nil
}

func (m *Memory) UpdateTarget(ctx context.Context, t *watch.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.targets[t.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Name = t.Name
	cur.Identity = t.Identity
	cur.WebhookURL = t.WebhookURL
	cur.Filters = t.Filters
	cur.Template = t.Template
	m.targets[t.ID] = cur
	return nil
}

func (m *Memory) DeleteTarget(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.targets[id]; !ok {
		return ErrNotFound
	}
	delete(m.targets, id)
	return nil
}

func (m *Memory) CountTargets(ctx context.Context, tenantID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.targets {
		if t.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) UpdateMarker(ctx context.Context, targetID, marker string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[targetID]
	if !ok {
		return ErrNotFound
	}
	t.LastSeenMarker = marker
	m.targets[targetID] = t
	return nil
}

func (m *Memory) UpdateResolvedFeedID(ctx context.Context, targetID, feedID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[targetID]
	if !ok {
		return ErrNotFound
	}
	t.ResolvedFeedID = feedID
	m.targets[targetID] = t
	return nil
}

func (m *Memory) AppendDeliveryOutcome(ctx context.Context, o watch.DeliveryOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.SentAt.IsZero() {
		o.SentAt = time.Now()
	}
	m.outcomes = append(m.outcomes, o)
	return nil
}

func (m *Memory) RecentOutcomes(ctx context.Context, targetID string, limit int) ([]watch.DeliveryOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var out []watch.DeliveryOutcome
	for i := len(m.outcomes) - 1; i >= 0 && len(out) < limit; i-- {
		if m.outcomes[i].TargetID == targetID {
			out = append(out, m.outcomes[i])
		}
	}
	return out, nil
}

func (m *Memory) PruneOutcomes(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.outcomes[:0]
	var removed int64
	for _, o := range m.outcomes {
		if o.SentAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, o)
	}
	m.outcomes = kept
	return removed, nil
}

// AllOutcomes returns a copy of every recorded outcome. Test helper.
func (m *Memory) AllOutcomes() []watch.DeliveryOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]watch.DeliveryOutcome(nil), m.outcomes...)
}
