// Package registry is the write path for watch targets: registration is
// admitted against the tenant's plan tier before anything is persisted.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"streamwatch/internal/eventbus"
	"streamwatch/internal/plan"
	"streamwatch/internal/store"
	"streamwatch/internal/watch"
	"streamwatch/pkg/logx"
)

// ErrPlanLimit is returned when the tenant already holds as many targets
// as the tier allows.
var ErrPlanLimit = errors.New("registry: plan target limit reached")

type Service struct {
	store store.Store
	gate  *plan.Gate
	bus   eventbus.Bus
	log   logx.Logger
}

// New wires the registration service. bus may be nil.
func New(st store.Store, gate *plan.Gate, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: st, gate: gate, bus: bus, log: log}
}

// Register validates t, checks the tenant's plan admission and persists
// the target. The returned copy carries the assigned id.
func (s *Service) Register(ctx context.Context, t watch.Target) (watch.Target, error) {
	if err := validate(&t); err != nil {
		return watch.Target{}, err
	}

	adm, err := s.gate.CanRegister(ctx, t.TenantID)
	if err != nil {
		return watch.Target{}, fmt.Errorf("registry: admission check: %w", err)
	}
	if !adm.Allowed {
		return watch.Target{}, fmt.Errorf("%w: %d/%d targets in use", ErrPlanLimit, adm.Current, adm.Limit)
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if err := s.store.CreateTarget(ctx, &t); err != nil {
		return watch.Target{}, err
	}
	s.log.Info("target registered",
		logx.String("target", t.ID),
		logx.String("tenant", t.TenantID),
		logx.String("platform", string(t.Platform)),
		logx.String("identity", t.Identity),
	)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeTargetRegistered, Data: t})
	}
	return t, nil
}

// Deregister removes the target. Its delivery outcomes are kept until
// the retention prune collects them.
func (s *Service) Deregister(ctx context.Context, id string) error {
	if err := s.store.DeleteTarget(ctx, id); err != nil {
		return err
	}
	s.log.Info("target deregistered", logx.String("target", id))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeTargetDeregistered, Data: id})
	}
	return nil
}

// Describe returns the target together with its most recent delivery
// outcomes, newest first.
func (s *Service) Describe(ctx context.Context, id string, outcomeLimit int) (*watch.Target, []watch.DeliveryOutcome, error) {
	t, err := s.store.GetTarget(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	outs, err := s.store.RecentOutcomes(ctx, id, outcomeLimit)
	if err != nil {
		return nil, nil, err
	}
	return t, outs, nil
}

func validate(t *watch.Target) error {
	t.TenantID = strings.TrimSpace(t.TenantID)
	t.Identity = strings.TrimSpace(t.Identity)
	t.WebhookURL = strings.TrimSpace(t.WebhookURL)

	if t.TenantID == "" {
		return errors.New("registry: tenant id is required")
	}
	switch t.Platform {
	case watch.PlatformYouTube, watch.PlatformTwitch:
	default:
		return fmt.Errorf("registry: unknown platform %q", t.Platform)
	}
	if t.Identity == "" {
		return errors.New("registry: identity (channel id or login) is required")
	}
	if t.WebhookURL == "" {
		return errors.New("registry: webhook url is required")
	}
	if !strings.HasPrefix(t.WebhookURL, "http://") && !strings.HasPrefix(t.WebhookURL, "https://") {
		return fmt.Errorf("registry: webhook url %q is not http(s)", t.WebhookURL)
	}
	if t.Name == "" {
		t.Name = t.Identity
	}
	return nil
}
