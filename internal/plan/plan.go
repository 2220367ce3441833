// Package plan implements subscription-tier admission control: whether
// a tenant's check may run this tick and whether it may register another
// watch target.
package plan

import (
	"context"
	"strings"
	"time"
)

// Tier is a subscription level's operating limits.
type Tier struct {
	Name           string
	MaxTargets     int
	CadenceMinutes int
}

var (
	Free     = Tier{Name: "free", MaxTargets: 1, CadenceMinutes: 30}
	Standard = Tier{Name: "standard", MaxTargets: 5, CadenceMinutes: 5}
	Premium  = Tier{Name: "premium", MaxTargets: 20, CadenceMinutes: 1}
)

// ByName resolves a tier name; unknown names fall back to free.
func ByName(name string) Tier {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "standard", "normal":
		return Standard
	case "premium", "pro":
		return Premium
	default:
		return Free
	}
}

// Lookup resolves a tenant's tier. Billing state lives outside this
// engine; this is its only window into it.
type Lookup interface {
	GetTier(ctx context.Context, tenantID string) (Tier, error)
}

// TargetCounter reports a tenant's combined target count across both
// platforms. Satisfied by store.Store.
type TargetCounter interface {
	CountTargets(ctx context.Context, tenantID string) (int, error)
}

// Admission is the result of a registration check.
type Admission struct {
	Allowed bool
	Limit   int
	Current int
}

// Gate is the tier-based admission check.
type Gate struct {
	lookup Lookup
	counts TargetCounter
}

func NewGate(lookup Lookup, counts TargetCounter) *Gate {
	return &Gate{lookup: lookup, counts: counts}
}

// ShouldRun reports whether the tenant's cadence admits a check at now.
// Cadence N admits ticks whose wall-clock minute is divisible by N, so
// cadence 1 always admits.
func (g *Gate) ShouldRun(ctx context.Context, tenantID string, now time.Time) (bool, error) {
	tier, err := g.lookup.GetTier(ctx, tenantID)
	if err != nil {
		return false, err
	}
	cadence := tier.CadenceMinutes
	if cadence <= 1 {
		return true, nil
	}
	return now.Minute()%cadence == 0, nil
}

// CanRegister reports whether the tenant may add one more watch target.
func (g *Gate) CanRegister(ctx context.Context, tenantID string) (Admission, error) {
	tier, err := g.lookup.GetTier(ctx, tenantID)
	if err != nil {
		return Admission{}, err
	}
	current, err := g.counts.CountTargets(ctx, tenantID)
	if err != nil {
		return Admission{}, err
	}
	return Admission{
		Allowed: current < tier.MaxTargets,
		Limit:   tier.MaxTargets,
		Current: current,
	}, nil
}

// StaticLookup maps tenant ids to tier names from config; tenants not
// listed get the default tier.
type StaticLookup struct {
	Tenants map[string]string
	Default string
}

func (s StaticLookup) GetTier(ctx context.Context, tenantID string) (Tier, error) {
	if name, ok := s.Tenants[tenantID]; ok {
		return ByName(name), nil
	}
	return ByName(s.Default), nil
}
