// Package scheduler periodically reloads rule configurations from the
// repository so edits take effect without a restart.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-insurance/kestrel/internal/domain"
	"github.com/opensource-insurance/kestrel/internal/rules"
	"github.com/robfig/cron/v3"
)

const reloadTimeout = 30 * time.Second

// Scheduler drives scheduled rule reloads for a set of tenants.
type Scheduler struct {
	cron    *cron.Cron
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	engine  *rules.Engine
	tenants []string
}

// New creates a scheduler. The tenant list names the tenants whose rules
// are reloaded on each tick.
func New(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, tenants []string) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		repo:    repo,
		cache:   cache,
		bus:     bus,
		engine:  engine,
		tenants: tenants,
	}
}

// Start schedules reloads per the cron expression. An empty schedule
// disables the scheduler.
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(schedule, s.reloadAll); err != nil {
		return fmt.Errorf("invalid reload schedule %q: %w", schedule, err)
	}

	s.cron.Start()

	slog.Info("rule reload scheduled", "schedule", schedule, "tenants", len(s.tenants))
	return nil
}

// Stop stops the scheduler and waits for a running reload to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// ReloadTenant refreshes one tenant's rules: the negative list cache is
// invalidated and the product rule engine is reloaded from the repository.
func (s *Scheduler) ReloadTenant(ctx context.Context, tenantID string) error {
	if s.cache != nil {
		if err := s.cache.Delete(ctx, tenantID, "ruleset"); err != nil {
			slog.Warn("failed to invalidate rule set cache",
				"tenant_id", tenantID,
				"error", err,
			)
		}
	}

	if s.engine != nil {
		productRules, err := s.repo.ListProductRules(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("failed to list product rules: %w", err)
		}
		if err := s.engine.ReloadRules(productRules); err != nil {
			return fmt.Errorf("failed to reload product rules: %w", err)
		}
	}

	if s.bus != nil {
		if err := s.bus.Publish(ctx, tenantID, domain.TopicRulesReloaded, nil); err != nil {
			slog.Warn("failed to publish rules reloaded event",
				"tenant_id", tenantID,
				"error", err,
			)
		}
	}

	return nil
}

func (s *Scheduler) reloadAll() {
	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()

	for _, tenantID := range s.tenants {
		if err := s.ReloadTenant(ctx, tenantID); err != nil {
			slog.Error("scheduled rule reload failed",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		slog.Debug("rules reloaded", "tenant_id", tenantID)
	}
}
