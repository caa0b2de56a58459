package db

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/patrickwarner/openslot/internal/models"
	"github.com/patrickwarner/openslot/internal/observability"
)

// Ledger commits stored plans into the reservation ledger. Redis is optional;
// without it commits are not serialised across processes.
type Ledger struct {
	PG       *Postgres
	Redis    *RedisStore
	LockTTL  time.Duration
	MaxSlots int
	Logger   *zap.Logger
	Metrics  observability.MetricsRegistry
}

// Commit reserves the slots of a saved plan. Screens of the plan are locked
// for the duration of the commit and a LedgerUpdate is published afterwards.
func (l *Ledger) Commit(ctx context.Context, plan *models.PlanResult) (int64, error) {
	ctx, span := observability.Tracer("ledger").Start(ctx, "Ledger.Commit")
	defer span.End()
	span.SetAttributes(attribute.String("plan.id", plan.ID))

	if !plan.Status.HasSchedule() {
		return 0, fmt.Errorf("%w: status %s", ErrPlanNotSchedulable, plan.Status)
	}
	screens := make([]int64, 0, len(plan.Schedule))
	for id := range plan.Schedule {
		screens = append(screens, id)
	}

	if l.Redis != nil {
		release, err := l.Redis.LockScreens(ctx, screens, plan.ID, l.LockTTL)
		if err != nil {
			l.Metrics.IncrementLedgerCommitErrors()
			span.RecordError(err)
			span.SetStatus(codes.Error, "screens locked")
			return 0, err
		}
		defer release()
	}

	touched, err := l.PG.CommitPlan(ctx, plan.ID, l.MaxSlots)
	if err != nil {
		l.Metrics.IncrementLedgerCommitErrors()
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return 0, err
	}
	l.Metrics.IncrementLedgerCommits()

	if l.Redis != nil {
		var slots int64
		for _, hours := range plan.Schedule {
			for _, e := range hours {
				slots += int64(e.Slots)
			}
		}
		u := LedgerUpdate{PlanID: plan.ID, ScreenIDs: screens, Slots: slots, At: time.Now().UTC()}
		if err := l.Redis.PublishLedgerUpdate(ctx, u); err != nil {
			l.Logger.Warn("publish ledger update", zap.String("plan_id", plan.ID), zap.Error(err))
		}
	}
	l.Logger.Info("plan committed",
		zap.String("plan_id", plan.ID),
		zap.Int("screens", len(screens)),
		zap.Int64("screen_hours", touched),
	)
	return touched, nil
}

// PlayerIDs maps screen numbers, as used by inventory workbooks, to screen ids.
func (p *Postgres) PlayerIDs(ctx context.Context) (map[string]int64, error) {
	screens, err := p.LoadScreens(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]int64, len(screens))
	for _, s := range screens {
		ids[s.Number] = s.ID
	}
	return ids, nil
}
