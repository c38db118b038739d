package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/greenline-backend/pkg/db/models"
	"github.com/angelmondragon/greenline-backend/pkg/logger"
)

const (
	defaultContactNudgeAfter = 2 * time.Hour
	defaultTextOrderExpiry   = 72 * time.Hour
	conciergeBatchSize       = 200
)

// ConciergeFollowupJobParams configure the text-order follow-up job.
type ConciergeFollowupJobParams struct {
	Logger      *logger.Logger
	Orders      conciergeOrders
	NudgeAfter  time.Duration
	ExpireAfter time.Duration
	BatchSize   int
}

type conciergeOrders interface {
	ListAwaitingContact(ctx context.Context, placedBefore time.Time, limit int) ([]models.Order, error)
	ListContactOverdue(ctx context.Context, placedBefore time.Time, limit int) ([]models.Order, error)
	FlagContactOverdue(ctx context.Context, order models.Order) (bool, error)
	ExpireAwaitingContact(ctx context.Context, id uuid.UUID) (bool, error)
}

// NewConciergeFollowupJob builds the job that expires abandoned text orders
// and raises one overdue reminder for orders staff have not contacted yet.
func NewConciergeFollowupJob(params ConciergeFollowupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	nudge := params.NudgeAfter
	if nudge <= 0 {
		nudge = defaultContactNudgeAfter
	}
	expire := params.ExpireAfter
	if expire <= 0 {
		expire = defaultTextOrderExpiry
	}
	if expire <= nudge {
		return nil, fmt.Errorf("expiry (%s) must be longer than nudge delay (%s)", expire, nudge)
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = conciergeBatchSize
	}
	return &conciergeFollowupJob{
		logg:        params.Logger,
		orders:      params.Orders,
		nudgeAfter:  nudge,
		expireAfter: expire,
		batchSize:   batch,
		now:         time.Now,
	}, nil
}

type conciergeFollowupJob struct {
	logg        *logger.Logger
	orders      conciergeOrders
	nudgeAfter  time.Duration
	expireAfter time.Duration
	batchSize   int
	now         func() time.Time
}

func (j *conciergeFollowupJob) Name() string { return "concierge-followup" }

// Run expires first so that an order past both thresholds is not nudged.
func (j *conciergeFollowupJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	return multierr.Combine(
		j.expireAbandoned(ctx, now.Add(-j.expireAfter)),
		j.nudgeOverdue(ctx, now.Add(-j.nudgeAfter)),
	)
}

func (j *conciergeFollowupJob) expireAbandoned(ctx context.Context, cutoff time.Time) error {
	rows, err := j.orders.ListAwaitingContact(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("query text orders for expiry: %w", err)
	}
	var errs error
	expired := 0
	for _, order := range rows {
		ok, err := j.orders.ExpireAwaitingContact(ctx, order.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.OrderNumber, err))
			continue
		}
		if ok {
			expired++
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"found":   len(rows),
		"expired": expired,
	})
	j.logg.Info(logCtx, "text order expiry loop complete")
	return errs
}

func (j *conciergeFollowupJob) nudgeOverdue(ctx context.Context, cutoff time.Time) error {
	rows, err := j.orders.ListContactOverdue(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("query text orders for nudge: %w", err)
	}
	var errs error
	flagged := 0
	for _, order := range rows {
		ok, err := j.orders.FlagContactOverdue(ctx, order)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("flag order %s: %w", order.OrderNumber, err))
			continue
		}
		if ok {
			flagged++
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"found":   len(rows),
		"flagged": flagged,
	})
	j.logg.Info(logCtx, "text order nudge loop complete")
	return errs
}
