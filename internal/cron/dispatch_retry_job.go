package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

const (
	defaultDispatchBatch      = 50
	defaultMaxDispatchTries   = 5
	defaultDispatchStaleAfter = 2 * time.Minute

	dispatchGiveUpReason = "delivery partner could not be assigned"
)

type dispatchCandidates interface {
	ListDispatchFailed(ctx context.Context, limit int) ([]models.Order, error)
	ListPendingDispatchBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type orderDispatcher interface {
	Dispatch(ctx context.Context, order *models.Order) (*orders.Result, error)
}

type transitionApplier interface {
	Apply(ctx context.Context, cmd orders.Command) (*orders.Result, error)
}

type DispatchRetryJobParams struct {
	Logger     *logger.Logger
	Orders     dispatchCandidates
	Dispatcher orderDispatcher
	Engine     transitionApplier
	MaxTries   int
	Batch      int
	StaleAfter time.Duration
}

// NewDispatchRetryJob re-dispatches orders whose provider booking failed or
// never ran, and cancels orders that exhausted their dispatch attempts.
func NewDispatchRetryJob(params DispatchRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("transition engine required")
	}
	job := &dispatchRetryJob{
		logg:       params.Logger,
		orders:     params.Orders,
		dispatcher: params.Dispatcher,
		engine:     params.Engine,
		maxTries:   params.MaxTries,
		batch:      params.Batch,
		staleAfter: params.StaleAfter,
		now:        time.Now,
	}
	if job.maxTries <= 0 {
		job.maxTries = defaultMaxDispatchTries
	}
	if job.batch <= 0 {
		job.batch = defaultDispatchBatch
	}
	if job.staleAfter <= 0 {
		job.staleAfter = defaultDispatchStaleAfter
	}
	return job, nil
}

type dispatchRetryJob struct {
	logg       *logger.Logger
	orders     dispatchCandidates
	dispatcher orderDispatcher
	engine     transitionApplier
	maxTries   int
	batch      int
	staleAfter time.Duration
	now        func() time.Time
}

func (j *dispatchRetryJob) Name() string { return "dispatch_retry" }

func (j *dispatchRetryJob) Run(ctx context.Context) error {
	var errs error
	failed, err := j.orders.ListDispatchFailed(ctx, j.batch)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("list failed dispatches: %w", err))
	}
	stale, err := j.orders.ListPendingDispatchBefore(ctx, j.now().UTC().Add(-j.staleAfter), j.batch)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("list stale dispatches: %w", err))
	}

	retried, cancelled := 0, 0
	candidates := make([]models.Order, 0, len(failed)+len(stale))
	candidates = append(candidates, failed...)
	candidates = append(candidates, stale...)
	for i := range candidates {
		order := &candidates[i]
		orderCtx := j.logg.WithOrderID(ctx, order.ID.String())
		if order.DispatchAttempts >= j.maxTries {
			if err := j.giveUp(orderCtx, order); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			cancelled++
			continue
		}
		if _, err := j.dispatcher.Dispatch(orderCtx, order); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("dispatch order %s: %w", order.ID, err))
			continue
		}
		retried++
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"failed":    len(failed),
		"stale":     len(stale),
		"retried":   retried,
		"cancelled": cancelled,
	}), "dispatch retry complete")
	return errs
}

func (j *dispatchRetryJob) giveUp(ctx context.Context, order *models.Order) error {
	res, err := j.engine.Apply(ctx, orders.Command{
		OrderID: order.ID,
		Actor:   enums.ActorSystem,
		Action:  enums.ActionCancel,
		Payload: orders.CancelPayload{Reason: dispatchGiveUpReason},
	})
	if err != nil {
		return fmt.Errorf("cancel undeliverable order %s: %w", order.ID, err)
	}
	j.logg.Warn(j.logg.WithField(ctx, "outcome", string(res.Outcome)), "order cancelled after exhausting dispatch attempts")
	return nil
}
