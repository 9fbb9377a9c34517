package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/slapcommerce/core-sub014/pkg/domain"
	"github.com/slapcommerce/core-sub014/pkg/store"
)

// ScheduleService handles the deferred-command aggregates. Schedules are
// created as a side effect of drop scheduling; this service covers
// cancellation and the execution path driven by the scheduler ticker.
type ScheduleService struct {
	storage   Storage
	schedules *store.Repository[*domain.Schedule]
	clock     func() time.Time
	logger    *slog.Logger
}

// ScheduleRef addresses an existing schedule.
type ScheduleRef struct {
	ScheduleID      string `json:"scheduleId"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// Cancel withdraws a pending schedule.
func (s *ScheduleService) Cancel(ctx context.Context, correlationID string, p ScheduleRef) (*Result, error) {
	schedule, err := s.schedules.Load(ctx, p.ScheduleID, correlationID)
	if err != nil {
		return nil, err
	}
	if err := checkExpectedVersion(schedule, p.ExpectedVersion); err != nil {
		return nil, err
	}
	if err := schedule.Cancel(); err != nil {
		return nil, err
	}

	uow := s.storage.Begin()
	uow.Save(schedule)
	if err := uow.Commit(ctx); err != nil {
		return nil, err
	}
	return &Result{AggregateID: schedule.ID(), Version: schedule.Version()}, nil
}

// Execute runs one due schedule: dispatches its inner command through the bus
// and records the outcome on the schedule aggregate. Transient failures leave
// the schedule pending with a retry time; exhausted or permanent failures
// mark it failed.
func (s *ScheduleService) Execute(ctx context.Context, bus *Bus, scheduleID string, nextRetryAt time.Time, maxAttempts int) error {
	correlationID := domain.NewCorrelationID()
	schedule, err := s.schedules.Load(ctx, scheduleID, correlationID)
	if err != nil {
		return err
	}
	if !schedule.IsPending() {
		return nil
	}
	state := schedule.State()

	_, dispatchErr := bus.Dispatch(ctx, &Envelope{
		Type:          state.CommandType,
		CommandID:     domain.NewID(),
		CorrelationID: correlationID,
		Data:          state.CommandData,
	})

	switch {
	case dispatchErr == nil:
		err = schedule.MarkExecuted()
	case domain.IsRetryable(dispatchErr) && state.RetryCount+1 < maxAttempts:
		s.logger.WarnContext(ctx, "scheduled command failed, will retry",
			slog.String("schedule_id", scheduleID),
			slog.String("command_type", state.CommandType),
			slog.Int("retry_count", state.RetryCount+1),
			slog.String("error", dispatchErr.Error()),
		)
		err = schedule.RecordRetry(nextRetryAt, dispatchErr.Error())
	default:
		s.logger.ErrorContext(ctx, "scheduled command failed permanently",
			slog.String("schedule_id", scheduleID),
			slog.String("command_type", state.CommandType),
			slog.String("error", dispatchErr.Error()),
		)
		err = schedule.MarkFailed(dispatchErr.Error())
	}
	if err != nil {
		return err
	}

	uow := s.storage.Begin()
	uow.Save(schedule)
	return uow.Commit(ctx)
}

// Register binds the schedule command types.
func (s *ScheduleService) Register(bus *Bus) {
	register(bus, "schedule.cancel", s.Cancel)
}
