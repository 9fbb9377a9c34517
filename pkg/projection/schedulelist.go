package projection

import (
	"context"
	"database/sql"
	"time"

	"github.com/slapcommerce/core-sub014/pkg/domain"
)

// ScheduleList maintains a row per deferred command. Besides the admin
// listing, it is the scheduler's work queue: Due selects the pending
// schedules whose time has come.
type ScheduleList struct {
	db *sql.DB
}

// NewScheduleList creates the schedule list projection over the given handle.
func NewScheduleList(db *sql.DB) *ScheduleList {
	return &ScheduleList{db: db}
}

func (p *ScheduleList) Name() string { return "schedule_list" }

func (p *ScheduleList) Init(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schedule_list (
			schedule_id           TEXT PRIMARY KEY,
			target_aggregate_id   TEXT NOT NULL,
			target_aggregate_type TEXT NOT NULL,
			command_type          TEXT NOT NULL,
			scheduled_for         INTEGER NOT NULL,
			status                TEXT NOT NULL,
			retry_count           INTEGER NOT NULL DEFAULT 0,
			next_retry_at         INTEGER,
			error_message         TEXT NOT NULL DEFAULT '',
			updated_at            INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_schedule_list_due ON schedule_list(status, scheduled_for);
	`)
	return err
}

func (p *ScheduleList) Reset(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM schedule_list`)
	return err
}

func (p *ScheduleList) Handle(ctx context.Context, evt *domain.Event) error {
	if evt.AggregateType != domain.AggregateTypeSchedule {
		return nil
	}
	d := delta(evt.Payload.NewState)

	if evt.Version == 0 {
		var scheduledFor int64
		if t := d.Time("scheduledFor"); t != nil {
			scheduledFor = t.Unix()
		}
		_, err := p.db.ExecContext(ctx, `
			INSERT INTO schedule_list (schedule_id, target_aggregate_id, target_aggregate_type, command_type, scheduled_for, status, retry_count, next_retry_at, error_message, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(schedule_id) DO NOTHING
		`, evt.AggregateID, d.String("targetAggregateId"), d.String("targetAggregateType"),
			d.String("commandType"), scheduledFor, d.String("status"),
			d.Int64("retryCount"), unixOrNil(d.Time("nextRetryAt")), d.String("errorMessage"),
			evt.OccurredAt.Unix())
		return err
	}

	columns := []string{"updated_at"}
	args := []any{evt.OccurredAt.Unix()}
	if d.Has("status") {
		columns = append(columns, "status")
		args = append(args, d.String("status"))
	}
	if d.Has("retryCount") {
		columns = append(columns, "retry_count")
		args = append(args, d.Int64("retryCount"))
	}
	if d.Has("nextRetryAt") {
		columns = append(columns, "next_retry_at")
		args = append(args, unixOrNil(d.Time("nextRetryAt")))
	}
	if d.Has("errorMessage") {
		columns = append(columns, "error_message")
		args = append(args, d.String("errorMessage"))
	}

	args = append(args, evt.AggregateID)
	_, err := p.db.ExecContext(ctx,
		`UPDATE schedule_list SET `+setClause(columns)+` WHERE schedule_id = ?`, args...)
	return err
}

// DueSchedule identifies a schedule that is ready to run.
type DueSchedule struct {
	ScheduleID string
	RetryCount int
}

// Due returns the pending schedules whose scheduled time has passed and
// whose retry backoff, if any, has elapsed.
func (p *ScheduleList) Due(ctx context.Context, now time.Time, limit int) ([]DueSchedule, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT schedule_id, retry_count FROM schedule_list
		WHERE status = ? AND scheduled_for <= ?
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY scheduled_for ASC LIMIT ?
	`, string(domain.ScheduleStatusPending), now.Unix(), now.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []DueSchedule
	for rows.Next() {
		var d DueSchedule
		if err := rows.Scan(&d.ScheduleID, &d.RetryCount); err != nil {
			return nil, err
		}
		due = append(due, d)
	}
	return due, rows.Err()
}
