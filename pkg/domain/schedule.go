package domain

import (
	"encoding/json"
	"time"
)

// ScheduleStatus is the state of a deferred command. Executed and cancelled
// are terminal.
type ScheduleStatus string

const (
	ScheduleStatusPending   ScheduleStatus = "pending"
	ScheduleStatusExecuted  ScheduleStatus = "executed"
	ScheduleStatusFailed    ScheduleStatus = "failed"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
)

// ScheduleState is the full snapshot payload of a schedule aggregate.
type ScheduleState struct {
	ID                  string          `json:"id"`
	TargetAggregateID   string          `json:"targetAggregateId"`
	TargetAggregateType string          `json:"targetAggregateType"`
	CommandType         string          `json:"commandType"`
	CommandData         json.RawMessage `json:"commandData"`
	ScheduledFor        time.Time       `json:"scheduledFor"`
	Status              ScheduleStatus  `json:"status"`
	RetryCount          int             `json:"retryCount"`
	NextRetryAt         *time.Time      `json:"nextRetryAt,omitempty"`
	ErrorMessage        string          `json:"errorMessage,omitempty"`
}

// Schedule models a pending deferred command executed by the scheduler ticker
// with retry semantics.
type Schedule struct {
	AggregateRoot
	state ScheduleState
}

// NewScheduleParams are the inputs for creating a schedule aggregate.
type NewScheduleParams struct {
	ID                  string
	TargetAggregateID   string
	TargetAggregateType string
	CommandType         string
	CommandData         json.RawMessage
	ScheduledFor        time.Time
	CorrelationID       string
}

// NewSchedule validates params and produces a fresh pending schedule.
func NewSchedule(p NewScheduleParams) (*Schedule, error) {
	if p.ID == "" {
		return nil, Validationf("schedule id is required")
	}
	if p.TargetAggregateID == "" || p.TargetAggregateType == "" {
		return nil, Validationf("schedule target aggregate id and type are required")
	}
	if p.CommandType == "" {
		return nil, Validationf("schedule command type is required")
	}
	if p.ScheduledFor.IsZero() {
		return nil, Validationf("scheduledFor is required")
	}
	s := &Schedule{
		AggregateRoot: NewAggregateRoot(p.ID, AggregateTypeSchedule, p.CorrelationID),
		state: ScheduleState{
			ID:                  p.ID,
			TargetAggregateID:   p.TargetAggregateID,
			TargetAggregateType: p.TargetAggregateType,
			CommandType:         p.CommandType,
			CommandData:         p.CommandData,
			ScheduledFor:        p.ScheduledFor.UTC(),
			Status:              ScheduleStatusPending,
		},
	}
	s.Record("Created", map[string]any{}, asMap(s.state))
	return s, nil
}

// ScheduleFromSnapshot hydrates a schedule aggregate from a snapshot row.
func ScheduleFromSnapshot(rec SnapshotRecord, correlationID string) (*Schedule, error) {
	var state ScheduleState
	if err := json.Unmarshal(rec.Payload, &state); err != nil {
		return nil, Validationf("corrupt schedule snapshot for %s: %v", rec.AggregateID, err)
	}
	return &Schedule{
		AggregateRoot: RestoreAggregateRoot(rec, correlationID),
		state:         state,
	}, nil
}

// Snapshot returns the full state for persistence.
func (s *Schedule) Snapshot() (json.RawMessage, error) {
	return json.Marshal(s.state)
}

// State returns a copy of the schedule state.
func (s *Schedule) State() ScheduleState {
	return s.state
}

// IsPending reports whether the schedule is still due for execution.
func (s *Schedule) IsPending() bool {
	return s.state.Status == ScheduleStatusPending
}

// MarkExecuted records successful execution of the deferred command.
func (s *Schedule) MarkExecuted() error {
	if err := s.ensurePending("execute"); err != nil {
		return err
	}
	prior := map[string]any{"status": s.state.Status}
	s.state.Status = ScheduleStatusExecuted
	s.Record("Executed", prior, map[string]any{"status": s.state.Status})
	return nil
}

// RecordRetry keeps the schedule pending after a transient failure and sets
// the next attempt time.
func (s *Schedule) RecordRetry(nextRetryAt time.Time, errMsg string) error {
	if err := s.ensurePending("retry"); err != nil {
		return err
	}
	prior := map[string]any{
		"retryCount":   s.state.RetryCount,
		"nextRetryAt":  s.state.NextRetryAt,
		"errorMessage": s.state.ErrorMessage,
	}
	s.state.RetryCount++
	next := nextRetryAt.UTC()
	s.state.NextRetryAt = &next
	s.state.ErrorMessage = errMsg
	s.Record("RetryRecorded", prior, map[string]any{
		"retryCount":   s.state.RetryCount,
		"nextRetryAt":  s.state.NextRetryAt,
		"errorMessage": s.state.ErrorMessage,
	})
	return nil
}

// MarkFailed records a permanent failure.
func (s *Schedule) MarkFailed(errMsg string) error {
	if err := s.ensurePending("fail"); err != nil {
		return err
	}
	prior := map[string]any{"status": s.state.Status, "errorMessage": s.state.ErrorMessage}
	s.state.Status = ScheduleStatusFailed
	s.state.ErrorMessage = errMsg
	s.Record("Failed", prior, map[string]any{"status": s.state.Status, "errorMessage": s.state.ErrorMessage})
	return nil
}

// Cancel withdraws a pending schedule.
func (s *Schedule) Cancel() error {
	if err := s.ensurePending("cancel"); err != nil {
		return err
	}
	prior := map[string]any{"status": s.state.Status}
	s.state.Status = ScheduleStatusCancelled
	s.Record("Cancelled", prior, map[string]any{"status": s.state.Status})
	return nil
}

func (s *Schedule) ensurePending(op string) error {
	if s.state.Status != ScheduleStatusPending {
		return Validationf("cannot %s schedule %s in status %q", op, s.id, s.state.Status)
	}
	return nil
}
