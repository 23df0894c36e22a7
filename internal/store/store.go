// Package store persists protection plans, reads contract snapshots and
// records applied schedules.
package store

import (
	"context"
	"errors"

	"restructure-engine/internal/model"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("plan was modified concurrently")
)

// Plans keeps one plan per contract. Save is a compare-and-set on
// Plan.Version: it succeeds only when the stored version equals the
// plan's (zero for a new plan) and bumps the version on the plan it was given.
type Plans interface {
	Get(ctx context.Context, contractID string) (*model.Plan, error)
	Save(ctx context.Context, plan *model.Plan) error
	ListByState(ctx context.Context, states ...model.State) ([]*model.Plan, error)
}

// Contracts supplies contract snapshots.
type Contracts interface {
	Contract(ctx context.Context, contractID string) (model.ContractSnapshot, error)
}

// Schedules receives the amortization table of an applied plan. Writing the
// same contract twice replaces the earlier table.
type Schedules interface {
	WriteSchedule(ctx context.Context, contractID, effectiveDate string, rows []model.ScheduleRow) error
}
