package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/lib/pq"

	"restructure-engine/internal/model"
)

// Schema is the DDL the Postgres store expects.
const Schema = `
CREATE TABLE IF NOT EXISTS protection_plans (
	contract_id TEXT PRIMARY KEY,
	state       TEXT NOT NULL,
	version     BIGINT NOT NULL,
	data        JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS protection_plans_state ON protection_plans (state);

CREATE TABLE IF NOT EXISTS contracts (
	contract_id        TEXT PRIMARY KEY,
	client_id          TEXT NOT NULL DEFAULT '',
	current_balance    DOUBLE PRECISION NOT NULL,
	base_payment       DOUBLE PRECISION NOT NULL,
	remaining_term     INTEGER NOT NULL,
	monthly_rate       DOUBLE PRECISION NOT NULL,
	market             TEXT NOT NULL,
	contract_type      TEXT NOT NULL DEFAULT 'individual',
	group_fund_balance DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS protection_schedules (
	contract_id    TEXT NOT NULL,
	month          INTEGER NOT NULL,
	due_date       TEXT NOT NULL DEFAULT '',
	payment        DOUBLE PRECISION NOT NULL,
	principal      DOUBLE PRECISION NOT NULL,
	interest       DOUBLE PRECISION NOT NULL,
	balance        DOUBLE PRECISION NOT NULL,
	effective_date TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (contract_id, month)
);
`

// Postgres implements Plans, Contracts and Schedules on PostgreSQL.
type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

// Migrate creates the tables when missing.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, contractID string) (*model.Plan, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT data, version FROM protection_plans WHERE contract_id = $1", contractID)

	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plan %s: %w", contractID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan %s: %w", contractID, err)
	}
	return p, nil
}

func (s *Postgres) Save(ctx context.Context, plan *model.Plan) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("encode plan %s: %w", plan.ContractID, err)
	}

	var res sql.Result
	if plan.Version == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO protection_plans (contract_id, state, version, data, updated_at)
			VALUES ($1, $2, 1, $3, $4)
			ON CONFLICT (contract_id) DO NOTHING`,
			plan.ContractID, string(plan.State), data, s.now().UTC())
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE protection_plans
			SET state = $1, version = version + 1, data = $2, updated_at = $3
			WHERE contract_id = $4 AND version = $5`,
			string(plan.State), data, s.now().UTC(), plan.ContractID, plan.Version)
	}
	if err != nil {
		return fmt.Errorf("failed to persist plan %s: %w", plan.ContractID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to persist plan %s: %w", plan.ContractID, err)
	}
	if n == 0 {
		return fmt.Errorf("plan %s at version %d: %w", plan.ContractID, plan.Version, ErrVersionConflict)
	}
	plan.Version++
	return nil
}

func (s *Postgres) ListByState(ctx context.Context, states ...model.State) ([]*model.Plan, error) {
	names := make([]string, len(states))
	for i, st := range states {
		names[i] = string(st)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT data, version FROM protection_plans WHERE state = ANY($1) ORDER BY contract_id",
		pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var out []*model.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to list plans: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(row scanner) (*model.Plan, error) {
	var (
		data    []byte
		version int64
	)
	if err := row.Scan(&data, &version); err != nil {
		return nil, err
	}
	var p model.Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	p.Version = version
	return &p, nil
}

func (s *Postgres) Contract(ctx context.Context, contractID string) (model.ContractSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT contract_id, client_id, current_balance, base_payment, remaining_term,
		       monthly_rate, market, contract_type, group_fund_balance
		FROM contracts WHERE contract_id = $1`, contractID)

	var c model.ContractSnapshot
	err := row.Scan(&c.ContractID, &c.ClientID, &c.CurrentBalance, &c.BasePayment, &c.RemainingTerm,
		&c.MonthlyRate, &c.Market, &c.ContractType, &c.GroupFundBalance)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ContractSnapshot{}, fmt.Errorf("contract %s: %w", contractID, ErrNotFound)
	}
	if err != nil {
		return model.ContractSnapshot{}, fmt.Errorf("failed to get contract %s: %w", contractID, err)
	}
	return c, nil
}

func (s *Postgres) WriteSchedule(ctx context.Context, contractID, effectiveDate string, rows []model.ScheduleRow) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to write schedule %s: %w", contractID, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM protection_schedules WHERE contract_id = $1", contractID); err != nil {
		return fmt.Errorf("failed to clear schedule %s: %w", contractID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO protection_schedules
			(contract_id, month, due_date, payment, principal, interest, balance, effective_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
	if err != nil {
		return fmt.Errorf("failed to write schedule %s: %w", contractID, err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err = stmt.ExecContext(ctx, contractID, r.Month, r.DueDate, r.Payment, r.Principal, r.Interest, r.Balance, effectiveDate); err != nil {
			return fmt.Errorf("failed to write schedule %s month %d: %w", contractID, r.Month, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schedule %s: %w", contractID, err)
	}
	return nil
}
