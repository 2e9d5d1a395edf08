package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"valuationcore/internal/data"
	"valuationcore/internal/valuation/model"
	"valuationcore/internal/valuation/verrors"
)

// RunStore owns the valuation_runs table. Only the orchestrator's progress
// updater writes to a given run's row, so concurrent updates never race.
type RunStore struct {
	DB *pgxpool.Pool
}

func NewRunStore(db *pgxpool.Pool) *RunStore { return &RunStore{DB: db} }

// CreateRun inserts a new run in status=running with the given total.
func (s *RunStore) CreateRun(ctx context.Context, run model.ValuationRun) (string, error) {
	id := run.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := data.ExecWithRetry(ctx, s.DB, "create run", `
		INSERT INTO valuation_runs (id, run_type, target_id, valuation_date, status, progress,
			total_securities, completed_securities, started_at, created_by)
		VALUES ($1,$2,$3,$4,'running',0,$5,0,$6,$7)`,
		id, string(run.RunType), run.TargetID, run.ValuationDate, run.TotalSecurities, run.StartedAt, nullableString(run.CreatedBy))
	if err != nil {
		return "", err
	}
	return id, nil
}

// UpdateProgress recomputes progress = round(100*completed/total) and
// advances completed_securities.
func (s *RunStore) UpdateProgress(ctx context.Context, runID string, completed, total int) error {
	progress := 0
	if total > 0 {
		progress = int(float64(completed) * 100.0 / float64(total) + 0.5)
	}
	_, err := data.ExecWithRetry(ctx, s.DB, "update run progress", `
		UPDATE valuation_runs SET progress = $2, completed_securities = $3 WHERE id = $1`,
		runID, progress, completed)
	return err
}

// Complete transitions the run to a terminal status and sets completed_at.
func (s *RunStore) Complete(ctx context.Context, runID string, status model.RunStatus, errorMessage string) error {
	now := time.Now()
	_, err := data.ExecWithRetry(ctx, s.DB, "complete run", `
		UPDATE valuation_runs SET status = $2, completed_at = $3, error_message = $4 WHERE id = $1`,
		runID, string(status), now, nullableString(errorMessage))
	return err
}

func (s *RunStore) GetRun(ctx context.Context, runID string) (model.ValuationRun, error) {
	var run model.ValuationRun
	var status, runType string
	var createdBy, errorMessage *string
	err := s.DB.QueryRow(ctx, `
		SELECT id, run_type, target_id, valuation_date, status, progress, total_securities,
			completed_securities, started_at, completed_at, error_message, created_by
		FROM valuation_runs WHERE id = $1`, runID).
		Scan(&run.ID, &runType, &run.TargetID, &run.ValuationDate, &status, &run.Progress,
			&run.TotalSecurities, &run.CompletedSecurities, &run.StartedAt, &run.CompletedAt, &errorMessage, &createdBy)
	if err != nil {
		return model.ValuationRun{}, verrors.NotFound("run %q not found", runID)
	}
	run.RunType = model.RunType(runType)
	run.Status = model.RunStatus(status)
	if errorMessage != nil {
		run.ErrorMessage = *errorMessage
	}
	if createdBy != nil {
		run.CreatedBy = *createdBy
	}
	return run, nil
}
