package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"valuationcore/internal/valuation/model"
	"valuationcore/internal/valuation/money"
	"valuationcore/internal/valuation/verrors"
)

// ResultStore writes a security's valuation outcome in a single
// transaction: price_result, ordered calculation_steps, and a
// valuation_completed audit entry.
type ResultStore struct {
	DB *pgxpool.Pool
}

func NewResultStore(db *pgxpool.Pool) *ResultStore { return &ResultStore{DB: db} }

// WriteSuccess persists result, steps and an audit entry transactionally.
func (s *ResultStore) WriteSuccess(ctx context.Context, result model.PriceResult, steps []model.CalculationStep, curveSetup map[string]interface{}) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return verrors.StoreTransient("write valuation result", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO price_results (run_id, security_id, valuation_date, book_value, present_value,
			accrued_interest, fair_value, unrealized_gain_loss, currency, ifrs_level)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (run_id, security_id) DO UPDATE SET
			present_value = EXCLUDED.present_value, accrued_interest = EXCLUDED.accrued_interest,
			fair_value = EXCLUDED.fair_value, unrealized_gain_loss = EXCLUDED.unrealized_gain_loss`,
		result.RunID, result.SecurityID, result.ValuationDate, result.BookValue, money.RoundCurrency(result.PresentValue),
		money.RoundCurrency(result.AccruedInterest), money.RoundCurrency(result.FairValue), money.RoundCurrency(result.UnrealizedGainLoss), result.Currency, result.IFRSLevel)
	if err != nil {
		return verrors.StoreTransient("write price result", err)
	}

	for _, step := range steps {
		data, marshalErr := json.Marshal(step.Data)
		if marshalErr != nil {
			return marshalErr
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO calculation_steps (run_id, security_id, step_order, step_type, step_data)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (run_id, security_id, step_order) DO UPDATE SET step_data = EXCLUDED.step_data`,
			step.RunID, step.SecurityID, step.StepOrder, string(step.Type), data); err != nil {
			return verrors.StoreTransient("write calculation step", err)
		}
	}

	details, err := json.Marshal(curveSetup)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO audit_log_entries (id, run_id, security_id, action, details)
		VALUES ($1,$2,$3,'valuation_completed',$4)`,
		uuid.NewString(), result.RunID, result.SecurityID, details); err != nil {
		return verrors.StoreTransient("write audit log entry", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return verrors.StoreTransient("write valuation result", err)
	}
	return nil
}

// ListSteps returns a security's ordered calculation steps for a run.
func (s *ResultStore) ListSteps(ctx context.Context, runID, securityID string) ([]model.CalculationStep, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT step_order, step_type, step_data FROM calculation_steps
		WHERE run_id = $1 AND security_id = $2 ORDER BY step_order`, runID, securityID)
	if err != nil {
		return nil, verrors.StoreTransient("list calculation steps", err)
	}
	defer rows.Close()

	var steps []model.CalculationStep
	for rows.Next() {
		var step model.CalculationStep
		var stepType string
		var raw []byte
		if err := rows.Scan(&step.StepOrder, &stepType, &raw); err != nil {
			return nil, verrors.StoreTransient("list calculation steps", err)
		}
		step.RunID = runID
		step.SecurityID = securityID
		step.Type = model.StepType(stepType)
		if err := json.Unmarshal(raw, &step.Data); err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}
