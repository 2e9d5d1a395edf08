package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"valuationcore/internal/data"
	"valuationcore/internal/valuation/model"
	"valuationcore/internal/valuation/verrors"
)

// CashFlowStore loads/persists the realized/defaulted flows that cash-flow
// projection merges with each engine's generated projection.
type CashFlowStore struct {
	DB *pgxpool.Pool
}

func NewCashFlowStore(db *pgxpool.Pool) *CashFlowStore { return &CashFlowStore{DB: db} }

func (s *CashFlowStore) ListCashFlows(ctx context.Context, securityID string) ([]model.CashFlow, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, security_id, flow_date, amount, flow_type, is_realized, is_defaulted,
			default_date, recovery_amount, payment_status
		FROM cash_flows WHERE security_id = $1 ORDER BY flow_date`, securityID)
	if err != nil {
		return nil, verrors.StoreTransient("list cash flows", err)
	}
	defer rows.Close()

	var flows []model.CashFlow
	for rows.Next() {
		var f model.CashFlow
		var flowType, paymentStatus string
		if err := rows.Scan(&f.ID, &f.SecurityID, &f.FlowDate, &f.Amount, &flowType, &f.IsRealized,
			&f.IsDefaulted, &f.DefaultDate, &f.RecoveryAmount, &paymentStatus); err != nil {
			return nil, verrors.StoreTransient("list cash flows", err)
		}
		f.Type = model.FlowType(flowType)
		f.PaymentStatus = model.PaymentStatus(paymentStatus)
		flows = append(flows, f)
	}
	return flows, rows.Err()
}

// RecordCashFlow persists a realized or defaulted flow (e.g. recorded by the
// CRUD surface out of this core's scope, but exercised directly by tests).
func (s *CashFlowStore) RecordCashFlow(ctx context.Context, f model.CashFlow) error {
	id := f.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := data.ExecWithRetry(ctx, s.DB, "insert cash flow", `
		INSERT INTO cash_flows (id, security_id, flow_date, amount, flow_type, is_realized,
			is_defaulted, default_date, recovery_amount, payment_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO NOTHING`,
		id, f.SecurityID, f.FlowDate, f.Amount, string(f.Type), f.IsRealized,
		f.IsDefaulted, f.DefaultDate, f.RecoveryAmount, string(f.PaymentStatus))
	return err
}
