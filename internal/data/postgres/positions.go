package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"valuationcore/internal/valuation/verrors"
)

// PositionStore resolves orchestrator run targets to security id sets.
type PositionStore struct {
	DB *pgxpool.Pool
}

func NewPositionStore(db *pgxpool.Pool) *PositionStore { return &PositionStore{DB: db} }

// ExpandSecurity is the identity expansion for a run_type=security target.
func (p *PositionStore) ExpandSecurity(targetID string) []string {
	return []string{targetID}
}

// ExpandPortfolio returns the distinct security ids of active positions in
// the portfolio's asset classes.
func (p *PositionStore) ExpandPortfolio(ctx context.Context, portfolioID string) ([]string, error) {
	rows, err := p.DB.Query(ctx, `
		SELECT DISTINCT pos.security_id
		FROM positions pos
		JOIN portfolios pf ON pos.asset_class = ANY(pf.asset_classes)
		WHERE pf.id = $1 AND pos.status = 'active'`, portfolioID)
	if err != nil {
		return nil, verrors.StoreTransient("expand portfolio", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, verrors.StoreTransient("expand portfolio", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ExpandFund returns the distinct security ids of active positions across
// every portfolio belonging to the fund.
func (p *PositionStore) ExpandFund(ctx context.Context, fundID string) ([]string, error) {
	rows, err := p.DB.Query(ctx, `
		SELECT DISTINCT pos.security_id
		FROM positions pos
		JOIN portfolios pf ON pos.asset_class = ANY(pf.asset_classes)
		JOIN fund_portfolios fp ON fp.portfolio_id = pf.id
		WHERE fp.fund_id = $1 AND pos.status = 'active'`, fundID)
	if err != nil {
		return nil, verrors.StoreTransient("expand fund", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, verrors.StoreTransient("expand fund", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetBookValue returns the most recent active position's book value for a
// security, or nil if there is no active position.
func (p *PositionStore) GetBookValue(ctx context.Context, securityID string) (*float64, error) {
	var bookValue *float64
	err := p.DB.QueryRow(ctx, `
		SELECT book_value FROM positions
		WHERE security_id = $1 AND status = 'active'
		ORDER BY acquisition_date DESC NULLS LAST LIMIT 1`, securityID).Scan(&bookValue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, verrors.StoreTransient("get book value", err)
	}
	return bookValue, nil
}
