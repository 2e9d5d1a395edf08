package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"valuationcore/internal/valuation/model"
	"valuationcore/internal/valuation/verrors"
)

// CurveStore implements curveprovider.Store against curves/curve_points.
type CurveStore struct {
	DB *pgxpool.Pool
}

func NewCurveStore(db *pgxpool.Pool) *CurveStore { return &CurveStore{DB: db} }

// GetLatestCurve returns the newest curve row for name with curve_date <=
// asOf, with its points ordered by year fraction, or (nil, nil) if none
// exists.
func (s *CurveStore) GetLatestCurve(ctx context.Context, name string, asOf time.Time) (*model.Curve, error) {
	var c model.Curve
	var source, curveType string
	err := s.DB.QueryRow(ctx, `
		SELECT id, name, curve_date, source, currency, curve_type
		FROM curves WHERE name = $1 AND curve_date <= $2
		ORDER BY curve_date DESC LIMIT 1`, name, asOf).
		Scan(&c.ID, &c.Name, &c.CurveDate, &source, &c.Currency, &curveType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, verrors.StoreTransient("get latest curve", err)
	}
	c.Source = model.CurveSource(source)
	c.Type = model.CurveType(curveType)

	rows, err := s.DB.Query(ctx, `
		SELECT tenor_label, rate, year_fraction, maturity_date
		FROM curve_points WHERE curve_id = $1 ORDER BY year_fraction`, c.ID)
	if err != nil {
		return nil, verrors.StoreTransient("get curve points", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p model.CurvePoint
		var tenorLabel *string
		var yearFraction *float64
		var maturityDate *time.Time
		if err := rows.Scan(&tenorLabel, &p.Rate, &yearFraction, &maturityDate); err != nil {
			return nil, verrors.StoreTransient("get curve points", err)
		}
		if tenorLabel != nil {
			p.TenorLabel = *tenorLabel
		}
		p.YearFraction = yearFraction
		p.MaturityDate = maturityDate
		c.Points = append(c.Points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, verrors.StoreTransient("get curve points", err)
	}

	return &c, nil
}

// SaveCurve upserts a curve and replaces its point set transactionally,
// keyed on (name, curve_date, source): an existing row for the key keeps
// its id, otherwise a new row is inserted. The key has no unique
// constraint, so two transactions that both find no row each insert one.
func (s *CurveStore) SaveCurve(ctx context.Context, c model.Curve) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return verrors.StoreTransient("save curve", err)
	}
	defer tx.Rollback(ctx)

	id := c.ID
	if id == "" {
		id = uuid.NewString()
	}

	var existingID string
	err = tx.QueryRow(ctx, `
		SELECT id FROM curves WHERE name = $1 AND curve_date = $2 AND source = $3
		LIMIT 1`, c.Name, c.CurveDate, string(c.Source)).Scan(&existingID)
	switch {
	case err == nil:
		id = existingID
		_, err = tx.Exec(ctx, `UPDATE curves SET currency = $2, curve_type = $3 WHERE id = $1`,
			id, c.Currency, string(c.Type))
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx, `
			INSERT INTO curves (id, name, curve_date, source, currency, curve_type)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			id, c.Name, c.CurveDate, string(c.Source), c.Currency, string(c.Type))
	}
	if err != nil {
		return verrors.StoreTransient("save curve", err)
	}

	// Existing rows for this exact (name, date, source) are replaced wholesale
	// so a re-fetched curve never carries stale points from a prior fetch.
	if _, err := tx.Exec(ctx, `DELETE FROM curve_points WHERE curve_id = $1`, id); err != nil {
		return verrors.StoreTransient("save curve points", err)
	}

	for _, p := range c.Points {
		pointID := uuid.NewString()
		if _, err := tx.Exec(ctx, `
			INSERT INTO curve_points (id, curve_id, tenor_label, rate, year_fraction, maturity_date)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			pointID, id, nullableString(p.TenorLabel), p.Rate, p.YearFraction, p.MaturityDate); err != nil {
			return verrors.StoreTransient("save curve points", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return verrors.StoreTransient("save curve", err)
	}
	return nil
}
