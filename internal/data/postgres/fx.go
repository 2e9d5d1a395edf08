package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"valuationcore/internal/data"
	"valuationcore/internal/valuation/model"
	"valuationcore/internal/valuation/verrors"
)

// FXStore implements fxprovider.Store against fx_rates.
type FXStore struct {
	DB *pgxpool.Pool
}

func NewFXStore(db *pgxpool.Pool) *FXStore { return &FXStore{DB: db} }

func (s *FXStore) GetLatestFXRate(ctx context.Context, from, to string, asOf time.Time) (*model.FXRate, error) {
	var r model.FXRate
	err := s.DB.QueryRow(ctx, `
		SELECT from_currency, to_currency, rate_date, rate, source
		FROM fx_rates WHERE from_currency = $1 AND to_currency = $2 AND rate_date <= $3
		ORDER BY rate_date DESC LIMIT 1`, from, to, asOf).
		Scan(&r.FromCurrency, &r.ToCurrency, &r.RateDate, &r.Rate, &r.Source)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, verrors.StoreTransient("get fx rate", err)
	}
	return &r, nil
}

// SaveFXRate upserts on the (from, to, date) uniqueness constraint; a
// concurrent writer of the same key produces the same row — last write
// wins.
func (s *FXStore) SaveFXRate(ctx context.Context, r model.FXRate) error {
	_, err := data.ExecWithRetry(ctx, s.DB, "save fx rate", `
		INSERT INTO fx_rates (id, from_currency, to_currency, rate_date, rate, source)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (from_currency, to_currency, rate_date) DO UPDATE SET
			rate = EXCLUDED.rate, source = EXCLUDED.source`,
		uuid.NewString(), r.FromCurrency, r.ToCurrency, r.RateDate, r.Rate, r.Source)
	return err
}
