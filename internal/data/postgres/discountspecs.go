package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"valuationcore/internal/data"
	"valuationcore/internal/valuation/model"
	"valuationcore/internal/valuation/verrors"
)

// DiscountSpecStore implements the discount spec storage contract.
type DiscountSpecStore struct {
	DB *pgxpool.Pool
}

func NewDiscountSpecStore(db *pgxpool.Pool) *DiscountSpecStore { return &DiscountSpecStore{DB: db} }

// GetDiscountSpec returns (nil, nil) when the security has no discount
// specification on file; callers treat an absent spec as a valid state.
func (s *DiscountSpecStore) GetDiscountSpec(ctx context.Context, securityID string) (*model.DiscountSpec, error) {
	var spreadCurveName *string
	var manualSpreadsRaw []byte
	var spec model.DiscountSpec

	err := s.DB.QueryRow(ctx, `
		SELECT security_id, benchmark_curve_name, spread_curve_name, manual_spreads,
			standing_spread_z, standing_spread_g, standing_spread_cds, standing_spread_liquidity, ifrs_level
		FROM discount_specs WHERE security_id = $1`, securityID).Scan(
		&spec.SecurityID, &spec.BenchmarkCurveName, &spreadCurveName, &manualSpreadsRaw,
		&spec.Standing.Z, &spec.Standing.G, &spec.Standing.CDS, &spec.Standing.Liquidity, &spec.IFRSLevel)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, verrors.StoreTransient("get discount spec", err)
	}

	if spreadCurveName != nil {
		spec.SpreadCurveName = *spreadCurveName
	}
	if err := json.Unmarshal(orEmpty(manualSpreadsRaw), &spec.ManualSpreads); err != nil {
		return nil, err
	}
	return &spec, nil
}

// UpsertDiscountSpec inserts or replaces a security's spec (at most one per
// security, enforced by the table's primary key).
func (s *DiscountSpecStore) UpsertDiscountSpec(ctx context.Context, spec model.DiscountSpec) error {
	manualSpreads, _ := json.Marshal(spec.ManualSpreads)
	_, err := data.ExecWithRetry(ctx, s.DB, "upsert discount spec", `
		INSERT INTO discount_specs (security_id, benchmark_curve_name, spread_curve_name, manual_spreads,
			standing_spread_z, standing_spread_g, standing_spread_cds, standing_spread_liquidity, ifrs_level)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (security_id) DO UPDATE SET
			benchmark_curve_name = EXCLUDED.benchmark_curve_name,
			spread_curve_name = EXCLUDED.spread_curve_name,
			manual_spreads = EXCLUDED.manual_spreads,
			standing_spread_z = EXCLUDED.standing_spread_z,
			standing_spread_g = EXCLUDED.standing_spread_g,
			standing_spread_cds = EXCLUDED.standing_spread_cds,
			standing_spread_liquidity = EXCLUDED.standing_spread_liquidity,
			ifrs_level = EXCLUDED.ifrs_level`,
		spec.SecurityID, spec.BenchmarkCurveName, nullableString(spec.SpreadCurveName), manualSpreads,
		spec.Standing.Z, spec.Standing.G, spec.Standing.CDS, spec.Standing.Liquidity, spec.IFRSLevel)
	return err
}

// DeleteDiscountSpec is idempotent: deleting an already-absent spec is not an error.
func (s *DiscountSpecStore) DeleteDiscountSpec(ctx context.Context, securityID string) error {
	_, err := data.ExecWithRetry(ctx, s.DB, "delete discount spec", `DELETE FROM discount_specs WHERE security_id = $1`, securityID)
	return err
}
