// Package postgres implements the valuation core's store interfaces
// (C3/C4/C6/C8/C9) against a pgxpool.Pool, using the pgx/v4 client and
// the retry helper in internal/data.
package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"valuationcore/internal/data"
	"valuationcore/internal/valuation/daycount"
	"valuationcore/internal/valuation/model"
	"valuationcore/internal/valuation/verrors"
)

// SecurityStore persists and loads Security records.
type SecurityStore struct {
	DB *pgxpool.Pool
}

func NewSecurityStore(db *pgxpool.Pool) *SecurityStore { return &SecurityStore{DB: db} }

type securityRow struct {
	ID                    string
	Name                  string
	ExternalIDs           []byte
	InstrumentType        string
	Classification        string
	Currency              string
	DayCountConvention    string
	CouponRate            float64
	CouponFrequency       string
	IssueDate             *time.Time
	FirstCouponDate       *time.Time
	MaturityDate          time.Time
	FaceValue             float64
	AmortizationSchedule  []byte
	StepSchedule          []byte
	ReferenceRateName     *string
	SpreadOverReference   *float64
	RateFloor             *float64
	RateCap               *float64
	ResetFrequency        *string
	InflationIndexName    *string
	InflationBaseValue    *float64
	IndexLagMonths        *int
	IndexRatios           []byte
	Callable              bool
	CallSchedule          []byte
	Puttable              bool
	PutSchedule           []byte
}

const securityColumns = `id, name, external_ids, instrument_type, classification, currency,
	day_count_convention, coupon_rate, coupon_frequency, issue_date, first_coupon_date,
	maturity_date, face_value, amortization_schedule, step_schedule, reference_rate_name,
	spread_over_reference, rate_floor, rate_cap, reset_frequency, inflation_index_name,
	inflation_base_value, index_lag_months, index_ratios, callable, call_schedule,
	puttable, put_schedule`

// GetSecurity loads a single security by id.
func (s *SecurityStore) GetSecurity(ctx context.Context, securityID string) (model.Security, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+securityColumns+` FROM securities WHERE id = $1`, securityID)

	var r securityRow
	err := row.Scan(&r.ID, &r.Name, &r.ExternalIDs, &r.InstrumentType, &r.Classification, &r.Currency,
		&r.DayCountConvention, &r.CouponRate, &r.CouponFrequency, &r.IssueDate, &r.FirstCouponDate,
		&r.MaturityDate, &r.FaceValue, &r.AmortizationSchedule, &r.StepSchedule, &r.ReferenceRateName,
		&r.SpreadOverReference, &r.RateFloor, &r.RateCap, &r.ResetFrequency, &r.InflationIndexName,
		&r.InflationBaseValue, &r.IndexLagMonths, &r.IndexRatios, &r.Callable, &r.CallSchedule,
		&r.Puttable, &r.PutSchedule)
	if err != nil {
		if data.QueryRetryable(err) {
			return model.Security{}, verrors.StoreTransient("get security", err)
		}
		return model.Security{}, verrors.NotFound("security %q not found", securityID)
	}

	return rowToSecurity(r)
}

func rowToSecurity(r securityRow) (model.Security, error) {
	sec := model.Security{
		ID:                 r.ID,
		Name:               r.Name,
		InstrumentType:     model.InstrumentType(r.InstrumentType),
		Classification:     model.Classification(r.Classification),
		Currency:           r.Currency,
		DayCountConvention: daycount.Convention(r.DayCountConvention),
		CouponRate:         r.CouponRate,
		CouponFrequency:    daycount.Frequency(r.CouponFrequency),
		MaturityDate:       r.MaturityDate,
		FaceValue:          r.FaceValue,
		Callable:           r.Callable,
		Puttable:           r.Puttable,
	}
	if r.IssueDate != nil {
		sec.IssueDate = *r.IssueDate
	}
	if r.FirstCouponDate != nil {
		sec.FirstCouponDate = *r.FirstCouponDate
	}
	if r.ReferenceRateName != nil {
		sec.ReferenceRateName = *r.ReferenceRateName
	}
	if r.SpreadOverReference != nil {
		sec.SpreadOverReference = *r.SpreadOverReference
	}
	sec.RateFloor = r.RateFloor
	sec.RateCap = r.RateCap
	if r.ResetFrequency != nil {
		sec.ResetFrequency = daycount.Frequency(*r.ResetFrequency)
	}
	if r.InflationIndexName != nil {
		sec.InflationIndexName = *r.InflationIndexName
	}
	if r.InflationBaseValue != nil {
		sec.InflationBaseValue = *r.InflationBaseValue
	}
	if r.IndexLagMonths != nil {
		sec.IndexLagMonths = *r.IndexLagMonths
	}

	if err := json.Unmarshal(orEmpty(r.ExternalIDs), &sec.ExternalIDs); err != nil {
		return model.Security{}, err
	}
	if err := json.Unmarshal(orEmptyArray(r.AmortizationSchedule), &sec.AmortizationSchedule); err != nil {
		return model.Security{}, err
	}
	if err := json.Unmarshal(orEmptyArray(r.StepSchedule), &sec.StepSchedule); err != nil {
		return model.Security{}, err
	}
	if err := json.Unmarshal(orEmpty(r.IndexRatios), &sec.IndexRatios); err != nil {
		return model.Security{}, err
	}
	if err := json.Unmarshal(orEmptyArray(r.CallSchedule), &sec.CallSchedule); err != nil {
		return model.Security{}, err
	}
	if err := json.Unmarshal(orEmptyArray(r.PutSchedule), &sec.PutSchedule); err != nil {
		return model.Security{}, err
	}

	return sec, nil
}

func orEmpty(b []byte) []byte {
	if len(b) == 0 {
		return []byte("{}")
	}
	return b
}

func orEmptyArray(b []byte) []byte {
	if len(b) == 0 {
		return []byte("[]")
	}
	return b
}

// InsertSecurity is used by tests and seed tooling to populate a security.
func (s *SecurityStore) InsertSecurity(ctx context.Context, sec model.Security) error {
	externalIDs, _ := json.Marshal(sec.ExternalIDs)
	amortization, _ := json.Marshal(sec.AmortizationSchedule)
	stepSchedule, _ := json.Marshal(sec.StepSchedule)
	indexRatios, _ := json.Marshal(sec.IndexRatios)
	callSchedule, _ := json.Marshal(sec.CallSchedule)
	putSchedule, _ := json.Marshal(sec.PutSchedule)

	id := sec.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err := data.ExecWithRetry(ctx, s.DB, "insert security", `
		INSERT INTO securities (id, name, external_ids, instrument_type, classification, currency,
			day_count_convention, coupon_rate, coupon_frequency, issue_date, first_coupon_date,
			maturity_date, face_value, amortization_schedule, step_schedule, reference_rate_name,
			spread_over_reference, rate_floor, rate_cap, reset_frequency, inflation_index_name,
			inflation_base_value, index_lag_months, index_ratios, callable, call_schedule,
			puttable, put_schedule)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)
		ON CONFLICT (id) DO NOTHING`,
		id, sec.Name, externalIDs, string(sec.InstrumentType), string(sec.Classification), sec.Currency,
		string(sec.DayCountConvention), sec.CouponRate, string(sec.CouponFrequency), nullableDate(sec.IssueDate), nullableDate(sec.FirstCouponDate),
		sec.MaturityDate, sec.FaceValue, amortization, stepSchedule, nullableString(sec.ReferenceRateName),
		nullableFloat(sec.SpreadOverReference), sec.RateFloor, sec.RateCap, nullableString(string(sec.ResetFrequency)),
		nullableString(sec.InflationIndexName), nullableFloat(sec.InflationBaseValue), nullableInt(sec.IndexLagMonths),
		indexRatios, sec.Callable, callSchedule, sec.Puttable, putSchedule)
	return err
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableFloat(f float64) *float64 {
	if f == 0 {
		return nil
	}
	return &f
}

func nullableInt(i int) *int {
	if i == 0 {
		return nil
	}
	return &i
}

func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
