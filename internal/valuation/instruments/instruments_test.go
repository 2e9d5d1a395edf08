package instruments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuationcore/internal/valuation/daycount"
	"valuationcore/internal/valuation/model"
)

func date(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func TestProjectFixedCouponBond(t *testing.T) {
	sec := model.Security{
		ID:                 "sec-1",
		InstrumentType:     model.FixedCouponBond,
		Classification:     model.ClassificationBond,
		CouponRate:         5.0,
		CouponFrequency:    daycount.Semi,
		IssueDate:          date("2023-01-01"),
		MaturityDate:       date("2025-01-01"),
		FaceValue:          1000,
		DayCountConvention: daycount.Act365,
	}
	flows, err := Project(sec, date("2023-06-01"))
	require.NoError(t, err)
	require.NotEmpty(t, flows)

	last := flows[len(flows)-1]
	assert.Equal(t, model.FlowRedemption, last.Type)
	assert.Equal(t, 1000.0, last.Amount)
	assert.True(t, last.FlowDate.Equal(sec.MaturityDate))

	for _, f := range flows[:len(flows)-1] {
		assert.Equal(t, model.FlowCoupon, f.Type)
		assert.InDelta(t, 25.0, f.Amount, 1e-9) // 5% * 1000 / (100*2)
	}
}

func TestProjectFixedCouponRealizedVsProjected(t *testing.T) {
	sec := model.Security{
		ID:              "sec-2",
		InstrumentType:  model.FixedCouponBond,
		CouponRate:      4.0,
		CouponFrequency: daycount.Annual,
		IssueDate:       date("2020-01-01"),
		MaturityDate:    date("2023-01-01"),
		FaceValue:       100,
	}
	flows, err := Project(sec, date("2022-01-01"))
	require.NoError(t, err)

	var sawRealized, sawProjected bool
	for _, f := range flows {
		if f.IsRealized {
			sawRealized = true
			assert.Equal(t, model.PaymentPaid, f.PaymentStatus)
		} else {
			sawProjected = true
			assert.Equal(t, model.PaymentProjected, f.PaymentStatus)
		}
	}
	assert.True(t, sawRealized)
	assert.True(t, sawProjected)
}

func TestProjectZeroCouponBond(t *testing.T) {
	sec := model.Security{
		ID:             "sec-3",
		InstrumentType: model.ZeroCouponBond,
		MaturityDate:   date("2030-01-01"),
		FaceValue:      500,
	}
	flows, err := Project(sec, date("2024-01-01"))
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, model.FlowRedemption, flows[0].Type)
	assert.Equal(t, 500.0, flows[0].Amount)
}

func TestProjectFloatingRateClampsToFloorAndCap(t *testing.T) {
	floor := 1.0
	cap := 3.0
	sec := model.Security{
		ID:                    "sec-4",
		InstrumentType:        model.FloatingRateBond,
		CouponFrequency:       daycount.Quarterly,
		ReferenceRateSnapshot: 10.0,
		SpreadOverReference:   0.5,
		RateFloor:             &floor,
		RateCap:               &cap,
		IssueDate:             date("2023-01-01"),
		MaturityDate:          date("2024-01-01"),
		FaceValue:             1000,
	}
	flows, err := Project(sec, date("2023-01-01"))
	require.NoError(t, err)
	require.NotEmpty(t, flows)

	for _, f := range flows {
		if f.Type == model.FlowCoupon {
			assert.InDelta(t, 3.0*1000/(100.0*4), f.Amount, 1e-9)
		}
	}
}

func TestProjectInflationLinkedScalesNotional(t *testing.T) {
	sec := model.Security{
		ID:              "sec-5",
		InstrumentType:  model.InflationLinked,
		CouponRate:      2.0,
		CouponFrequency: daycount.Annual,
		IssueDate:       date("2022-01-01"),
		MaturityDate:    date("2024-01-01"),
		FaceValue:       1000,
		IndexRatios: map[string]float64{
			"2022-06-01": 1.05,
			"2023-06-01": 1.10,
		},
	}
	flows, err := Project(sec, date("2022-01-01"))
	require.NoError(t, err)

	last := flows[len(flows)-1]
	assert.Equal(t, model.FlowRedemption, last.Type)
	assert.InDelta(t, 1100.0, last.Amount, 1e-9) // 1000 * 1.10
}

func TestProjectStepUpAppliesScheduledCoupon(t *testing.T) {
	sec := model.Security{
		ID:              "sec-6",
		InstrumentType:  model.StepUpBond,
		CouponRate:      3.0,
		CouponFrequency: daycount.Annual,
		IssueDate:       date("2020-01-01"),
		MaturityDate:    date("2024-01-01"),
		FaceValue:       1000,
		StepSchedule: []model.StepScheduleEntry{
			{EffectiveDate: date("2022-01-01"), NewCoupon: 5.0},
		},
	}
	flows, err := Project(sec, date("2020-01-01"))
	require.NoError(t, err)

	var sawStepped bool
	for _, f := range flows {
		if f.Type == model.FlowCoupon && f.FlowDate.After(date("2022-01-01")) {
			assert.InDelta(t, 50.0, f.Amount, 1e-9)
			sawStepped = true
		}
	}
	assert.True(t, sawStepped)
}

func TestProjectLoanUsesExplicitAmortizationSchedule(t *testing.T) {
	sec := model.Security{
		ID:             "sec-7",
		Classification: model.ClassificationLoan,
		InstrumentType: model.AmortizingLoan,
		FaceValue:      1000,
		AmortizationSchedule: []model.AmortizationRow{
			{Date: date("2024-01-01"), PrincipalPayment: 100, InterestPayment: 10},
			{Date: date("2024-07-01"), PrincipalPayment: 100, InterestPayment: 8},
		},
	}
	flows, err := Project(sec, date("2024-01-01"))
	require.NoError(t, err)
	require.Len(t, flows, 2)
	assert.Equal(t, model.FlowPrincipal, flows[0].Type)
	assert.InDelta(t, 110.0, flows[0].Amount, 1e-9)
}

func TestProjectLoanGeneratesEqualPrincipalWithoutSchedule(t *testing.T) {
	sec := model.Security{
		ID:              "sec-8",
		Classification:  model.ClassificationLoan,
		InstrumentType:  model.TermLoan,
		CouponRate:      6.0,
		CouponFrequency: daycount.Quarterly,
		IssueDate:       date("2023-01-01"),
		MaturityDate:    date("2024-01-01"),
		FaceValue:       4000,
	}
	flows, err := Project(sec, date("2023-01-01"))
	require.NoError(t, err)
	require.NotEmpty(t, flows)

	var totalPrincipal float64
	for _, f := range flows {
		if f.Type == model.FlowPrincipal {
			totalPrincipal += f.Amount
		}
	}
	assert.InDelta(t, 4000.0, totalPrincipal, 1e-6)
}

func TestProjectLoanClassificationOverridesInstrumentType(t *testing.T) {
	sec := model.Security{
		ID:             "sec-9",
		Classification: model.ClassificationLoan,
		InstrumentType: model.FixedCouponBond, // deliberately mismatched
		FaceValue:      1000,
		AmortizationSchedule: []model.AmortizationRow{
			{Date: date("2024-01-01"), PrincipalPayment: 1000, InterestPayment: 0},
		},
	}
	flows, err := Project(sec, date("2024-01-01"))
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, model.FlowPrincipal, flows[0].Type)
}

func TestProjectUnsupportedInstrumentType(t *testing.T) {
	sec := model.Security{ID: "sec-10", InstrumentType: model.InstrumentType("unknown")}
	_, err := Project(sec, date("2024-01-01"))
	require.Error(t, err)
}

func TestProjectSyntheticFixedCouponMatchesFixedCouponEngine(t *testing.T) {
	sec := model.Security{
		ID:              "sec-11",
		InstrumentType:  model.ZeroCouponBond,
		CouponRate:      4.0,
		CouponFrequency: daycount.Semi,
		IssueDate:       date("2023-01-01"),
		MaturityDate:    date("2025-01-01"),
		FaceValue:       1000,
	}
	synthetic, err := ProjectSyntheticFixedCoupon(sec, date("2023-01-01"))
	require.NoError(t, err)
	assert.NotEmpty(t, synthetic)
	assert.Equal(t, model.FlowRedemption, synthetic[len(synthetic)-1].Type)
	fixed, err := projectFixedCoupon(sec, date("2023-01-01"))
	require.NoError(t, err)
	assert.Equal(t, fixed, synthetic)
}
