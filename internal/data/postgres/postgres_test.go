package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuationcore/internal/data"
	"valuationcore/internal/valuation/daycount"
	"valuationcore/internal/valuation/model"
)

func date(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func TestStoreSuite(t *testing.T) {
	conn, cleanup := data.InitTestConn(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("SecurityRoundTrip", func(t *testing.T) {
		testSecurityRoundTrip(t, conn, ctx)
	})
	t.Run("CashFlowListOrdering", func(t *testing.T) {
		testCashFlowListOrdering(t, conn, ctx)
	})
	t.Run("DiscountSpecUpsertAndDelete", func(t *testing.T) {
		testDiscountSpecUpsertAndDelete(t, conn, ctx)
	})
	t.Run("CurveSaveAndGetLatest", func(t *testing.T) {
		testCurveSaveAndGetLatest(t, conn, ctx)
	})
	t.Run("FXRateLastWriteWins", func(t *testing.T) {
		testFXRateLastWriteWins(t, conn, ctx)
	})
	t.Run("RunLifecycle", func(t *testing.T) {
		testRunLifecycle(t, conn, ctx)
	})
}

func testSecurityRoundTrip(t *testing.T, conn *data.Conn, ctx context.Context) {
	store := NewSecurityStore(conn.DB)
	sec := model.Security{
		ID:                 "00000000-0000-0000-0000-000000000001",
		Name:               "Test Bond",
		InstrumentType:     model.FixedCouponBond,
		Classification:     model.ClassificationBond,
		Currency:           "USD",
		DayCountConvention: daycount.Act365,
		CouponRate:         5.25,
		CouponFrequency:    daycount.Semi,
		IssueDate:          date("2023-01-01"),
		MaturityDate:       date("2028-01-01"),
		FaceValue:          1000,
	}
	require.NoError(t, store.InsertSecurity(ctx, sec))

	loaded, err := store.GetSecurity(ctx, sec.ID)
	require.NoError(t, err)
	assert.Equal(t, sec.Name, loaded.Name)
	assert.Equal(t, sec.CouponRate, loaded.CouponRate)
	assert.Equal(t, sec.InstrumentType, loaded.InstrumentType)
}

func testCashFlowListOrdering(t *testing.T, conn *data.Conn, ctx context.Context) {
	securities := NewSecurityStore(conn.DB)
	require.NoError(t, securities.InsertSecurity(ctx, model.Security{
		ID: "00000000-0000-0000-0000-000000000002", Name: "Flow Test", InstrumentType: model.ZeroCouponBond,
		Currency: "USD", MaturityDate: date("2030-01-01"), FaceValue: 100,
	}))

	flows := NewCashFlowStore(conn.DB)
	require.NoError(t, flows.RecordCashFlow(ctx, model.CashFlow{
		SecurityID: "00000000-0000-0000-0000-000000000002", FlowDate: date("2026-01-01"), Amount: 5, Type: model.FlowCoupon,
	}))
	require.NoError(t, flows.RecordCashFlow(ctx, model.CashFlow{
		SecurityID: "00000000-0000-0000-0000-000000000002", FlowDate: date("2025-01-01"), Amount: 5, Type: model.FlowCoupon,
	}))

	listed, err := flows.ListCashFlows(ctx, "00000000-0000-0000-0000-000000000002")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.True(t, listed[0].FlowDate.Before(listed[1].FlowDate))
}

func testDiscountSpecUpsertAndDelete(t *testing.T, conn *data.Conn, ctx context.Context) {
	store := NewDiscountSpecStore(conn.DB)
	securities := NewSecurityStore(conn.DB)
	require.NoError(t, securities.InsertSecurity(ctx, model.Security{
		ID: "00000000-0000-0000-0000-000000000003", Name: "Spec Test", InstrumentType: model.ZeroCouponBond,
		Currency: "USD", MaturityDate: date("2030-01-01"), FaceValue: 100,
	}))

	spec := model.DiscountSpec{
		SecurityID:         "00000000-0000-0000-0000-000000000003",
		BenchmarkCurveName: "US_Treasury",
		ManualSpreads:      map[string]float64{"5Y": 10},
	}
	require.NoError(t, store.UpsertDiscountSpec(ctx, spec))

	loaded, err := store.GetDiscountSpec(ctx, spec.SecurityID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "US_Treasury", loaded.BenchmarkCurveName)
	assert.Equal(t, 10.0, loaded.ManualSpreads["5Y"])

	require.NoError(t, store.DeleteDiscountSpec(ctx, spec.SecurityID))
	afterDelete, err := store.GetDiscountSpec(ctx, spec.SecurityID)
	require.NoError(t, err)
	assert.Nil(t, afterDelete)

	// idempotent
	require.NoError(t, store.DeleteDiscountSpec(ctx, spec.SecurityID))
}

func testCurveSaveAndGetLatest(t *testing.T, conn *data.Conn, ctx context.Context) {
	store := NewCurveStore(conn.DB)
	curveDate := date("2024-06-01")
	years := 5.0
	curve := model.Curve{
		Name:      "store-test-curve",
		CurveDate: curveDate,
		Source:    model.SourceManual,
		Currency:  "USD",
		Type:      model.CurveZero,
		Points: []model.CurvePoint{
			{TenorLabel: "5Y", Rate: 0.04, YearFraction: &years},
		},
	}
	require.NoError(t, store.SaveCurve(ctx, curve))

	loaded, err := store.GetLatestCurve(ctx, "store-test-curve", date("2024-12-01"))
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Len(t, loaded.Points, 1)
	assert.Equal(t, 0.04, loaded.Points[0].Rate)
}

func testFXRateLastWriteWins(t *testing.T, conn *data.Conn, ctx context.Context) {
	store := NewFXStore(conn.DB)
	rateDate := date("2024-06-01")
	require.NoError(t, store.SaveFXRate(ctx, model.FXRate{
		FromCurrency: "USD", ToCurrency: "EUR", RateDate: rateDate, Rate: 0.90, Source: "manual",
	}))
	require.NoError(t, store.SaveFXRate(ctx, model.FXRate{
		FromCurrency: "USD", ToCurrency: "EUR", RateDate: rateDate, Rate: 0.91, Source: "manual",
	}))

	loaded, err := store.GetLatestFXRate(ctx, "USD", "EUR", rateDate)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 0.91, loaded.Rate)
}

func testRunLifecycle(t *testing.T, conn *data.Conn, ctx context.Context) {
	store := NewRunStore(conn.DB)
	id, err := store.CreateRun(ctx, model.ValuationRun{
		RunType:         model.RunSecurity,
		TargetID:        "00000000-0000-0000-0000-000000000001",
		ValuationDate:   date("2024-06-01"),
		TotalSecurities: 1,
		StartedAt:       time.Now(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, store.UpdateProgress(ctx, id, 1, 1))

	require.NoError(t, store.Complete(ctx, id, model.RunCompleted, ""))

	run, err := store.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run.Status)
	assert.Equal(t, 100, run.Progress)
}
