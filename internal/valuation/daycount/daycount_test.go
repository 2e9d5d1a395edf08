package daycount

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestYearFractionAct360(t *testing.T) {
	yf, err := YearFraction(date(2024, 1, 1), date(2024, 7, 1), Act360)
	require.NoError(t, err)
	assert.InDelta(t, 182.0/360.0, yf, 1e-9)
}

func TestYearFractionAct365(t *testing.T) {
	yf, err := YearFraction(date(2024, 1, 1), date(2025, 1, 1), Act365)
	require.NoError(t, err)
	assert.InDelta(t, 366.0/365.0, yf, 1e-9)
}

func TestYearFractionThirty360Bond(t *testing.T) {
	yf, err := YearFraction(date(2024, 1, 31), date(2024, 2, 28), Thirty360Bond)
	require.NoError(t, err)
	assert.InDelta(t, 28.0/360.0, yf, 1e-9)
}

func TestYearFractionThirty360E(t *testing.T) {
	yf, err := YearFraction(date(2024, 1, 31), date(2024, 2, 28), Thirty360E)
	require.NoError(t, err)
	assert.InDelta(t, 28.0/360.0, yf, 1e-9)
}

func TestYearFractionActActISDALeapSplit(t *testing.T) {
	yf, err := YearFraction(date(2023, 12, 1), date(2024, 2, 1), ActActISDA)
	require.NoError(t, err)
	leapDays := 31.0 // Dec 1 2023 -> Jan 1 2024
	nonLeapDenom := 365.0
	normalDays := 31.0 // Jan 1 2024 -> Feb 1 2024
	leapDenom := 366.0
	want := leapDays/nonLeapDenom + normalDays/leapDenom
	assert.InDelta(t, want, yf, 1e-9)
}

func TestYearFractionNegativeInterval(t *testing.T) {
	forward, err := YearFraction(date(2024, 1, 1), date(2024, 7, 1), Act360)
	require.NoError(t, err)
	backward, err := YearFraction(date(2024, 7, 1), date(2024, 1, 1), Act360)
	require.NoError(t, err)
	assert.InDelta(t, -forward, backward, 1e-12)
}

func TestYearFractionUnknownConvention(t *testing.T) {
	_, err := YearFraction(date(2024, 1, 1), date(2024, 7, 1), Convention("bogus"))
	assert.Error(t, err)
}

func TestYearFractionICMA(t *testing.T) {
	yf, err := YearFractionICMA(date(2024, 1, 1), date(2024, 7, 1), Semi)
	require.NoError(t, err)
	assert.InDelta(t, 182.0/(365.0/2.0), yf, 1e-9)

	_, err = YearFractionICMA(date(2024, 1, 1), date(2024, 7, 1), Zero)
	assert.Error(t, err)
}

func TestGenerateCouponDatesSemiAnnual(t *testing.T) {
	issue := date(2020, 1, 15)
	maturity := date(2023, 1, 15)
	dates := GenerateCouponDates(issue, time.Time{}, maturity, Semi)
	require.NotEmpty(t, dates)
	assert.Equal(t, maturity, dates[len(dates)-1])
	for i := 1; i < len(dates); i++ {
		assert.True(t, dates[i].After(dates[i-1]))
	}
}

func TestGenerateCouponDatesZeroFrequency(t *testing.T) {
	dates := GenerateCouponDates(date(2020, 1, 1), time.Time{}, date(2025, 1, 1), Zero)
	assert.Nil(t, dates)
}

func TestAccruedInterest(t *testing.T) {
	periodStart := date(2024, 1, 1)
	periodEnd := date(2024, 7, 1)
	settlement := date(2024, 4, 1)
	accrued, err := AccruedInterest(0.05, Semi, periodStart, periodEnd, settlement, Act360)
	require.NoError(t, err)
	assert.Greater(t, accrued, 0.0)
	assert.Less(t, accrued, 0.05/2.0)
}

func TestAccruedInterestZeroFrequency(t *testing.T) {
	accrued, err := AccruedInterest(0.05, Zero, date(2024, 1, 1), date(2024, 7, 1), date(2024, 4, 1), Act360)
	require.NoError(t, err)
	assert.Equal(t, 0.0, accrued)
}

func TestCouponPeriod(t *testing.T) {
	issue := date(2020, 1, 1)
	coupons := []time.Time{date(2020, 7, 1), date(2021, 1, 1), date(2021, 7, 1)}
	start, end, found := CouponPeriod(issue, coupons, date(2020, 3, 1))
	require.True(t, found)
	assert.Equal(t, issue, start)
	assert.Equal(t, coupons[0], end)

	_, _, found = CouponPeriod(issue, coupons, date(2022, 1, 1))
	assert.False(t, found)
}

func TestCouponPeriodOnCouponDateStartsNextPeriod(t *testing.T) {
	issue := date(2020, 1, 1)
	coupons := []time.Time{date(2020, 7, 1), date(2021, 1, 1), date(2021, 7, 1)}

	start, end, found := CouponPeriod(issue, coupons, coupons[0])
	require.True(t, found)
	assert.Equal(t, coupons[0], start)
	assert.Equal(t, coupons[1], end)

	accrued, err := AccruedInterest(0.05, Semi, start, end, coupons[0], Act360)
	require.NoError(t, err)
	assert.Equal(t, 0.0, accrued)

	_, _, found = CouponPeriod(issue, coupons, coupons[len(coupons)-1])
	assert.False(t, found)
}

func TestBusinessDayShiftSkipsWeekend(t *testing.T) {
	saturday := date(2024, 6, 1)
	shifted := BusinessDayShift(saturday)
	assert.Equal(t, time.Monday, shifted.Weekday())
}
