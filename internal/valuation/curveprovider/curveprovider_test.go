package curveprovider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuationcore/internal/valuation/model"
	"valuationcore/internal/valuation/verrors"
)

type fakeStore struct {
	curves map[string]model.Curve
	saved  []model.Curve
}

func (f *fakeStore) GetLatestCurve(ctx context.Context, name string, asOf time.Time) (*model.Curve, error) {
	c, ok := f.curves[name]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeStore) SaveCurve(ctx context.Context, c model.Curve) error {
	f.saved = append(f.saved, c)
	return nil
}

type fakeExternal struct {
	fetched map[string]*model.Curve
	err     error
}

func (f *fakeExternal) Fetch(ctx context.Context, name string, asOf time.Time) (*model.Curve, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.fetched[name], nil
}

func yearPoint(label string, years, rate float64) model.CurvePoint {
	y := years
	return model.CurvePoint{TenorLabel: label, Rate: rate, YearFraction: &y}
}

func TestLoadCompositeBenchmarkOnly(t *testing.T) {
	asOf := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{curves: map[string]model.Curve{
		"US_Treasury": {
			Name:      "US_Treasury",
			CurveDate: asOf,
			Points: []model.CurvePoint{
				yearPoint("1Y", 1, 0.04),
				yearPoint("5Y", 5, 0.045),
			},
		},
	}}

	points, err := LoadComposite(context.Background(), store, nil, nil, 24*time.Hour, "US_Treasury", "", asOf, nil)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 0.04, points[0].Rate)
	assert.Equal(t, 0.0, points[0].Components.SpreadRate)
}

func TestLoadCompositeWithSpreadAndManualOverride(t *testing.T) {
	asOf := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{curves: map[string]model.Curve{
		"US_Treasury": {
			Name:      "US_Treasury",
			CurveDate: asOf,
			Points:    []model.CurvePoint{yearPoint("5Y", 5, 0.04)},
		},
		"US_Corporate_Spread": {
			Name:      "US_Corporate_Spread",
			CurveDate: asOf,
			Points:    []model.CurvePoint{yearPoint("5Y", 5, 0.01)},
		},
	}}

	manual := map[string]float64{"5Y": 25} // 25bps
	points, err := LoadComposite(context.Background(), store, nil, nil, 24*time.Hour, "US_Treasury", "US_Corporate_Spread", asOf, manual)
	require.NoError(t, err)
	require.Len(t, points, 1)

	assert.InDelta(t, 0.04+0.01+0.0025, points[0].Rate, 1e-9)
	assert.InDelta(t, 0.01+0.0025, points[0].Components.SpreadRate, 1e-9)
}

func TestLoadCompositeFallsBackToExternalOnStaleCache(t *testing.T) {
	asOf := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	stale := model.Curve{
		Name:      "US_Treasury",
		CurveDate: asOf.AddDate(-1, 0, 0),
		Points:    []model.CurvePoint{yearPoint("1Y", 1, 0.01)},
	}
	fresh := model.Curve{
		Name:      "US_Treasury",
		CurveDate: asOf,
		Points:    []model.CurvePoint{yearPoint("1Y", 1, 0.05)},
	}
	store := &fakeStore{curves: map[string]model.Curve{"US_Treasury": stale}}
	external := &fakeExternal{fetched: map[string]*model.Curve{"US_Treasury": &fresh}}

	points, err := LoadComposite(context.Background(), store, external, nil, 24*time.Hour, "US_Treasury", "", asOf, nil)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 0.05, points[0].Rate)
	assert.Len(t, store.saved, 1)
}

func TestLoadCompositeUnavailableWhenNothingResolves(t *testing.T) {
	asOf := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{curves: map[string]model.Curve{}}

	_, err := LoadComposite(context.Background(), store, nil, nil, 24*time.Hour, "Missing_Curve", "", asOf, nil)
	require.Error(t, err)
	assert.True(t, verrors.Is(err, verrors.KindCurveUnavailable))
}

func TestDerivedPointsFromMaturityDate(t *testing.T) {
	asOf := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	maturity := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{curves: map[string]model.Curve{
		"Zero_Curve": {
			Name:      "Zero_Curve",
			CurveDate: asOf,
			Points:    []model.CurvePoint{{TenorLabel: "", Rate: 0.03, MaturityDate: &maturity}},
		},
	}}

	points, err := LoadComposite(context.Background(), store, nil, nil, 24*time.Hour, "Zero_Curve", "", asOf, nil)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.InDelta(t, 2.0, points[0].Years, 0.01)
}

type fakeCache struct {
	entries map[string]string
	hits    int
}

func newFakeCache() *fakeCache { return &fakeCache{entries: map[string]string{}} }

func (c *fakeCache) Get(ctx context.Context, key string) (string, bool) {
	v, ok := c.entries[key]
	if ok {
		c.hits++
	}
	return v, ok
}

func (c *fakeCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	c.entries[key] = value
}

func TestLoadCompositeCachesResolvedCurve(t *testing.T) {
	asOf := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{curves: map[string]model.Curve{
		"US_Treasury": {Name: "US_Treasury", CurveDate: asOf, Points: []model.CurvePoint{yearPoint("1Y", 1, 0.04)}},
	}}
	cache := newFakeCache()

	_, err := LoadComposite(context.Background(), store, nil, cache, 24*time.Hour, "US_Treasury", "", asOf, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, cache.hits, "first call is a cache miss")

	// A second call for the same (name, asOf) is served from cache without
	// touching the store.
	store.curves = map[string]model.Curve{}
	points, err := LoadComposite(context.Background(), store, nil, cache, 24*time.Hour, "US_Treasury", "", asOf, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	require.Len(t, points, 1)
	assert.Equal(t, 0.04, points[0].Rate)
}
