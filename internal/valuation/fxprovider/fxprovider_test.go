package fxprovider

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
	rates map[string]model.FXRate
	saved []model.FXRate
}

func key(from, to string) string { return from + "->" + to }

func (f *fakeStore) GetLatestFXRate(ctx context.Context, from, to string, asOf time.Time) (*model.FXRate, error) {
	r, ok := f.rates[key(from, to)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (f *fakeStore) SaveFXRate(ctx context.Context, r model.FXRate) error {
	f.saved = append(f.saved, r)
	return nil
}

type fakeExternal struct {
	rate *model.FXRate
}

func (f *fakeExternal) Fetch(ctx context.Context, from, to string, asOf time.Time) (*model.FXRate, error) {
	return f.rate, nil
}

func TestRateIdentityShortcut(t *testing.T) {
	rate, err := Rate(context.Background(), &fakeStore{}, nil, nil, "USD", "USD", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1.0, rate.Rate)
	assert.Equal(t, "identity", rate.Source)
}

func TestRateDirectStoreLookup(t *testing.T) {
	asOf := time.Now()
	store := &fakeStore{rates: map[string]model.FXRate{
		key("USD", "EUR"): {FromCurrency: "USD", ToCurrency: "EUR", Rate: 0.9, RateDate: asOf, Source: "manual"},
	}}
	rate, err := Rate(context.Background(), store, nil, nil, "USD", "EUR", asOf)
	require.NoError(t, err)
	assert.Equal(t, 0.9, rate.Rate)
}

func TestRateInverseStoreLookup(t *testing.T) {
	asOf := time.Now()
	store := &fakeStore{rates: map[string]model.FXRate{
		key("EUR", "USD"): {FromCurrency: "EUR", ToCurrency: "USD", Rate: 1.1, RateDate: asOf, Source: "manual"},
	}}
	rate, err := Rate(context.Background(), store, nil, nil, "USD", "EUR", asOf)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/1.1, rate.Rate, 1e-9)
}

func TestRateExternalFetchAndSave(t *testing.T) {
	asOf := time.Now()
	store := &fakeStore{}
	external := &fakeExternal{rate: &model.FXRate{FromCurrency: "USD", ToCurrency: "GBP", Rate: 0.78, RateDate: asOf, Source: "external"}}
	rate, err := Rate(context.Background(), store, external, nil, "USD", "GBP", asOf)
	require.NoError(t, err)
	assert.Equal(t, 0.78, rate.Rate)
	assert.Len(t, store.saved, 1)
}

func TestRateUnavailable(t *testing.T) {
	_, err := Rate(context.Background(), &fakeStore{}, nil, nil, "USD", "JPY", time.Now())
	require.Error(t, err)
	assert.True(t, verrors.Is(err, verrors.KindFxUnavailable))
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

func TestRateCachesResolvedRate(t *testing.T) {
	asOf := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{rates: map[string]model.FXRate{
		key("USD", "EUR"): {FromCurrency: "USD", ToCurrency: "EUR", Rate: 0.92, RateDate: asOf, Source: "manual"},
	}}
	cache := newFakeCache()

	rate, err := Rate(context.Background(), store, nil, cache, "USD", "EUR", asOf)
	require.NoError(t, err)
	assert.Equal(t, 0.92, rate.Rate)
	assert.Equal(t, 0, cache.hits)

	store.rates = map[string]model.FXRate{}
	rate, err = Rate(context.Background(), store, nil, cache, "USD", "EUR", asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, 0.92, rate.Rate)
}
