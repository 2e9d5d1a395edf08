// Package fxprovider implements the FX rate provider: identity shortcut, an
// optional Redis read-through cache, direct store lookup, inverse lookup,
// external fetch, and persistence of fetched rates.
package fxprovider

import (
	"context"
	"encoding/json"
	"time"

	"valuationcore/internal/valuation/model"
	"valuationcore/internal/valuation/verrors"
)

// Store is the FX rate persistence contract this package depends on.
type Store interface {
	// GetLatestFXRate returns the newest row for (from, to) with
	// rate_date <= asOf, or (nil, nil) if none exists.
	GetLatestFXRate(ctx context.Context, from, to string, asOf time.Time) (*model.FXRate, error)
	SaveFXRate(ctx context.Context, rate model.FXRate) error
}

// ExternalProvider is the FX-fetch contract for a live data source.
type ExternalProvider interface {
	Fetch(ctx context.Context, from, to string, asOf time.Time) (*model.FXRate, error)
}

// Cache is an optional read-through layer in front of Store, keyed on
// (from, to, as-of date). A nil Cache disables read-through; every call
// falls through to Store.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// cacheTTL bounds how long a resolved rate is trusted from cache before
// the next lookup re-checks the store — short enough that a fresh
// external fetch within a run is still picked up promptly.
const cacheTTL = 15 * time.Minute

// Rate resolves an FX rate in a cache-then-store-then-external pipeline:
// identity shortcut, Cache read-through, direct store lookup, inverse
// lookup, external fetch, then failure. cache may be nil.
func Rate(ctx context.Context, store Store, external ExternalProvider, cache Cache, from, to string, asOf time.Time) (model.FXRate, error) {
	if from == to {
		return model.FXRate{FromCurrency: from, ToCurrency: to, Rate: 1, RateDate: time.Now(), Source: "identity"}, nil
	}

	key := fxCacheKey(from, to, asOf)
	if r, ok := getCachedRate(ctx, cache, key); ok {
		return *r, nil
	}

	direct, err := store.GetLatestFXRate(ctx, from, to, asOf)
	if err != nil {
		return model.FXRate{}, verrors.StoreTransient("load fx rate "+from+"->"+to, err)
	}
	if direct != nil {
		setCachedRate(ctx, cache, key, *direct)
		return *direct, nil
	}

	inverse, err := store.GetLatestFXRate(ctx, to, from, asOf)
	if err != nil {
		return model.FXRate{}, verrors.StoreTransient("load inverse fx rate "+to+"->"+from, err)
	}
	if inverse != nil {
		rate := model.FXRate{
			FromCurrency: from,
			ToCurrency:   to,
			RateDate:     inverse.RateDate,
			Rate:         1.0 / inverse.Rate,
			Source:       inverse.Source,
		}
		setCachedRate(ctx, cache, key, rate)
		return rate, nil
	}

	if external != nil {
		fetched, fetchErr := external.Fetch(ctx, from, to, asOf)
		if fetchErr == nil && fetched != nil {
			if saveErr := store.SaveFXRate(ctx, *fetched); saveErr != nil {
				return model.FXRate{}, verrors.StoreTransient("save fx rate "+from+"->"+to, saveErr)
			}
			setCachedRate(ctx, cache, key, *fetched)
			return *fetched, nil
		}
	}

	return model.FXRate{}, verrors.FxUnavailable(from, to, asOf.Format("2006-01-02"))
}

func fxCacheKey(from, to string, asOf time.Time) string {
	return "fx:" + from + ":" + to + ":" + asOf.Format("2006-01-02")
}

func getCachedRate(ctx context.Context, cache Cache, key string) (*model.FXRate, bool) {
	if cache == nil {
		return nil, false
	}
	raw, ok := cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var r model.FXRate
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, false
	}
	return &r, true
}

func setCachedRate(ctx context.Context, cache Cache, key string, r model.FXRate) {
	if cache == nil {
		return
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return
	}
	cache.Set(ctx, key, string(raw), cacheTTL)
}
