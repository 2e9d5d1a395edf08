// Package curveprovider implements the curve provider: an optional Redis
// read-through cache in front of the store, falling back to an external
// provider and persisting fetches, then compose a benchmark curve with an
// optional spread curve and manual per-tenor overrides.
package curveprovider

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"valuationcore/internal/valuation/curve"
	"valuationcore/internal/valuation/daycount"
	"valuationcore/internal/valuation/model"
	"valuationcore/internal/valuation/verrors"
)

// Store is the persistence contract this package depends on.
type Store interface {
	// GetLatestCurve returns the newest stored curve for name with
	// curve_date <= asOf, or (nil, nil) if none exists.
	GetLatestCurve(ctx context.Context, name string, asOf time.Time) (*model.Curve, error)
	// SaveCurve persists a freshly fetched curve (upsert on name+date+source).
	SaveCurve(ctx context.Context, c model.Curve) error
}

// ExternalProvider is the curve-fetch contract for a live data source.
type ExternalProvider interface {
	Fetch(ctx context.Context, name string, asOf time.Time) (*model.Curve, error)
}

// Cache is an optional read-through layer in front of Store, keyed on
// (curve name, as-of date). A nil Cache (or a nil *Conn.Cache behind it)
// disables read-through entirely; every call falls through to Store.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// Components carries the benchmark/spread rate split for a composite point.
type Components struct {
	BenchmarkRate float64
	SpreadRate    float64
}

// CompositePoint is one point of a composed discount curve.
type CompositePoint struct {
	TenorLabel   string
	Years        float64
	Rate         float64
	MaturityDate *time.Time
	Components   Components
}

// pointTolerance is the tolerance for matching composite points by year
// fraction — tighter than the curve package's 1e-3 interpolation-knot
// tolerance, since spread/benchmark points are expected to land on the
// same tenor grid exactly.
const pointTolerance = 1e-8

// LoadComposite resolves the benchmark curve (and optional spread curve),
// then builds the additive composite: benchmark rate plus matched spread
// rate plus any manual per-tenor override, in basis points. cache may be
// nil.
func LoadComposite(ctx context.Context, store Store, external ExternalProvider, cache Cache, ttl time.Duration, benchmarkName string, spreadName string, asOf time.Time, manualSpreads map[string]float64) ([]CompositePoint, error) {
	benchmark, err := resolveCurve(ctx, store, external, cache, ttl, benchmarkName, asOf)
	if err != nil {
		return nil, err
	}

	var spread *model.Curve
	if spreadName != "" {
		spread, err = resolveCurve(ctx, store, external, cache, ttl, spreadName, asOf)
		if err != nil {
			return nil, err
		}
	}

	benchmarkPoints, err := derivedPoints(*benchmark)
	if err != nil {
		return nil, err
	}

	var spreadPoints []derivedPoint
	if spread != nil {
		spreadPoints, err = derivedPoints(*spread)
		if err != nil {
			return nil, err
		}
	}

	composite := make([]CompositePoint, 0, len(benchmarkPoints))
	for _, bp := range benchmarkPoints {
		spreadRate := matchSpread(bp, spreadPoints)
		manualBps := manualOverride(manualSpreads, bp.tenorLabel)
		spreadRate += manualBps / 10000.0

		composite = append(composite, CompositePoint{
			TenorLabel:   bp.tenorLabel,
			Years:        bp.years,
			Rate:         bp.rate + spreadRate,
			MaturityDate: bp.maturityDate,
			Components: Components{
				BenchmarkRate: bp.rate,
				SpreadRate:    spreadRate,
			},
		})
	}

	if len(composite) == 0 {
		return nil, verrors.CurveUnavailable(benchmarkName, asOf.Format("2006-01-02"))
	}
	return composite, nil
}

// resolveCurve resolves one named curve: Cache read-through first, then
// store lookup, then external fetch on miss/stale (falling back to a
// stale cached curve on external failure), then CurveUnavailable. Every
// curve resolved via the store or an external fetch is written back into
// cache with expiry ttl, so the next security in the same run (or the
// next run within ttl) skips the store round trip entirely.
func resolveCurve(ctx context.Context, store Store, external ExternalProvider, cache Cache, ttl time.Duration, name string, asOf time.Time) (*model.Curve, error) {
	key := curveCacheKey(name, asOf)
	if c, ok := getCachedCurve(ctx, cache, key); ok {
		return c, nil
	}

	cached, err := store.GetLatestCurve(ctx, name, asOf)
	if err != nil {
		return nil, verrors.StoreTransient("load curve "+name, err)
	}

	stale := cached == nil || asOf.Sub(cached.CurveDate) > ttl
	if !stale {
		setCachedCurve(ctx, cache, key, *cached, ttl)
		return cached, nil
	}

	if external != nil {
		fetched, fetchErr := external.Fetch(ctx, name, asOf)
		if fetchErr == nil && fetched != nil {
			if saveErr := store.SaveCurve(ctx, *fetched); saveErr != nil {
				return nil, verrors.StoreTransient("save curve "+name, saveErr)
			}
			setCachedCurve(ctx, cache, key, *fetched, ttl)
			return fetched, nil
		}
	}

	if cached != nil {
		setCachedCurve(ctx, cache, key, *cached, ttl)
		return cached, nil
	}
	return nil, verrors.CurveUnavailable(name, asOf.Format("2006-01-02"))
}

func curveCacheKey(name string, asOf time.Time) string {
	return "curve:" + name + ":" + asOf.Format("2006-01-02")
}

func getCachedCurve(ctx context.Context, cache Cache, key string) (*model.Curve, bool) {
	if cache == nil {
		return nil, false
	}
	raw, ok := cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var c model.Curve
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, false
	}
	return &c, true
}

func setCachedCurve(ctx context.Context, cache Cache, key string, c model.Curve, ttl time.Duration) {
	if cache == nil {
		return
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return
	}
	cache.Set(ctx, key, string(raw), ttl)
}

type derivedPoint struct {
	tenorLabel   string
	years        float64
	rate         float64
	maturityDate *time.Time
}

// derivedPoints fills in YearFraction for every point of c that lacks one
// (from its maturity date, else its tenor label) and MaturityDate for
// points that lack one, except points carrying both a year fraction and a
// tenor label, which keep a nil maturity. A missing tenor label is not
// derived. The result is sorted ascending by year fraction.
func derivedPoints(c model.Curve) ([]derivedPoint, error) {
	out := make([]derivedPoint, 0, len(c.Points))
	for _, p := range c.Points {
		years, maturity, err := deriveYearsAndMaturity(p, c.CurveDate)
		if err != nil {
			return nil, err
		}
		out = append(out, derivedPoint{
			tenorLabel:   p.TenorLabel,
			years:        years,
			rate:         p.Rate,
			maturityDate: maturity,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].years < out[j].years })
	return out, nil
}

func deriveYearsAndMaturity(p model.CurvePoint, curveDate time.Time) (float64, *time.Time, error) {
	switch {
	case p.YearFraction != nil:
		years := *p.YearFraction
		maturity := p.MaturityDate
		if maturity == nil && p.TenorLabel == "" {
			derived := curveDate.AddDate(0, 0, int(years*365))
			maturity = &derived
		}
		return years, maturity, nil
	case p.MaturityDate != nil:
		years, err := daycount.YearFraction(curveDate, *p.MaturityDate, daycount.Act365)
		if err != nil {
			return 0, nil, err
		}
		return years, p.MaturityDate, nil
	case p.TenorLabel != "":
		years, err := curve.TenorToYears(p.TenorLabel)
		if err != nil {
			return 0, nil, err
		}
		maturity := curveDate.AddDate(0, 0, int(years*365))
		return years, &maturity, nil
	default:
		return 0, nil, verrors.ValidationError("curve point carries none of tenor_label, year_fraction, maturity_date")
	}
}

// matchSpread finds the spread-curve point matching bp by exact
// maturity_date, else exact year_fraction within 1e-8, else exact tenor
// label; missing matches contribute 0.
func matchSpread(bp derivedPoint, spreadPoints []derivedPoint) float64 {
	if bp.maturityDate != nil {
		for _, sp := range spreadPoints {
			if sp.maturityDate != nil && sp.maturityDate.Equal(*bp.maturityDate) {
				return sp.rate
			}
		}
	}
	for _, sp := range spreadPoints {
		d := sp.years - bp.years
		if d < 0 {
			d = -d
		}
		if d <= pointTolerance {
			return sp.rate
		}
	}
	if bp.tenorLabel != "" {
		for _, sp := range spreadPoints {
			if sp.tenorLabel == bp.tenorLabel {
				return sp.rate
			}
		}
	}
	return 0
}

func manualOverride(manualSpreads map[string]float64, tenorLabel string) float64 {
	if manualSpreads == nil {
		return 0
	}
	if tenorLabel != "" {
		if bps, ok := manualSpreads[tenorLabel]; ok {
			return bps
		}
	}
	if bps, ok := manualSpreads["default"]; ok {
		return bps
	}
	return 0
}
