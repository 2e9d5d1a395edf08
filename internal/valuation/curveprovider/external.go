package curveprovider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"valuationcore/internal/config"
	"valuationcore/internal/valuation/model"
)

// HTTPProvider implements ExternalProvider against two curve API shapes:
// a Treasury/corporate curve service (one call returns every point of a
// named curve) and a generic market-data endpoint, selected via the
// configured name map. Both shapes share one resty client and one API-key
// header; each request goes to the configured base URL of its provider.
type HTTPProvider struct {
	client      *resty.Client
	treasuryURL string
	corporateURL string
	genericURL   string
	apiKey       string
	nameMap      map[string]string
	enabled      bool
}

// NewHTTPProvider builds an HTTPProvider from config. If cfg disables
// external curves, Fetch always returns (nil, nil) so callers fall back
// to whatever is already cached.
func NewHTTPProvider(cfg *config.Config, client *resty.Client) *HTTPProvider {
	return &HTTPProvider{
		client:       client,
		treasuryURL:  cfg.TreasuryBaseURL,
		corporateURL: cfg.CorporateBaseURL,
		genericURL:   cfg.GenericCurveBaseURL,
		apiKey:       cfg.CurveProviderAPIKey,
		nameMap:      cfg.CurveNameMap,
		enabled:      cfg.ExternalCurvesEnabled,
	}
}

type treasuryResponse struct {
	CurveDate string    `json:"curve_date"`
	Maturities []float64 `json:"maturities"`
	Yields     []float64 `json:"yields"`
	Spreads    []float64 `json:"spreads"`
}

type genericCurveResponse struct {
	Currency  string `json:"currency"`
	CurveType string `json:"curve_type"`
	Points    []struct {
		Tenor string  `json:"tenor"`
		Rate  float64 `json:"rate"`
	} `json:"points"`
}

// Fetch dispatches to the treasury/corporate endpoint when name maps to
// "treasury", "corporate", or "corporate_spread/<rating>", and otherwise to
// the generic curve endpoint.
func (p *HTTPProvider) Fetch(ctx context.Context, name string, asOf time.Time) (*model.Curve, error) {
	if !p.enabled {
		return nil, nil
	}

	endpoint, ok := p.nameMap[name]
	if !ok {
		return p.fetchGeneric(ctx, name, asOf)
	}

	dateStr := asOf.Format("2006-01-02")
	switch {
	case endpoint == "treasury":
		return p.fetchTreasuryLike(ctx, p.treasuryURL, "/"+dateStr, name, asOf, false)
	case endpoint == "corporate":
		return p.fetchTreasuryLike(ctx, p.corporateURL, "/"+dateStr, name, asOf, false)
	case strings.HasPrefix(endpoint, "corporate_spread/"):
		rating := strings.TrimPrefix(endpoint, "corporate_spread/")
		return p.fetchTreasuryLike(ctx, p.corporateURL, fmt.Sprintf("/spread/%s/%s", rating, dateStr), name, asOf, true)
	default:
		return p.fetchGeneric(ctx, name, asOf)
	}
}

func (p *HTTPProvider) fetchTreasuryLike(ctx context.Context, baseURL, path string, name string, asOf time.Time, isSpread bool) (*model.Curve, error) {
	var body treasuryResponse
	req := p.client.R().SetContext(ctx).SetResult(&body)
	if p.apiKey != "" {
		req.SetHeader("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := req.Get(baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("curve provider request for %s: %w", name, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("curve provider returned status %d for %s", resp.StatusCode(), name)
	}

	values := body.Yields
	curveType := model.CurveZero
	if isSpread {
		values = body.Spreads
		curveType = model.CurveSpread
	}
	if len(values) != len(body.Maturities) {
		return nil, fmt.Errorf("curve provider returned mismatched maturities/values for %s", name)
	}

	points := make([]model.CurvePoint, 0, len(values))
	for i, years := range body.Maturities {
		yf := years
		points = append(points, model.CurvePoint{
			Rate:         values[i] / 100.0,
			YearFraction: &yf,
		})
	}

	curveDate := asOf
	if parsed, parseErr := time.Parse("2006-01-02", body.CurveDate); parseErr == nil {
		curveDate = parsed
	}

	return &model.Curve{
		ID:        uuid.NewString(),
		Name:      name,
		CurveDate: curveDate,
		Source:    model.SourceExternalFred,
		Currency:  "USD",
		Type:      curveType,
		Points:    points,
	}, nil
}

func (p *HTTPProvider) fetchGeneric(ctx context.Context, name string, asOf time.Time) (*model.Curve, error) {
	if !p.enabled {
		return nil, nil
	}
	var body genericCurveResponse
	req := p.client.R().SetContext(ctx).SetResult(&body).
		SetQueryParam("curve", name).
		SetQueryParam("date", asOf.Format("2006-01-02"))
	if p.apiKey != "" {
		req.SetHeader("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := req.Get(p.genericURL)
	if err != nil {
		return nil, fmt.Errorf("generic curve provider request for %s: %w", name, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("generic curve provider returned status %d for %s", resp.StatusCode(), name)
	}

	points := make([]model.CurvePoint, 0, len(body.Points))
	for _, p := range body.Points {
		points = append(points, model.CurvePoint{TenorLabel: p.Tenor, Rate: p.Rate})
	}

	curveType := model.CurveType(body.CurveType)
	if curveType == "" {
		curveType = model.CurveZero
	}

	return &model.Curve{
		ID:        uuid.NewString(),
		Name:      name,
		CurveDate: asOf,
		Source:    model.SourceExternalFred,
		Currency:  body.Currency,
		Type:      curveType,
		Points:    points,
	}, nil
}
