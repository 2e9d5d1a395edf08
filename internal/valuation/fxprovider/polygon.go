package fxprovider

import (
	"context"
	"fmt"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"

	"valuationcore/internal/valuation/model"
)

// PolygonProvider implements ExternalProvider against Polygon.io's forex
// last-quote endpoint. Forex tickers follow Polygon's "C:FROMTO"
// convention, e.g. "C:EURUSD".
type PolygonProvider struct {
	Client *polygon.Client
}

func NewPolygonProvider(client *polygon.Client) *PolygonProvider {
	return &PolygonProvider{Client: client}
}

func (p *PolygonProvider) Fetch(ctx context.Context, from, to string, asOf time.Time) (*model.FXRate, error) {
	if p.Client == nil {
		return nil, nil
	}

	ticker := fmt.Sprintf("C:%s%s", from, to)
	resp, err := p.Client.GetLastQuote(ctx, &models.GetLastQuoteParams{Ticker: ticker})
	if err != nil {
		return nil, fmt.Errorf("polygon fx quote %s: %w", ticker, err)
	}

	mid := (resp.Results.Bid + resp.Results.Ask) / 2
	if mid <= 0 {
		return nil, fmt.Errorf("polygon fx quote %s: non-positive mid price", ticker)
	}

	return &model.FXRate{
		FromCurrency: from,
		ToCurrency:   to,
		RateDate:     asOf,
		Rate:         mid,
		Source:       "polygon",
	}, nil
}
