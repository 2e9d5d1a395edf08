package fxprovider

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"valuationcore/internal/config"
	"valuationcore/internal/valuation/model"
)

// HTTPProvider implements ExternalProvider against a single configured
// FX rate endpoint, whose query shape depends on the configured flavour:
// "base-symbols" ({base, symbols, date}) or "from-to-amount"
// ({from, to, amount, date}).
type HTTPProvider struct {
	client  *resty.Client
	url     string
	flavour string
	apiKey  string
	enabled bool
}

func NewHTTPProvider(cfg *config.Config, client *resty.Client) *HTTPProvider {
	return &HTTPProvider{
		client:  client,
		url:     cfg.FXProviderURL,
		flavour: cfg.FXProviderFlavor,
		apiKey:  cfg.FXProviderAPIKey,
		enabled: cfg.FXProviderEnabled,
	}
}

type baseSymbolsResponse struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

type fromToAmountResponse struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Result float64 `json:"result"`
	Date   string  `json:"date"`
}

func (p *HTTPProvider) Fetch(ctx context.Context, from, to string, asOf time.Time) (*model.FXRate, error) {
	if !p.enabled {
		return nil, nil
	}

	dateStr := asOf.Format("2006-01-02")
	req := p.client.R().SetContext(ctx)
	if p.apiKey != "" {
		req.SetHeader("Authorization", "Bearer "+p.apiKey)
	}

	if p.flavour == "from-to-amount" {
		var body fromToAmountResponse
		resp, err := req.SetResult(&body).
			SetQueryParam("from", from).
			SetQueryParam("to", to).
			SetQueryParam("amount", "1").
			SetQueryParam("date", dateStr).
			Get(p.url)
		if err != nil {
			return nil, fmt.Errorf("fx provider request %s->%s: %w", from, to, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("fx provider returned status %d for %s->%s", resp.StatusCode(), from, to)
		}
		rateDate := asOf
		if parsed, parseErr := time.Parse("2006-01-02", body.Date); parseErr == nil {
			rateDate = parsed
		}
		return &model.FXRate{FromCurrency: from, ToCurrency: to, RateDate: rateDate, Rate: body.Result, Source: "external"}, nil
	}

	var body baseSymbolsResponse
	resp, err := req.SetResult(&body).
		SetQueryParam("base", from).
		SetQueryParam("symbols", to).
		SetQueryParam("date", dateStr).
		Get(p.url)
	if err != nil {
		return nil, fmt.Errorf("fx provider request %s->%s: %w", from, to, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fx provider returned status %d for %s->%s", resp.StatusCode(), from, to)
	}
	rate, ok := body.Rates[to]
	if !ok {
		return nil, fmt.Errorf("fx provider response missing rate for symbol %s", to)
	}
	rateDate := asOf
	if parsed, parseErr := time.Parse("2006-01-02", body.Date); parseErr == nil {
		rateDate = parsed
	}
	return &model.FXRate{FromCurrency: from, ToCurrency: to, RateDate: rateDate, Rate: rate, Source: "external"}, nil
}
