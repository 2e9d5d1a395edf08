// Package projector implements the cash-flow projector: dispatch to the
// right instrument engine, merge with stored realized/defaulted flows,
// and classify past/future.
package projector

import (
	"context"
	"sort"
	"time"

	"valuationcore/internal/valuation/instruments"
	"valuationcore/internal/valuation/model"
)

// SecurityStore loads a security by id.
type SecurityStore interface {
	GetSecurity(ctx context.Context, securityID string) (model.Security, error)
}

// CashFlowStore loads stored (realized/defaulted) flows for a security.
type CashFlowStore interface {
	ListCashFlows(ctx context.Context, securityID string) ([]model.CashFlow, error)
}

// Summary aggregates a projection's flow counts and key dates.
type Summary struct {
	Total         int
	Past          int
	Future        int
	Defaulted     int
	Realized      int
	NextPayment   *time.Time
}

// Result is project()'s full output.
type Result struct {
	Existing   []model.CashFlow
	Projected  []model.CashFlow
	AllSorted  []model.CashFlow
	Summary    Summary
	Security   model.Security
}

// Project loads the security, dispatches to the appropriate cash-flow
// engine, loads stored flows, merges them (stored flows take priority),
// sorts, and summarizes.
func Project(ctx context.Context, securities SecurityStore, flows CashFlowStore, securityID string, valuationDate time.Time) (Result, error) {
	security, err := securities.GetSecurity(ctx, securityID)
	if err != nil {
		return Result{}, err
	}

	generated, err := instruments.Project(security, valuationDate)
	if err != nil {
		return Result{}, err
	}
	generated = normalize(generated)

	stored, err := flows.ListCashFlows(ctx, securityID)
	if err != nil {
		return Result{}, err
	}

	merged := merge(stored, generated)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].FlowDate.Before(merged[j].FlowDate) })

	summary := summarize(merged, valuationDate)

	return Result{
		Existing:  stored,
		Projected: generated,
		AllSorted: merged,
		Summary:   summary,
		Security:  security,
	}, nil
}

// normalize canonicalizes generated flow dates/amounts to the types the
// merge step compares against.
func normalize(flows []model.CashFlow) []model.CashFlow {
	out := make([]model.CashFlow, len(flows))
	for i, f := range flows {
		f.FlowDate = f.FlowDate.Truncate(24 * time.Hour)
		out[i] = f
	}
	return out
}

// merge keeps all stored flows and appends any generated flow whose
// (flow_date, type, amount) triple does not match an existing stored flow.
func merge(stored, generated []model.CashFlow) []model.CashFlow {
	seen := make(map[flowKey]bool, len(stored))
	for _, f := range stored {
		seen[key(f)] = true
	}

	merged := make([]model.CashFlow, 0, len(stored)+len(generated))
	merged = append(merged, stored...)
	for _, f := range generated {
		if !seen[key(f)] {
			merged = append(merged, f)
		}
	}
	return merged
}

type flowKey struct {
	date   string
	typ    model.FlowType
	amount float64
}

func key(f model.CashFlow) flowKey {
	return flowKey{date: f.FlowDate.Format("2006-01-02"), typ: f.Type, amount: f.Amount}
}

func summarize(flows []model.CashFlow, valuationDate time.Time) Summary {
	s := Summary{Total: len(flows)}
	for _, f := range flows {
		if f.IsDefaulted {
			s.Defaulted++
		}
		if f.IsRealized {
			s.Realized++
		}
		if f.FlowDate.After(valuationDate) {
			s.Future++
			if s.NextPayment == nil || f.FlowDate.Before(*s.NextPayment) {
				d := f.FlowDate
				s.NextPayment = &d
			}
		} else {
			s.Past++
		}
	}
	return s
}
