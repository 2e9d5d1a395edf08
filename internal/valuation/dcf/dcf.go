// Package dcf implements the fair-value discounted cash-flow engine:
// per-flow discounting against a composite curve, accrued interest,
// duration/convexity, and a best-effort yield to maturity.
package dcf

import (
	"fmt"
	"math"
	"strings"
	"time"

	"valuationcore/internal/valuation/curve"
	"valuationcore/internal/valuation/curveprovider"
	"valuationcore/internal/valuation/daycount"
	"valuationcore/internal/valuation/instruments"
	"valuationcore/internal/valuation/model"
)

// CurveSetup is the snapshot recorded alongside a valuation for audit.
type CurveSetup struct {
	BenchmarkName    string
	BenchmarkSource  string
	BenchmarkDate    time.Time
	SpreadName       string
	SpreadSource     string
	SpreadDate       time.Time
	ManualOverrides  map[string]float64
}

// Metrics carries the engine's risk measures.
type Metrics struct {
	Duration float64
	Convexity float64
	YTM      *float64 // nil when non-convergent or not a bond
}

// Input is the DCF engine's full set of inputs.
type Input struct {
	Security        model.Security
	FlowsSorted     []model.CashFlow
	CompositeCurve  []curveprovider.CompositePoint
	ValuationDate   time.Time
	Currency        string
	IncludeAccrued  bool
	BookValue       *float64
	CurveSetup      CurveSetup
}

// Output is the DCF engine's full set of outputs.
type Output struct {
	PresentValue       float64
	AccruedInterest    float64
	DirtyValue         float64
	UnrealizedGainLoss float64
	Metrics            Metrics
	CalculationSteps   []model.CalculationStep
	CurveSetup         CurveSetup
}

// Run executes the DCF engine for one security.
func Run(input Input) (Output, error) {
	benchmarkPoints, spreadPoints := splitComponents(input.CompositeCurve)

	steps := make([]model.CalculationStep, 0, len(input.FlowsSorted))
	stepOrder := 1
	var pv, durationNumerator, convexityNumerator float64

	for _, flow := range input.FlowsSorted {
		years, err := daycount.YearFraction(input.ValuationDate, flow.FlowDate, daycount.Act365)
		if err != nil {
			return Output{}, err
		}
		if years <= 0 {
			continue
		}

		tenor, benchmarkRate, spreadRate := resolveRate(input.CompositeCurve, benchmarkPoints, spreadPoints, flow.FlowDate, years)
		rate := benchmarkRate + spreadRate
		df := 1.0 / math.Pow(1+rate, years)
		presentValue := flow.Amount * df

		pv += presentValue
		durationNumerator += years * presentValue
		convexityNumerator += presentValue * years * (years + 1)

		steps = append(steps, model.CalculationStep{
			SecurityID: input.Security.ID,
			StepOrder:  stepOrder,
			Type:       model.StepDiscount,
			Data: map[string]interface{}{
				"flow_date":       flow.FlowDate.Format("2006-01-02"),
				"tenor":           tenor,
				"years":           years,
				"cash_flow":       flow.Amount,
				"benchmark_rate":  benchmarkRate,
				"spread_rate":     spreadRate,
				"discount_rate":   rate,
				"discount_factor": df,
				"present_value":   presentValue,
			},
		})
		stepOrder++
	}

	accrued := 0.0
	if input.IncludeAccrued && isBond(input.Security.InstrumentType) {
		var err error
		accrued, err = accruedInterest(input.Security, input.ValuationDate)
		if err != nil {
			return Output{}, err
		}
	}

	dirty := pv + accrued

	book := 0.0
	if input.BookValue != nil {
		book = *input.BookValue
	}
	unrealized := dirty - book

	var duration, convexity float64
	if pv != 0 {
		duration = durationNumerator / pv
		convexity = convexityNumerator / pv
	}

	ytm := solveYTM(input.Security, input.ValuationDate)

	return Output{
		PresentValue:       pv,
		AccruedInterest:    accrued,
		DirtyValue:         dirty,
		UnrealizedGainLoss: unrealized,
		Metrics: Metrics{
			Duration:  duration,
			Convexity: convexity,
			YTM:       ytm,
		},
		CalculationSteps: steps,
		CurveSetup:       input.CurveSetup,
	}, nil
}

func isBond(t model.InstrumentType) bool {
	return strings.HasPrefix(string(t), "fixed_coupon") ||
		strings.HasPrefix(string(t), "zero_coupon") ||
		strings.HasPrefix(string(t), "floating_rate") ||
		strings.HasPrefix(string(t), "inflation_linked") ||
		strings.HasPrefix(string(t), "step_up") ||
		strings.HasPrefix(string(t), "convertible")
}

func splitComponents(points []curveprovider.CompositePoint) ([]curve.Point, []curve.Point) {
	benchmark := make([]curve.Point, 0, len(points))
	spread := make([]curve.Point, 0, len(points))
	for _, p := range points {
		benchmark = append(benchmark, curve.Point{TenorLabel: p.TenorLabel, Years: p.Years, Rate: p.Components.BenchmarkRate})
		spread = append(spread, curve.Point{TenorLabel: p.TenorLabel, Years: p.Years, Rate: p.Components.SpreadRate})
	}
	return curve.SortPoints(benchmark), curve.SortPoints(spread)
}

// resolveRate resolves a flow's discount rate: an exact maturity_date
// match on the composite curve wins outright; otherwise the benchmark and
// spread component series are each linearly interpolated at the flow's
// year fraction from the valuation date.
func resolveRate(composite []curveprovider.CompositePoint, benchmarkPoints, spreadPoints []curve.Point, flowDate time.Time, years float64) (tenor string, benchmarkRate, spreadRate float64) {
	for _, p := range composite {
		if p.MaturityDate != nil && sameDate(*p.MaturityDate, flowDate) {
			return p.TenorLabel, p.Components.BenchmarkRate, p.Components.SpreadRate
		}
	}

	benchmarkRate, _ = curve.Interpolate(benchmarkPoints, years, curve.Linear)
	spreadRate, _ = curve.Interpolate(spreadPoints, years, curve.Linear)
	return fmt.Sprintf("%.4fY", years), benchmarkRate, spreadRate
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// accruedInterest computes accrued interest using the coupon period
// enclosing the valuation date, derived from the security's generated
// coupon schedule.
func accruedInterest(security model.Security, valuationDate time.Time) (float64, error) {
	periodsPerYear := daycount.PeriodsPerYear(security.CouponFrequency)
	if periodsPerYear == 0 || security.CouponRate == 0 {
		return 0, nil
	}

	coupons := daycount.GenerateCouponDates(security.IssueDate, security.FirstCouponDate, security.MaturityDate, security.CouponFrequency)
	periodStart, periodEnd, found := daycount.CouponPeriod(security.IssueDate, coupons, valuationDate)
	if !found {
		return 0, nil
	}

	annualCoupon := (security.CouponRate / 100.0) * security.FaceValue
	return daycount.AccruedInterest(annualCoupon, security.CouponFrequency, periodStart, periodEnd, valuationDate, security.DayCountConvention)
}

// solveYTM runs a best-effort Newton-Raphson yield solve on a synthetic
// fixed-coupon schedule generated independently for the same security.
// Non-bond instruments and non-convergent solves return nil.
func solveYTM(security model.Security, valuationDate time.Time) *float64 {
	if !isBond(security.InstrumentType) {
		return nil
	}

	flows, err := instruments.ProjectSyntheticFixedCoupon(security, valuationDate)
	if err != nil || len(flows) == 0 {
		return nil
	}

	type cf struct {
		years  float64
		amount float64
	}
	var schedule []cf
	for _, f := range flows {
		years, err := daycount.YearFraction(valuationDate, f.FlowDate, daycount.Act365)
		if err != nil || years <= 0 {
			continue
		}
		schedule = append(schedule, cf{years: years, amount: f.Amount})
	}
	if len(schedule) == 0 {
		return nil
	}

	price := security.FaceValue // synthetic solve targets par by convention when no market price is supplied

	guess := 0.05
	const maxIterations = 100
	const tolerance = 1e-4
	const floor = 1e-4

	for i := 0; i < maxIterations; i++ {
		var pv, derivative float64
		for _, flow := range schedule {
			df := math.Pow(1+guess, -flow.years)
			pv += flow.amount * df
			derivative += -flow.years * flow.amount * math.Pow(1+guess, -flow.years-1)
		}
		diff := pv - price
		if math.Abs(diff) < tolerance {
			result := guess
			return &result
		}
		if derivative == 0 {
			return nil
		}
		guess -= diff / derivative
		if guess < floor {
			guess = floor
		}
	}
	return nil
}
