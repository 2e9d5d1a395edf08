// Package instruments implements cash-flow projection for the nine
// instrument types with six engines: the three loan types share one
// engine, and convertibles use the fixed-coupon engine. Each engine takes
// (security, valuationDate) and returns flows ordered by date, each marked
// realized (paid) or projected by its date against valuationDate; stored
// realized/defaulted flows are merged in by the cash-flow projector.
package instruments

import (
	"sort"
	"time"

	"valuationcore/internal/valuation/daycount"
	"valuationcore/internal/valuation/model"
	"valuationcore/internal/valuation/verrors"
)

// Project dispatches to the engine for security.InstrumentType, with
// classification=loan always routed to the loan engine regardless of
// instrument type.
func Project(security model.Security, valuationDate time.Time) ([]model.CashFlow, error) {
	if security.Classification == model.ClassificationLoan {
		return projectLoan(security, valuationDate)
	}

	switch security.InstrumentType {
	case model.FixedCouponBond:
		return projectFixedCoupon(security, valuationDate)
	case model.ZeroCouponBond:
		return projectZeroCoupon(security, valuationDate)
	case model.FloatingRateBond:
		return projectFloatingRate(security, valuationDate)
	case model.InflationLinked:
		return projectInflationLinked(security, valuationDate)
	case model.StepUpBond:
		return projectStepUp(security, valuationDate)
	case model.TermLoan, model.AmortizingLoan, model.RevolvingLoan:
		return projectLoan(security, valuationDate)
	case model.ConvertibleBond:
		return projectFixedCoupon(security, valuationDate)
	default:
		return nil, verrors.ProjectionUnsupported(string(security.InstrumentType))
	}
}

func finalize(flows []model.CashFlow, valuationDate time.Time) []model.CashFlow {
	sort.SliceStable(flows, func(i, j int) bool { return flows[i].FlowDate.Before(flows[j].FlowDate) })
	for i := range flows {
		flows[i].IsRealized = !flows[i].FlowDate.After(valuationDate)
		if flows[i].IsRealized {
			flows[i].PaymentStatus = model.PaymentPaid
		} else {
			flows[i].PaymentStatus = model.PaymentProjected
		}
	}
	return flows
}

func couponDates(security model.Security) []time.Time {
	return daycount.GenerateCouponDates(security.IssueDate, security.FirstCouponDate, security.MaturityDate, security.CouponFrequency)
}

// ProjectSyntheticFixedCoupon regenerates a fixed-coupon flow schedule for
// a security regardless of its actual instrument type, for the DCF
// engine's best-effort YTM solve, which always solves against a
// synthetic fixed-coupon schedule.
func ProjectSyntheticFixedCoupon(security model.Security, valuationDate time.Time) ([]model.CashFlow, error) {
	return projectFixedCoupon(security, valuationDate)
}

// projectFixedCoupon implements the fixed-coupon bond engine: periodic
// coupon = (coupon * face_value) / (100 * frequency), plus a final
// redemption flow. Zero-frequency or zero-coupon securities delegate to the
// zero-coupon engine.
func projectFixedCoupon(security model.Security, valuationDate time.Time) ([]model.CashFlow, error) {
	periodsPerYear := daycount.PeriodsPerYear(security.CouponFrequency)
	if periodsPerYear == 0 || security.CouponRate == 0 {
		return projectZeroCoupon(security, valuationDate)
	}

	dates := couponDates(security)
	couponAmount := (security.CouponRate * security.FaceValue) / (100.0 * float64(periodsPerYear))

	var flows []model.CashFlow
	for _, d := range dates {
		flows = append(flows, model.CashFlow{
			SecurityID: security.ID,
			FlowDate:   d,
			Amount:     couponAmount,
			Type:       model.FlowCoupon,
		})
	}
	flows = append(flows, model.CashFlow{
		SecurityID: security.ID,
		FlowDate:   security.MaturityDate,
		Amount:     security.FaceValue,
		Type:       model.FlowRedemption,
	})
	return finalize(flows, valuationDate), nil
}

// projectZeroCoupon emits a single redemption of face_value on maturity.
func projectZeroCoupon(security model.Security, valuationDate time.Time) ([]model.CashFlow, error) {
	flows := []model.CashFlow{{
		SecurityID: security.ID,
		FlowDate:   security.MaturityDate,
		Amount:     security.FaceValue,
		Type:       model.FlowRedemption,
	}}
	return finalize(flows, valuationDate), nil
}

// projectFloatingRate approximates each coupon using
// (reference_rate_snapshot + spread)/100 over the current notional, divided
// by frequency, with floor/cap clamping. The final coupon date also emits a
// redemption. Exact forward-rate projection from the composite curve is
// intentionally not modeled here — each period uses the latest snapshot.
func projectFloatingRate(security model.Security, valuationDate time.Time) ([]model.CashFlow, error) {
	periodsPerYear := daycount.PeriodsPerYear(security.CouponFrequency)
	if periodsPerYear == 0 {
		return projectZeroCoupon(security, valuationDate)
	}

	effectiveRate := security.ReferenceRateSnapshot + security.SpreadOverReference
	if security.RateFloor != nil && effectiveRate < *security.RateFloor {
		effectiveRate = *security.RateFloor
	}
	if security.RateCap != nil && effectiveRate > *security.RateCap {
		effectiveRate = *security.RateCap
	}

	dates := couponDates(security)
	couponAmount := (effectiveRate * security.FaceValue) / (100.0 * float64(periodsPerYear))

	var flows []model.CashFlow
	for i, d := range dates {
		flows = append(flows, model.CashFlow{
			SecurityID: security.ID,
			FlowDate:   d,
			Amount:     couponAmount,
			Type:       model.FlowCoupon,
		})
		if i == len(dates)-1 {
			flows = append(flows, model.CashFlow{
				SecurityID: security.ID,
				FlowDate:   d,
				Amount:     security.FaceValue,
				Type:       model.FlowRedemption,
			})
		}
	}
	return finalize(flows, valuationDate), nil
}

// indexRatioAt returns the most recent stored index ratio at or before d,
// defaulting to 1.0.
func indexRatioAt(security model.Security, d time.Time) float64 {
	best := 1.0
	bestDate := time.Time{}
	for dateStr, ratio := range security.IndexRatios {
		parsed, err := time.Parse("2006-01-02", dateStr)
		if err != nil || parsed.After(d) {
			continue
		}
		if parsed.After(bestDate) {
			bestDate = parsed
			best = ratio
		}
	}
	return best
}

// projectInflationLinked scales notional by the stored index ratio at each
// coupon date and emits a final redemption of the scaled notional.
func projectInflationLinked(security model.Security, valuationDate time.Time) ([]model.CashFlow, error) {
	periodsPerYear := daycount.PeriodsPerYear(security.CouponFrequency)
	if periodsPerYear == 0 {
		return projectZeroCoupon(security, valuationDate)
	}

	dates := couponDates(security)
	var flows []model.CashFlow
	for i, d := range dates {
		ratio := indexRatioAt(security, d)
		scaledNotional := security.FaceValue * ratio
		coupon := scaledNotional * security.CouponRate / (100.0 * float64(periodsPerYear))
		flows = append(flows, model.CashFlow{
			SecurityID: security.ID,
			FlowDate:   d,
			Amount:     coupon,
			Type:       model.FlowCoupon,
		})
		if i == len(dates)-1 {
			flows = append(flows, model.CashFlow{
				SecurityID: security.ID,
				FlowDate:   d,
				Amount:     scaledNotional,
				Type:       model.FlowRedemption,
			})
		}
	}
	return finalize(flows, valuationDate), nil
}

// applicableStepCoupon returns the step schedule's new_coupon for the
// greatest effective_date <= d, or the base coupon if none applies.
func applicableStepCoupon(security model.Security, d time.Time) float64 {
	coupon := security.CouponRate
	bestDate := time.Time{}
	for _, entry := range security.StepSchedule {
		if entry.EffectiveDate.After(d) {
			continue
		}
		if entry.EffectiveDate.After(bestDate) || bestDate.IsZero() {
			bestDate = entry.EffectiveDate
			coupon = entry.NewCoupon
		}
	}
	return coupon
}

// projectStepUp applies the step schedule's applicable coupon at each
// period end, otherwise behaving like the fixed-coupon engine.
func projectStepUp(security model.Security, valuationDate time.Time) ([]model.CashFlow, error) {
	periodsPerYear := daycount.PeriodsPerYear(security.CouponFrequency)
	if periodsPerYear == 0 {
		return projectZeroCoupon(security, valuationDate)
	}

	dates := couponDates(security)
	var flows []model.CashFlow
	for i, d := range dates {
		coupon := applicableStepCoupon(security, d)
		amount := (coupon * security.FaceValue) / (100.0 * float64(periodsPerYear))
		flows = append(flows, model.CashFlow{
			SecurityID: security.ID,
			FlowDate:   d,
			Amount:     amount,
			Type:       model.FlowCoupon,
		})
		if i == len(dates)-1 {
			flows = append(flows, model.CashFlow{
				SecurityID: security.ID,
				FlowDate:   d,
				Amount:     security.FaceValue,
				Type:       model.FlowRedemption,
			})
		}
	}
	return finalize(flows, valuationDate), nil
}

// projectLoan handles term, amortizing and revolving loans identically: if
// an explicit amortization schedule is provided, emit one flow per row
// (principal when principal_payment != 0, else interest). Otherwise
// generate equal-principal, equal-interest-per-period flows at coupon
// frequency.
func projectLoan(security model.Security, valuationDate time.Time) ([]model.CashFlow, error) {
	if len(security.AmortizationSchedule) > 0 {
		var flows []model.CashFlow
		for _, row := range security.AmortizationSchedule {
			amount := row.PrincipalPayment + row.InterestPayment
			flowType := model.FlowInterest
			if row.PrincipalPayment != 0 {
				flowType = model.FlowPrincipal
			}
			flows = append(flows, model.CashFlow{
				SecurityID: security.ID,
				FlowDate:   row.Date,
				Amount:     amount,
				Type:       flowType,
			})
		}
		return finalize(flows, valuationDate), nil
	}

	periodsPerYear := daycount.PeriodsPerYear(security.CouponFrequency)
	if periodsPerYear == 0 {
		return projectZeroCoupon(security, valuationDate)
	}

	dates := couponDates(security)
	n := float64(len(dates))
	if n == 0 {
		return nil, nil
	}
	principalPerPeriod := security.FaceValue / n
	interestPerPeriod := security.FaceValue * security.CouponRate / (100.0 * n)

	var flows []model.CashFlow
	for _, d := range dates {
		flows = append(flows, model.CashFlow{
			SecurityID: security.ID,
			FlowDate:   d,
			Amount:     principalPerPeriod,
			Type:       model.FlowPrincipal,
		})
		flows = append(flows, model.CashFlow{
			SecurityID: security.ID,
			FlowDate:   d,
			Amount:     interestPerPeriod,
			Type:       model.FlowInterest,
		})
	}
	return finalize(flows, valuationDate), nil
}
