// Package orchestrator drives a full valuation run: expand a run target
// to a security set, run the curve, cash-flow, discounting, and FX
// components per security with bounded concurrency, and persist results,
// steps, progress, and audit entries. The worker pool bounds concurrent
// work with golang.org/x/sync/semaphore plus a sync.WaitGroup, collecting
// failures in a mutex-guarded slice, with partial-failure semantics per security
// instead of an all-or-nothing batch job.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"valuationcore/internal/valuation/curveprovider"
	"valuationcore/internal/valuation/dcf"
	"valuationcore/internal/valuation/discountspec"
	"valuationcore/internal/valuation/fxprovider"
	"valuationcore/internal/valuation/model"
	"valuationcore/internal/valuation/projector"
	"valuationcore/internal/valuation/verrors"
)

// TargetExpander resolves a run target to a concrete security id set.
type TargetExpander interface {
	ExpandSecurity(targetID string) []string
	ExpandPortfolio(ctx context.Context, portfolioID string) ([]string, error)
	ExpandFund(ctx context.Context, fundID string) ([]string, error)
}

// DiscountSpecLoader loads a security's discount specification, which may
// be absent.
type DiscountSpecLoader interface {
	GetDiscountSpec(ctx context.Context, securityID string) (*model.DiscountSpec, error)
}

// BookValueLoader resolves a security's current book value for G/L.
type BookValueLoader interface {
	GetBookValue(ctx context.Context, securityID string) (*float64, error)
}

// RunRecorder owns the valuation_runs row lifecycle.
type RunRecorder interface {
	CreateRun(ctx context.Context, run model.ValuationRun) (string, error)
	UpdateProgress(ctx context.Context, runID string, completed, total int) error
	Complete(ctx context.Context, runID string, status model.RunStatus, errorMessage string) error
}

// ResultWriter persists one security's successful valuation transactionally.
type ResultWriter interface {
	WriteSuccess(ctx context.Context, result model.PriceResult, steps []model.CalculationStep, curveSetup map[string]interface{}) error
}

// AuditRecorder writes a standalone audit entry, used for per-security
// failures that never produce a price result.
type AuditRecorder interface {
	Record(ctx context.Context, runID, securityID, action string, details map[string]interface{}) error
}

// SecurityStore loads a security by id for the cash-flow projector.
type SecurityStore interface {
	GetSecurity(ctx context.Context, securityID string) (model.Security, error)
}

// Deps bundles every collaborator the orchestrator drives.
type Deps struct {
	Targets       TargetExpander
	Securities    SecurityStore
	CashFlows     projector.CashFlowStore
	DiscountSpecs DiscountSpecLoader
	BookValues    BookValueLoader
	Curves        curveprovider.Store
	CurveExternal curveprovider.ExternalProvider
	CurveCache    curveprovider.Cache // optional; nil disables read-through
	FX            fxprovider.Store
	FXExternal    fxprovider.ExternalProvider
	FXCache       fxprovider.Cache // optional; nil disables read-through
	Runs          RunRecorder
	Results       ResultWriter
	Audit         AuditRecorder
	CurveTTL      time.Duration
}

// Options carries a run's entry-point parameters.
type Options struct {
	RunType              model.RunType
	TargetID             string
	ValuationDate        time.Time
	UserID               string
	BenchmarkCurveName   string
	SpreadCurveName      string
	CurveDate            time.Time // zero means "use ValuationDate"
	ReportingCurrency    string // empty means "use the security's own currency"
	Parallel             bool
	Concurrency          int
	Deadline             time.Time // zero means "no deadline"
}

// SecurityError records a single security's failure within a run.
type SecurityError struct {
	SecurityID   string
	ErrorMessage string
}

// RunOutput is what the orchestrator returns to its caller.
type RunOutput struct {
	RunID  string
	Status model.RunStatus
	Errors []SecurityError
}

// clampConcurrency enforces the [1,16] bound independent of config.Config,
// so this package has no compile-time dependency on internal/config.
func clampConcurrency(requested int) int {
	if requested < 1 {
		return 1
	}
	if requested > 16 {
		return 16
	}
	return requested
}

// Run executes a full valuation run: expand target, create the run record,
// process every security (serially or via a bounded worker pool), and
// transition the run to its terminal status.
func Run(ctx context.Context, deps Deps, opts Options) (RunOutput, error) {
	securityIDs, err := expand(ctx, deps.Targets, opts.RunType, opts.TargetID)
	if err != nil {
		return RunOutput{}, err
	}
	if len(securityIDs) == 0 {
		return RunOutput{}, verrors.NoTargetsFound(string(opts.RunType), opts.TargetID)
	}

	runID, err := deps.Runs.CreateRun(ctx, model.ValuationRun{
		RunType:         opts.RunType,
		TargetID:        opts.TargetID,
		ValuationDate:   opts.ValuationDate,
		TotalSecurities: len(securityIDs),
		StartedAt:       time.Now(),
		CreatedBy:       opts.UserID,
	})
	if err != nil {
		return RunOutput{}, verrors.CatastrophicStoreFailure("create run", err)
	}

	if opts.CurveDate.IsZero() {
		opts.CurveDate = opts.ValuationDate
	}

	var (
		mu        sync.Mutex
		completed int
		errs      []SecurityError
	)

	deadlineExceeded := func() bool {
		return !opts.Deadline.IsZero() && time.Now().After(opts.Deadline)
	}

	processOne := func(securityID string) {
		failure := processSecurity(ctx, deps, runID, securityID, opts)

		mu.Lock()
		defer mu.Unlock()
		completed++
		if failure != nil {
			errs = append(errs, *failure)
		}

		// Written while mu is held, so successive progress writes carry
		// non-decreasing counts.
		if err := deps.Runs.UpdateProgress(ctx, runID, completed, len(securityIDs)); err != nil {
			return
		}
	}

	if !opts.Parallel || clampConcurrency(opts.Concurrency) <= 1 {
		for _, securityID := range securityIDs {
			if deadlineExceeded() {
				mu.Lock()
				errs = append(errs, SecurityError{SecurityID: securityID, ErrorMessage: "run deadline exceeded"})
				mu.Unlock()
				continue
			}
			processOne(securityID)
		}
	} else {
		concurrency := clampConcurrency(opts.Concurrency)
		sem := semaphore.NewWeighted(int64(concurrency))
		var wg sync.WaitGroup

		for _, securityID := range securityIDs {
			if deadlineExceeded() {
				mu.Lock()
				errs = append(errs, SecurityError{SecurityID: securityID, ErrorMessage: "run deadline exceeded"})
				mu.Unlock()
				continue
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}
			wg.Add(1)
			go func(securityID string) {
				defer wg.Done()
				defer sem.Release(1)
				defer func() {
					if r := recover(); r != nil {
						mu.Lock()
						errs = append(errs, SecurityError{SecurityID: securityID, ErrorMessage: fmt.Sprintf("panic: %v", r)})
						completed++
						mu.Unlock()
					}
				}()
				processOne(securityID)
			}(securityID)
		}
		wg.Wait()
	}

	status := model.RunCompleted
	errorMessage := ""
	switch {
	case len(errs) == len(securityIDs):
		status = model.RunFailed
		errorMessage = fmt.Sprintf("%d of %d securities failed", len(errs), len(securityIDs))
	case len(errs) > 0:
		status = model.RunCompletedWithErrors
		errorMessage = fmt.Sprintf("%d of %d securities failed", len(errs), len(securityIDs))
	}

	if err := deps.Runs.Complete(ctx, runID, status, errorMessage); err != nil {
		return RunOutput{}, verrors.CatastrophicStoreFailure("complete run", err)
	}

	return RunOutput{RunID: runID, Status: status, Errors: errs}, nil
}

func expand(ctx context.Context, targets TargetExpander, runType model.RunType, targetID string) ([]string, error) {
	switch runType {
	case model.RunSecurity:
		return targets.ExpandSecurity(targetID), nil
	case model.RunPortfolio:
		return targets.ExpandPortfolio(ctx, targetID)
	case model.RunFund:
		return targets.ExpandFund(ctx, targetID)
	default:
		return nil, verrors.ValidationError("unknown run type %q", runType)
	}
}

// processSecurity runs one security's independent pipeline — projector,
// curve provider, DCF engine, optional FX conversion — and writes its
// result transactionally. Returns non-nil only on failure; it never
// aborts the run.
func processSecurity(ctx context.Context, deps Deps, runID, securityID string, opts Options) *SecurityError {
	fail := func(stage string, err error) *SecurityError {
		msg := fmt.Sprintf("%s: %v", stage, err)
		_ = deps.Audit.Record(ctx, runID, securityID, "valuation_failed", map[string]interface{}{
			"stage": stage,
			"error": err.Error(),
		})
		return &SecurityError{SecurityID: securityID, ErrorMessage: msg}
	}

	spec, err := deps.DiscountSpecs.GetDiscountSpec(ctx, securityID)
	if err != nil {
		return fail("load discount spec", err)
	}

	benchmarkName := opts.BenchmarkCurveName
	spreadName := opts.SpreadCurveName
	manualSpreads := map[string]float64{}
	var ifrsOverride *int
	if spec != nil {
		if err := discountspec.Validate(*spec); err != nil {
			return fail("validate discount spec", err)
		}
		if benchmarkName == "" {
			benchmarkName = spec.BenchmarkCurveName
		}
		if spreadName == "" {
			spreadName = spec.SpreadCurveName
		}
		manualSpreads = spec.ManualSpreads
		ifrsOverride = spec.IFRSLevel
	}
	if benchmarkName == "" {
		return fail("resolve benchmark curve", verrors.ValidationError("no benchmark curve configured for security %q", securityID))
	}

	composite, err := curveprovider.LoadComposite(ctx, deps.Curves, deps.CurveExternal, deps.CurveCache, deps.CurveTTL, benchmarkName, spreadName, opts.CurveDate, manualSpreads)
	if err != nil {
		return fail("load composite curve", err)
	}

	projection, err := projector.Project(ctx, deps.Securities, deps.CashFlows, securityID, opts.ValuationDate)
	if err != nil {
		return fail("project cash flows", err)
	}

	bookValue, err := deps.BookValues.GetBookValue(ctx, securityID)
	if err != nil {
		return fail("load book value", err)
	}

	curveSetup := dcf.CurveSetup{
		BenchmarkName:   benchmarkName,
		BenchmarkDate:   opts.CurveDate,
		SpreadName:      spreadName,
		SpreadDate:      opts.CurveDate,
		ManualOverrides: manualSpreads,
	}

	result, err := dcf.Run(dcf.Input{
		Security:       projection.Security,
		FlowsSorted:    projection.AllSorted,
		CompositeCurve: composite,
		ValuationDate:  opts.ValuationDate,
		Currency:       projection.Security.Currency,
		IncludeAccrued: true,
		BookValue:      bookValue,
		CurveSetup:     curveSetup,
	})
	if err != nil {
		return fail("run dcf engine", err)
	}

	dirtyValue := result.DirtyValue
	reportingCurrency := projection.Security.Currency
	if opts.ReportingCurrency != "" && opts.ReportingCurrency != projection.Security.Currency {
		rate, fxErr := fxprovider.Rate(ctx, deps.FX, deps.FXExternal, deps.FXCache, projection.Security.Currency, opts.ReportingCurrency, opts.ValuationDate)
		if fxErr != nil {
			return fail("resolve fx rate", fxErr)
		}
		dirtyValue *= rate.Rate
		reportingCurrency = opts.ReportingCurrency
	}

	ifrsLevel := determineIFRSLevel(ifrsOverride, projection.Security)

	for i := range result.CalculationSteps {
		result.CalculationSteps[i].RunID = runID
	}

	priceResult := model.PriceResult{
		RunID:              runID,
		SecurityID:         securityID,
		ValuationDate:      opts.ValuationDate,
		BookValue:          bookValue,
		PresentValue:       result.PresentValue,
		AccruedInterest:    result.AccruedInterest,
		FairValue:          dirtyValue,
		UnrealizedGainLoss: result.UnrealizedGainLoss,
		Currency:           reportingCurrency,
		IFRSLevel:          &ifrsLevel,
	}

	curveSetupDetails := map[string]interface{}{
		"benchmark_curve_name": benchmarkName,
		"benchmark_date":       opts.CurveDate.Format("2006-01-02"),
		"spread_curve_name":    spreadName,
		"spread_date":          opts.CurveDate.Format("2006-01-02"),
		"manual_overrides":     manualSpreads,
		"duration":             result.Metrics.Duration,
		"convexity":            result.Metrics.Convexity,
		"ytm":                  result.Metrics.YTM,
	}

	if err := deps.Results.WriteSuccess(ctx, priceResult, result.CalculationSteps, curveSetupDetails); err != nil {
		return fail("write valuation result", err)
	}

	return nil
}

// determineIFRSLevel picks the IFRS fair-value hierarchy level: an
// explicit discount-spec override wins; otherwise an instrument-type
// rule of thumb. Security carries no rating/sector field, so the
// fallback can't key on either; callers who need a different level for
// a given security (e.g. an illiquid "Level 1 by type" bond) set it via
// the discount-spec override instead.
func determineIFRSLevel(override *int, security model.Security) int {
	if override != nil {
		return *override
	}
	switch security.InstrumentType {
	case model.FixedCouponBond, model.ZeroCouponBond, model.TermLoan:
		return 1
	case model.FloatingRateBond, model.AmortizingLoan, model.RevolvingLoan, model.StepUpBond:
		return 2
	default:
		return 3
	}
}
