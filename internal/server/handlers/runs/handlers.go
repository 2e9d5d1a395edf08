// Package runs exposes the valuation orchestrator over HTTP: trigger a
// run and poll its status.
package runs

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"valuationcore/internal/valuation/model"
	"valuationcore/internal/valuation/orchestrator"
	"valuationcore/internal/valuation/verrors"
)

// RunGetter loads a run's current status for the poll endpoint.
type RunGetter interface {
	GetRun(ctx context.Context, runID string) (model.ValuationRun, error)
}

type triggerRequest struct {
	RunType            string `json:"run_type"`
	TargetID           string `json:"target_id"`
	ValuationDate      string `json:"valuation_date"`
	BenchmarkCurveName string `json:"benchmark_curve_name"`
	SpreadCurveName    string `json:"spread_curve_name"`
	ReportingCurrency  string `json:"reporting_currency"`
	Parallel           bool   `json:"parallel"`
	Concurrency        int    `json:"concurrency"`
	DeadlineSeconds    int    `json:"deadline_seconds"`
	UserID             string `json:"user_id"`
}

// TriggerHandler handles POST /api/runs: synchronously runs the orchestrator
// and returns its outcome. A fund-wide run with thousands of securities can
// legitimately take minutes; callers driving large runs should set a long
// client timeout or poll StatusHandler instead of waiting on this call.
func TriggerHandler(deps orchestrator.Deps, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req triggerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		valuationDate, err := time.Parse("2006-01-02", req.ValuationDate)
		if err != nil {
			http.Error(w, "valuation_date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}

		opts := orchestrator.Options{
			RunType:            model.RunType(req.RunType),
			TargetID:           req.TargetID,
			ValuationDate:      valuationDate,
			UserID:             req.UserID,
			BenchmarkCurveName: req.BenchmarkCurveName,
			SpreadCurveName:    req.SpreadCurveName,
			ReportingCurrency:  req.ReportingCurrency,
			Parallel:           req.Parallel,
			Concurrency:        req.Concurrency,
		}
		if req.DeadlineSeconds > 0 {
			opts.Deadline = time.Now().Add(time.Duration(req.DeadlineSeconds) * time.Second)
		}

		out, err := orchestrator.Run(r.Context(), deps, opts)
		if err != nil {
			writeError(w, log, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

// StatusHandler handles GET /api/runs/{id}.
func StatusHandler(runs RunGetter, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		runID := strings.TrimPrefix(r.URL.Path, "/api/runs/")
		if runID == "" {
			http.Error(w, "missing run id", http.StatusBadRequest)
			return
		}

		run, err := runs.GetRun(r.Context(), runID)
		if err != nil {
			writeError(w, log, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(run)
	}
}

func writeError(w http.ResponseWriter, log *logrus.Entry, err error) {
	status := http.StatusInternalServerError
	switch {
	case verrors.Is(err, "validation_error"), verrors.Is(err, "no_targets_found"):
		status = http.StatusBadRequest
	case verrors.Is(err, "not_found"):
		status = http.StatusNotFound
	case verrors.Is(err, "curve_unavailable"), verrors.Is(err, "fx_unavailable"):
		status = http.StatusFailedDependency
	}
	log.WithError(err).Warn("run request failed")
	http.Error(w, err.Error(), status)
}
