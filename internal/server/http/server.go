// Package http wires the valuation core's HTTP surface: health checks plus
// the run-trigger/status endpoints over internal/valuation/orchestrator.
// Routing uses plain net/http.HandleFunc rather than pulling in a router
// library this surface doesn't need.
package http

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"valuationcore/internal/config"
	"valuationcore/internal/data"
	"valuationcore/internal/data/postgres"
	"valuationcore/internal/server/handlers/health"
	"valuationcore/internal/server/handlers/runs"
	"valuationcore/internal/valuation/curveprovider"
	"valuationcore/internal/valuation/fxprovider"
	"valuationcore/internal/valuation/orchestrator"
)

// StartServer builds the orchestrator's dependency graph from conn/cfg and
// serves the HTTP API until the process is killed.
func StartServer(cfg *config.Config, conn *data.Conn) {
	log := conn.Log.WithField("component", "server.http")

	securities := postgres.NewSecurityStore(conn.DB)
	positions := postgres.NewPositionStore(conn.DB)
	cashFlows := postgres.NewCashFlowStore(conn.DB)
	discountSpecs := postgres.NewDiscountSpecStore(conn.DB)
	curves := postgres.NewCurveStore(conn.DB)
	fx := postgres.NewFXStore(conn.DB)
	runStore := postgres.NewRunStore(conn.DB)
	results := postgres.NewResultStore(conn.DB)
	audit := postgres.NewAuditLogStore(conn.DB)

	var curveExternal curveprovider.ExternalProvider
	var fxExternal fxprovider.ExternalProvider
	if cfg.ExternalCurvesEnabled {
		curveExternal = curveprovider.NewHTTPProvider(cfg, conn.HTTP)
	}
	if cfg.FXProviderEnabled {
		if cfg.FXProviderFlavor == "polygon" {
			fxExternal = fxprovider.NewPolygonProvider(conn.Polygon)
		} else {
			fxExternal = fxprovider.NewHTTPProvider(cfg, conn.HTTP)
		}
	}

	// conn.Cache is nil when Redis is disabled/unreachable; NewRedisCache
	// and the typed-nil Cache it produces both handle that case, so the
	// curve/FX read-through path degrades to store-only lookups.
	cache := data.NewRedisCache(conn.Cache)
	var curveCache curveprovider.Cache
	var fxCache fxprovider.Cache
	if cache != nil {
		curveCache = cache
		fxCache = cache
	}

	deps := orchestrator.Deps{
		Targets:       positions,
		Securities:    securities,
		CashFlows:     cashFlows,
		DiscountSpecs: discountSpecs,
		BookValues:    positions,
		Curves:        curves,
		CurveExternal: curveExternal,
		CurveCache:    curveCache,
		FX:            fx,
		FXExternal:    fxExternal,
		FXCache:       fxCache,
		Runs:          runStore,
		Results:       results,
		Audit:         audit,
		CurveTTL:      cfg.CurveTTL,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", health.Handler())
	mux.HandleFunc("/ready", health.ReadyHandler(conn.DB))
	mux.HandleFunc("/api/runs", runs.TriggerHandler(deps, log))
	mux.HandleFunc("/api/runs/", runs.StatusHandler(runStore, log))

	port := getEnvWithDefault("PORT", "8080")
	addr := fmt.Sprintf(":%s", port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // a large portfolio run can legitimately take minutes
		IdleTimeout:  60 * time.Second,
	}

	log.WithField("addr", addr).Info("starting valuation core server")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server stopped")
	}
}

func getEnvWithDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
