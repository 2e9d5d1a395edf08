package main

import (
	"valuationcore/internal/config"
	"valuationcore/internal/data"
	httpserver "valuationcore/internal/server/http"
)

func main() {
	// Application configuration is handled through environment variables;
	// see internal/config for the full set and their defaults.
	cfg := config.Load()

	inContainer := cfg.Environment != "dev"
	conn, cleanup := data.InitConn(cfg, inContainer)
	defer cleanup()

	httpserver.StartServer(cfg, conn)
}
