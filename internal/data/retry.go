package data

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/sirupsen/logrus"

	"valuationcore/internal/valuation/verrors"
)

// isConnectionError checks if the error is related to database connectivity
// issues (as opposed to a query-shape error that retrying won't fix).
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if pgErr, ok := err.(*pgconn.PgError); ok {
		sqlState := pgErr.Code
		return strings.HasPrefix(sqlState, "08") ||
			sqlState == "57P01" ||
			sqlState == "57P02" ||
			sqlState == "57P03"
	}

	errStr := strings.ToLower(err.Error())
	connectionKeywords := []string{
		"connection refused",
		"connection reset",
		"connection closed",
		"unexpected eof",
		"broken pipe",
		"no such host",
		"network is unreachable",
		"timeout",
		"connection lost",
		"server closed the connection",
	}
	for _, keyword := range connectionKeywords {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}
	return false
}

// ExecWithRetry executes a SQL statement with an exponential-backoff retry
// strategy, for transient network/database errors. Exhausting all attempts
// wraps the last error as a verrors.CatastrophicStoreFailure; a
// non-retryable query error (undefined column, SQLSTATE 42703) is
// returned on the first attempt, wrapped as a verrors validation error.
func ExecWithRetry(ctx context.Context, db *pgxpool.Pool, op string, query string, args ...interface{}) (pgconn.CommandTag, error) {
	const maxAttempts = 5
	const maxConnectionAttempts = 10
	backoff := 500 * time.Millisecond

	var tag pgconn.CommandTag
	var err error

	for attempt := 1; attempt <= maxConnectionAttempts; attempt++ {
		tag, err = db.Exec(ctx, query, args...)
		if err == nil {
			return tag, nil
		}

		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "42703" {
			return tag, verrors.Wrap(verrors.KindValidation, "undefined column in "+op, err)
		}

		if ctx.Err() != nil {
			return tag, ctx.Err()
		}

		isConnErr := isConnectionError(err)
		limit := maxAttempts
		if isConnErr {
			limit = maxConnectionAttempts
		}
		if attempt >= limit {
			break
		}

		logrus.WithField("component", "data.retry").
			WithError(err).
			Warnf("exec failed during %s (attempt %d/%d)", op, attempt, limit)

		currentBackoff := backoff
		if isConnErr && attempt > maxAttempts {
			currentBackoff = backoff * 3
		}
		time.Sleep(currentBackoff)
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
	return tag, verrors.Wrap(verrors.KindCatastrophicStore, "repeatedly failed during "+op, err)
}

// QueryRetryable reports whether err from a read path should be treated as
// transient (caller may retry or fall through to a fallback source) versus
// a definitive absence.
func QueryRetryable(err error) bool {
	return isConnectionError(err)
}
