package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"valuationcore/internal/data"
	"valuationcore/internal/valuation/verrors"
)

// AuditLogStore writes standalone audit entries — e.g. a per-security
// failure during a run that never gets a price_result.
type AuditLogStore struct {
	DB *pgxpool.Pool
}

func NewAuditLogStore(db *pgxpool.Pool) *AuditLogStore { return &AuditLogStore{DB: db} }

func (s *AuditLogStore) Record(ctx context.Context, runID, securityID, action string, details map[string]interface{}) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return err
	}
	_, err = data.ExecWithRetry(ctx, s.DB, "write audit log entry", `
		INSERT INTO audit_log_entries (id, run_id, security_id, action, details)
		VALUES ($1,$2,$3,$4,$5)`,
		uuid.NewString(), nullableString(runID), nullableString(securityID), action, raw)
	if err != nil {
		return verrors.StoreTransient("write audit log entry", err)
	}
	return nil
}
