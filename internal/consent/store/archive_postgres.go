package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"convertviral/internal/consent/models"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS consent_audit_archive (
	id                TEXT PRIMARY KEY,
	owner_key         TEXT NOT NULL,
	user_id           TEXT,
	session_id        TEXT,
	action            TEXT NOT NULL,
	consent_record    JSONB NOT NULL,
	previous_consents JSONB,
	ip                TEXT,
	user_agent        TEXT,
	created_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS consent_audit_archive_owner_idx
	ON consent_audit_archive (owner_key, created_at DESC);
`

// undefinedTable is the Postgres SQLSTATE for a missing relation.
const undefinedTable = "42P01"

// PostgresArchive keeps every audit entry in Postgres, independent of the
// key/value store's TTLs.
type PostgresArchive struct {
	db *sql.DB
}

func NewPostgresArchive(db *sql.DB) *PostgresArchive {
	return &PostgresArchive{db: db}
}

// EnsureSchema creates the archive table if needed.
func (a *PostgresArchive) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, archiveSchema); err != nil {
		return fmt.Errorf("ensure consent archive schema: %w", err)
	}
	return nil
}

// Append inserts entry. Re-appending the same id is a no-op; entries are
// never rewritten.
func (a *PostgresArchive) Append(ctx context.Context, entry *models.AuditEntry) error {
	record, err := json.Marshal(entry.ConsentRecord)
	if err != nil {
		return fmt.Errorf("encode consent record: %w", err)
	}
	var previous sql.NullString
	if entry.PreviousConsents != nil {
		raw, err := json.Marshal(entry.PreviousConsents)
		if err != nil {
			return fmt.Errorf("encode previous consents: %w", err)
		}
		previous = sql.NullString{String: string(raw), Valid: true}
	}

	query := `
		INSERT INTO consent_audit_archive
			(id, owner_key, user_id, session_id, action, consent_record, previous_consents, ip, user_agent, created_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = a.db.ExecContext(ctx, query,
		entry.ID,
		entry.Owner().Key(),
		entry.UserID,
		entry.SessionID,
		string(entry.Action),
		string(record),
		previous,
		entry.IP,
		entry.UserAgent,
		entry.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
			return fmt.Errorf("archive consent entry: schema missing: %w", err)
		}
		return fmt.Errorf("archive consent entry: %w", err)
	}
	return nil
}

// ListByOwner returns the archived entries of owner, newest first.
func (a *PostgresArchive) ListByOwner(ctx context.Context, owner models.Owner, limit int) ([]models.AuditEntry, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, COALESCE(user_id, ''), COALESCE(session_id, ''), action, consent_record,
		       previous_consents, COALESCE(ip, ''), COALESCE(user_agent, ''), created_at
		FROM consent_audit_archive
		WHERE owner_key = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, owner.Key(), limit)
	if err != nil {
		return nil, fmt.Errorf("list archived consent entries: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var (
			e        models.AuditEntry
			action   string
			record   []byte
			previous sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.SessionID, &action, &record, &previous, &e.IP, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan archived consent entry: %w", err)
		}
		e.Action = models.Action(action)
		if err := json.Unmarshal(record, &e.ConsentRecord); err != nil {
			return nil, fmt.Errorf("decode archived consent record %s: %w", e.ID, err)
		}
		if previous.Valid {
			if err := json.Unmarshal([]byte(previous.String), &e.PreviousConsents); err != nil {
				return nil, fmt.Errorf("decode archived previous consents %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// EraseOwner deletes every archived entry of owner.
func (a *PostgresArchive) EraseOwner(ctx context.Context, owner models.Owner) (int64, error) {
	res, err := a.db.ExecContext(ctx, `DELETE FROM consent_audit_archive WHERE owner_key = $1`, owner.Key())
	if err != nil {
		return 0, fmt.Errorf("erase archived consent entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("erase archived consent entries: %w", err)
	}
	return n, nil
}
