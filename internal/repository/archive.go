// Package repository persists the history ledger through database/sql.
// The driver is picked from the DSN: postgres:// URLs go through pgx,
// anything else is treated as a sqlite file path.
package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/invoice-ai/invoiceai/constants"
	"github.com/invoice-ai/invoiceai/internal/entity"
)

const schema = `
CREATE TABLE IF NOT EXISTS archive_records (
	invoice_id    TEXT NOT NULL,
	file_name     TEXT NOT NULL,
	status        TEXT NOT NULL,
	fields_json   TEXT NOT NULL,
	overall_conf  REAL NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	resolved_at   TIMESTAMP,
	resolved_by   TEXT,
	reject_reason TEXT,
	archived_at   TIMESTAMP NOT NULL,
	seq           INTEGER PRIMARY KEY AUTOINCREMENT
);
CREATE INDEX IF NOT EXISTS idx_archive_status ON archive_records(status);
CREATE INDEX IF NOT EXISTS idx_archive_invoice ON archive_records(invoice_id);
`

// Postgres has no AUTOINCREMENT keyword; GENERATED covers the same need.
const schemaPostgres = `
CREATE TABLE IF NOT EXISTS archive_records (
	invoice_id    TEXT NOT NULL,
	file_name     TEXT NOT NULL,
	status        TEXT NOT NULL,
	fields_json   TEXT NOT NULL,
	overall_conf  DOUBLE PRECISION NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	resolved_at   TIMESTAMPTZ,
	resolved_by   TEXT,
	reject_reason TEXT,
	archived_at   TIMESTAMPTZ NOT NULL,
	seq           BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY
);
CREATE INDEX IF NOT EXISTS idx_archive_status ON archive_records(status);
CREATE INDEX IF NOT EXISTS idx_archive_invoice ON archive_records(invoice_id);
`

// ArchiveRepository writes ledger appends through to a SQL database and
// reloads them on startup.
type ArchiveRepository struct {
	db       *sql.DB
	logger   *slog.Logger
	postgres bool
}

// Open connects to the archive database and ensures the schema exists.
func Open(dsn string, logger *slog.Logger) (*ArchiveRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	driver := "sqlite"
	postgres := false
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "pgx"
		postgres = true
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	ddl := schema
	if postgres {
		ddl = schemaPostgres
	}
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply archive schema: %w", err)
	}

	logger.Info("archive.db.open", "driver", driver)
	return &ArchiveRepository{db: db, logger: logger, postgres: postgres}, nil
}

func (r *ArchiveRepository) Close() error {
	return r.db.Close()
}

// Persist appends one archived snapshot. Implements archive.Sink.
func (r *ArchiveRepository) Persist(rec *entity.ArchiveRecord) error {
	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	query := `INSERT INTO archive_records
		(invoice_id, file_name, status, fields_json, overall_conf, created_at, resolved_at, resolved_by, reject_reason, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if r.postgres {
		query = `INSERT INTO archive_records
		(invoice_id, file_name, status, fields_json, overall_conf, created_at, resolved_at, resolved_by, reject_reason, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	}
	_, err = r.db.Exec(query,
		rec.ID.String(), rec.FileName, string(rec.Status), string(fieldsJSON),
		rec.OverallConfidence, rec.CreatedAt, rec.ResolvedAt, rec.ResolvedBy,
		rec.RejectReason, rec.ArchivedAt,
	)
	return err
}

// Load returns every persisted record in insertion order.
func (r *ArchiveRepository) Load() ([]*entity.ArchiveRecord, error) {
	rows, err := r.db.Query(`SELECT invoice_id, file_name, status, fields_json, overall_conf,
		created_at, resolved_at, resolved_by, reject_reason, archived_at
		FROM archive_records ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var out []*entity.ArchiveRecord
	for rows.Next() {
		var (
			idStr, fileName, statusStr, fieldsJSON string
			overall                                float64
			createdAt, archivedAt                  time.Time
			resolvedAt                             sql.NullTime
			resolvedBy, rejectReason               sql.NullString
		)
		if err := rows.Scan(&idStr, &fileName, &statusStr, &fieldsJSON, &overall,
			&createdAt, &resolvedAt, &resolvedBy, &rejectReason, &archivedAt); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}

		id, err := uuid.Parse(idStr)
		if err != nil {
			r.logger.Warn("archive.db.bad_row", "invoice_id", idStr, "error", err)
			continue
		}
		status, ok := constants.ParseStatus(statusStr)
		if !ok {
			r.logger.Warn("archive.db.bad_row", "invoice_id", idStr, "status", statusStr)
			continue
		}
		var fields []entity.ExtractedField
		if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
			return nil, fmt.Errorf("unmarshal fields for %s: %w", idStr, err)
		}

		rec := &entity.ArchiveRecord{
			Invoice: entity.Invoice{
				ID:                id,
				FileName:          fileName,
				Status:            status,
				Fields:            fields,
				OverallConfidence: overall,
				CreatedAt:         createdAt,
			},
			ArchivedAt: archivedAt,
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time
			rec.ResolvedAt = &t
		}
		if resolvedBy.Valid {
			s := resolvedBy.String
			rec.ResolvedBy = &s
		}
		if rejectReason.Valid {
			s := rejectReason.String
			rec.RejectReason = &s
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
