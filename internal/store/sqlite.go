package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/agenticap/invoice-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS invoices (
	id                    TEXT PRIMARY KEY,
	file_name             TEXT NOT NULL,
	file_path             TEXT,
	file_hash             TEXT NOT NULL,
	format                TEXT,
	status                TEXT NOT NULL DEFAULT 'processing',
	record                TEXT NOT NULL,
	rule_verdicts         TEXT,
	reconciliation        TEXT,
	extraction_confidence REAL NOT NULL DEFAULT 0,
	overall_confidence    REAL NOT NULL DEFAULT 0,
	refined               INTEGER NOT NULL DEFAULT 0,
	error_message         TEXT,
	created_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status);
CREATE INDEX IF NOT EXISTS idx_invoices_file_hash ON invoices(file_hash);
CREATE INDEX IF NOT EXISTS idx_invoices_created_at ON invoices(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveInvoice(ctx context.Context, inv *model.Invoice) error {
	recordJSON, verdictsJSON, reconJSON, err := marshalInvoice(inv)
	if err != nil {
		return err
	}
	inv.UpdatedAt = time.Now().UTC()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = inv.UpdatedAt
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO invoices (id, file_name, file_path, file_hash, format, status, record,
			rule_verdicts, reconciliation, extraction_confidence, overall_confidence,
			refined, error_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			record = excluded.record,
			rule_verdicts = excluded.rule_verdicts,
			reconciliation = excluded.reconciliation,
			extraction_confidence = excluded.extraction_confidence,
			overall_confidence = excluded.overall_confidence,
			refined = excluded.refined,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at`,
		inv.ID, inv.FileName, inv.FilePath, inv.FileHash, inv.Format, string(inv.Status),
		recordJSON, verdictsJSON, reconJSON, inv.ExtractionConfidence, inv.OverallConfidence,
		inv.Refined, inv.ErrorMessage, inv.CreatedAt, inv.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save invoice %s", inv.ID)
}

const sqliteInvoiceColumns = `id, file_name, file_path, file_hash, format, status, record,
	rule_verdicts, reconciliation, extraction_confidence, overall_confidence,
	refined, error_message, created_at, updated_at`

func (s *SQLiteStore) GetInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteInvoiceColumns+` FROM invoices WHERE id = ?`, id)
	inv, err := scanInvoice(row)
	if err == errNoInvoice {
		return nil, eris.Errorf("invoice not found: %s", id)
	}
	return inv, err
}

func (s *SQLiteStore) GetInvoiceByHash(ctx context.Context, hash string) (*model.Invoice, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteInvoiceColumns+` FROM invoices WHERE file_hash = ?
		 ORDER BY created_at DESC LIMIT 1`, hash)
	inv, err := scanInvoice(row)
	if err == errNoInvoice {
		return nil, nil
	}
	return inv, err
}

func (s *SQLiteStore) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]model.Invoice, error) {
	query := `SELECT ` + sqliteInvoiceColumns + ` FROM invoices WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Vendor != "" {
		query += ` AND json_extract(record, '$.vendor_name') = ?`
		args = append(args, filter.Vendor)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list invoices")
	}
	defer rows.Close()

	var invoices []model.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, eris.Wrap(rows.Err(), "sqlite: list invoices iterate")
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByStatus: map[string]int{}}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM invoices GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by status")
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		stats.ByStatus[status] = n
		stats.TotalInvoices += n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats iterate")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(overall_confidence), 0) FROM invoices WHERE status = ?`,
		string(model.InvoiceStatusCompleted))
	var completed int
	if err := row.Scan(&completed, &stats.AverageConfidence); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats confidence")
	}

	row = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM invoices WHERE json_extract(reconciliation, '$.reconciled') = 1`)
	if err := row.Scan(&stats.ReconciledCount); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats reconciled")
	}

	return stats, nil
}

// helpers

var errNoInvoice = eris.New("no invoice row")

func marshalInvoice(inv *model.Invoice) (record, verdicts, recon sql.NullString, err error) {
	b, err2 := json.Marshal(inv.Record)
	if err2 != nil {
		return record, verdicts, recon, eris.Wrap(err2, "store: marshal record")
	}
	record = sql.NullString{String: string(b), Valid: true}

	if inv.RuleVerdicts != nil {
		b, err2 = json.Marshal(inv.RuleVerdicts)
		if err2 != nil {
			return record, verdicts, recon, eris.Wrap(err2, "store: marshal verdicts")
		}
		verdicts = sql.NullString{String: string(b), Valid: true}
	}
	if inv.Reconciliation != nil {
		b, err2 = json.Marshal(inv.Reconciliation)
		if err2 != nil {
			return record, verdicts, recon, eris.Wrap(err2, "store: marshal reconciliation")
		}
		recon = sql.NullString{String: string(b), Valid: true}
	}
	return record, verdicts, recon, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanInvoice(row scannable) (*model.Invoice, error) {
	var inv model.Invoice
	var status, recordJSON string
	var filePath, format, errorMessage, verdictsJSON, reconJSON sql.NullString

	err := row.Scan(&inv.ID, &inv.FileName, &filePath, &inv.FileHash, &format, &status,
		&recordJSON, &verdictsJSON, &reconJSON, &inv.ExtractionConfidence,
		&inv.OverallConfidence, &inv.Refined, &errorMessage, &inv.CreatedAt, &inv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errNoInvoice
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan invoice")
	}

	inv.Status = model.InvoiceStatus(status)
	inv.FilePath = filePath.String
	inv.Format = format.String
	inv.ErrorMessage = errorMessage.String

	if err := unmarshalInvoiceJSON(&inv, recordJSON, verdictsJSON.String, reconJSON.String); err != nil {
		return nil, err
	}
	return &inv, nil
}

func unmarshalInvoiceJSON(inv *model.Invoice, recordJSON, verdictsJSON, reconJSON string) error {
	if err := json.Unmarshal([]byte(recordJSON), &inv.Record); err != nil {
		return eris.Wrap(err, "store: unmarshal record")
	}
	if verdictsJSON != "" {
		if err := json.Unmarshal([]byte(verdictsJSON), &inv.RuleVerdicts); err != nil {
			return eris.Wrap(err, "store: unmarshal verdicts")
		}
	}
	if reconJSON != "" {
		inv.Reconciliation = &model.ReconciliationReport{}
		if err := json.Unmarshal([]byte(reconJSON), inv.Reconciliation); err != nil {
			return eris.Wrap(err, "store: unmarshal reconciliation")
		}
	}
	return nil
}
