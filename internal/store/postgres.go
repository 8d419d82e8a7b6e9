package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/agenticap/invoice-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs. pgxmock
// implements it for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"save_invoice":        postgresSaveInvoice,
	"get_invoice":         `SELECT ` + postgresInvoiceColumns + ` FROM invoices WHERE id = $1`,
	"get_invoice_by_hash": `SELECT ` + postgresInvoiceColumns + ` FROM invoices WHERE file_hash = $1 ORDER BY created_at DESC LIMIT 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS invoices (
	id                    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	file_name             TEXT NOT NULL,
	file_path             TEXT,
	file_hash             TEXT NOT NULL,
	format                TEXT,
	status                TEXT NOT NULL DEFAULT 'processing',
	record                JSONB NOT NULL,
	rule_verdicts         JSONB,
	reconciliation        JSONB,
	extraction_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	overall_confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
	refined               BOOLEAN NOT NULL DEFAULT FALSE,
	error_message         TEXT,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status);
CREATE INDEX IF NOT EXISTS idx_invoices_file_hash ON invoices(file_hash);
CREATE INDEX IF NOT EXISTS idx_invoices_vendor ON invoices((record->>'vendor_name'));
CREATE INDEX IF NOT EXISTS idx_invoices_created_at ON invoices(created_at DESC);
`

const postgresInvoiceColumns = `id, file_name, file_path, file_hash, format, status, record,
	rule_verdicts, reconciliation, extraction_confidence, overall_confidence,
	refined, error_message, created_at, updated_at`

const postgresSaveInvoice = `INSERT INTO invoices (id, file_name, file_path, file_hash, format, status, record,
	rule_verdicts, reconciliation, extraction_confidence, overall_confidence,
	refined, error_message, created_at, updated_at)
 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
 ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	record = EXCLUDED.record,
	rule_verdicts = EXCLUDED.rule_verdicts,
	reconciliation = EXCLUDED.reconciliation,
	extraction_confidence = EXCLUDED.extraction_confidence,
	overall_confidence = EXCLUDED.overall_confidence,
	refined = EXCLUDED.refined,
	error_message = EXCLUDED.error_message,
	updated_at = EXCLUDED.updated_at`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveInvoice(ctx context.Context, inv *model.Invoice) error {
	recordJSON, verdictsJSON, reconJSON, err := marshalInvoice(inv)
	if err != nil {
		return err
	}
	inv.UpdatedAt = time.Now().UTC()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = inv.UpdatedAt
	}

	_, err = s.pool.Exec(ctx, postgresSaveInvoice,
		inv.ID, inv.FileName, nullable(inv.FilePath), inv.FileHash, nullable(inv.Format),
		string(inv.Status), recordJSON.String, nullString(verdictsJSON), nullString(reconJSON),
		inv.ExtractionConfidence, inv.OverallConfidence, inv.Refined,
		nullable(inv.ErrorMessage), inv.CreatedAt, inv.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: save invoice %s", inv.ID)
}

func (s *PostgresStore) GetInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresInvoiceColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanPgInvoice(row)
	if err == errNoInvoice {
		return nil, eris.Errorf("invoice not found: %s", id)
	}
	return inv, err
}

func (s *PostgresStore) GetInvoiceByHash(ctx context.Context, hash string) (*model.Invoice, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresInvoiceColumns+` FROM invoices WHERE file_hash = $1
		 ORDER BY created_at DESC LIMIT 1`, hash)
	inv, err := scanPgInvoice(row)
	if err == errNoInvoice {
		return nil, nil
	}
	return inv, err
}

func (s *PostgresStore) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]model.Invoice, error) {
	query := `SELECT ` + postgresInvoiceColumns + ` FROM invoices WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.Vendor != "" {
		query += ` AND record->>'vendor_name' = ` + arg(filter.Vendor)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list invoices")
	}
	defer rows.Close()

	var invoices []model.Invoice
	for rows.Next() {
		inv, err := scanPgInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, eris.Wrap(rows.Err(), "postgres: list invoices iterate")
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByStatus: map[string]int{}}

	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM invoices GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats by status")
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		stats.ByStatus[status] = n
		stats.TotalInvoices += n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: stats iterate")
	}

	row := s.pool.QueryRow(ctx,
		`SELECT COALESCE(AVG(overall_confidence), 0) FROM invoices WHERE status = $1`,
		string(model.InvoiceStatusCompleted))
	if err := row.Scan(&stats.AverageConfidence); err != nil {
		return nil, eris.Wrap(err, "postgres: stats confidence")
	}

	row = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM invoices WHERE (reconciliation->>'reconciled')::boolean`)
	if err := row.Scan(&stats.ReconciledCount); err != nil {
		return nil, eris.Wrap(err, "postgres: stats reconciled")
	}

	return stats, nil
}

// helpers

func scanPgInvoice(row pgx.Row) (*model.Invoice, error) {
	var inv model.Invoice
	var status, recordJSON string
	var filePath, format, errorMessage, verdictsJSON, reconJSON *string

	err := row.Scan(&inv.ID, &inv.FileName, &filePath, &inv.FileHash, &format, &status,
		&recordJSON, &verdictsJSON, &reconJSON, &inv.ExtractionConfidence,
		&inv.OverallConfidence, &inv.Refined, &errorMessage, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errNoInvoice
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan invoice")
	}

	inv.Status = model.InvoiceStatus(status)
	inv.FilePath = deref(filePath)
	inv.Format = deref(format)
	inv.ErrorMessage = deref(errorMessage)

	if err := unmarshalInvoiceJSON(&inv, recordJSON, deref(verdictsJSON), deref(reconJSON)); err != nil {
		return nil, err
	}
	return &inv, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

