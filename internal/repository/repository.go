// Package repository persists analysis reports.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/opensource-finance/ringwatch/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// DefaultListLimit caps ListReports when no limit is given.
const DefaultListLimit = 50

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveReport stores a report with its rings and flagged accounts in one
// transaction.
func (r *SQLRepository) SaveReport(ctx context.Context, tenantID string, report *domain.Report) (err error) {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if report == nil || report.ID == "" {
		return fmt.Errorf("%w: report id is required", ErrInvalidInput)
	}

	summary, err := json.Marshal(report.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, r.rebind(`
		INSERT INTO analysis_runs (
			id, tenant_id, fingerprint, created_at, accounts_analyzed, rings_detected, summary, report
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`),
		report.ID, tenantID, report.Fingerprint, report.CreatedAt.UTC(),
		report.Summary.TotalAccountsAnalyzed, report.Summary.FraudRingsDetected,
		string(summary), string(body),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	ringStmt := r.rebind(`
		INSERT INTO fraud_rings (
			run_id, ring_id, tenant_id, pattern_type, risk_score, member_count, created_at, body
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	memberStmt := r.rebind(`
		INSERT INTO ring_members (run_id, ring_id, tenant_id, account_id, role)
		VALUES (?, ?, ?, ?, ?)
	`)
	for i := range report.FraudRings {
		ring := &report.FraudRings[i]
		ringBody, mErr := json.Marshal(ring)
		if mErr != nil {
			err = fmt.Errorf("failed to encode ring %s: %w", ring.RingID, mErr)
			return err
		}
		if _, err = tx.ExecContext(ctx, ringStmt,
			report.ID, ring.RingID, tenantID, string(ring.PatternType),
			ring.RiskScore, len(ring.MemberAccounts), report.CreatedAt.UTC(), string(ringBody),
		); err != nil {
			return fmt.Errorf("failed to insert ring %s: %w", ring.RingID, err)
		}

		roles := make(map[string]domain.Role, len(ring.AccountProfiles))
		for _, p := range ring.AccountProfiles {
			roles[p.AccountID] = p.Role
		}
		for _, member := range ring.MemberAccounts {
			role, ok := roles[member]
			if !ok {
				role = domain.RoleMule
			}
			if _, err = tx.ExecContext(ctx, memberStmt,
				report.ID, ring.RingID, tenantID, member, string(role),
			); err != nil {
				return fmt.Errorf("failed to insert ring member: %w", err)
			}
		}
	}

	accountStmt := r.rebind(`
		INSERT INTO suspicious_accounts (
			run_id, account_id, tenant_id, suspicion_score, detected_patterns, ring_id
		) VALUES (?, ?, ?, ?, ?, ?)
	`)
	for _, a := range report.SuspiciousAccounts {
		patterns := make([]string, len(a.DetectedPatterns))
		for i, p := range a.DetectedPatterns {
			patterns[i] = string(p)
		}
		if _, err = tx.ExecContext(ctx, accountStmt,
			report.ID, a.AccountID, tenantID, a.SuspicionScore,
			strings.Join(patterns, ","), a.RingID,
		); err != nil {
			return fmt.Errorf("failed to insert account %s: %w", a.AccountID, err)
		}
	}

	return tx.Commit()
}

// GetReport retrieves a report by ID with tenant isolation.
func (r *SQLRepository) GetReport(ctx context.Context, tenantID string, reportID string) (*domain.Report, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT report FROM analysis_runs WHERE tenant_id = ? AND id = ?`
	return r.scanReport(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, reportID))
}

// FindReportByFingerprint returns the newest report for an identical ledger.
func (r *SQLRepository) FindReportByFingerprint(ctx context.Context, tenantID string, fingerprint string) (*domain.Report, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT report FROM analysis_runs
		WHERE tenant_id = ? AND fingerprint = ?
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanReport(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, fingerprint))
}

func (r *SQLRepository) scanReport(row *sql.Row) (*domain.Report, error) {
	var body string
	err := row.Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var report domain.Report
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}

// ListReports returns the newest reports for a tenant.
func (r *SQLRepository) ListReports(ctx context.Context, tenantID string, limit int) ([]*domain.ReportSummary, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, tenant_id, fingerprint, created_at, summary
		FROM analysis_runs
		WHERE tenant_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []*domain.ReportSummary
	for rows.Next() {
		var s domain.ReportSummary
		var summary string

		if err := rows.Scan(&s.ID, &s.TenantID, &s.Fingerprint, &s.CreatedAt, &summary); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(summary), &s.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode summary for %s: %w", s.ID, err)
		}
		summaries = append(summaries, &s)
	}

	return summaries, rows.Err()
}

// ListRingsByAccount returns every stored ring the account belonged to,
// newest run first.
func (r *SQLRepository) ListRingsByAccount(ctx context.Context, tenantID string, accountID string) ([]*domain.FraudRing, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT fr.body
		FROM ring_members rm
		JOIN fraud_rings fr ON fr.run_id = rm.run_id AND fr.ring_id = rm.ring_id
		WHERE rm.tenant_id = ? AND rm.account_id = ?
		ORDER BY fr.created_at DESC, fr.ring_id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rings []*domain.FraudRing
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var ring domain.FraudRing
		if err := json.Unmarshal([]byte(body), &ring); err != nil {
			return nil, fmt.Errorf("failed to decode ring: %w", err)
		}
		rings = append(rings, &ring)
	}

	return rings, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
