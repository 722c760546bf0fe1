package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/ringwatch/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()
	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "ringwatch-test.db"),
	}
	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testReport(id, fingerprint string, created time.Time) *domain.Report {
	return &domain.Report{
		ID:          id,
		TenantID:    "tenant-001",
		Fingerprint: fingerprint,
		CreatedAt:   created,
		Summary: domain.Summary{
			TotalAccountsAnalyzed:     3,
			SuspiciousAccountsFlagged: 3,
			FraudRingsDetected:        1,
			TransactionsAccepted:      3,
		},
		FraudRings: []domain.FraudRing{{
			RingID:         "RING_001",
			PatternType:    domain.RingPatternCycle,
			MemberAccounts: []string{"A", "B", "C"},
			RiskScore:      40,
			AccountProfiles: []domain.AccountProfile{
				{AccountID: "A", Role: domain.RoleOrchestrator},
				{AccountID: "B", Role: domain.RoleMule},
				{AccountID: "C", Role: domain.RoleExitPoint},
			},
		}},
		SuspiciousAccounts: []domain.SuspiciousAccount{
			{AccountID: "A", SuspicionScore: 40, DetectedPatterns: []domain.Pattern{domain.PatternCycle}, RingID: "RING_001"},
			{AccountID: "B", SuspicionScore: 40, DetectedPatterns: []domain.Pattern{domain.PatternCycle}, RingID: "RING_001"},
			{AccountID: "C", SuspicionScore: 40, DetectedPatterns: []domain.Pattern{domain.PatternCycle}, RingID: "RING_001"},
		},
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetReport", func(t *testing.T) {
		report := testReport("rep-001", "fp-1", base)
		if err := repo.SaveReport(ctx, tenantID, report); err != nil {
			t.Fatalf("SaveReport failed: %v", err)
		}

		got, err := repo.GetReport(ctx, tenantID, "rep-001")
		if err != nil {
			t.Fatalf("GetReport failed: %v", err)
		}
		if got.Fingerprint != "fp-1" {
			t.Errorf("expected fingerprint fp-1, got %s", got.Fingerprint)
		}
		if len(got.FraudRings) != 1 || got.FraudRings[0].RingID != "RING_001" {
			t.Errorf("unexpected rings %+v", got.FraudRings)
		}
		if len(got.SuspiciousAccounts) != 3 {
			t.Errorf("expected 3 accounts, got %d", len(got.SuspiciousAccounts))
		}
	})

	t.Run("DuplicateID", func(t *testing.T) {
		if err := repo.SaveReport(ctx, tenantID, testReport("rep-001", "fp-1", base)); err == nil {
			t.Error("expected error for duplicate report id")
		}
	})

	t.Run("FindByFingerprint", func(t *testing.T) {
		newer := testReport("rep-002", "fp-1", base.Add(time.Hour))
		if err := repo.SaveReport(ctx, tenantID, newer); err != nil {
			t.Fatalf("SaveReport failed: %v", err)
		}

		got, err := repo.FindReportByFingerprint(ctx, tenantID, "fp-1")
		if err != nil {
			t.Fatalf("FindReportByFingerprint failed: %v", err)
		}
		if got.ID != "rep-002" {
			t.Errorf("expected newest report rep-002, got %s", got.ID)
		}

		if _, err := repo.FindReportByFingerprint(ctx, tenantID, "fp-unknown"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListReports", func(t *testing.T) {
		list, err := repo.ListReports(ctx, tenantID, 10)
		if err != nil {
			t.Fatalf("ListReports failed: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected 2 reports, got %d", len(list))
		}
		if list[0].ID != "rep-002" {
			t.Errorf("expected newest first, got %s", list[0].ID)
		}
		if list[0].Summary.FraudRingsDetected != 1 {
			t.Errorf("expected summary to round-trip, got %+v", list[0].Summary)
		}

		limited, err := repo.ListReports(ctx, tenantID, 1)
		if err != nil {
			t.Fatalf("ListReports failed: %v", err)
		}
		if len(limited) != 1 {
			t.Errorf("expected limit to apply, got %d", len(limited))
		}
	})

	t.Run("ListRingsByAccount", func(t *testing.T) {
		rings, err := repo.ListRingsByAccount(ctx, tenantID, "B")
		if err != nil {
			t.Fatalf("ListRingsByAccount failed: %v", err)
		}
		if len(rings) != 2 {
			t.Errorf("expected B in 2 stored rings, got %d", len(rings))
		}

		rings, err = repo.ListRingsByAccount(ctx, tenantID, "nobody")
		if err != nil {
			t.Fatalf("ListRingsByAccount failed: %v", err)
		}
		if len(rings) != 0 {
			t.Errorf("expected no rings, got %d", len(rings))
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		if _, err := repo.GetReport(ctx, "tenant-002", "rep-001"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
		}
		list, err := repo.ListReports(ctx, "tenant-002", 10)
		if err != nil {
			t.Fatalf("ListReports failed: %v", err)
		}
		if len(list) != 0 {
			t.Errorf("expected no reports for other tenant, got %d", len(list))
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := repo.SaveReport(ctx, "", testReport("rep-x", "fp", base)); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if _, err := repo.GetReport(ctx, "", "rep-001"); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if _, err := repo.ListRingsByAccount(ctx, "", "A"); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.GetReport(ctx, tenantID, "nonexistent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.RepositoryConfig{Driver: "mysql"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(domain.RepositoryConfig{PostgresUser: "rw", PostgresPassword: "pw"})
	want := "host=localhost port=5432 user=rw password=pw dbname=ringwatch sslmode=disable"
	if dsn != want {
		t.Errorf("postgresDSN = %q, want %q", dsn, want)
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		if result := repo.rebind(tt.input); result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}

	sqlite := &SQLRepository{driver: "sqlite"}
	if got := sqlite.rebind("SELECT ?"); got != "SELECT ?" {
		t.Errorf("sqlite rebind should be a no-op, got %q", got)
	}
}
