package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	approvals "github.com/goliatone/go-approvals"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	var postgresFound bool
	var sqliteFound bool
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		switch entry.Dialect {
		case DialectPostgres:
			postgresFound = true
		case DialectSQLite:
			sqliteFound = true
		}
	}

	if !postgresFound {
		t.Fatalf("expected postgres filesystem")
	}
	if !sqliteFound {
		t.Fatalf("expected sqlite filesystem")
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, _ string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0])
	}
}

func TestApprovalTablesMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := approvals.GetCoreMigrationsFS()
	paths := []string{
		"data/sql/migrations/20260801000001_create_approval_tables.up.sql",
		"data/sql/migrations/20260801000001_create_approval_tables.down.sql",
		"data/sql/migrations/sqlite/20260801000001_create_approval_tables.up.sql",
		"data/sql/migrations/sqlite/20260801000001_create_approval_tables.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have content", migrationPath)
		}
	}
}

func TestSQLiteApprovalTablesMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-approval-tables?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	root := approvals.GetCoreMigrationsFS()
	sqliteMigrations, err := fs.Sub(root, "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	if err := execSQLMigration(
		context.Background(),
		db,
		sqliteMigrations,
		"20260801000001_create_approval_tables.up.sql",
	); err != nil {
		t.Fatalf("apply approval tables migration up: %v", err)
	}

	insertArtifact := `
		INSERT INTO approval_artifacts (
			id, kind, status, channel_id, expires_at
		) VALUES (?, ?, ?, ?, ?)
	`
	if _, err := db.ExecContext(
		context.Background(),
		insertArtifact,
		"art_1", "task_list", "pending", "C1", "2026-08-05T00:00:00Z",
	); err != nil {
		t.Fatalf("insert artifact row: %v", err)
	}
	if _, err := db.ExecContext(
		context.Background(),
		insertArtifact,
		"art_1", "task_list", "pending", "C1", "2026-08-05T00:00:00Z",
	); err == nil {
		t.Fatalf("expected primary key violation on duplicate artifact id")
	}

	insertClaim := `
		INSERT INTO approval_ingress_claims (
			id, claim_key, status, lease_expires_at
		) VALUES (?, ?, ?, ?)
	`
	if _, err := db.ExecContext(
		context.Background(),
		insertClaim,
		"claim_1", "interaction:delivery_1", "processing", "2026-08-01T00:01:00Z",
	); err != nil {
		t.Fatalf("insert claim row: %v", err)
	}
	if _, err := db.ExecContext(
		context.Background(),
		insertClaim,
		"claim_2", "interaction:delivery_1", "processing", "2026-08-01T00:01:00Z",
	); err == nil {
		t.Fatalf("expected unique index violation on duplicate claim key")
	}

	if err := execSQLMigration(
		context.Background(),
		db,
		sqliteMigrations,
		"20260801000001_create_approval_tables.down.sql",
	); err != nil {
		t.Fatalf("apply approval tables migration down: %v", err)
	}

	var tableCount int
	if err := db.QueryRowContext(
		context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name LIKE 'approval_%'",
	).Scan(&tableCount); err != nil {
		t.Fatalf("count approval tables: %v", err)
	}
	if tableCount != 0 {
		t.Fatalf("expected approval tables dropped, found %d", tableCount)
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
