package sqlstore_test

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/goliatone/go-approvals/core"
	approvalmigrations "github.com/goliatone/go-approvals/migrations"
	sqlstore "github.com/goliatone/go-approvals/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-approvals-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"approval_artifacts",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "approval_artifacts" {
		t.Fatalf("expected approval_artifacts table, got %q", tableName)
	}
}

func TestArtifactStore_RoundTripAndVersioning(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.ArtifactStore()
	if store == nil {
		t.Fatalf("expected artifact store from factory")
	}

	payload := []byte(`{"title":"Weekly sync minutes","entries":["Ship the rollout"]}`)
	created, err := store.Create(ctx, core.CreateArtifactInput{
		Kind:       core.ArtifactKindMinutes,
		Payload:    payload,
		ChannelRef: core.ChannelRef{ChannelID: "C1"},
	})
	if err != nil {
		t.Fatalf("create artifact: %v", err)
	}
	if created.Version != 1 {
		t.Fatalf("expected version 1, got %d", created.Version)
	}
	if created.Status != core.ArtifactStatusPending {
		t.Fatalf("expected pending status, got %q", created.Status)
	}

	fetched, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	if !bytes.Equal(fetched.Payload, payload) {
		t.Fatalf("expected payload round-trip, got %q", fetched.Payload)
	}
	if fetched.Kind != core.ArtifactKindMinutes || fetched.ChannelRef.ChannelID != "C1" {
		t.Fatalf("unexpected fetched artifact: %#v", fetched)
	}

	next := fetched
	next.Status = core.ArtifactStatusApproved
	next.Reviewer = "U1"
	swapped, err := store.CompareAndSwap(ctx, created.ID, fetched.Version, next)
	if err != nil {
		t.Fatalf("compare and swap: %v", err)
	}
	if swapped.Version != fetched.Version+1 {
		t.Fatalf("expected version bump to %d, got %d", fetched.Version+1, swapped.Version)
	}
	if swapped.Status != core.ArtifactStatusApproved {
		t.Fatalf("expected approved status, got %q", swapped.Status)
	}

	if _, err := store.CompareAndSwap(ctx, created.ID, fetched.Version, next); err == nil {
		t.Fatalf("expected version conflict for stale writer")
	} else if !errors.Is(err, core.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
}

func TestArtifactStore_ListPendingFiltersByCutoffAndStatus(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.ArtifactStore()

	stale, err := store.Create(ctx, core.CreateArtifactInput{
		Kind:       core.ArtifactKindTaskList,
		Payload:    []byte(`{"entries":["a"]}`),
		ChannelRef: core.ChannelRef{ChannelID: "C1"},
	})
	if err != nil {
		t.Fatalf("create stale artifact: %v", err)
	}
	finalized, err := store.Create(ctx, core.CreateArtifactInput{
		Kind:       core.ArtifactKindTaskList,
		Payload:    []byte(`{"entries":["b"]}`),
		ChannelRef: core.ChannelRef{ChannelID: "C1"},
	})
	if err != nil {
		t.Fatalf("create finalized artifact: %v", err)
	}

	next := finalized
	next.Status = core.ArtifactStatusCancelled
	if _, err := store.CompareAndSwap(ctx, finalized.ID, finalized.Version, next); err != nil {
		t.Fatalf("cancel artifact: %v", err)
	}

	pending, err := store.ListPending(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending artifact, got %d", len(pending))
	}
	if pending[0].ID != stale.ID {
		t.Fatalf("expected %q pending, got %q", stale.ID, pending[0].ID)
	}

	pending, err = store.ListPending(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("list pending before cutoff: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no artifacts older than cutoff, got %d", len(pending))
	}
}

func TestIngressClaimStore_DedupeAndReclaim(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	claims := factory.ClaimStore()
	if claims == nil {
		t.Fatalf("expected claim store from factory")
	}

	claimID, acquired, err := claims.Claim(ctx, "interaction:delivery_1", time.Minute)
	if err != nil {
		t.Fatalf("claim delivery: %v", err)
	}
	if !acquired || claimID == "" {
		t.Fatalf("expected first claim to acquire, got id=%q acquired=%v", claimID, acquired)
	}

	if _, acquired, err = claims.Claim(ctx, "interaction:delivery_1", time.Minute); err != nil {
		t.Fatalf("duplicate claim: %v", err)
	} else if acquired {
		t.Fatalf("expected duplicate claim to be refused while lease is live")
	}

	if err := claims.Fail(ctx, claimID, fmt.Errorf("notify failed"), time.Now().UTC().Add(-time.Second)); err != nil {
		t.Fatalf("fail claim: %v", err)
	}

	reclaimID, acquired, err := claims.Claim(ctx, "interaction:delivery_1", time.Minute)
	if err != nil {
		t.Fatalf("reclaim delivery: %v", err)
	}
	if !acquired {
		t.Fatalf("expected failed claim to be reclaimable after retry delay")
	}

	if err := claims.Complete(ctx, reclaimID); err != nil {
		t.Fatalf("complete claim: %v", err)
	}

	if _, acquired, err = claims.Claim(ctx, "interaction:delivery_1", time.Minute); err != nil {
		t.Fatalf("claim after completion: %v", err)
	} else if acquired {
		t.Fatalf("expected completed claim key to stay refused")
	}
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:approvals-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = approvalmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != approvalmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, approvalmigrations.WithValidationTargets(approvalmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
