package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/goliatone/go-approvals/core"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type RepositoryFactory struct {
	db *bun.DB

	artifactStore *ArtifactStore
	claimStore    *IngressClaimStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// NewRepositoryFactoryFromSQL wraps a raw sql.DB with the bun dialect
// matching the driver. The caller keeps ownership of the connection
// and its driver registration.
func NewRepositoryFactoryFromSQL(sqlDB *sql.DB, driver string) (*RepositoryFactory, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("sqlstore: sql db is required")
	}
	var db *bun.DB
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "pg", "pgx":
		db = bun.NewDB(sqlDB, pgdialect.New())
	case "sqlite", "sqlite3":
		db = bun.NewDB(sqlDB, sqlitedialect.New())
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	return NewRepositoryFactoryFromDB(db)
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.artifactStore != nil && f.claimStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) ArtifactStore() core.ArtifactStore {
	if f == nil {
		return nil
	}
	return f.artifactStore
}

func (f *RepositoryFactory) ClaimStore() core.IdempotencyClaimStore {
	if f == nil {
		return nil
	}
	return f.claimStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	artifactStore, err := NewArtifactStore(f.db)
	if err != nil {
		return err
	}
	f.artifactStore = artifactStore
	claimStore, err := NewIngressClaimStore(f.db)
	if err != nil {
		return err
	}
	f.claimStore = claimStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
