package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-approvals/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const artifactCacheKeyPrefix = "go-approvals::artifact::v1"

// CachedArtifactStore fronts an ArtifactStore with a read cache for
// Get. Every write path invalidates the entry, so a cached read never
// outlives a version bump.
type CachedArtifactStore struct {
	base  core.ArtifactStore
	cache repositorycache.CacheService
}

func NewCachedArtifactStore(
	base core.ArtifactStore,
	cacheService repositorycache.CacheService,
) (*CachedArtifactStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base artifact store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: artifact cache service is required")
	}
	return &CachedArtifactStore{base: base, cache: cacheService}, nil
}

// ArtifactCacheKey returns the deterministic cache key contract for
// artifact reads: go-approvals::artifact::v1::<id> with the id URL-path
// escaped.
func ArtifactCacheKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("sqlstore: artifact id is required")
	}
	return artifactCacheKeyPrefix + "::" + url.PathEscape(id), nil
}

func (s *CachedArtifactStore) Create(ctx context.Context, in core.CreateArtifactInput) (core.Artifact, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Artifact{}, fmt.Errorf("sqlstore: cached artifact store is not configured")
	}
	created, err := s.base.Create(ctx, in)
	if err != nil {
		return core.Artifact{}, err
	}
	if err := s.invalidate(ctx, created.ID); err != nil {
		return core.Artifact{}, err
	}
	return created, nil
}

func (s *CachedArtifactStore) Get(ctx context.Context, id string) (core.Artifact, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Artifact{}, fmt.Errorf("sqlstore: cached artifact store is not configured")
	}
	cacheKey, err := ArtifactCacheKey(id)
	if err != nil {
		return core.Artifact{}, err
	}

	artifact, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Artifact, error) {
		fetched, fetchErr := s.base.Get(ctx, id)
		if fetchErr != nil {
			return core.Artifact{}, fetchErr
		}
		return cloneArtifact(fetched), nil
	})
	if err != nil {
		return core.Artifact{}, err
	}
	return cloneArtifact(artifact), nil
}

func (s *CachedArtifactStore) CompareAndSwap(
	ctx context.Context,
	id string,
	expectedVersion int,
	next core.Artifact,
) (core.Artifact, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Artifact{}, fmt.Errorf("sqlstore: cached artifact store is not configured")
	}
	swapped, err := s.base.CompareAndSwap(ctx, id, expectedVersion, next)
	if err != nil {
		// A losing writer read a stale version; drop the entry so the
		// retry re-reads through to the base store.
		_ = s.invalidate(ctx, id)
		return core.Artifact{}, err
	}
	if err := s.invalidate(ctx, id); err != nil {
		return core.Artifact{}, err
	}
	return swapped, nil
}

func (s *CachedArtifactStore) ListPending(ctx context.Context, olderThan time.Time) ([]core.Artifact, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached artifact store is not configured")
	}
	// Pending scans always hit the base store: the scheduler depends on
	// fresh last_notified_at values.
	return s.base.ListPending(ctx, olderThan)
}

func (s *CachedArtifactStore) invalidate(ctx context.Context, id string) error {
	cacheKey, err := ArtifactCacheKey(id)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneArtifact(artifact core.Artifact) core.Artifact {
	cloned := artifact
	cloned.Payload = append([]byte(nil), artifact.Payload...)
	cloned.RevisionHistory = append([]string(nil), artifact.RevisionHistory...)
	return cloned
}

var _ core.ArtifactStore = (*CachedArtifactStore)(nil)
