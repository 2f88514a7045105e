package query

import (
	"context"
	"time"

	"github.com/goliatone/go-approvals/core"
	"github.com/goliatone/go-approvals/similarity"
)

// ArtifactReader is the read slice of the artifact store.
type ArtifactReader interface {
	Get(ctx context.Context, id string) (core.Artifact, error)
	ListPending(ctx context.Context, olderThan time.Time) ([]core.Artifact, error)
}

type DuplicateFinder interface {
	FindExisting(candidate string, existing []string) []similarity.Match
}

type GetArtifactQuery struct {
	reader ArtifactReader
}

func NewGetArtifactQuery(reader ArtifactReader) *GetArtifactQuery {
	return &GetArtifactQuery{reader: reader}
}

func (q *GetArtifactQuery) Query(ctx context.Context, msg GetArtifactMessage) (core.Artifact, error) {
	if q == nil || q.reader == nil {
		return core.Artifact{}, queryDependencyError("query: artifact reader is required")
	}
	return q.reader.Get(ctx, msg.ArtifactID)
}

type ListPendingQuery struct {
	reader ArtifactReader
}

func NewListPendingQuery(reader ArtifactReader) *ListPendingQuery {
	return &ListPendingQuery{reader: reader}
}

func (q *ListPendingQuery) Query(ctx context.Context, msg ListPendingMessage) ([]core.Artifact, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: artifact reader is required")
	}
	return q.reader.ListPending(ctx, msg.OlderThan)
}

type FindDuplicatesQuery struct {
	finder DuplicateFinder
}

func NewFindDuplicatesQuery(finder DuplicateFinder) *FindDuplicatesQuery {
	return &FindDuplicatesQuery{finder: finder}
}

func (q *FindDuplicatesQuery) Query(ctx context.Context, msg FindDuplicatesMessage) ([]similarity.Match, error) {
	if q == nil || q.finder == nil {
		return nil, queryDependencyError("query: duplicate finder is required")
	}
	return q.finder.FindExisting(msg.Candidate, msg.Existing), nil
}
