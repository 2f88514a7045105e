package query

import (
	"github.com/goliatone/go-approvals/core"
	"github.com/goliatone/go-approvals/similarity"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[GetArtifactMessage, core.Artifact]         = (*GetArtifactQuery)(nil)
	_ gocmd.Querier[ListPendingMessage, []core.Artifact]       = (*ListPendingQuery)(nil)
	_ gocmd.Querier[FindDuplicatesMessage, []similarity.Match] = (*FindDuplicatesQuery)(nil)
)

var _ DuplicateFinder = (*similarity.Detector)(nil)
