package sqlstore

import "github.com/goliatone/go-approvals/core"

var (
	_ core.ArtifactStore          = (*ArtifactStore)(nil)
	_ core.IdempotencyClaimStore  = (*IngressClaimStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
