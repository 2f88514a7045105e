package approvals

import (
	"context"
	"testing"

	"github.com/goliatone/go-approvals/core"
)

func TestExtensionHooks_RegisterAndBuildCommitter(t *testing.T) {
	hooks := NewExtensionHooks()
	pack := CommitterPack{
		Name:      "docs-pack",
		Kind:      core.ArtifactKindMinutes,
		Committer: &extensionCommitter{ref: "doc_1"},
	}
	if err := hooks.RegisterCommitterPack(pack); err != nil {
		t.Fatalf("register committer pack: %v", err)
	}
	if err := hooks.RegisterCommitterPack(pack); err == nil {
		t.Fatalf("expected duplicate committer pack registration error")
	}
	if err := hooks.RegisterCommitterPack(CommitterPack{
		Name:      "docs-pack-alt",
		Kind:      core.ArtifactKindMinutes,
		Committer: &extensionCommitter{ref: "doc_2"},
	}); err == nil {
		t.Fatalf("expected duplicate kind registration error")
	}
	if err := hooks.RegisterCommitterPack(CommitterPack{
		Name:      "tracker-pack",
		Kind:      core.ArtifactKindTaskList,
		Committer: &extensionCommitter{ref: "issue_1"},
	}); err != nil {
		t.Fatalf("register tracker pack: %v", err)
	}

	committer, err := hooks.BuildCommitter()
	if err != nil {
		t.Fatalf("build committer: %v", err)
	}

	result, err := committer.Commit(context.Background(), core.ArtifactKindTaskList, []byte(`{"tasks":[]}`))
	if err != nil {
		t.Fatalf("commit via routing committer: %v", err)
	}
	if result.ExternalRef != "issue_1" {
		t.Fatalf("expected tracker pack routing, got %q", result.ExternalRef)
	}

	if _, err := committer.Commit(context.Background(), core.ArtifactKindIssueDraft, nil); err == nil {
		t.Fatalf("expected uncovered kind to be rejected at commit time")
	}
}

func TestExtensionHooks_CommandQueryBundles(t *testing.T) {
	hooks := NewExtensionHooks()

	if err := hooks.RegisterCommandQueryBundle("review_bundle", func(service CommandQueryService) (any, error) {
		return map[string]any{
			"apply_fn": service.Apply,
			"get_fn":   service.Get,
		}, nil
	}); err != nil {
		t.Fatalf("register bundle: %v", err)
	}
	if err := hooks.RegisterCommandQueryBundle("review_bundle", func(CommandQueryService) (any, error) { return nil, nil }); err == nil {
		t.Fatalf("expected duplicate bundle registration error")
	}
	if names := hooks.BundleNames(); len(names) != 1 || names[0] != "review_bundle" {
		t.Fatalf("unexpected bundle names: %#v", names)
	}

	svc := &stubFacadeService{}
	bundles, err := hooks.BuildCommandQueryBundles(svc)
	if err != nil {
		t.Fatalf("build bundles: %v", err)
	}
	if len(bundles) != 1 {
		t.Fatalf("expected one bundle, got %d", len(bundles))
	}
	if _, ok := bundles["review_bundle"]; !ok {
		t.Fatalf("expected review_bundle entry in built bundles")
	}
}

type extensionCommitter struct {
	ref string
}

func (c *extensionCommitter) Commit(context.Context, core.ArtifactKind, []byte) (core.CommitResult, error) {
	return core.CommitResult{ExternalRef: c.ref}, nil
}
