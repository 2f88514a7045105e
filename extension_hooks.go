package approvals

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-approvals/core"
)

// CommitterPack binds a destination committer to one artifact kind so
// downstream applications can route minutes, task lists, and issue
// drafts to different backends.
type CommitterPack struct {
	Name      string
	Kind      core.ArtifactKind
	Committer core.Committer
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	committerPacks map[string]CommitterPack
	bundles        map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		committerPacks: map[string]CommitterPack{},
		bundles:        map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterCommitterPack(pack CommitterPack) error {
	if h == nil {
		return fmt.Errorf("approvals: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("approvals: committer pack name is required")
	}
	if err := pack.Kind.Validate(); err != nil {
		return fmt.Errorf("approvals: committer pack %q: %w", name, err)
	}
	if pack.Committer == nil {
		return fmt.Errorf("approvals: committer pack %q has no committer", name)
	}

	normalized := CommitterPack{
		Name:      name,
		Kind:      pack.Kind,
		Committer: pack.Committer,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.committerPacks[name]; exists {
		return fmt.Errorf("approvals: committer pack %q already registered", name)
	}
	for _, existing := range h.committerPacks {
		if existing.Kind == normalized.Kind {
			return fmt.Errorf(
				"approvals: committer pack %q already covers kind %q",
				existing.Name,
				string(normalized.Kind),
			)
		}
	}
	h.committerPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("approvals: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("approvals: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("approvals: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("approvals: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// BuildCommitter folds the registered packs into one committer that
// routes by artifact kind. Kinds with no pack are rejected at commit
// time, not registration time.
func (h *ExtensionHooks) BuildCommitter() (core.Committer, error) {
	if h == nil {
		return nil, fmt.Errorf("approvals: extension hooks are nil")
	}

	packs := h.CommitterPacks()
	if len(packs) == 0 {
		return nil, fmt.Errorf("approvals: no committer packs registered")
	}
	routes := make(map[core.ArtifactKind]core.Committer, len(packs))
	for _, pack := range packs {
		routes[pack.Kind] = pack.Committer
	}
	return &kindRoutingCommitter{routes: routes}, nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("approvals: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) CommitterPacks() []CommitterPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.committerPacks))
	for name := range h.committerPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]CommitterPack, 0, len(names))
	for _, name := range names {
		out = append(out, h.committerPacks[name])
	}
	return out
}

func (h *ExtensionHooks) CommitterFor(kind core.ArtifactKind) core.Committer {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, pack := range h.committerPacks {
		if pack.Kind == kind {
			return pack.Committer
		}
	}
	return nil
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type kindRoutingCommitter struct {
	routes map[core.ArtifactKind]core.Committer
}

func (c *kindRoutingCommitter) Commit(
	ctx context.Context,
	kind core.ArtifactKind,
	payload []byte,
) (core.CommitResult, error) {
	committer, ok := c.routes[kind]
	if !ok {
		return core.CommitResult{}, fmt.Errorf(
			"approvals: no committer registered for kind %q",
			string(kind),
		)
	}
	return committer.Commit(ctx, kind, payload)
}
