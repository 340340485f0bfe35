// Package resolve computes the transitive dependency closure of a pack
// configuration. The traversal is a concurrent breadth-first walk over the
// externally-fetched dependency graph with a shared visited set: each
// (platform, project) pair is claimed atomically exactly once, so remote
// cycles terminate and no mod is fetched twice. Side requirements are
// derived afterwards in a deterministic fixed-point pass, which makes the
// result independent of traversal interleaving.
package resolve

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/packsmith/packsmith/pack"
	"github.com/packsmith/packsmith/site"
)

const defaultWorkers = 16

// ResolvedMod is one entry of the closure.
type ResolvedMod struct {
	// Key is the config key for directly configured mods, or the
	// canonical "<platform>:<project>" key for transitive dependencies.
	Key string

	// Direct distinguishes configured mods from dependencies pulled in
	// during resolution; only direct mods get manifest lines in formats
	// that care.
	Direct bool

	Record *site.VersionRecord

	// Sides is the derived side requirement. Never stored in config, see
	// pack.ModReference.Sides for the precedence.
	Sides pack.Sides
}

// Pack is the finalized closure. It is immutable after Resolve returns;
// exporters only read it.
type Pack struct {
	Config *pack.Config

	mods map[pack.ProjectKey]*ResolvedMod
}

// NewPack assembles a Pack from already-resolved entries, keyed by the
// project of each record.
func NewPack(cfg *pack.Config, mods []*ResolvedMod) *Pack {
	m := make(map[pack.ProjectKey]*ResolvedMod, len(mods))
	for _, mod := range mods {
		m[mod.Record.ID.Project()] = mod
	}
	return &Pack{Config: cfg, mods: m}
}

// Mods returns all entries sorted by key.
func (p *Pack) Mods() []*ResolvedMod {
	out := make([]*ResolvedMod, 0, len(p.mods))
	for _, m := range p.mods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ModsOn returns the entries included on the given side, sorted by key.
func (p *Pack) ModsOn(side pack.Side) []*ResolvedMod {
	var out []*ResolvedMod
	for _, m := range p.Mods() {
		if m.Sides.On(side) {
			out = append(out, m)
		}
	}
	return out
}

// Mod looks up an entry by project.
func (p *Pack) Mod(key pack.ProjectKey) (*ResolvedMod, bool) {
	m, ok := p.mods[key]
	return m, ok
}

// Resolver drives resolution against the configured platform clients.
type Resolver struct {
	Clients site.Clients

	// Workers bounds concurrent metadata fetches across both platforms.
	Workers int
}

type node struct {
	key     string
	project pack.ProjectKey
	direct  bool
	ref     *pack.ModReference // nil for transitive nodes
	rec     *site.VersionRecord
	name    string
	// missing marks a transitive node that has no resolvable version;
	// fatal only if a required edge points at it. missingErr keeps the
	// platform error for the report.
	missing    bool
	missingErr error
	sides      pack.Sides
}

type edge struct {
	from, to pack.ProjectKey
	kind     site.DepKind
}

type resolution struct {
	r    *Resolver
	cfg  *pack.Config
	game site.Game

	// sem bounds concurrent platform requests. The errgroup itself is
	// unbounded: goroutines spawn new ones from loaded, so a limited group
	// would have spawners blocking in Go while the workers they wait for
	// block behind them.
	sem *semaphore.Weighted

	mu       sync.Mutex
	nodes    map[pack.ProjectKey]*node
	edges    []edge
	failures map[string]error
}

// Resolve computes the closure for the configuration. It fails with a
// *resolve.Error aggregating every NotFound, transient, incompatibility and
// check failure; on success the returned Pack holds one entry per
// (platform, project) with every non-ignored required edge resolved.
func (r *Resolver) Resolve(ctx context.Context, cfg *pack.Config) (*Pack, error) {
	workers := r.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	res := &resolution{
		r:   r,
		cfg: cfg,
		game: site.Game{
			Minecraft: cfg.Minecraft,
			Loader:    cfg.Loader.ID,
		},
		sem:      semaphore.NewWeighted(int64(workers)),
		nodes:    make(map[pack.ProjectKey]*node),
		failures: make(map[string]error),
	}

	g, ctx := errgroup.WithContext(ctx)

	// Claim every direct mod before anything runs; the traversal goroutines
	// read the map concurrently.
	direct := make([]*node, 0, len(cfg.Mods))
	for i := range cfg.Mods {
		ref := &cfg.Mods[i]
		n := &node{key: ref.Key, project: ref.ID.Project(), direct: true, ref: ref}
		res.nodes[n.project] = n
		direct = append(direct, n)
	}
	for _, n := range direct {
		n := n
		g.Go(func() error { return res.visitDirect(ctx, g, n) })
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.checkConflicts()
	if len(res.failures) > 0 {
		return nil, &Error{Failures: res.failures}
	}

	res.deriveSides()

	mods := make(map[pack.ProjectKey]*ResolvedMod, len(res.nodes))
	for k, n := range res.nodes {
		if n.missing {
			continue
		}
		mods[k] = &ResolvedMod{
			Key:    n.key,
			Direct: n.direct,
			Record: n.rec,
			Sides:  n.sides,
		}
	}
	return &Pack{Config: cfg, mods: mods}, nil
}

func (res *resolution) visitDirect(ctx context.Context, g *errgroup.Group, n *node) error {
	client, err := res.r.Clients.For(n.ref.ID.Site())
	if err != nil {
		return res.fail(n.key, err)
	}
	rec, err := res.fetchVersion(ctx, client, n.ref.ID)
	if err != nil {
		return res.fail(n.key, err)
	}
	return res.loaded(ctx, g, n, rec)
}

func (res *resolution) fetchVersion(ctx context.Context, client site.Client, id pack.ModID) (*site.VersionRecord, error) {
	if err := res.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer res.sem.Release(1)
	return client.Version(ctx, id)
}

// visitDependency resolves a project discovered through a dependency edge:
// project metadata for the name, then the newest version matching the
// pack's game version and loader.
func (res *resolution) visitDependency(ctx context.Context, g *errgroup.Group, n *node, key pack.ProjectKey) error {
	client, err := res.r.Clients.For(key.Site)
	if err != nil {
		return res.fail(n.key, err)
	}
	rec, err := res.fetchDependency(ctx, client, n, key)
	if err != nil {
		return res.dependencyMissing(ctx, n, key, err)
	}
	return res.loaded(ctx, g, n, rec)
}

func (res *resolution) fetchDependency(ctx context.Context, client site.Client, n *node, key pack.ProjectKey) (*site.VersionRecord, error) {
	if err := res.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer res.sem.Release(1)

	proj, err := client.Project(ctx, key)
	if err != nil {
		return nil, err
	}
	res.mu.Lock()
	n.name = proj.Name
	res.mu.Unlock()

	id, err := client.LatestVersion(ctx, key, res.game)
	if err != nil {
		return nil, err
	}
	return client.Version(ctx, id)
}

// loaded records a fetched version, runs the per-mod checks and walks its
// dependency edges, claiming and scheduling unvisited projects.
func (res *resolution) loaded(ctx context.Context, g *errgroup.Group, n *node, rec *site.VersionRecord) error {
	if !rec.DistributionAllowed {
		return res.fail(n.key, &DistributionError{})
	}
	if len(rec.GameVersions) > 0 && !containsVersion(rec.GameVersions, res.cfg.Minecraft) {
		return res.fail(n.key, &GameVersionError{
			Expected: res.cfg.Minecraft,
			Actual:   rec.GameVersions,
		})
	}

	self := rec.ID.Project()

	res.mu.Lock()
	n.rec = rec
	if n.name == "" {
		n.name = rec.Name
	}
	var spawn []*node
	for _, dep := range rec.Dependencies {
		if dep.Project == self {
			continue
		}
		if dep.Kind == site.DepOther {
			continue
		}
		if n.ref != nil && n.ref.Ignores(dep.Project) {
			// Ignoring is scoped to this reference's edges; another
			// mod depending on the same project still pulls it in.
			log.Debug().Str("mod", n.key).Stringer("dep", dep.Project).Msg("ignoring dependency edge")
			continue
		}
		res.edges = append(res.edges, edge{from: self, to: dep.Project, kind: dep.Kind})
		if dep.Kind == site.DepIncompatible {
			continue
		}
		if _, claimed := res.nodes[dep.Project]; claimed {
			continue
		}
		dn := &node{key: dep.Project.String(), project: dep.Project}
		res.nodes[dep.Project] = dn
		spawn = append(spawn, dn)
	}
	res.mu.Unlock()

	for _, dn := range spawn {
		dn := dn
		g.Go(func() error { return res.visitDependency(ctx, g, dn, dn.project) })
	}
	return nil
}

// dependencyMissing handles a transitive project that cannot be resolved.
// Whether that is fatal depends on the strongest edge pointing at it, which
// is only known once traversal finishes, so the node is marked and judged
// in checkConflicts.
func (res *resolution) dependencyMissing(ctx context.Context, n *node, key pack.ProjectKey, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	if !site.IsNotFound(err) {
		// Transient and decode failures are fatal regardless of edge
		// kind; attribute them to the dependency's own key.
		return res.fail(n.key, err)
	}
	res.mu.Lock()
	n.missing = true
	n.missingErr = err
	res.mu.Unlock()

	res.judgeMissing(n, key)
	return nil
}

func (res *resolution) keyName(k pack.ProjectKey) string {
	if n, ok := res.nodes[k]; ok {
		return n.key
	}
	return k.String()
}

// judgeMissing defers the verdict: it runs again in checkConflicts for
// edges discovered after the miss.
func (res *resolution) judgeMissing(n *node, key pack.ProjectKey) {
	res.mu.Lock()
	defer res.mu.Unlock()
	var required []string
	for _, e := range res.edges {
		if e.to != key || e.kind != site.DepRequired {
			continue
		}
		required = append(required, res.keyName(e.from))
	}
	if len(required) == 0 {
		log.Warn().Stringer("project", key).Err(n.missingErr).Msg("optional dependency unavailable, skipping")
		return
	}
	sort.Strings(required)
	res.failures[n.key] = &MissingDependencyError{
		Requesters: required,
		Project:    key,
		Name:       n.name,
		Err:        n.missingErr,
	}
}

func (res *resolution) fail(key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	res.mu.Lock()
	defer res.mu.Unlock()
	res.failures[key] = err
	return nil
}

// checkConflicts judges incompatibility edges and missing dependencies
// against the final node set. An incompatibility is fatal only when both
// ends are actually present.
func (res *resolution) checkConflicts() {
	res.mu.Lock()
	edges := res.edges
	res.mu.Unlock()

	for _, e := range edges {
		switch e.kind {
		case site.DepIncompatible:
			res.mu.Lock()
			from, fromOK := res.nodes[e.from]
			to, toOK := res.nodes[e.to]
			if fromOK && toOK && !from.missing && !to.missing {
				if _, dup := res.failures[from.key]; !dup {
					res.failures[from.key] = &IncompatibilityError{
						Key:      from.key,
						OtherKey: to.key,
					}
				}
			}
			res.mu.Unlock()
		case site.DepRequired:
			res.mu.Lock()
			to, ok := res.nodes[e.to]
			res.mu.Unlock()
			if ok && to.missing {
				// Re-judge with the complete edge set.
				res.judgeMissing(to, e.to)
			}
		}
	}
}

// deriveSides computes side requirements. Direct mods are fixed by their
// explicit overrides falling back to platform hints; transitive mods join
// the contributions of their requesters, with optional edges capped at
// Optional and the platform hint capping the result. The lattice is finite
// and Join monotone, so the worklist reaches a fixed point.
func (res *resolution) deriveSides() {
	for _, n := range res.nodes {
		if !n.direct {
			n.sides = pack.Sides{Client: pack.Unsupported, Server: pack.Unsupported}
			continue
		}
		hint := pack.BothRequired
		if n.rec != nil && n.rec.Sides != nil {
			hint = *n.rec.Sides
		}
		n.sides = n.ref.Sides(hint)
	}

	optionalCap := pack.Sides{Client: pack.Optional, Server: pack.Optional}
	for changed := true; changed; {
		changed = false
		for _, e := range res.edges {
			if e.kind != site.DepRequired && e.kind != site.DepOptional {
				continue
			}
			from, ok := res.nodes[e.from]
			if !ok || from.missing {
				continue
			}
			to, ok := res.nodes[e.to]
			if !ok || to.missing || to.direct {
				continue
			}
			contrib := from.sides
			if e.kind == site.DepOptional {
				contrib = contrib.Cap(optionalCap)
			}
			joined := to.sides.Join(contrib)
			if to.rec != nil && to.rec.Sides != nil {
				joined = joined.Cap(*to.rec.Sides)
			}
			if joined != to.sides {
				to.sides = joined
				changed = true
			}
		}
	}
}

func containsVersion(versions []string, want string) bool {
	for _, v := range versions {
		if v == want {
			return true
		}
	}
	return false
}
