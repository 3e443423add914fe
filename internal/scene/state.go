// Package scene keeps the derived globe scene in step with the knowledge
// base: the membership index, one link tree per active organization and the
// merged link set drawn on the globe.
package scene

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/membership-globe/core"
	"github.com/signalsfoundry/membership-globe/internal/logging"
	"github.com/signalsfoundry/membership-globe/internal/observability"
	"github.com/signalsfoundry/membership-globe/kb"
	"github.com/signalsfoundry/membership-globe/model"
)

// ErrNotMember indicates a country does not belong to an organization.
var ErrNotMember = errors.New("country is not a member")

// MetricsRecorder receives scene measurements.
type MetricsRecorder interface {
	ObserveTree(org string, nodes, unconnected int, took time.Duration)
	SetSceneCounts(active []string, links, shared int)
	ObserveRecompute(err error)
}

// State owns the scene derived from a KnowledgeBase.
type State struct {
	store  *kb.KnowledgeBase
	params core.ProjectionParams

	log     logging.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer

	// recomputeMu serialises rebuilds so results are published in order.
	recomputeMu sync.Mutex

	mu      sync.RWMutex
	index   *core.MembershipIndex
	active  []model.OrganizationID
	trees   map[model.OrganizationID]*core.ShortestPathTree
	links   *core.LinkSet
	version uint64

	unsubscribe func()
}

// Option customises State construction.
type Option func(*State)

// WithLogger attaches a logger.
func WithLogger(l logging.Logger) Option {
	return func(s *State) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *State) {
		s.metrics = m
	}
}

// WithTracer overrides the service tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *State) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithProjection sets the projection parameters. The default is
// core.DefaultProjectionParams.
func WithProjection(p core.ProjectionParams) Option {
	return func(s *State) {
		s.params = p
	}
}

// NewState builds the membership index from the countries currently in store.
// The scene starts empty; call Recompute or Watch to populate it.
func NewState(store *kb.KnowledgeBase, opts ...Option) *State {
	s := &State{
		store:  store,
		params: core.DefaultProjectionParams(),
		log:    logging.Noop(),
		tracer: observability.Tracer(),
		trees:  make(map[model.OrganizationID]*core.ShortestPathTree),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.links = core.NewLinkSet(s.params.SphereRadius)
	s.index = s.buildIndex(context.Background())
	return s
}

// Watch subscribes to the knowledge base and recomputes the scene whenever the
// selection or the country list changes. It performs an initial Recompute.
// Close stops watching.
func (s *State) Watch(ctx context.Context) error {
	s.mu.Lock()
	if s.unsubscribe != nil {
		s.mu.Unlock()
		return nil
	}
	s.unsubscribe = s.store.Subscribe(s.onEvent)
	s.mu.Unlock()
	return s.Recompute(ctx)
}

// Watching reports whether the state follows knowledge base events.
func (s *State) Watching() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unsubscribe != nil
}

// Close stops watching the knowledge base.
func (s *State) Close() {
	s.mu.Lock()
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (s *State) onEvent(e kb.Event) {
	ctx := context.Background()
	if err := s.recompute(ctx, e.Type == kb.EventCountriesChanged); err != nil {
		s.log.Error(ctx, "scene recompute failed", logging.Err(err))
	}
}

func (s *State) buildIndex(ctx context.Context) *core.MembershipIndex {
	_, span := s.tracer.Start(ctx, "scene.build_index")
	defer span.End()

	countries := s.store.ListCountries()
	idx := core.BuildMembershipIndex(countries, s.params)
	span.SetAttributes(
		attribute.Int("countries", len(countries)),
		attribute.Int("organizations", len(idx.Organizations())),
	)
	s.log.Debug(ctx, "membership index built",
		logging.Int("countries", len(countries)),
		logging.Int("organizations", len(idx.Organizations())),
	)
	return idx
}

// Recompute rebuilds the trees of the active organizations in parallel and
// then merges their links in canonical organization order, so the scene
// depends only on which organizations are active. The previous scene stays in
// place if anything fails.
func (s *State) Recompute(ctx context.Context) error {
	return s.recompute(ctx, false)
}

// recompute optionally rebuilds the membership index first. Both steps run
// under recomputeMu so index snapshots are published in KB event order.
func (s *State) recompute(ctx context.Context, rebuildIndex bool) (err error) {
	s.recomputeMu.Lock()
	defer s.recomputeMu.Unlock()

	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "scene.recompute")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if s.metrics != nil {
			s.metrics.ObserveRecompute(err)
		}
	}()

	if rebuildIndex {
		idx := s.buildIndex(ctx)
		s.mu.Lock()
		s.index = idx
		s.mu.Unlock()
	}

	active := model.SortOrganizationIDs(s.store.ActiveOrganizations())
	orgs := make([]model.Organization, len(active))
	for i, id := range active {
		o, err := s.store.Organization(id)
		if err != nil {
			return err
		}
		orgs[i] = o
	}

	s.mu.RLock()
	idx := s.index
	s.mu.RUnlock()

	trees := make([]*core.ShortestPathTree, len(active))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range active {
		g.Go(func() error {
			tree, err := s.buildTree(gctx, idx, id)
			if err != nil {
				return err
			}
			trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	links := core.NewLinkSet(s.params.SphereRadius)
	byOrg := make(map[model.OrganizationID]*core.ShortestPathTree, len(active))
	for i, o := range orgs {
		links.AddTree(o, trees[i])
		if trees[i] != nil {
			byOrg[o.ID] = trees[i]
		}
	}

	s.mu.Lock()
	s.active = active
	s.trees = byOrg
	s.links = links
	s.version++
	version := s.version
	s.mu.Unlock()

	span.SetAttributes(
		attribute.Int("active", len(active)),
		attribute.Int("links", links.Len()),
		attribute.Int64("version", int64(version)),
	)
	if s.metrics != nil {
		names := make([]string, len(active))
		for i, id := range active {
			names[i] = string(id)
		}
		s.metrics.SetSceneCounts(names, links.Len(), links.SharedCount())
	}
	s.log.Info(ctx, "scene recomputed",
		logging.Any("active", active),
		logging.Int("links", links.Len()),
		logging.Int("shared_links", links.SharedCount()),
		logging.Duration("took", time.Since(start)),
	)
	return nil
}

// buildTree returns nil without error for an organization with no members:
// there is nothing to draw.
func (s *State) buildTree(ctx context.Context, idx *core.MembershipIndex, org model.OrganizationID) (*core.ShortestPathTree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "scene.build_tree",
		trace.WithAttributes(attribute.String("organization", string(org))))
	defer span.End()

	points := idx.Spherical(org)
	start := time.Now()
	tree, err := core.BuildShortestPathTree(points)
	took := time.Since(start)
	if errors.Is(err, core.ErrEmptyPointSet) {
		s.log.Warn(ctx, "organization has no members", logging.String("organization", string(org)))
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("build tree for %s: %w", org, err)
	}

	unconnected := len(tree.Unconnected())
	span.SetAttributes(attribute.Int("nodes", len(tree.Nodes)), attribute.Int("unconnected", unconnected))
	if unconnected > 0 {
		s.log.Warn(ctx, "tree has unconnected nodes",
			logging.String("organization", string(org)),
			logging.Int("unconnected", unconnected),
		)
	}
	if s.metrics != nil {
		s.metrics.ObserveTree(string(org), len(tree.Nodes), unconnected, took)
	}
	return tree, nil
}

// Params returns the projection parameters.
func (s *State) Params() core.ProjectionParams {
	return s.params
}

// Index returns the current membership index. It is immutable.
func (s *State) Index() *core.MembershipIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// Snapshot is a consistent view of the computed scene.
type Snapshot struct {
	// Version increases with every successful Recompute.
	Version uint64
	Active  []model.OrganizationID
	Links   []core.Link
}

// Snapshot returns the version, organizations and links of the current scene
// read under one lock.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Version: s.version,
		Active:  append([]model.OrganizationID(nil), s.active...),
		Links:   s.links.Links(),
	}
}

// Active returns the organizations the scene was last computed for, in
// canonical order.
func (s *State) Active() []model.OrganizationID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.OrganizationID(nil), s.active...)
}

// Tree returns the link tree of org. Trees of active organizations come from
// the current scene; others are built on demand and not kept.
func (s *State) Tree(ctx context.Context, org model.OrganizationID) (*core.ShortestPathTree, error) {
	if _, err := s.store.Organization(org); err != nil {
		return nil, err
	}
	s.mu.RLock()
	tree, ok := s.trees[org]
	idx := s.index
	s.mu.RUnlock()
	if ok {
		return tree, nil
	}

	_, span := s.tracer.Start(ctx, "scene.tree_on_demand",
		trace.WithAttributes(attribute.String("organization", string(org))))
	defer span.End()
	return core.BuildShortestPathTree(idx.Spherical(org))
}

// OrganizationView is an organization with its projected members.
type OrganizationView struct {
	model.Organization
	Members   []model.CountryRecord
	Planar    []model.Point2D
	Spherical []model.Point3D
	Active    bool
}

// Organization returns metadata and members of org.
func (s *State) Organization(org model.OrganizationID) (OrganizationView, error) {
	meta, err := s.store.Organization(org)
	if err != nil {
		return OrganizationView{}, err
	}
	idx := s.Index()
	return OrganizationView{
		Organization: meta,
		Members:      idx.Members(org),
		Planar:       idx.Planar(org),
		Spherical:    idx.Spherical(org),
		Active:       s.store.IsActive(org),
	}, nil
}

// CountryOrganizations returns a country and the metadata of every
// organization it belongs to, in canonical order.
func (s *State) CountryOrganizations(code string) (model.CountryRecord, []model.Organization, error) {
	rec, err := s.store.Country(code)
	if err != nil {
		return model.CountryRecord{}, nil, err
	}
	ids := rec.Organizations()
	orgs := make([]model.Organization, 0, len(ids))
	for _, id := range ids {
		o, err := s.store.Organization(id)
		if err != nil {
			// Membership columns without metadata still show up by ID.
			o = model.Organization{ID: id, Name: string(id)}
		}
		orgs = append(orgs, o)
	}
	return rec, orgs, nil
}

// TreePosition places a country inside one organization's tree.
type TreePosition struct {
	Node core.TreeNode
	// Parent is the country the link leads to: the country itself for the
	// root, the zero record when the node is unconnected.
	Parent model.CountryRecord
}

// Membership returns the position of a country inside org's tree.
func (s *State) Membership(ctx context.Context, org model.OrganizationID, code string) (TreePosition, error) {
	tree, err := s.Tree(ctx, org)
	if err != nil {
		return TreePosition{}, err
	}
	for _, n := range tree.Nodes {
		if n.Point.Country.Code != code {
			continue
		}
		pos := TreePosition{Node: n}
		if n.Connected() {
			pos.Parent = tree.Nodes[n.ParentIndex].Point.Country
		}
		return pos, nil
	}
	return TreePosition{}, fmt.Errorf("%w: %s in %s", ErrNotMember, code, org)
}

// ActiveMemberships returns the tree positions of a country in every active
// organization it belongs to.
func (s *State) ActiveMemberships(ctx context.Context, code string) (map[model.OrganizationID]TreePosition, error) {
	rec, err := s.store.Country(code)
	if err != nil {
		return nil, err
	}
	out := make(map[model.OrganizationID]TreePosition)
	for _, org := range s.Active() {
		if !rec.IsMember(org) {
			continue
		}
		pos, err := s.Membership(ctx, org, rec.Code)
		if err != nil {
			return nil, err
		}
		out[org] = pos
	}
	return out, nil
}
