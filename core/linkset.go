package core

import (
	"github.com/golang/geo/s2"

	"github.com/signalsfoundry/membership-globe/model"
)

// DefaultStripeCount is the number of colour bands drawn along a link that is
// shared by several organizations.
const DefaultStripeCount = 12

// Fractions along the great circle where the arc control points sit.
const (
	controlFractionNear = 0.25
	controlFractionFar  = 0.75
)

// Curve is a cubic Bézier arc between two countries on the globe.
type Curve struct {
	Start, Control1, Control2, End Vec3
}

// Link connects two countries. When several organizations share the edge the
// link carries all of them.
type Link struct {
	From, To model.CountryRecord
	// Organizations and Colors are parallel, newest contribution first.
	Organizations []model.OrganizationID
	Colors        []model.RGB
	Curve         Curve
}

// Shared reports whether more than one organization uses the link.
func (l Link) Shared() bool {
	return len(l.Colors) > 1
}

// Stripes returns the colour of each of n bands along the link, cycling
// through the link's colours.
func (l Link) Stripes(n int) []model.RGB {
	if n <= 0 || len(l.Colors) == 0 {
		return nil
	}
	out := make([]model.RGB, n)
	for i := range out {
		out[i] = l.Colors[i%len(l.Colors)]
	}
	return out
}

type pairKey struct{ a, b string }

func newPairKey(x, y string) pairKey {
	if y < x {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

type contribution struct {
	org   model.OrganizationID
	color model.RGB
}

type linkEntry struct {
	from, to model.CountryRecord
	curve    Curve
	contribs []contribution // oldest first
}

// LinkSet accumulates the tree edges of the active organizations and merges
// edges that join the same pair of countries.
type LinkSet struct {
	radius  float64
	entries []*linkEntry
	byPair  map[pairKey]*linkEntry
}

// NewLinkSet creates an empty set for a globe of the given radius.
func NewLinkSet(radius float64) *LinkSet {
	return &LinkSet{
		radius: radius,
		byPair: make(map[pairKey]*linkEntry),
	}
}

// AddTree adds one link per connected, non-root node of tree, from the node to
// its parent. A link that already exists for the same country pair absorbs
// the organization's colour, takes the new curve and moves to the end of the
// draw order.
func (s *LinkSet) AddTree(org model.Organization, tree *ShortestPathTree) {
	if tree == nil {
		return
	}
	for _, edge := range tree.Edges() {
		start := tree.Nodes[edge.Child].Point
		end := tree.Nodes[edge.Parent].Point
		s.add(org, start, end)
	}
}

func (s *LinkSet) add(org model.Organization, start, end model.Point3D) {
	curve := ArcCurve(start, end, s.radius, org.Altitude())
	c := contribution{org: org.ID, color: org.Color}
	key := newPairKey(start.Country.Code, end.Country.Code)

	if existing, ok := s.byPair[key]; ok {
		existing.from = start.Country
		existing.to = end.Country
		existing.curve = curve
		existing.contribs = append(existing.contribs, c)
		s.moveToBack(existing)
		return
	}

	entry := &linkEntry{
		from:     start.Country,
		to:       end.Country,
		curve:    curve,
		contribs: []contribution{c},
	}
	s.entries = append(s.entries, entry)
	s.byPair[key] = entry
}

func (s *LinkSet) moveToBack(e *linkEntry) {
	for i, cur := range s.entries {
		if cur == e {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	s.entries = append(s.entries, e)
}

// Len returns the number of distinct links.
func (s *LinkSet) Len() int {
	return len(s.entries)
}

// Links returns the links in draw order.
func (s *LinkSet) Links() []Link {
	out := make([]Link, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.link())
	}
	return out
}

// Link returns the link joining two countries, in either direction.
func (s *LinkSet) Link(codeA, codeB string) (Link, bool) {
	e, ok := s.byPair[newPairKey(codeA, codeB)]
	if !ok {
		return Link{}, false
	}
	return e.link(), true
}

// SharedCount returns how many links are used by more than one organization.
func (s *LinkSet) SharedCount() int {
	n := 0
	for _, e := range s.entries {
		if len(e.contribs) > 1 {
			n++
		}
	}
	return n
}

func (e *linkEntry) link() Link {
	n := len(e.contribs)
	orgs := make([]model.OrganizationID, 0, n)
	colors := make([]model.RGB, 0, n)

	newest := e.contribs[n-1]
	orgs = append(orgs, newest.org)
	colors = append(colors, newest.color)
	for _, c := range e.contribs[:n-1] {
		orgs = append(orgs, c.org)
		colors = append(colors, c.color)
	}

	return Link{
		From:          e.from,
		To:            e.to,
		Organizations: orgs,
		Colors:        colors,
		Curve:         e.curve,
	}
}

// ArcCurve builds the arc from start to end. The arc rises by
// altitude*|start-end|/4 above the globe, with control points a quarter and
// three quarters of the way along the great circle between the countries.
func ArcCurve(start, end model.Point3D, radius, altitude float64) Curve {
	a, b := PointVec(start), PointVec(end)
	lift := altitude * a.DistanceTo(b) / 4

	from := s2.PointFromLatLng(s2.LatLngFromDegrees(start.Country.Latitude, start.Country.Longitude))
	to := s2.PointFromLatLng(s2.LatLngFromDegrees(end.Country.Latitude, end.Country.Longitude))

	return Curve{
		Start:    a,
		Control1: liftedPosition(s2.Interpolate(controlFractionNear, from, to), radius+lift),
		Control2: liftedPosition(s2.Interpolate(controlFractionFar, from, to), radius+lift),
		End:      b,
	}
}

func liftedPosition(p s2.Point, radius float64) Vec3 {
	ll := s2.LatLngFromPoint(p)
	return SpherePosition(ll.Lat.Degrees(), ll.Lng.Degrees(), radius)
}
