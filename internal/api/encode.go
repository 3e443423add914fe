package api

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/membership-globe/core"
	"github.com/signalsfoundry/membership-globe/internal/scene"
	"github.com/signalsfoundry/membership-globe/model"
)

// Payloads are structpb.Struct documents. Every builder here returns the
// plain map first so callers can nest documents before conversion.

func organizationFields(o model.Organization, active bool, members int) map[string]any {
	return map[string]any{
		"id":            string(o.ID),
		"name":          o.Name,
		"description":   o.Description,
		"color":         o.Color.String(),
		"link_altitude": o.Altitude(),
		"active":        active,
		"member_count":  members,
	}
}

func countryFields(c model.CountryRecord) map[string]any {
	orgs := c.Organizations()
	ids := make([]any, len(orgs))
	for i, id := range orgs {
		ids[i] = string(id)
	}
	return map[string]any{
		"code":          c.Code,
		"name":          c.Name,
		"latitude":      c.Latitude,
		"longitude":     c.Longitude,
		"organizations": ids,
	}
}

func vecList(v core.Vec3) []any {
	return []any{v.X, v.Y, v.Z}
}

// distanceValue encodes an unreachable (+Inf) distance as null.
func distanceValue(d float64) any {
	if math.IsInf(d, 0) || math.IsNaN(d) {
		return nil
	}
	return d
}

func toStruct(fields map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return s, nil
}

// EncodeOrganizations lists organization metadata.
func EncodeOrganizations(orgs []model.Organization, active func(model.OrganizationID) bool, size func(model.OrganizationID) int) (*structpb.Struct, error) {
	list := make([]any, 0, len(orgs))
	for _, o := range orgs {
		list = append(list, organizationFields(o, active(o.ID), size(o.ID)))
	}
	return toStruct(map[string]any{"organizations": list})
}

// EncodeOrganization returns metadata plus the projected members.
func EncodeOrganization(view scene.OrganizationView) (*structpb.Struct, error) {
	fields := organizationFields(view.Organization, view.Active, len(view.Members))
	members := make([]any, 0, len(view.Members))
	for i, m := range view.Members {
		entry := countryFields(m)
		entry["plane"] = map[string]any{"x": view.Planar[i].X, "y": view.Planar[i].Y}
		entry["sphere"] = vecList(core.PointVec(view.Spherical[i]))
		members = append(members, entry)
	}
	fields["members"] = members
	return toStruct(fields)
}

// EncodeTree returns the nodes, walk and edges of an organization's tree.
func EncodeTree(org model.OrganizationID, tree *core.ShortestPathTree) (*structpb.Struct, error) {
	nodes := make([]any, 0, len(tree.Nodes))
	for _, n := range tree.Nodes {
		nodes = append(nodes, map[string]any{
			"code":         n.Point.Country.Code,
			"name":         n.Point.Country.Name,
			"position":     vecList(core.PointVec(n.Point)),
			"distance":     distanceValue(n.Distance),
			"parent_index": n.ParentIndex,
			"connected":    n.Connected(),
		})
	}
	walk := make([]any, len(tree.Walk))
	for i, idx := range tree.Walk {
		walk[i] = idx
	}
	edges := make([]any, 0, len(tree.Nodes))
	for _, e := range tree.Edges() {
		edges = append(edges, map[string]any{
			"child":  tree.Nodes[e.Child].Point.Country.Code,
			"parent": tree.Nodes[e.Parent].Point.Country.Code,
		})
	}
	unconnected := make([]any, 0)
	for _, i := range tree.Unconnected() {
		unconnected = append(unconnected, tree.Nodes[i].Point.Country.Code)
	}
	return toStruct(map[string]any{
		"organization": string(org),
		"nodes":        nodes,
		"walk":         walk,
		"edges":        edges,
		"unconnected":  unconnected,
	})
}

// EncodeLinks returns the merged link set of a scene snapshot.
func EncodeLinks(snap scene.Snapshot, stripes int) (*structpb.Struct, error) {
	ids := make([]any, len(snap.Active))
	for i, id := range snap.Active {
		ids[i] = string(id)
	}
	list := make([]any, 0, len(snap.Links))
	shared := 0
	for _, l := range snap.Links {
		if l.Shared() {
			shared++
		}
		orgs := make([]any, len(l.Organizations))
		for i, id := range l.Organizations {
			orgs[i] = string(id)
		}
		colors := make([]any, len(l.Colors))
		for i, c := range l.Colors {
			colors[i] = c.String()
		}
		bands := l.Stripes(stripes)
		stripeList := make([]any, len(bands))
		for i, c := range bands {
			stripeList[i] = c.String()
		}
		list = append(list, map[string]any{
			"from":          l.From.Code,
			"to":            l.To.Code,
			"organizations": orgs,
			"colors":        colors,
			"stripes":       stripeList,
			"shared":        l.Shared(),
			"curve": map[string]any{
				"start":    vecList(l.Curve.Start),
				"control1": vecList(l.Curve.Control1),
				"control2": vecList(l.Curve.Control2),
				"end":      vecList(l.Curve.End),
			},
		})
	}
	return toStruct(map[string]any{
		"version": float64(snap.Version),
		"active":  ids,
		"links":   list,
		"total":   len(snap.Links),
		"shared":  shared,
	})
}

// EncodeCountry returns a country with the metadata of its organizations.
// Organizations present in positions are active and carry the country's
// place in their tree.
func EncodeCountry(c model.CountryRecord, orgs []model.Organization, params core.ProjectionParams, positions map[model.OrganizationID]scene.TreePosition) (*structpb.Struct, error) {
	fields := countryFields(c)
	list := make([]any, 0, len(orgs))
	for _, o := range orgs {
		entry := map[string]any{
			"id":     string(o.ID),
			"name":   o.Name,
			"color":  o.Color.String(),
			"active": false,
		}
		if pos, ok := positions[o.ID]; ok {
			entry["active"] = true
			entry["tree"] = treePositionFields(pos)
		}
		list = append(list, entry)
	}
	fields["organizations"] = list
	p := core.ToPlane(c, params.ImageWidth, params.ImageHeight)
	fields["plane"] = map[string]any{"x": p.X, "y": p.Y}
	fields["sphere"] = vecList(core.PointVec(core.ToSphere(c, params.SphereRadius)))
	return toStruct(fields)
}

func treePositionFields(pos scene.TreePosition) map[string]any {
	var parent any
	if pos.Node.Connected() {
		parent = pos.Parent.Code
	}
	return map[string]any{
		"parent":    parent,
		"distance":  distanceValue(pos.Node.Distance),
		"connected": pos.Node.Connected(),
	}
}

// DecodeOrganizationIDs reads the "organizations" list of a selection request.
func DecodeOrganizationIDs(req *structpb.Struct) ([]model.OrganizationID, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: empty request", ErrInvalidRequest)
	}
	v, ok := req.GetFields()["organizations"]
	if !ok {
		return nil, fmt.Errorf("%w: missing organizations", ErrInvalidRequest)
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: organizations must be a list", ErrInvalidRequest)
	}
	ids := make([]model.OrganizationID, 0, len(list.GetValues()))
	for i, item := range list.GetValues() {
		s, ok := item.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("%w: organizations[%d] must be a string", ErrInvalidRequest, i)
		}
		id := model.ParseOrganizationID(s.StringValue)
		if id == "" {
			return nil, fmt.Errorf("%w: organizations[%d] is empty", ErrInvalidRequest, i)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// NewSelectionRequest builds the payload DecodeOrganizationIDs reads.
func NewSelectionRequest(ids ...string) (*structpb.Struct, error) {
	list := make([]any, len(ids))
	for i, id := range ids {
		list[i] = id
	}
	return toStruct(map[string]any{"organizations": list})
}
