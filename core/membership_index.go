package core

import "github.com/signalsfoundry/membership-globe/model"

// MembershipIndex partitions the master country list per organization. For
// each organization the raw, planar and spherical slices are parallel: entry i
// of each refers to the same country, and entries keep master-list order.
type MembershipIndex struct {
	params ProjectionParams

	orgs      []model.OrganizationID
	countries map[model.OrganizationID][]model.CountryRecord
	planar    map[model.OrganizationID][]model.Point2D
	spherical map[model.OrganizationID][]model.Point3D
}

// BuildMembershipIndex makes a single pass over records, appending each
// record to every organization bucket whose flag is set. Every built-in
// organization gets a bucket even when it has no members; organizations that
// only appear in the data are added after them in first-seen order.
func BuildMembershipIndex(records []model.CountryRecord, params ProjectionParams) *MembershipIndex {
	idx := &MembershipIndex{
		params:    params,
		countries: make(map[model.OrganizationID][]model.CountryRecord),
		planar:    make(map[model.OrganizationID][]model.Point2D),
		spherical: make(map[model.OrganizationID][]model.Point3D),
	}
	for _, org := range model.KnownOrganizations() {
		idx.addBucket(org)
	}

	for _, rec := range records {
		for _, org := range rec.Organizations() {
			if _, ok := idx.countries[org]; !ok {
				idx.addBucket(org)
			}
			idx.countries[org] = append(idx.countries[org], rec)
			idx.planar[org] = append(idx.planar[org], ToPlane(rec, params.ImageWidth, params.ImageHeight))
			idx.spherical[org] = append(idx.spherical[org], ToSphere(rec, params.SphereRadius))
		}
	}
	return idx
}

func (idx *MembershipIndex) addBucket(org model.OrganizationID) {
	idx.orgs = append(idx.orgs, org)
	idx.countries[org] = []model.CountryRecord{}
	idx.planar[org] = []model.Point2D{}
	idx.spherical[org] = []model.Point3D{}
}

// Params returns the projection parameters the index was built with.
func (idx *MembershipIndex) Params() ProjectionParams {
	return idx.params
}

// Organizations returns every indexed organization, built-in ones first.
func (idx *MembershipIndex) Organizations() []model.OrganizationID {
	return append([]model.OrganizationID(nil), idx.orgs...)
}

// Has reports whether org has a bucket.
func (idx *MembershipIndex) Has(org model.OrganizationID) bool {
	_, ok := idx.countries[org]
	return ok
}

// Members returns the raw records of org's members.
func (idx *MembershipIndex) Members(org model.OrganizationID) []model.CountryRecord {
	return cloneBucket(idx.countries[org])
}

// Planar returns org's members projected onto the map image.
func (idx *MembershipIndex) Planar(org model.OrganizationID) []model.Point2D {
	return cloneBucket(idx.planar[org])
}

// Spherical returns org's members projected onto the globe. Element 0 is the
// root of the organization's link tree.
func (idx *MembershipIndex) Spherical(org model.OrganizationID) []model.Point3D {
	return cloneBucket(idx.spherical[org])
}

// Size returns the number of members of org.
func (idx *MembershipIndex) Size(org model.OrganizationID) int {
	return len(idx.countries[org])
}

// cloneBucket copies b. An empty bucket yields an empty, non-nil slice.
func cloneBucket[T any](b []T) []T {
	out := make([]T, len(b))
	copy(out, b)
	return out
}
