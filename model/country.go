package model

import "slices"

// CountryRecord is an immutable fact about one country: where it is and which
// organizations it belongs to. Records are loaded once from reference data.
type CountryRecord struct {
	Code      string
	Name      string
	Latitude  float64
	Longitude float64

	// Memberships maps organization ID to membership. A missing key is the
	// same as false.
	Memberships map[OrganizationID]bool
}

// IsMember reports whether the country belongs to org.
func (c CountryRecord) IsMember(org OrganizationID) bool {
	return c.Memberships[org]
}

// Organizations lists the organizations the country belongs to. Built-in
// organizations come first in canonical order, followed by any others sorted
// by ID.
func (c CountryRecord) Organizations() []OrganizationID {
	var orgs []OrganizationID
	for org, member := range c.Memberships {
		if member {
			orgs = append(orgs, org)
		}
	}
	slices.SortFunc(orgs, CompareOrganizationIDs)
	return orgs
}

// Point2D is a country projected onto the flat world map image.
type Point2D struct {
	Country CountryRecord
	X, Y    float64
}

// Point3D is a country projected onto the globe.
type Point3D struct {
	Country CountryRecord
	X, Y, Z float64
}
