package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/membership-globe/model"
)

func sampleRecords() []model.CountryRecord {
	return []model.CountryRecord{
		country("DE", 51.1657, 10.4515, model.OrgEU, model.OrgNATO, model.OrgG7, model.OrgUN),
		country("CH", 46.8182, 8.2275, model.OrgUN, model.OrgOSCE),
		country("AQ", -75.2509, -0.0714),
		country("FR", 46.2276, 2.2137, model.OrgEU, model.OrgNATO, model.OrgG7, model.OrgUN),
		country("US", 37.0902, -95.7129, model.OrgNATO, model.OrgG7, model.OrgUN),
	}
}

func codes(recs []model.CountryRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Code)
	}
	return out
}

func TestMembershipIndex_BucketsFollowMasterOrder(t *testing.T) {
	idx := BuildMembershipIndex(sampleRecords(), DefaultProjectionParams())

	assert.Equal(t, []string{"DE", "FR"}, codes(idx.Members(model.OrgEU)))
	assert.Equal(t, []string{"DE", "FR", "US"}, codes(idx.Members(model.OrgNATO)))
	assert.Equal(t, []string{"DE", "CH", "FR", "US"}, codes(idx.Members(model.OrgUN)))
	assert.Equal(t, []string{"CH"}, codes(idx.Members(model.OrgOSCE)))
}

func TestMembershipIndex_ParallelProjections(t *testing.T) {
	params := DefaultProjectionParams()
	idx := BuildMembershipIndex(sampleRecords(), params)

	for _, org := range idx.Organizations() {
		members := idx.Members(org)
		planar := idx.Planar(org)
		spherical := idx.Spherical(org)
		require.Len(t, planar, len(members), org)
		require.Len(t, spherical, len(members), org)

		for i, rec := range members {
			assert.Equal(t, rec.Code, planar[i].Country.Code)
			assert.Equal(t, rec.Code, spherical[i].Country.Code)
			assert.Equal(t, ToPlane(rec, params.ImageWidth, params.ImageHeight), planar[i])
			assert.Equal(t, ToSphere(rec, params.SphereRadius), spherical[i])
		}
	}
}

func TestMembershipIndex_SharedMemberHasConsistentCoordinates(t *testing.T) {
	idx := BuildMembershipIndex(sampleRecords(), DefaultProjectionParams())

	euDE := idx.Spherical(model.OrgEU)[0]
	natoDE := idx.Spherical(model.OrgNATO)[0]
	require.Equal(t, "DE", euDE.Country.Code)
	require.Equal(t, "DE", natoDE.Country.Code)
	assert.Equal(t, euDE, natoDE)
	assert.Equal(t, idx.Planar(model.OrgEU)[0], idx.Planar(model.OrgG7)[0])
}

func TestMembershipIndex_NonMemberAppearsNowhere(t *testing.T) {
	idx := BuildMembershipIndex(sampleRecords(), DefaultProjectionParams())

	for _, org := range idx.Organizations() {
		assert.NotContains(t, codes(idx.Members(org)), "AQ", org)
	}
}

func TestMembershipIndex_AllKnownOrganizationsHaveBuckets(t *testing.T) {
	idx := BuildMembershipIndex(nil, DefaultProjectionParams())

	assert.Equal(t, model.KnownOrganizations(), idx.Organizations())
	for _, org := range model.KnownOrganizations() {
		assert.True(t, idx.Has(org))
		assert.Equal(t, 0, idx.Size(org))
		assert.NotNil(t, idx.Spherical(org))
		assert.NotNil(t, idx.Planar(org))
		assert.NotNil(t, idx.Members(org))
		assert.Empty(t, idx.Spherical(org))
	}
}

func TestMembershipIndex_DataDefinedOrganization(t *testing.T) {
	records := []model.CountryRecord{
		country("NO", 60.472, 8.4689, model.OrganizationID("efta"), model.OrgNATO),
		country("IS", 64.9631, -19.0208, model.OrganizationID("efta")),
	}
	idx := BuildMembershipIndex(records, DefaultProjectionParams())

	orgs := idx.Organizations()
	assert.Equal(t, model.OrganizationID("efta"), orgs[len(orgs)-1])
	assert.Equal(t, []string{"NO", "IS"}, codes(idx.Members("efta")))
	assert.False(t, idx.Has("bis"))
}

func TestMembershipIndex_FalseFlagsIgnored(t *testing.T) {
	rec := country("GB", 55.3781, -3.436, model.OrgNATO)
	rec.Memberships[model.OrgEU] = false
	idx := BuildMembershipIndex([]model.CountryRecord{rec}, DefaultProjectionParams())

	assert.Equal(t, 0, idx.Size(model.OrgEU))
	assert.Equal(t, 1, idx.Size(model.OrgNATO))
}

func TestMembershipIndex_AccessorsReturnCopies(t *testing.T) {
	idx := BuildMembershipIndex(sampleRecords(), DefaultProjectionParams())

	got := idx.Spherical(model.OrgEU)
	got[0].X = 1e9
	assert.NotEqual(t, 1e9, idx.Spherical(model.OrgEU)[0].X)
}
