package refdata

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/membership-globe/kb"
	"github.com/signalsfoundry/membership-globe/model"
)

func TestDefaultDataset(t *testing.T) {
	ds, err := Default()
	require.NoError(t, err)
	require.NotEmpty(t, ds.Countries)

	var ids []model.OrganizationID
	for _, o := range ds.Organizations {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, model.KnownOrganizations(), ids)

	byID := make(map[model.OrganizationID]model.Organization)
	for _, o := range ds.Organizations {
		byID[o.ID] = o
	}
	assert.Equal(t, model.RGB{R: 255, G: 0, B: 100}, byID[model.OrgEU].Color)
	assert.Equal(t, 1.1, byID[model.OrgUNFCCC].Altitude())
	assert.Equal(t, 1.0, byID[model.OrgNATO].Altitude())

	// Every country carries a flag for every built-in organization.
	for _, c := range ds.Countries {
		for _, org := range model.KnownOrganizations() {
			_, ok := c.Memberships[org]
			assert.True(t, ok, "%s missing %s flag", c.Code, org)
		}
	}
}

func TestDecodeCountries(t *testing.T) {
	in := `[
	  {"country_code":"NO","country":"Norway","latitude":60.47,"longitude":8.46,"in_nato":true,"in_eu":false,"in_efta":true},
	  {"country_code":"CH","country":"Switzerland","latitude":46.81,"longitude":8.22,"in_efta":true}
	]`
	recs, err := DecodeCountries(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "NO", recs[0].Code)
	assert.Equal(t, "Norway", recs[0].Name)
	assert.InDelta(t, 60.47, recs[0].Latitude, 1e-12)
	assert.True(t, recs[0].IsMember(model.OrgNATO))
	assert.False(t, recs[0].IsMember(model.OrgEU))
	assert.True(t, recs[0].IsMember("efta"))
	assert.Equal(t, "CH", recs[1].Code)
}

func TestDecodeCountriesErrors(t *testing.T) {
	tests := map[string]string{
		"not json":       `{`,
		"duplicate code": `[{"country_code":"A","country":"a","latitude":0,"longitude":0},{"country_code":"A","country":"b","latitude":1,"longitude":1}]`,
		"missing lat":    `[{"country_code":"A","country":"a","longitude":0}]`,
		"empty code":     `[{"country_code":"","country":"a","latitude":0,"longitude":0}]`,
		"bad flag":       `[{"country_code":"A","country":"a","latitude":0,"longitude":0,"in_eu":"yes"}]`,
		"bad latitude":   `[{"country_code":"A","country":"a","latitude":"north","longitude":0}]`,
		"duplicate flag": `[{"country_code":"A","country":"a","latitude":0,"longitude":0,"in_eu":true,"in_EU":false}]`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCountries(strings.NewReader(in))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidData))
		})
	}
}

func TestDecodeOrganizations(t *testing.T) {
	in := `
organizations:
  - id: EFTA
    description: free trade
    color: "#00ff00"
    link_altitude: 1.3
  - id: bis
`
	orgs, err := DecodeOrganizations(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, orgs, 2)

	assert.Equal(t, model.OrganizationID("efta"), orgs[0].ID)
	assert.Equal(t, "EFTA", orgs[0].Name)
	assert.Equal(t, model.RGB{G: 255}, orgs[0].Color)
	assert.Equal(t, 1.3, orgs[0].Altitude())
	assert.Equal(t, fallbackColor, orgs[1].Color)
	assert.Equal(t, model.DefaultLinkAltitude, orgs[1].Altitude())
}

func TestDecodeOrganizationsErrors(t *testing.T) {
	tests := map[string]string{
		"duplicate":      "organizations:\n  - id: eu\n  - id: EU\n",
		"bad colour":     "organizations:\n  - id: eu\n    color: purple\n",
		"empty id":       "organizations:\n  - name: nameless\n",
		"unknown field":  "organizations:\n  - id: eu\n    colour: rgb(1,2,3)\n",
		"negative arc":   "organizations:\n  - id: eu\n    link_altitude: -1\n",
		"malformed yaml": "organizations: [",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeOrganizations(strings.NewReader(in))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidData))
		})
	}
}

func TestDecodeOrganizationsEmptyDocument(t *testing.T) {
	orgs, err := DecodeOrganizations(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, orgs)
}

func TestLoadFromFiles(t *testing.T) {
	dir := t.TempDir()
	countries := filepath.Join(dir, "countries.json")
	orgs := filepath.Join(dir, "organizations.yaml")
	require.NoError(t, os.WriteFile(countries, []byte(`[{"country_code":"IS","country":"Iceland","latitude":64.9,"longitude":-19.0,"in_nato":true}]`), 0o600))
	require.NoError(t, os.WriteFile(orgs, []byte("organizations:\n  - id: nato\n    color: rgb(188,156,244)\n"), 0o600))

	ds, err := Load(countries, orgs)
	require.NoError(t, err)
	require.Len(t, ds.Countries, 1)
	require.Len(t, ds.Organizations, 1)
	assert.Equal(t, "IS", ds.Countries[0].Code)

	// Only the countries file overridden; metadata falls back to embedded.
	ds, err = Load(countries, "")
	require.NoError(t, err)
	assert.Len(t, ds.Organizations, len(model.KnownOrganizations()))

	_, err = Load(filepath.Join(dir, "missing.json"), "")
	require.Error(t, err)
}

func TestPopulate(t *testing.T) {
	ds := &Dataset{
		Countries: []model.CountryRecord{
			{Code: "NO", Memberships: map[model.OrganizationID]bool{model.OrgNATO: true, "efta": true}},
			{Code: "IS", Memberships: map[model.OrganizationID]bool{"efta": true}},
		},
		Organizations: []model.Organization{{ID: model.OrgNATO, Name: "NATO"}},
	}
	store := kb.NewKnowledgeBase()
	require.NoError(t, Populate(store, ds))

	assert.Len(t, store.ListCountries(), 2)
	efta, err := store.Organization("efta")
	require.NoError(t, err)
	assert.Equal(t, "EFTA", efta.Name)
	assert.Equal(t, fallbackColor, efta.Color)
	require.NoError(t, store.Activate("efta"))

	// A second populate collides on country codes.
	assert.True(t, errors.Is(Populate(store, ds), kb.ErrCountryExists))
	assert.Error(t, Populate(nil, ds))
	assert.Error(t, Populate(store, nil))
}
