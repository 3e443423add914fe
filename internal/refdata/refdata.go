// Package refdata loads the country and organization reference data that
// feeds the knowledge base.
package refdata

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/membership-globe/kb"
	"github.com/signalsfoundry/membership-globe/model"
)

//go:embed countries.json
var embeddedCountries []byte

//go:embed organizations.yaml
var embeddedOrganizations []byte

// membershipPrefix marks a membership column in the country data.
const membershipPrefix = "in_"

// fallbackColor is used for organizations that appear in the country data
// without display metadata.
var fallbackColor = model.RGB{R: 128, G: 128, B: 128}

// ErrInvalidData is wrapped by every decode failure.
var ErrInvalidData = errors.New("invalid reference data")

// Dataset is one consistent set of reference data.
type Dataset struct {
	Countries     []model.CountryRecord
	Organizations []model.Organization
}

// Default returns the embedded dataset.
func Default() (*Dataset, error) {
	return Load("", "")
}

// Load reads the country list and organization metadata. An empty path
// selects the embedded copy of that file.
func Load(countriesPath, organizationsPath string) (*Dataset, error) {
	countries, err := openOrEmbedded(countriesPath, embeddedCountries)
	if err != nil {
		return nil, err
	}
	defer countries.Close()

	orgs, err := openOrEmbedded(organizationsPath, embeddedOrganizations)
	if err != nil {
		return nil, err
	}
	defer orgs.Close()

	ds := &Dataset{}
	if ds.Countries, err = DecodeCountries(countries); err != nil {
		return nil, fmt.Errorf("countries: %w", err)
	}
	if ds.Organizations, err = DecodeOrganizations(orgs); err != nil {
		return nil, fmt.Errorf("organizations: %w", err)
	}
	return ds, nil
}

func openOrEmbedded(path string, embedded []byte) (io.ReadCloser, error) {
	if path == "" {
		return io.NopCloser(bytes.NewReader(embedded)), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reference data: %w", err)
	}
	return f, nil
}

// DecodeCountries parses a JSON array of country objects. Every "in_<org>"
// key becomes a membership flag for organization <org>, so new columns need
// no code change. Records keep their order in the file.
func DecodeCountries(r io.Reader) ([]model.CountryRecord, error) {
	var raw []map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]model.CountryRecord, 0, len(raw))
	for i, fields := range raw {
		rec, err := decodeCountry(fields)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrInvalidData, i, err)
		}
		if _, dup := seen[rec.Code]; dup {
			return nil, fmt.Errorf("%w: record %d: duplicate country code %q", ErrInvalidData, i, rec.Code)
		}
		seen[rec.Code] = struct{}{}
		out = append(out, rec)
	}
	return out, nil
}

func decodeCountry(fields map[string]json.RawMessage) (model.CountryRecord, error) {
	rec := model.CountryRecord{Memberships: make(map[model.OrganizationID]bool)}

	if err := requireField(fields, "country_code", &rec.Code); err != nil {
		return rec, err
	}
	if rec.Code == "" {
		return rec, errors.New("empty country_code")
	}
	if err := requireField(fields, "country", &rec.Name); err != nil {
		return rec, err
	}
	if err := requireField(fields, "latitude", &rec.Latitude); err != nil {
		return rec, err
	}
	if err := requireField(fields, "longitude", &rec.Longitude); err != nil {
		return rec, err
	}

	columns := make(map[model.OrganizationID]string)
	for key, value := range fields {
		if !strings.HasPrefix(key, membershipPrefix) {
			continue
		}
		org := model.ParseOrganizationID(strings.TrimPrefix(key, membershipPrefix))
		if org == "" {
			continue
		}
		if other, dup := columns[org]; dup {
			return rec, fmt.Errorf("columns %q and %q both name organization %q", other, key, org)
		}
		columns[org] = key
		var member bool
		if err := json.Unmarshal(value, &member); err != nil {
			return rec, fmt.Errorf("%s: %v", key, err)
		}
		rec.Memberships[org] = member
	}
	return rec, nil
}

func requireField(fields map[string]json.RawMessage, key string, dst any) error {
	value, ok := fields[key]
	if !ok {
		return fmt.Errorf("missing %s", key)
	}
	if err := json.Unmarshal(value, dst); err != nil {
		return fmt.Errorf("%s: %v", key, err)
	}
	return nil
}

type organizationsFile struct {
	Organizations []organizationYAML `yaml:"organizations"`
}

type organizationYAML struct {
	ID           string  `yaml:"id"`
	Name         string  `yaml:"name"`
	Description  string  `yaml:"description"`
	Color        string  `yaml:"color"`
	LinkAltitude float64 `yaml:"link_altitude"`
}

// DecodeOrganizations parses the organization metadata document.
func DecodeOrganizations(r io.Reader) ([]model.Organization, error) {
	var doc organizationsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	seen := make(map[model.OrganizationID]struct{}, len(doc.Organizations))
	out := make([]model.Organization, 0, len(doc.Organizations))
	for i, o := range doc.Organizations {
		id := model.ParseOrganizationID(o.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: organization %d: empty id", ErrInvalidData, i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate organization %q", ErrInvalidData, id)
		}
		seen[id] = struct{}{}

		color := fallbackColor
		if o.Color != "" {
			c, err := model.ParseRGB(o.Color)
			if err != nil {
				return nil, fmt.Errorf("%w: organization %q: %v", ErrInvalidData, id, err)
			}
			color = c
		}
		if o.LinkAltitude < 0 {
			return nil, fmt.Errorf("%w: organization %q: negative link_altitude", ErrInvalidData, id)
		}

		name := o.Name
		if name == "" {
			name = strings.ToUpper(string(id))
		}
		out = append(out, model.Organization{
			ID:           id,
			Name:         name,
			Description:  o.Description,
			Color:        color,
			LinkAltitude: o.LinkAltitude,
		})
	}
	return out, nil
}

// Populate loads ds into store. Organizations referenced by a membership
// column but missing from the metadata get a placeholder entry so they can
// still be selected.
func Populate(store *kb.KnowledgeBase, ds *Dataset) error {
	if store == nil {
		return errors.New("refdata: knowledge base is nil")
	}
	if ds == nil {
		return errors.New("refdata: dataset is nil")
	}

	known := make(map[model.OrganizationID]struct{}, len(ds.Organizations))
	for _, o := range ds.Organizations {
		store.PutOrganization(o)
		known[o.ID] = struct{}{}
	}
	for _, c := range ds.Countries {
		for org := range c.Memberships {
			if _, ok := known[org]; ok {
				continue
			}
			store.PutOrganization(model.Organization{
				ID:    org,
				Name:  strings.ToUpper(string(org)),
				Color: fallbackColor,
			})
			known[org] = struct{}{}
		}
	}
	return store.AddCountries(ds.Countries)
}
