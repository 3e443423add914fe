package model

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// OrganizationID identifies an international organization. IDs are the
// lower-case short names used by the reference data ("eu", "nato", ...).
type OrganizationID string

const (
	OrgEU       OrganizationID = "eu"
	OrgUNFCCC   OrganizationID = "uncfcc"
	OrgNATO     OrganizationID = "nato"
	OrgOECD     OrganizationID = "oecd"
	OrgG7       OrganizationID = "g7"
	OrgUN       OrganizationID = "un"
	OrgOSCE     OrganizationID = "osce"
	OrgCOE      OrganizationID = "coe"
	OrgILO      OrganizationID = "ilo"
	OrgINTERPOL OrganizationID = "interpol"
)

// knownOrganizations is the canonical iteration order. It matches the order
// in which the reference data lists membership columns.
var knownOrganizations = []OrganizationID{
	OrgEU,
	OrgUNFCCC,
	OrgNATO,
	OrgOECD,
	OrgG7,
	OrgUN,
	OrgOSCE,
	OrgCOE,
	OrgILO,
	OrgINTERPOL,
}

// KnownOrganizations returns the built-in organization IDs in canonical order.
// The returned slice is a copy.
func KnownOrganizations() []OrganizationID {
	return append([]OrganizationID(nil), knownOrganizations...)
}

// OrganizationRank returns the canonical position of id, or -1 when the ID is
// not one of the built-in organizations.
func OrganizationRank(id OrganizationID) int {
	for i, known := range knownOrganizations {
		if known == id {
			return i
		}
	}
	return -1
}

// CompareOrganizationIDs orders built-in organizations canonically, ahead of
// any others, which sort by ID.
func CompareOrganizationIDs(a, b OrganizationID) int {
	ra, rb := OrganizationRank(a), OrganizationRank(b)
	switch {
	case ra >= 0 && rb >= 0:
		return cmp.Compare(ra, rb)
	case ra >= 0:
		return -1
	case rb >= 0:
		return 1
	default:
		return cmp.Compare(a, b)
	}
}

// SortOrganizationIDs returns a copy of ids in CompareOrganizationIDs order.
func SortOrganizationIDs(ids []OrganizationID) []OrganizationID {
	out := slices.Clone(ids)
	slices.SortFunc(out, CompareOrganizationIDs)
	return out
}

// ParseOrganizationID normalises user input ("NATO", " eu ") to an ID.
func ParseOrganizationID(s string) OrganizationID {
	return OrganizationID(strings.ToLower(strings.TrimSpace(s)))
}

// RGB is an 8-bit colour used to draw an organization's cells and links.
type RGB struct {
	R, G, B uint8
}

// String renders the colour in CSS functional notation.
func (c RGB) String() string {
	return fmt.Sprintf("rgb(%d,%d,%d)", c.R, c.G, c.B)
}

// ParseRGB parses "rgb(r,g,b)" (whitespace tolerant) or "#rrggbb".
func ParseRGB(s string) (RGB, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		var c RGB
		if len(s) != 7 {
			return RGB{}, fmt.Errorf("invalid hex colour %q", s)
		}
		if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
			return RGB{}, fmt.Errorf("invalid hex colour %q: %w", s, err)
		}
		return c, nil
	}

	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "rgb(") || !strings.HasSuffix(lower, ")") {
		return RGB{}, fmt.Errorf("invalid colour %q", s)
	}
	parts := strings.Split(lower[len("rgb("):len(lower)-1], ",")
	if len(parts) != 3 {
		return RGB{}, fmt.Errorf("invalid colour %q: want 3 components", s)
	}
	var comps [3]uint8
	for i, p := range parts {
		var v int
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%d", &v); err != nil {
			return RGB{}, fmt.Errorf("invalid colour %q: %w", s, err)
		}
		if v < 0 || v > 255 {
			return RGB{}, fmt.Errorf("invalid colour %q: component %d out of range", s, v)
		}
		comps[i] = uint8(v)
	}
	return RGB{R: comps[0], G: comps[1], B: comps[2]}, nil
}

// DefaultLinkAltitude is the arc height factor used when an organization does
// not set its own.
const DefaultLinkAltitude = 1.0

// Organization is the display metadata for one organization.
type Organization struct {
	ID          OrganizationID
	Name        string
	Description string
	Color       RGB
	// LinkAltitude scales how far link arcs rise above the globe.
	LinkAltitude float64
}

// Altitude returns LinkAltitude, falling back to DefaultLinkAltitude.
func (o Organization) Altitude() float64 {
	if o.LinkAltitude <= 0 {
		return DefaultLinkAltitude
	}
	return o.LinkAltitude
}
