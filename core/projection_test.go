package core

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/membership-globe/model"
)

func country(code string, lat, lon float64, orgs ...model.OrganizationID) model.CountryRecord {
	m := make(map[model.OrganizationID]bool, len(orgs))
	for _, o := range orgs {
		m[o] = true
	}
	return model.CountryRecord{Code: code, Name: code, Latitude: lat, Longitude: lon, Memberships: m}
}

func TestToSphere_OriginOfGraticule(t *testing.T) {
	const r = 4.5
	p := ToSphere(country("XX", 0, 0), r)

	// φ = 90°, θ = 180°: x = -r·sin φ·cos θ = r, y = r·cos φ = 0, z = r·sin φ·sin θ = 0.
	assert.InDelta(t, r, p.X, 1e-12)
	assert.InDelta(t, 0, p.Y, 1e-12)
	assert.InDelta(t, 0, p.Z, 1e-12)
}

func TestToSphere_Poles(t *testing.T) {
	const r = 2.0
	north := ToSphere(country("N", 90, 0), r)
	assert.InDelta(t, 0, north.X, 1e-12)
	assert.InDelta(t, r, north.Y, 1e-12)
	assert.InDelta(t, 0, north.Z, 1e-12)

	south := ToSphere(country("S", -90, 45), r)
	assert.InDelta(t, -r, south.Y, 1e-12)
}

func TestToSphere_StaysOnSphere(t *testing.T) {
	const r = 4.5
	for _, c := range []model.CountryRecord{
		country("DE", 51.1657, 10.4515),
		country("JP", 36.2048, 138.2529),
		country("BR", -14.235, -51.9253),
		country("NZ", -40.9006, 174.886),
	} {
		p := ToSphere(c, r)
		assert.InDelta(t, r, PointVec(p).Norm(), 1e-9, c.Code)
	}
}

func TestToPlane_Corners(t *testing.T) {
	topLeft := ToPlane(country("TL", 90, -180), 4800, 3200)
	assert.Equal(t, 0.0, topLeft.X)
	assert.Equal(t, 0.0, topLeft.Y)

	bottomRight := ToPlane(country("BR", -90, 180), 4800, 3200)
	assert.Equal(t, 4800.0, bottomRight.X)
	assert.Equal(t, 3200.0, bottomRight.Y)

	centre := ToPlane(country("C", 0, 0), 4800, 3200)
	assert.Equal(t, 2400.0, centre.X)
	assert.Equal(t, 1600.0, centre.Y)
}

func TestToPlane_NoClamping(t *testing.T) {
	p := ToPlane(country("OUT", -100, 200), 360, 180)
	assert.Equal(t, 380.0, p.X)
	assert.Equal(t, 190.0, p.Y)
}

func TestProjection_Idempotent(t *testing.T) {
	c := country("FR", 46.2276, 2.2137, model.OrgEU)

	require.Equal(t, ToSphere(c, 4.5), ToSphere(c, 4.5))
	require.Equal(t, ToPlane(c, 4800, 3200), ToPlane(c, 4800, 3200))

	a, b := ToSphere(c, 4.5), ToSphere(c, 4.5)
	assert.Equal(t, math.Float64bits(a.X), math.Float64bits(b.X))
	assert.Equal(t, math.Float64bits(a.Y), math.Float64bits(b.Y))
	assert.Equal(t, math.Float64bits(a.Z), math.Float64bits(b.Z))
}

func TestProjection_CarriesRecordUnchanged(t *testing.T) {
	c := country("IT", 41.8719, 12.5674, model.OrgEU, model.OrgNATO)

	p3 := ToSphere(c, 1)
	p2 := ToPlane(c, 10, 10)

	assert.Equal(t, c, p3.Country)
	assert.Equal(t, c, p2.Country)
	assert.Equal(t, 41.8719, c.Latitude)
	assert.Equal(t, 12.5674, c.Longitude)
}

func TestValidateCoordinate(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		wantErr  bool
	}{
		{"origin", 0, 0, false},
		{"north-west corner", 90, -180, false},
		{"south-east corner", -90, 180, false},
		{"latitude too high", 90.5, 0, true},
		{"latitude too low", -91, 0, true},
		{"longitude too high", 0, 181, true},
		{"longitude too low", 0, -180.01, true},
		{"nan latitude", math.NaN(), 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCoordinate(tc.lat, tc.lon)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidGeoCoordinate))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestToSphere_OutOfRangeDoesNotPanic(t *testing.T) {
	p := ToSphere(country("BAD", 120, 400), 1)
	assert.False(t, math.IsNaN(p.X))
}
