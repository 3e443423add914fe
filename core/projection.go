package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/membership-globe/model"
)

// Default projection parameters used by the globe scene.
const (
	DefaultSphereRadius = 4.5
	DefaultImageWidth   = 4800
	DefaultImageHeight  = 3200
)

// ErrInvalidGeoCoordinate is returned by ValidateCoordinate. The projection
// functions themselves never return it: they accept any input.
var ErrInvalidGeoCoordinate = errors.New("invalid geographic coordinate")

// ProjectionParams scales the planar and spherical projections.
type ProjectionParams struct {
	SphereRadius float64
	ImageWidth   int
	ImageHeight  int
}

// DefaultProjectionParams returns the parameters of the reference scene.
func DefaultProjectionParams() ProjectionParams {
	return ProjectionParams{
		SphereRadius: DefaultSphereRadius,
		ImageWidth:   DefaultImageWidth,
		ImageHeight:  DefaultImageHeight,
	}
}

// ToSphere projects a country onto a sphere of the given radius.
//
// The colatitude is φ = (90 - lat) and the azimuth θ = (lon + 180), both in
// radians. Coordinates outside [-90, 90] / [-180, 180] are not rejected.
func ToSphere(rec model.CountryRecord, radius float64) model.Point3D {
	v := SpherePosition(rec.Latitude, rec.Longitude, radius)
	return model.Point3D{Country: rec, X: v.X, Y: v.Y, Z: v.Z}
}

// SpherePosition is the sphere projection for a bare coordinate pair.
func SpherePosition(lat, lon, radius float64) Vec3 {
	phi := (90 - lat) * math.Pi / 180
	theta := (lon + 180) * math.Pi / 180
	return Vec3{
		X: -radius * math.Sin(phi) * math.Cos(theta),
		Y: radius * math.Cos(phi),
		Z: radius * math.Sin(phi) * math.Sin(theta),
	}
}

// ToPlane projects a country onto an equirectangular image. lon=-180/lat=90
// maps to (0, 0) and lon=180/lat=-90 to (width, height); nothing is clamped.
func ToPlane(rec model.CountryRecord, width, height int) model.Point2D {
	x := (float64(width) / 360.0) * (180 + rec.Longitude)
	y := (float64(height) / 180.0) * (90 - rec.Latitude)
	return model.Point2D{Country: rec, X: x, Y: y}
}

// ValidateCoordinate reports whether lat/lon lie in the geographic domain.
// It is an opt-in check for callers that want stricter input handling.
func ValidateCoordinate(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v outside [-90, 90]", ErrInvalidGeoCoordinate, lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %v outside [-180, 180]", ErrInvalidGeoCoordinate, lon)
	}
	return nil
}
