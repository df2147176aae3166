package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadius is the mean Earth radius in meters used by the tangent plane
const EarthRadius = 6371000.0

// ErrInvalidCoordinate is returned for NaN, infinite or out-of-range input
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Point is a position on the local tangent plane in meters (X east, Y north)
type Point struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// LatLon is a geodetic position in degrees
type LatLon struct {
	Lat float64 `json:"lat" toml:"lat" msgpack:"lat"`
	Lon float64 `json:"lon" toml:"lon" msgpack:"lon"`
}

// Projector maps WGS84 positions onto an equirectangular tangent plane centered on a
// fixed origin. Error stays below a meter inside a 20 km radius.
type Projector struct {
	origin    LatLon
	originLat float64 // radians
	originLon float64 // radians
	cosLat    float64
}

// NewProjector creates a projector around the given origin
func NewProjector(origin LatLon) (*Projector, error) {
	if err := ValidateLatLon(origin.Lat, origin.Lon); err != nil {
		return nil, fmt.Errorf("projector origin: %w", err)
	}
	if math.Abs(origin.Lat) >= 89 {
		return nil, fmt.Errorf("projector origin: %w: latitude %f too close to the pole", ErrInvalidCoordinate, origin.Lat)
	}

	lat := origin.Lat * math.Pi / 180
	return &Projector{
		origin:    origin,
		originLat: lat,
		originLon: origin.Lon * math.Pi / 180,
		cosLat:    math.Cos(lat),
	}, nil
}

// Origin returns the reference point
func (p *Projector) Origin() LatLon {
	return p.origin
}

// ToPlane converts a geodetic position to plane coordinates
func (p *Projector) ToPlane(lat, lon float64) (Point, error) {
	if err := ValidateLatLon(lat, lon); err != nil {
		return Point{}, err
	}

	dLat := lat*math.Pi/180 - p.originLat
	dLon := lon*math.Pi/180 - p.originLon

	return Point{
		X: EarthRadius * dLon * p.cosLat,
		Y: EarthRadius * dLat,
	}, nil
}

// ToWGS84 converts plane coordinates back to a geodetic position
func (p *Projector) ToWGS84(pt Point) (LatLon, error) {
	if !finite(pt.X) || !finite(pt.Y) {
		return LatLon{}, fmt.Errorf("%w: plane point (%f, %f)", ErrInvalidCoordinate, pt.X, pt.Y)
	}

	lat := (p.originLat + pt.Y/EarthRadius) * 180 / math.Pi
	lon := (p.originLon + pt.X/(EarthRadius*p.cosLat)) * 180 / math.Pi

	if err := ValidateLatLon(lat, lon); err != nil {
		return LatLon{}, err
	}
	return LatLon{Lat: lat, Lon: lon}, nil
}

// Distance returns the planar distance in meters
func (p *Projector) Distance(a, b Point) float64 {
	return Distance(a, b)
}

// Bearing returns the bearing from one point to another in radians [0, 2π), clockwise from north
func (p *Projector) Bearing(from, to Point) float64 {
	return Bearing(from, to)
}

// ValidateLatLon reports whether a geodetic position is usable
func ValidateLatLon(lat, lon float64) error {
	if !finite(lat) || !finite(lon) {
		return fmt.Errorf("%w: lat=%f lon=%f", ErrInvalidCoordinate, lat, lon)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %f out of range", ErrInvalidCoordinate, lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %f out of range", ErrInvalidCoordinate, lon)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
