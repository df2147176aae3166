package physics

import (
	"math"
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

// Constants
const (
	KnotsToMs    = 0.514444 // Conversion factor from Knots to m/s
	MsToKnots    = 1.94384  // Conversion factor from m/s to Knots
	FeetToMeters = 0.3048
	NMToMeters   = 1852.0
	MileToMeters = 1609.0 // statute mile, as used for REL arrival coverage
)

// ------------------------------------------------------------------------------------------------
// NAVIGATION PHYSICS
// ------------------------------------------------------------------------------------------------

// Vector2D represents a 2D vector (magnitude, direction)
type Vector2D struct {
	X float64 // East component
	Y float64 // North component
}

// HeadingToVector converts a heading (degrees) and magnitude to X/Y components
func HeadingToVector(headingDeg float64, magnitude float64) Vector2D {
	rad := (90 - headingDeg) * math.Pi / 180 // Convert compass heading to math angle
	return Vector2D{
		X: magnitude * math.Cos(rad),
		Y: magnitude * math.Sin(rad),
	}
}

// VelocityMs returns the planar velocity in m/s for a ground speed in knots and a true heading
func VelocityMs(speedKnots, headingDeg float64) Vector2D {
	return HeadingToVector(headingDeg, speedKnots*KnotsToMs)
}

// NormalizeHeading folds a heading into [0, 360)
func NormalizeHeading(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// HeadingDifference returns the absolute angle between two headings in [0, 180]
func HeadingDifference(a, b float64) float64 {
	diff := math.Abs(NormalizeHeading(a) - NormalizeHeading(b))
	if diff > 180 {
		diff = 360 - diff
	}
	return diff
}

// CalculateMagneticVariation calculates the magnetic declination for a given position and time
// Returns declination in degrees (+East, -West)
func CalculateMagneticVariation(lat, lon, altFt float64, date time.Time) float64 {
	altM := altFt * FeetToMeters

	loc := egm96.NewLocationGeodetic(lat, lon, altM)

	mag, err := wmm.CalculateWMMMagneticField(loc, date)
	if err != nil {
		// Return 0 for safety if calculation fails
		return 0.0
	}

	return mag.D() // Declination
}

// TrueToMagnetic converts a true heading to magnetic using an east-positive declination
func TrueToMagnetic(trueDeg, declination float64) float64 {
	return NormalizeHeading(trueDeg - declination)
}
