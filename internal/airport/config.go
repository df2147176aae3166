package airport

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/yegors/co-rwsl/internal/geo"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid airport configuration")

// FixtureType identifies the kind of light fixture
type FixtureType string

const (
	FixtureREL FixtureType = "REL" // runway entrance lights
	FixtureTHL FixtureType = "THL" // takeoff hold lights
	FixtureRIL FixtureType = "RIL" // runway intersection lights
)

// Default detection geometry, applied only when a section is left out entirely
const (
	DefaultRELInner          = 50.0
	DefaultRELOuter          = 200.0
	DefaultRELSectorAngle    = 90.0
	DefaultTHLAreaLength     = 100.0
	DefaultTHLAreaWidth      = 60.0
	DefaultIntersectionRange = 200.0
)

// Config is the airport geometry file as written by operators
type Config struct {
	ID                string               `toml:"id" json:"id"`
	Name              string               `toml:"name" json:"name"`
	ReferencePoint    *geo.LatLon          `toml:"reference_point" json:"referencePoint"`
	ElevationFt       float64              `toml:"elevation_ft" json:"elevationFt"`
	MagneticVariation *float64             `toml:"magnetic_variation" json:"magneticVariation"` // degrees, east positive; WMM when omitted
	Runways           []RunwayConfig       `toml:"runways" json:"runways"`
	Intersections     []IntersectionConfig `toml:"intersections" json:"intersections"`
	RWSL              RWSLConfig           `toml:"rwsl" json:"rwsl"`
	Fixtures          []FixtureConfig      `toml:"fixtures" json:"fixtures"`
}

// RunwayConfig describes one paved runway and its two landing directions
type RunwayConfig struct {
	ID         string                     `toml:"id" json:"id"`
	Name       string                     `toml:"name" json:"name"`
	Width      float64                    `toml:"width" json:"width"` // meters
	Directions map[string]DirectionConfig `toml:"directions" json:"directions"`
}

// DirectionConfig is one end of a runway
type DirectionConfig struct {
	Threshold *geo.LatLon `toml:"threshold" json:"threshold"`
}

// IntersectionConfig marks where two runways cross
type IntersectionConfig struct {
	ID       string     `toml:"id" json:"id"`
	Runways  []string   `toml:"runways" json:"runways"`
	Position geo.LatLon `toml:"position" json:"position"`
	Radius   float64    `toml:"radius" json:"radius"` // critical zone in meters
}

// RWSLConfig holds the detection settings for each light family
type RWSLConfig struct {
	REL RELConfig `toml:"rel" json:"rel"`
	THL THLConfig `toml:"thl" json:"thl"`
	RIL RILConfig `toml:"ril" json:"ril"`
}

// Range is an annulus around a fixture
type Range struct {
	Inner float64 `toml:"inner" json:"inner"`
	Outer float64 `toml:"outer" json:"outer"`
}

// Area is a rectangle in front of a threshold
type Area struct {
	Length float64 `toml:"length" json:"length"`
	Width  float64 `toml:"width" json:"width"`
}

// RELConfig configures runway entrance light detection
type RELConfig struct {
	Enabled           *bool   `toml:"enabled" json:"enabled"`
	DetectionRange    Range   `toml:"detection_range" json:"detectionRange"`
	SectorAngle       float64 `toml:"sector_angle" json:"sectorAngle"` // full cone width in degrees
	ActivationDelayMs int     `toml:"activation_delay_ms" json:"activationDelay"`
}

// THLConfig configures takeoff hold light detection
type THLConfig struct {
	Enabled           *bool `toml:"enabled" json:"enabled"`
	DetectionArea     Area  `toml:"detection_area" json:"detectionArea"`
	ActivationDelayMs int   `toml:"activation_delay_ms" json:"activationDelay"`
}

// RILConfig configures runway intersection lights
type RILConfig struct {
	Enabled *bool `toml:"enabled" json:"enabled"`
}

// FixtureConfig places one light fixture. Either Position or an offset from the owning
// direction's threshold must be given.
type FixtureConfig struct {
	ID              string      `toml:"id" json:"id"`
	Type            FixtureType `toml:"type" json:"type"`
	Runway          string      `toml:"runway" json:"runway"`
	Direction       string      `toml:"direction" json:"direction"`
	Intersection    string      `toml:"intersection" json:"intersection"`
	Position        *geo.LatLon `toml:"position" json:"position"`
	OffsetAlong     float64     `toml:"offset_along" json:"offsetAlong"` // meters from threshold toward the far end
	OffsetCross     float64     `toml:"offset_cross" json:"offsetCross"` // meters right of the centerline
	ApproachBearing *float64    `toml:"approach_bearing" json:"approachBearing"`
}

// LatLonPtr is a convenience for building configurations in code
func LatLonPtr(lat, lon float64) *geo.LatLon {
	return &geo.LatLon{Lat: lat, Lon: lon}
}

func enabled(flag *bool) bool {
	return flag == nil || *flag
}

// Load reads an airport file. Files ending in .json are parsed as JSON, everything else
// as TOML. The result is validated.
func Load(path string) (*Config, error) {
	var cfg Config

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read airport file: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode airport file: %w", err)
		}
	default:
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode airport file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and fills defaults for omitted detection sections
func (c *Config) Validate() error {
	var problems []error
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.ID) == "" {
		fail("id is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		fail("name is required")
	}
	if c.ReferencePoint == nil {
		fail("reference_point is required")
	} else if err := geo.ValidateLatLon(c.ReferencePoint.Lat, c.ReferencePoint.Lon); err != nil {
		fail("reference_point: %v", err)
	}

	if len(c.Runways) == 0 {
		fail("at least one runway is required")
	}
	runways := make(map[string]map[string]bool)
	for i, rw := range c.Runways {
		if rw.ID == "" {
			fail("runways[%d]: id is required", i)
			continue
		}
		if _, dup := runways[rw.ID]; dup {
			fail("runway %s: duplicate id", rw.ID)
		}
		if rw.Width <= 0 {
			fail("runway %s: width must be positive: %f", rw.ID, rw.Width)
		}
		if len(rw.Directions) < 2 {
			fail("runway %s: at least two directions are required, got %d", rw.ID, len(rw.Directions))
		} else if len(rw.Directions) > 2 {
			fail("runway %s: a runway has exactly two directions, got %d", rw.ID, len(rw.Directions))
		}
		dirs := make(map[string]bool)
		for id, dir := range rw.Directions {
			dirs[id] = true
			if dir.Threshold == nil {
				fail("runway %s direction %s: threshold is required", rw.ID, id)
				continue
			}
			if err := geo.ValidateLatLon(dir.Threshold.Lat, dir.Threshold.Lon); err != nil {
				fail("runway %s direction %s: %v", rw.ID, id, err)
			}
		}
		runways[rw.ID] = dirs
	}

	rel := &c.RWSL.REL
	if rel.DetectionRange.Inner == 0 && rel.DetectionRange.Outer == 0 {
		rel.DetectionRange = Range{Inner: DefaultRELInner, Outer: DefaultRELOuter}
	}
	if rel.DetectionRange.Inner < 0 {
		fail("rwsl.rel.detection_range.inner must not be negative: %f", rel.DetectionRange.Inner)
	}
	if rel.DetectionRange.Inner >= rel.DetectionRange.Outer {
		fail("rwsl.rel.detection_range: inner (%f) must be less than outer (%f)", rel.DetectionRange.Inner, rel.DetectionRange.Outer)
	}
	if rel.SectorAngle == 0 {
		rel.SectorAngle = DefaultRELSectorAngle
	}
	if rel.SectorAngle < 0 || rel.SectorAngle > 360 {
		fail("rwsl.rel.sector_angle must be in (0, 360]: %f", rel.SectorAngle)
	}

	thl := &c.RWSL.THL
	if thl.DetectionArea.Length == 0 && thl.DetectionArea.Width == 0 {
		thl.DetectionArea = Area{Length: DefaultTHLAreaLength, Width: DefaultTHLAreaWidth}
	}
	if thl.DetectionArea.Length <= 0 || thl.DetectionArea.Width <= 0 {
		fail("rwsl.thl.detection_area dimensions must be positive: length=%f width=%f", thl.DetectionArea.Length, thl.DetectionArea.Width)
	}

	intersections := make(map[string]bool)
	for i := range c.Intersections {
		ix := &c.Intersections[i]
		if ix.ID == "" {
			fail("intersections[%d]: id is required", i)
			continue
		}
		intersections[ix.ID] = true
		if len(ix.Runways) != 2 {
			fail("intersection %s: exactly two runways are required", ix.ID)
		}
		for _, rw := range ix.Runways {
			if _, ok := runways[rw]; !ok {
				fail("intersection %s: unknown runway %s", ix.ID, rw)
			}
		}
		if err := geo.ValidateLatLon(ix.Position.Lat, ix.Position.Lon); err != nil {
			fail("intersection %s: %v", ix.ID, err)
		}
		if ix.Radius == 0 {
			ix.Radius = DefaultIntersectionRange
		}
		if ix.Radius < 0 {
			fail("intersection %s: radius must be positive: %f", ix.ID, ix.Radius)
		}
	}

	seen := make(map[string]bool)
	for i, fx := range c.Fixtures {
		if fx.ID == "" {
			fail("fixtures[%d]: id is required", i)
			continue
		}
		if seen[fx.ID] {
			fail("fixture %s: duplicate id", fx.ID)
		}
		seen[fx.ID] = true

		switch fx.Type {
		case FixtureREL, FixtureTHL:
			dirs, ok := runways[fx.Runway]
			if !ok {
				fail("fixture %s: unknown runway %q", fx.ID, fx.Runway)
				continue
			}
			if !dirs[fx.Direction] {
				fail("fixture %s: runway %s has no direction %q", fx.ID, fx.Runway, fx.Direction)
			}
		case FixtureRIL:
			if fx.Intersection == "" {
				fail("fixture %s: RIL fixtures need an intersection", fx.ID)
			} else if len(c.Intersections) > 0 && !intersections[fx.Intersection] {
				fail("fixture %s: unknown intersection %q", fx.ID, fx.Intersection)
			}
			if fx.Position == nil {
				fail("fixture %s: RIL fixtures need a position", fx.ID)
			}
		default:
			fail("fixture %s: unknown type %q", fx.ID, fx.Type)
		}
		if fx.Position != nil {
			if err := geo.ValidateLatLon(fx.Position.Lat, fx.Position.Lon); err != nil {
				fail("fixture %s: %v", fx.ID, err)
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(problems...))
	}
	return nil
}
