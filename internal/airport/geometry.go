package airport

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yegors/co-rwsl/internal/geo"
	"github.com/yegors/co-rwsl/internal/physics"
	"github.com/yegors/co-rwsl/pkg/logger"
)

// Occupancy rectangle margins around the paved surface
const (
	LengthMargin      = 50.0 // meters beyond each threshold
	HalfWidthMargin   = 10.0 // meters beyond each runway edge
	parallelTolerance = 5.0  // degrees
)

// Geometry is the compiled, read-only airport model shared by every cycle
type Geometry struct {
	ID                string
	Name              string
	Reference         geo.LatLon
	MagneticVariation float64
	Projector         *geo.Projector

	Runways       []*Runway
	Intersections []*Intersection
	Fixtures      []*Fixture

	REL RELSettings
	THL THLSettings
	RIL bool

	runways    map[string]*Runway
	directions map[string]*Direction
	parallels  map[string][]string
}

// RELSettings is the compiled REL detection sector
type RELSettings struct {
	Enabled         bool
	Inner           float64
	Outer           float64
	HalfAngle       float64 // radians
	ActivationDelay time.Duration
}

// THLSettings is the compiled THL detection rectangle
type THLSettings struct {
	Enabled         bool
	AreaLength      float64
	AreaWidth       float64
	ActivationDelay time.Duration
}

// Runway is one paved surface between two thresholds
type Runway struct {
	ID         string
	Width      float64
	Directions [2]*Direction
	Start      geo.Point // threshold of Directions[0]
	End        geo.Point // threshold of Directions[1]
	Length     float64
	Bearing    float64 // radians, Start toward End
}

// Direction is one landing/takeoff direction of a runway
type Direction struct {
	ID              string
	RunwayID        string
	Threshold       geo.Point
	ThresholdLatLon geo.LatLon
	Heading         float64 // degrees true, from this threshold toward the far one
	MagneticHeading float64
	Opposite        string
}

// Intersection is a point where two runways cross
type Intersection struct {
	ID       string
	Runways  [2]string
	Position geo.Point
	Radius   float64
	Derived  bool
}

// Fixture is a placed light
type Fixture struct {
	ID              string
	Type            FixtureType
	RunwayID        string
	DirectionID     string
	IntersectionID  string
	Position        geo.Point
	LatLon          geo.LatLon
	ApproachBearing float64 // radians, axis of the REL detection cone
}

// HalfWidth returns the occupancy half width (edge plus margin)
func (r *Runway) HalfWidth() float64 {
	return r.Width/2 + HalfWidthMargin
}

// Project places p relative to the runway axis
func (r *Runway) Project(p geo.Point) geo.SegmentProjection {
	return geo.ProjectOnSegment(p, r.Start, r.End)
}

// Contains reports whether p is inside the occupancy rectangle. Both the length margin
// and the half width bound are inclusive.
func (r *Runway) Contains(p geo.Point) bool {
	proj := r.Project(p)
	return proj.Along >= -LengthMargin && proj.Along <= r.Length+LengthMargin && proj.Cross <= r.HalfWidth()
}

// Bounds returns the axis-aligned box around the runway surface
func (r *Runway) Bounds() geo.Bounds {
	return geo.BoundsOf(r.Start, r.End).Expand(r.HalfWidth() + LengthMargin)
}

// Direction returns the named direction
func (r *Runway) Direction(id string) (*Direction, bool) {
	for _, d := range r.Directions {
		if d.ID == id {
			return d, true
		}
	}
	return nil, false
}

// NewGeometry compiles a validated configuration
func NewGeometry(cfg *Config, log *logger.Logger) (*Geometry, error) {
	if cfg.ReferencePoint == nil {
		return nil, fmt.Errorf("%w: reference_point is required", ErrInvalidConfig)
	}
	log = log.Named("airport")

	proj, err := geo.NewProjector(*cfg.ReferencePoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	g := &Geometry{
		ID:         cfg.ID,
		Name:       cfg.Name,
		Reference:  *cfg.ReferencePoint,
		Projector:  proj,
		runways:    make(map[string]*Runway),
		directions: make(map[string]*Direction),
		parallels:  make(map[string][]string),
		REL: RELSettings{
			Enabled:         enabled(cfg.RWSL.REL.Enabled),
			Inner:           cfg.RWSL.REL.DetectionRange.Inner,
			Outer:           cfg.RWSL.REL.DetectionRange.Outer,
			HalfAngle:       cfg.RWSL.REL.SectorAngle / 2 * math.Pi / 180,
			ActivationDelay: time.Duration(cfg.RWSL.REL.ActivationDelayMs) * time.Millisecond,
		},
		THL: THLSettings{
			Enabled:         enabled(cfg.RWSL.THL.Enabled),
			AreaLength:      cfg.RWSL.THL.DetectionArea.Length,
			AreaWidth:       cfg.RWSL.THL.DetectionArea.Width,
			ActivationDelay: time.Duration(cfg.RWSL.THL.ActivationDelayMs) * time.Millisecond,
		},
		RIL: enabled(cfg.RWSL.RIL.Enabled),
	}

	if cfg.MagneticVariation != nil {
		g.MagneticVariation = *cfg.MagneticVariation
	} else {
		g.MagneticVariation = physics.CalculateMagneticVariation(g.Reference.Lat, g.Reference.Lon, cfg.ElevationFt, time.Now().UTC())
		log.Info("Derived magnetic variation from WMM",
			logger.String("airport", cfg.ID),
			logger.Float64("variation_deg", g.MagneticVariation))
	}

	for _, rc := range cfg.Runways {
		rw, err := g.buildRunway(rc)
		if err != nil {
			return nil, err
		}
		g.Runways = append(g.Runways, rw)
		g.runways[rw.ID] = rw
		for _, d := range rw.Directions {
			g.directions[d.ID] = d
			if ok, designated := designatorMatches(d.ID, d.MagneticHeading); !ok {
				log.Warn("Runway designator does not match threshold geometry",
					logger.String("direction", d.ID),
					logger.Float64("magnetic_heading", d.MagneticHeading),
					logger.Float64("designated_heading", designated))
			}
		}
	}

	g.findParallels()

	if len(cfg.Intersections) > 0 {
		for _, ic := range cfg.Intersections {
			pos, err := proj.ToPlane(ic.Position.Lat, ic.Position.Lon)
			if err != nil {
				return nil, fmt.Errorf("%w: intersection %s: %w", ErrInvalidConfig, ic.ID, err)
			}
			g.Intersections = append(g.Intersections, &Intersection{
				ID:       ic.ID,
				Runways:  [2]string{ic.Runways[0], ic.Runways[1]},
				Position: pos,
				Radius:   ic.Radius,
			})
		}
	} else {
		g.deriveIntersections()
	}

	for _, fc := range cfg.Fixtures {
		fx, err := g.buildFixture(fc)
		if err != nil {
			return nil, err
		}
		g.Fixtures = append(g.Fixtures, fx)
	}

	log.Info("Airport geometry compiled",
		logger.String("airport", g.ID),
		logger.Int("runways", len(g.Runways)),
		logger.Int("intersections", len(g.Intersections)),
		logger.Int("fixtures", len(g.Fixtures)))

	return g, nil
}

func (g *Geometry) buildRunway(rc RunwayConfig) (*Runway, error) {
	ids := make([]string, 0, len(rc.Directions))
	for id := range rc.Directions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) != 2 {
		return nil, fmt.Errorf("%w: runway %s needs exactly two directions", ErrInvalidConfig, rc.ID)
	}

	rw := &Runway{ID: rc.ID, Width: rc.Width}
	var points [2]geo.Point
	for i, id := range ids {
		th := rc.Directions[id].Threshold
		if th == nil {
			return nil, fmt.Errorf("%w: runway %s direction %s has no threshold", ErrInvalidConfig, rc.ID, id)
		}
		p, err := g.Projector.ToPlane(th.Lat, th.Lon)
		if err != nil {
			return nil, fmt.Errorf("%w: runway %s direction %s: %w", ErrInvalidConfig, rc.ID, id, err)
		}
		points[i] = p
		rw.Directions[i] = &Direction{ID: id, RunwayID: rc.ID, Threshold: p, ThresholdLatLon: *th}
	}

	rw.Start, rw.End = points[0], points[1]
	rw.Length = geo.Distance(rw.Start, rw.End)
	if rw.Length == 0 {
		return nil, fmt.Errorf("%w: runway %s thresholds coincide", ErrInvalidConfig, rc.ID)
	}
	rw.Bearing = geo.Bearing(rw.Start, rw.End)

	forward := rw.Bearing * 180 / math.Pi
	rw.Directions[0].Heading = forward
	rw.Directions[1].Heading = physics.NormalizeHeading(forward + 180)
	rw.Directions[0].Opposite = rw.Directions[1].ID
	rw.Directions[1].Opposite = rw.Directions[0].ID
	for _, d := range rw.Directions {
		d.MagneticHeading = physics.TrueToMagnetic(d.Heading, g.MagneticVariation)
	}
	return rw, nil
}

func (g *Geometry) buildFixture(fc FixtureConfig) (*Fixture, error) {
	fx := &Fixture{
		ID:             fc.ID,
		Type:           fc.Type,
		RunwayID:       fc.Runway,
		DirectionID:    fc.Direction,
		IntersectionID: fc.Intersection,
	}

	switch {
	case fc.Position != nil:
		p, err := g.Projector.ToPlane(fc.Position.Lat, fc.Position.Lon)
		if err != nil {
			return nil, fmt.Errorf("%w: fixture %s: %w", ErrInvalidConfig, fc.ID, err)
		}
		fx.Position = p
	default:
		dir, ok := g.directions[fc.Direction]
		if !ok {
			return nil, fmt.Errorf("%w: fixture %s: unknown direction %q", ErrInvalidConfig, fc.ID, fc.Direction)
		}
		heading := dir.Heading * math.Pi / 180
		p := geo.Translate(dir.Threshold, heading, fc.OffsetAlong)
		fx.Position = geo.Translate(p, heading+math.Pi/2, fc.OffsetCross)
	}

	ll, err := g.Projector.ToWGS84(fx.Position)
	if err != nil {
		return nil, fmt.Errorf("%w: fixture %s: %w", ErrInvalidConfig, fc.ID, err)
	}
	fx.LatLon = ll

	if fc.ApproachBearing != nil {
		fx.ApproachBearing = physics.NormalizeHeading(*fc.ApproachBearing) * math.Pi / 180
	} else if rw, ok := g.runways[fc.Runway]; ok {
		// Cone opens away from the runway, toward the taxiway side of the fixture
		proj := rw.Project(fx.Position)
		fx.ApproachBearing = math.Mod(rw.Bearing+math.Pi/2+2*math.Pi, 2*math.Pi)
		if proj.Side < 0 {
			fx.ApproachBearing = math.Mod(rw.Bearing+3*math.Pi/2, 2*math.Pi)
		}
	}

	if fx.Type == FixtureRIL && fx.IntersectionID != "" {
		if _, ok := g.Intersection(fx.IntersectionID); !ok {
			return nil, fmt.Errorf("%w: fixture %s: unknown intersection %q", ErrInvalidConfig, fc.ID, fx.IntersectionID)
		}
	}
	return fx, nil
}

func (g *Geometry) findParallels() {
	for i, a := range g.Runways {
		for _, b := range g.Runways[i+1:] {
			diff := math.Mod(math.Abs(a.Bearing-b.Bearing)*180/math.Pi, 180)
			if diff > 90 {
				diff = 180 - diff
			}
			if diff <= parallelTolerance {
				g.parallels[a.ID] = append(g.parallels[a.ID], b.ID)
				g.parallels[b.ID] = append(g.parallels[b.ID], a.ID)
			}
		}
	}
}

func (g *Geometry) deriveIntersections() {
	for i, a := range g.Runways {
		for _, b := range g.Runways[i+1:] {
			p, ok := geo.SegmentIntersection(a.Start, a.End, b.Start, b.End)
			if !ok {
				continue
			}
			g.Intersections = append(g.Intersections, &Intersection{
				ID:       a.ID + "|" + b.ID,
				Runways:  [2]string{a.ID, b.ID},
				Position: p,
				Radius:   DefaultIntersectionRange,
				Derived:  true,
			})
		}
	}
}

// Runway returns a runway by id
func (g *Geometry) Runway(id string) (*Runway, bool) {
	rw, ok := g.runways[id]
	return rw, ok
}

// Direction returns a runway direction by id
func (g *Geometry) Direction(id string) (*Direction, bool) {
	d, ok := g.directions[id]
	return d, ok
}

// Intersection returns an intersection by id
func (g *Geometry) Intersection(id string) (*Intersection, bool) {
	for _, ix := range g.Intersections {
		if ix.ID == id {
			return ix, true
		}
	}
	return nil, false
}

// Parallels returns the runways parallel to the given one
func (g *Geometry) Parallels(id string) []string {
	return g.parallels[id]
}

// RunwaysAt returns every runway whose occupancy rectangle contains p
func (g *Geometry) RunwaysAt(p geo.Point) []*Runway {
	var out []*Runway
	for _, rw := range g.Runways {
		if rw.Contains(p) {
			out = append(out, rw)
		}
	}
	return out
}

// OnAnyRunway reports whether p lies on any runway surface
func (g *Geometry) OnAnyRunway(p geo.Point) bool {
	for _, rw := range g.Runways {
		if rw.Contains(p) {
			return true
		}
	}
	return false
}

// MatchesRunway reports whether an assigned-runway label refers to runway rw. Labels may
// name the runway ("14R/32L") or one of its directions ("14R").
func (g *Geometry) MatchesRunway(label string, rw *Runway) bool {
	label = strings.TrimSpace(strings.ToUpper(label))
	if label == "" {
		return false
	}
	if strings.EqualFold(label, rw.ID) {
		return true
	}
	for _, d := range rw.Directions {
		if strings.EqualFold(label, d.ID) {
			return true
		}
	}
	return false
}

// FixturesOfType returns fixtures of one kind in configuration order
func (g *Geometry) FixturesOfType(t FixtureType) []*Fixture {
	var out []*Fixture
	for _, fx := range g.Fixtures {
		if fx.Type == t {
			out = append(out, fx)
		}
	}
	return out
}

// designatorMatches checks "14L" style ids against the magnetic heading within 30 degrees
func designatorMatches(id string, magnetic float64) (bool, float64) {
	digits := strings.TrimRight(id, "LRCW ")
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 || n > 36 {
		return true, 0
	}
	designated := float64(n * 10)
	return physics.HeadingDifference(designated, magnetic) <= 30, designated
}
