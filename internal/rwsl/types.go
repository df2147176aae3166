package rwsl

import (
	"errors"
	"strings"
	"time"

	"github.com/yegors/co-rwsl/internal/airport"
	"github.com/yegors/co-rwsl/internal/geo"
	"github.com/yegors/co-rwsl/internal/wake"
)

// ErrMalformedSnapshot marks telemetry that cannot be processed
var ErrMalformedSnapshot = errors.New("malformed aircraft snapshot")

// Thresholds shared by several rules
const (
	GroundAltitudeFt   = 50.0
	ApproachCeilingFt  = 1500.0
	DescendingFpm      = -100.0
	HighSpeedKt        = 30.0
	ParkedSpeedKt      = 5.0
	LineupSpeedKt      = 10.0
	ApproachMinSpeedKt = 80.0
	MaxHistoryWindow   = 3 * time.Second
	MaxHistorySamples  = 10
	DefaultCycleBudget = 900 * time.Millisecond
)

// AircraftState is the operational state assigned by the classifier
type AircraftState string

const (
	StateParked      AircraftState = "PARKED"
	StateTaxi        AircraftState = "TAXI"
	StateLineup      AircraftState = "LINEUP"
	StateTakeoffRoll AircraftState = "TAKEOFF_ROLL"
	StateLandingRoll AircraftState = "LANDING_ROLL"
	StateAirborne    AircraftState = "AIRBORNE"
	StateApproach    AircraftState = "APPROACH"
	StateEmergency   AircraftState = "EMERGENCY"
)

// AircraftSnapshot is one telemetry sample for one tracked aircraft
type AircraftSnapshot struct {
	ID             string    `json:"id" msgpack:"id"`
	Callsign       string    `json:"callsign" msgpack:"callsign"`
	Latitude       float64   `json:"latitude" msgpack:"lat"`
	Longitude      float64   `json:"longitude" msgpack:"lon"`
	Altitude       float64   `json:"altitude" msgpack:"alt"`               // feet
	Speed          float64   `json:"speed" msgpack:"spd"`                  // knots ground speed
	Heading        float64   `json:"heading" msgpack:"hdg"`                // degrees true
	VerticalSpeed  *float64  `json:"verticalSpeed,omitempty" msgpack:"vs"` // feet per minute
	Squawk         string    `json:"squawk,omitempty" msgpack:"sqk"`
	AircraftType   string    `json:"aircraftType,omitempty" msgpack:"type"`
	AssignedRunway string    `json:"assignedRunway,omitempty" msgpack:"rwy"`
	Active         bool      `json:"isActive" msgpack:"active"`
	Emergency      bool      `json:"isEmergency" msgpack:"emergency"`
	Timestamp      time.Time `json:"timestamp" msgpack:"ts"`
}

// Vertical returns the vertical speed, zero when unknown
func (s AircraftSnapshot) Vertical() float64 {
	if s.VerticalSpeed == nil {
		return 0
	}
	return *s.VerticalSpeed
}

// aircraft is a validated snapshot with everything derived during one cycle
type aircraft struct {
	AircraftSnapshot
	pos    geo.Point
	state  AircraftState
	accel  float64 // m/s²
	wake   wake.Category
	runway *airport.Runway // runway whose occupancy rectangle holds the aircraft, if any
}

func (a *aircraft) vs() float64 {
	return a.Vertical()
}

// AircraftStatus is the per-aircraft view published with each cycle
type AircraftStatus struct {
	ID           string        `json:"id" msgpack:"id"`
	Callsign     string        `json:"callsign" msgpack:"callsign"`
	State        AircraftState `json:"state" msgpack:"state"`
	Position     geo.Point     `json:"position" msgpack:"pos"`
	Latitude     float64       `json:"latitude" msgpack:"lat"`
	Longitude    float64       `json:"longitude" msgpack:"lon"`
	Altitude     float64       `json:"altitude" msgpack:"alt"`
	Speed        float64       `json:"speed" msgpack:"spd"`
	Heading      float64       `json:"heading" msgpack:"hdg"`
	Acceleration float64       `json:"acceleration" msgpack:"accel"`
	RunwayID     string        `json:"runwayId,omitempty" msgpack:"rwy"`
	WakeCategory wake.Category `json:"wakeCategory" msgpack:"wake"`
}

// Severity grades a conflict
type Severity string

const (
	SeverityLow       Severity = "LOW"
	SeverityMedium    Severity = "MEDIUM"
	SeverityHigh      Severity = "HIGH"
	SeverityCritical  Severity = "CRITICAL"
	SeverityEmergency Severity = "EMERGENCY"
)

// Rank orders severities, higher is worse
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	case SeverityEmergency:
		return 5
	}
	return 0
}

// ParseSeverity accepts a severity name in any case
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	return sev, sev.Rank() > 0
}

// ConflictType names the rule family that produced a conflict
type ConflictType string

const (
	ConflictRunwayIntrusion ConflictType = "RUNWAY_INTRUSION"
	ConflictCrossing        ConflictType = "CROSSING_TRAFFIC"
	ConflictWake            ConflictType = "WAKE_TURBULENCE"
	ConflictSimultaneous    ConflictType = "SIMULTANEOUS_OPERATIONS"
	ConflictHeadOn          ConflictType = "HEAD_ON"
)

// ConflictEvent is one detected conflict, rebuilt every cycle
type ConflictEvent struct {
	ID                  string       `json:"id" msgpack:"id"`
	Type                ConflictType `json:"type" msgpack:"type"`
	Severity            Severity     `json:"severity" msgpack:"sev"`
	AircraftIDs         []string     `json:"aircraftIds" msgpack:"aircraft"`
	RunwayIDs           []string     `json:"runwayIds" msgpack:"runways"`
	IntersectionID      string       `json:"intersectionId,omitempty" msgpack:"ix,omitempty"`
	PredictedTime       time.Time    `json:"predictedTime" msgpack:"predicted"`
	TimeToConflict      float64      `json:"timeToConflict" msgpack:"ttc"` // seconds
	Confidence          float64      `json:"confidence" msgpack:"conf"`
	RecommendedAction   string       `json:"recommendedAction" msgpack:"action"`
	EstimatedSeparation float64      `json:"estimatedSeparation" msgpack:"sep"` // meters
}

// OccupancyType is the kind of operation occupying a runway
type OccupancyType string

const (
	OccupancyTakeoff OccupancyType = "TAKEOFF"
	OccupancyLanding OccupancyType = "LANDING"
	OccupancyTaxi    OccupancyType = "TAXI"
	OccupancyLineup  OccupancyType = "LINEUP"
)

// Occupant is one aircraft inside a runway's occupancy rectangle
type Occupant struct {
	AircraftID string        `json:"aircraftId" msgpack:"id"`
	Type       OccupancyType `json:"type" msgpack:"type"`
	Along      float64       `json:"along" msgpack:"along"`
	Cross      float64       `json:"cross" msgpack:"cross"`
	Speed      float64       `json:"speed" msgpack:"spd"`
}

// RunwayOccupancy is the occupancy of one runway in the current cycle
type RunwayOccupancy struct {
	RunwayID      string        `json:"runwayId" msgpack:"rwy"`
	Occupied      bool          `json:"occupied" msgpack:"occupied"`
	Occupants     []Occupant    `json:"occupants" msgpack:"occupants"`
	DominantType  OccupancyType `json:"dominantType,omitempty" msgpack:"dominant,omitempty"`
	EntryTime     *time.Time    `json:"entryTime,omitempty" msgpack:"entry,omitempty"`
	EstimatedExit *time.Time    `json:"estimatedExit,omitempty" msgpack:"exit,omitempty"`
}

// FlashPattern is how a commanded light blinks
type FlashPattern string

const (
	FlashSteady FlashPattern = "steady"
	FlashSlow   FlashPattern = "slow"
	FlashMedium FlashPattern = "medium"
	FlashFast   FlashPattern = "fast"
)

// LightCommand is the graded command sent with an active light
type LightCommand struct {
	Urgency      float64      `json:"urgency" msgpack:"urgency"`
	Intensity    float64      `json:"intensity" msgpack:"intensity"`
	FlashPattern FlashPattern `json:"flashPattern" msgpack:"flash"`
	DelayMs      int          `json:"delayMs" msgpack:"delay"`
	DurationSec  float64      `json:"durationSec" msgpack:"duration"`
}

// LightState is the decision for one fixture in one cycle
type LightState struct {
	FixtureID     string              `json:"fixtureId" msgpack:"id"`
	Type          airport.FixtureType `json:"type" msgpack:"type"`
	Active        bool                `json:"active" msgpack:"active"`
	Reason        string              `json:"reason" msgpack:"reason"`
	RunwayID      string              `json:"runwayId,omitempty" msgpack:"rwy,omitempty"`
	DirectionID   string              `json:"direction,omitempty" msgpack:"dir,omitempty"`
	Priority      int                 `json:"priority" msgpack:"priority"`
	Severity      Severity            `json:"severity,omitempty" msgpack:"sev,omitempty"`
	ApproachPhase string              `json:"approachPhase,omitempty" msgpack:"phase,omitempty"`
	Command       *LightCommand       `json:"command,omitempty" msgpack:"cmd,omitempty"`
	ActivatedAt   *time.Time          `json:"activatedAt,omitempty" msgpack:"on,omitempty"`
	DeactivatedAt *time.Time          `json:"deactivatedAt,omitempty" msgpack:"off,omitempty"`
}

// HealthStatus is the coarse state of the engine
type HealthStatus string

const (
	StatusOnline   HealthStatus = "ONLINE"
	StatusDegraded HealthStatus = "DEGRADED"
	StatusWarning  HealthStatus = "WARNING"
	StatusCritical HealthStatus = "CRITICAL"
)

// Metrics are cumulative since the engine was created
type Metrics struct {
	Cycles            int64   `json:"cycles" msgpack:"cycles"`
	AvgProcessingMs   float64 `json:"avgProcessingMs" msgpack:"avg_ms"`
	MaxProcessingMs   float64 `json:"maxProcessingMs" msgpack:"max_ms"`
	MinProcessingMs   float64 `json:"minProcessingMs" msgpack:"min_ms"`
	AvgConflicts      float64 `json:"avgConflicts" msgpack:"avg_conflicts"`
	DetectionRate     float64 `json:"detectionRate" msgpack:"detection_rate"` // valid over received snapshots
	ErrorCount        int64   `json:"errorCount" msgpack:"errors"`
	ConsecutiveFaults int     `json:"consecutiveFaults" msgpack:"faults"`
}

// Health summarizes the last cycle
type Health struct {
	Status        HealthStatus `json:"status" msgpack:"status"`
	Score         float64      `json:"score" msgpack:"score"`
	ProcessingMs  float64      `json:"processingMs" msgpack:"ms"`
	OverBudget    bool         `json:"overBudget" msgpack:"over"`
	ValidAircraft int          `json:"validAircraft" msgpack:"valid"`
	TotalAircraft int          `json:"totalAircraft" msgpack:"total"`
	FailSafe      bool         `json:"failSafe" msgpack:"failsafe"`
	LastError     string       `json:"lastError,omitempty" msgpack:"err,omitempty"`
	Metrics       Metrics      `json:"metrics" msgpack:"metrics"`
}

// Output is everything one cycle produces
type Output struct {
	Timestamp time.Time             `json:"timestamp" msgpack:"ts"`
	Lights    map[string]LightState `json:"lights" msgpack:"lights"`
	Conflicts []ConflictEvent       `json:"conflicts" msgpack:"conflicts"`
	Occupancy []RunwayOccupancy     `json:"occupancy" msgpack:"occupancy"`
	Aircraft  []AircraftStatus      `json:"aircraft" msgpack:"aircraft"`
	Health    Health                `json:"health" msgpack:"health"`
}
