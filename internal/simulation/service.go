package simulation

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/yegors/co-rwsl/internal/adsb"
	"github.com/yegors/co-rwsl/internal/geo"
	"github.com/yegors/co-rwsl/pkg/logger"
)

const (
	MaxSimulatedAircraft = 20 // Hardcoded maximum number of simulated aircraft
	nmPerDegree          = 60.0
)

// SimulatedAircraft represents a single simulated aircraft with its current state
type SimulatedAircraft struct {
	Hex                string    `json:"hex"`
	Flight             string    `json:"flight"`
	AircraftType       string    `json:"aircraft_type"`
	Squawk             string    `json:"squawk"`
	CurrentLat         float64   `json:"current_lat"`
	CurrentLon         float64   `json:"current_lon"`
	CurrentAltitude    float64   `json:"current_altitude"`
	TargetHeading      float64   `json:"target_heading"`
	TargetSpeed        float64   `json:"target_speed"`
	TargetVerticalRate float64   `json:"target_vertical_rate"`
	LastUpdate         time.Time `json:"last_update"`
	CreatedAt          time.Time `json:"created_at"`
}

// CreateRequest describes a new simulated aircraft
type CreateRequest struct {
	Flight       string  `json:"flight"`
	AircraftType string  `json:"aircraft_type"`
	Squawk       string  `json:"squawk"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	Altitude     float64 `json:"altitude"`
	Heading      float64 `json:"heading"`
	Speed        float64 `json:"speed"`
	VerticalRate float64 `json:"vertical_rate"`
}

// ControlRequest changes what a simulated aircraft is doing
type ControlRequest struct {
	Heading      float64 `json:"heading"`
	Speed        float64 `json:"speed"`
	VerticalRate float64 `json:"vertical_rate"`
}

// Service manages simulated aircraft that are merged into every telemetry batch
type Service struct {
	aircraft map[string]*SimulatedAircraft
	mutex    sync.RWMutex
	logger   *logger.Logger
	rng      *rand.Rand
	now      func() time.Time

	elevationFt float64
}

// NewService creates a new simulation service
func NewService(logger *logger.Logger) *Service {
	return &Service{
		aircraft: make(map[string]*SimulatedAircraft),
		logger:   logger.Named("simulation"),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetFieldElevation sets the airport elevation. Simulated altitudes are heights above
// the field and are reported MSL, like a receiver would.
func (s *Service) SetFieldElevation(ft float64) {
	s.mutex.Lock()
	s.elevationFt = ft
	s.mutex.Unlock()
}

// CreateAircraft creates a new simulated aircraft
func (s *Service) CreateAircraft(req CreateRequest) (*SimulatedAircraft, error) {
	if err := geo.ValidateLatLon(req.Lat, req.Lon); err != nil {
		return nil, fmt.Errorf("invalid position: %w", err)
	}
	if req.Speed < 0 {
		return nil, fmt.Errorf("speed must not be negative: %f", req.Speed)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.aircraft) >= MaxSimulatedAircraft {
		return nil, fmt.Errorf("maximum number of simulated aircraft (%d) reached", MaxSimulatedAircraft)
	}

	hex := s.generateUniqueHex()
	flight := req.Flight
	if flight == "" {
		flight = s.generateFlightNumber()
	}
	acType := req.AircraftType
	if acType == "" {
		acType = "A320"
	}

	now := s.now()
	aircraft := &SimulatedAircraft{
		Hex:                hex,
		Flight:             flight,
		AircraftType:       acType,
		Squawk:             req.Squawk,
		CurrentLat:         req.Lat,
		CurrentLon:         req.Lon,
		CurrentAltitude:    math.Max(0, req.Altitude),
		TargetHeading:      req.Heading,
		TargetSpeed:        req.Speed,
		TargetVerticalRate: req.VerticalRate,
		LastUpdate:         now,
		CreatedAt:          now,
	}

	s.aircraft[hex] = aircraft
	s.logger.Info("Created simulated aircraft",
		logger.String("hex", hex),
		logger.String("flight", flight),
		logger.Float64("lat", req.Lat),
		logger.Float64("lon", req.Lon))

	copied := *aircraft
	return &copied, nil
}

// UpdateControls updates the control parameters for a simulated aircraft
func (s *Service) UpdateControls(hex string, req ControlRequest) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	aircraft, exists := s.aircraft[hex]
	if !exists {
		return fmt.Errorf("simulated aircraft with hex %s not found", hex)
	}

	aircraft.TargetHeading = req.Heading
	aircraft.TargetSpeed = math.Max(0, req.Speed)
	aircraft.TargetVerticalRate = req.VerticalRate

	s.logger.Debug("Updated simulation controls",
		logger.String("hex", hex),
		logger.Float64("heading", req.Heading),
		logger.Float64("speed", req.Speed),
		logger.Float64("vertical_rate", req.VerticalRate))
	return nil
}

// RemoveAircraft removes a simulated aircraft
func (s *Service) RemoveAircraft(hex string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.aircraft[hex]; !exists {
		return fmt.Errorf("simulated aircraft with hex %s not found", hex)
	}

	delete(s.aircraft, hex)
	s.logger.Info("Removed simulated aircraft", logger.String("hex", hex))
	return nil
}

// GetAllAircraft returns all simulated aircraft sorted by hex
func (s *Service) GetAllAircraft() []SimulatedAircraft {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make([]SimulatedAircraft, 0, len(s.aircraft))
	for _, aircraft := range s.aircraft {
		result = append(result, *aircraft)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Hex < result[j].Hex })
	return result
}

// UpdatePositions advances every simulated aircraft to now
func (s *Service) UpdatePositions(now time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, aircraft := range s.aircraft {
		deltaTime := now.Sub(aircraft.LastUpdate).Seconds()
		if deltaTime > 0 {
			updateAircraftPosition(aircraft, deltaTime)
			aircraft.LastUpdate = now
		}
	}
}

// GenerateADSBData renders the simulated aircraft in receiver format
func (s *Service) GenerateADSBData() []adsb.ADSBTarget {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	targets := make([]adsb.ADSBTarget, 0, len(s.aircraft))
	for _, aircraft := range s.aircraft {
		lat, lon := aircraft.CurrentLat, aircraft.CurrentLon
		gs, hdg, vs := aircraft.TargetSpeed, aircraft.TargetHeading, aircraft.TargetVerticalRate

		alt := adsb.Altitude{Feet: aircraft.CurrentAltitude + s.elevationFt, Reported: true}
		if aircraft.CurrentAltitude <= 0 {
			alt = adsb.Altitude{Ground: true, Reported: true}
		}
		targets = append(targets, adsb.ADSBTarget{
			Hex:          aircraft.Hex,
			Type:         "sim",
			Flight:       aircraft.Flight,
			AircraftType: aircraft.AircraftType,
			AltBaro:      alt,
			GS:           &gs,
			Track:        &hdg,
			TrueHeading:  &hdg,
			BaroRate:     &vs,
			Squawk:       aircraft.Squawk,
			Lat:          &lat,
			Lon:          &lon,
			Messages:     100,
			RSSI:         -20,
			SourceType:   adsb.SourceSim,
		})
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Hex < targets[j].Hex })
	return targets
}

// updateAircraftPosition moves one aircraft by dead reckoning
func updateAircraftPosition(aircraft *SimulatedAircraft, deltaTime float64) {
	// Aviation headings run clockwise from north
	headingRad := aircraft.TargetHeading * math.Pi / 180

	// knots are nautical miles per hour
	distanceNM := aircraft.TargetSpeed * deltaTime / 3600

	latChange := distanceNM * math.Cos(headingRad) / nmPerDegree
	lonChange := distanceNM * math.Sin(headingRad) / (nmPerDegree * math.Cos(aircraft.CurrentLat*math.Pi/180))

	aircraft.CurrentLat += latChange
	aircraft.CurrentLon += lonChange

	// vertical rate is in feet per minute
	aircraft.CurrentAltitude += aircraft.TargetVerticalRate * deltaTime / 60

	if aircraft.CurrentAltitude < 0 {
		aircraft.CurrentAltitude = 0
		aircraft.TargetVerticalRate = 0 // Stop descent at ground level
	}
}

// generateUniqueHex generates a unique 6-character hex code
func (s *Service) generateUniqueHex() string {
	for {
		hex := fmt.Sprintf("%06x", s.rng.Intn(0xFFFFFF))
		if _, exists := s.aircraft[hex]; !exists {
			return hex
		}
	}
}

// generateFlightNumber generates a flight number in format SIM001-SIM999
func (s *Service) generateFlightNumber() string {
	return fmt.Sprintf("SIM%03d", s.rng.Intn(999)+1)
}

// IsSimulated checks if a hex code belongs to a simulated aircraft
func (s *Service) IsSimulated(hex string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	_, exists := s.aircraft[hex]
	return exists
}
