package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/co-rwsl/internal/airport"
	"github.com/yegors/co-rwsl/internal/config"
	"github.com/yegors/co-rwsl/internal/monitor"
	"github.com/yegors/co-rwsl/internal/rwsl"
	"github.com/yegors/co-rwsl/internal/simulation"
	"github.com/yegors/co-rwsl/internal/storage/sqlite"
	"github.com/yegors/co-rwsl/internal/websocket"
	"github.com/yegors/co-rwsl/pkg/logger"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// Handler contains the HTTP handlers for the API
type Handler struct {
	monitor           *monitor.Service
	history           *sqlite.EventStorage
	simulationService *simulation.Service
	wsServer          *websocket.Server
	config            *config.Config
	logger            *logger.Logger
}

// NewHandler creates a new API handler. history and simulationService may be nil when
// the matching feature is disabled.
func NewHandler(monitorService *monitor.Service, history *sqlite.EventStorage, simulationService *simulation.Service, wsServer *websocket.Server, cfg *config.Config, log *logger.Logger) *Handler {
	return &Handler{
		monitor:           monitorService,
		history:           history,
		simulationService: simulationService,
		wsServer:          wsServer,
		config:            cfg,
		logger:            log.Named("api-handler"),
	}
}

// latest returns the last cycle or writes 503 when no cycle has completed yet
func (h *Handler) latest(w http.ResponseWriter) (rwsl.Output, bool) {
	out, ok := h.monitor.Latest()
	if !ok {
		http.Error(w, "No decision cycle completed yet", http.StatusServiceUnavailable)
	}
	return out, ok
}

// GetLights returns every fixture. ?runway= keeps one runway, ?active=true only lit fixtures.
func (h *Handler) GetLights(w http.ResponseWriter, r *http.Request) {
	out, ok := h.latest(w)
	if !ok {
		return
	}
	runway := r.URL.Query().Get("runway")
	activeOnly := r.URL.Query().Get("active") == "true"

	lights := make([]rwsl.LightState, 0, len(out.Lights))
	active := 0
	for _, st := range out.Lights {
		if runway != "" && st.RunwayID != runway {
			continue
		}
		if activeOnly && !st.Active {
			continue
		}
		if st.Active {
			active++
		}
		lights = append(lights, st)
	}
	sort.Slice(lights, func(i, j int) bool { return lights[i].FixtureID < lights[j].FixtureID })

	WriteJSON(w, http.StatusOK, map[string]any{
		"timestamp": out.Timestamp,
		"lights":    lights,
		"count":     len(lights),
		"active":    active,
	})
}

// GetLight returns one fixture
func (h *Handler) GetLight(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.monitor.Latest(); !ok {
		http.Error(w, "No decision cycle completed yet", http.StatusServiceUnavailable)
		return
	}
	st, ok := h.monitor.Light(id)
	if !ok {
		http.Error(w, "Fixture not found", http.StatusNotFound)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

// GetConflicts returns the current conflicts, optionally ?min_severity=
func (h *Handler) GetConflicts(w http.ResponseWriter, r *http.Request) {
	minSev, err := parseSeverityParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out, ok := h.latest(w)
	if !ok {
		return
	}

	conflicts := make([]rwsl.ConflictEvent, 0, len(out.Conflicts))
	for _, ev := range out.Conflicts {
		if ev.Severity.Rank() >= minSev.Rank() {
			conflicts = append(conflicts, ev)
		}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"timestamp": out.Timestamp,
		"conflicts": conflicts,
		"count":     len(conflicts),
	})
}

// GetOccupancy returns runway occupancy
func (h *Handler) GetOccupancy(w http.ResponseWriter, r *http.Request) {
	out, ok := h.latest(w)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"timestamp": out.Timestamp,
		"runways":   out.Occupancy,
		"aircraft":  out.Aircraft,
	})
}

// GetHealth returns engine health and feed status. It answers 503 while the engine is
// critical or before the first cycle.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := h.monitor.Status()
	out, ok := h.monitor.Latest()

	response := map[string]any{
		"feed": status,
	}
	code := http.StatusServiceUnavailable
	if ok {
		response["health"] = out.Health
		if out.Health.Status != rwsl.StatusCritical {
			code = http.StatusOK
		}
	}
	WriteJSON(w, code, response)
}

// GetMetrics returns cumulative engine metrics and spatial index statistics
func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"grid": h.monitor.Engine().GridStats(),
		"feed": h.monitor.Status().Feed,
	}
	if out, ok := h.monitor.Latest(); ok {
		response["engine"] = out.Health.Metrics
		response["last_processing_ms"] = out.Health.ProcessingMs
	}
	if h.wsServer != nil {
		response["websocket_clients"] = h.wsServer.ClientCount()
	}
	WriteJSON(w, http.StatusOK, response)
}

// GetAirport returns the compiled airport model
func (h *Handler) GetAirport(w http.ResponseWriter, r *http.Request) {
	view, err := newAirportView(h.monitor.Engine().Geometry())
	if err != nil {
		h.logger.Error("Failed to render airport", logger.Error(err))
		http.Error(w, "Failed to render airport", http.StatusInternalServerError)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// GetConfig returns the public configuration
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	publicConfig := map[string]any{
		"adsb": map[string]any{
			"source_type":          h.config.ADSB.SourceType,
			"fetch_interval_ms":    h.config.ADSB.FetchIntervalMs,
			"max_position_age_sec": h.config.ADSB.MaxPositionAgeSec,
		},
		"engine": map[string]any{
			"cycle_budget_ms":   h.config.Engine.CycleBudgetMs,
			"grid_cell_size":    h.config.Engine.GridCellSize,
			"history_window_ms": h.config.Engine.HistoryWindowMs,
			"alert_severity":    h.config.Engine.AlertSeverity,
		},
		"storage": map[string]any{
			"enabled":        h.config.Storage.Enabled,
			"retention_days": h.config.Storage.RetentionDays,
		},
		"recorder": map[string]any{
			"enabled": h.config.Recorder.Enabled,
		},
	}
	WriteJSON(w, http.StatusOK, publicConfig)
}

// GetConflictHistory returns stored conflict episodes, ?limit= and ?since= (RFC 3339)
func (h *Handler) GetConflictHistory(w http.ResponseWriter, r *http.Request) {
	if !h.historyEnabled(w) {
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var since time.Time
	if s := r.URL.Query().Get("since"); s != "" {
		since, err = time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "Invalid since (RFC 3339 expected)", http.StatusBadRequest)
			return
		}
	}

	records, err := h.history.RecentConflicts(limit, since)
	if err != nil {
		h.logger.Error("Failed to query conflict history", logger.Error(err))
		http.Error(w, "Failed to query conflict history", http.StatusInternalServerError)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"conflicts": records,
		"count":     len(records),
	})
}

// GetLightHistory returns stored transitions of one fixture
func (h *Handler) GetLightHistory(w http.ResponseWriter, r *http.Request) {
	if !h.historyEnabled(w) {
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")

	transitions, err := h.history.TransitionsByFixture(id, limit)
	if err != nil {
		h.logger.Error("Failed to query light history", logger.Error(err), logger.String("fixture", id))
		http.Error(w, "Failed to query light history", http.StatusInternalServerError)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"fixture_id":  id,
		"transitions": transitions,
		"count":       len(transitions),
	})
}

// GetHealthHistory returns the latest stored health samples
func (h *Handler) GetHealthHistory(w http.ResponseWriter, r *http.Request) {
	if !h.historyEnabled(w) {
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	samples, err := h.history.LatestHealth(limit)
	if err != nil {
		h.logger.Error("Failed to query health history", logger.Error(err))
		http.Error(w, "Failed to query health history", http.StatusInternalServerError)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"samples": samples,
		"count":   len(samples),
	})
}

func (h *Handler) historyEnabled(w http.ResponseWriter) bool {
	if h.history == nil {
		http.Error(w, "History storage is disabled", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// HandleWebSocket upgrades to the dashboard push channel
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsServer == nil {
		http.Error(w, "WebSocket disabled", http.StatusServiceUnavailable)
		return
	}
	h.wsServer.HandleConnection(w, r)
}

// CreateSimulatedAircraft creates a new simulated aircraft
func (h *Handler) CreateSimulatedAircraft(w http.ResponseWriter, r *http.Request) {
	if !h.simulationEnabled(w) {
		return
	}
	var req simulation.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Altitude < 0 || req.Altitude > 60000 {
		http.Error(w, "Invalid altitude (0-60000 ft)", http.StatusBadRequest)
		return
	}
	if req.Heading < 0 || req.Heading >= 360 {
		http.Error(w, "Invalid heading (0-359 degrees)", http.StatusBadRequest)
		return
	}
	if req.Speed < 0 || req.Speed > 500 {
		http.Error(w, "Invalid speed (0-500 knots)", http.StatusBadRequest)
		return
	}
	if req.VerticalRate < -3000 || req.VerticalRate > 3000 {
		http.Error(w, "Invalid vertical rate (-3000 to +3000 fpm)", http.StatusBadRequest)
		return
	}

	aircraft, err := h.simulationService.CreateAircraft(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.logger.Info("Created simulated aircraft via API",
		logger.String("hex", aircraft.Hex),
		logger.String("flight", aircraft.Flight))

	WriteJSON(w, http.StatusCreated, map[string]any{
		"status":   "success",
		"aircraft": aircraft,
	})
}

// UpdateSimulationControls updates the control parameters for a simulated aircraft
func (h *Handler) UpdateSimulationControls(w http.ResponseWriter, r *http.Request) {
	if !h.simulationEnabled(w) {
		return
	}
	hex := chi.URLParam(r, "hex")

	var req simulation.ControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Heading < 0 || req.Heading >= 360 {
		http.Error(w, "Invalid heading (0-359 degrees)", http.StatusBadRequest)
		return
	}
	if req.Speed < 0 || req.Speed > 500 {
		http.Error(w, "Invalid speed (0-500 knots)", http.StatusBadRequest)
		return
	}
	if req.VerticalRate < -3000 || req.VerticalRate > 3000 {
		http.Error(w, "Invalid vertical rate (-3000 to +3000 fpm)", http.StatusBadRequest)
		return
	}

	if err := h.simulationService.UpdateControls(hex, req); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	h.logger.Debug("Updated simulation controls via API",
		logger.String("hex", hex),
		logger.Float64("heading", req.Heading),
		logger.Float64("speed", req.Speed),
		logger.Float64("vertical_rate", req.VerticalRate))

	WriteJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

// RemoveSimulatedAircraft removes a simulated aircraft
func (h *Handler) RemoveSimulatedAircraft(w http.ResponseWriter, r *http.Request) {
	if !h.simulationEnabled(w) {
		return
	}
	hex := chi.URLParam(r, "hex")
	if err := h.simulationService.RemoveAircraft(hex); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.logger.Info("Removed simulated aircraft via API", logger.String("hex", hex))
	WriteJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

// GetSimulatedAircraft returns all simulated aircraft
func (h *Handler) GetSimulatedAircraft(w http.ResponseWriter, r *http.Request) {
	if !h.simulationEnabled(w) {
		return
	}
	WriteJSON(w, http.StatusOK, h.simulationService.GetAllAircraft())
}

func (h *Handler) simulationEnabled(w http.ResponseWriter) bool {
	if h.simulationService == nil {
		http.Error(w, "Simulation is disabled", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func parseLimit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit: %q", s)
	}
	if n > maxHistoryLimit {
		n = maxHistoryLimit
	}
	return n, nil
}

func parseSeverityParam(r *http.Request) (rwsl.Severity, error) {
	s := r.URL.Query().Get("min_severity")
	if s == "" {
		return rwsl.SeverityLow, nil
	}
	sev, ok := rwsl.ParseSeverity(s)
	if !ok {
		return "", fmt.Errorf("invalid min_severity: %q", s)
	}
	return sev, nil
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type directionView struct {
	ID              string  `json:"id"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	Heading         float64 `json:"heading_true"`
	MagneticHeading float64 `json:"heading_magnetic"`
}

type runwayView struct {
	ID         string          `json:"id"`
	Length     float64         `json:"length_m"`
	Width      float64         `json:"width_m"`
	Directions []directionView `json:"directions"`
	Parallels  []string        `json:"parallels,omitempty"`
}

type intersectionView struct {
	ID        string    `json:"id"`
	Runways   [2]string `json:"runways"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Radius    float64   `json:"radius_m"`
	Derived   bool      `json:"derived"`
}

type fixtureView struct {
	ID             string              `json:"id"`
	Type           airport.FixtureType `json:"type"`
	RunwayID       string              `json:"runway_id,omitempty"`
	DirectionID    string              `json:"direction_id,omitempty"`
	IntersectionID string              `json:"intersection_id,omitempty"`
	Latitude       float64             `json:"latitude"`
	Longitude      float64             `json:"longitude"`
}

type airportView struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Latitude          float64            `json:"latitude"`
	Longitude         float64            `json:"longitude"`
	MagneticVariation float64            `json:"magnetic_variation"`
	Runways           []runwayView       `json:"runways"`
	Intersections     []intersectionView `json:"intersections"`
	Fixtures          []fixtureView      `json:"fixtures"`
}

func newAirportView(g *airport.Geometry) (airportView, error) {
	v := airportView{
		ID:                g.ID,
		Name:              g.Name,
		Latitude:          g.Reference.Lat,
		Longitude:         g.Reference.Lon,
		MagneticVariation: g.MagneticVariation,
		Runways:           make([]runwayView, 0, len(g.Runways)),
		Intersections:     make([]intersectionView, 0, len(g.Intersections)),
		Fixtures:          make([]fixtureView, 0, len(g.Fixtures)),
	}
	for _, rw := range g.Runways {
		rv := runwayView{ID: rw.ID, Length: rw.Length, Width: rw.Width, Parallels: g.Parallels(rw.ID)}
		for _, d := range rw.Directions {
			rv.Directions = append(rv.Directions, directionView{
				ID:              d.ID,
				Latitude:        d.ThresholdLatLon.Lat,
				Longitude:       d.ThresholdLatLon.Lon,
				Heading:         d.Heading,
				MagneticHeading: d.MagneticHeading,
			})
		}
		v.Runways = append(v.Runways, rv)
	}
	for _, ix := range g.Intersections {
		ll, err := g.Projector.ToWGS84(ix.Position)
		if err != nil {
			return airportView{}, err
		}
		v.Intersections = append(v.Intersections, intersectionView{
			ID: ix.ID, Runways: ix.Runways, Latitude: ll.Lat, Longitude: ll.Lon, Radius: ix.Radius, Derived: ix.Derived,
		})
	}
	for _, fx := range g.Fixtures {
		v.Fixtures = append(v.Fixtures, fixtureView{
			ID:             fx.ID,
			Type:           fx.Type,
			RunwayID:       fx.RunwayID,
			DirectionID:    fx.DirectionID,
			IntersectionID: fx.IntersectionID,
			Latitude:       fx.LatLon.Lat,
			Longitude:      fx.LatLon.Lon,
		})
	}
	return v, nil
}
