package adsb

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/yegors/co-rwsl/internal/rwsl"
)

// ConvertStats counts why targets were left out of a batch
type ConvertStats struct {
	Total      int `json:"total"`
	Converted  int `json:"converted"`
	NoPosition int `json:"no_position"`
	Stale      int `json:"stale"`
	NoAltitude int `json:"no_altitude"`
	NoAddress  int `json:"no_address"`
}

// ToSnapshots converts receiver targets into engine snapshots. Targets without a
// position, altitude or address, or whose position is older than maxAge, are skipped.
// Reported altitudes are MSL; snapshots carry height above fieldElevationFt, floored
// at zero. The result is ordered by id.
func ToSnapshots(targets []ADSBTarget, now time.Time, maxAge time.Duration, fieldElevationFt float64) ([]rwsl.AircraftSnapshot, ConvertStats) {
	stats := ConvertStats{Total: len(targets)}
	out := make([]rwsl.AircraftSnapshot, 0, len(targets))

	for _, t := range targets {
		id := strings.ToLower(strings.TrimSpace(t.Hex))
		switch {
		case id == "":
			stats.NoAddress++
			continue
		case t.Lat == nil || t.Lon == nil:
			stats.NoPosition++
			continue
		case maxAge > 0 && time.Duration(t.SeenPos*float64(time.Second)) > maxAge:
			stats.Stale++
			continue
		}

		alt, ok := heightAboveField(t, fieldElevationFt)
		if !ok {
			stats.NoAltitude++
			continue
		}

		s := rwsl.AircraftSnapshot{
			ID:            id,
			Callsign:      t.Callsign(),
			Latitude:      *t.Lat,
			Longitude:     *t.Lon,
			Altitude:      alt,
			Speed:         valueOr(t.GS, 0),
			Heading:       headingOf(t),
			VerticalSpeed: verticalRateOf(t),
			Squawk:        t.Squawk,
			AircraftType:  strings.ToUpper(strings.TrimSpace(t.AircraftType)),
			Active:        true,
			Emergency:     t.Emergency != "" && t.Emergency != "none",
			Timestamp:     now.Add(-time.Duration(t.SeenPos * float64(time.Second))),
		}
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	stats.Converted = len(out)
	return out, stats
}

// heightAboveField maps "ground" to 0 ft and falls back to the geometric altitude
func heightAboveField(t ADSBTarget, fieldElevationFt float64) (float64, bool) {
	var msl float64
	switch {
	case t.AltBaro.Ground:
		return 0, true
	case t.AltBaro.Reported:
		msl = t.AltBaro.Feet
	case t.AltGeom != nil:
		msl = *t.AltGeom
	default:
		return 0, false
	}
	return math.Max(0, msl-fieldElevationFt), true
}

// headingOf prefers the true heading over the ground track
func headingOf(t ADSBTarget) float64 {
	if t.TrueHeading != nil {
		return *t.TrueHeading
	}
	return valueOr(t.Track, 0)
}

// verticalRateOf prefers the barometric rate over the geometric rate
func verticalRateOf(t ADSBTarget) *float64 {
	switch {
	case t.BaroRate != nil:
		v := *t.BaroRate
		return &v
	case t.GeomRate != nil:
		v := *t.GeomRate
		return &v
	}
	return nil
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
