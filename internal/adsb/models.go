package adsb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// RawAircraftData represents the raw aircraft.json document from the ADS-B source
type RawAircraftData struct {
	Now      float64      `json:"now"`
	Messages int          `json:"messages"`
	Aircraft []ADSBTarget `json:"aircraft"`
}

// ADSBTarget represents a single aircraft in the raw ADS-B data. Optional readsb
// fields are pointers so that "not reported" differs from zero.
type ADSBTarget struct {
	Hex          string   `json:"hex"`
	Type         string   `json:"type"`
	Flight       string   `json:"flight"`
	Registration string   `json:"r,omitempty"`
	AircraftType string   `json:"t,omitempty"`
	AltBaro      Altitude `json:"alt_baro"`
	AltGeom      *float64 `json:"alt_geom,omitempty"`
	GS           *float64 `json:"gs,omitempty"`
	Track        *float64 `json:"track,omitempty"`
	TrueHeading  *float64 `json:"true_heading,omitempty"`
	BaroRate     *float64 `json:"baro_rate,omitempty"`
	GeomRate     *float64 `json:"geom_rate,omitempty"`
	Squawk       string   `json:"squawk"`
	Emergency    string   `json:"emergency,omitempty"` // none, general, lifeguard, minfuel, nordo, unlawful, downed
	Category     string   `json:"category"`
	Lat          *float64 `json:"lat,omitempty"`
	Lon          *float64 `json:"lon,omitempty"`
	SeenPos      float64  `json:"seen_pos"`
	Seen         float64  `json:"seen"`
	Messages     int      `json:"messages"`
	RSSI         float64  `json:"rssi"`
	SourceType   string   `json:"source_type,omitempty"` // "local", "external", "file" or "sim"
}

// Altitude is a barometric altitude in feet. readsb reports the string "ground"
// instead of a number for aircraft on the surface.
type Altitude struct {
	Feet     float64
	Ground   bool
	Reported bool
}

// UnmarshalJSON accepts a number, "ground" or null
func (a *Altitude) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = Altitude{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.EqualFold(s, "ground") {
			*a = Altitude{Ground: true, Reported: true}
			return nil
		}
		return fmt.Errorf("invalid alt_baro %q", s)
	}
	var ft float64
	if err := json.Unmarshal(data, &ft); err != nil {
		return fmt.Errorf("invalid alt_baro: %w", err)
	}
	*a = Altitude{Feet: ft, Reported: true}
	return nil
}

// MarshalJSON writes the readsb representation back
func (a Altitude) MarshalJSON() ([]byte, error) {
	switch {
	case !a.Reported:
		return []byte("null"), nil
	case a.Ground:
		return []byte(`"ground"`), nil
	}
	return json.Marshal(a.Feet)
}

// Callsign returns the trimmed flight id, falling back to the hex code
func (t ADSBTarget) Callsign() string {
	if cs := strings.TrimSpace(t.Flight); cs != "" {
		return cs
	}
	return strings.ToUpper(t.Hex)
}
