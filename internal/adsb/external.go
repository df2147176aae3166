package adsb

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexibleField holds a value that aggregator APIs send as either a string or a number
type FlexibleField struct {
	value any
}

// UnmarshalJSON accepts a number, a string, a bool or null
func (f *FlexibleField) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		f.value = nil
		return nil
	}

	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		f.value = num
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		f.value = str
		return nil
	}

	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		f.value = b
		return nil
	}

	return fmt.Errorf("cannot unmarshal %s into FlexibleField", data)
}

// Float returns the numeric value, or nil when the field is absent or not numeric
func (f FlexibleField) Float() *float64 {
	switch v := f.value.(type) {
	case float64:
		return &v
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		return &n
	}
	return nil
}

// String returns the value as a string
func (f FlexibleField) String() string {
	switch v := f.value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// ExternalADSBTarget is one aircraft in an aggregator API response
type ExternalADSBTarget struct {
	Hex          string        `json:"hex"`
	Type         string        `json:"type"`
	Flight       string        `json:"flight"`
	Registration string        `json:"r"`
	AircraftType string        `json:"t"`
	AltBaro      FlexibleField `json:"alt_baro"`
	AltGeom      FlexibleField `json:"alt_geom"`
	GS           FlexibleField `json:"gs"`
	Track        FlexibleField `json:"track"`
	TrueHeading  FlexibleField `json:"true_heading"`
	BaroRate     FlexibleField `json:"baro_rate"`
	GeomRate     FlexibleField `json:"geom_rate"`
	Squawk       string        `json:"squawk"`
	Emergency    string        `json:"emergency"`
	Category     string        `json:"category"`
	Lat          FlexibleField `json:"lat"`
	Lon          FlexibleField `json:"lon"`
	SeenPos      FlexibleField `json:"seen_pos"`
	Seen         FlexibleField `json:"seen"`
	Messages     FlexibleField `json:"messages"`
	RSSI         FlexibleField `json:"rssi"`
}

// ExternalAPIResponse is the aggregator document, which lists aircraft under "ac"
type ExternalAPIResponse struct {
	Now      float64              `json:"now,omitempty"`
	Messages int                  `json:"messages,omitempty"`
	AC       []ExternalADSBTarget `json:"ac"`
}

// Convert maps an aggregator target onto the receiver format
func (e *ExternalADSBTarget) Convert() ADSBTarget {
	target := ADSBTarget{
		Hex:          e.Hex,
		Type:         e.Type,
		Flight:       e.Flight,
		Registration: e.Registration,
		AircraftType: e.AircraftType,
		AltGeom:      e.AltGeom.Float(),
		GS:           e.GS.Float(),
		Track:        e.Track.Float(),
		TrueHeading:  e.TrueHeading.Float(),
		BaroRate:     e.BaroRate.Float(),
		GeomRate:     e.GeomRate.Float(),
		Squawk:       e.Squawk,
		Emergency:    e.Emergency,
		Category:     e.Category,
		Lat:          e.Lat.Float(),
		Lon:          e.Lon.Float(),
		SourceType:   SourceExternal,
	}

	if strings.EqualFold(e.AltBaro.String(), "ground") {
		target.AltBaro = Altitude{Ground: true, Reported: true}
	} else if ft := e.AltBaro.Float(); ft != nil {
		target.AltBaro = Altitude{Feet: *ft, Reported: true}
	}
	if v := e.SeenPos.Float(); v != nil {
		target.SeenPos = *v
	}
	if v := e.Seen.Float(); v != nil {
		target.Seen = *v
	}
	if v := e.Messages.Float(); v != nil {
		target.Messages = int(*v)
	}
	if v := e.RSSI.Float(); v != nil {
		target.RSSI = *v
	}
	return target
}

func decodeExternal(body []byte) (*RawAircraftData, error) {
	var resp ExternalAPIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse external JSON: %w", err)
	}
	data := &RawAircraftData{
		Now:      resp.Now,
		Messages: resp.Messages,
		Aircraft: make([]ADSBTarget, 0, len(resp.AC)),
	}
	for i := range resp.AC {
		data.Aircraft = append(data.Aircraft, resp.AC[i].Convert())
	}
	return data, nil
}
