// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package gps turns NMEA sentences into a ground-speed reference that can be
// compared with the stride speed.
package gps

import (
	"strings"

	nmea "github.com/adrianmo/go-nmea"
)

const KnotsToMS = 1852.0 / 3600.0

// Fix represents a single combined GPS fix suitable for JSON and MQTT.
type Fix struct {
	Time       string  `json:"time"`        // e.g. "12:34:56"
	Date       string  `json:"date"`        // e.g. "13/06/94"
	Latitude   float64 `json:"lat"`         // decimal degrees
	Longitude  float64 `json:"lon"`         // decimal degrees
	SpeedKnots float64 `json:"speed_knots"` // speed over ground
	SpeedMS    float64 `json:"speed_ms"`
	CourseDeg  float64 `json:"course_deg"` // course over ground
	Validity   string  `json:"validity"`   // "A" (valid) / "V" (void)
}

// Valid reports an active RMC fix.
func (f Fix) Valid() bool {
	return f.Validity == nmea.ValidRMC
}

// Tracker accumulates RMC and VTG sentences.
type Tracker struct {
	current Fix
}

// Update feeds one line. ready is true when an RMC sentence completed a fix;
// VTG sentences only refine the speed. Lines that are not NMEA are ignored.
func (t *Tracker) Update(line string) (fix Fix, ready bool, err error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return t.current, false, nil
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return t.current, false, err
	}

	switch sentence.DataType() {
	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		t.current.Time = m.Time.String()
		t.current.Date = m.Date.String()
		t.current.Latitude = m.Latitude
		t.current.Longitude = m.Longitude
		t.current.SpeedKnots = m.Speed
		t.current.SpeedMS = m.Speed * KnotsToMS
		t.current.CourseDeg = m.Course
		t.current.Validity = m.Validity
		return t.current, true, nil
	case nmea.TypeVTG:
		m := sentence.(nmea.VTG)
		t.current.SpeedKnots = m.GroundSpeedKnots
		t.current.SpeedMS = m.GroundSpeedKPH / 3.6
		t.current.CourseDeg = m.TrueTrack
	}
	return t.current, false, nil
}

// Current returns the latest accumulated fix.
func (t *Tracker) Current() Fix {
	return t.current
}
