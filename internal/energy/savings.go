// Package energy derives the savings report from recorded power events.
//
// The computation is pure: it pairs each display's "off" event with the
// next "on" event, sums the hours spent off, and converts those hours
// into energy, cost and CO2 figures using the configured panel wattage.
package energy

import (
	"sort"
	"time"

	"ldpm/internal/store"
)

type Config struct {
	OnWatts      float64 // draw while active
	StandbyWatts float64 // draw while in standby
	CostPerKWh   float64
	CO2PerKWh    float64 // kg CO2 per kWh
}

func (c Config) withDefaults() Config {
	if c.OnWatts <= 0 {
		c.OnWatts = 100.0
	}
	if c.StandbyWatts <= 0 {
		c.StandbyWatts = 0.5
	}
	if c.CostPerKWh <= 0 {
		c.CostPerKWh = 0.12
	}
	if c.CO2PerKWh <= 0 {
		c.CO2PerKWh = 0.4
	}
	return c
}

type DisplaySavings struct {
	DisplayID   int64   `json:"display_id"`
	DisplayName string  `json:"display_name"`
	HoursOff    float64 `json:"total_hours_off"`
	EnergyKWh   float64 `json:"energy_saved_kwh"`
	Cost        float64 `json:"cost_saved"`
	CO2Kg       float64 `json:"co2_reduced_kg"`
}

type Report struct {
	HoursOff  float64          `json:"total_hours_off"`
	EnergyKWh float64          `json:"energy_saved_kwh"`
	Cost      float64          `json:"cost_saved"`
	CO2Kg     float64          `json:"co2_reduced_kg"`
	Displays  []DisplaySavings `json:"displays"`
}

// Compute builds the savings report for events already filtered to the
// requested range, in chronological order. An "off" with no following
// "on" is an open period, counted until end (or now when end is zero).
func Compute(cfg Config, events []store.PowerEvent, end, now time.Time) Report {
	cfg = cfg.withDefaults()

	type state struct {
		name     string
		hoursOff float64
		lastOff  time.Time
	}
	perDisplay := map[int64]*state{}

	for _, e := range events {
		st := perDisplay[e.DisplayID]
		if st == nil {
			st = &state{name: e.DisplayName}
			perDisplay[e.DisplayID] = st
		}
		switch e.Action {
		case "off":
			st.lastOff = e.At
		case "on":
			if !st.lastOff.IsZero() {
				st.hoursOff += e.At.Sub(st.lastOff).Hours()
				st.lastOff = time.Time{}
			}
		}
	}

	tail := end
	if tail.IsZero() {
		tail = now
	}
	for _, st := range perDisplay {
		if !st.lastOff.IsZero() && tail.After(st.lastOff) {
			st.hoursOff += tail.Sub(st.lastOff).Hours()
		}
	}

	savedWatts := cfg.OnWatts - cfg.StandbyWatts

	var report Report
	ids := make([]int64, 0, len(perDisplay))
	for id := range perDisplay {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		st := perDisplay[id]
		kwh := st.hoursOff * savedWatts / 1000
		ds := DisplaySavings{
			DisplayID:   id,
			DisplayName: st.name,
			HoursOff:    st.hoursOff,
			EnergyKWh:   kwh,
			Cost:        kwh * cfg.CostPerKWh,
			CO2Kg:       kwh * cfg.CO2PerKWh,
		}
		report.Displays = append(report.Displays, ds)
		report.HoursOff += ds.HoursOff
		report.EnergyKWh += ds.EnergyKWh
		report.Cost += ds.Cost
		report.CO2Kg += ds.CO2Kg
	}
	return report
}
