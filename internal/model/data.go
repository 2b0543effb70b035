package model

import "time"

// GenericRecord holds the typed values of one raw row keyed by canonical
// column name. A nil value means the source carried a missing literal.
type GenericRecord map[string]interface{}

// RawRecord is a typed row as read from the source, before imputation
type RawRecord struct {
	Row                 int       `json:"row"`
	Date                time.Time `json:"date"`
	RegionCode          string    `json:"region_code"`
	PlaceID             string    `json:"place_id"`
	PlaceName           string    `json:"place_name"`
	PlaceType           string    `json:"place_type"`
	EpidemiologicalWeek string    `json:"epidemiological_week"`
	PopulationEstimate  *float64  `json:"population_estimate"`
	NewConfirmed        *int64    `json:"new_confirmed"`
	CumulativeConfirmed *int64    `json:"cumulative_confirmed"`
	NewDeaths           *int64    `json:"new_deaths"`
	CumulativeDeaths    *int64    `json:"cumulative_deaths"`
}

// CityRecord is a place-level row with every imputed field filled in
type CityRecord struct {
	Date                time.Time `json:"date"`
	RegionCode          string    `json:"region_code"`
	PlaceID             string    `json:"place_id"`
	PlaceName           string    `json:"place_name"`
	PlaceType           string    `json:"place_type"`
	EpidemiologicalWeek string    `json:"epidemiological_week"`
	PopulationEstimate  int64     `json:"population_estimate"` // -1 when unknown
	NewConfirmed        int64     `json:"new_confirmed"`
	CumulativeConfirmed int64     `json:"cumulative_confirmed"`
	NewDeaths           int64     `json:"new_deaths"`
	CumulativeDeaths    int64     `json:"cumulative_deaths"`
}

// Record is one row of the canonical dataset
type Record struct {
	Date                time.Time `json:"date"`
	RegionCode          string    `json:"region_code"`
	PlaceID             string    `json:"place_id"`
	PlaceName           string    `json:"place_name"`
	EpidemiologicalWeek string    `json:"epidemiological_week"`
	NewConfirmed        int64     `json:"new_confirmed"`
	CumulativeConfirmed int64     `json:"cumulative_confirmed"`
	NewDeaths           int64     `json:"new_deaths"`
	CumulativeDeaths    int64     `json:"cumulative_deaths"`
	PopulationEstimate  int64     `json:"population_estimate"`
	MortalityRate       float64   `json:"mortality_rate"`
}

// Dataset is the ordered canonical dataset
type Dataset []Record

// PlaceTypeCity is the only place type kept in the canonical dataset
const PlaceTypeCity = "city"

// UnknownPopulation marks a population estimate that was missing in the source
const UnknownPopulation int64 = -1

// CountField selects one of the integer counters of a Record
type CountField string

const (
	NewConfirmed        CountField = "new_confirmed"
	NewDeaths           CountField = "new_deaths"
	CumulativeConfirmed CountField = "cumulative_confirmed"
	CumulativeDeaths    CountField = "cumulative_deaths"
	PopulationEstimate  CountField = "population_estimate"
)

// Count returns the value of field f.
func (r Record) Count(f CountField) int64 {
	switch f {
	case NewConfirmed:
		return r.NewConfirmed
	case NewDeaths:
		return r.NewDeaths
	case CumulativeConfirmed:
		return r.CumulativeConfirmed
	case CumulativeDeaths:
		return r.CumulativeDeaths
	case PopulationEstimate:
		return r.PopulationEstimate
	}
	return 0
}
