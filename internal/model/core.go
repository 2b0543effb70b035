package model

import "time"

// Period is the date span covered by a dataset
type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Coverage counts the distinct regions and places of a dataset
type Coverage struct {
	Regions int `json:"regions"`
	Places  int `json:"places"`
}

// Totals holds the latest known cumulative counts
type Totals struct {
	Confirmed int64 `json:"confirmed"`
	Deaths    int64 `json:"deaths"`
}

// RankEntry is one row of a top-N ranking
type RankEntry struct {
	Region  string `json:"region"`
	Place   string `json:"place"`
	PlaceID string `json:"-"`
	Value   int64  `json:"value"`
}

// Metrics holds the ratio and rolling metrics of a report
type Metrics struct {
	OverallMortality     float64 `json:"overall_mortality"`
	RollingMeanConfirmed float64 `json:"rolling_mean_confirmed"`
	RollingMeanDeaths    float64 `json:"rolling_mean_deaths"`
}

// AggregateReport is the summary computed from a canonical dataset
type AggregateReport struct {
	Period       Period      `json:"period"`
	Coverage     Coverage    `json:"coverage"`
	Totals       Totals      `json:"totals"`
	TopConfirmed []RankEntry `json:"top_confirmed"`
	TopDeaths    []RankEntry `json:"top_deaths"`
	Metrics      Metrics     `json:"metrics"`
}

// RegionWeek is the deaths-per-100k figure of one region in one
// epidemiological week
type RegionWeek struct {
	Region              string  `json:"region"`
	EpidemiologicalWeek string  `json:"epidemiological_week"`
	CumulativeDeaths    int64   `json:"cumulative_deaths"`
	Population          int64   `json:"population"`
	DeathsPer100k       float64 `json:"deaths_per_100k"`
}

// DailyPoint is the nationwide sum of daily counts on one date
type DailyPoint struct {
	Date                 time.Time `json:"date"`
	NewConfirmed         int64     `json:"new_confirmed"`
	NewDeaths            int64     `json:"new_deaths"`
	RollingMeanConfirmed float64   `json:"rolling_mean_confirmed"`
	RollingMeanDeaths    float64   `json:"rolling_mean_deaths"`
}

// ExportResult represents the result of an export operation
type ExportResult struct {
	Type        string `json:"type"` // "parquet", "json", "xlsx"
	Path        string `json:"path"`
	RecordCount int    `json:"record_count"`
}
