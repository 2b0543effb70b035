package pipeline

import (
	"math/big"
	"sort"
	"time"

	"epi-data-pipeline/internal/model"
	"epi-data-pipeline/pkg/utils"
)

// Aggregations over a canonical dataset. Every function here is pure: the
// dataset is only read, and identical input yields identical output.

// Period returns the first and last date of the dataset. ok is false for an
// empty dataset.
func Period(ds model.Dataset) (start, end time.Time, ok bool) {
	if len(ds) == 0 {
		return time.Time{}, time.Time{}, false
	}
	start, end = ds[0].Date, ds[0].Date
	for _, r := range ds[1:] {
		if r.Date.Before(start) {
			start = r.Date
		}
		if r.Date.After(end) {
			end = r.Date
		}
	}
	return start, end, true
}

// Coverage counts distinct region codes and distinct place identifiers.
func Coverage(ds model.Dataset) model.Coverage {
	regions := make(map[string]struct{})
	places := make(map[string]struct{})
	for _, r := range ds {
		regions[r.RegionCode] = struct{}{}
		places[r.PlaceID] = struct{}{}
	}
	return model.Coverage{Regions: len(regions), Places: len(places)}
}

// Totals returns the maximum cumulative confirmed and deaths observed. The
// counters are running totals, so the maximum is the latest known total.
func Totals(ds model.Dataset) model.Totals {
	var t model.Totals
	for _, r := range ds {
		if r.CumulativeConfirmed > t.Confirmed {
			t.Confirmed = r.CumulativeConfirmed
		}
		if r.CumulativeDeaths > t.Deaths {
			t.Deaths = r.CumulativeDeaths
		}
	}
	return t
}

type placeKey struct {
	region  string
	placeID string
}

// TopN groups records by (region, place), keeps the maximum of field per
// group and returns at most n groups by descending value. Ties break on
// place name, then region code, then place identifier, all ascending.
func TopN(ds model.Dataset, field model.CountField, n int) []model.RankEntry {
	if n <= 0 {
		return []model.RankEntry{}
	}

	groups := make(map[placeKey]*model.RankEntry)
	for _, r := range ds {
		key := placeKey{region: r.RegionCode, placeID: r.PlaceID}
		v := r.Count(field)
		g, exists := groups[key]
		if !exists {
			groups[key] = &model.RankEntry{Region: r.RegionCode, Place: r.PlaceName, PlaceID: r.PlaceID, Value: v}
			continue
		}
		if v > g.Value {
			g.Value = v
		}
		if r.PlaceName < g.Place {
			g.Place = r.PlaceName
		}
	}

	entries := make([]model.RankEntry, 0, len(groups))
	for _, g := range groups {
		entries = append(entries, *g)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		if a.Place != b.Place {
			return a.Place < b.Place
		}
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		return a.PlaceID < b.PlaceID
	})

	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

type dailySum struct {
	date   time.Time
	values []int64
}

// dailySums sums each field across all places per date, ascending by date.
func dailySums(ds model.Dataset, fields ...model.CountField) []dailySum {
	byDate := make(map[int64]*dailySum)
	for _, r := range ds {
		d, ok := byDate[r.Date.Unix()]
		if !ok {
			d = &dailySum{date: r.Date, values: make([]int64, len(fields))}
			byDate[r.Date.Unix()] = d
		}
		for i, f := range fields {
			d.values[i] += r.Count(f)
		}
	}

	out := make([]dailySum, 0, len(byDate))
	for _, d := range byDate {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].date.Before(out[j].date) })
	return out
}

// RollingMean sums field across places per date and averages the last window
// dates ending at the latest date. With fewer dates than window, all
// available dates are averaged. A window below 1 is treated as 1.
func RollingMean(ds model.Dataset, field model.CountField, window int) float64 {
	total, n := trailingTotal(ds, field, window)
	if n == 0 {
		return 0
	}
	f, _ := new(big.Rat).SetFrac(total, big.NewInt(n)).Float64()
	return f
}

// roundedRollingMean is RollingMean rounded exactly to places decimals.
func roundedRollingMean(ds model.Dataset, field model.CountField, window, places int) float64 {
	total, n := trailingTotal(ds, field, window)
	return utils.RoundRatio(total, big.NewInt(n), places)
}

// trailingTotal sums the daily totals of the last window dates and returns
// that sum with the number of dates used.
func trailingTotal(ds model.Dataset, field model.CountField, window int) (*big.Int, int64) {
	total := new(big.Int)
	sums := dailySums(ds, field)
	if len(sums) == 0 {
		return total, 0
	}
	if window < 1 {
		window = 1
	}
	if window > len(sums) {
		window = len(sums)
	}
	for _, d := range sums[len(sums)-window:] {
		total.Add(total, big.NewInt(d.values[0]))
	}
	return total, int64(window)
}

// OverallRatio is sum(numerator)/sum(denominator) rounded to 4 decimals,
// or 0 when the denominator sums to 0.
func OverallRatio(ds model.Dataset, numerator, denominator model.CountField) float64 {
	num, den := new(big.Int), new(big.Int)
	for _, r := range ds {
		num.Add(num, big.NewInt(r.Count(numerator)))
		den.Add(den, big.NewInt(r.Count(denominator)))
	}
	return utils.RoundRatio(num, den, 4)
}

// DailySeries returns the per-date sums of new confirmed and new deaths with
// their trailing means over up to window dates.
func DailySeries(ds model.Dataset, window int) []model.DailyPoint {
	sums := dailySums(ds, model.NewConfirmed, model.NewDeaths)
	if window < 1 {
		window = 1
	}

	out := make([]model.DailyPoint, len(sums))
	var accConfirmed, accDeaths int64
	for i, d := range sums {
		accConfirmed += d.values[0]
		accDeaths += d.values[1]
		if i >= window {
			accConfirmed -= sums[i-window].values[0]
			accDeaths -= sums[i-window].values[1]
		}
		n := int64(i + 1)
		if n > int64(window) {
			n = int64(window)
		}
		out[i] = model.DailyPoint{
			Date:                 d.date,
			NewConfirmed:         d.values[0],
			NewDeaths:            d.values[1],
			RollingMeanConfirmed: utils.RoundRatio64(accConfirmed, n, 1),
			RollingMeanDeaths:    utils.RoundRatio64(accDeaths, n, 1),
		}
	}
	return out
}

type regionWeekKey struct {
	region string
	week   string
}

// RegionWeekly reports, per region and epidemiological week, the sum over
// places of each place's maximum cumulative deaths that week and the deaths
// per 100k inhabitants. Places with unknown population count towards
// CumulativeDeaths only; the per-100k rate uses the deaths and population of
// places whose population is known.
func RegionWeekly(ds model.Dataset) []model.RegionWeek {
	type placeWeek struct {
		deaths     int64
		population int64
	}
	perPlace := make(map[regionWeekKey]map[string]*placeWeek)
	for _, r := range ds {
		key := regionWeekKey{region: r.RegionCode, week: r.EpidemiologicalWeek}
		places, ok := perPlace[key]
		if !ok {
			places = make(map[string]*placeWeek)
			perPlace[key] = places
		}
		p, ok := places[r.PlaceID]
		if !ok {
			p = &placeWeek{population: model.UnknownPopulation}
			places[r.PlaceID] = p
		}
		if r.CumulativeDeaths > p.deaths {
			p.deaths = r.CumulativeDeaths
		}
		if r.PopulationEstimate > p.population {
			p.population = r.PopulationEstimate
		}
	}

	out := make([]model.RegionWeek, 0, len(perPlace))
	for key, places := range perPlace {
		w := model.RegionWeek{Region: key.region, EpidemiologicalWeek: key.week}
		var knownDeaths int64
		for _, p := range places {
			w.CumulativeDeaths += p.deaths
			if p.population > 0 {
				w.Population += p.population
				knownDeaths += p.deaths
			}
		}
		if w.Population > 0 {
			w.DeathsPer100k = utils.RoundRatio64(knownDeaths*100000, w.Population, 1)
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Region != out[j].Region {
			return out[i].Region < out[j].Region
		}
		return out[i].EpidemiologicalWeek < out[j].EpidemiologicalWeek
	})
	return out
}

// BuildReport computes the aggregate report of a canonical dataset.
func BuildReport(ds model.Dataset, topN, window int) *model.AggregateReport {
	report := &model.AggregateReport{
		Coverage:     Coverage(ds),
		Totals:       Totals(ds),
		TopConfirmed: TopN(ds, model.CumulativeConfirmed, topN),
		TopDeaths:    TopN(ds, model.CumulativeDeaths, topN),
		Metrics: model.Metrics{
			OverallMortality:     OverallRatio(ds, model.CumulativeDeaths, model.CumulativeConfirmed),
			RollingMeanConfirmed: roundedRollingMean(ds, model.NewConfirmed, window, 1),
			RollingMeanDeaths:    roundedRollingMean(ds, model.NewDeaths, window, 1),
		},
	}
	if start, end, ok := Period(ds); ok {
		report.Period = model.Period{Start: start.Format(dateLayout), End: end.Format(dateLayout)}
	}
	return report
}
