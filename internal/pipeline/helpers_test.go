package pipeline

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"epi-data-pipeline/internal/model"
	"epi-data-pipeline/internal/schema"
)

const rawHeader = "date,state,city,place_type,city_ibge_code,epidemiological_week,estimated_population_2019,is_last,new_confirmed,last_available_confirmed,new_deaths,last_available_deaths"

// sampleCSV mixes state rows, city rows and missing literals
var sampleCSV = strings.Join([]string{
	rawHeader,
	"2020-03-01,SP,,state,35,202010,45919049,False,5,5,0,0",
	"2020-03-01,SP,CityX,city,3550308,202010,12252023.0,False,10,10,1,1",
	"2020-03-02,SP,CityX,city,3550308,202010,12252023.0,True,10,20,1,2",
	"2020-03-01,RJ,CityY,city,3304557,202010,NA,False,,4,NaN,0",
	"2020-03-02,RJ,CityY,city,3304557,202010,,True,-2,4,null,1",
}, "\n") + "\n"

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func writeRaw(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raw.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func day(s string) time.Time {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func testRegistry() *schema.Registry {
	return schema.MustLoad()
}

// rec builds a canonical record with the mortality rate derived.
func rec(date, region, placeID, name string, newConf, cumConf, newDeaths, cumDeaths int64) model.Record {
	return model.Record{
		Date:                day(date),
		RegionCode:          region,
		PlaceID:             placeID,
		PlaceName:           name,
		EpidemiologicalWeek: "202010",
		NewConfirmed:        newConf,
		CumulativeConfirmed: cumConf,
		NewDeaths:           newDeaths,
		CumulativeDeaths:    cumDeaths,
		PopulationEstimate:  model.UnknownPopulation,
		MortalityRate:       MortalityRate(cumDeaths, cumConf),
	}
}

func int64Ptr(v int64) *int64 { return &v }

func float64Ptr(v float64) *float64 { return &v }
