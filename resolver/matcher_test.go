package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/NOAA-OWP/DMOD-sub000/domain"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02", s)
		if err != nil {
			panic(err)
		}
	}
	return t
}

func forcing(begin, end string) *domain.DataDomain {
	return domain.NewDataDomain(domain.FormatAORCCSV).WithRange(domain.IndexTime, ts(begin), ts(end))
}

func TestSatisfies_Continuous(t *testing.T) {
	req := forcing("2020-01-01", "2020-01-02")

	tests := []struct {
		name    string
		dataset *domain.DataDomain
		want    bool
	}{
		{"covers", forcing("2019-12-01", "2020-02-01"), true},
		{"exact bounds are inclusive", forcing("2020-01-01", "2020-01-02"), true},
		{"ends early", forcing("2020-01-01", "2020-01-01T12:00:00Z"), false},
		{"starts late", forcing("2020-01-01T00:00:01Z", "2020-03-01"), false},
		{"no time restriction", domain.NewDataDomain(domain.FormatAORCCSV), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Satisfies(req, tt.dataset))
		})
	}
}

func TestSatisfies_Discrete(t *testing.T) {
	cats := func(values ...string) *domain.DataDomain {
		return domain.NewDataDomain(domain.FormatAORCCSV).WithStrings(domain.IndexCatchmentID, values...)
	}

	tests := []struct {
		name    string
		req     *domain.DataDomain
		dataset *domain.DataDomain
		want    bool
	}{
		{"superset", cats("cat-1", "cat-2"), cats("cat-1", "cat-2", "cat-3"), true},
		{"equal", cats("cat-1"), cats("cat-1"), true},
		{"missing value", cats("cat-1", "cat-9"), cats("cat-1", "cat-2"), false},
		{"dataset admits all", cats("cat-1"), cats(), true},
		{"requirement wants all, dataset limited", cats(), cats("cat-1"), false},
		{"both all", cats(), cats(), true},
		{"dataset silent", cats("cat-1"), domain.NewDataDomain(domain.FormatAORCCSV), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Satisfies(tt.req, tt.dataset))
		})
	}
}

func TestSatisfies_NormalizesValues(t *testing.T) {
	req := domain.NewDataDomain(domain.FormatNgenPartitionConfig).WithValues(domain.IndexLength, "4", 8)
	dataset := domain.NewDataDomain(domain.FormatNgenPartitionConfig).WithValues(domain.IndexLength, 4.0, 8.0, 16.0)

	assert.True(t, Satisfies(req, dataset))
}

func TestSatisfies_TrivialRequirement(t *testing.T) {
	empty := domain.NewDataDomain(domain.FormatGeneric)

	datasets := []*domain.DataDomain{
		domain.NewDataDomain(domain.FormatGeneric),
		forcing("2020-01-01", "2020-01-02"),
		domain.NewDataDomain(domain.FormatGeneric).WithStrings(domain.IndexDataID, "x"),
	}
	for _, d := range datasets {
		assert.True(t, Satisfies(empty, d))
	}
}

func TestSatisfies_IgnoresExtraDatasetRestrictions(t *testing.T) {
	req := forcing("2020-01-01", "2020-01-02")
	dataset := forcing("2020-01-01", "2020-01-03").WithStrings(domain.IndexCatchmentID, "cat-1")

	assert.True(t, Satisfies(req, dataset))
}

func TestSatisfies_Monotonic(t *testing.T) {
	req := forcing("2020-01-01", "2020-01-05").WithStrings(domain.IndexCatchmentID, "cat-1", "cat-2")
	narrow := forcing("2020-01-01", "2020-01-05").WithStrings(domain.IndexCatchmentID, "cat-1", "cat-2")
	wider := forcing("2019-01-01", "2021-01-01").WithStrings(domain.IndexCatchmentID, "cat-1", "cat-2")
	emptied := forcing("2020-01-01", "2020-01-05").WithStrings(domain.IndexCatchmentID)

	assert.True(t, Satisfies(req, narrow))
	assert.True(t, Satisfies(req, wider), "widening the interval keeps the match")
	assert.True(t, Satisfies(req, emptied), "emptying the value set keeps the match")

	failing := forcing("2020-01-02", "2020-01-05").WithStrings(domain.IndexCatchmentID, "cat-1")
	assert.False(t, Satisfies(req, failing))
	assert.False(t, Satisfies(req, failing.Clone().WithRange(domain.IndexTime, ts("2020-01-02"), ts("2022-01-01"))),
		"widening on the wrong side does not help")
}

func TestMismatch_Describes(t *testing.T) {
	req := forcing("2020-01-01", "2020-01-02").WithStrings(domain.IndexCatchmentID, "cat-9")
	dataset := forcing("2019-01-01", "2021-01-01").WithStrings(domain.IndexCatchmentID, "cat-1")

	assert.Equal(t, "dataset lacks CATCHMENT_ID values cat-9", Mismatch(req, dataset))
	assert.Contains(t, Mismatch(req, domain.NewDataDomain(domain.FormatAORCCSV)), "does not restrict TIME")
}

func TestSatisfies_NilDomainPanics(t *testing.T) {
	assert.Panics(t, func() {
		Satisfies(nil, domain.NewDataDomain(domain.FormatGeneric))
	})
}
