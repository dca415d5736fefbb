package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		name  string
		kind  ValueKind
		value any
		want  string
	}{
		{"integer from float", KindInteger, 7.0, "7"},
		{"integer from string", KindInteger, "7", "7"},
		{"integer from json number", KindInteger, json.Number("7"), "7"},
		{"fractional stays", KindInteger, 7.5, "7.5"},
		{"string trimmed", KindString, "  cat-1 ", "cat-1"},
		{"string from number", KindString, 12.0, "12"},
		{"time from date", KindTime, "2020-01-01", "2020-01-01T00:00:00Z"},
		{"time with offset", KindTime, "2020-01-01T01:00:00+01:00", "2020-01-01T00:00:00Z"},
		{"time value", KindTime, day(2020, 1, 1), "2020-01-01T00:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeValue(tt.kind, tt.value))
		})
	}
}

func TestDiscreteRestriction(t *testing.T) {
	all := DiscreteRestriction{Variable: IndexCatchmentID}
	assert.True(t, all.IsAll())

	some := DiscreteRestriction{Variable: IndexLength, Values: []any{3.0, "3", 4}}
	assert.False(t, some.IsAll())
	assert.Equal(t, []string{"3", "4"}, some.Strings())
}

func TestContinuousRestriction(t *testing.T) {
	outer := ContinuousRestriction{Variable: IndexTime, Begin: day(2019, 12, 1), End: day(2020, 2, 1)}
	inner := ContinuousRestriction{Variable: IndexTime, Begin: day(2020, 1, 1), End: day(2020, 1, 2)}

	assert.True(t, outer.Covers(inner))
	assert.False(t, inner.Covers(outer))
	assert.True(t, inner.Covers(inner), "bounds are inclusive")

	bad := ContinuousRestriction{Variable: IndexTime, Begin: day(2020, 1, 2), End: day(2020, 1, 1)}
	assert.Error(t, bad.Validate())
}

func TestDataDomain_JSON(t *testing.T) {
	raw := `{
		"data_format": "AORC_CSV",
		"continuous": [{"variable": "TIME", "begin": "2020-01-01T00:00:00Z", "end": "2020-01-02T00:00:00Z"}],
		"discrete": [{"variable": "CATCHMENT_ID", "values": ["cat-1", "cat-2"]}]
	}`

	var d DataDomain
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	require.NoError(t, d.Validate())

	want := NewDataDomain(FormatAORCCSV).
		WithRange(IndexTime, day(2020, 1, 1), day(2020, 1, 2)).
		WithStrings(IndexCatchmentID, "cat-1", "cat-2")
	if diff := cmp.Diff(*want, d); diff != "" {
		t.Errorf("decoded domain mismatch (-want +got):\n%s", diff)
	}

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestContinuousRestriction_WireTimeLayouts(t *testing.T) {
	tests := []struct {
		name  string
		begin string
		want  time.Time
	}{
		{"rfc3339", "2020-01-01T12:00:00Z", time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"rfc3339 offset", "2020-01-01T13:00:00+01:00", time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"space separated", "2020-01-01 12:00:00", time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"no seconds", "2020-01-01T12:00", time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"date only", "2020-01-01", day(2020, 1, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"variable": "TIME", "begin": "` + tt.begin + `", "end": "2021-01-01"}`
			var r ContinuousRestriction
			require.NoError(t, json.Unmarshal([]byte(raw), &r))
			assert.True(t, tt.want.Equal(r.Begin), "got %s", r.Begin)
			assert.Equal(t, time.UTC, r.Begin.Location())
			assert.Equal(t, day(2021, 1, 1), r.End)
		})
	}
}

func TestContinuousRestriction_JSONErrors(t *testing.T) {
	var r ContinuousRestriction
	err := json.Unmarshal([]byte(`{"variable": "TIME", "begin": "yesterday", "end": "2021-01-01"}`), &r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yesterday")

	require.NoError(t, json.Unmarshal([]byte(`{"variable": "TIME", "end": "2021-01-01"}`), &r))
	assert.True(t, r.Begin.IsZero())
}

func TestDataDomain_JSONRejectsDuplicates(t *testing.T) {
	raw := `{"data_format": "GENERIC", "discrete": [
		{"variable": "DATA_ID", "values": ["a"]},
		{"variable": "DATA_ID", "values": ["b"]}
	]}`

	var d DataDomain
	assert.Error(t, json.Unmarshal([]byte(raw), &d))
}

func TestDataDomain_EmptyDiscreteSerializesAsEmptyList(t *testing.T) {
	d := NewDataDomain(FormatGeneric).WithValues(IndexCatchmentID)

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data_format":"GENERIC","discrete":[{"variable":"CATCHMENT_ID","values":[]}]}`, string(out))
}

func TestDataDomain_Validate(t *testing.T) {
	assert.Error(t, NewDataDomain("PARQUET").Validate())
	assert.Error(t, NewDataDomain(FormatGeneric).WithStrings("COLOR", "red").Validate())
	assert.NoError(t, NewDataDomain(FormatAORCCSV).WithRange(IndexTime, day(2020, 1, 1), day(2020, 1, 1)).Validate())
}

func TestDataDomain_Clone(t *testing.T) {
	orig := NewDataDomain(FormatGeneric).WithStrings(IndexDataID, "a")
	clone := orig.Clone()
	clone.Discrete[IndexDataID].Values[0] = "b"
	clone.WithStrings(IndexFileName, "f")

	assert.Equal(t, "a", orig.Discrete[IndexDataID].Values[0])
	assert.NotContains(t, orig.Discrete, IndexFileName)
}

func TestDataRequirement_Validate(t *testing.T) {
	size := int64(-1)
	tests := []struct {
		name    string
		req     DataRequirement
		wantErr bool
	}{
		{"valid", DataRequirement{Category: CategoryForcing, IsInput: true, Domain: NewDataDomain(FormatAORCCSV)}, false},
		{"bad category", DataRequirement{Category: "WEATHER", Domain: NewDataDomain(FormatAORCCSV)}, true},
		{"nil domain", DataRequirement{Category: CategoryConfig}, true},
		{"negative size", DataRequirement{Category: CategoryConfig, Domain: NewDataDomain(FormatGeneric), Size: &size}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseDataCategory(t *testing.T) {
	c, err := ParseDataCategory("forcing")
	require.NoError(t, err)
	assert.Equal(t, CategoryForcing, c)

	_, err = ParseDataCategory("weather")
	assert.Error(t, err)
}
