// Package resolver matches declared data requirements against cataloged datasets.
//
// Everything here is a pure function of its arguments; callers may share
// catalogs across goroutines and retry freely.
package resolver

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/NOAA-OWP/DMOD-sub000/domain"
)

// Satisfies reports whether a dataset's domain meets every restriction of a
// requirement's domain. Formats are not compared here.
//
// Continuous: the dataset must restrict the same variable with an interval
// covering the requirement's, bounds inclusive. A dataset silent on the
// variable does not match.
//
// Discrete: a dataset restriction with no values admits everything. Otherwise
// its values must include every required value after normalization. A
// requirement with no values asks for every value, so only an all-values
// dataset restriction matches it. A dataset silent on the variable does not
// match.
//
// Both domains must be non-nil.
func Satisfies(req, dataset *domain.DataDomain) bool {
	return Mismatch(req, dataset) == ""
}

// Mismatch returns a description of the first unmet restriction, or "" when
// the dataset satisfies the requirement. Variables are checked in sorted order.
func Mismatch(req, dataset *domain.DataDomain) string {
	if req == nil || dataset == nil {
		panic("resolver: Mismatch called with nil domain")
	}

	for _, v := range sortedKeys(req.Continuous) {
		want := req.Continuous[v]
		have, ok := dataset.Continuous[v]
		if !ok {
			return fmt.Sprintf("dataset does not restrict %s", v)
		}
		if !have.Covers(want) {
			return fmt.Sprintf("%s range [%s, %s] does not cover [%s, %s]", v,
				have.Begin.Format(time.RFC3339), have.End.Format(time.RFC3339),
				want.Begin.Format(time.RFC3339), want.End.Format(time.RFC3339))
		}
	}

	for _, v := range sortedKeys(req.Discrete) {
		want := req.Discrete[v]
		have, ok := dataset.Discrete[v]
		if !ok {
			return fmt.Sprintf("dataset does not restrict %s", v)
		}
		if have.IsAll() {
			continue
		}
		if want.IsAll() {
			return fmt.Sprintf("requirement needs all %s values, dataset has %d", v, len(have.Values))
		}
		if missing := missingValues(want, have); len(missing) > 0 {
			return fmt.Sprintf("dataset lacks %s values %s", v, strings.Join(missing, ", "))
		}
	}

	return ""
}

func missingValues(want, have domain.DiscreteRestriction) []string {
	haveSet := have.NormalizedValues()
	var missing []string
	for v := range want.NormalizedValues() {
		if _, ok := haveSet[v]; !ok {
			missing = append(missing, v)
		}
	}
	sort.Strings(missing)
	return missing
}

func sortedKeys[V any](m map[domain.StandardDatasetIndex]V) []domain.StandardDatasetIndex {
	keys := make([]domain.StandardDatasetIndex, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
