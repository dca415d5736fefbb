package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ContinuousRestriction bounds a variable to an interval. Both bounds are inclusive.
type ContinuousRestriction struct {
	Variable StandardDatasetIndex `json:"variable"`
	Begin    time.Time            `json:"begin"`
	End      time.Time            `json:"end"`
}

// timeLayouts are the timestamp forms accepted on the wire. Values without
// a zone are UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime parses s in any of the accepted wire layouts.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// UnmarshalJSON accepts every layout ParseTime does for the bounds. A
// missing or null bound stays zero.
func (r *ContinuousRestriction) UnmarshalJSON(data []byte) error {
	var wire struct {
		Variable StandardDatasetIndex `json:"variable"`
		Begin    *string              `json:"begin"`
		End      *string              `json:"end"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := ContinuousRestriction{Variable: wire.Variable}
	for _, b := range []struct {
		raw *string
		dst *time.Time
	}{{wire.Begin, &out.Begin}, {wire.End, &out.End}} {
		if b.raw == nil {
			continue
		}
		t, err := ParseTime(*b.raw)
		if err != nil {
			return fmt.Errorf("continuous restriction on %s: %w", wire.Variable, err)
		}
		*b.dst = t
	}
	*r = out
	return nil
}

// Validate checks the interval is well formed.
func (r ContinuousRestriction) Validate() error {
	if r.End.Before(r.Begin) {
		return fmt.Errorf("continuous restriction on %s ends (%s) before it begins (%s)",
			r.Variable, r.End.Format(time.RFC3339), r.Begin.Format(time.RFC3339))
	}
	return nil
}

// Covers reports whether r's interval contains other's interval.
func (r ContinuousRestriction) Covers(other ContinuousRestriction) bool {
	return !r.Begin.After(other.Begin) && !r.End.Before(other.End)
}

// DiscreteRestriction limits a variable to a set of values.
// An empty value set places no limit on the variable.
type DiscreteRestriction struct {
	Variable StandardDatasetIndex `json:"variable"`
	Values   []any                `json:"values"`
}

// IsAll reports whether the restriction admits every value of its variable.
func (r DiscreteRestriction) IsAll() bool {
	return len(r.Values) == 0
}

// NormalizedValues returns the canonical form of each value, keyed for set comparison.
func (r DiscreteRestriction) NormalizedValues() map[string]struct{} {
	kind := r.Variable.Kind()
	set := make(map[string]struct{}, len(r.Values))
	for _, v := range r.Values {
		set[NormalizeValue(kind, v)] = struct{}{}
	}
	return set
}

// Strings returns the normalized values in sorted order.
func (r DiscreteRestriction) Strings() []string {
	set := r.NormalizedValues()
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// NormalizeValue renders v in the canonical representation for kind so that
// 7, 7.0, "7" and json.Number("7") compare equal for integer variables and
// equivalent timestamps compare equal for time variables.
func NormalizeValue(kind ValueKind, v any) string {
	raw := rawString(v)

	switch kind {
	case KindInteger:
		if f, err := strconv.ParseFloat(raw, 64); err == nil && f == math.Trunc(f) {
			return strconv.FormatInt(int64(f), 10)
		}
	case KindTime:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Format(time.RFC3339Nano)
		}
		if t, err := ParseTime(raw); err == nil {
			return t.Format(time.RFC3339Nano)
		}
	}
	return raw
}

func rawString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}
