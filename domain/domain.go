package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// DataDomain describes the extent of a dataset or of the data a job needs.
type DataDomain struct {
	DataFormat DataFormat
	Continuous map[StandardDatasetIndex]ContinuousRestriction
	Discrete   map[StandardDatasetIndex]DiscreteRestriction
	DataFields map[string]string
}

// NewDataDomain creates an unrestricted domain of the given format.
func NewDataDomain(format DataFormat) *DataDomain {
	return &DataDomain{
		DataFormat: format,
		Continuous: make(map[StandardDatasetIndex]ContinuousRestriction),
		Discrete:   make(map[StandardDatasetIndex]DiscreteRestriction),
	}
}

// WithRange adds or replaces a continuous restriction.
func (d *DataDomain) WithRange(variable StandardDatasetIndex, begin, end time.Time) *DataDomain {
	if d.Continuous == nil {
		d.Continuous = make(map[StandardDatasetIndex]ContinuousRestriction)
	}
	d.Continuous[variable] = ContinuousRestriction{Variable: variable, Begin: begin, End: end}
	return d
}

// WithValues adds or replaces a discrete restriction. No values means all values.
func (d *DataDomain) WithValues(variable StandardDatasetIndex, values ...any) *DataDomain {
	if d.Discrete == nil {
		d.Discrete = make(map[StandardDatasetIndex]DiscreteRestriction)
	}
	d.Discrete[variable] = DiscreteRestriction{Variable: variable, Values: values}
	return d
}

// WithStrings is WithValues for string values.
func (d *DataDomain) WithStrings(variable StandardDatasetIndex, values ...string) *DataDomain {
	anys := make([]any, len(values))
	for i, v := range values {
		anys[i] = v
	}
	return d.WithValues(variable, anys...)
}

// IsUnrestricted reports whether the domain places no restriction on any variable.
func (d *DataDomain) IsUnrestricted() bool {
	return len(d.Continuous) == 0 && len(d.Discrete) == 0
}

// Validate checks the format and every restriction.
func (d *DataDomain) Validate() error {
	if !d.DataFormat.Valid() {
		return fmt.Errorf("unknown data format %q", d.DataFormat)
	}
	for v, r := range d.Continuous {
		if !v.Valid() {
			return fmt.Errorf("unknown continuous variable %q", v)
		}
		if err := r.Validate(); err != nil {
			return err
		}
	}
	for v := range d.Discrete {
		if !v.Valid() {
			return fmt.Errorf("unknown discrete variable %q", v)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (d *DataDomain) Clone() *DataDomain {
	if d == nil {
		return nil
	}
	out := NewDataDomain(d.DataFormat)
	for k, v := range d.Continuous {
		out.Continuous[k] = v
	}
	for k, v := range d.Discrete {
		out.Discrete[k] = DiscreteRestriction{Variable: v.Variable, Values: append([]any(nil), v.Values...)}
	}
	if d.DataFields != nil {
		out.DataFields = make(map[string]string, len(d.DataFields))
		for k, v := range d.DataFields {
			out.DataFields[k] = v
		}
	}
	return out
}

// wireDomain is the serialized shape: restrictions travel as lists.
type wireDomain struct {
	DataFormat DataFormat              `json:"data_format"`
	Continuous []ContinuousRestriction `json:"continuous,omitempty"`
	Discrete   []DiscreteRestriction   `json:"discrete,omitempty"`
	DataFields map[string]string       `json:"data_fields,omitempty"`
}

// MarshalJSON emits restrictions sorted by variable.
func (d DataDomain) MarshalJSON() ([]byte, error) {
	w := wireDomain{DataFormat: d.DataFormat, DataFields: d.DataFields}
	for _, r := range d.Continuous {
		w.Continuous = append(w.Continuous, r)
	}
	for _, r := range d.Discrete {
		if r.Values == nil {
			r.Values = []any{}
		}
		w.Discrete = append(w.Discrete, r)
	}
	sort.Slice(w.Continuous, func(i, j int) bool { return w.Continuous[i].Variable < w.Continuous[j].Variable })
	sort.Slice(w.Discrete, func(i, j int) bool { return w.Discrete[i].Variable < w.Discrete[j].Variable })
	return json.Marshal(w)
}

// UnmarshalJSON accepts restriction lists and rejects duplicate variables.
func (d *DataDomain) UnmarshalJSON(data []byte) error {
	var w wireDomain
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	out := NewDataDomain(w.DataFormat)
	out.DataFields = w.DataFields
	for _, r := range w.Continuous {
		if _, dup := out.Continuous[r.Variable]; dup {
			return fmt.Errorf("duplicate continuous restriction on %s", r.Variable)
		}
		out.Continuous[r.Variable] = r
	}
	for _, r := range w.Discrete {
		if _, dup := out.Discrete[r.Variable]; dup {
			return fmt.Errorf("duplicate discrete restriction on %s", r.Variable)
		}
		out.Discrete[r.Variable] = r
	}
	*d = *out
	return nil
}
