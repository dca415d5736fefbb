package resolver

import (
	"fmt"
	"sort"

	"github.com/NOAA-OWP/DMOD-sub000/domain"
	"github.com/NOAA-OWP/DMOD-sub000/errors"
)

// Status is the outcome of resolving one requirement.
type Status string

// Resolution outcomes
const (
	StatusBound       Status = "BOUND"
	StatusUnfulfilled Status = "UNFULFILLED"
	// StatusOutput marks requirements the job produces rather than reads.
	StatusOutput Status = "OUTPUT"
)

// Binding is the resolution of a single requirement.
type Binding struct {
	Index          int                 `json:"index"`
	Category       domain.DataCategory `json:"category"`
	Status         Status              `json:"status"`
	DatasetID      string              `json:"dataset_id,omitempty"`
	AccessLocation string              `json:"access_location,omitempty"`
	Ambiguous      bool                `json:"ambiguous,omitempty"`
	Candidates     []string            `json:"candidates,omitempty"`
	Reason         string              `json:"reason,omitempty"`
}

// Result reports the binding of each requirement, in input order.
type Result struct {
	Bindings []Binding `json:"bindings"`
}

// Fulfilled reports whether every input requirement is bound.
func (r *Result) Fulfilled() bool {
	return len(r.Unfulfilled()) == 0
}

// Unfulfilled returns the bindings of requirements with no dataset.
func (r *Result) Unfulfilled() []Binding {
	var out []Binding
	for _, b := range r.Bindings {
		if b.Status == StatusUnfulfilled {
			out = append(out, b)
		}
	}
	return out
}

// Ambiguous returns bound requirements that had more than one candidate.
func (r *Result) Ambiguous() []Binding {
	var out []Binding
	for _, b := range r.Bindings {
		if b.Ambiguous {
			out = append(out, b)
		}
	}
	return out
}

// Err returns a resolution error describing the first unfulfilled requirement.
func (r *Result) Err() error {
	unfulfilled := r.Unfulfilled()
	if len(unfulfilled) == 0 {
		return nil
	}
	first := unfulfilled[0]
	err := errors.Resolution("%s", first.Reason).WithReason(first.Reason)
	if len(unfulfilled) > 1 {
		err.Message = fmt.Sprintf("%s (and %d more unfulfilled requirements)", first.Reason, len(unfulfilled)-1)
	}
	return err
}

// Apply returns copies of reqs with FulfilledBy and FulfilledAccessAt set from
// the bound results. reqs itself is not modified.
func (r *Result) Apply(reqs []domain.DataRequirement) []domain.DataRequirement {
	out := make([]domain.DataRequirement, len(reqs))
	copy(out, reqs)
	for _, b := range r.Bindings {
		if b.Status != StatusBound || b.Index >= len(out) {
			continue
		}
		out[b.Index].FulfilledBy = b.DatasetID
		out[b.Index].FulfilledAccessAt = b.AccessLocation
	}
	return out
}

type options struct {
	strictAmbiguity bool
}

// Option configures Resolve.
type Option func(*options)

// WithStrictAmbiguity reports requirements with several candidates as
// unfulfilled instead of picking the most recent dataset.
func WithStrictAmbiguity(strict bool) Option {
	return func(o *options) {
		o.strictAmbiguity = strict
	}
}

// Resolve binds each input requirement to the dataset that fulfills it.
//
// Candidates are datasets of the same category and format whose domain
// satisfies the requirement. With one candidate it is bound. With none the
// requirement is unfulfilled. With several, a previously bound dataset that is
// still a candidate is kept; otherwise the most recently created dataset wins,
// ties going to the smallest name. Output requirements are passed through.
func Resolve(reqs []domain.DataRequirement, catalog []domain.DatasetDescriptor, opts ...Option) *Result {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	result := &Result{Bindings: make([]Binding, 0, len(reqs))}
	for i, req := range reqs {
		result.Bindings = append(result.Bindings, resolveOne(i, req, catalog, o))
	}
	return result
}

func resolveOne(index int, req domain.DataRequirement, catalog []domain.DatasetDescriptor, o options) Binding {
	b := Binding{Index: index, Category: req.Category}

	if !req.IsInput {
		b.Status = StatusOutput
		return b
	}

	candidates := Candidates(req, catalog)
	switch len(candidates) {
	case 0:
		b.Status = StatusUnfulfilled
		b.Reason = fmt.Sprintf("no dataset fulfills %s requirement", req.Category)
		return b
	case 1:
		return bind(b, candidates[0])
	}

	b.Ambiguous = true
	for _, c := range candidates {
		b.Candidates = append(b.Candidates, c.Name)
	}
	if o.strictAmbiguity {
		b.Status = StatusUnfulfilled
		b.Reason = fmt.Sprintf("multiple datasets fulfill %s requirement", req.Category)
		return b
	}

	if req.FulfilledBy != "" {
		for _, c := range candidates {
			if c.Name == req.FulfilledBy {
				return bind(b, c)
			}
		}
	}
	return bind(b, candidates[0])
}

func bind(b Binding, d domain.DatasetDescriptor) Binding {
	b.Status = StatusBound
	b.DatasetID = d.Name
	b.AccessLocation = d.AccessLocation
	return b
}

// Candidates returns the datasets that could fulfill req, in preference
// order: most recently created first, then by name.
func Candidates(req domain.DataRequirement, catalog []domain.DatasetDescriptor) []domain.DatasetDescriptor {
	var out []domain.DatasetDescriptor
	for _, d := range catalog {
		if d.Category != req.Category || d.Domain == nil || req.Domain == nil {
			continue
		}
		if d.Domain.DataFormat != req.Domain.DataFormat {
			continue
		}
		if Satisfies(req.Domain, d.Domain) {
			out = append(out, d)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.After(out[j].Created)
		}
		return out[i].Name < out[j].Name
	})
	return out
}
