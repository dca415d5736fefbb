package hydrofabric

import (
	"sort"
	"strings"

	"github.com/NOAA-OWP/DMOD-sub000/errors"
)

// Subset is a set of catchments and nexuses, each sorted.
type Subset struct {
	CatchmentIDs []string `json:"catchment_ids"`
	NexusIDs     []string `json:"nexus_ids"`
}

// Subsetter computes catchment subsets of a hydrofabric.
type Subsetter interface {
	CatchmentIDValid(id string) bool
	DirectSubset(seeds []string) (*Subset, error)
	UpstreamSubset(seeds []string) (*Subset, error)
}

var _ Subsetter = (*Graph)(nil)

// CatchmentIDValid reports whether id names a catchment of the graph.
func (g *Graph) CatchmentIDValid(id string) bool {
	return g.HasCatchment(id)
}

// DirectSubset returns the seeds and the nexus each drains into.
func (g *Graph) DirectSubset(seeds []string) (*Subset, error) {
	if err := g.checkSeeds(seeds); err != nil {
		return nil, err
	}

	cats := make(map[string]struct{}, len(seeds))
	nexs := make(map[string]struct{}, len(seeds))
	for _, c := range seeds {
		cats[c] = struct{}{}
		if nex, ok := g.Downstream(c); ok {
			nexs[nex] = struct{}{}
		}
	}
	return newSubset(cats, nexs), nil
}

// UpstreamSubset returns every catchment and nexus from which flow reaches
// any seed, together with the seeds and their downstream nexuses.
// Cycles are tolerated; each node is visited once.
func (g *Graph) UpstreamSubset(seeds []string) (*Subset, error) {
	if err := g.checkSeeds(seeds); err != nil {
		return nil, err
	}

	cats := make(map[string]struct{})
	nexs := make(map[string]struct{})
	queue := make([]string, 0, len(seeds))

	for _, c := range seeds {
		if _, seen := cats[c]; !seen {
			cats[c] = struct{}{}
			queue = append(queue, c)
		}
	}

	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]

		if nex, ok := g.Downstream(c); ok {
			nexs[nex] = struct{}{}
		}
		for _, nex := range g.UpstreamNexuses(c) {
			nexs[nex] = struct{}{}
			for _, up := range g.UpstreamCatchments(nex) {
				if _, seen := cats[up]; !seen {
					cats[up] = struct{}{}
					queue = append(queue, up)
				}
			}
		}
	}

	return newSubset(cats, nexs), nil
}

func (g *Graph) checkSeeds(seeds []string) error {
	var unknown []string
	for _, c := range seeds {
		if !g.HasCatchment(c) {
			unknown = append(unknown, c)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return errors.Graph(errors.ErrUnknownCatchment, "unknown catchment ids: %s", strings.Join(unknown, ", ")).
		WithReason("Invalid Catchment Id")
}

func newSubset(cats, nexs map[string]struct{}) *Subset {
	return &Subset{
		CatchmentIDs: sortedKeys(cats),
		NexusIDs:     sortedKeys(nexs),
	}
}
