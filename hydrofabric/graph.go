// Package hydrofabric models a river network of catchments and nexuses and
// computes the subsets and partitions used to scope jobs.
//
// Flow runs catchment → nexus → catchment. A catchment drains into at most
// one nexus; a nexus may feed several downstream catchments. Graphs are
// immutable once built and safe for concurrent use.
package hydrofabric

import (
	"sort"
	"strings"
)

// Graph is an immutable catchment/nexus flow network.
type Graph struct {
	// catchment -> nexus it drains into ("" for none)
	outflow map[string]string
	// nexus -> catchments it feeds
	feeds map[string][]string
	// nexus -> catchments draining into it
	contributors map[string][]string
	// catchment -> nexuses feeding it
	inflow map[string][]string
}

// HasCatchment reports whether id is a catchment in the graph.
func (g *Graph) HasCatchment(id string) bool {
	_, ok := g.outflow[id]
	return ok
}

// HasNexus reports whether id is a nexus in the graph.
func (g *Graph) HasNexus(id string) bool {
	_, ok := g.feeds[id]
	return ok
}

// Catchments returns every catchment id, sorted.
func (g *Graph) Catchments() []string {
	return sortedKeys(g.outflow)
}

// Nexuses returns every nexus id, sorted.
func (g *Graph) Nexuses() []string {
	return sortedKeys(g.feeds)
}

// Downstream returns the nexus a catchment drains into, if any.
func (g *Graph) Downstream(catchment string) (string, bool) {
	nex := g.outflow[catchment]
	return nex, nex != ""
}

// Feeds returns the catchments a nexus flows into.
func (g *Graph) Feeds(nexus string) []string {
	return g.feeds[nexus]
}

// UpstreamCatchments returns the catchments draining into a nexus.
func (g *Graph) UpstreamCatchments(nexus string) []string {
	return g.contributors[nexus]
}

// UpstreamNexuses returns the nexuses flowing into a catchment.
func (g *Graph) UpstreamNexuses(catchment string) []string {
	return g.inflow[catchment]
}

// Size returns the catchment and nexus counts.
func (g *Graph) Size() (catchments, nexuses int) {
	return len(g.outflow), len(g.feeds)
}

// Builder accumulates nodes and edges for a Graph.
type Builder struct {
	outflow map[string]string
	nexusTo map[string][]string
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		outflow: make(map[string]string),
		nexusTo: make(map[string][]string),
	}
}

// AddCatchment declares a catchment draining into toNexus ("" for a terminal catchment).
func (b *Builder) AddCatchment(id, toNexus string) *Builder {
	b.outflow[id] = toNexus
	if toNexus != "" {
		if _, ok := b.nexusTo[toNexus]; !ok {
			b.nexusTo[toNexus] = nil
		}
	}
	return b
}

// AddNexus declares a nexus feeding the given catchments.
func (b *Builder) AddNexus(id string, toCatchments ...string) *Builder {
	b.nexusTo[id] = append(b.nexusTo[id], toCatchments...)
	return b
}

// Build resolves edges and returns the graph. Nexus targets naming a
// waterbody ("wb-N") resolve to the matching catchment ("cat-N"); targets
// outside the graph are dropped.
func (b *Builder) Build() *Graph {
	g := &Graph{
		outflow:      make(map[string]string, len(b.outflow)),
		feeds:        make(map[string][]string, len(b.nexusTo)),
		contributors: make(map[string][]string),
		inflow:       make(map[string][]string),
	}

	for cat, nex := range b.outflow {
		g.outflow[cat] = nex
		if nex != "" {
			g.contributors[nex] = append(g.contributors[nex], cat)
		}
	}

	for nex, targets := range b.nexusTo {
		seen := make(map[string]bool)
		resolved := []string{}
		for _, t := range targets {
			cat, ok := b.resolveCatchment(t)
			if !ok || seen[cat] {
				continue
			}
			seen[cat] = true
			resolved = append(resolved, cat)
			g.inflow[cat] = append(g.inflow[cat], nex)
		}
		sort.Strings(resolved)
		g.feeds[nex] = resolved
	}

	for _, m := range []map[string][]string{g.contributors, g.inflow} {
		for k := range m {
			sort.Strings(m[k])
		}
	}
	return g
}

func (b *Builder) resolveCatchment(id string) (string, bool) {
	if _, ok := b.outflow[id]; ok {
		return id, true
	}
	if rest, ok := strings.CutPrefix(id, "wb-"); ok {
		alt := "cat-" + rest
		if _, ok := b.outflow[alt]; ok {
			return alt, true
		}
	}
	return "", false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
