package hydrofabric

import (
	"sort"

	"github.com/NOAA-OWP/DMOD-sub000/errors"
)

// Catchment roles in a remote connection.
const (
	DirectionOrigin      = "orig_cat"
	DirectionDestination = "dest_cat"
)

// PartitionConfig is an ngen partition configuration.
type PartitionConfig struct {
	Partitions []Partition `json:"partitions"`
}

// Partition is one MPI rank's share of the hydrofabric.
type Partition struct {
	ID                int                `json:"id"`
	CatchmentIDs      []string           `json:"cat-ids"`
	NexusIDs          []string           `json:"nex-ids"`
	RemoteConnections []RemoteConnection `json:"remote-connections"`
}

// RemoteConnection is a nexus edge whose ends live on different ranks.
type RemoteConnection struct {
	MPIRank     int    `json:"mpi-rank"`
	NexusID     string `json:"nex-id"`
	CatchmentID string `json:"cat-id"`
	Direction   string `json:"cat-direction"`
}

// Assignments maps each catchment to its partition id.
func (pc *PartitionConfig) Assignments() map[string]int {
	out := make(map[string]int)
	for _, p := range pc.Partitions {
		for _, c := range p.CatchmentIDs {
			out[c] = p.ID
		}
	}
	return out
}

// PartitionGraph splits g into count partitions of contiguous headwater-first
// catchment runs whose sizes differ by at most one.
//
// Each nexus joins the partition of its first contributing catchment, or of
// its first fed catchment when nothing drains into it. Edges between a
// nexus and a catchment on another rank are recorded on both ranks.
func PartitionGraph(g *Graph, count int) (*PartitionConfig, error) {
	total, _ := g.Size()
	if count < 1 {
		return nil, errors.Validation("partition count must be at least 1, got %d", count)
	}
	if count > total {
		return nil, errors.Validation("partition count %d exceeds catchment count %d", count, total)
	}

	order := headwaterOrder(g)

	owner := make(map[string]int, total)
	parts := make([]Partition, count)
	base, extra := total/count, total%count
	pos := 0
	for i := range parts {
		size := base
		if i < extra {
			size++
		}
		parts[i] = Partition{
			ID:                i,
			CatchmentIDs:      append([]string(nil), order[pos:pos+size]...),
			NexusIDs:          []string{},
			RemoteConnections: []RemoteConnection{},
		}
		for _, c := range parts[i].CatchmentIDs {
			owner[c] = i
		}
		sort.Strings(parts[i].CatchmentIDs)
		pos += size
	}

	for _, nex := range g.Nexuses() {
		rank := nexusOwner(g, nex, owner)
		parts[rank].NexusIDs = append(parts[rank].NexusIDs, nex)

		link := func(cat, direction string) {
			other := owner[cat]
			if other == rank {
				return
			}
			parts[rank].RemoteConnections = append(parts[rank].RemoteConnections,
				RemoteConnection{MPIRank: other, NexusID: nex, CatchmentID: cat, Direction: direction})
			parts[other].RemoteConnections = append(parts[other].RemoteConnections,
				RemoteConnection{MPIRank: rank, NexusID: nex, CatchmentID: cat, Direction: direction})
		}
		for _, c := range g.UpstreamCatchments(nex) {
			link(c, DirectionOrigin)
		}
		for _, c := range g.Feeds(nex) {
			link(c, DirectionDestination)
		}
	}

	return &PartitionConfig{Partitions: parts}, nil
}

func nexusOwner(g *Graph, nex string, owner map[string]int) int {
	if up := g.UpstreamCatchments(nex); len(up) > 0 {
		return owner[up[0]]
	}
	if down := g.Feeds(nex); len(down) > 0 {
		return owner[down[0]]
	}
	return 0
}

// headwaterOrder is a Kahn topological order of catchments, processed in
// sorted waves. Catchments left on cycles are appended in sorted order.
func headwaterOrder(g *Graph) []string {
	catchments := g.Catchments()
	indegree := make(map[string]int, len(catchments))
	for _, c := range catchments {
		indegree[c] = len(upstreamOf(g, c))
	}

	order := make([]string, 0, len(catchments))
	var wave []string
	for _, c := range catchments {
		if indegree[c] == 0 {
			wave = append(wave, c)
		}
	}

	for len(wave) > 0 {
		order = append(order, wave...)
		var next []string
		for _, c := range wave {
			for _, d := range downstreamOf(g, c) {
				indegree[d]--
				if indegree[d] == 0 {
					next = append(next, d)
				}
			}
		}
		sort.Strings(next)
		wave = next
	}

	if len(order) < len(catchments) {
		for _, c := range catchments {
			if indegree[c] > 0 {
				order = append(order, c)
			}
		}
	}
	return order
}

// upstreamOf returns the distinct catchments one nexus hop upstream of c.
func upstreamOf(g *Graph, c string) []string {
	seen := make(map[string]struct{})
	for _, nex := range g.UpstreamNexuses(c) {
		for _, up := range g.UpstreamCatchments(nex) {
			seen[up] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func downstreamOf(g *Graph, c string) []string {
	nex, ok := g.Downstream(c)
	if !ok {
		return nil
	}
	return g.Feeds(nex)
}
