// Package resources supplies cluster resource snapshots to the allocation
// planner.
package resources

import (
	"context"
	"sort"

	"github.com/NOAA-OWP/DMOD-sub000/allocation"
	"github.com/NOAA-OWP/DMOD-sub000/errors"
)

// Provider returns the current cluster snapshot.
type Provider interface {
	Snapshot(ctx context.Context) ([]allocation.NodeResources, error)
}

// Static serves a fixed snapshot in the order given.
type Static []allocation.NodeResources

// Snapshot returns a copy of the nodes.
func (s Static) Snapshot(context.Context) ([]allocation.NodeResources, error) {
	return append([]allocation.NodeResources(nil), s...), nil
}

// NodeRecord is a node's stored resource state.
type NodeRecord struct {
	NodeID        string `json:"node_id"`
	Hostname      string `json:"hostname,omitempty"`
	TotalCPUs     int    `json:"total_cpus"`
	AvailableCPUs int    `json:"available_cpus"`
	Memory        int64  `json:"memory,omitempty"`
}

// Validate checks the record is consistent.
func (r NodeRecord) Validate() error {
	if r.NodeID == "" {
		return errors.Validation("node record has no node_id")
	}
	if r.AvailableCPUs < 0 || r.TotalCPUs < 0 {
		return errors.Validation("node %s has negative cpu counts", r.NodeID)
	}
	if r.TotalCPUs > 0 && r.AvailableCPUs > r.TotalCPUs {
		return errors.Validation("node %s reports %d available of %d total cpus", r.NodeID, r.AvailableCPUs, r.TotalCPUs)
	}
	return nil
}

// snapshotOf converts records to a snapshot ordered by node id.
func snapshotOf(records map[string]NodeRecord) []allocation.NodeResources {
	out := make([]allocation.NodeResources, 0, len(records))
	for _, r := range records {
		out = append(out, allocation.NodeResources{NodeID: r.NodeID, AvailableCPUs: r.AvailableCPUs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}
