// Package allocation turns a CPU request into a placement proposal over a
// cluster resource snapshot. Plans reserve nothing; committing them is the
// resource tracker's job.
package allocation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/NOAA-OWP/DMOD-sub000/errors"
)

// Paradigm is the policy for spreading CPUs across nodes.
type Paradigm string

// Allocation paradigms
const (
	SingleNode Paradigm = "SINGLE_NODE"
	FillNodes  Paradigm = "FILL_NODES"
	RoundRobin Paradigm = "ROUND_ROBIN"
)

// DefaultParadigm is used when a request does not name one.
const DefaultParadigm = RoundRobin

// Valid reports whether p is a known paradigm.
func (p Paradigm) Valid() bool {
	switch p {
	case SingleNode, FillNodes, RoundRobin:
		return true
	}
	return false
}

// ParseParadigm parses a paradigm name, ignoring case and accepting dashes.
func ParseParadigm(s string) (Paradigm, error) {
	p := Paradigm(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_"))
	if !p.Valid() {
		return "", errors.Validation("invalid allocation_paradigm %q, expected one of SINGLE_NODE, FILL_NODES, ROUND_ROBIN", s)
	}
	return p, nil
}

// UnmarshalJSON parses paradigm names leniently.
func (p *Paradigm) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseParadigm(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// NodeResources is one entry of a cluster snapshot.
type NodeResources struct {
	NodeID        string `json:"node_id"`
	AvailableCPUs int    `json:"available_cpus"`
}

// Assignment is the share of a plan placed on one node.
type Assignment struct {
	NodeID   string `json:"node_id"`
	CPUShare int    `json:"cpu_share"`
}

// Plan is an immutable placement proposal.
type Plan struct {
	Paradigm    Paradigm     `json:"paradigm"`
	CPUCount    int          `json:"cpu_count"`
	Assignments []Assignment `json:"assignments"`
}

// Total returns the number of CPUs assigned.
func (p *Plan) Total() int {
	total := 0
	for _, a := range p.Assignments {
		total += a.CPUShare
	}
	return total
}

// Nodes returns the assigned node ids in plan order.
func (p *Plan) Nodes() []string {
	out := make([]string, len(p.Assignments))
	for i, a := range p.Assignments {
		out[i] = a.NodeID
	}
	return out
}

// InsufficientResources describes why a plan could not be made.
type InsufficientResources struct {
	Paradigm  Paradigm
	Requested int
	Available int
}

func (e *InsufficientResources) Error() string {
	return fmt.Sprintf("insufficient resources for %s", e.Paradigm)
}

// Detail explains the shortfall in terms of the request.
func (e *InsufficientResources) Detail() string {
	if e.Paradigm == SingleNode {
		return fmt.Sprintf("no single node has %d cpus available (largest has %d)", e.Requested, e.Available)
	}
	return fmt.Sprintf("requested %d cpus but only %d are available", e.Requested, e.Available)
}

func (e *InsufficientResources) Unwrap() error {
	return errors.ErrInsufficientResources
}

// NewPlan places cpuCount CPUs on the snapshot's nodes according to paradigm.
//
// Nodes are considered in snapshot order. Nodes with no available CPUs are
// ignored. A failed plan returns an allocation error and no assignments.
func NewPlan(cpuCount int, paradigm Paradigm, snapshot []NodeResources) (*Plan, error) {
	if cpuCount <= 0 {
		return nil, errors.Validation("cpu_count must be greater than 0, got %d", cpuCount)
	}
	if !paradigm.Valid() {
		return nil, errors.Validation("invalid allocation_paradigm %q", paradigm)
	}

	nodes := usable(snapshot)

	var assignments []Assignment
	var shortfall *InsufficientResources
	switch paradigm {
	case SingleNode:
		assignments, shortfall = planSingleNode(cpuCount, nodes)
	case FillNodes:
		assignments, shortfall = planFillNodes(cpuCount, nodes)
	case RoundRobin:
		assignments, shortfall = planRoundRobin(cpuCount, nodes)
	}
	if shortfall != nil {
		shortfall.Paradigm = paradigm
		return nil, errors.Allocation(shortfall, "%s", shortfall.Detail())
	}

	return &Plan{Paradigm: paradigm, CPUCount: cpuCount, Assignments: assignments}, nil
}

func usable(snapshot []NodeResources) []NodeResources {
	out := make([]NodeResources, 0, len(snapshot))
	for _, n := range snapshot {
		if n.AvailableCPUs > 0 {
			out = append(out, n)
		}
	}
	return out
}

// totalCPUs sums availability, stopping once limit is reached.
func totalCPUs(nodes []NodeResources, limit int) int {
	total := 0
	for _, n := range nodes {
		if n.AvailableCPUs >= limit-total {
			return limit
		}
		total += n.AvailableCPUs
	}
	return total
}

// planSingleNode picks the node with the fewest sufficient CPUs, earliest on ties.
func planSingleNode(cpuCount int, nodes []NodeResources) ([]Assignment, *InsufficientResources) {
	best := -1
	largest := 0
	for i, n := range nodes {
		if n.AvailableCPUs > largest {
			largest = n.AvailableCPUs
		}
		if n.AvailableCPUs < cpuCount {
			continue
		}
		if best < 0 || n.AvailableCPUs < nodes[best].AvailableCPUs {
			best = i
		}
	}
	if best < 0 {
		return nil, &InsufficientResources{Requested: cpuCount, Available: largest}
	}
	return []Assignment{{NodeID: nodes[best].NodeID, CPUShare: cpuCount}}, nil
}

// planFillNodes exhausts each node in order before moving to the next.
func planFillNodes(cpuCount int, nodes []NodeResources) ([]Assignment, *InsufficientResources) {
	if available := totalCPUs(nodes, cpuCount); available < cpuCount {
		return nil, &InsufficientResources{Requested: cpuCount, Available: available}
	}

	var out []Assignment
	remaining := cpuCount
	for _, n := range nodes {
		if remaining == 0 {
			break
		}
		share := min(n.AvailableCPUs, remaining)
		out = append(out, Assignment{NodeID: n.NodeID, CPUShare: share})
		remaining -= share
	}
	return out, nil
}

// planRoundRobin hands out one CPU per node per pass, skipping exhausted nodes.
func planRoundRobin(cpuCount int, nodes []NodeResources) ([]Assignment, *InsufficientResources) {
	if available := totalCPUs(nodes, cpuCount); available < cpuCount {
		return nil, &InsufficientResources{Requested: cpuCount, Available: available}
	}

	shares := make([]int, len(nodes))
	remaining := cpuCount
	for remaining > 0 {
		for i, n := range nodes {
			if remaining == 0 {
				break
			}
			if shares[i] < n.AvailableCPUs {
				shares[i]++
				remaining--
			}
		}
	}

	var out []Assignment
	for i, n := range nodes {
		if shares[i] > 0 {
			out = append(out, Assignment{NodeID: n.NodeID, CPUShare: shares[i]})
		}
	}
	return out, nil
}
