package allocation

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOAA-OWP/DMOD-sub000/errors"
)

func snapshot(pairs ...any) []NodeResources {
	var out []NodeResources
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, NodeResources{NodeID: pairs[i].(string), AvailableCPUs: pairs[i+1].(int)})
	}
	return out
}

func TestNewPlan_ScenarioC(t *testing.T) {
	plan, err := NewPlan(10, FillNodes, snapshot("n1", 4, "n2", 6, "n3", 8))

	require.NoError(t, err)
	assert.Equal(t, []Assignment{{"n1", 4}, {"n2", 6}}, plan.Assignments)
	assert.Equal(t, 10, plan.Total())
	assert.Equal(t, FillNodes, plan.Paradigm)
}

func TestNewPlan_ScenarioD(t *testing.T) {
	plan, err := NewPlan(5, SingleNode, snapshot("n1", 4, "n2", 6))

	require.NoError(t, err)
	assert.Equal(t, []Assignment{{"n2", 5}}, plan.Assignments)
}

func TestNewPlan_SingleNodeBestFit(t *testing.T) {
	plan, err := NewPlan(3, SingleNode, snapshot("big", 32, "small", 3, "mid", 8, "small2", 3))
	require.NoError(t, err)
	assert.Equal(t, []string{"small"}, plan.Nodes(), "smallest sufficient node, first on ties")

	_, err = NewPlan(9, SingleNode, snapshot("n1", 4, "n2", 8))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInsufficientResources)
	assert.Equal(t, errors.KindAllocation, errors.KindOf(err))
	assert.Contains(t, err.Error(), "largest has 8")
}

func TestNewPlan_FillNodesPartialLastNode(t *testing.T) {
	plan, err := NewPlan(7, FillNodes, snapshot("n1", 4, "n2", 0, "n3", 8))

	require.NoError(t, err)
	assert.Equal(t, []Assignment{{"n1", 4}, {"n3", 3}}, plan.Assignments)
}

func TestNewPlan_RoundRobin(t *testing.T) {
	tests := []struct {
		name     string
		cpus     int
		nodes    []NodeResources
		expected []Assignment
	}{
		{"even split", 6, snapshot("n1", 8, "n2", 8, "n3", 8), []Assignment{{"n1", 2}, {"n2", 2}, {"n3", 2}}},
		{"remainder to earlier nodes", 7, snapshot("n1", 8, "n2", 8, "n3", 8), []Assignment{{"n1", 3}, {"n2", 2}, {"n3", 2}}},
		{"fewer cpus than nodes", 2, snapshot("n1", 8, "n2", 8, "n3", 8), []Assignment{{"n1", 1}, {"n2", 1}}},
		{"skips exhausted node", 6, snapshot("n1", 1, "n2", 8, "n3", 8), []Assignment{{"n1", 1}, {"n2", 3}, {"n3", 2}}},
		{"skips empty node", 2, snapshot("n1", 0, "n2", 8), []Assignment{{"n2", 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := NewPlan(tt.cpus, RoundRobin, tt.nodes)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, plan.Assignments)
		})
	}
}

func TestNewPlan_Exhausted(t *testing.T) {
	for _, paradigm := range []Paradigm{FillNodes, RoundRobin} {
		t.Run(string(paradigm), func(t *testing.T) {
			plan, err := NewPlan(20, paradigm, snapshot("n1", 4, "n2", 6))
			assert.Nil(t, plan)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInsufficientResources)

			var shortfall *InsufficientResources
			require.ErrorAs(t, err, &shortfall)
			assert.Equal(t, 20, shortfall.Requested)
			assert.Equal(t, 10, shortfall.Available)
		})
	}

	_, err := NewPlan(1, FillNodes, nil)
	assert.ErrorIs(t, err, errors.ErrInsufficientResources)
}

func TestNewPlan_HugeNodes(t *testing.T) {
	for _, paradigm := range []Paradigm{SingleNode, FillNodes, RoundRobin} {
		t.Run(string(paradigm), func(t *testing.T) {
			plan, err := NewPlan(1, paradigm, snapshot("n1", math.MaxInt, "n2", 1))
			require.NoError(t, err)
			assert.Equal(t, 1, plan.Total())
		})
	}

	_, err := NewPlan(math.MaxInt, FillNodes, snapshot("n1", math.MaxInt-1, "n2", 0))
	var shortfall *InsufficientResources
	require.ErrorAs(t, err, &shortfall)
	assert.Equal(t, math.MaxInt-1, shortfall.Available)
}

func TestNewPlan_ErrorMessage(t *testing.T) {
	_, err := NewPlan(20, RoundRobin, snapshot("n1", 4, "n2", 6))
	require.Error(t, err)

	detail := "requested 20 cpus but only 10 are available"
	assert.Equal(t, 1, strings.Count(err.Error(), detail), err.Error())
	assert.Contains(t, err.Error(), "insufficient resources for ROUND_ROBIN")

	de, ok := errors.AsDMOD(err)
	require.True(t, ok)
	assert.Equal(t, detail, de.Message)
}

func TestNewPlan_Validation(t *testing.T) {
	for _, cpus := range []int{0, -3} {
		_, err := NewPlan(cpus, FillNodes, snapshot("n1", 4))
		require.Error(t, err)
		assert.Equal(t, errors.KindValidation, errors.KindOf(err))
	}

	_, err := NewPlan(1, Paradigm("SPREAD"), snapshot("n1", 4))
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

// Property checks over a grid of requests and snapshots.
func TestNewPlan_Properties(t *testing.T) {
	snapshots := [][]NodeResources{
		snapshot("a", 4, "b", 6, "c", 8),
		snapshot("a", 1, "b", 1, "c", 1, "d", 1),
		snapshot("a", 16),
		snapshot("a", 3, "b", 0, "c", 5, "d", 2),
	}

	for si, snap := range snapshots {
		for cpus := 1; cpus <= 20; cpus++ {
			for _, paradigm := range []Paradigm{SingleNode, FillNodes, RoundRobin} {
				name := fmt.Sprintf("snap%d/%d/%s", si, cpus, paradigm)
				plan, err := NewPlan(cpus, paradigm, snap)
				if err != nil {
					assert.ErrorIs(t, err, errors.ErrInsufficientResources, name)
					continue
				}

				assert.Equal(t, cpus, plan.Total(), name)
				available := make(map[string]int)
				for _, n := range snap {
					available[n.NodeID] = n.AvailableCPUs
				}
				for _, a := range plan.Assignments {
					assert.Positive(t, a.CPUShare, name)
					assert.LessOrEqual(t, a.CPUShare, available[a.NodeID], name)
				}
				if paradigm == SingleNode {
					assert.Len(t, plan.Assignments, 1, name)
				}
			}
		}
	}
}

func TestNewPlan_RoundRobinBalanced(t *testing.T) {
	snap := snapshot("a", 50, "b", 50, "c", 50, "d", 50)
	for cpus := 1; cpus <= 40; cpus++ {
		plan, err := NewPlan(cpus, RoundRobin, snap)
		require.NoError(t, err)

		lo, hi := plan.Assignments[0].CPUShare, plan.Assignments[0].CPUShare
		for _, a := range plan.Assignments {
			lo = min(lo, a.CPUShare)
			hi = max(hi, a.CPUShare)
		}
		assert.LessOrEqual(t, hi-lo, 1, "cpus=%d", cpus)
	}
}

func TestParadigm_JSON(t *testing.T) {
	var req struct {
		Paradigm Paradigm `json:"allocation_paradigm"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"allocation_paradigm":"fill-nodes"}`), &req))
	assert.Equal(t, FillNodes, req.Paradigm)

	err := json.Unmarshal([]byte(`{"allocation_paradigm":"spread"}`), &req)
	require.Error(t, err)

	out, err := json.Marshal(&Plan{Paradigm: RoundRobin, CPUCount: 2, Assignments: []Assignment{{"n1", 2}}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"paradigm":"ROUND_ROBIN","cpu_count":2,"assignments":[{"node_id":"n1","cpu_share":2}]}`, string(out))
}
