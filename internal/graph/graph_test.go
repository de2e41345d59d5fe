package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deps(m map[string][]string) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(m))
	for k, v := range m {
		s := map[string]struct{}{}
		for _, d := range v {
			s[d] = struct{}{}
		}
		out[k] = s
	}
	return out
}

func TestTopoOrder_Deterministic(t *testing.T) {
	order := []string{"A", "B", "C"}
	d := deps(map[string][]string{
		"A": nil,
		"B": {"A"},
		"C": {"A"},
	})
	g, err := New(order, d)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, g.TopoOrder())
}

func TestTopoOrder_TieBreakByConfigPosition(t *testing.T) {
	order := []string{"C", "B", "A"}
	d := deps(map[string][]string{
		"A": nil,
		"B": nil,
		"C": nil,
	})
	g, err := New(order, d)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, g.TopoOrder())
}

func TestCycleDetected(t *testing.T) {
	order := []string{"A", "B"}
	d := deps(map[string][]string{
		"A": {"B"},
		"B": {"A"},
	})
	_, err := New(order, d)
	require.Error(t, err)
}
