package grouper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelize_SingleAgent(t *testing.T) {
	groups, err := Levelize([]string{"analytics"}, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"analytics"}}, groups)
}

func TestLevelize_IndependentAgentsShareAGroup(t *testing.T) {
	groups, err := Levelize([]string{"search", "analytics"}, nil)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.ElementsMatch(t, []string{"search", "analytics"}, groups[0])
}

func TestLevelize_DependencyChainIsSequential(t *testing.T) {
	plan := []string{"search", "document", "compliance"}
	deps := map[string][]string{
		"document":   {"search"},
		"compliance": {"document"},
	}
	groups, err := Levelize(plan, deps)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"search"}, {"document"}, {"compliance"}}, groups)
}

func TestLevelize_CyclicPlanRejected(t *testing.T) {
	plan := []string{"a", "b"}
	deps := map[string][]string{
		"a": {"b"},
		"b": {"a"},
	}
	_, err := Levelize(plan, deps)
	require.ErrorIs(t, err, ErrCyclicPlan)
}

func TestLevelize_TiesBrokenByCanonicalOrder(t *testing.T) {
	// document depends on analytics; search is independent. Two levels:
	// {analytics, search} then {document}. Canonical order within a level
	// follows plan order.
	plan := []string{"analytics", "search", "document"}
	deps := map[string][]string{"document": {"analytics"}}
	groups, err := Levelize(plan, deps)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"analytics", "search"}, groups[0])
	assert.Equal(t, []string{"document"}, groups[1])
}

func TestValidate_RejectsUnknownDependency(t *testing.T) {
	err := Validate([]string{"search"}, map[string][]string{"search": {"ghost"}})
	require.Error(t, err)
}

func TestValidate_AcceptsConsistentPlan(t *testing.T) {
	err := Validate([]string{"search", "document"}, map[string][]string{"document": {"search"}})
	require.NoError(t, err)
}
