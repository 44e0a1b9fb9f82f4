// Package grouper implements the dependency-aware grouper (C5): it turns
// (execution_plan, dependencies) into an ordered sequence of parallel-safe
// groups via Kahn-style topological levelization, and rejects cycles.
package grouper

import (
	"errors"
	"fmt"

	"github.com/gammazero/toposort"
)

// ErrCyclicPlan is raised when the dependency graph contains a cycle —
// spec's cyclic_plan error kind. Fatal to the run.
var ErrCyclicPlan = errors.New("cyclic_plan: dependency graph contains a cycle")

// Levelize converts plan (the canonical agent order) and deps (agent name
// -> set of agent names that must complete first) into an ordered
// sequence of sets — spec §4.5. Ties within a level are broken by the
// canonical order of agent names in plan.
//
// Cycle detection is grounded on gammazero/toposort: every dependency
// edge is fed to it first (dep -> agent, meaning dep must precede agent)
// purely to get a library-verified cycle check consistent with a
// well-known topological sort implementation; the actual level
// assignment below is a direct, spec-faithful Kahn implementation since
// toposort only returns a flat order, not levels.
func Levelize(plan []string, deps map[string][]string) ([][]string, error) {
	if len(plan) == 0 {
		return nil, nil
	}

	planSet := make(map[string]bool, len(plan))
	for _, a := range plan {
		planSet[a] = true
	}

	edges := make([]toposort.Edge, 0, len(deps))
	for agent, ds := range deps {
		if !planSet[agent] {
			continue
		}
		for _, d := range ds {
			if !planSet[d] {
				continue
			}
			edges = append(edges, toposort.Edge{Src: d, Dst: agent})
		}
	}
	if len(edges) > 0 {
		if _, ok := toposort.Toposort(edges); !ok {
			return nil, ErrCyclicPlan
		}
	}

	remaining := make(map[string][]string, len(plan))
	for _, a := range plan {
		var unsatisfied []string
		for _, d := range deps[a] {
			if planSet[d] {
				unsatisfied = append(unsatisfied, d)
			}
		}
		remaining[a] = unsatisfied
	}

	done := make(map[string]bool, len(plan))
	var groups [][]string

	for len(done) < len(plan) {
		var level []string
		for _, a := range plan {
			if done[a] {
				continue
			}
			if allSatisfied(remaining[a], done) {
				level = append(level, a)
			}
		}
		if len(level) == 0 {
			return nil, ErrCyclicPlan
		}
		for _, a := range level {
			done[a] = true
		}
		groups = append(groups, level)
	}

	return groups, nil
}

func allSatisfied(deps []string, done map[string]bool) bool {
	for _, d := range deps {
		if !done[d] {
			return false
		}
	}
	return true
}

// Validate checks that every agent referenced by name in plan or deps is
// present in plan, returning a descriptive error otherwise. The supervisor
// calls this before handing a plan to the grouper.
func Validate(plan []string, deps map[string][]string) error {
	planSet := make(map[string]bool, len(plan))
	for _, a := range plan {
		planSet[a] = true
	}
	for agent, ds := range deps {
		if !planSet[agent] {
			return fmt.Errorf("dependency declared for agent %q not present in execution_plan", agent)
		}
		for _, d := range ds {
			if !planSet[d] {
				return fmt.Errorf("agent %q depends on %q which is not present in execution_plan", agent, d)
			}
		}
	}
	return nil
}
