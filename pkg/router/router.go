// Package router implements the post-node routing decision (C8): a pure
// function of a state snapshot to the name of the next node, or terminal.
package router

import "github.com/quaycorner/swarmkernel/pkg/state"

// Terminal is the sentinel next-node name signalling the run is complete.
const Terminal = ""

// Supervisor is the next-node name that re-enters the planner.
const Supervisor = "supervisor"

// Executor is the next-node name that continues the parallel executor
// loop on the next group.
const Executor = "executor"

// MaxErrorsPerAgent is the critical-failure guard's threshold from
// spec §4.8 rule 1.
const MaxErrorsPerAgent = 3

// rule is one entry of the declarative table in spec §4.8 step 3.
type rule struct {
	from string
	flag string
	next func(snapshot *state.RunState) string
}

// rules is evaluated in order; the first match wins. Declared as data so
// the priority order is visible at a glance rather than buried in
// if/else chains.
var rules = []rule{
	{
		from: "document",
		flag: "requires_compliance",
		next: func(*state.RunState) string { return "compliance" },
	},
	{
		from: "compliance",
		flag: "needs_rework",
		next: func(s *state.RunState) string {
			if target, ok := s.Context["rework_target"].(string); ok && target != "" {
				return target
			}
			return "document"
		},
	},
	{
		from: "analytics",
		flag: "search_needed",
		next: func(*state.RunState) string { return "search" },
	},
	{
		from: "search",
		flag: "document_ready",
		next: func(*state.RunState) string { return "document" },
	},
}

// Next implements the priority-ordered decision function from spec §4.8.
// It is a pure function of snapshot: same input, same output, no side
// effects, no mutation.
func Next(snapshot *state.RunState) string {
	if criticalFailure(snapshot) {
		return Terminal
	}

	if len(snapshot.ParallelGroups) > 0 && snapshot.CurrentGroup < len(snapshot.ParallelGroups) {
		return Executor
	}

	if next, ok := matchRule(snapshot); ok {
		return next
	}

	if planComplete(snapshot) {
		return Terminal
	}

	return Supervisor
}

func criticalFailure(snapshot *state.RunState) bool {
	if snapshot.CurrentAgent == "" {
		return false
	}
	count := 0
	for _, e := range snapshot.Errors {
		if e.Agent == snapshot.CurrentAgent {
			count++
		}
	}
	return count >= MaxErrorsPerAgent
}

func matchRule(snapshot *state.RunState) (string, bool) {
	for _, r := range rules {
		if snapshot.CurrentAgent != r.from {
			continue
		}
		if truthy(snapshot.Context[r.flag]) {
			return r.next(snapshot), true
		}
	}
	return "", false
}

func truthy(v interface{}) bool {
	b, ok := v.(bool)
	return ok && b
}

func planComplete(snapshot *state.RunState) bool {
	for _, a := range snapshot.ExecutionPlan {
		if _, ok := snapshot.Results[a]; !ok {
			return false
		}
	}
	return true
}
