// Package planner implements the Supervisor (C4): it classifies a request
// into intents, maps intents to the agent subset they require, and
// produces the execution plan and dependency map the grouper consumes.
package planner

import (
	"strings"

	"github.com/quaycorner/swarmkernel/pkg/state"
)

// Intent is one of the closed set of request classifications from spec
// §4.4.
type Intent string

const (
	IntentAnalyze  Intent = "analyze"
	IntentSearch   Intent = "search"
	IntentGenerate Intent = "generate"
	IntentValidate Intent = "validate"
	IntentCompare  Intent = "compare"
	IntentPredict  Intent = "predict"
)

// DefaultAgent is the single most conservative agent chosen when
// classification fails or produces an empty plan — spec §4.4.
const DefaultAgent = "search"

// intentKeywords drives the classifier: the first matching keyword set
// wins an intent. Deliberately simple and table-driven rather than a
// model call, since the kernel treats classification as an internal,
// pluggable concern and this is the always-available baseline.
var intentKeywords = []struct {
	intent   Intent
	keywords []string
}{
	{IntentSearch, []string{"find", "search", "look up", "competitor"}},
	{IntentAnalyze, []string{"analyze", "analytics", "revenue", "sales", "report"}},
	{IntentPredict, []string{"predict", "forecast", "project"}},
	{IntentCompare, []string{"compare", "versus", "vs."}},
	{IntentGenerate, []string{"write", "draft", "generate", "doc", "document"}},
	{IntentValidate, []string{"compliance", "validate", "comply", "regulation"}},
}

// intentAgents maps each intent to the agent names it requires, in
// canonical order. Declared as data so the supervisor never hard-codes a
// dispatch-by-string-name chain — spec §9's registry pattern.
var intentAgents = map[Intent][]string{
	IntentAnalyze:  {"analytics"},
	IntentSearch:   {"search"},
	IntentGenerate: {"search", "document"},
	IntentValidate: {"document", "compliance"},
	IntentCompare:  {"search", "analytics"},
	IntentPredict:  {"analytics"},
}

// staticDependencies is the fixed dependency table from spec §4.4:
// compliance depends on document; document optionally depends on
// analytics/search when those agents are present in the plan.
func staticDependencies(plan []string) map[string][]string {
	present := make(map[string]bool, len(plan))
	for _, a := range plan {
		present[a] = true
	}

	deps := make(map[string][]string)
	if present["compliance"] && present["document"] {
		deps["compliance"] = append(deps["compliance"], "document")
	}
	if present["document"] {
		var docDeps []string
		if present["analytics"] {
			docDeps = append(docDeps, "analytics")
		}
		if present["search"] {
			docDeps = append(docDeps, "search")
		}
		if len(docDeps) > 0 {
			deps["document"] = docDeps
		}
	}
	return deps
}

// Classify maps a task description to the ordered, deduplicated set of
// intents it expresses. Returns nil if no keyword matched.
func Classify(taskDescription string) []Intent {
	lower := strings.ToLower(taskDescription)
	seen := make(map[Intent]bool)
	var intents []Intent
	for _, row := range intentKeywords {
		if seen[row.intent] {
			continue
		}
		for _, kw := range row.keywords {
			if strings.Contains(lower, kw) {
				intents = append(intents, row.intent)
				seen[row.intent] = true
				break
			}
		}
	}
	return intents
}

// Plan builds the ordered agent list for a set of intents, preserving
// each intent's canonical agent order and deduplicating across intents.
func Plan(intents []Intent) []string {
	seen := make(map[string]bool)
	var plan []string
	for _, in := range intents {
		for _, a := range intentAgents[in] {
			if seen[a] {
				continue
			}
			seen[a] = true
			plan = append(plan, a)
		}
	}
	return plan
}

// Result is the supervisor's output: a plan, its dependency map, and
// whether classification degraded to the conservative default.
type Result struct {
	Plan     []string
	Deps     map[string][]string
	Degraded bool
}

// Run executes the classify → map → dedupe → attach-dependencies
// algorithm from spec §4.4 against a fresh or re-entered snapshot.
// existingResults is used for the re-planning hook: agents already
// present there are never dropped from the augmented plan.
func Run(taskDescription string, existingResults map[string]state.Result) Result {
	intents := Classify(taskDescription)
	plan := Plan(intents)

	degraded := false
	if len(plan) == 0 {
		plan = []string{DefaultAgent}
		degraded = true
	}

	if len(existingResults) > 0 {
		plan = augment(plan, existingResults)
	}

	return Result{
		Plan:     plan,
		Deps:     staticDependencies(plan),
		Degraded: degraded,
	}
}

// Patch assembles the supervisor's output patch from a Result and the
// groups the grouper levelized it into — spec §4.4: execution_plan,
// dependencies, parallel_groups, current_group reset to 0, a planning
// message, and a "supervisor completed" progress entry. When degraded,
// context["planner_degraded"] is also set.
func Patch(result Result, groups [][]string) state.Patch {
	zero := 0
	ctx := map[string]interface{}{}
	if result.Degraded {
		ctx["planner_degraded"] = true
	}

	return state.Patch{
		Messages: []state.Message{
			{
				Role:    state.RoleSystem,
				Content: planningMessage(result),
				Agent:   "supervisor",
			},
		},
		SetExecutionPlan:  true,
		ExecutionPlan:     result.Plan,
		SetDependencies:   true,
		Dependencies:      result.Deps,
		SetParallelGroups: true,
		ParallelGroups:    groups,
		CurrentGroup:      &zero,
		Context:           ctx,
		Progress: []state.ProgressEntry{
			{Agent: "supervisor", Action: state.ActionCompleted},
		},
	}
}

func planningMessage(result Result) string {
	if result.Degraded {
		return "planner could not classify the request; falling back to " + DefaultAgent
	}
	return "planned agents: " + strings.Join(result.Plan, ", ")
}

// augment implements the re-planning hook's augment-only semantics —
// spec §4.4/§9: agents already present in results are preserved in the
// plan even if the fresh classification no longer selects them, and the
// plan is never shrunk.
func augment(plan []string, existingResults map[string]state.Result) []string {
	present := make(map[string]bool, len(plan))
	for _, a := range plan {
		present[a] = true
	}
	out := append([]string(nil), plan...)
	for a := range existingResults {
		if !present[a] {
			out = append(out, a)
			present[a] = true
		}
	}
	return out
}
