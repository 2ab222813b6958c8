package prompt

import (
	"sort"

	"github.com/tavernkit/core/pkg/tokencount"
)

// ExamplesBehavior controls how example-dialog Blocks are treated under
// budget pressure (Preset.examples_behavior).
type ExamplesBehavior string

const (
	ExamplesDisabled         ExamplesBehavior = "disabled"
	ExamplesGraduallyPushOut ExamplesBehavior = "gradually_push_out"
	ExamplesTrim             ExamplesBehavior = "trim"
	ExamplesAlwaysKeep       ExamplesBehavior = "always_keep"
)

// TrimOptions configures one Trim call.
type TrimOptions struct {
	MaxInputTokens       int
	MessageTokenOverhead int
	ExamplesBehavior     ExamplesBehavior
	Estimator            tokencount.Estimator
}

// Trim evicts Blocks by budget group and priority until the Plan's enabled
// content fits within MaxInputTokens, mutating Block.Enabled in place so
// the Plan remains a faithful audit trail.
func Trim(plan *Plan, opts TrimOptions) *TrimReport {
	estimator := opts.Estimator
	if estimator == nil {
		estimator = tokencount.WhitespaceHeuristic
	}

	total := func() int {
		sum := 0
		for _, b := range plan.Blocks {
			if b.Enabled {
				sum += estimator.Estimate(b.Content) + opts.MessageTokenOverhead
			}
		}
		return sum
	}

	report := &TrimReport{TokensBefore: total()}

	if report.TokensBefore <= opts.MaxInputTokens {
		report.TokensAfter = report.TokensBefore
		report.Fits = true
		return report
	}

	// Phase 1: examples.
	if opts.ExamplesBehavior != ExamplesAlwaysKeep {
		evictExamples(plan, opts, estimator, total, report)
	}

	// Phase 2: lore, highest priority first (ties by ascending order).
	evictLore(plan, opts.MaxInputTokens, total, report)

	// Phase 3: history, oldest (ascending order) first. The current user
	// message block and any "system" budget-group blocks are never
	// evicted.
	evictHistory(plan, opts.MaxInputTokens, total, report)

	report.TokensAfter = total()
	report.Fits = report.TokensAfter <= opts.MaxInputTokens
	return report
}

func evictExamples(plan *Plan, opts TrimOptions, estimator tokencount.Estimator, total func() int, report *TrimReport) {
	if opts.ExamplesBehavior == ExamplesDisabled {
		for _, b := range plan.Blocks {
			if b.BudgetGroup == BudgetExamples && b.Enabled {
				b.Enabled = false
				if name, ok := groupName(b); ok {
					report.RemovedExampleGroups = appendUnique(report.RemovedExampleGroups, name)
				}
			}
		}
		return
	}

	// gradually_push_out / trim: evict whole groups by descending
	// max(priority_in_group) then ascending min(order_in_group).
	groups := groupExampleBlocks(plan)
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].maxPriority != groups[j].maxPriority {
			return groups[i].maxPriority > groups[j].maxPriority
		}
		return groups[i].minOrder < groups[j].minOrder
	})

	for _, g := range groups {
		if total() <= opts.MaxInputTokens {
			return
		}
		for _, b := range g.blocks {
			b.Enabled = false
		}
		report.RemovedExampleGroups = appendUnique(report.RemovedExampleGroups, g.name)
	}
}

type exampleGroup struct {
	name        string
	blocks      []*Block
	maxPriority int
	minOrder    int
}

func groupExampleBlocks(plan *Plan) []exampleGroup {
	byName := map[string]*exampleGroup{}
	order := []string{}
	for _, b := range plan.Blocks {
		if b.BudgetGroup != BudgetExamples || !b.Enabled {
			continue
		}
		name, _ := groupName(b)
		g, ok := byName[name]
		if !ok {
			g = &exampleGroup{name: name, minOrder: b.Order, maxPriority: b.Priority}
			byName[name] = g
			order = append(order, name)
		}
		g.blocks = append(g.blocks, b)
		if b.Priority > g.maxPriority {
			g.maxPriority = b.Priority
		}
		if b.Order < g.minOrder {
			g.minOrder = b.Order
		}
	}
	out := make([]exampleGroup, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out
}

func groupName(b *Block) (string, bool) {
	if v, ok := b.Metadata["example_block"]; ok {
		if s, ok := v.(string); ok {
			return s, true
		}
	}
	return b.ID, false
}

func evictLore(plan *Plan, maxTokens int, total func() int, report *TrimReport) {
	candidates := make([]*Block, 0)
	for _, b := range plan.Blocks {
		if b.BudgetGroup == BudgetLore && b.Enabled {
			candidates = append(candidates, b)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].Order < candidates[j].Order
	})
	for _, b := range candidates {
		if total() <= maxTokens {
			return
		}
		b.Enabled = false
		if uid, ok := b.Metadata["lore_uid"].(string); ok {
			report.RemovedLoreUIDs = append(report.RemovedLoreUIDs, uid)
		}
	}
}

func evictHistory(plan *Plan, maxTokens int, total func() int, report *TrimReport) {
	candidates := make([]*Block, 0)
	for _, b := range plan.Blocks {
		if b.BudgetGroup == BudgetHistory && b.Enabled && b.Slot != SlotUserMessage {
			candidates = append(candidates, b)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Order < candidates[j].Order })
	for _, b := range candidates {
		if total() <= maxTokens {
			return
		}
		b.Enabled = false
		report.RemovedHistoryCount++
	}
}

func appendUnique(list []string, name string) []string {
	for _, existing := range list {
		if existing == name {
			return list
		}
	}
	return append(list, name)
}
