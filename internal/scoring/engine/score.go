package engine

// Outcome is the aggregate result of evaluating a rule set against one
// snapshot. The total is the plain sum of per-rule contributions; each rule
// is individually bounded but the total is not.
type Outcome struct {
	Total     int
	Breakdown map[RuleType]int
	Warnings  []Warning
}

// Score evaluates every rule in order against the snapshot and aggregates
// point contributions per rule type. Evaluation warnings never abort the
// pass; the offending rule simply contributes zero.
func Score(snap Snapshot, rules []Rule) Outcome {
	out := Outcome{Breakdown: make(map[RuleType]int)}

	for _, rule := range rules {
		points, warn := EvaluateRule(snap, rule)
		if warn != nil {
			out.Warnings = append(out.Warnings, *warn)
			continue
		}
		if points == 0 {
			continue
		}
		out.Total += points
		out.Breakdown[rule.RuleType] += points
	}

	return out
}
