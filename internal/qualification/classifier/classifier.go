// Package classifier maps a computed lead score plus lead facts to a
// qualification stage using ordered criteria. Pure logic, no persistence.
package classifier

import (
	"time"

	"github.com/google/uuid"
)

// Stage is a qualification stage, from least to most advanced.
type Stage string

const (
	StageUnqualified Stage = "unqualified"
	StageMQL         Stage = "mql"
	StageSQL         Stage = "sql"
	StageOpportunity Stage = "opportunity"
)

// Rank orders stages; higher means more advanced. Unknown stages rank
// below unqualified so bad data never wins classification.
func (s Stage) Rank() int {
	switch s {
	case StageUnqualified:
		return 0
	case StageMQL:
		return 1
	case StageSQL:
		return 2
	case StageOpportunity:
		return 3
	default:
		return -1
	}
}

// Valid reports whether the stage is a known target stage for criteria.
// Unqualified is the fallback, never a target.
func (s Stage) Valid() bool {
	switch s {
	case StageMQL, StageSQL, StageOpportunity:
		return true
	}
	return false
}

// Criteria is one qualification rule set for a target stage.
type Criteria struct {
	ID              uuid.UUID
	Name            string
	TargetStage     Stage
	MinimumScore    int
	RequiredFields  []string
	RequiredActions []string
	MinAgeDays      *int
	MaxAgeDays      *int
	CreatedAt       time.Time
}

// Facts is the lead state the classifier inspects.
type Facts struct {
	Snapshot  map[string]any
	Actions   []string
	CreatedAt time.Time
}

// CheckFailure names one criterion check that did not pass.
type CheckFailure struct {
	Check  string `json:"check"`
	Detail string `json:"detail"`
}

// Check evaluates one criteria set against a lead without side effects.
// Returned failures are empty when the lead satisfies the criteria.
func Check(criteria Criteria, facts Facts, score int, now time.Time) []CheckFailure {
	var failures []CheckFailure

	if score < criteria.MinimumScore {
		failures = append(failures, CheckFailure{
			Check:  "minimum_score",
			Detail: "score below minimum",
		})
	}

	for _, field := range criteria.RequiredFields {
		if isEmptyValue(facts.Snapshot[field]) {
			failures = append(failures, CheckFailure{
				Check:  "required_field",
				Detail: field,
			})
		}
	}

	actions := make(map[string]struct{}, len(facts.Actions))
	for _, action := range facts.Actions {
		actions[action] = struct{}{}
	}
	for _, required := range criteria.RequiredActions {
		if _, ok := actions[required]; !ok {
			failures = append(failures, CheckFailure{
				Check:  "required_action",
				Detail: required,
			})
		}
	}

	if criteria.MinAgeDays != nil || criteria.MaxAgeDays != nil {
		ageDays := int(now.Sub(facts.CreatedAt).Hours() / 24)
		if criteria.MinAgeDays != nil && ageDays < *criteria.MinAgeDays {
			failures = append(failures, CheckFailure{
				Check:  "lead_age",
				Detail: "lead younger than criteria window",
			})
		}
		if criteria.MaxAgeDays != nil && ageDays > *criteria.MaxAgeDays {
			failures = append(failures, CheckFailure{
				Check:  "lead_age",
				Detail: "lead older than criteria window",
			})
		}
	}

	return failures
}

// Classify returns the most advanced stage among the criteria the lead
// fully satisfies, or unqualified when none match. Equal-rank ties break
// toward the lowest minimum score, then the earliest created criteria;
// either way the winning stage is the same, so the order only fixes
// which criteria set gets credit.
func Classify(criteria []Criteria, facts Facts, score int, now time.Time) Stage {
	best := StageUnqualified
	for _, c := range sortForClassification(criteria) {
		if c.TargetStage.Rank() <= best.Rank() {
			continue
		}
		if len(Check(c, facts, score, now)) == 0 {
			best = c.TargetStage
		}
	}
	return best
}

func sortForClassification(criteria []Criteria) []Criteria {
	sorted := make([]Criteria, len(criteria))
	copy(sorted, criteria)
	// Most advanced stage first; within a stage, lowest minimum score,
	// then earliest created.
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && lessAdvancedThan(sorted[j-1], sorted[j]); j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return sorted
}

func lessAdvancedThan(a, b Criteria) bool {
	if a.TargetStage.Rank() != b.TargetStage.Rank() {
		return a.TargetStage.Rank() < b.TargetStage.Rank()
	}
	if a.MinimumScore != b.MinimumScore {
		return a.MinimumScore > b.MinimumScore
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func isEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}
	return false
}
