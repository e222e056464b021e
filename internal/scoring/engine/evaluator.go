// Package engine implements the rule evaluation core: a fixed interpreter
// over operator/value pairs applied to a lead's flattened attribute
// snapshot. Rules are data, never code, which keeps evaluation auditable.
package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Operator identifies a comparison supported by the evaluator.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpInList      Operator = "in_list"
	OpIsEmpty     Operator = "is_empty"
	OpIsNotEmpty  Operator = "is_not_empty"
)

// Valid reports whether the operator is one the interpreter understands.
func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan,
		OpInList, OpIsEmpty, OpIsNotEmpty:
		return true
	}
	return false
}

// RuleType categorizes scoring rules; score breakdowns are aggregated per type.
type RuleType string

const (
	RuleTypeDemographic  RuleType = "demographic"
	RuleTypeBehavioral   RuleType = "behavioral"
	RuleTypeFirmographic RuleType = "firmographic"
)

// Valid reports whether the rule type is known.
func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeDemographic, RuleTypeBehavioral, RuleTypeFirmographic:
		return true
	}
	return false
}

// Points bounds for a single rule.
const (
	MinRulePoints = -100
	MaxRulePoints = 100
)

// Snapshot is a lead's flattened attribute map, including enrichment data.
type Snapshot map[string]any

// Condition is a single field predicate. Workflow guard conditions use the
// same operator set as scoring rules.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

// Rule is one scoring rule as evaluated by the interpreter.
type Rule struct {
	ID        uuid.UUID
	Name      string
	RuleType  RuleType
	FieldName string
	Operator  Operator
	Value     any
	Points    int
}

// Warning records a non-fatal evaluation problem. The rule contributes zero
// points and scoring continues.
type Warning struct {
	RuleID    uuid.UUID `json:"ruleId,omitempty"`
	RuleName  string    `json:"ruleName,omitempty"`
	FieldName string    `json:"fieldName,omitempty"`
	Reason    string    `json:"reason"`
}

// EvaluateRule returns the rule's signed point contribution for the
// snapshot. Unknown operators, missing fields, and type mismatches yield
// zero points plus a warning rather than an error.
func EvaluateRule(snap Snapshot, rule Rule) (int, *Warning) {
	matched, warn := EvalCondition(snap, Condition{
		Field:    rule.FieldName,
		Operator: rule.Operator,
		Value:    rule.Value,
	})
	if warn != nil {
		warn.RuleID = rule.ID
		warn.RuleName = rule.Name
		return 0, warn
	}
	if !matched {
		return 0, nil
	}
	return rule.Points, nil
}

// EvalCondition evaluates a single predicate against the snapshot.
// The emptiness operators treat an absent field as empty; every other
// operator reports a warning for an absent field.
func EvalCondition(snap Snapshot, cond Condition) (bool, *Warning) {
	if !cond.Operator.Valid() {
		return false, &Warning{
			FieldName: cond.Field,
			Reason:    fmt.Sprintf("unknown operator %q", string(cond.Operator)),
		}
	}

	value, present := snap[cond.Field]

	switch cond.Operator {
	case OpIsEmpty:
		return !present || isEmpty(value), nil
	case OpIsNotEmpty:
		return present && !isEmpty(value), nil
	}

	if !present {
		return false, &Warning{
			FieldName: cond.Field,
			Reason:    "field missing from snapshot",
		}
	}

	switch cond.Operator {
	case OpEquals:
		return looseEqual(value, cond.Value), nil
	case OpNotEquals:
		return !looseEqual(value, cond.Value), nil
	case OpContains:
		return contains(value, cond.Value), nil
	case OpGreaterThan:
		return compareNumeric(value, cond.Value, cond.Field, func(a, b float64) bool { return a > b })
	case OpLessThan:
		return compareNumeric(value, cond.Value, cond.Field, func(a, b float64) bool { return a < b })
	case OpInList:
		list, ok := cond.Value.([]any)
		if !ok {
			return false, &Warning{
				FieldName: cond.Field,
				Reason:    "in_list value is not a list",
			}
		}
		for _, item := range list {
			if looseEqual(value, item) {
				return true, nil
			}
		}
		return false, nil
	}

	// Unreachable: Valid() covers all operators.
	return false, nil
}

func compareNumeric(value, ruleValue any, field string, cmp func(a, b float64) bool) (bool, *Warning) {
	a, okA := toFloat(value)
	b, okB := toFloat(ruleValue)
	if !okA || !okB {
		return false, &Warning{
			FieldName: field,
			Reason:    "value is not numeric",
		}
	}
	return cmp(a, b), nil
}

// looseEqual compares two values with JSON-friendly semantics: numbers
// compare numerically regardless of concrete type, everything else compares
// case-insensitively as strings.
func looseEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return strings.EqualFold(toString(a), toString(b))
}

// contains does a case-insensitive substring test, or a membership test when
// the snapshot value is itself a list (e.g. enrichment technologies).
func contains(value, needle any) bool {
	if list, ok := value.([]any); ok {
		for _, item := range list {
			if looseEqual(item, needle) {
				return true
			}
		}
		return false
	}
	if list, ok := value.([]string); ok {
		for _, item := range list {
			if looseEqual(item, needle) {
				return true
			}
		}
		return false
	}
	return strings.Contains(
		strings.ToLower(toString(value)),
		strings.ToLower(toString(needle)),
	)
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}
	return false
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case fmt.Stringer:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return fmt.Sprintf("%v", value)
}
