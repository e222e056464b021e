package engine

import (
	"testing"

	"github.com/google/uuid"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		"industry":     "Technology",
		"company":      "Acme Corp",
		"company_size": float64(250),
		"revenue":      "1200000",
		"email":        "jane@acme.example",
		"notes":        "",
		"technologies": []any{"Go", "PostgreSQL"},
	}
}

func TestEvaluateRuleOperators(t *testing.T) {
	tests := []struct {
		name       string
		rule       Rule
		wantPoints int
	}{
		{
			name:       "equals match",
			rule:       Rule{FieldName: "industry", Operator: OpEquals, Value: "technology", Points: 10},
			wantPoints: 10,
		},
		{
			name:       "equals mismatch",
			rule:       Rule{FieldName: "industry", Operator: OpEquals, Value: "Retail", Points: 10},
			wantPoints: 0,
		},
		{
			name:       "not equals",
			rule:       Rule{FieldName: "industry", Operator: OpNotEquals, Value: "Retail", Points: 5},
			wantPoints: 5,
		},
		{
			name:       "contains substring",
			rule:       Rule{FieldName: "email", Operator: OpContains, Value: "@acme.", Points: 8},
			wantPoints: 8,
		},
		{
			name:       "contains list membership",
			rule:       Rule{FieldName: "technologies", Operator: OpContains, Value: "go", Points: 6},
			wantPoints: 6,
		},
		{
			name:       "greater than numeric",
			rule:       Rule{FieldName: "company_size", Operator: OpGreaterThan, Value: float64(100), Points: 12},
			wantPoints: 12,
		},
		{
			name:       "greater than numeric string",
			rule:       Rule{FieldName: "revenue", Operator: OpGreaterThan, Value: float64(1000000), Points: 15},
			wantPoints: 15,
		},
		{
			name:       "less than no match",
			rule:       Rule{FieldName: "company_size", Operator: OpLessThan, Value: float64(100), Points: 7},
			wantPoints: 0,
		},
		{
			name:       "in list match",
			rule:       Rule{FieldName: "industry", Operator: OpInList, Value: []any{"Technology", "Finance"}, Points: 15},
			wantPoints: 15,
		},
		{
			name:       "in list no match",
			rule:       Rule{FieldName: "industry", Operator: OpInList, Value: []any{"Retail", "Hospitality"}, Points: 15},
			wantPoints: 0,
		},
		{
			name:       "is empty on blank string",
			rule:       Rule{FieldName: "notes", Operator: OpIsEmpty, Points: -5},
			wantPoints: -5,
		},
		{
			name:       "is not empty",
			rule:       Rule{FieldName: "company", Operator: OpIsNotEmpty, Points: 4},
			wantPoints: 4,
		},
		{
			name:       "negative points on match",
			rule:       Rule{FieldName: "industry", Operator: OpEquals, Value: "Technology", Points: -20},
			wantPoints: -20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points, warn := EvaluateRule(sampleSnapshot(), tt.rule)
			if warn != nil {
				t.Fatalf("unexpected warning: %+v", warn)
			}
			if points != tt.wantPoints {
				t.Fatalf("points = %d, want %d", points, tt.wantPoints)
			}
		})
	}
}

func TestEvaluateRuleWarnings(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{
			name: "missing field",
			rule: Rule{FieldName: "never_set", Operator: OpEquals, Value: "x", Points: 10},
		},
		{
			name: "unknown operator",
			rule: Rule{FieldName: "industry", Operator: Operator("regex"), Value: ".*", Points: 10},
		},
		{
			name: "non numeric comparison",
			rule: Rule{FieldName: "industry", Operator: OpGreaterThan, Value: float64(10), Points: 10},
		},
		{
			name: "in_list with scalar value",
			rule: Rule{FieldName: "industry", Operator: OpInList, Value: "Technology", Points: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.rule.ID = uuid.New()
			tt.rule.Name = tt.name
			points, warn := EvaluateRule(sampleSnapshot(), tt.rule)
			if points != 0 {
				t.Fatalf("points = %d, want 0", points)
			}
			if warn == nil {
				t.Fatal("expected a warning")
			}
			if warn.RuleID != tt.rule.ID {
				t.Fatalf("warning rule id = %s, want %s", warn.RuleID, tt.rule.ID)
			}
		})
	}
}

func TestEvaluateRuleMissingFieldTreatedAsEmpty(t *testing.T) {
	rule := Rule{FieldName: "never_set", Operator: OpIsEmpty, Points: 3}
	points, warn := EvaluateRule(sampleSnapshot(), rule)
	if warn != nil {
		t.Fatalf("unexpected warning: %+v", warn)
	}
	if points != 3 {
		t.Fatalf("points = %d, want 3", points)
	}

	rule = Rule{FieldName: "never_set", Operator: OpIsNotEmpty, Points: 3}
	points, warn = EvaluateRule(sampleSnapshot(), rule)
	if warn != nil {
		t.Fatalf("unexpected warning: %+v", warn)
	}
	if points != 0 {
		t.Fatalf("points = %d, want 0", points)
	}
}

func TestScoreAggregatesPerRuleType(t *testing.T) {
	rules := []Rule{
		{Name: "tech industry", RuleType: RuleTypeFirmographic, FieldName: "industry", Operator: OpInList, Value: []any{"Technology", "Finance"}, Points: 15},
		{Name: "big company", RuleType: RuleTypeFirmographic, FieldName: "company_size", Operator: OpGreaterThan, Value: float64(100), Points: 10},
		{Name: "has email", RuleType: RuleTypeDemographic, FieldName: "email", Operator: OpIsNotEmpty, Points: 5},
		{Name: "no notes", RuleType: RuleTypeBehavioral, FieldName: "notes", Operator: OpIsEmpty, Points: -5},
		{Name: "broken", RuleType: RuleTypeBehavioral, FieldName: "missing", Operator: OpEquals, Value: "x", Points: 50},
	}

	out := Score(sampleSnapshot(), rules)

	if out.Total != 25 {
		t.Fatalf("total = %d, want 25", out.Total)
	}
	if out.Breakdown[RuleTypeFirmographic] != 25 {
		t.Fatalf("firmographic = %d, want 25", out.Breakdown[RuleTypeFirmographic])
	}
	if out.Breakdown[RuleTypeDemographic] != 5 {
		t.Fatalf("demographic = %d, want 5", out.Breakdown[RuleTypeDemographic])
	}
	if out.Breakdown[RuleTypeBehavioral] != -5 {
		t.Fatalf("behavioral = %d, want -5", out.Breakdown[RuleTypeBehavioral])
	}
	if len(out.Warnings) != 1 {
		t.Fatalf("warnings = %d, want 1", len(out.Warnings))
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	rules := []Rule{
		{Name: "a", RuleType: RuleTypeDemographic, FieldName: "email", Operator: OpIsNotEmpty, Points: 5},
		{Name: "b", RuleType: RuleTypeFirmographic, FieldName: "company_size", Operator: OpGreaterThan, Value: float64(10), Points: 10},
	}

	first := Score(sampleSnapshot(), rules)
	for i := 0; i < 50; i++ {
		again := Score(sampleSnapshot(), rules)
		if again.Total != first.Total {
			t.Fatalf("total changed between runs: %d vs %d", again.Total, first.Total)
		}
		for k, v := range first.Breakdown {
			if again.Breakdown[k] != v {
				t.Fatalf("breakdown[%s] changed between runs", k)
			}
		}
	}
}
