package trigger

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"leadscoring_backend/internal/scoring/engine"
)

func intPtr(v int) *int { return &v }

func thresholdWorkflow(score int, priority int) Workflow {
	return Workflow{
		ID:            uuid.New(),
		Name:          "threshold",
		TriggerType:   TypeScoreThreshold,
		TriggerConfig: map[string]any{"score": float64(score)},
		ActionType:    ActionSendNotification,
		Priority:      priority,
	}
}

func TestScoreThresholdCrossing(t *testing.T) {
	workflows := []Workflow{thresholdWorkflow(70, 0)}

	cases := []struct {
		name      string
		prev      *int
		new       int
		wantFires bool
	}{
		{"crosses upward", intPtr(65), 75, true},
		{"lands exactly on threshold", intPtr(69), 70, true},
		{"already above, stays above", intPtr(75), 80, false},
		{"recalculated unchanged above", intPtr(75), 75, false},
		{"stays below", intPtr(40), 60, false},
		{"drops below", intPtr(75), 60, false},
		{"first score at threshold", nil, 70, true},
		{"first score below threshold", nil, 60, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			matched := Match(workflows, Change{
				PrevScore: tc.prev,
				NewScore:  tc.new,
				Snapshot:  engine.Snapshot{},
			})
			if fired := len(matched) == 1; fired != tc.wantFires {
				t.Fatalf("prev=%v new=%d: fired=%v, want %v", tc.prev, tc.new, fired, tc.wantFires)
			}
		})
	}
}

func TestStageChange(t *testing.T) {
	unscoped := Workflow{
		ID: uuid.New(), TriggerType: TypeStageChange,
		TriggerConfig: map[string]any{},
	}
	intoSQL := Workflow{
		ID: uuid.New(), TriggerType: TypeStageChange,
		TriggerConfig: map[string]any{"stage": "sql"},
	}

	matched := Match([]Workflow{unscoped, intoSQL}, Change{
		PrevStage: "mql", NewStage: "sql", Snapshot: engine.Snapshot{},
	})
	if len(matched) != 2 {
		t.Fatalf("mql→sql should fire both, got %d", len(matched))
	}

	matched = Match([]Workflow{unscoped, intoSQL}, Change{
		PrevStage: "mql", NewStage: "opportunity", Snapshot: engine.Snapshot{},
	})
	if len(matched) != 1 || matched[0].Workflow.ID != unscoped.ID {
		t.Fatalf("mql→opportunity should fire only the unscoped workflow")
	}

	if matched := Match([]Workflow{unscoped}, Change{PrevStage: "sql", NewStage: "sql", Snapshot: engine.Snapshot{}}); len(matched) != 0 {
		t.Fatal("unchanged stage must not fire")
	}
}

func TestFieldUpdate(t *testing.T) {
	w := Workflow{
		ID: uuid.New(), TriggerType: TypeFieldUpdate,
		TriggerConfig: map[string]any{"field": "industry"},
	}

	matched := Match([]Workflow{w}, Change{
		ChangedFields: []string{"title", "industry"},
		Snapshot:      engine.Snapshot{},
	})
	if len(matched) != 1 {
		t.Fatal("changed industry should fire")
	}
	if matched[0].TriggeredBy != "field_update" {
		t.Fatalf("unexpected triggeredBy %q", matched[0].TriggeredBy)
	}

	if matched := Match([]Workflow{w}, Change{ChangedFields: []string{"title"}, Snapshot: engine.Snapshot{}}); len(matched) != 0 {
		t.Fatal("unrelated field change must not fire")
	}
}

func TestConditionsFilterMatches(t *testing.T) {
	w := thresholdWorkflow(50, 0)
	w.Conditions = []engine.Condition{
		{Field: "country", Operator: engine.OpEquals, Value: "US"},
	}

	change := Change{
		PrevScore: intPtr(40), NewScore: 60,
		Snapshot: engine.Snapshot{"country": "US"},
	}
	if matched := Match([]Workflow{w}, change); len(matched) != 1 {
		t.Fatal("condition satisfied, should fire")
	}

	change.Snapshot = engine.Snapshot{"country": "DE"}
	if matched := Match([]Workflow{w}, change); len(matched) != 0 {
		t.Fatal("failed condition must filter the match")
	}

	// A condition on a missing field fails closed.
	change.Snapshot = engine.Snapshot{}
	if matched := Match([]Workflow{w}, change); len(matched) != 0 {
		t.Fatal("missing condition field must filter the match")
	}
}

func TestMatchOrdersByPriority(t *testing.T) {
	low := thresholdWorkflow(50, 1)
	high := thresholdWorkflow(50, 10)
	older := thresholdWorkflow(50, 5)
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := thresholdWorkflow(50, 5)
	newer.CreatedAt = time.Now()

	matched := Match([]Workflow{low, newer, high, older}, Change{
		PrevScore: intPtr(40), NewScore: 60, Snapshot: engine.Snapshot{},
	})
	if len(matched) != 4 {
		t.Fatalf("expected 4 matches, got %d", len(matched))
	}
	want := []uuid.UUID{high.ID, older.ID, newer.ID, low.ID}
	for i, id := range want {
		if matched[i].Workflow.ID != id {
			t.Fatalf("position %d: got %s, want %s", i, matched[i].Workflow.ID, id)
		}
	}
}

func TestTimeBasedIgnoredByMatch(t *testing.T) {
	w := Workflow{
		ID: uuid.New(), TriggerType: TypeTimeBased,
		TriggerConfig: map[string]any{"days": float64(7)},
	}
	if matched := Match([]Workflow{w}, Change{PrevStage: "mql", NewStage: "sql", Snapshot: engine.Snapshot{}}); len(matched) != 0 {
		t.Fatal("time_based workflows are sweep-driven, not transition-driven")
	}
}

func TestDwellSatisfied(t *testing.T) {
	w := Workflow{
		ID: uuid.New(), TriggerType: TypeTimeBased,
		TriggerConfig: map[string]any{"days": float64(7)},
	}
	now := time.Now()

	if DwellSatisfied(w, now.AddDate(0, 0, -3), now) {
		t.Fatal("3 days dwell should not satisfy a 7 day trigger")
	}
	if !DwellSatisfied(w, now.AddDate(0, 0, -7), now) {
		t.Fatal("7 days dwell should satisfy a 7 day trigger")
	}

	noConfig := Workflow{ID: uuid.New(), TriggerType: TypeTimeBased, TriggerConfig: map[string]any{}}
	if DwellSatisfied(noConfig, now.AddDate(0, 0, -30), now) {
		t.Fatal("missing days config must never fire")
	}
}
