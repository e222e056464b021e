package scheduler

import (
	"context"
	"testing"
	"time"

	"leadscoring_backend/internal/events"
	"leadscoring_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
)

type testSchedulerConfig struct {
	redisURL string
	queue    string
}

func (c testSchedulerConfig) GetRedisURL() string                          { return c.redisURL }
func (c testSchedulerConfig) GetRedisTLSInsecure() bool                    { return false }
func (c testSchedulerConfig) GetAsynqQueueName() string                    { return c.queue }
func (c testSchedulerConfig) GetAsynqConcurrency() int                     { return 4 }
func (c testSchedulerConfig) GetDailyRecalcInterval() time.Duration        { return 24 * time.Hour }
func (c testSchedulerConfig) GetQualificationSweepInterval() time.Duration { return time.Hour }

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)
	client, err := NewClient(testSchedulerConfig{redisURL: "redis://" + srv.Addr(), queue: "automation"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return client, srv
}

func TestNewClientRequiresRedisURL(t *testing.T) {
	if _, err := NewClient(testSchedulerConfig{}); err == nil {
		t.Fatal("expected error for empty redis url")
	}
}

func TestEnqueueWorkflowExecution(t *testing.T) {
	client, srv := newTestClient(t)

	err := client.EnqueueWorkflowExecution(context.Background(), uuid.New(), uuid.New(), "score_threshold")
	if err != nil {
		t.Fatalf("EnqueueWorkflowExecution: %v", err)
	}

	if !srv.Exists("asynq:{automation}:pending") {
		t.Fatal("expected a pending task on the automation queue")
	}
}

func TestEnqueueScoreRecalculation(t *testing.T) {
	client, srv := newTestClient(t)

	err := client.EnqueueScoreRecalculation(context.Background(), uuid.New(), []string{"title"})
	if err != nil {
		t.Fatalf("EnqueueScoreRecalculation: %v", err)
	}

	if !srv.Exists("asynq:{automation}:pending") {
		t.Fatal("expected a pending task on the automation queue")
	}
}

func TestLeadUpdatedEventEnqueuesRecalculation(t *testing.T) {
	client, srv := newTestClient(t)

	log := logger.New("development")
	bus := events.NewInMemoryBus(log)
	client.SubscribeToEvents(bus, log)

	err := bus.PublishSync(context.Background(), events.LeadUpdated{
		BaseEvent:     events.NewBaseEvent(),
		LeadID:        uuid.New(),
		ChangedFields: []string{"industry"},
	})
	if err != nil {
		t.Fatalf("PublishSync: %v", err)
	}

	if !srv.Exists("asynq:{automation}:pending") {
		t.Fatal("expected the lead update to queue a recalculation task")
	}
}

func TestWorkflowExecutePayloadRoundTrip(t *testing.T) {
	workflowID := uuid.New().String()
	leadID := uuid.New().String()

	task, err := NewWorkflowExecuteTask(WorkflowExecutePayload{
		WorkflowID:  workflowID,
		LeadID:      leadID,
		TriggeredBy: "manual",
	})
	if err != nil {
		t.Fatalf("NewWorkflowExecuteTask: %v", err)
	}

	payload, err := ParseWorkflowExecutePayload(task)
	if err != nil {
		t.Fatalf("ParseWorkflowExecutePayload: %v", err)
	}
	if payload.WorkflowID != workflowID || payload.LeadID != leadID || payload.TriggeredBy != "manual" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}
