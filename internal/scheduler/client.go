package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"

	"leadscoring_backend/internal/events"
	"leadscoring_backend/platform/config"
	"leadscoring_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Client enqueues background tasks. Workflow executions are enqueued rather
// than run inline so the per-lead scoring lock is never held across external
// action calls.
type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) EnqueueWorkflowExecution(ctx context.Context, workflowID, leadID uuid.UUID, triggeredBy string) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewWorkflowExecuteTask(WorkflowExecutePayload{
		WorkflowID:  workflowID.String(),
		LeadID:      leadID.String(),
		TriggeredBy: triggeredBy,
	})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	return err
}

func (c *Client) EnqueueScoreRecalculation(ctx context.Context, leadID uuid.UUID, changedFields []string) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewScoreRecalculateTask(ScoreRecalculatePayload{
		LeadID:        leadID.String(),
		ChangedFields: changedFields,
	})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	return err
}

// SubscribeToEvents queues a score recalculation whenever a lead's
// attributes change.
func (c *Client) SubscribeToEvents(bus events.Bus, log *logger.Logger) {
	bus.Subscribe(events.LeadUpdated{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		updated, ok := event.(events.LeadUpdated)
		if !ok {
			return nil
		}
		if err := c.EnqueueScoreRecalculation(ctx, updated.LeadID, updated.ChangedFields); err != nil {
			log.Warn("failed to enqueue score recalculation", "lead_id", updated.LeadID, "error", err)
			return err
		}
		return nil
	}))
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
