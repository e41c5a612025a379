// Package scheduler moves notification delivery onto asynq workers and runs
// the periodic sweeps that back it up.
package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/syed-c/standzon-sub008/platform/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Client enqueues delivery tasks. A nil Client drops every task; the due-job
// sweep still delivers them.
type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	opt, err := connOpt(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{client: asynq.NewClient(opt), queue: queueName(cfg)}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueDelivery schedules one delivery attempt for jobID at runAt. The task
// id includes runAt, so a retry at a new time is a new task while a repeated
// enqueue for the same attempt is dropped.
func (c *Client) EnqueueDelivery(ctx context.Context, jobID uuid.UUID, runAt time.Time) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewDeliveryTask(jobID, runAt)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(runAt),
		asynq.Queue(c.queue),
		asynq.TaskID(deliveryTaskID(jobID, runAt)),
		asynq.MaxRetry(3),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func deliveryTaskID(jobID uuid.UUID, runAt time.Time) string {
	return fmt.Sprintf("%s:%d", jobID, runAt.Unix())
}

func queueName(cfg config.SchedulerConfig) string {
	if queue := cfg.GetAsynqQueueName(); queue != "" {
		return queue
	}
	return "default"
}

var errNoRedis = errors.New("scheduler: REDIS_URL is not set")

// connOpt turns REDIS_URL into asynq connection options. rediss:// URLs keep
// their TLS settings; REDIS_TLS_INSECURE turns off certificate checks.
func connOpt(cfg config.SchedulerConfig) (asynq.RedisClientOpt, error) {
	if cfg.GetRedisURL() == "" {
		return asynq.RedisClientOpt{}, errNoRedis
	}
	parsed, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("scheduler: parse redis url: %w", err)
	}

	tlsConfig := parsed.TLSConfig
	if cfg.GetRedisTLSInsecure() {
		if tlsConfig == nil {
			tlsConfig = &tls.Config{}
		} else {
			tlsConfig = tlsConfig.Clone()
		}
		tlsConfig.InsecureSkipVerify = true
	}

	return asynq.RedisClientOpt{
		Addr:      parsed.Addr,
		Password:  parsed.Password,
		DB:        parsed.DB,
		TLSConfig: tlsConfig,
	}, nil
}
