package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskForecastWarmup preloads cached record sets for stored scopes.
	TaskForecastWarmup = "forecast:warmup"
	// TaskForecastInvalidate bumps the record cache version.
	TaskForecastInvalidate = "forecast:invalidate"
)

// WarmupPayload restricts a warmup run. A zero Year warms every stored year.
type WarmupPayload struct {
	Year        int  `json:"year,omitempty"`
	SkipMarkets bool `json:"skip_markets,omitempty"`
}

// InvalidatePayload records why the cache was invalidated.
type InvalidatePayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewWarmupTask constructs a warmup task.
func NewWarmupTask(payload WarmupPayload) (*asynq.Task, error) {
	if payload.Year < 0 {
		return nil, fmt.Errorf("jobs: invalid warmup year %d", payload.Year)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskForecastWarmup, body, asynq.Queue(QueueDefault)), nil
}

// NewInvalidateTask constructs a cache invalidation task.
func NewInvalidateTask(reason string) (*asynq.Task, error) {
	body, err := json.Marshal(InvalidatePayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskForecastInvalidate, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

func decodePayload(t *asynq.Task, dst any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload(), dst); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}
