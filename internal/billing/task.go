package billing

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// TaskAggregate is the asynq task type for a periodic aggregation sweep.
const TaskAggregate = "billing:aggregate"

// NewAggregateTask builds the task enqueued by the scheduler.
func NewAggregateTask() *asynq.Task {
	return asynq.NewTask(TaskAggregate, nil)
}

// AggregateTaskHandler adapts the Aggregator to asynq's task interface.
type AggregateTaskHandler struct {
	Aggregator *Aggregator
	Log        zerolog.Logger
}

// ProcessTask runs one aggregation sweep. A returned error makes asynq retry
// the task with backoff; partially successful sweeps still created their
// orders, so the retry only re-touches what is still pending or retryable.
func (h AggregateTaskHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	orders, err := h.Aggregator.Run(ctx)
	if err != nil {
		h.Log.Error().Err(err).Int("orders", len(orders)).Msg("aggregation sweep finished with errors")
		return err
	}
	h.Log.Info().Int("orders", len(orders)).Msg("aggregation sweep finished")
	return nil
}
