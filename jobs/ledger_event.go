package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/carbonledger/carbonledger/internal/jobs"
	"github.com/carbonledger/carbonledger/internal/ledger"
)

// LedgerEventJob hands queued ledger events to a sink, normally the audit
// recorder.
type LedgerEventJob struct {
	Sink    ledger.EventSink
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerEventJob initialises the event consumer.
func NewLedgerEventJob(sink ledger.EventSink, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerEventJob {
	return &LedgerEventJob{Sink: sink, Logger: logger, Metrics: metrics}
}

// Handle decodes the envelope and publishes it.
func (j *LedgerEventJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sink == nil {
		return errors.New("ledger event: handler not configured")
	}
	var env ledger.Envelope
	if err := json.Unmarshal(t.Payload(), &env); err != nil {
		j.logger().Error("discard malformed ledger event", slog.Any("error", err))
		return fmt.Errorf("decode ledger event: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskLedgerEvent)
	defer func() {
		err = tracker.End(err)
	}()

	if err := j.Sink.Publish(ctx, env); err != nil {
		j.logger().Warn("ledger event delivery failed",
			slog.Uint64("seq", env.Seq),
			slog.String("kind", string(env.Kind())),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

func (j *LedgerEventJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
