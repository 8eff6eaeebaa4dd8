package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/carbonledger/carbonledger/internal/ledger"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries ledger events on their way to the audit log.
	QueueAudit = "audit"

	// TaskLedgerEvent delivers one committed ledger event to downstream consumers.
	TaskLedgerEvent = "ledger:event"
	// TaskLedgerIntegrity replays the journal and compares it with the read projections.
	TaskLedgerIntegrity = "ledger:integrity"
)

// IntegrityPayload tunes an integrity run.
type IntegrityPayload struct {
	CheckProjection bool `json:"check_projection"`
}

// NewLedgerEventTask wraps an envelope in an Asynq task. The envelope id
// doubles as the task id so a re-published event is not queued twice.
func NewLedgerEventTask(env ledger.Envelope) (*asynq.Task, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerEvent, body,
		asynq.Queue(QueueAudit),
		asynq.MaxRetry(5),
		asynq.TaskID(env.ID.String()),
		asynq.Retention(24*time.Hour),
	), nil
}

// NewLedgerIntegrityTask builds a new integrity task.
func NewLedgerIntegrityTask(checkProjection bool) (*asynq.Task, error) {
	body, err := json.Marshal(IntegrityPayload{CheckProjection: checkProjection})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, body, asynq.Queue(QueueDefault)), nil
}
