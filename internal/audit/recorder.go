package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/carbonledger/carbonledger/internal/ledger"
	"github.com/carbonledger/carbonledger/internal/shared"
)

// Actions written for ledger events.
const (
	ActionRoleAssigned = "ledger.role_assigned"
	ActionCertified    = "ledger.certified"
	ActionIssued       = "ledger.issued"
	ActionTransferred  = "ledger.transferred"
	ActionRetired      = "ledger.retired"
)

// Writer persists audit entries.
type Writer interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Recorder turns ledger events into audit_logs rows. It satisfies
// ledger.EventSink so it can be attached directly or behind the job queue.
type Recorder struct {
	writer Writer
}

// NewRecorder constructs a Recorder.
func NewRecorder(writer Writer) *Recorder {
	return &Recorder{writer: writer}
}

// Publish records env.
func (r *Recorder) Publish(ctx context.Context, env ledger.Envelope) error {
	if r == nil || r.writer == nil {
		return fmt.Errorf("audit: recorder not configured")
	}
	entry, err := EntryFor(env)
	if err != nil {
		return err
	}
	return r.writer.Record(ctx, entry)
}

// EntryFor maps an envelope to its audit row. The event payload is kept as
// meta so history can be rebuilt from the audit log alone.
func EntryFor(env ledger.Envelope) (shared.AuditLog, error) {
	entry := shared.AuditLog{Seq: env.Seq, Actor: env.Actor.String(), At: env.At}
	switch ev := env.Event.(type) {
	case ledger.RoleAssigned:
		entry.Action, entry.Entity, entry.EntityID = ActionRoleAssigned, "principal", ev.Principal.String()
	case ledger.Certified:
		entry.Action, entry.Entity, entry.EntityID = ActionCertified, "certification", ev.ClaimHash.String()
	case ledger.Issued:
		entry.Action, entry.Entity, entry.EntityID = ActionIssued, "unit_range", ev.Range.String()
	case ledger.Transferred:
		entry.Action, entry.Entity, entry.EntityID = ActionTransferred, "unit", strconv.FormatUint(uint64(ev.Unit), 10)
	case ledger.Retired:
		entry.Action, entry.Entity, entry.EntityID = ActionRetired, "unit", strconv.FormatUint(uint64(ev.Unit), 10)
	default:
		return shared.AuditLog{}, fmt.Errorf("audit: unsupported event %T", env.Event)
	}
	if entry.Actor == "" {
		entry.Actor = "genesis"
	}
	raw, err := json.Marshal(env.Event)
	if err != nil {
		return shared.AuditLog{}, err
	}
	if err := json.Unmarshal(raw, &entry.Meta); err != nil {
		return shared.AuditLog{}, err
	}
	entry.Meta["event_id"] = env.ID.String()
	return entry, nil
}
