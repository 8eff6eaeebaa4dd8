package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/carbonledger/carbonledger/internal/ledger"
	"github.com/carbonledger/carbonledger/jobs"
	_ "github.com/carbonledger/carbonledger/testing"
)

func seededStore(t *testing.T) *ledger.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l, err := ledger.Open(ctx, ledger.Config{Root: "0xroot"}, store, nil, logger)
	require.NoError(t, err)
	_, err = l.AppointCountryAdmin(ctx, "0xroot", "0xcountry")
	require.NoError(t, err)
	_, err = l.AppointStateAdmin(ctx, "0xcountry", "0xstate", 1)
	require.NoError(t, err)
	_, err = l.AppointCityAdmin(ctx, "0xstate", "0xcity", 1)
	require.NoError(t, err)
	_, err = l.RegisterProducer(ctx, "0xcity", "0xproducer", 1)
	require.NoError(t, err)
	hash := ledger.HashClaim(ledger.ProductionClaim{Submitter: "0xproducer", AmountWh: 900, Date: "2025-02-01", Method: "meter", EnergySource: "wind", City: 1})
	_, err = l.Certify(ctx, "0xcity", hash, 1)
	require.NoError(t, err)
	_, err = l.Issue(ctx, "0xcity", "0xproducer", 3, hash)
	require.NoError(t, err)
	return store
}

type stubProjection struct {
	counts jobs.ProjectionCounts
}

func (s stubProjection) Counts(context.Context) (jobs.ProjectionCounts, error) {
	return s.counts, nil
}

func TestVerifyCommandJSONSuccess(t *testing.T) {
	ops, err := NewLedgerOpsCLI(seededStore(t), stubProjection{counts: jobs.ProjectionCounts{JournalLength: 7, UnitsActive: 3, CertificationsSpent: 1}})
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := ops.VerifyCommand(context.Background(), VerifyOptions{
		CheckProjection: true,
		JSONOutput:      true,
		Stdout:          stdout,
		Stderr:          stderr,
	})
	require.Equal(t, 0, exitCode, stderr.String())

	var summary VerifySummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.True(t, summary.OK)
	require.Equal(t, uint64(7), summary.JournalLength)
	require.Equal(t, ledger.UnitID(3), summary.LastUnitID)
	require.Empty(t, summary.Violations)
}

func TestVerifyCommandReportsDrift(t *testing.T) {
	ops, err := NewLedgerOpsCLI(seededStore(t), stubProjection{counts: jobs.ProjectionCounts{JournalLength: 6, UnitsActive: 3, CertificationsSpent: 1}})
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	exitCode := ops.VerifyCommand(context.Background(), VerifyOptions{CheckProjection: true, Stdout: stdout, Stderr: io.Discard})
	require.Equal(t, 10, exitCode)
	require.Contains(t, stdout.String(), "journal_length journal=7 projected=6")

	stdout.Reset()
	exitCode = ops.VerifyCommand(context.Background(), VerifyOptions{CheckProjection: false, Stdout: stdout, Stderr: io.Discard})
	require.Equal(t, 0, exitCode)
	require.True(t, strings.Contains(stdout.String(), "consistent"), stdout.String())
}

func TestNewLedgerOpsCLIRequiresStore(t *testing.T) {
	_, err := NewLedgerOpsCLI(nil, nil)
	require.Error(t, err)
}

type stubQueue struct {
	enqueued []*asynq.Task
	info     *asynq.QueueInfo
	asked    string
}

func (s *stubQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.enqueued = append(s.enqueued, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (s *stubQueue) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	s.asked = queue
	return s.info, nil
}

func (s *stubQueue) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return nil, nil
}

func (s *stubQueue) ListArchivedTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return []*asynq.TaskInfo{{ID: "dead"}}, nil
}

func (s *stubQueue) Close() error { return nil }

func TestJobsCLITriggerAndInspect(t *testing.T) {
	queue := &stubQueue{info: &asynq.QueueInfo{Queue: jobs.QueueAudit, Pending: 4, Archived: 1}}
	c := NewJobsCLIWith(queue, queue)

	info, err := c.Trigger(context.Background(), jobs.TaskLedgerIntegrity)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskLedgerIntegrity, info.Type)
	require.Len(t, queue.enqueued, 1)

	_, err = c.Trigger(context.Background(), "mail:send")
	require.Error(t, err)

	stats, err := c.InspectQueue(context.Background(), jobs.QueueAudit)
	require.NoError(t, err)
	require.Equal(t, QueueStats{Queue: jobs.QueueAudit, Pending: 4, Archived: 1}, stats)

	_, err = c.InspectQueue(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, jobs.QueueDefault, queue.asked)

	dead, err := c.ListDeadEvents(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	require.NoError(t, c.Close())
}
