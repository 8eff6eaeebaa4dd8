package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/carbonledger/carbonledger/internal/jobs"
	"github.com/carbonledger/carbonledger/internal/ledger"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seededStore builds a journal with five issued units, one of them retired.
func seededStore(t *testing.T) *ledger.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	l, err := ledger.Open(ctx, ledger.Config{Root: "0xroot"}, store, nil, discardLogger())
	require.NoError(t, err)

	_, err = l.AppointCountryAdmin(ctx, "0xroot", "0xcountry")
	require.NoError(t, err)
	_, err = l.AppointStateAdmin(ctx, "0xcountry", "0xstate", 1)
	require.NoError(t, err)
	_, err = l.AppointCityAdmin(ctx, "0xstate", "0xcity", 1)
	require.NoError(t, err)
	_, err = l.RegisterProducer(ctx, "0xcity", "0xproducer", 1)
	require.NoError(t, err)
	_, err = l.RegisterBuyer(ctx, "0xbuyer")
	require.NoError(t, err)

	hash := ledger.HashClaim(ledger.ProductionClaim{Submitter: "0xproducer", AmountWh: 5000, Date: "2025-01-01", Method: "meter", EnergySource: "solar", City: 1})
	_, err = l.Certify(ctx, "0xcity", hash, 1)
	require.NoError(t, err)
	_, err = l.Issue(ctx, "0xcity", "0xproducer", 5, hash)
	require.NoError(t, err)
	_, err = l.Transfer(ctx, "0xproducer", 5, "0xproducer", "0xbuyer")
	require.NoError(t, err)
	_, err = l.Retire(ctx, "0xbuyer", 5)
	require.NoError(t, err)
	return store
}

type stubProjection struct {
	counts ProjectionCounts
	err    error
}

func (s stubProjection) Counts(context.Context) (ProjectionCounts, error) {
	return s.counts, s.err
}

func TestIntegrityCheckCleanJournal(t *testing.T) {
	store := seededStore(t)
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	projection := stubProjection{counts: ProjectionCounts{JournalLength: 10, UnitsActive: 4, UnitsRetired: 1, CertificationsSpent: 1}}
	job := NewIntegrityCheck(store, projection, discardLogger(), metrics)

	report, err := job.Run(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, report.OK(), "%+v", report.Drift)
	assert.Equal(t, uint64(10), report.Stats.JournalLength)
	assert.Equal(t, ledger.UnitID(5), report.Stats.LastUnitID)

	task, err := NewLedgerIntegrityTask(true)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
}

func TestIntegrityCheckReportsProjectionDrift(t *testing.T) {
	store := seededStore(t)
	projection := stubProjection{counts: ProjectionCounts{JournalLength: 9, UnitsActive: 5, CertificationsSpent: 1}}
	job := NewIntegrityCheck(store, projection, discardLogger(), nil)

	report, err := job.Run(context.Background(), true)
	require.NoError(t, err)
	require.False(t, report.OK())
	fields := make([]string, 0, len(report.Drift))
	for _, d := range report.Drift {
		fields = append(fields, d.Field)
	}
	assert.ElementsMatch(t, []string{"journal_length", "units_active", "units_retired"}, fields)

	task, err := NewLedgerIntegrityTask(true)
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, ErrIntegrity)
	require.ErrorIs(t, err, asynq.SkipRetry)

	report, err = job.Run(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, report.OK())
}

type brokenStore struct {
	entries []ledger.Envelope
}

func (b brokenStore) Load(context.Context) ([]ledger.Envelope, error) { return b.entries, nil }
func (b brokenStore) Append(context.Context, ledger.Envelope) error   { return errors.New("read only") }

func TestIntegrityCheckRejectsCorruptJournal(t *testing.T) {
	entries, err := seededStore(t).Load(context.Background())
	require.NoError(t, err)
	corrupt := append(entries[:3:3], entries[4:]...)

	job := NewIntegrityCheck(brokenStore{entries: corrupt}, stubProjection{}, discardLogger(), nil)
	report, err := job.Run(context.Background(), true)
	require.NoError(t, err)
	require.False(t, report.OK())
	last := report.Violations[len(report.Violations)-1]
	assert.Equal(t, RuleReplay, last.Rule)
	assert.Equal(t, uint64(5), last.Seq)
	assert.Empty(t, report.Drift)

	task, err := NewLedgerIntegrityTask(true)
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), ErrIntegrity)
}

func TestVerifyJournalFlagsEveryRule(t *testing.T) {
	city := ledger.Jurisdiction{Country: 1, State: 1, City: 1}
	hashA := ledger.HashClaim(ledger.ProductionClaim{Submitter: "0xp", AmountWh: 1, Date: "2025-01-01", Method: "m", EnergySource: "s", City: 1})
	hashB := ledger.HashClaim(ledger.ProductionClaim{Submitter: "0xp", AmountWh: 2, Date: "2025-01-01", Method: "m", EnergySource: "s", City: 1})
	entries := []ledger.Envelope{
		{Seq: 1, Event: ledger.RoleAssigned{Principal: "0xroot", Role: ledger.RoleRootAuthority}},
		{Seq: 2, Event: ledger.RoleAssigned{Principal: "0xcity", Role: ledger.RoleCityAdmin, Jurisdiction: city}},
		{Seq: 3, Event: ledger.Certified{ClaimHash: hashA, Certifier: "0xcity", Origin: city}},
		{Seq: 4, Event: ledger.Issued{Range: ledger.IDRange{First: 1, Last: 2}, ClaimHash: hashA, Origin: city}},
		{Seq: 5, Event: ledger.Issued{Range: ledger.IDRange{First: 4, Last: 4}, ClaimHash: hashA, Origin: ledger.Jurisdiction{Country: 2, State: 1, City: 1}}},
		{Seq: 6, Event: ledger.Issued{Range: ledger.IDRange{First: 5, Last: 5}, ClaimHash: hashB, Origin: city}},
		{Seq: 7, Event: ledger.Retired{Unit: 1, By: "0xb"}},
		{Seq: 8, Event: ledger.Transferred{Unit: 1, From: "0xb", To: "0xc"}},
	}
	got := VerifyJournal(entries)
	rules := make(map[string]uint64, len(got))
	for _, v := range got {
		rules[v.Rule] = v.Seq
	}
	assert.Equal(t, map[string]uint64{
		RuleContiguousIDs:    5,
		RuleSingleIssuance:   5,
		RuleOriginChain:      5,
		RuleIssueUncertified: 6,
		RuleTransferRetired:  8,
	}, rules)
	assert.Len(t, got, 5)

	clean, err := seededStore(t).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, VerifyJournal(clean))
}

type captureSink struct {
	got []ledger.Envelope
	err error
}

func (c *captureSink) Publish(_ context.Context, env ledger.Envelope) error {
	if c.err != nil {
		return c.err
	}
	c.got = append(c.got, env)
	return nil
}

func TestLedgerEventJobDeliversEnvelope(t *testing.T) {
	entries, err := seededStore(t).Load(context.Background())
	require.NoError(t, err)
	env := entries[len(entries)-1]

	task, err := NewLedgerEventTask(env)
	require.NoError(t, err)
	sink := &captureSink{}
	job := NewLedgerEventJob(sink, discardLogger(), nil)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, sink.got, 1)
	assert.Equal(t, env, sink.got[0])

	sink.err = errors.New("db down")
	require.Error(t, job.Handle(context.Background(), task))

	bad := asynq.NewTask(TaskLedgerEvent, []byte(`{"kind":"Minted"}`))
	require.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)
}

type stubEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (s *stubEnqueuer) Close() error { return nil }

func TestClientPublishForwardsEvents(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	enqueuer := &stubEnqueuer{}
	client := NewClientWith(enqueuer, metrics)

	env := ledger.Envelope{ID: uuid.New(), Seq: 4, Actor: "0xbuyer", Event: ledger.Retired{Unit: 2, By: "0xbuyer"}}
	require.NoError(t, client.Publish(context.Background(), env))
	require.Len(t, enqueuer.tasks, 1)
	assert.Equal(t, TaskLedgerEvent, enqueuer.tasks[0].Type())

	var decoded ledger.Envelope
	require.NoError(t, json.Unmarshal(enqueuer.tasks[0].Payload(), &decoded))
	assert.Equal(t, env.Seq, decoded.Seq)

	enqueuer.err = asynq.ErrTaskIDConflict
	require.NoError(t, client.Publish(context.Background(), env))

	enqueuer.err = errors.New("redis down")
	require.Error(t, client.Publish(context.Background(), env))

	assert.Equal(t, 1.0, enqueuedCount(t, registry, "queued"))
	assert.Equal(t, 1.0, enqueuedCount(t, registry, "duplicate"))
	assert.Equal(t, 1.0, enqueuedCount(t, registry, "error"))
}

func enqueuedCount(t *testing.T, registry *prometheus.Registry, outcome string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "carbonledger_jobs_enqueued_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "outcome" && label.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

type stubInspector struct {
	infos map[string]*asynq.QueueInfo
	err   error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.infos[queue], nil
}

func TestJobsHealth(t *testing.T) {
	inspector := stubInspector{infos: map[string]*asynq.QueueInfo{
		QueueAudit:   {Queue: QueueAudit, Pending: 3, Retry: 1},
		QueueDefault: {Queue: QueueDefault},
	}}
	r := chi.NewRouter()
	NewHandler(inspector, discardLogger()).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var got []queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, queueHealth{Queue: QueueAudit, Pending: 3, Retry: 1}, got[0])

	r = chi.NewRouter()
	NewHandler(stubInspector{err: errors.New("redis down")}, discardLogger()).MountRoutes(r)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
