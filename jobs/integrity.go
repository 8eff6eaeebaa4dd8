package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/carbonledger/carbonledger/internal/jobs"
	"github.com/carbonledger/carbonledger/internal/ledger"
)

// ErrIntegrity reports a journal or projection that does not add up.
var ErrIntegrity = errors.New("ledger integrity violated")

// ProjectionCounts are the totals held by the read projections.
type ProjectionCounts struct {
	JournalLength       uint64
	UnitsActive         int
	UnitsRetired        int
	CertificationsLive  int
	CertificationsSpent int
}

// ProjectionReader reads projection totals.
type ProjectionReader interface {
	Counts(ctx context.Context) (ProjectionCounts, error)
}

// Drift is one mismatch between the replayed journal and a projection.
type Drift struct {
	Field     string `json:"field"`
	Journal   int64  `json:"journal"`
	Projected int64  `json:"projected"`
}

// IntegrityReport summarises an integrity run.
type IntegrityReport struct {
	CheckedAt  time.Time    `json:"checked_at"`
	Stats      ledger.Stats `json:"stats"`
	Violations []Violation  `json:"violations,omitempty"`
	Drift      []Drift      `json:"drift,omitempty"`
}

// OK reports whether the run found nothing wrong.
func (r IntegrityReport) OK() bool {
	return len(r.Violations) == 0 && len(r.Drift) == 0
}

// IntegrityCheck verifies the journal rule by rule, replays it, and, when a
// projection reader is configured, compares the result with the SQL read tables.
type IntegrityCheck struct {
	Store      ledger.Store
	Projection ProjectionReader
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	clock      func() time.Time
}

// NewIntegrityCheck initialises the integrity job.
func NewIntegrityCheck(store ledger.Store, projection ProjectionReader, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityCheck {
	return &IntegrityCheck{
		Store:      store,
		Projection: projection,
		Logger:     logger,
		Metrics:    metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the integrity task.
func (j *IntegrityCheck) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("integrity: handler not configured")
	}
	payload := IntegrityPayload{CheckProjection: true}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	report, err := j.Run(ctx, payload.CheckProjection)
	if err != nil {
		return err
	}
	if !report.OK() {
		return fmt.Errorf("%w: %d violations, %d mismatches: %w",
			ErrIntegrity, len(report.Violations), len(report.Drift), asynq.SkipRetry)
	}
	return nil
}

// Run performs one integrity pass.
func (j *IntegrityCheck) Run(ctx context.Context, checkProjection bool) (report IntegrityReport, err error) {
	if j.Store == nil {
		return IntegrityReport{}, errors.New("integrity: store not configured")
	}
	start := j.now()
	tracker := j.Metrics.Track(TaskLedgerIntegrity)
	defer func() {
		err = tracker.End(err)
	}()
	logger := j.logger().With(slog.String("job", TaskLedgerIntegrity))

	entries, err := j.Store.Load(ctx)
	if err != nil {
		logger.Error("load journal", slog.Any("error", err))
		return IntegrityReport{}, err
	}
	report = IntegrityReport{CheckedAt: start, Violations: VerifyJournal(entries)}
	state, replayed := ledger.NewState(), true
	for _, env := range entries {
		if err := state.Apply(env); err != nil {
			report.Violations = append(report.Violations, Violation{Seq: env.Seq, Rule: RuleReplay, Detail: err.Error()})
			replayed = false
			break
		}
	}
	if replayed {
		report.Stats = state.Stats()
		if checkProjection && j.Projection != nil {
			counts, err := j.Projection.Counts(ctx)
			if err != nil {
				logger.Error("read projection", slog.Any("error", err))
				return IntegrityReport{}, err
			}
			report.Drift = compareProjection(report.Stats, counts)
		}
	}

	for _, v := range report.Violations {
		logger.Error("ledger rule violated",
			slog.Uint64("seq", v.Seq),
			slog.String("rule", v.Rule),
			slog.String("detail", v.Detail),
		)
	}
	for _, d := range report.Drift {
		logger.Warn("ledger drift detected",
			slog.String("field", d.Field),
			slog.Int64("journal", d.Journal),
			slog.Int64("projected", d.Projected),
		)
	}
	j.Metrics.AddDrift(len(report.Violations) + len(report.Drift))
	logger.Info("completed integrity check",
		slog.Uint64("journal_length", report.Stats.JournalLength),
		slog.Int("violations", len(report.Violations)),
		slog.Int("drift", len(report.Drift)),
		slog.Duration("duration", time.Since(start)),
	)
	return report, nil
}

func compareProjection(stats ledger.Stats, counts ProjectionCounts) []Drift {
	var drift []Drift
	check := func(field string, journal, projected int64) {
		if journal != projected {
			drift = append(drift, Drift{Field: field, Journal: journal, Projected: projected})
		}
	}
	check("journal_length", int64(stats.JournalLength), int64(counts.JournalLength))
	check("units_active", int64(stats.UnitsActive), int64(counts.UnitsActive))
	check("units_retired", int64(stats.UnitsRetired), int64(counts.UnitsRetired))
	check("certifications_live", int64(stats.CertificationsLive), int64(counts.CertificationsLive))
	check("certifications_consumed", int64(stats.CertificationsSpent), int64(counts.CertificationsSpent))
	return drift
}

func (j *IntegrityCheck) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *IntegrityCheck) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// PGProjection reads projection totals from Postgres.
type PGProjection struct {
	pool *pgxpool.Pool
}

// NewPGProjection constructs a projection reader.
func NewPGProjection(pool *pgxpool.Pool) *PGProjection {
	return &PGProjection{pool: pool}
}

// Counts aggregates the ledger read tables in one round trip.
func (p *PGProjection) Counts(ctx context.Context) (ProjectionCounts, error) {
	if p == nil || p.pool == nil {
		return ProjectionCounts{}, errors.New("integrity: pool not configured")
	}
	const query = `SELECT
    (SELECT COUNT(*) FROM ledger_events),
    (SELECT COUNT(*) FROM ledger_units WHERE status = 'ACTIVE'),
    (SELECT COUNT(*) FROM ledger_units WHERE status = 'RETIRED'),
    (SELECT COUNT(*) FROM ledger_certifications WHERE status = 'LIVE'),
    (SELECT COUNT(*) FROM ledger_certifications WHERE status = 'CONSUMED')`
	var journal, active, retired, live, spent int64
	if err := p.pool.QueryRow(ctx, query).Scan(&journal, &active, &retired, &live, &spent); err != nil {
		return ProjectionCounts{}, err
	}
	return ProjectionCounts{
		JournalLength:       uint64(journal),
		UnitsActive:         int(active),
		UnitsRetired:        int(retired),
		CertificationsLive:  int(live),
		CertificationsSpent: int(spent),
	}, nil
}
