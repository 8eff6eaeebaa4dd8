package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carbonledger/carbonledger/internal/platform/db"
)

// PostgresStore persists the journal in ledger_events and keeps read-side
// projections current in the same transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs the store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Load returns every journal entry in sequence order.
func (s *PostgresStore) Load(ctx context.Context) ([]Envelope, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("ledger: postgres store not initialised")
	}
	rows, err := s.pool.Query(ctx, `SELECT id, seq, occurred_at, actor, kind, payload FROM ledger_events ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Envelope
	for rows.Next() {
		var (
			env     Envelope
			actor   string
			kind    string
			payload []byte
		)
		if err := rows.Scan(&env.ID, &env.Seq, &env.At, &actor, &kind, &payload); err != nil {
			return nil, err
		}
		ev, err := DecodeEvent(EventKind(kind), payload)
		if err != nil {
			return nil, fmt.Errorf("ledger: seq %d: %w", env.Seq, err)
		}
		env.Actor = Principal(actor)
		env.At = env.At.UTC()
		env.Event = ev
		out = append(out, env)
	}
	return out, rows.Err()
}

// Append writes env and its projection rows atomically.
func (s *PostgresStore) Append(ctx context.Context, env Envelope) error {
	if s == nil || s.pool == nil {
		return errors.New("ledger: postgres store not initialised")
	}
	payload, err := json.Marshal(env.Event)
	if err != nil {
		return err
	}
	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var head uint64
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM ledger_events`).Scan(&head); err != nil {
			return err
		}
		if env.Seq != head+1 {
			return fmt.Errorf("%w: head %d, got %d", ErrJournalConflict, head, env.Seq)
		}
		_, err := tx.Exec(ctx, `INSERT INTO ledger_events (id, seq, occurred_at, actor, kind, payload) VALUES ($1, $2, $3, $4, $5, $6)`,
			env.ID, env.Seq, env.At, env.Actor.String(), string(env.Kind()), payload)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("%w: seq %d already written", ErrJournalConflict, env.Seq)
			}
			return err
		}
		return project(ctx, tx, env)
	})
	if errors.Is(err, db.ErrSerialization) {
		return fmt.Errorf("%w: %v", ErrJournalConflict, err)
	}
	return err
}

func project(ctx context.Context, tx pgx.Tx, env Envelope) error {
	switch ev := env.Event.(type) {
	case RoleAssigned:
		j := ev.Jurisdiction
		if err := projectJurisdiction(ctx, tx, j); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO ledger_principals (principal, role, country_id, state_id, city_id, assigned_by, assigned_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			ev.Principal.String(), ev.Role.String(), nullableID(uint64(j.Country)), nullableID(uint64(j.State)), nullableID(uint64(j.City)), ev.AssignedBy.String(), env.At)
		return err
	case Certified:
		_, err := tx.Exec(ctx, `INSERT INTO ledger_certifications (claim_hash, certifier, city_id, status, certified_at) VALUES ($1, $2, $3, $4, $5)`,
			ev.ClaimHash.String(), ev.Certifier.String(), int64(ev.Origin.City), string(CertificationLive), env.At)
		return err
	case Issued:
		if _, err := tx.Exec(ctx, `UPDATE ledger_certifications SET status = $2, consumed_at = $3 WHERE claim_hash = $1`,
			ev.ClaimHash.String(), string(CertificationConsumed), env.At); err != nil {
			return err
		}
		// generate_series keeps large batches to a single round trip.
		_, err := tx.Exec(ctx, `INSERT INTO ledger_units (id, owner, country_id, state_id, city_id, claim_hash, status, issued_at)
SELECT g, $3, $4, $5, $6, $7, $8, $9 FROM generate_series($1::bigint, $2::bigint) AS g`,
			int64(ev.Range.First), int64(ev.Range.Last), ev.To.String(),
			int64(ev.Origin.Country), int64(ev.Origin.State), int64(ev.Origin.City),
			ev.ClaimHash.String(), string(UnitStatusActive), env.At)
		return err
	case Transferred:
		_, err := tx.Exec(ctx, `UPDATE ledger_units SET owner = $2 WHERE id = $1`, int64(ev.Unit), ev.To.String())
		return err
	case Retired:
		_, err := tx.Exec(ctx, `UPDATE ledger_units SET status = $2, retired_by = $3, retired_at = $4 WHERE id = $1`,
			int64(ev.Unit), string(UnitStatusRetired), ev.By.String(), env.At)
		return err
	default:
		return fmt.Errorf("ledger: unsupported event %T", env.Event)
	}
}

func projectJurisdiction(ctx context.Context, tx pgx.Tx, j Jurisdiction) error {
	if j.IsZero() {
		return nil
	}
	_, err := tx.Exec(ctx, `INSERT INTO ledger_jurisdictions (country_id, state_id, city_id) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		int64(j.Country), int64(j.State), int64(j.City))
	return err
}

func nullableID(id uint64) *int64 {
	if id == 0 {
		return nil
	}
	v := int64(id)
	return &v
}
