package claims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carbonledger/carbonledger/internal/ledger"
)

const keyPrefix = "claims"

var (
	// ErrDuplicateClaim indicates the payload is already stored under its hash.
	ErrDuplicateClaim = errors.New("claims: duplicate claim")
	// ErrClaimNotFound indicates no payload is stored for the hash.
	ErrClaimNotFound = errors.New("claims: claim not found")
)

// Record is a stored claim payload keyed by its content hash.
type Record struct {
	Hash        ledger.ClaimHash       `json:"hash"`
	Claim       ledger.ProductionClaim `json:"claim"`
	SubmittedAt time.Time              `json:"submitted_at"`
}

// Store persists immutable claim payloads.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, hash ledger.ClaimHash) (Record, error)
	ListBySubmitter(ctx context.Context, submitter ledger.Principal, limit int64) ([]ledger.ClaimHash, error)
}

// RedisStore keeps payloads in Redis. Payload keys are written with SETNX and
// never overwritten.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs the store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Put stores rec unless a payload already exists for its hash.
func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	if s == nil || s.client == nil {
		return errors.New("claims: redis store not initialised")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, payloadKey(rec.Hash), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("claims: put %s: %w", rec.Hash, err)
	}
	if !ok {
		return ErrDuplicateClaim
	}
	member := redis.Z{Score: float64(rec.SubmittedAt.Unix()), Member: rec.Hash.String()}
	if err := s.client.ZAdd(ctx, submitterKey(rec.Claim.Submitter), member).Err(); err != nil {
		return fmt.Errorf("claims: index %s: %w", rec.Hash, err)
	}
	return nil
}

// Get loads the payload stored under hash.
func (s *RedisStore) Get(ctx context.Context, hash ledger.ClaimHash) (Record, error) {
	if s == nil || s.client == nil {
		return Record{}, errors.New("claims: redis store not initialised")
	}
	raw, err := s.client.Get(ctx, payloadKey(hash)).Bytes()
	if err == redis.Nil {
		return Record{}, ErrClaimNotFound
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("claims: decode %s: %w", hash, err)
	}
	return rec, nil
}

// ListBySubmitter returns the most recent hashes submitted by a principal.
func (s *RedisStore) ListBySubmitter(ctx context.Context, submitter ledger.Principal, limit int64) ([]ledger.ClaimHash, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("claims: redis store not initialised")
	}
	if limit <= 0 {
		limit = 50
	}
	members, err := s.client.ZRevRange(ctx, submitterKey(submitter), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ledger.ClaimHash, 0, len(members))
	for _, m := range members {
		h, err := ledger.ParseClaimHash(m)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func payloadKey(hash ledger.ClaimHash) string {
	return strings.Join([]string{keyPrefix, hash.String()}, ":")
}

func submitterKey(p ledger.Principal) string {
	return strings.Join([]string{keyPrefix, "submitter", p.Normalize().String()}, ":")
}
