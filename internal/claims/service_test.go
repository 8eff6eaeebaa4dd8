package claims

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonledger/carbonledger/internal/ledger"
)

const (
	root     ledger.Principal = "0xroot"
	country  ledger.Principal = "0xcountry"
	state    ledger.Principal = "0xstate"
	city     ledger.Principal = "0xcity"
	producer ledger.Principal = "0xproducer"
)

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	ctx := context.Background()
	l, err := ledger.Open(ctx, ledger.Config{Root: root}, ledger.NewMemoryStore(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	_, err = l.AppointCountryAdmin(ctx, root, country)
	require.NoError(t, err)
	_, err = l.AppointStateAdmin(ctx, country, state, 1)
	require.NoError(t, err)
	_, err = l.AppointCityAdmin(ctx, state, city, 1)
	require.NoError(t, err)
	_, err = l.RegisterProducer(ctx, city, producer, 1)
	require.NoError(t, err)
	return l
}

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client)
}

func sampleClaim() ledger.ProductionClaim {
	return ledger.ProductionClaim{
		AmountWh:     52000,
		Date:         "2025-02-14",
		Method:       "meter",
		EnergySource: "solar",
		City:         1,
	}
}

func TestRedisStoreIsWriteOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	claim := sampleClaim()
	claim.Submitter = producer
	rec := Record{Hash: ledger.HashClaim(claim), Claim: claim, SubmittedAt: time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)}

	require.NoError(t, store.Put(ctx, rec))
	require.ErrorIs(t, store.Put(ctx, rec), ErrDuplicateClaim)

	got, err := store.Get(ctx, rec.Hash)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = store.Get(ctx, ledger.ClaimHash{1})
	require.ErrorIs(t, err, ErrClaimNotFound)

	hashes, err := store.ListBySubmitter(ctx, producer, 10)
	require.NoError(t, err)
	assert.Equal(t, []ledger.ClaimHash{rec.Hash}, hashes)
}

func TestSubmitAndTrackStatus(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	svc := NewService(newTestStore(t), l)
	svc.WithNow(func() time.Time { return time.Date(2025, 2, 15, 8, 0, 0, 0, time.UTC) })

	rec, err := svc.Submit(ctx, producer, sampleClaim())
	require.NoError(t, err)
	assert.Equal(t, producer, rec.Claim.Submitter)

	view, err := svc.Status(ctx, rec.Hash)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, view.Status)
	assert.Nil(t, view.Certification)

	_, err = l.Certify(ctx, city, rec.Hash, 1)
	require.NoError(t, err)
	view, err = svc.Status(ctx, rec.Hash)
	require.NoError(t, err)
	assert.Equal(t, StatusCertified, view.Status)
	require.NotNil(t, view.Certification)
	assert.Equal(t, city, view.Certification.Certifier)

	_, err = l.Issue(ctx, city, producer, 52, rec.Hash)
	require.NoError(t, err)
	view, err = svc.Status(ctx, rec.Hash)
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, view.Status)

	_, err = svc.Submit(ctx, producer, sampleClaim())
	require.ErrorIs(t, err, ErrDuplicateClaim)
}

func TestSubmitRequiresProducerOfCity(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	svc := NewService(newTestStore(t), l)

	_, err := svc.Submit(ctx, city, sampleClaim())
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	foreign := sampleClaim()
	foreign.City = 2
	_, err = svc.Submit(ctx, producer, foreign)
	require.ErrorIs(t, err, ledger.ErrJurisdictionMismatch)

	impersonated := sampleClaim()
	impersonated.Submitter = "0xsomeoneelse"
	_, err = svc.Submit(ctx, producer, impersonated)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	invalid := sampleClaim()
	invalid.Date = "yesterday"
	_, err = svc.Submit(ctx, producer, invalid)
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
}
