package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carbonledger/carbonledger/internal/ledger"
)

// Status reports how far a claim has progressed through the ledger.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCertified Status = "CERTIFIED"
	StatusIssued    Status = "ISSUED"
)

// Registry is the read side of the ledger the service consults.
type Registry interface {
	RoleOf(p ledger.Principal) ledger.Role
	JurisdictionOf(p ledger.Principal) (ledger.Jurisdiction, bool)
	CertificationOf(hash ledger.ClaimHash) (ledger.CertificationRecord, bool)
}

// View combines the stored payload with its ledger status.
type View struct {
	Record
	Status        Status                      `json:"status"`
	Certification *ledger.CertificationRecord `json:"certification,omitempty"`
}

// Service accepts claim submissions from producers.
type Service struct {
	store    Store
	registry Registry
	now      func() time.Time
}

// NewService constructs the claims service.
func NewService(store Store, registry Registry) *Service {
	return &Service{store: store, registry: registry, now: time.Now}
}

// WithNow overrides the clock used for submission timestamps.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Submit stores a claim on behalf of the producer that made it and returns
// the record keyed by its hash.
func (s *Service) Submit(ctx context.Context, caller ledger.Principal, claim ledger.ProductionClaim) (Record, error) {
	if s.store == nil || s.registry == nil {
		return Record{}, errors.New("claims: service not configured")
	}
	caller = caller.Normalize()
	if claim.Submitter.IsZero() {
		claim.Submitter = caller
	}
	claim.Submitter = claim.Submitter.Normalize()
	if claim.Submitter != caller {
		return Record{}, fmt.Errorf("%w: claims are submitted by their producer", ledger.ErrUnauthorized)
	}
	if err := claim.Validate(); err != nil {
		return Record{}, err
	}
	if s.registry.RoleOf(caller) != ledger.RoleProducer {
		return Record{}, fmt.Errorf("%w: only producers submit claims", ledger.ErrUnauthorized)
	}
	if j, _ := s.registry.JurisdictionOf(caller); j.City != claim.City {
		return Record{}, fmt.Errorf("%w: producer is registered in city %d", ledger.ErrJurisdictionMismatch, j.City)
	}
	rec := Record{Hash: ledger.HashClaim(claim), Claim: claim, SubmittedAt: s.now().UTC()}
	if err := s.store.Put(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Status loads a claim and derives its progress from the certification log.
func (s *Service) Status(ctx context.Context, hash ledger.ClaimHash) (View, error) {
	if s.store == nil || s.registry == nil {
		return View{}, errors.New("claims: service not configured")
	}
	rec, err := s.store.Get(ctx, hash)
	if err != nil {
		return View{}, err
	}
	view := View{Record: rec, Status: StatusPending}
	if cert, ok := s.registry.CertificationOf(hash); ok {
		view.Certification = &cert
		view.Status = StatusCertified
		if cert.Status == ledger.CertificationConsumed {
			view.Status = StatusIssued
		}
	}
	return view, nil
}

// Submitted lists recent claim hashes of a producer.
func (s *Service) Submitted(ctx context.Context, submitter ledger.Principal, limit int64) ([]ledger.ClaimHash, error) {
	if s.store == nil {
		return nil, errors.New("claims: service not configured")
	}
	return s.store.ListBySubmitter(ctx, submitter, limit)
}
