package ledger

import (
	"fmt"
	"time"
)

// UnitID is the global sequence number of a credit unit.
type UnitID uint64

// UnitStatus enumerates credit unit lifecycle values.
type UnitStatus string

const (
	UnitStatusActive  UnitStatus = "ACTIVE"
	UnitStatusRetired UnitStatus = "RETIRED"
)

// IDRange is an inclusive run of unit ids.
type IDRange struct {
	First UnitID `json:"first"`
	Last  UnitID `json:"last"`
}

// Len returns the number of ids in the range.
func (r IDRange) Len() uint64 {
	if r.Last < r.First {
		return 0
	}
	return uint64(r.Last-r.First) + 1
}

// Contains reports whether id lies in the range.
func (r IDRange) Contains(id UnitID) bool {
	return id >= r.First && id <= r.Last
}

func (r IDRange) String() string {
	return fmt.Sprintf("#%d-#%d", r.First, r.Last)
}

// CreditUnit is one indivisible credit.
type CreditUnit struct {
	ID        UnitID       `json:"id"`
	Owner     Principal    `json:"owner"`
	Origin    Jurisdiction `json:"origin"`
	ClaimHash ClaimHash    `json:"claim_hash"`
	IssuedAt  time.Time    `json:"issued_at"`
	Status    UnitStatus   `json:"status"`
	RetiredBy Principal    `json:"retired_by,omitempty"`
	RetiredAt *time.Time   `json:"retired_at,omitempty"`
}

// Stats summarises ledger contents.
type Stats struct {
	Principals          map[string]int `json:"principals"`
	UnitsActive         int            `json:"units_active"`
	UnitsRetired        int            `json:"units_retired"`
	CertificationsLive  int            `json:"certifications_live"`
	CertificationsSpent int            `json:"certifications_consumed"`
	LastUnitID          UnitID         `json:"last_unit_id"`
	Countries           int            `json:"countries"`
	States              int            `json:"states"`
	Cities              int            `json:"cities"`
	JournalLength       uint64         `json:"journal_length"`
}
