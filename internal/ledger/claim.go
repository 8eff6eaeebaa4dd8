package ledger

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
	"golang.org/x/text/unicode/norm"
)

// ClaimHash is the content address of a production claim.
type ClaimHash [32]byte

// String renders the hash as 0x-prefixed lowercase hex.
func (h ClaimHash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// IsZero reports whether the hash is unset.
func (h ClaimHash) IsZero() bool {
	return h == ClaimHash{}
}

// MarshalText implements encoding.TextMarshaler.
func (h ClaimHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *ClaimHash) UnmarshalText(text []byte) error {
	parsed, err := ParseClaimHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseClaimHash decodes a hex hash with or without the 0x prefix.
func ParseClaimHash(raw string) (ClaimHash, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(strings.ToLower(raw)), "0x")
	if len(raw) != 64 {
		return ClaimHash{}, fmt.Errorf("%w: claim hash must be 32 bytes", ErrInvalidInput)
	}
	var h ClaimHash
	if _, err := hex.Decode(h[:], []byte(raw)); err != nil {
		return ClaimHash{}, fmt.Errorf("%w: claim hash: %v", ErrInvalidInput, err)
	}
	return h, nil
}

// ClaimDateLayout is the calendar date format used inside claims.
const ClaimDateLayout = "2006-01-02"

// ProductionClaim is the payload a producer submits for certification.
type ProductionClaim struct {
	Submitter    Principal `json:"submitter"`
	AmountWh     uint64    `json:"amount_wh"`
	Date         string    `json:"date"`
	Method       string    `json:"method"`
	EnergySource string    `json:"energy_source"`
	City         CityID    `json:"city_id"`
}

// Validate checks the fields that feed the hash.
func (c ProductionClaim) Validate() error {
	if c.Submitter.IsZero() {
		return fmt.Errorf("%w: submitter required", ErrInvalidInput)
	}
	if c.AmountWh == 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if _, err := time.Parse(ClaimDateLayout, c.Date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	if strings.TrimSpace(c.Method) == "" {
		return fmt.Errorf("%w: method required", ErrInvalidInput)
	}
	if strings.TrimSpace(c.EnergySource) == "" {
		return fmt.Errorf("%w: energy source required", ErrInvalidInput)
	}
	if c.City == 0 {
		return fmt.Errorf("%w: city required", ErrInvalidInput)
	}
	return nil
}

// HashClaim computes the Keccak-256 digest of the canonical claim encoding.
// Text fields are trimmed, NFC-normalised and length prefixed.
func HashClaim(c ProductionClaim) ClaimHash {
	d := sha3.NewLegacyKeccak256()
	writeField := func(s string) {
		s = norm.NFC.String(strings.TrimSpace(s))
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(s)))
		d.Write(n[:])
		d.Write([]byte(s))
	}
	writeUint := func(v uint64) {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v)
		d.Write(b[:])
	}
	writeField(string(c.Submitter.Normalize()))
	writeUint(c.AmountWh)
	writeField(c.Date)
	writeField(strings.ToLower(c.Method))
	writeField(strings.ToLower(c.EnergySource))
	writeUint(uint64(c.City))
	var h ClaimHash
	copy(h[:], d.Sum(nil))
	return h
}

// CertificationStatus tracks whether a certification can still back an issuance.
type CertificationStatus string

const (
	CertificationLive     CertificationStatus = "LIVE"
	CertificationConsumed CertificationStatus = "CONSUMED"
)

// CertificationRecord binds a claim hash to the CityAdmin that certified it.
type CertificationRecord struct {
	ClaimHash   ClaimHash           `json:"claim_hash"`
	Certifier   Principal           `json:"certifier"`
	City        CityID              `json:"city_id"`
	Status      CertificationStatus `json:"status"`
	CertifiedAt time.Time           `json:"certified_at"`
	ConsumedAt  *time.Time          `json:"consumed_at,omitempty"`
}
