package ledger

import (
	"errors"
	"fmt"
)

// Failure kinds returned by ledger operations. Callers match them with errors.Is.
var (
	ErrUnauthorized             = errors.New("ledger: unauthorized")
	ErrRoleConflict             = errors.New("ledger: role conflict")
	ErrJurisdictionMismatch     = errors.New("ledger: jurisdiction mismatch")
	ErrAlreadyCertified         = errors.New("ledger: claim already certified")
	ErrAlreadyRetired           = errors.New("ledger: unit already retired")
	ErrAlreadyAssigned          = errors.New("ledger: role already assigned")
	ErrSelfIssuance             = errors.New("ledger: issuer may not mint to itself")
	ErrSelfAppointmentForbidden = errors.New("ledger: admins may not be registered as producers")
	ErrAmountOutOfRange         = errors.New("ledger: amount out of range")
	ErrNotOwner                 = errors.New("ledger: caller does not own unit")
	ErrUnitRetired              = errors.New("ledger: unit is retired")
	ErrSellerNotProducer        = errors.New("ledger: seller is not a producer")
	ErrRecipientNotProducer     = errors.New("ledger: recipient is not a producer")
	ErrUnitNotFound             = errors.New("ledger: unit not found")
	ErrInvalidInput             = errors.New("ledger: invalid input")
)

// Refinements of ErrUnauthorized.
var (
	ErrNotACertifier      = fmt.Errorf("%w: caller is not the certifier for this city", ErrUnauthorized)
	ErrRetirerNotBuyer    = fmt.Errorf("%w: only buyers may retire credits", ErrUnauthorized)
	ErrCertificationSpent = fmt.Errorf("%w: certification already consumed", ErrUnauthorized)
	ErrNotCertified       = fmt.Errorf("%w: claim has no certification", ErrUnauthorized)
)

var rejectionKinds = []error{
	ErrUnauthorized, ErrRoleConflict, ErrJurisdictionMismatch, ErrAlreadyCertified,
	ErrAlreadyRetired, ErrAlreadyAssigned, ErrSelfIssuance, ErrSelfAppointmentForbidden,
	ErrAmountOutOfRange, ErrNotOwner, ErrUnitRetired, ErrSellerNotProducer,
	ErrRecipientNotProducer, ErrUnitNotFound, ErrInvalidInput,
}

// IsRejection reports whether err is a rule rejection decided by the ledger,
// as opposed to a store or transport failure.
func IsRejection(err error) bool {
	for _, kind := range rejectionKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
