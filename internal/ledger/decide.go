package ledger

import "fmt"

// DefaultMaxIssuePerCall caps a single issuance batch.
const DefaultMaxIssuePerCall uint32 = 10000

// Policy carries tunable limits for decisions.
type Policy struct {
	MaxIssuePerCall uint32
}

func (p Policy) maxIssue() uint32 {
	if p.MaxIssuePerCall == 0 {
		return DefaultMaxIssuePerCall
	}
	return p.MaxIssuePerCall
}

// Decide evaluates cmd against the current state without mutating it and
// returns the event that applying it would produce. Every precondition is
// checked here; Apply never rejects an event Decide returned.
func (s *State) Decide(cmd Command, policy Policy) (Event, error) {
	switch c := normalize(cmd).(type) {
	case AssignRole:
		return s.decideAssignRole(c)
	case AppointCountryAdmin:
		return s.decideCountryAdmin(c)
	case AppointStateAdmin:
		return s.decideStateAdmin(c)
	case AppointCityAdmin:
		return s.decideCityAdmin(c)
	case RegisterProducer:
		return s.decideProducer(c)
	case RegisterBuyer:
		return s.decideBuyer(c)
	case Certify:
		return s.decideCertify(c)
	case Issue:
		return s.decideIssue(c, policy)
	case Transfer:
		return s.decideTransfer(c)
	case Retire:
		return s.decideRetire(c)
	default:
		return nil, fmt.Errorf("%w: unsupported command %T", ErrInvalidInput, cmd)
	}
}

func (s *State) decideAssignRole(c AssignRole) (Event, error) {
	switch c.Role {
	case RoleRootAuthority:
		return nil, fmt.Errorf("%w: root authority is fixed at genesis", ErrUnauthorized)
	case RoleCountryAdmin:
		return s.decideCountryAdmin(AppointCountryAdmin{Caller: c.Caller, Target: c.Principal})
	case RoleStateAdmin:
		return s.decideStateAdmin(AppointStateAdmin{Caller: c.Caller, Target: c.Principal, Country: c.Jurisdiction.Country})
	case RoleCityAdmin:
		return s.decideCityAdmin(AppointCityAdmin{Caller: c.Caller, Target: c.Principal, State: c.Jurisdiction.State})
	case RoleProducer:
		return s.decideProducer(RegisterProducer{Caller: c.Caller, Target: c.Principal, City: c.Jurisdiction.City})
	case RoleBuyer:
		if c.Caller != c.Principal {
			return nil, fmt.Errorf("%w: buyers register themselves", ErrUnauthorized)
		}
		return s.decideBuyer(RegisterBuyer{Caller: c.Caller})
	case RoleNone:
		return nil, fmt.Errorf("%w: role required", ErrInvalidInput)
	default:
		return nil, fmt.Errorf("%w: unknown role %s", ErrInvalidInput, c.Role)
	}
}

func (s *State) decideCountryAdmin(c AppointCountryAdmin) (Event, error) {
	if c.Target.IsZero() {
		return nil, fmt.Errorf("%w: target principal required", ErrInvalidInput)
	}
	if s.roleOf(c.Caller) != RoleRootAuthority {
		return nil, fmt.Errorf("%w: only the root authority appoints country admins", ErrUnauthorized)
	}
	if err := compatible(s.roleOf(c.Target), RoleCountryAdmin); err != nil {
		return nil, err
	}
	return RoleAssigned{
		Principal:    c.Target,
		Role:         RoleCountryAdmin,
		Jurisdiction: Jurisdiction{Country: s.places.lastCountry + 1},
		AssignedBy:   c.Caller,
	}, nil
}

func (s *State) decideStateAdmin(c AppointStateAdmin) (Event, error) {
	if c.Target.IsZero() {
		return nil, fmt.Errorf("%w: target principal required", ErrInvalidInput)
	}
	caller := s.principals[c.Caller]
	if caller.role != RoleCountryAdmin {
		return nil, fmt.Errorf("%w: only country admins appoint state admins", ErrUnauthorized)
	}
	if caller.jurisdiction.Country != c.Country || !s.places.hasCountry(c.Country) {
		return nil, fmt.Errorf("%w: caller administers country %d, not %d", ErrJurisdictionMismatch, caller.jurisdiction.Country, c.Country)
	}
	if err := compatible(s.roleOf(c.Target), RoleStateAdmin); err != nil {
		return nil, err
	}
	return RoleAssigned{
		Principal:    c.Target,
		Role:         RoleStateAdmin,
		Jurisdiction: Jurisdiction{Country: c.Country, State: s.places.lastState + 1},
		AssignedBy:   c.Caller,
	}, nil
}

func (s *State) decideCityAdmin(c AppointCityAdmin) (Event, error) {
	if c.Target.IsZero() {
		return nil, fmt.Errorf("%w: target principal required", ErrInvalidInput)
	}
	caller := s.principals[c.Caller]
	if caller.role != RoleStateAdmin {
		return nil, fmt.Errorf("%w: only state admins appoint city admins", ErrUnauthorized)
	}
	path, ok := s.places.pathOfState(c.State)
	if caller.jurisdiction.State != c.State || !ok {
		return nil, fmt.Errorf("%w: caller administers state %d, not %d", ErrJurisdictionMismatch, caller.jurisdiction.State, c.State)
	}
	if err := compatible(s.roleOf(c.Target), RoleCityAdmin); err != nil {
		return nil, err
	}
	path.City = s.places.lastCity + 1
	return RoleAssigned{
		Principal:    c.Target,
		Role:         RoleCityAdmin,
		Jurisdiction: path,
		AssignedBy:   c.Caller,
	}, nil
}

func (s *State) decideProducer(c RegisterProducer) (Event, error) {
	if c.Target.IsZero() {
		return nil, fmt.Errorf("%w: target principal required", ErrInvalidInput)
	}
	caller := s.principals[c.Caller]
	if caller.role != RoleCityAdmin {
		return nil, fmt.Errorf("%w: only city admins register producers", ErrUnauthorized)
	}
	path, ok := s.places.pathOfCity(c.City)
	if caller.jurisdiction.City != c.City || !ok {
		return nil, fmt.Errorf("%w: caller administers city %d, not %d", ErrJurisdictionMismatch, caller.jurisdiction.City, c.City)
	}
	if s.roleOf(c.Target).IsAdmin() {
		return nil, ErrSelfAppointmentForbidden
	}
	if err := compatible(s.roleOf(c.Target), RoleProducer); err != nil {
		return nil, err
	}
	return RoleAssigned{
		Principal:    c.Target,
		Role:         RoleProducer,
		Jurisdiction: path,
		AssignedBy:   c.Caller,
	}, nil
}

func (s *State) decideBuyer(c RegisterBuyer) (Event, error) {
	if c.Caller.IsZero() {
		return nil, fmt.Errorf("%w: caller required", ErrInvalidInput)
	}
	if err := compatible(s.roleOf(c.Caller), RoleBuyer); err != nil {
		return nil, err
	}
	return RoleAssigned{
		Principal:  c.Caller,
		Role:       RoleBuyer,
		AssignedBy: c.Caller,
	}, nil
}

func (s *State) decideCertify(c Certify) (Event, error) {
	if c.ClaimHash.IsZero() {
		return nil, fmt.Errorf("%w: claim hash required", ErrInvalidInput)
	}
	caller := s.principals[c.Caller]
	if caller.role != RoleCityAdmin || caller.jurisdiction.City != c.City {
		return nil, ErrNotACertifier
	}
	if _, exists := s.certs[c.ClaimHash]; exists {
		return nil, ErrAlreadyCertified
	}
	return Certified{
		ClaimHash: c.ClaimHash,
		Certifier: c.Caller,
		Origin:    caller.jurisdiction,
	}, nil
}

// decideIssue checks self-issuance first so that to == caller is rejected
// with the same kind regardless of the rest of the request.
func (s *State) decideIssue(c Issue, policy Policy) (Event, error) {
	if c.To == c.Caller {
		return nil, ErrSelfIssuance
	}
	cert, ok := s.certs[c.ClaimHash]
	if !ok {
		return nil, ErrNotCertified
	}
	if cert.Certifier != c.Caller {
		return nil, fmt.Errorf("%w: claim was certified by another principal", ErrUnauthorized)
	}
	if cert.Status != CertificationLive {
		return nil, ErrCertificationSpent
	}
	recipient := s.principals[c.To]
	if recipient.role != RoleProducer {
		return nil, ErrRecipientNotProducer
	}
	if recipient.jurisdiction.City != cert.City {
		return nil, fmt.Errorf("%w: producer is registered in city %d, claim in %d", ErrJurisdictionMismatch, recipient.jurisdiction.City, cert.City)
	}
	if c.Amount == 0 || c.Amount > policy.maxIssue() {
		return nil, fmt.Errorf("%w: %d not in 1..%d", ErrAmountOutOfRange, c.Amount, policy.maxIssue())
	}
	origin, _ := s.places.pathOfCity(cert.City)
	first := s.lastUnitID() + 1
	return Issued{
		Range:     IDRange{First: first, Last: first + UnitID(c.Amount) - 1},
		To:        c.To,
		IssuedBy:  c.Caller,
		ClaimHash: c.ClaimHash,
		Origin:    origin,
	}, nil
}

func (s *State) decideTransfer(c Transfer) (Event, error) {
	u, ok := s.unit(c.Unit)
	if !ok {
		return nil, ErrUnitNotFound
	}
	if c.Caller != c.From || c.From != u.Owner {
		return nil, ErrNotOwner
	}
	if u.Status == UnitStatusRetired {
		return nil, ErrUnitRetired
	}
	if c.To.IsZero() {
		return nil, fmt.Errorf("%w: recipient required", ErrInvalidInput)
	}
	fromRole, toRole := s.roleOf(c.From), s.roleOf(c.To)
	if (toRole == RoleBuyer || fromRole == RoleBuyer) && fromRole != RoleProducer {
		return nil, ErrSellerNotProducer
	}
	return Transferred{Unit: c.Unit, From: c.From, To: c.To}, nil
}

func (s *State) decideRetire(c Retire) (Event, error) {
	u, ok := s.unit(c.Unit)
	if !ok {
		return nil, ErrUnitNotFound
	}
	if c.Caller != u.Owner {
		return nil, ErrNotOwner
	}
	if s.roleOf(c.Caller) != RoleBuyer {
		return nil, ErrRetirerNotBuyer
	}
	if u.Status == UnitStatusRetired {
		return nil, ErrAlreadyRetired
	}
	return Retired{Unit: c.Unit, By: c.Caller, Owner: u.Owner}, nil
}
