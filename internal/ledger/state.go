package ledger

import (
	"fmt"
	"sort"
)

type principalRecord struct {
	role         Role
	jurisdiction Jurisdiction
}

// State owns every ledger table. It is mutated only by apply, which replays
// events produced by the decide functions, so state is always a pure fold of
// the journal.
type State struct {
	principals map[Principal]principalRecord
	root       Principal
	places     jurisdictions
	certs      map[ClaimHash]*CertificationRecord
	units      []CreditUnit
	owned      map[Principal]map[UnitID]struct{}
	seq        uint64
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		principals: make(map[Principal]principalRecord),
		places:     newJurisdictions(),
		certs:      make(map[ClaimHash]*CertificationRecord),
		owned:      make(map[Principal]map[UnitID]struct{}),
	}
}

// Seq is the journal position of the last applied event.
func (s *State) Seq() uint64 {
	return s.seq
}

// Root returns the genesis RootAuthority.
func (s *State) Root() Principal {
	return s.root
}

func (s *State) roleOf(p Principal) Role {
	return s.principals[p].role
}

func (s *State) jurisdictionOf(p Principal) (Jurisdiction, bool) {
	rec, ok := s.principals[p]
	if !ok {
		return Jurisdiction{}, false
	}
	return rec.jurisdiction, true
}

func (s *State) lastUnitID() UnitID {
	return UnitID(len(s.units))
}

func (s *State) unit(id UnitID) (*CreditUnit, bool) {
	if id == 0 || uint64(id) > uint64(len(s.units)) {
		return nil, false
	}
	return &s.units[id-1], true
}

// Apply folds one journal entry into the state. Entries must arrive in
// journal order; an entry that does not fit the current state means the
// journal is corrupt.
func (s *State) Apply(env Envelope) error {
	if env.Seq != s.seq+1 {
		return fmt.Errorf("ledger: journal gap: have seq %d, got %d", s.seq, env.Seq)
	}
	switch ev := env.Event.(type) {
	case RoleAssigned:
		if ev.Principal.IsZero() {
			return fmt.Errorf("ledger: seq %d: role assigned to empty principal", env.Seq)
		}
		if s.roleOf(ev.Principal) != RoleNone {
			return fmt.Errorf("ledger: seq %d: %s already holds %s", env.Seq, ev.Principal, s.roleOf(ev.Principal))
		}
		s.principals[ev.Principal] = principalRecord{role: ev.Role, jurisdiction: ev.Jurisdiction}
		s.places.register(ev.Jurisdiction)
		if ev.Role == RoleRootAuthority {
			s.root = ev.Principal
		}
	case Certified:
		if _, exists := s.certs[ev.ClaimHash]; exists {
			return fmt.Errorf("ledger: seq %d: claim %s certified twice", env.Seq, ev.ClaimHash)
		}
		s.certs[ev.ClaimHash] = &CertificationRecord{
			ClaimHash:   ev.ClaimHash,
			Certifier:   ev.Certifier,
			City:        ev.Origin.City,
			Status:      CertificationLive,
			CertifiedAt: env.At,
		}
	case Issued:
		cert, ok := s.certs[ev.ClaimHash]
		if !ok || cert.Status != CertificationLive {
			return fmt.Errorf("ledger: seq %d: issuance against unusable certification %s", env.Seq, ev.ClaimHash)
		}
		if ev.Range.First != s.lastUnitID()+1 || ev.Range.Len() == 0 {
			return fmt.Errorf("ledger: seq %d: non-contiguous range %s after #%d", env.Seq, ev.Range, s.lastUnitID())
		}
		at := env.At
		cert.Status = CertificationConsumed
		cert.ConsumedAt = &at
		for id := ev.Range.First; id <= ev.Range.Last; id++ {
			s.units = append(s.units, CreditUnit{
				ID:        id,
				Owner:     ev.To,
				Origin:    ev.Origin,
				ClaimHash: ev.ClaimHash,
				IssuedAt:  env.At,
				Status:    UnitStatusActive,
			})
			s.own(ev.To, id)
		}
	case Transferred:
		u, ok := s.unit(ev.Unit)
		if !ok || u.Status != UnitStatusActive || u.Owner != ev.From {
			return fmt.Errorf("ledger: seq %d: invalid transfer of #%d", env.Seq, ev.Unit)
		}
		s.disown(ev.From, ev.Unit)
		u.Owner = ev.To
		s.own(ev.To, ev.Unit)
	case Retired:
		u, ok := s.unit(ev.Unit)
		if !ok || u.Status != UnitStatusActive {
			return fmt.Errorf("ledger: seq %d: invalid retirement of #%d", env.Seq, ev.Unit)
		}
		at := env.At
		u.Status = UnitStatusRetired
		u.RetiredBy = ev.By
		u.RetiredAt = &at
	default:
		return fmt.Errorf("ledger: seq %d: unsupported event %T", env.Seq, env.Event)
	}
	s.seq = env.Seq
	return nil
}

func (s *State) own(p Principal, id UnitID) {
	set, ok := s.owned[p]
	if !ok {
		set = make(map[UnitID]struct{})
		s.owned[p] = set
	}
	set[id] = struct{}{}
}

func (s *State) disown(p Principal, id UnitID) {
	if set, ok := s.owned[p]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(s.owned, p)
		}
	}
}

func (s *State) unitsOwnedBy(p Principal) []CreditUnit {
	set := s.owned[p]
	ids := make([]UnitID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]CreditUnit, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.units[id-1])
	}
	return out
}

func (s *State) unitsInRange(r IDRange) []CreditUnit {
	last := r.Last
	if last > s.lastUnitID() {
		last = s.lastUnitID()
	}
	first := r.First
	if first == 0 {
		first = 1
	}
	if first > last {
		return nil
	}
	out := make([]CreditUnit, 0, uint64(last-first)+1)
	out = append(out, s.units[first-1:last]...)
	return out
}

// Stats summarises the folded journal.
func (s *State) Stats() Stats {
	return s.stats()
}

func (s *State) stats() Stats {
	st := Stats{
		Principals:    make(map[string]int),
		LastUnitID:    s.lastUnitID(),
		Countries:     len(s.places.countries),
		States:        len(s.places.stateParent),
		Cities:        len(s.places.cityParent),
		JournalLength: s.seq,
	}
	for _, rec := range s.principals {
		st.Principals[rec.role.String()]++
	}
	for _, u := range s.units {
		if u.Status == UnitStatusRetired {
			st.UnitsRetired++
		} else {
			st.UnitsActive++
		}
	}
	for _, c := range s.certs {
		if c.Status == CertificationLive {
			st.CertificationsLive++
		} else {
			st.CertificationsSpent++
		}
	}
	return st
}
