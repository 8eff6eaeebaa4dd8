package ledger

// CountryID identifies a country node.
type CountryID uint64

// StateID identifies a state node.
type StateID uint64

// CityID identifies a city node.
type CityID uint64

// Jurisdiction is a path in the Country → State → City tree. Lower levels are
// zero when the principal is scoped higher up (a CountryAdmin has only Country).
type Jurisdiction struct {
	Country CountryID `json:"country_id,omitempty"`
	State   StateID   `json:"state_id,omitempty"`
	City    CityID    `json:"city_id,omitempty"`
}

// IsZero reports whether no level is set.
func (j Jurisdiction) IsZero() bool {
	return j.Country == 0 && j.State == 0 && j.City == 0
}

// jurisdictions stores parent pointers and the per-level id counters.
// Parents are written once when a node is allocated and never change.
type jurisdictions struct {
	countries   map[CountryID]struct{}
	stateParent map[StateID]CountryID
	cityParent  map[CityID]StateID
	lastCountry CountryID
	lastState   StateID
	lastCity    CityID
}

func newJurisdictions() jurisdictions {
	return jurisdictions{
		countries:   make(map[CountryID]struct{}),
		stateParent: make(map[StateID]CountryID),
		cityParent:  make(map[CityID]StateID),
	}
}

func (j *jurisdictions) hasCountry(id CountryID) bool {
	_, ok := j.countries[id]
	return ok
}

func (j *jurisdictions) hasState(id StateID) bool {
	_, ok := j.stateParent[id]
	return ok
}

// pathOfCity walks the parent pointers up from a city.
func (j *jurisdictions) pathOfCity(id CityID) (Jurisdiction, bool) {
	state, ok := j.cityParent[id]
	if !ok {
		return Jurisdiction{}, false
	}
	country := j.stateParent[state]
	return Jurisdiction{Country: country, State: state, City: id}, true
}

// pathOfState walks up from a state.
func (j *jurisdictions) pathOfState(id StateID) (Jurisdiction, bool) {
	country, ok := j.stateParent[id]
	if !ok {
		return Jurisdiction{}, false
	}
	return Jurisdiction{Country: country, State: id}, true
}

// register records the nodes named by path. It is idempotent for nodes that
// already exist and advances counters so replay reproduces allocation.
func (j *jurisdictions) register(path Jurisdiction) {
	if path.Country != 0 {
		j.countries[path.Country] = struct{}{}
		if path.Country > j.lastCountry {
			j.lastCountry = path.Country
		}
	}
	if path.State != 0 {
		if _, ok := j.stateParent[path.State]; !ok {
			j.stateParent[path.State] = path.Country
		}
		if path.State > j.lastState {
			j.lastState = path.State
		}
	}
	if path.City != 0 {
		if _, ok := j.cityParent[path.City]; !ok {
			j.cityParent[path.City] = path.State
		}
		if path.City > j.lastCity {
			j.lastCity = path.City
		}
	}
}
