package ledger

// Command is a request to change ledger state on behalf of an authenticated caller.
type Command interface {
	Actor() Principal
	name() string
}

// AssignRole is the generic registry entry point. It is routed through the
// appointment path matching Role, so hierarchy checks always apply.
type AssignRole struct {
	Caller       Principal
	Principal    Principal
	Role         Role
	Jurisdiction Jurisdiction
}

// AppointCountryAdmin is issued by the RootAuthority.
type AppointCountryAdmin struct {
	Caller Principal
	Target Principal
}

// AppointStateAdmin is issued by the CountryAdmin of Country.
type AppointStateAdmin struct {
	Caller  Principal
	Target  Principal
	Country CountryID
}

// AppointCityAdmin is issued by the StateAdmin of State.
type AppointCityAdmin struct {
	Caller Principal
	Target Principal
	State  StateID
}

// RegisterProducer is issued by the CityAdmin of City.
type RegisterProducer struct {
	Caller Principal
	Target Principal
	City   CityID
}

// RegisterBuyer is self-service.
type RegisterBuyer struct {
	Caller Principal
}

// Certify attests a claim for City.
type Certify struct {
	Caller    Principal
	ClaimHash ClaimHash
	City      CityID
}

// Issue mints Amount units to a producer against a live certification.
type Issue struct {
	Caller    Principal
	To        Principal
	Amount    uint32
	ClaimHash ClaimHash
}

// Transfer moves an active unit between owners.
type Transfer struct {
	Caller Principal
	Unit   UnitID
	From   Principal
	To     Principal
}

// Retire permanently removes a unit from circulation.
type Retire struct {
	Caller Principal
	Unit   UnitID
}

func (c AssignRole) Actor() Principal          { return c.Caller }
func (c AppointCountryAdmin) Actor() Principal { return c.Caller }
func (c AppointStateAdmin) Actor() Principal   { return c.Caller }
func (c AppointCityAdmin) Actor() Principal    { return c.Caller }
func (c RegisterProducer) Actor() Principal    { return c.Caller }
func (c RegisterBuyer) Actor() Principal       { return c.Caller }
func (c Certify) Actor() Principal             { return c.Caller }
func (c Issue) Actor() Principal               { return c.Caller }
func (c Transfer) Actor() Principal            { return c.Caller }
func (c Retire) Actor() Principal              { return c.Caller }

func (AssignRole) name() string          { return "assign_role" }
func (AppointCountryAdmin) name() string { return "appoint_country_admin" }
func (AppointStateAdmin) name() string   { return "appoint_state_admin" }
func (AppointCityAdmin) name() string    { return "appoint_city_admin" }
func (RegisterProducer) name() string    { return "register_producer" }
func (RegisterBuyer) name() string       { return "register_buyer" }
func (Certify) name() string             { return "certify" }
func (Issue) name() string               { return "issue" }
func (Transfer) name() string            { return "transfer" }
func (Retire) name() string              { return "retire" }

// normalize canonicalises every principal carried by the command.
func normalize(cmd Command) Command {
	switch c := cmd.(type) {
	case AssignRole:
		c.Caller, c.Principal = c.Caller.Normalize(), c.Principal.Normalize()
		return c
	case AppointCountryAdmin:
		c.Caller, c.Target = c.Caller.Normalize(), c.Target.Normalize()
		return c
	case AppointStateAdmin:
		c.Caller, c.Target = c.Caller.Normalize(), c.Target.Normalize()
		return c
	case AppointCityAdmin:
		c.Caller, c.Target = c.Caller.Normalize(), c.Target.Normalize()
		return c
	case RegisterProducer:
		c.Caller, c.Target = c.Caller.Normalize(), c.Target.Normalize()
		return c
	case RegisterBuyer:
		c.Caller = c.Caller.Normalize()
		return c
	case Certify:
		c.Caller = c.Caller.Normalize()
		return c
	case Issue:
		c.Caller, c.To = c.Caller.Normalize(), c.To.Normalize()
		return c
	case Transfer:
		c.Caller, c.From, c.To = c.Caller.Normalize(), c.From.Normalize(), c.To.Normalize()
		return c
	case Retire:
		c.Caller = c.Caller.Normalize()
		return c
	default:
		return cmd
	}
}
