package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Observer receives operation outcomes for metrics.
type Observer interface {
	ObserveOperation(op string, err error)
	ObserveIssued(units uint64)
}

// Config describes the genesis and limits of a ledger.
type Config struct {
	Root   Principal
	Policy Policy
}

// Ledger is the single sequential authority over ledger state. Mutations are
// serialised; queries read a consistent snapshot under a shared lock.
type Ledger struct {
	mu       sync.RWMutex
	state    *State
	store    Store
	sink     EventSink
	policy   Policy
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
	halted   error
}

// Open replays the journal held by store and, for an empty journal, writes
// the genesis RootAuthority assignment.
func Open(ctx context.Context, cfg Config, store Store, sink EventSink, logger *slog.Logger) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("ledger: store required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: load journal: %w", err)
	}
	state, err := Replay(entries)
	if err != nil {
		return nil, err
	}
	l := &Ledger{
		state:  state,
		store:  store,
		sink:   sink,
		policy: cfg.Policy,
		logger: logger,
		now:    time.Now,
	}
	root := cfg.Root.Normalize()
	switch {
	case state.Seq() == 0:
		if root.IsZero() {
			return nil, errors.New("ledger: root authority required for an empty journal")
		}
		genesis := Envelope{
			ID:    uuid.New(),
			Seq:   1,
			At:    l.now().UTC(),
			Event: RoleAssigned{Principal: root, Role: RoleRootAuthority},
		}
		if err := l.commit(ctx, genesis); err != nil {
			return nil, err
		}
		l.publish(ctx, genesis)
	case !root.IsZero() && state.Root() != root:
		return nil, fmt.Errorf("ledger: journal root %s does not match configured root %s", state.Root(), root)
	}
	logger.Info("ledger opened",
		slog.Uint64("seq", state.Seq()),
		slog.String("root", state.Root().String()),
		slog.Uint64("last_unit", uint64(state.lastUnitID())),
	)
	return l, nil
}

// WithNow overrides the clock.
func (l *Ledger) WithNow(now func() time.Time) {
	if now != nil {
		l.now = now
	}
}

// SetObserver installs a metrics observer.
func (l *Ledger) SetObserver(o Observer) {
	l.observer = o
}

// Execute decides, persists, applies and publishes a single command.
func (l *Ledger) Execute(ctx context.Context, cmd Command) (Envelope, error) {
	env, err := l.execute(ctx, cmd)
	if l.observer != nil {
		l.observer.ObserveOperation(cmd.name(), err)
		if issued, ok := env.Event.(Issued); ok && err == nil {
			l.observer.ObserveIssued(issued.Range.Len())
		}
	}
	if err != nil {
		return Envelope{}, err
	}
	l.publish(ctx, env)
	return env, nil
}

func (l *Ledger) execute(ctx context.Context, cmd Command) (Envelope, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.halted != nil {
		return Envelope{}, l.halted
	}
	ev, err := l.state.Decide(cmd, l.policy)
	if err != nil {
		return Envelope{}, err
	}
	env := Envelope{
		ID:    uuid.New(),
		Seq:   l.state.Seq() + 1,
		At:    l.now().UTC(),
		Actor: cmd.Actor().Normalize(),
		Event: ev,
	}
	if err := l.commitLocked(ctx, env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func (l *Ledger) commit(ctx context.Context, env Envelope) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.commitLocked(ctx, env)
}

func (l *Ledger) commitLocked(ctx context.Context, env Envelope) error {
	if err := l.store.Append(ctx, env); err != nil {
		return fmt.Errorf("ledger: append %s: %w", env.Kind(), err)
	}
	if err := l.state.Apply(env); err != nil {
		l.logger.Error("ledger apply after append", slog.Uint64("seq", env.Seq), slog.Any("error", err))
		l.reloadLocked(ctx)
		return fmt.Errorf("ledger: apply %s: %w", env.Kind(), err)
	}
	return nil
}

// reloadLocked rebuilds the state from the store after an apply failure. If
// the journal cannot be replayed the ledger stops accepting mutations.
func (l *Ledger) reloadLocked(ctx context.Context) {
	entries, err := l.store.Load(ctx)
	if err == nil {
		var state *State
		if state, err = Replay(entries); err == nil {
			l.state = state
			l.logger.Warn("ledger state reloaded from journal", slog.Uint64("seq", state.Seq()))
			return
		}
	}
	l.halted = fmt.Errorf("%w: %v", ErrLedgerHalted, err)
	l.logger.Error("ledger halted", slog.Any("error", err))
}

func (l *Ledger) publish(ctx context.Context, env Envelope) {
	if l.sink == nil {
		return
	}
	if err := l.sink.Publish(ctx, env); err != nil {
		l.logger.Warn("publish ledger event",
			slog.Uint64("seq", env.Seq),
			slog.String("kind", string(env.Kind())),
			slog.Any("error", err),
		)
	}
}

// AssignRole routes a role assignment through the matching appointment path.
func (l *Ledger) AssignRole(ctx context.Context, caller, principal Principal, role Role, j Jurisdiction) (RoleAssigned, error) {
	return l.assign(ctx, AssignRole{Caller: caller, Principal: principal, Role: role, Jurisdiction: j})
}

// AppointCountryAdmin allocates a new country administered by target.
func (l *Ledger) AppointCountryAdmin(ctx context.Context, caller, target Principal) (RoleAssigned, error) {
	return l.assign(ctx, AppointCountryAdmin{Caller: caller, Target: target})
}

// AppointStateAdmin allocates a new state under country administered by target.
func (l *Ledger) AppointStateAdmin(ctx context.Context, caller, target Principal, country CountryID) (RoleAssigned, error) {
	return l.assign(ctx, AppointStateAdmin{Caller: caller, Target: target, Country: country})
}

// AppointCityAdmin allocates a new city under state administered by target.
func (l *Ledger) AppointCityAdmin(ctx context.Context, caller, target Principal, state StateID) (RoleAssigned, error) {
	return l.assign(ctx, AppointCityAdmin{Caller: caller, Target: target, State: state})
}

// RegisterProducer binds target to city as a producer.
func (l *Ledger) RegisterProducer(ctx context.Context, caller, target Principal, city CityID) (RoleAssigned, error) {
	return l.assign(ctx, RegisterProducer{Caller: caller, Target: target, City: city})
}

// RegisterBuyer registers caller as a buyer.
func (l *Ledger) RegisterBuyer(ctx context.Context, caller Principal) (RoleAssigned, error) {
	return l.assign(ctx, RegisterBuyer{Caller: caller})
}

func (l *Ledger) assign(ctx context.Context, cmd Command) (RoleAssigned, error) {
	env, err := l.Execute(ctx, cmd)
	if err != nil {
		return RoleAssigned{}, err
	}
	return env.Event.(RoleAssigned), nil
}

// Certify records that caller certified hash for city.
func (l *Ledger) Certify(ctx context.Context, caller Principal, hash ClaimHash, city CityID) (Certified, error) {
	env, err := l.Execute(ctx, Certify{Caller: caller, ClaimHash: hash, City: city})
	if err != nil {
		return Certified{}, err
	}
	return env.Event.(Certified), nil
}

// Issue mints amount units to producer to against hash.
func (l *Ledger) Issue(ctx context.Context, caller, to Principal, amount uint32, hash ClaimHash) (Issued, error) {
	env, err := l.Execute(ctx, Issue{Caller: caller, To: to, Amount: amount, ClaimHash: hash})
	if err != nil {
		return Issued{}, err
	}
	return env.Event.(Issued), nil
}

// Transfer moves unit from → to on behalf of caller.
func (l *Ledger) Transfer(ctx context.Context, caller Principal, unit UnitID, from, to Principal) (Transferred, error) {
	env, err := l.Execute(ctx, Transfer{Caller: caller, Unit: unit, From: from, To: to})
	if err != nil {
		return Transferred{}, err
	}
	return env.Event.(Transferred), nil
}

// Retire permanently retires unit on behalf of caller.
func (l *Ledger) Retire(ctx context.Context, caller Principal, unit UnitID) (Retired, error) {
	env, err := l.Execute(ctx, Retire{Caller: caller, Unit: unit})
	if err != nil {
		return Retired{}, err
	}
	return env.Event.(Retired), nil
}

// Root returns the genesis RootAuthority.
func (l *Ledger) Root() Principal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Root()
}

// RoleOf returns the role held by p, RoleNone when unregistered.
func (l *Ledger) RoleOf(p Principal) Role {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.roleOf(p.Normalize())
}

// JurisdictionOf returns the jurisdiction p is bound to.
func (l *Ledger) JurisdictionOf(p Principal) (Jurisdiction, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.jurisdictionOf(p.Normalize())
}

// Unit returns a copy of unit id.
func (l *Ledger) Unit(id UnitID) (CreditUnit, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	u, ok := l.state.unit(id)
	if !ok {
		return CreditUnit{}, false
	}
	return *u, true
}

// OwnerOf returns the current owner of unit id.
func (l *Ledger) OwnerOf(id UnitID) (Principal, bool) {
	u, ok := l.Unit(id)
	return u.Owner, ok
}

// StatusOf returns the lifecycle status of unit id.
func (l *Ledger) StatusOf(id UnitID) (UnitStatus, bool) {
	u, ok := l.Unit(id)
	return u.Status, ok
}

// UnitsOwnedBy lists the units owned by p in ascending id order.
func (l *Ledger) UnitsOwnedBy(p Principal) []CreditUnit {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.unitsOwnedBy(p.Normalize())
}

// UnitsInRange lists the issued units whose ids fall in r.
func (l *Ledger) UnitsInRange(r IDRange) []CreditUnit {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.unitsInRange(r)
}

// CertificationOf returns the certification record for hash.
func (l *Ledger) CertificationOf(hash ClaimHash) (CertificationRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.state.certs[hash]
	if !ok {
		return CertificationRecord{}, false
	}
	return *rec, true
}

// Stats summarises the ledger.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.stats()
}
