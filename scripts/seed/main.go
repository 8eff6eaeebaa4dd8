package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/carbonledger/carbonledger/internal/app"
	"github.com/carbonledger/carbonledger/internal/ledger"
)

// demo principals, one per tier.
const (
	countryAdmin = ledger.Principal("0xseed-country")
	stateAdmin   = ledger.Principal("0xseed-state")
	cityAdmin    = ledger.Principal("0xseed-city")
	producer     = ledger.Principal("0xseed-producer")
	buyer        = ledger.Principal("0xseed-buyer")
)

func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)

	backends, err := app.OpenBackends(ctx, cfg, false)
	if err != nil {
		log.Fatalf("open backends: %v", err)
	}
	defer backends.Close()

	ledgerCfg, err := cfg.LedgerConfig()
	if err != nil {
		log.Fatalf("ledger config: %v", err)
	}
	l, err := ledger.Open(ctx, ledgerCfg, backends.Store, ledger.LogSink{Logger: logger}, logger)
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}

	root := l.Root()
	if l.RoleOf(countryAdmin) != ledger.RoleNone {
		fmt.Println("✓ Seed already present, nothing to do")
		return
	}

	fmt.Println("→ Seeding jurisdiction hierarchy...")
	country, err := l.AppointCountryAdmin(ctx, root, countryAdmin)
	must("appoint country admin", err)
	state, err := l.AppointStateAdmin(ctx, countryAdmin, stateAdmin, country.Jurisdiction.Country)
	must("appoint state admin", err)
	city, err := l.AppointCityAdmin(ctx, stateAdmin, cityAdmin, state.Jurisdiction.State)
	must("appoint city admin", err)

	fmt.Println("→ Seeding market participants...")
	_, err = l.RegisterProducer(ctx, cityAdmin, producer, city.Jurisdiction.City)
	must("register producer", err)
	_, err = l.RegisterBuyer(ctx, buyer)
	must("register buyer", err)

	fmt.Println("→ Seeding issuance...")
	claim := ledger.ProductionClaim{
		Submitter:    producer,
		AmountWh:     250000,
		Date:         time.Now().UTC().Format("2006-01-02"),
		Method:       "smart-meter",
		EnergySource: "solar",
		City:         city.Jurisdiction.City,
	}
	hash := ledger.HashClaim(claim)
	_, err = l.Certify(ctx, cityAdmin, hash, city.Jurisdiction.City)
	must("certify claim", err)
	issued, err := l.Issue(ctx, cityAdmin, producer, 10, hash)
	must("issue units", err)

	_, err = l.Transfer(ctx, producer, issued.Range.First, producer, buyer)
	must("transfer unit", err)
	_, err = l.Retire(ctx, buyer, issued.Range.First)
	must("retire unit", err)

	stats := l.Stats()
	logger.Info("seed complete",
		slog.Uint64("journal_length", stats.JournalLength),
		slog.Int("units_active", stats.UnitsActive),
		slog.Int("units_retired", stats.UnitsRetired),
	)
	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func must(step string, err error) {
	if err == nil {
		return
	}
	if ledger.IsRejection(err) {
		log.Fatalf("%s: rejected: %v", step, err)
	}
	log.Fatalf("%s: %v", step, err)
}
