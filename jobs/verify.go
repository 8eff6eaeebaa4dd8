package jobs

import (
	"fmt"

	"github.com/carbonledger/carbonledger/internal/ledger"
)

// Journal rules checked by VerifyJournal.
const (
	RuleReplay           = "replay"
	RuleContiguousIDs    = "contiguous_unit_ids"
	RuleOriginChain      = "origin_chain"
	RuleTransferRetired  = "transfer_after_retire"
	RuleSingleIssuance   = "single_issuance"
	RuleIssueUncertified = "issue_without_certification"
)

// Violation is one journal entry that breaks a ledger rule.
type Violation struct {
	Seq    uint64 `json:"seq"`
	Rule   string `json:"rule"`
	Detail string `json:"detail"`
}

// VerifyJournal walks a journal without going through state.Apply and reports
// every rule it breaks. It keeps going after the first violation.
func VerifyJournal(entries []ledger.Envelope) []Violation {
	var (
		out       []Violation
		nextUnit  ledger.UnitID = 1
		cityPath                = make(map[ledger.CityID]ledger.Jurisdiction)
		statePar                = make(map[ledger.StateID]ledger.CountryID)
		issued                  = make(map[ledger.ClaimHash]int)
		certified               = make(map[ledger.ClaimHash]bool)
		retired                 = make(map[ledger.UnitID]uint64)
	)
	flag := func(seq uint64, rule, format string, args ...any) {
		out = append(out, Violation{Seq: seq, Rule: rule, Detail: fmt.Sprintf(format, args...)})
	}
	checkOrigin := func(seq uint64, origin ledger.Jurisdiction) {
		known, ok := cityPath[origin.City]
		if !ok {
			flag(seq, RuleOriginChain, "city %d was never placed in the hierarchy", origin.City)
			return
		}
		if known != origin {
			flag(seq, RuleOriginChain, "origin %d/%d/%d does not match %d/%d/%d",
				origin.Country, origin.State, origin.City, known.Country, known.State, known.City)
		}
	}

	for _, env := range entries {
		switch ev := env.Event.(type) {
		case ledger.RoleAssigned:
			j := ev.Jurisdiction
			if j.State != 0 {
				if parent, ok := statePar[j.State]; ok && parent != j.Country {
					flag(env.Seq, RuleOriginChain, "state %d moved from country %d to %d", j.State, parent, j.Country)
				} else if !ok {
					statePar[j.State] = j.Country
				}
			}
			if j.City != 0 {
				if known, ok := cityPath[j.City]; ok && known != j {
					flag(env.Seq, RuleOriginChain, "city %d re-parented", j.City)
				} else if !ok {
					cityPath[j.City] = j
				}
			}
		case ledger.Certified:
			certified[ev.ClaimHash] = true
			checkOrigin(env.Seq, ev.Origin)
		case ledger.Issued:
			if ev.Range.First != nextUnit || ev.Range.Last < ev.Range.First {
				flag(env.Seq, RuleContiguousIDs, "expected range starting at %d, got %s", nextUnit, ev.Range)
			}
			if ev.Range.Last >= ev.Range.First {
				nextUnit = ev.Range.Last + 1
			}
			if !certified[ev.ClaimHash] {
				flag(env.Seq, RuleIssueUncertified, "claim %s", ev.ClaimHash)
			}
			issued[ev.ClaimHash]++
			if issued[ev.ClaimHash] > 1 {
				flag(env.Seq, RuleSingleIssuance, "claim %s issued %d times", ev.ClaimHash, issued[ev.ClaimHash])
			}
			checkOrigin(env.Seq, ev.Origin)
		case ledger.Transferred:
			if at, ok := retired[ev.Unit]; ok {
				flag(env.Seq, RuleTransferRetired, "unit %d retired at seq %d", ev.Unit, at)
			}
		case ledger.Retired:
			if _, ok := retired[ev.Unit]; !ok {
				retired[ev.Unit] = env.Seq
			}
		}
	}
	return out
}
