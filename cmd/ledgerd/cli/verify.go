package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/carbonledger/carbonledger/internal/ledger"
	"github.com/carbonledger/carbonledger/jobs"
)

// LedgerOpsCLI offers operator checks that run against the journal directly,
// without going through the queue.
type LedgerOpsCLI struct {
	store      ledger.Store
	projection jobs.ProjectionReader
}

// NewLedgerOpsCLI constructs a new helper instance. projection may be nil.
func NewLedgerOpsCLI(store ledger.Store, projection jobs.ProjectionReader) (*LedgerOpsCLI, error) {
	if store == nil {
		return nil, errors.New("ledger ops cli: store required")
	}
	return &LedgerOpsCLI{store: store, projection: projection}, nil
}

// VerifyOptions defines available flags for the verify command.
type VerifyOptions struct {
	CheckProjection bool
	JSONOutput      bool
	Stdout          io.Writer
	Stderr          io.Writer
}

// VerifySummary describes the JSON response for verify.
type VerifySummary struct {
	OK            bool             `json:"ok"`
	JournalLength uint64           `json:"journal_length"`
	LastUnitID    ledger.UnitID    `json:"last_unit_id"`
	Violations    []jobs.Violation `json:"violations"`
	Drift         []jobs.Drift     `json:"drift"`
}

// VerifyCommand runs one integrity pass and prints the outcome. It exits 10
// when the journal or its projections are inconsistent.
func (c *LedgerOpsCLI) VerifyCommand(ctx context.Context, opts VerifyOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	check := jobs.NewIntegrityCheck(c.store, c.projection, nil, nil)
	report, err := check.Run(ctx, opts.CheckProjection && c.projection != nil)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "verify: %v\n", err)
		return 1
	}
	summary := buildVerifySummary(report)
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "verify: encode json: %v\n", err)
			return 1
		}
	} else {
		renderVerifyHuman(opts.Stdout, summary)
	}
	if !summary.OK {
		return 10
	}
	return 0
}

func buildVerifySummary(report jobs.IntegrityReport) VerifySummary {
	violations := append([]jobs.Violation{}, report.Violations...)
	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].Seq < violations[j].Seq
	})
	drift := append([]jobs.Drift{}, report.Drift...)
	return VerifySummary{
		OK:            report.OK(),
		JournalLength: report.Stats.JournalLength,
		LastUnitID:    report.Stats.LastUnitID,
		Violations:    violations,
		Drift:         drift,
	}
}

func renderVerifyHuman(out io.Writer, summary VerifySummary) {
	_, _ = fmt.Fprintf(out, "Journal length %d, last unit #%d\n", summary.JournalLength, summary.LastUnitID)
	if summary.OK {
		_, _ = fmt.Fprintln(out, "Journal and projections are consistent.")
		return
	}
	if len(summary.Violations) > 0 {
		_, _ = fmt.Fprintf(out, "%d violation(s):\n", len(summary.Violations))
		for _, v := range summary.Violations {
			_, _ = fmt.Fprintf(out, " - seq %d %s: %s\n", v.Seq, v.Rule, v.Detail)
		}
	}
	if len(summary.Drift) > 0 {
		_, _ = fmt.Fprintf(out, "%d projection mismatch(es):\n", len(summary.Drift))
		for _, d := range summary.Drift {
			_, _ = fmt.Fprintf(out, " - %s journal=%d projected=%d\n", d.Field, d.Journal, d.Projected)
		}
	}
}
