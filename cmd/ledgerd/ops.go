package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carbonledger/carbonledger/cmd/ledgerd/cli"
	"github.com/carbonledger/carbonledger/internal/app"
	"github.com/carbonledger/carbonledger/jobs"
)

// exitError carries a non-zero exit status out of a command.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func verifyCommand() *cobra.Command {
	var opts cli.VerifyOptions
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Replay the journal and check it against the read projections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			backends, err := app.OpenBackends(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer backends.Close()
			var projection jobs.ProjectionReader
			if backends.Pool != nil {
				projection = jobs.NewPGProjection(backends.Pool)
			}
			ops, err := cli.NewLedgerOpsCLI(backends.Store, projection)
			if err != nil {
				return err
			}
			opts.Stdout, opts.Stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
			if code := ops.VerifyCommand(cmd.Context(), opts); code != 0 {
				return exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "print the report as JSON")
	cmd.Flags().BoolVar(&opts.CheckProjection, "projection", true, "compare the journal with the SQL projections")
	return cmd
}

func jobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}
	withCLI := func(run func(cmd *cobra.Command, c *cli.JobsCLI, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := cli.NewJobsCLI(cfg.RedisAddr)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			return run(cmd, c, args)
		}
	}
	printJSON := func(cmd *cobra.Command, v any) error {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "trigger <task>",
		Short: "Enqueue a job now",
		Args:  cobra.ExactArgs(1),
		RunE: withCLI(func(cmd *cobra.Command, c *cli.JobsCLI, args []string) error {
			info, err := c.Trigger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "inspect [queue]",
		Short: "Show queue counters",
		Args:  cobra.MaximumNArgs(1),
		RunE: withCLI(func(cmd *cobra.Command, c *cli.JobsCLI, args []string) error {
			queue := ""
			if len(args) == 1 {
				queue = args[0]
			}
			stats, err := c.InspectQueue(cmd.Context(), queue)
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "dead",
		Short: "List ledger events that exhausted their audit retries",
		RunE: withCLI(func(cmd *cobra.Command, c *cli.JobsCLI, _ []string) error {
			tasks, err := c.ListDeadEvents(cmd.Context(), 50)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", t.ID, t.Type, t.LastErr)
			}
			return nil
		}),
	})
	return cmd
}
