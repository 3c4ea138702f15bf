package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/vidforge/pkg/config"
	"github.com/marmos91/vidforge/pkg/jobs"
	"github.com/spf13/cobra"
)

func newJobsCommand(configPath *string) *cobra.Command {
	var (
		status string
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recorded upload jobs",
		Long: `List the upload jobs recorded in the persistent job ledger, newest first.

Only the badger ledger survives the server process, and badger allows a
single writer: stop the server before listing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := jobs.Status(status)
			switch filter {
			case "", jobs.StatusReceived, jobs.StatusStored, jobs.StatusProcessed, jobs.StatusFailed:
			default:
				return fmt.Errorf("unknown status %q", status)
			}

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Jobs.Type != "badger" {
				return fmt.Errorf("job store type %q is not persistent; set jobs.type to badger", cfg.Jobs.Type)
			}

			store, err := config.CreateJobStore(cmd.Context(), &cfg.Jobs)
			if err != nil {
				return err
			}
			defer store.Close()

			list, err := store.List(cmd.Context(), jobs.ListOptions{Status: filter, Limit: limit})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCLIENT\tOPERATION\tTYPE\tSIZE\tSTATUS\tCREATED")
			for _, j := range list {
				st := string(j.Status)
				if j.ErrorCode != 0 {
					st = fmt.Sprintf("%s (%d)", st, j.ErrorCode)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					j.ID, j.ClientIP, j.Operation, j.MediaType,
					humanize.IBytes(j.PayloadSize), st, j.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only list jobs with this status (received, stored, processed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of jobs to list (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print jobs as JSON")
	return cmd
}
