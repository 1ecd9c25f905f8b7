package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcelocantos/moodlelogs/internal/audit"
)

func (a *App) auditCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the run ledger",
	}
	cmd.PersistentFlags().StringVar(&path, "ledger", "", "Ledger path (overrides config)")

	ledgerPath := func() (string, error) {
		if path != "" {
			return path, nil
		}
		cfg, err := a.loadConfig()
		if err != nil {
			return "", err
		}
		return cfg.Audit.Path, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Check the hash chain of the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := ledgerPath()
			if err != nil {
				return err
			}
			if err := audit.Verify(a.FS, p); err != nil {
				return failed(fmt.Errorf("ledger verification FAILED: %w", err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ledger integrity verified")
			return nil
		},
	})

	var n int
	var raw bool
	show := &cobra.Command{
		Use:     "show",
		Aliases: []string{"tail"},
		Short:   "Print the last runs",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := ledgerPath()
			if err != nil {
				return err
			}
			entries, err := audit.Tail(a.FS, p, n)
			if err != nil {
				return failed(err)
			}
			w := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(w, "no runs recorded")
				return nil
			}
			if raw {
				for _, e := range entries {
					data, _ := json.MarshalIndent(e, "", "  ")
					fmt.Fprintf(w, "%s\n", data)
				}
				return nil
			}

			s := section{Headers: []string{"SEQ", "TIME", "RUN", "COMMAND", "ROWS", "EXIT", "ERROR"}}
			for _, e := range entries {
				s.Rows = append(s.Rows, []string{
					strconv.FormatUint(e.Seq, 10),
					e.Time.Local().Format(time.DateTime),
					e.RunID,
					e.Command,
					strconv.Itoa(e.Rows["output"]),
					strconv.Itoa(e.ExitCode),
					e.Error,
				})
			}
			printStyledTable(w, s)
			return nil
		},
	}
	show.Flags().IntVarP(&n, "number", "n", 20, "Number of runs")
	show.Flags().BoolVar(&raw, "raw", false, "Print the ledger entries as JSON")
	cmd.AddCommand(show)
	return cmd
}
