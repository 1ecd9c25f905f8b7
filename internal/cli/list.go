package cli

import (
	"encoding/json"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marcelocantos/moodlelogs/internal/filter"
	"github.com/marcelocantos/moodlelogs/internal/record"
	"github.com/marcelocantos/moodlelogs/internal/rules"
)

func (a *App) rulesCmd() *cobra.Command {
	var rulesFile string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the reclassification rules in evaluation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("rules") {
				cfg.Rules.File = rulesFile
			}
			rs, err := rules.Load(a.FS, cfg.Rules.File)
			if err != nil {
				return err
			}

			if asJSON {
				type rule struct {
					ID     string `json:"id"`
					Kind   string `json:"kind"`
					Target string `json:"target"`
					When   string `json:"when"`
					Then   string `json:"then"`
				}
				var out []rule
				for _, r := range rs.Rules() {
					out = append(out, rule{r.ID, r.Kind.String(), r.Target.String(), r.When.String(), r.Then.String()})
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			s := section{Headers: []string{"#", "ID", "KIND", "TARGET", "WHEN", "THEN"}}
			for i, r := range rs.Rules() {
				s.Rows = append(s.Rows, []string{
					strconv.Itoa(i + 1), r.ID, r.Kind.String(), r.Target.String(), r.When.String(), r.Then.String(),
				})
			}
			printStyledTable(cmd.OutOrStdout(), s)
			return nil
		},
	}
	cmd.Flags().StringVar(&rulesFile, "rules", "", "Rules file (overrides config)")
	cmd.Flags().BoolVar(&asJSON, "raw", false, "Print JSON")
	return cmd
}

func (a *App) filtersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "filters",
		Short: "List the exclusion predicates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			active := make(map[string]bool)
			f, err := filter.New(filter.Options{
				Extra:        cfg.Filter.Extra,
				Disable:      cfg.Filter.Disable,
				DeletedUsers: record.IDSet{},
			})
			if err != nil {
				return err
			}
			for _, p := range f.Predicates() {
				active[p.ID] = true
			}

			s := section{Headers: []string{"ID", "ACTIVE", "DESCRIPTION"}}
			all := filter.Builtin(record.IDSet{})
			for _, id := range filter.OptionalIDs() {
				p, _ := filter.Optional(id)
				all = append(all, p)
			}
			for _, p := range all {
				state := "no"
				if active[p.ID] {
					state = "yes"
				}
				s.Rows = append(s.Rows, []string{p.ID, state, p.Description})
			}
			printStyledTable(cmd.OutOrStdout(), s)
			return nil
		},
	}
}
