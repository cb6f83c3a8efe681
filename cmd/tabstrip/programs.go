package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pkt.systems/tabstrip/schema"
)

func newProgramsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "programs",
		Short: "List the programs a tab can run",
		RunE: func(cmd *cobra.Command, args []string) error {
			programs := schema.Programs()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(programs)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, program := range programs {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", program.Icon, program.Type, program.DisplayName, program.Description)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the catalogue as JSON")
	return cmd
}
