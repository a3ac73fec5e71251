package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTypesCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the module types that have a solver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := rootOpts.registry()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tNAME\tSTATEFUL\tINPUT")
			for _, d := range reg.Descriptors() {
				fmt.Fprintf(tw, "%s\t%s\t%v\t%s\n", d.Type, d.Name, d.Stateful, d.Input)
			}
			return tw.Flush()
		},
	}
}
