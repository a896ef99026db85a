package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"github.com/sugarme/gotch/nn"
)

func newSummaryCmd(flags *modelFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print network variables and parameter count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vs, _, err := flags.build()
			if err != nil {
				return err
			}
			printVars(cmd.OutOrStdout(), vs)
			return nil
		},
	}
}

// printVars prints variables sorted by name and the total parameter count.
func printVars(w io.Writer, vs *nn.VarStore) {
	vars := vs.Variables()
	names := make([]string, 0, len(vars))
	for n := range vars {
		names = append(names, n)
	}
	sort.Strings(names)

	var total int64
	for _, n := range names {
		size := vars[n].MustSize()
		numel := int64(1)
		for _, d := range size {
			numel *= d
		}
		total += numel
		fmt.Fprintf(w, "%v \t\t %v\n", n, size)
	}
	fmt.Fprintf(w, "total parameters: %d\n", total)
}
