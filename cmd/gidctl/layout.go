package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/gidref/gid"
)

type field struct {
	name string
	bits string
	mask uint64
}

var layout = []field{
	{"locality_id+1", "63..32", gid.LocalityIDMask},
	{"was_split", "31", gid.WasSplitMask},
	{"has_credits", "30", gid.HasCreditsMask},
	{"lock", "29", gid.LockMask},
	{"log2_credit", "28..24", gid.CreditMask},
	{"dont_cache", "23", gid.DontCacheMask},
	{"migratable", "22", gid.MigratableMask},
	{"component_type", "20..1", gid.ComponentTypeMask},
	{"dynamically_assigned", "0", gid.DynamicallyAssignedMask},
}

func newLayoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layout",
		Short: "Print the bit layout of the most significant GID word",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FIELD\tBITS\tMASK")
			for _, f := range layout {
				fmt.Fprintf(w, "%s\t%s\t%#016x\n", f.name, f.bits, f.mask)
			}
			return w.Flush()
		},
	}
}
