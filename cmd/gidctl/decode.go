package main

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/gidref/gid"
)

func newDecodeCmd(out printer) *cobra.Command {
	return &cobra.Command{
		Use:   "decode <gid>...",
		Short: "Decode GIDs given as {msb, lsb} or 32 hex digits",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := make([]gid.Fields, 0, len(args))
			for _, arg := range args {
				g, err := gid.Parse(arg)
				if err != nil {
					return err
				}
				fields = append(fields, g.Describe())
			}
			if len(fields) == 1 {
				return out(cmd.OutOrStdout(), fields[0])
			}
			return out(cmd.OutOrStdout(), fields)
		},
	}
}
