package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/credit"
	"github.com/hupe1980/gidref/gid"
)

type splitStep struct {
	Step     int        `json:"step"`
	Retained gid.Fields `json:"retained"`
	Sent     gid.Fields `json:"sent"`
}

type splitReport struct {
	Steps     []splitStep `json:"steps"`
	Exhausted bool        `json:"exhausted"`
	Total     int64       `json:"total_credit"`
}

func newSplitCmd(out printer) *cobra.Command {
	var times int

	cmd := &cobra.Command{
		Use:   "split <gid>",
		Short: "Show the credit of the copies produced by repeated local splits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := gid.Parse(args[0])
			if err != nil {
				return err
			}

			report := splitReport{Total: g.Credit()}
			sent := make([]gid.GID, 0, times)
			for i := range times {
				if !g.HasCredits() {
					break
				}
				retained, s, err := credit.SplitValue(g)
				if errors.Is(err, core.ErrInvalidStatus) {
					report.Exhausted = true
					break
				}
				if err != nil {
					return err
				}
				report.Steps = append(report.Steps, splitStep{
					Step:     i + 1,
					Retained: retained.Describe(),
					Sent:     s.Describe(),
				})
				sent = append(sent, s)
				g = retained
			}

			if total := credit.Total(append(sent, g)...); total != report.Total {
				return core.NewError(core.ErrUnexpectedFailure, "gidctl split", "credit not conserved")
			}
			return out(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().IntVarP(&times, "times", "n", 1, "number of splits")
	return cmd
}
