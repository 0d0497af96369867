package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/gidref/codec"
)

func newRootCmd() *cobra.Command {
	var codecName string

	root := &cobra.Command{
		Use:          "gidctl",
		Short:        "Inspect global identifiers and simulate distributed reference counting",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&codecName, "codec", codec.Default.Name(), "output codec: "+strings.Join(codec.Names(), " or "))

	out := func(w io.Writer, v any) error {
		c, ok := codec.ByName(codecName)
		if !ok {
			return fmt.Errorf("unknown codec %q", codecName)
		}
		return codec.Fprint(w, c, v)
	}

	root.AddCommand(
		newLayoutCmd(),
		newDecodeCmd(out),
		newSplitCmd(out),
		newParcelCmd(out),
		newSimulateCmd(out),
	)
	return root
}

type printer func(w io.Writer, v any) error
