package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/gid"
	"github.com/hupe1980/gidref/handle"
	"github.com/hupe1980/gidref/wire"
)

type parcelReport struct {
	ID          uuid.UUID       `json:"id"`
	Source      core.LocalityID `json:"source"`
	Destination core.LocalityID `json:"destination"`
	Action      string          `json:"action"`
	PayloadSize int             `json:"payload_bytes"`
	Handles     []handleReport  `json:"handles"`
}

type handleReport struct {
	Management string     `json:"management"`
	GID        gid.Fields `json:"gid"`
}

func newParcelCmd(out printer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parcel",
		Short: "Build and inspect encoded parcels",
	}
	cmd.AddCommand(newParcelInspectCmd(out), newParcelBuildCmd())
	return cmd
}

func newParcelInspectCmd(out printer) *cobra.Command {
	var isHex bool

	cmd := &cobra.Command{
		Use:   "inspect [file]",
		Short: "Decode a parcel read from file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			data, err := io.ReadAll(r)
			if err != nil {
				return err
			}
			if isHex {
				data, err = hex.DecodeString(string(bytes.TrimSpace(data)))
				if err != nil {
					return fmt.Errorf("decode hex: %w", err)
				}
			}

			// without a runtime, releasing decoded handles never
			// returns credit
			p, err := wire.DecodeParcel(nil, data)
			if err != nil {
				return err
			}
			report := parcelReport{
				ID:          p.ID,
				Source:      p.Source,
				Destination: p.Destination,
				Action:      p.Action,
				PayloadSize: len(p.Payload),
				Handles:     make([]handleReport, 0, len(p.IDs)),
			}
			for _, id := range p.IDs {
				report.Handles = append(report.Handles, handleReport{
					Management: id.Management().String(),
					GID:        id.GID().Describe(),
				})
				id.Release()
			}
			return out(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().BoolVar(&isHex, "hex", false, "input is hex encoded")
	return cmd
}

func newParcelBuildCmd() *cobra.Command {
	var (
		source      uint32
		destination uint32
		action      string
		payload     string
		ids         []string
		compression string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Encode a parcel carrying unmanaged handles and print it as hex",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			comp, err := wire.ParseCompression(compression)
			if err != nil {
				return err
			}

			p := &wire.Parcel{
				Source:      core.LocalityID(source),
				Destination: core.LocalityID(destination),
				Action:      action,
				Payload:     []byte(payload),
			}
			for _, s := range ids {
				g, err := gid.Parse(s)
				if err != nil {
					return err
				}
				p.IDs = append(p.IDs, handle.New(nil, g, handle.Unmanaged))
			}
			defer func() {
				for _, id := range p.IDs {
					id.Release()
				}
			}()

			data, err := wire.EncodeParcel(cmd.Context(), p, func(o *wire.EncodeOptions) { o.Compression = comp })
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(data))
			return err
		},
	}
	cmd.Flags().Uint32Var(&source, "source", 0, "source locality")
	cmd.Flags().Uint32Var(&destination, "destination", 0, "destination locality")
	cmd.Flags().StringVar(&action, "action", "", "action name")
	cmd.Flags().StringVar(&payload, "payload", "", "payload text")
	cmd.Flags().StringArrayVar(&ids, "gid", nil, "GID of an unmanaged handle (repeatable)")
	cmd.Flags().StringVar(&compression, "compression", "none", "none, lz4 or zstd")
	return cmd
}
