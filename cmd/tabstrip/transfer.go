package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/tabstrip/schema"
	"pkt.systems/tabstrip/transfer"
)

func newTransferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Inspect tab transfer payloads",
	}
	cmd.AddCommand(newTransferEncodeCmd())
	cmd.AddCommand(newTransferDecodeCmd())
	return cmd
}

func newTransferEncodeCmd() *cobra.Command {
	var id, tabType, title, windowID string
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a tab as a transfer payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := schema.ParseTabType(tabType)
			if err != nil {
				return err
			}
			tab := schema.Tab{
				ID:    schema.TabID(strings.TrimSpace(id)),
				Type:  typ,
				Title: schema.NormalizeTitle(typ, title),
			}
			raw, err := transfer.Encode(tab, schema.WindowID(windowID))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", raw)
			return err
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "tab id")
	cmd.Flags().StringVar(&tabType, "type", "", "tab type")
	cmd.Flags().StringVar(&title, "title", "", "tab title")
	cmd.Flags().StringVar(&windowID, "window", "", "source window id")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newTransferDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [payload]",
		Short: "Validate a transfer payload (reads stdin when no argument is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []byte
			if len(args) == 1 {
				raw = []byte(args[0])
			} else {
				data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), transfer.MaxPayloadBytes+1))
				if err != nil {
					return err
				}
				raw = data
			}
			payload, err := transfer.Decode(raw)
			if err != nil {
				if errors.Is(err, schema.ErrInvalidTransfer) {
					return fmt.Errorf("payload rejected: %w", err)
				}
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "id=%s type=%s title=%q source=%s\n", payload.ID, payload.Type, payload.Title, payload.SourceWindowID)
			return err
		},
	}
}
