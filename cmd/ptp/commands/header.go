package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/usi-verification-and-security/ptplib/internal/printer"
	"github.com/usi-verification-and-security/ptplib/pkg/header"
)

var headerCmd = &cobra.Command{
	Use:   "header",
	Short: "Encode and decode wire-format headers",
	Long: `Utilities for the header wire format, a flat object of quoted keys and
values optionally followed by a message body:

  {"command":"solve","name":"i1.smt2","node":"[]"}(check-sat)

When no argument is given the input is read from stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var headerDecodeCmd = &cobra.Command{
	Use:   "decode [WIRE]",
	Short: "Print the entries of a header, then the body",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := readInput(cmd, args)
		if err != nil {
			return err
		}
		h, body, err := header.Decode(input)
		if err != nil {
			return printer.Error("invalid header", err.Error(), nil)
		}
		out := cmd.OutOrStdout()
		for _, k := range h.Keys() {
			fmt.Fprintf(out, "%s=%s\n", k, h.Value(k))
		}
		if body != "" {
			fmt.Fprintf(out, "\n%s\n", body)
		}
		return nil
	},
}

var headerEncodeCmd = &cobra.Command{
	Use:   "encode KEY=VALUE...",
	Short: "Build a header from key=value pairs, in order",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var h header.Header
		for _, arg := range args {
			k, v, ok := strings.Cut(arg, "=")
			if !ok || k == "" {
				return printer.Error("invalid pair", fmt.Sprintf("Expected KEY=VALUE, got %q", arg), nil)
			}
			h.Set(k, v)
		}
		fmt.Fprintln(cmd.OutOrStdout(), header.Encode(h))
		return nil
	},
}

var headerLevelCmd = &cobra.Command{
	Use:   "level [WIRE]",
	Short: "Print the partition level of a header's node",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := readInput(cmd, args)
		if err != nil {
			return err
		}
		h, _, err := header.Decode(input)
		if err != nil {
			return printer.Error("invalid header", err.Error(), nil)
		}
		if !h.Has(header.KeyNode) {
			return printer.Error("invalid header", fmt.Sprintf("Header has no %q entry", header.KeyNode), nil)
		}
		fmt.Fprintln(cmd.OutOrStdout(), h.Level())
		return nil
	},
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func init() {
	headerCmd.AddCommand(headerDecodeCmd, headerEncodeCmd, headerLevelCmd)
	rootCmd.AddCommand(headerCmd)
}
