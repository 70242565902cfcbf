package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/usi-verification-and-security/ptplib/internal/config"
	"github.com/usi-verification-and-security/ptplib/internal/printer"
	"github.com/usi-verification-and-security/ptplib/internal/scaffold"
)

var (
	forceInit bool
	initDir   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a ptp.yml with every default spelled out",
	Long: `Write a commented ` + config.DefaultFile + ` holding the default configuration,
ready to be edited.

Use --force to overwrite an existing file.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing "+config.DefaultFile)
	initCmd.Flags().StringVar(&initDir, "dir", ".", "Directory to write to")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := scaffold.Initialize(initDir, forceInit); err != nil {
		return printer.Error("initialization failed", err.Error(), nil)
	}
	printer.Success("Initialized %s\n", config.DefaultFile)
	scaffold.PrintSuccess(func(format string, a ...any) { fmt.Fprintf(cmd.OutOrStdout(), format, a...) })
	return nil
}
