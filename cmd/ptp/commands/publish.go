package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/usi-verification-and-security/ptplib/internal/printer"
	"github.com/usi-verification-and-security/ptplib/internal/watch"
	"github.com/usi-verification-and-security/ptplib/pkg/channel"
	"github.com/usi-verification-and-security/ptplib/pkg/header"
	"github.com/usi-verification-and-security/ptplib/pkg/lemmaserver"
)

var (
	publishCommand    string
	publishNode       string
	publishName       string
	publishQuery      string
	publishPartitions string
	publishDryRun     bool
	publishWait       time.Duration
)

var publishCmd = &cobra.Command{
	Use:   "publish [BODY]",
	Short: "Publish one command to the instance's command channel",
	Long: `Publish builds a command message from the flags and publishes it on the
lemma server, where "ptp serve" picks it up.

Examples:
  ptp publish --name i1.smt2 --query "(check-sat)" "(declare-const x Int)"
  ptp publish --command partition --name i1.smt2 --node "[0]" --partitions 2
  ptp publish --command stop --name i1.smt2 --dry-run
  ptp publish --name i1.smt2 --wait-result 30s "(assert false)"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishCommand, "command", header.CommandSolve, "Command to send")
	publishCmd.Flags().StringVar(&publishNode, "node", "[]", "Partition node address")
	publishCmd.Flags().StringVar(&publishName, "name", "", "Instance name (required)")
	publishCmd.Flags().StringVar(&publishQuery, "query", "", "Query appended to the body")
	publishCmd.Flags().StringVar(&publishPartitions, "partitions", "", "Partition count, for partition commands")
	publishCmd.Flags().BoolVar(&publishDryRun, "dry-run", false, "Print the wire form instead of publishing")
	publishCmd.Flags().DurationVar(&publishWait, "wait-result", 0, "Wait up to this long for the node's result")
	_ = publishCmd.MarkFlagRequired("name")

	rootCmd.AddCommand(publishCmd)
}

// buildMessage assembles the command message described by the publish flags.
func buildMessage(body string) channel.Message {
	h := header.New(
		header.KeyCommand, publishCommand,
		header.KeyName, publishName,
		header.KeyNode, publishNode,
	)
	if publishQuery != "" {
		h.Set(header.KeyQuery, publishQuery)
	}
	if publishPartitions != "" {
		h.Set(header.KeyPartitions, publishPartitions)
	}
	return channel.NewMessage(h, body)
}

func runPublish(cmd *cobra.Command, args []string) error {
	body := ""
	if len(args) == 1 {
		body = args[0]
	}
	msg := buildMessage(body)

	if publishDryRun {
		fmt.Fprintln(cmd.OutOrStdout(), lemmaserver.EncodeMessage(msg))
		return nil
	}

	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	client, err := connect(ctx, cfg, "")
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.PublishCommand(ctx, msg); err != nil {
		return printer.Error("failed to publish command", err.Error(), nil)
	}
	printer.Success("Published %s for %s %s\n", publishCommand, publishName, publishNode)

	if publishWait <= 0 {
		return nil
	}
	result, err := watch.PollForResult(ctx, client, msg.Header, publishWait)
	if err != nil {
		return printer.Error("no result", err.Error(), nil)
	}
	fmt.Fprintln(cmd.OutOrStdout(), result)
	return nil
}
