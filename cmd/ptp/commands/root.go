package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/usi-verification-and-security/ptplib/internal/config"
	"github.com/usi-verification-and-security/ptplib/internal/printer"
	"github.com/usi-verification-and-security/ptplib/pkg/lemmaserver"
)

var (
	configPath   string
	redisURL     string
	instanceName string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ptp",
	Short: "ptp - coordination core for partitioned parallel solving",
	Long: `ptp hosts a solver behind a command channel: commands are queued,
dispatched one at a time to the search engine, and learned clauses are
shared with peer solvers through a lemma server.

Use "run" for a self-contained protocol demo, "serve" to take commands
from Redis, and "publish" to send them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	// Enable strict flag parsing - unknown flags will cause an error
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the root command.
func Execute() error {
	// Errors are printed by the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to "+config.DefaultFile+" (default: ./"+config.DefaultFile+" if present)")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis-url", "", "Lemma server URL, e.g. redis://localhost:6379")
	rootCmd.PersistentFlags().StringVarP(&instanceName, "instance", "n", "", "Lemma server namespace")
}

// resolveConfig loads the configuration and applies the environment and
// the global flags, in that order.
func resolveConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultFile); err == nil {
			path = config.DefaultFile
		}
	}

	cfg, err := config.Resolve(path)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"invalid configuration",
			err.Error(),
			map[string]string{"Config": path},
			[]string{"Fix the file or run without --config to use the defaults"},
		)
	}
	if redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if instanceName != "" {
		cfg.Redis.Instance = instanceName
	}
	return cfg, nil
}

// connect opens and pings a lemma server client.
func connect(ctx context.Context, cfg *config.Config, solverID string) (*lemmaserver.Client, error) {
	if cfg.Redis.URL == "" {
		return nil, printer.Error(
			"no lemma server configured",
			"This command needs a Redis URL.",
			[]string{"Pass --redis-url redis://host:6379", "Set PTP_REDIS_URL", "Set redis.url in " + config.DefaultFile},
		)
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, printer.Error("invalid Redis URL", err.Error(), nil)
	}

	client, err := lemmaserver.NewClient(opts, cfg.Redis.Instance, solverID)
	if err != nil {
		return nil, printer.Error("failed to create lemma server client", err.Error(), nil)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, printer.ErrorWithContext(
			"failed to connect to Redis",
			err.Error(),
			map[string]string{"Redis": cfg.Redis.URL, "Instance": cfg.Redis.Instance},
			[]string{"Check that Redis is running and reachable"},
		)
	}
	return client, nil
}
