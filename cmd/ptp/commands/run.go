package commands

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/usi-verification-and-security/ptplib/internal/listener"
	"github.com/usi-verification-and-security/ptplib/internal/printer"
	"github.com/usi-verification-and-security/ptplib/internal/solver"
	"github.com/usi-verification-and-security/ptplib/internal/stopwatch"
	"github.com/usi-verification-and-security/ptplib/pkg/channel"
)

var (
	runInstances int
	runEvents    int
	runWait      time.Duration
	runSeed      int64
	runNoColor   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the protocol demo against the stub solver",
	Long: `Run drives a listener with generated commands, one instance after the
other: solve, then alternating incremental and partition commands, then
stop. The listener is reset between instances.

Clauses learned by the stub solver are pushed to the lemma server (or an
in-process exchange when no Redis URL is configured) and pulled back for
injection.

Examples:
  # Two instances of ten commands, with random timing
  ptp run --instances 2 --events 10

  # Fast, reproducible run
  ptp run --instances 3 --events 6 --wait 50ms --seed 1`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&runInstances, "instances", 1, "Number of instances to solve")
	runCmd.Flags().IntVar(&runEvents, "events", 10, "Number of commands per instance")
	runCmd.Flags().DurationVar(&runWait, "wait", 0, "Fixed gap between commands and search round length (0 = random)")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "Random seed (0 = time based)")
	runCmd.Flags().BoolVar(&runNoColor, "no-color", false, "Disable colored trace output")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if runInstances < 1 || runEvents < 1 {
		return printer.Error("invalid arguments", "--instances and --events must be at least 1", nil)
	}

	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seed := runSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	if runWait == 0 && cfg.Listener.Seed == 0 {
		cfg.Listener.Seed = rng.Int63()
	}

	stream := printer.NewStream(os.Stderr, !runNoColor)

	var exchange listener.Exchange = listener.NewMemoryExchange()
	if cfg.Redis.URL != "" {
		client, err := connect(ctx, cfg, "")
		if err != nil {
			return err
		}
		defer client.Close()
		exchange = client
	}

	l := listener.New(cfg, func(ch *channel.Channel) solver.Solver {
		return solver.NewStub(ch,
			solver.WithWaitingDuration(runWait),
			solver.WithSeed(rng.Int63()),
			solver.WithLogf(stream.Logf(color.FgGreen)),
		)
	}, exchange, listener.WithStream(stream), listener.WithWaitingDuration(runWait), listener.WithParallelMode())
	defer l.Close()

	stream.Println(color.FgRed, "<<---------------------->> Total Number of Instances: ", runInstances, " <<------------------------>>")

	for instance := 1; instance <= runInstances && ctx.Err() == nil; instance++ {
		done := stopwatch.Measure("[Listener] Instance duration", stream.Logf(color.FgRed))
		if err := l.Start(); err != nil {
			return printer.Error("failed to start listener", err.Error(), nil)
		}

		stream.Println(color.FgRed, "<********************** Instance: ", instance,
			" ( Number of Commands: ", runEvents, ") **********************>")

		gen := listener.NewGenerator(instance, runEvents, runWait, rng.Int63())
		l.Feed(ctx, gen.Events(ctx))
		l.Shutdown()
		done()

		result, searchErr := l.Communicator().Result()
		if searchErr != nil {
			printer.Warning("instance %d: search failed: %v\n", instance, searchErr)
			continue
		}
		printer.Info("instance %d: %s\n", instance, result)
	}

	if ctx.Err() != nil {
		printer.Warning("Interrupted\n")
		return nil
	}
	printer.Success("Solved %d instances\n", runInstances)
	return nil
}
