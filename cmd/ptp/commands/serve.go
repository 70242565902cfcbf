package commands

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/usi-verification-and-security/ptplib/internal/health"
	"github.com/usi-verification-and-security/ptplib/internal/listener"
	"github.com/usi-verification-and-security/ptplib/internal/metrics"
	"github.com/usi-verification-and-security/ptplib/internal/printer"
	"github.com/usi-verification-and-security/ptplib/internal/solver"
	"github.com/usi-verification-and-security/ptplib/pkg/channel"
)

var (
	serveSolverID string
	serveNoColor  bool
)

var errSubscriptionClosed = errors.New("command subscription closed")

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve commands published on the lemma server",
	Long: `Serve subscribes to the instance's command channel on Redis and feeds
every command into a listener running the stub solver. A stop command ends
the current session; the listener is reset and waits for the next one.

Results are reported to the lemma server. Health and Prometheus metrics are
served on the configured health port (/healthz, /metrics).

SIGINT or SIGTERM stops the running search and drains the workers.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveSolverID, "solver-id", "", "Identity used for shared lemmas (default: random UUID)")
	serveCmd.Flags().BoolVar(&serveNoColor, "no-color", false, "Disable colored trace output")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := connect(ctx, cfg, serveSolverID)
	if err != nil {
		return err
	}
	defer client.Close()

	stream := printer.NewStream(os.Stderr, !serveNoColor)
	m := metrics.New()
	l := listener.New(cfg, func(ch *channel.Channel) solver.Solver {
		return solver.NewStub(ch, solver.WithSeed(cfg.Listener.Seed), solver.WithLogf(log.Printf))
	}, client, listener.WithMetrics(m), listener.WithStream(stream), listener.WithParallelMode())
	defer l.Close()

	printer.Step("Serving instance %q as solver %s\n", cfg.Redis.Instance, client.SolverID())

	g, gctx := errgroup.WithContext(ctx)

	if port := cfg.HealthPort(); port != 0 {
		server := health.NewServer(port, m.Registry, client, func() string { return l.State().String() })
		g.Go(server.ListenAndServe)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	sub, err := client.SubscribeCommands(gctx)
	if err != nil {
		stop()
		_ = g.Wait()
		return printer.Error("failed to subscribe to commands", err.Error(), nil)
	}
	defer sub.Close()

	g.Go(func() error {
		for err := range sub.Errors() {
			log.Printf("[Listener] %v", err)
		}
		return nil
	})

	g.Go(func() error {
		for {
			if err := l.Start(); err != nil {
				return err
			}
			stopped := l.Feed(gctx, sub.Messages())
			l.Shutdown()
			if !stopped {
				if gctx.Err() != nil {
					return nil
				}
				return errSubscriptionClosed
			}
			log.Printf("[Listener] Session ended, waiting for the next one")
		}
	})

	if err := g.Wait(); err != nil {
		return printer.Error("serve failed", err.Error(), nil)
	}
	printer.Success("Shut down cleanly\n")
	return nil
}
