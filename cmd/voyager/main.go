// Command voyager is the arbitrage engine's process entrypoint: it
// loads configuration, asks internal/bootstrap to wire the full
// pipeline, then drives a continuous schedule of probe cycles over
// the configured trade pairs, submitting every landable opportunity
// through the lander stack.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/shai-labs/voyager/internal/bootstrap"
	"github.com/shai-labs/voyager/internal/config"
	"github.com/shai-labs/voyager/internal/engine"
	"github.com/shai-labs/voyager/internal/telemetry"
)

const (
	programName    = "voyager"
	programVersion = "0.1.0"

	cycleTimeout = 5 * time.Second
)

var cmdlineFlags struct {
	configFile string
	version    bool
}

func main() {
	flag.StringVar(&cmdlineFlags.configFile, "config", "", "path to config file to load")
	flag.BoolVar(&cmdlineFlags.version, "version", false, "show version")
	flag.Parse()

	if cmdlineFlags.version {
		fmt.Printf("%s %s\n", programName, programVersion)
		os.Exit(0)
	}

	cfg, err := config.Load(cmdlineFlags.configFile)
	if err != nil {
		fmt.Printf("Failed to load config: %s\n", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(cfg.Logging.Level)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Info(fmt.Sprintf(format, args...))
	})); err != nil {
		logger.Warn("failed to set GOMAXPROCS", "error", err)
	}

	if cfg.Debug.ListenPort > 0 {
		logger.Info("starting debug listener", "address", cfg.Debug.ListenAddress, "port", cfg.Debug.ListenPort)
		go func() {
			addr := fmt.Sprintf("%s:%d", cfg.Debug.ListenAddress, cfg.Debug.ListenPort)
			if err := http.ListenAndServe(addr, nil); err != nil {
				logger.Error("debug listener exited", "error", err)
				os.Exit(1)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if !cfg.Strategy.Enabled {
		logger.Info("strategy disabled in config, idling")
		<-ctx.Done()
		return
	}

	graph, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}
	defer graph.WalletCache.Stop()

	run(ctx, graph)
}

// run drives the continuous sweep: every configured pair crossed with
// every probe amount, each cycle bounded by its own deadline, paced by
// the configured inter-trade delay.
func run(ctx context.Context, g *bootstrap.Graph) {
	delay := time.Duration(g.Cfg.Strategy.Bot.OverTradeProcessDelayMs) * time.Millisecond

	for {
		for _, pair := range g.Pairs {
			for _, amount := range g.Amounts {
				if ctx.Err() != nil {
					return
				}
				runOneCycle(ctx, g, pair, amount)
				if delay > 0 {
					select {
					case <-ctx.Done():
						return
					case <-time.After(delay):
					}
				}
			}
		}
	}
}

// runOneCycle prepares one (pair, amount) probe through the full
// pipeline and submits whatever the planner produces through the
// lander stack.
func runOneCycle(ctx context.Context, g *bootstrap.Graph, pair engine.TradePair, amount uint64) {
	deadline := engine.NewCycleDeadline(cycleTimeout)

	assembled, ok, err := g.PrepareOneCycle(ctx, pair, amount, deadline)
	if err != nil {
		g.Logger.Error("prepare cycle failed", "error", err)
		return
	}
	if !ok {
		return
	}

	receipt, err := g.Stack.SubmitPlan(ctx, assembled.Plan, deadline)
	if err != nil {
		g.Logger.Warn("submit failed", "error", err)
		return
	}
	g.Logger.Info("transaction landed",
		"lander", receipt.Lander,
		"signature", receipt.Signature,
		"profit_lamports", assembled.Opportunity.ProfitLamports,
		"tip_lamports", assembled.Opportunity.TipLamports,
	)
}
