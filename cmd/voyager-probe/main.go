// Command voyager-probe is a dry-run utility: it wires the same
// pipeline cmd/voyager runs continuously, but drives exactly one
// cycle per configured trade pair and prints what would have been
// built and submitted instead of handing it to the lander stack,
// for inspecting what the engine would do against a live cluster
// without risking a real submission.
package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shai-labs/voyager/internal/bootstrap"
	"github.com/shai-labs/voyager/internal/config"
	"github.com/shai-labs/voyager/internal/engine"
	"github.com/shai-labs/voyager/internal/telemetry"
)

const cycleTimeout = 5 * time.Second

var cmdlineFlags struct {
	configFile string
	amount     uint64
}

func main() {
	flag.StringVar(&cmdlineFlags.configFile, "config", "", "path to config file to load")
	flag.Uint64Var(&cmdlineFlags.amount, "amount", 0, "probe amount in lamports; 0 uses the first configured trade_range/trade_range_strategy value")
	flag.Parse()

	cfg, err := config.Load(cmdlineFlags.configFile)
	if err != nil {
		fmt.Printf("Failed to load config: %s\n", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(cfg.Logging.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	graph, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}
	defer graph.WalletCache.Stop()

	if len(graph.Pairs) == 0 {
		fmt.Println("no trade pairs configured (strategy.trade_pairs)")
		os.Exit(1)
	}

	amount := cmdlineFlags.amount
	if amount == 0 {
		if len(graph.Amounts) == 0 {
			fmt.Println("no probe amount given and none configured (strategy.trade_range/trade_range_strategy)")
			os.Exit(1)
		}
		amount = graph.Amounts[0]
	}

	failed := false
	for _, pair := range graph.Pairs {
		if err := probeOne(ctx, graph, pair, amount); err != nil {
			fmt.Printf("%s -> %s: %s\n", pair.InputMint, pair.OutputMint, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

// probeOne runs one dry-run cycle and prints what the engine would
// have submitted: the opportunity it found, the prepared
// transaction's wire size, and the dispatch plan's variant count.
func probeOne(ctx context.Context, g *bootstrap.Graph, pair engine.TradePair, amount uint64) error {
	deadline := engine.NewCycleDeadline(cycleTimeout)

	assembled, ok, err := g.PrepareOneCycle(ctx, pair, amount, deadline)
	if err != nil {
		return fmt.Errorf("prepare cycle: %w", err)
	}
	if !ok {
		fmt.Printf("%s -> %s: no profitable opportunity at %d lamports\n", pair.InputMint, pair.OutputMint, amount)
		return nil
	}

	wire := assembled.Prepared.Transaction.Serialize()

	fmt.Printf("%s -> %s @ %d lamports in\n", pair.InputMint, pair.OutputMint, amount)
	fmt.Printf("  profit_lamports:   %d\n", assembled.Opportunity.ProfitLamports)
	fmt.Printf("  tip_lamports:      %d\n", assembled.Opportunity.TipLamports)
	fmt.Printf("  dispatch_strategy: %s\n", g.DispatchStrategy)
	fmt.Printf("  variants:          %d\n", len(assembled.Plan.Variants))
	fmt.Printf("  wire_bytes:        %d\n", len(wire))
	fmt.Printf("  transaction_b64:   %s\n", base64.StdEncoding.EncodeToString(wire))
	return nil
}
