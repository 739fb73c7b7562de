// Package bootstrap wires the engine's components into a runnable
// Graph: the egress pool, chain gateway and caches, guard runtime,
// flash-loan manager, aggregator clients, opportunity pipeline, and
// lander stack. Both
// cmd/voyager (the continuous loop) and cmd/voyager-probe (the
// one-shot dry run) build from this same wiring so the two binaries
// can never drift apart on how a Graph is assembled.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shai-labs/voyager/internal/aggregator"
	"github.com/shai-labs/voyager/internal/cache"
	"github.com/shai-labs/voyager/internal/chain"
	"github.com/shai-labs/voyager/internal/computebudget"
	"github.com/shai-labs/voyager/internal/config"
	"github.com/shai-labs/voyager/internal/engine"
	"github.com/shai-labs/voyager/internal/flashloan/marginfi"
	"github.com/shai-labs/voyager/internal/guard"
	"github.com/shai-labs/voyager/internal/httpx"
	"github.com/shai-labs/voyager/internal/identity"
	"github.com/shai-labs/voyager/internal/lander"
	"github.com/shai-labs/voyager/internal/network"
	"github.com/shai-labs/voyager/internal/solana"
	"github.com/shai-labs/voyager/internal/telemetry"
)

const (
	quoteHTTPTimeout   = 3 * time.Second
	walletRefreshEvery = 30 * time.Second
	defaultPerIPLimit  = 4
)

// Graph holds every wired component a cycle needs to run.
type Graph struct {
	Cfg    *config.Config
	Logger *slog.Logger

	Allocator    *network.Allocator
	WalletCache  *cache.WalletCache
	GuardRuntime *guard.Runtime

	Scheduler *engine.Scheduler
	Assembler *engine.Assembler
	Builder   *engine.TransactionBuilder
	Planner   *engine.TxVariantPlanner
	Flashloan *marginfi.Manager

	Stack *lander.Stack

	Signer  solana.Signer
	Pairs   []engine.TradePair
	Amounts []uint64

	DispatchStrategy engine.DispatchStrategy
	CbConfig         computebudget.Config
}

// Build wires the graph leaves-first: egress pool, chain gateway and
// caches, guard runtime, flash-loan manager, aggregator clients, then
// the opportunity pipeline and lander stack that consume them.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Graph, error) {
	keypair, err := identity.LoadKeypairFile(cfg.Wallet.Keypair)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load wallet keypair: %w", err)
	}
	provider := identity.NewStaticProvider(keypair)
	id, _ := provider.Identity()
	signer := id.Signer

	slots, err := network.DiscoverSlots(network.InventoryConfig{
		EnableMultipleIP: cfg.Network.EnableMultipleIP,
		ManualIPs:        cfg.Network.ManualIPs,
		Blacklist:        cfg.Network.Blacklist,
		AllowLoopback:    cfg.Network.AllowLoopback,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: discover egress slots: %w", err)
	}
	cooldown := parseCooldownConfig(cfg.Network.Cooldown)
	allocator := network.NewAllocator(slots, defaultPerIPLimit, cooldown)

	rpcClient := httpx.NewClient(httpx.DialerConfig{TCPNoDelay: true}, quoteHTTPTimeout)
	rpcGateway := chain.NewRPCGateway(cfg.Chain.RpcURL, rpcClient)

	var chainGW engine.ChainGateway = rpcGateway
	if cfg.Chain.GrpcURL != "" {
		grpcSource, err := chain.DialGrpcSource(ctx, cfg.Chain.GrpcURL)
		if err != nil {
			logger.Warn("grpc chain source unavailable, falling back to rpc only", "error", err)
		} else {
			chainGW = chain.NewGatewayWithGrpcPreference(rpcGateway, grpcSource)
		}
	}

	altCache, err := cache.NewAltCache(rpcGateway)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: build alt cache: %w", err)
	}

	tokenPrograms := []solana.Pubkey{solana.TokenProgramID, solana.Token2022ProgramID}
	walletCache := cache.NewWalletCache(signer.Pubkey(), rpcGateway, tokenPrograms)
	if err := walletCache.Refresh(ctx); err != nil {
		logger.Warn("initial wallet token account refresh failed", "error", err)
	}
	walletCache.StartPeriodicRefresh(ctx, walletRefreshEvery, func(err error) {
		logger.Warn("wallet token account refresh failed", "error", err)
	})

	var guardMints []solana.Pubkey
	for _, m := range cfg.Lighthouse.ProfitGuardMints {
		pk, err := solana.PubkeyFromBase58(m)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: lighthouse.profit_guard_mints: %w", err)
		}
		guardMints = append(guardMints, pk)
	}
	var priceFeed *guard.PriceFeed
	if cfg.Lighthouse.SolPriceFeed.URL != "" {
		refresh, err := time.ParseDuration(cfg.Lighthouse.SolPriceFeed.Refresh)
		if err != nil || refresh <= 0 {
			refresh = 5 * time.Second
		}
		priceFeed = guard.NewPriceFeed(cfg.Lighthouse.SolPriceFeed.URL, refresh, rpcClient)
	}
	guardRuntime := guard.NewRuntime(
		cfg.Lighthouse.Enable,
		guardMints,
		cfg.Lighthouse.ExistingMemoryIDs,
		cfg.Lighthouse.MemorySlots,
		allocator.TotalSlots(),
		priceFeed,
	)

	flAssets, err := flashloanAssets(cfg)
	if err != nil {
		return nil, err
	}
	marginfiAccount := signer.Pubkey()
	if cfg.Flashloan.MarginfiAccount != "" {
		marginfiAccount, err = solana.PubkeyFromBase58(cfg.Flashloan.MarginfiAccount)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: flashloan.marginfi_account: %w", err)
		}
	}
	flashloanManager := marginfi.NewManager(marginfiAccount, marginfi.NewRegistry(flAssets))

	retry := aggregator.DefaultRetryConfig()
	var entries []engine.AggregatorEntry
	builders := make(map[engine.AggregatorKind]engine.BuildCaller)
	addAggregator := func(kind engine.AggregatorKind, client aggregator.Client) {
		entries = append(entries, engine.AggregatorEntry{Quoter: client, Knobs: defaultQuoteKnobs(cfg)})
		builders[kind] = client
	}
	if cfg.Aggregators.Jupiter.Enabled {
		addAggregator(engine.AggregatorJupiter, aggregator.NewJupiterClient(cfg.Aggregators.Jupiter.BaseURL, rpcClient, retry, cfg.Aggregators.Jupiter.Ultra))
	}
	if cfg.Aggregators.Dflow.Enabled {
		addAggregator(engine.AggregatorDflow, aggregator.NewDflowClient(cfg.Aggregators.Dflow.BaseURL, rpcClient, retry))
	}
	if cfg.Aggregators.Titan.Enabled {
		addAggregator(engine.AggregatorTitan, aggregator.NewTitanClient(cfg.Aggregators.Titan.BaseURL, rpcClient, retry))
	}

	sink := telemetry.NewSlogSink(logger)

	tipMode := engine.TipModeStatic
	if cfg.Strategy.Bot.StaticTipConfig.EnableRandom {
		tipMode = engine.TipModeRandomPercentage
	}
	tipCalc := engine.NewTipCalculator(
		tipMode,
		cfg.Strategy.Bot.StaticTipConfig.StaticTipPercentage/100,
		[]float64{cfg.Strategy.Bot.StaticTipConfig.RandomPercentage / 100},
		cfg.Strategy.MaxTipLamports,
	)
	evaluator := engine.NewProfitEvaluator(cfg.Strategy.MinProfitThresholdLamports, tipCalc)
	scheduler := engine.NewScheduler(entries, allocator, evaluator, sink)
	assembler := engine.NewAssembler(builders, altCache)
	builder := engine.NewTransactionBuilder(chainGW, altCache, engine.BuilderConfig{Memo: ""})
	planner := engine.NewTxVariantPlanner(cfg.Dispatch.TipStepLamports)

	var landers []lander.Lander
	for _, kind := range cfg.Lander.Stack {
		switch strings.ToLower(kind) {
		case "rpc":
			landers = append(landers, lander.NewRpcLander(cfg.Lander.RpcEndpoints, rpcClient))
		case "staked":
			landers = append(landers, lander.NewStakedLander(cfg.Lander.StakedEndpoints, rpcClient))
		case "bundle":
			landers = append(landers, lander.NewBundleLander(cfg.Lander.BundleEndpoints, rpcClient, cfg.Strategy.MaxTipLamports, cfg.Lander.BundleUUIDTicket))
		}
	}
	stack := lander.NewStack(landers, cfg.Lander.MaxRetries, sink)

	var pairs []engine.TradePair
	for _, p := range cfg.Strategy.TradePairs {
		in, err := solana.PubkeyFromBase58(p.InputMint)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: trade pair input mint: %w", err)
		}
		out, err := solana.PubkeyFromBase58(p.OutputMint)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: trade pair output mint: %w", err)
		}
		pairs = append(pairs, engine.TradePair{InputMint: in, OutputMint: out})
	}

	dispatchStrategy, ok := engine.ParseDispatchStrategy(cfg.Dispatch.Strategy)
	if !ok {
		dispatchStrategy = engine.DispatchAllAtOnce
	}

	return &Graph{
		Cfg:              cfg,
		Logger:           logger,
		Allocator:        allocator,
		WalletCache:      walletCache,
		GuardRuntime:     guardRuntime,
		Scheduler:        scheduler,
		Assembler:        assembler,
		Builder:          builder,
		Planner:          planner,
		Flashloan:        flashloanManager,
		Stack:            stack,
		Signer:           signer,
		Pairs:            pairs,
		Amounts:          probeAmounts(cfg),
		DispatchStrategy: dispatchStrategy,
		CbConfig:         computebudget.Config{},
	}, nil
}

// flashloanAssets builds the Marginfi registry entries from the
// flashloan.assets config list. An unset token_program falls back to
// the legacy SPL token program.
func flashloanAssets(cfg *config.Config) ([]marginfi.Asset, error) {
	assets := make([]marginfi.Asset, 0, len(cfg.Flashloan.Assets))
	for i, a := range cfg.Flashloan.Assets {
		mint, err := solana.PubkeyFromBase58(a.Mint)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: flashloan.assets[%d].mint: %w", i, err)
		}
		bank, err := solana.PubkeyFromBase58(a.Bank)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: flashloan.assets[%d].bank: %w", i, err)
		}
		tokenProgram := solana.TokenProgramID
		if a.TokenProgram != "" {
			tokenProgram, err = solana.PubkeyFromBase58(a.TokenProgram)
			if err != nil {
				return nil, fmt.Errorf("bootstrap: flashloan.assets[%d].token_program: %w", i, err)
			}
		}
		remaining := make([]solana.Pubkey, 0, len(a.RemainingAccounts))
		for j, acc := range a.RemainingAccounts {
			pk, err := solana.PubkeyFromBase58(acc)
			if err != nil {
				return nil, fmt.Errorf("bootstrap: flashloan.assets[%d].remaining_accounts[%d]: %w", i, j, err)
			}
			remaining = append(remaining, pk)
		}
		assets = append(assets, marginfi.Asset{
			Mint:              mint,
			Bank:              bank,
			TokenProgram:      tokenProgram,
			RemainingAccounts: remaining,
		})
	}
	return assets, nil
}

func defaultQuoteKnobs(cfg *config.Config) engine.QuoteKnobs {
	return engine.QuoteKnobs{
		SlippageBps:           cfg.Strategy.SlippageBps,
		DirectRoutesOnly:      cfg.Strategy.OnlyDirectRoutes,
		RestrictIntermediates: cfg.Strategy.RestrictIntermediateTokens,
		MaxAccounts:           int(cfg.Strategy.QuoteMaxAccounts),
		SwapMode:              engine.SwapModeExactIn,
	}
}

// probeAmounts merges the explicit trade_range list with every amount
// the stepped trade_range_strategy entries enumerate.
func probeAmounts(cfg *config.Config) []uint64 {
	amounts := append([]uint64(nil), cfg.Strategy.TradeRange...)
	for _, step := range cfg.Strategy.TradeRangeStrategy {
		if step.Step == 0 {
			continue
		}
		for v := step.From; v <= step.To; v += step.Step {
			amounts = append(amounts, v)
		}
	}
	return amounts
}

func parseCooldownConfig(cfg config.CooldownConfig) network.CooldownConfig {
	out := network.DefaultCooldownConfig()
	if d, err := time.ParseDuration(cfg.RateLimitedStart); err == nil && d > 0 {
		out.RateLimitedStart = d
	}
	if d, err := time.ParseDuration(cfg.TimeoutStart); err == nil && d > 0 {
		out.TimeoutStart = d
	}
	return out
}

// Assembled is the product of every pipeline stage short of
// submission: a fully normalised, guard-injected, flash-loan-wrapped,
// built transaction plus the dispatch plan it would be submitted as.
type Assembled struct {
	Opportunity engine.SwapOpportunity
	Prepared    engine.PreparedTransaction
	Plan        engine.DispatchPlan
}

// PrepareOneCycle runs schedule, assemble, guard-inject, flash-loan
// wrap, and build for a single (pair, amount) probe, stopping short of
// submission. cmd/voyager's continuous loop and cmd/voyager-probe's
// one-shot dry run both drive through this so neither can diverge on
// pipeline ordering.
func (g *Graph) PrepareOneCycle(ctx context.Context, pair engine.TradePair, amount uint64, deadline engine.CycleDeadline) (*Assembled, bool, error) {
	opp, ok, err := g.Scheduler.Schedule(ctx, pair, amount, deadline)
	if err != nil {
		return nil, false, fmt.Errorf("schedule: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	bundle, hints, err := g.Assembler.Assemble(ctx, opp, g.Signer.Pubkey())
	if err != nil {
		return nil, false, fmt.Errorf("assemble: %w", err)
	}
	cbCfg := g.CbConfig
	if cbCfg.UnitLimit == 0 {
		cbCfg.UnitLimit = hints.ComputeUnitLimit
	}
	if cbCfg.UnitPriceMicroLamports == 0 {
		cbCfg.UnitPriceMicroLamports = hints.ComputeUnitPriceMicroLamports
	}
	bundle.ComputeBudget = computebudget.Normalise(cbCfg, bundle.ComputeBudget)

	// The round trip lands back in the pair's input mint, so that is
	// the account whose balance the guard asserts: it must grow by at
	// least the tip the payer is about to spend, or the whole
	// transaction reverts instead of landing at a loss.
	if g.GuardRuntime.ShouldGuard(opp.Pair.InputMint) {
		if entry, ok := g.WalletCache.Get(opp.Pair.InputMint); ok {
			memoryID := g.GuardRuntime.NextMemoryID()
			guardAmount, applies, err := g.GuardRuntime.GuardAmountFor(ctx, opp.Pair.InputMint, opp.TipLamports)
			if err != nil {
				g.Logger.Warn("guard amount conversion failed", "error", err)
			} else if applies {
				tg, err := guard.BuildTokenAmountGuard(g.Signer.Pubkey(), entry.TokenAccount, memoryID, guardAmount)
				if err != nil {
					g.Logger.Warn("build balance guard failed", "error", err)
				} else {
					bundle = guard.Inject(bundle, tg)
				}
			}
		}
	}

	// When flash-loans are enabled the probe amount is borrowed against
	// the pair's input mint, so only the main (swap) lane gets the
	// begin/borrow .. repay/end sandwich; the compute-budget and guard
	// snapshot instructions stay ahead of it and the guard assertion
	// stays behind. An unregistered input mint surfaces as
	// UnsupportedAsset and abandons the opportunity.
	var borrow uint64
	if g.Cfg.Flashloan.Enable {
		borrow = opp.AmountIn
	}
	prefix := make([]solana.Instruction, 0, len(bundle.ComputeBudget)+len(bundle.Pre))
	prefix = append(prefix, bundle.ComputeBudget...)
	prefix = append(prefix, bundle.Pre...)
	sequence, _, err := g.Flashloan.Wrap(g.Signer.Pubkey(), opp.Pair.InputMint, prefix, bundle.Main, borrow)
	if err != nil {
		return nil, false, fmt.Errorf("flash loan wrap: %w", err)
	}
	sequence = append(sequence, bundle.Post...)

	prepared, err := g.Builder.BuildWithSequence(ctx, g.Signer, bundle, sequence, opp.TipLamports)
	if err != nil {
		return nil, false, fmt.Errorf("build transaction: %w", err)
	}

	plan := g.Planner.Plan(g.DispatchStrategy, prepared, g.Cfg.Dispatch.VariantBudget)
	return &Assembled{Opportunity: opp, Prepared: prepared, Plan: plan}, true, nil
}
