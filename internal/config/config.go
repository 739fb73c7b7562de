// Package config loads the engine's configuration: a YAML file
// overlaid with environment variables, with defaults applied first.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/shai-labs/voyager/internal/solana"
)

type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Debug       DebugConfig       `yaml:"debug"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Lighthouse  LighthouseConfig  `yaml:"lighthouse"`
	Lander      LanderConfig      `yaml:"lander"`
	Network     NetworkConfig     `yaml:"network"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Flashloan   FlashloanConfig   `yaml:"flashloan"`
	Chain       ChainConfig       `yaml:"chain"`
	Wallet      WalletConfig      `yaml:"wallet"`
	Aggregators AggregatorsConfig `yaml:"aggregators"`
	ListenAddress string        `yaml:"listenAddress" envconfig:"LISTEN_ADDRESS"`
	ListenPort    uint          `yaml:"port" envconfig:"PORT"`
}

// AggregatorConfig points one third-party swap-aggregator client at a
// concrete deployment.
type AggregatorConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Ultra   bool   `yaml:"ultra"` // Jupiter-only: fully-encoded-transaction build path
}

// AggregatorsConfig carries one AggregatorConfig per recognised
// aggregator kind. Field order here is the tie-break order the quote
// scheduler applies between equally profitable opportunities.
type AggregatorsConfig struct {
	Jupiter AggregatorConfig `yaml:"jupiter"`
	Dflow   AggregatorConfig `yaml:"dflow"`
	Titan   AggregatorConfig `yaml:"titan"`
}

type LoggingConfig struct {
	Level string `yaml:"level" envconfig:"LOGGING_LEVEL"`
}

type DebugConfig struct {
	ListenAddress string `yaml:"address" envconfig:"DEBUG_ADDRESS"`
	ListenPort    uint   `yaml:"port" envconfig:"DEBUG_PORT"`
}

// TradePair is one (input_mint, output_mint) probe pair.
type TradePair struct {
	InputMint  string `yaml:"input_mint"`
	OutputMint string `yaml:"output_mint"`
}

// TradeRangeStep is a stepped probe-amount range (from, to, step).
type TradeRangeStep struct {
	From uint64 `yaml:"from"`
	To   uint64 `yaml:"to"`
	Step uint64 `yaml:"step"`
}

// StaticTipConfig selects between a fixed tip percentage and a random
// draw; the two modes are mutually exclusive.
type StaticTipConfig struct {
	EnableRandom        bool    `yaml:"enable_random"`
	StaticTipPercentage float64 `yaml:"static_tip_percentage"`
	RandomPercentage    float64 `yaml:"random_percentage"`
}

type BotConfig struct {
	StaticTipConfig         StaticTipConfig `yaml:"static_tip_config"`
	OverTradeProcessDelayMs uint64          `yaml:"over_trade_process_delay_ms"`
}

// StrategyConfig carries the strategy.* keys.
type StrategyConfig struct {
	Enabled                    bool             `yaml:"enabled" envconfig:"STRATEGY_ENABLED"`
	TradePairs                 []TradePair      `yaml:"trade_pairs"`
	TradeRange                 []uint64         `yaml:"trade_range"`
	TradeRangeStrategy         []TradeRangeStep `yaml:"trade_range_strategy"`
	MinProfitThresholdLamports uint64           `yaml:"min_profit_threshold_lamports" envconfig:"MIN_PROFIT_THRESHOLD_LAMPORTS"`
	MaxTipLamports             uint64           `yaml:"max_tip_lamports" envconfig:"MAX_TIP_LAMPORTS"`
	Bot                        BotConfig        `yaml:"bot"`
	SlippageBps                uint16           `yaml:"slippage_bps" envconfig:"SLIPPAGE_BPS"`
	OnlyDirectRoutes           bool             `yaml:"only_direct_routes"`
	RestrictIntermediateTokens bool             `yaml:"restrict_intermediate_tokens"`
	QuoteMaxAccounts           uint16           `yaml:"quote_max_accounts"`
}

// SolPriceFeedConfig points the guard's SOL price feed at an oracle
// endpoint.
type SolPriceFeedConfig struct {
	URL     string `yaml:"url"`
	Refresh string `yaml:"refresh"` // duration string, e.g. "5s"; parsed by callers with time.ParseDuration
}

// LighthouseConfig carries the balance-guard (lighthouse.*) keys.
type LighthouseConfig struct {
	Enable            bool               `yaml:"enable" envconfig:"LIGHTHOUSE_ENABLE"`
	ProfitGuardMints  []string           `yaml:"profit_guard_mints"`
	ExistingMemoryIDs []uint8            `yaml:"existing_memory_ids"`
	MemorySlots       int                `yaml:"memory_slots"`
	SolPriceFeed      SolPriceFeedConfig `yaml:"sol_price_feed"`
}

// LanderConfig carries the lander.* keys.
type LanderConfig struct {
	Stack            []string `yaml:"stack" envconfig:"LANDER_STACK"`
	MaxRetries       int      `yaml:"max_retries" envconfig:"LANDER_MAX_RETRIES"`
	RpcEndpoints     []string `yaml:"rpc_endpoints"`
	StakedEndpoints  []string `yaml:"staked_endpoints"`
	BundleEndpoints  []string `yaml:"bundle_endpoints"`
	BundleUUIDTicket bool     `yaml:"bundle_uuid_ticket"`
}

// CooldownConfig holds the egress-slot cooldown durations as duration
// strings (parsed with time.ParseDuration).
type CooldownConfig struct {
	RateLimitedStart string `yaml:"rate_limited_start"`
	TimeoutStart     string `yaml:"timeout_start"`
}

// NetworkConfig carries the network.* keys for the egress pool.
type NetworkConfig struct {
	EnableMultipleIP bool           `yaml:"enable_multiple_ip" envconfig:"NETWORK_ENABLE_MULTIPLE_IP"`
	ManualIPs        []string       `yaml:"manual_ips"`
	Blacklist        []string       `yaml:"blacklist"`
	AllowLoopback    bool           `yaml:"allow_loopback"`
	Cooldown         CooldownConfig `yaml:"cooldown"`
}

// DispatchConfig carries the dispatch.* keys. TipStepLamports is the
// per-variant tip stagger for OneByOne dispatch; zero means every
// variant shares one tip.
type DispatchConfig struct {
	Strategy        string `yaml:"strategy" envconfig:"DISPATCH_STRATEGY"`
	VariantBudget   int    `yaml:"variant_budget" envconfig:"DISPATCH_VARIANT_BUDGET"`
	TipStepLamports uint64 `yaml:"tip_step_lamports" envconfig:"DISPATCH_TIP_STEP_LAMPORTS"`
}

// FlashloanAssetConfig registers one borrowable base mint with its
// Marginfi bank. TokenProgram defaults to the legacy SPL token program
// when unset; RemainingAccounts are the extra bank/oracle accounts the
// protocol's `end` instruction expects for this asset.
type FlashloanAssetConfig struct {
	Mint              string   `yaml:"mint"`
	Bank              string   `yaml:"bank"`
	TokenProgram      string   `yaml:"token_program"`
	RemainingAccounts []string `yaml:"remaining_accounts"`
}

// FlashloanConfig enables flash-loan wrapping of the main swap leg.
// When enabled, the probe amount is borrowed against the pair's input
// mint, so the wallet only fronts fees and tip.
type FlashloanConfig struct {
	Enable          bool                   `yaml:"enable" envconfig:"FLASHLOAN_ENABLE"`
	MarginfiAccount string                 `yaml:"marginfi_account" envconfig:"FLASHLOAN_MARGINFI_ACCOUNT"`
	Assets          []FlashloanAssetConfig `yaml:"assets"`
}

// ChainConfig points the chain gateway at a cluster. GrpcURL is
// optional; when set it backs the blockhash fetch.
type ChainConfig struct {
	RpcURL  string `yaml:"rpc_url" envconfig:"CHAIN_RPC_URL"`
	GrpcURL string `yaml:"grpc_url" envconfig:"CHAIN_GRPC_URL"`
}

type WalletConfig struct {
	Keypair string `yaml:"keypair" envconfig:"WALLET_KEYPAIR"`
}

// Singleton config instance with default values.
var globalConfig = &Config{
	ListenPort: 3000,
	Logging: LoggingConfig{
		Level: "info",
	},
	Debug: DebugConfig{
		ListenAddress: "localhost",
		ListenPort:    0,
	},
	Strategy: StrategyConfig{
		Enabled:                    true,
		MinProfitThresholdLamports: 1,
		SlippageBps:                50,
	},
	Lander: LanderConfig{
		Stack:      []string{"rpc"},
		MaxRetries: 0,
	},
	Dispatch: DispatchConfig{
		Strategy:      "AllAtOnce",
		VariantBudget: 1,
	},
}

var recognisedLanderKinds = map[string]bool{
	"rpc":    true,
	"staked": true,
	"bundle": true,
}

func Load(configFile string) (*Config, error) {
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %s", err)
		}
		if err := yaml.Unmarshal(buf, globalConfig); err != nil {
			return nil, fmt.Errorf("error parsing config file: %s", err)
		}
	}
	// "dummy" app name prevents picking up env vars we haven't
	// explicitly tagged above.
	if err := envconfig.Process("dummy", globalConfig); err != nil {
		return nil, fmt.Errorf("error processing environment: %s", err)
	}
	if err := globalConfig.validate(); err != nil {
		return nil, err
	}
	return globalConfig, nil
}

// validate checks cross-field consistency: trade pairs are well-formed
// pubkeys, lander kinds are recognised, and the dispatch
// strategy/variant budget are internally consistent.
func (cfg *Config) validate() error {
	for _, pair := range cfg.Strategy.TradePairs {
		if _, err := solana.PubkeyFromBase58(pair.InputMint); err != nil {
			return fmt.Errorf("strategy.trade_pairs: invalid input_mint %q: %w", pair.InputMint, err)
		}
		if _, err := solana.PubkeyFromBase58(pair.OutputMint); err != nil {
			return fmt.Errorf("strategy.trade_pairs: invalid output_mint %q: %w", pair.OutputMint, err)
		}
	}
	for _, mint := range cfg.Lighthouse.ProfitGuardMints {
		if _, err := solana.PubkeyFromBase58(mint); err != nil {
			return fmt.Errorf("lighthouse.profit_guard_mints: invalid mint %q: %w", mint, err)
		}
	}
	for _, kind := range cfg.Lander.Stack {
		if !recognisedLanderKinds[strings.ToLower(kind)] {
			return fmt.Errorf("lander.stack: unrecognised lander kind %q", kind)
		}
	}
	if _, ok := normaliseDispatchStrategy(cfg.Dispatch.Strategy); !ok {
		return fmt.Errorf("dispatch.strategy: unrecognised strategy %q", cfg.Dispatch.Strategy)
	}
	if cfg.Dispatch.VariantBudget < 1 {
		return fmt.Errorf("dispatch.variant_budget: must be positive, got %d", cfg.Dispatch.VariantBudget)
	}
	if cfg.Flashloan.Enable {
		if cfg.Flashloan.MarginfiAccount == "" {
			return fmt.Errorf("flashloan.marginfi_account: required when flashloan.enable is set")
		}
		if _, err := solana.PubkeyFromBase58(cfg.Flashloan.MarginfiAccount); err != nil {
			return fmt.Errorf("flashloan.marginfi_account: %w", err)
		}
		if len(cfg.Flashloan.Assets) == 0 {
			return fmt.Errorf("flashloan.assets: at least one asset required when flashloan.enable is set")
		}
	}
	for i, asset := range cfg.Flashloan.Assets {
		if _, err := solana.PubkeyFromBase58(asset.Mint); err != nil {
			return fmt.Errorf("flashloan.assets[%d].mint: %w", i, err)
		}
		if _, err := solana.PubkeyFromBase58(asset.Bank); err != nil {
			return fmt.Errorf("flashloan.assets[%d].bank: %w", i, err)
		}
		if asset.TokenProgram != "" {
			if _, err := solana.PubkeyFromBase58(asset.TokenProgram); err != nil {
				return fmt.Errorf("flashloan.assets[%d].token_program: %w", i, err)
			}
		}
		for j, acc := range asset.RemainingAccounts {
			if _, err := solana.PubkeyFromBase58(acc); err != nil {
				return fmt.Errorf("flashloan.assets[%d].remaining_accounts[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}

func normaliseDispatchStrategy(s string) (string, bool) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "allatonce", "all_at_once":
		return "AllAtOnce", true
	case "onebyone", "one_by_one":
		return "OneByOne", true
	default:
		return "", false
	}
}

// GetConfig returns the global config instance.
func GetConfig() *Config {
	return globalConfig
}
