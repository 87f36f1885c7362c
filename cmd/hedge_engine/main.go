package main

import (
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/config"
	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/engine"
	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/finance"
	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/logger"
	"github.com/Quantillon-Labs/smart-contracts-sub000/internal/version"
	"github.com/Quantillon-Labs/smart-contracts-sub000/pkg/utils"
)

var logLevels = []string{"debug", "info", "warn", "error"}

func main() {
	// Command line flags
	var (
		showVersion = flag.Bool("version", false, "Show version information")
		showHelp    = flag.Bool("help", false, "Show help information")
		healthCheck = flag.Bool("health-check", false, "Perform health check")
		configFile  = flag.String("config", ".env.local", "Path to configuration file")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	if *showHelp {
		fmt.Printf("Hedge Engine %s\n\n", version.Short())
		fmt.Println("Usage:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	if *healthCheck {
		fmt.Println("OK")
		os.Exit(0)
	}

	// Load configuration
	cfg := config.Load()

	// Override log level from command line
	if *logLevel != "" && utils.Contains(logLevels, *logLevel) {
		cfg.LogLevel = *logLevel
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel)
	logger.SetDefault(log)

	log.Info("Starting Hedge Engine",
		"version", version.Short(),
		"environment", cfg.Environment,
	)

	if *configFile != "" && !utils.FileExists(*configFile) {
		log.Warn("Configuration file not found, using environment defaults", "file", *configFile)
	}

	engineCfg := cfg.EngineConfig()
	log.Info("Protocol parameters",
		"max_leverage", engineCfg.MaxLeverage,
		"min_margin_ratio_bps", engineCfg.MinMarginRatioBps,
		"liquidation_threshold_bps", engineCfg.LiquidationThresholdBps,
		"cooldown", engineCfg.CooldownPeriod,
		"commitment_window", engineCfg.MaxCommitmentWindow,
	)

	// Development wiring: a pegged oracle, permissive access control and an
	// in-memory ledger. A deployment replaces these with the protocol's
	// oracle, governance and token adapters.
	ledger := newMemoryLedger()
	hedgeEngine := engine.New(engineCfg, engine.Deps{
		Price:      peggedOracle{},
		Access:     openAccess{},
		Collateral: ledger,
		Log:        log.WithComponent("engine"),
	})

	if cfg.Environment == "development" {
		if err := smokeTest(hedgeEngine, ledger, log); err != nil {
			log.Error("Engine smoke test failed", "error", err)
			os.Exit(1)
		}
	}

	log.Info("Hedge Engine is running")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Hedge Engine stopped")
}

// smokeTest opens, inspects and closes one position against the development
// wiring so a misconfigured parameter set fails at startup instead of on the
// first real operation.
func smokeTest(e *engine.HedgeEngine, ledger *memoryLedger, log *logger.Logger) error {
	const account = "dev_hedger"
	margin := new(big.Int).Mul(big.NewInt(1000), finance.CollateralScale)
	ledger.fund(account, margin)

	id, err := e.OpenPosition(account, margin, 2)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	ratio, err := e.GetMarginRatio(account, id)
	if err != nil {
		return fmt.Errorf("margin ratio: %w", err)
	}
	payout, err := e.ClosePosition(account, id)
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}

	log.Info("Engine smoke test passed", "ratio_bps", ratio.String(), "payout", payout.String())
	return nil
}

// peggedOracle reports a fixed 1.00 EUR/USD rate.
type peggedOracle struct{}

func (peggedOracle) ExchangeRate() (*big.Int, bool) {
	return new(big.Int).Set(finance.PriceScale), true
}

// openAccess grants every capability.
type openAccess struct{}

func (openAccess) HasCapability(string, engine.Role) bool { return true }

// memoryLedger is an in-memory collateral ledger that refuses overdrafts.
type memoryLedger struct {
	balances map[string]*big.Int
	mu       sync.Mutex
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{balances: make(map[string]*big.Int)}
}

func (l *memoryLedger) fund(account string, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[account] == nil {
		l.balances[account] = new(big.Int)
	}
	l.balances[account].Add(l.balances[account], amount)
}

func (l *memoryLedger) MoveCollateral(from, to string, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	src := l.balances[from]
	if src == nil || src.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance in %s", from)
	}
	src.Sub(src, amount)
	if l.balances[to] == nil {
		l.balances[to] = new(big.Int)
	}
	l.balances[to].Add(l.balances[to], amount)
	return nil
}
