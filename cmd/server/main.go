package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"go-ledger/internal/config"
	"go-ledger/internal/db"
	"go-ledger/internal/events"
	"go-ledger/internal/handlers"
	"go-ledger/internal/ledger"
	"go-ledger/internal/repository"
	"go-ledger/internal/router"
	"go-ledger/internal/services"
	"go-ledger/internal/utils"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default config.yaml, config.local.yaml preferred)")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(level)
	}

	if err := config.LoadConfig(*configPath); err != nil {
		logger.WithFields(logrus.Fields{"error": err.Error()}).Fatal("Failed to load config")
	}
	cfg := config.AppConfig

	database, err := db.InitDB(cfg.Database.DSN, logger)
	if err != nil {
		logger.WithFields(logrus.Fields{"error": err.Error()}).Fatal("Failed to initialize database")
	}

	var positionRepo repository.PositionRepository
	var poolRepo repository.PoolRepository
	var receiptRepo repository.ReceiptRepository
	var policyRepo repository.PolicyRepository
	if database != nil {
		positionRepo = repository.NewPositionRepository(database)
		poolRepo = repository.NewPoolRepository(database)
		receiptRepo = repository.NewReceiptRepository(database)
		policyRepo = repository.NewPolicyRepository(database)
	}

	var publisher *events.Publisher
	if cfg.NATS.URL != "" {
		publisher, err = events.NewPublisher(cfg.NATS.URL, cfg.NATS.StreamName, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			logger.WithFields(logrus.Fields{"error": err.Error()}).Fatal("Failed to initialize NATS publisher")
		}
		defer publisher.Close()
	} else {
		logger.Info("No NATS URL configured, event publishing disabled")
	}

	if cfg.Ledger.Mode != "memory" {
		logger.WithFields(logrus.Fields{"mode": cfg.Ledger.Mode}).Fatal("Unsupported ledger mode")
	}
	tokenLedger := ledger.NewInMemoryLedger(cfg.Ledger.TransferFeeBps)
	oracle := ledger.NewStaticOracle()
	clock := ledger.SystemClock{}

	if !common.IsHexAddress(cfg.Staking.VaultAddress) {
		logger.Fatal("staking.vaultAddress must be a hex address")
	}
	vault := common.HexToAddress(cfg.Staking.VaultAddress)

	policyService := services.NewPolicyService(cfg.Policy, policyRepo, publisher, logger)
	stakingService := services.NewStakingService(policyService, tokenLedger, clock, vault, positionRepo, receiptRepo, publisher, logger)
	swapService := services.NewSwapService(tokenLedger, oracle, clock, policyService, poolRepo, receiptRepo, publisher, logger)

	ctx := context.Background()
	if err := stakingService.LoadFromStore(ctx); err != nil {
		logger.WithFields(logrus.Fields{"error": err.Error()}).Fatal("Failed to load stake positions")
	}
	if err := swapService.LoadFromStore(ctx); err != nil {
		logger.WithFields(logrus.Fields{"error": err.Error()}).Fatal("Failed to load pools")
	}
	seedPools(ctx, cfg, swapService, tokenLedger, logger)

	hub := handlers.NewWebSocketHub(logger)
	stakingService.SetSink(hub)
	swapService.SetSink(hub)

	r := router.SetupRouter(router.Deps{
		Config:         cfg,
		DB:             database,
		StakingService: stakingService,
		SwapService:    swapService,
		PolicyService:  policyService,
		Hub:            hub,
		Logger:         logger,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.WithFields(logrus.Fields{"addr": addr}).Info("Server starting")
	if err := r.Run(addr); err != nil {
		logger.WithFields(logrus.Fields{"error": err.Error()}).Fatal("Server exited")
	}
}

// seedPools creates the configured pools that do not exist yet. In memory
// ledger mode the vault is minted the seed reserves so swaps can settle.
func seedPools(ctx context.Context, cfg *config.Config, swapService *services.SwapService, tokenLedger *ledger.InMemoryLedger, logger *logrus.Logger) {
	for _, seed := range cfg.Pools {
		reserveBase := utils.ParseAmount(seed.ReserveBase)
		reserveQuote := utils.ParseAmount(seed.ReserveQuote)
		if reserveBase == nil || reserveQuote == nil {
			logger.WithFields(logrus.Fields{
				"base":  seed.BaseToken,
				"quote": seed.QuoteToken,
			}).Warn("Skipping pool seed with invalid reserves")
			continue
		}
		vaultAddr := seed.VaultAddress
		if vaultAddr == "" {
			vaultAddr = cfg.Staking.VaultAddress
		}
		if !common.IsHexAddress(vaultAddr) {
			logger.WithFields(logrus.Fields{"vault": vaultAddr}).Warn("Skipping pool seed with invalid vault address")
			continue
		}
		vault := common.HexToAddress(vaultAddr)

		tokenLedger.Mint(vault, new(big.Int).Add(reserveBase, reserveQuote))

		if _, err := swapService.CreatePool(ctx, seed.BaseToken, seed.QuoteToken,
			reserveBase, reserveQuote, seed.FeeBps, seed.SpreadBps, vault); err != nil {
			logger.WithFields(logrus.Fields{
				"base":  seed.BaseToken,
				"quote": seed.QuoteToken,
				"error": err.Error(),
			}).Warn("Pool seed skipped")
		}
	}
}
