package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kleberhub/binance-futures-bot/config"
	"github.com/kleberhub/binance-futures-bot/internal/exchange"
	binancegw "github.com/kleberhub/binance-futures-bot/internal/exchange/binance"
	bybitgw "github.com/kleberhub/binance-futures-bot/internal/exchange/bybit"
	"github.com/kleberhub/binance-futures-bot/internal/notify"
	"github.com/kleberhub/binance-futures-bot/internal/order"
	"github.com/kleberhub/binance-futures-bot/internal/reconcile"
	"github.com/kleberhub/binance-futures-bot/internal/scheduler"
	botsignal "github.com/kleberhub/binance-futures-bot/internal/signal"
	"github.com/kleberhub/binance-futures-bot/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	if cfg.Logging.CloudWatch {
		logger.InitCloudWatch(cfg.Logging.AWSRegion, cfg.Logging.Namespace)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Bot.Name,
		"version": cfg.Bot.Version,
	}).Info("starting futures bot")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.StartReport(ctx, log, 30*time.Second)

	gateway := binancegw.NewGateway(cfg)

	var market exchange.MarketData = gateway
	if cfg.MarketData.Venue == "bybit" {
		market = bybitgw.NewMarketGateway(cfg)
		log.WithComponent("main").Info("candle fetches routed through bybit")
	}

	notifier := notify.NewLogNotifier(log, 128)
	defer notifier.Close()

	if cfg.Trading.DiscoverSymbols {
		symbols, err := gateway.USDTSymbols(ctx)
		if err != nil {
			log.WithError(err).Error("failed to discover trading symbols")
			os.Exit(1)
		}
		cfg.Trading.Symbols = symbols
		log.WithComponent("main").WithFields(logger.Fields{
			"symbols": len(symbols),
		}).Info("discovered USDT symbol universe")
	}

	if weight, err := gateway.RequestWeightLimit(ctx); err == nil && weight > 0 {
		log.WithComponent("main").WithFields(logger.Fields{
			"request_weight_per_minute": weight,
		}).Info("exchange request budget")
	}

	// Apply margin type and leverage per symbol before the first tick.
	if cfg.Trading.Enabled {
		for _, sym := range cfg.Trading.Symbols {
			if err := gateway.SetupSymbol(ctx, sym, cfg.Trading.MarginType, cfg.Trading.Leverage); err != nil {
				log.WithSymbol(sym).WithError(err).Warn("trade setup failed for symbol")
			}
		}
	}

	evaluator := botsignal.NewEvaluator(cfg)
	scanner := botsignal.NewScanner(cfg, market, evaluator)
	orchestrator := order.NewOrchestrator(cfg, market, gateway, gateway, notifier)
	reconciler := reconcile.NewReconciler(cfg, gateway, gateway, notifier)
	sched := scheduler.New(cfg, gateway, scanner, orchestrator, reconciler, notifier)

	log.WithFields(logger.Fields{
		"interval": cfg.Trading.Timeframe,
		"volume":   cfg.Trading.Volume,
		"leverage": cfg.Trading.Leverage,
		"tp":       cfg.Trading.TakeProfitPct,
		"sl":       cfg.Trading.StopLossPct,
		"symbols":  cfg.Trading.Symbols,
	}).Warn("starting trading loop")

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("scheduler exited")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	cancel()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("futures bot stopped")
}
