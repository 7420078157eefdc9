package main

import (
	"context"
	"log"
	"time"

	"optionscore/internal/app"
	"optionscore/internal/broker"
	"optionscore/internal/broker/live"
	"optionscore/internal/config"
	"optionscore/pkg/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	defer logger.Sync()

	if cfg.Broker.PaperTrading {
		logger.Fatal("ENABLE_PAPER_TRADING is set; use the paper binary for staged runs")
	}

	client := live.New(live.DefaultConfig(cfg.Broker.BaseURL, cfg.Broker.FeedURL), logger)

	loginCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	sess, err := client.Login(loginCtx, broker.Credentials{
		ClientID:   cfg.Broker.ClientID,
		APIKey:     cfg.Broker.APIKey,
		APISecret:  cfg.Broker.APISecret,
		TOTPSecret: cfg.Broker.TOTPSecret,
	})
	cancel()
	if err != nil {
		logger.Sugar().Fatalf("broker login failed: %v", err)
	}
	logger.Sugar().Infof("session valid until %s", sess.Expiry.Format(time.RFC3339))

	a, err := app.New(cfg, client, logger)
	if err != nil {
		logger.Sugar().Fatalf("bootstrap failed: %v", err)
	}

	// Daily instrument refresh before trading starts.
	refreshCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	instruments, err := client.FetchInstruments(refreshCtx)
	cancel()
	if err != nil {
		logger.Sugar().Fatalf("instrument master download failed: %v", err)
	}
	a.Cache.Reload(instruments)
	logger.Sugar().Infof("instrument master loaded: %d instruments", a.Cache.Size())

	// Feed reconnects require session revalidation.
	client.SetOnReconnect(func() {
		logger.Warn("feed reconnected, session revalidation required")
	})

	if err := a.Run(context.Background()); err != nil {
		logger.Sugar().Errorf("shutdown finished with errors: %v", err)
	}
	logger.Info("engine exited")
}
