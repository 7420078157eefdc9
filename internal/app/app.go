package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"optionscore/internal/api"
	"optionscore/internal/bars"
	"optionscore/internal/barstore"
	"optionscore/internal/broker"
	"optionscore/internal/bus"
	"optionscore/internal/config"
	"optionscore/internal/engine"
	"optionscore/internal/instrument"
	"optionscore/internal/ledger"
	"optionscore/internal/models"
	"optionscore/internal/orders"
	"optionscore/internal/position"
	"optionscore/internal/repository"
	"optionscore/internal/risk"
	"optionscore/internal/service"
	"optionscore/internal/session"
	"optionscore/internal/strategy"
	"optionscore/internal/websocket"
	"optionscore/pkg/utils"
)

// App is the assembled process: the trading engine plus its status/control
// surface, sharing one bootstrap between the live and paper binaries.
type App struct {
	Cfg    *config.Config
	Log    *utils.Logger
	DB     *sql.DB
	Led    *ledger.Ledger
	Store  *barstore.Store
	Cache  *instrument.Cache
	Engine *engine.Engine
	Hub    *websocket.Hub
	Server *http.Server

	brk broker.Broker
}

// EngineConfig maps the loaded config onto the engine's component configs.
func EngineConfig(cfg *config.Config) engine.Config {
	loc := utils.IST()
	sessionCfg := session.Config{
		MarketOpen:       utils.NewClockTime(9, 15),
		EntryWindowStart: cfg.Session.EntryWindowStart,
		EntryWindowEnd:   cfg.Session.EntryWindowEnd,
		EodExitTime:      cfg.Session.EodExitTime,
		MarketClose:      utils.NewClockTime(15, 30),
	}

	strat := strategy.DefaultConfig()
	strat.Underlying = cfg.Strategy.Underlying
	strat.DailyADXThreshold = cfg.Strategy.DailyADXThreshold
	strat.HourlyADXThreshold = cfg.Strategy.HourlyADXThreshold
	strat.RSIPeriod = cfg.Strategy.RSIPeriod
	strat.RSIOversold = cfg.Strategy.RSIOversold
	strat.RSIOverbought = cfg.Strategy.RSIOverbought
	strat.VolumeConfirmMult = cfg.Strategy.VolumeConfirmMult
	strat.MaxPositions = cfg.Risk.MaxPositions
	strat.VixThreshold = cfg.Risk.VixThreshold
	strat.InvalidateOnRecompute = cfg.Strategy.InvalidateOnRecompute

	circuit := risk.DefaultCircuitConfig()
	circuit.VixThreshold = cfg.Risk.VixThreshold
	circuit.VixAbsoluteLimit = cfg.Risk.VixSpikeThreshold
	circuit.DailyLossLimitPct = cfg.Risk.DailyLossLimitPct
	circuit.ConsecutiveLossLimit = cfg.Risk.ConsecutiveLossLimit

	posCfg := position.DefaultConfig()
	posCfg.OptionStopLossPct = cfg.Risk.OptionStopLossPct
	posCfg.TrailActivatePnlPct = cfg.Risk.TrailActivatePnlPct
	posCfg.TrailGapPct = cfg.Risk.TrailGapPct
	posCfg.AccountBalance = cfg.Risk.AccountBalance

	orderCfg := orders.DefaultConfig()
	orderCfg.LadderStepsPct = cfg.Order.RetryStepsPct
	orderCfg.RetryBackoffs = cfg.Order.RetryBackoffs
	orderCfg.MaxRetries = cfg.Order.MaxRetries
	orderCfg.TotalRetryCap = cfg.Order.TotalRetryCap
	orderCfg.PerAttemptFillTimeout = cfg.Order.FillTimeout
	orderCfg.GlobalRatePerSec = cfg.Order.GlobalRateLimit

	pool := instrument.DefaultPoolConfig()
	pool.SubscriptionCount = cfg.Strike.SubscriptionCount

	return engine.Config{
		Underlying: cfg.Strategy.Underlying,
		VixSymbol:  cfg.Strategy.VixSymbol,
		Session:    sessionCfg,
		Holidays:   cfg.Session.Holidays,
		Bars: bars.Config{
			Location:     loc,
			SessionOpen:  utils.NewClockTime(9, 15),
			SessionClose: utils.NewClockTime(15, 30),
			BarGrace:     cfg.Session.BarReadyGrace,
			DataGap:      cfg.Session.DataGapThreshold,
		},
		Strategy: strat,
		Circuit:  circuit,
		Sizing: risk.SizingConfig{
			BasePositionSizePct: cfg.Risk.BasePositionSizePct,
			MaxPositionSize:     cfg.Risk.MaxPositionSize,
		},
		Orders:              orderCfg,
		Position:            posCfg,
		Pool:                pool,
		TokenGraceToFlatten: cfg.Session.TokenGraceToFlatten,
		DrainDeadline:       cfg.Session.DrainDeadline,
	}
}

// New assembles the full application over the given broker adapter.
func New(cfg *config.Config, brk broker.Broker, log *utils.Logger) (*App, error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	today := time.Now().In(utils.IST())
	led, err := ledger.Open(cfg.Ledger.Dir, today, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	store, err := barstore.Open(cfg.Ledger.BarsDir, log)
	if err != nil {
		led.Close()
		db.Close()
		return nil, err
	}

	cache := instrument.NewCache()
	eng := engine.New(EngineConfig(cfg), brk, led, store, cache, log)

	hub := websocket.NewHub()
	go hub.Run()

	// Repositories and services for the status surface.
	tradeRepo := repository.NewTradeRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	notifRepo := repository.NewNotificationRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	haltRepo := repository.NewHaltRepository(db)

	notifService := service.NewNotificationService(notifRepo, settingsRepo, hub, log)
	tradeService := service.NewTradeService(tradeRepo, notifService, log)
	statsService := service.NewStatsService(statsRepo, tradeRepo)
	settingsService := service.NewSettingsService(settingsRepo)
	haltService := service.NewHaltService(haltRepo)

	// Persistence and dashboard push ride the bus, off the hot path.
	eng.Bus().Subscribe(tradeService.HandlePositionClosed, bus.EventPositionClosed)
	eng.Bus().Subscribe(tradeService.HandlePositionOpened, bus.EventPositionOpened)
	eng.Bus().Subscribe(func(ev bus.Event) {
		persistOrderEvent(orderRepo, ev, log)
	}, bus.EventOrderFilled, bus.EventOrderFailed)
	eng.Bus().Subscribe(func(ev bus.Event) {
		if se, ok := ev.(bus.EngineStateEvent); ok {
			hub.BroadcastEngineState(string(se.State), se.Reason)
		}
	}, bus.EventEngineState)
	eng.Bus().Subscribe(func(ev bus.Event) {
		if po, ok := ev.(bus.PositionOpenedEvent); ok {
			hub.BroadcastPositionUpdate(po.Position)
		}
	}, bus.EventPositionOpened)
	eng.Bus().Subscribe(func(ev bus.Event) {
		if pc, ok := ev.(bus.PositionClosedEvent); ok {
			hub.BroadcastPositionUpdate(pc.Position)
		}
	}, bus.EventPositionClosed)

	deps := &api.Dependencies{
		StatsService:        statsService,
		SettingsService:     settingsService,
		NotificationService: notifService,
		HaltService:         haltService,
		EngineView:          engineView{eng},
		Hub:                 hub,
	}
	router := api.SetupRoutes(deps)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		Cfg:    cfg,
		Log:    log,
		DB:     db,
		Led:    led,
		Store:  store,
		Cache:  cache,
		Engine: eng,
		Hub:    hub,
		Server: server,
		brk:    brk,
	}, nil
}

// Run starts the engine and HTTP server and blocks until SIGINT/SIGTERM,
// then drains everything under the configured deadline.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		a.Log.Sugar().Infof("status surface on %s", a.Server.Addr)
		var err error
		if a.Cfg.Server.UseHTTPS {
			err = a.Server.ListenAndServeTLS(a.Cfg.Server.CertFile, a.Cfg.Server.KeyFile)
		} else {
			err = a.Server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			a.Log.Sugar().Errorf("http server: %v", err)
		}
	}()

	engineDone := make(chan error, 1)
	go func() { engineDone <- a.Engine.Run(runCtx) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		a.Log.Info("shutdown signal received")
	case err := <-engineDone:
		a.Log.Sugar().Warnf("engine stopped: %v", err)
	case <-ctx.Done():
	}

	a.Engine.Shutdown()
	cancel()
	<-engineDone

	return session.Drain(a.Cfg.Session.DrainDeadline, a.Log,
		session.Closer{Name: "http", Close: func(c context.Context) error { return a.Server.Shutdown(c) }},
		session.Closer{Name: "broker", Close: func(context.Context) error { return a.brk.Close() }},
		session.Closer{Name: "ledger", Close: func(context.Context) error { return a.Led.Close() }},
		session.Closer{Name: "barstore", Close: func(context.Context) error { return a.Store.Close() }},
		session.Closer{Name: "database", Close: func(context.Context) error { return a.DB.Close() }},
	)
}

// engineView adapts the engine to the API's read-only interface.
type engineView struct {
	eng *engine.Engine
}

func (v engineView) State() (string, string) {
	s, reason := v.eng.State()
	return string(s), reason
}

func (v engineView) Positions() []models.Position {
	if v.eng.Positions() == nil {
		return nil
	}
	return v.eng.Positions().Snapshots()
}

func (v engineView) DailyState() models.DailyState {
	if v.eng.Strategy() == nil {
		return models.DailyState{}
	}
	return v.eng.Strategy().DailySnapshot()
}

func (v engineView) Vix() float64        { return v.eng.VixSnapshot() }
func (v engineView) DroppedTicks() int64 { return v.eng.DroppedTicks() }
func (v engineView) SessionUUID() string { return v.eng.SessionUUID() }

// persistOrderEvent journals terminal order outcomes to the orders table.
func persistOrderEvent(repo *repository.OrderRepository, ev bus.Event, log *utils.Logger) {
	var rec models.OrderRecord
	switch e := ev.(type) {
	case bus.OrderFilledEvent:
		now := time.Now()
		rec = models.OrderRecord{
			PositionID:    e.PositionID,
			IntentID:      e.Intent.ID,
			BrokerSymbol:  e.Intent.BrokerSymbol,
			Side:          string(e.Intent.Side),
			AttemptIndex:  e.Order.Attempts,
			ClientOrderID: e.Order.ClientOrderID,
			BrokerOrderID: e.Order.BrokerOrderID,
			Quantity:      e.Intent.Qty,
			LimitPrice:    e.Order.LastPrice,
			FilledQty:     e.Order.FilledQty,
			AvgFillPrice:  e.Order.AvgFillPrice,
			Status:        models.OrderStatusFilled,
			FilledAt:      &now,
		}
	case bus.OrderFailedEvent:
		rec = models.OrderRecord{
			IntentID:     e.Intent.ID,
			BrokerSymbol: e.Intent.BrokerSymbol,
			Side:         string(e.Intent.Side),
			AttemptIndex: e.Attempts,
			Quantity:     e.Intent.Qty,
			Status:       models.OrderStatusTimedOut,
			ErrorMessage: e.Reason,
		}
	default:
		return
	}
	if err := repo.Create(&rec); err != nil {
		log.Sugar().Errorf("persist order record: %v", err)
	}
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)
	db, err := sql.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
