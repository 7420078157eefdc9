package main

import (
	"context"
	"log"
	"math"
	"math/rand"
	"strconv"
	"time"

	"optionscore/internal/app"
	"optionscore/internal/broker/paper"
	"optionscore/internal/config"
	"optionscore/internal/instrument"
	"optionscore/internal/models"
	"optionscore/pkg/utils"
)

// The paper binary runs the identical core against the simulator: same
// engine, same pipeline, same persistence — only the broker adapter and the
// feed are synthetic. Used for staged rollout before live deployment.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg.Broker.PaperTrading = true

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	defer logger.Sync()

	instruments := syntheticMaster(cfg.Strategy.Underlying, 23456, time.Now())
	simCfg := paper.DefaultConfig()
	simCfg.Balance = cfg.Risk.AccountBalance
	sim := paper.New(simCfg, instruments, logger)

	a, err := app.New(cfg, sim, logger)
	if err != nil {
		logger.Sugar().Fatalf("bootstrap failed: %v", err)
	}
	a.Cache.Reload(instruments)
	logger.Sugar().Infof("paper session: %d synthetic instruments", a.Cache.Size())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go replayFeed(ctx, sim, cfg.Strategy.Underlying, cfg.Strategy.VixSymbol, instruments)

	if err := a.Run(ctx); err != nil {
		logger.Sugar().Errorf("shutdown finished with errors: %v", err)
	}
	logger.Info("paper engine exited")
}

// syntheticMaster builds an index plus a CE/PE strike grid at the nearest
// weekly expiry, enough for the strike pool and ATM lookup to work.
func syntheticMaster(underlying string, spot float64, now time.Time) []models.Instrument {
	inc := instrument.StrikeIncrement(underlying)
	atm := instrument.ATM(spot, inc)

	// Next Thursday, the weekly index expiry.
	expiry := now
	for expiry.Weekday() != time.Thursday {
		expiry = expiry.AddDate(0, 0, 1)
	}
	if expiry.Sub(now) < 24*time.Hour {
		expiry = expiry.AddDate(0, 0, 7)
	}

	out := []models.Instrument{{
		Token:         "100",
		TradingSymbol: underlying,
		Underlying:    underlying,
		OptionType:    models.OptionIndex,
		LotSize:       1,
		TickSize:      0.05,
	}}
	token := 101
	for i := -10; i <= 10; i++ {
		strike := atm + float64(i)*inc
		for _, ot := range []models.OptionType{models.OptionCE, models.OptionPE} {
			out = append(out, models.Instrument{
				Token:         strconv.Itoa(token),
				TradingSymbol: symbolFor(underlying, expiry, strike, ot),
				Underlying:    underlying,
				Expiry:        expiry,
				Strike:        strike,
				OptionType:    ot,
				LotSize:       50,
				TickSize:      0.05,
			})
			token++
		}
	}
	return out
}

// replayFeed drives a random-walk session: underlying ticks, a slow VIX
// series, and crude option marks derived from moneyness.
func replayFeed(ctx context.Context, sim *paper.Simulator, underlying, vixSymbol string, instruments []models.Instrument) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	spot := 23456.0
	vix := 16.0
	var volume int64

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			spot += rng.NormFloat64() * 2.5
			vix = clamp(vix+rng.NormFloat64()*0.05, 10, 40)
			volume += int64(rng.Intn(5000))

			sim.PushTick(models.Tick{
				Symbol: underlying, Token: "100",
				TsExchange: now, TsLocal: now,
				LTP: round2(spot), VolumeCum: volume,
			})
			sim.PushTick(models.Tick{
				Symbol: vixSymbol, Token: "999",
				TsExchange: now, TsLocal: now,
				LTP: round2(vix),
			})

			for _, ins := range instruments {
				if ins.OptionType != models.OptionCE && ins.OptionType != models.OptionPE {
					continue
				}
				px := optionMark(spot, ins.Strike, ins.OptionType, vix)
				sim.PushTick(models.Tick{
					Symbol: ins.TradingSymbol, Token: ins.Token,
					TsExchange: now, TsLocal: now,
					LTP: round2(px), VolumeCum: volume / 10,
				})
			}
		}
	}
}

// optionMark is a crude intrinsic + vol-scaled time value, good enough for
// staging the pipeline; it is not a pricing model.
func optionMark(spot, strike float64, ot models.OptionType, vix float64) float64 {
	intrinsic := spot - strike
	if ot == models.OptionPE {
		intrinsic = strike - spot
	}
	if intrinsic < 0 {
		intrinsic = 0
	}
	timeValue := vix * 6 * math.Exp(-math.Abs(spot-strike)/200)
	px := intrinsic + timeValue
	if px < 0.05 {
		px = 0.05
	}
	return px
}

func symbolFor(underlying string, expiry time.Time, strike float64, ot models.OptionType) string {
	return underlying + expiry.Format("02Jan06") + strconv.Itoa(int(strike)) + string(ot)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
