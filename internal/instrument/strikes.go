package instrument

import (
	"sync"
	"time"

	"optionscore/internal/models"
)

// PoolConfig controls the strike subscription pool. SubscriptionCount is
// the total strike count per side-pair row
// (default 9 → k=4 either side of ATM).
type PoolConfig struct {
	SubscriptionCount int
	// GapThresholdPct is the open-vs-previous-close move that triggers the
	// widened gap-day pool.
	GapThresholdPct float64
	// StabilizationWindow is how long the price must stay within ± one
	// increment before a widened pool narrows back.
	StabilizationWindow time.Duration
}

// DefaultPoolConfig returns the standard pool geometry.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		SubscriptionCount:   9,
		GapThresholdPct:     2.0,
		StabilizationWindow: 3 * time.Minute,
	}
}

// Pool tracks which strikes are subscribed for one underlying and decides
// when to re-center (drift ≥ one increment) or widen (gap day).
type Pool struct {
	mu  sync.Mutex
	cfg PoolConfig

	underlying string
	increment  float64

	centerATM float64
	widened   bool

	// stabilization tracking while widened
	stableSince time.Time
	stableRef   float64
}

// NewPool builds a strike pool for the underlying.
func NewPool(underlying string, cfg PoolConfig) *Pool {
	if cfg.SubscriptionCount < 1 {
		cfg.SubscriptionCount = 9
	}
	if cfg.SubscriptionCount%2 == 0 {
		cfg.SubscriptionCount++ // k must be whole: force odd
	}
	return &Pool{
		cfg:        cfg,
		underlying: underlying,
		increment:  StrikeIncrement(underlying),
	}
}

// halfWidth returns k, the strike count either side of ATM.
func (p *Pool) halfWidth() int {
	k := (p.cfg.SubscriptionCount - 1) / 2
	if p.widened {
		return 2 * k // gap-day policy: widen to k' = 2k
	}
	return k
}

// Strikes returns the currently selected strikes, ascending.
func (p *Pool) Strikes() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.strikesLocked()
}

func (p *Pool) strikesLocked() []float64 {
	if p.centerATM == 0 {
		return nil
	}
	k := p.halfWidth()
	out := make([]float64, 0, 2*k+1)
	for i := -k; i <= k; i++ {
		out = append(out, p.centerATM+float64(i)*p.increment)
	}
	return out
}

// OpenDay seeds the pool at market open. A gap open beyond the threshold
// widens the pool until the price stabilizes.
func (p *Pool) OpenDay(openLTP, previousClose float64, at time.Time) (strikes []float64, gapDay bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.centerATM = ATM(openLTP, p.increment)
	p.widened = false
	if previousClose > 0 {
		gapPct := (openLTP - previousClose) / previousClose * 100
		if gapPct < 0 {
			gapPct = -gapPct
		}
		if gapPct >= p.cfg.GapThresholdPct {
			p.widened = true
			p.stableSince = at
			p.stableRef = openLTP
		}
	}
	return p.strikesLocked(), p.widened
}

// Update processes an underlying price. Returns the new strike list and true
// when the pool changed (re-centered on drift ≥ one increment, or narrowed
// after stabilization).
func (p *Pool) Update(ltp float64, at time.Time) ([]float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	changed := false
	newATM := ATM(ltp, p.increment)
	if p.centerATM == 0 {
		p.centerATM = newATM
		changed = true
	} else if diff := newATM - p.centerATM; diff >= p.increment || diff <= -p.increment {
		p.centerATM = newATM
		changed = true
	}

	if p.widened {
		// Stabilized means the price held within ± one increment of the
		// reference for the whole window.
		drift := ltp - p.stableRef
		if drift < 0 {
			drift = -drift
		}
		if drift > p.increment {
			p.stableSince = at
			p.stableRef = ltp
		} else if at.Sub(p.stableSince) >= p.cfg.StabilizationWindow {
			p.widened = false
			changed = true
		}
	}

	if !changed {
		return nil, false
	}
	return p.strikesLocked(), true
}

// Widened reports whether the gap-day pool is still active; entries stay
// paused while it is.
func (p *Pool) Widened() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.widened
}

// Symbols resolves the pool's strikes to tradeable CE and PE instruments at
// the nearest expiry.
func (p *Pool) Symbols(cache *Cache, asOf time.Time) []models.Instrument {
	expiry, ok := cache.NearestExpiry(p.underlying, asOf)
	if !ok {
		return nil
	}
	var out []models.Instrument
	for _, strike := range p.Strikes() {
		for _, ot := range []models.OptionType{models.OptionCE, models.OptionPE} {
			if ins, ok := cache.Lookup(p.underlying, expiry, strike, ot); ok {
				out = append(out, ins)
			}
		}
	}
	return out
}
