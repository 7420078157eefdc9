package instrument

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"optionscore/internal/models"
)

// StrikeIncrement returns the listed strike spacing for an underlying.
// Unknown underlyings fall back to 50.
func StrikeIncrement(underlying string) float64 {
	switch underlying {
	case "BANKNIFTY":
		return 100
	case "NIFTY", "FINNIFTY":
		return 50
	default:
		return 50
	}
}

// ATM returns the at-the-money strike for the LTP. Rounding is always down:
// ATM = floor(ltp / inc) * inc.
func ATM(ltp, inc float64) float64 {
	if inc <= 0 {
		return ltp
	}
	return math.Floor(ltp/inc) * inc
}

type lookupKey struct {
	underlying string
	expiry     string // "2006-01-02"
	strike     float64
	optType    models.OptionType
}

// Cache is the in-memory instrument master for the session.
// Instruments are immutable once loaded; Reload swaps the whole set on the
// daily refresh.
type Cache struct {
	mu           sync.RWMutex
	byKey        map[lookupKey]models.Instrument
	byToken      map[string]models.Instrument
	bySymbol     map[string]models.Instrument
	byUnderlying map[string][]models.Instrument
}

// NewCache builds an empty cache; call Reload with the instrument master.
func NewCache() *Cache {
	c := &Cache{}
	c.reset()
	return c
}

func (c *Cache) reset() {
	c.byKey = make(map[lookupKey]models.Instrument)
	c.byToken = make(map[string]models.Instrument)
	c.bySymbol = make(map[string]models.Instrument)
	c.byUnderlying = make(map[string][]models.Instrument)
}

// Reload replaces the cached set with the day's instrument master.
func (c *Cache) Reload(list []models.Instrument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	for _, ins := range list {
		k := lookupKey{
			underlying: ins.Underlying,
			expiry:     ins.Expiry.Format("2006-01-02"),
			strike:     ins.Strike,
			optType:    ins.OptionType,
		}
		c.byKey[k] = ins
		c.byToken[ins.Token] = ins
		c.bySymbol[ins.TradingSymbol] = ins
		c.byUnderlying[ins.Underlying] = append(c.byUnderlying[ins.Underlying], ins)
	}
	for u := range c.byUnderlying {
		list := c.byUnderlying[u]
		sort.Slice(list, func(i, j int) bool {
			if !list[i].Expiry.Equal(list[j].Expiry) {
				return list[i].Expiry.Before(list[j].Expiry)
			}
			return list[i].Strike < list[j].Strike
		})
		c.byUnderlying[u] = list
	}
}

// Lookup finds the instrument for (underlying, expiry, strike, option type).
func (c *Cache) Lookup(underlying string, expiry time.Time, strike float64, ot models.OptionType) (models.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ins, ok := c.byKey[lookupKey{
		underlying: underlying,
		expiry:     expiry.Format("2006-01-02"),
		strike:     strike,
		optType:    ot,
	}]
	return ins, ok
}

// BySymbol resolves a broker trading symbol.
func (c *Cache) BySymbol(symbol string) (models.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ins, ok := c.bySymbol[symbol]
	return ins, ok
}

// ByToken resolves a feed token.
func (c *Cache) ByToken(token string) (models.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ins, ok := c.byToken[token]
	return ins, ok
}

// ByUnderlying enumerates every instrument for an underlying, sorted by
// expiry then strike.
func (c *Cache) ByUnderlying(underlying string) []models.Instrument {
	c.mu.RLock()
	defer c.mu.RUnlock()
	src := c.byUnderlying[underlying]
	out := make([]models.Instrument, len(src))
	copy(out, src)
	return out
}

// NearestExpiry returns the earliest option expiry for the underlying on or
// after the reference date.
func (c *Cache) NearestExpiry(underlying string, asOf time.Time) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	day := asOf.Truncate(24 * time.Hour)
	var best time.Time
	found := false
	for _, ins := range c.byUnderlying[underlying] {
		if ins.OptionType != models.OptionCE && ins.OptionType != models.OptionPE {
			continue
		}
		if ins.Expiry.Truncate(24 * time.Hour).Before(day) {
			continue
		}
		if !found || ins.Expiry.Before(best) {
			best = ins.Expiry
			found = true
		}
	}
	return best, found
}

// Size returns the number of cached instruments.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byToken)
}

// ErrNotFound formats a lookup miss for error paths that need one.
func ErrNotFound(underlying string, strike float64, ot models.OptionType) error {
	return fmt.Errorf("instrument not found: %s %g %s", underlying, strike, ot)
}
