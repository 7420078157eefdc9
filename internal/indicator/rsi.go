package indicator

// RSI computes the Wilder-smoothed relative strength index over closes,
// returning the most recent value. Needs at least n+1 closes to produce the
// first gain/loss sample plus n periods of smoothing.
func RSI(closes []float64, n int) (float64, error) {
	if n <= 0 || len(closes) < n+1 {
		return 0, ErrInsufficientData
	}

	var gainSum, lossSum float64
	for i := 1; i <= n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum += -delta
		}
	}
	avgGain := gainSum / float64(n)
	avgLoss := lossSum / float64(n)

	for i := n + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		var gain, loss float64
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(n-1) + gain) / float64(n)
		avgLoss = (avgLoss*float64(n-1) + loss) / float64(n)
	}

	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), nil
}
