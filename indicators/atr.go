package indicators

// ATR is the Wilder-smoothed average true range. With closes only, the true
// range of a bar is the absolute close-to-close move.
func ATR(closes []float64, period int) (float64, error) {
	if err := need(closes, period+1, period); err != nil {
		return 0, err
	}

	trueRanges := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		trueRanges = append(trueRanges, abs(closes[i]-closes[i-1]))
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += trueRanges[i]
	}
	atr := sum / float64(period)

	for i := period; i < len(trueRanges); i++ {
		atr = (atr*float64(period-1) + trueRanges[i]) / float64(period)
	}
	return atr, nil
}
