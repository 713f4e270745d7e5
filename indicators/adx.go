package indicators

// ADX implements Wilder's average directional index (trend strength) over a
// close-only window. Up moves count as +DM, down moves as -DM, and the true
// range is the absolute move. It needs 2*period+1 closes: period samples to
// seed TR/+DM/-DM and period DX values to seed the ADX.
func ADX(closes []float64, period int) (float64, error) {
	if err := need(closes, 2*period+1, period); err != nil {
		return 0, err
	}

	p := float64(period)
	var tr, pdm, mdm float64
	var adx, dxSum float64
	dxCount := 0

	for i := 1; i < len(closes); i++ {
		move := closes[i] - closes[i-1]
		var up, down float64
		if move > 0 {
			up = move
		} else {
			down = -move
		}
		r := abs(move)

		// Warmup: simple averages of the first period samples
		if i <= period {
			tr += r
			pdm += up
			mdm += down
			if i == period {
				tr /= p
				pdm /= p
				mdm /= p
			}
			continue
		}

		tr = (tr*(p-1) + r) / p
		pdm = (pdm*(p-1) + up) / p
		mdm = (mdm*(p-1) + down) / p

		var dx float64
		if tr > 0 {
			pdi := 100 * pdm / tr
			mdi := 100 * mdm / tr
			if den := pdi + mdi; den > 0 {
				dx = 100 * abs(pdi-mdi) / den
			}
		}

		if dxCount < period {
			dxSum += dx
			dxCount++
			if dxCount == period {
				adx = dxSum / p
			}
			continue
		}
		adx = (adx*(p-1) + dx) / p
	}
	return adx, nil
}
