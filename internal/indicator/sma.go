package indicator

// SMA computes a simple moving average with an expanding window for the
// first period-1 points: out[i] = mean(values[0..=i]) while i < period-1,
// then the usual rolling mean of the last period values.
func SMA(values []float64, period int) []float64 {
	return smaWithPrefix(values, period, nil)
}

// smaWithPrefix computes the rolling SMA as if prefix values preceded the
// input, returning only the outputs aligned to values. The prefix is the
// trailing hl2 window from a prior batch's snapshot; it makes the rolling
// source continuous across batch boundaries.
func smaWithPrefix(values []float64, period int, prefix []float64) []float64 {
	n := len(values)
	out := make([]float64, n)

	at := func(j int) float64 { // j indexes the virtual concat(prefix, values)
		if j < len(prefix) {
			return prefix[j]
		}
		return values[j-len(prefix)]
	}

	var sum float64
	total := 0 // values summed so far over the virtual sequence
	for j := 0; j < len(prefix); j++ {
		sum += prefix[j]
		total++
		if total > period {
			sum -= at(j - period)
			total = period
		}
	}
	for i := 0; i < n; i++ {
		j := len(prefix) + i
		sum += values[i]
		total++
		if total > period {
			sum -= at(j - period)
			total = period
		}
		out[i] = sum / float64(total)
	}
	return out
}
