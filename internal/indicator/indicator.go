// Package indicator implements the technical indicators shared by all
// strategies: SMA, EMA, RSI, ATR, ADX/DI, and rolling statistics.
//
// All functions take a candle series and return a slice aligned to the
// input length. Indices inside the warm-up window are NaN; strategies
// must translate NaN readings into HOLD signals, never into trades.
package indicator

import (
	"math"

	"candle-trade-lab/internal/domain"
)

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// Closes extracts the close column.
func Closes(c []domain.Candle) []float64 {
	out := make([]float64, len(c))
	for i := range c {
		out[i] = c[i].Close
	}
	return out
}

// SMA returns the n-period simple moving average of Close.
func SMA(c []domain.Candle, n int) []float64 {
	out := nanSlice(len(c))
	if n <= 0 || len(c) < n {
		return out
	}
	var sum float64
	for i := range c {
		sum += c[i].Close
		if i >= n {
			sum -= c[i-n].Close
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// EMA returns the n-period exponential moving average of Close, seeded
// with the SMA of the first n closes.
func EMA(c []domain.Candle, n int) []float64 {
	out := nanSlice(len(c))
	if n <= 0 || len(c) < n {
		return out
	}
	var seed float64
	for i := 0; i < n; i++ {
		seed += c[i].Close
	}
	prev := seed / float64(n)
	out[n-1] = prev

	k := 2.0 / float64(n+1)
	for i := n; i < len(c); i++ {
		prev = (c[i].Close-prev)*k + prev
		out[i] = prev
	}
	return out
}

// RSI returns the n-period Relative Strength Index using Wilder's
// smoothing.
func RSI(c []domain.Candle, n int) []float64 {
	out := nanSlice(len(c))
	if n <= 0 || len(c) <= n {
		return out
	}
	var gain, loss float64
	for i := 1; i <= n; i++ {
		d := c[i].Close - c[i-1].Close
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(n)
	avgLoss := loss / float64(n)
	out[n] = rsiValue(avgGain, avgLoss)

	for i := n + 1; i < len(c); i++ {
		d := c[i].Close - c[i-1].Close
		up, down := 0.0, 0.0
		if d > 0 {
			up = d
		} else {
			down = -d
		}
		avgGain = (avgGain*float64(n-1) + up) / float64(n)
		avgLoss = (avgLoss*float64(n-1) + down) / float64(n)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// TrueRange returns the per-bar true range. Index 0 uses high-low.
func TrueRange(c []domain.Candle) []float64 {
	out := make([]float64, len(c))
	for i := range c {
		hl := c[i].High - c[i].Low
		if i == 0 {
			out[i] = hl
			continue
		}
		hc := math.Abs(c[i].High - c[i-1].Close)
		lc := math.Abs(c[i].Low - c[i-1].Close)
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// ATR returns the n-period Average True Range with Wilder's smoothing.
func ATR(c []domain.Candle, n int) []float64 {
	out := nanSlice(len(c))
	if n <= 0 || len(c) < n {
		return out
	}
	tr := TrueRange(c)
	var sum float64
	for i := 0; i < n; i++ {
		sum += tr[i]
	}
	prev := sum / float64(n)
	out[n-1] = prev
	for i := n; i < len(c); i++ {
		prev = (prev*float64(n-1) + tr[i]) / float64(n)
		out[i] = prev
	}
	return out
}

// DMI holds the directional movement outputs, each aligned to the input.
type DMI struct {
	ADX     []float64
	PlusDI  []float64
	MinusDI []float64
}

// ADX computes the n-period Average Directional Index along with +DI and
// -DI, all with Wilder's smoothing. The ADX column needs roughly 2n bars
// to warm up.
func ADX(c []domain.Candle, n int) DMI {
	d := DMI{
		ADX:     nanSlice(len(c)),
		PlusDI:  nanSlice(len(c)),
		MinusDI: nanSlice(len(c)),
	}
	if n <= 0 || len(c) < 2*n {
		return d
	}

	tr := TrueRange(c)
	plusDM := make([]float64, len(c))
	minusDM := make([]float64, len(c))
	for i := 1; i < len(c); i++ {
		up := c[i].High - c[i-1].High
		down := c[i-1].Low - c[i].Low
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	// Seed the smoothed sums over the first n bars (skipping index 0).
	var trN, plusN, minusN float64
	for i := 1; i <= n; i++ {
		trN += tr[i]
		plusN += plusDM[i]
		minusN += minusDM[i]
	}

	dx := nanSlice(len(c))
	setDI := func(i int) {
		if trN == 0 {
			d.PlusDI[i] = 0
			d.MinusDI[i] = 0
			dx[i] = 0
			return
		}
		pdi := 100 * plusN / trN
		mdi := 100 * minusN / trN
		d.PlusDI[i] = pdi
		d.MinusDI[i] = mdi
		if pdi+mdi == 0 {
			dx[i] = 0
			return
		}
		dx[i] = 100 * math.Abs(pdi-mdi) / (pdi + mdi)
	}
	setDI(n)

	for i := n + 1; i < len(c); i++ {
		trN = trN - trN/float64(n) + tr[i]
		plusN = plusN - plusN/float64(n) + plusDM[i]
		minusN = minusN - minusN/float64(n) + minusDM[i]
		setDI(i)
	}

	// ADX is the Wilder average of DX, seeded over the second n bars.
	var dxSum float64
	for i := n; i < 2*n; i++ {
		dxSum += dx[i]
	}
	prev := dxSum / float64(n)
	d.ADX[2*n-1] = prev
	for i := 2 * n; i < len(c); i++ {
		prev = (prev*float64(n-1) + dx[i]) / float64(n)
		d.ADX[i] = prev
	}
	return d
}

// RollingStd returns the n-period rolling standard deviation of Close.
func RollingStd(c []domain.Candle, n int) []float64 {
	out := nanSlice(len(c))
	if n <= 1 || len(c) < n {
		return out
	}
	for i := n - 1; i < len(c); i++ {
		var mean float64
		for j := i - n + 1; j <= i; j++ {
			mean += c[j].Close
		}
		mean /= float64(n)
		var v float64
		for j := i - n + 1; j <= i; j++ {
			d := c[j].Close - mean
			v += d * d
		}
		out[i] = math.Sqrt(v / float64(n))
	}
	return out
}

// HighestHigh returns the highest high over the n bars ending at each
// index.
func HighestHigh(c []domain.Candle, n int) []float64 {
	out := nanSlice(len(c))
	if n <= 0 || len(c) < n {
		return out
	}
	for i := n - 1; i < len(c); i++ {
		hh := c[i-n+1].High
		for j := i - n + 2; j <= i; j++ {
			if c[j].High > hh {
				hh = c[j].High
			}
		}
		out[i] = hh
	}
	return out
}

// LowestLow returns the lowest low over the n bars ending at each index.
func LowestLow(c []domain.Candle, n int) []float64 {
	out := nanSlice(len(c))
	if n <= 0 || len(c) < n {
		return out
	}
	for i := n - 1; i < len(c); i++ {
		ll := c[i-n+1].Low
		for j := i - n + 2; j <= i; j++ {
			if c[j].Low < ll {
				ll = c[j].Low
			}
		}
		out[i] = ll
	}
	return out
}
