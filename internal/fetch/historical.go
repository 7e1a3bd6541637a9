// Package fetch pulls historical candles for many symbols from Upstox and
// normalizes them into the time-ordered series the indicator engine expects.
package fetch

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/mhdSharuk/upstox-swing/config"
	"github.com/mhdSharuk/upstox-swing/internal/model"
	"github.com/mhdSharuk/upstox-swing/pkg/upstox"
)

// Fetcher downloads candle history for batches of instruments with bounded
// concurrency and a per-request pacing delay, mirroring broker rate limits.
type Fetcher struct {
	Client        *upstox.Client
	MaxConcurrent int           // simultaneous in-flight requests
	RateLimit     time.Duration // pause before each request
}

// New builds a Fetcher with the given pacing.
func New(client *upstox.Client, maxConcurrent int, rateLimit time.Duration) *Fetcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Fetcher{Client: client, MaxConcurrent: maxConcurrent, RateLimit: rateLimit}
}

// Result is the outcome of one batch fetch.
type Result struct {
	Series map[string]model.CandleSeries
	Errors map[string]error
}

// FetchAll downloads tf-resolution history for every symbol in instruments
// (trading symbol -> instrument key). Failures are collected per symbol; a
// symbol that returns no candles is recorded as absent, not failed.
func (f *Fetcher) FetchAll(ctx context.Context, instruments map[string]string, tf config.Timeframe) *Result {
	symbols := make([]string, 0, len(instruments))
	for sym := range instruments {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	to := time.Now()
	from := to.AddDate(0, 0, -tf.DaysHistory)
	log.Printf("[fetch] %s: %d symbols, window %s to %s", tf.Name, len(symbols), from.Format("2006-01-02"), to.Format("2006-01-02"))

	res := &Result{
		Series: make(map[string]model.CandleSeries, len(symbols)),
		Errors: make(map[string]error),
	}

	type outcome struct {
		symbol string
		series model.CandleSeries
		err    error
	}

	jobs := make(chan string)
	outcomes := make(chan outcome, f.MaxConcurrent)

	var wg sync.WaitGroup
	for w := 0; w < f.MaxConcurrent; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobs {
				if f.RateLimit > 0 {
					select {
					case <-ctx.Done():
						return
					case <-time.After(f.RateLimit):
					}
				}
				raw, err := f.Client.HistoricalCandles(ctx, instruments[sym], tf.Unit, tf.Interval, from, to)
				outcomes <- outcome{symbol: sym, series: NormalizeCandles(raw), err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, sym := range symbols {
			select {
			case <-ctx.Done():
				return
			case jobs <- sym:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	done := 0
	for oc := range outcomes {
		done++
		switch {
		case oc.err != nil:
			res.Errors[oc.symbol] = oc.err
		case len(oc.series) > 0:
			res.Series[oc.symbol] = oc.series
		}
		if done%500 == 0 {
			log.Printf("[fetch] %s: %d/%d symbols fetched", tf.Name, done, len(symbols))
		}
	}
	log.Printf("[fetch] %s done: %d with data, %d failed, %d empty",
		tf.Name, len(res.Series), len(res.Errors), len(symbols)-len(res.Series)-len(res.Errors))
	return res
}

// NormalizeCandles converts raw Upstox rows, which arrive newest-first, into
// an ascending time-ordered series with duplicate timestamps collapsed to the
// last occurrence.
func NormalizeCandles(raw []upstox.RawCandle) model.CandleSeries {
	if len(raw) == 0 {
		return nil
	}
	byTS := make(map[int64]upstox.RawCandle, len(raw))
	order := make([]int64, 0, len(raw))
	for _, rc := range raw {
		key := rc.Timestamp.UnixNano()
		if _, seen := byTS[key]; !seen {
			order = append(order, key)
		}
		byTS[key] = rc
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	series := make(model.CandleSeries, 0, len(order))
	for _, key := range order {
		rc := byTS[key]
		series = append(series, model.Candle{
			TS:     rc.Timestamp,
			Open:   rc.Open,
			High:   rc.High,
			Low:    rc.Low,
			Close:  rc.Close,
			Volume: rc.Volume,
		})
	}
	return series
}
