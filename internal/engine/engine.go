package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sort"
	"sync"

	"github.com/mhdSharuk/upstox-swing/internal/indicator"
	"github.com/mhdSharuk/upstox-swing/internal/model"
)

// InfrastructureError means the parallel dispatch mechanism itself failed —
// not a per-unit computation error. The orchestrator reacts by falling back
// to full sequential execution for the batch.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("infrastructure: %s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }

// Engine computes supertrend indicator batches across many symbols.
// The zero value is usable; fields tune behavior.
type Engine struct {
	// Tolerance is the flat-base relative-change threshold.
	// Zero means indicator.DefaultFlatBaseTolerance.
	Tolerance float64

	// ForceSequential disables the worker pool regardless of batch size.
	ForceSequential bool

	// OnProgress, when set, is called from the aggregation point in
	// completion order roughly every 10% of total units.
	OnProgress func(done, total int)
}

// New returns an Engine with default settings.
func New() *Engine { return &Engine{} }

func (e *Engine) tolerance() float64 {
	if e.Tolerance > 0 {
		return e.Tolerance
	}
	return indicator.DefaultFlatBaseTolerance
}

// ComputeBatch runs validate → ATR → supertrend → flat base → snapshot for
// every symbol×config pair. Per-symbol failures are recorded in the result,
// never raised; the worst outcome is a partially populated BatchResult.
// priorState (keyed by symbol and config name) enables continuation mode.
// The context is checked between per-symbol units, not per bar.
func (e *Engine) ComputeBatch(ctx context.Context, seriesBySymbol map[string]model.CandleSeries, configs []model.IndicatorConfig, priorState map[model.StateKey]model.StateSnapshot) *model.BatchResult {
	symbols := make([]string, 0, len(seriesBySymbol))
	for sym := range seriesBySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	strat := ChooseStrategy(len(symbols), runtime.NumCPU())
	if e.ForceSequential {
		strat = Strategy{Mode: ModeSequential, Workers: 1}
	}
	log.Printf("[engine] batch start: %d symbols × %d configs, strategy=%s", len(symbols), len(configs), strat)

	result := model.NewBatchResult(len(symbols))
	if strat.Mode == ModeParallel {
		if err := e.runParallel(ctx, symbols, seriesBySymbol, configs, priorState, strat.Workers, result); err != nil {
			var infra *InfrastructureError
			if !errors.As(err, &infra) {
				log.Printf("[engine] parallel run error: %v", err)
				return result
			}
			log.Printf("[engine] %v — falling back to sequential for the whole batch", err)
			result = model.NewBatchResult(len(symbols))
			e.runSequential(ctx, symbols, seriesBySymbol, configs, priorState, result)
		}
	} else {
		e.runSequential(ctx, symbols, seriesBySymbol, configs, priorState, result)
	}

	log.Printf("[engine] batch done: %d/%d symbols succeeded, %d failed", result.Succeeded(), len(symbols), len(result.Failures()))
	return result
}

// ExtractState collects the continuation snapshots out of a completed batch,
// keyed by (symbol, config name), for the caller to persist.
func ExtractState(br *model.BatchResult) map[model.StateKey]model.StateSnapshot {
	out := make(map[model.StateKey]model.StateSnapshot)
	if br == nil {
		return out
	}
	for sym, sr := range br.Results {
		for name, snap := range sr.States {
			out[model.StateKey{Symbol: sym, Config: name}] = snap
		}
	}
	return out
}

func (e *Engine) runSequential(ctx context.Context, symbols []string, seriesBySymbol map[string]model.CandleSeries, configs []model.IndicatorConfig, priorState map[model.StateKey]model.StateSnapshot, result *model.BatchResult) {
	prog := newProgress(len(symbols), e.OnProgress)
	for _, sym := range symbols {
		if ctx.Err() != nil {
			log.Printf("[engine] batch cancelled after %d/%d symbols", prog.done, len(symbols))
			return
		}
		result.Results[sym] = e.computeSymbol(sym, seriesBySymbol[sym], configs, priorState)
		prog.step()
	}
}

func (e *Engine) runParallel(ctx context.Context, symbols []string, seriesBySymbol map[string]model.CandleSeries, configs []model.IndicatorConfig, priorState map[model.StateKey]model.StateSnapshot, workers int, result *model.BatchResult) error {
	if workers <= 0 {
		return &InfrastructureError{Op: "start worker pool", Err: fmt.Errorf("invalid worker count %d", workers)}
	}

	jobs := make(chan string)
	results := make(chan *model.SymbolResult, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobs {
				// Each unit touches only its own symbol's series and a
				// read-only view of configs; the result map is populated
				// solely by the collector below.
				results <- e.computeSymbol(sym, seriesBySymbol[sym], configs, priorState)
			}
		}()
	}

	// Dispatcher: stops feeding on cancellation; in-flight units finish.
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
		close(results)
	}()

	// Single-writer aggregation point: completion order, ~10% progress steps.
	prog := newProgress(len(symbols), e.OnProgress)
	for sr := range results {
		result.Results[sr.Symbol] = sr
		prog.step()
	}
	if ctx.Err() != nil && prog.done < len(symbols) {
		log.Printf("[engine] batch cancelled after %d/%d symbols", prog.done, len(symbols))
	}
	return nil
}

// computeSymbol is the per-symbol unit of work. Any failure, including a
// panic in the numeric code, is captured on the SymbolResult.
func (e *Engine) computeSymbol(symbol string, series model.CandleSeries, configs []model.IndicatorConfig, priorState map[model.StateKey]model.StateSnapshot) (sr *model.SymbolResult) {
	sr = &model.SymbolResult{
		Symbol:  symbol,
		Series:  make(map[string]*model.IndicatorSeries, len(configs)),
		States:  make(map[string]model.StateSnapshot, len(configs)),
		Skipped: make(map[string]error),
	}
	defer func() {
		if r := recover(); r != nil {
			sr.Err = fmt.Errorf("unit panic: %v", r)
		}
	}()

	if err := indicator.Validate(series); err != nil {
		sr.Err = err
		return sr
	}

	// ATR is shared across configs with the same period; seeded and fresh
	// variants are cached separately because continuation shifts the whole
	// recurrence.
	type atrKey struct {
		period int
		seeded bool
	}
	atrCache := make(map[atrKey][]float64)

	for _, cfg := range configs {
		var prior *model.StateSnapshot
		if priorState != nil {
			if snap, ok := priorState[model.StateKey{Symbol: symbol, Config: cfg.Name}]; ok {
				prior = &snap
			}
		}

		// A seeded unit may continue from any number of new rows; a cold
		// start needs a full period.
		if len(series) < cfg.ATRPeriod && prior == nil {
			sr.Skipped[cfg.Name] = &indicator.InsufficientDataError{Rows: len(series), Period: cfg.ATRPeriod}
			continue
		}

		key := atrKey{period: cfg.ATRPeriod, seeded: prior != nil}
		atr, ok := atrCache[key]
		if !ok {
			atr = indicator.ATRFrom(series.Highs(), series.Lows(), series.Closes(), cfg.ATRPeriod, indicator.ATRSeedFrom(prior))
			atrCache[key] = atr
		}

		st, err := indicator.ComputeSupertrend(series, atr, cfg, prior)
		if err != nil {
			sr.Skipped[cfg.Name] = err
			continue
		}
		st.Symbol = symbol
		st.FlatBase = indicator.FlatBaseCounts(st.Supertrend, e.tolerance(), prior)

		snap, err := indicator.ExtractSnapshot(series, st, cfg, prior)
		if err != nil {
			sr.Skipped[cfg.Name] = err
			continue
		}
		sr.Series[cfg.Name] = st
		sr.States[cfg.Name] = snap
	}
	return sr
}

// progress logs completion-order progress at ~10% increments.
type progress struct {
	total   int
	done    int
	lastPct int
	cb      func(done, total int)
}

func newProgress(total int, cb func(done, total int)) *progress {
	return &progress{total: total, lastPct: -1, cb: cb}
}

func (p *progress) step() {
	p.done++
	if p.total == 0 {
		return
	}
	pct := p.done * 100 / p.total
	if pct >= p.lastPct+10 || p.done == p.total {
		log.Printf("[engine] progress: %d/%d (%d%%)", p.done, p.total, pct)
		p.lastPct = pct
	}
	if p.cb != nil {
		p.cb(p.done, p.total)
	}
}
