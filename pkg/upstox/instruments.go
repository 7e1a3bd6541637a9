package upstox

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Instrument is one entry from the Upstox instrument master.
type Instrument struct {
	TradingSymbol  string `json:"trading_symbol"`
	InstrumentKey  string `json:"instrument_key"`
	InstrumentType string `json:"instrument_type"`
	Name           string `json:"name"`
	Exchange       string `json:"exchange"`
}

// InstrumentFilter selects which instruments survive the master download.
// The defaults match NSE cash equities: type EQ with an ISIN-bearing key.
type InstrumentFilter struct {
	Types      []string // instrument types to keep, e.g. ["EQ"]
	KeyPattern string   // substring the instrument key must contain, e.g. "INE"
}

// DefaultInstrumentFilter keeps NSE equity instruments.
func DefaultInstrumentFilter() InstrumentFilter {
	return InstrumentFilter{Types: []string{"EQ"}, KeyPattern: "INE"}
}

func (f InstrumentFilter) match(in Instrument) bool {
	if f.KeyPattern != "" && !strings.Contains(in.InstrumentKey, f.KeyPattern) {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if in.InstrumentType == t {
			return true
		}
	}
	return false
}

// FetchInstruments streams the gzipped instrument master from instrumentsURL
// and returns a trading-symbol to instrument-key map for entries passing the
// filter. Duplicate trading symbols keep the last occurrence.
func FetchInstruments(ctx context.Context, instrumentsURL string, filter InstrumentFilter) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, instrumentsURL, nil)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch instruments: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch instruments: status %d", resp.StatusCode)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch instruments: gzip: %w", err)
	}
	defer gz.Close()

	mapping, total, err := decodeInstruments(gz, filter)
	if err != nil {
		return nil, err
	}
	log.Printf("[upstox] instrument master: %d entries scanned, %d symbols kept", total, len(mapping))
	return mapping, nil
}

// decodeInstruments walks the JSON array as a token stream so the multi-MB
// master never has to live in memory at once.
func decodeInstruments(r io.Reader, filter InstrumentFilter) (map[string]string, int, error) {
	dec := json.NewDecoder(r)
	if _, err := dec.Token(); err != nil { // opening '['
		return nil, 0, fmt.Errorf("decode instruments: %w", err)
	}

	mapping := make(map[string]string)
	total := 0
	for dec.More() {
		var in Instrument
		if err := dec.Decode(&in); err != nil {
			return nil, total, fmt.Errorf("decode instruments: entry %d: %w", total, err)
		}
		total++
		if in.TradingSymbol == "" || !filter.match(in) {
			continue
		}
		mapping[in.TradingSymbol] = in.InstrumentKey
	}
	if _, err := dec.Token(); err != nil { // closing ']'
		return nil, total, fmt.Errorf("decode instruments: %w", err)
	}
	if len(mapping) == 0 {
		return nil, total, fmt.Errorf("decode instruments: no symbols matched the filter")
	}
	return mapping, total, nil
}
