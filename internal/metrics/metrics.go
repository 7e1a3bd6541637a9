package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the batch pipeline.
type Metrics struct {
	// Fetch stage
	FetchDuration *prometheus.HistogramVec // labels: timeframe
	FetchErrors   *prometheus.CounterVec   // labels: timeframe

	// Compute stage
	BatchDuration    *prometheus.HistogramVec // labels: timeframe
	SymbolsProcessed *prometheus.GaugeVec     // labels: timeframe
	UnitFailures     *prometheus.CounterVec   // labels: timeframe
	UnitsSkipped     *prometheus.CounterVec   // labels: timeframe

	// Persistence stage
	SignalsWritten  *prometheus.CounterVec // labels: timeframe
	SQLiteCommitDur prometheus.Histogram
	CheckpointTrips prometheus.Counter

	// Auth
	TokenRefreshes prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swing_fetch_duration_seconds",
			Help:    "Historical candle fetch duration per timeframe",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"timeframe"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swing_fetch_errors_total",
			Help: "Symbols whose candle fetch failed after retries",
		}, []string{"timeframe"}),

		BatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swing_batch_duration_seconds",
			Help:    "Indicator batch computation duration per timeframe",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 15, 30, 60},
		}, []string{"timeframe"}),
		SymbolsProcessed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "swing_symbols_processed",
			Help: "Symbols in the most recent batch per timeframe",
		}, []string{"timeframe"}),
		UnitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swing_unit_failures_total",
			Help: "Per-symbol computation failures (validation or panic)",
		}, []string{"timeframe"}),
		UnitsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swing_units_skipped_total",
			Help: "(symbol, config) units skipped for insufficient data",
		}, []string{"timeframe"}),

		SignalsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swing_signals_written_total",
			Help: "Signal rows persisted to SQLite",
		}, []string{"timeframe"}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "swing_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		CheckpointTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swing_checkpoint_breaker_trips_total",
			Help: "Times the Redis checkpoint circuit breaker tripped open",
		}),

		TokenRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swing_token_refreshes_total",
			Help: "Upstox access token logins performed",
		}),
	}

	prometheus.MustRegister(
		m.FetchDuration,
		m.FetchErrors,
		m.BatchDuration,
		m.SymbolsProcessed,
		m.UnitFailures,
		m.UnitsSkipped,
		m.SignalsWritten,
		m.SQLiteCommitDur,
		m.CheckpointTrips,
		m.TokenRefreshes,
	)

	return m
}

// HealthStatus represents pipeline health for the /healthz endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	TokenValid     bool      `json:"token_valid"`
	LastBatchAt    time.Time `json:"last_batch_at"`
	LastTimeframe  string    `json:"last_timeframe"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetTokenValid(v bool) {
	h.mu.Lock()
	h.TokenValid = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastBatch(timeframe string, at time.Time) {
	h.mu.Lock()
	h.LastBatchAt = at
	h.LastTimeframe = timeframe
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.TokenValid || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	lastBatch := ""
	batchAge := ""
	if !h.LastBatchAt.IsZero() {
		lastBatch = h.LastBatchAt.Format(time.RFC3339)
		batchAge = time.Since(h.LastBatchAt).Round(time.Second).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		TokenValid      bool    `json:"token_valid"`
		LastBatchAt     string  `json:"last_batch_at"`
		BatchAge        string  `json:"batch_age"`
		LastTimeframe   string  `json:"last_timeframe"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		TokenValid:      h.TokenValid,
		LastBatchAt:     lastBatch,
		BatchAge:        batchAge,
		LastTimeframe:   h.LastTimeframe,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
