package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mhdSharuk/upstox-swing/config"
	"github.com/mhdSharuk/upstox-swing/internal/engine"
	"github.com/mhdSharuk/upstox-swing/internal/fetch"
	"github.com/mhdSharuk/upstox-swing/internal/logger"
	"github.com/mhdSharuk/upstox-swing/internal/markethours"
	"github.com/mhdSharuk/upstox-swing/internal/metrics"
	"github.com/mhdSharuk/upstox-swing/internal/model"
	"github.com/mhdSharuk/upstox-swing/internal/notification"
	redisstore "github.com/mhdSharuk/upstox-swing/internal/store/redis"
	sqlitestore "github.com/mhdSharuk/upstox-swing/internal/store/sqlite"
	"github.com/mhdSharuk/upstox-swing/pkg/upstox"
)

const loginTimeout = 5 * time.Minute

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[pipeline] starting...")

	cfg := config.Load()
	slogger := logger.Init("pipeline", slog.LevelInfo)

	// ---- Context and shutdown signal ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[pipeline] shutdown signal received")
		cancel()
	}()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- SQLite (durable store) ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlitestore.New(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[pipeline] sqlite init failed: %v", err)
	}
	defer store.Close()
	health.SetSQLiteOK(true)

	// ---- Redis checkpoint store (optional fast path) ----
	var checkpoint *redisstore.Store
	checkpoint, err = redisstore.New(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[pipeline] WARNING: redis init failed: %v (continuing with sqlite state only)", err)
		checkpoint = nil
		health.SetRedisConnected(false)
	} else {
		defer checkpoint.Close()
		health.SetRedisConnected(true)
	}

	if checkpoint != nil {
		health.StartLivenessChecker(ctx, checkpoint.Client(), store.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, store.DB(), 10*time.Second)
	}

	// ---- Upstox login ----
	client := upstox.New(upstox.Config{
		APIKey:      cfg.UpstoxAPIKey,
		APISecret:   cfg.UpstoxAPISecret,
		RedirectURI: cfg.UpstoxRedirectURI,
		TOTPSecret:  cfg.UpstoxTOTPSecret,
		BaseURL:     cfg.UpstoxBaseURL,
		MaxRetries:  cfg.MaxRetries,
		RetryDelay:  cfg.RetryDelay,
	})
	if err := ensureToken(ctx, client, cfg, prom); err != nil {
		log.Fatalf("[pipeline] login failed: %v", err)
	}
	health.SetTokenValid(true)

	// ---- Instrument master ----
	instruments, err := upstox.FetchInstruments(ctx, cfg.InstrumentsURL, upstox.DefaultInstrumentFilter())
	if err != nil {
		log.Fatalf("[pipeline] instrument download failed: %v", err)
	}
	log.Printf("[pipeline] %d NSE equity instruments mapped", len(instruments))

	fetcher := fetch.New(client, cfg.MaxConcurrent, cfg.RateLimitDelay)
	eng := engine.New()
	eng.Tolerance = cfg.FlatBaseTolerance
	notifier := notification.FromEnv()

	now := time.Now()
	log.Printf("[pipeline] %s", markethours.StatusString(now))
	if markethours.IsMarketOpen(now) {
		log.Println("[pipeline] WARNING: running mid-session, the newest candle is still forming")
	}

	log.Println("[pipeline] ╔══════════════════════════════════════════════════════════════╗")
	log.Println("[pipeline] ║  Swing Signal Pipeline                                       ║")
	log.Println("[pipeline] ║                                                              ║")
	log.Println("[pipeline] ║  [Upstox fetch] → [Supertrend batch] → [SQLite/Redis]        ║")
	log.Printf("[pipeline] ║  Symbols: %-50d ║", len(instruments))
	log.Println("[pipeline] ╚══════════════════════════════════════════════════════════════╝")

	// ---- One batch per timeframe ----
	for _, tf := range config.Timeframes() {
		if ctx.Err() != nil {
			break
		}
		runTimeframe(ctx, tf, cfg, instruments, fetcher, eng, store, checkpoint, notifier, prom, health, slogger)
	}

	// ---- Shutdown ----
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	log.Println("[pipeline] done.")
}

// runTimeframe executes fetch → compute → persist for one candle resolution.
// Failures inside a stage degrade the run; they never abort the other
// timeframes.
func runTimeframe(ctx context.Context, tf config.Timeframe, cfg *config.Config, instruments map[string]string, fetcher *fetch.Fetcher, eng *engine.Engine, store *sqlitestore.Store, checkpoint *redisstore.Store, notifier notification.Notifier, prom *metrics.Metrics, health *metrics.HealthStatus, slogger *slog.Logger) {
	traceID := logger.GenerateTraceID(tf.Name, time.Now())
	tctx := logger.WithTraceID(ctx, traceID)
	start := time.Now()
	slogger.Info("timeframe batch start",
		append(logger.LogWithTrace(tctx), "timeframe", tf.Name, "symbols", len(instruments))...)

	// ---- Fetch ----
	fetchStart := time.Now()
	fres := fetcher.FetchAll(tctx, instruments, tf)
	prom.FetchDuration.WithLabelValues(tf.Name).Observe(time.Since(fetchStart).Seconds())
	prom.FetchErrors.WithLabelValues(tf.Name).Add(float64(len(fres.Errors)))
	if len(fres.Series) == 0 {
		log.Printf("[pipeline] %s: no candle data fetched, skipping batch", tf.Name)
		return
	}

	// ---- Prior state for continuation ----
	prior := loadPriorState(tctx, tf.Name, checkpoint, store)

	// ---- Compute ----
	computeStart := time.Now()
	br := eng.ComputeBatch(tctx, fres.Series, cfg.IndicatorSets[tf.Name], prior)
	prom.BatchDuration.WithLabelValues(tf.Name).Observe(time.Since(computeStart).Seconds())
	prom.SymbolsProcessed.WithLabelValues(tf.Name).Set(float64(len(fres.Series)))
	prom.UnitFailures.WithLabelValues(tf.Name).Add(float64(len(br.Failures())))
	prom.UnitsSkipped.WithLabelValues(tf.Name).Add(float64(countSkipped(br)))

	// ---- Persist signals ----
	signals := engine.BuildSignals(tf.Name, fres.Series, br, tf.Retention)
	commitStart := time.Now()
	if err := store.SaveSignals(signals); err != nil {
		log.Printf("[pipeline] %s: saving signals failed: %v", tf.Name, err)
	} else {
		prom.SignalsWritten.WithLabelValues(tf.Name).Add(float64(len(signals)))
		prom.SQLiteCommitDur.Observe(time.Since(commitStart).Seconds())
	}
	if err := store.PruneSignals(tf.Name, tf.Retention); err != nil {
		log.Printf("[pipeline] %s: prune failed: %v", tf.Name, err)
	}
	if err := store.RecordRun(tf.Name, len(fres.Series), len(br.Failures()), time.Since(start)); err != nil {
		log.Printf("[pipeline] %s: recording run failed: %v", tf.Name, err)
	}

	// ---- Persist continuation state (SQLite durable, Redis fast path) ----
	states := engine.ExtractState(br)
	if err := store.SaveStates(states); err != nil {
		log.Printf("[pipeline] %s: saving state failed: %v", tf.Name, err)
	}
	if checkpoint != nil {
		if err := checkpoint.WriteStates(tctx, tf.Name, states); err != nil {
			if err == redisstore.ErrCircuitOpen {
				prom.CheckpointTrips.Inc()
			}
			log.Printf("[pipeline] %s: redis checkpoint failed: %v", tf.Name, err)
		}
	}

	// ---- Flat base alert ----
	if alert, ok := notification.BuildFlatBaseAlert(tf.Name, signals, cfg.FlatBaseMinCount); ok {
		if err := notifier.Send(tctx, alert); err != nil {
			log.Printf("[pipeline] %s: alert delivery failed: %v", tf.Name, err)
		}
	}

	health.SetLastBatch(tf.Name, time.Now())
	slogger.Info("timeframe batch done",
		append(logger.LogWithTrace(tctx),
			"timeframe", tf.Name,
			"fetched", len(fres.Series),
			"fetch_errors", len(fres.Errors),
			"succeeded", br.Succeeded(),
			"failed", len(br.Failures()),
			"signals", len(signals),
			"duration", time.Since(start).Round(time.Millisecond).String())...)
}

// loadPriorState prefers the Redis checkpoint and falls back to the durable
// SQLite copy. A missing checkpoint just means a cold start.
func loadPriorState(ctx context.Context, timeframe string, checkpoint *redisstore.Store, store *sqlitestore.Store) map[model.StateKey]model.StateSnapshot {
	if checkpoint != nil {
		states, err := checkpoint.ReadStates(ctx, timeframe)
		if err == nil && len(states) > 0 {
			log.Printf("[pipeline] %s: resuming from %d redis checkpoint entries", timeframe, len(states))
			return states
		}
		if err != nil {
			log.Printf("[pipeline] %s: redis checkpoint read failed: %v (trying sqlite)", timeframe, err)
		}
	}

	states, err := store.LoadStates()
	if err != nil {
		log.Printf("[pipeline] %s: sqlite state read failed: %v (cold start)", timeframe, err)
		return nil
	}
	if len(states) > 0 {
		log.Printf("[pipeline] %s: resuming from %d sqlite state entries", timeframe, len(states))
	}
	return states
}

func countSkipped(br *model.BatchResult) int {
	n := 0
	for _, sr := range br.Results {
		n += len(sr.Skipped)
	}
	return n
}

// ensureToken reuses a saved access token when it is still accepted, and
// otherwise runs the interactive OAuth login.
func ensureToken(ctx context.Context, client *upstox.Client, cfg *config.Config, prom *metrics.Metrics) error {
	if tok, err := upstox.LoadToken(cfg.TokenFile); err == nil {
		if !tok.LikelyExpired(time.Now()) {
			client.SetAccessToken(tok.AccessToken)
			ok, err := client.ValidateToken(ctx)
			if err == nil && ok {
				log.Printf("[pipeline] reusing saved token (valid until %s)",
					tok.ExpiresAt().Format("Mon 15:04 MST"))
				return nil
			}
		}
		log.Println("[pipeline] saved token is stale, fresh login required")
	}
	return interactiveLogin(ctx, client, cfg, prom)
}

// interactiveLogin prints the OAuth dialog URL and TOTP code, runs a local
// callback server on the redirect URI, and exchanges the returned code.
func interactiveLogin(ctx context.Context, client *upstox.Client, cfg *config.Config, prom *metrics.Metrics) error {
	redirect, err := url.Parse(cfg.UpstoxRedirectURI)
	if err != nil {
		return fmt.Errorf("bad redirect URI %q: %w", cfg.UpstoxRedirectURI, err)
	}

	codeCh := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code parameter", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Login complete. You can close this tab.")
		select {
		case codeCh <- code:
		default:
		}
	})
	srv := &http.Server{Addr: redirect.Host, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[pipeline] callback server error: %v", err)
		}
	}()
	defer srv.Shutdown(context.Background())

	state := fmt.Sprintf("%d", time.Now().UnixNano())
	log.Printf("[pipeline] open this URL to authorize:\n\n    %s\n", client.AuthorizationURL(state))
	if code, remaining, err := client.CurrentTOTP(); err == nil {
		log.Printf("[pipeline] TOTP code: %s (%ds remaining)", code, remaining)
	}

	var authCode string
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(loginTimeout):
		return fmt.Errorf("login timed out after %v", loginTimeout)
	case authCode = <-codeCh:
	}

	tok, err := client.ExchangeCode(ctx, authCode)
	if err != nil {
		return err
	}
	if err := upstox.SaveToken(cfg.TokenFile, tok); err != nil {
		log.Printf("[pipeline] WARNING: could not save token: %v", err)
	}
	prom.TokenRefreshes.Inc()
	log.Printf("[pipeline] logged in as %s, token valid until %s",
		tok.UserName, tok.ExpiresAt().Format("Mon 15:04 MST"))
	return nil
}
