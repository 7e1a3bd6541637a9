package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mhdSharuk/upstox-swing/config"
	"github.com/mhdSharuk/upstox-swing/internal/dashboard"
	"github.com/mhdSharuk/upstox-swing/internal/model"
	sqlitestore "github.com/mhdSharuk/upstox-swing/internal/store/sqlite"
)

const pollInterval = 30 * time.Second

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[dashboard] starting...")

	listenAddr := getEnv("DASHBOARD_ADDR", ":8081")
	sqlitePath := getEnv("SQLITE_PATH", "data/signals.db")
	flatBaseMinCount := getEnvInt("FLAT_BASE_MIN_COUNT", 3)

	store, err := sqlitestore.New(sqlitePath)
	if err != nil {
		log.Fatalf("[dashboard] sqlite open failed: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := dashboard.NewHub()

	// Push the newest rows per (symbol, config) whenever the pipeline writes.
	go pollSignals(ctx, store, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)

	// REST: latest signal rows for one timeframe.
	mux.HandleFunc("/api/signals/latest", func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		w.Header().Set("Content-Type", "application/json")

		tf := r.URL.Query().Get("tf")
		if tf == "" {
			tf = "daily"
		}
		signals, err := store.LatestSignals(tf, 0)
		if err != nil {
			log.Printf("[dashboard] query failed: %v", err)
			http.Error(w, `{"error":"query failed"}`, http.StatusInternalServerError)
			return
		}
		if signals == nil {
			signals = []model.Signal{}
		}
		json.NewEncoder(w).Encode(signals)
	})

	// REST: flat base candidates meeting the minimum run length.
	mux.HandleFunc("/api/signals/flatbase", func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		w.Header().Set("Content-Type", "application/json")

		tf := r.URL.Query().Get("tf")
		if tf == "" {
			tf = "daily"
		}
		minCount := flatBaseMinCount
		if v := r.URL.Query().Get("min"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				minCount = n
			}
		}
		signals, err := store.FlatBaseCandidates(tf, minCount)
		if err != nil {
			log.Printf("[dashboard] flat base query failed: %v", err)
			http.Error(w, `{"error":"query failed"}`, http.StatusInternalServerError)
			return
		}
		if signals == nil {
			signals = []model.Signal{}
		}
		json.NewEncoder(w).Encode(signals)
	})

	// REST: available timeframes.
	mux.HandleFunc("/api/tfs", func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		w.Header().Set("Content-Type", "application/json")
		tfs := config.Timeframes()
		names := make([]string, len(tfs))
		for i, tf := range tfs {
			names[i] = tf.Name
		}
		json.NewEncoder(w).Encode(names)
	})

	srv := &http.Server{Addr: listenAddr, Handler: mux}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[dashboard] serving at http://localhost%s", listenAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[dashboard] server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[dashboard] shutting down...")
	cancel()
	srv.Shutdown(context.Background())
}

// pollSignals re-reads the latest rows for every timeframe and broadcasts a
// timeframe's set whenever it changes.
func pollSignals(ctx context.Context, store *sqlitestore.Store, hub *dashboard.Hub) {
	lastSent := make(map[string]string)

	refresh := func() {
		for _, tf := range config.Timeframes() {
			signals, err := store.LatestSignals(tf.Name, 0)
			if err != nil {
				log.Printf("[dashboard] poll %s failed: %v", tf.Name, err)
				continue
			}
			if len(signals) == 0 {
				continue
			}
			digest, err := json.Marshal(signals)
			if err != nil {
				continue
			}
			if string(digest) == lastSent[tf.Name] {
				continue
			}
			lastSent[tf.Name] = string(digest)
			hub.Broadcast(tf.Name, signals)
			log.Printf("[dashboard] broadcast %d %s signal rows", len(signals), tf.Name)
		}
	}

	refresh()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
