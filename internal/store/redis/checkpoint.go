// Package redis keeps batch continuation checkpoints in Redis so the next
// pipeline run can resume indicator state without replaying history. SQLite
// remains the durable copy; Redis is the fast path with a TTL.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mhdSharuk/upstox-swing/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const defaultTTL = 24 * time.Hour

// Config configures the checkpoint store.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
	TTL      time.Duration // checkpoint lifetime, default 24h
}

// Store reads and writes continuation snapshots as Redis hashes, one hash per
// timeframe, one field per (symbol, config) unit. Writes go through a circuit
// breaker so a dead Redis degrades the pipeline instead of stalling it.
type Store struct {
	client  *goredis.Client
	ttl     time.Duration
	breaker *CircuitBreaker
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// New creates a checkpoint store and pings the server.
func New(cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	breaker := NewCircuitBreaker(5, 10*time.Second)
	breaker.OnStateChange = func(from, to State) {
		log.Printf("[redis] checkpoint breaker %s -> %s", from, to)
	}
	return &Store{client: client, ttl: ttl, breaker: breaker}, nil
}

func checkpointKey(timeframe string) string {
	return "swing:state:" + timeframe
}

// stateField encodes a (symbol, config) pair as one hash field name.
func stateField(key model.StateKey) string {
	return key.Symbol + "|" + key.Config
}

// parseStateField is the inverse of stateField.
func parseStateField(field string) (model.StateKey, bool) {
	i := strings.IndexByte(field, '|')
	if i <= 0 || i == len(field)-1 {
		return model.StateKey{}, false
	}
	return model.StateKey{Symbol: field[:i], Config: field[i+1:]}, true
}

// WriteStates replaces the checkpoint hash for a timeframe with the given
// snapshots and refreshes its TTL.
func (s *Store) WriteStates(ctx context.Context, timeframe string, states map[model.StateKey]model.StateSnapshot) error {
	if len(states) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(states))
	for key, snap := range states {
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("marshal checkpoint %s/%s: %w", key.Symbol, key.Config, err)
		}
		fields[stateField(key)] = string(data)
	}

	hashKey := checkpointKey(timeframe)
	return s.breaker.Execute(func() error {
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, hashKey)
		pipe.HSet(ctx, hashKey, fields)
		pipe.Expire(ctx, hashKey, s.ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis write checkpoint %s: %w", hashKey, err)
		}
		log.Printf("[redis] wrote %d checkpoint entries to %s", len(states), hashKey)
		return nil
	})
}

// ReadStates loads the checkpoint hash for a timeframe. A missing hash is not
// an error; corrupt fields are skipped with a warning.
func (s *Store) ReadStates(ctx context.Context, timeframe string) (map[model.StateKey]model.StateSnapshot, error) {
	hashKey := checkpointKey(timeframe)
	fields, err := s.client.HGetAll(ctx, hashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read checkpoint %s: %w", hashKey, err)
	}

	out := make(map[model.StateKey]model.StateSnapshot, len(fields))
	for field, data := range fields {
		key, ok := parseStateField(field)
		if !ok {
			log.Printf("[redis] skipping malformed checkpoint field %q in %s", field, hashKey)
			continue
		}
		var snap model.StateSnapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			log.Printf("[redis] skipping corrupt checkpoint %s: %v", field, err)
			continue
		}
		out[key] = snap
	}
	return out, nil
}

// Clear drops the checkpoint hash for a timeframe.
func (s *Store) Clear(ctx context.Context, timeframe string) error {
	return s.client.Del(ctx, checkpointKey(timeframe)).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
