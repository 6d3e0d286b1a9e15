// Package cache stores synthesized speech and its mouth cues in Redis so
// repeated lines skip synthesis and extraction.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PaulBabatuyi/copassenger-api/internal/lipsync"
)

const keyPrefix = "copassenger:speech:"

// Config holds Redis connection settings.
type Config struct {
	Addr         string
	Password     string
	DB           int
	TTL          time.Duration
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Entry is one cached line of speech.
type Entry struct {
	Audio  []byte          `json:"audio"`
	Timing *lipsync.Timing `json:"timing"`
}

// SpeechCache is a Redis-backed store of Entry values.
type SpeechCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and pings it once.
func New(ctx context.Context, cfg Config) (*SpeechCache, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 3 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 3 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &SpeechCache{client: client, ttl: cfg.TTL}, nil
}

// Key derives the cache key for a voice and text.
func Key(voice, text string) string {
	sum := sha256.Sum256([]byte(voice + "\x00" + text))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the entry for voice and text. A miss returns (nil, nil).
func (c *SpeechCache) Get(ctx context.Context, voice, text string) (*Entry, error) {
	b, err := c.client.Get(ctx, Key(voice, text)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("speech cache get: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("speech cache decode: %w", err)
	}
	return &e, nil
}

// Set stores an entry with the configured TTL.
func (c *SpeechCache) Set(ctx context.Context, voice, text string, e *Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, Key(voice, text), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("speech cache set: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *SpeechCache) Close() error { return c.client.Close() }
