// Package config loads process-wide settings once at startup. The resulting
// Config is treated as read-only and passed by pointer to every component.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// placeholderKey is what the frontend template ships in .env for an unset Gemini key.
const placeholderKey = "-"

// Config holds all application configuration.
type Config struct {
	App        AppConfig
	Server     ServerConfig
	Mongo      MongoConfig
	JWT        JWTConfig
	Gemini     GeminiConfig
	ElevenLabs ElevenLabsConfig
	Vision     VisionConfig
	LipSync    LipSyncConfig
	Redis      RedisConfig
	RateLimit  RateLimitConfig
	Breaker    BreakerConfig
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string
	Environment string // development, production
}

// Development reports whether the process runs with development logging.
func (a AppConfig) Development() bool { return a.Environment != "production" }

// ServerConfig holds HTTP and gRPC health listener settings.
type ServerConfig struct {
	Port         int
	HealthPort   int // 0 disables the gRPC health listener
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BodyLimit    int
}

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI      string
	Database string
}

// JWTConfig holds token signing settings. Keys, when set, has the form
// "kid:secret,kid2:secret2" and enables rotation; ActiveKid picks the signer.
type JWTConfig struct {
	Secret    string
	Keys      string
	ActiveKid string
	TTL       time.Duration
}

// KeyMap parses Keys into a kid -> secret map.
func (j JWTConfig) KeyMap() (map[string]string, error) {
	keys := map[string]string{}
	for _, p := range strings.Split(j.Keys, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid JWT_KEYS entry: %q", p)
		}
		keys[parts[0]] = parts[1]
	}
	return keys, nil
}

// GeminiConfig holds text generation settings.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Configured reports whether a usable API key is present.
func (g GeminiConfig) Configured() bool {
	k := strings.TrimSpace(g.APIKey)
	return k != "" && k != placeholderKey
}

// ElevenLabsConfig holds speech synthesis settings.
type ElevenLabsConfig struct {
	APIKey  string
	BaseURL string
	VoiceID string
	ModelID string
	Timeout time.Duration
}

// Configured reports whether a usable API key is present.
func (e ElevenLabsConfig) Configured() bool {
	k := strings.TrimSpace(e.APIKey)
	return k != "" && k != placeholderKey
}

// VisionConfig holds settings for the environment-analysis service.
type VisionConfig struct {
	URL              string
	DefaultStreamURL string
	Timeout          time.Duration
}

// LipSyncConfig holds paths for the audio conversion and viseme tools.
type LipSyncConfig struct {
	FFmpegPath  string
	RhubarbPath string
	AudioDir    string
	Timeout     time.Duration
}

// RedisConfig holds the optional speech cache connection. Empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RateLimitConfig bounds signup/login attempts per key.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// BreakerConfig configures circuit breakers around HTTP upstreams.
type BreakerConfig struct {
	MaxFailures uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// Load reads an optional dotenv file, then environment variables, applies
// defaults and validates the result.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		// a missing .env is fine; real deployments inject the environment
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	cfg := bind(v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "copassenger")
	v.SetDefault("APP_ENVIRONMENT", "development")

	v.SetDefault("PORT", 3000)
	v.SetDefault("HEALTH_GRPC_PORT", 0)
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "120s")
	v.SetDefault("SERVER_BODY_LIMIT", 1<<20)

	v.SetDefault("MONGODB_DATABASE", "copassenger")

	v.SetDefault("JWT_TTL", "24h")

	v.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")
	v.SetDefault("GEMINI_TIMEOUT", "30s")

	v.SetDefault("ELEVEN_LABS_BASE_URL", "https://api.elevenlabs.io")
	v.SetDefault("ELEVEN_LABS_VOICE_ID", "cgSgspJ2msm6clMCkdW9")
	v.SetDefault("ELEVEN_LABS_MODEL_ID", "eleven_multilingual_v2")
	v.SetDefault("ELEVEN_LABS_TIMEOUT", "30s")

	v.SetDefault("VISION_SERVICE_URL", "http://localhost:5000")
	v.SetDefault("VISION_DEFAULT_STREAM_URL", "http://10.52.26.19:8080/video")
	v.SetDefault("VISION_TIMEOUT", "60s")

	v.SetDefault("FFMPEG_PATH", "ffmpeg")
	v.SetDefault("RHUBARB_PATH", "rhubarb")
	v.SetDefault("AUDIO_DIR", "audios")
	v.SetDefault("LIPSYNC_TIMEOUT", "60s")

	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_TTL", "24h")

	v.SetDefault("RATE_LIMIT_RPM", 10)
	v.SetDefault("RATE_LIMIT_BURST", 3)

	v.SetDefault("BREAKER_MAX_FAILURES", 5)
	v.SetDefault("BREAKER_INTERVAL", "60s")
	v.SetDefault("BREAKER_TIMEOUT", "30s")
}

func bind(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")

	cfg.Server.Port = v.GetInt("PORT")
	cfg.Server.HealthPort = v.GetInt("HEALTH_GRPC_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.BodyLimit = v.GetInt("SERVER_BODY_LIMIT")

	cfg.Mongo.URI = v.GetString("MONGODB_URI")
	cfg.Mongo.Database = v.GetString("MONGODB_DATABASE")

	cfg.JWT.Secret = v.GetString("JWT_SECRET")
	cfg.JWT.Keys = v.GetString("JWT_KEYS")
	cfg.JWT.ActiveKid = v.GetString("JWT_ACTIVE_KID")
	cfg.JWT.TTL = v.GetDuration("JWT_TTL")

	cfg.Gemini.APIKey = v.GetString("GEMINI_API_KEY")
	cfg.Gemini.Model = v.GetString("GEMINI_MODEL")
	cfg.Gemini.Timeout = v.GetDuration("GEMINI_TIMEOUT")

	cfg.ElevenLabs.APIKey = v.GetString("ELEVEN_LABS_API_KEY")
	cfg.ElevenLabs.BaseURL = v.GetString("ELEVEN_LABS_BASE_URL")
	cfg.ElevenLabs.VoiceID = v.GetString("ELEVEN_LABS_VOICE_ID")
	cfg.ElevenLabs.ModelID = v.GetString("ELEVEN_LABS_MODEL_ID")
	cfg.ElevenLabs.Timeout = v.GetDuration("ELEVEN_LABS_TIMEOUT")

	cfg.Vision.URL = v.GetString("VISION_SERVICE_URL")
	cfg.Vision.DefaultStreamURL = v.GetString("VISION_DEFAULT_STREAM_URL")
	cfg.Vision.Timeout = v.GetDuration("VISION_TIMEOUT")

	cfg.LipSync.FFmpegPath = v.GetString("FFMPEG_PATH")
	cfg.LipSync.RhubarbPath = v.GetString("RHUBARB_PATH")
	cfg.LipSync.AudioDir = v.GetString("AUDIO_DIR")
	cfg.LipSync.Timeout = v.GetDuration("LIPSYNC_TIMEOUT")

	cfg.Redis.Addr = v.GetString("REDIS_ADDR")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.TTL = v.GetDuration("REDIS_TTL")

	cfg.RateLimit.RequestsPerMinute = v.GetInt("RATE_LIMIT_RPM")
	cfg.RateLimit.Burst = v.GetInt("RATE_LIMIT_BURST")

	cfg.Breaker.MaxFailures = v.GetUint32("BREAKER_MAX_FAILURES")
	cfg.Breaker.Interval = v.GetDuration("BREAKER_INTERVAL")
	cfg.Breaker.Timeout = v.GetDuration("BREAKER_TIMEOUT")

	return cfg
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.Mongo.URI == "" {
		return errors.New("MONGODB_URI must be set")
	}
	if c.JWT.Secret == "" && c.JWT.Keys == "" {
		return errors.New("either JWT_SECRET or JWT_KEYS must be set")
	}
	if c.JWT.Keys != "" {
		keys, err := c.JWT.KeyMap()
		if err != nil {
			return err
		}
		if _, ok := keys[c.JWT.ActiveKid]; !ok {
			return fmt.Errorf("JWT_ACTIVE_KID %q not found in JWT_KEYS", c.JWT.ActiveKid)
		}
	}
	if c.JWT.TTL <= 0 {
		return fmt.Errorf("invalid JWT_TTL: %s", c.JWT.TTL)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.LipSync.AudioDir == "" {
		return errors.New("AUDIO_DIR must not be empty")
	}
	return nil
}
