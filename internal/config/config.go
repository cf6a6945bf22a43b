package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ProductScout/internal/resilience"
)

const (
	configPathEnv     = "PRODUCTSCOUT_CONFIG"
	logLevelEnv       = "LOG_LEVEL"
	databaseDriverEnv = "DATABASE_DRIVER"
	databaseDSNEnv    = "DATABASE_DSN"
	llmAPIKeyEnv      = "LLM_API_KEY"
	llmModelEnv       = "LLM_MODEL"
	llmEndpointEnv    = "LLM_ENDPOINT"
	redisAddrEnv      = "REDIS_ADDR"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	natsURLEnv        = "NATS_URL"
	serverAddrEnv     = "SERVER_ADDR"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	LLM           LLMConfig          `yaml:"llm"`
	Cache         CacheConfig        `yaml:"cache"`
	Sources       []SourceConfig     `yaml:"sources"`
	Resilience    ResilienceConfig   `yaml:"resilience"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Server        ServerConfig       `yaml:"server"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// LoggingConfig selects the level and an optional rotating log file.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DatabaseConfig picks the query store: "memory", "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LLMConfig defines how to contact the JSON completion service.
type LLMConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"apiKey"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Temperature  float64       `yaml:"temperature"`
	Timeout      time.Duration `yaml:"timeout"`
}

// CacheConfig selects the completion cache backend: "none", "memory" or "redis".
type CacheConfig struct {
	Driver string        `yaml:"driver"`
	TTL    time.Duration `yaml:"ttl"`
	Redis  RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// SourceConfig enables one retrieval adapter.
type SourceConfig struct {
	Name     string `yaml:"name"`
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Limit    int    `yaml:"limit"`
}

// ResilienceConfig sizes the shared limiter, breaker and retry policy.
type ResilienceConfig struct {
	Limits           map[string]resilience.BucketConfig `yaml:"limits"`
	DefaultLimit     resilience.BucketConfig            `yaml:"defaultLimit"`
	BreakerThreshold int                                `yaml:"breakerThreshold"`
	BreakerWindow    time.Duration                      `yaml:"breakerWindow"`
	Retry            resilience.RetryPolicy             `yaml:"retry"`
}

// PipelineConfig bounds the work and cost of a single run.
type PipelineConfig struct {
	SeedTermCap         int           `yaml:"seedTermCap"`
	MentionBatchSize    int           `yaml:"mentionBatchSize"`
	ResolveThreshold    int           `yaml:"resolveThreshold"`
	ResolveWindow       int           `yaml:"resolveWindow"`
	EvidenceCandidates  int           `yaml:"evidenceCandidates"`
	EvidenceMentionCap  int           `yaml:"evidenceMentionCap"`
	Workers             int           `yaml:"workers"`
	MaxConcurrentRuns   int           `yaml:"maxConcurrentRuns"`
	PollInterval        time.Duration `yaml:"pollInterval"`
	SubmissionsPerIP    int           `yaml:"submissionsPerIp"`
	SubmissionWindow    time.Duration `yaml:"submissionWindow"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// NotificationConfig encapsulates outbound channels (Telegram, NATS).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	NATS     NATSConfig     `yaml:"nats"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// NATSConfig points run reports at a NATS server.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subjectPrefix"`
}

// Load reads .env, the YAML configuration (if present) and applies environment overrides.
func Load(path string) Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: cannot load .env: %v", err)
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if fileCfg, err := Parse(raw); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
		} else {
			cfg = mergeConfig(cfg, fileCfg)
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// Parse decodes a YAML document without applying defaults.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = strings.ToLower(v)
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv(llmEndpointEnv); v != "" {
		c.LLM.Endpoint = v
	}
	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv(natsURLEnv); v != "" {
		c.Notifications.NATS.URL = v
	}
	if v := os.Getenv(serverAddrEnv); v != "" {
		c.Server.Addr = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.File != "" {
		base.Logging.File = override.Logging.File
	}

	if override.Database.Driver != "" {
		base.Database.Driver = override.Database.Driver
	}
	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}

	if override.LLM.Endpoint != "" {
		base.LLM.Endpoint = override.LLM.Endpoint
	}
	if override.LLM.Model != "" {
		base.LLM.Model = override.LLM.Model
	}
	if override.LLM.APIKey != "" {
		base.LLM.APIKey = override.LLM.APIKey
	}
	if override.LLM.SystemPrompt != "" {
		base.LLM.SystemPrompt = override.LLM.SystemPrompt
	}
	if override.LLM.Temperature != 0 {
		base.LLM.Temperature = override.LLM.Temperature
	}
	if override.LLM.Timeout != 0 {
		base.LLM.Timeout = override.LLM.Timeout
	}

	if override.Cache.Driver != "" {
		base.Cache.Driver = override.Cache.Driver
	}
	if override.Cache.TTL != 0 {
		base.Cache.TTL = override.Cache.TTL
	}
	if override.Cache.Redis.Addr != "" {
		base.Cache.Redis = override.Cache.Redis
	}

	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}

	for name, limit := range override.Resilience.Limits {
		base.Resilience.Limits[name] = limit
	}
	if override.Resilience.DefaultLimit.Capacity != 0 {
		base.Resilience.DefaultLimit = override.Resilience.DefaultLimit
	}
	if override.Resilience.BreakerThreshold != 0 {
		base.Resilience.BreakerThreshold = override.Resilience.BreakerThreshold
	}
	if override.Resilience.BreakerWindow != 0 {
		base.Resilience.BreakerWindow = override.Resilience.BreakerWindow
	}
	if override.Resilience.Retry.MaxRetries != 0 {
		base.Resilience.Retry.MaxRetries = override.Resilience.Retry.MaxRetries
	}
	if override.Resilience.Retry.BaseDelay != 0 {
		base.Resilience.Retry.BaseDelay = override.Resilience.Retry.BaseDelay
	}
	if override.Resilience.Retry.MaxDelay != 0 {
		base.Resilience.Retry.MaxDelay = override.Resilience.Retry.MaxDelay
	}

	base.Pipeline = mergePipeline(base.Pipeline, override.Pipeline)

	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}
	if override.Notifications.NATS.URL != "" {
		base.Notifications.NATS.URL = override.Notifications.NATS.URL
	}
	if override.Notifications.NATS.SubjectPrefix != "" {
		base.Notifications.NATS.SubjectPrefix = override.Notifications.NATS.SubjectPrefix
	}

	return base
}

func mergePipeline(base, override PipelineConfig) PipelineConfig {
	pickInt := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}
	pickInt(&base.SeedTermCap, override.SeedTermCap)
	pickInt(&base.MentionBatchSize, override.MentionBatchSize)
	pickInt(&base.ResolveThreshold, override.ResolveThreshold)
	pickInt(&base.ResolveWindow, override.ResolveWindow)
	pickInt(&base.EvidenceCandidates, override.EvidenceCandidates)
	pickInt(&base.EvidenceMentionCap, override.EvidenceMentionCap)
	pickInt(&base.Workers, override.Workers)
	pickInt(&base.MaxConcurrentRuns, override.MaxConcurrentRuns)
	pickInt(&base.SubmissionsPerIP, override.SubmissionsPerIP)
	if override.PollInterval > 0 {
		base.PollInterval = override.PollInterval
	}
	if override.SubmissionWindow > 0 {
		base.SubmissionWindow = override.SubmissionWindow
	}
	return base
}

// Default returns a configuration that runs against in-memory storage.
func Default() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		Database: DatabaseConfig{Driver: "memory"},
		LLM: LLMConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You are a product research analyst. Always answer with a single valid JSON document and nothing else.",
			Temperature:  0.2,
			Timeout:      60 * time.Second,
		},
		Cache: CacheConfig{
			Driver: "memory",
			TTL:    24 * time.Hour,
			Redis:  RedisConfig{Addr: "localhost:6379", PoolSize: 10},
		},
		Sources: []SourceConfig{
			{Name: "reddit", Enabled: true, Endpoint: "https://www.reddit.com/search.json", Limit: 25},
			{Name: "websearch", Enabled: true, Endpoint: "https://html.duckduckgo.com/html/", Limit: 20},
		},
		Resilience: ResilienceConfig{
			Limits: map[string]resilience.BucketConfig{
				"reddit":              {Capacity: 5, RefillPerSecond: 1},
				"www.reddit.com":      {Capacity: 10, RefillPerSecond: 1},
				"websearch":           {Capacity: 3, RefillPerSecond: 0.5},
				"html.duckduckgo.com": {Capacity: 2, RefillPerSecond: 0.5},
				"llm":                 {Capacity: 10, RefillPerSecond: 5},
			},
			DefaultLimit:     resilience.BucketConfig{Capacity: 10, RefillPerSecond: 2},
			BreakerThreshold: 5,
			BreakerWindow:    5 * time.Minute,
			Retry:            resilience.DefaultRetryPolicy(),
		},
		Pipeline: PipelineConfig{
			SeedTermCap:        5,
			MentionBatchSize:   30,
			ResolveThreshold:   20,
			ResolveWindow:      80,
			EvidenceCandidates: 30,
			EvidenceMentionCap: 20,
			Workers:            4,
			MaxConcurrentRuns:  2,
			PollInterval:       5 * time.Second,
			SubmissionsPerIP:   10,
			SubmissionWindow:   time.Minute,
		},
		Server: ServerConfig{Addr: ":8080"},
		Notifications: NotificationConfig{
			NATS: NATSConfig{SubjectPrefix: "productscout.runs"},
		},
	}
}
