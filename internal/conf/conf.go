package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	PlatformTwitter   = "twitter"
	PlatformFarcaster = "farcaster"

	StoreJSON   = "json"
	StoreSQLite = "sqlite"
)

// MinLeaseTTL bounds LEASE_TTL from below. A lease is renewed right before
// the platform post, so it must outlast media upload plus every post retry.
const MinLeaseTTL = 5 * time.Minute

// Config represents application configuration, built once at startup
type Config struct {
	Platform string
	DryRun   bool
	Workers  int

	LLM       LLMConfig
	Twitter   TwitterConfig
	Farcaster FarcasterConfig
	Filter    FilterConfig
	Pipeline  PipelineConfig
	Image     ImageConfig
	Store     StoreConfig
	Lark      LarkConfig
	API       APIConfig
	Log       LogConfig

	// Prompts configuration (loaded from YAML)
	Prompts *PromptsConfig
}

// LLMConfig contains the OpenAI-compatible gateway settings
type LLMConfig struct {
	BaseURL          string
	APIKey           string
	LargeModel       string
	SmallModel       string
	ReplyTemperature float32
}

// TwitterConfig contains Twitter configuration
type TwitterConfig struct {
	BotName      string // display name of the bot account
	SearchAPIKey string
	AccessToken  string
}

// FarcasterConfig contains Farcaster configuration
type FarcasterConfig struct {
	APIKey     string
	SignerUUID string
	FID        int64
	Username   string
}

// FilterConfig contains mention filter settings
type FilterConfig struct {
	SearchTerms    []string
	IgnoreCriteria string
}

// PipelineConfig contains pacing and lease settings
type PipelineConfig struct {
	RateLimitSleep    time.Duration
	PollInterval      time.Duration
	PageDelay         time.Duration
	MaxPages          int
	LeaseTTL          time.Duration
	ReaperInterval    time.Duration
	MaxAttempts       int
	PostRatePerMinute int
}

// ImageConfig contains image generation settings
type ImageConfig struct {
	Probability  float64
	ImgbbAPIKey  string
	SequencerURL string
	Model        string
}

// StoreConfig contains queue store settings
type StoreConfig struct {
	Backend  string
	Path     string
	ReadOnly bool // inspection tools; never creates, moves or writes the store
}

// LarkConfig contains the optional ops mirror chat
type LarkConfig struct {
	AppID     string
	AppSecret string
	ChatID    string
}

// Enabled reports whether the Lark mirror is configured
func (c LarkConfig) Enabled() bool {
	return c.AppID != "" && c.AppSecret != "" && c.ChatID != ""
}

// APIConfig contains the status API settings
type APIConfig struct {
	Addr string
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string
	Pretty bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	return LoadFromEnvFor("")
}

// LoadFromEnvFor is LoadFromEnv with the platform chosen by the caller;
// an empty platform falls back to PLATFORM
func LoadFromEnvFor(platform string) *Config {
	if platform == "" {
		platform = envString("PLATFORM", PlatformTwitter)
	}
	platform = strings.ToLower(platform)

	// Platform-specific pacing defaults
	rateLimitSleep, pollInterval, pageDelay := 120*time.Second, 1800*time.Second, 5*time.Second
	if platform == PlatformFarcaster {
		rateLimitSleep, pollInterval, pageDelay = 5*time.Second, 10*time.Second, 0
	}

	// Search terms
	var searchTerms []string
	if val := os.Getenv("SEARCH_TERMS"); val != "" {
		searchTerms = splitList(val)
	} else if platform == PlatformTwitter {
		searchTerms = []string{"@heurist_ai"}
	}

	// Farcaster fid
	var fid int64
	if val := os.Getenv("FARCASTER_FID"); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			fid = parsed
		}
	}

	// Store
	backend := strings.ToLower(envString("STORE_BACKEND", StoreJSON))
	storePath := envString("STORE_PATH", DefaultStorePath(platform, backend))

	// Load prompts from YAML
	promptsConfig, err := LoadPromptsConfig(os.Getenv("PROMPTS_CONFIG_PATH"))
	if err != nil {
		promptsConfig = DefaultPromptsConfig()
	}

	ignoreCriteria := promptsConfig.Filter.IgnoreCriteria
	if val, ok := os.LookupEnv("IGNORE_CRITERIA"); ok {
		ignoreCriteria = val
	}

	largeModel := os.Getenv("LARGE_MODEL_ID")
	smallModel := envString("SMALL_MODEL_ID", largeModel)

	return &Config{
		Platform: platform,
		DryRun:   envBool("DRYRUN", false),
		Workers:  envInt("WORKERS", 2),
		LLM: LLMConfig{
			BaseURL:          os.Getenv("HEURIST_BASE_URL"),
			APIKey:           os.Getenv("HEURIST_API_KEY"),
			LargeModel:       largeModel,
			SmallModel:       smallModel,
			ReplyTemperature: float32(envFloat("REPLY_TEMPERATURE", 0.4)),
		},
		Twitter: TwitterConfig{
			BotName:      os.Getenv("SELF_TWITTER_NAME"),
			SearchAPIKey: os.Getenv("TWITTER_SEARCH_API_KEY"),
			AccessToken:  os.Getenv("TWITTER_ACCESS_TOKEN"),
		},
		Farcaster: FarcasterConfig{
			APIKey:     os.Getenv("FARCASTER_API_KEY"),
			SignerUUID: os.Getenv("FARCASTER_SIGNER_UUID"),
			FID:        fid,
			Username:   os.Getenv("FARCASTER_USERNAME"),
		},
		Filter: FilterConfig{
			SearchTerms:    searchTerms,
			IgnoreCriteria: ignoreCriteria,
		},
		Pipeline: PipelineConfig{
			RateLimitSleep:    envDuration("RATE_LIMIT_SLEEP", rateLimitSleep),
			PollInterval:      envDuration("POLL_INTERVAL", pollInterval),
			PageDelay:         envDuration("PAGE_DELAY", pageDelay),
			MaxPages:          envInt("MAX_PAGES", 5),
			LeaseTTL:          envDuration("LEASE_TTL", 10*time.Minute),
			ReaperInterval:    envDuration("REAPER_INTERVAL", time.Minute),
			MaxAttempts:       envInt("MAX_ATTEMPTS", 3),
			PostRatePerMinute: envInt("POST_RATE_PER_MINUTE", 10),
		},
		Image: ImageConfig{
			Probability:  envFloat("IMAGE_PROBABILITY", 0.3),
			ImgbbAPIKey:  os.Getenv("IMGBB_API_KEY"),
			SequencerURL: os.Getenv("HEURIST_SEQUENCER_URL"),
			Model:        os.Getenv("IMAGE_MODEL_ID"),
		},
		Store: StoreConfig{
			Backend: backend,
			Path:    storePath,
		},
		Lark: LarkConfig{
			AppID:     os.Getenv("LARK_APP_ID"),
			AppSecret: os.Getenv("LARK_APP_SECRET"),
			ChatID:    os.Getenv("LARK_CHAT_ID"),
		},
		API: APIConfig{
			Addr: envString("API_ADDR", "127.0.0.1:9876"),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Pretty: envBool("LOG_PRETTY", false),
		},
		Prompts: promptsConfig,
	}
}

// DefaultStorePath returns ~/.reply-bridge/<platform>_replies.{json,db}
func DefaultStorePath(platform, backend string) string {
	homeDir, _ := os.UserHomeDir()
	ext := ".json"
	if backend == StoreSQLite {
		ext = ".db"
	}
	return filepath.Join(homeDir, ".reply-bridge", platform+"_replies"+ext)
}

// BotIdentity returns the account name the bot posts as
func (c *Config) BotIdentity() string {
	if c.Platform == PlatformFarcaster {
		return c.Farcaster.Username
	}
	return c.Twitter.BotName
}

// Validate checks the configuration and reports every problem at once
func (c *Config) Validate() error {
	var errs []error
	require := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, &ConfigError{Field: field, Message: "required"})
		}
	}

	require("HEURIST_BASE_URL", c.LLM.BaseURL)
	require("HEURIST_API_KEY", c.LLM.APIKey)
	require("LARGE_MODEL_ID", c.LLM.LargeModel)

	switch c.Platform {
	case PlatformTwitter:
		require("SELF_TWITTER_NAME", c.Twitter.BotName)
		require("TWITTER_SEARCH_API_KEY", c.Twitter.SearchAPIKey)
		if !c.DryRun {
			require("TWITTER_ACCESS_TOKEN", c.Twitter.AccessToken)
		}
		if len(c.Filter.SearchTerms) == 0 {
			errs = append(errs, &ConfigError{Field: "SEARCH_TERMS", Message: "at least one term is required for twitter search"})
		}
	case PlatformFarcaster:
		require("FARCASTER_API_KEY", c.Farcaster.APIKey)
		require("FARCASTER_USERNAME", c.Farcaster.Username)
		if c.Farcaster.FID <= 0 {
			errs = append(errs, &ConfigError{Field: "FARCASTER_FID", Message: "must be a positive integer"})
		}
		if !c.DryRun {
			require("FARCASTER_SIGNER_UUID", c.Farcaster.SignerUUID)
		}
	default:
		errs = append(errs, &ConfigError{Field: "PLATFORM", Message: "must be twitter or farcaster"})
	}

	if c.Workers < 1 {
		errs = append(errs, &ConfigError{Field: "WORKERS", Message: "must be at least 1"})
	}
	if c.Pipeline.MaxPages < 1 {
		errs = append(errs, &ConfigError{Field: "MAX_PAGES", Message: "must be at least 1"})
	}
	if c.Pipeline.PollInterval <= 0 {
		errs = append(errs, &ConfigError{Field: "POLL_INTERVAL", Message: "must be positive"})
	}
	if c.Pipeline.LeaseTTL < MinLeaseTTL {
		errs = append(errs, &ConfigError{Field: "LEASE_TTL", Message: fmt.Sprintf("must be at least %s", MinLeaseTTL)})
	}
	if c.Pipeline.ReaperInterval <= 0 {
		errs = append(errs, &ConfigError{Field: "REAPER_INTERVAL", Message: "must be positive"})
	}
	if c.Pipeline.PostRatePerMinute < 1 {
		errs = append(errs, &ConfigError{Field: "POST_RATE_PER_MINUTE", Message: "must be at least 1"})
	}
	if c.Image.Probability < 0 || c.Image.Probability > 1 {
		errs = append(errs, &ConfigError{Field: "IMAGE_PROBABILITY", Message: "must be between 0 and 1"})
	}
	if c.Image.Probability > 0 {
		require("IMGBB_API_KEY", c.Image.ImgbbAPIKey)
	}

	switch c.Store.Backend {
	case StoreJSON, StoreSQLite:
	default:
		errs = append(errs, &ConfigError{Field: "STORE_BACKEND", Message: "must be json or sqlite"})
	}

	lark := []string{c.Lark.AppID, c.Lark.AppSecret, c.Lark.ChatID}
	set := 0
	for _, v := range lark {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != len(lark) {
		errs = append(errs, &ConfigError{Field: "LARK_APP_ID/LARK_APP_SECRET/LARK_CHAT_ID", Message: "set all or none"})
	}

	return errors.Join(errs...)
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

func envString(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

// envDuration accepts Go durations ("90s") or a bare number of seconds
func envDuration(key string, def time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(val, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
