// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, storage paths, the completion provider,
// upload limits and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultSystemPrompt is the instruction given to new chats unless
// DEFAULT_SYSTEM_PROMPT overrides it.
const DefaultSystemPrompt = `You are a friendly AI assistant.
Format your answers as follows:
1. Keep each line under 40 characters
2. Separate paragraphs with a blank line
3. Put each list item on its own line
4. Wrap code blocks in triple backticks
5. Keep indentation consistent`

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "chat-assistant-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]

	// Environment tags every span's resource (OTEL_DEPLOYMENT_ENVIRONMENT).
	Environment string
	// Headers go on every export call, e.g. a collector API key
	// (OTEL_EXPORTER_OTLP_HEADERS as "k1=v1,k2=v2").
	Headers map[string]string
}

// CompletionConfig selects and configures the completion provider.
type CompletionConfig struct {
	Provider      string        // COMPLETION_PROVIDER: openai|gemini|echo
	OpenAIKey     string        // OPENAI_API_KEY
	OpenAIBaseURL string        // OPENAI_BASE_URL (optional, for proxies)
	GeminiKey     string        // GEMINI_API_KEY
	GeminiBaseURL string        // GEMINI_BASE_URL (optional)
	Timeout       time.Duration // COMPLETION_TIMEOUT per upstream call
	MaxConcurrent int           // COMPLETION_MAX_CONCURRENT (0 = unbounded)
}

// ChatConfig holds the defaults for new chats and the send path.
type ChatConfig struct {
	DefaultTitle        string // DEFAULT_TITLE
	DefaultModel        string // DEFAULT_MODEL
	DefaultSystemPrompt string // DEFAULT_SYSTEM_PROMPT
	MaxPromptRunes      int    // MAX_PROMPT_RUNES
	FormatReplies       bool   // FORMAT_REPLIES
	AutoTitle           bool   // AUTO_TITLE
}

// UploadConfig holds the upload pipeline settings.
type UploadConfig struct {
	VisionSystemPrompt string // VISION_SYSTEM_PROMPT (chat-agnostic uploads)
	VisionUserPrompt   string // VISION_USER_PROMPT
	VisionMaxTokens    int    // VISION_MAX_TOKENS
	MaxBytes           int64  // UPLOAD_MAX_BYTES per file
	Concurrency        int    // UPLOAD_CONCURRENCY
	GCOnDelete         bool   // ASSET_GC_ON_DELETE
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 120s; completions can be slow
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	ChatDir   string // one JSON file per chat
	UploadDir string // stored upload bytes
	DBPath    string // SQLite path (asset index + idempotency)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	Completion CompletionConfig
	Chat       ChatConfig
	Upload     UploadConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 120*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		ChatDir:   getenv("CHAT_DIR", "data/chats"),
		UploadDir: getenv("UPLOAD_DIR", "data/uploads"),
		DBPath:    getenv("DB_PATH", "data/app.db"),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		Completion: CompletionConfig{
			Provider:      strings.ToLower(getenv("COMPLETION_PROVIDER", "openai")),
			OpenAIKey:     getenv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getenv("OPENAI_BASE_URL", ""),
			GeminiKey:     getenv("GEMINI_API_KEY", ""),
			GeminiBaseURL: getenv("GEMINI_BASE_URL", ""),
			Timeout:       getdur("COMPLETION_TIMEOUT", 60*time.Second),
			MaxConcurrent: getint("COMPLETION_MAX_CONCURRENT", 8),
		},

		Chat: ChatConfig{
			DefaultTitle:        getenv("DEFAULT_TITLE", "New Chat"),
			DefaultModel:        getenv("DEFAULT_MODEL", "gpt-4o-mini"),
			DefaultSystemPrompt: getenv("DEFAULT_SYSTEM_PROMPT", DefaultSystemPrompt),
			MaxPromptRunes:      getint("MAX_PROMPT_RUNES", 4000),
			FormatReplies:       getbool("FORMAT_REPLIES", false),
			AutoTitle:           getbool("AUTO_TITLE", false),
		},

		Upload: UploadConfig{
			VisionSystemPrompt: getenv("VISION_SYSTEM_PROMPT", "You are an image analysis assistant. Describe the content of images in detail."),
			VisionUserPrompt:   getenv("VISION_USER_PROMPT", "Please describe the content of this image:"),
			VisionMaxTokens:    getint("VISION_MAX_TOKENS", 500),
			MaxBytes:           int64(getint("UPLOAD_MAX_BYTES", 16<<20)),
			Concurrency:        getint("UPLOAD_CONCURRENCY", 4),
			GCOnDelete:         getbool("ASSET_GC_ON_DELETE", false),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "chat-assistant-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
			Environment: getenv("OTEL_DEPLOYMENT_ENVIRONMENT", ""),
			Headers:     splitKV(getenv("OTEL_EXPORTER_OTLP_HEADERS", "")),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.ChatDir) == "" || strings.TrimSpace(cfg.UploadDir) == "" {
		return cfg, errors.New("CHAT_DIR and UPLOAD_DIR must not be empty")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	switch cfg.Completion.Provider {
	case "openai", "gemini", "echo":
	default:
		return cfg, errors.New("COMPLETION_PROVIDER must be one of: openai, gemini, echo")
	}
	if cfg.Completion.Timeout < 0 || cfg.Completion.MaxConcurrent < 0 {
		return cfg, errors.New("COMPLETION_TIMEOUT and COMPLETION_MAX_CONCURRENT must be >= 0")
	}
	if strings.TrimSpace(cfg.Chat.DefaultModel) == "" {
		return cfg, errors.New("DEFAULT_MODEL must not be empty")
	}
	if cfg.Chat.MaxPromptRunes < 0 {
		return cfg, errors.New("MAX_PROMPT_RUNES must be >= 0")
	}
	if cfg.Upload.MaxBytes <= 0 {
		return cfg, errors.New("UPLOAD_MAX_BYTES must be > 0")
	}
	if cfg.Upload.Concurrency < 1 {
		return cfg, errors.New("UPLOAD_CONCURRENCY must be >= 1")
	}
	if cfg.Upload.VisionMaxTokens < 0 {
		return cfg, errors.New("VISION_MAX_TOKENS must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// splitKV parses "k1=v1,k2=v2". Pairs without '=' or with an empty key are
// dropped.
func splitKV(s string) map[string]string {
	var out map[string]string
	for _, p := range splitCSV(s) {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		if out == nil {
			out = map[string]string{}
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
