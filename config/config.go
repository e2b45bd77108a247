package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server settings
	ServerPort   string        `json:"server_port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	Debug        bool          `json:"debug"`

	// Application paths
	LogDir  string `json:"log_dir"`
	TempDir string `json:"temp_dir"`

	Middleware MiddlewareConfig `json:"middleware"`
	CORS       CORSConfig       `json:"cors"`
	RateLimit  RateLimitConfig  `json:"rate_limit"`
	Database   DatabaseConfig   `json:"database"`
	Storage    StorageConfig    `json:"storage"`
	Services   ServicesConfig   `json:"services"`
	Recording  RecordingConfig  `json:"recording"`
	Pipeline   PipelineConfig   `json:"pipeline"`

	// Heuristic tuning, optionally overlaid from PolicyFile.
	Policy     Policy `json:"policy"`
	PolicyFile string `json:"policy_file"`

	Version string `json:"version"`

	RequestTimeout  time.Duration `json:"request_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

type MiddlewareConfig struct {
	EnableRecover   bool `json:"enable_recover"`
	EnableRequestID bool `json:"enable_request_id"`
	EnableLogger    bool `json:"enable_logger"`
	EnableTimeout   bool `json:"enable_timeout"`
	EnableCORS      bool `json:"enable_cors"`
	EnableRateLimit bool `json:"enable_rate_limit"`
}

type DatabaseConfig struct {
	Path               string        `json:"path"`
	MaxConnections     int           `json:"max_connections"`
	MaxIdleConnections int           `json:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `json:"conn_max_lifetime"`
}

type StorageConfig struct {
	// Driver is "local" or "spaces".
	Driver        string `json:"driver"`
	LocalDir      string `json:"local_dir"`
	PublicBaseURL string `json:"public_base_url"`
	AccessKey     string `json:"-"`
	SecretKey     string `json:"-"`
	Region        string `json:"region"`
	Endpoint      string `json:"endpoint"`
	Bucket        string `json:"bucket"`
	PathStyle     bool   `json:"path_style"`
}

type ServicesConfig struct {
	ScraperURL     string        `json:"scraper_url"`
	LLMURL         string        `json:"llm_url"`
	LLMAPIKey      string        `json:"-"`
	LLMModel       string        `json:"llm_model"`
	LLMTemperature float64       `json:"llm_temperature"`
	RenderURL      string        `json:"render_url"`
	CVURL          string        `json:"cv_url"`
	CallTimeout    time.Duration `json:"call_timeout"`
	RenderTimeout  time.Duration `json:"render_timeout"`
}

type RecordingConfig struct {
	PollInterval          time.Duration `json:"poll_interval"`
	PollRequestsPerSecond float64       `json:"poll_requests_per_second"`
	PollBurst             int           `json:"poll_burst"`
	StaleAfter            time.Duration `json:"stale_after"`
	MaxUploadBytes        int64         `json:"max_upload_bytes"`
	FrameWidth            int           `json:"frame_width"`
	FrameHeight           int           `json:"frame_height"`
}

type PipelineConfig struct {
	RenderFormat   string `json:"render_format"`
	MinDuration    int    `json:"min_duration"`
	MaxDuration    int    `json:"max_duration"`
	AllowPrivateIP bool   `json:"allow_private_ip"`
}

type CORSConfig struct {
	Enabled          bool     `json:"enabled"`
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

type RateLimitConfig struct {
	Enabled           bool `json:"enabled"`
	RequestsPerMinute int  `json:"requests_per_minute"`
	BurstSize         int  `json:"burst_size"`
}

func defaultDevConfig() MiddlewareConfig {
	return MiddlewareConfig{
		EnableRecover:   true,
		EnableRequestID: true,
		EnableLogger:    true,
		EnableTimeout:   false,
		EnableCORS:      true,
		EnableRateLimit: false,
	}
}

func defaultProdConfig() MiddlewareConfig {
	return MiddlewareConfig{
		EnableRecover:   true,
		EnableRequestID: true,
		EnableLogger:    true,
		EnableTimeout:   true,
		EnableCORS:      true,
		EnableRateLimit: true,
	}
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; real environment variables
// win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		ReadTimeout:  getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout: getEnvAsDuration("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:  getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
		Debug:        getEnvAsBool("DEBUG", false),

		LogDir:  getEnv("LOG_DIR", "/var/log/reelsmith"),
		TempDir: getEnv("TEMP_DIR", "/tmp/reelsmith"),

		Version: getEnv("VERSION", "1.0.0"),

		RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 2*time.Minute),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		CORS: CORSConfig{
			Enabled:        getEnvAsBool("CORS_ENABLED", true),
			AllowedOrigins: getEnvAsStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsStringSlice(
				"CORS_ALLOWED_METHODS",
				[]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			),
			AllowedHeaders:   getEnvAsStringSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "X-Request-ID"}),
			ExposedHeaders:   getEnvAsStringSlice("CORS_EXPOSED_HEADERS", []string{"X-Request-ID"}),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           getEnvAsInt("CORS_MAX_AGE", 86400),
		},

		RateLimit: RateLimitConfig{
			Enabled:           getEnvAsBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_RPM", 60),
			BurstSize:         getEnvAsInt("RATE_LIMIT_BURST", 10),
		},

		Database: DatabaseConfig{
			Path:               getEnv("DB_PATH", "/var/lib/reelsmith/data.db"),
			MaxConnections:     getEnvAsInt("DB_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DB_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},

		Storage: StorageConfig{
			Driver:        getEnv("STORAGE_DRIVER", "local"),
			LocalDir:      getEnv("STORAGE_DIR", "/var/lib/reelsmith/files"),
			PublicBaseURL: getEnv("STORAGE_PUBLIC_URL", "http://localhost:8080/files"),
			AccessKey:     getEnv("SPACES_ACCESS_KEY", ""),
			SecretKey:     getEnv("SPACES_SECRET_KEY", ""),
			Region:        getEnv("SPACES_REGION", "us-east-1"),
			Endpoint:      getEnv("SPACES_ENDPOINT", ""),
			Bucket:        getEnv("SPACES_BUCKET", ""),
			PathStyle:     getEnvAsBool("SPACES_PATH_STYLE", false),
		},

		Services: ServicesConfig{
			ScraperURL:     getEnv("SCRAPER_URL", "http://localhost:8001"),
			LLMURL:         getEnv("LLM_URL", "https://api.groq.com/openai/v1"),
			LLMAPIKey:      getEnv("LLM_API_KEY", ""),
			LLMModel:       getEnv("LLM_MODEL", "llama-3.3-70b-versatile"),
			LLMTemperature: getEnvAsFloat("LLM_TEMPERATURE", 0.7),
			RenderURL:      getEnv("RENDER_URL", "http://localhost:8002"),
			CVURL:          getEnv("CV_URL", "http://localhost:8003"),
			CallTimeout:    getEnvAsDuration("SERVICE_CALL_TIMEOUT", 90*time.Second),
			RenderTimeout:  getEnvAsDuration("RENDER_TIMEOUT", 10*time.Minute),
		},

		Recording: RecordingConfig{
			PollInterval:          getEnvAsDuration("CV_POLL_INTERVAL", 3*time.Second),
			PollRequestsPerSecond: getEnvAsFloat("CV_POLL_RPS", 10),
			PollBurst:             getEnvAsInt("CV_POLL_BURST", 5),
			StaleAfter:            getEnvAsDuration("CV_STALE_AFTER", 30*time.Minute),
			MaxUploadBytes:        getEnvAsInt64("MAX_UPLOAD_BYTES", 500<<20),
			FrameWidth:            getEnvAsInt("RECORDING_FRAME_WIDTH", 1920),
			FrameHeight:           getEnvAsInt("RECORDING_FRAME_HEIGHT", 1080),
		},

		Pipeline: PipelineConfig{
			RenderFormat:   getEnv("RENDER_FORMAT", "mp4"),
			MinDuration:    getEnvAsInt("MIN_VIDEO_DURATION", 5),
			MaxDuration:    getEnvAsInt("MAX_VIDEO_DURATION", 180),
			AllowPrivateIP: getEnvAsBool("ALLOW_PRIVATE_URLS", false),
		},

		Policy:     DefaultPolicy(),
		PolicyFile: getEnv("POLICY_FILE", ""),

		Middleware: defaultDevConfig(),
	}

	if os.Getenv("ENV") == "production" {
		cfg.Middleware = defaultProdConfig()
	}

	if cfg.PolicyFile != "" {
		policy, err := LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		cfg.Policy = policy
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validatePaths(c); err != nil {
		return err
	}

	if err := validateTimeouts(c); err != nil {
		return err
	}

	if err := validateServices(c); err != nil {
		return err
	}

	return c.Policy.Validate()
}

func validatePaths(c *Config) error {
	paths := []struct {
		path string
		name string
	}{
		{c.LogDir, "log directory"},
		{c.TempDir, "temp directory"},
		{filepath.Dir(c.Database.Path), "database directory"},
	}
	if c.Storage.Driver == "local" {
		paths = append(paths, struct {
			path string
			name string
		}{c.Storage.LocalDir, "storage directory"})
	}

	for _, p := range paths {
		if err := os.MkdirAll(p.path, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", p.name, err)
		}
	}

	return nil
}

func validateTimeouts(c *Config) error {
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.Recording.PollInterval <= 0 {
		return fmt.Errorf("cv poll interval must be positive")
	}
	return nil
}

func validateServices(c *Config) error {
	switch c.Storage.Driver {
	case "local":
	case "spaces":
		if c.Storage.Bucket == "" || c.Storage.Endpoint == "" {
			return fmt.Errorf("spaces storage requires SPACES_BUCKET and SPACES_ENDPOINT")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Pipeline.MinDuration <= 0 || c.Pipeline.MaxDuration < c.Pipeline.MinDuration {
		return fmt.Errorf("video duration bounds are invalid: %d-%d", c.Pipeline.MinDuration, c.Pipeline.MaxDuration)
	}
	if c.Recording.FrameWidth <= 0 || c.Recording.FrameHeight <= 0 {
		return fmt.Errorf("recording frame size must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		if value = strings.TrimSpace(value); value != "" {
			return strings.Split(value, ",")
		}
	}
	return defaultValue
}
