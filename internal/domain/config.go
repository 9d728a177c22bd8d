package domain

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Scoring engine settings
	Scoring ScoringConfig `json:"scoring"`

	// Explanation generator settings
	Explainer ExplainerConfig `json:"explainer"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ScoringConfig holds risk engine settings.
type ScoringConfig struct {
	// SuspicionThreshold is the final score at or above which a
	// transaction is flagged suspicious.
	SuspicionThreshold int `json:"suspicionThreshold"`

	// ArtifactDir is where the trained model, scaler and encoders live.
	ArtifactDir string `json:"artifactDir"`

	// HomeCountry is the alpha-3 code treated as domestic when a
	// transaction carries no destination.
	HomeCountry string `json:"homeCountry"`

	// SafeCountries are exempt from the new-beneficiary cross-border booster.
	SafeCountries []string `json:"safeCountries"`
}

// ExplainerConfig holds generative explanation settings.
type ExplainerConfig struct {
	// Host is the base URL of the text-generation service (Ollama API).
	Host string `json:"host"`

	// Model is the generation model identifier.
	Model string `json:"model"`

	// TimeoutSecs bounds each generation call; on expiry the
	// deterministic fallback is used.
	TimeoutSecs int `json:"timeoutSecs"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
	Endpoint    string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300, // 5 minutes
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Scoring: ScoringConfig{
			SuspicionThreshold: 70,
			ArtifactDir:        "./models",
			HomeCountry:        "FRA",
			SafeCountries:      []string{"FRA", "DEU", "BEL", "ESP", "ITA"},
		},
		Explainer: ExplainerConfig{
			Host:        "http://localhost:11434",
			Model:       "mistral:7b-instruct",
			TimeoutSecs: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
