package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Limits    LimitsConfig
	Retrieval RetrievalConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTLHours int
}

type LLMConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int

	// Metered per-token rates used to convert provider usage into cost.
	EmbeddingCostPerToken        float64
	CompletionInputCostPerToken  float64
	CompletionOutputCostPerToken float64
}

type LimitsConfig struct {
	SessionBudgetUSD float64
	MaxSources       int
	MaxFileSizeMB    int
	MaxChunks        int
	TopK             int
	EmbedBatchSize   int
}

type RetrievalConfig struct {
	ConfidentThreshold float64
	UncertainThreshold float64
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/supai")

	viper.SetEnvPrefix("SUPAI")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 120)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/diagnostics.db")

	viper.SetDefault("redis.host", "")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlHours", 24)

	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("llm.temperature", 0.0)
	viper.SetDefault("llm.maxTokens", 1024)
	viper.SetDefault("llm.timeoutSec", 60)
	viper.SetDefault("llm.embeddingCostPerToken", 0.02/1e6)
	viper.SetDefault("llm.completionInputCostPerToken", 0.15/1e6)
	viper.SetDefault("llm.completionOutputCostPerToken", 0.60/1e6)

	viper.SetDefault("limits.sessionBudgetUSD", 0.10)
	viper.SetDefault("limits.maxSources", 5)
	viper.SetDefault("limits.maxFileSizeMB", 10)
	viper.SetDefault("limits.maxChunks", 500)
	viper.SetDefault("limits.topK", 3)
	viper.SetDefault("limits.embedBatchSize", 100)

	viper.SetDefault("retrieval.confidentThreshold", 0.50)
	viper.SetDefault("retrieval.uncertainThreshold", 0.30)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
