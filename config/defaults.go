// =============================================================================
// 📦 convtree 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

const (
	// DefaultBaseURL Anyscale 的 OpenAI 兼容端点
	DefaultBaseURL = "https://api.endpoints.anyscale.com"
	// DefaultModel 各角色默认模型
	DefaultModel = "mistralai/Mixtral-8x7B-Instruct-v0.1"
	// DefaultRate 每百万 token 的默认美元单价
	DefaultRate = 0.50
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Generation: DefaultGenerationConfig(),
		Agents: AgentsConfig{
			User:      DefaultAgentConfig(),
			Assistant: DefaultAgentConfig(),
			Moderator: DefaultAgentConfig(),
			Initiator: DefaultAgentConfig(),
		},
		Pricing:   DefaultPricingConfig(),
		Store:     DefaultStoreConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// DefaultGenerationConfig 返回默认生成参数
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		MaxTurns:       6,
		RootLabel:      "C-",
		MaxFanout:      5,
		FirstMinFanout: 1,
		MaxAttempts:    3,
		Workers:        4,
		IdeasPerSeed:   1,
	}
}

// DefaultAgentConfig 返回默认角色配置
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		BaseURL:     DefaultBaseURL,
		Models:      []string{DefaultModel},
		Temperature: 0.7,
		Timeout:     2 * time.Minute,
	}
}

// DefaultPricingConfig 返回默认单价
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		User:      DefaultRate,
		Assistant: DefaultRate,
		Moderator: DefaultRate,
	}
}

// DefaultStoreConfig 返回默认存储配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Backend:    "file",
		BaseDir:    "./conversations",
		LedgerFile: "./token_counts.json",
		ErrorLog:   "./errors.txt",
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "convtree:",
		},
		SQL: SQLConfig{
			Driver:          "sqlite",
			DSN:             "convtree.db",
			MaxOpenConns:    16,
			MaxIdleConns:    4,
			ConnMaxLifetime: time.Hour,
		},
		Mongo: MongoStoreConfig{
			URI:      "mongodb://localhost:27017",
			Database: "convtree",
		},
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     false,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "convtree",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Addr:      ":9091",
		Namespace: "convtree",
	}
}
