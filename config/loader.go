// =============================================================================
// 📦 convtree 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("convtree.yaml").
//	    WithEnvPrefix("CONVTREE").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 环境变量默认前缀
const DefaultEnvPrefix = "CONVTREE"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 convtree 的完整配置结构
type Config struct {
	// Generation 对话树生成参数
	Generation GenerationConfig `yaml:"generation" env:"GENERATION"`

	// APIKey 各角色未单独配置时共用的 API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`

	// Agents 各角色的模型端点
	Agents AgentsConfig `yaml:"agents" env:"AGENTS"`

	// PromptsFile 覆盖内置提示词模板的 YAML 文件（可选）
	PromptsFile string `yaml:"prompts_file" env:"PROMPTS_FILE"`

	// Pricing 每百万 token 的美元单价
	Pricing PricingConfig `yaml:"pricing" env:"PRICING"`

	// Store 转录存储
	Store StoreConfig `yaml:"store" env:"STORE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics Prometheus 指标
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// GenerationConfig 对话树生成参数
type GenerationConfig struct {
	// 每个分支的最大轮数
	MaxTurns int `yaml:"max_turns" env:"MAX_TURNS"`
	// 根分支标签
	RootLabel string `yaml:"root_label" env:"ROOT_LABEL"`
	// 单次分叉的最大子分支数
	MaxFanout int `yaml:"max_fanout" env:"MAX_FANOUT"`
	// 第一次分叉的最少子分支数
	FirstMinFanout int `yaml:"first_min_fanout" env:"FIRST_MIN_FANOUT"`
	// 每次智能体调用的最大尝试次数（含首次）
	MaxAttempts int `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	// 重试间隔，0 表示立即重试
	RetryDelay time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
	// assistant 失败时是否也重试
	RetryAssistant bool `yaml:"retry_assistant" env:"RETRY_ASSISTANT"`
	// 单棵树的 token 上限，0 表示不限
	MaxTreeTokens int `yaml:"max_tree_tokens" env:"MAX_TREE_TOKENS"`
	// 并发生成的树数量
	Workers int `yaml:"workers" env:"WORKERS"`
	// 是否先用 initiator 为种子头脑风暴对话想法
	ExpandIdeas bool `yaml:"expand_ideas" env:"EXPAND_IDEAS"`
	// 每个种子采用的想法数
	IdeasPerSeed int `yaml:"ideas_per_seed" env:"IDEAS_PER_SEED"`
}

// AgentsConfig 四个角色的模型配置
type AgentsConfig struct {
	User      AgentConfig `yaml:"user" env:"USER"`
	Assistant AgentConfig `yaml:"assistant" env:"ASSISTANT"`
	Moderator AgentConfig `yaml:"moderator" env:"MODERATOR"`
	Initiator AgentConfig `yaml:"initiator" env:"INITIATOR"`
}

// AgentConfig 单个角色的 OpenAI 兼容端点
type AgentConfig struct {
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key，为空时使用顶层 api_key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 模型池，打乱后轮询使用
	Models []string `yaml:"models" env:"MODELS"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 最大 Token 数，0 表示由服务端决定
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 单次调用超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 每秒请求数上限，0 表示不限流
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// PricingConfig 各角色每百万 token 的美元单价
type PricingConfig struct {
	User      float64 `yaml:"user" env:"USER"`
	Assistant float64 `yaml:"assistant" env:"ASSISTANT"`
	Moderator float64 `yaml:"moderator" env:"MODERATOR"`
}

// StoreConfig 转录存储配置
type StoreConfig struct {
	// 后端: file, redis, sql, mongo
	Backend string `yaml:"backend" env:"BACKEND"`
	// 分支文档根目录（file）
	BaseDir string `yaml:"base_dir" env:"BASE_DIR"`
	// 账本文件（file）
	LedgerFile string `yaml:"ledger_file" env:"LEDGER_FILE"`
	// 错误日志（file）
	ErrorLog string           `yaml:"error_log" env:"ERROR_LOG"`
	Redis    RedisConfig      `yaml:"redis" env:"REDIS"`
	SQL      SQLConfig        `yaml:"sql" env:"SQL"`
	Mongo    MongoStoreConfig `yaml:"mongo" env:"MONGO"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 启用 TLS
	TLS bool `yaml:"tls" env:"TLS"`
}

// SQLConfig 数据库配置
type SQLConfig struct {
	// 驱动类型: sqlite, postgres, mysql
	Driver string `yaml:"driver" env:"DRIVER"`
	// 连接串
	DSN string `yaml:"dsn" env:"DSN"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// MongoStoreConfig MongoDB 配置
type MongoStoreConfig struct {
	URI      string `yaml:"uri" env:"URI"`
	Database string `yaml:"database" env:"DATABASE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	// 是否启用 /metrics
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 监听地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置，文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := parts[:0]
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// Load 按默认前缀加载配置并校验
func Load(path string) (*Config, error) {
	return NewLoader().
		WithConfigPath(path).
		WithValidator((*Config).Validate).
		Load()
}

// Agent 返回角色的生效配置：api_key 为空时回落到顶层 api_key
func (c *Config) Agent(role string) (AgentConfig, bool) {
	var a AgentConfig
	switch role {
	case "user":
		a = c.Agents.User
	case "assistant":
		a = c.Agents.Assistant
	case "moderator":
		a = c.Agents.Moderator
	case "initiator":
		a = c.Agents.Initiator
	default:
		return AgentConfig{}, false
	}
	if a.APIKey == "" {
		a.APIKey = c.APIKey
	}
	a.Models = append([]string(nil), a.Models...)
	return a, true
}

// Validate 验证配置，收集所有错误后一并返回
func (c *Config) Validate() error {
	var errs []string

	g := c.Generation
	if g.MaxTurns < 1 {
		errs = append(errs, "generation.max_turns must be at least 1")
	}
	if g.RootLabel == "" {
		errs = append(errs, "generation.root_label must not be empty")
	}
	if g.MaxFanout < 1 {
		errs = append(errs, "generation.max_fanout must be positive")
	}
	if g.FirstMinFanout < 1 || g.FirstMinFanout > g.MaxFanout {
		errs = append(errs, "generation.first_min_fanout must be between 1 and max_fanout")
	}
	if g.MaxAttempts < 1 {
		errs = append(errs, "generation.max_attempts must be at least 1")
	}
	if g.RetryDelay < 0 {
		errs = append(errs, "generation.retry_delay must not be negative")
	}
	if g.MaxTreeTokens < 0 {
		errs = append(errs, "generation.max_tree_tokens must not be negative")
	}
	if g.Workers < 1 {
		errs = append(errs, "generation.workers must be positive")
	}
	if g.ExpandIdeas && g.IdeasPerSeed < 1 {
		errs = append(errs, "generation.ideas_per_seed must be positive when expand_ideas is set")
	}

	roles := []string{"user", "assistant", "moderator"}
	if g.ExpandIdeas {
		roles = append(roles, "initiator")
	}
	for _, role := range roles {
		a, _ := c.Agent(role)
		prefix := "agents." + role
		if a.BaseURL == "" {
			errs = append(errs, prefix+".base_url is required")
		}
		if len(a.Models) == 0 {
			errs = append(errs, prefix+".models must list at least one model")
		}
		if a.Temperature < 0 || a.Temperature > 2 {
			errs = append(errs, prefix+".temperature must be between 0 and 2")
		}
		if a.Timeout <= 0 {
			errs = append(errs, prefix+".timeout must be positive")
		}
		if a.RateLimitRPS < 0 || a.RateLimitBurst < 0 {
			errs = append(errs, prefix+" rate limit must not be negative")
		}
	}

	if c.Pricing.User < 0 || c.Pricing.Assistant < 0 || c.Pricing.Moderator < 0 {
		errs = append(errs, "pricing must not be negative")
	}

	switch c.Store.Backend {
	case "file":
		if c.Store.BaseDir == "" {
			errs = append(errs, "store.base_dir is required for the file backend")
		}
	case "redis":
		if c.Store.Redis.Addr == "" {
			errs = append(errs, "store.redis.addr is required for the redis backend")
		}
	case "sql":
		switch c.Store.SQL.Driver {
		case "sqlite", "postgres", "mysql":
		default:
			errs = append(errs, fmt.Sprintf("store.sql.driver %q is not one of sqlite, postgres, mysql", c.Store.SQL.Driver))
		}
		if c.Store.SQL.DSN == "" {
			errs = append(errs, "store.sql.dsn is required for the sql backend")
		}
	case "mongo":
		if c.Store.Mongo.URI == "" || c.Store.Mongo.Database == "" {
			errs = append(errs, "store.mongo.uri and store.mongo.database are required for the mongo backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.backend %q is not one of file, redis, sql, mongo", c.Store.Backend))
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, "log.format must be json or console")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
