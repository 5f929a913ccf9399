// =============================================================================
// 📦 GroundRAG 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("groundrag.yaml").
//	    WithEnvPrefix("GROUNDRAG").
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

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 GroundRAG 的完整配置结构
type Config struct {
	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Redis 缓存配置（KV.Backend 为 redis 时使用）
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database SQL KV 配置（KV.Backend 为 sql 时使用）
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// KV 纠错记录与会话记忆的存储后端
	KV KVConfig `yaml:"kv" env:"KV"`

	// VectorStore 语料与纠错索引
	VectorStore VectorStoreConfig `yaml:"vector_store" env:"VECTOR_STORE"`

	// Embedding 嵌入服务
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`

	// Rerank 重排服务
	Rerank RerankConfig `yaml:"rerank" env:"RERANK"`

	// LLM 生成服务
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Retrieval 检索参数
	Retrieval RetrievalConfig `yaml:"retrieval" env:"RETRIEVAL"`

	// Pipeline 合成与校验参数
	Pipeline PipelineConfig `yaml:"pipeline" env:"PIPELINE"`

	// Correction 纠错缓存
	Correction CorrectionConfig `yaml:"correction" env:"CORRECTION"`

	// Memory 会话记忆
	Memory MemoryConfig `yaml:"memory" env:"MEMORY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时，需覆盖一次完整的合成与校验
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 空闲超时
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// API Key 列表，为空时不鉴权
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 是否允许通过 ?api_key= 传递 Key
	AllowQueryAPIKey bool `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
	// 每个客户端每秒请求数，<=0 关闭限流
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// JWT 保护纠错写接口
	JWT JWTConfig `yaml:"jwt" env:"JWT"`
}

// JWTConfig 纠错写接口的 JWT 认证配置，Secret 与 PublicKey 都为空时关闭
type JWTConfig struct {
	// HS256 共享密钥
	Secret string `yaml:"secret" env:"SECRET"`
	// RS256 公钥（PEM）
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	// 期望的 iss，为空时不校验
	Issuer string `yaml:"issuer" env:"ISSUER"`
	// 期望的 aud，为空时不校验
	Audience string `yaml:"audience" env:"AUDIENCE"`
}

// Enabled 是否配置了验签密钥
func (c JWTConfig) Enabled() bool {
	return c.Secret != "" || c.PublicKey != ""
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

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: sqlite, postgres
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名，sqlite 时为文件路径或 :memory:
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// KVConfig KV 后端选择
type KVConfig struct {
	// 后端: memory, redis, sql
	Backend string `yaml:"backend" env:"BACKEND"`
	// 默认过期时间
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
	// memory 后端的条目上限，0 表示不限
	MaxEntries int `yaml:"max_entries" env:"MAX_ENTRIES"`
}

// VectorStoreConfig 向量存储配置
type VectorStoreConfig struct {
	// 后端: memory, qdrant
	Backend string `yaml:"backend" env:"BACKEND"`
	// Qdrant 主机
	Host string `yaml:"host" env:"HOST"`
	// Qdrant REST 端口
	Port int `yaml:"port" env:"PORT"`
	// 完整地址，优先于 Host/Port
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key（可选）
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 语料集合
	CorpusCollection string `yaml:"corpus_collection" env:"CORPUS_COLLECTION"`
	// 纠错集合
	CorrectionsCollection string `yaml:"corrections_collection" env:"CORRECTIONS_COLLECTION"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 集合不存在时自动创建
	AutoCreateCollection bool `yaml:"auto_create_collection" env:"AUTO_CREATE_COLLECTION"`
	// 启动时写入语料集合的片段文件（JSON/JSONL）
	SeedFiles []string `yaml:"seed_files" env:"SEED_FILES"`
	// 写入时每批嵌入的片段数
	IngestBatch int `yaml:"ingest_batch" env:"INGEST_BATCH"`
}

// EmbeddingConfig 嵌入服务配置
type EmbeddingConfig struct {
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 路径
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 模型
	Model string `yaml:"model" env:"MODEL"`
	// 向量维度（可选）
	Dimensions int `yaml:"dimensions" env:"DIMENSIONS"`
	// 单批最大条数
	MaxBatch int `yaml:"max_batch" env:"MAX_BATCH"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 是否添加 query: / passage: 前缀
	UsePrefix bool `yaml:"use_prefix" env:"USE_PREFIX"`
	// 批量失败后逐条回退的间隔
	PerItemDelay time.Duration `yaml:"per_item_delay" env:"PER_ITEM_DELAY"`
}

// RerankConfig 重排服务配置
type RerankConfig struct {
	// 是否启用，关闭时按融合顺序选取
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 路径
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 模型
	Model string `yaml:"model" env:"MODEL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LLMConfig 生成服务配置
type LLMConfig struct {
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 路径
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 模型
	Model string `yaml:"model" env:"MODEL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 最大重试次数（所有外部能力共用）
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 首次重试延迟
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay" env:"RETRY_INITIAL_DELAY"`
	// 最大重试延迟
	RetryMaxDelay time.Duration `yaml:"retry_max_delay" env:"RETRY_MAX_DELAY"`
	// 连续上游故障多少次后熔断（每个外部能力独立计数）
	BreakerThreshold int `yaml:"breaker_threshold" env:"BREAKER_THRESHOLD"`
	// 熔断后多久放行试探请求
	BreakerResetTimeout time.Duration `yaml:"breaker_reset_timeout" env:"BREAKER_RESET_TIMEOUT"`
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	// 每路检索数量
	TopK int `yaml:"top_k" env:"TOP_K"`
	// 融合截断与上下文名额
	MaxContext int `yaml:"max_context" env:"MAX_CONTEXT"`
	// RRF 平滑常数
	RRFK int `yaml:"rrf_k" env:"RRF_K"`
	// 重排后选取数量
	TopRerank int `yaml:"top_rerank" env:"TOP_RERANK"`
	// 单文档最多片段数
	PerSourceCap int `yaml:"per_source_cap" env:"PER_SOURCE_CAP"`
	// 至少覆盖的不同文档数
	MinDistinctDocs int `yaml:"min_distinct_docs" env:"MIN_DISTINCT_DOCS"`
	// 是否启用查询扩展
	ExpansionEnabled bool `yaml:"expansion_enabled" env:"EXPANSION_ENABLED"`
	// 最多改写数量
	MaxVariants int `yaml:"max_variants" env:"MAX_VARIANTS"`
	// 单次嵌入超时
	EmbedTimeout time.Duration `yaml:"embed_timeout" env:"EMBED_TIMEOUT"`
	// 单次检索超时
	SearchTimeout time.Duration `yaml:"search_timeout" env:"SEARCH_TIMEOUT"`
}

// PipelineConfig 合成与校验配置
type PipelineConfig struct {
	// 最多合成轮数（上限 10）
	MaxIter int `yaml:"max_iter" env:"MAX_ITER"`
	// 合成最大输出 token
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 合成温度
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 上下文块 token 预算
	ContextTokens int `yaml:"context_tokens" env:"CONTEXT_TOKENS"`
	// 单次合成超时
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout" env:"SYNTHESIS_TIMEOUT"`
	// 系统角色描述
	Persona string `yaml:"persona" env:"PERSONA"`
	// 计算 token 使用的模型名，空则按估算
	TokenizerModel string `yaml:"tokenizer_model" env:"TOKENIZER_MODEL"`
	// 事实依据检查的前缀长度
	SupportPrefixLen int `yaml:"support_prefix_len" env:"SUPPORT_PREFIX_LEN"`
	// 前缀不匹配时的关键词重叠阈值
	SupportOverlap float64 `yaml:"support_overlap" env:"SUPPORT_OVERLAP"`
	// 是否要求 first/second/finally 结构
	RequireOrdinals bool `yaml:"require_ordinals" env:"REQUIRE_ORDINALS"`
	// 网页引用关键词重叠阈值
	WebSupportThreshold float64 `yaml:"web_support_threshold" env:"WEB_SUPPORT_THRESHOLD"`
}

// CorrectionConfig 纠错缓存配置
type CorrectionConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 语义命中阈值（含）
	SimilarityThreshold float64 `yaml:"similarity_threshold" env:"SIMILARITY_THRESHOLD"`
	// 语义检索数量
	SemanticTopK int `yaml:"semantic_top_k" env:"SEMANTIC_TOP_K"`
	// 记录过期时间
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// 单次操作超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// MemoryConfig 会话记忆配置
type MemoryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 保留的最近轮数
	MaxTurns int `yaml:"max_turns" env:"MAX_TURNS"`
	// 进入摘要的轮数
	SummaryTurns int `yaml:"summary_turns" env:"SUMMARY_TURNS"`
	// 摘要 token 上限
	SummaryTokens int `yaml:"summary_tokens" env:"SUMMARY_TOKENS"`
	// 过期时间
	TTL time.Duration `yaml:"ttl" env:"TTL"`
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
		envPrefix:  "GROUNDRAG",
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
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
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

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
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

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

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
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst <= 0 {
		errs = append(errs, "rate_limit_burst must be positive when rate limiting is enabled")
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("unsupported log format %q", c.Log.Format))
	}

	switch c.KV.Backend {
	case "memory", "redis":
	case "sql":
		if c.Database.DSN() == "" {
			errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
		}
	default:
		errs = append(errs, fmt.Sprintf("unsupported kv backend %q", c.KV.Backend))
	}

	switch c.VectorStore.Backend {
	case "memory":
	case "qdrant":
		if c.VectorStore.CorpusCollection == "" || c.VectorStore.CorrectionsCollection == "" {
			errs = append(errs, "qdrant requires corpus and corrections collections")
		}
		if c.VectorStore.CorpusCollection == c.VectorStore.CorrectionsCollection {
			errs = append(errs, "corpus and corrections collections must differ")
		}
	default:
		errs = append(errs, fmt.Sprintf("unsupported vector store backend %q", c.VectorStore.Backend))
	}

	if c.Pipeline.MaxIter <= 0 || c.Pipeline.MaxIter > 10 {
		errs = append(errs, "max_iter must be between 1 and 10")
	}
	if c.Pipeline.Temperature < 0 || c.Pipeline.Temperature > 2 {
		errs = append(errs, "temperature must be between 0 and 2")
	}
	if c.Pipeline.SupportOverlap < 0 || c.Pipeline.SupportOverlap > 1 {
		errs = append(errs, "support_overlap must be between 0 and 1")
	}
	if c.Correction.SimilarityThreshold <= 0 || c.Correction.SimilarityThreshold > 1 {
		errs = append(errs, "similarity_threshold must be in (0, 1]")
	}
	if c.Retrieval.TopK <= 0 || c.Retrieval.MaxContext <= 0 {
		errs = append(errs, "top_k and max_context must be positive")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
