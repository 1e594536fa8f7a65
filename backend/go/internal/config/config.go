package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	ragerr "agentic_rag/backend/go/pkg/errors"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration 允许在 YAML 中使用 "30s"、"2m" 这样的写法。
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std 返回标准库的 time.Duration。
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // debug / info / warn / error
}

// EmbeddingConfig 描述向量化能力的提供商与调用约束。
type EmbeddingConfig struct {
	Provider    string   `yaml:"provider"` // gemini / openai / ollama / huggingface / hashing
	Model       string   `yaml:"model"`
	APIKey      string   `yaml:"apiKey"`
	BaseURL     string   `yaml:"baseURL"`
	Dimensions  int      `yaml:"dimensions"`  // 仅 hashing 使用
	Timeout     Duration `yaml:"timeout"`     // 单次外部调用的超时
	BatchSize   int      `yaml:"batchSize"`   // 每次批量调用的文本数量
	Concurrency int      `yaml:"concurrency"` // 并行批次数
	CacheSize   int      `yaml:"cacheSize"`   // 查询向量 LRU 缓存条目数，0 表示关闭
}

// LLMConfig 描述回答生成能力。
type LLMConfig struct {
	Provider    string   `yaml:"provider"` // gemini / openai / ollama
	Model       string   `yaml:"model"`
	APIKey      string   `yaml:"apiKey"`
	BaseURL     string   `yaml:"baseURL"`
	Temperature float32  `yaml:"temperature"`
	Timeout     Duration `yaml:"timeout"`
}

// MilvusConfig 定义了 Milvus 数据库的连接与集合配置。
type MilvusConfig struct {
	Address        string `yaml:"address"`
	CollectionName string `yaml:"collectionName"`
}

// VectorStoreConfig 选择向量索引的后端。
type VectorStoreConfig struct {
	Type   string       `yaml:"type"` // local / milvus
	Path   string       `yaml:"path"` // local 后端的持久化目录
	Milvus MilvusConfig `yaml:"milvus"`
}

// IngestionConfig 控制文档加载与切分。
type IngestionConfig struct {
	ChunkSize        int      `yaml:"chunkSize"`
	ChunkOverlap     int      `yaml:"chunkOverlap"`
	AllowedPaths     []string `yaml:"allowedPaths"`     // glob 模式，空表示不限制
	OfficeLicenseKey string   `yaml:"officeLicenseKey"` // unioffice 的计量许可证
	FetchTimeout     Duration `yaml:"fetchTimeout"`     // 抓取 http(s) 文档的超时
}

// RetrievalConfig 控制检索。
type RetrievalConfig struct {
	TopK int `yaml:"topK"`
}

// ProtocolConfig 控制 Agent 消息协议。
type ProtocolConfig struct {
	Timeout       Duration `yaml:"timeout"`
	TraceRecorder string   `yaml:"traceRecorder"` // memory / redis
	TraceTTL      Duration `yaml:"traceTTL"`
	MaxTraces     int      `yaml:"maxTraces"` // memory 记录器保留的 trace 上限
}

// MCPTransportConfig 定义了 MCP 服务的传输方式。
type MCPTransportConfig struct {
	Type string `yaml:"type"` // stdio / sse / httpstream
	Port int    `yaml:"port"`
}

// HTTPTransportConfig 定义了 gin HTTP 入口。
type HTTPTransportConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// KafkaTransportConfig 定义了 Kafka 请求/响应主题。
type KafkaTransportConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	RequestTopic  string   `yaml:"requestTopic"`
	ResponseTopic string   `yaml:"responseTopic"`
	GroupID       string   `yaml:"groupID"`
}

// TransportConfig 汇总所有传输层配置。
type TransportConfig struct {
	MCP   MCPTransportConfig   `yaml:"mcp"`
	HTTP  HTTPTransportConfig  `yaml:"http"`
	Kafka KafkaTransportConfig `yaml:"kafka"`
}

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MySQLConfig 定义了 MySQL 数据库的连接配置，Address 为空表示不启用入库台账。
type MySQLConfig struct {
	Address         string `yaml:"address"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	MaxOpenConns    int    `yaml:"maxOpenConns"`
	MaxIdleConns    int    `yaml:"maxIdleConns"`
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // 秒
}

// MinIOConfig 定义了 MinIO 对象存储的连接配置。
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Secure    bool   `yaml:"secure"`
}

// DatabaseConfigs 包含所有外部存储的配置。
type DatabaseConfigs struct {
	Redis RedisConfig `yaml:"redis"`
	MySQL MySQLConfig `yaml:"mysql"`
	MinIO MinIOConfig `yaml:"minio"`
}

// RateLimiterConfig 定义了限流器的配置。
type RateLimiterConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Algorithm string   `yaml:"algorithm"` // token_bucket / leaky_bucket / fixed_window / sliding_window / sliding_log
	Rate      float64  `yaml:"rate"`      // 桶算法：每秒请求数
	Capacity  int      `yaml:"capacity"`  // 桶容量，或窗口内允许的请求数
	Window    Duration `yaml:"window"`    // 窗口算法的窗口长度
	Buckets   int      `yaml:"buckets"`   // sliding_window 的分桶数
}

// CircuitBreakerConfig 定义了熔断器的配置。
type CircuitBreakerConfig struct {
	Enabled          bool     `yaml:"enabled"`
	FailureThreshold uint32   `yaml:"failureThreshold"`
	SuccessThreshold uint32   `yaml:"successThreshold"`
	Timeout          Duration `yaml:"timeout"`
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// AppConfig 是整个 YAML 文件的根结构。
type AppConfig struct {
	App         AppInfo           `yaml:"app"`
	Logger      LoggerConfig      `yaml:"logger"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	LLM         LLMConfig         `yaml:"llm"`
	VectorStore VectorStoreConfig `yaml:"vectorStore"`
	Ingestion   IngestionConfig   `yaml:"ingestion"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Protocol    ProtocolConfig    `yaml:"protocol"`
	Transport   TransportConfig   `yaml:"transport"`
	Databases   DatabaseConfigs   `yaml:"databases"`
	Middleware  MiddlewareConfig  `yaml:"middleware"`
}

// Default 返回所有字段都带默认值的配置。
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig 从指定路径加载 YAML 配置文件。
// 读取前会尝试加载当前目录下的 .env，文件中的 ${VAR} 会被环境变量替换。
func LoadConfig(path string) (*AppConfig, error) {
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ragerr.Wrapf(err, ragerr.CodeConfigInvalid, "reading config file %q", path)
	}
	return Parse(raw)
}

// Parse 解析 YAML 内容，填充默认值并校验。
func Parse(raw []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeConfigInvalid, "parsing yaml config")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	setString(&c.App.Name, "agentic_rag")
	setString(&c.App.Version, "1.0.0")
	setString(&c.Logger.Level, "info")

	setString(&c.Embedding.Provider, "gemini")
	if c.Embedding.Model == "" {
		switch c.Embedding.Provider {
		case "gemini":
			c.Embedding.Model = "models/text-embedding-004"
		case "openai":
			c.Embedding.Model = "text-embedding-3-small"
		case "ollama":
			c.Embedding.Model = "nomic-embed-text"
		}
	}
	if c.Embedding.Provider == "gemini" {
		setString(&c.Embedding.APIKey, os.Getenv("GOOGLE_API_KEY"))
	}
	setInt(&c.Embedding.Dimensions, 256)
	setDuration(&c.Embedding.Timeout, 30*time.Second)
	setInt(&c.Embedding.BatchSize, 32)
	setInt(&c.Embedding.Concurrency, 4)

	setString(&c.LLM.Provider, "gemini")
	if c.LLM.Model == "" {
		switch c.LLM.Provider {
		case "gemini":
			c.LLM.Model = "gemini-2.0-flash"
		case "openai":
			c.LLM.Model = "gpt-4o-mini"
		case "ollama":
			c.LLM.Model = "llama3.1"
		}
	}
	if c.LLM.Provider == "gemini" {
		setString(&c.LLM.APIKey, os.Getenv("GOOGLE_API_KEY"))
	}
	setDuration(&c.LLM.Timeout, 60*time.Second)

	setString(&c.VectorStore.Type, "local")
	setString(&c.VectorStore.Path, "./vector_store")
	setString(&c.VectorStore.Milvus.CollectionName, "rag_chunks")

	// 只有在 chunkSize 也未配置时才使用默认重叠，显式的 chunkOverlap: 0 会被保留。
	if c.Ingestion.ChunkSize == 0 {
		c.Ingestion.ChunkSize = 1000
		setInt(&c.Ingestion.ChunkOverlap, 200)
	}
	setString(&c.Ingestion.OfficeLicenseKey, os.Getenv("UNIDOC_LICENSE_API_KEY"))
	setDuration(&c.Ingestion.FetchTimeout, 30*time.Second)

	setInt(&c.Retrieval.TopK, 5)

	setDuration(&c.Protocol.Timeout, 120*time.Second)
	setString(&c.Protocol.TraceRecorder, "memory")
	setDuration(&c.Protocol.TraceTTL, 24*time.Hour)
	setInt(&c.Protocol.MaxTraces, 10000)

	setString(&c.Transport.MCP.Type, "stdio")
	setInt(&c.Transport.MCP.Port, 8080)
	setString(&c.Transport.HTTP.Address, ":8090")
	setString(&c.Transport.Kafka.RequestTopic, "rag.agent.requests")
	setString(&c.Transport.Kafka.ResponseTopic, "rag.agent.responses")
	setString(&c.Transport.Kafka.GroupID, "rag_agent_server")

	setString(&c.Databases.Redis.Address, "localhost:6379")

	setString(&c.Middleware.RateLimiter.Algorithm, "token_bucket")
	setDuration(&c.Middleware.RateLimiter.Window, time.Second)
	setInt(&c.Middleware.RateLimiter.Buckets, 10)

	setUint32(&c.Middleware.CircuitBreaker.FailureThreshold, 5)
	setUint32(&c.Middleware.CircuitBreaker.SuccessThreshold, 1)
	setDuration(&c.Middleware.CircuitBreaker.Timeout, 30*time.Second)
}

// Validate 检查配置中相互约束的字段。
func (c *AppConfig) Validate() error {
	var problems []string

	if c.Ingestion.ChunkSize <= 0 {
		problems = append(problems, "ingestion.chunkSize must be positive")
	}
	if c.Ingestion.ChunkOverlap < 0 || c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		problems = append(problems, "ingestion.chunkOverlap must be in [0, chunkSize)")
	}
	if c.Retrieval.TopK <= 0 {
		problems = append(problems, "retrieval.topK must be positive")
	}
	if c.Protocol.Timeout <= 0 || c.Embedding.Timeout <= 0 || c.LLM.Timeout <= 0 {
		problems = append(problems, "timeouts must be positive")
	}
	if c.Embedding.BatchSize <= 0 || c.Embedding.Concurrency <= 0 {
		problems = append(problems, "embedding.batchSize and embedding.concurrency must be positive")
	}
	switch c.VectorStore.Type {
	case "local", "milvus":
	default:
		problems = append(problems, fmt.Sprintf("vectorStore.type %q is not supported", c.VectorStore.Type))
	}
	if c.VectorStore.Type == "milvus" && c.VectorStore.Milvus.Address == "" {
		problems = append(problems, "vectorStore.milvus.address is required for the milvus backend")
	}
	switch c.Protocol.TraceRecorder {
	case "memory", "redis":
	default:
		problems = append(problems, fmt.Sprintf("protocol.traceRecorder %q is not supported", c.Protocol.TraceRecorder))
	}
	switch c.Transport.MCP.Type {
	case "stdio", "sse", "httpstream":
	default:
		problems = append(problems, fmt.Sprintf("transport.mcp.type %q is not supported", c.Transport.MCP.Type))
	}
	switch c.Middleware.RateLimiter.Algorithm {
	case "token_bucket", "leaky_bucket", "fixed_window", "sliding_window", "sliding_log":
	default:
		problems = append(problems, fmt.Sprintf("middleware.rateLimiter.algorithm %q is not supported", c.Middleware.RateLimiter.Algorithm))
	}
	if c.Transport.Kafka.Enabled && len(c.Transport.Kafka.Brokers) == 0 {
		problems = append(problems, "transport.kafka.brokers is required when kafka is enabled")
	}

	if len(problems) > 0 {
		return ragerr.New(ragerr.CodeConfigInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setUint32(dst *uint32, def uint32) {
	if *dst == 0 {
		*dst = def
	}
}

func setDuration(dst *Duration, def time.Duration) {
	if *dst == 0 {
		*dst = Duration(def)
	}
}
