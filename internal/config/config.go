// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Backend       BackendConfig       `mapstructure:"backend"`
	Chat          ChatConfig          `mapstructure:"chat"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Stub          StubConfig          `mapstructure:"stub"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// BackendConfig 描述对话后端的两个 REST 端点。
type BackendConfig struct {
	SendURL        string        `mapstructure:"send_url"`
	ResultURL      string        `mapstructure:"result_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ChatConfig 控制提交/轮询流程以及欢迎消息。
type ChatConfig struct {
	UserID              string        `mapstructure:"user_id"`
	LanguageCode        string        `mapstructure:"language_code"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	MaxPollAttempts     int           `mapstructure:"max_poll_attempts"`
	WelcomeMessage      string        `mapstructure:"welcome_message"`
	WelcomeProductsFile string        `mapstructure:"welcome_products_file"`
	DefaultDemoMode     bool          `mapstructure:"default_demo_mode"`
	DefaultChatMode     string        `mapstructure:"default_chat_mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。Addr 为空时使用内存存储。
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Enabled                bool   `mapstructure:"enabled"`
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level           string `mapstructure:"level"`
	Format          string `mapstructure:"format"`
	OutputPath      string `mapstructure:"output_path"`
	DebugBufferSize int    `mapstructure:"debug_buffer_size"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	BucketName      string        `mapstructure:"bucket_name"`
	URLExpiry       time.Duration `mapstructure:"url_expiry"`
}

// StubConfig 配置本地联调用的模拟后端。
type StubConfig struct {
	Port         string `mapstructure:"port"`
	PendingPolls int    `mapstructure:"pending_polls"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	v.SetDefault("backend.send_url", "http://localhost:8080/api/messages/receive")
	v.SetDefault("backend.result_url", "http://localhost:8080/api/messages/result")
	v.SetDefault("backend.request_timeout", "10s")
	v.SetDefault("chat.user_id", "testUser123")
	v.SetDefault("chat.language_code", "ko")
	v.SetDefault("chat.poll_interval", "2s")
	v.SetDefault("chat.max_poll_attempts", 15)
	v.SetDefault("chat.default_demo_mode", true)
	v.SetDefault("chat.default_chat_mode", "cs")
	v.SetDefault("database.redis.ttl", "168h")
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.debug_buffer_size", 200)
	v.SetDefault("kafka.topic", "shopchat-transcript")
	v.SetDefault("kafka.group_id", "shopchat-archiver")
	v.SetDefault("elasticsearch.index_name", "shopchat_transcripts")
	v.SetDefault("minio.bucket_name", "shopchat-exports")
	v.SetDefault("minio.url_expiry", "1h")
	v.SetDefault("stub.port", "8080")
	v.SetDefault("stub.pending_polls", 1)
}

// Load 读取 YAML 配置文件并合并默认值与 SHOPCHAT_ 前缀的环境变量。
// configPath 为空时只使用默认值和环境变量。
func Load(configPath string) (Config, error) {
	// .env 文件是可选的
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("SHOPCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if c.Chat.MaxPollAttempts <= 0 {
		return Config{}, fmt.Errorf("chat.max_poll_attempts 必须大于 0, 当前值: %d", c.Chat.MaxPollAttempts)
	}
	if c.Chat.PollInterval <= 0 {
		return Config{}, fmt.Errorf("chat.poll_interval 必须大于 0, 当前值: %s", c.Chat.PollInterval)
	}
	return c, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	c, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = c
}
