// Package config 提供归档服务的配置加载能力
// 基于 viper 实现，支持 config.yaml 配置文件与 DOCFILER_ 前缀环境变量覆盖
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用总配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`   // HTTP 服务配置
	Database DatabaseConfig `mapstructure:"database"` // 数据库配置
	Log      LogConfig      `mapstructure:"log"`      // 日志配置
	Docstore StoreConfig    `mapstructure:"docstore"` // 归档库位置
	Inbox    StoreConfig    `mapstructure:"inbox"`    // 收件箱位置
	Classify ClassifyConfig `mapstructure:"classify"` // 文档分类配置
	Ingest   IngestConfig   `mapstructure:"ingest"`   // 摄取守护进程配置
	File     FileConfig     `mapstructure:"file"`     // 归档文件规则配置
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port         int `mapstructure:"port"`          // 监听端口
	ReadTimeout  int `mapstructure:"read_timeout"`  // 读超时（秒）
	WriteTimeout int `mapstructure:"write_timeout"` // 写超时（秒）
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`             // 数据库驱动，目前仅支持 sqlite
	DSN             string `mapstructure:"dsn"`                // 数据源
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`     // 最大空闲连接数
	MaxOpenConns    int    `mapstructure:"max_open_conns"`     // 最大打开连接数
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（秒）
}

// LogConfig 日志配置
type LogConfig struct {
	Level    string `mapstructure:"level"`     // debug/info/warn/error
	Format   string `mapstructure:"format"`    // text/json
	Output   string `mapstructure:"output"`    // console/file/both
	FilePath string `mapstructure:"file_path"` // 日志文件路径
}

// StoreConfig 存储位置配置，URI 形如 backend:storeID:relPath
type StoreConfig struct {
	URI        string `mapstructure:"uri"`         // 位置 URI
	LayoutFile string `mapstructure:"layout_file"` // 布局文件名（仅归档库使用）
}

// ClassifyConfig 文档分类配置
type ClassifyConfig struct {
	Provider      string `mapstructure:"provider"`         // mistral/openai
	Model         string `mapstructure:"model"`            // 模型名称
	APIKey        string `mapstructure:"api_key"`          // API 密钥
	MaxFileSizeMB int64  `mapstructure:"max_file_size_mb"` // 可分析文件大小上限（MB）
	MaxRetries    int    `mapstructure:"max_retries"`      // 路径校验重试次数
	Timeout       int    `mapstructure:"timeout"`          // 单次请求超时（秒）
}

// IngestConfig 摄取守护进程配置
type IngestConfig struct {
	PollInterval  int `mapstructure:"poll_interval"`   // 轮询间隔（秒）
	WorkerCount   int `mapstructure:"worker_count"`    // 工作协程数量
	QueueSize     int `mapstructure:"queue_size"`      // 任务队列长度
	MaxRetries    int `mapstructure:"max_retries"`     // 瞬态错误最大重试次数
	RetryBaseSecs int `mapstructure:"retry_base_secs"` // 重试退避基数（秒）
	RetryMaxSecs  int `mapstructure:"retry_max_secs"`  // 重试退避上限（秒）
}

// FileConfig 归档文件规则配置
type FileConfig struct {
	FallbackFolder   string   `mapstructure:"fallback_folder"`   // 不可归类文档的兜底目录
	DuplicatesFolder string   `mapstructure:"duplicates_folder"` // 重复文档隔离目录
	IngressLogFolder string   `mapstructure:"ingress_log_folder"` // 摄取日志目录
	Extensions       []string `mapstructure:"extensions"`        // 参与归档的扩展名
}

// PollDuration 返回轮询间隔
func (c IngestConfig) PollDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// Load 加载配置
// 功能:
//  1. 读取工作目录下的 config.yaml（允许不存在，全部走默认值与环境变量）
//  2. 应用 DOCFILER_ 前缀的环境变量覆盖
//  3. 返回填充完成的 Config
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("DOCFILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/docfiler.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 3600)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file_path", "./logs/docfiler.log")

	v.SetDefault("docstore.uri", "local:docstore:")
	v.SetDefault("docstore.layout_file", "layout.txt")
	v.SetDefault("inbox.uri", "local:inbox:")

	v.SetDefault("classify.provider", "mistral")
	v.SetDefault("classify.model", "mistral-small-latest")
	v.SetDefault("classify.max_file_size_mb", 50)
	v.SetDefault("classify.max_retries", 3)
	v.SetDefault("classify.timeout", 120)

	v.SetDefault("ingest.poll_interval", 60)
	v.SetDefault("ingest.worker_count", 2)
	v.SetDefault("ingest.queue_size", 100)
	v.SetDefault("ingest.max_retries", 5)
	v.SetDefault("ingest.retry_base_secs", 2)
	v.SetDefault("ingest.retry_max_secs", 300)

	v.SetDefault("file.fallback_folder", "Unsortable & Other")
	v.SetDefault("file.duplicates_folder", "--Duplicate")
	v.SetDefault("file.ingress_log_folder", "--IncomingLog")
	v.SetDefault("file.extensions", []string{".pdf"})
}
