package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/pkg/logger"
)

// 角色名称，决定 Agent 暴露的工具集合。
const (
	RoleFull        = "full"
	RoleEvents      = "events"
	RolePayment     = "payment"
	RoleCoordinator = "coordinator"
)

// Config 描述了一个 Agent 进程在启动阶段需要加载的全部配置。
type Config struct {
	Agent     AgentConfig     `json:"agent" yaml:"agent"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	LLM       LLMConfig       `json:"llm" yaml:"llm"`
	Backend   BackendConfig   `json:"backend" yaml:"backend"`
	Transport TransportConfig `json:"transport" yaml:"transport"`
	Peers     PeersConfig     `json:"peers" yaml:"peers"`
	Journal   JournalConfig   `json:"journal" yaml:"journal"`
	Alerts    AlertsConfig    `json:"alerts" yaml:"alerts"`
	Log       logger.Config   `json:"log" yaml:"log"`
}

// AgentConfig 描述 Agent 的身份与角色。
type AgentConfig struct {
	Name     string `json:"name" yaml:"name"`
	Role     string `json:"role" yaml:"role"`
	Address  string `json:"address" yaml:"address"`
	Fallback string `json:"fallback" yaml:"fallback"`
}

// ServerConfig 控制 REST 服务的监听地址。
type ServerConfig struct {
	Address string `json:"address" yaml:"address"`
}

// LLMConfig 配置大模型服务。
type LLMConfig struct {
	Provider       string  `json:"provider" yaml:"provider"`
	APIKey         string  `json:"api_key" yaml:"api_key"`
	APIKeyEnv      string  `json:"api_key_env" yaml:"api_key_env"`
	BaseURL        string  `json:"base_url" yaml:"base_url"`
	Model          string  `json:"model" yaml:"model"`
	Temperature    float32 `json:"temperature" yaml:"temperature"`
	MaxTokens      int     `json:"max_tokens" yaml:"max_tokens"`
	TimeoutSeconds int     `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// Timeout 返回大模型请求的超时时间。
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ResolveAPIKey 优先使用显式配置的密钥，否则读取环境变量。
func (c LLMConfig) ResolveAPIKey() string {
	if key := strings.TrimSpace(c.APIKey); key != "" {
		return key
	}
	if c.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.APIKeyEnv))
}

// BackendConfig 描述事件 canister 的访问方式。
type BackendConfig struct {
	BaseURL        string `json:"base_url" yaml:"base_url"`
	CanisterID     string `json:"canister_id" yaml:"canister_id"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// Timeout 返回后端请求的超时时间。
func (c BackendConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TransportConfig 描述 Agent 之间消息投递所使用的总线。
// http 驱动通过 Endpoints 将地址映射为对端的 REST 根地址。
type TransportConfig struct {
	Driver              string            `json:"driver" yaml:"driver"`
	Workers             int               `json:"workers" yaml:"workers"`
	ReplyTimeoutSeconds int               `json:"reply_timeout_seconds" yaml:"reply_timeout_seconds"`
	Redis               RedisConfig       `json:"redis" yaml:"redis"`
	RabbitMQ            RabbitMQConfig    `json:"rabbitmq" yaml:"rabbitmq"`
	Endpoints           map[string]string `json:"endpoints" yaml:"endpoints"`
}

// ReplyTimeout 返回等待对端回复的时长。
func (c TransportConfig) ReplyTimeout() time.Duration {
	return time.Duration(c.ReplyTimeoutSeconds) * time.Second
}

// RedisConfig 描述 Redis 总线的连接参数。
type RedisConfig struct {
	Address          string `json:"address" yaml:"address"`
	Password         string `json:"password" yaml:"password"`
	DB               int    `json:"db" yaml:"db"`
	KeyPrefix        string `json:"key_prefix" yaml:"key_prefix"`
	BlockWaitSeconds int    `json:"block_wait_seconds" yaml:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 总线的连接参数。
type RabbitMQConfig struct {
	URL        string `json:"url" yaml:"url"`
	Prefetch   int    `json:"prefetch" yaml:"prefetch"`
	Durable    bool   `json:"durable" yaml:"durable"`
	AutoDelete bool   `json:"auto_delete" yaml:"auto_delete"`
}

// PeersConfig 保存协调者转发目标的地址。
type PeersConfig struct {
	Events  string `json:"events" yaml:"events"`
	Payment string `json:"payment" yaml:"payment"`
}

// JournalConfig 控制对话记录的落库方式。
type JournalConfig struct {
	Driver   string      `json:"driver" yaml:"driver"`
	DataDir  string      `json:"data_dir" yaml:"data_dir"`
	Capacity int         `json:"capacity" yaml:"capacity"`
	MySQL    MySQLConfig `json:"mysql" yaml:"mysql"`
}

// MySQLConfig 描述 MySQL 连接池参数。
type MySQLConfig struct {
	DSN                    string `json:"dsn" yaml:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds" yaml:"conn_max_lifetime_seconds"`
}

// AlertsConfig 控制失败告警。日志渠道始终开启，WebhookURL 非空时额外推送。
type AlertsConfig struct {
	MinSeverity string `json:"min_severity" yaml:"min_severity"`
	WebhookURL  string `json:"webhook_url" yaml:"webhook_url"`
}

// Load 负责解析指定路径的配置文件，根据扩展名选择 YAML 或 JSON。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &cfg)
	default:
		err = json.Unmarshal(content, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回未提供配置文件时使用的默认配置。
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults(".")
	return cfg
}

// OverrideRole 切换角色，并重新生成与角色相关的名称与地址。
func (c *Config) OverrideRole(role string) {
	c.Agent.Role = role
	c.Agent.Name = ""
	c.Agent.Address = ""
	c.applyDefaults(".")
}

// applyDefaults 在用户未填写部分字段时设置默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Agent.Role == "" {
		c.Agent.Role = RoleFull
	}
	c.Agent.Role = strings.ToLower(strings.TrimSpace(c.Agent.Role))
	if c.Agent.Name == "" {
		c.Agent.Name = defaultAgentName(c.Agent.Role)
	}
	if c.Agent.Address == "" {
		c.Agent.Address = "agent." + c.Agent.Role
	}

	if c.Server.Address == "" {
		c.Server.Address = ":8001"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.APIKeyEnv == "" {
		c.LLM.APIKeyEnv = "ASI1_API_KEY"
	}
	if c.LLM.BaseURL == "" && c.LLM.Provider == "openai" {
		c.LLM.BaseURL = "https://api.asi1.ai/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "asi1-mini"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 1024
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 60
	}

	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://127.0.0.1:4943"
	}
	if c.Backend.CanisterID == "" {
		c.Backend.CanisterID = "w7lou-c7777-77774-qaamq-cai"
	}
	if c.Backend.TimeoutSeconds <= 0 {
		c.Backend.TimeoutSeconds = 30
	}

	if c.Transport.Driver == "" {
		c.Transport.Driver = "memory"
	}
	if c.Transport.Workers <= 0 {
		c.Transport.Workers = 1
	}
	if c.Transport.ReplyTimeoutSeconds <= 0 {
		c.Transport.ReplyTimeoutSeconds = 30
	}
	if c.Transport.Redis.KeyPrefix == "" {
		c.Transport.Redis.KeyPrefix = "eventverse:mailbox:"
	}

	if c.Peers.Events == "" {
		c.Peers.Events = "agent." + RoleEvents
	}
	if c.Peers.Payment == "" {
		c.Peers.Payment = "agent." + RolePayment
	}

	if c.Journal.Driver == "" {
		c.Journal.Driver = "memory"
	}
	if c.Journal.Capacity <= 0 {
		c.Journal.Capacity = 512
	}
	if c.Alerts.MinSeverity == "" {
		c.Alerts.MinSeverity = "critical"
	}
	if c.Journal.DataDir != "" && !filepath.IsAbs(c.Journal.DataDir) {
		c.Journal.DataDir = filepath.Join(baseDir, c.Journal.DataDir)
	}
}

// Validate 检查配置组合是否可用。
func (c *Config) Validate() error {
	switch c.Agent.Role {
	case RoleFull, RoleEvents, RolePayment, RoleCoordinator:
	default:
		return fmt.Errorf("未知的 Agent 角色: %s", c.Agent.Role)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("未知的大模型 provider: %s", c.LLM.Provider)
	}
	switch c.Transport.Driver {
	case "memory", "redis", "rabbitmq", "http":
	default:
		return fmt.Errorf("未知的消息总线驱动: %s", c.Transport.Driver)
	}
	switch c.Journal.Driver {
	case "memory", "mysql", "none":
	default:
		return fmt.Errorf("未知的对话记录驱动: %s", c.Journal.Driver)
	}
	switch c.Alerts.MinSeverity {
	case "info", "warning", "critical":
	default:
		return fmt.Errorf("未知的告警级别: %s", c.Alerts.MinSeverity)
	}
	if c.Agent.Role == RoleCoordinator && c.Transport.Driver == "memory" {
		return errors.New("协调者不能使用 memory 总线，转发目标运行在其他进程中")
	}
	if c.Agent.Role == RoleCoordinator && (c.Peers.Events == c.Agent.Address || c.Peers.Payment == c.Agent.Address) {
		return errors.New("协调者地址不能与转发目标相同")
	}
	return nil
}

func defaultAgentName(role string) string {
	switch role {
	case RoleCoordinator:
		return "Coordinator"
	case RoleEvents:
		return "EventAgent"
	case RolePayment:
		return "PaymentAgent"
	default:
		return "EventVerseAgent"
	}
}
