package config

import "time"

// Config 配置结构
type Config struct {
	// 调度配置
	ScheduleIntervalMs int64 `yaml:"schedule_interval_ms"` // 检查间隔（毫秒）
	RunOnStart         bool  `yaml:"run_on_start"`         // 启动后立即执行一次
	RenewBeforeDays    int   `yaml:"renew_before_days"`    // 剩余天数小于该值时续期，默认30

	// 证书输出目录
	OutputDir string `yaml:"output_dir"`

	// 托管域名，支持通配符 (*.example.com)
	Domains []string `yaml:"domains"`

	ACME ACMEConfig `yaml:"acme"`
	DNS  DNSConfig  `yaml:"dns"`

	// 各云平台凭证配置
	Providers ProvidersConfig `yaml:"providers"`

	PostCommand string `yaml:"post_command"` // 证书签发成功后执行的命令

	// Webhook 通知配置
	Webhook *WebhookConfig `yaml:"webhook,omitempty"`

	Log      LogConfig       `yaml:"log"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	S3Mirror *S3MirrorConfig `yaml:"s3_mirror,omitempty"`

	// 签发后上传到云平台证书服务
	CertUpload CertUploadConfig `yaml:"cert_upload"`
}

// ACMEConfig ACME 账户配置
type ACMEConfig struct {
	Email          string `yaml:"email"`
	AccountKeyPath string `yaml:"account_key_path"` // 账户密钥目录，实际文件位于 <path>/accounts/
	DirectoryURL   string `yaml:"directory_url"`
	KeyType        string `yaml:"key_type"` // 证书私钥类型: RSA2048, RSA3072, RSA4096, P256(EC256), P384(EC384)
}

// DNSConfig DNS 验证配置
type DNSConfig struct {
	Provider       string            `yaml:"provider"` // azure, aliyun, tencent, huawei, route53, memory
	Zone           string            `yaml:"zone"`     // 目标 zone，例如 example.com
	TTL            int               `yaml:"ttl"`      // TXT 记录 TTL（秒），默认60
	CleanupRecords bool              `yaml:"cleanup_records"`
	Propagation    PropagationConfig `yaml:"propagation"`
}

// PropagationConfig 记录生效检查配置，nameservers 为空时不检查
type PropagationConfig struct {
	Nameservers     []string `yaml:"nameservers"`
	TimeoutSeconds  int      `yaml:"timeout_seconds"`
	IntervalSeconds int      `yaml:"interval_seconds"`
}

// ProvidersConfig 云平台凭证配置
type ProvidersConfig struct {
	Azure   *AzureConfig   `yaml:"azure,omitempty"`
	Aliyun  *AliyunConfig  `yaml:"aliyun,omitempty"`
	Tencent *TencentConfig `yaml:"tencent,omitempty"`
	Huawei  *HuaweiConfig  `yaml:"huawei,omitempty"`
	Route53 *Route53Config `yaml:"route53,omitempty"`
}

// AzureConfig Azure DNS 配置
type AzureConfig struct {
	TenantID       string `yaml:"tenant_id"`
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	SubscriptionID string `yaml:"subscription_id"`
	ResourceGroup  string `yaml:"resource_group"`
	Environment    string `yaml:"environment,omitempty"` // AzurePublicCloud, AzureChinaCloud, AzureUSGovernment
}

// AliyunConfig 阿里云配置
type AliyunConfig struct {
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
	Region          string `yaml:"region"`
}

// TencentConfig 腾讯云配置
type TencentConfig struct {
	SecretID  string `yaml:"secret_id"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
}

// HuaweiConfig 华为云配置
type HuaweiConfig struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	ProjectID string `yaml:"project_id"`
}

// Route53Config AWS Route 53 配置，凭证为空时使用默认凭证链
type Route53Config struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	HostedZoneID    string `yaml:"hosted_zone_id"`
}

// WebhookConfig Webhook 通知配置
type WebhookConfig struct {
	Enabled      bool              `yaml:"enabled"`                 // 是否启用
	URL          string            `yaml:"url"`                     // Webhook URL
	Headers      map[string]string `yaml:"headers,omitempty"`       // 自定义请求头
	Events       []string          `yaml:"events,omitempty"`        // 订阅的事件类型
	Timeout      int               `yaml:"timeout,omitempty"`       // 请求超时时间（秒），默认30
	Retries      int               `yaml:"retries,omitempty"`       // 重试次数，默认3
	BodyTemplate string            `yaml:"body_template,omitempty"` // 请求体模板（JSON格式）
}

// LogConfig 日志配置，file 为空时输出到标准错误
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // node_exporter textfile 路径，为空时不导出
}

// S3MirrorConfig 证书备份到 S3
type S3MirrorConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// CertUploadConfig 证书上传配置，凭证使用 providers 中对应平台的配置
type CertUploadConfig struct {
	Aliyun  bool `yaml:"aliyun"`  // 阿里云数字证书管理服务
	Tencent bool `yaml:"tencent"` // 腾讯云 SSL 证书
}

// ScheduleInterval 返回检查间隔
func (c *Config) ScheduleInterval() time.Duration {
	return time.Duration(c.ScheduleIntervalMs) * time.Millisecond
}

// RenewBefore 返回续期阈值
func (c *Config) RenewBefore() time.Duration {
	return time.Duration(c.RenewBeforeDays) * 24 * time.Hour
}
