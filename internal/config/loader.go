package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cert-renewer/internal/acme"
)

const (
	DefaultScheduleIntervalMs = 24 * 60 * 60 * 1000
	DefaultRenewBeforeDays    = 30
	DefaultOutputDir          = "./certs"
	DefaultAccountKeyPath     = "./acme"
	DefaultKeyType            = "RSA2048"
	DefaultDNSProvider        = "azure"
	DefaultTTL                = 60
)

// envOverrides 环境变量覆盖项，主要用于不落盘的密钥
type envOverrides struct {
	Stage              string `env:"STAGE"`
	IntervalMs         int64  `env:"CERT_RENEWER_INTERVAL_MS"`
	OutputDir          string `env:"CERT_RENEWER_OUTPUT_DIR"`
	ACMEEmail          string `env:"ACME_EMAIL"`
	ACMEDirectoryURL   string `env:"ACME_DIRECTORY_URL"`
	AzureClientSecret  string `env:"AZURE_CLIENT_SECRET"`
	AliyunKeySecret    string `env:"ALIYUN_ACCESS_KEY_SECRET"`
	TencentSecretKey   string `env:"TENCENT_SECRET_KEY"`
	HuaweiSecretKey    string `env:"HUAWEI_SECRET_KEY"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
}

// Load 加载配置文件
// 设置了 STAGE 环境变量时读取 config.<stage>.yaml 而不是 config.yaml
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("加载 .env 文件失败: %v", err)
	}

	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}
	if overrides.Stage == "" {
		overrides.Stage = os.Getenv("Stage")
	}

	path = StagePath(path, overrides.Stage)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, err
	}

	overrides.apply(config)
	applyDefaults(config)

	// 验证配置
	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// Parse 解析 YAML 配置内容，不做默认值处理
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return &config, nil
}

// StagePath 根据 stage 计算配置文件路径
// 例如: config.yaml + prod -> config.prod.yaml
func StagePath(path, stage string) string {
	stage = strings.TrimSpace(stage)
	if stage == "" {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + stage + ext
}

func (o envOverrides) apply(config *Config) {
	if o.IntervalMs > 0 {
		config.ScheduleIntervalMs = o.IntervalMs
	}
	if o.OutputDir != "" {
		config.OutputDir = o.OutputDir
	}
	if o.ACMEEmail != "" {
		config.ACME.Email = o.ACMEEmail
	}
	if o.ACMEDirectoryURL != "" {
		config.ACME.DirectoryURL = o.ACMEDirectoryURL
	}
	if o.AzureClientSecret != "" && config.Providers.Azure != nil {
		config.Providers.Azure.ClientSecret = o.AzureClientSecret
	}
	if o.AliyunKeySecret != "" && config.Providers.Aliyun != nil {
		config.Providers.Aliyun.AccessKeySecret = o.AliyunKeySecret
	}
	if o.TencentSecretKey != "" && config.Providers.Tencent != nil {
		config.Providers.Tencent.SecretKey = o.TencentSecretKey
	}
	if o.HuaweiSecretKey != "" && config.Providers.Huawei != nil {
		config.Providers.Huawei.SecretKey = o.HuaweiSecretKey
	}
	if o.AWSSecretAccessKey != "" && config.Providers.Route53 != nil {
		config.Providers.Route53.SecretAccessKey = o.AWSSecretAccessKey
	}
}

// applyDefaults 设置默认值
func applyDefaults(config *Config) {
	if config.ScheduleIntervalMs == 0 {
		config.ScheduleIntervalMs = DefaultScheduleIntervalMs
	}
	if config.RenewBeforeDays == 0 {
		config.RenewBeforeDays = DefaultRenewBeforeDays
	}
	if config.OutputDir == "" {
		config.OutputDir = DefaultOutputDir
	}
	if config.ACME.AccountKeyPath == "" {
		config.ACME.AccountKeyPath = DefaultAccountKeyPath
	}
	if config.ACME.KeyType == "" {
		config.ACME.KeyType = DefaultKeyType
	}
	if config.DNS.Provider == "" {
		config.DNS.Provider = DefaultDNSProvider
	}
	if config.DNS.TTL <= 0 {
		config.DNS.TTL = DefaultTTL
	}
	if config.DNS.Propagation.TimeoutSeconds <= 0 {
		config.DNS.Propagation.TimeoutSeconds = 120
	}
	if config.DNS.Propagation.IntervalSeconds <= 0 {
		config.DNS.Propagation.IntervalSeconds = 5
	}
	for i, d := range config.Domains {
		config.Domains[i] = strings.ToLower(strings.TrimSpace(d))
	}
}

// validate 验证配置
func validate(config *Config) error {
	if len(config.Domains) == 0 {
		return fmt.Errorf("未配置任何域名")
	}

	seen := make(map[string]struct{}, len(config.Domains))
	for _, d := range config.Domains {
		if d == "" || strings.Trim(d, "*.") == "" {
			return fmt.Errorf("域名不能为空")
		}
		if _, ok := seen[d]; ok {
			return fmt.Errorf("域名重复: %s", d)
		}
		seen[d] = struct{}{}
	}

	if config.ScheduleIntervalMs < 0 {
		return fmt.Errorf("schedule_interval_ms 必须大于 0")
	}
	if config.RenewBeforeDays < 0 {
		return fmt.Errorf("renew_before_days 必须大于 0")
	}
	if config.ACME.Email == "" {
		return fmt.Errorf("未配置 ACME 账户邮箱")
	}

	if _, err := acme.ParseKeyType(config.ACME.KeyType); err != nil {
		return err
	}

	if err := validateProviderConfig(config, config.DNS.Provider); err != nil {
		return err
	}

	if config.Webhook != nil && config.Webhook.Enabled && config.Webhook.URL == "" {
		return fmt.Errorf("webhook 已启用但未配置 url")
	}
	if config.S3Mirror != nil && config.S3Mirror.Bucket == "" {
		return fmt.Errorf("s3_mirror 未配置 bucket")
	}
	if config.CertUpload.Aliyun {
		if c := config.Providers.Aliyun; c == nil || c.AccessKeyID == "" || c.AccessKeySecret == "" {
			return fmt.Errorf("cert_upload.aliyun 需要配置 providers.aliyun 凭证")
		}
	}
	if config.CertUpload.Tencent {
		if c := config.Providers.Tencent; c == nil || c.SecretID == "" || c.SecretKey == "" {
			return fmt.Errorf("cert_upload.tencent 需要配置 providers.tencent 凭证")
		}
	}

	return nil
}

// validateProviderConfig 验证DNS提供商配置是否存在
func validateProviderConfig(config *Config, providerName string) error {
	switch providerName {
	case "azure":
		c := config.Providers.Azure
		if c == nil {
			return fmt.Errorf("DNS提供商 azure 未配置凭证")
		}
		if c.SubscriptionID == "" || c.ResourceGroup == "" {
			return fmt.Errorf("azure 缺少 subscription_id 或 resource_group")
		}
		if c.ClientID != "" && (c.TenantID == "" || c.ClientSecret == "") {
			return fmt.Errorf("azure 凭证不完整")
		}
		if config.DNS.Zone == "" {
			return fmt.Errorf("azure 需要配置 dns.zone")
		}
	case "aliyun":
		if config.Providers.Aliyun == nil {
			return fmt.Errorf("DNS提供商 aliyun 未配置凭证")
		}
		if config.Providers.Aliyun.AccessKeyID == "" || config.Providers.Aliyun.AccessKeySecret == "" {
			return fmt.Errorf("aliyun 凭证不完整")
		}
	case "tencent":
		if config.Providers.Tencent == nil {
			return fmt.Errorf("DNS提供商 tencent 未配置凭证")
		}
		if config.Providers.Tencent.SecretID == "" || config.Providers.Tencent.SecretKey == "" {
			return fmt.Errorf("tencent 凭证不完整")
		}
	case "huawei":
		if config.Providers.Huawei == nil {
			return fmt.Errorf("DNS提供商 huawei 未配置凭证")
		}
		if config.Providers.Huawei.AccessKey == "" || config.Providers.Huawei.SecretKey == "" {
			return fmt.Errorf("huawei 凭证不完整")
		}
	case "route53":
		c := config.Providers.Route53
		if c == nil {
			return fmt.Errorf("DNS提供商 route53 未配置")
		}
		if c.HostedZoneID == "" && config.DNS.Zone == "" {
			return fmt.Errorf("route53 需要配置 hosted_zone_id 或 dns.zone")
		}
		if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
			return fmt.Errorf("route53 凭证不完整")
		}
	case "memory":
	default:
		return fmt.Errorf("不支持的DNS提供商: %s", providerName)
	}
	return nil
}
