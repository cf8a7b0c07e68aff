package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"cert-renewer/internal/acme"
	"cert-renewer/internal/config"
	"cert-renewer/internal/dnsutil"
	"cert-renewer/internal/metrics"
	"cert-renewer/internal/notification"
	"cert-renewer/internal/provider"
	"cert-renewer/internal/provider/aliyun"
	"cert-renewer/internal/provider/azure"
	"cert-renewer/internal/provider/huawei"
	"cert-renewer/internal/provider/memory"
	"cert-renewer/internal/provider/route53"
	"cert-renewer/internal/provider/tencent"
	"cert-renewer/internal/storage"
)

// Factory 根据配置创建各组件
type Factory struct {
	config *config.Config

	// 缓存已创建的提供商实例
	dnsProviders map[string]provider.DNSProvider
}

// NewFactory 创建工厂
func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		config:       cfg,
		dnsProviders: make(map[string]provider.DNSProvider),
	}
}

// GetDNSProvider 获取DNS提供商
func (f *Factory) GetDNSProvider(ctx context.Context, name string) (provider.DNSProvider, error) {
	// 检查缓存
	if p, ok := f.dnsProviders[name]; ok {
		return p, nil
	}

	// 创建新实例
	var p provider.DNSProvider
	var err error

	dns := f.config.DNS
	switch name {
	case "azure":
		if f.config.Providers.Azure == nil {
			return nil, fmt.Errorf("Azure DNS提供商未配置")
		}
		p, err = azure.NewDNSProvider(f.config.Providers.Azure, dns.Zone, dns.TTL)

	case "aliyun":
		if f.config.Providers.Aliyun == nil {
			return nil, fmt.Errorf("阿里云DNS提供商未配置")
		}
		p, err = aliyun.NewDNSProvider(f.config.Providers.Aliyun, dns.Zone)

	case "tencent":
		if f.config.Providers.Tencent == nil {
			return nil, fmt.Errorf("腾讯云DNS提供商未配置")
		}
		p, err = tencent.NewDNSProvider(f.config.Providers.Tencent, dns.Zone)

	case "huawei":
		if f.config.Providers.Huawei == nil {
			return nil, fmt.Errorf("华为云DNS提供商未配置")
		}
		p, err = huawei.NewDNSProvider(f.config.Providers.Huawei, dns.Zone, dns.TTL)

	case "route53":
		if f.config.Providers.Route53 == nil {
			return nil, fmt.Errorf("Route 53 提供商未配置")
		}
		p, err = route53.NewDNSProvider(ctx, f.config.Providers.Route53, dns.Zone, dns.TTL)

	case "memory":
		p = memory.NewDNSProvider()

	default:
		return nil, fmt.Errorf("不支持的DNS提供商: %s", name)
	}

	if err != nil {
		return nil, err
	}

	// 缓存实例
	f.dnsProviders[name] = p
	return p, nil
}

// Build 创建续期流程需要的全部组件
// ACME 账户在第一次使用时才注册，启动阶段不访问 CA
func (f *Factory) Build(ctx context.Context) (Dependencies, error) {
	cfg := f.config

	dnsProvider, err := f.GetDNSProvider(ctx, cfg.DNS.Provider)
	if err != nil {
		return Dependencies{}, fmt.Errorf("获取DNS提供商失败: %w", err)
	}

	store := storage.NewFileStorage(cfg.OutputDir)
	if err := store.Recover(); err != nil {
		log.Printf("ERROR 检查证书目录失败: %v", err)
	}

	deps := Dependencies{
		ACME: &lazyACME{opts: acme.AccountOptions{
			Email:        cfg.ACME.Email,
			KeyPath:      cfg.ACME.AccountKeyPath,
			DirectoryURL: cfg.ACME.DirectoryURL,
		}},
		DNS:      dnsProvider,
		Storage:  store,
		Notifier: notification.NewWebhookNotifier(cfg.Webhook),
		Metrics:  metrics.New(cfg.Metrics.Textfile),
	}

	p := cfg.DNS.Propagation
	if checker := dnsutil.NewChecker(p.Nameservers, time.Duration(p.TimeoutSeconds)*time.Second, time.Duration(p.IntervalSeconds)*time.Second); checker != nil {
		deps.Checker = checker
	}

	if cfg.S3Mirror != nil {
		mirror, err := storage.NewS3Mirror(ctx, cfg.S3Mirror)
		if err != nil {
			return Dependencies{}, fmt.Errorf("创建 S3 备份失败: %w", err)
		}
		deps.Mirrors = append(deps.Mirrors, mirror)
	}
	if cfg.CertUpload.Aliyun {
		mirror, err := storage.NewAliyunCASMirror(cfg.Providers.Aliyun)
		if err != nil {
			return Dependencies{}, err
		}
		deps.Mirrors = append(deps.Mirrors, mirror)
	}
	if cfg.CertUpload.Tencent {
		mirror, err := storage.NewTencentSSLMirror(cfg.Providers.Tencent)
		if err != nil {
			return Dependencies{}, err
		}
		deps.Mirrors = append(deps.Mirrors, mirror)
	}

	log.Printf("DNS提供商: %s, 证书目录: %s", dnsProvider.Name(), cfg.OutputDir)
	return deps, nil
}

// lazyACME 第一次调用时加载或注册 ACME 账户，失败时下次调用重试
type lazyACME struct {
	opts acme.AccountOptions

	mu     sync.Mutex
	client *acme.Client
}

var _ ACMEClient = (*lazyACME)(nil)

func (l *lazyACME) get(ctx context.Context) (*acme.Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client != nil {
		return l.client, nil
	}
	c, err := acme.LoadOrCreateAccount(ctx, l.opts)
	if err != nil {
		return nil, err
	}
	l.client = c
	return c, nil
}

func (l *lazyACME) NewOrder(ctx context.Context, domains []string) (*acme.Order, error) {
	c, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.NewOrder(ctx, domains)
}

func (l *lazyACME) GetAuthorizations(ctx context.Context, order *acme.Order) ([]*acme.Authorization, error) {
	c, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.GetAuthorizations(ctx, order)
}

func (l *lazyACME) GetDNS01Challenge(ctx context.Context, authz *acme.Authorization) (*acme.Challenge, error) {
	c, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.GetDNS01Challenge(ctx, authz)
}

func (l *lazyACME) TriggerValidation(ctx context.Context, ch *acme.Challenge) error {
	c, err := l.get(ctx)
	if err != nil {
		return err
	}
	return c.TriggerValidation(ctx, ch)
}

func (l *lazyACME) GetChallengeStatus(ctx context.Context, ch *acme.Challenge) (string, error) {
	c, err := l.get(ctx)
	if err != nil {
		return "", err
	}
	return c.GetChallengeStatus(ctx, ch)
}

func (l *lazyACME) FinalizeOrder(ctx context.Context, order *acme.Order, csr []byte) ([][]byte, error) {
	c, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.FinalizeOrder(ctx, order, csr)
}
