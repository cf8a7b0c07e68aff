package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"cert-renewer/internal/config"
	"cert-renewer/internal/metrics"
	"cert-renewer/internal/notification"
	"cert-renewer/internal/provider"
	"cert-renewer/internal/storage"
)

// CycleStatus 续期周期的结果
type CycleStatus string

const (
	CycleIdle            CycleStatus = "idle"             // 没有需要续期的域名
	CycleRenewed         CycleStatus = "renewed"          // 证书已签发并保存
	CycleChallengeFailed CycleStatus = "challenge_failed" // 有记录组未通过验证
	CycleFailed          CycleStatus = "failed"           // ACME、DNS 或存储出错
	CycleFatal           CycleStatus = "fatal"            // 周期内发生 panic
)

// CycleResult 一次续期周期的结果
type CycleResult struct {
	Started  time.Time
	Duration time.Duration
	Domains  []string
	Status   CycleStatus
	Groups   []GroupResult
	Err      error
}

// Dependencies 续期流程依赖的外部组件
type Dependencies struct {
	ACME     ACMEClient
	DNS      provider.DNSProvider
	Storage  *storage.FileStorage
	Checker  PropagationChecker
	Mirrors  []Mirror
	Notifier *notification.WebhookNotifier
	Metrics  *metrics.Metrics
}

// Manager 证书管理器，负责执行一次完整的续期周期
type Manager struct {
	config      *config.Config
	expiry      *ExpiryDetector
	coordinator *ChallengeCoordinator
	issuer      *Issuer
	notifier    *notification.WebhookNotifier
	now         func() time.Time
}

// NewManager 创建管理器
func NewManager(cfg *config.Config, deps Dependencies) (*Manager, error) {
	if deps.ACME == nil || deps.DNS == nil || deps.Storage == nil {
		return nil, fmt.Errorf("缺少 ACME、DNS 或存储组件")
	}

	expiry := NewExpiryDetector(cfg.Domains, deps.Storage, cfg.RenewBefore())
	expiry.notifier = deps.Notifier

	coordinator := NewChallengeCoordinator(deps.ACME, deps.DNS, deps.Checker)
	coordinator.cleanup = cfg.DNS.CleanupRecords
	coordinator.notifier = deps.Notifier
	coordinator.metrics = deps.Metrics

	issuer, err := NewIssuer(deps.ACME, deps.Storage, cfg.ACME.KeyType)
	if err != nil {
		return nil, err
	}
	issuer.mirrors = deps.Mirrors
	issuer.postCommand = cfg.PostCommand
	issuer.notifier = deps.Notifier
	issuer.metrics = deps.Metrics

	return &Manager{
		config:      cfg,
		expiry:      expiry,
		coordinator: coordinator,
		issuer:      issuer,
		notifier:    deps.Notifier,
		now:         time.Now,
	}, nil
}

// RunCycle 执行一次续期周期
func (m *Manager) RunCycle(ctx context.Context) (result CycleResult) {
	result.Started = m.now()
	defer func() {
		result.Duration = m.now().Sub(result.Started)
	}()

	log.Println("========== 开始检查证书 ==========")
	defer log.Println("========== 检查完成 ==========")

	domains := m.expiry.GetExpiringDomains(ctx)
	result.Domains = domains
	if len(domains) == 0 {
		log.Printf("没有需要续期的证书")
		result.Status = CycleIdle
		return result
	}
	log.Printf("本轮续期域名: %s", strings.Join(domains, ", "))

	authz, err := m.coordinator.Authorize(ctx, domains)
	if authz != nil {
		result.Groups = authz.Groups
	}
	if err != nil {
		result.Status = CycleFailed
		if errors.Is(err, ErrChallengeFailed) {
			result.Status = CycleChallengeFailed
		}
		return m.fail(ctx, result, err)
	}

	if err := m.issuer.IssueCertificate(ctx, authz.Order, domains[0]); err != nil {
		result.Status = CycleFailed
		return m.fail(ctx, result, err)
	}

	log.Printf("域名 %s 的证书处理完成！", domains[0])
	result.Status = CycleRenewed
	return result
}

func (m *Manager) fail(ctx context.Context, result CycleResult, err error) CycleResult {
	result.Err = err
	log.Printf("ERROR 续期失败 (%s): %v", strings.Join(result.Domains, ", "), err)
	if nerr := m.notifier.NotifyCertFailed(ctx, result.Domains[0], result.Domains, err.Error()); nerr != nil {
		log.Printf("发送通知失败: %v", nerr)
	}
	return result
}

// GetConfig 获取配置
func (m *Manager) GetConfig() *config.Config {
	return m.config
}
