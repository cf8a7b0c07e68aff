package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cert-renewer/internal/acme"
	"cert-renewer/internal/domain"
	"cert-renewer/internal/metrics"
	"cert-renewer/internal/notification"
	"cert-renewer/internal/provider"
)

const (
	// DefaultMaxAttempts 每个记录组最多查询验证状态的次数
	DefaultMaxAttempts = 10
	// DefaultPollInterval 两次查询之间的间隔
	DefaultPollInterval = time.Second
)

// ErrChallengeFailed 至少一个记录组未通过验证，订单不能提交
var ErrChallengeFailed = errors.New("DNS-01 验证未通过")

// ACMEClient 续期流程使用的 ACME 操作
type ACMEClient interface {
	NewOrder(ctx context.Context, domains []string) (*acme.Order, error)
	GetAuthorizations(ctx context.Context, order *acme.Order) ([]*acme.Authorization, error)
	GetDNS01Challenge(ctx context.Context, authz *acme.Authorization) (*acme.Challenge, error)
	TriggerValidation(ctx context.Context, ch *acme.Challenge) error
	GetChallengeStatus(ctx context.Context, ch *acme.Challenge) (string, error)
	FinalizeOrder(ctx context.Context, order *acme.Order, csr []byte) ([][]byte, error)
}

// PropagationChecker 等待 TXT 记录在权威服务器上生效
type PropagationChecker interface {
	WaitForValues(ctx context.Context, name string, values []string) error
}

// GroupState 记录组的最终状态
type GroupState string

const (
	GroupValid  GroupState = "valid"
	GroupFailed GroupState = "failed"
)

// ChallengeGroup 共用同一个验证记录名的挑战
// 例如 example.com 与 *.example.com 都使用 _acme-challenge.example.com
type ChallengeGroup struct {
	RecordName string
	Challenges []*acme.Challenge
}

// Values 返回组内全部 TXT 记录值
func (g *ChallengeGroup) Values() []string {
	values := make([]string, 0, len(g.Challenges))
	for _, ch := range g.Challenges {
		values = append(values, ch.Value)
	}
	return values
}

// GroupResult 记录组的验证结果
type GroupResult struct {
	RecordName string
	State      GroupState
	Attempts   int
	Reason     string
}

// Authorization 一次订单的验证结果
type Authorization struct {
	Order  *acme.Order
	Groups []GroupResult
}

// Valid 全部记录组都通过验证时订单才能提交
func (a *Authorization) Valid() bool {
	for _, g := range a.Groups {
		if g.State != GroupValid {
			return false
		}
	}
	return true
}

// FailedRecords 返回未通过验证的记录名
func (a *Authorization) FailedRecords() []string {
	var names []string
	for _, g := range a.Groups {
		if g.State != GroupValid {
			names = append(names, g.RecordName)
		}
	}
	return names
}

// ChallengeCoordinator 驱动一批域名完成 DNS-01 验证
type ChallengeCoordinator struct {
	acme     ACMEClient
	dns      provider.DNSProvider
	checker  PropagationChecker
	notifier *notification.WebhookNotifier
	metrics  *metrics.Metrics

	cleanup      bool
	maxAttempts  int
	pollInterval time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewChallengeCoordinator 创建验证协调器，checker 可以为 nil
func NewChallengeCoordinator(client ACMEClient, dns provider.DNSProvider, checker PropagationChecker) *ChallengeCoordinator {
	return &ChallengeCoordinator{
		acme:         client,
		dns:          dns,
		checker:      checker,
		maxAttempts:  DefaultMaxAttempts,
		pollInterval: DefaultPollInterval,
		sleep:        sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Authorize 为 domains 创建一个订单并完成全部验证
// 有记录组验证失败时返回的 error 包含 ErrChallengeFailed，Authorization 仍然有效
// ACME 或 DNS 调用出错时立即中止
func (c *ChallengeCoordinator) Authorize(ctx context.Context, domains []string) (*Authorization, error) {
	order, err := c.acme.NewOrder(ctx, domains)
	if err != nil {
		return nil, err
	}

	authzs, err := c.acme.GetAuthorizations(ctx, order)
	if err != nil {
		return nil, err
	}

	var challenges []*acme.Challenge
	for _, authz := range authzs {
		// CA 复用了之前通过的授权
		if authz.Status == acme.StatusValid {
			log.Printf("[验证] %s 已有有效授权，跳过", authz.Identifier)
			continue
		}
		ch, err := c.acme.GetDNS01Challenge(ctx, authz)
		if err != nil {
			return nil, err
		}
		challenges = append(challenges, ch)
	}

	groups := groupChallenges(challenges)
	result := &Authorization{Order: order}

	// 中途出错返回时也清理已经写入过的记录
	var touched []string
	if c.cleanup {
		defer func() {
			for _, name := range touched {
				if err := c.dns.ClearRecord(ctx, name); err != nil {
					log.Printf("[验证] 清理验证记录 %s 失败: %v", name, err)
				}
			}
		}()
	}

	for _, group := range groups {
		touched = append(touched, group.RecordName)
		res, err := c.processGroup(ctx, group)
		if err != nil {
			return result, fmt.Errorf("处理验证记录 %s 失败: %w", group.RecordName, err)
		}
		result.Groups = append(result.Groups, res)
		c.metrics.ObserveGroup(string(res.State))

		if res.State == GroupFailed {
			log.Printf("[验证] ERROR 验证记录 %s 未通过: %s", res.RecordName, res.Reason)
			if err := c.notifier.NotifyChallengeFailed(ctx, res.RecordName, res.Reason); err != nil {
				log.Printf("[验证] 发送通知失败: %v", err)
			}
		}
	}

	if !result.Valid() {
		return result, fmt.Errorf("%w: %v", ErrChallengeFailed, result.FailedRecords())
	}
	return result, nil
}

// groupChallenges 按验证记录名分组，保持首次出现的顺序
func groupChallenges(challenges []*acme.Challenge) []*ChallengeGroup {
	var groups []*ChallengeGroup
	index := make(map[string]*ChallengeGroup)
	for _, ch := range challenges {
		name := domain.ChallengeRecordName(ch.Identifier)
		g, ok := index[name]
		if !ok {
			g = &ChallengeGroup{RecordName: name}
			index[name] = g
			groups = append(groups, g)
		}
		g.Challenges = append(g.Challenges, ch)
	}
	return groups
}

// processGroup 发布记录、触发验证并轮询状态
func (c *ChallengeCoordinator) processGroup(ctx context.Context, g *ChallengeGroup) (GroupResult, error) {
	values := g.Values()
	log.Printf("[验证] 发布验证记录: %s (%d 个值)", g.RecordName, len(values))

	// 先清除上次中断遗留的值
	if err := c.dns.ClearRecord(ctx, g.RecordName); err != nil {
		return GroupResult{}, err
	}
	if err := c.dns.AddRecords(ctx, g.RecordName, values); err != nil {
		return GroupResult{}, err
	}

	if c.checker != nil {
		if err := c.checker.WaitForValues(ctx, g.RecordName, values); err != nil {
			log.Printf("[验证] 记录生效检查未通过，继续验证: %v", err)
		}
	}

	for _, ch := range g.Challenges {
		if err := c.acme.TriggerValidation(ctx, ch); err != nil {
			return GroupResult{}, err
		}
	}

	return c.poll(ctx, g)
}

func (c *ChallengeCoordinator) poll(ctx context.Context, g *ChallengeGroup) (GroupResult, error) {
	res := GroupResult{RecordName: g.RecordName, State: GroupFailed}

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		res.Attempts = attempt

		allValid := true
		for _, ch := range g.Challenges {
			status, err := c.acme.GetChallengeStatus(ctx, ch)
			if err != nil {
				return res, err
			}
			if status == acme.StatusInvalid {
				res.Reason = fmt.Sprintf("%s 的挑战状态为 invalid", ch.Identifier)
				return res, nil
			}
			if status != acme.StatusValid {
				allValid = false
			}
		}

		if allValid {
			log.Printf("[验证] 验证记录 %s 已通过 (第 %d 次查询)", g.RecordName, attempt)
			res.State = GroupValid
			return res, nil
		}

		if attempt < c.maxAttempts {
			if err := c.sleep(ctx, c.pollInterval); err != nil {
				return res, err
			}
		}
	}

	res.Reason = fmt.Sprintf("%d 次查询后仍未通过", c.maxAttempts)
	return res, nil
}
