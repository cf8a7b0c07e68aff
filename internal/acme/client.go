package acme

import (
	"context"
	"fmt"
	"log"
	"strings"

	xacme "golang.org/x/crypto/acme"
)

// 挑战与授权状态
const (
	StatusPending = xacme.StatusPending
	StatusValid   = xacme.StatusValid
	StatusInvalid = xacme.StatusInvalid

	challengeTypeDNS01 = "dns-01"
)

// Interface golang.org/x/crypto/acme.Client 中用到的方法
type Interface interface {
	AuthorizeOrder(ctx context.Context, id []xacme.AuthzID, opt ...xacme.OrderOption) (*xacme.Order, error)
	WaitOrder(ctx context.Context, url string) (*xacme.Order, error)
	CreateOrderCert(ctx context.Context, finalizeURL string, csr []byte, bundle bool) (der [][]byte, certURL string, err error)
	GetAuthorization(ctx context.Context, url string) (*xacme.Authorization, error)
	Accept(ctx context.Context, chal *xacme.Challenge) (*xacme.Challenge, error)
	GetChallenge(ctx context.Context, url string) (*xacme.Challenge, error)
	DNS01ChallengeRecord(token string) (string, error)
	Register(ctx context.Context, acct *xacme.Account, prompt func(tosURL string) bool) (*xacme.Account, error)
	GetReg(ctx context.Context, url string) (*xacme.Account, error)
}

var _ Interface = (*xacme.Client)(nil)

// Order 证书订单
type Order struct {
	URI         string
	FinalizeURL string
	AuthzURLs   []string
	Domains     []string // 下单时的域名，顺序与配置一致
}

// Authorization 单个域名的授权
type Authorization struct {
	URI        string
	Identifier string // 通配符授权会还原为 *.example.com
	Status     string
	challenges []*xacme.Challenge
}

// Challenge DNS-01 挑战
type Challenge struct {
	URI        string
	Token      string
	Identifier string
	Value      string // TXT 记录值，即 key authorization 的摘要
}

// Client ACME 订单流程封装
type Client struct {
	api Interface
}

// NewClient 创建客户端
func NewClient(api Interface) *Client {
	return &Client{api: api}
}

// NewOrder 为一批域名创建一个订单
func (c *Client) NewOrder(ctx context.Context, domains []string) (*Order, error) {
	o, err := c.api.AuthorizeOrder(ctx, xacme.DomainIDs(domains...))
	if err != nil {
		return nil, fmt.Errorf("创建订单失败: %w", err)
	}

	log.Printf("[ACME] 订单已创建: %s (%s)", o.URI, strings.Join(domains, ", "))
	return &Order{
		URI:         o.URI,
		FinalizeURL: o.FinalizeURL,
		AuthzURLs:   o.AuthzURLs,
		Domains:     append([]string(nil), domains...),
	}, nil
}

// GetAuthorizations 获取订单下的全部授权
func (c *Client) GetAuthorizations(ctx context.Context, order *Order) ([]*Authorization, error) {
	authzs := make([]*Authorization, 0, len(order.AuthzURLs))
	for _, url := range order.AuthzURLs {
		a, err := c.api.GetAuthorization(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("获取授权失败: %w", err)
		}

		identifier := a.Identifier.Value
		if a.Wildcard {
			identifier = "*." + identifier
		}
		authzs = append(authzs, &Authorization{
			URI:        a.URI,
			Identifier: identifier,
			Status:     a.Status,
			challenges: a.Challenges,
		})
	}
	return authzs, nil
}

// GetDNS01Challenge 取出授权中的 DNS-01 挑战并计算 TXT 记录值
func (c *Client) GetDNS01Challenge(ctx context.Context, authz *Authorization) (*Challenge, error) {
	for _, ch := range authz.challenges {
		if ch == nil || ch.Type != challengeTypeDNS01 {
			continue
		}

		value, err := c.api.DNS01ChallengeRecord(ch.Token)
		if err != nil {
			return nil, fmt.Errorf("计算 DNS-01 记录值失败: %w", err)
		}
		return &Challenge{
			URI:        ch.URI,
			Token:      ch.Token,
			Identifier: authz.Identifier,
			Value:      value,
		}, nil
	}
	return nil, fmt.Errorf("域名 %s 的授权中没有 dns-01 挑战", authz.Identifier)
}

// TriggerValidation 通知 CA 开始验证挑战
func (c *Client) TriggerValidation(ctx context.Context, ch *Challenge) error {
	_, err := c.api.Accept(ctx, &xacme.Challenge{
		Type:  challengeTypeDNS01,
		URI:   ch.URI,
		Token: ch.Token,
	})
	if err != nil {
		return fmt.Errorf("触发验证失败: %w", err)
	}
	return nil
}

// GetChallengeStatus 查询挑战当前状态
func (c *Client) GetChallengeStatus(ctx context.Context, ch *Challenge) (string, error) {
	chal, err := c.api.GetChallenge(ctx, ch.URI)
	if err != nil {
		return "", fmt.Errorf("查询挑战状态失败: %w", err)
	}
	if chal.Status == StatusInvalid && chal.Error != nil {
		log.Printf("[ACME] 挑战 %s 验证失败: %v", ch.Identifier, chal.Error)
	}
	return chal.Status, nil
}

// FinalizeOrder 提交 CSR 并下载完整证书链（DER）
func (c *Client) FinalizeOrder(ctx context.Context, order *Order, csr []byte) ([][]byte, error) {
	// 全部授权通过后订单需要进入 ready 才能提交
	if _, err := c.api.WaitOrder(ctx, order.URI); err != nil {
		return nil, fmt.Errorf("等待订单就绪失败: %w", err)
	}

	der, certURL, err := c.api.CreateOrderCert(ctx, order.FinalizeURL, csr, true)
	if err != nil {
		return nil, fmt.Errorf("签发证书失败: %w", err)
	}
	if len(der) == 0 {
		return nil, fmt.Errorf("CA 未返回证书")
	}

	log.Printf("[ACME] 证书已签发: %s", certURL)
	return der, nil
}
