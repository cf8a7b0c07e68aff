package route53

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"

	"cert-renewer/internal/config"
	"cert-renewer/internal/domain"
	"cert-renewer/internal/provider"
)

// changeWaitTimeout 等待 Route 53 变更同步到所有权威服务器的最长时间
const changeWaitTimeout = 2 * time.Minute

type route53API interface {
	ListHostedZonesByName(ctx context.Context, params *route53.ListHostedZonesByNameInput, optFns ...func(*route53.Options)) (*route53.ListHostedZonesByNameOutput, error)
	ListResourceRecordSets(ctx context.Context, params *route53.ListResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ListResourceRecordSetsOutput, error)
	ChangeResourceRecordSets(ctx context.Context, params *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
}

// DNSProvider AWS Route 53 提供商
type DNSProvider struct {
	client route53API
	zone   string
	ttl    int64

	// waitForChange 等待变更生效，为 nil 时不等待
	waitForChange func(ctx context.Context, changeID string) error

	mu     sync.Mutex
	zoneID string
}

// NewDNSProvider 创建 Route 53 提供商
func NewDNSProvider(ctx context.Context, cfg *config.Route53Config, zone string, ttl int) (*DNSProvider, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("加载 AWS 配置失败: %w", err)
	}

	client := route53.NewFromConfig(awsCfg)
	waiter := route53.NewResourceRecordSetsChangedWaiter(client)

	return &DNSProvider{
		client: client,
		zone:   domain.UnFqdn(zone),
		ttl:    int64(ttl),
		zoneID: cfg.HostedZoneID,
		waitForChange: func(ctx context.Context, changeID string) error {
			return waiter.Wait(ctx, &route53.GetChangeInput{Id: aws.String(changeID)}, changeWaitTimeout)
		},
	}, nil
}

var _ provider.DNSProvider = (*DNSProvider)(nil)

// Name 返回提供商名称
func (p *DNSProvider) Name() string {
	return "route53"
}

// hostedZoneID 获取托管区域ID
func (p *DNSProvider) hostedZoneID(ctx context.Context, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.zoneID != "" {
		return p.zoneID, nil
	}

	zone := p.zone
	if zone == "" {
		zone = domain.ExtractMainDomain(name)
	}

	out, err := p.client.ListHostedZonesByName(ctx, &route53.ListHostedZonesByNameInput{
		DNSName: aws.String(zone),
	})
	if err != nil {
		return "", fmt.Errorf("查询托管区域失败: %w", err)
	}

	for _, hz := range out.HostedZones {
		if hz.Id == nil || hz.Name == nil || domain.UnFqdn(*hz.Name) != zone {
			continue
		}
		if hz.Config != nil && hz.Config.PrivateZone {
			continue
		}
		p.zoneID = strings.TrimPrefix(*hz.Id, "/hostedzone/")
		return p.zoneID, nil
	}

	return "", fmt.Errorf("未找到域名 %s 的托管区域", zone)
}

// findRecordSet 查找 TXT 记录集，不存在时返回 nil
func (p *DNSProvider) findRecordSet(ctx context.Context, zoneID, name string) (*types.ResourceRecordSet, error) {
	fqdn := domain.Fqdn(strings.ToLower(name))
	out, err := p.client.ListResourceRecordSets(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(zoneID),
		StartRecordName: aws.String(fqdn),
		StartRecordType: types.RRTypeTxt,
		MaxItems:        aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("查询DNS记录失败: %w", err)
	}

	for _, rs := range out.ResourceRecordSets {
		if rs.Name != nil && strings.EqualFold(*rs.Name, fqdn) && rs.Type == types.RRTypeTxt {
			set := rs
			return &set, nil
		}
	}
	return nil, nil
}

func (p *DNSProvider) change(ctx context.Context, zoneID string, action types.ChangeAction, set *types.ResourceRecordSet) error {
	out, err := p.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &types.ChangeBatch{
			Comment: aws.String("cert-renewer dns-01"),
			Changes: []types.Change{{Action: action, ResourceRecordSet: set}},
		},
	})
	if err != nil {
		return err
	}

	if p.waitForChange != nil && out.ChangeInfo != nil && out.ChangeInfo.Id != nil {
		if err := p.waitForChange(ctx, *out.ChangeInfo.Id); err != nil {
			return fmt.Errorf("等待记录同步失败: %w", err)
		}
	}
	return nil
}

// ClearRecord 删除 TXT 记录集
func (p *DNSProvider) ClearRecord(ctx context.Context, name string) error {
	zoneID, err := p.hostedZoneID(ctx, name)
	if err != nil {
		return err
	}

	set, err := p.findRecordSet(ctx, zoneID, name)
	if err != nil {
		return err
	}
	if set == nil {
		return nil
	}

	log.Printf("[Route53] 清除记录: %s", name)
	// 删除时必须提交与现有记录完全一致的记录集
	if err := p.change(ctx, zoneID, types.ChangeActionDelete, set); err != nil {
		return fmt.Errorf("删除DNS记录失败: %w", err)
	}
	return nil
}

// AddRecords 合并写入 TXT 记录集
func (p *DNSProvider) AddRecords(ctx context.Context, name string, values []string) error {
	zoneID, err := p.hostedZoneID(ctx, name)
	if err != nil {
		return err
	}

	set, err := p.findRecordSet(ctx, zoneID, name)
	if err != nil {
		return err
	}

	existing := recordValues(set)
	if set != nil && len(provider.MissingValues(existing, values)) == 0 {
		return nil
	}

	merged := provider.MergeValues(existing, values)
	records := make([]types.ResourceRecord, 0, len(merged))
	for _, v := range merged {
		records = append(records, types.ResourceRecord{Value: aws.String(strconv.Quote(v))})
	}

	log.Printf("[Route53] 添加记录: %s -> %v", name, values)
	upsert := &types.ResourceRecordSet{
		Name:            aws.String(domain.Fqdn(strings.ToLower(name))),
		Type:            types.RRTypeTxt,
		TTL:             aws.Int64(p.ttl),
		ResourceRecords: records,
	}
	if err := p.change(ctx, zoneID, types.ChangeActionUpsert, upsert); err != nil {
		return fmt.Errorf("添加DNS记录失败: %w", err)
	}
	return nil
}

// GetRecord 查询 TXT 记录值
func (p *DNSProvider) GetRecord(ctx context.Context, name string) ([]string, error) {
	zoneID, err := p.hostedZoneID(ctx, name)
	if err != nil {
		return nil, err
	}

	set, err := p.findRecordSet(ctx, zoneID, name)
	if err != nil {
		return nil, err
	}
	return recordValues(set), nil
}

func recordValues(set *types.ResourceRecordSet) []string {
	if set == nil {
		return nil
	}
	var values []string
	for _, r := range set.ResourceRecords {
		if r.Value == nil {
			continue
		}
		values = append(values, unquoteTXT(*r.Value))
	}
	return values
}

// unquoteTXT 解析 Route 53 返回的 TXT 值，长值会被拆为多个带引号的片段
func unquoteTXT(v string) string {
	var sb strings.Builder
	for _, part := range strings.Split(v, `" "`) {
		sb.WriteString(strings.Trim(part, `"`))
	}
	return sb.String()
}
