package aliyun

import (
	"context"
	"fmt"
	"log"

	alidns "github.com/alibabacloud-go/alidns-20150109/v4/client"
	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	"github.com/alibabacloud-go/tea/tea"

	"cert-renewer/internal/config"
	"cert-renewer/internal/domain"
	"cert-renewer/internal/provider"
)

// recordsClient 阿里云DNS SDK 中用到的方法
type recordsClient interface {
	AddDomainRecord(request *alidns.AddDomainRecordRequest) (*alidns.AddDomainRecordResponse, error)
	DeleteDomainRecord(request *alidns.DeleteDomainRecordRequest) (*alidns.DeleteDomainRecordResponse, error)
	DescribeDomainRecords(request *alidns.DescribeDomainRecordsRequest) (*alidns.DescribeDomainRecordsResponse, error)
}

// DNSProvider 阿里云DNS提供商
type DNSProvider struct {
	client recordsClient
	zone   string
}

// NewDNSProvider 创建阿里云DNS提供商
// zone 为空时从记录名推导主域名
func NewDNSProvider(cfg *config.AliyunConfig, zone string) (*DNSProvider, error) {
	endpoint := "alidns.cn-hangzhou.aliyuncs.com"
	if cfg.Region != "" {
		endpoint = fmt.Sprintf("alidns.%s.aliyuncs.com", cfg.Region)
	}

	clientConfig := &openapi.Config{
		AccessKeyId:     tea.String(cfg.AccessKeyID),
		AccessKeySecret: tea.String(cfg.AccessKeySecret),
		Endpoint:        tea.String(endpoint),
	}

	client, err := alidns.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("创建阿里云DNS客户端失败: %w", err)
	}

	return &DNSProvider{client: client, zone: domain.UnFqdn(zone)}, nil
}

var _ provider.DNSProvider = (*DNSProvider)(nil)

// Name 返回提供商名称
func (p *DNSProvider) Name() string {
	return "aliyun"
}

func (p *DNSProvider) split(name string) (string, string) {
	zone := p.zone
	if zone == "" {
		zone = domain.ExtractMainDomain(name)
	}
	return zone, domain.RelativeRecordName(name, zone)
}

// ClearRecord 删除记录名下所有 TXT 记录
func (p *DNSProvider) ClearRecord(ctx context.Context, name string) error {
	zone, rr := p.split(name)

	records, err := p.findRecords(zone, rr)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	log.Printf("[阿里云DNS] 清除记录: %s.%s (%d 条)", rr, zone, len(records))
	for _, record := range records {
		request := &alidns.DeleteDomainRecordRequest{
			RecordId: tea.String(record.RecordID),
		}
		if _, err := p.client.DeleteDomainRecord(request); err != nil {
			return fmt.Errorf("删除DNS记录失败: %w", err)
		}
	}

	log.Printf("[阿里云DNS] 记录已清除")
	return nil
}

// AddRecords 添加 TXT 记录，已存在的值跳过
func (p *DNSProvider) AddRecords(ctx context.Context, name string, values []string) error {
	zone, rr := p.split(name)

	existing, err := p.GetRecord(ctx, name)
	if err != nil {
		return err
	}

	for _, value := range provider.MissingValues(existing, values) {
		log.Printf("[阿里云DNS] 添加记录: %s.%s -> %s", rr, zone, value)

		request := &alidns.AddDomainRecordRequest{
			DomainName: tea.String(zone),
			RR:         tea.String(rr),
			Type:       tea.String(provider.RecordTypeTXT),
			Value:      tea.String(value),
		}
		if _, err := p.client.AddDomainRecord(request); err != nil {
			return fmt.Errorf("添加DNS记录失败: %w", err)
		}
	}

	return nil
}

// GetRecord 查询记录名下的 TXT 记录值
func (p *DNSProvider) GetRecord(ctx context.Context, name string) ([]string, error) {
	zone, rr := p.split(name)

	records, err := p.findRecords(zone, rr)
	if err != nil {
		return nil, err
	}

	var values []string
	for _, record := range records {
		values = append(values, record.Value)
	}
	return values, nil
}

// findRecords 查找主机记录完全匹配的 TXT 记录
// RRKeyWord 是模糊匹配，需要再次过滤
func (p *DNSProvider) findRecords(zone, rr string) ([]*provider.DNSRecord, error) {
	request := &alidns.DescribeDomainRecordsRequest{
		DomainName: tea.String(zone),
		RRKeyWord:  tea.String(rr),
		Type:       tea.String(provider.RecordTypeTXT),
		PageSize:   tea.Int64(500),
	}

	response, err := p.client.DescribeDomainRecords(request)
	if err != nil {
		return nil, fmt.Errorf("查询DNS记录失败: %w", err)
	}

	var records []*provider.DNSRecord
	if response.Body != nil && response.Body.DomainRecords != nil {
		for _, record := range response.Body.DomainRecords.Record {
			if tea.StringValue(record.RR) != rr || tea.StringValue(record.Type) != provider.RecordTypeTXT {
				continue
			}
			records = append(records, &provider.DNSRecord{
				RecordID: tea.StringValue(record.RecordId),
				Domain:   zone,
				RR:       tea.StringValue(record.RR),
				Type:     tea.StringValue(record.Type),
				Value:    tea.StringValue(record.Value),
				TTL:      int(tea.Int64Value(record.TTL)),
			})
		}
	}

	return records, nil
}
