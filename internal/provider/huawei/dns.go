package huawei

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/huaweicloud/huaweicloud-sdk-go-v3/core/auth/basic"
	dns "github.com/huaweicloud/huaweicloud-sdk-go-v3/services/dns/v2"
	dnsModel "github.com/huaweicloud/huaweicloud-sdk-go-v3/services/dns/v2/model"
	dnsRegion "github.com/huaweicloud/huaweicloud-sdk-go-v3/services/dns/v2/region"

	"cert-renewer/internal/config"
	"cert-renewer/internal/domain"
	"cert-renewer/internal/provider"
)

// dnsClient 华为云DNS SDK 中用到的方法
type dnsClient interface {
	ListPublicZones(request *dnsModel.ListPublicZonesRequest) (*dnsModel.ListPublicZonesResponse, error)
	ListRecordSetsByZone(request *dnsModel.ListRecordSetsByZoneRequest) (*dnsModel.ListRecordSetsByZoneResponse, error)
	CreateRecordSet(request *dnsModel.CreateRecordSetRequest) (*dnsModel.CreateRecordSetResponse, error)
	UpdateRecordSet(request *dnsModel.UpdateRecordSetRequest) (*dnsModel.UpdateRecordSetResponse, error)
	DeleteRecordSet(request *dnsModel.DeleteRecordSetRequest) (*dnsModel.DeleteRecordSetResponse, error)
}

// DNSProvider 华为云DNS提供商
// 华为云同一名称同一类型只有一个记录集，多个 TXT 值保存在 Records 中
type DNSProvider struct {
	client dnsClient
	zone   string
	ttl    int32

	mu      sync.Mutex
	zoneIDs map[string]string
}

// NewDNSProvider 创建华为云DNS提供商
func NewDNSProvider(cfg *config.HuaweiConfig, zone string, ttl int) (*DNSProvider, error) {
	auth := basic.NewCredentialsBuilder().
		WithAk(cfg.AccessKey).
		WithSk(cfg.SecretKey).
		Build()

	region := cfg.Region
	if region == "" {
		region = "cn-north-4"
	}

	regionObj, err := dnsRegion.SafeValueOf(region)
	if err != nil {
		return nil, fmt.Errorf("无效的区域: %s", region)
	}

	client := dns.NewDnsClient(
		dns.DnsClientBuilder().
			WithRegion(regionObj).
			WithCredential(auth).
			Build())

	return newDNSProvider(client, zone, ttl), nil
}

func newDNSProvider(client dnsClient, zone string, ttl int) *DNSProvider {
	return &DNSProvider{
		client:  client,
		zone:    domain.UnFqdn(zone),
		ttl:     int32(ttl),
		zoneIDs: make(map[string]string),
	}
}

var _ provider.DNSProvider = (*DNSProvider)(nil)

// Name 返回提供商名称
func (p *DNSProvider) Name() string {
	return "huawei"
}

func (p *DNSProvider) zoneName(name string) string {
	if p.zone != "" {
		return p.zone
	}
	return domain.ExtractMainDomain(name)
}

// getZoneID 获取域名的Zone ID
func (p *DNSProvider) getZoneID(zoneName string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.zoneIDs[zoneName]; ok {
		return id, nil
	}

	request := &dnsModel.ListPublicZonesRequest{Name: &zoneName}

	response, err := p.client.ListPublicZones(request)
	if err != nil {
		return "", fmt.Errorf("获取Zone列表失败: %w", err)
	}

	if response.Zones != nil {
		for _, zone := range *response.Zones {
			if zone.Name != nil && zone.Id != nil && domain.UnFqdn(*zone.Name) == zoneName {
				p.zoneIDs[zoneName] = *zone.Id
				return *zone.Id, nil
			}
		}
	}

	return "", fmt.Errorf("未找到域名 %s 的Zone", zoneName)
}

// findRecordSet 查找 TXT 记录集，不存在时返回 nil
func (p *DNSProvider) findRecordSet(zoneID, recordName string) (*dnsModel.ListRecordSets, error) {
	recordType := provider.RecordTypeTXT
	request := &dnsModel.ListRecordSetsByZoneRequest{
		ZoneId: zoneID,
		Name:   &recordName,
		Type:   &recordType,
	}

	response, err := p.client.ListRecordSetsByZone(request)
	if err != nil {
		return nil, fmt.Errorf("查询DNS记录失败: %w", err)
	}

	if response.Recordsets != nil {
		for _, recordSet := range *response.Recordsets {
			if recordSet.Name != nil && strings.EqualFold(*recordSet.Name, recordName) &&
				recordSet.Type != nil && *recordSet.Type == recordType {
				rs := recordSet
				return &rs, nil
			}
		}
	}

	return nil, nil
}

// ClearRecord 删除 TXT 记录集
func (p *DNSProvider) ClearRecord(ctx context.Context, name string) error {
	zoneID, err := p.getZoneID(p.zoneName(name))
	if err != nil {
		return err
	}

	recordName := domain.Fqdn(name)
	recordSet, err := p.findRecordSet(zoneID, recordName)
	if err != nil {
		return err
	}
	if recordSet == nil || recordSet.Id == nil {
		return nil
	}

	log.Printf("[华为云DNS] 清除记录: %s (ID=%s)", recordName, *recordSet.Id)

	request := &dnsModel.DeleteRecordSetRequest{
		ZoneId:      zoneID,
		RecordsetId: *recordSet.Id,
	}
	if _, err := p.client.DeleteRecordSet(request); err != nil {
		return fmt.Errorf("删除DNS记录失败: %w", err)
	}

	log.Printf("[华为云DNS] 记录已清除")
	return nil
}

// AddRecords 合并写入 TXT 记录集
func (p *DNSProvider) AddRecords(ctx context.Context, name string, values []string) error {
	zoneID, err := p.getZoneID(p.zoneName(name))
	if err != nil {
		return err
	}

	recordName := domain.Fqdn(name)
	recordSet, err := p.findRecordSet(zoneID, recordName)
	if err != nil {
		return err
	}

	if recordSet == nil {
		log.Printf("[华为云DNS] 添加记录: %s -> %v", recordName, values)

		request := &dnsModel.CreateRecordSetRequest{
			ZoneId: zoneID,
			Body: &dnsModel.CreateRecordSetRequestBody{
				Name:    recordName,
				Type:    provider.RecordTypeTXT,
				Records: quoteAll(provider.MergeValues(nil, values)),
				Ttl:     &p.ttl,
			},
		}
		if _, err := p.client.CreateRecordSet(request); err != nil {
			return fmt.Errorf("添加DNS记录失败: %w", err)
		}
		log.Printf("[华为云DNS] 记录已添加")
		return nil
	}

	var existing []string
	if recordSet.Records != nil {
		existing = unquoteAll(*recordSet.Records)
	}
	if len(provider.MissingValues(existing, values)) == 0 {
		return nil
	}

	merged := quoteAll(provider.MergeValues(existing, values))
	recordType := provider.RecordTypeTXT
	log.Printf("[华为云DNS] 更新记录: ID=%s, %s -> %v", *recordSet.Id, recordName, values)

	request := &dnsModel.UpdateRecordSetRequest{
		ZoneId:      zoneID,
		RecordsetId: *recordSet.Id,
		Body: &dnsModel.UpdateRecordSetReq{
			Name:    &recordName,
			Type:    &recordType,
			Records: &merged,
		},
	}
	if _, err := p.client.UpdateRecordSet(request); err != nil {
		return fmt.Errorf("更新DNS记录失败: %w", err)
	}

	log.Printf("[华为云DNS] 记录已更新")
	return nil
}

// GetRecord 查询 TXT 记录值
func (p *DNSProvider) GetRecord(ctx context.Context, name string) ([]string, error) {
	zoneID, err := p.getZoneID(p.zoneName(name))
	if err != nil {
		return nil, err
	}

	recordSet, err := p.findRecordSet(zoneID, domain.Fqdn(name))
	if err != nil {
		return nil, err
	}
	if recordSet == nil || recordSet.Records == nil {
		return nil, nil
	}
	return unquoteAll(*recordSet.Records), nil
}

// 华为云 TXT 记录值需要带双引号
func quoteAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strconv.Quote(v))
	}
	return out
}

func unquoteAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, err := strconv.Unquote(v); err == nil {
			out = append(out, s)
			continue
		}
		out = append(out, strings.Trim(v, `"`))
	}
	return out
}
