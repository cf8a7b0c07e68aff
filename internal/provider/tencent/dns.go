package tencent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	sdkerrors "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/errors"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	dnspod "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/dnspod/v20210323"

	"cert-renewer/internal/config"
	"cert-renewer/internal/domain"
	"cert-renewer/internal/provider"
)

// recordsClient DNSPod SDK 中用到的方法
type recordsClient interface {
	CreateRecord(request *dnspod.CreateRecordRequest) (*dnspod.CreateRecordResponse, error)
	DeleteRecord(request *dnspod.DeleteRecordRequest) (*dnspod.DeleteRecordResponse, error)
	DescribeRecordList(request *dnspod.DescribeRecordListRequest) (*dnspod.DescribeRecordListResponse, error)
}

// DNSProvider 腾讯云DNS提供商 (DNSPod)
type DNSProvider struct {
	client recordsClient
	zone   string
}

// NewDNSProvider 创建腾讯云DNS提供商
func NewDNSProvider(cfg *config.TencentConfig, zone string) (*DNSProvider, error) {
	credential := common.NewCredential(cfg.SecretID, cfg.SecretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "dnspod.tencentcloudapi.com"

	client, err := dnspod.NewClient(credential, cfg.Region, cpf)
	if err != nil {
		return nil, fmt.Errorf("创建腾讯云DNSPod客户端失败: %w", err)
	}

	return &DNSProvider{client: client, zone: domain.UnFqdn(zone)}, nil
}

var _ provider.DNSProvider = (*DNSProvider)(nil)

// Name 返回提供商名称
func (p *DNSProvider) Name() string {
	return "tencent"
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
	zone, subDomain := p.split(name)

	records, err := p.findRecords(zone, subDomain)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	log.Printf("[腾讯云DNS] 清除记录: %s.%s (%d 条)", subDomain, zone, len(records))
	for _, record := range records {
		request := dnspod.NewDeleteRecordRequest()
		request.Domain = common.StringPtr(zone)
		request.RecordId = common.Uint64Ptr(record.id)

		if _, err := p.client.DeleteRecord(request); err != nil {
			if isNoRecord(err) {
				continue
			}
			return fmt.Errorf("删除DNS记录失败: %w", err)
		}
	}

	log.Printf("[腾讯云DNS] 记录已清除")
	return nil
}

// AddRecords 添加 TXT 记录，已存在的值跳过
func (p *DNSProvider) AddRecords(ctx context.Context, name string, values []string) error {
	zone, subDomain := p.split(name)

	existing, err := p.GetRecord(ctx, name)
	if err != nil {
		return err
	}

	for _, value := range provider.MissingValues(existing, values) {
		log.Printf("[腾讯云DNS] 添加记录: %s.%s -> %s", subDomain, zone, value)

		request := dnspod.NewCreateRecordRequest()
		request.Domain = common.StringPtr(zone)
		request.SubDomain = common.StringPtr(subDomain)
		request.RecordType = common.StringPtr(provider.RecordTypeTXT)
		request.RecordLine = common.StringPtr("默认")
		request.Value = common.StringPtr(value)

		if _, err := p.client.CreateRecord(request); err != nil {
			return fmt.Errorf("添加DNS记录失败: %w", err)
		}
	}

	return nil
}

// GetRecord 查询记录名下的 TXT 记录值
func (p *DNSProvider) GetRecord(ctx context.Context, name string) ([]string, error) {
	zone, subDomain := p.split(name)

	records, err := p.findRecords(zone, subDomain)
	if err != nil {
		return nil, err
	}

	var values []string
	for _, record := range records {
		values = append(values, record.value)
	}
	return values, nil
}

type txtRecord struct {
	id    uint64
	value string
}

// findRecords 查找 TXT 记录
func (p *DNSProvider) findRecords(zone, subDomain string) ([]txtRecord, error) {
	request := dnspod.NewDescribeRecordListRequest()
	request.Domain = common.StringPtr(zone)
	request.Subdomain = common.StringPtr(subDomain)
	request.RecordType = common.StringPtr(provider.RecordTypeTXT)

	response, err := p.client.DescribeRecordList(request)
	if err != nil {
		// 如果没有记录，腾讯云会返回错误
		if isNoRecord(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询DNS记录失败: %w", err)
	}

	var records []txtRecord
	if response.Response != nil {
		for _, record := range response.Response.RecordList {
			if record.Name == nil || *record.Name != subDomain ||
				record.Type == nil || *record.Type != provider.RecordTypeTXT ||
				record.RecordId == nil || record.Value == nil {
				continue
			}
			records = append(records, txtRecord{id: *record.RecordId, value: *record.Value})
		}
	}

	return records, nil
}

// isNoRecord 判断是否为记录不存在的错误
func isNoRecord(err error) bool {
	var sdkErr *sdkerrors.TencentCloudSDKError
	if errors.As(err, &sdkErr) && strings.HasPrefix(sdkErr.GetCode(), "ResourceNotFound") {
		return true
	}
	return strings.Contains(err.Error(), "NoRecord") || strings.Contains(err.Error(), "记录列表为空")
}
