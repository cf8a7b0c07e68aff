package azure

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/dns/armdns"

	"cert-renewer/internal/config"
	"cert-renewer/internal/domain"
	"cert-renewer/internal/provider"
)

// recordsClient armdns.RecordSetsClient 中用到的方法
type recordsClient interface {
	Get(ctx context.Context, resourceGroupName string, zoneName string, relativeRecordSetName string, recordType armdns.RecordType, options *armdns.RecordSetsClientGetOptions) (armdns.RecordSetsClientGetResponse, error)
	CreateOrUpdate(ctx context.Context, resourceGroupName string, zoneName string, relativeRecordSetName string, recordType armdns.RecordType, parameters armdns.RecordSet, options *armdns.RecordSetsClientCreateOrUpdateOptions) (armdns.RecordSetsClientCreateOrUpdateResponse, error)
	Delete(ctx context.Context, resourceGroupName string, zoneName string, relativeRecordSetName string, recordType armdns.RecordType, options *armdns.RecordSetsClientDeleteOptions) (armdns.RecordSetsClientDeleteResponse, error)
}

// DNSProvider Azure DNS 提供商
type DNSProvider struct {
	client        recordsClient
	resourceGroup string
	zone          string
	ttl           int64
}

// NewDNSProvider 创建 Azure DNS 提供商
// 未配置 client_id 时使用环境默认凭证（托管标识、工作负载标识、Azure CLI 等）
func NewDNSProvider(cfg *config.AzureConfig, zone string, ttl int) (*DNSProvider, error) {
	cloudCfg, err := cloudConfiguration(cfg.Environment)
	if err != nil {
		return nil, err
	}
	clientOpt := policy.ClientOptions{Cloud: cloudCfg}

	var cred azcore.TokenCredential
	if cfg.ClientID != "" {
		cred, err = azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret,
			&azidentity.ClientSecretCredentialOptions{ClientOptions: clientOpt})
	} else {
		cred, err = azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{ClientOptions: clientOpt})
	}
	if err != nil {
		return nil, fmt.Errorf("创建 Azure 凭证失败: %w", err)
	}

	client, err := armdns.NewRecordSetsClient(cfg.SubscriptionID, cred, &arm.ClientOptions{ClientOptions: clientOpt})
	if err != nil {
		return nil, fmt.Errorf("创建 Azure DNS 客户端失败: %w", err)
	}

	return &DNSProvider{
		client:        client,
		resourceGroup: cfg.ResourceGroup,
		zone:          domain.UnFqdn(zone),
		ttl:           int64(ttl),
	}, nil
}

func cloudConfiguration(name string) (cloud.Configuration, error) {
	switch strings.ToUpper(name) {
	case "AZURECLOUD", "AZUREPUBLICCLOUD", "":
		return cloud.AzurePublic, nil
	case "AZUREUSGOVERNMENT", "AZUREUSGOVERNMENTCLOUD":
		return cloud.AzureGovernment, nil
	case "AZURECHINACLOUD":
		return cloud.AzureChina, nil
	}
	return cloud.Configuration{}, fmt.Errorf("未知的 Azure 云环境: %s", name)
}

var _ provider.DNSProvider = (*DNSProvider)(nil)

// Name 返回提供商名称
func (p *DNSProvider) Name() string {
	return "azure"
}

// ClearRecord 删除 TXT 记录集，404 视为成功
func (p *DNSProvider) ClearRecord(ctx context.Context, name string) error {
	relative := domain.RelativeRecordName(name, p.zone)

	_, err := p.client.Delete(ctx, p.resourceGroup, p.zone, relative, armdns.RecordTypeTXT, nil)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("删除DNS记录失败: %w", err)
	}

	log.Printf("[AzureDNS] 记录已清除: %s.%s", relative, p.zone)
	return nil
}

// AddRecords 合并写入 TXT 记录集，使用 etag 防止并发覆盖
func (p *DNSProvider) AddRecords(ctx context.Context, name string, values []string) error {
	relative := domain.RelativeRecordName(name, p.zone)

	set, err := p.getRecordSet(ctx, relative)
	if err != nil {
		return err
	}

	opts := &armdns.RecordSetsClientCreateOrUpdateOptions{}
	if set == nil {
		set = &armdns.RecordSet{
			Properties: &armdns.RecordSetProperties{
				TTL:        to.Ptr(p.ttl),
				TxtRecords: []*armdns.TxtRecord{},
			},
		}
		opts.IfNoneMatch = to.Ptr("*")
	} else {
		opts.IfMatch = set.Etag
		if set.Properties == nil {
			set.Properties = &armdns.RecordSetProperties{TTL: to.Ptr(p.ttl)}
		}
	}

	missing := provider.MissingValues(txtValues(set), values)
	if len(missing) == 0 {
		return nil
	}
	for _, value := range missing {
		set.Properties.TxtRecords = append(set.Properties.TxtRecords, &armdns.TxtRecord{
			Value: []*string{to.Ptr(value)},
		})
	}

	log.Printf("[AzureDNS] 添加记录: %s.%s -> %v", relative, p.zone, missing)

	// 只提交属性，etag 通过 If-Match 传递
	params := armdns.RecordSet{Properties: set.Properties}
	if _, err := p.client.CreateOrUpdate(ctx, p.resourceGroup, p.zone, relative, armdns.RecordTypeTXT, params, opts); err != nil {
		return fmt.Errorf("添加DNS记录失败: %w", err)
	}

	log.Printf("[AzureDNS] 记录已添加")
	return nil
}

// GetRecord 查询 TXT 记录值
func (p *DNSProvider) GetRecord(ctx context.Context, name string) ([]string, error) {
	set, err := p.getRecordSet(ctx, domain.RelativeRecordName(name, p.zone))
	if err != nil {
		return nil, err
	}
	if set == nil {
		return nil, nil
	}
	return txtValues(set), nil
}

func (p *DNSProvider) getRecordSet(ctx context.Context, relative string) (*armdns.RecordSet, error) {
	resp, err := p.client.Get(ctx, p.resourceGroup, p.zone, relative, armdns.RecordTypeTXT, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询DNS记录失败: %w", err)
	}
	return &resp.RecordSet, nil
}

func txtValues(set *armdns.RecordSet) []string {
	if set == nil || set.Properties == nil {
		return nil
	}
	var values []string
	for _, record := range set.Properties.TxtRecords {
		if record == nil {
			continue
		}
		// 超过 255 字节的值会被拆成多段
		var sb strings.Builder
		for _, part := range record.Value {
			if part != nil {
				sb.WriteString(*part)
			}
		}
		values = append(values, sb.String())
	}
	return values
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
