package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	ssl "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/ssl/v20191205"

	"cert-renewer/internal/config"
)

type sslAPI interface {
	UploadCertificateWithContext(ctx context.Context, request *ssl.UploadCertificateRequest) (*ssl.UploadCertificateResponse, error)
}

// TencentSSLMirror 将签发的证书上传到腾讯云 SSL 证书服务
type TencentSSLMirror struct {
	client sslAPI
	now    func() time.Time
}

// NewTencentSSLMirror 创建腾讯云证书上传，凭证与腾讯云 DNS 共用
func NewTencentSSLMirror(cfg *config.TencentConfig) (*TencentSSLMirror, error) {
	credential := common.NewCredential(cfg.SecretID, cfg.SecretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "ssl.tencentcloudapi.com"

	region := cfg.Region
	if region == "" {
		region = "ap-guangzhou"
	}

	client, err := ssl.NewClient(credential, region, cpf)
	if err != nil {
		return nil, fmt.Errorf("创建腾讯云SSL客户端失败: %w", err)
	}
	return &TencentSSLMirror{client: client, now: time.Now}, nil
}

// Upload 上传服务端证书，备注名与阿里云一致
func (m *TencentSSLMirror) Upload(ctx context.Context, name string, fullchain, privateKey []byte) error {
	alias := uploadName(name, m.now())

	request := ssl.NewUploadCertificateRequest()
	request.CertificatePublicKey = common.StringPtr(string(fullchain))
	request.CertificatePrivateKey = common.StringPtr(string(privateKey))
	request.CertificateType = common.StringPtr("SVR")
	request.Alias = common.StringPtr(alias)

	resp, err := m.client.UploadCertificateWithContext(ctx, request)
	if err != nil {
		return fmt.Errorf("上传证书到腾讯云失败: %w", err)
	}

	certID := ""
	if resp != nil && resp.Response != nil && resp.Response.CertificateId != nil {
		certID = *resp.Response.CertificateId
	}
	log.Printf("[腾讯云] 证书已上传: %s，证书ID: %s", alias, certID)
	return nil
}
