package storage

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	cas "github.com/alibabacloud-go/cas-20200407/v3/client"
	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	"github.com/alibabacloud-go/tea/tea"

	"cert-renewer/internal/config"
	"cert-renewer/internal/domain"
)

type casAPI interface {
	UploadUserCertificate(request *cas.UploadUserCertificateRequest) (*cas.UploadUserCertificateResponse, error)
}

// AliyunCASMirror 将签发的证书上传到阿里云数字证书管理服务
type AliyunCASMirror struct {
	client casAPI
	now    func() time.Time
}

// NewAliyunCASMirror 创建阿里云证书上传，凭证与阿里云 DNS 共用
func NewAliyunCASMirror(cfg *config.AliyunConfig) (*AliyunCASMirror, error) {
	client, err := cas.NewClient(&openapi.Config{
		AccessKeyId:     tea.String(cfg.AccessKeyID),
		AccessKeySecret: tea.String(cfg.AccessKeySecret),
		Endpoint:        tea.String("cas.aliyuncs.com"),
	})
	if err != nil {
		return nil, fmt.Errorf("创建阿里云CAS客户端失败: %w", err)
	}
	return &AliyunCASMirror{client: client, now: time.Now}, nil
}

// Upload 以 <域名>-<时间> 为名称上传证书，旧证书保留在控制台
func (m *AliyunCASMirror) Upload(ctx context.Context, name string, fullchain, privateKey []byte) error {
	certName := uploadName(name, m.now())

	resp, err := m.client.UploadUserCertificate(&cas.UploadUserCertificateRequest{
		Name: tea.String(certName),
		Cert: tea.String(string(fullchain)),
		Key:  tea.String(string(privateKey)),
	})
	if err != nil {
		return fmt.Errorf("上传证书到阿里云失败: %w", err)
	}

	var certID int64
	if resp != nil && resp.Body != nil {
		certID = tea.Int64Value(resp.Body.CertId)
	}
	log.Printf("[阿里云] 证书已上传: %s，证书ID: %d", certName, certID)
	return nil
}

// uploadName 云平台证书名称只允许字母数字与连字符
func uploadName(name string, now time.Time) string {
	return strings.ReplaceAll(domain.CertDirName(name), ".", "-") + "-" + now.Format("20060102150405")
}
