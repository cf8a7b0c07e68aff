package core

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"github.com/go-acme/lego/v4/certcrypto"

	"cert-renewer/internal/acme"
	"cert-renewer/internal/domain"
	"cert-renewer/internal/metrics"
	"cert-renewer/internal/notification"
	"cert-renewer/internal/storage"
)

// Mirror 证书的远程备份或上传目标
type Mirror interface {
	Upload(ctx context.Context, name string, fullchain, privateKey []byte) error
}

// Issuer 提交订单并保存证书
type Issuer struct {
	acme     ACMEClient
	storage  *storage.FileStorage
	keyType  certcrypto.KeyType
	mirrors  []Mirror
	executor *Executor
	notifier *notification.WebhookNotifier
	metrics  *metrics.Metrics

	postCommand string
}

// NewIssuer 创建签发器
func NewIssuer(client ACMEClient, store *storage.FileStorage, keyType string) (*Issuer, error) {
	kt, err := acme.ParseKeyType(keyType)
	if err != nil {
		return nil, err
	}
	return &Issuer{
		acme:     client,
		storage:  store,
		keyType:  kt,
		executor: NewExecutor(),
	}, nil
}

// IssueCertificate 生成新私钥，以 primaryDomain 为 CN 提交订单并保存证书链
// 订单中其它域名对应的目录也会写入同一份证书
func (i *Issuer) IssueCertificate(ctx context.Context, order *acme.Order, primaryDomain string) error {
	log.Printf("开始签发证书: %s", primaryDomain)

	key, err := certcrypto.GeneratePrivateKey(i.keyType)
	if err != nil {
		return fmt.Errorf("生成私钥失败: %w", err)
	}

	csr, err := certcrypto.GenerateCSR(key, primaryDomain, order.Domains, false)
	if err != nil {
		return fmt.Errorf("生成 CSR 失败: %w", err)
	}

	chain, err := i.acme.FinalizeOrder(ctx, order, csr)
	if err != nil {
		return err
	}

	var fullchain bytes.Buffer
	for _, der := range chain {
		fullchain.Write(certcrypto.PEMEncode(certcrypto.DERCertificateBytes(der)))
	}
	keyPEM := certcrypto.PEMEncode(key)

	leaf, err := certcrypto.ParsePEMCertificate(fullchain.Bytes())
	if err != nil {
		return fmt.Errorf("解析签发的证书失败: %w", err)
	}

	// 所有目录一起替换，任一目录失败时全部保持原样
	if err := i.storage.SaveCertificates(certDirs(primaryDomain, order.Domains), fullchain.Bytes(), keyPEM); err != nil {
		log.Printf("ERROR 保存证书失败 %s: %v", primaryDomain, err)
		return err
	}
	i.metrics.CertificateIssued()

	log.Printf("证书签发成功: %s，有效期至 %s", primaryDomain, leaf.NotAfter.Format("2006-01-02"))

	// 上传失败只记录日志，本地证书已经生效
	for _, m := range i.mirrors {
		if err := m.Upload(ctx, primaryDomain, fullchain.Bytes(), keyPEM); err != nil {
			log.Printf("证书备份失败: %v", err)
		}
	}

	if i.postCommand != "" {
		vars := i.executor.BuildVars(
			primaryDomain,
			i.storage.GetCertDir(primaryDomain),
			i.storage.GetKeyPath(primaryDomain),
			i.storage.GetFullchainPath(primaryDomain),
		)
		if err := i.executor.RunPostCommand(ctx, i.postCommand, vars); err != nil {
			log.Printf("执行后置命令失败: %v", err)
		}
	}

	if err := i.notifier.NotifyCertRenewed(ctx, primaryDomain, order.Domains, leaf.NotAfter); err != nil {
		log.Printf("发送通知失败: %v", err)
	}
	return nil
}

// certDirs 返回需要写入证书的域名，主域名在前，同目录的只保留一个
func certDirs(primary string, domains []string) []string {
	seen := map[string]struct{}{domain.CertDirName(primary): {}}
	names := []string{primary}
	for _, d := range domains {
		dir := domain.CertDirName(d)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		names = append(names, d)
	}
	return names
}
