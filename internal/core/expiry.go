package core

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"cert-renewer/internal/notification"
	"cert-renewer/internal/storage"
)

type certReader interface {
	ReadCertificate(name string) (*storage.CertificateRecord, error)
}

// ExpiryDetector 根据磁盘上的证书判断哪些域名需要续期
type ExpiryDetector struct {
	domains     []string
	store       certReader
	renewBefore time.Duration
	notifier    *notification.WebhookNotifier
	now         func() time.Time
}

// NewExpiryDetector 创建过期检测器
func NewExpiryDetector(domains []string, store certReader, renewBefore time.Duration) *ExpiryDetector {
	return &ExpiryDetector{
		domains:     domains,
		store:       store,
		renewBefore: renewBefore,
		now:         time.Now,
	}
}

// GetExpiringDomains 返回需要续期的域名，顺序与配置一致
// 证书不存在、读取或解析失败都视为需要续期
func (d *ExpiryDetector) GetExpiringDomains(ctx context.Context) []string {
	var expiring []string
	now := d.now()

	for _, name := range d.domains {
		record, err := d.store.ReadCertificate(name)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				log.Printf("域名 %s 没有本地证书，需要签发", name)
			} else {
				log.Printf("ERROR 读取域名 %s 的证书失败，将重新签发: %v", name, err)
			}
			expiring = append(expiring, name)
			continue
		}

		remaining := record.NotAfter.Sub(now)
		daysRemaining := int(remaining.Hours() / 24)
		if remaining >= d.renewBefore {
			log.Printf("域名 %s 的证书将在 %d 天后过期 (%s)，无需续期", name, daysRemaining, record.NotAfter.Format("2006-01-02"))
			continue
		}

		log.Printf("域名 %s 的证书将在 %d 天后过期 (%s)，需要续期", name, daysRemaining, record.NotAfter.Format("2006-01-02"))
		expiring = append(expiring, name)
		if err := d.notifier.NotifyCertExpiring(ctx, name, daysRemaining); err != nil {
			log.Printf("发送通知失败: %v", err)
		}
	}

	return expiring
}
