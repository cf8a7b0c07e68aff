// Package memory 内存 DNS 提供商，配置 dns.provider: memory 时使用，也用于测试
package memory

import (
	"context"
	"log"
	"strings"
	"sync"

	"cert-renewer/internal/domain"
	"cert-renewer/internal/provider"
)

// DNSProvider 内存 DNS 提供商
type DNSProvider struct {
	mu      sync.Mutex
	records map[string][]string
}

// NewDNSProvider 创建内存 DNS 提供商
func NewDNSProvider() *DNSProvider {
	return &DNSProvider{records: make(map[string][]string)}
}

var _ provider.DNSProvider = (*DNSProvider)(nil)

// Name 返回提供商名称
func (p *DNSProvider) Name() string {
	return "memory"
}

func key(name string) string {
	return strings.ToLower(domain.UnFqdn(name))
}

// ClearRecord 删除记录
func (p *DNSProvider) ClearRecord(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.records, key(name))
	log.Printf("[内存DNS] 清除记录: %s", name)
	return nil
}

// AddRecords 添加记录值
func (p *DNSProvider) AddRecords(ctx context.Context, name string, values []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	k := key(name)
	p.records[k] = provider.MergeValues(p.records[k], values)
	log.Printf("[内存DNS] 添加记录: %s -> %v", name, values)
	return nil
}

// GetRecord 查询记录值
func (p *DNSProvider) GetRecord(ctx context.Context, name string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	values := p.records[key(name)]
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out, nil
}
