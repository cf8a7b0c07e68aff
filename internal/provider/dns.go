package provider

import "context"

// DNSProvider DNS提供商接口
//
// name 均为完整记录名，例如 _acme-challenge.example.com，
// 各实现自行换算为相对于 zone 的主机记录。
type DNSProvider interface {
	// Name 返回提供商名称
	Name() string

	// ClearRecord 删除 name 下所有 TXT 记录值，记录不存在视为成功
	ClearRecord(ctx context.Context, name string) error

	// AddRecords 确保 values 中每个值都存在于 name 下（与已有值取并集）
	AddRecords(ctx context.Context, name string, values []string) error

	// GetRecord 返回 name 下当前的 TXT 记录值，不存在时返回空
	GetRecord(ctx context.Context, name string) ([]string, error)
}
