package provider

// RecordTypeTXT TXT 记录类型
const RecordTypeTXT = "TXT"

// DNSRecord DNS记录
type DNSRecord struct {
	RecordID string // 记录ID
	Domain   string // 主域名 (zone)
	RR       string // 主机记录 (子域名)
	Type     string // 记录类型
	Value    string // 记录值
	TTL      int    // TTL
}

// MergeValues 合并记录值，保持原有顺序并去重
func MergeValues(existing, values []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(values))
	merged := make([]string, 0, len(existing)+len(values))
	for _, list := range [][]string{existing, values} {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			merged = append(merged, v)
		}
	}
	return merged
}

// MissingValues 返回 values 中不在 existing 里的值
func MissingValues(existing, values []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, v := range existing {
		seen[v] = struct{}{}
	}
	var missing []string
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		missing = append(missing, v)
	}
	return missing
}
