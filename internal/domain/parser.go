package domain

import "strings"

// ChallengePrefix DNS-01 验证记录前缀
const ChallengePrefix = "_acme-challenge"

// TrimWildcard 去掉域名开头的通配符和点
// 例如: *.example.com -> example.com, .example.com -> example.com
func TrimWildcard(domain string) string {
	return strings.TrimLeft(strings.TrimSpace(domain), "*.")
}

// ChallengeRecordName 计算域名对应的 DNS-01 验证记录名
// 例如: *.example.com 和 example.com 都得到 _acme-challenge.example.com
func ChallengeRecordName(domain string) string {
	return ChallengePrefix + "." + TrimWildcard(domain)
}

// CertDirName 证书存放目录名（去掉通配符前缀）
func CertDirName(domain string) string {
	return TrimWildcard(domain)
}

// ExtractMainDomain 从完整域名提取主域名
// 例如: www.example.com -> example.com, sub.test.example.com -> example.com
func ExtractMainDomain(domain string) string {
	domain = UnFqdn(domain)
	parts := strings.Split(domain, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "." + parts[len(parts)-1]
	}
	return domain
}

// RelativeRecordName 将完整记录名转换为相对于 zone 的主机记录
// 例如: _acme-challenge.www.example.com (zone example.com) -> _acme-challenge.www
// 记录名等于 zone 本身时返回 "@"
func RelativeRecordName(fullRecord, zone string) string {
	fullRecord = strings.ToLower(UnFqdn(fullRecord))
	zone = strings.ToLower(UnFqdn(zone))
	if zone == "" {
		return fullRecord
	}
	if fullRecord == zone {
		return "@"
	}
	if strings.HasSuffix(fullRecord, "."+zone) {
		return strings.TrimSuffix(fullRecord, "."+zone)
	}
	return fullRecord
}

// IsSubDomain 检查是否为子域名
func IsSubDomain(domain, mainDomain string) bool {
	return strings.HasSuffix(domain, "."+mainDomain) || domain == mainDomain
}

// Fqdn 补全末尾的点
func Fqdn(name string) string {
	if strings.HasSuffix(name, ".") {
		return name
	}
	return name + "."
}

// UnFqdn 去掉末尾的点
func UnFqdn(name string) string {
	return strings.TrimSuffix(name, ".")
}
