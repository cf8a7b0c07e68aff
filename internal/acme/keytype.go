package acme

import (
	"fmt"
	"strings"

	"github.com/go-acme/lego/v4/certcrypto"
)

// KeyTypes 支持的证书私钥类型，EC256/EC384 为 P256/P384 的别名
var KeyTypes = []string{"RSA2048", "RSA3072", "RSA4096", "P256", "P384", "EC256", "EC384"}

// ParseKeyType 将配置中的私钥类型转换为 lego 的类型，空值为 RSA2048
func ParseKeyType(s string) (certcrypto.KeyType, error) {
	switch strings.ToUpper(s) {
	case "", "RSA2048":
		return certcrypto.RSA2048, nil
	case "RSA3072":
		return certcrypto.RSA3072, nil
	case "RSA4096":
		return certcrypto.RSA4096, nil
	case "P256", "EC256":
		return certcrypto.EC256, nil
	case "P384", "EC384":
		return certcrypto.EC384, nil
	}
	return "", fmt.Errorf("不支持的私钥类型: %s (可选: %s)", s, strings.Join(KeyTypes, ", "))
}
