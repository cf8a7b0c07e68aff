package acme

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-acme/lego/v4/certcrypto"
	xacme "golang.org/x/crypto/acme"
)

const (
	accountsDir    = "accounts"
	accountKeyFile = "account-key.pem"
	accountURLFile = "account-url.txt"

	userAgent = "cert-renewer"
)

// AccountOptions ACME 账户配置
type AccountOptions struct {
	Email        string
	KeyPath      string // 账户目录的上级目录，文件位于 <KeyPath>/accounts/
	DirectoryURL string
}

// LoadOrCreateAccount 加载账户密钥，不存在时生成新密钥并注册账户
func LoadOrCreateAccount(ctx context.Context, opts AccountOptions) (*Client, error) {
	dir := filepath.Join(opts.KeyPath, accountsDir)

	key, created, err := loadOrCreateKey(dir)
	if err != nil {
		return nil, err
	}

	directoryURL := opts.DirectoryURL
	if directoryURL == "" {
		directoryURL = xacme.LetsEncryptURL
	}

	client := &xacme.Client{
		Key:          key,
		DirectoryURL: directoryURL,
		UserAgent:    userAgent,
	}

	accountURL, err := readAccountURL(dir)
	if err != nil {
		return nil, err
	}

	if created || accountURL == "" {
		accountURL, err = register(ctx, client, opts.Email)
		if err != nil {
			return nil, err
		}
		if err := writeFileAtomic(filepath.Join(dir, accountURLFile), []byte(accountURL), 0o600); err != nil {
			return nil, fmt.Errorf("保存账户地址失败: %w", err)
		}
		log.Printf("[ACME] 账户已注册: %s", accountURL)
	} else {
		log.Printf("[ACME] 使用已有账户: %s", accountURL)
	}
	client.KID = xacme.KeyID(accountURL)

	return NewClient(client), nil
}

// register 注册账户并同意服务条款，账户已存在时返回已有地址
func register(ctx context.Context, api Interface, email string) (string, error) {
	acct := &xacme.Account{}
	if email != "" {
		acct.Contact = []string{"mailto:" + email}
	}

	registered, err := api.Register(ctx, acct, xacme.AcceptTOS)
	if errors.Is(err, xacme.ErrAccountAlreadyExists) {
		registered, err = api.GetReg(ctx, "")
	}
	if err != nil {
		return "", fmt.Errorf("注册 ACME 账户失败: %w", err)
	}
	if registered == nil || registered.URI == "" {
		return "", fmt.Errorf("ACME 服务端未返回账户地址")
	}
	return registered.URI, nil
}

// loadOrCreateKey 读取账户私钥，文件不存在时生成 P-256 私钥
func loadOrCreateKey(dir string) (crypto.Signer, bool, error) {
	path := filepath.Join(dir, accountKeyFile)

	data, err := os.ReadFile(path)
	if err == nil {
		key, err := certcrypto.ParsePEMPrivateKey(data)
		if err != nil {
			return nil, false, fmt.Errorf("解析账户私钥失败: %w", err)
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, false, fmt.Errorf("账户私钥类型不支持: %T", key)
		}
		return signer, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("读取账户私钥失败: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, false, fmt.Errorf("创建账户目录失败: %w", err)
	}

	key, err := certcrypto.GeneratePrivateKey(certcrypto.EC256)
	if err != nil {
		return nil, false, fmt.Errorf("生成账户私钥失败: %w", err)
	}
	if err := writeFileAtomic(path, certcrypto.PEMEncode(key), 0o600); err != nil {
		return nil, false, fmt.Errorf("保存账户私钥失败: %w", err)
	}

	log.Printf("[ACME] 已生成账户私钥: %s", path)
	return key.(crypto.Signer), true, nil
}

func readAccountURL(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, accountURLFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("读取账户地址失败: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
