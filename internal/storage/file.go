package storage

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"

	"cert-renewer/internal/domain"
)

const (
	FullchainFile  = "fullchain.pem"
	PrivateKeyFile = "privkey.pem"
)

// ErrPersist 证书写入磁盘失败
var ErrPersist = errors.New("证书持久化失败")

// CertificateRecord 磁盘上已有证书的摘要
type CertificateRecord struct {
	Domain    string
	Path      string
	NotBefore time.Time
	NotAfter  time.Time
	DNSNames  []string
}

// FileStorage 文件存储
type FileStorage struct {
	baseDir string
	rename  func(oldpath, newpath string) error
}

// NewFileStorage 创建文件存储
func NewFileStorage(baseDir string) *FileStorage {
	return &FileStorage{baseDir: baseDir, rename: os.Rename}
}

// SaveCertificate 保存单个域名的证书链与私钥
func (s *FileStorage) SaveCertificate(name string, fullchain, privateKey []byte) error {
	return s.SaveCertificates([]string{name}, fullchain, privateKey)
}

// SaveCertificates 将同一份证书链与私钥写入多个域名目录
// 所有目录准备完成后才开始替换，任一目录替换失败时已替换的目录全部回滚
func (s *FileStorage) SaveCertificates(names []string, fullchain, privateKey []byte) error {
	if len(fullchain) == 0 || len(privateKey) == 0 {
		return fmt.Errorf("%w: 证书或私钥为空", ErrPersist)
	}

	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return fmt.Errorf("%w: 创建目录失败: %v", ErrPersist, err)
	}

	var txs []*dirTx
	defer func() {
		for _, tx := range txs {
			os.RemoveAll(tx.staging)
		}
	}()

	seen := make(map[string]bool)
	for _, name := range names {
		dir := s.GetCertDir(name)
		if seen[dir] {
			continue
		}
		seen[dir] = true

		tx, err := s.prepare(dir, fullchain, privateKey)
		if tx != nil {
			txs = append(txs, tx)
		}
		if err != nil {
			for _, tx := range txs {
				tx.release()
			}
			return fmt.Errorf("%w: %s: %v", ErrPersist, dir, err)
		}
	}

	for i, tx := range txs {
		if err := tx.commit(s.rename); err != nil {
			for _, done := range txs[:i+1] {
				done.rollback()
			}
			for _, rest := range txs[i+1:] {
				rest.release()
			}
			return fmt.Errorf("%w: %s: %v", ErrPersist, tx.dir, err)
		}
	}

	for _, tx := range txs {
		tx.release()
		log.Printf("证书已保存到: %s", tx.dir)
	}
	return nil
}

// Recover 处理上次保存中断留下的文件
// 带有 .pending 标记的目录回滚到原有文件，其余目录只清理备份
func (s *FileStorage) Recover() error {
	entries, err := os.ReadDir(s.baseDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, e := range entries {
		path := filepath.Join(s.baseDir, e.Name())
		if !e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), stagingPrefix) {
			os.RemoveAll(path)
			continue
		}

		tx := &dirTx{dir: path}
		if _, err := os.Stat(tx.marker()); err == nil {
			log.Printf("ERROR 目录 %s 的证书替换未完成，恢复原有文件", path)
			tx.rollback()
			continue
		}
		tx.release()
	}
	return nil
}

// ReadCertificate 读取已保存的证书链中的叶子证书
func (s *FileStorage) ReadCertificate(name string) (*CertificateRecord, error) {
	path := s.GetFullchainPath(name)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cert, err := certcrypto.ParsePEMCertificate(data)
	if err != nil {
		return nil, fmt.Errorf("解析证书失败 %s: %w", path, err)
	}

	return &CertificateRecord{
		Domain:    name,
		Path:      path,
		NotBefore: cert.NotBefore,
		NotAfter:  cert.NotAfter,
		DNSNames:  cert.DNSNames,
	}, nil
}

// GetCertDir 获取证书目录，通配符域名与主域名共用目录
func (s *FileStorage) GetCertDir(name string) string {
	return filepath.Join(s.baseDir, domain.CertDirName(name))
}

// GetKeyPath 获取私钥路径
func (s *FileStorage) GetKeyPath(name string) string {
	return filepath.Join(s.GetCertDir(name), PrivateKeyFile)
}

// GetFullchainPath 获取完整证书链路径
func (s *FileStorage) GetFullchainPath(name string) string {
	return filepath.Join(s.GetCertDir(name), FullchainFile)
}

func writeSynced(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
