package storage

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSigned(t *testing.T, cn string, notAfter time.Time) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		DNSNames:     []string{cn},
		NotBefore:    notAfter.Add(-90 * 24 * time.Hour),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestFileStorage_SaveAndRead(t *testing.T) {
	s := NewFileStorage(t.TempDir())
	notAfter := time.Now().Add(60 * 24 * time.Hour).Truncate(time.Second).UTC()
	chain := selfSigned(t, "example.com", notAfter)

	require.NoError(t, s.SaveCertificate("*.example.com", chain, []byte("KEY")))

	assert.Equal(t, filepath.Join(s.baseDir, "example.com"), s.GetCertDir("*.example.com"))

	data, err := os.ReadFile(s.GetFullchainPath("example.com"))
	require.NoError(t, err)
	assert.Equal(t, chain, data)

	key, err := os.ReadFile(s.GetKeyPath("example.com"))
	require.NoError(t, err)
	assert.Equal(t, "KEY", string(key))

	info, err := os.Stat(s.GetKeyPath("example.com"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	record, err := s.ReadCertificate("example.com")
	require.NoError(t, err)
	assert.True(t, notAfter.Equal(record.NotAfter))
	assert.Equal(t, []string{"example.com"}, record.DNSNames)

	// 临时目录不应残留
	entries, err := os.ReadDir(s.baseDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "example.com", entries[0].Name())
}

func TestFileStorage_Overwrite(t *testing.T) {
	s := NewFileStorage(t.TempDir())

	require.NoError(t, s.SaveCertificate("example.com", []byte("OLD CHAIN"), []byte("OLD KEY")))
	require.NoError(t, s.SaveCertificate("example.com", []byte("NEW CHAIN"), []byte("NEW KEY")))

	data, err := os.ReadFile(s.GetFullchainPath("example.com"))
	require.NoError(t, err)
	assert.Equal(t, "NEW CHAIN", string(data))
	assert.NoFileExists(t, s.GetKeyPath("example.com")+".bak")
}

func TestFileStorage_FailureLeavesPreviousFiles(t *testing.T) {
	s := NewFileStorage(t.TempDir())

	dir := s.GetCertDir("example.com")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(s.GetKeyPath("example.com"), []byte("OLD KEY"), 0600))
	// 证书链路径被目录占用，替换必然失败
	require.NoError(t, os.MkdirAll(filepath.Join(s.GetFullchainPath("example.com"), "x"), 0755))

	err := s.SaveCertificate("example.com", []byte("NEW CHAIN"), []byte("NEW KEY"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersist))

	key, err := os.ReadFile(s.GetKeyPath("example.com"))
	require.NoError(t, err)
	assert.Equal(t, "OLD KEY", string(key))
}

func TestFileStorage_EmptyInput(t *testing.T) {
	s := NewFileStorage(t.TempDir())

	err := s.SaveCertificate("example.com", nil, []byte("KEY"))
	assert.ErrorIs(t, err, ErrPersist)
	assert.NoDirExists(t, s.GetCertDir("example.com"))
}

func TestFileStorage_ReadMissingAndCorrupt(t *testing.T) {
	s := NewFileStorage(t.TempDir())

	_, err := s.ReadCertificate("missing.example.com")
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, s.SaveCertificate("bad.example.com", []byte("not a pem"), []byte("KEY")))
	_, err = s.ReadCertificate("bad.example.com")
	assert.Error(t, err)
}

func readPair(t *testing.T, s *FileStorage, name string) (string, string) {
	t.Helper()
	chain, err := os.ReadFile(s.GetFullchainPath(name))
	require.NoError(t, err)
	key, err := os.ReadFile(s.GetKeyPath(name))
	require.NoError(t, err)
	return string(chain), string(key)
}

func TestFileStorage_SaveCertificates_AllDirectories(t *testing.T) {
	s := NewFileStorage(t.TempDir())

	require.NoError(t, s.SaveCertificates([]string{"example.com", "*.example.com", "www.example.com"}, []byte("CHAIN"), []byte("KEY")))

	for _, name := range []string{"example.com", "www.example.com"} {
		chain, key := readPair(t, s, name)
		assert.Equal(t, "CHAIN", chain)
		assert.Equal(t, "KEY", key)
		assert.NoFileExists(t, filepath.Join(s.GetCertDir(name), pendingMarker))
	}
}

func TestFileStorage_SaveCertificates_PrepareFailureKeepsEveryDirectory(t *testing.T) {
	s := NewFileStorage(t.TempDir())
	require.NoError(t, s.SaveCertificate("example.com", []byte("OLD CHAIN"), []byte("OLD KEY")))

	// 第二个目录的位置被普通文件占用
	require.NoError(t, os.WriteFile(s.GetCertDir("www.example.com"), []byte("x"), 0644))

	err := s.SaveCertificates([]string{"example.com", "www.example.com"}, []byte("NEW CHAIN"), []byte("NEW KEY"))
	require.ErrorIs(t, err, ErrPersist)

	chain, key := readPair(t, s, "example.com")
	assert.Equal(t, "OLD CHAIN", chain)
	assert.Equal(t, "OLD KEY", key)
	assert.NoFileExists(t, s.GetKeyPath("example.com")+backupSuffix)
	assert.NoFileExists(t, filepath.Join(s.GetCertDir("example.com"), pendingMarker))
}

func TestFileStorage_SaveCertificates_CommitFailureRollsBack(t *testing.T) {
	s := NewFileStorage(t.TempDir())
	require.NoError(t, s.SaveCertificate("example.com", []byte("OLD CHAIN"), []byte("OLD KEY")))

	failAt := s.GetFullchainPath("www.example.com")
	s.rename = func(oldpath, newpath string) error {
		if newpath == failAt {
			return errors.New("disk full")
		}
		return os.Rename(oldpath, newpath)
	}

	err := s.SaveCertificates([]string{"example.com", "www.example.com"}, []byte("NEW CHAIN"), []byte("NEW KEY"))
	require.ErrorIs(t, err, ErrPersist)

	chain, key := readPair(t, s, "example.com")
	assert.Equal(t, "OLD CHAIN", chain)
	assert.Equal(t, "OLD KEY", key)

	// 原来不存在的目录回滚后仍然没有证书
	assert.NoFileExists(t, s.GetKeyPath("www.example.com"))
	assert.NoFileExists(t, s.GetFullchainPath("www.example.com"))
	for _, name := range []string{"example.com", "www.example.com"} {
		assert.NoFileExists(t, filepath.Join(s.GetCertDir(name), pendingMarker))
	}
}

func TestFileStorage_RecoverInterruptedSave(t *testing.T) {
	s := NewFileStorage(t.TempDir())
	require.NoError(t, s.SaveCertificate("example.com", []byte("OLD CHAIN"), []byte("OLD KEY")))

	// 私钥已替换、证书链尚未替换时进程退出
	dir := s.GetCertDir("example.com")
	tx := &dirTx{dir: dir}
	for _, file := range certFiles {
		require.NoError(t, backupFile(filepath.Join(dir, file)))
	}
	require.NoError(t, os.WriteFile(tx.marker(), nil, 0644))
	require.NoError(t, os.Remove(s.GetKeyPath("example.com")))
	require.NoError(t, os.WriteFile(s.GetKeyPath("example.com"), []byte("NEW KEY"), 0600))
	require.NoError(t, os.MkdirAll(filepath.Join(s.baseDir, stagingPrefix+"123"), 0755))

	require.NoError(t, s.Recover())

	chain, key := readPair(t, s, "example.com")
	assert.Equal(t, "OLD CHAIN", chain)
	assert.Equal(t, "OLD KEY", key)
	assert.NoFileExists(t, tx.marker())
	assert.NoFileExists(t, s.GetKeyPath("example.com")+backupSuffix)
	assert.NoFileExists(t, s.GetFullchainPath("example.com")+backupSuffix)
	assert.NoDirExists(t, filepath.Join(s.baseDir, stagingPrefix+"123"))
}

func TestFileStorage_RecoverCompletedSave(t *testing.T) {
	s := NewFileStorage(t.TempDir())
	require.NoError(t, s.SaveCertificate("example.com", []byte("NEW CHAIN"), []byte("NEW KEY")))

	// 标记已删除、备份尚未清理时进程退出
	require.NoError(t, os.WriteFile(s.GetKeyPath("example.com")+backupSuffix, []byte("OLD KEY"), 0600))

	require.NoError(t, s.Recover())

	chain, key := readPair(t, s, "example.com")
	assert.Equal(t, "NEW CHAIN", chain)
	assert.Equal(t, "NEW KEY", key)
	assert.NoFileExists(t, s.GetKeyPath("example.com")+backupSuffix)
}

func TestFileStorage_RecoverMissingBaseDir(t *testing.T) {
	s := NewFileStorage(filepath.Join(t.TempDir(), "absent"))
	assert.NoError(t, s.Recover())
}
