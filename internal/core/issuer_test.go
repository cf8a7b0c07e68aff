package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cert-renewer/internal/acme"
	"cert-renewer/internal/provider/memory"
	"cert-renewer/internal/storage"
)

func TestCertDirs(t *testing.T) {
	got := certDirs("example.com", []string{"example.com", "*.example.com", "www.example.com", "*.www.example.com"})
	assert.Equal(t, []string{"example.com", "www.example.com"}, got)
}

type stubMirror struct {
	names []string
	err   error
}

func (m *stubMirror) Upload(ctx context.Context, name string, fullchain, privateKey []byte) error {
	m.names = append(m.names, name)
	return m.err
}

func TestIssueCertificate_MirrorAndPostCommand(t *testing.T) {
	dir := t.TempDir()
	dns := memory.NewDNSProvider()
	ca := newFakeCA(t, dns)
	store := storage.NewFileStorage(dir)

	issuer, err := NewIssuer(ca.client(), store, "P256")
	require.NoError(t, err)

	// 备份失败不影响签发结果，也不影响后面的上传
	failing := &stubMirror{err: errors.New("s3 unavailable")}
	mirror := &stubMirror{}
	issuer.mirrors = []Mirror{failing, mirror}
	marker := filepath.Join(dir, "reloaded")
	issuer.postCommand = "echo ${DOMAIN} > " + marker

	order := &acme.Order{URI: "https://ca/order/1", FinalizeURL: "https://ca/order/1/finalize", Domains: []string{"example.com"}}
	require.NoError(t, issuer.IssueCertificate(context.Background(), order, "example.com"))

	assert.Equal(t, []string{"example.com"}, failing.names)
	assert.Equal(t, []string{"example.com"}, mirror.names)
	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "example.com\n", string(data))

	key, err := os.ReadFile(store.GetKeyPath("example.com"))
	require.NoError(t, err)
	_, err = certcrypto.ParsePEMPrivateKey(key)
	assert.NoError(t, err)
}
