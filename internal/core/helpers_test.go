package core

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	xacme "golang.org/x/crypto/acme"

	"cert-renewer/internal/acme"
	"cert-renewer/internal/domain"
	"cert-renewer/internal/provider"
)

const (
	authzPrefix = "https://ca/authz/"
	chalPrefix  = "https://ca/chal/"
)

// fakeCA 模拟 CA 的订单流程，挑战状态可按域名脚本化
type fakeCA struct {
	t   *testing.T
	dns provider.DNSProvider

	mu         sync.Mutex
	statuses   map[string][]string // 域名 -> 每次查询依次返回的状态，最后一个重复
	validAuthz map[string]bool
	polls      map[string]int
	accepted   []string
	published  map[string][]string // 触发验证时记录上已有的值
	orders     int
	finalized  int
	csr        *x509.CertificateRequest
	notAfter   time.Time
	pollErr    error // 非 nil 时查询验证状态返回该错误
}

func newFakeCA(t *testing.T, dns provider.DNSProvider) *fakeCA {
	return &fakeCA{
		t:          t,
		dns:        dns,
		statuses:   make(map[string][]string),
		validAuthz: make(map[string]bool),
		polls:      make(map[string]int),
		published:  make(map[string][]string),
		notAfter:   time.Now().Add(90 * 24 * time.Hour),
	}
}

func (f *fakeCA) client() *acme.Client {
	return acme.NewClient(&acme.FakeACME{
		FakeAuthorizeOrder: func(ctx context.Context, ids []xacme.AuthzID, opt ...xacme.OrderOption) (*xacme.Order, error) {
			f.mu.Lock()
			f.orders++
			f.mu.Unlock()

			var urls []string
			for _, id := range ids {
				urls = append(urls, authzPrefix+id.Value)
			}
			return &xacme.Order{
				URI:         "https://ca/order/1",
				FinalizeURL: "https://ca/order/1/finalize",
				AuthzURLs:   urls,
			}, nil
		},
		FakeGetAuthorization: func(ctx context.Context, url string) (*xacme.Authorization, error) {
			id := strings.TrimPrefix(url, authzPrefix)
			status := xacme.StatusPending
			if f.validAuthz[id] {
				status = xacme.StatusValid
			}
			return &xacme.Authorization{
				URI:        url,
				Status:     status,
				Identifier: xacme.AuthzID{Type: "dns", Value: strings.TrimPrefix(id, "*.")},
				Wildcard:   strings.HasPrefix(id, "*."),
				Challenges: []*xacme.Challenge{
					{Type: "dns-01", URI: chalPrefix + id, Token: "token-" + id},
				},
			}, nil
		},
		FakeDNS01ChallengeRecord: func(token string) (string, error) {
			return "value-" + strings.TrimPrefix(token, "token-"), nil
		},
		FakeAccept: func(ctx context.Context, chal *xacme.Challenge) (*xacme.Challenge, error) {
			id := strings.TrimPrefix(chal.URI, chalPrefix)
			values, err := f.dns.GetRecord(ctx, domain.ChallengeRecordName(id))
			if err != nil {
				return nil, err
			}

			f.mu.Lock()
			defer f.mu.Unlock()
			f.accepted = append(f.accepted, id)
			f.published[id] = values
			return chal, nil
		},
		FakeGetChallenge: func(ctx context.Context, url string) (*xacme.Challenge, error) {
			id := strings.TrimPrefix(url, chalPrefix)

			f.mu.Lock()
			defer f.mu.Unlock()
			n := f.polls[id]
			f.polls[id]++
			if f.pollErr != nil {
				return nil, f.pollErr
			}

			status := xacme.StatusValid
			if seq := f.statuses[id]; len(seq) > 0 {
				if n < len(seq) {
					status = seq[n]
				} else {
					status = seq[len(seq)-1]
				}
			}
			return &xacme.Challenge{URI: url, Status: status}, nil
		},
		FakeWaitOrder: func(ctx context.Context, url string) (*xacme.Order, error) {
			return &xacme.Order{URI: url, Status: xacme.StatusReady}, nil
		},
		FakeCreateOrderCert: func(ctx context.Context, finalizeURL string, csr []byte, bundle bool) ([][]byte, string, error) {
			req, err := x509.ParseCertificateRequest(csr)
			if err != nil {
				return nil, "", err
			}

			f.mu.Lock()
			f.finalized++
			f.csr = req
			f.mu.Unlock()

			leaf := selfSignedDER(f.t, req.Subject.CommonName, f.notAfter)
			issuer := selfSignedDER(f.t, "Fake Intermediate", f.notAfter.Add(365*24*time.Hour))
			return [][]byte{leaf, issuer}, "https://ca/cert/1", nil
		},
	})
}

func selfSignedDER(t *testing.T, cn string, notAfter time.Time) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		DNSNames:     []string{cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return der
}

func selfSignedPEM(t *testing.T, cn string, notAfter time.Time) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: selfSignedDER(t, cn, notAfter)})
}

// failingDNS 在指定操作上返回错误
type failingDNS struct {
	provider.DNSProvider
	failAdd bool
}

func (f *failingDNS) AddRecords(ctx context.Context, name string, values []string) error {
	if f.failAdd {
		return errors.New("dns api unavailable")
	}
	return f.DNSProvider.AddRecords(ctx, name, values)
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
	return nil
}
