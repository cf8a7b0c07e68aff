package acme

import (
	"context"
	"fmt"

	xacme "golang.org/x/crypto/acme"
)

// FakeACME 实现 Interface，用于测试
type FakeACME struct {
	FakeAuthorizeOrder       func(ctx context.Context, id []xacme.AuthzID, opt ...xacme.OrderOption) (*xacme.Order, error)
	FakeWaitOrder            func(ctx context.Context, url string) (*xacme.Order, error)
	FakeCreateOrderCert      func(ctx context.Context, finalizeURL string, csr []byte, bundle bool) ([][]byte, string, error)
	FakeGetAuthorization     func(ctx context.Context, url string) (*xacme.Authorization, error)
	FakeAccept               func(ctx context.Context, chal *xacme.Challenge) (*xacme.Challenge, error)
	FakeGetChallenge         func(ctx context.Context, url string) (*xacme.Challenge, error)
	FakeDNS01ChallengeRecord func(token string) (string, error)
	FakeRegister             func(ctx context.Context, a *xacme.Account, prompt func(tosURL string) bool) (*xacme.Account, error)
	FakeGetReg               func(ctx context.Context, url string) (*xacme.Account, error)
}

var _ Interface = &FakeACME{}

func (f *FakeACME) AuthorizeOrder(ctx context.Context, id []xacme.AuthzID, opt ...xacme.OrderOption) (*xacme.Order, error) {
	if f.FakeAuthorizeOrder != nil {
		return f.FakeAuthorizeOrder(ctx, id, opt...)
	}
	return nil, fmt.Errorf("AuthorizeOrder not implemented")
}

func (f *FakeACME) WaitOrder(ctx context.Context, url string) (*xacme.Order, error) {
	if f.FakeWaitOrder != nil {
		return f.FakeWaitOrder(ctx, url)
	}
	return nil, fmt.Errorf("WaitOrder not implemented")
}

func (f *FakeACME) CreateOrderCert(ctx context.Context, finalizeURL string, csr []byte, bundle bool) ([][]byte, string, error) {
	if f.FakeCreateOrderCert != nil {
		return f.FakeCreateOrderCert(ctx, finalizeURL, csr, bundle)
	}
	return nil, "", fmt.Errorf("CreateOrderCert not implemented")
}

func (f *FakeACME) GetAuthorization(ctx context.Context, url string) (*xacme.Authorization, error) {
	if f.FakeGetAuthorization != nil {
		return f.FakeGetAuthorization(ctx, url)
	}
	return nil, fmt.Errorf("GetAuthorization not implemented")
}

func (f *FakeACME) Accept(ctx context.Context, chal *xacme.Challenge) (*xacme.Challenge, error) {
	if f.FakeAccept != nil {
		return f.FakeAccept(ctx, chal)
	}
	return nil, fmt.Errorf("Accept not implemented")
}

func (f *FakeACME) GetChallenge(ctx context.Context, url string) (*xacme.Challenge, error) {
	if f.FakeGetChallenge != nil {
		return f.FakeGetChallenge(ctx, url)
	}
	return nil, fmt.Errorf("GetChallenge not implemented")
}

func (f *FakeACME) DNS01ChallengeRecord(token string) (string, error) {
	if f.FakeDNS01ChallengeRecord != nil {
		return f.FakeDNS01ChallengeRecord(token)
	}
	return "", fmt.Errorf("DNS01ChallengeRecord not implemented")
}

func (f *FakeACME) Register(ctx context.Context, a *xacme.Account, prompt func(tosURL string) bool) (*xacme.Account, error) {
	if f.FakeRegister != nil {
		return f.FakeRegister(ctx, a, prompt)
	}
	return nil, fmt.Errorf("Register not implemented")
}

func (f *FakeACME) GetReg(ctx context.Context, url string) (*xacme.Account, error) {
	if f.FakeGetReg != nil {
		return f.FakeGetReg(ctx, url)
	}
	return nil, fmt.Errorf("GetReg not implemented")
}
