package azure

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/dns/armdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecords struct {
	sets       map[string]armdns.RecordSet
	lastCreate *armdns.RecordSetsClientCreateOrUpdateOptions
}

func notFound() error {
	return &azcore.ResponseError{StatusCode: http.StatusNotFound, ErrorCode: "NotFound"}
}

func (f *fakeRecords) Get(ctx context.Context, rg, zone, name string, rt armdns.RecordType, _ *armdns.RecordSetsClientGetOptions) (armdns.RecordSetsClientGetResponse, error) {
	set, ok := f.sets[name]
	if !ok {
		return armdns.RecordSetsClientGetResponse{}, notFound()
	}
	return armdns.RecordSetsClientGetResponse{RecordSet: set}, nil
}

func (f *fakeRecords) CreateOrUpdate(ctx context.Context, rg, zone, name string, rt armdns.RecordType, params armdns.RecordSet, opts *armdns.RecordSetsClientCreateOrUpdateOptions) (armdns.RecordSetsClientCreateOrUpdateResponse, error) {
	f.lastCreate = opts
	params.Etag = to.Ptr("etag-" + name)
	f.sets[name] = params
	return armdns.RecordSetsClientCreateOrUpdateResponse{RecordSet: params}, nil
}

func (f *fakeRecords) Delete(ctx context.Context, rg, zone, name string, rt armdns.RecordType, _ *armdns.RecordSetsClientDeleteOptions) (armdns.RecordSetsClientDeleteResponse, error) {
	if _, ok := f.sets[name]; !ok {
		return armdns.RecordSetsClientDeleteResponse{}, notFound()
	}
	delete(f.sets, name)
	return armdns.RecordSetsClientDeleteResponse{}, nil
}

func newTestProvider() (*DNSProvider, *fakeRecords) {
	fake := &fakeRecords{sets: make(map[string]armdns.RecordSet)}
	return &DNSProvider{client: fake, resourceGroup: "rg", zone: "example.com", ttl: 60}, fake
}

func TestDNSProvider_AddClearGet(t *testing.T) {
	ctx := context.Background()
	p, fake := newTestProvider()
	name := "_acme-challenge.example.com"

	require.NoError(t, p.AddRecords(ctx, name, []string{"v1", "v2"}))
	require.NotNil(t, fake.lastCreate)
	assert.Equal(t, "*", *fake.lastCreate.IfNoneMatch)

	values, err := p.GetRecord(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, values)
	assert.Contains(t, fake.sets, "_acme-challenge")

	require.NoError(t, p.AddRecords(ctx, name, []string{"v3"}))
	assert.Equal(t, "etag-_acme-challenge", *fake.lastCreate.IfMatch)

	require.NoError(t, p.ClearRecord(ctx, name))
	values, err = p.GetRecord(ctx, name)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestDNSProvider_ClearAbsentTwice(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider()

	assert.NoError(t, p.ClearRecord(ctx, "_acme-challenge.example.com"))
	assert.NoError(t, p.ClearRecord(ctx, "_acme-challenge.example.com"))
}

func TestDNSProvider_AddExistingIsNoop(t *testing.T) {
	ctx := context.Background()
	p, fake := newTestProvider()

	require.NoError(t, p.AddRecords(ctx, "_acme-challenge.example.com", []string{"v1"}))
	fake.lastCreate = nil
	require.NoError(t, p.AddRecords(ctx, "_acme-challenge.example.com", []string{"v1"}))
	assert.Nil(t, fake.lastCreate)
}

func TestTxtValues_JoinsChunks(t *testing.T) {
	long := strings.Repeat("a", 300)
	set := &armdns.RecordSet{Properties: &armdns.RecordSetProperties{
		TxtRecords: []*armdns.TxtRecord{{Value: []*string{to.Ptr(long[:255]), to.Ptr(long[255:])}}},
	}}
	assert.Equal(t, []string{long}, txtValues(set))
}

func TestCloudConfiguration(t *testing.T) {
	_, err := cloudConfiguration("AzureChinaCloud")
	assert.NoError(t, err)
	_, err = cloudConfiguration("mars")
	assert.Error(t, err)
}
