package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddClearGet(t *testing.T) {
	ctx := context.Background()
	p := NewDNSProvider()
	name := "_acme-challenge.example.com"

	require.NoError(t, p.AddRecords(ctx, name, []string{"v1", "v2"}))
	values, err := p.GetRecord(ctx, name)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1", "v2"}, values)

	require.NoError(t, p.ClearRecord(ctx, name))
	values, err = p.GetRecord(ctx, name)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestClearRecord_Idempotent(t *testing.T) {
	ctx := context.Background()
	p := NewDNSProvider()

	assert.NoError(t, p.ClearRecord(ctx, "_acme-challenge.absent.example.com"))
	assert.NoError(t, p.ClearRecord(ctx, "_acme-challenge.absent.example.com"))
}

func TestAddRecords_Union(t *testing.T) {
	ctx := context.Background()
	p := NewDNSProvider()
	name := "_acme-challenge.example.com."

	require.NoError(t, p.AddRecords(ctx, name, []string{"a"}))
	require.NoError(t, p.AddRecords(ctx, "_ACME-CHALLENGE.example.com", []string{"a", "b"}))

	values, err := p.GetRecord(ctx, "_acme-challenge.example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, values)
}

func TestClearThenAdd_DropsStaleValues(t *testing.T) {
	ctx := context.Background()
	p := NewDNSProvider()
	name := "_acme-challenge.example.com"

	require.NoError(t, p.AddRecords(ctx, name, []string{"stale"}))
	require.NoError(t, p.ClearRecord(ctx, name))
	require.NoError(t, p.AddRecords(ctx, name, []string{"fresh-1", "fresh-2"}))

	values, err := p.GetRecord(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh-1", "fresh-2"}, values)
}
