package acme

import (
	"testing"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyType(t *testing.T) {
	tests := []struct {
		in   string
		want certcrypto.KeyType
	}{
		{"", certcrypto.RSA2048},
		{"rsa3072", certcrypto.RSA3072},
		{"rsa4096", certcrypto.RSA4096},
		{"P256", certcrypto.EC256},
		{"EC384", certcrypto.EC384},
	}
	for _, tt := range tests {
		got, err := ParseKeyType(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseKeyType("ed25519")
	assert.ErrorContains(t, err, "ed25519")
}

func TestParseKeyType_AcceptsEveryListedType(t *testing.T) {
	for _, kt := range KeyTypes {
		_, err := ParseKeyType(kt)
		assert.NoError(t, err, kt)
	}
}
