package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string]string
	err     error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*params.Bucket+"/"+*params.Key] = string(data)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Mirror_Upload(t *testing.T) {
	fake := &fakeS3{objects: make(map[string]string)}
	m := &S3Mirror{client: fake, bucket: "certs", prefix: "prod"}

	require.NoError(t, m.Upload(context.Background(), "*.example.com", []byte("CHAIN"), []byte("KEY")))

	assert.Equal(t, map[string]string{
		"certs/prod/example.com/fullchain.pem": "CHAIN",
		"certs/prod/example.com/privkey.pem":   "KEY",
	}, fake.objects)
}

func TestS3Mirror_UploadError(t *testing.T) {
	m := &S3Mirror{client: &fakeS3{err: errors.New("access denied")}, bucket: "certs"}

	err := m.Upload(context.Background(), "example.com", []byte("CHAIN"), []byte("KEY"))
	assert.ErrorContains(t, err, "access denied")
}
