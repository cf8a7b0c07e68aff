package storage

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"cert-renewer/internal/config"
	"cert-renewer/internal/domain"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror 将签发的证书备份到 S3
type S3Mirror struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Mirror 创建 S3 备份，凭证使用 AWS 默认凭证链
func NewS3Mirror(ctx context.Context, cfg *config.S3MirrorConfig) (*S3Mirror, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("加载 AWS 配置失败: %w", err)
	}

	return &S3Mirror{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Upload 上传证书链与私钥
func (m *S3Mirror) Upload(ctx context.Context, name string, fullchain, privateKey []byte) error {
	objects := []struct {
		file string
		data []byte
	}{
		{FullchainFile, fullchain},
		{PrivateKeyFile, privateKey},
	}

	for _, obj := range objects {
		key := m.objectKey(name, obj.file)
		_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:               aws.String(m.bucket),
			Key:                  aws.String(key),
			Body:                 bytes.NewReader(obj.data),
			ContentType:          aws.String("application/x-pem-file"),
			ServerSideEncryption: types.ServerSideEncryptionAes256,
		})
		if err != nil {
			return fmt.Errorf("上传 s3://%s/%s 失败: %w", m.bucket, key, err)
		}
	}

	log.Printf("证书已备份到 s3://%s/%s", m.bucket, m.objectKey(name, ""))
	return nil
}

func (m *S3Mirror) objectKey(name, file string) string {
	return path.Join(m.prefix, domain.CertDirName(name), file)
}
