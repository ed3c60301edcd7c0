// Package upload はファイルアップロードの外部オブジェクトストアへの中継を提供する。
package upload

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStore は外部オブジェクトストアへの書き込みインターフェース。
type ObjectStore interface {
	// Put はオブジェクトを保存し、公開URLを返す。
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// S3StoreConfig はS3（互換）ストアの設定。
type S3StoreConfig struct {
	Bucket        string
	Region        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string // 未設定の場合はバケットのデフォルトURLを組み立てる
	Endpoint      string // S3互換ストア用のカスタムエンドポイント（任意）
}

// S3Store はAWS S3またはS3互換ストアへのアップロードを行う。
type S3Store struct {
	client *s3.Client
	config S3StoreConfig
}

// NewS3Store はS3Storeを生成する。
func NewS3Store(ctx context.Context, config S3StoreConfig) (*S3Store, error) {
	creds := credentials.NewStaticCredentialsProvider(config.AccessKey, config.SecretKey, "")

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(creds),
		awsconfig.WithRegion(config.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client: client,
		config: config,
	}, nil
}

// Put はオブジェクトをバケットに保存し、公開URLを返す。
func (s *S3Store) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to put object %q: %w", key, err)
	}

	return publicObjectURL(s.config, key), nil
}

// publicObjectURL は保存済みオブジェクトの公開URLを組み立てる。
func publicObjectURL(config S3StoreConfig, key string) string {
	if config.PublicBaseURL != "" {
		return strings.TrimSuffix(config.PublicBaseURL, "/") + "/" + key
	}
	if config.Endpoint != "" {
		return strings.TrimSuffix(config.Endpoint, "/") + "/" + config.Bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", config.Bucket, config.Region, key)
}

// compile-time interface check
var _ ObjectStore = (*S3Store)(nil)
