package avatar

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	applog "rolechat/internal/platform/log"
)

// S3Config S3 兼容对象存储配置
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // 为空使用 AWS 默认端点
	AccessKeyID     string // 为空走默认凭证链
	SecretAccessKey string
	PublicBaseURL   string // 为空时按 bucket + region 推导
	UsePathStyle    bool
	KeyPrefix       string
}

// S3Store 上传到 S3 兼容存储
type S3Store struct {
	client *s3.Client
	cfg    S3Config
}

// NewS3Store 创建 S3 存储
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "avatars/"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	applog.Info("[Avatar/S3] Initialized",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"endpoint", cfg.Endpoint,
	)
	return &S3Store{client: client, cfg: cfg}, nil
}

// Save 上传并返回公开访问 URL
func (s *S3Store) Save(ctx context.Context, ext string, r io.Reader, size int64) (string, error) {
	key := s.cfg.KeyPrefix + objectName(ext)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(ContentType(ext)),
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("s3 upload: %w", err)
	}

	url := s.PublicURL(key)
	applog.Info("[Avatar/S3] ✅ Uploaded", "key", key, "bytes", size)
	return url, nil
}

// PublicURL 对象的公开访问地址
func (s *S3Store) PublicURL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	if s.cfg.Endpoint != "" {
		return strings.TrimRight(s.cfg.Endpoint, "/") + "/" + s.cfg.Bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}
