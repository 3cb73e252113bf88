package s3

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/ms2bridge/internal/logger"
)

// Config is the s3 backend section of the configuration file.
type Config struct {
	Bucket string `mapstructure:"bucket" validate:"required"`
	Prefix string `mapstructure:"prefix"`
	Region string `mapstructure:"region" validate:"required"`

	// Endpoint targets an S3 compatible service (MinIO, Localstack). It
	// switches the client to path-style addressing.
	Endpoint string `mapstructure:"endpoint"`

	// Static credentials. When empty the default AWS credential chain is used.
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	PresignTTL time.Duration `mapstructure:"presign_ttl"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// NewFromConfig builds the S3 client and the backend.
func NewFromConfig(ctx context.Context, id, name string, cfg Config) (*Backend, error) {
	opts := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}
	opts = append(opts, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	b, err := New(id, name, Options{
		Client:     client,
		Presigner:  s3.NewPresignClient(client),
		Bucket:     cfg.Bucket,
		Prefix:     cfg.Prefix,
		PresignTTL: cfg.PresignTTL,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("S3 backend %s initialized: bucket=%s, region=%s, prefix=%s", id, cfg.Bucket, cfg.Region, cfg.Prefix)
	return b, nil
}
