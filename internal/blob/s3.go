package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// S3 stores blobs in an S3-compatible bucket (AWS, LocalStack) using
// path-style addressing.
type S3 struct {
	client *s3.Client
	bucket string
	base   string
	log    *zap.Logger
	now    func() time.Time
}

func NewS3(ctx context.Context, cfg S3Config, log *zap.Logger) (*S3, error) {
	const op = "blob.NewS3"

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	store := &S3{
		client: client,
		bucket: cfg.Bucket,
		base:   endpoint + "/" + cfg.Bucket,
		log:    log,
		now:    time.Now,
	}
	if err := store.ensureBucket(ctx, cfg.Region); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return store, nil
}

// loadAWSConfig uses static keys only when configured; otherwise the default
// chain (env, shared config, instance role) supplies credentials.
func loadAWSConfig(ctx context.Context, cfg S3Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}

func (s *S3) ensureBucket(ctx context.Context, region string) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	// us-east-1 rejects an explicit location constraint
	if region != "" && region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return err
	}
	s.log.Info("bucket created", zap.String("bucket", s.bucket))
	return nil
}

func (s *S3) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	const op = "blob.S3.Put"

	key := NewKey(s.now(), contentType)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.log.Debug("blob stored", zap.String("key", key), zap.Int("size", len(data)))
	return s.base + "/" + key, nil
}

func (s *S3) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	const op = "blob.S3.Open"

	key, err := keyFromLocation(s.base, location)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out.Body, nil
}
