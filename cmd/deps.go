package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"image-platform/internal/blob"
	"image-platform/internal/cache"
	"image-platform/internal/dispatch"
	"image-platform/internal/models"
	"image-platform/internal/storage"
)

func openMetadata(ctx context.Context, cfg *models.Config, log *zap.Logger) (storage.MetadataStore, error) {
	var (
		store storage.MetadataStore
		err   error
	)
	switch cfg.Metadata.Backend {
	case "postgres":
		store, err = storage.NewPostgres(ctx, cfg.Metadata.DatabaseURL)
	case "badger":
		store, err = storage.NewBadger(cfg.Metadata.BadgerPath)
	default:
		err = fmt.Errorf("unknown metadata backend %q", cfg.Metadata.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to init metadata store: %w", err)
	}

	if cfg.Cache.RedisAddr == "" {
		return store, nil
	}
	rdb, err := cache.NewClient(ctx, cfg.Cache.RedisAddr)
	if err != nil {
		log.Warn("gallery cache disabled", zap.String("redis_addr", cfg.Cache.RedisAddr), zap.Error(err))
		return store, nil
	}
	return cache.New(store, rdb, cfg.Cache.TTL, log), nil
}

// openBlobs also returns the directory to serve under /files, empty for
// remote backends.
func openBlobs(ctx context.Context, cfg *models.Config, log *zap.Logger) (blob.Store, string, error) {
	b := cfg.Blob
	switch b.Backend {
	case "local":
		local, err := blob.NewLocal(b.StoragePath, cfg.PublicURL)
		if err != nil {
			return nil, "", fmt.Errorf("failed to init local blob store: %w", err)
		}
		return local, local.Root(), nil
	case "s3":
		s3, err := blob.NewS3(ctx, blob.S3Config{
			Endpoint:  b.Endpoint,
			Region:    b.Region,
			Bucket:    b.Bucket,
			AccessKey: b.AccessKey,
			SecretKey: b.SecretKey,
		}, log)
		if err != nil {
			return nil, "", fmt.Errorf("failed to init s3 blob store: %w", err)
		}
		return s3, "", nil
	case "minio":
		mc, err := blob.NewMinIO(ctx, blob.MinIOConfig{
			Endpoint:  b.Endpoint,
			Bucket:    b.Bucket,
			AccessKey: b.AccessKey,
			SecretKey: b.SecretKey,
			UseSSL:    b.UseSSL,
		}, log)
		if err != nil {
			return nil, "", fmt.Errorf("failed to init minio blob store: %w", err)
		}
		return mc, "", nil
	}
	return nil, "", fmt.Errorf("unknown blob backend %q", b.Backend)
}

func openDispatcher(ctx context.Context, cfg *models.Config, log *zap.Logger) (dispatch.Dispatcher, error) {
	d := cfg.Dispatch
	switch d.Backend {
	case "kafka":
		return dispatch.NewKafka(d.KafkaBrokers, d.KafkaTopic), nil
	case "rabbitmq":
		r, err := dispatch.NewRabbitMQ(d.RabbitMQURL, d.RabbitMQQueue, log)
		if err != nil {
			return nil, fmt.Errorf("failed to init rabbitmq dispatcher: %w", err)
		}
		return r, nil
	case "lambda":
		l, err := dispatch.NewLambda(ctx, dispatch.LambdaConfig{
			FunctionName: d.LambdaName,
			Endpoint:     d.LambdaURL,
			Region:       cfg.Blob.Region,
			AccessKey:    cfg.Blob.AccessKey,
			SecretKey:    cfg.Blob.SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init lambda dispatcher: %w", err)
		}
		return l, nil
	}
	return nil, fmt.Errorf("unknown dispatch backend %q", d.Backend)
}

// openConsumer returns nil for lambda, whose function runs outside this process.
func openConsumer(cfg *models.Config, log *zap.Logger) (dispatch.Consumer, error) {
	d := cfg.Dispatch
	switch d.Backend {
	case "kafka":
		return dispatch.NewKafkaConsumer(d.KafkaBrokers, d.KafkaTopic, d.KafkaGroup, log), nil
	case "rabbitmq":
		r, err := dispatch.NewRabbitMQ(d.RabbitMQURL, d.RabbitMQQueue, log)
		if err != nil {
			return nil, fmt.Errorf("failed to init rabbitmq consumer: %w", err)
		}
		return r, nil
	case "lambda":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown dispatch backend %q", d.Backend)
}
