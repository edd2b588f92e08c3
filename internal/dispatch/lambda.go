package dispatch

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

type LambdaConfig struct {
	FunctionName string
	Endpoint     string // optional, e.g. LocalStack
	Region       string
	AccessKey    string
	SecretKey    string
}

// Lambda invokes a function with InvocationType Event. The worker then runs
// inside the function; there is no in-process consumer for this backend.
type Lambda struct {
	client   *lambda.Client
	function string
}

func NewLambda(ctx context.Context, cfg LambdaConfig) (*Lambda, error) {
	const op = "dispatch.NewLambda"

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	client := lambda.NewFromConfig(awsCfg, func(o *lambda.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Lambda{client: client, function: cfg.FunctionName}, nil
}

func (l *Lambda) Dispatch(ctx context.Context, imageID string) error {
	const op = "dispatch.Lambda.Dispatch"

	body, err := Encode(imageID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	_, err = l.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(l.function),
		InvocationType: types.InvocationTypeEvent,
		Payload:        body,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (l *Lambda) Close() error {
	return nil
}
