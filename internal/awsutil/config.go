// Package awsutil provides utilities for loading AWS configuration.
package awsutil

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
)

// Load loads the AWS configuration for the given region. When
// AWS_ENDPOINT_URL is set (e.g. http://localstack:4566 in dev), every client
// built from the returned config talks to that endpoint instead of AWS; the
// endpoint is also returned so callers can enable dev-only options such as
// S3 path-style addressing.
func Load(ctx context.Context, region string) (aws.Config, string, error) {
	endpoint := os.Getenv("AWS_ENDPOINT_URL")
	opts := []func(*awsCfg.LoadOptions) error{awsCfg.WithRegion(region)}
	if endpoint != "" {
		opts = append(opts, awsCfg.WithEndpointResolverWithOptions(staticResolver(endpoint)))
	}
	cfg, err := awsCfg.LoadDefaultConfig(ctx, opts...)
	return cfg, endpoint, err
}

// staticResolver points every service at a single endpoint URL.
func staticResolver(url string) aws.EndpointResolverWithOptionsFunc {
	return func(service, region string, _ ...any) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL:               url,
			HostnameImmutable: true,
			PartitionID:       "aws",
		}, nil
	}
}
