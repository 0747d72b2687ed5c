// Package awsclient adapts the AWS SDK clients to the narrow interfaces the
// incident pipeline depends on.
package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// Options select where the SDK clients connect.
type Options struct {
	Region   string
	Endpoint string // overrides every service endpoint, e.g. a localstack URL

	// Static credentials, mostly for local endpoints. Empty uses the default chain.
	AccessKeyID     string
	SecretAccessKey string
}

// LoadConfig resolves the shared SDK configuration.
func LoadConfig(ctx context.Context, opts Options) (aws.Config, error) {
	var loadOpts []func(*config.LoadOptions) error

	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.Endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(opts.Endpoint))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// Clients bundles the adapters built from one configuration.
type Clients struct {
	Logs    *Logs
	SSM     *SSM
	Secrets *Secrets
	S3      *S3
	Bedrock *Bedrock
}

// New builds every adapter from cfg.
func New(cfg aws.Config) *Clients {
	return &Clients{
		Logs:    NewLogs(newLogsClient(cfg)),
		SSM:     NewSSM(newSSMClient(cfg)),
		Secrets: NewSecrets(newSecretsClient(cfg)),
		S3:      NewS3(newS3Client(cfg)),
		Bedrock: NewBedrock(newBedrockClient(cfg)),
	}
}
