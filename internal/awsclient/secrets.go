package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/samber/lo"

	"github.com/linnemanlabs/alarmhook/internal/gather"
)

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

func newSecretsClient(cfg aws.Config) SecretsAPI {
	return secretsmanager.NewFromConfig(cfg)
}

// Secrets resolves secret metadata. It implements gather.SecretStore.
type Secrets struct {
	api SecretsAPI
}

// NewSecrets wraps api.
func NewSecrets(api SecretsAPI) *Secrets {
	return &Secrets{api: api}
}

// GetSecretMetadata reads the current version of id and keeps only its
// identifiers. The secret value is dropped here and never leaves this call.
func (s *Secrets) GetSecretMetadata(ctx context.Context, id string) (*gather.SecretMetadata, error) {
	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: lo.ToPtr(id),
	})
	if err != nil {
		return nil, fmt.Errorf("secretsmanager get secret %s: %w", id, err)
	}
	return &gather.SecretMetadata{
		ARN:       lo.FromPtr(out.ARN),
		Name:      lo.FromPtr(out.Name),
		VersionID: lo.FromPtr(out.VersionId),
	}, nil
}
