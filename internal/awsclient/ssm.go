package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/samber/lo"

	"github.com/linnemanlabs/alarmhook/internal/gather"
	"github.com/linnemanlabs/alarmhook/internal/remediation"
)

// SSMAPI is the subset of the Systems Manager client used here.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	StartAutomationExecution(ctx context.Context, in *ssm.StartAutomationExecutionInput, optFns ...func(*ssm.Options)) (*ssm.StartAutomationExecutionOutput, error)
}

func newSSMClient(cfg aws.Config) SSMAPI {
	return ssm.NewFromConfig(cfg)
}

// SSM reads decrypted parameters and starts automation executions. It
// implements gather.ParameterStore and remediation.Runner.
type SSM struct {
	api SSMAPI
}

// NewSSM wraps api.
func NewSSM(api SSMAPI) *SSM {
	return &SSM{api: api}
}

// GetParameter reads name with decryption.
func (s *SSM) GetParameter(ctx context.Context, name string) (*gather.Parameter, error) {
	out, err := s.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           lo.ToPtr(name),
		WithDecryption: lo.ToPtr(true),
	})
	if err != nil {
		return nil, fmt.Errorf("ssm get parameter %s: %w", name, err)
	}
	if out.Parameter == nil {
		return nil, fmt.Errorf("ssm get parameter %s: empty response", name)
	}

	p := out.Parameter
	return &gather.Parameter{
		Name:             lo.FromPtr(p.Name),
		Type:             string(p.Type),
		Value:            lo.FromPtr(p.Value),
		Version:          p.Version,
		ARN:              lo.FromPtr(p.ARN),
		LastModifiedDate: lo.FromPtr(p.LastModifiedDate),
	}, nil
}

// StartAutomation starts one execution of document.
func (s *SSM) StartAutomation(ctx context.Context, document string, params remediation.Parameters) (string, error) {
	out, err := s.api.StartAutomationExecution(ctx, &ssm.StartAutomationExecutionInput{
		DocumentName: lo.ToPtr(document),
		Parameters:   map[string][]string(params),
	})
	if err != nil {
		return "", fmt.Errorf("ssm start automation %s: %w", document, err)
	}
	return lo.FromPtr(out.AutomationExecutionId), nil
}
