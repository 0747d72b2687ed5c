package awsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/samber/lo"
)

const (
	bedrockAnthropicVersion = "bedrock-2023-05-31"
	bedrockMaxTokens        = 1024
)

// BedrockAPI is the subset of the Bedrock Runtime client used here.
type BedrockAPI interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

func newBedrockClient(cfg aws.Config) BedrockAPI {
	return bedrockruntime.NewFromConfig(cfg)
}

// Bedrock invokes foundation models. It implements summary.Backend.
type Bedrock struct {
	api BedrockAPI
}

// NewBedrock wraps api.
func NewBedrock(api BedrockAPI) *Bedrock {
	return &Bedrock{api: api}
}

// Invoke sends prompt to modelID and returns the raw response body.
func (b *Bedrock) Invoke(ctx context.Context, modelID, prompt string) ([]byte, error) {
	body, err := RequestBody(modelID, prompt)
	if err != nil {
		return nil, err
	}
	out, err := b.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     lo.ToPtr(modelID),
		Body:        body,
		ContentType: lo.ToPtr("application/json"),
		Accept:      lo.ToPtr("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock invoke %s: %w", modelID, err)
	}
	return out.Body, nil
}

// RequestBody builds the model-family specific request body. Anthropic
// models, including cross-region inference profiles, take a messages body;
// everything else gets the text-generation {"inputText": ...} shape.
func RequestBody(modelID, prompt string) ([]byte, error) {
	var payload any
	if isAnthropicModel(modelID) {
		payload = map[string]any{
			"anthropic_version": bedrockAnthropicVersion,
			"max_tokens":        bedrockMaxTokens,
			"messages": []map[string]any{
				{"role": "user", "content": prompt},
			},
		}
	} else {
		payload = map[string]string{"inputText": prompt}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal bedrock request: %w", err)
	}
	return b, nil
}

func isAnthropicModel(modelID string) bool {
	return strings.HasPrefix(modelID, "anthropic.") || strings.Contains(modelID, ".anthropic.")
}
