// Package gather fetches optional diagnostic context for an incident: a
// configuration parameter and the metadata of a secret. Each lookup runs only
// when its identifier is configured.
package gather

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/linnemanlabs/alarmhook/internal/fault"
	"github.com/linnemanlabs/go-core/log"
)

var tracer = otel.Tracer("github.com/linnemanlabs/alarmhook/internal/gather")

// Parameter is a configuration parameter as returned by the parameter store,
// decrypted.
type Parameter struct {
	Name             string    `json:"Name"`
	Type             string    `json:"Type,omitempty"`
	Value            string    `json:"Value"`
	Version          int64     `json:"Version,omitempty"`
	ARN              string    `json:"ARN,omitempty"`
	LastModifiedDate time.Time `json:"LastModifiedDate,omitzero"`
}

// SecretMetadata identifies a secret version. It never carries the secret value.
type SecretMetadata struct {
	ARN       string `json:"arn"`
	Name      string `json:"name"`
	VersionID string `json:"versionId"`
}

// ParameterStore reads parameters with decryption enabled.
type ParameterStore interface {
	GetParameter(ctx context.Context, name string) (*Parameter, error)
}

// SecretStore reads a secret and returns only its metadata.
type SecretStore interface {
	GetSecretMetadata(ctx context.Context, id string) (*SecretMetadata, error)
}

// Gatherer runs the optional context lookups.
type Gatherer struct {
	params  ParameterStore
	secrets SecretStore
	logger  log.Logger

	// Fatal controls whether a failed lookup fails the invocation. When false
	// the failure is logged and the lookup yields nil.
	Fatal bool
}

// New returns a Gatherer that treats lookup failures as fatal.
func New(params ParameterStore, secrets SecretStore, logger log.Logger) *Gatherer {
	if logger == nil {
		logger = log.Nop()
	}
	return &Gatherer{
		params:  params,
		secrets: secrets,
		logger:  logger,
		Fatal:   true,
	}
}

// Parameter fetches the named parameter. An empty name skips the call.
func (g *Gatherer) Parameter(ctx context.Context, name string) (*Parameter, error) {
	if name == "" {
		return nil, nil
	}
	if g.params == nil {
		return nil, fmt.Errorf("%w: parameter name set without a parameter store", fault.ErrConfiguration)
	}

	ctx, span := tracer.Start(ctx, "gather.parameter")
	defer span.End()
	span.SetAttributes(attribute.String("alarmhook.parameter.name", name))

	p, err := g.params.GetParameter(ctx, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, g.fail(ctx, err, "get parameter", "parameter", name)
	}
	return p, nil
}

// SecretMetadata fetches metadata for the identified secret. An empty id skips the call.
func (g *Gatherer) SecretMetadata(ctx context.Context, id string) (*SecretMetadata, error) {
	if id == "" {
		return nil, nil
	}
	if g.secrets == nil {
		return nil, fmt.Errorf("%w: secret id set without a secret store", fault.ErrConfiguration)
	}

	ctx, span := tracer.Start(ctx, "gather.secret_metadata")
	defer span.End()
	span.SetAttributes(attribute.String("alarmhook.secret.id", id))

	m, err := g.secrets.GetSecretMetadata(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, g.fail(ctx, err, "get secret metadata", "secret_id", id)
	}
	return m, nil
}

func (g *Gatherer) fail(ctx context.Context, err error, op string, kv ...any) error {
	if g.Fatal {
		return fmt.Errorf("%s: %w", op, err)
	}
	g.logger.Warn(ctx, op+" failed, continuing without it", append(kv, "error", err)...)
	return nil
}
