package gather

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/linnemanlabs/alarmhook/internal/fault"
	"github.com/linnemanlabs/go-core/log"
)

type mockParams struct {
	mu    sync.Mutex
	calls []string
	param *Parameter
	err   error
}

func (m *mockParams) GetParameter(_ context.Context, name string) (*Parameter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
	if m.err != nil {
		return nil, m.err
	}
	return m.param, nil
}

type mockSecrets struct {
	mu    sync.Mutex
	calls []string
	meta  *SecretMetadata
	err   error
}

func (m *mockSecrets) GetSecretMetadata(_ context.Context, id string) (*SecretMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, id)
	if m.err != nil {
		return nil, m.err
	}
	return m.meta, nil
}

func TestParameter_SkippedWithoutName(t *testing.T) {
	t.Parallel()

	params := &mockParams{param: &Parameter{Name: "/lab/db/endpoint", Value: "db:3306"}}
	g := New(params, &mockSecrets{}, log.Nop())

	p, err := g.Parameter(context.Background(), "")
	if err != nil {
		t.Fatalf("Parameter: %v", err)
	}
	if p != nil {
		t.Errorf("param = %+v, want nil", p)
	}
	if len(params.calls) != 0 {
		t.Errorf("calls = %v, want none", params.calls)
	}
}

func TestParameter_Fetched(t *testing.T) {
	t.Parallel()

	want := &Parameter{Name: "/lab/db/endpoint", Type: "SecureString", Value: "db:3306", Version: 3}
	params := &mockParams{param: want}
	g := New(params, nil, log.Nop())

	got, err := g.Parameter(context.Background(), "/lab/db/endpoint")
	if err != nil {
		t.Fatalf("Parameter: %v", err)
	}
	if got != want {
		t.Errorf("param = %+v, want %+v", got, want)
	}
	if len(params.calls) != 1 || params.calls[0] != "/lab/db/endpoint" {
		t.Errorf("calls = %v", params.calls)
	}
}

func TestParameter_ErrorIsFatalByDefault(t *testing.T) {
	t.Parallel()

	g := New(&mockParams{err: errors.New("ParameterNotFound")}, nil, log.Nop())

	_, err := g.Parameter(context.Background(), "/missing")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestParameter_ErrorTolerated(t *testing.T) {
	t.Parallel()

	g := New(&mockParams{err: errors.New("AccessDenied")}, nil, log.Nop())
	g.Fatal = false

	p, err := g.Parameter(context.Background(), "/denied")
	if err != nil {
		t.Fatalf("Parameter: %v, want nil when not fatal", err)
	}
	if p != nil {
		t.Errorf("param = %+v, want nil", p)
	}
}

func TestSecretMetadata_SkippedWithoutID(t *testing.T) {
	t.Parallel()

	secrets := &mockSecrets{meta: &SecretMetadata{Name: "x"}}
	g := New(nil, secrets, log.Nop())

	m, err := g.SecretMetadata(context.Background(), "")
	if err != nil {
		t.Fatalf("SecretMetadata: %v", err)
	}
	if m != nil {
		t.Errorf("meta = %+v, want nil", m)
	}
	if len(secrets.calls) != 0 {
		t.Errorf("calls = %v, want none", secrets.calls)
	}
}

func TestSecretMetadata_Fetched(t *testing.T) {
	t.Parallel()

	want := &SecretMetadata{
		ARN:       "arn:aws:secretsmanager:us-west-2:1:secret:taaops/rds/mysql-AbCd",
		Name:      "taaops/rds/mysql",
		VersionID: "v-1",
	}
	g := New(nil, &mockSecrets{meta: want}, log.Nop())

	got, err := g.SecretMetadata(context.Background(), "taaops/rds/mysql")
	if err != nil {
		t.Fatalf("SecretMetadata: %v", err)
	}
	if *got != *want {
		t.Errorf("meta = %+v, want %+v", got, want)
	}
}

func TestSecretMetadata_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fatal   bool
		wantErr bool
	}{
		{"fatal", true, true},
		{"tolerated", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g := New(nil, &mockSecrets{err: errors.New("ResourceNotFoundException")}, log.Nop())
			g.Fatal = tt.fatal

			m, err := g.SecretMetadata(context.Background(), "missing")
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if m != nil {
				t.Errorf("meta = %+v, want nil", m)
			}
		})
	}
}

func TestGatherer_ConfiguredWithoutStore(t *testing.T) {
	t.Parallel()

	g := New(nil, nil, nil)
	if _, err := g.Parameter(context.Background(), "/p"); !errors.Is(err, fault.ErrConfiguration) {
		t.Errorf("Parameter err = %v, want ErrConfiguration", err)
	}
	if _, err := g.SecretMetadata(context.Background(), "s"); !errors.Is(err, fault.ErrConfiguration) {
		t.Errorf("SecretMetadata err = %v, want ErrConfiguration", err)
	}
}
