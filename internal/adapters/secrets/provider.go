package secrets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/BengeeL/Dental-Chatbot/internal/domain"
)

// Bundle is one named secret: a flat JSON object of string-ish values.
type Bundle map[string]any

// String returns the value under key rendered as a string. Numbers keep their literal form.
func (b Bundle) String(key string) string {
	switch v := b[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(v)
	}
}

func parseBundle(name string, raw []byte) (Bundle, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var b Bundle
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("%w: secret %q is not a JSON object: %v", domain.ErrConfiguration, name, err)
	}
	return b, nil
}

type Provider interface {
	GetSecret(ctx context.Context, name string) (Bundle, error)
}

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type AWSProvider struct {
	api SecretsManagerAPI
}

func NewAWSProvider(ctx context.Context, region string) (*AWSProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("%w: aws config: %v", domain.ErrConfiguration, err)
	}
	return &AWSProvider{api: secretsmanager.NewFromConfig(cfg)}, nil
}

func NewAWSProviderWithAPI(api SecretsManagerAPI) *AWSProvider { return &AWSProvider{api: api} }

func (p *AWSProvider) GetSecret(ctx context.Context, name string) (Bundle, error) {
	out, err := p.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(name)})
	if err != nil {
		return nil, fmt.Errorf("%w: fetch secret %q: %v", domain.ErrConfiguration, name, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("%w: secret %q has no string value", domain.ErrConfiguration, name)
	}
	return parseBundle(name, []byte(aws.ToString(out.SecretString)))
}

// EnvProvider reads SECRET_<NAME> variables holding the same JSON documents, for local runs.
type EnvProvider struct {
	lookup func(string) (string, bool)
}

func NewEnvProvider() *EnvProvider { return &EnvProvider{lookup: os.LookupEnv} }

func EnvVarName(name string) string {
	upper := strings.ToUpper(name)
	return "SECRET_" + strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(upper)
}

func (p *EnvProvider) GetSecret(_ context.Context, name string) (Bundle, error) {
	key := EnvVarName(name)
	raw, ok := p.lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: %s is not set", domain.ErrConfiguration, key)
	}
	return parseBundle(name, []byte(raw))
}

// NewProvider picks the implementation named by kind ("aws" or "env").
func NewProvider(ctx context.Context, kind, region string) (Provider, error) {
	switch strings.ToLower(kind) {
	case "", "aws":
		return NewAWSProvider(ctx, region)
	case "env":
		return NewEnvProvider(), nil
	default:
		return nil, fmt.Errorf("%w: unknown secrets provider %q", domain.ErrConfiguration, kind)
	}
}
