package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/BengeeL/Dental-Chatbot/internal/domain"
)

const minSecretLen = 20

type PostgresCredentials struct {
	Host     string
	Port     string
	Username string
	Password string
}

type RedisCredentials struct {
	Host     string
	Port     string
	Password string
	SSL      *bool
	DB       int
}

type SupabaseCredentials struct {
	URL            string
	ServiceRoleKey string
	JWTSecret      string
	// Warnings are non-fatal findings, such as a service key that does not look like a JWT.
	Warnings []string
}

type LexCredentials struct {
	BotID           string
	BotAliasID      string
	LocaleID        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

func requireKeys(name string, b Bundle, keys ...string) error {
	var missing []string
	for _, k := range keys {
		if strings.TrimSpace(b.String(k)) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: secret %q missing %s", domain.ErrConfiguration, name, strings.Join(missing, ", "))
	}
	return nil
}

func Postgres(ctx context.Context, p Provider, name string) (*PostgresCredentials, error) {
	b, err := p.GetSecret(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := requireKeys(name, b, "host", "port", "username", "password"); err != nil {
		return nil, err
	}
	return &PostgresCredentials{
		Host:     b.String("host"),
		Port:     b.String("port"),
		Username: b.String("username"),
		Password: b.String("password"),
	}, nil
}

func Redis(ctx context.Context, p Provider, name string) (*RedisCredentials, error) {
	b, err := p.GetSecret(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := requireKeys(name, b, "host", "port", "password"); err != nil {
		return nil, err
	}
	port := b.String("port")
	if _, err := strconv.Atoi(port); err != nil {
		return nil, fmt.Errorf("%w: secret %q port %q is not a number", domain.ErrConfiguration, name, port)
	}
	creds := &RedisCredentials{Host: b.String("host"), Port: port, Password: b.String("password")}
	if raw := b.String("ssl"); raw != "" {
		ssl, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: secret %q ssl %q is not a boolean", domain.ErrConfiguration, name, raw)
		}
		creds.SSL = &ssl
	}
	if raw := b.String("db"); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: secret %q db %q is not a number", domain.ErrConfiguration, name, raw)
		}
		creds.DB = db
	}
	return creds, nil
}

func Supabase(ctx context.Context, p Provider, name string) (*SupabaseCredentials, error) {
	b, err := p.GetSecret(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := requireKeys(name, b, "SUPABASE_URL", "SUPABASE_SERVICE_ROLE_KEY", "JWT_SECRET"); err != nil {
		return nil, err
	}
	creds := &SupabaseCredentials{
		URL:            strings.TrimRight(b.String("SUPABASE_URL"), "/"),
		ServiceRoleKey: b.String("SUPABASE_SERVICE_ROLE_KEY"),
		JWTSecret:      b.String("JWT_SECRET"),
	}

	var errs []error
	u, perr := url.Parse(creds.URL)
	if perr != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, errors.New("SUPABASE_URL must be an http(s) URL"))
	}
	if len(creds.ServiceRoleKey) < minSecretLen {
		errs = append(errs, fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY is shorter than %d characters", minSecretLen))
	} else if !strings.HasPrefix(creds.ServiceRoleKey, "eyJ") {
		creds.Warnings = append(creds.Warnings, "SUPABASE_SERVICE_ROLE_KEY does not look like a JWT")
	}
	if len(creds.JWTSecret) < minSecretLen {
		errs = append(errs, fmt.Errorf("JWT_SECRET is shorter than %d characters", minSecretLen))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: secret %q: %v", domain.ErrConfiguration, name, errors.Join(errs...))
	}
	return creds, nil
}

func Lex(ctx context.Context, p Provider, name string) (*LexCredentials, error) {
	b, err := p.GetSecret(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := requireKeys(name, b, "LEX_BOT_ID", "LEX_BOT_ALIAS_ID"); err != nil {
		return nil, err
	}
	creds := &LexCredentials{
		BotID:           b.String("LEX_BOT_ID"),
		BotAliasID:      b.String("LEX_BOT_ALIAS_ID"),
		LocaleID:        b.String("LEX_BOT_LOCALE_ID"),
		Region:          b.String("AWS_REGION"),
		AccessKeyID:     b.String("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: b.String("AWS_SECRET_ACCESS_KEY"),
	}
	if creds.LocaleID == "" {
		creds.LocaleID = "en_CA"
	}
	if creds.Region == "" {
		creds.Region = "ca-central-1"
	}
	if (creds.AccessKeyID == "") != (creds.SecretAccessKey == "") {
		return nil, fmt.Errorf("%w: secret %q needs both AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY", domain.ErrConfiguration, name)
	}
	return creds, nil
}

// AWSConfig builds the SDK configuration for the chat services. Static keys from the
// bundle win over the default credential chain.
func (c *LexCredentials) AWSConfig(ctx context.Context) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(c.Region)}
	if c.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("%w: aws config for lex: %v", domain.ErrConfiguration, err)
	}
	return cfg, nil
}
