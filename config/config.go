package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName      string   `env:"APP_NAME" envDefault:"dental-api"`
	AppEnv       string   `env:"APP_ENV" envDefault:"local"`
	LogLevel     string   `env:"LOG_LEVEL" envDefault:"info"`
	HTTPHost     string   `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	HTTPPort     string   `env:"HTTP_PORT" envDefault:"8080"`
	HTTPBasePath string   `env:"HTTP_BASE_PATH" envDefault:""`
	CORSOrigins  []string `env:"CORS_ALLOW_ORIGINS" envSeparator:"," envDefault:"*"`
	BackendURL   string   `env:"BACKEND_URL" envDefault:"http://localhost:8080"`

	// Secret provider: "aws" reads Secrets Manager, "env" reads SECRET_<NAME> variables.
	SecretsProvider    string `env:"SECRETS_PROVIDER" envDefault:"aws"`
	AWSRegion          string `env:"AWS_REGION" envDefault:"us-east-1"`
	SupabaseSecretName string `env:"SUPABASE_SECRET_NAME,required"`
	PostgresSecretName string `env:"POSTGRES_SECRET_NAME" envDefault:"postgres"`
	RedisSecretName    string `env:"REDIS_SECRET_NAME" envDefault:"redis"`
	LexSecretName      string `env:"LEX_SECRET_NAME" envDefault:"lex"`

	DBName        string `env:"DB_NAME" envDefault:"defaultdb"`
	DBSSLMode     string `env:"DB_SSLMODE" envDefault:"require"`
	DBMaxConns    int    `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns    int    `env:"DB_MIN_CONNS" envDefault:"5"`
	DBAutoMigrate bool   `env:"DB_AUTO_MIGRATE" envDefault:"false"`

	RedisTLS bool `env:"REDIS_TLS" envDefault:"true"`

	AccessTTL  time.Duration `env:"SESSION_ACCESS_TTL" envDefault:"1h"`
	RefreshTTL time.Duration `env:"SESSION_REFRESH_TTL" envDefault:"24h"`
	ProfileTTL time.Duration `env:"SESSION_PROFILE_TTL" envDefault:"24h"`

	JWTAudience string        `env:"JWT_AUDIENCE" envDefault:"authenticated"`
	JWTLeeway   time.Duration `env:"JWT_LEEWAY" envDefault:"0s"`

	IdentityTimeout time.Duration `env:"IDENTITY_TIMEOUT" envDefault:"10s"`

	NATSURL                string `env:"NATS_URL"`
	NATSVerifySubject      string `env:"NATS_SUBJECT_VERIFY_JWT" envDefault:"auth.verifyJWT"`
	NATSUserCreatedSubject string `env:"NATS_SUBJECT_USER_CREATED" envDefault:"user.created"`

	ChatEnabled    bool          `env:"CHAT_ENABLED" envDefault:"false"`
	ChatSessionTTL time.Duration `env:"CHAT_SESSION_TTL" envDefault:"1h"`
	SpeechVoice    string        `env:"SPEECH_VOICE" envDefault:"Joanna"`
	SpeechEngine   string        `env:"SPEECH_ENGINE" envDefault:"standard"`
	SpeechLanguage string        `env:"SPEECH_LANGUAGE" envDefault:"en-US"`

	// Voice messages are uploaded to TranscribeBucket and transcribed as batch jobs. Empty disables them.
	TranscribeBucket       string        `env:"TRANSCRIBE_BUCKET" envDefault:"dental-chat-recordings"`
	TranscribeLanguage     string        `env:"TRANSCRIBE_LANGUAGE" envDefault:"en-US"`
	TranscribePollInterval time.Duration `env:"TRANSCRIBE_POLL_INTERVAL" envDefault:"2s"`
	TranscribeMaxPolls     uint64        `env:"TRANSCRIBE_MAX_POLLS" envDefault:"30"`
	TranscribeTimeout      time.Duration `env:"TRANSCRIBE_TIMEOUT" envDefault:"90s"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PasswordResetRedirect is where the identity provider sends users from the reset email.
func (c *Config) PasswordResetRedirect() string {
	return c.BackendURL + "/auth/password-reset-form"
}
