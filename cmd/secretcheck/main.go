// Command secretcheck fetches every secret bundle the API depends on and reports
// whether each one passes validation. It exits non-zero when any bundle fails.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BengeeL/Dental-Chatbot/config"
	"github.com/BengeeL/Dental-Chatbot/internal/adapters/secrets"
	pkglog "github.com/BengeeL/Dental-Chatbot/pkg/log"
)

type check struct {
	name string
	run  func(ctx context.Context) ([]string, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger := pkglog.New(cfg.AppEnv, cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	provider, err := secrets.NewProvider(ctx, cfg.SecretsProvider, cfg.AWSRegion)
	if err != nil {
		logger.Error().Err(err).Msg("secrets provider")
		os.Exit(2)
	}
	if failed := report(os.Stdout, runChecks(ctx, checks(cfg, provider))); failed > 0 {
		os.Exit(1)
	}
}

func checks(cfg *config.Config, p secrets.Provider) []check {
	list := []check{
		{name: cfg.SupabaseSecretName, run: func(ctx context.Context) ([]string, error) {
			creds, err := secrets.Supabase(ctx, p, cfg.SupabaseSecretName)
			if err != nil {
				return nil, err
			}
			return creds.Warnings, nil
		}},
		{name: cfg.PostgresSecretName, run: func(ctx context.Context) ([]string, error) {
			_, err := secrets.Postgres(ctx, p, cfg.PostgresSecretName)
			return nil, err
		}},
		{name: cfg.RedisSecretName, run: func(ctx context.Context) ([]string, error) {
			_, err := secrets.Redis(ctx, p, cfg.RedisSecretName)
			return nil, err
		}},
	}
	if cfg.ChatEnabled {
		list = append(list, check{name: cfg.LexSecretName, run: func(ctx context.Context) ([]string, error) {
			_, err := secrets.Lex(ctx, p, cfg.LexSecretName)
			return nil, err
		}})
	}
	return list
}

type result struct {
	name     string
	warnings []string
	err      error
}

func runChecks(ctx context.Context, list []check) []result {
	out := make([]result, 0, len(list))
	for _, c := range list {
		warnings, err := c.run(ctx)
		out = append(out, result{name: c.name, warnings: warnings, err: err})
	}
	return out
}

func report(w io.Writer, results []result) int {
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(w, "FAIL  %s: %v\n", r.name, r.err)
			continue
		}
		fmt.Fprintf(w, "OK    %s\n", r.name)
		for _, warning := range r.warnings {
			fmt.Fprintf(w, "WARN  %s: %s\n", r.name, warning)
		}
	}
	fmt.Fprintf(w, "%d of %d secrets valid\n", len(results)-failed, len(results))
	return failed
}
