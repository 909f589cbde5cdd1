package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Env holds judge credentials and overrides read from the environment.
type Env struct {
	APIKey  string `env:"OPENAI_API_KEY"`
	Model   string `env:"OPENAI_MODEL"`
	BaseURL string `env:"OPENAI_BASE_URL"`
}

// LoadEnv resolves Env from l. Variables in envFile, when given, fill in
// anything l does not set.
func LoadEnv(ctx context.Context, l envconfig.Lookuper, envFile string) (*Env, error) {
	if envFile != "" {
		vars, err := ParseEnvFile(envFile)
		if err != nil {
			return nil, fmt.Errorf("reading secrets env file: %w", err)
		}
		l = envconfig.MultiLookuper(l, envconfig.MapLookuper(vars))
	}
	var env Env
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &env, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}
	return &env, nil
}

// ParseEnvFile reads KEY=VALUE lines, skipping blanks and comments. A leading
// "export " and matching surrounding quotes are removed.
func ParseEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	vars := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		s := strings.TrimSpace(line)
		if s == "" || s[0] == '#' {
			continue
		}
		s = strings.TrimPrefix(s, "export ")
		key, val, ok := strings.Cut(s, "=")
		if !ok {
			continue
		}
		vars[strings.TrimSpace(key)] = stripQuotes(strings.TrimSpace(val))
	}
	return vars, nil
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
