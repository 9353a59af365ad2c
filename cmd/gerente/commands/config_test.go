package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/gerente/internal/app"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gerente.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func environ(vars ...string) func() []string {
	return func() []string { return vars }
}

// loadWithFlags runs the root command with args and loads the config inside
// the chosen subcommand, where parent flags are visible.
func loadWithFlags(t *testing.T, configPath string, env func() []string, args ...string) *app.Config {
	t.Helper()

	var cfg *app.Config
	root := newRootCommand()
	for _, sub := range root.Commands {
		sub.Action = func(ctx context.Context, cmd *cli.Command) error {
			var err error
			cfg, err = loadConfig(configPath, cmd, env)
			return err
		}
	}

	if err := root.Run(context.Background(), append([]string{"gerente"}, args...)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return cfg
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("", nil, environ())
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.API.BaseURL != app.DefaultConfigAPIBaseURL {
		t.Errorf("base URL = %s", cfg.API.BaseURL)
	}
	if cfg.LogLevel != slog.LevelInfo || cfg.LogFormat != app.LogFormatText {
		t.Errorf("logging = %s/%s", cfg.LogLevel, cfg.LogFormat)
	}
	if !cfg.CoalesceRenewals() {
		t.Error("coalescing should default to on")
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfigFile(t, `
log_level = "debug"
log_format = "json"

[api]
base_url = "https://erp.example.com/api"
timeout = "10s"

[renewal]
coalesce = false

[session]
storage = "memory"

[server]
port = 4100
`)

	cfg, err := loadConfig(path, nil, environ())
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != app.LogFormatJSON {
		t.Errorf("logging = %s/%s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.API.BaseURL != "https://erp.example.com/api" || cfg.API.Timeout != 10*time.Second {
		t.Errorf("api = %+v", cfg.API)
	}
	if cfg.CoalesceRenewals() {
		t.Error("coalesce = true, want false from file")
	}
	if cfg.Session.Storage != app.SessionStorageTypeMemory || cfg.Server.Port != 4100 {
		t.Errorf("session/server = %+v / %+v", cfg.Session, cfg.Server)
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := writeConfigFile(t, `
[api]
base_url = "https://file.example.com/api"
login_path = "/auth/login/"

[session]
storage = "memory"
`)
	env := environ(
		"GERENTE_API__BASE_URL=https://env.example.com/api",
		"GERENTE_LOG_LEVEL=warn",
		"GERENTE_RENEWAL__COALESCE=false",
		"UNRELATED=1",
	)

	t.Run("environment overrides file", func(t *testing.T) {
		cfg, err := loadConfig(path, nil, env)
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		if cfg.API.BaseURL != "https://env.example.com/api" {
			t.Errorf("base URL = %s", cfg.API.BaseURL)
		}
		if cfg.API.LoginPath != "/auth/login/" {
			t.Errorf("login path = %s, want value from file", cfg.API.LoginPath)
		}
		if cfg.LogLevel != slog.LevelWarn {
			t.Errorf("log level = %s", cfg.LogLevel)
		}
		if cfg.CoalesceRenewals() {
			t.Error("coalesce = true, want false from env")
		}
	})

	t.Run("flags override environment", func(t *testing.T) {
		cfg := loadWithFlags(t, path, env,
			"--api--base-url", "https://flag.example.com/api",
			"--renewal--coalesce=true",
			"serve", "--server--port", "4200",
		)
		if cfg.API.BaseURL != "https://flag.example.com/api" {
			t.Errorf("base URL = %s", cfg.API.BaseURL)
		}
		if !cfg.CoalesceRenewals() {
			t.Error("coalesce = false, want true from flag")
		}
		if cfg.Server.Port != 4200 {
			t.Errorf("port = %d", cfg.Server.Port)
		}
		// Unset flags keep earlier sources
		if cfg.LogLevel != slog.LevelWarn || cfg.API.LoginPath != "/auth/login/" {
			t.Errorf("log level %s / login path %s not preserved", cfg.LogLevel, cfg.API.LoginPath)
		}
	})

	t.Run("command flags stay out of config", func(t *testing.T) {
		cfg := loadWithFlags(t, path, env, "list", "--search", "ana", "clientes")
		if cfg.API.BaseURL != "https://env.example.com/api" {
			t.Errorf("base URL = %s", cfg.API.BaseURL)
		}
	})
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  func() []string
		file string
	}{
		{"unknown storage", environ("GERENTE_SESSION__STORAGE=redis"), ""},
		{"bad base URL", environ("GERENTE_API__BASE_URL=::nope"), ""},
		{"malformed file", environ(), "this is = = not toml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.file != "" {
				path = writeConfigFile(t, tt.file)
			}
			if _, err := loadConfig(path, nil, tt.env); err == nil {
				t.Error("expected error")
			}
		})
	}
}
