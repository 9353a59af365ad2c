package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/gerente/internal/app"
	"github.com/florianilch/gerente/internal/observability"
)

// configFlags names the flags that map onto configuration keys.
var configFlags = map[string]bool{
	"log-level":                true,
	"log-format":               true,
	"api--base-url":            true,
	"api--timeout":             true,
	"renewal--coalesce":        true,
	"session--storage":         true,
	"session--file":            true,
	"session--bolt-path":       true,
	"session--keyring-user":    true,
	"session--env-refresh-key": true,
	"server--host":             true,
	"server--port":             true,
	"telemetry--exporter":      true,
	"telemetry--endpoint":      true,
	"shutdown--timeout":        true,
}

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	return newRootCommand().Run(ctx, args)
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "gerente",
		Usage: "Authenticated client and local gateway for the business management API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "api--base-url",
				Usage: "API base URL",
				Value: app.DefaultConfigAPIBaseURL,
			},
			&cli.DurationFlag{
				Name:  "api--timeout",
				Usage: "timeout of a single API request",
				Value: app.DefaultConfigAPITimeout,
			},
			&cli.BoolFlag{
				Name:  "renewal--coalesce",
				Usage: "share one token renewal between concurrent requests",
				Value: app.DefaultConfigRenewalCoalesce,
			},
			&cli.StringFlag{
				Name:  "session--storage",
				Usage: "session storage (memory|file|env|keyring|bolt)",
				Value: string(app.DefaultConfigSessionStorage),
			},
			&cli.StringFlag{
				Name:  "session--file",
				Usage: "session file for file storage",
			},
			&cli.StringFlag{
				Name:  "session--bolt-path",
				Usage: "database path for bolt storage",
			},
			&cli.StringFlag{
				Name:  "session--keyring-user",
				Usage: "user identifier for keyring storage",
			},
			&cli.StringFlag{
				Name:  "session--env-refresh-key",
				Usage: "refresh token variable for env storage",
			},
			&cli.StringFlag{
				Name:  "telemetry--exporter",
				Usage: "OpenTelemetry log exporter (none|stdout|otlp-http|otlp-grpc)",
				Value: string(app.DefaultConfigTelemetryExporter),
			},
			&cli.StringFlag{
				Name:  "telemetry--endpoint",
				Usage: "OTLP collector URL",
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			logoutCommand(),
			statusCommand(),
			requestCommand(),
			listCommand(),
			summaryCommand(),
			serveCommand(),
		},
	}
}

// deps is what every command needs: the wired application and a cleanup
// that releases the session store and flushes telemetry.
type deps struct {
	cfg     *app.Config
	app     *app.App
	cleanup func()
}

// setup loads the configuration, installs logging and builds the App.
func setup(ctx context.Context, cmd *cli.Command) (*deps, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdownTelemetry, err := observability.Instrument(ctx, observability.Options{
		Level:    cfg.LogLevel,
		Format:   string(cfg.LogFormat),
		Exporter: string(cfg.Telemetry.Exporter),
		Endpoint: cfg.Telemetry.Endpoint,
		Writer:   errWriter(cmd),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		_ = shutdownTelemetry(ctx)
		return nil, fmt.Errorf("failed to create app: %w", err)
	}

	cleanup := func() {
		if err := application.Close(); err != nil {
			slog.Error("failed to close session store", "error", err)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			fmt.Fprintln(errWriter(cmd), "telemetry shutdown:", err)
		}
	}

	return &deps{cfg: cfg, app: application, cleanup: cleanup}, nil
}

func outWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func errWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

func inReader(cmd *cli.Command) io.Reader {
	if r := cmd.Root().Reader; r != nil {
		return r
	}
	return os.Stdin
}
