package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/specbook-dev/specbook/internal"
	"github.com/specbook-dev/specbook/internal/finder"
	pkgconfig "github.com/specbook-dev/specbook/pkg/config"
)

// buildConfig merges defaults, the optional config file, and CLI flags.
// When no root is given the spec project is discovered by walking up from
// the current directory.
func buildConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()

	if err := pkgconfig.LoadIfExists(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if root := cmd.String("root"); root != "" {
		cfg.Workspace.Root = root
	} else if cfg.Workspace.Root == "" || cfg.Workspace.Root == "." {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		found, err := finder.Find(cwd)
		if err != nil {
			return nil, err
		}
		cfg.Workspace.Root = found.Path
	}

	if port := cmd.Int("port"); port != 0 {
		cfg.App.HTTP.Port = int(port)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithMCPMode()); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func main() {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to config file",
			DefaultText: "specbook.yaml",
			Value:       "specbook.yaml",
			Sources:     cli.EnvVars("SPECBOOK_CONFIG_FILE"),
		},
		&cli.StringFlag{
			Name:    "root",
			Aliases: []string{"r"},
			Usage:   "Spec project root (discovered upward from the working directory when omitted)",
			Sources: cli.EnvVars("SPECBOOK_ROOT"),
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "HTTP listen port",
			Sources: cli.EnvVars("SPECBOOK_PORT"),
		},
	}

	cmd := &cli.Command{
		Name:   "specbook",
		Usage:  "Local server that presents spec-driven markdown documents as a live, editable workspace",
		Action: runServe,
		Flags:  flags,
		Commands: []*cli.Command{
			{
				Name:   "mcp",
				Usage:  "Serve the Model Context Protocol over stdio",
				Action: runMCP,
				Flags:  flags,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
