package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/postdesk/internal"
	pkgconfig "github.com/starford/postdesk/pkg/config"
)

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(cmd.String("config"), "", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return []internal.Option{internal.WithConfig(cfg)}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, opts...)
}

func importDraft(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("usage: postdesk import <file.md>")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}

	f, errs, err := internal.ImportDraft(ctx, data, opts...)
	if err != nil {
		return err
	}
	if !errs.Valid() {
		return fmt.Errorf("invalid draft: %s", errs.Error())
	}
	fmt.Fprintf(os.Stdout, "draft imported: %q (%d tags)\n", f.Title, len(f.Tags))
	return nil
}

func exportPost(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: postdesk export <id>")
	}
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.ExportPost(ctx, id, os.Stdout, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:   "postdesk",
		Usage:  "Blog post composer with autosave, publishing workflow and a posts dashboard",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools over stdio",
				Action: serveMCP,
			},
			{
				Name:      "import",
				Usage:     "Replace the composer draft with a Markdown file",
				ArgsUsage: "<file.md>",
				Action:    importDraft,
			},
			{
				Name:      "export",
				Usage:     "Print a committed post as Markdown",
				ArgsUsage: "<id>",
				Action:    exportPost,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
