package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kuhlman-labs/migration-accelerator/internal/config"
	"github.com/kuhlman-labs/migration-accelerator/internal/logging"
	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"github.com/urfave/cli/v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	runner := NewRunner(RunnerOpts{
		Config: cfg,
		Logger: logging.NewCLILogger(os.Getenv("ACCELERATOR_CLI_LOG_LEVEL"), os.Stderr),
	})

	app := &cli.Command{
		Name:     "accelerator",
		Usage:    "Convert webMethods packages to SnapLogic pipelines",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (r *Runner) register() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "login",
			Usage: "Sign in and remember the session",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Account email", Required: true},
				&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Account password", Sources: cli.EnvVars("ACCELERATOR_PASSWORD"), Required: true},
			},
			Action: r.Login,
		},
		{
			Name:   "logout",
			Usage:  "Forget the saved session",
			Action: r.Logout,
		},
		{
			Name:      "start",
			Usage:     "Upload a package and follow the migration until it ends",
			ArgsUsage: "<package.zip>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "project", Usage: "Project the migration belongs to"},
				&cli.StringFlag{Name: "target-env", Usage: "Target SnapLogic environment"},
				&cli.StringFlag{Name: "naming", Usage: "Pipeline naming convention", Value: models.DefaultNamingConvention},
				&cli.BoolFlag{Name: "report", Usage: "Generate a migration report"},
				&cli.BoolFlag{Name: "send-to-client", Usage: "Deliver the converted pipelines to the client"},
			},
			Action: r.Start,
		},
		{
			Name:   "cancel",
			Usage:  "Cancel the migration in progress",
			Action: r.Cancel,
		},
		{
			Name:  "watch",
			Usage: "Follow the migration in progress until it ends",
			Flags: []cli.Flag{
				&cli.DurationFlag{Name: "interval", Usage: "Delay between server checks", Value: 5 * time.Second},
			},
			Action: r.Watch,
		},
		{
			Name:   "status",
			Usage:  "Show the migration in progress",
			Action: r.Status,
		},
		{
			Name:  "history",
			Usage: "List past migrations",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "limit", Usage: "Maximum number of records to show", Value: 20},
				&cli.StringFlag{Name: "status", Usage: "Only show records with this status"},
				&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
			},
			Action: r.History,
		},
		{
			Name:      "report",
			Usage:     "Download the migration report of an upstream job",
			ArgsUsage: "<jobId>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "Report format, json or csv", Value: "json"},
				&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Write the report to this file instead of stdout"},
			},
			Action: r.Report,
		},
		{
			Name:  "preferences",
			Usage: "Show or change notification preferences",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "email-notifications", Usage: "Email the outcome of each migration"},
				&cli.BoolFlag{Name: "browser-notifications", Usage: "Show desktop notifications"},
				&cli.BoolFlag{Name: "auto-navigate", Usage: "Follow a migration after starting it"},
			},
			Action: r.Preferences,
		},
		{
			Name:  "sync",
			Usage: "Pull migration history from the server",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Keep syncing until interrupted"},
				&cli.DurationFlag{Name: "interval", Usage: "Delay between syncs with --watch", Value: defaultSyncInterval},
			},
			Action: r.Sync,
		},
	}
}
