package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"faultline/cli"
	"faultline/config"
	"faultline/models"
	"faultline/reporter"

	"github.com/spf13/cobra"
)

// clientTarget resolves which server a client command talks to. An explicit
// --server wins, then --profile, then the default profile, then CLI_SERVER.
type clientTarget struct {
	profile string
}

func (t *clientTarget) bind(cmd *cobra.Command) {
	config.BindClientFlags(cmd.Flags())
	cmd.Flags().StringVar(&t.profile, "profile", "", "Named server profile (see 'faultline profile')")
}

func (t *clientTarget) resolve(cmd *cobra.Command) (string, cli.Profile, error) {
	if cmd.Flags().Changed("server") {
		return config.Settings.CLIServer, cli.Profile{}, nil
	}
	profiles, err := loadProfiles()
	if err != nil {
		return "", cli.Profile{}, err
	}
	prof, ok := profiles.Get(t.profile)
	if !ok {
		if t.profile != "" {
			return "", cli.Profile{}, fmt.Errorf("profile '%s' not found", t.profile)
		}
		return config.Settings.CLIServer, cli.Profile{}, nil
	}
	return prof.URL, prof, nil
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), time.Duration(config.Settings.RequestTimeoutSeconds)*time.Second)
}

func newStatsCmd() *cobra.Command {
	var target clientTarget
	var minutes int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show error statistics from a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _, err := target.resolve(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()

			report, err := cli.NewClient(url).Stats(ctx, minutes)
			if err != nil {
				return err
			}
			return cli.PrintStats(cmd.OutOrStdout(), report)
		},
	}
	target.bind(cmd)
	cmd.Flags().IntVar(&minutes, "minutes", 0, "Window size in minutes, server default when 0")
	return cmd
}

func newCleanupCmd() *cobra.Command {
	var target clientTarget
	var key string
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Purge error records older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, prof, err := target.resolve(cmd)
			if err != nil {
				return err
			}
			if key == "" {
				key = prof.CleanupKey
			}
			if key == "" {
				key = config.Settings.CleanupAPIKey
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()

			res, err := cli.NewClient(url).Cleanup(ctx, key)
			if err != nil {
				return err
			}
			cli.PrintCleanup(cmd.OutOrStdout(), res)
			return nil
		},
	}
	target.bind(cmd)
	cmd.Flags().StringVar(&key, "key", "", "Cleanup API key (defaults to the profile key, then ERROR_CLEANUP_API_KEY)")
	return cmd
}

func newHealthCmd() *cobra.Command {
	var target clientTarget
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _, err := target.resolve(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()

			report, err := cli.NewClient(url).Health(ctx)
			if report != nil {
				cli.PrintHealth(cmd.OutOrStdout(), report)
			}
			return err
		},
	}
	target.bind(cmd)
	return cmd
}

func newReportCmd() *cobra.Command {
	var target clientTarget
	var level, svc, pageURL string
	cmd := &cobra.Command{
		Use:   "report <message>",
		Short: "Send an error report to a running server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _, err := target.resolve(cmd)
			if err != nil {
				return err
			}
			lvl, ok := models.ParseLevel(level)
			if !ok {
				return fmt.Errorf("invalid level %q", level)
			}
			s, ok := models.ParseService(svc)
			if !ok {
				return fmt.Errorf("invalid service %q", svc)
			}

			rep := reporter.New(reporter.Config{
				Endpoint: strings.TrimRight(url, "/") + "/api/error-log",
				Service:  s,
				PageURL:  pageURL,
				Timeout:  time.Duration(config.Settings.ReportTimeoutSeconds) * time.Second,
			})
			rep.Report(lvl, strings.Join(args, " "), nil, map[string]any{"source": "cli"})

			ctx, cancel := requestContext(cmd)
			defer cancel()
			return rep.Flush(ctx)
		},
	}
	target.bind(cmd)
	cmd.Flags().StringVar(&level, "level", string(models.LevelError), "critical, error, warn or info")
	cmd.Flags().StringVar(&svc, "service", string(models.ServiceWorker), "Reporting service")
	cmd.Flags().StringVar(&pageURL, "url", "", "URL to attach to the report")
	return cmd
}

func loadProfiles() (*cli.Profiles, error) {
	path := os.Getenv("FAULTLINE_PROFILES")
	if path == "" {
		p, err := cli.DefaultProfilesPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return cli.LoadProfiles(path)
}

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage saved server profiles",
	}

	var description, cleanupKey string
	add := &cobra.Command{
		Use:   "add <name> <url>",
		Short: "Save a server profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := loadProfiles()
			if err != nil {
				return err
			}
			return profiles.Add(args[0], cli.Profile{URL: args[1], Description: description, CleanupKey: cleanupKey})
		},
	}
	add.Flags().StringVar(&description, "description", "", "Free-form description")
	add.Flags().StringVar(&cleanupKey, "cleanup-key", "", "Cleanup API key for this server")

	rm := &cobra.Command{
		Use:     "rm <name>",
		Aliases: []string{"remove"},
		Short:   "Delete a server profile",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := loadProfiles()
			if err != nil {
				return err
			}
			return profiles.Remove(args[0])
		},
	}

	use := &cobra.Command{
		Use:   "use <name>",
		Short: "Set the default profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := loadProfiles()
			if err != nil {
				return err
			}
			return profiles.Use(args[0])
		},
	}

	ls := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List saved profiles",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := loadProfiles()
			if err != nil {
				return err
			}
			return cli.PrintProfiles(cmd.OutOrStdout(), profiles)
		},
	}

	cmd.AddCommand(add, rm, use, ls)
	return cmd
}
