package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"duckbot/internal/app"
)

const (
	envConfigPath = "DUCKBOT_CONFIG"
	stopTimeout   = 15 * time.Second
)

type options struct {
	configPath string
	envFile    string
}

func defaultConfigPath() string {
	if p := os.Getenv(envConfigPath); p != "" {
		return p
	}
	return "./config.json"
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "duckbot",
		Short: "Discord bot that posts game event digests",
		Long: `duckbot keeps a cached copy of the game event feed and posts a
categorized digest to the channel each server has bound with /setchannel.`,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			// A missing .env is normal in production.
			_ = godotenv.Load(opts.envFile)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), opts.configPath)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath(), "path to config file (json or yaml)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(
		newRunCommand(opts),
		newFetchCommand(opts),
		newNotifyCommand(opts),
		newBindingsCommand(opts),
	)
	return root
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), opts.configPath)
		},
	}
}

func runBot(ctx context.Context, cfgPath string) error {
	a, err := app.New(cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		_ = a.Stop(stopCtx, app.StopFatal)
		return fmt.Errorf("start: %w", err)
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		if a.Err() != nil {
			reason = app.StopFatal
		}
	}

	// The signal context is already cancelled here.
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	stopErr := a.Stop(stopCtx, reason)
	if reason == app.StopFatal {
		return errors.Join(a.Err(), stopErr)
	}
	return stopErr
}

func newFetchCommand(opts *options) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Refresh the cached event feed once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			n, err := app.Fetch(ctx, opts.configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fetched %d events\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "overall timeout")
	return cmd
}

func newNotifyCommand(opts *options) *cobra.Command {
	var (
		guildID string
		timeout time.Duration
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Post the current digest to bound channels once",
		Example: `  duckbot notify                 # every bound server
  duckbot notify --guild 1234    # one server
  duckbot notify --json          # print the report as JSON`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			rep, err := app.NotifyOnce(ctx, opts.configPath, guildID)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), rep, asJSON)
		},
	}
	cmd.Flags().StringVar(&guildID, "guild", "", "only notify this server")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall timeout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func printReport(w io.Writer, rep any, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	_, err := fmt.Fprintf(w, "%+v\n", rep)
	return err
}

func newBindingsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "bindings",
		Short: "List server to channel bindings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := app.ListBindings(cmd.Context(), opts.configPath)
			if err != nil {
				return err
			}
			return writeBindings(cmd.OutOrStdout(), m)
		},
	}
}

func writeBindings(w io.Writer, m map[string]string) error {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", id, m[id]); err != nil {
			return err
		}
	}
	return nil
}
