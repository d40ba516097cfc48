package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/wattsync/wattsync/internal/config"
	"github.com/wattsync/wattsync/pkg/client"
)

func addAPIFlags(cmd *cobra.Command, url *string, timeout *time.Duration) {
	cmd.Flags().StringVar(url, "api-url", "", "daemon URL (default http://localhost:8321)")
	cmd.Flags().DurationVar(timeout, "api-timeout", 10*time.Second, "request timeout")
}

func newClient(apiURL string, timeout time.Duration) *client.Client {
	cfg := client.DefaultConfig()
	if apiURL != "" {
		cfg.BaseURL = apiURL
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	return client.New(cfg)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func createStatusCommand(flags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the engine snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(*flags)
		},
	}
	addAPIFlags(cmd, &flags.APIUrl, &flags.APITimeout)
	return cmd
}

func runStatus(flags StatusFlags) error {
	c := newClient(flags.APIUrl, flags.APITimeout)
	st, err := c.Status(context.Background())
	if err != nil {
		return err
	}
	return printJSON(st)
}

func createBackfillCommand(flags *ControlFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Run one reconciliation now",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(flags.APIUrl, flags.APITimeout)
			if err := c.TriggerBackfill(context.Background()); err != nil {
				return err
			}
			fmt.Println("backfill completed")
			return nil
		},
	}
	addAPIFlags(cmd, &flags.APIUrl, &flags.APITimeout)
	return cmd
}

func createReseedCommand(flags *ControlFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reseed",
		Short: "Re-run entity discovery and the historical statistics load",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(flags.APIUrl, flags.APITimeout)
			if err := c.Reseed(context.Background()); err != nil {
				return err
			}
			fmt.Println("reseed completed")
			return nil
		},
	}
	addAPIFlags(cmd, &flags.APIUrl, &flags.APITimeout)
	return cmd
}

func createSyncLogCommand(flags *SyncLogFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "synclog",
		Short: "Show recent sync audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(flags.APIUrl, flags.APITimeout)
			entries, err := c.SyncLog(context.Background(), flags.Limit)
			if err != nil {
				return err
			}
			return printJSON(entries)
		},
	}
	cmd.Flags().IntVar(&flags.Limit, "limit", 20, "maximum number of entries")
	addAPIFlags(cmd, &flags.APIUrl, &flags.APITimeout)
	return cmd
}

func createValidateCommand(flags *ValidateFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file without starting the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(flags.ConfigPath); err != nil {
				return err
			}
			fmt.Printf("%s: ok\n", flags.ConfigPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.ConfigPath, "config", "wattsync.toml", "path to TOML config file")
	return cmd
}
