package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"lectern/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:         "config",
		Short:       "Manage lectern configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var initPath string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(initPath)
			if path == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = defaultPath
			} else {
				expanded, err := config.ExpandPath(path)
				if err != nil {
					return err
				}
				path = expanded
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config file already exists at %s", path)
			}
			if err := config.CreateSample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample config to %s\n", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&initPath, "path", "", "Where to write the sample config")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(cmd.OutOrStdout())

			source := path
			if !exists {
				source = fmt.Sprintf("%s (not found, using defaults)", path)
			}

			for _, line := range renderSectionHeader("Configuration", colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, renderStatusLine("File", statusInfo, source, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Staging dir", statusInfo, cfg.Paths.StagingDir, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Media dir", statusInfo, cfg.Paths.MediaDir, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Log dir", statusInfo, cfg.Paths.LogDir, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Downloader", statusInfo, cfg.Downloader.Binary, colorize))
			fmt.Fprintln(stdout, renderStatusLine("FFmpeg", statusInfo, cfg.FFmpeg.Binary, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Transcriber", statusInfo, transcriberDetail(cfg), colorize))
			fmt.Fprintln(stdout, renderStatusLine("Analysis model", statusInfo, cfg.LLM.Model, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Workers", statusInfo, fmt.Sprintf("%d", cfg.Workflow.WorkerCount), colorize))
			fmt.Fprintln(stdout, renderStatusLine("Cleanup", statusInfo, cleanupDetail(cfg), colorize))
			fmt.Fprintln(stdout, renderStatusLine("Notifications", statusInfo, notificationsDetail(cfg), colorize))
			return nil
		},
	}

	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	return configCmd
}

func transcriberDetail(cfg *config.Config) string {
	if cfg.Transcriber.Mode == "api" {
		return fmt.Sprintf("api (%s)", cfg.Transcriber.APIModel)
	}
	return fmt.Sprintf("local (%s, model %s)", cfg.Transcriber.Binary, cfg.Transcriber.Model)
}

func cleanupDetail(cfg *config.Config) string {
	if !cfg.Cleanup.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("every %dh, max age %dh", cfg.Cleanup.IntervalHours, cfg.Cleanup.MaxAgeHours)
}

func notificationsDetail(cfg *config.Config) string {
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return "disabled"
	}
	return "ntfy topic " + cfg.Notifications.NtfyTopic
}
