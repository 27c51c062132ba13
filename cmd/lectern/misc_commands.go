package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lectern/internal/ipc"
)

func newCleanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Delete expired working files now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Clean()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if resp.DeletedFiles == 0 {
					fmt.Fprintf(stdout, "Nothing to clean (%s free)\n", formatSizeMB(resp.DiskFreeMB))
					return nil
				}
				fmt.Fprintf(stdout, "Deleted %d files, freed %s (%s free)\n",
					resp.DeletedFiles, formatSizeMB(resp.FreedMB), formatSizeMB(resp.DiskFreeMB))
				return nil
			})
		},
	}
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if !resp.Sent {
					fmt.Fprintf(stdout, "Notification failed: %s\n", resp.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Test notification sent")
				return nil
			})
		},
	}
}
