package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lectern/internal/ipc"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run <run-id>",
		Short: "Show a pipeline run and its stage tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := strings.TrimSpace(args[0])
			if runID == "" {
				return fmt.Errorf("run id is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RunStatus(runID)
				if err != nil {
					return err
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(cmd.OutOrStdout())

				for _, line := range renderSectionHeader("Run", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("ID", statusInfo, resp.Run.ID, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Video", statusInfo, strconv.FormatInt(resp.Run.VideoID, 10), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Status", runStatusKind(resp.Run.Status), resp.Run.Status, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Started", statusInfo, formatAge(resp.Run.CreatedAt), colorize))
				if resp.Run.FinishedAt != nil {
					fmt.Fprintln(stdout, renderStatusLine("Finished", statusInfo, formatAge(*resp.Run.FinishedAt), colorize))
				}
				if resp.Run.ErrorMessage != "" {
					fmt.Fprintln(stdout, renderStatusLine("Error", statusError, resp.Run.ErrorMessage, colorize))
				}
				fmt.Fprintln(stdout)

				if len(resp.Tasks) == 0 {
					fmt.Fprintln(stdout, "No tasks recorded")
					return nil
				}
				rows := make([][]string, 0, len(resp.Tasks))
				for _, task := range resp.Tasks {
					rows = append(rows, []string{
						strconv.FormatInt(task.ID, 10),
						task.Stage,
						strconv.Itoa(task.Attempt),
						task.Status,
						formatAge(task.RunAfter),
						truncateText(dashIfEmpty(task.LastError), 60),
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"Task", "Stage", "Attempt", "Status", "Due", "Last Error"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newResubmitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resubmit <video-id>",
		Short: "Rerun the full pipeline for a finished video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID, err := parseVideoID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Resubmit(videoID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Resubmitted video %d\nRun: %s\n", videoID, resp.RunID)
				return nil
			})
		},
	}
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <video-id>",
		Short: "Rerun analysis for a video that already has a transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID, err := parseVideoID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TriggerAnalysis(videoID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Analysis queued for video %d\nRun: %s\n", videoID, resp.RunID)
				return nil
			})
		},
	}
}

func newSegmentCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "segment <video-id>",
		Short: "Rerun segment extraction for an analyzed video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID, err := parseVideoID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TriggerSegmentation(videoID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Segmentation queued for video %d\nRun: %s\n", videoID, resp.RunID)
				return nil
			})
		},
	}
}

func runStatusKind(status string) statusKind {
	switch status {
	case "succeeded":
		return statusOK
	case "failed":
		return statusError
	case "queued":
		return statusWarn
	default:
		return statusInfo
	}
}
