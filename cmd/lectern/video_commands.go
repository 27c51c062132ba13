package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lectern/internal/ipc"
)

func newVideosCommand(ctx *commandContext) *cobra.Command {
	var states []string

	cmd := &cobra.Command{
		Use:   "videos",
		Short: "List videos and their pipeline state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.VideoList(states)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Videos) == 0 {
					fmt.Fprintln(stdout, "No videos found")
					return nil
				}
				rows := make([][]string, 0, len(resp.Videos))
				for _, video := range resp.Videos {
					rows = append(rows, []string{
						strconv.FormatInt(video.ID, 10),
						truncateText(dashIfEmpty(video.Title), 40),
						video.State,
						video.ThumbnailState,
						formatClock(video.DurationSeconds),
						formatSizeMB(video.SizeMB),
						formatAge(video.UpdatedAt),
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"ID", "Title", "State", "Thumb", "Duration", "Size", "Updated"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&states, "state", nil, "Only show videos in the given states (repeatable)")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var logLimit int

	cmd := &cobra.Command{
		Use:   "show <video-id>",
		Short: "Show a video with its transcript, summary, and segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID, err := parseVideoID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.VideoDescribe(videoID)
				if err != nil {
					return err
				}
				logsResp, err := client.VideoLogs(videoID, logLimit)
				if err != nil {
					return err
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(cmd.OutOrStdout())

				for _, line := range renderSectionHeader("Video", colorize) {
					fmt.Fprintln(stdout, line)
				}
				video := resp.Video
				fmt.Fprintln(stdout, renderStatusLine("ID", statusInfo, strconv.FormatInt(video.ID, 10), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Title", statusInfo, dashIfEmpty(video.Title), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Source", statusInfo, fmt.Sprintf("%s (%s)", video.SourceURL, video.SourceKind), colorize))
				fmt.Fprintln(stdout, renderStatusLine("State", stateKind(video.State), video.State, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Thumbnail", statusInfo, thumbnailDetail(video), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Duration", statusInfo, formatClock(video.DurationSeconds), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Size", statusInfo, formatSizeMB(video.SizeMB), colorize))
				if video.ErrorMessage != "" {
					fmt.Fprintln(stdout, renderStatusLine("Error", statusError, video.ErrorMessage, colorize))
				}
				fmt.Fprintln(stdout)

				if resp.Summary != nil {
					for _, line := range renderSectionHeader("Summary", colorize) {
						fmt.Fprintln(stdout, line)
					}
					fmt.Fprintln(stdout, strings.TrimSpace(resp.Summary.Body))
					if resp.Summary.Model != "" {
						fmt.Fprintf(stdout, "\n(%d words, model %s)\n", resp.Summary.WordCount, resp.Summary.Model)
					}
					fmt.Fprintln(stdout)
				}

				if len(resp.Segments) > 0 {
					for _, line := range renderSectionHeader("Segments", colorize) {
						fmt.Fprintln(stdout, line)
					}
					rows := make([][]string, 0, len(resp.Segments))
					for _, seg := range resp.Segments {
						rows = append(rows, []string{
							strconv.Itoa(seg.Position),
							truncateText(seg.Title, 40),
							formatSpan(seg.StartSeconds, seg.EndSeconds),
							strconv.Itoa(seg.Relevance),
							dashIfEmpty(seg.Category),
							dashIfEmpty(seg.ClipPath),
						})
					}
					fmt.Fprintln(stdout, renderTable(
						[]string{"#", "Title", "Span", "Rel", "Category", "Clip"},
						rows,
						[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
					))
					fmt.Fprintln(stdout)
				}

				if resp.Transcript != "" {
					for _, line := range renderSectionHeader("Transcript", colorize) {
						fmt.Fprintln(stdout, line)
					}
					fmt.Fprintln(stdout, truncateText(resp.Transcript, 2000))
					fmt.Fprintln(stdout)
				}

				if len(logsResp.Entries) > 0 {
					for _, line := range renderSectionHeader("History", colorize) {
						fmt.Fprintln(stdout, line)
					}
					for _, entry := range logsResp.Entries {
						detail := entry.Message
						if entry.ErrorDetail != "" {
							detail = entry.ErrorDetail
						}
						fmt.Fprintf(stdout, "%s%s  %-14s %-10s %s\n",
							statusIndent,
							entry.CreatedAt.Local().Format("2006-01-02 15:04:05"),
							entry.Stage,
							entry.Outcome,
							detail)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&logLimit, "log-lines", 20, "Number of history entries to show")
	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <video-id>",
		Short: "Remove a video record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID, err := parseVideoID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.VideoRemove(videoID)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if resp.Removed {
					fmt.Fprintf(stdout, "Removed video %d\n", videoID)
				} else {
					fmt.Fprintf(stdout, "Video %d not found\n", videoID)
				}
				return nil
			})
		},
	}
}

func stateKind(state string) statusKind {
	switch state {
	case "completed":
		return statusOK
	case "error":
		return statusError
	case "pending":
		return statusWarn
	default:
		return statusInfo
	}
}

func thumbnailDetail(video ipc.VideoSummary) string {
	if video.ThumbnailPath != "" {
		return fmt.Sprintf("%s (%s)", video.ThumbnailState, video.ThumbnailPath)
	}
	return video.ThumbnailState
}
