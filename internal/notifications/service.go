package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lectern/internal/config"
)

const userAgent = "Lectern/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyVideoSubmitted(ctx context.Context, title string) error
	NotifyVideoCompleted(ctx context.Context, title string, segments int) error
	NotifyError(ctx context.Context, err error, context string) error
	NotifyCleanupCompleted(ctx context.Context, deleted int, freedMB float64) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:       topic,
		client:         &http.Client{Timeout: timeout},
		sendCompletion: cfg.Notifications.Completion,
		sendErrors:     cfg.Notifications.Errors,
		sendCleanup:    cfg.Notifications.Cleanup,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint       string
	client         *http.Client
	sendCompletion bool
	sendErrors     bool
	sendCleanup    bool
}

func (n *ntfyService) NotifyVideoSubmitted(ctx context.Context, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "untitled video"
	}
	data := payload{
		title:   "Lectern - Submitted",
		message: fmt.Sprintf("Queued for processing: %s", title),
		tags:    []string{"lectern", "submit"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyVideoCompleted(ctx context.Context, title string, segments int) error {
	if !n.sendCompletion {
		return nil
	}
	title = strings.TrimSpace(title)
	data := payload{
		title:    "Lectern - Complete",
		message:  fmt.Sprintf("Processing complete: %s (%d segments)", title, segments),
		tags:     []string{"lectern", "pipeline", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.sendErrors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Lectern - Error",
		message:  builder.String(),
		tags:     []string{"lectern", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyCleanupCompleted(ctx context.Context, deleted int, freedMB float64) error {
	if !n.sendCleanup {
		return nil
	}
	data := payload{
		title:   "Lectern - Cleanup",
		message: fmt.Sprintf("Cleanup removed %d files, freed %.1f MB", deleted, freedMB),
		tags:    []string{"lectern", "cleanup", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Lectern - Test",
		message:  "Notification system test",
		tags:     []string{"lectern", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyVideoSubmitted(context.Context, string) error            { return nil }
func (noopService) NotifyVideoCompleted(context.Context, string, int) error       { return nil }
func (noopService) NotifyError(context.Context, error, string) error              { return nil }
func (noopService) NotifyCleanupCompleted(context.Context, int, float64) error    { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
