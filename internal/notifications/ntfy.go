package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const userAgent = "Nexus-Go/0.1.0"

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func newNtfyService(topic string, timeoutSeconds int) *ntfyService {
	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

// format renders a human message. Progress and sweep events are not worth a push.
func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventJobCompleted:
		return message{
			title: "Nexus - Complete",
			body:  fmt.Sprintf("✅ Processed: %s", fallback(payload.str("title"), payload.str("mediaID"))),
			tags:  []string{"nexus", "job", "completed"},
		}, true
	case EventDuplicateLinked:
		body := fmt.Sprintf("🔗 Duplicate linked: %s", fallback(payload.str("title"), payload.str("mediaID")))
		if canonical := payload.str("canonicalID"); canonical != "" {
			body += "\nCanonical: " + canonical
		}
		return message{
			title:    "Nexus - Duplicate",
			body:     body,
			tags:     []string{"nexus", "job", "duplicate"},
			priority: "low",
		}, true
	case EventSubscriptionSynced:
		created := payload.integer("created")
		if created == 0 {
			return message{}, false
		}
		return message{
			title: "Nexus - Subscription Synced",
			body:  fmt.Sprintf("📰 %s: %d new item(s)", fallback(payload.str("title"), payload.str("subscriptionID")), created),
			tags:  []string{"nexus", "subscription", "synced"},
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := payload.str("context"); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		builder.WriteString(fallback(payload.str("error"), "unknown"))
		return message{
			title:    "Nexus - Error",
			body:     builder.String(),
			tags:     []string{"nexus", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Nexus - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"nexus", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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

func fallback(value, alt string) string {
	if value != "" {
		return value
	}
	return alt
}
