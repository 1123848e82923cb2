package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	discordColorWarn  = 0xFFA500
	discordColorError = 0xE01E5A
)

// Discord sends notifications via Discord webhook.
type Discord struct {
	client     *http.Client
	webhookURL string
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{client: newHTTPClient(), webhookURL: webhookURL}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, n *Notification) error {
	description := n.Body
	if lines := failureLines(n, "• **%s** %s: %s"); len(lines) > 0 {
		description += "\n\n" + strings.Join(lines, "\n")
	}

	color := discordColorWarn
	if n.Aborted != "" {
		color = discordColorError
	}

	ts := n.Finished
	if ts.IsZero() {
		ts = time.Now()
	}
	embed := map[string]any{
		"title":       n.Title,
		"description": description,
		"color":       color,
		"timestamp":   ts.UTC().Format(time.RFC3339),
		"footer":      map[string]any{"text": "run " + n.RunID},
	}

	body, err := json.Marshal(map[string]any{"embeds": []map[string]any{embed}})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}
	return postJSON(ctx, d.client, "discord webhook", d.webhookURL, body, nil)
}
