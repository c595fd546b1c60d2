// Package notify delivers notifications to the chat backend. Rendering is
// deliberately minimal: one text line per notification kind. Retries toward
// the chat backend are out of scope; the caller decides what a delivery
// failure means.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pipewatch/pipewatch/internal/models"
)

// SlackClient posts messages to an incoming-webhook URL.
type SlackClient struct {
	webhookURL string
	client     *http.Client
}

func NewSlackClient(webhookURL string) *SlackClient {
	return &SlackClient{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type slackMessage struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

// Send posts one notification to the given channel.
func (c *SlackClient) Send(ctx context.Context, channel string, n models.Notification) error {
	body, err := json.Marshal(slackMessage{Channel: channel, Text: renderText(n)})
	if err != nil {
		return fmt.Errorf("encode slack message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post slack message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}

func renderText(n models.Notification) string {
	switch t := n.(type) {
	case models.SimpleNotification:
		return t.Text
	case models.AlarmNotification:
		return fmt.Sprintf("Alarm %s is %s: %s", t.Name, t.State, t.Description)
	case models.ManualApprovalNotification:
		text := fmt.Sprintf("Pipeline %s is waiting on a manual approval: %s", t.Pipeline, t.Link)
		if t.Comment != "" {
			text += " (" + t.Comment + ")"
		}
		return text
	case models.PipelineNotification:
		if t.Successfull {
			return fmt.Sprintf("Pipeline %s succeeded for %q by %s", t.Name, t.Commit.Summary, t.Commit.Author)
		}
		text := fmt.Sprintf("Pipeline %s FAILED for %q by %s", t.Name, t.Commit.Summary, t.Commit.Author)
		switch d := t.Failure.(type) {
		case models.CodeBuildDetail:
			if d.LogURL != "" {
				text += ": build logs " + d.LogURL
			}
		case models.CodeDeployDetail:
			text += fmt.Sprintf(": deployment %s (%s)", d.DeploymentID, d.Summary)
			for _, target := range d.Targets {
				if target.Diagnostics == nil {
					continue
				}
				text += fmt.Sprintf("\n%s: [%s] %s", target.InstanceID, target.Diagnostics.ErrorCode, target.Diagnostics.Message)
			}
		}
		return text
	default:
		return ""
	}
}
