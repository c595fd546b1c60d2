package route

import "github.com/pipewatch/pipewatch/internal/models"

// Attributes flattens a notification into the nested map the routing
// expressions traverse. Every variant carries a "type" key with its kind tag.
func Attributes(n models.Notification) map[string]any {
	attrs := map[string]any{"type": n.NotificationKind()}
	switch t := n.(type) {
	case models.SimpleNotification:
		attrs["text"] = t.Text
	case models.AlarmNotification:
		attrs["name"] = t.Name
		attrs["description"] = t.Description
		attrs["state"] = t.State
	case models.ManualApprovalNotification:
		attrs["pipeline"] = t.Pipeline
		attrs["link"] = t.Link
		attrs["comment"] = t.Comment
	case models.PipelineNotification:
		attrs["name"] = t.Name
		attrs["successfull"] = t.Successfull
		attrs["commit"] = map[string]any{
			"id":      t.Commit.ID,
			"author":  t.Commit.Author,
			"summary": t.Commit.Summary,
			"link":    t.Commit.Link,
		}
		switch d := t.Failure.(type) {
		case models.CodeBuildDetail:
			attrs["failure"] = map[string]any{
				"type":   "CodeBuild",
				"logUrl": d.LogURL,
			}
		case models.CodeDeployDetail:
			attrs["failure"] = map[string]any{
				"type":    "CodeDeploy",
				"id":      d.DeploymentID,
				"summary": d.Summary,
			}
		}
	}
	return attrs
}
