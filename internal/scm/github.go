// Package scm resolves checkout commits to full metadata through the git
// hosting providers the pipelines pull from.
package scm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/pipewatch/pipewatch/internal/models"
)

// GitHubResolver resolves commits through the GitHub REST API.
type GitHubResolver struct {
	client *github.Client
}

// NewGitHubResolver wraps an already-configured client; use NewGitHubClient
// for the common token-authenticated case.
func NewGitHubResolver(client *github.Client) *GitHubResolver {
	return &GitHubResolver{client: client}
}

// NewGitHubClient builds a GitHub client. An empty token yields an
// unauthenticated client, good enough for public repositories.
func NewGitHubClient(ctx context.Context, token string) *github.Client {
	if token == "" {
		return github.NewClient(nil)
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return github.NewClient(oauth2.NewClient(ctx, src))
}

func (r *GitHubResolver) ResolveCommit(ctx context.Context, repositoryID, commitID string) (models.Commit, error) {
	owner, name, ok := strings.Cut(repositoryID, "/")
	if !ok {
		return models.Commit{}, fmt.Errorf("repository id %q is not owner/name", repositoryID)
	}
	rc, _, err := r.client.Repositories.GetCommit(ctx, owner, name, commitID, nil)
	if err != nil {
		return models.Commit{}, fmt.Errorf("github get commit %s@%s: %w", repositoryID, commitID, err)
	}
	commit := models.Commit{
		ID:   commitID,
		Link: rc.GetHTMLURL(),
	}
	if c := rc.GetCommit(); c != nil {
		commit.Summary = firstLine(c.GetMessage())
		commit.Author = c.GetAuthor().GetName()
	}
	return commit, nil
}

func firstLine(message string) string {
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		return message[:i]
	}
	return message
}
