package scm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pipewatch/pipewatch/internal/models"
)

const defaultBitbucketBaseURL = "https://api.bitbucket.org"

// BitbucketResolver resolves commits through the Bitbucket Cloud 2.0 API
// using app-password basic auth.
type BitbucketResolver struct {
	baseURL  string
	username string
	password string
	client   *http.Client
}

func NewBitbucketResolver(baseURL, username, password string) *BitbucketResolver {
	if baseURL == "" {
		baseURL = defaultBitbucketBaseURL
	}
	return &BitbucketResolver{
		baseURL:  baseURL,
		username: username,
		password: password,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type bitbucketCommit struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
	Author  struct {
		Raw  string `json:"raw"`
		User struct {
			DisplayName string `json:"display_name"`
		} `json:"user"`
	} `json:"author"`
	Links struct {
		HTML struct {
			Href string `json:"href"`
		} `json:"html"`
	} `json:"links"`
}

func (r *BitbucketResolver) ResolveCommit(ctx context.Context, repositoryID, commitID string) (models.Commit, error) {
	endpoint := fmt.Sprintf("%s/2.0/repositories/%s/commit/%s", r.baseURL, repositoryID, commitID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Commit{}, fmt.Errorf("bitbucket request: %w", err)
	}
	if r.username != "" {
		req.SetBasicAuth(r.username, r.password)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return models.Commit{}, fmt.Errorf("bitbucket get commit %s@%s: %w", repositoryID, commitID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return models.Commit{}, fmt.Errorf("bitbucket get commit %s@%s: HTTP %d", repositoryID, commitID, resp.StatusCode)
	}
	var bc bitbucketCommit
	if err := json.NewDecoder(resp.Body).Decode(&bc); err != nil {
		return models.Commit{}, fmt.Errorf("decode bitbucket commit: %w", err)
	}
	author := bc.Author.User.DisplayName
	if author == "" {
		author = bc.Author.Raw
	}
	return models.Commit{
		ID:      bc.Hash,
		Author:  author,
		Summary: firstLine(bc.Message),
		Link:    bc.Links.HTML.Href,
	}, nil
}
