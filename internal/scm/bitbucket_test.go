package scm_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipewatch/pipewatch/internal/scm"
)

func TestBitbucketResolveCommit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/2.0/repositories/team/repo/commit/abc123", req.URL.Path)
		user, pass, ok := req.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "bot", user)
		assert.Equal(t, "app-password", pass)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"hash": "abc123",
			"message": "fix flaky test\n\nmore detail",
			"author": {
				"raw": "Dev <dev@example.com>",
				"user": {"display_name": "Dev"}
			},
			"links": {"html": {"href": "https://bitbucket.org/team/repo/commits/abc123"}}
		}`))
	}))
	defer srv.Close()

	r := scm.NewBitbucketResolver(srv.URL, "bot", "app-password")
	commit, err := r.ResolveCommit(context.Background(), "team/repo", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", commit.ID)
	assert.Equal(t, "Dev", commit.Author)
	assert.Equal(t, "fix flaky test", commit.Summary)
	assert.Equal(t, "https://bitbucket.org/team/repo/commits/abc123", commit.Link)
}

func TestBitbucketAuthorFallsBackToRaw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"hash": "abc123", "author": {"raw": "Dev <dev@example.com>"}}`))
	}))
	defer srv.Close()

	r := scm.NewBitbucketResolver(srv.URL, "", "")
	commit, err := r.ResolveCommit(context.Background(), "team/repo", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "Dev <dev@example.com>", commit.Author)
}

func TestBitbucketErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	r := scm.NewBitbucketResolver(srv.URL, "bot", "wrong")
	_, err := r.ResolveCommit(context.Background(), "team/repo", "abc123")
	assert.ErrorContains(t, err, "HTTP 403")
}
