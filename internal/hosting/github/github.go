// Package github posts and edits the bot's status comments on pull requests.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gogithub "github.com/google/go-github/v82/github"

	"github.com/paritytech/command-bot-sub000/internal/hosting"
)

// Client writes PR comments through the GitHub REST API.
type Client struct {
	client *gogithub.Client
}

// New creates a Client, reading the token from the environment.
func New(cfg hosting.Config) (*Client, error) {
	token, err := ResolveToken(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithToken(cfg.BaseURL, token)
}

// ResolveToken reads the GitHub token. Uses cfg.TokenEnvVar if set,
// otherwise GITHUB_TOKEN.
func ResolveToken(cfg hosting.Config) (string, error) {
	return hosting.ResolveToken(cfg, "GITHUB_TOKEN")
}

// NewWithToken creates a Client for baseURL (empty for github.com).
func NewWithToken(baseURL, token string) (*Client, error) {
	client := gogithub.NewClient(&http.Client{
		Transport: &oauth2Transport{token: token},
	})

	// GitHub Enterprise: override base URL.
	if baseURL != "" {
		base := strings.TrimSuffix(baseURL, "/")
		var err error
		client.BaseURL, err = client.BaseURL.Parse(base + "/api/v3/")
		if err != nil {
			return nil, fmt.Errorf("parse base URL %q: %w", baseURL, err)
		}
		client.UploadURL, err = client.UploadURL.Parse(base + "/api/uploads/")
		if err != nil {
			return nil, fmt.Errorf("parse upload URL %q: %w", baseURL, err)
		}
	}
	return &Client{client: client}, nil
}

// oauth2Transport adds an Authorization header to every request.
type oauth2Transport struct {
	token string
	base  http.RoundTripper
}

func (t *oauth2Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.Header.Set("Authorization", "Bearer "+t.token)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req2)
}

// UpsertComment edits comment commentID on PR number, or creates a new
// comment when commentID is zero or the old one is gone. It returns the
// id of the comment now carrying body.
func (c *Client) UpsertComment(ctx context.Context, owner, repo string, number int, commentID int64, body string) (int64, error) {
	if commentID != 0 {
		edited, _, err := c.client.Issues.EditComment(ctx, owner, repo, commentID, &gogithub.IssueComment{
			Body: gogithub.Ptr(body),
		})
		if err == nil {
			return edited.GetID(), nil
		}
		if !isNotFound(err) {
			return 0, mapError("edit comment", err)
		}
	}

	created, _, err := c.client.Issues.CreateComment(ctx, owner, repo, number, &gogithub.IssueComment{
		Body: gogithub.Ptr(body),
	})
	if err != nil {
		return 0, mapError("create comment", err)
	}
	return created.GetID(), nil
}

func isNotFound(err error) bool {
	var errResp *gogithub.ErrorResponse
	return errors.As(err, &errResp) && errResp.Response != nil && errResp.Response.StatusCode == http.StatusNotFound
}

func mapError(op string, err error) error {
	var errResp *gogithub.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		switch errResp.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %w: %w", op, hosting.ErrAuthFailed, err)
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w: %w", op, hosting.ErrNotFound, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
