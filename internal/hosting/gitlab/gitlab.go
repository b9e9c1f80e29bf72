// Package gitlab implements the CI client of the pipeline driver on the
// GitLab REST API.
package gitlab

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	gogitlab "gitlab.com/gitlab-org/api/client-go"

	boterrors "github.com/paritytech/command-bot-sub000/internal/errors"
	"github.com/paritytech/command-bot-sub000/internal/hosting"
	"github.com/paritytech/command-bot-sub000/internal/pipeline"
)

// Compile-time interface check.
var _ pipeline.CIClient = (*Client)(nil)

// Client talks to the GitLab API with a private token sent as a header.
type Client struct {
	client *gogitlab.Client
}

// New creates a Client, reading the token from the environment.
func New(cfg hosting.Config) (*Client, error) {
	token, err := ResolveToken(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithToken(cfg.BaseURL, token)
}

// ResolveToken reads the GitLab token. Uses cfg.TokenEnvVar if set,
// otherwise tries GITLAB_TOKEN then GITLAB_PRIVATE_TOKEN.
func ResolveToken(cfg hosting.Config) (string, error) {
	return hosting.ResolveToken(cfg, "GITLAB_TOKEN", "GITLAB_PRIVATE_TOKEN")
}

// NewWithToken creates a Client for baseURL (empty for gitlab.com).
// Retries are left to the caller.
func NewWithToken(baseURL, token string) (*Client, error) {
	opts := []gogitlab.ClientOptionFunc{gogitlab.WithoutRetries()}
	if baseURL != "" {
		opts = append(opts, gogitlab.WithBaseURL(strings.TrimSuffix(baseURL, "/")+"/api/v4"))
	}
	client, err := gogitlab.NewClient(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GitLab client: %w", err)
	}
	return &Client{client: client}, nil
}

// BranchExists reports whether project has branch. A 404 means not yet.
func (c *Client) BranchExists(ctx context.Context, project, branch string) (bool, error) {
	_, resp, err := c.client.Branches.GetBranch(project, branch, gogitlab.WithContext(ctx))
	if err != nil {
		if statusCode(resp) == http.StatusNotFound {
			return false, nil
		}
		return false, classify("get branch", resp, err)
	}
	return true, nil
}

// CreatePipeline starts a pipeline for ref.
func (c *Client) CreatePipeline(ctx context.Context, project, ref string) (*pipeline.CreatedPipeline, error) {
	p, resp, err := c.client.Pipelines.CreatePipeline(project, &gogitlab.CreatePipelineOptions{
		Ref: gogitlab.Ptr(ref),
	}, gogitlab.WithContext(ctx))
	if err != nil {
		return nil, classify("create pipeline", resp, err)
	}
	return &pipeline.CreatedPipeline{ID: p.ID, ProjectID: p.ProjectID, WebURL: p.WebURL}, nil
}

// ListPipelineJobs lists the jobs of a pipeline.
func (c *Client) ListPipelineJobs(ctx context.Context, projectID, pipelineID int64) ([]pipeline.CIJob, error) {
	jobs, resp, err := c.client.Jobs.ListPipelineJobs(projectID, pipelineID, nil, gogitlab.WithContext(ctx))
	if err != nil {
		return nil, classify("list pipeline jobs", resp, err)
	}
	out := make([]pipeline.CIJob, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, pipeline.CIJob{
			ID:     j.ID,
			Name:   j.Name,
			Status: pipeline.Status(j.Status),
			WebURL: j.WebURL,
		})
	}
	return out, nil
}

// PipelineStatus fetches the current status of a pipeline.
func (c *Client) PipelineStatus(ctx context.Context, projectID, pipelineID int64) (pipeline.Status, error) {
	p, resp, err := c.client.Pipelines.GetPipeline(projectID, pipelineID, gogitlab.WithContext(ctx))
	if err != nil {
		return "", classify("get pipeline", resp, err)
	}
	return pipeline.Status(p.Status), nil
}

// CancelPipeline cancels a pipeline. GitLab accepts this for finished
// pipelines too and leaves their status alone.
func (c *Client) CancelPipeline(ctx context.Context, projectID, pipelineID int64) error {
	_, resp, err := c.client.Pipelines.CancelPipelineBuild(projectID, pipelineID, gogitlab.WithContext(ctx))
	if err != nil {
		return classify("cancel pipeline", resp, err)
	}
	return nil
}

func statusCode(resp *gogitlab.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}

// classify marks errors worth retrying as transient. GitLab answers
// "reference not found" while a freshly pushed branch is still propagating.
func classify(op string, resp *gogitlab.Response, err error) error {
	code := statusCode(resp)
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%s: %w: %w", op, hosting.ErrAuthFailed, err)
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w: %w", op, hosting.ErrNotFound, err)
	case code == http.StatusTooManyRequests || code >= 500:
		return boterrors.ErrTransient(op, err)
	case strings.Contains(strings.ToLower(err.Error()), "reference not found"):
		return boterrors.ErrTransient(op, err)
	}
	var netErr net.Error
	if code == 0 && (errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded)) {
		return boterrors.ErrTransient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
