// Package tracker is the GitHub REST client deckhand uses as its state
// store. Jobs are issues; lifecycle state is encoded in issue labels.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/deckhand-dev/deckhand/internal/types"
)

const apiBase = "https://api.github.com"

// acceptFull asks the API to render body_html, which carries signed URLs
// for private user-attachments.
const acceptFull = "application/vnd.github.full+json"

// Client talks to one repository with a personal access token.
// All label operations it exposes satisfy the state machine's Store
// interface, so the lifecycle code never sees HTTP.
type Client struct {
	owner      string
	repo       string
	token      string
	base       string
	httpClient *http.Client
	limiter    *rate.Limiter
	username   string // cached after first AuthenticatedUser call
}

// NewClient creates a client for owner/repo authenticated with token.
// Requests are rate-limited client-side; the poll loop plus hook handling
// can otherwise burst well past GitHub's secondary limits.
func NewClient(owner, repo, token string) *Client {
	return &Client{
		owner: owner,
		repo:  repo,
		token: token,
		base:  apiBase,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// apiError carries the HTTP status so callers can distinguish "label was
// already gone" from real failures without string matching.
type apiError struct {
	endpoint string
	status   int
	body     string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("GitHub API %s returned %d: %s", e.endpoint, e.status, e.body)
}

// statusOf returns the HTTP status behind err, or 0 if err is not an API
// error.
func statusOf(err error) int {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.status
	}
	return 0
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, result any, accept string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request for %s: %w", endpoint, err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+endpoint, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if accept == "" {
		accept = "application/vnd.github+json"
	}
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apiError{endpoint: endpoint, status: resp.StatusCode, body: string(raw)}
	}
	if result == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

func (c *Client) get(ctx context.Context, endpoint string, result any) error {
	return c.do(ctx, http.MethodGet, endpoint, nil, result, "")
}

// issue is the wire shape of a GitHub issue, reduced to what deckhand reads.
type issue struct {
	Number  int64  `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
	Labels  []struct {
		Name string `json:"name"`
	} `json:"labels"`
	// Present only when the "issue" is actually a pull request.
	PullRequest *struct{} `json:"pull_request,omitempty"`
	BodyHTML    string    `json:"body_html,omitempty"`
}

func (i *issue) toJob() types.Job {
	labels := make([]string, 0, len(i.Labels))
	for _, l := range i.Labels {
		labels = append(labels, l.Name)
	}
	return types.Job{
		Number:  i.Number,
		Title:   i.Title,
		Body:    i.Body,
		HTMLURL: i.HTMLURL,
		Labels:  labels,
	}
}

// AuthenticatedUser returns the login of the token's user, cached after
// the first call. The login goes into branch names.
func (c *Client) AuthenticatedUser(ctx context.Context) (string, error) {
	if c.username != "" {
		return c.username, nil
	}
	var user struct {
		Login string `json:"login"`
	}
	if err := c.get(ctx, "/user", &user); err != nil {
		return "", fmt.Errorf("get authenticated user: %w", err)
	}
	c.username = user.Login
	return c.username, nil
}

// VerifyAccess confirms the token can see the repository. Called once at
// startup; failure means no useful work can proceed.
func (c *Client) VerifyAccess(ctx context.Context) error {
	endpoint := fmt.Sprintf("/repos/%s/%s", c.owner, c.repo)
	if err := c.get(ctx, endpoint, &struct{}{}); err != nil {
		return fmt.Errorf("cannot access repository %s/%s (check that it exists and the token has repo scope): %w", c.owner, c.repo, err)
	}
	return nil
}

// GetJob fetches a single issue.
func (c *Client) GetJob(ctx context.Context, number int64) (*types.Job, error) {
	var raw issue
	endpoint := fmt.Sprintf("/repos/%s/%s/issues/%d", c.owner, c.repo, number)
	if err := c.get(ctx, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("get issue #%d: %w", number, err)
	}
	job := raw.toJob()
	return &job, nil
}

// GetJobBodyHTML fetches the rendered HTML body of an issue. Private
// attachment URLs in the raw body 404 under token auth; the rendered body
// substitutes signed URLs that do download.
func (c *Client) GetJobBodyHTML(ctx context.Context, number int64) (string, error) {
	var raw issue
	endpoint := fmt.Sprintf("/repos/%s/%s/issues/%d", c.owner, c.repo, number)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &raw, acceptFull); err != nil {
		return "", fmt.Errorf("get issue #%d body_html: %w", number, err)
	}
	return raw.BodyHTML, nil
}

// ListJobsWithLabel returns all open issues carrying the given label.
// Pull requests come back from the same endpoint and are filtered out.
// One page of 100 is deliberate: the daemon manages a handful of jobs per
// host, far below a page.
func (c *Client) ListJobsWithLabel(ctx context.Context, label string) ([]types.Job, error) {
	var raw []issue
	endpoint := fmt.Sprintf("/repos/%s/%s/issues?labels=%s&state=open&per_page=100",
		c.owner, c.repo, url.QueryEscape(label))
	if err := c.get(ctx, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("list issues with label %q: %w", label, err)
	}

	jobs := make([]types.Job, 0, len(raw))
	for i := range raw {
		if raw[i].PullRequest != nil {
			continue
		}
		jobs = append(jobs, raw[i].toJob())
	}
	return jobs, nil
}

// GetLabels returns the label names currently on an issue.
func (c *Client) GetLabels(ctx context.Context, job int64) ([]string, error) {
	var raw []struct {
		Name string `json:"name"`
	}
	endpoint := fmt.Sprintf("/repos/%s/%s/issues/%d/labels?per_page=100", c.owner, c.repo, job)
	if err := c.get(ctx, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("get labels for issue #%d: %w", job, err)
	}
	labels := make([]string, 0, len(raw))
	for _, l := range raw {
		labels = append(labels, l.Name)
	}
	return labels, nil
}

// AddLabel adds a label to an issue. GitHub creates the label definition
// on first use, so no separate ensure step exists.
func (c *Client) AddLabel(ctx context.Context, job int64, label string) error {
	endpoint := fmt.Sprintf("/repos/%s/%s/issues/%d/labels", c.owner, c.repo, job)
	body := map[string][]string{"labels": {label}}
	if err := c.do(ctx, http.MethodPost, endpoint, body, nil, ""); err != nil {
		return fmt.Errorf("add label %q to issue #%d: %w", label, job, err)
	}
	return nil
}

// RemoveLabel removes a label from an issue. A 404 means the label was
// already absent, which replace-label semantics treat as success.
func (c *Client) RemoveLabel(ctx context.Context, job int64, label string) error {
	endpoint := fmt.Sprintf("/repos/%s/%s/issues/%d/labels/%s", c.owner, c.repo, job, url.PathEscape(label))
	err := c.do(ctx, http.MethodDelete, endpoint, nil, nil, "")
	if err != nil && statusOf(err) == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove label %q from issue #%d: %w", label, job, err)
	}
	return nil
}
