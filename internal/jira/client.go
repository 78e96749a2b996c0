// Package jira is a minimal Jira Cloud REST v3 client covering exactly the
// calls the auto-close bot makes: search, changelog, assign, comment,
// transitions, and issue creation for error reports. Authentication is basic
// auth with an API token.
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// Config carries connection settings.
type Config struct {
	URL      string // e.g. https://yourcompany.atlassian.net
	Username string // bot account email
	APIToken string

	// RatePerSec caps outgoing API calls. Zero means 5.
	RatePerSec int
	// Timeout bounds each HTTP call. Zero means 30s.
	Timeout time.Duration
}

// Client talks to one Jira instance.
type Client struct {
	http *resty.Client
	lim  *rate.Limiter

	username string

	mu        sync.Mutex
	accountID string // cached resolution of username -> accountId
}

// New builds a Client. It performs no network I/O; use Myself to verify
// connectivity.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, errors.New("jira url is empty")
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	hc := resty.New().
		SetBaseURL(base+"/rest/api/3").
		SetBasicAuth(cfg.Username, cfg.APIToken).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)

	return &Client{
		http:     hc,
		lim:      rate.NewLimiter(rate.Limit(rps), rps),
		username: cfg.Username,
	}, nil
}

// Myself verifies credentials by fetching the authenticated user.
func (c *Client) Myself(ctx context.Context) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}
	var me userResult
	resp, err := req.SetResult(&me).Get("/myself")
	if err != nil {
		return fmt.Errorf("connect to jira: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return err
	}
	c.mu.Lock()
	c.accountID = me.AccountID
	c.mu.Unlock()
	return nil
}

// SearchIssues runs a JQL query and returns matching issues with key and
// summary populated.
func (c *Client) SearchIssues(ctx context.Context, jql string, maxResults int) ([]Issue, error) {
	if maxResults <= 0 {
		maxResults = 1000
	}
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	var out searchResponse
	resp, err := req.
		SetQueryParam("jql", jql).
		SetQueryParam("maxResults", strconv.Itoa(maxResults)).
		SetQueryParam("fields", "summary").
		SetResult(&out).
		Get("/search")
	if err != nil {
		return nil, fmt.Errorf("search issues: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return out.Issues, nil
}

// Changelog fetches the status-change history of an issue.
func (c *Client) Changelog(ctx context.Context, key string) (Changelog, error) {
	req, err := c.request(ctx)
	if err != nil {
		return Changelog{}, err
	}
	var out issueWithChangelog
	resp, err := req.
		SetQueryParam("expand", "changelog").
		SetQueryParam("fields", "summary").
		SetResult(&out).
		Get("/issue/" + key)
	if err != nil {
		return Changelog{}, fmt.Errorf("fetch changelog for %s: %w", key, err)
	}
	if err := checkStatus(resp); err != nil {
		return Changelog{}, err
	}
	return out.Changelog, nil
}

// AssignToSelf assigns an issue to the authenticated bot account.
func (c *Client) AssignToSelf(ctx context.Context, key string) error {
	id, err := c.resolveAccountID(ctx)
	if err != nil {
		return err
	}
	req, err := c.request(ctx)
	if err != nil {
		return err
	}
	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"accountId": id}).
		Put("/issue/" + key + "/assignee")
	if err != nil {
		return fmt.Errorf("assign %s: %w", key, err)
	}
	return checkStatus(resp)
}

// AddComment posts a plain-text comment wrapped in an Atlassian Document
// Format body, which is what REST v3 requires.
func (c *Client) AddComment(ctx context.Context, key, text string) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}
	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetBody(adfComment(text)).
		Post("/issue/" + key + "/comment")
	if err != nil {
		return fmt.Errorf("comment on %s: %w", key, err)
	}
	return checkStatus(resp)
}

// Transitions lists the workflow transitions currently available on an issue.
func (c *Client) Transitions(ctx context.Context, key string) ([]Transition, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	var out transitionsResponse
	resp, err := req.
		SetResult(&out).
		Get("/issue/" + key + "/transitions")
	if err != nil {
		return nil, fmt.Errorf("list transitions for %s: %w", key, err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return out.Transitions, nil
}

// DoTransition executes a workflow transition by id.
func (c *Client) DoTransition(ctx context.Context, key, transitionID string) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}
	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{"transition": map[string]string{"id": transitionID}}).
		Post("/issue/" + key + "/transitions")
	if err != nil {
		return fmt.Errorf("transition %s: %w", key, err)
	}
	return checkStatus(resp)
}

// CreateIssue creates an issue and returns its key. The description and
// environment are wrapped in ADF paragraphs.
func (c *Client) CreateIssue(ctx context.Context, in CreateIssueRequest) (string, error) {
	fields := map[string]any{
		"project":     map[string]string{"key": in.Project},
		"summary":     in.Summary,
		"issuetype":   map[string]string{"name": in.IssueType},
		"description": adfDoc(in.Description),
	}
	if in.Priority != "" {
		fields["priority"] = map[string]string{"name": in.Priority}
	}
	if len(in.Labels) > 0 {
		fields["labels"] = in.Labels
	}
	if in.Environment != "" {
		fields["environment"] = adfDoc(in.Environment)
	}

	req, err := c.request(ctx)
	if err != nil {
		return "", err
	}
	var out createIssueResponse
	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{"fields": fields}).
		SetResult(&out).
		Post("/issue")
	if err != nil {
		return "", fmt.Errorf("create issue: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return "", err
	}
	return out.Key, nil
}

func (c *Client) resolveAccountID(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.accountID != "" {
		id := c.accountID
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	req, err := c.request(ctx)
	if err != nil {
		return "", err
	}
	var users []userResult
	resp, err := req.
		SetQueryParam("query", c.username).
		SetResult(&users).
		Get("/user/search")
	if err != nil {
		return "", fmt.Errorf("resolve account id: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return "", err
	}
	if len(users) == 0 || users[0].AccountID == "" {
		return "", fmt.Errorf("no account found for %q", c.username)
	}

	c.mu.Lock()
	c.accountID = users[0].AccountID
	c.mu.Unlock()
	return users[0].AccountID, nil
}

// request applies the rate limiter and binds the context. A canceled context
// surfaces here instead of one layer down in the HTTP round trip.
func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	if err := c.lim.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return c.http.R().SetContext(ctx), nil
}

func checkStatus(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	var er errorResponse
	detail := ""
	if err := json.Unmarshal(resp.Body(), &er); err == nil {
		parts := append([]string(nil), er.ErrorMessages...)
		for k, v := range er.Errors {
			parts = append(parts, k+": "+v)
		}
		detail = strings.Join(parts, "; ")
	}
	if detail == "" {
		detail = strings.TrimSpace(string(resp.Body()))
	}
	if detail != "" {
		return fmt.Errorf("jira: %s %s: %s (%s)", resp.Request.Method, resp.Request.URL, resp.Status(), detail)
	}
	return fmt.Errorf("jira: %s %s: %s", resp.Request.Method, resp.Request.URL, resp.Status())
}

// adfDoc wraps plain text in a one-paragraph ADF document, which is what
// REST v3 requires for rich-text fields.
func adfDoc(text string) map[string]any {
	return map[string]any{
		"type":    "doc",
		"version": 1,
		"content": []any{
			map[string]any{
				"type": "paragraph",
				"content": []any{
					map[string]any{"type": "text", "text": text},
				},
			},
		},
	}
}

func adfComment(text string) map[string]any {
	return map[string]any{"body": adfDoc(text)}
}
