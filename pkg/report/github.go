package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v60/github"

	"github.com/cgast/prowrite/pkg/bench"
)

// Issue identifies a published report.
type Issue struct {
	Number int    `json:"number"`
	URL    string `json:"html_url"`
}

// Publisher posts reports as GitHub issues.
type Publisher struct {
	client *gh.Client
	labels []string
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher) error

// WithBaseURL points the publisher at another API root, such as GitHub
// Enterprise or a test server.
func WithBaseURL(raw string) PublisherOption {
	return func(p *Publisher) error {
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse base url: %w", err)
		}
		p.client.BaseURL = u
		return nil
	}
}

// WithLabels applies labels to every issue.
func WithLabels(labels ...string) PublisherOption {
	return func(p *Publisher) error {
		p.labels = append(p.labels, labels...)
		return nil
	}
}

// NewPublisher creates a publisher authenticated with token.
func NewPublisher(token string, opts ...PublisherOption) (*Publisher, error) {
	if token == "" {
		return nil, errors.New("github token is required")
	}
	httpClient := &http.Client{Transport: &tokenTransport{token: token}}
	p := &Publisher{client: gh.NewClient(httpClient)}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// tokenTransport adds Bearer token auth to HTTP requests.
type tokenTransport struct {
	token string
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return http.DefaultTransport.RoundTrip(req)
}

// ParseRepo splits "owner/name".
func ParseRepo(s string) (owner, name string, err error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo format %q, expected owner/name", s)
	}
	return parts[0], parts[1], nil
}

// IssueTitle is the title used for a published report.
func IssueTitle(r bench.SuiteReport) string {
	return fmt.Sprintf("ProWriteBench: %s scored %.2f (%d/%d tasks)", r.Model, r.Summary.Mean, r.Summary.Scored, r.Summary.Total)
}

// Publish opens an issue in repo with the markdown rendering of r.
func (p *Publisher) Publish(ctx context.Context, repo string, r bench.SuiteReport) (Issue, error) {
	owner, name, err := ParseRepo(repo)
	if err != nil {
		return Issue{}, err
	}
	body, err := Render(r, FormatMarkdown)
	if err != nil {
		return Issue{}, err
	}

	title := IssueTitle(r)
	req := &gh.IssueRequest{Title: &title, Body: &body}
	if len(p.labels) > 0 {
		labels := append([]string(nil), p.labels...)
		req.Labels = &labels
	}

	issue, _, err := p.client.Issues.Create(ctx, owner, name, req)
	if err != nil {
		return Issue{}, fmt.Errorf("create issue in %s: %w", repo, err)
	}
	return Issue{Number: issue.GetNumber(), URL: issue.GetHTMLURL()}, nil
}
