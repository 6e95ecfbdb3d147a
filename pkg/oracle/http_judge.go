package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cgast/prowrite/pkg/model"
)

// HTTPJudge posts {"prompt", "rubric"} to an external judge service and
// reads a verdict object back.
type HTTPJudge struct {
	endpoint   string
	httpClient *http.Client
	headers    map[string]string
}

// NewHTTPJudge creates a judge for endpoint. headers are sent with every
// request, typically for authorization.
func NewHTTPJudge(endpoint string, headers map[string]string) *HTTPJudge {
	return &HTTPJudge{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		headers:    headers,
	}
}

func (j *HTTPJudge) Name() string { return "http:" + j.endpoint }

type httpJudgeRequest struct {
	Prompt string `json:"prompt"`
	Rubric string `json:"rubric"`
}

// Judge implements Judge.
func (j *HTTPJudge) Judge(ctx context.Context, prompt, rubric string) (Verdict, error) {
	reqBody, err := json.Marshal(httpJudgeRequest{Prompt: prompt, Rubric: rubric})
	if err != nil {
		return Verdict{}, j.fail(0, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return Verdict{}, j.fail(0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range j.headers {
		req.Header.Set(k, v)
	}

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return Verdict{}, j.fail(0, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024)) // 10MB limit
	if err != nil {
		return Verdict{}, j.fail(resp.StatusCode, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Verdict{}, j.fail(resp.StatusCode, fmt.Errorf("unexpected status: %s", snippet(string(body))))
	}

	v, err := ParseVerdict(string(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("judge %s: %w", j.Name(), err)
	}
	v.Judge = j.Name()
	return v, nil
}

func (j *HTTPJudge) fail(status int, err error) error {
	return &model.ProviderError{
		Provider:   j.Name(),
		Op:         "judge",
		StatusCode: status,
		Timeout:    ctxDeadline(err),
		Err:        err,
	}
}
