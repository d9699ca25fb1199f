// Package validation replays the reference documents against a deployed
// analysis service and checks the scores against release thresholds.
package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// DefaultTimeout bounds one analysis call; large reports take minutes.
	DefaultTimeout = 15 * time.Minute
	// ReportsPrefix is where the service expects the test reports.
	ReportsPrefix = "bucket/test_reports"

	analyzePath = "/api/analyze-document"
	bodySnippet = 200
)

// HTTPError is a non-2xx answer from the service.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error: %d - %s", e.Status, e.Body)
}

// Response holds the fields validation reads from an analysis.
type Response struct {
	Summary        string
	Category       string
	ExtractedCount int
}

// Client calls the analysis endpoint.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: DefaultTimeout},
	}
}

// Analyze posts one document and reads the summary, category and number of
// extracted points from the answer.
func (c *Client) Analyze(ctx context.Context, filePath, documentID string) (Response, error) {
	payload, err := json.Marshal(map[string]string{
		"file_path":   filePath,
		"document_id": documentID,
	})
	if err != nil {
		return Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+analyzePath, bytes.NewReader(payload))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("could not reach analysis service at %s: %w", c.BaseURL, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := []rune(string(body))
		if len(snippet) > bodySnippet {
			snippet = snippet[:bodySnippet]
		}
		return Response{}, &HTTPError{Status: resp.StatusCode, Body: string(snippet)}
	}
	if !gjson.ValidBytes(body) {
		return Response{}, fmt.Errorf("analysis service returned invalid JSON")
	}
	fields := gjson.GetManyBytes(body, "summary.textual_summary", "category.name", "extracted_data.#")
	return Response{
		Summary:        fields[0].String(),
		Category:       fields[1].String(),
		ExtractedCount: int(fields[2].Int()),
	}, nil
}
