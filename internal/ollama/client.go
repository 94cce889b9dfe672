// Package ollama is a minimal client for a local Ollama daemon, used for
// optional narrative summaries and category suggestions. Everything here
// is best-effort: callers fall back to heuristics when the daemon is
// missing, slow, or returns junk.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vthunder/hourglass/internal/netguard"
)

// Client talks to one Ollama daemon.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewClient creates a client for the given model. The HTTP transport
// dials through the network policy, so no-network mode still reaches the
// local daemon but nothing else.
func NewClient(baseURL, model string, policy *netguard.Policy, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.1:8b"
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		model:   model,
		client:  policy.HTTPClient(timeout),
	}
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Available reports whether the daemon answers and has the configured
// model pulled.
func (c *Client) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}
	for _, m := range tags.Models {
		if m.Name == c.model || strings.HasPrefix(m.Name, c.model+":") {
			return true
		}
	}
	return false
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("empty prompt")
	}
	jsonBody, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(body))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return result.Response, nil
}

type narrativeJSON struct {
	Narrative   string   `json:"narrative"`
	Suggestions []string `json:"suggestions"`
}

// Summarize asks the model for a short narrative and suggestions about a
// plain-text time summary. Satisfies the aggregator's Summarizer
// interface.
func (c *Client) Summarize(ctx context.Context, input string) (string, []string, error) {
	prompt := `You summarize personal time-tracking data. Given the data below, write a short second-person narrative (2-3 sentences) and exactly 3 practical suggestions.

Respond with ONLY a JSON object shaped like:
{"narrative": "...", "suggestions": ["...", "...", "..."]}

Data:
` + input

	raw, err := c.generate(ctx, prompt)
	if err != nil {
		return "", nil, err
	}
	var parsed narrativeJSON
	if err := json.Unmarshal(extractJSON(raw), &parsed); err != nil {
		return "", nil, fmt.Errorf("parse narrative response: %w", err)
	}
	return parsed.Narrative, parsed.Suggestions, nil
}

// ClassifyCategory asks the model to pick the best category for an
// activity. Returns "" when the answer is not one of the offered
// categories.
func (c *Client) ClassifyCategory(ctx context.Context, activity, notes string, categories []string) (string, error) {
	prompt := fmt.Sprintf(`Pick the single best category for this activity. Answer with the category name only, nothing else.

Categories: %s
Activity: %s
Notes: %s
Category:`, strings.Join(categories, ", "), activity, notes)

	raw, err := c.generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(strings.Trim(raw, "\"' \n"))
	for _, cat := range categories {
		if strings.EqualFold(answer, cat) {
			return cat, nil
		}
	}
	return "", nil
}

// extractJSON pulls the first-brace-to-last-brace slice out of a model
// response, tolerating prose wrappers around the JSON.
func extractJSON(s string) []byte {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return []byte(s)
	}
	return []byte(s[start : end+1])
}
