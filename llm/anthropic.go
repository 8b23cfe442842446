package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
)

// messagesClient calls an Anthropic-compatible messages API.
type messagesClient struct {
	cfg    Config
	client *http.Client
}

func newMessagesClient(cfg Config) *messagesClient {
	return &messagesClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature"`
	Messages    []apiMessage `json:"messages"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

const classifyPrompt = `Analyze the similarity between these two contract clauses:

SECTION TEXT:
%s

LIBRARY CLAUSE:
%s

Provide:
1. A confidence score (0-1) for how well they match
2. Brief reasoning for the score
3. Suggested playbook position (preferred/fallback/unacceptable)
4. Risk assessment (low/medium/high)

Respond with a single JSON object:
{"confidence": 0.85, "reasoning": "...", "position": "preferred", "risk": "high"}`

// Classify asks the model to score a section against a library clause. The
// inputs are truncated to keep prompts bounded.
func (c *messagesClient) Classify(ctx context.Context, sectionText, clauseText string) (Opinion, error) {
	prompt := fmt.Sprintf(classifyPrompt, truncate(sectionText, 1000), truncate(clauseText, 1000))

	raw, err := c.Complete(ctx, prompt)
	if err != nil {
		return Opinion{}, err
	}

	var op Opinion
	if err := json.Unmarshal([]byte(stripCodeBlock(raw)), &op); err != nil {
		return Opinion{}, fmt.Errorf("parse opinion json: %w (raw: %s)", err, truncate(raw, 200))
	}
	op.Confidence = clamp01(op.Confidence)
	return op, nil
}

// Complete sends a single-turn prompt and returns the text response.
func (c *messagesClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(apiRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: 0.1,
		Messages:    []apiMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := c.cfg.Endpoint + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("messages api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("messages api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("model error: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	if len(apiResp.Content) == 0 {
		return "", fmt.Errorf("empty response from model")
	}
	return apiResp.Content[0].Text, nil
}

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// stripCodeBlock removes a surrounding markdown code fence, which models
// frequently add around JSON despite instructions.
func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
