// Package extract turns unstructured news text into a structured
// sighting candidate by calling an OpenAI-compatible chat completions
// endpoint.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultEndpoint points to a local OpenAI-compatible endpoint.
	DefaultEndpoint = "http://127.0.0.1:8845/v1"

	defaultTimeout    = 60 * time.Second
	maxResponseBytes  = 1 << 20
	requestMaxTokens  = 300
	temperatureForJob = 0.0
)

// jsonBlock pulls the first JSON object out of a model reply that may
// be wrapped in prose or a code fence.
var jsonBlock = regexp.MustCompile(`(?s)\{.*\}`)

// Result is the structured judgment for one piece of text. IsSighting
// false means the text is not about a bear sighting at all; the caller
// drops the item without further processing.
type Result struct {
	Prefecture string `json:"prefecture"`
	City       string `json:"city"`
	Locality   string `json:"location"`
	Summary    string `json:"summary"`
	Date       string `json:"date"`
	IsSighting bool   `json:"is_bear_sighting"`
}

// Client calls a chat-completions endpoint for extraction.
type Client struct {
	endpointURL string
	model       string
	apiKey      string
	httpClient  *http.Client
}

// Options controls Client construction.
type Options struct {
	Endpoint   string
	Model      string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func NewClient(opts Options) *Client {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		endpointURL: chatCompletionsURL(endpoint),
		model:       strings.TrimSpace(opts.Model),
		apiKey:      strings.TrimSpace(opts.APIKey),
		httpClient:  httpClient,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Extract asks the model whether the title (plus optional article text)
// describes a bear sighting and, if so, where.
func (c *Client) Extract(ctx context.Context, title, bodyText string) (Result, error) {
	if c == nil {
		return Result{}, fmt.Errorf("extract client is nil")
	}
	trimmedTitle := strings.TrimSpace(title)
	if trimmedTitle == "" {
		return Result{}, fmt.Errorf("title is required")
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: buildPrompt(trimmedTitle, bodyText)},
		},
		MaxTokens:   requestMaxTokens,
		Temperature: temperatureForJob,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("call extractor: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("extractor status %d: %s", resp.StatusCode, truncateForError(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return Result{}, fmt.Errorf("extractor error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, fmt.Errorf("extractor returned no choices")
	}

	return parseResult(parsed.Choices[0].Message.Content)
}

func buildPrompt(title, bodyText string) string {
	var b strings.Builder
	b.WriteString("以下のニュースから熊の出没情報を抽出してください。\n\n")
	b.WriteString("タイトル: ")
	b.WriteString(title)
	b.WriteString("\n")
	if text := strings.TrimSpace(bodyText); text != "" {
		b.WriteString("\n本文:\n")
		b.WriteString(text)
		b.WriteString("\n")
	}
	b.WriteString(`
以下のJSON形式で出力してください（日本語で）：
{
  "prefecture": "都道府県名（例：秋田県）",
  "city": "市区町村名（例：秋田市）",
  "location": "詳細な地名（例：雄和地区）。不明な場合は空文字",
  "summary": "出没情報の要約（50文字以内）",
  "date": "YYYY-MM-DD形式の日付。記事から推測。不明なら空文字",
  "is_bear_sighting": true または false（熊出没に関する情報かどうか）
}

熊の出没情報でない場合は is_bear_sighting を false にしてください。
JSONのみを出力し、他の文章は含めないでください。`)
	return b.String()
}

func parseResult(content string) (Result, error) {
	match := jsonBlock.FindString(content)
	if match == "" {
		return Result{}, fmt.Errorf("no JSON object in extractor reply")
	}

	var result Result
	if err := json.Unmarshal([]byte(match), &result); err != nil {
		return Result{}, fmt.Errorf("decode extractor JSON: %w", err)
	}
	return result, nil
}

func chatCompletionsURL(endpoint string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if trimmed == "" {
		trimmed = DefaultEndpoint
	}
	if strings.HasSuffix(trimmed, "/chat/completions") {
		return trimmed
	}
	if u, err := url.Parse(trimmed); err == nil && strings.HasSuffix(strings.TrimRight(u.Path, "/"), "/v1") {
		return trimmed + "/chat/completions"
	}
	return trimmed + "/v1/chat/completions"
}

func truncateForError(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
