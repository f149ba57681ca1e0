// Package notify pushes run results to a Slack incoming webhook.
// Notification is fire-and-forget: a failed post is logged and
// swallowed, never a pipeline error.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tanalabo/kumacollect/internal/sighting"
)

const (
	defaultTimeout = 10 * time.Second

	// maxHighlights bounds the per-sighting list in the message body.
	maxHighlights = 5

	colorNewSightings = "#FF6B6B"
)

// Slack posts to one incoming webhook.
type Slack struct {
	webhookURL string
	mapURL     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// SlackOptions controls Slack construction.
type SlackOptions struct {
	WebhookURL string
	MapURL     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

func NewSlack(opts SlackOptions) *Slack {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Slack{
		webhookURL: strings.TrimSpace(opts.WebhookURL),
		mapURL:     strings.TrimSpace(opts.MapURL),
		httpClient: httpClient,
		logger:     opts.Logger,
	}
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Fields []slackField `json:"fields"`
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

// NewSightings announces how many new rows the execution added,
// listing up to a handful of them. A zero count or an unconfigured
// webhook sends nothing.
func (s *Slack) NewSightings(ctx context.Context, count int, highlights []sighting.Record) {
	if s == nil || s.webhookURL == "" || count == 0 {
		return
	}

	fields := []slackField{}
	if lines := highlightLines(highlights); lines != "" {
		fields = append(fields, slackField{Title: "新規出没情報", Value: lines})
	}
	if s.mapURL != "" {
		fields = append(fields, slackField{
			Title: "確認",
			Value: fmt.Sprintf("<%s|熊出没マップで確認>", s.mapURL),
		})
	}

	message := slackMessage{
		Text: fmt.Sprintf("🐻 熊出没情報: %d件の新しい情報を追加しました", count),
		Attachments: []slackAttachment{
			{Color: colorNewSightings, Fields: fields},
		},
	}

	if err := s.post(ctx, message); err != nil {
		s.logger.Warn().Err(err).Msg("slack notification failed")
		return
	}
	s.logger.Info().Int("count", count).Msg("slack notification sent")
}

func (s *Slack) post(ctx context.Context, message slackMessage) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

func highlightLines(highlights []sighting.Record) string {
	if len(highlights) > maxHighlights {
		highlights = highlights[:maxHighlights]
	}
	lines := make([]string, 0, len(highlights))
	for _, r := range highlights {
		place := strings.TrimSpace(r.Prefecture + " " + r.City)
		lines = append(lines, fmt.Sprintf("• %s: %s", place, r.Summary))
	}
	return strings.Join(lines, "\n")
}
