package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tanalabo/kumacollect/internal/sighting"
)

func TestNewSightingsPostsMessage(t *testing.T) {
	t.Parallel()

	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	slack := NewSlack(SlackOptions{
		WebhookURL: server.URL,
		MapURL:     "https://kuma-map.netlify.app",
		HTTPClient: server.Client(),
		Logger:     zerolog.Nop(),
	})
	slack.NewSightings(context.Background(), 2, []sighting.Record{
		{Prefecture: "秋田県", City: "秋田市", Summary: "クマ1頭を目撃"},
		{Prefecture: "岩手県", City: "盛岡市", Summary: "親子グマを目撃"},
	})

	if body == nil {
		t.Fatalf("webhook was not called")
	}
	var msg map[string]any
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatalf("webhook body is not JSON: %v", err)
	}
	text, _ := msg["text"].(string)
	if !strings.Contains(text, "2件") {
		t.Fatalf("unexpected text: %q", text)
	}
	if !strings.Contains(string(body), "秋田県 秋田市") {
		t.Fatalf("highlights missing from body: %s", body)
	}
}

func TestNewSightingsSkipsZeroCount(t *testing.T) {
	t.Parallel()

	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	t.Cleanup(server.Close)

	slack := NewSlack(SlackOptions{WebhookURL: server.URL, HTTPClient: server.Client(), Logger: zerolog.Nop()})
	slack.NewSightings(context.Background(), 0, nil)
	if called {
		t.Fatalf("zero-count run must not notify")
	}
}

func TestNewSightingsSwallowsServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	slack := NewSlack(SlackOptions{WebhookURL: server.URL, HTTPClient: server.Client(), Logger: zerolog.Nop()})

	// Must not panic or surface an error.
	slack.NewSightings(context.Background(), 3, nil)
}

func TestNewSightingsUnconfiguredWebhook(t *testing.T) {
	t.Parallel()

	slack := NewSlack(SlackOptions{Logger: zerolog.Nop()})
	slack.NewSightings(context.Background(), 3, nil)
}

func TestHighlightLinesCapped(t *testing.T) {
	t.Parallel()

	var records []sighting.Record
	for i := 0; i < 8; i++ {
		records = append(records, sighting.Record{Prefecture: "秋田県", City: "秋田市", Summary: "目撃"})
	}
	lines := highlightLines(records)
	if got := strings.Count(lines, "\n") + 1; got != maxHighlights {
		t.Fatalf("got %d highlight lines, want %d", got, maxHighlights)
	}
}
