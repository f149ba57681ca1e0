package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func gsiResponse(lat, lng float64) []map[string]any {
	return []map[string]any{
		{
			"geometry": map[string]any{
				"type":        "Point",
				"coordinates": []float64{lng, lat},
			},
			"properties": map[string]any{"title": "秋田県秋田市"},
		},
	}
}

func newGSIStub(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Options{Endpoint: server.URL, HTTPClient: server.Client()})
}

func TestLookupUsesFirstCandidate(t *testing.T) {
	t.Parallel()

	client := newGSIStub(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "秋田県秋田市" {
			t.Errorf("unexpected query: %q", got)
		}
		writeJSON(w, append(gsiResponse(39.7186, 140.1024), gsiResponse(43.0, 141.35)...))
	})

	lat, lng, err := client.Lookup(context.Background(), "秋田県秋田市")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if lat != 39.7186 || lng != 140.1024 {
		t.Fatalf("unexpected coordinates: %v %v", lat, lng)
	}
}

func TestLookupEmptyResultIsNotFound(t *testing.T) {
	t.Parallel()

	client := newGSIStub(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []any{})
	})

	if _, _, err := client.Lookup(context.Background(), "存在しない地名"); err == nil {
		t.Fatalf("expected not-found error")
	}
}

func TestResolveFallsBackToCityQuery(t *testing.T) {
	t.Parallel()

	var queries []string
	client := newGSIStub(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		queries = append(queries, q)
		if q == "秋田県秋田市" {
			writeJSON(w, gsiResponse(39.7186, 140.1024))
			return
		}
		writeJSON(w, []any{})
	})

	lat, lng, ok := client.Resolve(context.Background(), "秋田県", "秋田市", "実在しない地区")
	if !ok {
		t.Fatalf("expected city-level fallback to resolve")
	}
	if lat != 39.7186 || lng != 140.1024 {
		t.Fatalf("unexpected coordinates: %v %v", lat, lng)
	}
	if len(queries) != 2 || queries[0] != "秋田県秋田市実在しない地区" || queries[1] != "秋田県秋田市" {
		t.Fatalf("unexpected query sequence: %q", queries)
	}
}

func TestResolveNoSecondAttemptWithoutLocality(t *testing.T) {
	t.Parallel()

	attempts := 0
	client := newGSIStub(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		writeJSON(w, []any{})
	})

	if _, _, ok := client.Resolve(context.Background(), "秋田県", "謎の市", ""); ok {
		t.Fatalf("expected resolution to fail")
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestResolveNeverQueriesPrefectureOnly(t *testing.T) {
	t.Parallel()

	attempts := 0
	client := newGSIStub(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if q := r.URL.Query().Get("q"); q == "秋田県" {
			t.Errorf("prefecture-only query issued: %q", q)
		}
		writeJSON(w, []any{})
	})

	if _, _, ok := client.Resolve(context.Background(), "秋田県", "", "山中の沢沿い"); ok {
		t.Fatalf("expected resolution to fail")
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestResolveServerErrorIsUnresolved(t *testing.T) {
	t.Parallel()

	client := newGSIStub(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	if _, _, ok := client.Resolve(context.Background(), "秋田県", "秋田市", ""); ok {
		t.Fatalf("server error must leave the record unresolved")
	}
}
