// Package source holds the adapters that fetch raw sighting reports
// from the three upstream providers: the Google News RSS feed, the
// kumamap.com API, and the Akita prefecture open-data CSV.
package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultNewsFeedURL is the Google News RSS search endpoint; query
	// terms are appended per request.
	DefaultNewsFeedURL = "https://news.google.com/rss/search"

	// DefaultNewsQuery finds bear-encounter coverage.
	DefaultNewsQuery = "熊 出没"

	defaultNewsTimeout = 30 * time.Second
	maxFeedBytes       = 4 << 20
)

// bearKeywords filter out search hits that mention bears only in
// passing (store names, mascots). A title must contain one.
var bearKeywords = []string{"熊", "クマ"}

// NewsItem is one headline from the feed, before extraction.
type NewsItem struct {
	Title     string
	Link      string
	Published string
}

// NewsFeed fetches and filters the news RSS search feed.
type NewsFeed struct {
	baseURL    string
	httpClient *http.Client
}

// NewsFeedOptions controls NewsFeed construction.
type NewsFeedOptions struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func NewNewsFeed(opts NewsFeedOptions) *NewsFeed {
	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = DefaultNewsFeedURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultNewsTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &NewsFeed{baseURL: baseURL, httpClient: httpClient}
}

// rssRoot is the slice of RSS 2.0 this adapter reads.
type rssRoot struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
}

// Search fetches the feed for one query and returns up to limit items
// whose titles pass the bear-keyword filter.
func (f *NewsFeed) Search(ctx context.Context, query string, limit int) ([]NewsItem, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		q = DefaultNewsQuery
	}
	if limit <= 0 {
		limit = 10
	}

	requestURL := f.baseURL + "?q=" + url.QueryEscape(q) + "&hl=ja&gl=JP&ceid=JP:ja"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("news: build request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news: fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news: feed status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("news: read feed: %w", err)
	}

	return parseFeed(body, limit)
}

// SearchMonth runs a month-scoped query ("熊 出没 2025年6月") for the
// historical backfill.
func (f *NewsFeed) SearchMonth(ctx context.Context, year int, month time.Month, limit int) ([]NewsItem, error) {
	query := fmt.Sprintf("%s %d年%d月", DefaultNewsQuery, year, int(month))
	return f.Search(ctx, query, limit)
}

func parseFeed(data []byte, limit int) ([]NewsItem, error) {
	var root rssRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("news: parse rss: %w", err)
	}

	// Only the newest window of the feed is considered; the keyword
	// filter then runs within it, so a run returns at most limit items.
	feedItems := root.Channel.Items
	if len(feedItems) > limit {
		feedItems = feedItems[:limit]
	}

	items := make([]NewsItem, 0, len(feedItems))
	for _, item := range feedItems {
		title := strings.TrimSpace(item.Title)
		if !titleMentionsBear(title) {
			continue
		}
		items = append(items, NewsItem{
			Title:     title,
			Link:      strings.TrimSpace(item.Link),
			Published: strings.TrimSpace(item.PubDate),
		})
	}
	return items, nil
}

func titleMentionsBear(title string) bool {
	for _, keyword := range bearKeywords {
		if strings.Contains(title, keyword) {
			return true
		}
	}
	return false
}
