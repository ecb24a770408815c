package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pscheid92/hoodpulse/internal/domain"
	"golang.org/x/net/html/charset"
)

const maxBodyBytes = 5 << 20

var errDisallowed = errors.New("disallowed by robots.txt")

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Code  int
	After time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// RetryAfter returns the server-requested delay, if any.
func (e *StatusError) RetryAfter() time.Duration {
	return e.After
}

type Query struct {
	Neighborhood string
	City         string
}

func (q Query) String() string {
	return strings.TrimSpace(strings.TrimSpace(q.Neighborhood) + " " + strings.TrimSpace(q.City))
}

// SelectorSource scrapes one search results page per query.
type SelectorSource struct {
	cfg       SourceConfig
	client    *http.Client
	userAgent string
	robots    *robotsCache
}

func NewSelectorSource(cfg SourceConfig, client *http.Client, userAgent string, robots *robotsCache) *SelectorSource {
	return &SelectorSource{cfg: cfg, client: client, userAgent: userAgent, robots: robots}
}

func (s *SelectorSource) Name() string {
	return s.cfg.Name
}

// SearchURL fills the configured template with the escaped query.
func (s *SelectorSource) SearchURL(q Query) string {
	return strings.ReplaceAll(s.cfg.SearchURL, queryPlaceholder, url.QueryEscape(q.String()))
}

func (s *SelectorSource) Fetch(ctx context.Context, q Query) ([]domain.Post, error) {
	target, err := url.Parse(s.SearchURL(q))
	if err != nil {
		return nil, fmt.Errorf("invalid search url: %w", err)
	}
	if s.robots != nil && !s.robots.Allowed(ctx, target, s.userAgent) {
		return nil, fmt.Errorf("%s: %w", target.Path, errDisallowed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, After: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())}
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		body = io.LimitReader(resp.Body, maxBodyBytes)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return s.extract(doc, target), nil
}

func (s *SelectorSource) extract(doc *goquery.Document, base *url.URL) []domain.Post {
	sel := s.cfg.Selectors
	posts := make([]domain.Post, 0)

	doc.Find(sel.Item).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		title := selectText(item, sel.Title)
		content := selectText(item, sel.Content)
		if title == "" && content == "" {
			return true
		}

		posts = append(posts, domain.Post{
			Source:   s.cfg.Name,
			Title:    title,
			Content:  content,
			URL:      resolveLink(item, sel.Link, base),
			PostDate: parseDate(item, sel.Date, s.cfg.DateLayout),
			Metadata: map[string]string{"search_url": base.String()},
		})
		return len(posts) < s.cfg.MaxItems
	})
	return posts
}

func selectText(item *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(item.Find(selector).First().Text()), " ")
}

// resolveLink returns the absolute href of selector, or of the item itself when selector is empty.
func resolveLink(item *goquery.Selection, selector string, base *url.URL) string {
	node := item
	if selector != "" {
		node = item.Find(selector).First()
	}
	href, ok := node.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// parseDate prefers a datetime attribute over the element text.
func parseDate(item *goquery.Selection, selector, layout string) time.Time {
	if selector == "" {
		return time.Time{}
	}
	node := item.Find(selector).First()
	raw, ok := node.Attr("datetime")
	if !ok {
		raw = node.Text()
	}
	t, err := time.Parse(layout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
