package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// postNamespace scopes derived post IDs so they never collide with IDs minted elsewhere.
var postNamespace = uuid.MustParse("6f2c1c8e-3b7a-4e59-9a51-0d7f4f1f6a12")

// Post is a single crawled item. Posts are append-only.
type Post struct {
	ID           string            `json:"id"`
	Neighborhood string            `json:"neighborhood"`
	Source       string            `json:"source"`
	Title        string            `json:"title"`
	Content      string            `json:"content"`
	URL          string            `json:"url"`
	PostDate     time.Time         `json:"post_date"`
	CrawlDate    time.Time         `json:"crawl_date"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Text returns the title and content joined for analysis.
func (p Post) Text() string {
	return strings.TrimSpace(p.Title + " " + p.Content)
}

// PostID derives a stable ID from a post's origin, so re-crawling the same
// item yields the same row.
func PostID(source, url, title string) string {
	return uuid.NewSHA1(postNamespace, []byte(source+"|"+url+"|"+title)).String()
}

// EnsureID fills in a derived ID when the crawler did not supply one.
func (p *Post) EnsureID() {
	if p.ID == "" {
		p.ID = PostID(p.Source, p.URL, p.Title)
	}
}
