package source

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// Nitter searches posts through a Nitter instance's per-account RSS feed.
// It has no API quota of its own, but instances answer 429 when throttled.
type Nitter struct {
	client    *http.Client
	parser    *gofeed.Parser
	nitterURL string
}

// NewNitter creates a Nitter RSS searcher.
func NewNitter(nitterURL string) *Nitter {
	if nitterURL == "" {
		nitterURL = "https://nitter.net"
	}
	return &Nitter{
		client:    &http.Client{Timeout: 30 * time.Second},
		parser:    gofeed.NewParser(),
		nitterURL: strings.TrimRight(nitterURL, "/"),
	}
}

func (n *Nitter) Name() string { return "nitter" }

func (n *Nitter) Search(ctx context.Context, handle string, w Window) ([]Post, error) {
	feedURL := fmt.Sprintf("%s/%s/rss", n.nitterURL, handle)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, transient(n.Name(), handle, fmt.Errorf("create nitter request: %w", err))
	}
	req.Header.Set("User-Agent", "birdle/1.0")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, transient(n.Name(), handle, fmt.Errorf("fetch nitter feed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, rateLimited(n.Name(), handle, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, transient(n.Name(), handle, fmt.Errorf("nitter status %d", resp.StatusCode))
	}

	feed, err := n.parser.Parse(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindDataIntegrity, Source: n.Name(), Handle: handle, Err: fmt.Errorf("parse nitter feed: %w", err)}
	}

	authorFull := feedAuthorName(feed.Title)
	var avatar string
	if feed.Image != nil {
		avatar = feed.Image.URL
	}

	var posts []Post
	for _, entry := range feed.Items {
		if entry.PublishedParsed == nil || !w.Contains(*entry.PublishedParsed) {
			continue
		}
		// Retweets and replies are prefixed by Nitter in the title.
		if strings.HasPrefix(entry.Title, "RT by ") || strings.HasPrefix(entry.Title, "R to @") {
			continue
		}

		if strings.Contains(entry.Description, "<blockquote") {
			// quoted post
			continue
		}

		id := statusID(entry.Link)
		if id == "" {
			id = statusID(entry.GUID)
		}
		if id == "" {
			continue
		}

		text, hasMedia, err := htmlToText(entry.Description)
		if err != nil {
			continue
		}

		posts = append(posts, Post{
			ID:               id,
			Text:             text,
			Author:           handle,
			AuthorFull:       authorFull,
			AuthorProfileURL: avatar,
			HasMedia:         hasMedia,
		})
	}

	return posts, nil
}

// feedAuthorName turns "Display Name / @handle" into "Display Name".
func feedAuthorName(title string) string {
	name, _, _ := strings.Cut(title, " / @")
	return strings.TrimSpace(name)
}

// statusID extracts 123 from https://nitter.net/handle/status/123#m. It
// returns "" when link carries no status path.
func statusID(link string) string {
	link, _, _ = strings.Cut(link, "#")
	dir, id := path.Split(strings.TrimRight(link, "/"))
	if id == "" || !strings.HasSuffix(dir, "/status/") {
		return ""
	}
	return id
}

// htmlToText flattens a Nitter description to plain text, keeping line
// breaks, and reports whether it carried images or video.
func htmlToText(html string) (string, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false, err
	}
	hasMedia := doc.Find("img, video").Length() > 0
	doc.Find("br").ReplaceWithHtml("\n")
	return strings.TrimSpace(doc.Text()), hasMedia, nil
}
