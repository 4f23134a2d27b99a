package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTwitterURL = "https://api.twitter.com"
	twitterPageSize   = 100
	twitterMaxPages   = 10
)

// Twitter searches original posts through the X/Twitter v2 recent search API.
type Twitter struct {
	client      *http.Client
	baseURL     string
	bearerToken string
	maxPages    int
}

// NewTwitter creates a v2 search client authenticated with an app bearer token.
func NewTwitter(baseURL, bearerToken string) *Twitter {
	if baseURL == "" {
		baseURL = defaultTwitterURL
	}
	return &Twitter{
		client:      &http.Client{Timeout: 30 * time.Second},
		baseURL:     strings.TrimRight(baseURL, "/"),
		bearerToken: bearerToken,
		maxPages:    twitterMaxPages,
	}
}

func (t *Twitter) Name() string { return "twitter" }

// Search pages through every post @handle published inside w, excluding
// retweets, quotes, replies and posts with media.
func (t *Twitter) Search(ctx context.Context, handle string, w Window) ([]Post, error) {
	var posts []Post
	next := ""

	for page := 0; page < t.maxPages; page++ {
		resp, err := t.fetchPage(ctx, handle, w, next)
		if err != nil {
			return nil, err
		}
		posts = append(posts, resp.posts(handle)...)

		next = resp.Meta.NextToken
		if next == "" {
			break
		}
	}

	return posts, nil
}

// SearchQuery builds the v2 query string for one author.
func SearchQuery(handle string) string {
	return fmt.Sprintf("from:%s -is:retweet -is:quote -is:reply -has:media", handle)
}

func (t *Twitter) fetchPage(ctx context.Context, handle string, w Window, next string) (*twitterSearchResponse, error) {
	params := url.Values{}
	params.Set("query", SearchQuery(handle))
	params.Set("start_time", w.Start.UTC().Format(time.RFC3339))
	params.Set("end_time", w.End.UTC().Format(time.RFC3339))
	params.Set("max_results", fmt.Sprint(twitterPageSize))
	params.Set("tweet.fields", "public_metrics,attachments")
	params.Set("expansions", "author_id,attachments.poll_ids")
	params.Set("user.fields", "username,name,profile_image_url")
	if next != "" {
		params.Set("next_token", next)
	}

	reqURL := t.baseURL + "/2/tweets/search/recent?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, transient(t.Name(), handle, fmt.Errorf("create search request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+t.bearerToken)
	req.Header.Set("User-Agent", "birdle/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, transient(t.Name(), handle, fmt.Errorf("search: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, rateLimited(t.Name(), handle, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, transient(t.Name(), handle, fmt.Errorf("search status %d", resp.StatusCode))
	}

	var out twitterSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &Error{Kind: KindDataIntegrity, Source: t.Name(), Handle: handle, Err: fmt.Errorf("decode search: %w", err)}
	}
	return &out, nil
}

type twitterSearchResponse struct {
	Data     []twitterTweet `json:"data"`
	Includes struct {
		Users []twitterUser `json:"users"`
	} `json:"includes"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

type twitterTweet struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	AuthorID      string `json:"author_id"`
	PublicMetrics *struct {
		LikeCount    int `json:"like_count"`
		RetweetCount int `json:"retweet_count"`
		QuoteCount   int `json:"quote_count"`
		ReplyCount   int `json:"reply_count"`
	} `json:"public_metrics"`
	Attachments *struct {
		PollIDs   []string `json:"poll_ids"`
		MediaKeys []string `json:"media_keys"`
	} `json:"attachments"`
}

type twitterUser struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url"`
}

// posts resolves author details from the users expansion and converts the page.
func (r *twitterSearchResponse) posts(handle string) []Post {
	var author twitterUser
	for _, u := range r.Includes.Users {
		if strings.EqualFold(u.Username, handle) {
			author = u
			break
		}
	}

	posts := make([]Post, 0, len(r.Data))
	for _, tw := range r.Data {
		p := Post{
			ID:               tw.ID,
			Text:             tw.Text,
			Author:           handle,
			AuthorFull:       author.Name,
			AuthorProfileURL: author.ProfileImageURL,
		}
		if m := tw.PublicMetrics; m != nil {
			p.Likes = m.LikeCount
			p.Retweets = m.RetweetCount
			p.Quotes = m.QuoteCount
			p.Replies = m.ReplyCount
		}
		if a := tw.Attachments; a != nil {
			p.PollIDs = a.PollIDs
			p.HasMedia = len(a.MediaKeys) > 0
		}
		posts = append(posts, p)
	}
	return posts
}
