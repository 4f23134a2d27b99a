package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

var testWindow = Window{
	Start: time.Date(2024, 3, 9, 5, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 3, 10, 5, 0, 0, 0, time.UTC),
}

func TestSearchQuery(t *testing.T) {
	got := SearchQuery("nasa")
	want := "from:nasa -is:retweet -is:quote -is:reply -has:media"
	if got != want {
		t.Errorf("SearchQuery = %q, want %q", got, want)
	}
}

func TestTwitterSearchPaginates(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/2/tweets/search/recent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token123" {
			t.Errorf("Authorization = %q", got)
		}
		q := r.URL.Query()
		if q.Get("query") != SearchQuery("nasa") {
			t.Errorf("query = %q", q.Get("query"))
		}
		if q.Get("start_time") != "2024-03-09T05:00:00Z" || q.Get("end_time") != "2024-03-10T05:00:00Z" {
			t.Errorf("window = %s..%s", q.Get("start_time"), q.Get("end_time"))
		}

		w.Header().Set("Content-Type", "application/json")
		switch q.Get("next_token") {
		case "":
			fmt.Fprint(w, `{
				"data": [
					{"id": "1", "text": "first post", "author_id": "u1",
					 "public_metrics": {"like_count": 5, "retweet_count": 2, "quote_count": 1, "reply_count": 3}},
					{"id": "2", "text": "a poll", "author_id": "u1", "attachments": {"poll_ids": ["p9"]}}
				],
				"includes": {"users": [{"id": "u1", "name": "NASA", "username": "NASA", "profile_image_url": "https://img/nasa.jpg"}]},
				"meta": {"result_count": 2, "next_token": "page2"}
			}`)
		case "page2":
			fmt.Fprint(w, `{
				"data": [{"id": "3", "text": "third post", "author_id": "u1"}],
				"includes": {"users": [{"id": "u1", "name": "NASA", "username": "NASA"}]},
				"meta": {"result_count": 1}
			}`)
		default:
			t.Errorf("unexpected next_token %q", q.Get("next_token"))
		}
	}))
	defer srv.Close()

	posts, err := NewTwitter(srv.URL, "token123").Search(context.Background(), "nasa", testWindow)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if n := requests.Load(); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
	if len(posts) != 3 {
		t.Fatalf("got %d posts, want 3", len(posts))
	}

	first := posts[0]
	if first.ID != "1" || first.Author != "nasa" || first.AuthorFull != "NASA" || first.AuthorProfileURL != "https://img/nasa.jpg" {
		t.Errorf("first post = %+v", first)
	}
	if first.Likes != 5 || first.Retweets != 2 || first.Quotes != 1 || first.Replies != 3 {
		t.Errorf("metrics = %+v", first)
	}
	if len(posts[1].PollIDs) != 1 {
		t.Errorf("poll ids not carried: %+v", posts[1])
	}
}

func TestTwitterSearchStopsAtMaxPages(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		fmt.Fprintf(w, `{"data": [{"id": "%d", "text": "x"}], "meta": {"next_token": "more"}}`, n)
	}))
	defer srv.Close()

	tw := NewTwitter(srv.URL, "t")
	tw.maxPages = 3
	posts, err := tw.Search(context.Background(), "loop", testWindow)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if n := requests.Load(); n != 3 || len(posts) != 3 {
		t.Errorf("requests = %d, posts = %d, want 3 and 3", n, len(posts))
	}
}

func TestTwitterSearchErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind Kind
	}{
		{"rate limited", http.StatusTooManyRequests, `{}`, KindRateLimited},
		{"server error", http.StatusInternalServerError, `{}`, KindTransient},
		{"unauthorized", http.StatusUnauthorized, `{}`, KindTransient},
		{"malformed body", http.StatusOK, `{"data": [`, KindDataIntegrity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewTwitter(srv.URL, "t").Search(context.Background(), "nasa", testWindow)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := KindOf(err); got != tt.wantKind {
				t.Errorf("kind = %v, want %v (%v)", got, tt.wantKind, err)
			}
			var se *Error
			if !errors.As(err, &se) || se.Handle != "nasa" || se.Source != "twitter" {
				t.Errorf("error = %#v", err)
			}
		})
	}
}

func TestTwitterSearchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewTwitter(url, "t").Search(context.Background(), "nasa", testWindow)
	if KindOf(err) != KindTransient {
		t.Errorf("kind = %v, want transient", KindOf(err))
	}
}
