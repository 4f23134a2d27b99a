package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type recordingNotifier struct {
	name string
	err  error
	got  []*Notification
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Send(ctx context.Context, n *Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func TestManagerBroadcast(t *testing.T) {
	ok := &recordingNotifier{name: "ok"}
	bad := &recordingNotifier{name: "bad", err: errors.New("down")}
	m := NewManager([]Notifier{bad, ok})

	err := m.Broadcast(context.Background(), &Notification{Job: "scrape", Text: "hello"})
	if err == nil {
		t.Fatal("expected joined error")
	}
	if len(ok.got) != 1 || len(bad.got) != 1 {
		t.Errorf("deliveries = %d/%d, want every notifier tried", len(ok.got), len(bad.got))
	}
}

func TestManagerNotify(t *testing.T) {
	var nilManager *Manager
	if nilManager.HasNotifiers() {
		t.Error("nil manager has no notifiers")
	}
	nilManager.Notify(context.Background(), "pick", "ignored")

	rec := &recordingNotifier{name: "rec", err: errors.New("fails quietly")}
	m := NewManager([]Notifier{rec})
	m.Notify(context.Background(), "pick", "picked puzzle 3_0")

	if len(rec.got) != 1 {
		t.Fatalf("got %d notifications", len(rec.got))
	}
	n := rec.got[0]
	if n.Job != "pick" || n.Text != "picked puzzle 3_0" || n.Time.IsZero() {
		t.Errorf("notification = %+v", n)
	}
}

func TestSMSSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/2010-04-01/Accounts/AC123/Messages.json" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			t.Errorf("basic auth = %q %q %v", user, pass, ok)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if r.PostForm.Get("To") != "+34600000000" || r.PostForm.Get("From") != "+15550000000" || r.PostForm.Get("Body") != "Day 3: scraping" {
			t.Errorf("form = %v", r.PostForm)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sms := NewSMS("AC123", "secret", "+15550000000", "+34600000000")
	sms.baseURL = srv.URL
	if err := sms.Send(context.Background(), &Notification{Job: "scrape", Text: "Day 3: scraping"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestSMSSendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sms := NewSMS("AC123", "wrong", "a", "b")
	sms.baseURL = srv.URL
	if err := sms.Send(context.Background(), &Notification{Text: "x"}); err == nil {
		t.Error("expected error on 401")
	}
}

func TestWebhookSigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if got, want := r.Header.Get("X-Signature-256"), "sha256="+Sign("s3cret", body); got != want {
			t.Errorf("signature = %q, want %q", got, want)
		}
		if r.Header.Get("X-Birdle-Job") != "solve" {
			t.Errorf("job header = %q", r.Header.Get("X-Birdle-Job"))
		}
		var n Notification
		if err := json.Unmarshal(body, &n); err != nil || n.Text != "Wrote 3 puzzles" {
			t.Errorf("payload = %s (%v)", body, err)
		}
	}))
	defer srv.Close()

	n := &Notification{Job: "solve", Text: "Wrote 3 puzzles", Time: time.Now().UTC()}
	if err := NewWebhook(srv.URL, "s3cret").Send(context.Background(), n); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestChatWebhooks(t *testing.T) {
	tests := []struct {
		name     string
		notifier func(url string) Notifier
		field    func(map[string]any) any
	}{
		{
			name:     "slack",
			notifier: func(url string) Notifier { return NewSlack(url) },
			field:    func(m map[string]any) any { return m["text"] },
		},
		{
			name:     "discord",
			notifier: func(url string) Notifier { return NewDiscord(url) },
			field: func(m map[string]any) any {
				embeds, _ := m["embeds"].([]any)
				if len(embeds) == 0 {
					return nil
				}
				return embeds[0].(map[string]any)["description"]
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payload map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&payload)
			}))
			defer srv.Close()

			n := &Notification{Job: "pick", Text: "automatically picked puzzle 2_0", Time: time.Now()}
			if err := tt.notifier(srv.URL).Send(context.Background(), n); err != nil {
				t.Fatalf("Send: %v", err)
			}
			if got := tt.field(payload); got != n.Text {
				t.Errorf("text = %v, want %q", got, n.Text)
			}
		})
	}
}
