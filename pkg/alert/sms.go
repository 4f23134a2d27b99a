package alert

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTwilioURL = "https://api.twilio.com"

// SMS sends notifications as text messages through the Twilio REST API.
type SMS struct {
	client     *http.Client
	baseURL    string
	accountSID string
	token      string
	from       string
	to         string
}

// NewSMS creates a Twilio SMS notifier.
func NewSMS(accountSID, token, from, to string) *SMS {
	return &SMS{
		client:     &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultTwilioURL,
		accountSID: accountSID,
		token:      token,
		from:       from,
		to:         to,
	}
}

func (s *SMS) Name() string { return "sms" }

func (s *SMS) Send(ctx context.Context, n *Notification) error {
	form := url.Values{}
	form.Set("To", s.to)
	form.Set("From", s.from)
	form.Set("Body", n.Text)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create sms request: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms status %d", resp.StatusCode)
	}
	return nil
}
