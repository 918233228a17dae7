package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yabodle/sitescan/internal/models"
)

const smsMaxProjects = 3

// TwilioConfig holds the SMS gateway credentials.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// TwilioSender delivers short alert summaries through the Twilio Messages
// API. Digests are capped at a few projects to stay within one segmented
// message.
type TwilioSender struct {
	cfg     TwilioConfig
	client  *http.Client
	baseURL string
}

func NewTwilioSender(cfg TwilioConfig) *TwilioSender {
	return &TwilioSender{
		cfg:     cfg,
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: "https://api.twilio.com",
	}
}

func (t *TwilioSender) Channel() string { return ChannelSMS }

func (t *TwilioSender) Send(ctx context.Context, user models.User, projects []*models.Project) error {
	body := renderSMS(projects)

	form := url.Values{}
	form.Set("To", user.Phone)
	form.Set("From", t.cfg.FromNumber)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, t.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("twilio request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("twilio status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

func renderSMS(projects []*models.Project) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SiteScan: %d new match", len(projects))
	if len(projects) != 1 {
		b.WriteString("es")
	}
	for i, p := range projects {
		if i == smsMaxProjects {
			fmt.Fprintf(&b, "\n...and %d more", len(projects)-smsMaxProjects)
			break
		}
		score := 0
		if p.MatchScore != nil {
			score = *p.MatchScore
		}
		title := p.Title
		if len(title) > 60 {
			title = title[:57] + "..."
		}
		fmt.Fprintf(&b, "\n[%d] %s", score, title)
	}
	return b.String()
}
