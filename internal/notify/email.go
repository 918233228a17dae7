package notify

import (
	"context"
	"fmt"
	"html"
	"net/smtp"
	"strings"

	"github.com/yabodle/sitescan/internal/models"
)

// SMTPConfig holds the mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailSender delivers alert digests over SMTP as a small HTML table.
type EmailSender struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailSender(cfg SMTPConfig) *EmailSender {
	return &EmailSender{cfg: cfg, send: smtp.SendMail}
}

func (e *EmailSender) Channel() string { return ChannelEmail }

func (e *EmailSender) Send(ctx context.Context, user models.User, projects []*models.Project) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := fmt.Sprintf("SiteScan: %d new project match", len(projects))
	if len(projects) != 1 {
		subject += "es"
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", user.Email)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.WriteString(renderDigest(projects))

	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}
	return e.send(addr, auth, e.cfg.From, []string{user.Email}, []byte(msg.String()))
}

func renderDigest(projects []*models.Project) string {
	var b strings.Builder
	b.WriteString("<h2>New project matches</h2>")
	b.WriteString("<table border=\"1\" cellpadding=\"6\" cellspacing=\"0\">")
	b.WriteString("<tr><th>Score</th><th>Title</th><th>Agency</th><th>Location</th><th>Due</th></tr>")
	for _, p := range projects {
		score := "-"
		if p.MatchScore != nil {
			score = fmt.Sprintf("%d", *p.MatchScore)
		}
		due := "-"
		if p.DueDate != nil {
			due = p.DueDate.Format("Jan 2, 2006")
		}
		title := html.EscapeString(p.Title)
		if p.SourceURL != "" {
			title = fmt.Sprintf("<a href=%q>%s</a>", p.SourceURL, title)
		}
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>",
			score, title, html.EscapeString(p.Agency), html.EscapeString(p.Location), due)
	}
	b.WriteString("</table>")
	return b.String()
}
