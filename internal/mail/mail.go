// Package mail delivers outbound email over SMTP.
package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

var resetHTML = template.Must(template.New("reset").Parse(
	`<p>Someone asked to reset the password of this account.</p>` +
		`<p><a href="{{.Link}}">Choose a new password</a></p>` +
		`<p>The link expires at {{.Expires}}. If you did not ask for a reset, ignore this email.</p>`))

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender sends password reset links.
type SMTPSender struct {
	dialer   dialer
	from     string
	resetURL string
}

// NewSMTPSender dials host:port with the given credentials for every
// message.  resetURL is the page the link points at; the token is appended
// as the `token` query parameter.
func NewSMTPSender(host string, port int, user, pass, from, resetURL string) *SMTPSender {
	return &SMTPSender{
		dialer:   gomail.NewDialer(host, port, user, pass),
		from:     from,
		resetURL: resetURL,
	}
}

// SendPasswordReset mails the reset link for token to the given address.
func (s *SMTPSender) SendPasswordReset(to, token string, expiresAt time.Time) error {
	link, err := s.link(token)
	if err != nil {
		return err
	}
	expires := expiresAt.UTC().Format(time.RFC1123)
	var html bytes.Buffer
	if err := resetHTML.Execute(&html, struct{ Link, Expires string }{link, expires}); err != nil {
		return fmt.Errorf("mail: render reset email: %w", err)
	}
	m := gomail.NewMessage(gomail.SetEncoding(gomail.Unencoded))
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Reset your password")
	m.SetBody("text/plain", fmt.Sprintf(
		"Someone asked to reset the password of this account.\n\n"+
			"Open this link to choose a new password:\n%s\n\n"+
			"The link expires at %s. If you did not ask for a reset, ignore this email.\n",
		link, expires))
	m.AddAlternative("text/html", html.String())

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("mail: send reset to %s: %w", to, err)
	}
	return nil
}

func (s *SMTPSender) link(token string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(s.resetURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("mail: invalid reset url %q", s.resetURL)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
