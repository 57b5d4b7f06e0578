package app

import (
	"net/url"
	"strings"

	"github.com/charlesng35/blotter/pkg/mail"
)

// SMTPSettings converts the email section to the mailer settings. Without an
// explicit sender, link emails go out as noreply@ on the portal's host.
func (c *Config) SMTPSettings() mail.SMTPSettings {
	smtp := c.Email.SMTP
	from := strings.TrimSpace(smtp.From)
	if from == "" {
		if u, err := url.Parse(strings.TrimSpace(c.Server.BaseURL)); err == nil && u.Hostname() != "" {
			from = "noreply@" + u.Hostname()
		}
	}
	return mail.SMTPSettings{
		Enabled:  smtp.Enabled,
		Host:     strings.TrimSpace(smtp.Host),
		Port:     smtp.Port,
		Username: smtp.Username,
		Password: smtp.Password,
		From:     from,
		UseTLS:   smtp.UseTLS,
		Timeout:  smtp.Timeout,
	}
}
