package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// smtpClient is the slice of *smtp.Client a delivery needs.
type smtpClient interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

type dialFunc func(ctx context.Context, cfg SMTPSettings) (smtpClient, error)

func dialSMTP(ctx context.Context, cfg SMTPSettings) (smtpClient, error) {
	tlsConfig := &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}

	conn, err := openConn(ctx, cfg, tlsConfig)
	if err != nil {
		return nil, err
	}
	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp: greeting: %w", err)
	}
	if err := prepare(client, cfg, tlsConfig); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// openConn dials with implicit TLS when configured. The whole conversation
// shares ctx's deadline.
func openConn(ctx context.Context, cfg SMTPSettings, tlsConfig *tls.Config) (net.Conn, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	var d interface {
		DialContext(ctx context.Context, network, addr string) (net.Conn, error)
	} = &net.Dialer{}
	if cfg.UseTLS {
		d = &tls.Dialer{Config: tlsConfig}
	}

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("smtp: connect %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	return conn, nil
}

// prepare upgrades a plain connection with STARTTLS when offered, then
// authenticates if credentials are configured.
func prepare(client *smtp.Client, cfg SMTPSettings, tlsConfig *tls.Config) error {
	if !cfg.UseTLS {
		if offered, _ := client.Extension("STARTTLS"); offered {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("smtp: starttls: %w", err)
			}
		}
	}

	if strings.TrimSpace(cfg.Username) == "" {
		return nil
	}
	if offered, _ := client.Extension("AUTH"); !offered {
		return errors.New("smtp: credentials configured but server offers no AUTH")
	}
	if err := client.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
		return fmt.Errorf("smtp: auth: %w", err)
	}
	return nil
}
