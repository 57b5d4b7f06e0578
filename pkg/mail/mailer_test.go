package mail

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	from    string
	rcpts   []string
	data    bytes.Buffer
	rcptErr error
	quit    bool
	closed  bool
}

func (f *fakeClient) Mail(from string) error { f.from = from; return nil }
func (f *fakeClient) Rcpt(to string) error {
	if f.rcptErr != nil {
		return f.rcptErr
	}
	f.rcpts = append(f.rcpts, to)
	return nil
}
func (f *fakeClient) Data() (io.WriteCloser, error) { return nopCloser{&f.data}, nil }
func (f *fakeClient) Quit() error                   { f.quit = true; return nil }
func (f *fakeClient) Close() error                  { f.closed = true; return nil }

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func newTestMailer(t *testing.T, client *fakeClient) *smtpMailer {
	t.Helper()
	m, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.brgy.example.ph",
		Port:    587,
		From:    "Blotter Desk <noreply@brgy.example.ph>",
	})
	require.NoError(t, err)
	sm := m.(*smtpMailer)
	sm.dial = func(ctx context.Context, cfg SMTPSettings) (smtpClient, error) {
		_, hasDeadline := ctx.Deadline()
		require.True(t, hasDeadline)
		return client, nil
	}
	sm.now = func() time.Time { return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC) }
	return sm
}

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	_, err := NewSMTPMailer(SMTPSettings{Enabled: true})
	require.ErrorContains(t, err, "host is required")

	_, err = NewSMTPMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com"})
	require.ErrorContains(t, err, "port is required")

	m, err := NewSMTPMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com", Port: 465, UseTLS: true})
	require.NoError(t, err)
	require.Equal(t, defaultSMTPTimeout, m.(*smtpMailer).cfg.Timeout)
}

func TestSendDisabled(t *testing.T) {
	m, err := NewSMTPMailer(SMTPSettings{})
	require.NoError(t, err)

	err = m.Send(context.Background(), Message{To: []string{"witness@example.com"}})
	require.ErrorIs(t, err, ErrSMTPDisabled)
}

func TestSendDeliversEnvelopeAndBody(t *testing.T) {
	client := &fakeClient{}
	m := newTestMailer(t, client)

	err := m.Send(context.Background(), Message{
		To:      []string{"Jane Witness <jane@example.com>", " JANE@example.com ", "kagawad@example.com"},
		Subject: "Evidence request for case 2025-0142",
		Body:    "Open: https://blotter.brgy.example.ph/guest/" + strings.Repeat("x", 120) + "\nPIN: 482913",
	})
	require.NoError(t, err)

	require.Equal(t, "noreply@brgy.example.ph", client.from)
	require.Equal(t, []string{"jane@example.com", "kagawad@example.com"}, client.rcpts)
	require.True(t, client.quit)
	require.True(t, client.closed)

	parsed, err := mail.ReadMessage(bytes.NewReader(client.data.Bytes()))
	require.NoError(t, err)
	require.Equal(t, "Sun, 01 Jun 2025 10:00:00 +0000", parsed.Header.Get("Date"))
	require.True(t, strings.HasSuffix(parsed.Header.Get("Message-ID"), "@brgy.example.ph>"))
	require.Equal(t, "quoted-printable", parsed.Header.Get("Content-Transfer-Encoding"))

	for _, line := range strings.Split(client.data.String(), "\r\n") {
		require.LessOrEqual(t, len(line), 998)
	}

	body, err := io.ReadAll(quotedprintable.NewReader(parsed.Body))
	require.NoError(t, err)
	require.Contains(t, string(body), "PIN: 482913")
	require.Contains(t, string(body), strings.Repeat("x", 120))
}

func TestSendStopsOnRecipientRejection(t *testing.T) {
	client := &fakeClient{rcptErr: errors.New("550 mailbox unavailable")}
	m := newTestMailer(t, client)

	err := m.Send(context.Background(), Message{To: []string{"gone@example.com"}, Body: "hi"})
	require.ErrorContains(t, err, "rcpt to gone@example.com")
	require.False(t, client.quit)
	require.True(t, client.closed)
}

func TestSendValidatesAddressesBeforeDialing(t *testing.T) {
	m, err := NewSMTPMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com", Port: 587})
	require.NoError(t, err)
	sm := m.(*smtpMailer)
	sm.dial = func(context.Context, SMTPSettings) (smtpClient, error) {
		t.Fatal("dial must not be reached")
		return nil, nil
	}

	err = sm.Send(context.Background(), Message{To: []string{"user@example.com"}})
	require.ErrorContains(t, err, "sender address is required")

	err = sm.Send(context.Background(), Message{From: "invalid-from", To: []string{"user@example.com"}})
	require.ErrorContains(t, err, "invalid from address")

	err = sm.Send(context.Background(), Message{From: "desk@example.com", To: []string{"user@example.com", "bad-address"}})
	require.ErrorContains(t, err, "invalid recipient address")

	err = sm.Send(context.Background(), Message{From: "desk@example.com", To: []string{" ", "\t"}})
	require.ErrorContains(t, err, "at least one recipient")
}

func TestBuildMessageEncodesHeaders(t *testing.T) {
	env := envelope{
		from: &mail.Address{Name: "Blotter", Address: "noreply@brgy.example.ph"},
		to:   []*mail.Address{{Address: "to@example.com"}},
	}
	raw, err := buildMessage(env, Message{Subject: "Evidence link for Peña\r\nBcc: attacker@example.com", Body: "Body"}, time.Now())
	require.NoError(t, err)

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Empty(t, parsed.Header.Get("Bcc"))
	require.NotContains(t, string(raw), "Peña")

	subject, err := new(mime.WordDecoder).DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	require.Equal(t, "Evidence link for Peña  Bcc: attacker@example.com", subject)
}

func TestBuildMessageAlternativeParts(t *testing.T) {
	env := envelope{
		from: &mail.Address{Address: "noreply@brgy.example.ph"},
		to:   []*mail.Address{{Address: "to@example.com"}},
	}
	raw, err := buildMessage(env, Message{Subject: "Upload link", Body: "plain body", HTMLBody: "<p>html body</p>"}, time.Now())
	require.NoError(t, err)

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)
	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/alternative", mediaType)

	reader := multipart.NewReader(parsed.Body, params["boundary"])
	var types, bodies []string
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(part)
		require.NoError(t, err)
		types = append(types, part.Header.Get("Content-Type"))
		bodies = append(bodies, string(data))
	}
	require.Equal(t, []string{"text/plain; charset=UTF-8", "text/html; charset=UTF-8"}, types)
	require.Equal(t, []string{"plain body", "<p>html body</p>"}, bodies)
}

func TestMessageIDDomain(t *testing.T) {
	require.Equal(t, "brgy.example.ph", messageIDDomain(&mail.Address{Address: "noreply@brgy.example.ph"}))
	require.Equal(t, "blotter.local", messageIDDomain(&mail.Address{Address: "noreply"}))
	require.Equal(t, "blotter.local", messageIDDomain(nil))
}
