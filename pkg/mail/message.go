package mail

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
)

// buildMessage renders headers and body with CRLF line endings. Bodies are
// quoted-printable so long URLs never exceed SMTP line limits.
func buildMessage(env envelope, msg Message, now time.Time) ([]byte, error) {
	var buf bytes.Buffer

	to := make([]string, len(env.to))
	for i, addr := range env.to {
		to[i] = addr.String()
	}

	header := func(key, value string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", key, value)
	}
	header("From", env.from.String())
	header("To", strings.Join(to, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", singleLine(msg.Subject)))
	header("Date", now.Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), messageIDDomain(env.from)))
	header("MIME-Version", "1.0")

	if strings.TrimSpace(msg.HTMLBody) == "" {
		header("Content-Type", "text/plain; charset=UTF-8")
		header("Content-Transfer-Encoding", "quoted-printable")
		buf.WriteString("\r\n")
		if err := writeQuoted(&buf, msg.Body); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	var parts bytes.Buffer
	mw := multipart.NewWriter(&parts)
	header("Content-Type", mime.FormatMediaType("multipart/alternative", map[string]string{"boundary": mw.Boundary()}))
	buf.WriteString("\r\n")

	// Plain first: clients render the last alternative they understand.
	for _, part := range []struct{ mediaType, body string }{
		{"text/plain; charset=UTF-8", msg.Body},
		{"text/html; charset=UTF-8", msg.HTMLBody},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.mediaType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, fmt.Errorf("smtp: create part: %w", err)
		}
		if err := writeQuoted(w, part.body); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("smtp: close multipart: %w", err)
	}
	buf.Write(parts.Bytes())
	return buf.Bytes(), nil
}

func writeQuoted(w io.Writer, body string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(body)); err != nil {
		return fmt.Errorf("smtp: encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return fmt.Errorf("smtp: encode body: %w", err)
	}
	return nil
}

func messageIDDomain(from *mail.Address) string {
	if from != nil {
		if at := strings.LastIndex(from.Address, "@"); at >= 0 && at < len(from.Address)-1 {
			return from.Address[at+1:]
		}
	}
	return "blotter.local"
}

// singleLine folds CR and LF into spaces so a subject cannot inject headers.
func singleLine(value string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
}
