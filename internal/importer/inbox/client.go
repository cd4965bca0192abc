// Package inbox imports trip inquiries from an IMAP mailbox. Each message
// becomes one import record built from "Field: value" lines in its plain
// text body, with the sender filling in a missing name or e-mail.
package inbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/travel-crm/internal/importer"
	"github.com/nhle/travel-crm/internal/model"
)

// Message is the part of a fetched e-mail the importer uses.
type Message struct {
	UID      uint32
	Subject  string
	FromName string
	FromAddr string
	Date     time.Time
	TextBody string
}

// Source fetches recent inquiries over IMAP.
type Source struct {
	host     string
	port     string
	username string
	password string
	tls      bool
	mailbox  string
	since    time.Duration
	limit    int
}

// New creates an inbox source from configuration and the account password.
func New(cfg model.InboxConfig, password string) *Source {
	mailbox := cfg.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	days := cfg.SinceDays
	if days <= 0 {
		days = 7
	}
	return &Source{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: password,
		tls:      cfg.TLS,
		mailbox:  mailbox,
		since:    time.Duration(days) * 24 * time.Hour,
		limit:    200,
	}
}

// Kind returns importer.KindInbox.
func (s *Source) Kind() importer.Kind { return importer.KindInbox }

// Fetch returns one record per recent message.
func (s *Source) Fetch(ctx context.Context) ([]importer.Record, error) {
	msgs, err := s.FetchMessages(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]importer.Record, 0, len(msgs))
	for _, m := range msgs {
		records = append(records, RecordFromMessage(m))
	}
	return records, nil
}

// connect dials the server and logs in. The caller logs out.
func (s *Source) connect() (*imapclient.Client, error) {
	addr := s.host + ":" + s.port

	var client *imapclient.Client
	var err error
	if s.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(s.username, s.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &importer.AuthError{
			Kind:    importer.KindInbox,
			Message: fmt.Sprintf("authentication failed for %s: %v", s.username, err),
		}
	}

	return client, nil
}

// FetchMessages selects the mailbox, searches for messages newer than the
// configured window and returns them with their plain text bodies.
func (s *Source) FetchMessages(ctx context.Context) ([]Message, error) {
	client, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(s.mailbox, nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", s.mailbox, err)
	}

	searchData, err := client.UIDSearch(&imap.SearchCriteria{
		Since: time.Now().Add(-s.since),
	}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	if s.limit > 0 && len(uids) > s.limit {
		uids = uids[len(uids)-s.limit:]
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	var msgs []Message
	for {
		if ctx.Err() != nil {
			return msgs, ctx.Err()
		}
		next := fetchCmd.Next()
		if next == nil {
			break
		}
		buf, err := next.Collect()
		if err != nil {
			continue
		}
		msgs = append(msgs, messageFromBuffer(buf, bodySection))
	}

	if err := fetchCmd.Close(); err != nil {
		return msgs, fmt.Errorf("fetching messages: %w", err)
	}

	return msgs, nil
}

func messageFromBuffer(buf *imapclient.FetchMessageBuffer, section *imap.FetchItemBodySection) Message {
	m := Message{UID: uint32(buf.UID)}

	if buf.Envelope != nil {
		m.Subject = buf.Envelope.Subject
		m.Date = buf.Envelope.Date
		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			m.FromName = from.Name
			m.FromAddr = from.Addr()
		}
	}

	if raw := buf.FindBodySection(section); raw != nil {
		m.TextBody = plainText(raw)
	}

	return m
}

// plainText extracts the text/plain part of a raw RFC 2822 message. A
// message that does not parse is returned whole.
func plainText(raw []byte) string {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		if contentType != "" && !strings.HasPrefix(contentType, "text/plain") {
			continue
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		return string(body)
	}

	return ""
}

// RecordFromMessage reads "Field: value" lines from the body. The sender
// supplies the name and e-mail when the body does not, and the lead source
// defaults to Email.
func RecordFromMessage(m Message) importer.Record {
	rec := importer.Record{}
	for _, line := range strings.Split(m.TextBody, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimLeft(key, "*-> \t"))
		value = strings.TrimSpace(value)
		if key == "" || value == "" || strings.ContainsAny(key, "<>@/") {
			continue
		}
		if _, dup := rec[key]; !dup {
			rec[key] = value
		}
	}

	setDefault(rec, "name", m.FromName)
	setDefault(rec, "email", m.FromAddr)
	setDefault(rec, "source", string(model.SourceEmail))
	if m.Subject != "" {
		setDefault(rec, "notes", m.Subject)
	}
	return rec
}

// setDefault fills key unless a header spelling of it already has a value.
func setDefault(rec importer.Record, key, value string) {
	if value == "" {
		return
	}
	for k, v := range rec {
		if strings.EqualFold(strings.TrimSpace(k), key) && v != "" {
			return
		}
	}
	rec[key] = value
}
