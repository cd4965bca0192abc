package inbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/travel-crm/internal/importer"
	"github.com/nhle/travel-crm/internal/model"
)

const multipartInquiry = "From: Asha Rao <asha@example.com>\r\n" +
	"To: trips@agency.example\r\n" +
	"Subject: Honeymoon enquiry\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Phone: +91 98450 00001\r\n" +
	"Destination: Bali\r\n" +
	"Budget: 1,50,000\r\n" +
	"Pax: 2\r\n" +
	"--b1\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Phone: ignored</p>\r\n" +
	"--b1--\r\n"

func TestPlainTextPicksTextPart(t *testing.T) {
	body := plainText([]byte(multipartInquiry))

	assert.Contains(t, body, "Destination: Bali")
	assert.NotContains(t, body, "<p>")
}

func TestPlainTextFallsBackToRaw(t *testing.T) {
	assert.Equal(t, "not a message", plainText([]byte("not a message")))
}

func TestRecordFromMessage(t *testing.T) {
	msg := Message{
		Subject:  "Honeymoon enquiry",
		FromName: "Asha Rao",
		FromAddr: "asha@example.com",
		TextBody: plainText([]byte(multipartInquiry)),
	}

	rec := RecordFromMessage(msg)

	res := importer.ProcessImportedData([]importer.Record{rec})
	require.Len(t, res.Leads, 1)
	lead := res.Leads[0]
	assert.Equal(t, "Asha Rao", lead.Name)
	assert.Equal(t, "asha@example.com", lead.ContactInfo.Email)
	assert.Equal(t, "+91 98450 00001", lead.ContactInfo.Phone)
	assert.Equal(t, "Bali", lead.TripDetails.Destination)
	assert.Equal(t, 150000.0, lead.TripDetails.Budget)
	assert.Equal(t, model.SourceEmail, lead.Source)
	assert.Equal(t, "Honeymoon enquiry", lead.Preferences)
}

func TestRecordFromMessageBodyNameWins(t *testing.T) {
	rec := RecordFromMessage(Message{
		FromName: "Travel Desk",
		TextBody: "Name: Ravi\nSource: Referral\n",
	})

	assert.Equal(t, "Ravi", rec["Name"])
	assert.NotContains(t, rec, "name")
	assert.Equal(t, "Referral", rec["Source"])
}

func TestNewAppliesDefaults(t *testing.T) {
	s := New(model.InboxConfig{Host: "imap.example.com", Port: "993"}, "secret")

	assert.Equal(t, "INBOX", s.mailbox)
	assert.Equal(t, importer.KindInbox, s.Kind())
}
