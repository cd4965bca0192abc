// Package importer turns loosely structured rows from spreadsheets, S3
// exports and inquiry e-mails into leads ready for a bulk insert.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/nhle/travel-crm/internal/model"
)

// Record is one imported row: header to cell value, exactly as the
// producer spelled the header.
type Record map[string]string

// Kind identifies where records come from.
type Kind string

const (
	KindFile  Kind = "file"
	KindS3    Kind = "s3"
	KindInbox Kind = "inbox"
)

// Source produces records for one import run.
type Source interface {
	Kind() Kind
	Fetch(ctx context.Context) ([]Record, error)
}

// AuthError indicates that a source rejected its credentials.
type AuthError struct {
	Kind    Kind
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Kind, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Result is the outcome of mapping a batch of records.
type Result struct {
	Leads   []model.Lead
	Skipped int
}

// ImportedTag is attached to every imported lead.
const ImportedTag = "Imported"

// UnknownDestination is used when no destination column resolves.
const UnknownDestination = "TBD"

// Header aliases per canonical field, tried in order. Matching ignores
// case and surrounding spaces; the first alias with a non-empty cell wins.
var (
	nameAliases        = []string{"name", "full name", "customer name", "client name", "lead name", "contact name"}
	phoneAliases       = []string{"phone", "phone number", "mobile", "mobile number", "contact", "contact number", "whatsapp"}
	emailAliases       = []string{"email", "email address", "e-mail", "mail"}
	destinationAliases = []string{"destination", "location", "place", "trip destination", "package"}
	budgetAliases      = []string{"budget", "amount", "price", "budget (inr)"}
	dateAliases        = []string{"travel date", "travel_date", "start date", "date", "departure date"}
	adultsAliases      = []string{"pax", "adults", "no. of pax", "travellers", "travelers"}
	childrenAliases    = []string{"children", "kids", "child"}
	sourceAliases      = []string{"source", "lead source", "channel"}
	assigneeAliases    = []string{"assigned to", "assigned_to", "assignee", "agent", "owner"}
	notesAliases       = []string{"notes", "preferences", "remarks", "comments", "message"}
)

var dateLayouts = []string{"02/01/2006", "02-01-2006", "2 Jan 2006", "Jan 2, 2006"}

// ProcessImportedData maps records to leads. A record with neither a name
// nor a phone is skipped and counted. Accepted leads are Hot, tagged
// Imported, default to two adults and destination TBD, and start New.
func ProcessImportedData(records []Record) Result {
	var res Result
	for _, rec := range records {
		lead, ok := leadFromRecord(normalize(rec))
		if !ok {
			res.Skipped++
			continue
		}
		res.Leads = append(res.Leads, lead)
	}
	return res
}

func leadFromRecord(rec Record) (model.Lead, bool) {
	name := pick(rec, nameAliases)
	phone := pick(rec, phoneAliases)
	if name == "" && phone == "" {
		return model.Lead{}, false
	}
	if name == "" {
		name = "Lead " + phone
	}

	pax := model.DefaultPax()
	if n, err := cast.ToIntE(pick(rec, adultsAliases)); err == nil && n > 0 {
		pax.Adults = n
	}
	if n, err := cast.ToIntE(pick(rec, childrenAliases)); err == nil && n > 0 {
		pax.Children = n
	}

	destination := pick(rec, destinationAliases)
	if destination == "" {
		destination = UnknownDestination
	}

	source := model.SourceImport
	if s := pick(rec, sourceAliases); s != "" {
		source = canonicalSource(s)
	}

	return model.Lead{
		Name:        name,
		ContactInfo: model.ContactInfo{Phone: phone, Email: pick(rec, emailAliases)},
		TripDetails: model.TripDetails{
			Destination: destination,
			Budget:      parseAmount(pick(rec, budgetAliases)),
			StartDate:   parseDate(pick(rec, dateAliases)),
			PaxConfig:   pax,
		},
		Preferences: pick(rec, notesAliases),
		Status:      model.StatusNew,
		Temperature: model.TemperatureHot,
		Source:      source,
		Tags:        []string{ImportedTag},
		AssignedTo:  pick(rec, assigneeAliases),
	}, true
}

// normalize lower-cases and trims headers and trims values.
func normalize(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		key := strings.ToLower(strings.TrimSpace(k))
		val := strings.TrimSpace(v)
		if existing, ok := out[key]; ok && existing != "" {
			continue
		}
		out[key] = val
	}
	return out
}

func pick(rec Record, aliases []string) string {
	for _, a := range aliases {
		if v := rec[a]; v != "" {
			return v
		}
	}
	return ""
}

func canonicalSource(s string) model.LeadSource {
	for _, known := range []model.LeadSource{
		model.SourceWebsite, model.SourceInstagram, model.SourceFacebook,
		model.SourceWhatsApp, model.SourceReferral, model.SourceWalkIn,
		model.SourceGoogleAds, model.SourceEmail, model.SourceImport,
		model.SourceOther,
	} {
		if strings.EqualFold(s, string(known)) {
			return known
		}
	}
	return model.LeadSource(s)
}

// parseAmount reads "₹1,20,000", "50000.50" or "$ 900" as a number.
func parseAmount(s string) float64 {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
	f, err := cast.ToFloat64E(cleaned)
	if err != nil {
		return 0
	}
	return f
}

// parseDate returns the zero time for unparseable input; the store fills
// in a default date for zero values.
func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := cast.ToTimeE(s); err == nil {
		return model.TravelDate(t)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return model.TravelDate(t)
		}
	}
	return time.Time{}
}
