// Package mapper converts between the flat rows stored in the remote table
// and the nested model.Lead used everywhere else.
//
// Decoding never fails. Missing or malformed columns fall back to the zero
// value or to the documented default (status New, temperature Warm,
// assignee Unassigned, two adults).
package mapper

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"

	"github.com/nhle/travel-crm/internal/model"
	"github.com/nhle/travel-crm/internal/remote"
)

// DateLayout is the wire format of travel_date.
const DateLayout = "2006-01-02"

// Flat column names of the leads table.
const (
	ColID               = remote.ColumnID
	ColName             = "name"
	ColPhone            = "phone"
	ColEmail            = "email"
	ColDestination      = "destination"
	ColBudget           = "budget"
	ColTravelDate       = "travel_date"
	ColPax              = "pax"
	ColChildren         = "children"
	ColChildAges        = "child_ages"
	ColPreferences      = "preferences"
	ColCommercials      = "commercials"
	ColVendors          = "vendors"
	ColStatus           = "status"
	ColTemperature      = "temperature"
	ColSource           = "source"
	ColServices         = "services"
	ColTags             = "tags"
	ColAssignedTo       = "assigned_to"
	ColReferenceName    = "reference_name"
	ColCreatedAt        = remote.ColumnCreatedAt
	ColLastStatusUpdate = "last_status_update"

	// Nested shapes some producers send instead of the flat columns.
	ColContactInfo = "contact_info"
	ColTripDetails = "trip_details"
)

// FromRow builds a Lead from a stored row. A missing travel date becomes
// the current time.
func FromRow(row remote.Row) model.Lead {
	return FromRowAt(row, time.Now())
}

// FromRowAt is FromRow with an explicit "now" for the travel date fallback.
func FromRowAt(row remote.Row, now time.Time) model.Lead {
	lead := model.Lead{
		ID:            row.ID(),
		Name:          str(row[ColName]),
		ContactInfo:   contactFromRow(row),
		TripDetails:   tripFromRow(row, now),
		Preferences:   str(row[ColPreferences]),
		Commercials:   commercialsFromValue(row[ColCommercials]),
		Vendors:       vendorsFromValue(row[ColVendors]),
		Status:        model.LeadStatus(str(row[ColStatus])),
		Temperature:   model.Temperature(str(row[ColTemperature])),
		Source:        model.LeadSource(str(row[ColSource])),
		Services:      strSlice(row[ColServices]),
		Tags:          strSlice(row[ColTags]),
		AssignedTo:    str(row[ColAssignedTo]),
		ReferenceName: str(row[ColReferenceName]),
		CreatedAt:     timeOr(row[ColCreatedAt], time.Time{}),
	}
	lead.LastStatusUpdate = timeOr(row[ColLastStatusUpdate], lead.CreatedAt)

	if lead.Status == "" {
		lead.Status = model.StatusNew
	}
	if lead.Temperature == "" {
		lead.Temperature = model.TemperatureWarm
	}
	if lead.Source == "" {
		lead.Source = model.SourceOther
	}
	if lead.AssignedTo == "" {
		lead.AssignedTo = model.AssigneeUnassigned
	}

	return lead
}

// ToRow flattens a Lead for insertion. An empty id and a zero creation
// time are left out so the table assigns them.
func ToRow(lead model.Lead) remote.Row {
	row := remote.Row{
		ColName:          lead.Name,
		ColPreferences:   lead.Preferences,
		ColStatus:        string(lead.Status),
		ColTemperature:   string(lead.Temperature),
		ColSource:        string(lead.Source),
		ColServices:      stringList(lead.Services),
		ColTags:          stringList(lead.Tags),
		ColAssignedTo:    lead.AssignedTo,
		ColReferenceName: lead.ReferenceName,
		ColVendors:       vendorsRow(lead.Vendors),
	}
	if lead.ID != "" {
		row[ColID] = lead.ID
	}
	if !lead.CreatedAt.IsZero() {
		row[ColCreatedAt] = lead.CreatedAt.UTC()
	}
	if !lead.LastStatusUpdate.IsZero() {
		row[ColLastStatusUpdate] = lead.LastStatusUpdate.UTC()
	}
	if lead.Commercials != nil {
		row[ColCommercials] = commercialsRow(*lead.Commercials)
	}
	flattenContact(row, lead.ContactInfo)
	flattenTrip(row, lead.TripDetails)
	return row
}

// PatchRow flattens the fields present in patch. Absent fields are not
// included, so they are not sent.
func PatchRow(patch model.LeadPatch) remote.Row {
	row := remote.Row{}
	if patch.Name != nil {
		row[ColName] = *patch.Name
	}
	if patch.ContactInfo != nil {
		flattenContact(row, *patch.ContactInfo)
	}
	if patch.TripDetails != nil {
		flattenTrip(row, *patch.TripDetails)
	}
	if patch.Preferences != nil {
		row[ColPreferences] = *patch.Preferences
	}
	if patch.Commercials != nil {
		row[ColCommercials] = commercialsRow(*patch.Commercials)
	}
	if patch.Vendors != nil {
		row[ColVendors] = vendorsRow(*patch.Vendors)
	}
	if patch.Status != nil {
		row[ColStatus] = string(*patch.Status)
	}
	if patch.Temperature != nil {
		row[ColTemperature] = string(*patch.Temperature)
	}
	if patch.Source != nil {
		row[ColSource] = string(*patch.Source)
	}
	if patch.Services != nil {
		row[ColServices] = stringList(*patch.Services)
	}
	if patch.Tags != nil {
		row[ColTags] = stringList(*patch.Tags)
	}
	if patch.AssignedTo != nil {
		row[ColAssignedTo] = *patch.AssignedTo
	}
	if patch.ReferenceName != nil {
		row[ColReferenceName] = *patch.ReferenceName
	}
	if patch.LastStatusUpdate != nil {
		row[ColLastStatusUpdate] = patch.LastStatusUpdate.UTC()
	}
	return row
}

func flattenContact(row remote.Row, c model.ContactInfo) {
	row[ColPhone] = c.Phone
	row[ColEmail] = c.Email
}

func flattenTrip(row remote.Row, t model.TripDetails) {
	row[ColDestination] = t.Destination
	row[ColBudget] = t.Budget
	if !t.StartDate.IsZero() {
		row[ColTravelDate] = model.TravelDate(t.StartDate).Format(DateLayout)
	}
	row[ColPax] = t.PaxConfig.Adults
	row[ColChildren] = t.PaxConfig.Children
	ages := make([]any, 0, len(t.PaxConfig.ChildAges))
	for _, a := range t.PaxConfig.ChildAges {
		ages = append(ages, a)
	}
	row[ColChildAges] = ages
}

func contactFromRow(row remote.Row) model.ContactInfo {
	if nested, ok := asMap(row[ColContactInfo]); ok {
		var c model.ContactInfo
		if decode(nested, &c) == nil {
			return c
		}
	}
	return model.ContactInfo{
		Phone: str(row[ColPhone]),
		Email: str(row[ColEmail]),
	}
}

func tripFromRow(row remote.Row, now time.Time) model.TripDetails {
	if nested, ok := asMap(row[ColTripDetails]); ok {
		t := model.TripDetails{PaxConfig: model.DefaultPax()}
		if decode(nested, &t) == nil {
			if t.StartDate.IsZero() {
				t.StartDate = now
			}
			t.StartDate = model.TravelDate(t.StartDate)
			if t.PaxConfig.ChildAges == nil {
				t.PaxConfig.ChildAges = []int{}
			}
			return t
		}
	}

	pax := model.DefaultPax()
	if v, ok := row[ColPax]; ok && v != nil {
		if n, err := cast.ToIntE(v); err == nil {
			pax.Adults = n
		}
	}
	pax.Children = cast.ToInt(row[ColChildren])
	if ages, err := cast.ToIntSliceE(jsonish(row[ColChildAges])); err == nil && ages != nil {
		pax.ChildAges = ages
	}

	return model.TripDetails{
		Destination: str(row[ColDestination]),
		Budget:      cast.ToFloat64(row[ColBudget]),
		StartDate:   model.TravelDate(timeOr(row[ColTravelDate], now)),
		PaxConfig:   pax,
	}
}

func commercialsFromValue(v any) *model.Commercials {
	m, ok := asMap(v)
	if !ok {
		return nil
	}
	var c model.Commercials
	if err := decode(m, &c); err != nil {
		return nil
	}
	return &c
}

func commercialsRow(c model.Commercials) map[string]any {
	return map[string]any{
		"quoted_price":  c.QuotedPrice,
		"net_cost":      c.NetCost,
		"advance_paid":  c.AdvancePaid,
		"currency":      c.Currency,
		"payment_terms": c.PaymentTerms,
	}
}

func vendorsFromValue(v any) []model.VendorRef {
	items, ok := jsonish(v).([]any)
	if !ok || len(items) == 0 {
		return nil
	}
	var out []model.VendorRef
	if err := decode(items, &out); err != nil {
		return nil
	}
	return out
}

func vendorsRow(vs []model.VendorRef) []any {
	out := make([]any, 0, len(vs))
	for _, v := range vs {
		out = append(out, map[string]any{
			"id":      v.ID,
			"name":    v.Name,
			"service": v.Service,
		})
	}
	return out
}

func stringList(s []string) []any {
	out := make([]any, 0, len(s))
	for _, v := range s {
		out = append(out, v)
	}
	return out
}

// decode fills out from a loosely typed document, accepting numeric strings
// and any time encoding cast understands.
func decode(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       timeHook,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

func timeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	if data == nil {
		return time.Time{}, nil
	}
	t, err := cast.ToTimeE(data)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

// jsonish parses a JSON array or object that arrived as text.
func jsonish(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	s = strings.TrimSpace(s)
	if s == "" || (s[0] != '[' && s[0] != '{') {
		return v
	}
	var doc any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return v
	}
	return doc
}

func asMap(v any) (map[string]any, bool) {
	switch m := jsonish(v).(type) {
	case map[string]any:
		return m, true
	case remote.Row:
		return m, true
	default:
		return nil, false
	}
}

func str(v any) string {
	if v == nil {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return s
}

func strSlice(v any) []string {
	v = jsonish(v)
	if v == nil {
		return nil
	}
	out, err := cast.ToStringSliceE(v)
	if err != nil || len(out) == 0 {
		return nil
	}
	return out
}

func timeOr(v any, fallback time.Time) time.Time {
	if v == nil {
		return fallback
	}
	if s, ok := v.(string); ok && s == "" {
		return fallback
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		return fallback
	}
	return t
}
