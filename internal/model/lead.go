package model

import "time"

// LeadStatus is a stage of the sales pipeline. The set is open: any string
// read from the remote table is carried through unchanged.
type LeadStatus string

// Pipeline statuses.
const (
	StatusNew          LeadStatus = "New"
	StatusContacted    LeadStatus = "Contacted"
	StatusProposalSent LeadStatus = "Proposal Sent"
	StatusDiscussion   LeadStatus = "Discussion"
	StatusFollowUp     LeadStatus = "Follow Up"
	StatusOnHold       LeadStatus = "On Hold"
	StatusWon          LeadStatus = "Won"
	StatusLost         LeadStatus = "Lost"
)

// PipelineStatuses lists the statuses in board order.
var PipelineStatuses = []LeadStatus{
	StatusNew,
	StatusContacted,
	StatusProposalSent,
	StatusDiscussion,
	StatusFollowUp,
	StatusOnHold,
	StatusWon,
	StatusLost,
}

// Temperature classifies how likely a lead is to convert.
type Temperature string

const (
	TemperatureHot  Temperature = "Hot"
	TemperatureWarm Temperature = "Warm"
	TemperatureCold Temperature = "Cold"
)

// LeadSource identifies the acquisition channel of a lead.
type LeadSource string

const (
	SourceWebsite   LeadSource = "Website"
	SourceInstagram LeadSource = "Instagram"
	SourceFacebook  LeadSource = "Facebook"
	SourceWhatsApp  LeadSource = "WhatsApp"
	SourceReferral  LeadSource = "Referral"
	SourceWalkIn    LeadSource = "Walk-in"
	SourceGoogleAds LeadSource = "Google Ads"
	SourceEmail     LeadSource = "Email"
	SourceImport    LeadSource = "Import"
	SourceOther     LeadSource = "Other"
)

// AssigneeUnassigned is the assignee of a lead nobody has picked up yet.
const AssigneeUnassigned = "Unassigned"

// ContactInfo holds the ways to reach a lead.
type ContactInfo struct {
	Phone string `json:"phone" mapstructure:"phone"`
	Email string `json:"email" mapstructure:"email"`
}

// PaxConfig describes the travelling party.
type PaxConfig struct {
	Adults    int   `json:"adults" mapstructure:"adults"`
	Children  int   `json:"children" mapstructure:"children"`
	ChildAges []int `json:"childAges" mapstructure:"childAges"`
}

// DefaultPax is the party assumed when none is given.
func DefaultPax() PaxConfig {
	return PaxConfig{Adults: 2, Children: 0, ChildAges: []int{}}
}

// TripDetails holds what the customer wants to book.
type TripDetails struct {
	Destination string    `json:"destination" mapstructure:"destination"`
	Budget      float64   `json:"budget" mapstructure:"budget"`
	StartDate   time.Time `json:"startDate" mapstructure:"startDate"`
	PaxConfig   PaxConfig `json:"paxConfig" mapstructure:"paxConfig"`
}

// TravelDate reduces t to its calendar date, as midnight UTC. Travel dates
// are stored as dates, so every StartDate is kept in this form.
func TravelDate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Commercials holds the negotiated commercial terms of a lead.
type Commercials struct {
	QuotedPrice  float64 `json:"quoted_price" mapstructure:"quoted_price"`
	NetCost      float64 `json:"net_cost" mapstructure:"net_cost"`
	AdvancePaid  float64 `json:"advance_paid" mapstructure:"advance_paid"`
	Currency     string  `json:"currency" mapstructure:"currency"`
	PaymentTerms string  `json:"payment_terms" mapstructure:"payment_terms"`
}

// VendorRef points at a supplier involved in the trip.
type VendorRef struct {
	ID      string `json:"id" mapstructure:"id"`
	Name    string `json:"name" mapstructure:"name"`
	Service string `json:"service" mapstructure:"service"`
}

// Lead is a prospective customer inquiry tracked through the pipeline.
type Lead struct {
	// ID is assigned by the remote table on insert.
	ID string `json:"id"`

	Name        string      `json:"name"`
	ContactInfo ContactInfo `json:"contactInfo"`
	TripDetails TripDetails `json:"tripDetails"`

	// Preferences is free-form text (hotel class, meal plan, ...).
	Preferences string `json:"preferences"`

	Commercials *Commercials `json:"commercials,omitempty"`
	Vendors     []VendorRef  `json:"vendors,omitempty"`

	Status      LeadStatus  `json:"status"`
	Temperature Temperature `json:"temperature"`
	Source      LeadSource  `json:"source"`
	Services    []string    `json:"services,omitempty"`
	Tags        []string    `json:"tags,omitempty"`

	// AssignedTo is an agent name or AssigneeUnassigned.
	AssignedTo string `json:"assignedTo"`

	// ReferenceName records who captured the lead when the creator is not
	// an admin.
	ReferenceName string `json:"referenceName,omitempty"`

	CreatedAt        time.Time `json:"createdAt"`
	LastStatusUpdate time.Time `json:"lastStatusUpdate"`
}

// LeadPatch is a partial update. Nil fields are left untouched.
type LeadPatch struct {
	Name             *string
	ContactInfo      *ContactInfo
	TripDetails      *TripDetails
	Preferences      *string
	Commercials      *Commercials
	Vendors          *[]VendorRef
	Status           *LeadStatus
	Temperature      *Temperature
	Source           *LeadSource
	Services         *[]string
	Tags             *[]string
	AssignedTo       *string
	ReferenceName    *string
	LastStatusUpdate *time.Time
}

// IsEmpty reports whether the patch carries no fields.
func (p LeadPatch) IsEmpty() bool {
	return p == LeadPatch{}
}

// PromptsFollowUp reports whether moving a lead into s should ask the user
// to schedule a follow-up.
func (s LeadStatus) PromptsFollowUp() bool {
	return s != StatusLost && s != StatusNew
}
