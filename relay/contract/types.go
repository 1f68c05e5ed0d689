package contract

import (
	"strings"
	"time"
)

// InboundEvent is the validated, typed form of one webhook message event.
// Only the webhook extraction layer builds these; no other component sees
// the raw platform payload.
type InboundEvent struct {
	MessageID   string
	From        string // sender phone identifier
	Body        string // empty for non-text traffic such as status callbacks
	ProfileName string // optional, from the contacts block
	AccountID   string // optional platform account id (wa_id)
}

// HasText reports whether the event carries a user message body.
func (e InboundEvent) HasText() bool {
	return strings.TrimSpace(e.Body) != ""
}

type IntentKind string

const (
	IntentPlainReply   IntentKind = "plain_reply"
	IntentSaveLocation IntentKind = "save_location"
	IntentUnrecognized IntentKind = "unrecognized"
)

// IntentResult is the tagged outcome of interpreting one user message.
// Exactly one of Reply, Location, Raw is meaningful, selected by Kind.
type IntentResult struct {
	Kind     IntentKind
	Reply    string        // IntentPlainReply
	Location *SaveLocation // IntentSaveLocation
	Raw      string        // IntentUnrecognized: the unmatched payload, for diagnostics
}

// SaveLocation carries the arguments of a structured saveLocation call.
type SaveLocation struct {
	CityName    string `json:"cityName"`
	StateName   string `json:"stateName,omitempty"`
	CountryName string `json:"countryName"`
}

// DisplayName composes the human-readable location name:
// "city, state, country" when a state is present, "city, country" otherwise.
func (l SaveLocation) DisplayName() string {
	parts := []string{l.CityName}
	if strings.TrimSpace(l.StateName) != "" {
		parts = append(parts, l.StateName)
	}
	parts = append(parts, l.CountryName)
	return strings.Join(parts, ", ")
}

// WeatherSummary is derived per turn and never persisted.
type WeatherSummary struct {
	WillRain     bool
	TemperatureC float64
	FeelsLikeC   float64
	HumidityPct  int
}

// Contact is the persisted record for one end-user, keyed by phone.
type Contact struct {
	ID           int64
	Phone        string
	Name         string
	AccountID    string
	LocationName string
	Location     *SaveLocation
	Settings     map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasLocation reports whether a location has been saved for the contact.
func (c Contact) HasLocation() bool {
	return strings.TrimSpace(c.LocationName) != ""
}

type Outcome string

const (
	OutcomeReplied   Outcome = "replied"   // a reply was dispatched
	OutcomeIgnored   Outcome = "ignored"   // no text body, nothing to do
	OutcomeDuplicate Outcome = "duplicate" // message id already in the ledger
	OutcomeSilent    Outcome = "silent"    // turn concluded without a reply
)

// Ack is what a turn hands back to the webhook layer. Reasons lists the
// degrade codes collected along the way so callers and tests can see why a
// turn ended up less than perfect.
type Ack struct {
	Outcome Outcome
	Reasons []string
}
